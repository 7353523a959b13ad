// Package security provides the zone's device certificate authority (mTLS
// identity for node-to-node RPC), secret sealing for the CA's private key
// at rest, and the base58 content-hash codec used across the backup and
// object-map subsystems.
package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"fmt"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/wugren/buckyos/pkg/kv"
)

// CertAuthority manages the zone's certificate authority, used to issue
// short-lived mTLS identities to devices joining the zone and to the zone
// core's own internal services.
type CertAuthority struct {
	rootCert  *x509.Certificate
	rootKey   *rsa.PrivateKey
	store     kv.Store
	certCache map[string]*CachedCert
	mu        sync.RWMutex
}

// CachedCert represents a cached certificate.
type CachedCert struct {
	Cert      *x509.Certificate
	Key       *rsa.PrivateKey
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// CAData represents the serialized CA data for storage.
type CAData struct {
	RootCertDER []byte
	RootKeyDER  []byte
}

const (
	rootCAValidity     = 10 * 365 * 24 * time.Hour
	deviceCertValidity = 90 * 24 * time.Hour
	rootKeySize        = 4096
	deviceKeySize      = 2048

	caStoreKey = "zone/ca"
)

// NewCertAuthority creates a new certificate authority backed by store.
func NewCertAuthority(store kv.Store) *CertAuthority {
	return &CertAuthority{
		store:     store,
		certCache: make(map[string]*CachedCert),
	}
}

// Initialize generates a new root CA certificate for the zone.
func (ca *CertAuthority) Initialize(zoneName string) error {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	rootKey, err := rsa.GenerateKey(rand.Reader, rootKeySize)
	if err != nil {
		return fmt.Errorf("generate root key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("generate serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"BuckyOS Zone"},
			CommonName:   fmt.Sprintf("%s Zone Root CA", zoneName),
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(rootCAValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		IsCA:                  true,
		BasicConstraintsValid: true,
		MaxPathLen:            1,
		MaxPathLenZero:        false,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &rootKey.PublicKey, rootKey)
	if err != nil {
		return fmt.Errorf("create root certificate: %w", err)
	}

	rootCert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("parse root certificate: %w", err)
	}

	ca.rootCert = rootCert
	ca.rootKey = rootKey
	return nil
}

// LoadFromStore loads the CA from the backing store.
func (ca *CertAuthority) LoadFromStore() error {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	raw, err := ca.store.Get(caStoreKey)
	if err != nil {
		return fmt.Errorf("get CA from store: %w", err)
	}

	var caData CAData
	if err := json.Unmarshal([]byte(raw), &caData); err != nil {
		return fmt.Errorf("unmarshal CA data: %w", err)
	}

	decryptedKey, err := Decrypt(caData.RootKeyDER)
	if err != nil {
		return fmt.Errorf("decrypt root key: %w", err)
	}

	rootCert, err := x509.ParseCertificate(caData.RootCertDER)
	if err != nil {
		return fmt.Errorf("parse root certificate: %w", err)
	}

	rootKey, err := x509.ParsePKCS1PrivateKey(decryptedKey)
	if err != nil {
		return fmt.Errorf("parse root key: %w", err)
	}

	ca.rootCert = rootCert
	ca.rootKey = rootKey
	return nil
}

// SaveToStore persists the CA to the backing store, with the private key
// sealed under the zone's master encryption key.
func (ca *CertAuthority) SaveToStore() error {
	ca.mu.RLock()
	defer ca.mu.RUnlock()

	if ca.rootCert == nil || ca.rootKey == nil {
		return fmt.Errorf("CA not initialized")
	}

	rootKeyDER := x509.MarshalPKCS1PrivateKey(ca.rootKey)
	encryptedKey, err := Encrypt(rootKeyDER)
	if err != nil {
		return fmt.Errorf("encrypt root key: %w", err)
	}

	caData := CAData{
		RootCertDER: ca.rootCert.Raw,
		RootKeyDER:  encryptedKey,
	}

	data, err := json.Marshal(caData)
	if err != nil {
		return fmt.Errorf("marshal CA data: %w", err)
	}

	return ca.store.Set(caStoreKey, string(data))
}

// IssueDeviceCertificate issues an mTLS identity for a device joining the
// zone.
func (ca *CertAuthority) IssueDeviceCertificate(deviceID string, dnsNames []string, ipAddresses []net.IP) (*tls.Certificate, error) {
	ca.mu.RLock()
	defer ca.mu.RUnlock()

	if ca.rootCert == nil || ca.rootKey == nil {
		return nil, fmt.Errorf("CA not initialized")
	}

	deviceKey, err := rsa.GenerateKey(rand.Reader, deviceKeySize)
	if err != nil {
		return nil, fmt.Errorf("generate device key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"BuckyOS Zone"},
			CommonName:   fmt.Sprintf("device-%s", deviceID),
		},
		NotBefore:   time.Now(),
		NotAfter:    time.Now().Add(deviceCertValidity),
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		DNSNames:    dnsNames,
		IPAddresses: ipAddresses,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, ca.rootCert, &deviceKey.PublicKey, ca.rootKey)
	if err != nil {
		return nil, fmt.Errorf("create device certificate: %w", err)
	}

	deviceCert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("parse device certificate: %w", err)
	}

	tlsCert := &tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  deviceKey,
		Leaf:        deviceCert,
	}

	ca.cacheCertificate(deviceID, deviceCert, deviceKey)
	return tlsCert, nil
}

// VerifyCertificate verifies a certificate against the zone root CA.
func (ca *CertAuthority) VerifyCertificate(cert *x509.Certificate) error {
	ca.mu.RLock()
	defer ca.mu.RUnlock()

	if ca.rootCert == nil {
		return fmt.Errorf("CA not initialized")
	}

	roots := x509.NewCertPool()
	roots.AddCert(ca.rootCert)

	opts := x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}

	if _, err := cert.Verify(opts); err != nil {
		return fmt.Errorf("certificate verification failed: %w", err)
	}
	return nil
}

// GetRootCACert returns the root CA certificate in DER format.
func (ca *CertAuthority) GetRootCACert() []byte {
	ca.mu.RLock()
	defer ca.mu.RUnlock()
	if ca.rootCert == nil {
		return nil
	}
	return ca.rootCert.Raw
}

// IsInitialized returns true if the CA is initialized.
func (ca *CertAuthority) IsInitialized() bool {
	ca.mu.RLock()
	defer ca.mu.RUnlock()
	return ca.rootCert != nil && ca.rootKey != nil
}

func (ca *CertAuthority) cacheCertificate(id string, cert *x509.Certificate, key *rsa.PrivateKey) {
	ca.certCache[id] = &CachedCert{
		Cert:      cert,
		Key:       key,
		IssuedAt:  cert.NotBefore,
		ExpiresAt: cert.NotAfter,
	}
}

// GetCachedCert retrieves a cached certificate.
func (ca *CertAuthority) GetCachedCert(id string) (*CachedCert, bool) {
	ca.mu.RLock()
	defer ca.mu.RUnlock()
	cert, exists := ca.certCache[id]
	return cert, exists
}
