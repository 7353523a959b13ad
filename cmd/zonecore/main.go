package main

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wugren/buckyos/pkg/backup"
	"github.com/wugren/buckyos/pkg/blobstore"
	"github.com/wugren/buckyos/pkg/chunkstore"
	"github.com/wugren/buckyos/pkg/credential"
	"github.com/wugren/buckyos/pkg/events"
	"github.com/wugren/buckyos/pkg/kv"
	"github.com/wugren/buckyos/pkg/metrics"
	"github.com/wugren/buckyos/pkg/policy"
	"github.com/wugren/buckyos/pkg/rpcenvelope"
	"github.com/wugren/buckyos/pkg/security"
	"github.com/wugren/buckyos/pkg/selector"
	"github.com/wugren/buckyos/pkg/session"
	"github.com/wugren/buckyos/pkg/taskstorage"
	"github.com/wugren/buckyos/pkg/trustkey"
	"github.com/wugren/buckyos/pkg/zlog"
	"github.com/wugren/buckyos/pkg/zonetypes"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const (
	rootPubKeyKey     = "zone/root_pubkey"
	rootPrivKeySealed = "zone/root_privkey_sealed"
	zoneNameKey       = "zone/name"
	masterPassEnv     = "ZONECORE_MASTER_PASSWORD"

	// deviceID the zone core issues its own mTLS identity under, kept
	// distinct from any future joined device's id.
	selfDeviceID = "zonecore"
)

// ensureDeviceCert loads the zone core's own device certificate from disk,
// reissuing it if it's missing, fails chain validation against the stored
// CA, or is within its rotation window.
func ensureDeviceCert(ca *security.CertAuthority, zoneName string) (*tls.Certificate, error) {
	if !ca.IsInitialized() {
		return nil, fmt.Errorf("certificate authority not initialized")
	}

	certDir, err := security.GetCertDir(selfDeviceID, zoneName)
	if err != nil {
		return nil, fmt.Errorf("resolve cert dir: %w", err)
	}

	if security.CertExists(certDir) {
		cert, err := security.LoadCertFromFile(certDir)
		caCert, caErr := security.LoadCACertFromFile(certDir)
		if err == nil && caErr == nil {
			if chainErr := security.ValidateCertChain(cert.Leaf, caCert); chainErr != nil {
				zlog.Logger.Warn().Err(chainErr).Msg("stored device certificate failed chain validation, reissuing")
			} else if !security.CertNeedsRotation(cert.Leaf) {
				zlog.Logger.Info().
					Interface("cert", security.GetCertInfo(cert.Leaf)).
					Dur("expires_in", security.GetCertTimeRemaining(cert.Leaf)).
					Msg("loaded device certificate")
				return cert, nil
			} else {
				zlog.Logger.Info().Time("expires_at", security.GetCertExpiry(cert.Leaf)).Msg("device certificate due for rotation")
			}
		}
		if err := security.RemoveCerts(certDir); err != nil {
			return nil, fmt.Errorf("remove stale cert dir: %w", err)
		}
	}

	tlsCert, err := ca.IssueDeviceCertificate(zoneName, []string{zoneName, "localhost"}, []net.IP{net.ParseIP("127.0.0.1")})
	if err != nil {
		return nil, fmt.Errorf("issue device certificate: %w", err)
	}
	if err := ca.VerifyCertificate(tlsCert.Leaf); err != nil {
		return nil, fmt.Errorf("freshly issued device certificate failed verification: %w", err)
	}
	if _, cached := ca.GetCachedCert(zoneName); !cached {
		return nil, fmt.Errorf("device certificate not cached after issuance")
	}
	if err := security.SaveCertToFile(tlsCert, certDir); err != nil {
		return nil, fmt.Errorf("save device certificate: %w", err)
	}
	if err := security.SaveCACertToFile(ca.GetRootCACert(), certDir); err != nil {
		return nil, fmt.Errorf("save CA certificate: %w", err)
	}
	return tlsCert, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "zonecore",
	Short:   "zonecore runs a zone's trust hub and content-addressed backup engine",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("zonecore version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("data-dir", "./data", "Directory holding the zone's bbolt store")
	cobra.OnInitialize(initLogging)

	initCmd.Flags().String("zone-name", "my-zone", "Zone name stamped into the root certificate")
	serveCmd.Flags().String("rpc-addr", "127.0.0.1:3300", "Address the kRPC envelope server listens on")
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address the /metrics, /health and /ready endpoints listen on")
	serveCmd.Flags().StringSlice("backup-endpoint", nil, "id@address pairs of backup target services (repeatable)")
	healthCmd.Flags().String("addr", "127.0.0.1:9090", "Address of a running zonecore's health endpoint")

	rootCmd.AddCommand(initCmd, serveCmd, healthCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	zlog.Init(zlog.Config{Level: zlog.Level(level), JSONOutput: jsonOut})
}

func openStore(cmd *cobra.Command) (kv.Store, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return kv.OpenBoltStore(filepath.Join(dataDir, "zonecore.db"))
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the zone's root trust key and certificate authority",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		password := os.Getenv(masterPassEnv)
		if password == "" {
			return fmt.Errorf("%s must be set to seal the root private key", masterPassEnv)
		}

		pub, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			return fmt.Errorf("generate root key: %w", err)
		}

		sm, err := security.NewSecretsManagerFromPassword(password)
		if err != nil {
			return err
		}
		sealed, err := sm.EncryptSecret(priv)
		if err != nil {
			return fmt.Errorf("seal root key: %w", err)
		}

		if err := store.Set(rootPubKeyKey, base64.StdEncoding.EncodeToString(pub)); err != nil {
			return err
		}
		if err := store.Set(rootPrivKeySealed, base64.StdEncoding.EncodeToString(sealed)); err != nil {
			return err
		}

		zoneName, _ := cmd.Flags().GetString("zone-name")
		if err := store.Set(zoneNameKey, zoneName); err != nil {
			return fmt.Errorf("save zone name: %w", err)
		}

		if err := security.SetZoneEncryptionKey(security.DeriveKeyFromZoneID(zoneName)); err != nil {
			return fmt.Errorf("set zone encryption key: %w", err)
		}
		ca := security.NewCertAuthority(store)
		if err := ca.Initialize(zoneName); err != nil {
			return fmt.Errorf("initialize CA: %w", err)
		}
		if err := ca.SaveToStore(); err != nil {
			return fmt.Errorf("save CA: %w", err)
		}

		deviceCert, err := ensureDeviceCert(ca, zoneName)
		if err != nil {
			return fmt.Errorf("issue device certificate: %w", err)
		}

		fmt.Println("Zone initialized.")
		fmt.Printf("  Root public key: %s\n", base64.StdEncoding.EncodeToString(pub))
		fmt.Printf("  Zone name:       %s\n", zoneName)
		fmt.Printf("  Device cert:     expires %s\n", security.GetCertExpiry(deviceCert.Leaf).Format(time.RFC3339))
		return nil
	},
}

func loadRootKey(store kv.Store) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pubB64, err := store.Get(rootPubKeyKey)
	if err != nil {
		return nil, nil, fmt.Errorf("zone not initialized (run 'zonecore init' first): %w", err)
	}
	pub, err := base64.StdEncoding.DecodeString(pubB64)
	if err != nil {
		return nil, nil, fmt.Errorf("corrupt root public key: %w", err)
	}

	password := os.Getenv(masterPassEnv)
	if password == "" {
		return nil, nil, fmt.Errorf("%s must be set to unseal the root private key", masterPassEnv)
	}
	sealedB64, err := store.Get(rootPrivKeySealed)
	if err != nil {
		return nil, nil, fmt.Errorf("missing sealed root private key: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(sealedB64)
	if err != nil {
		return nil, nil, fmt.Errorf("corrupt sealed root private key: %w", err)
	}
	sm, err := security.NewSecretsManagerFromPassword(password)
	if err != nil {
		return nil, nil, err
	}
	priv, err := sm.DecryptSecret(sealed)
	if err != nil {
		return nil, nil, fmt.Errorf("unseal root private key (wrong password?): %w", err)
	}
	return ed25519.PublicKey(pub), ed25519.PrivateKey(priv), nil
}

func parseEndpoints(raw []string) []selector.Endpoint {
	endpoints := make([]selector.Endpoint, 0, len(raw))
	for _, e := range raw {
		parts := strings.SplitN(e, "@", 2)
		if len(parts) != 2 {
			continue
		}
		endpoints = append(endpoints, selector.Endpoint{ID: parts[0], Address: parts[1], Ready: true})
	}
	return endpoints
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the zone's verify hub, backup driver and kRPC endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		rootPub, rootPriv, err := loadRootKey(store)
		if err != nil {
			return err
		}

		zoneName, err := store.Get(zoneNameKey)
		if err != nil {
			return fmt.Errorf("zone not initialized (run 'zonecore init' first): %w", err)
		}
		if err := security.SetZoneEncryptionKey(security.DeriveKeyFromZoneID(zoneName)); err != nil {
			return fmt.Errorf("set zone encryption key: %w", err)
		}
		ca := security.NewCertAuthority(store)
		if err := ca.LoadFromStore(); err != nil {
			return fmt.Errorf("load CA: %w", err)
		}
		deviceCert, err := ensureDeviceCert(ca, zoneName)
		if err != nil {
			return fmt.Errorf("load device certificate: %w", err)
		}
		zlog.Logger.Info().Interface("device_cert", security.GetCertInfo(deviceCert.Leaf)).Msg("device mTLS identity ready")
		metrics.RegisterComponent("device_cert", true, "ready")

		resolver, err := trustkey.NewResolver(store, rootPub, 256)
		if err != nil {
			return fmt.Errorf("create trust key resolver: %w", err)
		}
		if err := resolver.Register(&zonetypes.TrustKey{Kid: session.HubIssuer, PublicJWK: []byte(rootPub)}); err != nil {
			return fmt.Errorf("register hub trust key: %w", err)
		}
		signer := credential.NewSigner(session.HubIssuer, rootPriv)
		verifier := credential.NewVerifier(resolver)
		hub := session.NewHub(store, signer, verifier)
		metrics.RegisterComponent("verify_hub", true, "ready")

		subjectPolicy, err := policy.DefaultPolicy()
		if err != nil {
			return fmt.Errorf("load default policy: %w", err)
		}
		appPolicy, err := policy.DefaultPolicy()
		if err != nil {
			return fmt.Errorf("load default app policy: %w", err)
		}
		twoFactor := policy.NewTwoFactorEnforcer(subjectPolicy, appPolicy)

		taskStore := taskstorage.New(store)
		chunkStore := chunkstore.New(store)
		blobs := blobstore.New(store)
		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()
		metrics.RegisterComponent("kv_store", true, "ready")

		backupDispatcher := rpcenvelope.NewDispatcher("backup")
		backup.RegisterTargetHandlers(backupDispatcher, taskStore, chunkStore, blobs)

		sessionDispatcher := rpcenvelope.NewDispatcher("verify-hub")
		registerSessionHandlers(sessionDispatcher, hub, twoFactor)

		rawEndpoints, _ := cmd.Flags().GetStringSlice("backup-endpoint")
		sel := selector.New(parseEndpoints(rawEndpoints))
		resolve := func(endpoint selector.Endpoint) backup.Services {
			client := rpcenvelope.NewClient(endpoint.Address, "backup", "")
			return backup.NewRemoteServices(client)
		}
		driver := backup.NewDriver(taskStore, chunkStore, sel, resolve, broker, 2*time.Second, time.Minute)
		defer driver.StopAll()

		collector := metrics.NewCollector(hub, taskStore, chunkStore)
		collector.Start()
		defer collector.Stop()
		metrics.SetVersion(Version)

		backupServer := rpcenvelope.NewServer("backup", backupDispatcher)
		sessionServer := rpcenvelope.NewServer("verify-hub", sessionDispatcher)

		mux := http.NewServeMux()
		mux.Handle("/kapi/backup", backupServer.Handler())
		mux.Handle("/kapi/verify-hub", sessionServer.Handler())

		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metrics.Handler())
		metricsMux.Handle("/health", metrics.HealthHandler())
		metricsMux.Handle("/ready", metrics.ReadyHandler())
		metricsMux.Handle("/live", metrics.LivenessHandler())

		rpcAddr, _ := cmd.Flags().GetString("rpc-addr")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		rpcServer := &http.Server{Addr: rpcAddr, Handler: mux, ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second, IdleTimeout: 60 * time.Second}
		metricsServer := &http.Server{Addr: metricsAddr, Handler: metricsMux, ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second, IdleTimeout: 60 * time.Second}
		errCh := make(chan error, 2)
		go func() {
			if err := rpcServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("rpc server: %w", err)
			}
		}()
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
		metrics.RegisterComponent("rpc_server", true, "ready")

		fmt.Printf("zonecore listening: kapi on %s, metrics/health on %s\n", rpcAddr, metricsAddr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigCh:
			fmt.Println("shutting down...")
		case err := <-errCh:
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
		return rpcServer.Shutdown(shutdownCtx)
	},
}

func registerSessionHandlers(d *rpcenvelope.Dispatcher, hub *session.Hub, access *policy.TwoFactorEnforcer) {
	type loginByPasswordParams struct {
		Username string `json:"username"`
		AppID    string `json:"app_id"`
		Password string `json:"password"`
		NonceMs  int64  `json:"nonce_ms"`
	}
	d.Register("login_by_password", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		var p loginByPasswordParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		result, err := hub.LoginByPassword(p.Username, p.AppID, p.Password, p.NonceMs)
		if err != nil {
			metrics.SessionLoginsTotal.WithLabelValues("password", "error").Inc()
			return nil, err
		}
		metrics.SessionLoginsTotal.WithLabelValues("password", "ok").Inc()
		return result, nil
	})

	type loginByJWTParams struct {
		JWT string `json:"jwt"`
	}
	d.Register("login_by_jwt", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		var p loginByJWTParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		result, err := hub.LoginByJWT(p.JWT)
		if err != nil {
			metrics.SessionLoginsTotal.WithLabelValues("jwt", "error").Inc()
			return nil, err
		}
		metrics.SessionLoginsTotal.WithLabelValues("jwt", "ok").Inc()
		if result.Refreshed {
			metrics.SessionRefreshesTotal.WithLabelValues("ok").Inc()
		}
		return result, nil
	})

	type verifyParams struct {
		Token string `json:"token"`
	}
	d.Register("verify_token", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		var p verifyParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return hub.VerifySessionToken(p.Token)
	})

	type checkAccessParams struct {
		UserID   string `json:"user_id"`
		AppID    string `json:"app_id"`
		Resource string `json:"resource"`
		Action   string `json:"action"`
	}
	type checkAccessResult struct {
		Allowed bool `json:"allowed"`
	}
	d.Register("check_access", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		var p checkAccessParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return checkAccessResult{Allowed: access.Enforce(p.UserID, p.AppID, p.Resource, p.Action)}, nil
	})
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check a running zonecore's /health endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		resp, err := http.Get(fmt.Sprintf("http://%s/health", addr))
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		defer resp.Body.Close()
		var status map[string]interface{}
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			return fmt.Errorf("decode health response: %w", err)
		}
		raw, _ := json.MarshalIndent(status, "", "  ")
		fmt.Println(string(raw))
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("zonecore is unhealthy (status %d)", resp.StatusCode)
		}
		return nil
	},
}
