// Package credential signs and verifies the zone's JSON credentials: JWT
// compact tokens carrying a principal's claims, signed with Ed25519 and
// keyed by a "kid" header the verifier resolves via pkg/trustkey. This
// mirrors the verify hub's generate_jwt/verify_jwt pair.
package credential

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wugren/buckyos/pkg/trustkey"
)

// Signer mints EdDSA-signed JWTs on behalf of a single kid.
type Signer struct {
	kid        string
	privateKey ed25519.PrivateKey
}

// NewSigner creates a Signer that stamps every token's header with kid and
// signs it with privateKey.
func NewSigner(kid string, privateKey ed25519.PrivateKey) *Signer {
	return &Signer{kid: kid, privateKey: privateKey}
}

// Sign builds a compact JWT from claims, valid from now for ttl.
func (s *Signer) Sign(subject string, claims map[string]interface{}, ttl time.Duration) (string, error) {
	now := time.Now()
	mapClaims := jwt.MapClaims{
		"sub": subject,
		"iss": s.kid,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	for k, v := range claims {
		mapClaims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, mapClaims)
	token.Header["kid"] = s.kid

	compact, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("credential: sign: %w", err)
	}
	return compact, nil
}

// Verifier verifies a compact JWT's signature against the trust key
// resolved from the token's "kid" header, and returns the decoded kid and
// claims.
type Verifier struct {
	resolver *trustkey.Resolver
}

// NewVerifier creates a Verifier backed by a trust key resolver.
func NewVerifier(resolver *trustkey.Resolver) *Verifier {
	return &Verifier{resolver: resolver}
}

// Verify parses and verifies compact, returning its kid and claims. It
// does not itself check expiry beyond what golang-jwt validates by
// default (exp, if present); callers with additional freshness rules
// (e.g. the verify hub's own-token early-refresh guard) check ExpiresAt
// themselves.
func (v *Verifier) Verify(compact string) (kid string, claims jwt.MapClaims, err error) {
	token, err := jwt.Parse(compact, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("credential: unexpected signing method %v", t.Header["alg"])
		}
		rawKid, ok := t.Header["kid"].(string)
		if !ok || rawKid == "" {
			return nil, fmt.Errorf("credential: token missing kid header")
		}
		kid = rawKid
		return v.resolver.Resolve(rawKid)
	})
	if err != nil {
		return "", nil, fmt.Errorf("credential: verify: %w", err)
	}
	if !token.Valid {
		return "", nil, fmt.Errorf("credential: token invalid")
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", nil, fmt.Errorf("credential: unexpected claims type")
	}
	return kid, mapClaims, nil
}

// IsJWT reports whether s looks like a JWT compact token (three
// dot-separated segments), matching the verify hub's "does this token
// contain a '.'" check before attempting JWT verification.
func IsJWT(s string) bool {
	dots := 0
	for _, r := range s {
		if r == '.' {
			dots++
		}
	}
	return dots == 2
}
