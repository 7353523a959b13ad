// Package session implements the verify hub: it mints, refreshes and
// verifies the RPC session tokens that every zone service call carries.
// It supports two login paths — password login (salted-hash against a
// stored credential) and JWT login (first-login from an external issuer,
// or refresh of a session this hub itself issued) — both grounded on the
// original verify hub's handle_login_by_password/handle_login_by_jwt.
package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wugren/buckyos/pkg/credential"
	"github.com/wugren/buckyos/pkg/kv"
	"github.com/wugren/buckyos/pkg/zonetypes"
)

// HubIssuer is the "iss" claim this hub stamps on every session token it
// mints, and the value it checks for on incoming JWTs to distinguish a
// refresh (issued by us) from a first login (issued by anyone else).
const HubIssuer = "verify-hub"

// DefaultTokenTTL is the lifetime of a minted session token.
const DefaultTokenTTL = 24 * time.Hour

// NonceSkewWindow bounds how far a password-login nonce may drift from
// the hub's clock, in either direction.
const NonceSkewWindow = 8 * time.Hour

// UserSettings is the record stored at "users/<username>/settings".
type UserSettings struct {
	StorePassword string `json:"store_password"` // stored password hash, hashed as-is with the login nonce
	UserType      string `json:"user_type"`
}

// Hub mints and verifies session tokens.
type Hub struct {
	store    kv.Store
	signer   *credential.Signer
	verifier *credential.Verifier
	ttl      time.Duration

	mu       sync.Mutex
	sessions map[string]*zonetypes.SessionToken // session key -> current token
	usedNonces map[string]bool                  // first-login replay guard: "userid_appid_nonce"
}

// NewHub creates a Hub that signs with signer (kid == HubIssuer) and
// verifies incoming JWTs (including refresh tokens it issued itself)
// with verifier.
func NewHub(store kv.Store, signer *credential.Signer, verifier *credential.Verifier) *Hub {
	return &Hub{
		store:      store,
		signer:     signer,
		verifier:   verifier,
		ttl:        DefaultTokenTTL,
		sessions:   make(map[string]*zonetypes.SessionToken),
		usedNonces: make(map[string]bool),
	}
}

func sessionKey(userID, appID, sessionID string) string {
	return fmt.Sprintf("%s_%s_%s", userID, appID, sessionID)
}

// randomNonce draws a fresh session nonce, independent of any nonce a
// client supplied — a first-login JWT's own nonce is public (it rides in
// the clear on the wire) and must never become the session's nonce.
func randomNonce() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("session: generate nonce: %w", err)
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// generateSessionToken mints and caches a session token.
func (h *Hub) generateSessionToken(appID, userID string, nonce uint64, sessionID string) (*zonetypes.SessionToken, error) {
	now := time.Now()
	compact, err := h.signer.Sign(userID, map[string]interface{}{
		"appid":   appID,
		"userid":  userID,
		"nonce":   nonce,
		"session": sessionID,
	}, h.ttl)
	if err != nil {
		return nil, fmt.Errorf("session: generate token: %w", err)
	}

	token := &zonetypes.SessionToken{
		TokenType: "JWT",
		Token:     compact,
		AppID:     appID,
		UserID:    userID,
		SessionID: sessionID,
		Nonce:     nonce,
		Issuer:    HubIssuer,
		ExpiresAt: now.Add(h.ttl),
	}

	h.mu.Lock()
	h.sessions[sessionKey(userID, appID, sessionID)] = token
	h.mu.Unlock()

	return token, nil
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	UserName     string
	UserID       string
	UserType     string
	SessionToken *zonetypes.SessionToken
	Refreshed    bool
}

// LoginByPassword authenticates username/password and mints a session
// token. loginNonceMs is the client-supplied nonce (unix milliseconds);
// passwordB64 is base64(sha256(storedPasswordHash + loginNonceMs)).
func (h *Hub) LoginByPassword(username, appID string, passwordB64 string, loginNonceMs int64) (*LoginResult, error) {
	now := time.Now()
	skew := now.Sub(time.UnixMilli(loginNonceMs))
	if skew < 0 {
		skew = -skew
	}
	if skew > NonceSkewWindow {
		return nil, fmt.Errorf("session: invalid nonce (skew %s exceeds window)", skew)
	}

	raw, err := h.store.Get(fmt.Sprintf("users/%s/settings", username))
	if err != nil {
		return nil, fmt.Errorf("session: user not found: %w", err)
	}

	var settings UserSettings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return nil, fmt.Errorf("session: corrupt user settings: %w", err)
	}

	salt := settings.StorePassword + fmt.Sprintf("%d", loginNonceMs)
	sum := sha256.Sum256([]byte(salt))

	given, err := base64.StdEncoding.DecodeString(passwordB64)
	if err != nil || string(given) != string(sum[:]) {
		return nil, fmt.Errorf("session: invalid password")
	}

	sessionID := newSessionID()
	token, err := h.generateSessionToken(appID, username, uint64(loginNonceMs), sessionID)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		UserName:     username,
		UserID:       username,
		UserType:     settings.UserType,
		SessionToken: token,
	}, nil
}

// LoginByJWT authenticates via a pre-signed JWT: either a first login
// (issued by a device trust key or the zone owner key) or a refresh of a
// session this hub previously issued (issuer == HubIssuer).
func (h *Hub) LoginByJWT(jwtCompact string) (*LoginResult, error) {
	kid, claims, err := h.verifier.Verify(jwtCompact)
	if err != nil {
		return nil, fmt.Errorf("session: verify jwt: %w", err)
	}

	userID, _ := claims["userid"].(string)
	appID, _ := claims["appid"].(string)
	if userID == "" || appID == "" {
		userID, _ = claims["sub"].(string)
	}

	nonceFloat, _ := claims["nonce"].(float64)
	nonce := uint64(nonceFloat)

	issuer, _ := claims["iss"].(string)
	if issuer == "" {
		issuer = kid
	}

	if issuer == HubIssuer {
		return h.refreshSession(userID, appID, nonce, claims)
	}
	return h.firstLogin(userID, appID, nonce, claims)
}

func (h *Hub) refreshSession(userID, appID string, tokenNonce uint64, claims jwt.MapClaims) (*LoginResult, error) {
	sessionID, _ := claims["session"].(string)
	key := sessionKey(userID, appID, sessionID)

	h.mu.Lock()
	old, ok := h.sessions[key]
	h.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("session: unknown session %q", key)
	}
	if old.Nonce != tokenNonce {
		return nil, fmt.Errorf("session: invalid nonce (session_nonce)")
	}

	nextNonce := old.Nonce + 1
	token, err := h.generateSessionToken(appID, userID, nextNonce, sessionID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{UserName: userID, UserID: userID, SessionToken: token, Refreshed: true}, nil
}

func (h *Hub) firstLogin(userID, appID string, tokenNonce uint64, claims jwt.MapClaims) (*LoginResult, error) {
	expFloat, _ := claims["exp"].(float64)
	exp := time.Unix(int64(expFloat), 0)
	if time.Now().After(exp) {
		return nil, fmt.Errorf("session: token expired")
	}

	replayKey := fmt.Sprintf("%s_%s_%d", userID, appID, tokenNonce)

	h.mu.Lock()
	if h.usedNonces[replayKey] {
		h.mu.Unlock()
		return nil, fmt.Errorf("session: login jwt already used")
	}
	h.usedNonces[replayKey] = true
	h.mu.Unlock()

	sessionNonce, err := randomNonce()
	if err != nil {
		return nil, err
	}

	sessionID := newSessionID()
	token, err := h.generateSessionToken(appID, userID, sessionNonce, sessionID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{UserName: userID, UserID: userID, SessionToken: token}, nil
}

// VerifySessionToken verifies a session token previously minted by this
// hub (or another hub sharing its trust key) and returns its claims.
func (h *Hub) VerifySessionToken(token string) (jwt.MapClaims, error) {
	if !credential.IsJWT(token) {
		return nil, fmt.Errorf("session: not a jwt token")
	}

	_, claims, err := h.verifier.Verify(token)
	if err != nil {
		return nil, err
	}

	expFloat, _ := claims["exp"].(float64)
	if time.Now().After(time.Unix(int64(expFloat), 0)) {
		return nil, fmt.Errorf("session: token expired")
	}
	return claims, nil
}

// CleanupExpiredSessions drops cached sessions past expiry, mirroring the
// join-token manager's CleanupExpiredTokens sweep.
func (h *Hub) CleanupExpiredSessions() {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	for key, tok := range h.sessions {
		if now.After(tok.ExpiresAt) {
			delete(h.sessions, key)
		}
	}
}

// ActiveSessionCount returns the number of cached live sessions.
func (h *Hub) ActiveSessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}
