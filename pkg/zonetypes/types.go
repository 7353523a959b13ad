// Package zonetypes holds the core data model shared across the zone's
// trust, session and backup subsystems: principals, trust keys, signed
// credentials, session tokens, policy rules and backup task/file/chunk
// records.
package zonetypes

import "time"

// Principal is a zone identity in "did:<method>:<specific-id>" form, e.g.
// "did:zone:abc123" for a device or "did:user:alice" for a human owner.
type Principal string

// TrustKeyKind distinguishes the role a public key plays in the trust
// graph.
type TrustKeyKind string

const (
	TrustKeyOwner  TrustKeyKind = "owner"
	TrustKeyDevice TrustKeyKind = "device"
	TrustKeyHub    TrustKeyKind = "verify-hub"
)

// TrustKey is a JWK-shaped public key bound to a principal, used to verify
// credentials and JWTs issued with kid == Principal.
type TrustKey struct {
	Kid       string       `json:"kid"`
	Kind      TrustKeyKind `json:"kind"`
	Owner     Principal    `json:"owner"`
	PublicJWK []byte       `json:"public_jwk"`
	CreatedAt time.Time    `json:"created_at"`
	RevokedAt *time.Time   `json:"revoked_at,omitempty"`
}

// Credential is a signed JSON claim set in JWT-compact form, e.g. a device
// identity document or a zone-config owner attestation.
type Credential struct {
	Issuer    string                 `json:"iss"`
	Subject   string                 `json:"sub"`
	IssuedAt  time.Time              `json:"iat"`
	ExpiresAt time.Time              `json:"exp"`
	Claims    map[string]interface{} `json:"claims"`
	Compact   string                 `json:"-"`
}

// SessionToken is the Verify Hub's minted RPC session credential.
type SessionToken struct {
	TokenType string    `json:"token_type"`
	Token     string    `json:"token"`
	AppID     string    `json:"appid"`
	UserID    string    `json:"userid"`
	SessionID string    `json:"session"`
	Nonce     uint64    `json:"nonce"`
	Issuer    string    `json:"iss"`
	ExpiresAt time.Time `json:"exp"`
}

// PolicyEffect is the outcome a policy rule grants on a match.
type PolicyEffect string

const (
	Allow PolicyEffect = "allow"
	Deny  PolicyEffect = "deny"
)

// PolicyRule is one line of the access-control table: a subject pattern,
// an app pattern, a resource pattern and an action pattern, all matched
// against a request's (subject, app, resource, action) tuple.
type PolicyRule struct {
	Subject  string       `json:"sub"`
	App      string       `json:"app"`
	Resource string       `json:"obj"`
	Action   string       `json:"act"`
	Effect   PolicyEffect `json:"eft"`
}

// RoleGrant is a "g" grouping line: Member inherits every rule granted to
// Role.
type RoleGrant struct {
	Member string `json:"member"`
	Role   string `json:"role"`
}

// TaskState is the lifecycle of a backup task's driver loop.
type TaskState string

const (
	TaskNew              TaskState = "New"
	TaskWorking          TaskState = "Working"
	TaskErrorAndWillRetry TaskState = "ErrorAndWillRetry"
	TaskIdle             TaskState = "Idle"
	TaskFail             TaskState = "Fail"
	TaskSucceeded        TaskState = "Succeeded"
)

// TaskInfo is the durable record for one backup run of a directory tree at
// a given checkpoint.
type TaskInfo struct {
	TaskID                string    `json:"task_id"`
	TaskKey               string    `json:"task_key"`
	CheckPointVersion     uint64    `json:"checkpoint_version"`
	PrevCheckPointVersion *uint64   `json:"prev_checkpoint_version,omitempty"`
	DirPath               string    `json:"dir_path"`
	State                 TaskState `json:"state"`
	TotalFiles            int       `json:"total_files"`
	CompletedFiles        int       `json:"completed_files"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
	LastError             string    `json:"last_error,omitempty"`
}

// FileInfo is one file enumerated under a task's directory tree.
type FileInfo struct {
	TaskID      string `json:"task_id"`
	FileSeq     int    `json:"file_seq"`
	RelPath     string `json:"rel_path"`
	Size        int64  `json:"size"`
	Hash        string `json:"hash"` // base58(sha256)
	ChunkCount  int    `json:"chunk_count"`
	PushedInfo  bool   `json:"pushed_info"`
	AllUploaded bool   `json:"all_uploaded"`
}

// ChunkInfo is one fixed-size slice of a file, addressed by its content
// hash so identical chunks across files are only stored once.
type ChunkInfo struct {
	TaskID   string `json:"task_id"`
	FileSeq  int    `json:"file_seq"`
	SeqNo    int    `json:"seq_no"`
	Offset   int64  `json:"offset"`
	Length   int64  `json:"length"`
	Hash     string `json:"hash"`
	Uploaded bool   `json:"uploaded"`
}

// ObjectMapEntry is one leaf of a content-addressed object map: a name
// bound to an object id (content hash) with an optional declared size.
type ObjectMapEntry struct {
	Key    string `json:"key"`
	ObjID  string `json:"obj_id"`
	Size   *int64 `json:"size,omitempty"`
}
