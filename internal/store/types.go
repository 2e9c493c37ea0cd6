// Package store is the storage engine: a single-process embedded SQLite
// database with ACID transactions (all statements share one connection,
// so reads and writes run one at a time), periodic self-backup, and a
// query-metrics hook. It owns the three
// durable entity families (devices, sessions, the MDS cache) described in
// the data model.
package store

import "time"

// AttestationMetadata is populated at device creation from the client's
// WebAuthn attestation and never mutated afterwards.
type AttestationMetadata struct {
	AAGUID           string `json:"aaguid,omitempty"`
	Format           string `json:"format,omitempty"`
	IsHardwareBacked bool   `json:"isHardwareBacked"`
	AuthenticatorName string `json:"authenticatorName,omitempty"`
}

// MDSMetadata is attached to a device opportunistically whenever its
// AAGUID resolves against the MDS cache or the static fallback table.
type MDSMetadata struct {
	Description        string     `json:"description,omitempty"`
	IsFido2Certified    bool       `json:"isFido2Certified"`
	CertificationLevel  string     `json:"certificationLevel,omitempty"`
	MDSLastUpdated      *time.Time `json:"mdsLastUpdated,omitempty"`
}

// PublicKey is a P-256 point, two 32-byte hex words.
type PublicKey struct {
	X string `json:"x"`
	Y string `json:"y"`
}

// Device is an enrolled passkey bound to a smart account. Uniqueness is
// (AccountAddress, DeviceID). CredentialID, RawID and PublicKey are
// immutable after creation.
type Device struct {
	AccountAddress string `json:"accountAddress"`
	DeviceID       string `json:"deviceId"`
	DeviceName     string `json:"deviceName"`
	DeviceType     string `json:"deviceType"`

	CredentialID string    `json:"credentialId"`
	RawID        string    `json:"rawId"`
	PublicKey    PublicKey `json:"publicKey"`

	AttestationObject *string `json:"attestationObject,omitempty"`
	ClientDataJSON    *string `json:"clientDataJson,omitempty"`

	IsActive bool `json:"isActive"`

	ProposalHash   *string `json:"proposalHash,omitempty"`
	ProposalTxHash *string `json:"proposalTxHash,omitempty"`

	Attestation AttestationMetadata `json:"attestation"`
	MDS         MDSMetadata         `json:"mds"`

	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

// SessionStatus is the persisted or read-time-derived state of a Session.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionCompleted SessionStatus = "completed"
	SessionExpired   SessionStatus = "expired"
)

// Session is a time-bounded cross-device pairing handshake. Its status
// transitions monotonically: pending -> completed, pending -> expired.
// "expired" may be a pure read-time derivation: the persisted Status can
// still read "pending" past ExpiresAt.
type Session struct {
	SessionID      string `json:"sessionId"`
	AccountAddress string `json:"accountAddress"`
	OwnerAddress   string `json:"ownerAddress"`
	Signature      string `json:"signature"`

	Status SessionStatus `json:"status"`

	DeviceData *string `json:"deviceData,omitempty"` // opaque JSON blob, populated on completion

	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	ExpiresAt   time.Time  `json:"expiresAt"`
}

// SessionTTL is the lifetime of a session from creation.
const SessionTTL = 10 * time.Minute

// CompletedSessionRetention is how long a completed session survives GC.
const CompletedSessionRetention = 24 * time.Hour

// MDSBlob is the most recently verified FIDO Metadata Service payload.
type MDSBlob struct {
	Payload     []byte // raw JSON payload of entries
	LastUpdated time.Time
	NextUpdate  time.Time
	BlobNumber  int
}
