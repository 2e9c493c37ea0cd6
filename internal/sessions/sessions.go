// Package sessions implements the cross-device pairing handshake: a
// short-lived session created by an already-enrolled device, scanned or
// relayed to a second device, and completed once that device attaches
// its own passkey material.
package sessions

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hadv/ethaura-passkeys/internal/apierror"
	"github.com/hadv/ethaura-passkeys/internal/log"
	"github.com/hadv/ethaura-passkeys/internal/store"
)

// Store wraps the storage engine's session methods with ID generation
// and the completion-payload encoding the API layer expects.
type Store struct {
	storage store.Storage
	logger  log.Logger
}

// New constructs a Store.
func New(storage store.Storage, logger log.Logger) *Store {
	return &Store{storage: storage, logger: logger}
}

// NewSessionInput is supplied by the already-paired device starting a
// handshake.
type NewSessionInput struct {
	AccountAddress string
	OwnerAddress   string
	Signature      string
}

// Create starts a new pairing session with a freshly generated ID and
// the standard TTL.
func (s *Store) Create(ctx context.Context, in NewSessionInput) (store.Session, error) {
	now := time.Now().UTC()
	sess := store.Session{
		SessionID:      uuid.NewString(),
		AccountAddress: strings.ToLower(in.AccountAddress),
		OwnerAddress:   strings.ToLower(in.OwnerAddress),
		Signature:      in.Signature,
		Status:         store.SessionPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(store.SessionTTL),
	}
	if err := s.storage.CreateSession(ctx, sess); err != nil {
		return store.Session{}, err
	}
	return sess, nil
}

// Get returns the session's current state, with "expired" derived at
// read time when its TTL has lapsed.
func (s *Store) Get(ctx context.Context, sessionID string) (store.Session, error) {
	return s.storage.GetSession(ctx, sessionID)
}

// Complete attaches the second device's data to a still-pending
// session. It fails with Conflict if the session was already completed
// or has expired.
func (s *Store) Complete(ctx context.Context, sessionID string, deviceData any) (store.Session, error) {
	sess, err := s.storage.GetSession(ctx, sessionID)
	if err != nil {
		return store.Session{}, err
	}
	if sess.Status != store.SessionPending {
		return store.Session{}, apierror.New(apierror.CodeConflict, "session is not pending")
	}

	payload, err := json.Marshal(deviceData)
	if err != nil {
		return store.Session{}, apierror.Wrap(apierror.CodeValidation, "encode device data", err)
	}

	now := time.Now().UTC()
	ok, err := s.storage.CompleteSession(ctx, sessionID, payload, now)
	if err != nil {
		return store.Session{}, err
	}
	if !ok {
		return store.Session{}, apierror.New(apierror.CodeConflict, "session is not pending")
	}

	return s.storage.GetSession(ctx, sessionID)
}

// CleanupExpired deletes sessions past their TTL or retention window,
// returning the count removed. Called on the scheduler's GC timer.
func (s *Store) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.storage.CleanupExpiredSessions(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Infof("session gc: removed %d expired/retained sessions", n)
	}
	return n, nil
}

