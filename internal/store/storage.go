package store

import (
	"context"
	"time"
)

// Storage is the engine's minimal API: exec/query are hidden behind
// typed methods, transaction is exposed only through execTx-backed
// operations like ActivateDevice, and no cursor object ever escapes a
// transaction boundary -- every list method returns an owned slice.
type Storage interface {
	Close() error

	// Devices.
	CreateDevice(ctx context.Context, d Device) error
	UpdateDeviceProposalHash(ctx context.Context, account, deviceID string, proposalHash string, proposalTxHash *string) error
	ActivateDevice(ctx context.Context, account, newPublicKeyX string) error
	GetDevices(ctx context.Context, account string) ([]Device, error)
	GetDeviceByCredentialID(ctx context.Context, account, credentialID string) (Device, error)
	GetActiveDevice(ctx context.Context, account string) (Device, error)
	UpdateDeviceLastUsed(ctx context.Context, account, deviceID string, at time.Time) error
	UpdateDeviceMDSMetadata(ctx context.Context, account, deviceID string, md MDSMetadata) error
	RemoveDevice(ctx context.Context, account, deviceID string) (bool, error)
	CountDevices(ctx context.Context) (int64, error)
	OldestNewestDevice(ctx context.Context) (oldest, newest *time.Time, err error)

	// Sessions.
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, sessionID string) (Session, error)
	CompleteSession(ctx context.Context, sessionID string, deviceData []byte, now time.Time) (bool, error)
	CleanupExpiredSessions(ctx context.Context, now time.Time) (int64, error)

	// MDS cache.
	PutMDSBlob(ctx context.Context, blob MDSBlob) error
	GetCurrentMDSBlob(ctx context.Context) (MDSBlob, bool, error)

	// Maintenance.
	Backup(ctx context.Context, destPath string) error
	Healthy(ctx context.Context) error
}

var _ Storage = (*conn)(nil)
