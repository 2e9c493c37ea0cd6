package devices

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"time"

	"github.com/hadv/ethaura-passkeys/internal/apierror"
	"github.com/hadv/ethaura-passkeys/internal/log"
	"github.com/hadv/ethaura-passkeys/internal/mds"
	"github.com/hadv/ethaura-passkeys/internal/store"
)

// Registry implements the device-registry operations from the component
// design, consulting the MDS cache to enrich device metadata.
type Registry struct {
	storage store.Storage
	mdsLookup MDSLookup
	logger  log.Logger
}

// MDSLookup is satisfied by *mds.Cache; declared here so this package
// doesn't need to know about the cache's refresh/shutdown machinery.
type MDSLookup interface {
	LookupWithFallback(aaguid string) mds.Metadata
}

// New constructs a Registry.
func New(storage store.Storage, mdsLookup MDSLookup, logger log.Logger) *Registry {
	return &Registry{storage: storage, mdsLookup: mdsLookup, logger: logger}
}

// NewDeviceInput is everything the caller supplies when proposing a new
// device.
type NewDeviceInput struct {
	DeviceID          string
	DeviceName        string
	DeviceType        string
	CredentialID      string
	RawID             string
	PublicKey         store.PublicKey
	AttestationObject *string
	ClientDataJSON    *string
	AAGUID            string
	Format            string
	IsHardwareBacked  *bool // nil normalizes to true, per spec
	AuthenticatorName string
	ProposalHash      *string
}

// AddDeviceResult is returned by AddDevice.
type AddDeviceResult struct {
	AccountAddress string
	DeviceID       string
	ProposalHash   *string
	Attestation    store.AttestationMetadata
}

// AddDevice inserts a new device for account. If an active device
// already exists, the new row is always inserted as pending regardless
// of caller intent; existing pending rows for the same account are left
// untouched. Re-registering the same (account, deviceId) is a Conflict.
func (r *Registry) AddDevice(ctx context.Context, account string, in NewDeviceInput) (AddDeviceResult, error) {
	account = strings.ToLower(account)

	if err := validateCredentialEncoding(in); err != nil {
		return AddDeviceResult{}, err
	}

	hardwareBacked := true
	if in.IsHardwareBacked != nil {
		hardwareBacked = *in.IsHardwareBacked
	}

	_, err := r.storage.GetActiveDevice(ctx, account)
	hasActive := err == nil
	if err != nil && !apierror.Is(err, apierror.CodeNotFound) {
		return AddDeviceResult{}, err
	}

	proposalHash := in.ProposalHash
	isActive := !hasActive
	if hasActive {
		// Inserted as pending regardless of caller intent; a missing
		// proposalHash just means the on-chain proposal hasn't been
		// created yet (attached later via UpdateDeviceProposalHash).
		isActive = false
	}

	now := time.Now().UTC()
	attestation := store.AttestationMetadata{
		AAGUID:            in.AAGUID,
		Format:            in.Format,
		IsHardwareBacked:  hardwareBacked,
		AuthenticatorName: in.AuthenticatorName,
	}

	d := store.Device{
		AccountAddress:    account,
		DeviceID:          in.DeviceID,
		DeviceName:        in.DeviceName,
		DeviceType:        in.DeviceType,
		CredentialID:      in.CredentialID,
		RawID:             in.RawID,
		PublicKey:         in.PublicKey,
		AttestationObject: in.AttestationObject,
		ClientDataJSON:    in.ClientDataJSON,
		IsActive:          isActive,
		ProposalHash:      proposalHash,
		Attestation:       attestation,
		MDS:               r.resolveMDS(in.AAGUID),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := r.storage.CreateDevice(ctx, d); err != nil {
		return AddDeviceResult{}, err
	}

	return AddDeviceResult{
		AccountAddress: account,
		DeviceID:       in.DeviceID,
		ProposalHash:   proposalHash,
		Attestation:    attestation,
	}, nil
}

// UpdateDeviceProposalHash attaches on-chain proposal identifiers to a
// previously created pending device.
func (r *Registry) UpdateDeviceProposalHash(ctx context.Context, account, deviceID, proposalHash string, proposalTxHash *string) error {
	return r.storage.UpdateDeviceProposalHash(ctx, strings.ToLower(account), deviceID, proposalHash, proposalTxHash)
}

// ActivateDevice runs the atomic deactivate-then-activate transaction.
func (r *Registry) ActivateDevice(ctx context.Context, account, newPublicKeyX string) error {
	return r.storage.ActivateDevice(ctx, strings.ToLower(account), newPublicKeyX)
}

// GetDevices returns all devices for account, ordered (isActive desc,
// createdAt desc), each enriched with MDS metadata if it was ever
// resolved (cached at write time; a cache miss at write time does not
// get retried here -- getMetadataJoin below serves ad hoc lookups).
func (r *Registry) GetDevices(ctx context.Context, account string) ([]store.Device, error) {
	return r.storage.GetDevices(ctx, strings.ToLower(account))
}

// GetDeviceByCredentialID returns a single device by its WebAuthn
// credential identifier.
func (r *Registry) GetDeviceByCredentialID(ctx context.Context, account, credentialID string) (store.Device, error) {
	return r.storage.GetDeviceByCredentialID(ctx, strings.ToLower(account), credentialID)
}

// UpdateDeviceLastUsed stamps lastUsedAt for a device.
func (r *Registry) UpdateDeviceLastUsed(ctx context.Context, account, deviceID string) error {
	return r.storage.UpdateDeviceLastUsed(ctx, strings.ToLower(account), deviceID, time.Now().UTC())
}

// RemoveDevice hard-deletes a device, returning whether a row was removed.
func (r *Registry) RemoveDevice(ctx context.Context, account, deviceID string) (bool, error) {
	return r.storage.RemoveDevice(ctx, strings.ToLower(account), deviceID)
}

// GetMetadataJoin resolves display metadata for an AAGUID by consulting
// the MDS cache, then the static fallback table, then a default.
func (r *Registry) GetMetadataJoin(aaguid string) mds.Metadata {
	return r.mdsLookup.LookupWithFallback(aaguid)
}

// validateCredentialEncoding checks the wire-format shape of the fields
// WebAuthn/the credential authority pass through opaquely: credentialId
// and rawId are base64url (as emitted by navigator.credentials.create),
// publicKey.x/y are hex-encoded P-256 coordinates.
func validateCredentialEncoding(in NewDeviceInput) error {
	if _, err := base64.RawURLEncoding.DecodeString(in.CredentialID); err != nil {
		return apierror.Wrap(apierror.CodeValidation, "credentialId is not valid base64url", err)
	}
	if _, err := base64.RawURLEncoding.DecodeString(in.RawID); err != nil {
		return apierror.Wrap(apierror.CodeValidation, "rawId is not valid base64url", err)
	}
	if _, err := hex.DecodeString(strings.TrimPrefix(in.PublicKey.X, "0x")); err != nil {
		return apierror.Wrap(apierror.CodeValidation, "publicKey.x is not valid hex", err)
	}
	if _, err := hex.DecodeString(strings.TrimPrefix(in.PublicKey.Y, "0x")); err != nil {
		return apierror.Wrap(apierror.CodeValidation, "publicKey.y is not valid hex", err)
	}
	return nil
}

func (r *Registry) resolveMDS(aaguid string) store.MDSMetadata {
	if aaguid == "" || r.mdsLookup == nil {
		return store.MDSMetadata{}
	}
	m := r.mdsLookup.LookupWithFallback(aaguid)
	if !m.Resolved {
		return store.MDSMetadata{}
	}
	now := time.Now().UTC()
	return store.MDSMetadata{
		Description:        m.Description,
		IsFido2Certified:   m.IsFido2Certified,
		CertificationLevel: m.CertificationLevel,
		MDSLastUpdated:     &now,
	}
}
