package devices

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/hadv/ethaura-passkeys/internal/apierror"
	"github.com/hadv/ethaura-passkeys/internal/log"
	"github.com/hadv/ethaura-passkeys/internal/mds"
	"github.com/hadv/ethaura-passkeys/internal/store"
)

// memStorage is an in-memory fake of store.Storage covering only the
// device methods the registry exercises, mirroring the teacher's
// mockStorage pattern used in storage/health_test.go.
type memStorage struct {
	devices map[string]store.Device // keyed by account|deviceId
}

func newMemStorage() *memStorage {
	return &memStorage{devices: map[string]store.Device{}}
}

func key(account, deviceID string) string { return account + "|" + deviceID }

func (m *memStorage) Close() error { return nil }

func (m *memStorage) CreateDevice(ctx context.Context, d store.Device) error {
	k := key(d.AccountAddress, d.DeviceID)
	if _, ok := m.devices[k]; ok {
		return apierror.New(apierror.CodeConflict, "device already registered for this account")
	}
	m.devices[k] = d
	return nil
}

func (m *memStorage) UpdateDeviceProposalHash(ctx context.Context, account, deviceID, proposalHash string, proposalTxHash *string) error {
	k := key(account, deviceID)
	d, ok := m.devices[k]
	if !ok {
		return apierror.New(apierror.CodeNotFound, "device not found")
	}
	d.ProposalHash = &proposalHash
	d.ProposalTxHash = proposalTxHash
	m.devices[k] = d
	return nil
}

func (m *memStorage) ActivateDevice(ctx context.Context, account, newPublicKeyX string) error {
	var target string
	found := false
	for k, d := range m.devices {
		if d.AccountAddress != account {
			continue
		}
		if d.IsActive {
			d.IsActive = false
			m.devices[k] = d
		}
		if d.PublicKey.X == newPublicKeyX {
			target = k
			found = true
		}
	}
	if !found {
		return apierror.New(apierror.CodeNotFound, "no device with that public key to activate")
	}
	d := m.devices[target]
	d.IsActive = true
	m.devices[target] = d
	return nil
}

func (m *memStorage) GetDevices(ctx context.Context, account string) ([]store.Device, error) {
	var out []store.Device
	for _, d := range m.devices {
		if d.AccountAddress == account {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memStorage) GetDeviceByCredentialID(ctx context.Context, account, credentialID string) (store.Device, error) {
	for _, d := range m.devices {
		if d.AccountAddress == account && d.CredentialID == credentialID {
			return d, nil
		}
	}
	return store.Device{}, apierror.New(apierror.CodeNotFound, "device not found")
}

func (m *memStorage) GetActiveDevice(ctx context.Context, account string) (store.Device, error) {
	for _, d := range m.devices {
		if d.AccountAddress == account && d.IsActive {
			return d, nil
		}
	}
	return store.Device{}, apierror.New(apierror.CodeNotFound, "active device not found")
}

func (m *memStorage) UpdateDeviceLastUsed(ctx context.Context, account, deviceID string, at time.Time) error {
	k := key(account, deviceID)
	d, ok := m.devices[k]
	if !ok {
		return apierror.New(apierror.CodeNotFound, "device not found")
	}
	d.LastUsedAt = &at
	m.devices[k] = d
	return nil
}

func (m *memStorage) UpdateDeviceMDSMetadata(ctx context.Context, account, deviceID string, md store.MDSMetadata) error {
	k := key(account, deviceID)
	d, ok := m.devices[k]
	if !ok {
		return apierror.New(apierror.CodeNotFound, "device not found")
	}
	d.MDS = md
	m.devices[k] = d
	return nil
}

func (m *memStorage) RemoveDevice(ctx context.Context, account, deviceID string) (bool, error) {
	k := key(account, deviceID)
	if _, ok := m.devices[k]; !ok {
		return false, nil
	}
	delete(m.devices, k)
	return true, nil
}

func (m *memStorage) CountDevices(ctx context.Context) (int64, error) { return int64(len(m.devices)), nil }

func (m *memStorage) OldestNewestDevice(ctx context.Context) (*time.Time, *time.Time, error) {
	return nil, nil, nil
}

func (m *memStorage) CreateSession(ctx context.Context, s store.Session) error { return nil }
func (m *memStorage) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	return store.Session{}, apierror.New(apierror.CodeNotFound, "not found")
}
func (m *memStorage) CompleteSession(ctx context.Context, sessionID string, deviceData []byte, now time.Time) (bool, error) {
	return false, nil
}
func (m *memStorage) CleanupExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
func (m *memStorage) PutMDSBlob(ctx context.Context, blob store.MDSBlob) error { return nil }
func (m *memStorage) GetCurrentMDSBlob(ctx context.Context) (store.MDSBlob, bool, error) {
	return store.MDSBlob{}, false, nil
}
func (m *memStorage) Backup(ctx context.Context, destPath string) error { return nil }
func (m *memStorage) Healthy(ctx context.Context) error                { return nil }

var _ store.Storage = (*memStorage)(nil)

type noopMDSLookup struct{}

func (noopMDSLookup) LookupWithFallback(aaguid string) mds.Metadata { return mds.Metadata{} }

func newTestRegistry() (*Registry, *memStorage) {
	s := newMemStorage()
	return New(s, noopMDSLookup{}, log.NewLogrusLogger(logrus.New())), s
}

func TestAddDeviceFirstIsActive(t *testing.T) {
	r, _ := newTestRegistry()
	result, err := r.AddDevice(context.Background(), "0xABC", NewDeviceInput{
		DeviceID:     "dev-1",
		CredentialID: "YWJj",
		RawID:        "Z2hp",
		PublicKey:    store.PublicKey{X: "0001", Y: "0011"},
	})
	require.NoError(t, err)
	require.Equal(t, "0xabc", result.AccountAddress)

	devs, err := r.GetDevices(context.Background(), "0xabc")
	require.NoError(t, err)
	require.Len(t, devs, 1)
	require.True(t, devs[0].IsActive)
	require.True(t, devs[0].Attestation.IsHardwareBacked) // normalized default
}

func TestAddDeviceSecondIsPending(t *testing.T) {
	r, _ := newTestRegistry()
	account := "0xabc"
	_, err := r.AddDevice(context.Background(), account, NewDeviceInput{
		DeviceID: "dev-1", CredentialID: "YWJj", RawID: "Z2hp",
		PublicKey: store.PublicKey{X: "0001", Y: "0011"},
	})
	require.NoError(t, err)

	_, err = r.AddDevice(context.Background(), account, NewDeviceInput{
		DeviceID: "dev-2", CredentialID: "ZGVm", RawID: "amts",
		PublicKey: store.PublicKey{X: "0002", Y: "0022"},
	})
	require.NoError(t, err)

	devs, err := r.GetDevices(context.Background(), account)
	require.NoError(t, err)
	require.Len(t, devs, 2)

	activeCount := 0
	for _, d := range devs {
		if d.IsActive {
			activeCount++
		}
	}
	require.Equal(t, 1, activeCount)
}

func TestAddDeviceDuplicateIsConflict(t *testing.T) {
	r, _ := newTestRegistry()
	in := NewDeviceInput{DeviceID: "dev-1", CredentialID: "YWJj", RawID: "Z2hp", PublicKey: store.PublicKey{X: "0001"}}
	_, err := r.AddDevice(context.Background(), "0xabc", in)
	require.NoError(t, err)

	_, err = r.AddDevice(context.Background(), "0xabc", in)
	require.Error(t, err)
	require.True(t, apierror.Is(err, apierror.CodeConflict))
}

func TestActivateDeviceSwapsActiveFlag(t *testing.T) {
	r, _ := newTestRegistry()
	account := "0xabc"
	_, err := r.AddDevice(context.Background(), account, NewDeviceInput{
		DeviceID: "dev-1", CredentialID: "YWJj", RawID: "Z2hp", PublicKey: store.PublicKey{X: "0001"},
	})
	require.NoError(t, err)
	_, err = r.AddDevice(context.Background(), account, NewDeviceInput{
		DeviceID: "dev-2", CredentialID: "ZGVm", RawID: "amts", PublicKey: store.PublicKey{X: "0002"},
	})
	require.NoError(t, err)

	require.NoError(t, r.ActivateDevice(context.Background(), account, "0002"))

	devs, err := r.GetDevices(context.Background(), account)
	require.NoError(t, err)
	for _, d := range devs {
		require.Equal(t, d.DeviceID == "dev-2", d.IsActive)
	}
}

func TestActivateDeviceNotFound(t *testing.T) {
	r, _ := newTestRegistry()
	err := r.ActivateDevice(context.Background(), "0xabc", "nonexistent")
	require.Error(t, err)
	require.True(t, apierror.Is(err, apierror.CodeNotFound))
}

func TestAddDeviceRejectsMalformedCredentialID(t *testing.T) {
	r, _ := newTestRegistry()
	_, err := r.AddDevice(context.Background(), "0xabc", NewDeviceInput{
		DeviceID: "dev-1", CredentialID: "not base64!!", RawID: "Z2hp",
		PublicKey: store.PublicKey{X: "0001"},
	})
	require.Error(t, err)
	require.True(t, apierror.Is(err, apierror.CodeValidation))
}

func TestAddDeviceRejectsMalformedPublicKeyHex(t *testing.T) {
	r, _ := newTestRegistry()
	_, err := r.AddDevice(context.Background(), "0xabc", NewDeviceInput{
		DeviceID: "dev-1", CredentialID: "YWJj", RawID: "Z2hp",
		PublicKey: store.PublicKey{X: "not-hex"},
	})
	require.Error(t, err)
	require.True(t, apierror.Is(err, apierror.CodeValidation))
}

func TestGetDevicesCaseInsensitiveAccount(t *testing.T) {
	r, _ := newTestRegistry()
	_, err := r.AddDevice(context.Background(), "0xABCD", NewDeviceInput{
		DeviceID: "dev-1", CredentialID: "YWJj", RawID: "Z2hp", PublicKey: store.PublicKey{X: "0001"},
	})
	require.NoError(t, err)

	devs, err := r.GetDevices(context.Background(), "0xabcd")
	require.NoError(t, err)
	require.Len(t, devs, 1)
}
