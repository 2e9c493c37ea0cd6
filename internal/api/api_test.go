package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/hadv/ethaura-passkeys/internal/admin"
	"github.com/hadv/ethaura-passkeys/internal/apierror"
	"github.com/hadv/ethaura-passkeys/internal/devices"
	"github.com/hadv/ethaura-passkeys/internal/gateway"
	"github.com/hadv/ethaura-passkeys/internal/log"
	"github.com/hadv/ethaura-passkeys/internal/mds"
	"github.com/hadv/ethaura-passkeys/internal/metrics"
	"github.com/hadv/ethaura-passkeys/internal/sessions"
	"github.com/hadv/ethaura-passkeys/internal/store"
)

// memStorage is an in-memory fake of store.Storage wired through every
// layer (devices, sessions, admin) so the handler tests exercise the
// real routing, envelope parsing and error mapping end to end.
type memStorage struct {
	devices  map[string]store.Device
	sessions map[string]store.Session
}

func newMemStorage() *memStorage {
	return &memStorage{devices: map[string]store.Device{}, sessions: map[string]store.Session{}}
}

func dkey(account, deviceID string) string { return account + "|" + deviceID }

func (m *memStorage) Close() error { return nil }

func (m *memStorage) CreateDevice(ctx context.Context, d store.Device) error {
	k := dkey(d.AccountAddress, d.DeviceID)
	if _, ok := m.devices[k]; ok {
		return apierror.New(apierror.CodeConflict, "device already registered for this account")
	}
	m.devices[k] = d
	return nil
}
func (m *memStorage) UpdateDeviceProposalHash(ctx context.Context, account, deviceID, proposalHash string, proposalTxHash *string) error {
	return nil
}
func (m *memStorage) ActivateDevice(ctx context.Context, account, newPublicKeyX string) error {
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
	return store.Device{}, apierror.New(apierror.CodeNotFound, "device not found")
}
func (m *memStorage) GetActiveDevice(ctx context.Context, account string) (store.Device, error) {
	return store.Device{}, apierror.New(apierror.CodeNotFound, "active device not found")
}
func (m *memStorage) UpdateDeviceLastUsed(ctx context.Context, account, deviceID string, at time.Time) error {
	return nil
}
func (m *memStorage) UpdateDeviceMDSMetadata(ctx context.Context, account, deviceID string, md store.MDSMetadata) error {
	return nil
}
func (m *memStorage) RemoveDevice(ctx context.Context, account, deviceID string) (bool, error) {
	k := dkey(account, deviceID)
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
func (m *memStorage) CreateSession(ctx context.Context, s store.Session) error {
	m.sessions[s.SessionID] = s
	return nil
}
func (m *memStorage) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	s, ok := m.sessions[sessionID]
	if !ok {
		return store.Session{}, apierror.New(apierror.CodeNotFound, "session not found")
	}
	return s, nil
}
func (m *memStorage) CompleteSession(ctx context.Context, sessionID string, deviceData []byte, now time.Time) (bool, error) {
	s, ok := m.sessions[sessionID]
	if !ok || s.Status != store.SessionPending {
		return false, nil
	}
	s.Status = store.SessionCompleted
	d := string(deviceData)
	s.DeviceData = &d
	m.sessions[sessionID] = s
	return true, nil
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

// fixedRecoverer always recovers to the configured address, regardless
// of message/signature content, so handler tests can exercise envelope
// parsing without real secp256k1 signatures.
type fixedRecoverer struct {
	address string
}

func (f fixedRecoverer) Recover(message, signature string) (string, error) {
	return f.address, nil
}

const testOwner = "0xOwner0000000000000000000000000000000001"
const testAccount = "0xAccount000000000000000000000000000001"

func newTestServer(t *testing.T) (*httptest.Server, *memStorage) {
	t.Helper()
	s := newMemStorage()
	logger := log.NewLogrusLogger(logrus.New())

	reg := devices.New(s, noopMDSLookup{}, logger)
	sessStore := sessions.New(s, logger)
	adminSvc := admin.New(admin.Config{Enabled: true, DBPath: "test.db", BackupDir: "/tmp"}, s, metrics.New(nil), logger)

	now := time.Now().UTC()
	h := New(Config{
		Devices:     reg,
		Sessions:    sessStore,
		Admin:       adminSvc,
		Recoverer:   fixedRecoverer{address: testOwner},
		RateLimiter: gateway.NewIPRateLimiter(),
		CORS:        gateway.CORSConfig{Development: true},
		Logger:      logger,
		Now:         func() time.Time { return now },
		StartedAt:   now.Add(-time.Minute),
	})

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, s
}

func envelopeBody(t *testing.T, now time.Time, extra map[string]interface{}) []byte {
	t.Helper()
	msg := fmt.Sprintf("link %s to %s", strings.ToLower(testAccount), strings.ToLower(testOwner))
	body := map[string]interface{}{
		"accountAddress": testAccount,
		"ownerAddress":   testOwner,
		"signature":      "0xsig",
		"message":        msg,
		"timestamp":      now.UnixMilli(),
	}
	for k, v := range extra {
		body[k] = v
	}
	out, err := json.Marshal(body)
	require.NoError(t, err)
	return out
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAddDeviceThenGetDevices(t *testing.T) {
	srv, _ := newTestServer(t)
	now := time.Now().UTC()

	body := envelopeBody(t, now, map[string]interface{}{
		"deviceId":     "dev-1",
		"deviceName":   "iPhone",
		"deviceType":   "platform",
		"credentialId": "YWJj",
		"rawId":        "Z2hp",
		"publicKey":    map[string]string{"x": "0001", "y": "0011"},
	})

	resp, err := http.Post(srv.URL+"/api/passkeys", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	q := url.Values{}
	q.Set("accountAddress", testAccount)
	q.Set("ownerAddress", testOwner)
	q.Set("signature", "0xsig")
	q.Set("message", fmt.Sprintf("link %s to %s", strings.ToLower(testAccount), strings.ToLower(testOwner)))
	q.Set("timestamp", fmt.Sprintf("%d", now.UnixMilli()))
	reqURL := fmt.Sprintf("%s/api/passkeys/%s?%s", srv.URL, testAccount, q.Encode())
	resp2, err := http.Get(reqURL)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	var got map[string]interface{}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&got))
	devs, ok := got["devices"].([]interface{})
	require.True(t, ok)
	require.Len(t, devs, 1)
}

func TestAddDeviceMessageNotReferencingOwnerReturns401(t *testing.T) {
	srv, _ := newTestServer(t)
	now := time.Now().UTC()

	msg := fmt.Sprintf("link %s to someone-else", strings.ToLower(testAccount))
	body, err := json.Marshal(map[string]interface{}{
		"accountAddress": testAccount,
		"ownerAddress":   testOwner,
		"signature":      "0xsig",
		"message":        msg,
		"timestamp":      now.UnixMilli(),
		"deviceId":       "dev-1",
		"credentialId":   "YWJj",
		"rawId":          "Z2hp",
		"publicKey":      map[string]string{"x": "0001"},
	})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/api/passkeys", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateAndCompleteSession(t *testing.T) {
	srv, _ := newTestServer(t)
	now := time.Now().UTC()

	body := envelopeBody(t, now, nil)
	resp, err := http.Post(srv.URL+"/api/sessions", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sess store.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sess))
	resp.Body.Close()
	require.Equal(t, store.SessionPending, sess.Status)

	completeBody := envelopeBody(t, now, map[string]interface{}{"deviceData": map[string]string{"deviceId": "dev-2"}})
	resp2, err := http.Post(srv.URL+"/api/sessions/"+sess.SessionID+"/complete", "application/json", bytes.NewReader(completeBody))
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestAdminStatsAndBackup(t *testing.T) {
	srv, _ := newTestServer(t)
	now := time.Now().UTC()
	msg := fmt.Sprintf("link %s to %s", strings.ToLower(testAccount), strings.ToLower(testOwner))

	q := url.Values{}
	q.Set("accountAddress", testAccount)
	q.Set("ownerAddress", testOwner)
	q.Set("signature", "0xsig")
	q.Set("message", msg)
	q.Set("timestamp", fmt.Sprintf("%d", now.UnixMilli()))
	statsURL := fmt.Sprintf("%s/api/admin/stats?%s", srv.URL, q.Encode())
	resp, err := http.Get(statsURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	backupBody := envelopeBody(t, now, nil)
	resp2, err := http.Post(srv.URL+"/api/admin/backup", "application/json", bytes.NewReader(backupBody))
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestRemoveDeviceNotFoundReportsFalse(t *testing.T) {
	srv, _ := newTestServer(t)
	now := time.Now().UTC()

	body := envelopeBody(t, now, map[string]interface{}{"deviceId": "ghost"})
	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/passkeys", bytes.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.False(t, got["removed"])
}
