package mds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	josejwt "gopkg.in/square/go-jose.v2"

	"github.com/hadv/ethaura-passkeys/internal/log"
	"github.com/hadv/ethaura-passkeys/internal/store"
)

// RefreshTTL is how long a persisted blob is trusted before a refresh is
// attempted again.
const RefreshTTL = 24 * time.Hour

// FetchTimeout bounds the outbound HTTPS fetch of the MDS blob.
const FetchTimeout = 30 * time.Second

// SignatureVerifier is the declared extension point for verifying the
// MDS JWT's signature. The current implementation trusts the TLS
// transport to the fixed host and never rejects on this basis; a real
// verifier can be plugged in later without touching the rest of the
// cache.
type SignatureVerifier interface {
	Verify(jws *josejwt.JSONWebSignature) error
}

// TrustTLSOnly is the default SignatureVerifier: it performs no
// verification, matching the spec's explicitly deferred posture.
type TrustTLSOnly struct{}

// Verify implements SignatureVerifier.
func (TrustTLSOnly) Verify(*josejwt.JSONWebSignature) error { return nil }

// Cache is the MDS Cache Manager: it owns an atomically-swapped
// in-memory snapshot, a persistence layer, and a refresh loop.
type Cache struct {
	storage  store.Storage
	url      string
	verifier SignatureVerifier
	logger   log.Logger
	client   *http.Client

	current atomic.Pointer[snapshot]
}

// New constructs a Cache. Call LoadFromStorage once at startup to
// populate the in-memory snapshot before serving lookups.
func New(storage store.Storage, url string, verifier SignatureVerifier, logger log.Logger) *Cache {
	if verifier == nil {
		verifier = TrustTLSOnly{}
	}
	c := &Cache{
		storage:  storage,
		url:      url,
		verifier: verifier,
		logger:   logger,
		client:   &http.Client{Timeout: FetchTimeout},
	}
	c.current.Store(&snapshot{entries: map[string]mdsEntry{}})
	return c
}

// LoadFromStorage loads the most recently persisted blob into the
// in-memory snapshot, if any, so lookups are O(1) from first request.
func (c *Cache) LoadFromStorage(ctx context.Context) error {
	blob, ok, err := c.storage.GetCurrentMDSBlob(ctx)
	if err != nil {
		return fmt.Errorf("load persisted mds blob: %w", err)
	}
	if !ok {
		return nil
	}
	snap, err := parseSnapshot(blob.Payload)
	if err != nil {
		return fmt.Errorf("parse persisted mds blob: %w", err)
	}
	snap.lastUpdated = blob.LastUpdated
	c.current.Store(snap)
	return nil
}

// Refresh fetches the MDS blob if the persisted cache is older than
// RefreshTTL. On any failure it logs and keeps the previous in-memory
// cache untouched -- it never returns an error that should disrupt
// serving traffic, matching the spec's "never throw into the caller".
func (c *Cache) Refresh(ctx context.Context) {
	blob, ok, err := c.storage.GetCurrentMDSBlob(ctx)
	if err == nil && ok && time.Since(blob.LastUpdated) < RefreshTTL {
		return
	}

	if err := c.refreshNow(ctx); err != nil {
		c.logger.Warnf("mds refresh failed, keeping previous cache: %v", err)
	}
}

func (c *Cache) refreshNow(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("build mds request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch mds blob: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mds fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read mds response: %w", err)
	}

	jws, err := josejwt.ParseSigned(strings.TrimSpace(string(body)))
	if err != nil {
		return fmt.Errorf("parse mds jwt: %w", err)
	}
	if err := c.verifier.Verify(jws); err != nil {
		return fmt.Errorf("verify mds jwt: %w", err)
	}
	payload := jws.UnsafePayloadWithoutVerification()

	var parsed rawMDSPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return fmt.Errorf("unmarshal mds payload: %w", err)
	}
	if len(parsed.Entries) == 0 {
		return fmt.Errorf("mds payload has no entries")
	}

	now := time.Now().UTC()
	nextUpdate, _ := time.Parse("2006-01-02", parsed.NextUpdate)

	if err := c.storage.PutMDSBlob(ctx, store.MDSBlob{
		Payload:     payload,
		LastUpdated: now,
		NextUpdate:  nextUpdate,
		BlobNumber:  parsed.Number,
	}); err != nil {
		return fmt.Errorf("persist mds blob: %w", err)
	}

	snap, err := parseSnapshot(payload)
	if err != nil {
		return fmt.Errorf("build mds snapshot: %w", err)
	}
	snap.lastUpdated = now
	c.current.Store(snap)
	c.logger.Infof("mds cache refreshed: %d entries, blob #%d", len(parsed.Entries), parsed.Number)
	return nil
}

// rawMDSPayload is the shape of the decoded MDS JWT payload we care
// about.
type rawMDSPayload struct {
	Entries    []rawMDSEntry `json:"entries"`
	NextUpdate string        `json:"nextUpdate"`
	Number     int           `json:"number"`
}

type rawMDSEntry struct {
	AAGUID                string `json:"aaguid"`
	MetadataStatement struct {
		Description   string   `json:"description"`
		KeyProtection []string `json:"keyProtection"`
	} `json:"metadataStatement"`
	StatusReports []struct {
		Status string `json:"status"`
	} `json:"statusReports"`
}

func parseSnapshot(payload []byte) (*snapshot, error) {
	var parsed rawMDSPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, err
	}
	entries := make(map[string]mdsEntry, len(parsed.Entries))
	for _, e := range parsed.Entries {
		if e.AAGUID == "" {
			continue
		}
		status := ""
		if len(e.StatusReports) > 0 {
			status = e.StatusReports[0].Status
		}
		entries[strings.ToLower(e.AAGUID)] = mdsEntry{
			description:      e.MetadataStatement.Description,
			certificationLvl: status,
			keyProtection:    e.MetadataStatement.KeyProtection,
		}
	}
	return &snapshot{entries: entries}, nil
}

// Lookup consults only the in-memory cache.
func (c *Cache) Lookup(aaguid string) Metadata {
	snap := c.current.Load()
	if snap == nil {
		return unknownAuthenticator
	}
	if e, ok := snap.entries[strings.ToLower(aaguid)]; ok {
		return e.toMetadata()
	}
	return unknownAuthenticator
}

// LookupWithFallback consults the in-memory cache, then the static
// fallback table, then defaults to "Unknown Authenticator".
func (c *Cache) LookupWithFallback(aaguid string) Metadata {
	if m := c.Lookup(aaguid); m.Resolved {
		return m
	}
	return lookupFallback(aaguid)
}
