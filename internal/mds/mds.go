// Package mds is the FIDO Metadata Service cache manager: background
// fetch, verification-hook, persistence and AAGUID lookup with a static
// fallback table.
package mds

import "time"

// Metadata is the resolved view of an authenticator's metadata, whether
// it came from the live MDS cache or the static fallback table.
type Metadata struct {
	Resolved           bool
	Name               string
	Description        string
	IsFido2Certified   bool
	CertificationLevel string
	IsHardwareBacked   bool
}

// unknownAuthenticator is returned when neither the cache nor the
// fallback table has an entry for the AAGUID.
var unknownAuthenticator = Metadata{
	Resolved: false,
	Name:     "Unknown Authenticator",
}

// snapshot is the in-memory, atomically-swapped view of the current MDS
// blob, indexed by lowercased AAGUID for O(1) lookup.
type snapshot struct {
	entries     map[string]mdsEntry
	lastUpdated time.Time
}

type mdsEntry struct {
	description      string
	certificationLvl string
	keyProtection    []string
}

func (e mdsEntry) toMetadata() Metadata {
	return Metadata{
		Resolved:           true,
		Name:               e.description,
		Description:        e.description,
		IsFido2Certified:    hasFido2Prefix(e.certificationLvl),
		CertificationLevel: e.certificationLvl,
		IsHardwareBacked:   anyHardwareProtection(e.keyProtection),
	}
}

func hasFido2Prefix(status string) bool {
	const prefix = "FIDO_CERTIFIED"
	return len(status) >= len(prefix) && status[:len(prefix)] == prefix
}

func anyHardwareProtection(keyProtection []string) bool {
	for _, kp := range keyProtection {
		switch kp {
		case "hardware", "secure_element", "tee":
			return true
		}
	}
	return false
}
