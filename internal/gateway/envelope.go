// Package gateway is the authenticated request gateway fronting the
// device registry, session store and admin surfaces: envelope parsing,
// signature recovery, timestamp anti-replay, rate limiting and CORS.
package gateway

import (
	"strings"
	"time"

	"github.com/hadv/ethaura-passkeys/internal/apierror"
)

// MaxClockSkew bounds how far a request timestamp may drift from the
// server clock in either direction before being rejected as expired.
const MaxClockSkew = 5 * time.Minute

// RawEnvelope is the wire shape of the authenticated envelope, as parsed
// from a JSON body or a query string -- both must agree on these five
// fields.
type RawEnvelope struct {
	AccountAddress string `json:"accountAddress"`
	OwnerAddress   string `json:"ownerAddress"`
	Signature      string `json:"signature"`
	Message        string `json:"message"`
	Timestamp      int64  `json:"timestamp"` // unix milliseconds
}

// Envelope is a verified authenticated request. It can only be produced
// by ParseEnvelope, which refuses to return a value unless all five
// envelope fields parse, the timestamp is fresh, the signature recovers,
// and the recovered signer matches ownerAddress -- eliminating "did we
// check auth?" bugs downstream.
type Envelope struct {
	// VerifiedAccount is accountAddress, lowercased.
	VerifiedAccount string
	// VerifiedOwner is ownerAddress, lowercased, and equal to the
	// address recovered from (message, signature).
	VerifiedOwner string
	Message       string
	Timestamp     time.Time
}

// Recoverer recovers a candidate signer address from a message and an
// ECDSA-over-secp256k1 personal-message signature. The only
// implementation treats ecrecover as an external black box.
type Recoverer interface {
	Recover(message, signature string) (string, error)
}

// ParseEnvelope validates a RawEnvelope against now and returns the
// verified Envelope, or a CodeValidation / taxonomy error describing why
// it was rejected.
func ParseEnvelope(raw RawEnvelope, recoverer Recoverer, now time.Time) (Envelope, error) {
	if raw.AccountAddress == "" || raw.OwnerAddress == "" || raw.Signature == "" || raw.Message == "" || raw.Timestamp == 0 {
		return Envelope{}, apierror.New(apierror.CodeValidation, "missing envelope field")
	}

	ts := time.UnixMilli(raw.Timestamp).UTC()
	skew := now.Sub(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > MaxClockSkew {
		return Envelope{}, apierror.New(apierror.CodeAuth, "expired")
	}

	recovered, err := recoverer.Recover(raw.Message, raw.Signature)
	if err != nil {
		return Envelope{}, apierror.Wrap(apierror.CodeAuth, "could not recover signer", err)
	}
	if !strings.EqualFold(recovered, raw.OwnerAddress) {
		return Envelope{}, apierror.New(apierror.CodeAuth, "mismatch")
	}

	lowerAccount := strings.ToLower(raw.AccountAddress)
	lowerOwner := strings.ToLower(raw.OwnerAddress)

	// The message is free-form but must textually reference both
	// addresses, preventing a signature produced for one account/owner
	// pair from being replayed against another.
	lowerMessage := strings.ToLower(raw.Message)
	if !strings.Contains(lowerMessage, lowerOwner) || !strings.Contains(lowerMessage, lowerAccount) {
		return Envelope{}, apierror.New(apierror.CodeAuth, "mismatch: message does not reference both addresses")
	}

	return Envelope{
		VerifiedAccount: lowerAccount,
		VerifiedOwner:   lowerOwner,
		Message:         raw.Message,
		Timestamp:       ts,
	}, nil
}
