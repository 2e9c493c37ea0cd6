package devices

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hadv/ethaura-passkeys/internal/store"
)

func TestStateOfActive(t *testing.T) {
	d := store.Device{IsActive: true, ProposalHash: nil}
	s := StateOf(d)
	require.Equal(t, Active, s.Kind)
}

func TestStateOfPending(t *testing.T) {
	hash := "0xabc"
	d := store.Device{IsActive: false, ProposalHash: &hash}
	s := StateOf(d)
	require.Equal(t, Pending, s.Kind)
	require.Equal(t, &hash, s.ProposalHash)
}

func TestStateOfRetired(t *testing.T) {
	d := store.Device{IsActive: false, ProposalHash: nil}
	s := StateOf(d)
	require.Equal(t, Retired, s.Kind)
}

func TestKindString(t *testing.T) {
	require.Equal(t, "active", Active.String())
	require.Equal(t, "pending", Pending.String())
	require.Equal(t, "retired", Retired.String())
}
