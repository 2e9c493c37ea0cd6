// Package devices implements the device registry: the lifecycle of
// enrolled passkey devices per smart account (proposal -> pending ->
// active -> retired), layered on top of the storage engine.
package devices

import "github.com/hadv/ethaura-passkeys/internal/store"

// State is the sum-type view of a device's lifecycle, computed from the
// two persisted columns (IsActive, ProposalHash) rather than stored as a
// separate column -- so it can never drift from the underlying table.
type State struct {
	Kind           Kind
	ProposalHash   *string
	ProposalTxHash *string
}

// Kind enumerates the logical device states from the component design's
// (isActive, proposalHash) table.
type Kind int

const (
	// Active: isActive=true. At most one per account.
	Active Kind = iota
	// Pending: isActive=false, proposalHash set. Awaiting an on-chain
	// timelock execution.
	Pending
	// Retired: isActive=false, proposalHash null. Superseded by a later
	// activation.
	Retired
)

func (k Kind) String() string {
	switch k {
	case Active:
		return "active"
	case Pending:
		return "pending"
	case Retired:
		return "retired"
	default:
		return "unknown"
	}
}

// StateOf derives the logical state of a stored device.
func StateOf(d store.Device) State {
	if d.IsActive {
		return State{Kind: Active, ProposalHash: d.ProposalHash, ProposalTxHash: d.ProposalTxHash}
	}
	if d.ProposalHash != nil {
		return State{Kind: Pending, ProposalHash: d.ProposalHash, ProposalTxHash: d.ProposalTxHash}
	}
	return State{Kind: Retired}
}
