package core

import (
	"github.com/viewlock/pbft/message"
	"github.com/viewlock/pbft/view"
)

// State is one of the four (plus terminal) consensus states a height
// moves through: AcceptRequest -> Preprepared -> Prepared -> Committed
// -> FinalCommitted. States are ordered; comparisons with < and >=
// match the spec's "state < Prepared" style conditions directly.
type State int

const (
	StateAcceptRequest State = iota
	StatePreprepared
	StatePrepared
	StateCommitted
	StateFinalCommitted
)

func (s State) String() string {
	switch s {
	case StateAcceptRequest:
		return "AcceptRequest"
	case StatePreprepared:
		return "Preprepared"
	case StatePrepared:
		return "Prepared"
	case StateCommitted:
		return "Committed"
	case StateFinalCommitted:
		return "FinalCommitted"
	default:
		return "Unknown"
	}
}

// roundState is the per-(height, round) volatile state described in
// §3: the current proposal (if any), the locked hash, and the pending
// Prepare/Commit quorum collectors. It is owned exclusively by the
// Core's single executor goroutine; nothing else may mutate it.
type roundState struct {
	view view.View

	proposalMsg *message.Message
	proposal    *message.Proposal
	block       Block

	lockedHash *message.Digest

	prepares *message.Set
	commits  *message.Set
}

// newRoundState creates an empty round state for v, scoped to
// validators. lockedHash is carried over from the previous round
// within the same height (§4.4 T6: "retain locked_hash across round
// changes").
func newRoundState(v view.View, validators *view.ValidatorSet, lockedHash *message.Digest) *roundState {
	return &roundState{
		view:       v,
		lockedHash: lockedHash,
		prepares:   message.NewSet(validators),
		commits:    message.NewSet(validators),
	}
}

// subject returns the Subject of the current proposal, or nil if none
// has been accepted yet.
func (rs *roundState) subject() *message.Subject {
	if rs.block == nil {
		return nil
	}

	return &message.Subject{View: rs.view, Digest: rs.block.Hash()}
}

// setProposal records a newly accepted proposal: the original
// Pre-Prepare message, its decoded Proposal, and the backend-decoded
// Block used for hashing and validation.
func (rs *roundState) setProposal(msg *message.Message, proposal *message.Proposal, block Block) {
	rs.proposalMsg = msg
	rs.proposal = proposal
	rs.block = block
}

// lockHash sets the locked hash to the current proposal's digest. It
// is idempotent: calling it again with the same digest is a no-op, and
// it never clears a lock that's already set to a different digest
// within the same height (only a height advance does that).
func (rs *roundState) lockHash() {
	if rs.block == nil {
		return
	}

	digest := rs.block.Hash()
	rs.lockedHash = &digest
}
