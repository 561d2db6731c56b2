package view

import (
	"encoding/hex"

	mapset "github.com/deckarep/golang-set/v2"
)

// Address identifies a validator. It is the 20 lower bytes of the
// Keccak-256 hash of the validator's uncompressed public key, the same
// derivation used throughout the go-ethereum family of clients.
type Address [20]byte

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Validator is a single member of a validator set: its position in the
// set's canonical order, and its address.
type Validator struct {
	Index   int
	Address Address
}

// ValidatorSet is the ordered membership of validators at a given
// height. Order is significant: it is what proposer rotation indexes
// into.
type ValidatorSet struct {
	validators []Validator
	index      mapset.Set[Address]
}

// NewValidatorSet builds a validator set from an ordered list of
// addresses. The order given is preserved as the set's canonical order.
func NewValidatorSet(addresses []Address) *ValidatorSet {
	validators := make([]Validator, len(addresses))
	index := mapset.NewThreadUnsafeSet[Address]()

	for i, addr := range addresses {
		validators[i] = Validator{Index: i, Address: addr}
		index.Add(addr)
	}

	return &ValidatorSet{validators: validators, index: index}
}

// Len returns N, the number of validators in the set.
func (vs *ValidatorSet) Len() int {
	return len(vs.validators)
}

// F returns the maximum number of faulty validators the set can
// tolerate: floor((N-1)/3).
func (vs *ValidatorSet) F() int {
	return (vs.Len() - 1) / 3
}

// TwoThirdsMajority returns the commit/prepare quorum threshold,
// ceil(2N/3).
func (vs *ValidatorSet) TwoThirdsMajority() int {
	n := vs.Len()

	return (2*n + 2) / 3
}

// IsMember reports whether addr belongs to the validator set.
func (vs *ValidatorSet) IsMember(addr Address) bool {
	return vs.index.Contains(addr)
}

// List returns the validators in canonical order. The returned slice
// must not be mutated by callers.
func (vs *ValidatorSet) List() []Validator {
	return vs.validators
}

// Proposer returns the deterministic proposer for the given round,
// given a seed derived from the previous committed block at the current
// height. Selection is round-robin: set[(seed+round) mod N].
func (vs *ValidatorSet) Proposer(seed uint64, round uint64) Validator {
	n := uint64(vs.Len())

	return vs.validators[(seed+round)%n]
}

// CheckMessage classifies a message's view against the currently held
// view for the given sender. The caller is responsible for the
// "commit for old block" carve-out: this method reports Stale for any
// view strictly before current, regardless of message type.
func (vs *ValidatorSet) CheckMessage(current View, msgView View, sender Address) CheckResult {
	if !vs.IsMember(sender) {
		return CheckNotMember
	}

	switch {
	case current.Less(msgView):
		return CheckFuture
	case msgView.Less(current):
		return CheckStale
	default:
		return CheckOK
	}
}
