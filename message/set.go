package message

import (
	"errors"

	"github.com/viewlock/pbft/view"
)

// Errors returned by Set.Add.
var (
	ErrDuplicate     = errors.New("message: duplicate sender")
	ErrUnknownSender = errors.New("message: sender not in validator set")
)

// Set is the per-(phase, subject) quorum collector: a mapping from
// sender address to the unique message that sender contributed.
// Inserting a second message from an already-present sender is
// rejected with ErrDuplicate.
type Set struct {
	validators *view.ValidatorSet
	order      []*Message
	bySender   map[view.Address]*Message
}

// NewSet creates an empty Set scoped to the given validator set.
func NewSet(validators *view.ValidatorSet) *Set {
	return &Set{
		validators: validators,
		bySender:   make(map[view.Address]*Message),
	}
}

// Add inserts msg, keyed by its sender. A sender already present fails
// with ErrDuplicate; a sender not in the validator set fails with
// ErrUnknownSender.
func (s *Set) Add(msg *Message) error {
	if !s.validators.IsMember(msg.Sender) {
		return ErrUnknownSender
	}

	if _, ok := s.bySender[msg.Sender]; ok {
		return ErrDuplicate
	}

	s.bySender[msg.Sender] = msg
	s.order = append(s.order, msg)

	return nil
}

// Len returns the current number of distinct senders collected.
func (s *Set) Len() int {
	return len(s.order)
}

// Contains reports whether addr has already contributed a message.
func (s *Set) Contains(addr view.Address) bool {
	_, ok := s.bySender[addr]

	return ok
}

// Values returns the collected messages in stable insertion order.
// Callers must not mutate the returned slice.
func (s *Set) Values() []*Message {
	return s.order
}

// CommitSeals extracts the CommitSeal of every collected message, in
// insertion order. It is an error (ErrMissingSealInSet) for any
// collected Commit message to lack a seal; callers should not be able
// to reach that state since the commit verifier rejects sealless
// Commits before they are ever added to a Set, but the check is kept
// here as a last line of defense against the invariant in §3 ("Every
// Commit accepted into commits carries a commit_seal...").
func (s *Set) CommitSeals() ([]Signature, error) {
	seals := make([]Signature, 0, len(s.order))

	for _, m := range s.order {
		if m.CommitSeal == nil {
			return nil, ErrMissingSealInSet
		}

		seals = append(seals, *m.CommitSeal)
	}

	return seals, nil
}

// ErrMissingSealInSet is returned by Set.CommitSeals if a collected
// Commit message somehow lacks a seal.
var ErrMissingSealInSet = errors.New("message: commit message missing seal")
