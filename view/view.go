// Package view implements the view and validator-set model of the
// consensus core: the (height, round) position of a single in-progress
// block, the deterministic proposer selection for that position, and the
// classification of inbound messages against the locally held view.
package view

import "fmt"

// View is a (height, round) pair. Views are totally ordered
// lexicographically: height first, then round.
type View struct {
	Height uint64
	Round  uint64
}

// Less reports whether v sorts strictly before other.
func (v View) Less(other View) bool {
	if v.Height != other.Height {
		return v.Height < other.Height
	}

	return v.Round < other.Round
}

// Equal reports whether v and other name the same position.
func (v View) Equal(other View) bool {
	return v.Height == other.Height && v.Round == other.Round
}

func (v View) String() string {
	return fmt.Sprintf("{height: %d, round: %d}", v.Height, v.Round)
}

// CheckResult classifies an inbound message's view against the
// currently held view.
type CheckResult int

const (
	// CheckOK means the message's view matches the current view and may
	// be processed normally.
	CheckOK CheckResult = iota
	// CheckFuture means the message targets a view ahead of the current
	// one; it should be buffered, not dropped.
	CheckFuture
	// CheckStale means the message targets a view behind the current
	// one; it should be dropped, except for the commit-for-old-block
	// carve-out handled by the caller.
	CheckStale
	// CheckNotMember means the sender is not part of the validator set
	// for the relevant height.
	CheckNotMember
)

func (r CheckResult) String() string {
	switch r {
	case CheckOK:
		return "ok"
	case CheckFuture:
		return "future"
	case CheckStale:
		return "stale"
	case CheckNotMember:
		return "not_member"
	default:
		return "unknown"
	}
}
