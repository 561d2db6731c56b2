package core

import (
	"context"

	"github.com/viewlock/pbft/message"
	"github.com/viewlock/pbft/view"
)

// Logger represents the logging behaviour the core depends on. The
// default implementation lives in package corelog, backed by zap.
type Logger interface {
	Info(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// Broadcaster delivers gossip messages to every other validator,
// best-effort. There is no delivery acknowledgement; the core
// compensates by re-broadcasting on first receipt of a novel
// Prepare/Commit (see handlePrepare and handleCommit).
type Broadcaster interface {
	Broadcast(msg *message.Message)
}

// Signer authenticates and verifies byte strings on behalf of a single
// validator identity. The default implementation lives in package
// signer, backed by secp256k1.
type Signer interface {
	Sign(data []byte) (message.Signature, error)
	Recover(sig message.Signature, data []byte) (view.Address, error)
	Verify(addr view.Address, sig message.Signature, data []byte) error
}

// Block is the backend-opaque candidate block the core carries
// through Pre-Prepare, locks onto, and eventually finalizes. The core
// never interprets its contents, only its hash and its wire encoding.
type Block interface {
	Hash() message.Digest
	Bytes() []byte
}

// Backend is the application chain's block-assembly and
// validator-membership collaborator.
type Backend interface {
	// ID returns this node's own validator address.
	ID() view.Address

	// ValidatorSet returns the validator membership effective at the
	// given height.
	ValidatorSet(height uint64) *view.ValidatorSet

	// Seed returns the deterministic proposer-rotation seed for the
	// given height, derived from the previous committed block.
	Seed(height uint64) uint64

	// Propose assembles a candidate block for view v. Invoked
	// synchronously on the core's executor goroutine after
	// request_timer fires at the proposer.
	Propose(ctx context.Context, v view.View) (Block, error)

	// DecodeBlock parses the backend-specific raw bytes carried by a
	// received Proposal back into a Block, so the core can hash and
	// validate it.
	DecodeBlock(raw []byte) (Block, error)

	// Validate checks a received candidate block against the
	// blockchain state at its parent. Pure with respect to that
	// state.
	Validate(block Block) error

	// Finalize commits block and its quorum certificate atomically.
	Finalize(block Block, seals []message.Signature) error
}
