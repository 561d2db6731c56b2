// Package core implements the PBFT-family consensus state machine for
// a single block height: the Pre-Prepare/Prepare/Commit three-phase
// protocol, the round-change liveness mechanism, and the commit-seal
// quorum certificate that accompanies every finalized block.
//
// The core is single-threaded cooperative (§5): every exported handler
// below is meant to be invoked from a single executor goroutine (the
// one running Run), which serializes inbound messages, timer
// expirations and local proposal results into one event stream. No
// other goroutine may touch a Core's internal state directly; a
// multi-threaded transport must funnel messages through Feed, which is
// safe to call from any goroutine.
package core

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/viewlock/pbft/message"
	"github.com/viewlock/pbft/view"
)

// Core is a single instance of the consensus state machine, tracking
// exactly one height/round position at a time.
type Core struct {
	log       Logger
	backend   Backend
	transport Broadcaster
	signer    Signer
	cfg       Config

	state      State
	curView    view.View
	validators *view.ValidatorSet
	rs         *roundState

	// sequenceID correlates every log line emitted while processing one
	// height across round changes, so a log aggregator can group a
	// whole sequence's chatter without parsing height/round pairs.
	sequenceID string

	// ctx is the height's running context, stashed so that a proposal
	// triggered from within message handling (a round change electing
	// this node as the new proposer) can reach Backend.Propose without
	// threading a context through every handler.
	ctx context.Context

	roundChanges            map[uint64]*message.Set
	sentRoundChangeFor      map[uint64]bool
	consecutiveRoundChanges uint64

	future *futureQueue

	misbehaviour map[view.Address]uint32

	inbox        chan *message.Message
	requestTimer *time.Timer
	roundTimer   *time.Timer
}

// New creates a Core. It does not start any height; call Run to begin
// the event loop at a given starting height.
func New(log Logger, backend Backend, transport Broadcaster, signer Signer, cfg Config) *Core {
	return &Core{
		log:          log,
		backend:      backend,
		transport:    transport,
		signer:       signer,
		cfg:          cfg,
		misbehaviour: make(map[view.Address]uint32),
		inbox:        make(chan *message.Message, 256),
	}
}

// Feed delivers an inbound gossip message to the core. It is the
// single-producer entry point a (possibly multi-threaded) transport
// layer must funnel all messages through; Feed itself is safe to call
// concurrently. Messages are dropped (and logged) if the inbox is
// saturated, rather than blocking the caller.
func (c *Core) Feed(msg *message.Message) {
	select {
	case c.inbox <- msg:
	default:
		c.log.Error("inbox saturated, dropping message", "type", msg.Type.String())
	}
}

// Misbehaviours returns a snapshot of the per-address count of
// messages rejected as malformed, so the transport can throttle
// persistently misbehaving peers (§7). The core never disconnects
// peers itself.
func (c *Core) Misbehaviours() map[view.Address]uint32 {
	snapshot := make(map[view.Address]uint32, len(c.misbehaviour))
	for addr, n := range c.misbehaviour {
		snapshot[addr] = n
	}

	return snapshot
}

func (c *Core) noteMisbehaviour(addr view.Address) {
	c.misbehaviour[addr]++
}

// View returns the core's currently held view.
func (c *Core) View() view.View {
	return c.curView
}

// State returns the core's currently held state.
func (c *Core) State() State {
	return c.state
}

// Run drives the event loop starting at startHeight, until ctx is
// cancelled. It is the production entry point; tests typically drive
// the handler methods directly instead for determinism.
func (c *Core) Run(ctx context.Context, startHeight uint64) {
	height := startHeight

	for {
		if ctx.Err() != nil {
			return
		}

		c.enterNewHeight(height)

		if !c.runHeight(ctx) {
			return
		}

		height = c.curView.Height + 1
	}
}

// runHeight processes events until the height is finalized (returns
// true) or ctx is cancelled (returns false).
func (c *Core) runHeight(ctx context.Context) bool {
	c.ctx = ctx
	c.startRound(true)

	for {
		var requestC, roundC <-chan time.Time

		if c.requestTimer != nil {
			requestC = c.requestTimer.C
		}

		if c.roundTimer != nil {
			roundC = c.roundTimer.C
		}

		select {
		case <-ctx.Done():
			return false

		case msg := <-c.inbox:
			c.onMessage(msg)

			if c.state == StateFinalCommitted {
				return true
			}

		case <-requestC:
			c.requestTimer = nil
			c.proposeAsLeader(ctx)

		case <-roundC:
			c.roundTimer = nil
			c.onRoundTimeout()
		}
	}
}

// enterNewHeight performs T1: replace the validator set if it changed,
// reset the view to (height, 0), clear round state, and enter
// AcceptRequest.
func (c *Core) enterNewHeight(height uint64) {
	c.curView = view.View{Height: height, Round: 0}
	c.validators = c.backend.ValidatorSet(height)
	c.rs = newRoundState(c.curView, c.validators, nil)
	c.state = StateAcceptRequest
	c.roundChanges = make(map[uint64]*message.Set)
	c.sentRoundChangeFor = make(map[uint64]bool)
	c.consecutiveRoundChanges = 0
	c.future = newFutureQueue(c.validators.Len() * 4)
	c.sequenceID = uuid.NewString()

	c.log.Info("sequence started", "height", height, "sequence_id", c.sequenceID)
}

// startRound arms the round timer for the current view, and, on a new
// height, also arms the request timer if this node is the proposer.
// Round changes (T6) that advance to round > 0 propose directly
// instead of arming the request timer (see moveToNewRound).
func (c *Core) startRound(isNewHeight bool) {
	c.stopTimers()

	timeout := roundTimeout(c.cfg.BlockPeriod, c.consecutiveRoundChanges)
	c.roundTimer = time.NewTimer(timeout)

	c.log.Info("round started", "height", c.curView.Height, "round", c.curView.Round, "sequence_id", c.sequenceID)

	if isNewHeight && c.isProposer(c.backend.ID()) {
		c.requestTimer = time.NewTimer(c.cfg.RequestTime)
	}
}

func (c *Core) stopTimers() {
	if c.requestTimer != nil {
		c.requestTimer.Stop()
		c.requestTimer = nil
	}

	if c.roundTimer != nil {
		c.roundTimer.Stop()
		c.roundTimer = nil
	}
}

func (c *Core) isProposer(addr view.Address) bool {
	seed := c.backend.Seed(c.curView.Height)
	proposer := c.validators.Proposer(seed, c.curView.Round)

	return proposer.Address == addr
}

// onMessage classifies and dispatches a single inbound message. This
// is the sole place inbound gossip mutates roundState, keeping the
// "no re-entrant mutation" rule (§5) trivially true: it only ever runs
// on the executor goroutine, one message at a time.
func (c *Core) onMessage(msg *message.Message) {
	msgView, err := msg.View()
	if err != nil {
		c.log.Error("dropping malformed message", "err", err)

		return
	}

	recovered, err := message.AddressOf(msg, c.signer)
	if err != nil || recovered != msg.Sender {
		c.noteMisbehaviour(msg.Sender)
		c.log.Error("dropping message with invalid signature", "err", ErrBadSignature, "claimed", msg.Sender.String())

		return
	}

	if !c.validators.IsMember(msg.Sender) {
		c.noteMisbehaviour(msg.Sender)
		c.log.Error("dropping message from unknown sender", "err", ErrUnknownSender, "sender", msg.Sender.String())

		return
	}

	// Round-change messages are evaluated against a height-wide
	// collector, not the per-round view check, since they legitimately
	// target any round beyond the current one.
	if msg.Type == message.TypeRoundChange {
		c.handleRoundChangeMessage(msg, msgView)

		return
	}

	switch c.validators.CheckMessage(c.curView, msgView, msg.Sender) {
	case view.CheckFuture:
		c.log.Debug("buffering future message", "err", ErrFuture, "view", msgView.String())
		c.future.push(msg)

		return
	case view.CheckStale:
		if !c.isCommitForOldBlock(msg, msgView) {
			c.log.Debug("dropping stale message", "err", ErrStale, "view", msgView.String())

			return
		}
	case view.CheckNotMember:
		c.noteMisbehaviour(msg.Sender)

		return
	}

	c.dispatch(msg)
}

// isCommitForOldBlock implements the §4.6 carve-out: a stale Commit for
// the immediately prior height is exempt from the stale drop and is
// passed on to handleCommit. handleCommit only records commits whose
// subject matches the current proposal's, so such a Commit is logged
// and dropped there; no seal set of an earlier height is kept.
func (c *Core) isCommitForOldBlock(msg *message.Message, msgView view.View) bool {
	return msg.Type == message.TypeCommit && msgView.Height+1 == c.curView.Height
}

func (c *Core) dispatch(msg *message.Message) {
	switch msg.Type {
	case message.TypePreprepare:
		c.handlePreprepare(msg)
	case message.TypePrepare:
		c.handlePrepare(msg)
	case message.TypeCommit:
		c.handleCommit(msg)
	}
}

// drainFuture replays every buffered future message against the
// current view, now that the view has advanced to (or past) them.
func (c *Core) drainFuture() {
	for _, msg := range c.future.drain() {
		c.onMessage(msg)
	}
}
