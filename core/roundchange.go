package core

import (
	"github.com/viewlock/pbft/message"
	"github.com/viewlock/pbft/view"
)

// armRoundChange implements the "repeated invalid proposals" trigger of
// T6: broadcast this node's signed RoundChange targeting round+1, and
// record its own vote the same way an incoming one would be (mirrors
// Commit's explicit self-registration, not Prepare's implicit "+1" —
// RoundChange's 2F+1 threshold has no implicit term either).
func (c *Core) armRoundChange() {
	c.sendRoundChangeFor(c.curView.Round + 1)
}

// onRoundTimeout implements T6's round_timer-expiry trigger.
func (c *Core) onRoundTimeout() {
	c.log.Info("round timed out", "height", c.curView.Height, "round", c.curView.Round, "sequence_id", c.sequenceID)
	c.sendRoundChangeFor(c.curView.Round + 1)
}

// sendRoundChangeFor broadcasts a RoundChange targeting round target,
// unless this node has already sent one for that target this height.
func (c *Core) sendRoundChangeFor(target uint64) {
	if c.sentRoundChangeFor[target] {
		return
	}

	sub := message.Subject{
		View: view.View{Height: c.curView.Height, Round: target},
	}

	if c.rs.lockedHash != nil {
		sub.Digest = *c.rs.lockedHash
	}

	msg := &message.Message{
		Type:    message.TypeRoundChange,
		Payload: message.EncodeSubject(sub),
		Sender:  c.backend.ID(),
	}

	if err := message.Sign(msg, c.signer); err != nil {
		c.log.Error("unable to sign round change", "err", err)

		return
	}

	c.sentRoundChangeFor[target] = true
	c.transport.Broadcast(msg)

	c.recordRoundChange(msg, target)
}

// handleRoundChangeMessage implements T6's join (F+1) and advance
// (2F+1) thresholds. RoundChange messages are collected per target
// round across the whole height, independent of the per-round view
// check other message types go through, since a RoundChange
// legitimately targets any round ahead of the one this node currently
// holds. RoundChanges for the current round or an earlier one are
// ignored.
func (c *Core) handleRoundChangeMessage(msg *message.Message, msgView view.View) {
	if msgView.Height != c.curView.Height {
		// Round changes only ever target the height currently in
		// progress; anything else is either long stale or absurdly far
		// in the future, and there is no per-height state to collect it
		// into.
		return
	}

	if msgView.Round <= c.curView.Round {
		// Already at or past this target; nothing to do.
		return
	}

	c.recordRoundChange(msg, msgView.Round)

	set := c.roundChanges[msgView.Round]
	if set == nil {
		return
	}

	// F+1 RoundChange messages for a future round is proof that at
	// least one honest node has already moved on; join it early rather
	// than waiting to time out independently.
	if set.Len() >= c.validators.F()+1 && msgView.Round > c.curView.Round {
		c.sendRoundChangeFor(msgView.Round)
	}

	if set.Len() >= c.validators.TwoThirdsMajority() {
		c.moveToNewRound(msgView.Round)
	}
}

// recordRoundChange adds msg to the collector for target, creating it
// on first use. Duplicate senders are silently swallowed, matching
// Prepare/Commit handling.
func (c *Core) recordRoundChange(msg *message.Message, target uint64) {
	set := c.roundChanges[target]
	if set == nil {
		set = message.NewSet(c.validators)
		c.roundChanges[target] = set
	}

	if set.Contains(msg.Sender) {
		return
	}

	if err := set.Add(msg); err != nil {
		c.log.Error("unable to record round change", "err", err, "sender", msg.Sender.String())
	}
}

// moveToNewRound implements T6's advance step: the view moves to
// (H, target), per-round message sets reset but locked_hash is
// retained, the round timer restarts with the next exponential
// backoff, and the new proposer either re-proposes the locked block or
// proposes fresh.
func (c *Core) moveToNewRound(target uint64) {
	lockedHash := c.rs.lockedHash
	lockedBlock := c.rs.block

	c.curView = view.View{Height: c.curView.Height, Round: target}
	c.rs = newRoundState(c.curView, c.validators, lockedHash)
	c.state = StateAcceptRequest
	c.consecutiveRoundChanges++

	c.log.Info("round changed", "height", c.curView.Height, "round", c.curView.Round, "sequence_id", c.sequenceID)

	c.startRound(false)
	c.drainFuture()

	if !c.isProposer(c.backend.ID()) {
		return
	}

	if lockedHash != nil && lockedBlock != nil && lockedBlock.Hash() == *lockedHash {
		c.reproposeLocked(lockedBlock)

		return
	}

	c.proposeAsLeader(c.ctx)
}
