package core

import "github.com/viewlock/pbft/message"

// sendPrepare broadcasts this node's own Prepare for the currently
// accepted proposal (§4.4 T3, and the proposer's own vote per T2). The
// local vote is never inserted into prepares (it is the implicit "+1"
// in T4), so the quorum condition has to be (re-)checked here too: with
// a validator set small enough that the local vote alone satisfies
// quorum (N=1), no inbound Prepare will ever arrive to trigger it from
// handlePrepare.
func (c *Core) sendPrepare() {
	sub := c.rs.subject()
	if sub == nil {
		return
	}

	msg := &message.Message{
		Type:    message.TypePrepare,
		Payload: message.EncodeSubject(*sub),
		Sender:  c.backend.ID(),
	}

	if err := message.Sign(msg, c.signer); err != nil {
		c.log.Error("unable to sign prepare", "err", err)

		return
	}

	c.transport.Broadcast(msg)

	c.tryPrepared()
}

// handlePrepare implements §4.5's five numbered steps and T4: add a
// well-formed Prepare to the current round's collector, and transition
// to Prepared, locking the digest and sending a Commit, the first time
// a quorum is reached.
func (c *Core) handlePrepare(msg *message.Message) {
	if c.rs.proposalMsg == nil {
		// No accepted proposal yet to compare the subject against.
		return
	}

	sub, err := msg.Subject()
	if err != nil {
		c.log.Error("malformed prepare payload", "err", err)

		return
	}

	current := c.rs.subject()
	if current == nil || sub != *current {
		c.log.Error("inconsistent subject on prepare", "sender", msg.Sender.String())

		return
	}

	if msg.Sender == c.backend.ID() {
		// Our own Prepare is never recorded in our own prepares set (its
		// vote is the implicit "+1" in T4); a gossip relay that hands it
		// back to us must not double-count it.
		return
	}

	if c.rs.prepares.Contains(msg.Sender) {
		// Duplicates are silently swallowed, not errors (§4.5 step 4);
		// logged at debug only for tracing.
		c.log.Debug("duplicate prepare", "err", ErrDuplicate, "sender", msg.Sender.String())

		return
	}

	if err := c.rs.prepares.Add(msg); err != nil {
		c.log.Error("unable to record prepare", "err", err)

		return
	}

	// Redistribute: the first time a novel Prepare is seen, re-flood it
	// to accelerate convergence (§6 Broadcaster).
	c.transport.Broadcast(msg)

	c.tryPrepared()
}

// tryPrepared implements T4: the "+1" accounts for the local node's own
// implicit vote (never itself inserted into prepares), so the quorum
// condition is evaluated both after recording an inbound Prepare and
// right after casting the local node's own.
func (c *Core) tryPrepared() {
	if c.rs.prepares.Len()+1 < c.validators.TwoThirdsMajority() {
		return
	}

	if c.state >= StatePrepared {
		return
	}

	c.rs.lockHash()
	c.state = StatePrepared

	c.log.Debug("prepared", "height", c.curView.Height, "round", c.curView.Round, "sequence_id", c.sequenceID)

	c.sendCommit()
}
