package core

import (
	"github.com/viewlock/pbft/message"
	"github.com/viewlock/pbft/view"
)

// sendCommit broadcasts this node's Commit for the current proposal.
// Grounded on original_source/bft/src/core/commit.rs's send_commit:
// the commit seal is a signature over the digest alone (not the
// Subject), so a later verifier can validate seals given only the
// block header (§4.6).
func (c *Core) sendCommit() {
	sub := c.rs.subject()
	if sub == nil {
		return
	}

	msg := c.broadcastCommit(*sub)
	if msg == nil {
		return
	}

	// Unlike Prepare's implicit "+1" (§4.4 T4), T5 counts every commit
	// explicitly, including the sender's own: record our own vote the
	// same way an incoming one would be.
	c.handleCommit(msg)
}

// SendCommitForOldBlock synthesizes a Commit for a prior view's digest
// and broadcasts it, letting a validator that has already advanced to
// height+1 help a lagging peer complete its quorum certificate for
// height (§4.6 "commit for old block"). This is the public operation
// original_source/bft/src/core/commit.rs exposes as
// send_commit_for_old_block.
func (c *Core) SendCommitForOldBlock(v view.View, digest message.Digest) {
	c.broadcastCommit(message.Subject{View: v, Digest: digest})
}

func (c *Core) broadcastCommit(sub message.Subject) *message.Message {
	seal, err := c.signer.Sign(sub.Digest[:])
	if err != nil {
		c.log.Error("unable to sign commit seal", "err", err)

		return nil
	}

	msg := &message.Message{
		Type:       message.TypeCommit,
		Payload:    message.EncodeSubject(sub),
		Sender:     c.backend.ID(),
		CommitSeal: &seal,
	}

	if err := message.Sign(msg, c.signer); err != nil {
		c.log.Error("unable to sign commit", "err", err)

		return nil
	}

	c.transport.Broadcast(msg)

	return msg
}

// verifyCommit implements §4.6's verify_commit contract in full: a
// seal must be present, must recover to the message's claimed sender
// over the digest alone, and the commit's subject must match the
// current proposal's subject.
func (c *Core) verifyCommit(msg *message.Message, sub message.Subject) error {
	if msg.CommitSeal == nil {
		return ErrMissingSeal
	}

	recovered, err := c.signer.Recover(*msg.CommitSeal, sub.Digest[:])
	if err != nil || recovered != msg.Sender {
		return ErrSealSenderMismatch
	}

	current := c.rs.subject()
	if current == nil || sub != *current {
		return ErrInconsistentSubject
	}

	return nil
}

// handleCommit implements T5 and §4.6's accept/quorum-check sequence.
// The teacher's Rust source unconditionally returns Err("") on this
// method's success path (documented as a bug in §9 Open Questions);
// this implementation does not reproduce it — success returns having
// already finalized the block, nothing more.
func (c *Core) handleCommit(msg *message.Message) {
	if c.rs.proposalMsg == nil {
		return
	}

	sub, err := msg.Subject()
	if err != nil {
		c.log.Error("malformed commit payload", "err", err)

		return
	}

	if err := c.verifyCommit(msg, sub); err != nil {
		c.log.Error("rejecting commit", "err", err, "sender", msg.Sender.String())

		return
	}

	if c.rs.commits.Contains(msg.Sender) {
		// Duplicates are silently swallowed, not errors (§4.5 step 4);
		// logged at debug only for tracing.
		c.log.Debug("duplicate commit", "err", ErrDuplicate, "sender", msg.Sender.String())

		return
	}

	if err := c.rs.commits.Add(msg); err != nil {
		c.log.Error("unable to record commit", "err", err)

		return
	}

	if msg.Sender != c.backend.ID() {
		// Redistribute: the first time a novel Commit is seen, re-flood
		// it to accelerate convergence (§6 Broadcaster).
		c.transport.Broadcast(msg)
	}

	if c.rs.commits.Len() < c.validators.TwoThirdsMajority() {
		return
	}

	if c.state >= StateCommitted {
		return
	}

	c.rs.lockHash()
	c.state = StateCommitted

	seals, err := c.rs.commits.CommitSeals()
	if err != nil {
		c.log.Error("unable to assemble quorum certificate", "err", err)

		return
	}

	if err := c.backend.Finalize(c.rs.block, seals); err != nil {
		c.log.Error("finalize failed", "err", err)

		return
	}

	c.state = StateFinalCommitted
	c.log.Info("block finalized", "height", c.curView.Height, "round", c.curView.Round, "sequence_id", c.sequenceID)
}
