package core

import (
	"context"

	"github.com/viewlock/pbft/message"
)

// proposeAsLeader implements T2: the proposer assembles a candidate
// block and broadcasts a Pre-Prepare for it, then locally transitions
// to Preprepared and sends its own explicit Prepare (§9: "every
// validator, including the proposer, contributes an explicit
// Prepare").
func (c *Core) proposeAsLeader(ctx context.Context) {
	block, err := c.backend.Propose(ctx, c.curView)
	if err != nil {
		c.log.Error("unable to build proposal", "err", err)

		return
	}

	proposal := &message.Proposal{View: c.curView, Block: block.Bytes()}

	msg := &message.Message{
		Type:    message.TypePreprepare,
		Payload: message.EncodeProposal(*proposal),
		Sender:  c.backend.ID(),
	}

	if err := message.Sign(msg, c.signer); err != nil {
		c.log.Error("unable to sign proposal", "err", err)

		return
	}

	c.rs.setProposal(msg, proposal, block)
	c.state = StatePreprepared

	c.transport.Broadcast(msg)
	c.log.Debug("pre-prepare broadcast", "height", c.curView.Height, "round", c.curView.Round)

	c.sendPrepare()
}

// reproposeLocked implements T6's "if local node is new proposer and
// locked_hash is set, re-propose the locked block": the new proposer
// re-broadcasts a Pre-Prepare carrying the exact block it was already
// locked on, skipping Backend.Propose entirely so the re-proposal
// cannot diverge from what a quorum may already be Prepared on.
func (c *Core) reproposeLocked(block Block) {
	proposal := &message.Proposal{View: c.curView, Block: block.Bytes()}

	msg := &message.Message{
		Type:    message.TypePreprepare,
		Payload: message.EncodeProposal(*proposal),
		Sender:  c.backend.ID(),
	}

	if err := message.Sign(msg, c.signer); err != nil {
		c.log.Error("unable to sign re-proposal", "err", err)

		return
	}

	c.rs.setProposal(msg, proposal, block)
	c.state = StatePreprepared

	c.transport.Broadcast(msg)
	c.log.Debug("pre-prepare re-broadcast for locked block", "height", c.curView.Height, "round", c.curView.Round)

	c.sendPrepare()
}

// handlePreprepare implements T3: validate a received Pre-Prepare from
// the expected proposer, accept it, and broadcast an explicit Prepare.
func (c *Core) handlePreprepare(msg *message.Message) {
	if c.rs.proposalMsg != nil {
		// At most one Proposal per (H,R) is ever accepted (§3).
		return
	}

	expected := c.validators.Proposer(c.backend.Seed(c.curView.Height), c.curView.Round)
	if msg.Sender != expected.Address {
		c.noteMisbehaviour(msg.Sender)
		c.log.Error("pre-prepare from unexpected proposer", "err", ErrWrongProposer, "sender", msg.Sender.String())

		return
	}

	proposal, err := msg.ProposalPayload()
	if err != nil {
		c.log.Error("malformed proposal payload", "err", err)

		return
	}

	block, err := c.backend.DecodeBlock(proposal.Block)
	if err != nil {
		c.log.Error("unable to decode proposed block", "err", err)
		c.armRoundChange()

		return
	}

	// The lock rule (§4.4 liveness/safety argument, S5): once Prepared
	// at digest D within a height, a validator only accepts
	// re-proposals at D.
	if c.rs.lockedHash != nil && *c.rs.lockedHash != block.Hash() {
		c.log.Info("rejecting proposal inconsistent with lock", "locked", c.rs.lockedHash.String())
		c.armRoundChange()

		return
	}

	if err := c.backend.Validate(block); err != nil {
		c.log.Error("invalid proposal", "err", err)
		c.armRoundChange()

		return
	}

	c.rs.setProposal(msg, &proposal, block)
	c.state = StatePreprepared

	c.sendPrepare()
}
