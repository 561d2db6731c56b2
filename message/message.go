// Package message implements the wire-level message model of the
// consensus core: Pre-Prepare, Prepare, Commit and Round-Change
// messages, their canonical encodings, and the per-phase quorum
// collector (Set) that deduplicates and counts signed votes.
package message

import (
	"encoding/hex"

	"github.com/viewlock/pbft/view"
)

// Type enumerates the four gossip message kinds.
type Type uint8

const (
	TypePreprepare Type = iota
	TypePrepare
	TypeCommit
	TypeRoundChange
)

func (t Type) String() string {
	switch t {
	case TypePreprepare:
		return "PREPREPARE"
	case TypePrepare:
		return "PREPARE"
	case TypeCommit:
		return "COMMIT"
	case TypeRoundChange:
		return "ROUND_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// Digest is a 32-byte hash uniquely identifying a proposed block's
// header.
type Digest [32]byte

func (d Digest) String() string {
	return "0x" + hex.EncodeToString(d[:])
}

// Signature is a 65-byte (r || s || v) recoverable ECDSA signature.
type Signature [65]byte

// Subject is the identity of the item being voted on: the view it
// belongs to and the digest of the proposed block. Prepare and Commit
// messages carry a Subject.
type Subject struct {
	View   view.View
	Digest Digest
}

// Proposal is the tuple (view, block) carried by Pre-Prepare messages.
// Block is the backend-opaque byte encoding of the candidate block; the
// core never interprets it, only hashes and forwards it.
type Proposal struct {
	View  view.View
	Block []byte
}

// Message is a signed gossip message: a Pre-Prepare, Prepare, Commit or
// Round-Change, addressed by the canonical encoding of its payload
// (either a Subject or a Proposal) plus sender and signature.
//
// CommitSeal is present iff Type == TypeCommit, and is a signature over
// the Digest alone (not the Subject) so that a later verifier can check
// it given only the block header (see Set and the commit verifier in
// package core).
type Message struct {
	Type       Type
	Payload    []byte
	Sender     view.Address
	Signature  Signature
	CommitSeal *Signature
}

// View decodes the embedded view.View out of the message's payload.
// Both Subject and Proposal payloads begin with H(8) || R(8), so this
// is valid regardless of message type.
func (m *Message) View() (view.View, error) {
	if len(m.Payload) < 16 {
		return view.View{}, ErrShortPayload
	}

	return decodeViewPrefix(m.Payload), nil
}

// Subject decodes the message's payload as a Subject. Valid for
// Prepare, Commit and Round-Change messages.
func (m *Message) Subject() (Subject, error) {
	return DecodeSubject(m.Payload)
}

// ProposalPayload decodes the message's payload as a Proposal. Valid
// only for Pre-Prepare messages.
func (m *Message) ProposalPayload() (Proposal, error) {
	return DecodeProposal(m.Payload)
}
