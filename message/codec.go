package message

import (
	"encoding/binary"
	"errors"

	"github.com/viewlock/pbft/view"
)

// Errors returned by the codec. All are local per the error handling
// policy in §7 of the specification: callers log and drop the offending
// message.
var (
	ErrShortPayload   = errors.New("message: payload too short")
	ErrShortMessage   = errors.New("message: encoded message too short")
	ErrLengthMismatch = errors.New("message: declared length does not match payload")
	ErrBadSignature   = errors.New("message: signature does not recover to a valid address")
)

// Signer authenticates and verifies byte strings on behalf of the
// consensus core. It is the same collaborator the core package exposes
// to the rest of the system; it lives here too so the codec does not
// need to import core (which would be a cycle).
type Signer interface {
	Sign(data []byte) (Signature, error)
	Recover(sig Signature, data []byte) (view.Address, error)
}

const (
	subjectLen = 8 + 8 + 32 // H || R || Digest
)

func decodeViewPrefix(b []byte) view.View {
	return view.View{
		Height: binary.BigEndian.Uint64(b[0:8]),
		Round:  binary.BigEndian.Uint64(b[8:16]),
	}
}

// EncodeSubject produces the canonical H || R || Digest encoding of a
// Subject.
func EncodeSubject(s Subject) []byte {
	buf := make([]byte, subjectLen)
	binary.BigEndian.PutUint64(buf[0:8], s.View.Height)
	binary.BigEndian.PutUint64(buf[8:16], s.View.Round)
	copy(buf[16:48], s.Digest[:])

	return buf
}

// DecodeSubject parses the canonical Subject encoding.
func DecodeSubject(b []byte) (Subject, error) {
	if len(b) < subjectLen {
		return Subject{}, ErrShortPayload
	}

	var s Subject
	s.View = decodeViewPrefix(b)
	copy(s.Digest[:], b[16:48])

	return s, nil
}

// EncodeProposal produces the canonical H || R || len(Block) || Block
// encoding of a Proposal.
func EncodeProposal(p Proposal) []byte {
	buf := make([]byte, 16+4+len(p.Block))
	binary.BigEndian.PutUint64(buf[0:8], p.View.Height)
	binary.BigEndian.PutUint64(buf[8:16], p.View.Round)
	binary.BigEndian.PutUint32(buf[16:20], uint32(len(p.Block)))
	copy(buf[20:], p.Block)

	return buf
}

// DecodeProposal parses the canonical Proposal encoding.
func DecodeProposal(b []byte) (Proposal, error) {
	if len(b) < 20 {
		return Proposal{}, ErrShortPayload
	}

	var p Proposal
	p.View = decodeViewPrefix(b)

	blockLen := binary.BigEndian.Uint32(b[16:20])
	if uint32(len(b)-20) != blockLen {
		return Proposal{}, ErrLengthMismatch
	}

	p.Block = make([]byte, blockLen)
	copy(p.Block, b[20:])

	return p, nil
}

// signedPrefix returns the canonical bytes a Message's Signature is
// computed over: everything but Signature and CommitSeal themselves.
func signedPrefix(m *Message) []byte {
	buf := make([]byte, 0, 1+4+len(m.Payload)+20)
	buf = append(buf, byte(m.Type))

	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(m.Payload)))
	buf = append(buf, lenBuf...)
	buf = append(buf, m.Payload...)
	buf = append(buf, m.Sender[:]...)

	return buf
}

// Sign signs msg's canonical prefix (type || len(payload) || payload ||
// sender), excluding Signature and CommitSeal, and stores the result in
// msg.Signature.
func Sign(msg *Message, signer Signer) error {
	sig, err := signer.Sign(signedPrefix(msg))
	if err != nil {
		return err
	}

	msg.Signature = sig

	return nil
}

// AddressOf recovers the sender address from msg.Signature over the
// same canonical prefix Sign used. A mismatch between the recovered
// address and msg.Sender is the caller's concern (BadSignature), not
// this function's: AddressOf only ever fails when recovery itself
// fails.
func AddressOf(msg *Message, signer Signer) (view.Address, error) {
	addr, err := signer.Recover(msg.Signature, signedPrefix(msg))
	if err != nil {
		return view.Address{}, ErrBadSignature
	}

	return addr, nil
}

// Encode produces the full wire encoding of a GossipMessage: type ||
// len(payload) || payload || sender || signature ||
// (len(commit_seal) || commit_seal)?.
func Encode(m *Message) []byte {
	buf := signedPrefix(m)
	buf = append(buf, m.Signature[:]...)

	if m.CommitSeal != nil {
		lenBuf := make([]byte, 4)
		binary.BigEndian.PutUint32(lenBuf, uint32(len(m.CommitSeal)))
		buf = append(buf, lenBuf...)
		buf = append(buf, m.CommitSeal[:]...)
	}

	return buf
}

// Decode parses the full wire encoding produced by Encode.
func Decode(b []byte) (*Message, error) {
	if len(b) < 1+4 {
		return nil, ErrShortMessage
	}

	m := &Message{Type: Type(b[0])}
	payloadLen := binary.BigEndian.Uint32(b[1:5])
	offset := 5

	if uint32(len(b)-offset) < payloadLen {
		return nil, ErrShortMessage
	}

	m.Payload = make([]byte, payloadLen)
	copy(m.Payload, b[offset:offset+int(payloadLen)])
	offset += int(payloadLen)

	if len(b)-offset < 20 {
		return nil, ErrShortMessage
	}

	copy(m.Sender[:], b[offset:offset+20])
	offset += 20

	if len(b)-offset < 65 {
		return nil, ErrShortMessage
	}

	copy(m.Signature[:], b[offset:offset+65])
	offset += 65

	if offset == len(b) {
		return m, nil
	}

	if len(b)-offset < 4 {
		return nil, ErrShortMessage
	}

	sealLen := binary.BigEndian.Uint32(b[offset : offset+4])
	offset += 4

	if uint32(len(b)-offset) != sealLen {
		return nil, ErrLengthMismatch
	}

	var seal Signature
	copy(seal[:], b[offset:offset+int(sealLen)])
	m.CommitSeal = &seal

	return m, nil
}
