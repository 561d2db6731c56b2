// Package signer provides the default secp256k1-based implementation of
// the core's Signer collaborator: sign, recover and verify over
// arbitrary byte strings, plus the address derivation the rest of the
// system uses to identify validators.
package signer

import (
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/viewlock/pbft/message"
	"github.com/viewlock/pbft/view"
	"golang.org/x/crypto/sha3"
)

// ErrBadSignature is returned by Verify when the recovered address
// does not match the claimed signer, and by Recover when the
// signature does not recover to a usable public key.
var ErrBadSignature = errors.New("signer: signature does not recover to the claimed address")

// Signer signs and recovers secp256k1 signatures for a single
// validator keypair. It is read-only after construction, matching the
// "validator keypair is read-only after init" resource rule (§5).
type Signer struct {
	key     *secp256k1.PrivateKey
	address view.Address
}

// New derives a Signer (and its address) from a secp256k1 private key.
func New(key *secp256k1.PrivateKey) *Signer {
	return &Signer{key: key, address: AddressFromPublicKey(key.PubKey())}
}

// Generate creates a fresh signer backed by a random secp256k1 key,
// primarily for tests and local development validator sets.
func Generate() (*Signer, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	return New(key), nil
}

// Address returns the address this signer signs on behalf of.
func (s *Signer) Address() view.Address {
	return s.address
}

// Sign produces a 65-byte recoverable signature (r || s || v) over
// Keccak256(data).
func (s *Signer) Sign(data []byte) (message.Signature, error) {
	compact := ecdsa.SignCompact(s.key, Keccak256(data), false)

	return compactToRSV(compact), nil
}

// Recover returns the address whose key produced sig over
// Keccak256(data).
func (s *Signer) Recover(sig message.Signature, data []byte) (view.Address, error) {
	pub, _, err := ecdsa.RecoverCompact(rsvToCompact(sig), Keccak256(data))
	if err != nil {
		return view.Address{}, ErrBadSignature
	}

	return AddressFromPublicKey(pub), nil
}

// Verify checks that sig over data was produced by addr's key.
func (s *Signer) Verify(addr view.Address, sig message.Signature, data []byte) error {
	recovered, err := s.Recover(sig, data)
	if err != nil {
		return err
	}

	if recovered != addr {
		return ErrBadSignature
	}

	return nil
}

// compactToRSV converts btcec/decred's compact signature layout
// (header byte || r || s) into the wire Signature layout (r || s ||
// v), where v is carried as the original header byte so RecoverCompact
// can be handed it back unchanged.
func compactToRSV(compact []byte) message.Signature {
	var sig message.Signature
	copy(sig[0:32], compact[1:33])
	copy(sig[32:64], compact[33:65])
	sig[64] = compact[0]

	return sig
}

func rsvToCompact(sig message.Signature) []byte {
	compact := make([]byte, 65)
	compact[0] = sig[64]
	copy(compact[1:33], sig[0:32])
	copy(compact[33:65], sig[32:64])

	return compact
}

// Keccak256 hashes data with Keccak-256 (not NIST SHA3-256), matching
// the hash function used throughout the go-ethereum family for both
// address derivation and block digests.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}

	return h.Sum(nil)
}

// AddressFromPublicKey derives a 20-byte address as the low 20 bytes of
// Keccak256 over the uncompressed public key's X||Y coordinates.
func AddressFromPublicKey(pub *secp256k1.PublicKey) view.Address {
	uncompressed := pub.SerializeUncompressed()
	hash := Keccak256(uncompressed[1:]) // drop the 0x04 prefix byte

	var addr view.Address
	copy(addr[:], hash[len(hash)-20:])

	return addr
}
