package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/viewlock/pbft/message"
	"github.com/viewlock/pbft/signer"
	"github.com/viewlock/pbft/view"
)

// TestMain verifies that driving cores directly (as every test below
// does) never leaks a goroutine — in particular that no test
// accidentally exercises Run/Feed against a never-cancelled context.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testLogger struct{}

func (testLogger) Info(string, ...interface{})  {}
func (testLogger) Debug(string, ...interface{}) {}
func (testLogger) Error(string, ...interface{}) {}

// testBlock is a minimal Block: two bytes, a height and a nonce, so
// that two competing proposals at the same height hash differently.
type testBlock struct {
	height uint64
	nonce  byte
}

func (b testBlock) Hash() message.Digest {
	var d message.Digest
	d[0] = byte(b.height)
	d[31] = b.nonce

	return d
}

func (b testBlock) Bytes() []byte {
	return []byte{byte(b.height), b.nonce}
}

func decodeTestBlock(raw []byte) (Block, error) {
	if len(raw) != 2 {
		return nil, ErrInvalidProposal
	}

	return testBlock{height: uint64(raw[0]), nonce: raw[1]}, nil
}

type testBackend struct {
	id         view.Address
	validators *view.ValidatorSet
	nonce      byte
	invalid    bool

	finalized []Block
	seals     [][]message.Signature
}

func (b *testBackend) ID() view.Address                       { return b.id }
func (b *testBackend) ValidatorSet(uint64) *view.ValidatorSet { return b.validators }
func (b *testBackend) Seed(uint64) uint64                     { return 0 }

func (b *testBackend) Propose(_ context.Context, v view.View) (Block, error) {
	return testBlock{height: v.Height, nonce: b.nonce}, nil
}

func (b *testBackend) DecodeBlock(raw []byte) (Block, error) { return decodeTestBlock(raw) }

func (b *testBackend) Validate(Block) error {
	if b.invalid {
		return ErrInvalidProposal
	}

	return nil
}

func (b *testBackend) Finalize(block Block, seals []message.Signature) error {
	b.finalized = append(b.finalized, block)
	b.seals = append(b.seals, seals)

	return nil
}

// recordingBroadcaster is a single-node Broadcaster that just records
// what was sent, for tests that drive one core in isolation.
type recordingBroadcaster struct {
	sent []*message.Message
}

func (r *recordingBroadcaster) Broadcast(msg *message.Message) {
	r.sent = append(r.sent, msg)
}

func (r *recordingBroadcaster) last() *message.Message {
	if len(r.sent) == 0 {
		return nil
	}

	return r.sent[len(r.sent)-1]
}

// network wires a fixed set of cores together synchronously: a
// Broadcast on one core dispatches straight into every other core's
// onMessage, in-stack, standing in for a loopback transport. This
// keeps the multi-node tests deterministic without touching Feed, the
// inbox channel or any timer.
type network struct {
	cores map[view.Address]*Core
}

func newNetwork() *network {
	return &network{cores: make(map[view.Address]*Core)}
}

type netBroadcaster struct {
	self view.Address
	net  *network
}

func (b *netBroadcaster) Broadcast(msg *message.Message) {
	for addr, c := range b.net.cores {
		if addr == b.self {
			continue
		}

		c.onMessage(msg)
	}
}

type testNode struct {
	core    *Core
	backend *testBackend
	signer  *signer.Signer
	addr    view.Address
}

// buildNetwork creates n validators sharing one network, each with its
// own keypair and testBackend, entered at height 1.
func buildNetwork(t *testing.T, n int) ([]testNode, *view.ValidatorSet) {
	t.Helper()

	net := newNetwork()
	nodes := make([]testNode, n)
	addrs := make([]view.Address, n)

	for i := 0; i < n; i++ {
		s, err := signer.Generate()
		require.NoError(t, err)

		nodes[i].signer = s
		nodes[i].addr = s.Address()
		addrs[i] = s.Address()
	}

	vs := view.NewValidatorSet(addrs)

	for i := range nodes {
		backend := &testBackend{id: addrs[i], validators: vs, nonce: byte(i + 1)}
		c := New(testLogger{}, backend, &netBroadcaster{self: addrs[i], net: net}, nodes[i].signer, DefaultConfig())

		nodes[i].backend = backend
		nodes[i].core = c
		net.cores[addrs[i]] = c
	}

	for _, n := range nodes {
		n.core.enterNewHeight(1)
	}

	return nodes, vs
}

func proposerOf(t *testing.T, nodes []testNode, vs *view.ValidatorSet, round uint64) testNode {
	t.Helper()

	p := vs.Proposer(0, round)

	for _, n := range nodes {
		if n.addr == p.Address {
			return n
		}
	}

	t.Fatalf("no node matches proposer address")

	return testNode{}
}

// TestHappyPathFourValidators is scenario S1: every validator reaches
// FinalCommitted with a 4-signature quorum certificate after a single
// round with no faults.
func TestHappyPathFourValidators(t *testing.T) {
	nodes, vs := buildNetwork(t, 4)
	proposer := proposerOf(t, nodes, vs, 0)

	proposer.core.proposeAsLeader(context.Background())

	for _, n := range nodes {
		assert.Equal(t, StateFinalCommitted, n.core.State())
		require.Len(t, n.backend.finalized, 1)
		assert.Len(t, n.backend.seals[0], 4)
		assert.Equal(t, proposer.backend.nonce, n.backend.finalized[0].(testBlock).nonce)
	}
}

// TestDuplicatePrepareDoesNotInflateQuorum is scenario S2: a Byzantine
// validator resending the same Prepare twice (or a gossip relay
// handing a validator its own message back) must not count twice
// toward the 2/3 threshold.
func TestDuplicatePrepareDoesNotInflateQuorum(t *testing.T) {
	nodes, vs := buildNetwork(t, 4)
	proposer := proposerOf(t, nodes, vs, 0)

	var replica testNode
	for _, n := range nodes {
		if n.addr != proposer.addr {
			replica = n
			break
		}
	}

	block := testBlock{height: 1, nonce: proposer.backend.nonce}
	sub := message.Subject{View: view.View{Height: 1, Round: 0}, Digest: block.Hash()}

	proposal := &message.Proposal{View: sub.View, Block: block.Bytes()}
	preprepare := &message.Message{
		Type:    message.TypePreprepare,
		Payload: message.EncodeProposal(*proposal),
		Sender:  proposer.addr,
	}
	require.NoError(t, message.Sign(preprepare, proposer.signer))

	replica.core.onMessage(preprepare)
	require.Equal(t, StatePreprepared, replica.core.State())

	prepareMsg := &message.Message{
		Type:    message.TypePrepare,
		Payload: message.EncodeSubject(sub),
		Sender:  proposer.addr,
	}
	require.NoError(t, message.Sign(prepareMsg, proposer.signer))

	replica.core.handlePrepare(prepareMsg)
	assert.Equal(t, 1, replica.core.rs.prepares.Len())

	replica.core.handlePrepare(prepareMsg)
	assert.Equal(t, 1, replica.core.rs.prepares.Len(), "duplicate prepare must not be recorded twice")

	selfRelay := &message.Message{
		Type:    message.TypePrepare,
		Payload: message.EncodeSubject(sub),
		Sender:  replica.addr,
	}
	require.NoError(t, message.Sign(selfRelay, replica.signer))

	replica.core.handlePrepare(selfRelay)
	assert.Equal(t, 1, replica.core.rs.prepares.Len(), "own prepare relayed back must never be recorded")
	assert.False(t, replica.core.rs.prepares.Contains(replica.addr))
}

// TestPrepareRejectsWrongDigest is scenario S3: a Prepare whose Subject
// names a different digest than the accepted proposal is rejected
// outright and never reaches the collector.
func TestPrepareRejectsWrongDigest(t *testing.T) {
	nodes, vs := buildNetwork(t, 4)
	proposer := proposerOf(t, nodes, vs, 0)

	var replica testNode
	for _, n := range nodes {
		if n.addr != proposer.addr {
			replica = n
			break
		}
	}

	block := testBlock{height: 1, nonce: proposer.backend.nonce}
	proposal := &message.Proposal{View: view.View{Height: 1, Round: 0}, Block: block.Bytes()}
	preprepare := &message.Message{
		Type:    message.TypePreprepare,
		Payload: message.EncodeProposal(*proposal),
		Sender:  proposer.addr,
	}
	require.NoError(t, message.Sign(preprepare, proposer.signer))
	replica.core.onMessage(preprepare)

	wrongSub := message.Subject{View: view.View{Height: 1, Round: 0}, Digest: message.Digest{0xff}}
	forged := &message.Message{
		Type:    message.TypePrepare,
		Payload: message.EncodeSubject(wrongSub),
		Sender:  nodes[2].addr,
	}
	require.NoError(t, message.Sign(forged, nodes[2].signer))

	replica.core.handlePrepare(forged)
	assert.Equal(t, 0, replica.core.rs.prepares.Len())
}

// TestRoundTimeoutAdvancesOnQuorum is scenario S4: once 2F+1 validators
// have sent RoundChange for the same target round, every one of them
// (including the one still waiting on its own round timer) advances
// the view and restarts with backed-off timing.
func TestRoundTimeoutAdvancesOnQuorum(t *testing.T) {
	nodes, vs := buildNetwork(t, 4)

	for _, n := range nodes[:3] {
		n.core.onRoundTimeout()
	}

	for _, n := range nodes {
		assert.Equal(t, view.View{Height: 1, Round: 1}, n.core.View(), "node %s", n.addr.String())
		assert.Equal(t, uint64(1), n.core.consecutiveRoundChanges)
	}

	_ = vs
}

// TestLockPreservedAcrossRoundChange is scenario S5: a validator that
// reached Prepared (and thus locked a digest) before a round change
// rejects a differently-hashed re-proposal in the new round, but
// accepts a re-proposal carrying the exact locked digest. The replica is
// neither the round-0 nor the round-1 proposer, so it receives the new
// round's proposals instead of making one itself.
func TestLockPreservedAcrossRoundChange(t *testing.T) {
	nodes, vs := buildNetwork(t, 4)
	proposer := proposerOf(t, nodes, vs, 0)

	var replica testNode
	for _, n := range nodes {
		if n.addr != proposer.addr && n.addr != vs.Proposer(0, 1).Address {
			replica = n
			break
		}
	}

	lockedBlock := testBlock{height: 1, nonce: proposer.backend.nonce}
	replica.core.rs.setProposal(nil, nil, lockedBlock)
	replica.core.rs.lockHash()
	require.NotNil(t, replica.core.rs.lockedHash)

	replica.core.moveToNewRound(1)
	require.Equal(t, uint64(1), replica.core.View().Round)
	require.NotNil(t, replica.core.rs.lockedHash)

	otherProposer := vs.Proposer(0, 1)
	var otherSigner *signer.Signer

	for _, n := range nodes {
		if n.addr == otherProposer.Address {
			otherSigner = n.signer
		}
	}
	require.NotNil(t, otherSigner)

	conflicting := testBlock{height: 1, nonce: lockedBlock.nonce + 99}
	badProposal := &message.Proposal{View: replica.core.View(), Block: conflicting.Bytes()}
	badMsg := &message.Message{
		Type:    message.TypePreprepare,
		Payload: message.EncodeProposal(*badProposal),
		Sender:  otherProposer.Address,
	}
	require.NoError(t, message.Sign(badMsg, otherSigner))

	replica.core.handlePreprepare(badMsg)
	assert.Nil(t, replica.core.rs.proposalMsg, "proposal conflicting with the lock must be rejected")

	goodProposal := &message.Proposal{View: replica.core.View(), Block: lockedBlock.Bytes()}
	goodMsg := &message.Message{
		Type:    message.TypePreprepare,
		Payload: message.EncodeProposal(*goodProposal),
		Sender:  otherProposer.Address,
	}
	require.NoError(t, message.Sign(goodMsg, otherSigner))

	replica.core.handlePreprepare(goodMsg)
	require.NotNil(t, replica.core.rs.proposalMsg, "re-proposal matching the lock must be accepted")
	assert.Equal(t, lockedBlock.Hash(), replica.core.rs.block.Hash())
}

// TestCommitRejectsForgedSeal is scenario S6: a commit seal that
// recovers to an address other than the message's claimed sender is
// rejected, and never contributes to the commit quorum.
func TestCommitRejectsForgedSeal(t *testing.T) {
	nodes, vs := buildNetwork(t, 4)
	proposer := proposerOf(t, nodes, vs, 0)

	target := nodes[0]
	if target.addr == proposer.addr {
		target = nodes[1]
	}

	block := testBlock{height: 1, nonce: proposer.backend.nonce}
	target.core.rs.setProposal(&message.Message{}, &message.Proposal{}, block)
	sub := *target.core.rs.subject()

	impostor := nodes[2]
	if impostor.addr == target.addr || impostor.addr == proposer.addr {
		impostor = nodes[3]
	}

	forgedSeal, err := impostor.signer.Sign(sub.Digest[:])
	require.NoError(t, err)

	forged := &message.Message{
		Type:       message.TypeCommit,
		Payload:    message.EncodeSubject(sub),
		Sender:     proposer.addr, // claims to be the proposer
		CommitSeal: &forgedSeal,   // but the seal recovers to impostor
	}
	require.NoError(t, message.Sign(forged, proposer.signer))

	target.core.handleCommit(forged)
	assert.Equal(t, 0, target.core.rs.commits.Len())

	sealless := &message.Message{
		Type:    message.TypeCommit,
		Payload: message.EncodeSubject(sub),
		Sender:  nodes[2].addr,
	}
	require.NoError(t, message.Sign(sealless, nodes[2].signer))

	target.core.handleCommit(sealless)
	assert.Equal(t, 0, target.core.rs.commits.Len(), "a commit without a seal must be rejected")
}
