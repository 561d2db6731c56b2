package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viewlock/pbft/view"
)

func testValidatorSet(n int) (*view.ValidatorSet, []view.Address) {
	addrs := make([]view.Address, n)
	for i := range addrs {
		var a view.Address
		a[19] = byte(i + 1)
		addrs[i] = a
	}

	return view.NewValidatorSet(addrs), addrs
}

func TestSetAddAndDuplicate(t *testing.T) {
	vs, addrs := testValidatorSet(3)
	s := NewSet(vs)

	m1 := &Message{Type: TypePrepare, Sender: addrs[0]}
	require.NoError(t, s.Add(m1))
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Contains(addrs[0]))

	m1Again := &Message{Type: TypePrepare, Sender: addrs[0]}
	err := s.Add(m1Again)
	require.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, 1, s.Len(), "duplicate must not increment count")
}

func TestSetRejectsUnknownSender(t *testing.T) {
	vs, _ := testValidatorSet(2)
	s := NewSet(vs)

	var stranger view.Address
	stranger[19] = 0xff

	err := s.Add(&Message{Type: TypeCommit, Sender: stranger})
	require.ErrorIs(t, err, ErrUnknownSender)
	assert.Equal(t, 0, s.Len())
}

func TestSetValuesPreserveInsertionOrder(t *testing.T) {
	vs, addrs := testValidatorSet(3)
	s := NewSet(vs)

	require.NoError(t, s.Add(&Message{Sender: addrs[2]}))
	require.NoError(t, s.Add(&Message{Sender: addrs[0]}))
	require.NoError(t, s.Add(&Message{Sender: addrs[1]}))

	values := s.Values()
	require.Len(t, values, 3)
	assert.Equal(t, addrs[2], values[0].Sender)
	assert.Equal(t, addrs[0], values[1].Sender)
	assert.Equal(t, addrs[1], values[2].Sender)
}

func TestSetCommitSeals(t *testing.T) {
	vs, addrs := testValidatorSet(2)
	s := NewSet(vs)

	var seal Signature
	seal[0] = 7

	require.NoError(t, s.Add(&Message{Sender: addrs[0], CommitSeal: &seal}))

	seals, err := s.CommitSeals()
	require.NoError(t, err)
	require.Len(t, seals, 1)
	assert.Equal(t, seal, seals[0])

	require.NoError(t, s.Add(&Message{Sender: addrs[1]}))
	_, err = s.CommitSeals()
	require.ErrorIs(t, err, ErrMissingSealInSet)
}
