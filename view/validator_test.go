package view

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addrN(n byte) Address {
	var a Address
	a[19] = n

	return a
}

func TestTwoThirdsMajorityBoundaries(t *testing.T) {
	cases := []struct {
		n        int
		expected int
	}{
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 3},
		{5, 4},
		{6, 4},
		{7, 5},
	}

	for _, c := range cases {
		addrs := make([]Address, c.n)
		for i := range addrs {
			addrs[i] = addrN(byte(i + 1))
		}

		vs := NewValidatorSet(addrs)
		assert.Equal(t, c.expected, vs.TwoThirdsMajority(), "n=%d", c.n)
	}
}

func TestProposerRoundRobin(t *testing.T) {
	vs := NewValidatorSet([]Address{addrN(1), addrN(2), addrN(3), addrN(4)})

	require.Equal(t, vs.List()[0], vs.Proposer(0, 0))
	require.Equal(t, vs.List()[1], vs.Proposer(0, 1))
	require.Equal(t, vs.List()[2], vs.Proposer(0, 2))
	require.Equal(t, vs.List()[0], vs.Proposer(0, 4))

	// a non-zero seed rotates the starting proposer deterministically.
	require.Equal(t, vs.List()[2], vs.Proposer(2, 0))
}

func TestCheckMessage(t *testing.T) {
	a, b := addrN(1), addrN(2)
	vs := NewValidatorSet([]Address{a, b})

	current := View{Height: 5, Round: 1}

	assert.Equal(t, CheckOK, vs.CheckMessage(current, View{Height: 5, Round: 1}, a))
	assert.Equal(t, CheckFuture, vs.CheckMessage(current, View{Height: 5, Round: 2}, a))
	assert.Equal(t, CheckFuture, vs.CheckMessage(current, View{Height: 6, Round: 0}, a))
	assert.Equal(t, CheckStale, vs.CheckMessage(current, View{Height: 4, Round: 9}, a))
	assert.Equal(t, CheckNotMember, vs.CheckMessage(current, current, addrN(9)))
}

func TestViewOrdering(t *testing.T) {
	assert.True(t, (View{Height: 1, Round: 0}).Less(View{Height: 1, Round: 1}))
	assert.True(t, (View{Height: 1, Round: 5}).Less(View{Height: 2, Round: 0}))
	assert.False(t, (View{Height: 2, Round: 0}).Less(View{Height: 1, Round: 5}))
	assert.True(t, (View{Height: 3, Round: 2}).Equal(View{Height: 3, Round: 2}))
}
