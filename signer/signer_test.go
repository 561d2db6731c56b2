package signer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndRecoverRoundTrip(t *testing.T) {
	s, err := Generate()
	require.NoError(t, err)

	data := []byte("preprepare payload for height 1 round 0")

	sig, err := s.Sign(data)
	require.NoError(t, err)

	recovered, err := s.Recover(sig, data)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), recovered)
}

func TestVerifyRejectsWrongSigner(t *testing.T) {
	alice, err := Generate()
	require.NoError(t, err)

	bob, err := Generate()
	require.NoError(t, err)

	data := []byte("commit digest bytes")

	sig, err := alice.Sign(data)
	require.NoError(t, err)

	err = alice.Verify(bob.Address(), sig, data)
	assert.ErrorIs(t, err, ErrBadSignature)

	err = alice.Verify(alice.Address(), sig, data)
	assert.NoError(t, err)
}

func TestVerifyRejectsTamperedData(t *testing.T) {
	s, err := Generate()
	require.NoError(t, err)

	sig, err := s.Sign([]byte("original"))
	require.NoError(t, err)

	err = s.Verify(s.Address(), sig, []byte("tampered"))
	assert.Error(t, err)
}
