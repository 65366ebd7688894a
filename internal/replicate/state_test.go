package replicate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshakeHappyPath(t *testing.T) {
	s := New()
	require.NoError(t, s.OnPing())
	assert.Equal(t, InitialPing, s.Phase)

	require.NoError(t, s.OnReplconfListeningPort(6380))
	assert.Equal(t, FirstReplconf, s.Phase)
	assert.Equal(t, 6380, s.Port)

	require.NoError(t, s.OnReplconfCapa("psync2"))
	assert.Equal(t, SecondReplconf, s.Phase)

	require.NoError(t, s.OnPsync())
	assert.Equal(t, ReceivingSync, s.Phase)
	assert.False(t, s.IsConnectedReplica())

	require.NoError(t, s.OnRDBSent())
	assert.Equal(t, ConnectedReplica, s.Phase)
	assert.True(t, s.IsConnectedReplica())
}

func TestHandshakeRejectsSkippedSteps(t *testing.T) {
	s := New()
	err := s.OnReplconfListeningPort(6380)
	assert.ErrorIs(t, err, ErrHandshakeViolation)
	assert.Equal(t, None, s.Phase, "a rejected transition must not advance the phase")
}

func TestHandshakeRejectsOutOfOrderPsync(t *testing.T) {
	s := New()
	require.NoError(t, s.OnPing())
	require.NoError(t, s.OnReplconfListeningPort(6380))
	err := s.OnPsync()
	assert.ErrorIs(t, err, ErrHandshakeViolation)
	assert.Equal(t, FirstReplconf, s.Phase)
}

func TestHandshakeRejectsRepeatedPing(t *testing.T) {
	s := New()
	require.NoError(t, s.OnPing())
	err := s.OnPing()
	assert.ErrorIs(t, err, ErrHandshakeViolation)
}

func TestNilStateIsNotConnectedReplica(t *testing.T) {
	var s *State
	assert.False(t, s.IsConnectedReplica())
}
