package conn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndConsume(t *testing.T) {
	c := New(0, RoleClient)
	require.NoError(t, c.Append([]byte("hello")))
	assert.Equal(t, "hello", string(c.Pending()))

	c.Consume(2)
	assert.Equal(t, "llo", string(c.Pending()))

	c.Consume(3)
	assert.Equal(t, "", string(c.Pending()), "fully draining must reset to the front of the buffer")
}

func TestAppendGrowsPastInitialCapacity(t *testing.T) {
	c := New(0, RoleClient)
	big := make([]byte, initialReadBufferSize*3)
	for i := range big {
		big[i] = byte('a' + i%26)
	}
	require.NoError(t, c.Append(big))
	assert.Equal(t, string(big), string(c.Pending()))
}

func TestReadScratchGrowsWhenBufferIsExactlyFull(t *testing.T) {
	c := New(0, RoleClient)
	require.NoError(t, c.Append(make([]byte, initialReadBufferSize)))

	scratch := c.ReadScratch()
	assert.NotEmpty(t, scratch, "a full buffer must grow, not hand recv a zero-length slice")
}

func TestAppendRejectsOversizedMessage(t *testing.T) {
	c := New(0, RoleClient)
	tooBig := make([]byte, maxReadBufferSize+1)
	err := c.Append(tooBig)
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestEnqueueAndDiscardWritten(t *testing.T) {
	c := New(0, RoleClient)
	c.Enqueue([]byte("abc"))
	c.Enqueue([]byte("def"))
	assert.Equal(t, "abcdef", string(c.PendingWrite()))

	c.DiscardWritten(2)
	assert.Equal(t, "cdef", string(c.PendingWrite()))
	assert.True(t, c.HasPendingWrite())

	c.DiscardWritten(4)
	assert.False(t, c.HasPendingWrite())
}

func TestOnDrainFiresOnceWriteQueueEmpties(t *testing.T) {
	c := New(0, RoleClient)
	fired := 0
	c.OnDrain = func() { fired++ }

	c.Enqueue([]byte("xyz"))
	c.DiscardWritten(1)
	assert.Equal(t, 0, fired, "must not fire while bytes remain queued")

	c.DiscardWritten(2)
	assert.Equal(t, 1, fired)

	// OnDrain is a one-shot hook; further drains don't re-fire it.
	c.Enqueue([]byte("a"))
	c.DiscardWritten(1)
	assert.Equal(t, 1, fired)
}
