package eventloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"redislite/internal/conn"
	"redislite/internal/logging"
)

// newTestLoop builds a reactor around one end of a socketpair standing in
// for the listening socket; nothing ever arrives on it, so the loop's
// accept path stays quiet and tests can drive individual connections.
func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	l, err := New(fds[0], Callbacks{}, logging.Noop())
	require.NoError(t, err)
	t.Cleanup(func() {
		l.Close()
		unix.Close(fds[1])
	})
	return l
}

// A connection that is idle on the wire (a handshaked replica) never
// produces an epoll event of its own, so bytes enqueued on it from
// another connection's dispatch must be pushed out via QueueWrite.
func TestQueueWriteFlushesIdleConnection(t *testing.T) {
	l := newTestLoop(t)

	pair, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(pair[1])
	require.NoError(t, unix.SetNonblock(pair[0], true))

	c := conn.New(pair[0], conn.RoleConnectedReplica)
	require.NoError(t, l.Adopt(c))

	payload := []byte("*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n")
	c.Enqueue(payload)
	l.QueueWrite(c)

	assert.False(t, c.HasPendingWrite(), "QueueWrite must flush everything the socket will take")

	buf := make([]byte, 128)
	n, err := unix.Read(pair[1], buf)
	require.NoError(t, err)
	assert.Equal(t, string(payload), string(buf[:n]))
}

func TestQueueWriteIsANoOpWithNothingPending(t *testing.T) {
	l := newTestLoop(t)

	pair, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(pair[1])
	require.NoError(t, unix.SetNonblock(pair[0], true))

	c := conn.New(pair[0], conn.RoleConnectedReplica)
	require.NoError(t, l.Adopt(c))

	l.QueueWrite(c)
	assert.False(t, c.Closing())
}
