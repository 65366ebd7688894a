// Package conn holds per-connection state: a growable read scratch, a
// pending write queue, the socket file descriptor, and a role annotation,
// plus the replication handshake state machine threaded through it. The
// epoll reactor in internal/eventloop owns the raw fd directly, so the
// buffers here are plain byte slices rather than a net.Conn-and-bufio
// pair.
package conn

import (
	"redislite/internal/replicate"
)

// Role annotates what a connection is for. A connection starts as
// RoleClient or RoleUpstreamMaster (depending on which side initiated it)
// and, for clients that perform the replica handshake, moves through
// RoleClient → RoleReplicaHandshake → RoleConnectedReplica as its
// replicate.State advances.
type Role int

const (
	// RoleClient is an ordinary RESP client: issues requests, reads
	// replies, never receives propagated writes.
	RoleClient Role = iota
	// RoleReplicaHandshake is a connection mid-handshake on the master
	// side: it has sent at least PING but has not yet reached
	// ConnectedReplica.
	RoleReplicaHandshake
	// RoleConnectedReplica is a fully handshaked replica connection on
	// the master side: it receives the propagation fan-out.
	RoleConnectedReplica
	// RoleUpstreamMaster is the replica's own outbound connection to
	// its configured master.
	RoleUpstreamMaster
)

// initialReadBufferSize is the read scratch's starting capacity. The
// buffer grows on demand rather than closing the connection at a small
// fixed size, since RESP arrays (e.g. a multi-bulk SET with a large
// value) routinely exceed a few hundred bytes in normal operation.
const initialReadBufferSize = 4096

// maxReadBufferSize bounds how far the read scratch is allowed to grow
// before a connection is judged pathological and closed with
// ErrMessageTooLarge.
const maxReadBufferSize = 16 * 1024 * 1024

// Conn is one TCP session's state, owned exclusively by the event loop
// goroutine that accepted or dialed it. Fd is the raw socket descriptor the
// epoll reactor polls on.
type Conn struct {
	Fd   int
	Role Role

	// read is the accumulation buffer for bytes recv'd but not yet fully
	// consumed by the parser: read[readStart:readEnd] holds unparsed
	// input. A successful Parse advances readStart; a Truncated result
	// leaves it in place so the next recv's bytes land after readEnd.
	read      []byte
	readStart int
	readEnd   int

	// write is the pending bytes not yet flushed to the socket. send()
	// completions drain from the front; dispatch appends to the back.
	write []byte

	// Repl is nil until the connection's first PING as a replica
	// candidate; see internal/replicate.
	Repl *replicate.State

	// closing is set once the connection has been handed to Close, so a
	// completion that races the close doesn't re-enter dispatch.
	closing bool

	// OnDrain, if set, fires once after the write queue transitions from
	// non-empty to empty (a send completion that flushes everything
	// pending). The PSYNC handshake arms this to advance
	// ReceivingSync -> ConnectedReplica only once the FULLRESYNC reply
	// and RDB frame have actually reached the socket.
	OnDrain func()
}

// New wraps fd in a freshly allocated Conn with an empty read/write state.
func New(fd int, role Role) *Conn {
	return &Conn{
		Fd:   fd,
		Role: role,
		read: make([]byte, initialReadBufferSize),
	}
}

// Pending reports the unparsed bytes currently buffered.
func (c *Conn) Pending() []byte {
	return c.read[c.readStart:c.readEnd]
}

// Consume advances past n bytes of the unparsed region, called after a
// successful resp.Parse. When the buffer is fully drained it resets to the
// front so repeated small messages don't walk the buffer to its cap.
func (c *Conn) Consume(n int) {
	c.readStart += n
	if c.readStart == c.readEnd {
		c.readStart, c.readEnd = 0, 0
	}
}

// ErrMessageTooLarge is returned by Append when growing the read buffer
// past maxReadBufferSize would be required to hold a new recv.
var ErrMessageTooLarge = messageTooLargeError{}

type messageTooLargeError struct{}

func (messageTooLargeError) Error() string { return "conn: message exceeds maximum buffer size" }

// Append copies chunk onto the end of the unparsed region, growing (and, if
// needed, compacting) the read buffer first. It returns ErrMessageTooLarge
// rather than growing past maxReadBufferSize.
func (c *Conn) Append(chunk []byte) error {
	if err := c.ensureTail(len(chunk)); err != nil {
		return err
	}
	c.readEnd += copy(c.read[c.readEnd:], chunk)
	return nil
}

// ensureTail makes room for at least n more bytes after readEnd, compacting
// the unparsed region to the front and then growing the buffer as needed.
func (c *Conn) ensureTail(n int) error {
	need := c.readEnd + n
	if need <= len(c.read) {
		return nil
	}
	if c.readStart > 0 {
		copy(c.read, c.read[c.readStart:c.readEnd])
		c.readEnd -= c.readStart
		c.readStart = 0
		need = c.readEnd + n
	}
	if need <= len(c.read) {
		return nil
	}
	newCap := len(c.read) * 2
	if newCap < need {
		newCap = need
	}
	if newCap > maxReadBufferSize {
		if need > maxReadBufferSize {
			return ErrMessageTooLarge
		}
		newCap = maxReadBufferSize
	}
	grown := make([]byte, newCap)
	copy(grown, c.read[:c.readEnd])
	c.read = grown
	return nil
}

// ReadScratch exposes the tail capacity after readEnd for the event loop's
// recv(2) to read directly into, avoiding an intermediate copy for the
// common case where no grow is needed. A full buffer is grown first so the
// returned slice is never empty; nil means the buffer is at its hard cap
// and the connection should be closed with ErrMessageTooLarge.
func (c *Conn) ReadScratch() []byte {
	if c.readEnd == len(c.read) {
		if err := c.ensureTail(1); err != nil {
			return nil
		}
	}
	return c.read[c.readEnd:]
}

// CommitRead records that n bytes landed in the slice ReadScratch returned.
func (c *Conn) CommitRead(n int) {
	c.readEnd += n
}

// Enqueue appends bytes to the pending write queue, to be flushed by the
// event loop's send(2) completions.
func (c *Conn) Enqueue(b []byte) {
	c.write = append(c.write, b...)
}

// PendingWrite returns the bytes not yet flushed to the socket.
func (c *Conn) PendingWrite() []byte {
	return c.write
}

// DiscardWritten removes the first n bytes of the pending write queue after
// a successful send(2) of n bytes, firing OnDrain once the queue empties.
func (c *Conn) DiscardWritten(n int) {
	c.write = c.write[:copy(c.write, c.write[n:])]
	if len(c.write) == 0 && c.OnDrain != nil {
		drain := c.OnDrain
		c.OnDrain = nil
		drain()
	}
}

// HasPendingWrite reports whether any bytes remain queued to send.
func (c *Conn) HasPendingWrite() bool {
	return len(c.write) > 0
}

// Closing reports whether Close has already been called for this
// connection, so a racing completion can no-op instead of double-closing.
func (c *Conn) Closing() bool {
	return c.closing
}

// MarkClosing flags the connection so further completions are ignored.
func (c *Conn) MarkClosing() {
	c.closing = true
}
