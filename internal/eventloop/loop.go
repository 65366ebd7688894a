// Package eventloop implements a single-threaded cooperative scheduler
// over accept/recv/send/close completions: one epoll instance, one
// goroutine, a connections map keyed by fd.
//
// Suspension happens only on epoll_wait; parsing, dispatch, and
// serialization (handled by the Callbacks below) run to completion
// synchronously between wakeups.
package eventloop

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"redislite/internal/conn"
)

// Callbacks are the dispatcher hooks the loop invokes on each completion.
// The loop itself knows nothing about RESP or replication; it only owns
// fd lifecycle and buffer plumbing, matching the C4/C5 vs. C6/C7 split.
type Callbacks struct {
	// OnAccept is called once per accepted connection, with the new,
	// already-registered *conn.Conn. Returning a non-nil error closes
	// the connection immediately (used for e.g. a max-connections cap).
	OnAccept func(c *conn.Conn) error
	// OnReadable is called after new bytes have been appended to c's read
	// buffer. The callback parses and dispatches as many complete
	// messages as are available and enqueues replies via c.Enqueue. A
	// non-nil error (protocol or handshake violation) closes c.
	OnReadable func(c *conn.Conn) error
	// OnClosed is called once a connection's fd has actually been
	// closed and removed from the loop, for any teardown bookkeeping
	// (e.g. removing it from the propagation set).
	OnClosed func(c *conn.Conn)
}

// Loop is the single-goroutine epoll reactor. No field here is touched
// from any other goroutine.
type Loop struct {
	epfd     int
	listenFd int
	conns    map[int]*conn.Conn
	cb       Callbacks
	log      *zap.SugaredLogger
}

// New creates a reactor around an already-listening, non-blocking socket
// (see Listen) and the given callback set.
func New(listenFd int, cb Callbacks, log *zap.SugaredLogger) (*Loop, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	l := &Loop{
		epfd:     epfd,
		listenFd: listenFd,
		conns:    make(map[int]*conn.Conn),
		cb:       cb,
		log:      log,
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, listenFd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(listenFd),
	}); err != nil {
		unix.Close(epfd)
		return nil, err
	}
	return l, nil
}

// pollTimeoutMs bounds each epoll_wait call so Run can observe ctx
// cancellation without a dedicated wakeup fd; there is no per-operation
// timeout on individual completions, only this outer poll budget.
const pollTimeoutMs = 500

// Run drives the reactor until ctx is canceled or an unrecoverable poller
// error occurs. It is the loop's only suspension point: everything else
// below runs to completion synchronously.
func (l *Loop) Run(ctx context.Context) error {
	events := make([]unix.EpollEvent, 128)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		n, err := unix.EpollWait(l.epfd, events, pollTimeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		for i := 0; i < n; i++ {
			ev := events[i]
			fd := int(ev.Fd)
			if fd == l.listenFd {
				l.acceptLoop()
				continue
			}
			c, ok := l.conns[fd]
			if !ok {
				continue
			}
			if ev.Events&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
				l.closeConn(c)
				continue
			}
			if ev.Events&unix.EPOLLOUT != 0 {
				if !l.flush(c) {
					continue
				}
			}
			if ev.Events&unix.EPOLLIN != 0 {
				l.readConn(c)
			}
		}
	}
}

// acceptLoop drains every connection currently queued on the listening
// socket, per the reactor convention of accepting until EAGAIN rather
// than once per wakeup (edge- and level-triggered epoll both permit
// this; it just means one fewer wakeup under a connection burst).
func (l *Loop) acceptLoop() {
	for {
		fd, _, err := unix.Accept4(l.listenFd, unix.SOCK_NONBLOCK)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return
			}
			l.log.Warnw("accept failed", "error", err)
			return
		}
		c := conn.New(fd, conn.RoleClient)
		if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
			Events: unix.EPOLLIN,
			Fd:     int32(fd),
		}); err != nil {
			l.log.Warnw("epoll add failed", "fd", fd, "error", err)
			unix.Close(fd)
			continue
		}
		l.conns[fd] = c
		if l.cb.OnAccept != nil {
			if err := l.cb.OnAccept(c); err != nil {
				l.closeConn(c)
				continue
			}
		}
		l.log.Debugw("accepted connection", "fd", fd)
	}
}

// readConn drains fd into c's read buffer and hands control to
// OnReadable after each recv, so every recv completion drives
// parse+dispatch before the loop suspends again.
func (l *Loop) readConn(c *conn.Conn) {
	for {
		scratch := c.ReadScratch()
		if scratch == nil {
			l.log.Warnw("message too large, closing", "fd", c.Fd)
			l.closeConn(c)
			return
		}
		n, err := unix.Read(c.Fd, scratch)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				break
			}
			l.closeConn(c)
			return
		}
		if n == 0 {
			l.closeConn(c)
			return
		}
		c.CommitRead(n)

		if l.cb.OnReadable != nil {
			if err := l.cb.OnReadable(c); err != nil {
				l.closeConn(c)
				return
			}
		}
		if c.Closing() {
			return
		}
		if c.HasPendingWrite() {
			l.armWrite(c)
			if !l.flush(c) {
				return
			}
		}
		if n < len(scratch) {
			// Short read: the socket had no more buffered bytes right
			// now; wait for the next EPOLLIN instead of looping on
			// EAGAIN ourselves.
			break
		}
	}
}

// flush writes as much of c's pending queue as the socket will currently
// accept. It returns false if c was closed during the attempt.
func (l *Loop) flush(c *conn.Conn) bool {
	for c.HasPendingWrite() {
		n, err := unix.Write(c.Fd, c.PendingWrite())
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return true
			}
			l.closeConn(c)
			return false
		}
		c.DiscardWritten(n)
	}
	l.disarmWrite(c)
	return true
}

func (l *Loop) armWrite(c *conn.Conn) {
	_ = unix.EpollCtl(l.epfd, unix.EPOLL_CTL_MOD, c.Fd, &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLOUT,
		Fd:     int32(c.Fd),
	})
}

func (l *Loop) disarmWrite(c *conn.Conn) {
	_ = unix.EpollCtl(l.epfd, unix.EPOLL_CTL_MOD, c.Fd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(c.Fd),
	})
}

// closeConn is the close completion: remove from the poller, close the
// fd, free the connection, notify OnClosed.
func (l *Loop) closeConn(c *conn.Conn) {
	if c.Closing() {
		return
	}
	c.MarkClosing()
	_ = unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, c.Fd, nil)
	_ = unix.Close(c.Fd)
	delete(l.conns, c.Fd)
	if l.cb.OnClosed != nil {
		l.cb.OnClosed(c)
	}
	l.log.Debugw("closed connection", "fd", c.Fd)
}

// QueueWrite arms write interest on c and flushes as much of its pending
// queue as the socket will take right now. Dispatch-side code that
// enqueues bytes on a connection other than the one whose event is being
// handled (the propagation fan-out) must call this: an idle connection
// never produces an event of its own, so enqueuing alone would leave the
// bytes parked in its write buffer forever.
func (l *Loop) QueueWrite(c *conn.Conn) {
	if c.Closing() || !c.HasPendingWrite() {
		return
	}
	l.armWrite(c)
	l.flush(c)
}

// Adopt registers a connection the loop did not accept itself: the
// replica's outbound connection to its upstream master, set up by
// internal/server before the loop starts. The replica performs its
// handshake synchronously, then folds the resulting socket into the same
// reactor that serves its own client connections.
func (l *Loop) Adopt(c *conn.Conn) error {
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, c.Fd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(c.Fd),
	}); err != nil {
		return err
	}
	l.conns[c.Fd] = c
	return nil
}

// Conns returns the live connection set, keyed by fd. Exposed read-only
// for the propagation fan-out (internal/server), which needs to walk
// every currently connected replica; only ever called from the loop
// goroutine itself, so no copy or lock is needed.
func (l *Loop) Conns() map[int]*conn.Conn {
	return l.conns
}

// Close tears down the reactor's own resources (the epoll fd and the
// listening socket). Individual connections are expected to have been
// closed already via closeConn.
func (l *Loop) Close() error {
	err := unix.Close(l.epfd)
	if cerr := unix.Close(l.listenFd); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
