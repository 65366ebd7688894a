package server

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"redislite/internal/command"
	"redislite/internal/conn"
	"redislite/internal/replicate"
	"redislite/internal/resp"
)

// masterStream wraps the replica's outbound connection to its upstream
// master, already handshaked and ready to be folded into the event loop.
// trailing holds propagated-command bytes the handshake's buffered reader
// read ahead past the RDB frame; they precede anything the socket will
// deliver next and must be replayed before the first EPOLLIN.
type masterStream struct {
	conn     *conn.Conn
	trailing []byte
}

// connectToMaster performs the replica-side synchronous mirror handshake
// before the event loop exists at all, so no client connection is
// accepted until the sync is established. The net.Conn wrapper
// used for the handshake is closed afterward; a duplicated descriptor
// keeps the same socket open and is handed to the event loop so the ongoing
// propagation stream is driven by the same single-threaded reactor as
// every other connection, instead of a second goroutine reading from it.
func (s *ServerState) connectToMaster() (*masterStream, error) {
	upstream := s.Config.ReplicaOf
	tcpConn, err := replicate.DialUpstream(upstream.Host, upstream.Port, masterDialTimeout)
	if err != nil {
		return nil, fmt.Errorf("server: dialing master %s:%d: %w", upstream.Host, upstream.Port, err)
	}
	result, err := replicate.PerformHandshake(tcpConn, s.Config.Port, masterDialTimeout)
	if err != nil {
		tcpConn.Close()
		return nil, err
	}

	fd, err := dupSocketFd(tcpConn)
	tcpConn.Close()
	if err != nil {
		return nil, fmt.Errorf("server: duplicating master connection fd: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("server: setting master connection non-blocking: %w", err)
	}

	s.log.Infow("replica handshake complete",
		"master_replid", result.MasterReplID,
		"rdb_bytes", len(result.RDB))

	return &masterStream{
		conn:     conn.New(fd, conn.RoleUpstreamMaster),
		trailing: result.Trailing,
	}, nil
}

// dupSocketFd extracts the raw file descriptor backing c and returns an
// independently owned duplicate, so closing c (and its finalizer-managed
// *os.File) doesn't take the duplicate down with it.
func dupSocketFd(c net.Conn) (int, error) {
	sc, ok := c.(syscall.Conn)
	if !ok {
		return -1, errors.New("server: connection does not expose a raw file descriptor")
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return -1, err
	}
	var dupFd int
	var dupErr error
	if ctrlErr := raw.Control(func(fd uintptr) {
		dupFd, dupErr = unix.Dup(int(fd))
	}); ctrlErr != nil {
		return -1, ctrlErr
	}
	if dupErr != nil {
		return -1, dupErr
	}
	return dupFd, nil
}

// registerUpstream folds an already-handshaked master stream into the
// event loop once it exists, replaying any bytes the handshake read past
// the RDB frame so early-propagated writes aren't dropped.
func (s *ServerState) registerUpstream(ms *masterStream) error {
	if err := s.Loop.Adopt(ms.conn); err != nil {
		return err
	}
	if len(ms.trailing) > 0 {
		if err := ms.conn.Append(ms.trailing); err != nil {
			return err
		}
		return s.onMasterStreamReadable(ms.conn)
	}
	return nil
}

// onMasterStreamReadable parses commands forwarded by the master and
// applies writes directly to the keyspace. Unlike a client connection, no
// reply is ever enqueued here: REPLCONF ACK/GETACK is the only two-way
// traffic real Redis expects on this channel, and this server does not
// track offsets to acknowledge.
func (s *ServerState) onMasterStreamReadable(c *conn.Conn) error {
	for {
		pending := c.Pending()
		if len(pending) == 0 {
			return nil
		}
		msg, n, err := resp.Parse(pending)
		if err != nil {
			if errors.Is(err, resp.ErrTruncated) {
				return nil
			}
			return err
		}
		nowMs := time.Now().UnixMilli()
		req, classifyErr := command.Classify(msg, nowMs)
		c.Consume(n)
		if classifyErr != nil {
			return classifyErr
		}
		s.applyFromMaster(req)
	}
}

func (s *ServerState) applyFromMaster(req command.Request) {
	if req.Kind != command.Set {
		// PING keepalives and anything else the master forwards carry no
		// further effect on a replica's keyspace in this core.
		return
	}
	if req.HasExpire {
		s.Store.PutWithExpiry(req.Key, req.Value, req.ExpireAtMs)
	} else {
		s.Store.Put(req.Key, req.Value)
	}
}
