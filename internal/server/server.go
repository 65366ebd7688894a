package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"redislite/internal/command"
	"redislite/internal/conn"
	"redislite/internal/dispatch"
	"redislite/internal/eventloop"
	"redislite/internal/replicate"
	"redislite/internal/resp"
	"redislite/internal/store"
)

// masterDialTimeout bounds the replica-side synchronous handshake; a
// master that never replies becomes a startup error, not a hang.
const masterDialTimeout = 5 * time.Second

// ServerState is the process-wide singleton: role, listen address, the
// optional upstream master, the master identity fields, the keyspace, and
// (via its event loop, Loop) the connection set. It lives from Start
// to process exit.
type ServerState struct {
	Config       StartupConfig
	Role         dispatch.Role
	MasterReplID string

	Store      *store.Store
	Dispatcher *dispatch.Dispatcher
	Loop       *eventloop.Loop

	log *zap.SugaredLogger
}

// New builds a ServerState from a StartupConfig. It does not bind a
// socket or dial a master yet; call Start for that.
func New(cfg StartupConfig, log *zap.SugaredLogger) *ServerState {
	s := &ServerState{
		Config: cfg,
		Store:  store.New(),
		log:    log,
	}
	if cfg.ReplicaOf != nil {
		s.Role = dispatch.RoleSlave
	} else {
		s.Role = dispatch.RoleMaster
		s.MasterReplID = replicate.NewReplID()
	}
	s.Dispatcher = &dispatch.Dispatcher{
		Store:        s.Store,
		Role:         s.Role,
		MasterReplID: s.MasterReplID,
		Propagator:   s,
	}
	return s
}

// Start runs the full startup sequence: if configured as a replica,
// perform the synchronous mirror handshake with the upstream master
// first, then bind the listening socket and run the event loop until ctx
// is canceled. A failed replica handshake is a startup error: Start
// returns it and the caller exits non-zero.
func (s *ServerState) Start(ctx context.Context) error {
	var upstream *masterStream
	if s.Config.ReplicaOf != nil {
		var err error
		upstream, err = s.connectToMaster()
		if err != nil {
			return fmt.Errorf("server: replica handshake failed: %w", err)
		}
	}

	listenFd, err := eventloop.Listen(s.Config.Host, s.Config.Port)
	if err != nil {
		return fmt.Errorf("server: bind %s:%d: %w", s.Config.Host, s.Config.Port, err)
	}

	loop, err := eventloop.New(listenFd, eventloop.Callbacks{
		OnReadable: s.onReadable,
		OnClosed:   s.onClosed,
	}, s.log)
	if err != nil {
		return fmt.Errorf("server: event loop init: %w", err)
	}
	s.Loop = loop
	defer loop.Close()

	if upstream != nil {
		if err := s.registerUpstream(upstream); err != nil {
			return fmt.Errorf("server: registering upstream master connection: %w", err)
		}
	}

	s.log.Infow("listening", "host", s.Config.Host, "port", s.Config.Port, "role", roleName(s.Role))
	return loop.Run(ctx)
}

func roleName(r dispatch.Role) string {
	if r == dispatch.RoleMaster {
		return "master"
	}
	return "slave"
}

// onReadable parses and dispatches every complete message currently
// buffered on c (recv -> parse -> dispatch -> enqueue). It returns on the
// first incomplete message (resp.ErrTruncated) so the loop can re-arm
// recv: the codec signals "need more bytes" rather than the loop guessing
// from a full-buffer read.
func (s *ServerState) onReadable(c *conn.Conn) error {
	if c.Role == conn.RoleUpstreamMaster {
		return s.onMasterStreamReadable(c)
	}
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
		raw := pending[:n]
		nowMs := time.Now().UnixMilli()

		req, err := command.Classify(msg, nowMs)
		if err != nil {
			return err
		}

		reply, enqueued, err := s.Dispatcher.Dispatch(c, req, raw, nowMs)
		c.Consume(n)
		if err != nil {
			return err
		}
		if !enqueued {
			c.Enqueue(resp.Encode(reply))
		}
	}
}

func (s *ServerState) onClosed(c *conn.Conn) {
	s.log.Debugw("connection closed", "fd", c.Fd, "role", c.Role)
}

// Propagate implements dispatch.Propagator: enqueue raw on every
// connection currently in replicate.ConnectedReplica and kick off the
// write, since a replica that is silent on the wire never produces an
// event that would flush its queue. Only ever called from the loop
// goroutine during Dispatch, so walking Loop.Conns() needs no lock.
func (s *ServerState) Propagate(raw []byte) {
	for _, c := range s.Loop.Conns() {
		if c.Repl.IsConnectedReplica() {
			c.Enqueue(raw)
			s.Loop.QueueWrite(c)
		}
	}
}
