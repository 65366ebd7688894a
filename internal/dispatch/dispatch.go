// Package dispatch implements the request dispatcher: it applies a typed
// command.Request to the keyspace and to the issuing connection's state,
// returns the response resp.Message, and enqueues the side-effect sends
// (propagation to replicas, the RDB follow-up after FULLRESYNC).
package dispatch

import (
	"strconv"
	"strings"

	"redislite/internal/command"
	"redislite/internal/conn"
	"redislite/internal/replicate"
	"redislite/internal/resp"
	"redislite/internal/store"
)

// Role is the server-wide replication role dispatch needs to shape INFO
// replies and decide whether to propagate writes.
type Role int

const (
	RoleMaster Role = iota
	RoleSlave
)

// Propagator enqueues raw, already-serialized command bytes on every
// connection currently in replicate.ConnectedReplica. The server
// implements this over its connection registry; dispatch only needs the
// narrow capability, not the registry itself, so this package stays free
// of any dependency on how connections are tracked.
type Propagator interface {
	Propagate(raw []byte)
}

// Dispatcher holds everything Dispatch needs beyond the single request:
// the keyspace, this server's replication identity, and the fan-out hook.
type Dispatcher struct {
	Store        *store.Store
	Role         Role
	MasterReplID string
	Propagator   Propagator
}

// Dispatch applies req (already classified by command.Classify from a
// message received on c) and returns the response to serialize and send.
//
// raw is the exact wire bytes the request was parsed from, used verbatim
// for propagation so master_repl_offset accounting (when added) stays
// byte-exact.
//
// enqueued reports that Dispatch already appended its reply (and any
// follow-up frame, e.g. the RDB blob after FULLRESYNC) directly onto c's
// write queue; the caller must not also serialize and send the returned
// Message in that case. err is non-nil only for a handshake violation:
// the caller closes the connection without sending a reply.
func (d *Dispatcher) Dispatch(c *conn.Conn, req command.Request, raw []byte, nowMs int64) (reply resp.Message, enqueued bool, err error) {
	switch req.Kind {
	case command.Ping:
		reply = d.dispatchPing(c, req)
	case command.Echo:
		reply = command.EchoReply(req.Text)
	case command.Get:
		value, ok := d.Store.Get(req.Key, nowMs)
		reply = command.BulkOrNull(value, ok)
	case command.Set:
		reply = d.dispatchSet(req, raw)
	case command.Info:
		reply = d.dispatchInfo(req)
	case command.Replconf:
		reply, err = d.dispatchReplconf(c, req)
	case command.Psync:
		err = d.dispatchPsync(c, req)
		enqueued = err == nil
	default:
		reply = command.OK()
	}
	return reply, enqueued, err
}

func (d *Dispatcher) dispatchPing(c *conn.Conn, req command.Request) resp.Message {
	if c.Repl == nil {
		c.Repl = replicate.New()
		_ = c.Repl.OnPing() // None -> InitialPing always succeeds for a fresh state
		c.Role = conn.RoleReplicaHandshake
	}
	if req.Text != nil {
		return command.EchoReply(req.Text)
	}
	return command.Pong()
}

func (d *Dispatcher) dispatchSet(req command.Request, raw []byte) resp.Message {
	if req.HasExpire {
		d.Store.PutWithExpiry(req.Key, req.Value, req.ExpireAtMs)
	} else {
		d.Store.Put(req.Key, req.Value)
	}
	if d.Role == RoleMaster && d.Propagator != nil {
		d.Propagator.Propagate(raw)
	}
	return command.OK()
}

func (d *Dispatcher) dispatchInfo(req command.Request) resp.Message {
	wantsReplication := len(req.Sections) == 0
	for _, s := range req.Sections {
		section := strings.ToLower(string(s))
		if section == "replication" || section == "all" || section == "everything" {
			wantsReplication = true
			break
		}
	}
	if !wantsReplication {
		return resp.Bulk(nil)
	}
	return resp.BulkStr(d.replicationSection())
}

func (d *Dispatcher) replicationSection() string {
	if d.Role == RoleMaster {
		return "role:master\n" +
			"master_replid:" + d.MasterReplID + "\n" +
			"master_repl_offset:0\n"
	}
	return "role:slave\n" +
		"master_repl_offset:0\n"
}

func (d *Dispatcher) dispatchReplconf(c *conn.Conn, req command.Request) (resp.Message, error) {
	if len(req.ReplconfArgs) < 2 {
		return command.OK(), nil
	}
	option := strings.ToLower(string(req.ReplconfArgs[0]))
	switch option {
	case "listening-port":
		if c.Repl == nil || c.Repl.Phase != replicate.InitialPing {
			return resp.Message{}, replicate.ErrHandshakeOutOfOrder(phaseOf(c), "REPLCONF listening-port")
		}
		port, _ := strconv.Atoi(string(req.ReplconfArgs[1]))
		if err := c.Repl.OnReplconfListeningPort(port); err != nil {
			return resp.Message{}, err
		}
		return command.OK(), nil
	case "capa":
		if c.Repl == nil || c.Repl.Phase != replicate.FirstReplconf {
			return resp.Message{}, replicate.ErrHandshakeOutOfOrder(phaseOf(c), "REPLCONF capa")
		}
		if err := c.Repl.OnReplconfCapa(string(req.ReplconfArgs[1])); err != nil {
			return resp.Message{}, err
		}
		return command.OK(), nil
	default:
		// REPLCONF ACK/GETACK and any other option: benign no-op, not
		// a handshake transition.
		return command.OK(), nil
	}
}

// dispatchPsync handles PSYNC ? -1. On success it enqueues the
// +FULLRESYNC reply and the RDB frame directly onto c's write queue and
// arms c.OnDrain to advance ReceivingSync -> ConnectedReplica once both
// have actually been flushed to the socket.
func (d *Dispatcher) dispatchPsync(c *conn.Conn, req command.Request) error {
	if c.Repl == nil || c.Repl.Phase != replicate.SecondReplconf {
		return replicate.ErrHandshakeOutOfOrder(phaseOf(c), "PSYNC")
	}
	if err := c.Repl.OnPsync(); err != nil {
		return err
	}
	repl := c.Repl
	c.OnDrain = func() {
		_ = repl.OnRDBSent()
		c.Role = conn.RoleConnectedReplica
	}
	c.Enqueue(resp.Encode(command.FullResync(d.MasterReplID, 0)))
	c.Enqueue(BuildRDBFrame())
	return nil
}

// BuildRDBFrame returns the "$<len>\r\n<bytes>" RDB frame (no trailing
// CRLF — the Redis RDB-over-PSYNC idiom, not a RESP bulk string).
func BuildRDBFrame() []byte {
	blob := replicate.EmptyRDB
	header := "$" + strconv.Itoa(len(blob)) + "\r\n"
	out := make([]byte, 0, len(header)+len(blob))
	out = append(out, header...)
	out = append(out, blob...)
	return out
}

func phaseOf(c *conn.Conn) replicate.Phase {
	if c.Repl == nil {
		return replicate.None
	}
	return c.Repl.Phase
}
