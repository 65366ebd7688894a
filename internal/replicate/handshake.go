package replicate

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"redislite/internal/resp"
)

// ErrFailedSyncHandshake is returned for any deviation from the mirror
// handshake: a non-+PONG PING reply, a non-+OK REPLCONF reply, or a
// PSYNC reply that isn't +FULLRESYNC. Startup treats this as fatal and
// the process exits with a non-zero status.
var ErrFailedSyncHandshake = errors.New("replicate: failed sync handshake with master")

// HandshakeResult carries what the replica learns from its master during
// the synchronous handshake: the master's replid, the starting offset
// FULLRESYNC reported, and the RDB payload that followed. Trailing holds
// any bytes the master sent
// after the RDB frame that the handshake's buffered reader happened to
// read ahead — a master starts propagating the moment the RDB send
// completes, so write commands can already be in flight; the caller must
// feed Trailing into whatever stream processing takes over the socket.
type HandshakeResult struct {
	MasterReplID string
	Offset       int64
	RDB          []byte
	Trailing     []byte
}

// PerformHandshake runs the replica-side mirror handshake synchronously
// over conn, the already-dialed connection to the upstream master: PING,
// REPLCONF listening-port, REPLCONF capa psync2, PSYNC ? -1, then reads
// the FULLRESYNC line and its RDB frame. Commands are built with the
// resp codec so the bytes sent are exactly what this server's own parser
// would produce.
func PerformHandshake(conn net.Conn, ourListeningPort int, dialTimeout time.Duration) (*HandshakeResult, error) {
	r := bufio.NewReader(conn)

	if dialTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(dialTimeout))
		defer conn.SetDeadline(time.Time{})
	}

	if err := sendCommand(conn, "PING"); err != nil {
		return nil, errors.Wrap(err, "replicate: sending PING to master")
	}
	if err := expectSimpleString(r, "PONG"); err != nil {
		return nil, errors.Wrap(err, "replicate: PING handshake step")
	}

	if err := sendCommand(conn, "REPLCONF", "listening-port", strconv.Itoa(ourListeningPort)); err != nil {
		return nil, errors.Wrap(err, "replicate: sending REPLCONF listening-port")
	}
	if err := expectSimpleString(r, "OK"); err != nil {
		return nil, errors.Wrap(err, "replicate: REPLCONF listening-port handshake step")
	}

	if err := sendCommand(conn, "REPLCONF", "capa", "psync2"); err != nil {
		return nil, errors.Wrap(err, "replicate: sending REPLCONF capa psync2")
	}
	if err := expectSimpleString(r, "OK"); err != nil {
		return nil, errors.Wrap(err, "replicate: REPLCONF capa handshake step")
	}

	if err := sendCommand(conn, "PSYNC", "?", "-1"); err != nil {
		return nil, errors.Wrap(err, "replicate: sending PSYNC")
	}
	line, err := readSimpleStringLine(r)
	if err != nil {
		return nil, errors.Wrap(err, "replicate: reading FULLRESYNC reply")
	}
	replID, offset, err := parseFullResync(line)
	if err != nil {
		return nil, err
	}

	rdb, err := readRDBFrame(r)
	if err != nil {
		return nil, errors.Wrap(err, "replicate: reading RDB frame")
	}

	var trailing []byte
	if buffered := r.Buffered(); buffered > 0 {
		peeked, _ := r.Peek(buffered)
		trailing = append([]byte(nil), peeked...)
	}

	return &HandshakeResult{MasterReplID: replID, Offset: offset, RDB: rdb, Trailing: trailing}, nil
}

func sendCommand(conn net.Conn, args ...string) error {
	items := make([]resp.Message, len(args))
	for i, a := range args {
		items[i] = resp.BulkStr(a)
	}
	_, err := conn.Write(resp.Encode(resp.Arr(items...)))
	return err
}

// readSimpleStringLine reads one '+'-prefixed line and returns its text
// without the leading '+' or trailing CRLF.
func readSimpleStringLine(r *bufio.Reader) (string, error) {
	b, err := r.ReadBytes('\n')
	if err != nil {
		return "", err
	}
	s := strings.TrimRight(string(b), "\r\n")
	if len(s) == 0 || s[0] != '+' {
		return "", errors.Wrapf(ErrFailedSyncHandshake, "expected simple string, got %q", s)
	}
	return s[1:], nil
}

func expectSimpleString(r *bufio.Reader, want string) error {
	got, err := readSimpleStringLine(r)
	if err != nil {
		return err
	}
	if got != want {
		return errors.Wrapf(ErrFailedSyncHandshake, "expected +%s, got +%s", want, got)
	}
	return nil
}

// parseFullResync parses "FULLRESYNC <replid> <offset>" (the text already
// stripped of its leading '+' by readSimpleStringLine).
func parseFullResync(line string) (string, int64, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != "FULLRESYNC" {
		return "", 0, errors.Wrapf(ErrFailedSyncHandshake, "malformed FULLRESYNC reply: %q", line)
	}
	offset, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return "", 0, errors.Wrapf(ErrFailedSyncHandshake, "non-numeric FULLRESYNC offset: %q", fields[2])
	}
	return fields[1], offset, nil
}

// readRDBFrame reads the "$<len>\r\n<bytes>" frame FULLRESYNC is always
// followed by. Unlike a bulk string, this frame has no trailing CRLF:
// it's the Redis RDB-over-PSYNC idiom, not a RESP bulk string.
func readRDBFrame(r *bufio.Reader) ([]byte, error) {
	header, err := r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	header = []byte(strings.TrimRight(string(header), "\r\n"))
	if len(header) == 0 || header[0] != '$' {
		return nil, errors.Wrapf(ErrFailedSyncHandshake, "expected RDB length frame, got %q", header)
	}
	length, err := strconv.Atoi(string(header[1:]))
	if err != nil || length < 0 {
		return nil, errors.Wrapf(ErrFailedSyncHandshake, "bad RDB frame length: %q", header)
	}
	buf := make([]byte, length)
	if _, err := readFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// DialUpstream opens a TCP connection to the configured master, the first
// step of the replica-side sequence that must complete before the replica
// accepts client connections.
func DialUpstream(host string, port int, timeout time.Duration) (net.Conn, error) {
	addr := net.JoinHostPort(host, fmt.Sprint(port))
	return net.DialTimeout("tcp", addr, timeout)
}
