// Package command lifts a parsed resp.Message into a typed Request, and
// lowers response values back into resp.Message for the codec to encode.
package command

// Kind tags which command variant a Request holds.
type Kind int

const (
	Unknown Kind = iota
	Ping
	Echo
	Get
	Set
	Info
	Replconf
	Psync
)

// Request is a closed sum type: Ping(optional text), Echo(text),
// Get(key), Set(key, value, optional absolute-deadline-ms),
// Info(sections), Replconf(args), Psync(replid, offset), Unknown.
//
// Fields are populated according to Kind; irrelevant fields are zero.
type Request struct {
	Kind Kind

	// Ping: Text is optional (nil means bare PING).
	// Echo: Text is required.
	Text []byte

	// Get/Set: Key.
	Key []byte

	// Set: Value and, if PX was given, ExpireAtMs (absolute deadline,
	// computed at parse time).
	Value      []byte
	HasExpire  bool
	ExpireAtMs int64

	// Info: section names as given.
	Sections [][]byte

	// Replconf: raw argument words following the command name.
	ReplconfArgs [][]byte

	// Psync: requested replid ("?" for full resync) and offset ("-1").
	PsyncReplID string
	PsyncOffset int64

	// RawArgs holds the verbatim argument words for Unknown requests,
	// for diagnostics.
	RawArgs [][]byte
}
