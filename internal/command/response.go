package command

import (
	"strconv"

	"redislite/internal/resp"
)

// The handful of response shapes this server needs to build directly
// (as opposed to Classify's parse side). This is the "lower a response
// value into a message" half of the command model; the dispatcher calls
// these after applying a Request to the keyspace and connection state.

// OK builds the canonical "+OK\r\n" reply.
func OK() resp.Message { return resp.Str("OK") }

// Pong builds the canonical "+PONG\r\n" reply for a bare PING.
func Pong() resp.Message { return resp.Str("PONG") }

// EchoReply builds a bulk-string reply echoing text (used for PING <x> and
// ECHO <x>, which share the same response shape).
func EchoReply(text []byte) resp.Message { return resp.Bulk(text) }

// BulkOrNull builds a GET reply: the value as a bulk string, or the null
// bulk string sentinel when present is false.
func BulkOrNull(value []byte, present bool) resp.Message {
	if !present {
		return resp.NullBulk()
	}
	return resp.Bulk(value)
}

// FullResync builds the "+FULLRESYNC <replid> <offset>\r\n" reply that
// begins a replica's full snapshot transfer.
func FullResync(replID string, offset int64) resp.Message {
	return resp.Str(fullResyncText(replID, offset))
}

func fullResyncText(replID string, offset int64) string {
	return "FULLRESYNC " + replID + " " + strconv.FormatInt(offset, 10)
}
