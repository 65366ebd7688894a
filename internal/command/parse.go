package command

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"redislite/internal/resp"
)

// Classify lifts a parsed resp.Message into a typed Request. nowMs is the
// current wall-clock time in milliseconds, sampled by the caller at the
// moment the message was parsed off the wire, not at dispatch time: SET's
// PX deadline must reflect arrival time, since clients start their expiry
// clock at the +OK reply.
//
// Only resp.Array messages carry commands; anything else classifies as
// Unknown (never an arity error — an unrecognized shape is simply not a
// command this server understands).
func Classify(m resp.Message, nowMs int64) (Request, error) {
	if m.Kind != resp.Array || len(m.Items) == 0 {
		return Request{Kind: Unknown}, nil
	}

	args := make([][]byte, len(m.Items))
	for i, item := range m.Items {
		args[i] = item.Text
	}

	name := strings.ToUpper(string(args[0]))
	switch name {
	case "PING":
		return classifyPing(args)
	case "ECHO":
		return classifyEcho(args)
	case "GET":
		return classifyGet(args)
	case "SET":
		return classifySet(args, nowMs)
	case "INFO":
		return Request{Kind: Info, Sections: args[1:]}, nil
	case "REPLCONF":
		return classifyReplconf(args)
	case "PSYNC":
		return classifyPsync(args)
	default:
		return Request{Kind: Unknown, RawArgs: args}, nil
	}
}

func classifyPing(args [][]byte) (Request, error) {
	switch len(args) {
	case 1:
		return Request{Kind: Ping}, nil
	case 2:
		return Request{Kind: Ping, Text: args[1]}, nil
	default:
		return Request{}, fmt.Errorf("%w: PING takes 0 or 1 arguments, got %d", ErrInvalidRequestArity, len(args)-1)
	}
}

func classifyEcho(args [][]byte) (Request, error) {
	if len(args) != 2 {
		return Request{}, fmt.Errorf("%w: ECHO takes exactly 1 argument, got %d", ErrInvalidRequestArity, len(args)-1)
	}
	return Request{Kind: Echo, Text: args[1]}, nil
}

func classifyGet(args [][]byte) (Request, error) {
	if len(args) != 2 {
		return Request{}, fmt.Errorf("%w: GET takes exactly 1 argument, got %d", ErrInvalidRequestArity, len(args)-1)
	}
	if len(args[1]) == 0 {
		return Request{}, fmt.Errorf("%w: GET key must be non-empty", ErrInvalidRequestArity)
	}
	return Request{Kind: Get, Key: args[1]}, nil
}

func classifySet(args [][]byte, nowMs int64) (Request, error) {
	switch len(args) {
	case 3:
		return Request{Kind: Set, Key: args[1], Value: args[2]}, nil
	case 5:
		if !bytes.EqualFold(args[3], []byte("PX")) {
			return Request{}, fmt.Errorf("%w: SET's 4th argument must be PX, got %q", ErrInvalidRequestArity, args[3])
		}
		ms, err := strconv.ParseInt(string(args[4]), 10, 64)
		if err != nil {
			return Request{}, fmt.Errorf("%w: SET PX value must be a signed decimal: %v", ErrInvalidRequestArity, err)
		}
		return Request{
			Kind:       Set,
			Key:        args[1],
			Value:      args[2],
			HasExpire:  true,
			ExpireAtMs: nowMs + ms,
		}, nil
	default:
		return Request{}, fmt.Errorf("%w: SET takes 2 or 4 arguments, got %d", ErrInvalidRequestArity, len(args)-1)
	}
}

func classifyReplconf(args [][]byte) (Request, error) {
	if len(args) < 3 {
		return Request{}, fmt.Errorf("%w: REPLCONF takes at least 2 arguments, got %d", ErrInvalidRequestArity, len(args)-1)
	}
	return Request{Kind: Replconf, ReplconfArgs: args[1:]}, nil
}

func classifyPsync(args [][]byte) (Request, error) {
	if len(args) != 3 {
		return Request{}, fmt.Errorf("%w: PSYNC takes exactly 2 arguments, got %d", ErrInvalidRequestArity, len(args)-1)
	}
	offset, err := strconv.ParseInt(string(args[2]), 10, 64)
	if err != nil {
		return Request{}, fmt.Errorf("%w: PSYNC offset must be a signed decimal: %v", ErrInvalidRequestArity, err)
	}
	return Request{Kind: Psync, PsyncReplID: string(args[1]), PsyncOffset: offset}, nil
}
