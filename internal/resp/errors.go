package resp

import "errors"

// Parse error kinds. The parser returns exactly one of these (wrapped
// with context via fmt.Errorf/%w where useful), never a partial Message.
var (
	ErrUnknownTag              = errors.New("resp: unknown message tag")
	ErrMissingDelimiter        = errors.New("resp: missing CRLF delimiter")
	ErrBadLengthHeader         = errors.New("resp: bad length header")
	ErrNestedArrayNotSupported = errors.New("resp: nested arrays are not supported")
	ErrTruncated               = errors.New("resp: truncated input, need more bytes")
)
