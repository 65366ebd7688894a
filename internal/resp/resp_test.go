package resp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cases := []Message{
		Str("PONG"),
		BulkStr("Hello, world!"),
		BulkStr(""),
		NullBulk(),
		Arr(BulkStr("SET"), BulkStr("k"), BulkStr("v")),
		Arr(),
	}
	for _, m := range cases {
		encoded := Encode(m)
		parsed, n, err := Parse(encoded)
		require.NoError(t, err)
		assert.Equal(t, len(encoded), n)
		assert.True(t, m.Equal(parsed))
	}
}

func TestParseEmptyBulkIsNotNull(t *testing.T) {
	m, n, err := Parse([]byte("$0\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, BulkString, m.Kind)
	assert.Equal(t, "", string(m.Text))
}

func TestParseNullBulk(t *testing.T) {
	m, n, err := Parse([]byte("$-1\r\n"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.True(t, m.IsNullBulk())
}

func TestParseRejectsUnknownTag(t *testing.T) {
	_, _, err := Parse([]byte(".foo\r\n"))
	assert.ErrorIs(t, err, ErrUnknownTag)
}

func TestParseRejectsFloatingLength(t *testing.T) {
	_, _, err := Parse([]byte("$5.0\r\nhello\r\n"))
	assert.ErrorIs(t, err, ErrBadLengthHeader)
}

func TestParseRejectsPlusSignedLength(t *testing.T) {
	_, _, err := Parse([]byte("$+5\r\nhello\r\n"))
	assert.ErrorIs(t, err, ErrBadLengthHeader)
}

func TestParseRejectsNegativeArrayCount(t *testing.T) {
	_, _, err := Parse([]byte("*-1\r\n"))
	assert.ErrorIs(t, err, ErrBadLengthHeader)
}

func TestParseRejectsNestedArray(t *testing.T) {
	_, _, err := Parse([]byte("*1\r\n*1\r\n$3\r\nfoo\r\n"))
	assert.ErrorIs(t, err, ErrNestedArrayNotSupported)
}

func TestParseTruncatedNeverPartial(t *testing.T) {
	cases := [][]byte{
		[]byte("+PONG\r"),
		[]byte("$5\r\nhel"),
		[]byte("*2\r\n$3\r\nGET\r\n"),
		[]byte(""),
	}
	for _, c := range cases {
		m, n, err := Parse(c)
		assert.ErrorIs(t, err, ErrTruncated)
		assert.Equal(t, 0, n)
		assert.Equal(t, Message{}, m)
	}
}

func TestParseSimpleStringRejectsEmbeddedLineBreaks(t *testing.T) {
	_, _, err := Parse([]byte("+he\nllo\r\n"))
	assert.ErrorIs(t, err, ErrMissingDelimiter)

	_, _, err = Parse([]byte("+he\rllo\r\n"))
	assert.ErrorIs(t, err, ErrMissingDelimiter)
}

func TestParseArrayCountBoundedByInput(t *testing.T) {
	// A count no input of this size could satisfy must read as truncated
	// without reserving count elements first.
	_, _, err := Parse([]byte("*9999999999\r\n"))
	assert.ErrorIs(t, err, ErrTruncated)

	_, _, err = Parse([]byte("*100000000\r\n+x\r\n"))
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestParseMissingTrailingDelimiter(t *testing.T) {
	// Declared length is satisfied but the terminator bytes aren't CRLF.
	_, _, err := Parse([]byte("$5\r\nhelloXX"))
	assert.ErrorIs(t, err, ErrMissingDelimiter)
}

func TestParseConsumesExactlyOneMessageFromAStream(t *testing.T) {
	stream := []byte("+PONG\r\n$3\r\nfoo\r\n")
	m1, n1, err := Parse(stream)
	require.NoError(t, err)
	assert.True(t, m1.Equal(Str("PONG")))

	m2, n2, err := Parse(stream[n1:])
	require.NoError(t, err)
	assert.True(t, m2.Equal(BulkStr("foo")))
	assert.Equal(t, len(stream), n1+n2)
}

func TestEncodeArrayOfPrimitives(t *testing.T) {
	m := Arr(BulkStr("ECHO"), BulkStr("Hello, world!"))
	encoded := Encode(m)
	assert.Equal(t, "*2\r\n$4\r\nECHO\r\n$13\r\nHello, world!\r\n", string(encoded))
}
