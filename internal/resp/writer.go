package resp

import "strconv"

// Encode serializes m to its canonical wire form. Encode never mutates m.
func Encode(m Message) []byte {
	var buf []byte
	return appendMessage(buf, m)
}

// AppendEncode appends the canonical wire form of m to dst and returns the
// grown slice, for callers building a larger send buffer without an
// intermediate allocation per message (the propagation fan-out path reuses
// the master's own already-parsed bytes instead, see internal/server).
func AppendEncode(dst []byte, m Message) []byte {
	return appendMessage(dst, m)
}

func appendMessage(dst []byte, m Message) []byte {
	switch m.Kind {
	case SimpleString:
		dst = append(dst, '+')
		dst = append(dst, m.Text...)
		dst = append(dst, '\r', '\n')
		return dst
	case BulkString:
		dst = append(dst, '$')
		dst = strconv.AppendInt(dst, int64(len(m.Text)), 10)
		dst = append(dst, '\r', '\n')
		dst = append(dst, m.Text...)
		dst = append(dst, '\r', '\n')
		return dst
	case NullBulkString:
		return append(dst, '$', '-', '1', '\r', '\n')
	case Array:
		dst = append(dst, '*')
		dst = strconv.AppendInt(dst, int64(len(m.Items)), 10)
		dst = append(dst, '\r', '\n')
		for _, item := range m.Items {
			dst = appendMessage(dst, item)
		}
		return dst
	default:
		panic("resp: Encode of unknown Kind")
	}
}
