package replicate

import "encoding/base64"

// emptyRDBBase64 is an empty-database RDB snapshot (version 11) with its
// CRC64 already baked in, shipped as a literal so nothing needs to be
// generated or checksummed at runtime.
const emptyRDBBase64 = "UkVESVMwMDEx+glyZWRpcy12ZXIFNy4yLjD6CnJlZGlzLWJpdHPAQPoFY3RpbWXCbQi8ZfoIdXNlZC1tZW3CsMQQAPoIYW9mLWJhc2XAAP/wbjv+wP9aog=="

// EmptyRDB is the decoded 88-byte empty-database RDB payload sent after
// FULLRESYNC.
var EmptyRDB = mustDecodeRDB()

func mustDecodeRDB() []byte {
	b, err := base64.StdEncoding.DecodeString(emptyRDBBase64)
	if err != nil {
		// emptyRDBBase64 is a compile-time literal; a decode failure here
		// means the constant itself was typo'd, not a runtime condition.
		panic("replicate: empty RDB literal is not valid base64: " + err.Error())
	}
	return b
}
