package replicate

import (
	"strings"

	"github.com/google/uuid"
)

// NewReplID generates a 40-hex-digit master_replid from two UUIDv4s,
// hyphens stripped, concatenated and truncated (32 + 32 = 64 available).
func NewReplID() string {
	a := strings.ReplaceAll(uuid.NewString(), "-", "")
	b := strings.ReplaceAll(uuid.NewString(), "-", "")
	return (a + b)[:40]
}
