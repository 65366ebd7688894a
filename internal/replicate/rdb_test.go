package replicate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmptyRDBIsEightyEightBytes(t *testing.T) {
	assert.Len(t, EmptyRDB, 88)
}

func TestEmptyRDBStartsWithRedisMagic(t *testing.T) {
	assert.Equal(t, "REDIS0011", string(EmptyRDB[:9]))
}
