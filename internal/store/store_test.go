package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPutThenGet(t *testing.T) {
	s := New()
	s.Put([]byte("k"), []byte("v"))
	v, ok := s.Get([]byte("k"), 0)
	assert.True(t, ok)
	assert.Equal(t, "v", string(v))
}

func TestGetMissingKey(t *testing.T) {
	s := New()
	_, ok := s.Get([]byte("missing"), 0)
	assert.False(t, ok)
}

func TestPutWithExpiryObservesDeadline(t *testing.T) {
	s := New()
	s.PutWithExpiry([]byte("k"), []byte("v"), 1000)

	v, ok := s.Get([]byte("k"), 500)
	assert.True(t, ok)
	assert.Equal(t, "v", string(v))

	_, ok = s.Get([]byte("k"), 1000)
	assert.False(t, ok, "now == deadline must already read as expired")

	_, ok = s.Get([]byte("k"), 1500)
	assert.False(t, ok)
}

func TestPutOverwriteReplacesValueAndLeavesCountUnchanged(t *testing.T) {
	s := New()
	s.Put([]byte("k"), []byte("v1"))
	assert.Equal(t, 1, s.Count())

	s.Put([]byte("k"), []byte("v2"))
	assert.Equal(t, 1, s.Count())

	v, ok := s.Get([]byte("k"), 0)
	assert.True(t, ok)
	assert.Equal(t, "v2", string(v))
}

func TestPutOverwriteClearsPriorExpiry(t *testing.T) {
	s := New()
	s.PutWithExpiry([]byte("k"), []byte("v1"), 100)
	s.Put([]byte("k"), []byte("v2"))

	v, ok := s.Get([]byte("k"), 999999)
	assert.True(t, ok, "overwrite without expiry must clear the prior deadline")
	assert.Equal(t, "v2", string(v))
}

func TestCountCountsDistinctKeys(t *testing.T) {
	s := New()
	s.Put([]byte("a"), []byte("1"))
	s.Put([]byte("b"), []byte("2"))
	assert.Equal(t, 2, s.Count())
}

func TestValuesAreCopiedNotAliased(t *testing.T) {
	s := New()
	key := []byte("k")
	value := []byte("v")
	s.Put(key, value)
	value[0] = 'X'

	v, ok := s.Get([]byte("k"), 0)
	assert.True(t, ok)
	assert.Equal(t, "v", string(v), "mutating the caller's slice after Put must not affect the stored value")
}
