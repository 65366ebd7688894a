// Package store implements the keyspace: an owned string-to-entry mapping
// with millisecond-precision lazy-expiry reads.
package store

import (
	"sync/atomic"
)

// Entry is the value half of the keyspace mapping: a byte string plus an
// optional absolute expiry deadline in epoch milliseconds. HasExpireAt false
// means never-expire, and ExpireAtMs is then ignored.
type Entry struct {
	Value       []byte
	ExpireAtMs  int64
	HasExpireAt bool
}

// Store is the process-wide keyspace. It is only ever touched from the
// event loop goroutine: no locks guard data. The one atomic field,
// entryCount, exists purely so Count can be read without walking the map;
// it is still only ever written from the loop thread.
type Store struct {
	data       map[string]Entry
	entryCount atomic.Int64
}

// New returns an empty keyspace.
func New() *Store {
	return &Store{data: make(map[string]Entry)}
}

// Put upserts key with value and no expiry, replacing any prior entry.
// Key and value are copied into keyspace-owned storage; callers may reuse
// or discard the slices they passed in immediately after the call returns.
func (s *Store) Put(key, value []byte) {
	s.put(key, value, 0, false)
}

// PutWithExpiry upserts key with value and an absolute expiry deadline in
// epoch milliseconds.
func (s *Store) PutWithExpiry(key, value []byte, deadlineMs int64) {
	s.put(key, value, deadlineMs, true)
}

func (s *Store) put(key, value []byte, deadlineMs int64, hasDeadline bool) {
	k := string(key)
	v := make([]byte, len(value))
	copy(v, value)

	if _, existed := s.data[k]; !existed {
		s.entryCount.Add(1)
	}
	s.data[k] = Entry{Value: v, ExpireAtMs: deadlineMs, HasExpireAt: hasDeadline}
}

// Get returns the value stored for key and whether it is present. A present
// entry whose deadline has passed is treated as absent (lazy expiry): the
// stale Entry is not removed on read and stays in the map until a later Put
// of the same key overwrites it.
func (s *Store) Get(key []byte, nowMs int64) ([]byte, bool) {
	e, ok := s.data[string(key)]
	if !ok {
		return nil, false
	}
	if e.HasExpireAt && nowMs >= e.ExpireAtMs {
		return nil, false
	}
	return e.Value, true
}

// Count returns the number of entries in the keyspace, including any
// expired-but-not-yet-reaped entries.
func (s *Store) Count() int {
	return int(s.entryCount.Load())
}
