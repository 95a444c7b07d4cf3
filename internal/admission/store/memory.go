package store

import (
	"context"
	"sync"

	dErrors "auditgate/pkg/domain-errors"
	"auditgate/pkg/keyedmutex"
)

// Memory implements Store with an in-process map. Reads are lock-free;
// mutations serialize per key shard so a CompareAndPut never interleaves
// with another write on the same key.
type Memory struct {
	records sync.Map // key -> *Record
	locks   *keyedmutex.KeyedMutex
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		locks: keyedmutex.New(),
	}
}

// Get returns the record for key, or nil if absent.
func (s *Memory) Get(_ context.Context, key string) (*Record, error) {
	v, ok := s.records.Load(key)
	if !ok {
		return nil, nil
	}
	return v.(*Record), nil
}

// Put writes value unconditionally, bumping the version past any existing record.
func (s *Memory) Put(_ context.Context, key string, value any) error {
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	version := int64(1)
	if v, ok := s.records.Load(key); ok {
		version = v.(*Record).Version + 1
	}
	s.records.Store(key, &Record{Value: value, Version: version})
	return nil
}

// CompareAndPut writes value only if the current version matches expectedVersion.
func (s *Memory) CompareAndPut(_ context.Context, key string, value any, expectedVersion int64) error {
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	current := int64(VersionAbsent)
	if v, ok := s.records.Load(key); ok {
		current = v.(*Record).Version
	}
	if current != expectedVersion {
		return dErrors.New(dErrors.CodeConflict, "record version changed")
	}

	s.records.Store(key, &Record{Value: value, Version: current + 1})
	return nil
}

// Delete removes the record for key.
func (s *Memory) Delete(_ context.Context, key string) error {
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	s.records.Delete(key)
	return nil
}
