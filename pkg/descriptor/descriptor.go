// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package descriptor stores item descriptor documents content-addressed
// by their BLAKE2b-256 hash. An auction spec pins the hash; the document
// itself lives here.
package descriptor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/dax/pkg/ids"
	"github.com/luxfi/dax/pkg/log"
	"github.com/luxfi/dax/pkg/storage"
)

var (
	ErrEmptyDescriptor = errors.New("empty descriptor")
	ErrTooLarge        = errors.New("descriptor exceeds maximum size")
	ErrCorrupted       = errors.New("descriptor does not match its hash")
)

// MaxDescriptorSize caps a stored document at 64KB.
const MaxDescriptorSize = 64 * 1024

var descriptorPrefix = []byte("descriptor/")

// Store is a content-addressed descriptor store on a storage backend.
type Store struct {
	mu sync.Mutex

	kv *storage.Storage

	// Counters
	stored    uint64
	retrieved uint64

	log log.Logger
}

// NewStore creates a descriptor store.
func NewStore(kv *storage.Storage, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NoLog
	}
	return &Store{kv: kv, log: logger}
}

// Put stores a descriptor and returns its content hash. Storing the same
// bytes twice lands on the same hash.
func (s *Store) Put(data []byte) (ids.ID, error) {
	if len(data) == 0 {
		return ids.Empty, ErrEmptyDescriptor
	}
	if len(data) > MaxDescriptorSize {
		return ids.Empty, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	hash := ids.NewID(data)
	if err := s.kv.Put(descriptorKey(hash), data); err != nil {
		return ids.Empty, fmt.Errorf("writing descriptor %s: %w", hash, err)
	}
	s.stored++

	s.log.Debug("descriptor stored", "hash", hash, "size", len(data))
	return hash, nil
}

// Get retrieves a descriptor and verifies it against its hash.
func (s *Store) Get(hash ids.ID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.kv.Get(descriptorKey(hash))
	if err != nil {
		return nil, err
	}
	if ids.NewID(data) != hash {
		return nil, fmt.Errorf("%w: %s", ErrCorrupted, hash)
	}
	s.retrieved++

	return data, nil
}

// Has reports whether a descriptor is stored.
func (s *Store) Has(hash ids.ID) (bool, error) {
	return s.kv.Has(descriptorKey(hash))
}

// Stats reports store counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Stored:    s.stored,
		Retrieved: s.retrieved,
	}
}

// Stats represents descriptor store counters.
type Stats struct {
	Stored    uint64 `json:"stored"`
	Retrieved uint64 `json:"retrieved"`
}

func descriptorKey(hash ids.ID) []byte {
	return append(descriptorPrefix, []byte(hash.String())...)
}
