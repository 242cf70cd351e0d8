// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"encoding/json"
	"fmt"

	"github.com/luxfi/dax/pkg/auction"
	"github.com/luxfi/dax/pkg/ids"
	"github.com/luxfi/dax/pkg/log"
)

// Keyspace prefixes. Approval flags live under their own prefix so a
// flag write never rewrites the auction record.
var (
	auctionPrefix  = []byte("auction/")
	approvalPrefix = []byte("approval/")
)

// Store persists auction snapshots and approval flags on a Storage
// backend.
type Store struct {
	kv  *Storage
	log log.Logger
}

// NewStore wraps a storage backend with the auction record schema.
func NewStore(kv *Storage, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NoLog
	}
	return &Store{kv: kv, log: logger}
}

// Save writes an auction snapshot, replacing any previous record.
func (s *Store) Save(snap auction.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding auction %s: %w", snap.Spec.ID, err)
	}
	if err := s.kv.Put(auctionKey(snap.Spec.ID), raw); err != nil {
		return fmt.Errorf("writing auction %s: %w", snap.Spec.ID, err)
	}
	s.log.Debug("auction record saved", "auction", snap.Spec.ID, "status", snap.Status)
	return nil
}

// LoadAuction reads one auction snapshot.
func (s *Store) LoadAuction(id ids.ID) (auction.Snapshot, error) {
	var snap auction.Snapshot
	raw, err := s.kv.Get(auctionKey(id))
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(raw, &snap); err != nil {
		return snap, fmt.Errorf("decoding auction %s: %w", id, err)
	}
	return snap, nil
}

// LoadAuctions reads every stored auction snapshot.
func (s *Store) LoadAuctions() ([]auction.Snapshot, error) {
	values, err := s.kv.List(auctionPrefix)
	if err != nil {
		return nil, err
	}
	snaps := make([]auction.Snapshot, 0, len(values))
	for _, raw := range values {
		var snap auction.Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil, fmt.Errorf("decoding auction record: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// SaveApproval marks an auction approved for activation.
func (s *Store) SaveApproval(id ids.ID) error {
	if err := s.kv.Put(approvalKey(id), []byte{1}); err != nil {
		return fmt.Errorf("writing approval %s: %w", id, err)
	}
	s.log.Debug("approval saved", "auction", id)
	return nil
}

// HasApproval reports whether an approval flag is stored.
func (s *Store) HasApproval(id ids.ID) (bool, error) {
	return s.kv.Has(approvalKey(id))
}

// LoadApprovals returns the ids of every approved auction.
func (s *Store) LoadApprovals() ([]ids.ID, error) {
	keys, err := s.kv.Keys(approvalPrefix)
	if err != nil {
		return nil, err
	}
	approved := make([]ids.ID, 0, len(keys))
	for _, key := range keys {
		var id ids.ID
		if err := id.UnmarshalText(key[len(approvalPrefix):]); err != nil {
			return nil, fmt.Errorf("decoding approval key %q: %w", key, err)
		}
		approved = append(approved, id)
	}
	return approved, nil
}

func auctionKey(id ids.ID) []byte {
	return append(auctionPrefix, []byte(id.String())...)
}

func approvalKey(id ids.ID) []byte {
	return append(approvalPrefix, []byte(id.String())...)
}

var _ auction.RecordSaver = (*Store)(nil)
