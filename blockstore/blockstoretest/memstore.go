// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package blockstoretest provides an in-memory blockstore.Store double
// for unit tests that don't need on-disk persistence.
package blockstoretest

import (
	"sort"
	"sync"

	"github.com/luxfi/prism/block"
	"github.com/luxfi/prism/blockstore"
	"github.com/luxfi/prism/ids"
)

// Store is an in-memory blockstore.Store.
type Store struct {
	mu      sync.Mutex
	bodies  map[ids.Hash]*block.Block
	roles   map[ids.Hash]block.Role
	seqByID map[ids.Hash]uint64
	order   []ids.Hash
	next    uint64
}

var _ blockstore.Store = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		bodies:  make(map[ids.Hash]*block.Block),
		roles:   make(map[ids.Hash]block.Role),
		seqByID: make(map[ids.Hash]uint64),
		next:    1,
	}
}

func (s *Store) Put(b *block.Block) (uint64, error) {
	hash := b.Hash()

	s.mu.Lock()
	defer s.mu.Unlock()

	if seq, ok := s.seqByID[hash]; ok {
		return seq, nil
	}
	seq := s.next
	s.next++
	s.bodies[hash] = b
	s.roles[hash] = b.Role
	s.seqByID[hash] = seq
	s.order = append(s.order, hash)
	return seq, nil
}

func (s *Store) Get(hash ids.Hash) (*block.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bodies[hash]
	if !ok {
		return nil, blockstore.ErrNotFound
	}
	return b, nil
}

func (s *Store) GetRole(hash ids.Hash) (block.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[hash]
	if !ok {
		return 0, blockstore.ErrNotFound
	}
	return r, nil
}

func (s *Store) Contains(hash ids.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.bodies[hash]
	return ok
}

func (s *Store) ScanAfter(after uint64, k int) ([]*block.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*block.Block, 0, k)
	for _, hash := range s.order {
		seq := s.seqByID[hash]
		if seq <= after {
			continue
		}
		out = append(out, s.bodies[hash])
		if len(out) == k {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.seqByID[out[i].Hash()] < s.seqByID[out[j].Hash()]
	})
	return out, nil
}
