// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package blockstore provides content-addressed persistence for blocks
// and their role tags, plus the monotonic insert-sequence bookkeeping
// used for bootstrap scans.
package blockstore

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/luxfi/prism/block"
	"github.com/luxfi/prism/codec"
	"github.com/luxfi/prism/ids"
)

// ErrNotFound is returned when a block or its type tag is absent.
var ErrNotFound = errors.New("blockstore: not found")

// Store is the content-addressed block persistence contract. The
// production LevelDB store and the in-memory test double
// (blockstoretest) both implement it.
type Store interface {
	// Put inserts b if not already present (idempotent) and returns its
	// assigned insert sequence number.
	Put(b *block.Block) (seq uint64, err error)
	// Get returns the block stored under hash.
	Get(hash ids.Hash) (*block.Block, error)
	// GetRole returns the role tag stored under hash without
	// deserializing the body.
	GetRole(hash ids.Hash) (block.Role, error)
	// Contains reports whether hash is known.
	Contains(hash ids.Hash) bool
	// ScanAfter returns up to k blocks with insert sequence number
	// strictly greater than after, in sequence order.
	ScanAfter(after uint64, k int) ([]*block.Block, error)
}

// Column-family key prefixes, conceptually separate keyspaces within
// the single LevelDB engine: one for block bodies, one for role tags,
// three for the insert-sequence bookkeeping (sequence -> hash, the
// counter, and the hash -> sequence index built by seqIndexKey).
const (
	prefixBody byte = 'b'
	prefixRole byte = 'r'
	prefixSeq  byte = 's' // seq(8 bytes big-endian) -> hash, for ScanAfter
	prefixCtr  byte = 'c' // singleton: next insert counter
)

var counterKey = []byte{prefixCtr}

// LevelDB is a goleveldb-backed Store. Safe for concurrent use;
// goleveldb itself is safe for concurrent reads and writes, and the
// insert-sequence counter is additionally guarded so Put is atomic with
// respect to sequence assignment.
type LevelDB struct {
	mu sync.Mutex
	db *leveldb.DB
}

// Open opens (creating if absent) a LevelDB-backed store at path.
func Open(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Close releases the underlying database handle.
func (s *LevelDB) Close() error {
	return s.db.Close()
}

func bodyKey(h ids.Hash) []byte {
	return append([]byte{prefixBody}, h[:]...)
}

func roleKey(h ids.Hash) []byte {
	return append([]byte{prefixRole}, h[:]...)
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 9)
	k[0] = prefixSeq
	binary.BigEndian.PutUint64(k[1:], seq)
	return k
}

func (s *LevelDB) Put(b *block.Block) (uint64, error) {
	hash := b.Hash()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ok, err := s.db.Has(bodyKey(hash), nil); err != nil {
		return 0, err
	} else if ok {
		// Idempotent: duplicate inserts do not consume a new sequence
		// number or overwrite the body.
		existing, err := s.db.Get(seqOfExistingKey(hash), nil)
		if err == nil {
			return binary.BigEndian.Uint64(existing), nil
		}
		return 0, nil
	}

	body, err := codec.MarshalBlock(b)
	if err != nil {
		return 0, err
	}

	seq, err := s.nextSeqLocked()
	if err != nil {
		return 0, err
	}

	batch := new(leveldb.Batch)
	batch.Put(bodyKey(hash), body)
	batch.Put(roleKey(hash), []byte{byte(b.Role)})
	batch.Put(seqKey(seq), hash[:])
	batch.Put(seqIndexKey(hash), encodeSeq(seq))
	if err := s.db.Write(batch, nil); err != nil {
		return 0, err
	}
	return seq, nil
}

// seqIndexKey maps a hash back to its assigned sequence number, used to
// make repeated Put calls for the same block idempotently return the
// original sequence.
func seqIndexKey(h ids.Hash) []byte {
	return append([]byte{'x'}, h[:]...)
}

func seqOfExistingKey(h ids.Hash) []byte {
	return seqIndexKey(h)
}

func encodeSeq(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func (s *LevelDB) nextSeqLocked() (uint64, error) {
	cur, err := s.db.Get(counterKey, nil)
	var next uint64
	if err == leveldb.ErrNotFound {
		// Sequence numbers start at 1 so a bootstrap scan with after=0
		// covers the whole store.
		next = 1
	} else if err != nil {
		return 0, err
	} else {
		next = binary.BigEndian.Uint64(cur) + 1
	}
	if err := s.db.Put(counterKey, encodeSeq(next), nil); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *LevelDB) Get(hash ids.Hash) (*block.Block, error) {
	body, err := s.db.Get(bodyKey(hash), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return codec.UnmarshalBlock(body)
}

func (s *LevelDB) GetRole(hash ids.Hash) (block.Role, error) {
	v, err := s.db.Get(roleKey(hash), nil)
	if err == leveldb.ErrNotFound {
		return 0, ErrNotFound
	} else if err != nil {
		return 0, err
	}
	return block.Role(v[0]), nil
}

func (s *LevelDB) Contains(hash ids.Hash) bool {
	ok, _ := s.db.Has(bodyKey(hash), nil)
	return ok
}

func (s *LevelDB) ScanAfter(after uint64, k int) ([]*block.Block, error) {
	start := seqKey(after + 1)
	end := []byte{prefixSeq + 1}
	iter := s.db.NewIterator(&util.Range{Start: start, Limit: end}, nil)
	defer iter.Release()

	out := make([]*block.Block, 0, k)
	for len(out) < k && iter.Next() {
		var hash ids.Hash
		copy(hash[:], iter.Value())
		b, err := s.Get(hash)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, iter.Error()
}
