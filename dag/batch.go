// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dag

import (
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/luxfi/prism/ids"
)

// writeBatch stages one InsertBlock's column writes and commits them
// atomically. Merge operations are emulated as read-modify-write: reads
// consult the staged overlay first so repeated merges on the same key
// within one insert compose in write order, exactly as a native merge
// operator would apply its operands.
type writeBatch struct {
	db      *leveldb.DB
	pending map[string][]byte
	batch   *leveldb.Batch
}

func newBatch(db *leveldb.DB) *writeBatch {
	return &writeBatch{
		db:      db,
		pending: make(map[string][]byte),
		batch:   new(leveldb.Batch),
	}
}

func (b *writeBatch) get(key []byte) ([]byte, error) {
	if v, ok := b.pending[string(key)]; ok {
		return v, nil
	}
	v, err := b.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	return v, err
}

func (b *writeBatch) put(key, val []byte) {
	b.pending[string(key)] = val
	b.batch.Put(key, val)
}

func (b *writeBatch) mergeAppendHash(key []byte, h ids.Hash) error {
	existing, err := b.get(key)
	if err != nil {
		return err
	}
	b.put(key, appendHashVec(existing, h))
	return nil
}

type mergeOutcome struct {
	removeMiss    bool
	levelMismatch bool
}

func (b *writeBatch) mergeVote(key []byte, add bool, chain uint16, level uint64) (mergeOutcome, error) {
	existing, err := b.get(key)
	if err != nil {
		return mergeOutcome{}, err
	}
	out, miss, mismatch := voteVecApply(existing, add, chain, level)
	b.put(key, out)
	return mergeOutcome{removeMiss: miss, levelMismatch: mismatch}, nil
}

func (b *writeBatch) commit() error {
	return b.db.Write(b.batch, nil)
}
