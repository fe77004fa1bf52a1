// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package utxo is the coin state machine driven by the confirmed and
// deconfirmed transaction stream: forward application deletes inputs
// and creates outputs, rollback reverses both directions exactly.
package utxo

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/luxfi/prism/block"
	"github.com/luxfi/prism/ids"
	"github.com/luxfi/prism/utils/wrappers"
)

// Coin is one UTXO entry as reported on the coin diff stream.
type Coin struct {
	ID    ids.CoinID
	Value uint64
	Owner ids.Address
}

// Diff is the coin delta produced by applying or rolling back one
// transaction.
type Diff struct {
	Added   []Coin
	Removed []Coin
}

// DB maps coin IDs to (value, recipient) in a single LevelDB keyspace.
// Each transaction's changes are written atomically.
type DB struct {
	db *leveldb.DB
}

// Open opens (creating if absent) the UTXO database at path.
func Open(path string) (*DB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &DB{db: db}, nil
}

// OpenMemory returns a UTXO database backed by in-memory storage, used
// by tests and simulations.
func OpenMemory() (*DB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &DB{db: db}, nil
}

// Close releases the underlying database handle.
func (d *DB) Close() error {
	return d.db.Close()
}

func coinKey(id ids.CoinID) []byte {
	p := wrappers.NewPacker(ids.HashLen + 4)
	p.PackFixedBytes(id.TxHash[:])
	p.PackInt(id.Index)
	return p.Bytes
}

func encodeCoinData(value uint64, owner ids.Address) []byte {
	p := wrappers.NewPacker(8 + ids.HashLen)
	p.PackLong(value)
	p.PackFixedBytes(owner[:])
	return p.Bytes
}

func decodeCoinData(b []byte) (value uint64, owner ids.Address) {
	u := wrappers.NewUnpacker(b)
	value = u.UnpackLong()
	copy(owner[:], u.UnpackFixedBytes(ids.HashLen))
	return value, owner
}

// Contains reports whether the coin is currently unspent.
func (d *DB) Contains(id ids.CoinID) (bool, error) {
	return d.db.Has(coinKey(id), nil)
}

// Get returns the coin's value and owner.
func (d *DB) Get(id ids.CoinID) (Coin, error) {
	v, err := d.db.Get(coinKey(id), nil)
	if err != nil {
		return Coin{}, err
	}
	value, owner := decodeCoinData(v)
	return Coin{ID: id, Value: value, Owner: owner}, nil
}

// AddTransaction applies tx forward: every input coin is deleted and
// every output coin is created, atomically. If any input is already
// missing the transaction was invalidated by a sibling spend; the whole
// transaction is skipped and ok=false is returned with an empty diff,
// so the downstream coin stream stays consistent.
func (d *DB) AddTransaction(tx *block.Transaction, hash ids.Hash) (Diff, bool, error) {
	var diff Diff
	batch := new(leveldb.Batch)

	for _, in := range tx.Inputs {
		key := coinKey(in.Coin)
		v, err := d.db.Get(key, nil)
		if err == leveldb.ErrNotFound {
			return Diff{}, false, nil
		} else if err != nil {
			return Diff{}, false, err
		}
		value, owner := decodeCoinData(v)
		batch.Delete(key)
		diff.Removed = append(diff.Removed, Coin{ID: in.Coin, Value: value, Owner: owner})
	}
	for j, out := range tx.Outputs {
		id := ids.CoinID{TxHash: hash, Index: uint32(j)}
		batch.Put(coinKey(id), encodeCoinData(out.Value, out.Recipient))
		diff.Added = append(diff.Added, Coin{ID: id, Value: out.Value, Owner: out.Recipient})
	}

	if err := d.db.Write(batch, nil); err != nil {
		return Diff{}, false, err
	}
	return diff, true, nil
}

// RemoveTransaction rolls tx back: the exact inverse of AddTransaction.
// Output coins (hash, j) are deleted and input coins are re-created
// with their recorded value and owner. A transaction that was skipped
// on application (its outputs never existed) is skipped here too, with
// ok=false.
func (d *DB) RemoveTransaction(tx *block.Transaction, hash ids.Hash) (Diff, bool, error) {
	if len(tx.Outputs) > 0 {
		applied, err := d.db.Has(coinKey(ids.CoinID{TxHash: hash, Index: 0}), nil)
		if err != nil {
			return Diff{}, false, err
		}
		if !applied {
			return Diff{}, false, nil
		}
	}

	var diff Diff
	batch := new(leveldb.Batch)

	for j, out := range tx.Outputs {
		id := ids.CoinID{TxHash: hash, Index: uint32(j)}
		batch.Delete(coinKey(id))
		diff.Removed = append(diff.Removed, Coin{ID: id, Value: out.Value, Owner: out.Recipient})
	}
	for _, in := range tx.Inputs {
		batch.Put(coinKey(in.Coin), encodeCoinData(in.Value, in.Owner))
		diff.Added = append(diff.Added, Coin{ID: in.Coin, Value: in.Value, Owner: in.Owner})
	}

	if err := d.db.Write(batch, nil); err != nil {
		return Diff{}, false, err
	}
	return diff, true, nil
}
