// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wallet tracks the coins owned by a set of addresses, driven
// by the ordered coin diff stream from the UTXO stage. Key storage and
// transaction authoring live outside the consensus core; only the
// apply-diff contract is implemented here.
package wallet

import (
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/luxfi/prism/ids"
	"github.com/luxfi/prism/utils/set"
	"github.com/luxfi/prism/utils/wrappers"
	"github.com/luxfi/prism/utxo"
)

// Wallet is a LevelDB-backed coin view over the owned addresses.
// ApplyDiff is idempotent per coin.
type Wallet struct {
	db *leveldb.DB

	mu        sync.RWMutex
	addresses set.Set[ids.Address]
}

// Open opens (creating if absent) a wallet database at path.
func Open(path string) (*Wallet, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Wallet{db: db, addresses: set.NewSet[ids.Address](1)}, nil
}

// OpenMemory returns a wallet backed by in-memory storage, used by
// tests and simulations.
func OpenMemory() (*Wallet, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Wallet{db: db, addresses: set.NewSet[ids.Address](1)}, nil
}

// Close releases the underlying database handle.
func (w *Wallet) Close() error {
	return w.db.Close()
}

// AddAddress registers an owned address; subsequent diffs touching it
// are tracked.
func (w *Wallet) AddAddress(addr ids.Address) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.addresses.Add(addr)
}

func (w *Wallet) owns(addr ids.Address) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.addresses.Contains(addr)
}

func coinKey(id ids.CoinID) []byte {
	p := wrappers.NewPacker(ids.HashLen + 4)
	p.PackFixedBytes(id.TxHash[:])
	p.PackInt(id.Index)
	return p.Bytes
}

// ApplyDiff records added coins owned by this wallet and forgets
// removed ones, atomically.
func (w *Wallet) ApplyDiff(added, removed []utxo.Coin) error {
	batch := new(leveldb.Batch)
	for _, c := range added {
		if !w.owns(c.Owner) {
			continue
		}
		p := wrappers.NewPacker(8)
		p.PackLong(c.Value)
		batch.Put(coinKey(c.ID), p.Bytes)
	}
	for _, c := range removed {
		batch.Delete(coinKey(c.ID))
	}
	return w.db.Write(batch, nil)
}

// Balance returns the sum of the values of every tracked coin.
func (w *Wallet) Balance() (uint64, error) {
	iter := w.db.NewIterator(nil, nil)
	defer iter.Release()
	var sum uint64
	for iter.Next() {
		u := wrappers.NewUnpacker(iter.Value())
		sum += u.UnpackLong()
	}
	return sum, iter.Error()
}
