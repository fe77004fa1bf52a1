// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package mempool holds pending transactions in FIFO order with
// by-hash and by-input indices, and evicts dependents transitively when
// an input is consumed elsewhere.
package mempool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/prism/block"
	"github.com/luxfi/prism/ids"
	"github.com/luxfi/prism/utils/linked"
)

var errFailedSizeMetric = errors.New("failed to register mempool size metric")

// Entry is one pending transaction with its assigned storage index.
type Entry struct {
	Transaction  *block.Transaction
	Hash         ids.Hash
	StorageIndex uint64
}

// Pool is the transaction memory pool. A single exclusive lock guards
// every operation; cascading removal uses an explicit work queue, never
// unbounded recursion.
type Pool struct {
	mu       sync.Mutex
	counter  uint64
	capacity int
	log      log.Logger

	byHash map[ids.Hash]*Entry
	// byInput maps each consumed coin to the pending transaction
	// spending it, for double-spend checks and cascade eviction.
	byInput map[ids.CoinID]ids.Hash
	// byStorageIndex preserves insertion order, giving deterministic
	// FIFO selection.
	byStorageIndex *linked.Hashmap[uint64, ids.Hash]

	size prometheus.Gauge
}

// New returns an empty pool holding at most capacity transactions.
func New(capacity int, logger log.Logger, reg prometheus.Registerer) (*Pool, error) {
	p := &Pool{
		capacity:       capacity,
		log:            logger,
		byHash:         make(map[ids.Hash]*Entry),
		byInput:        make(map[ids.CoinID]ids.Hash),
		byStorageIndex: linked.NewHashmap[uint64, ids.Hash](),
	}
	p.size = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mempool_transactions",
		Help: "Number of pending transactions in the mempool",
	})
	if err := reg.Register(p.size); err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedSizeMetric, err)
	}
	return p, nil
}

// Insert adds tx to the pool, assigning the next storage index. The
// caller must have checked Contains and IsDoubleSpend; a duplicate or
// over-capacity insert is dropped and reported false.
func (p *Pool) Insert(tx *block.Transaction) bool {
	hash := tx.Hash()

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.byHash[hash]; ok {
		return false
	}
	if len(p.byHash) >= p.capacity {
		p.log.Debug("mempool full, dropping transaction", "tx", hash.String())
		return false
	}

	entry := &Entry{
		Transaction:  tx,
		Hash:         hash,
		StorageIndex: p.counter,
	}
	p.counter++

	for _, in := range tx.Inputs {
		p.byInput[in.Coin] = hash
	}
	p.byStorageIndex.Put(entry.StorageIndex, hash)
	p.byHash[hash] = entry
	p.size.Set(float64(len(p.byHash)))
	return true
}

// Get returns the entry stored under h.
func (p *Pool) Get(h ids.Hash) (*Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.byHash[h]
	return e, ok
}

// Contains reports whether h is pending.
func (p *Pool) Contains(h ids.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byHash[h]
	return ok
}

// IsDoubleSpend reports whether any input is already consumed by a
// pending transaction.
func (p *Pool) IsDoubleSpend(inputs []block.Input) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, in := range inputs {
		if _, ok := p.byInput[in.Coin]; ok {
			return true
		}
	}
	return false
}

// RemoveByHash removes the transaction stored under h, if present.
func (p *Pool) RemoveByHash(h ids.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(h)
}

func (p *Pool) removeLocked(h ids.Hash) *Entry {
	entry, ok := p.byHash[h]
	if !ok {
		return nil
	}
	for _, in := range entry.Transaction.Inputs {
		delete(p.byInput, in.Coin)
	}
	p.byStorageIndex.Delete(entry.StorageIndex)
	delete(p.byHash, h)
	p.size.Set(float64(len(p.byHash)))
	return entry
}

// RemoveByInput removes the transaction consuming coin, then cascades:
// any pending transaction spending an output of a removed transaction
// is removed too, breadth-first via a work queue.
func (p *Pool) RemoveByInput(coin ids.CoinID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	queue := []ids.CoinID{coin}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		hash, ok := p.byInput[next]
		if !ok {
			continue
		}
		entry := p.removeLocked(hash)
		if entry == nil {
			continue
		}
		for j := range entry.Transaction.Outputs {
			queue = append(queue, ids.CoinID{TxHash: hash, Index: uint32(j)})
		}
	}
}

// GetTransactions returns up to n entries in storage-index (FIFO)
// order.
func (p *Pool) GetTransactions(n int) []*Entry {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*Entry, 0, n)
	iter := p.byStorageIndex.NewIterator()
	for len(out) < n && iter.Next() {
		out = append(out, p.byHash[iter.Value()])
	}
	return out
}

// Len returns the number of pending transactions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byHash)
}
