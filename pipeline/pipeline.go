// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package pipeline links the ledger builder, the UTXO state, and the
// wallet into pull-based serial stages joined by bounded channels: tip
// advances trigger a ledger diff, the diff becomes an ordered stream of
// per-transaction apply/rollback jobs, and the resulting coin diffs
// flow to the wallet.
package pipeline

import (
	"github.com/luxfi/log"

	"github.com/luxfi/prism/block"
	"github.com/luxfi/prism/blockstore"
	"github.com/luxfi/prism/ids"
	"github.com/luxfi/prism/ledger"
	"github.com/luxfi/prism/mempool"
	"github.com/luxfi/prism/utxo"

	"golang.org/x/sync/errgroup"
)

// Wallet consumes the ordered coin diff stream. Implementations must
// be idempotent per coin.
type Wallet interface {
	ApplyDiff(added, removed []utxo.Coin) error
}

// txJob is one unit of UTXO work: apply (add=true) or roll back one
// transaction.
type txJob struct {
	add  bool
	tx   *block.Transaction
	hash ids.Hash
}

// Manager runs the ledger -> UTXO -> wallet stages.
type Manager struct {
	store   blockstore.Store
	builder *ledger.Builder
	utxodb  *utxo.DB
	wallet  Wallet
	pool    *mempool.Pool
	log     log.Logger

	tipSignal chan struct{}
	jobs      chan txJob
	coinDiffs chan utxo.Diff
	quit      chan struct{}
	eg        errgroup.Group
}

// New returns a stopped manager. bufferSize bounds the stage queues.
func New(
	store blockstore.Store,
	builder *ledger.Builder,
	utxodb *utxo.DB,
	wallet Wallet,
	pool *mempool.Pool,
	bufferSize int,
	logger log.Logger,
) *Manager {
	return &Manager{
		store:     store,
		builder:   builder,
		utxodb:    utxodb,
		wallet:    wallet,
		pool:      pool,
		log:       logger,
		tipSignal: make(chan struct{}, 1),
		jobs:      make(chan txJob, bufferSize),
		coinDiffs: make(chan utxo.Diff, bufferSize),
		quit:      make(chan struct{}),
	}
}

// NotifyTipAdvance signals that some voter chain's main-chain tip
// moved. Signals coalesce; the ledger stage recomputes from the latest
// state when it wakes.
func (m *Manager) NotifyTipAdvance() {
	select {
	case m.tipSignal <- struct{}{}:
	default:
	}
}

// Start launches the three stage goroutines. The UTXO stage is a
// single worker: per-coin causality is free when application is
// serial, and parallelism is only legal with jobs partitioned into
// non-overlapping coin sets.
func (m *Manager) Start() {
	m.eg.Go(m.ledgerLoop)
	m.eg.Go(m.utxoLoop)
	m.eg.Go(m.walletLoop)
}

// Stop terminates the stages and returns the first error any stage hit.
func (m *Manager) Stop() error {
	close(m.quit)
	return m.eg.Wait()
}

// ledgerLoop waits for tip advances, computes the transaction diff,
// and dispatches jobs: rollbacks first, already in reverse confirmation
// order down to individual transactions, then applications in forward
// order.
func (m *Manager) ledgerLoop() error {
	for {
		select {
		case <-m.quit:
			return nil
		case <-m.tipSignal:
		}

		diff, err := m.builder.Advance()
		if err != nil {
			m.log.Error("ledger advance failed", "error", err)
			return err
		}
		if diff.Empty() {
			continue
		}
		m.log.Info("ledger advanced",
			"confirmed", len(diff.Added),
			"deconfirmed", len(diff.Removed),
		)

		// diff.Removed is in reverse confirmation order at block
		// granularity; transactions within each block roll back in
		// reverse too, making the stream the exact inverse of the
		// original application order.
		for _, blockHash := range diff.Removed {
			txs, hashes, err := m.transactionsOf(blockHash)
			if err != nil {
				m.log.Error("failed to load deconfirmed block", "hash", blockHash.String(), "error", err)
				return err
			}
			for i := len(txs) - 1; i >= 0; i-- {
				if !m.dispatch(txJob{add: false, tx: txs[i], hash: hashes[i]}) {
					return nil
				}
			}
		}
		for _, blockHash := range diff.Added {
			txs, hashes, err := m.transactionsOf(blockHash)
			if err != nil {
				m.log.Error("failed to load confirmed block", "hash", blockHash.String(), "error", err)
				return err
			}
			for i := range txs {
				m.evictConfirmed(txs[i], hashes[i])
				if !m.dispatch(txJob{add: true, tx: txs[i], hash: hashes[i]}) {
					return nil
				}
			}
		}
	}
}

func (m *Manager) dispatch(job txJob) bool {
	select {
	case m.jobs <- job:
		return true
	case <-m.quit:
		return false
	}
}

// evictConfirmed drops a confirmed transaction from the mempool and
// cascades out every pending transaction spending the same inputs.
func (m *Manager) evictConfirmed(tx *block.Transaction, hash ids.Hash) {
	m.pool.RemoveByHash(hash)
	for _, in := range tx.Inputs {
		m.pool.RemoveByInput(in.Coin)
	}
}

func (m *Manager) transactionsOf(blockHash ids.Hash) ([]*block.Transaction, []ids.Hash, error) {
	b, err := m.store.Get(blockHash)
	if err != nil {
		return nil, nil, err
	}
	content := b.Transaction.Transactions
	txs := make([]*block.Transaction, len(content))
	hashes := make([]ids.Hash, len(content))
	for i := range content {
		txs[i] = &content[i]
		hashes[i] = content[i].Hash()
	}
	return txs, hashes, nil
}

func (m *Manager) utxoLoop() error {
	for {
		select {
		case <-m.quit:
			return nil
		case job := <-m.jobs:
			var diff utxo.Diff
			var applied bool
			var err error
			if job.add {
				diff, applied, err = m.utxodb.AddTransaction(job.tx, job.hash)
			} else {
				diff, applied, err = m.utxodb.RemoveTransaction(job.tx, job.hash)
			}
			if err != nil {
				m.log.Error("utxo update failed", "tx", job.hash.String(), "error", err)
				return err
			}
			if !applied {
				// Invalidated by a sibling spend; skipping keeps the
				// coin stream consistent with the state.
				m.log.Debug("skipped transaction with missing coins", "tx", job.hash.String())
				continue
			}
			select {
			case m.coinDiffs <- diff:
			case <-m.quit:
				return nil
			}
		}
	}
}

func (m *Manager) walletLoop() error {
	for {
		select {
		case <-m.quit:
			return nil
		case diff := <-m.coinDiffs:
			if err := m.wallet.ApplyDiff(diff.Added, diff.Removed); err != nil {
				m.log.Error("wallet diff failed", "error", err)
				return err
			}
		}
	}
}
