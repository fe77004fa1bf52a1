// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package net

import (
	"sync"

	"github.com/luxfi/log"

	"github.com/luxfi/prism/block"
	"github.com/luxfi/prism/blockstore"
	"github.com/luxfi/prism/dag"
	"github.com/luxfi/prism/ids"
	"github.com/luxfi/prism/mempool"
	"github.com/luxfi/prism/orphan"
	"github.com/luxfi/prism/utils/set"
	"github.com/luxfi/prism/validator"
)

// bootstrapBatch is the number of blocks served per Blocks frame when
// answering a bootstrap request.
const bootstrapBatch = 500

// Inbound is one received message with its source peer.
type Inbound struct {
	Message *Message
	From    Peer
}

// Worker is the shared state of the message-handling pool: K
// goroutines pull from one channel, validate against the chain and
// store, and insert or buffer. Validation and buffer insertion happen
// under one critical section per block so a dependency arriving
// between them cannot be lost.
type Worker struct {
	chain     *dag.BlockChain
	store     blockstore.Store
	pool      *mempool.Pool
	validator *validator.Validator
	buffer    *orphan.Buffer
	broadcast Broadcaster
	log       log.Logger

	// onInsert runs after every successful DAG insertion, outside the
	// processing lock. The pipeline uses it to feed the ledger builder
	// and wake the miner.
	onInsert func(dag.NewBlockInfo)

	// processMu serializes block validation+insertion+satisfy across
	// workers; see orphan.Buffer.Insert.
	processMu sync.Mutex

	msgs <-chan Inbound
	quit chan struct{}
	wg   sync.WaitGroup
}

// NewWorker returns a worker pool over msgs. onInsert may be nil.
func NewWorker(
	chain *dag.BlockChain,
	store blockstore.Store,
	pool *mempool.Pool,
	v *validator.Validator,
	buffer *orphan.Buffer,
	broadcast Broadcaster,
	msgs <-chan Inbound,
	onInsert func(dag.NewBlockInfo),
	logger log.Logger,
) *Worker {
	if onInsert == nil {
		onInsert = func(dag.NewBlockInfo) {}
	}
	return &Worker{
		chain:     chain,
		store:     store,
		pool:      pool,
		validator: v,
		buffer:    buffer,
		broadcast: broadcast,
		log:       logger,
		onInsert:  onInsert,
		msgs:      msgs,
		quit:      make(chan struct{}),
	}
}

// Start launches n worker goroutines.
func (w *Worker) Start(n int) {
	for i := 0; i < n; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.loop()
		}()
	}
}

// Stop terminates the workers and waits for them to exit.
func (w *Worker) Stop() {
	close(w.quit)
	w.wg.Wait()
}

func (w *Worker) loop() {
	for {
		select {
		case <-w.quit:
			return
		case in, ok := <-w.msgs:
			if !ok {
				return
			}
			w.handle(in)
		}
	}
}

func (w *Worker) handle(in Inbound) {
	m := in.Message
	switch m.Kind {
	case KindPing:
		w.log.Debug("ping", "text", m.Text)
		in.From.Send(&Message{Kind: KindPong, Text: m.Text})
	case KindPong:
		w.log.Debug("pong", "text", m.Text)
	case KindNewTransactionHashes:
		w.handleNewTransactionHashes(m, in.From)
	case KindGetTransactions:
		w.handleGetTransactions(m, in.From)
	case KindTransactions:
		w.handleTransactions(m)
	case KindNewBlockHashes:
		w.handleNewBlockHashes(m, in.From)
	case KindGetBlocks:
		w.handleGetBlocks(m, in.From)
	case KindBlocks:
		w.handleBlocks(m)
	case KindBootstrap:
		w.handleBootstrap(m, in.From)
	default:
		w.log.Warn("unknown message kind", "kind", uint8(m.Kind))
	}
}

func (w *Worker) handleNewTransactionHashes(m *Message, from Peer) {
	var request []ids.Hash
	for _, h := range m.Hashes {
		if !w.pool.Contains(h) {
			request = append(request, h)
		}
	}
	if len(request) > 0 {
		from.Send(&Message{Kind: KindGetTransactions, Hashes: request})
	}
}

func (w *Worker) handleGetTransactions(m *Message, from Peer) {
	var txs []*block.Transaction
	for _, h := range m.Hashes {
		if e, ok := w.pool.Get(h); ok {
			txs = append(txs, e.Transaction)
		}
	}
	from.Send(&Message{Kind: KindTransactions, Transactions: txs})
}

func (w *Worker) handleTransactions(m *Message) {
	var accepted []ids.Hash
	for _, tx := range m.Transactions {
		hash := tx.Hash()
		if w.pool.Contains(hash) || w.pool.IsDoubleSpend(tx.Inputs) {
			continue
		}
		if w.pool.Insert(tx) {
			accepted = append(accepted, hash)
		}
	}
	if len(accepted) > 0 {
		w.broadcast.Broadcast(&Message{Kind: KindNewTransactionHashes, Hashes: accepted})
	}
}

func (w *Worker) handleNewBlockHashes(m *Message, from Peer) {
	var request []ids.Hash
	for _, h := range m.Hashes {
		if !w.store.Contains(h) {
			request = append(request, h)
		}
	}
	if len(request) > 0 {
		from.Send(&Message{Kind: KindGetBlocks, Hashes: request})
	}
}

func (w *Worker) handleGetBlocks(m *Message, from Peer) {
	var blocks []*block.Block
	for _, h := range m.Hashes {
		if b, err := w.store.Get(h); err == nil {
			blocks = append(blocks, b)
		}
	}
	from.Send(&Message{Kind: KindBlocks, Blocks: blocks})
}

// handleBlocks runs each delivered block through validate -> buffer or
// insert -> satisfy, iterating over the blocks the satisfy calls free.
// Unknown missing hashes are deduplicated across the whole batch before
// being requested.
func (w *Worker) handleBlocks(m *Message) {
	w.processMu.Lock()
	defer w.processMu.Unlock()

	toProcess := append([]*block.Block(nil), m.Blocks...)
	toRequest := set.NewSet[ids.Hash](4)
	var inserted []dag.NewBlockInfo

	for len(toProcess) > 0 {
		b := toProcess[len(toProcess)-1]
		toProcess = toProcess[:len(toProcess)-1]
		hash := b.Hash()

		result := w.validator.Validate(b)
		switch result.Outcome {
		case validator.MissingParent, validator.MissingReferences:
			w.log.Debug("buffering block with missing dependencies",
				"hash", hash.String(),
				"missing", len(result.Missing),
			)
			w.buffer.Insert(b, result.Missing)
			for _, missing := range result.Missing {
				if !w.store.Contains(missing) {
					toRequest.Add(missing)
				}
			}
		case validator.Pass:
			info, err := w.insertValidated(b)
			if err != nil {
				w.log.Error("failed to insert validated block",
					"hash", hash.String(),
					"error", err,
				)
				continue
			}
			inserted = append(inserted, info)
			toProcess = append(toProcess, w.buffer.Satisfy(hash)...)
		default:
			w.log.Debug("dropping invalid block",
				"hash", hash.String(),
				"reason", result.Outcome.String(),
			)
		}
	}

	if toRequest.Len() > 0 {
		w.broadcast.Broadcast(&Message{Kind: KindGetBlocks, Hashes: toRequest.List()})
	}
	for _, info := range inserted {
		w.onInsert(info)
	}
}

func (w *Worker) insertValidated(b *block.Block) (dag.NewBlockInfo, error) {
	if _, err := w.store.Put(b); err != nil {
		return dag.NewBlockInfo{}, err
	}
	return w.chain.InsertBlock(b)
}

// SubmitBlocks feeds locally mined blocks through the same validation
// and insertion path as blocks from peers, then announces them.
func (w *Worker) SubmitBlocks(blocks []*block.Block) {
	w.handleBlocks(&Message{Kind: KindBlocks, Blocks: blocks})
	hashes := make([]ids.Hash, 0, len(blocks))
	for _, b := range blocks {
		if w.store.Contains(b.Hash()) {
			hashes = append(hashes, b.Hash())
		}
	}
	if len(hashes) > 0 {
		w.broadcast.Broadcast(&Message{Kind: KindNewBlockHashes, Hashes: hashes})
	}
}

func (w *Worker) handleBootstrap(m *Message, from Peer) {
	after := m.After
	for {
		blocks, err := w.store.ScanAfter(after, bootstrapBatch)
		if err != nil {
			w.log.Error("bootstrap scan failed", "error", err)
			return
		}
		if len(blocks) == 0 {
			return
		}
		from.Send(&Message{Kind: KindBlocks, Blocks: blocks})
		after += uint64(len(blocks))
	}
}
