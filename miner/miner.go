// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package miner assembles candidate content for all N+2 block roles,
// commits it under one Merkle root, and races nonces against the
// difficulty target; the winning hash's sub-band decides which role the
// block takes, and the precomputed authentication path for that slot
// becomes its sortition proof.
package miner

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/prism/block"
	"github.com/luxfi/prism/blockstore"
	"github.com/luxfi/prism/config"
	"github.com/luxfi/prism/crypto/merkle"
	"github.com/luxfi/prism/dag"
	"github.com/luxfi/prism/ids"
	"github.com/luxfi/prism/mempool"
	"github.com/luxfi/prism/validator"
)

var errFailedMinedMetric = errors.New("failed to register mined blocks metric")

// Miner races nonces over the current chain view. One goroutine runs
// the search; ContextUpdate interrupts it to rebuild content from fresh
// tips and mempool state.
type Miner struct {
	chain   *dag.BlockChain
	store   blockstore.Store
	pool    *mempool.Pool
	params  config.Parameters
	log     log.Logger
	minerID [32]byte

	// blockSink receives every mined block; the caller feeds it into
	// the same validate-and-insert path as blocks from peers.
	blockSink chan<- *block.Block
	update    chan struct{}
	quit      chan struct{}
	wg        sync.WaitGroup

	minedBlocks *prometheus.CounterVec
}

// context is one frozen view of the chain: the parent, the N+2 content
// variants, and their Merkle commitment.
type context struct {
	parent     ids.Hash
	difficulty ids.Hash
	contents   []*block.Block // one per slot, role and content prefilled
	tree       *merkle.Tree
	root       ids.Hash
}

// New returns a stopped miner emitting to blockSink.
func New(
	chain *dag.BlockChain,
	store blockstore.Store,
	pool *mempool.Pool,
	params config.Parameters,
	minerID [32]byte,
	blockSink chan<- *block.Block,
	logger log.Logger,
	reg prometheus.Registerer,
) (*Miner, error) {
	m := &Miner{
		chain:     chain,
		store:     store,
		pool:      pool,
		params:    params,
		log:       logger,
		minerID:   minerID,
		blockSink: blockSink,
		update:    make(chan struct{}, 1),
		quit:      make(chan struct{}),
	}
	m.minedBlocks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "miner_mined_blocks",
		Help: "Number of blocks mined, by role",
	}, []string{"role"})
	if err := reg.Register(m.minedBlocks); err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedMinedMetric, err)
	}
	return m, nil
}

// Start launches the mining loop.
func (m *Miner) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.loop()
	}()
}

// Stop terminates the mining loop and waits for it to exit.
func (m *Miner) Stop() {
	close(m.quit)
	m.wg.Wait()
}

// ContextUpdate signals the miner that its view is stale: a new block
// was inserted or the mempool changed. The signal coalesces.
func (m *Miner) ContextUpdate() {
	select {
	case m.update <- struct{}{}:
	default:
	}
}

func (m *Miner) loop() {
	rng := rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // nonce search, not key material
	ctx, err := m.buildContext()
	if err != nil {
		m.log.Error("failed to build mining context", "error", err)
		return
	}

	for {
		select {
		case <-m.quit:
			return
		case <-m.update:
			if ctx, err = m.buildContext(); err != nil {
				m.log.Error("failed to rebuild mining context", "error", err)
				return
			}
			continue
		default:
		}

		header := block.Header{
			Parent:      ctx.parent,
			Timestamp:   time.Now().UnixNano(),
			Nonce:       rng.Uint32(),
			ContentRoot: ctx.root,
			ExtraData:   m.minerID,
			Difficulty:  ctx.difficulty,
		}
		hash := header.Hash()

		role, chain, ok := validator.Sortition(hash, ctx.difficulty, m.params)
		if !ok {
			continue
		}
		mined, err := m.assemble(ctx, header, role, chain)
		if err != nil {
			m.log.Error("failed to assemble mined block", "error", err)
			return
		}
		m.minedBlocks.WithLabelValues(role.String()).Inc()
		m.log.Debug("mined block",
			"role", role.String(),
			"hash", hash.String(),
		)

		select {
		case m.blockSink <- mined:
		case <-m.quit:
			return
		}

		// Mining on a stale view after a hit would double-spend the
		// same content; rebuild before continuing.
		if ctx, err = m.buildContext(); err != nil {
			m.log.Error("failed to rebuild mining context", "error", err)
			return
		}
	}
}

// buildContext snapshots the chain and mempool into the N+2 content
// variants and their Merkle commitment.
func (m *Miner) buildContext() (*context, error) {
	parent := m.chain.BestProposer()
	difficulty := m.difficultyOf(parent)

	slots := m.params.ContentSlots()
	contents := make([]*block.Block, slots)

	contents[block.ProposerIndex] = &block.Block{
		Role: block.RoleProposer,
		Proposer: &block.ProposerContent{
			TransactionRefs: m.chain.UnreferredTransaction(),
			ProposerRefs:    unreferredExcept(m.chain.UnreferredProposer(), parent),
		},
	}

	entries := m.pool.GetTransactions(m.params.TxBlockTransactions)
	txs := make([]block.Transaction, 0, len(entries))
	for _, e := range entries {
		txs = append(txs, *e.Transaction)
	}
	contents[block.TransactionIndex] = &block.Block{
		Role:        block.RoleTransaction,
		Transaction: &block.TransactionContent{Transactions: txs},
	}

	for chain := uint16(0); chain < m.params.NumVoterChains; chain++ {
		tip := m.chain.BestVoter(chain)
		votes, err := m.chain.UnvotedProposer(tip)
		if err != nil {
			return nil, err
		}
		contents[block.FirstVoterIndex+int(chain)] = &block.Block{
			Role: block.RoleVoter,
			Voter: &block.VoterContent{
				Chain:       chain,
				VoterParent: tip,
				Votes:       votes,
			},
		}
	}

	leaves := make([]ids.Hash, slots)
	for i, c := range contents {
		leaf, err := c.ContentHash()
		if err != nil {
			return nil, err
		}
		leaves[i] = leaf
	}
	tree, err := merkle.NewFromLeaves(leaves)
	if err != nil {
		return nil, err
	}

	return &context{
		parent:     parent,
		difficulty: difficulty,
		contents:   contents,
		tree:       tree,
		root:       tree.Root(),
	}, nil
}

// assemble attaches the winning role's content and its precomputed
// sortition proof to the header.
func (m *Miner) assemble(ctx *context, header block.Header, role block.Role, chain uint16) (*block.Block, error) {
	var slot int
	switch role {
	case block.RoleProposer:
		slot = block.ProposerIndex
	case block.RoleTransaction:
		slot = block.TransactionIndex
	case block.RoleVoter:
		slot = block.FirstVoterIndex + int(chain)
	}
	proof, err := ctx.tree.Proof(slot)
	if err != nil {
		return nil, err
	}
	content := ctx.contents[slot]
	return &block.Block{
		Header:         header,
		Role:           role,
		Proposer:       content.Proposer,
		Voter:          content.Voter,
		Transaction:    content.Transaction,
		SortitionProof: proof,
	}, nil
}

// difficultyOf inherits the parent block's difficulty, falling back to
// the default target for genesis.
func (m *Miner) difficultyOf(parent ids.Hash) ids.Hash {
	b, err := m.store.Get(parent)
	if err != nil {
		return config.DefaultDifficulty
	}
	return b.Header.Difficulty
}

// unreferredExcept filters the block's own parent out of the proposer
// refs: the parent is referenced implicitly.
func unreferredExcept(hs []ids.Hash, parent ids.Hash) []ids.Hash {
	out := hs[:0]
	for _, h := range hs {
		if h != parent {
			out = append(out, h)
		}
	}
	return out
}
