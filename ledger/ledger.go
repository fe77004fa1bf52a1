// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledger builds the total order over transaction blocks: it
// elects a leader per proposer level from the voter-chain votes,
// expands each leader into an ordered confirm list by depth-first
// traversal, and maintains the ledger incrementally as voter tips
// advance, emitting confirm/deconfirm diffs.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/prism/config"
	"github.com/luxfi/prism/dag"
	"github.com/luxfi/prism/ids"
	"github.com/luxfi/prism/status"
	"github.com/luxfi/prism/utils/set"
)

var (
	errFailedConfirmMetric   = errors.New("failed to register confirmed metric")
	errFailedDeconfirmMetric = errors.New("failed to register deconfirmed metric")
)

// Diff is the transaction-block delta produced by one Advance: the
// blocks entering the ledger in traversal order, and the blocks leaving
// it in reverse confirmation order. Applying Removed then Added in
// order reproduces the new ledger state.
type Diff struct {
	Added   []ids.Hash
	Removed []ids.Hash
}

// Empty reports whether the diff carries no changes.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Builder maintains the leader sequence and the per-level ledger order
// on top of the DAG. It is driven by Advance, called whenever any voter
// chain's main-chain tip moves.
type Builder struct {
	chain  *dag.BlockChain
	params config.Parameters
	log    log.Logger

	mu          sync.Mutex
	voterTips   []ids.Hash
	leaders     []leaderEntry // indexed by proposer level
	ledgerOrder [][]ids.Hash  // indexed by proposer level
	unconfirmed set.Set[ids.Hash]
	tipLevel    uint64 // deepest level of the contiguous confirmed ledger

	confirmedBlocks   prometheus.Counter
	deconfirmedBlocks prometheus.Counter
}

type leaderEntry struct {
	hash ids.Hash
	ok   bool
}

// NewBuilder returns a ledger builder over the chain. Level 0 is
// pre-confirmed with the proposer genesis as leader and an empty
// confirm list; no vote-based election ever runs at level 0.
func NewBuilder(chain *dag.BlockChain, params config.Parameters, logger log.Logger, reg prometheus.Registerer) (*Builder, error) {
	b := &Builder{
		chain:       chain,
		params:      params,
		log:         logger,
		voterTips:   chain.VoterTips(),
		leaders:     []leaderEntry{{hash: config.ProposerGenesis, ok: true}},
		ledgerOrder: [][]ids.Hash{nil},
		unconfirmed: set.NewSet[ids.Hash](16),
	}

	b.confirmedBlocks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_confirmed_tx_blocks",
		Help: "Number of transaction blocks confirmed into the ledger",
	})
	if err := reg.Register(b.confirmedBlocks); err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedConfirmMetric, err)
	}
	b.deconfirmedBlocks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_deconfirmed_tx_blocks",
		Help: "Number of transaction blocks deconfirmed out of the ledger",
	})
	if err := reg.Register(b.deconfirmedBlocks); err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedDeconfirmMetric, err)
	}
	return b, nil
}

// NoteProposer registers a freshly inserted proposer block as
// unconfirmed. Must be called once per proposer insertion, before the
// next Advance.
func (b *Builder) NoteProposer(h ids.Hash) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unconfirmed.Add(h)
}

// StatusOf reports whether proposer block h has been confirmed into
// some level's ledger.
func (b *Builder) StatusOf(h ids.Hash) status.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unconfirmed.Contains(h) {
		return status.Unconfirmed
	}
	return status.Confirmed
}

// Leader returns the current leader of the level, if any.
func (b *Builder) Leader(level uint64) (ids.Hash, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if level >= uint64(len(b.leaders)) {
		return ids.Hash{}, false
	}
	e := b.leaders[level]
	return e.hash, e.ok
}

// LedgerOrder returns the confirmed proposer blocks of the level in
// ledger order.
func (b *Builder) LedgerOrder(level uint64) []ids.Hash {
	b.mu.Lock()
	defer b.mu.Unlock()
	if level >= uint64(len(b.ledgerOrder)) {
		return nil
	}
	return append([]ids.Hash(nil), b.ledgerOrder[level]...)
}

// TipLevel returns the deepest level of the contiguous confirmed
// ledger.
func (b *Builder) TipLevel() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tipLevel
}

// Advance recomputes leaders for every level whose votes may have
// changed since the last call, deconfirms and reconfirms ledger
// segments as needed, and returns the transaction-block diff. Vote
// depths are measured against a snapshot of the voter tips taken at
// entry; the DAG lock is not held during LCB arithmetic.
func (b *Builder) Advance() (Diff, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	newTips := b.chain.VoterTips()
	bestVoterLevels := make([]uint64, len(newTips))
	for i, t := range newTips {
		level, err := b.chain.VoterLevel(t)
		if err != nil {
			return Diff{}, err
		}
		bestVoterLevels[i] = level
	}

	// Union of the per-chain affected proposer-level ranges.
	var lo, hi uint64
	lo = ^uint64(0)
	for i := range newTips {
		cLo, cHi, err := b.chain.AffectedRange(b.voterTips[i], newTips[i])
		if err != nil {
			return Diff{}, err
		}
		if cLo > cHi {
			continue
		}
		if cLo < lo {
			lo = cLo
		}
		if cHi > hi {
			hi = cHi
		}
		b.voterTips[i] = newTips[i]
	}
	if lo > hi {
		return Diff{}, nil
	}
	// Start no deeper than the first level past the ledger tip, so a
	// freshly votable level is examined even if its votes were already
	// cast before the tip got there.
	if b.tipLevel+1 < lo {
		lo = b.tipLevel + 1
	}

	changeBegin := uint64(0)
	haveChange := false
	for level := lo; level <= hi; level++ {
		for uint64(len(b.leaders)) <= level {
			b.leaders = append(b.leaders, leaderEntry{})
		}
		existing := b.leaders[level]
		// A stricter quantile elects a fresh leader; a looser one
		// re-examines a held level, so a level does not ping-pong.
		quantile := b.params.QuantileConfirm
		if existing.ok {
			quantile = b.params.QuantileDeconfirm
		}
		newLeader, ok, err := b.electLeader(level, quantile, bestVoterLevels)
		if err != nil {
			return Diff{}, err
		}
		if ok == existing.ok && (!ok || newLeader == existing.hash) {
			continue
		}
		if ok {
			b.log.Info("new proposer leader selected",
				"level", level,
				"leader", newLeader.String(),
			)
		} else {
			b.log.Warn("proposer leader deconfirmed", "level", level)
		}
		if !haveChange {
			changeBegin = level
			haveChange = true
		}
		b.leaders[level] = leaderEntry{hash: newLeader, ok: ok}
		if err := b.chain.SetProposerLeader(level, newLeader, ok); err != nil {
			return Diff{}, err
		}
	}
	if !haveChange {
		return Diff{}, nil
	}
	return b.rebuildFrom(changeBegin)
}

// rebuildFrom deconfirms every ledger level from changeBegin to the
// current tip, then reconfirms forward while leaders exist.
func (b *Builder) rebuildFrom(changeBegin uint64) (Diff, error) {
	previousTip := b.tipLevel

	// Deconfirm from the tip down so Removed is in reverse confirmation
	// order across levels and within each level.
	var removedProposers []ids.Hash
	for level := previousTip; level >= changeBegin; level-- {
		order := b.ledgerOrder[level]
		for i := len(order) - 1; i >= 0; i-- {
			b.unconfirmed.Add(order[i])
			removedProposers = append(removedProposers, order[i])
		}
		b.ledgerOrder[level] = nil
		if err := b.chain.SetConfirmList(level, nil); err != nil {
			return Diff{}, err
		}
		if level == 0 {
			break
		}
	}
	if changeBegin <= previousTip {
		b.tipLevel = changeBegin - 1
	}

	// Reconfirm from changeBegin until the first leaderless level,
	// keeping the ledger contiguous.
	var addedProposers []ids.Hash
	if changeBegin <= previousTip+1 {
		for level := changeBegin; level < uint64(len(b.leaders)); level++ {
			e := b.leaders[level]
			if !e.ok {
				break
			}
			order, err := b.expandLeader(e.hash)
			if err != nil {
				return Diff{}, err
			}
			addedProposers = append(addedProposers, order...)
			for uint64(len(b.ledgerOrder)) <= level {
				b.ledgerOrder = append(b.ledgerOrder, nil)
			}
			b.ledgerOrder[level] = order
			if err := b.chain.SetConfirmList(level, order); err != nil {
				return Diff{}, err
			}
			b.tipLevel = level
		}
	}

	var diff Diff
	for _, p := range removedProposers {
		refs, err := b.chain.TransactionRefs(p)
		if err != nil {
			return Diff{}, err
		}
		// Reverse within the block too: Removed is the exact inverse of
		// the order the blocks were added in.
		for i := len(refs) - 1; i >= 0; i-- {
			diff.Removed = append(diff.Removed, refs[i])
		}
	}
	for _, p := range addedProposers {
		refs, err := b.chain.TransactionRefs(p)
		if err != nil {
			return Diff{}, err
		}
		diff.Added = append(diff.Added, refs...)
	}
	b.confirmedBlocks.Add(float64(len(diff.Added)))
	b.deconfirmedBlocks.Add(float64(len(diff.Removed)))
	return diff, nil
}

// expandLeader yields the ledger contribution of a newly confirmed
// leader: the depth-first traversal of the proposer DAG rooted at it,
// following refs with the parent first, visiting only unconfirmed
// blocks, each block once, leader last. Visited blocks are marked
// confirmed.
func (b *Builder) expandLeader(leader ids.Hash) ([]ids.Hash, error) {
	var order []ids.Hash
	visited := set.NewSet[ids.Hash](16)

	var visit func(h ids.Hash) error
	visit = func(h ids.Hash) error {
		if visited.Contains(h) {
			return nil
		}
		visited.Add(h)
		refs, err := b.chain.ProposerRefs(h)
		if err != nil {
			return err
		}
		for _, ref := range refs {
			if b.unconfirmed.Contains(ref) {
				if err := visit(ref); err != nil {
					return err
				}
			}
		}
		order = append(order, h)
		return nil
	}
	if err := visit(leader); err != nil {
		return nil, err
	}

	confirmed := make([]ids.Hash, 0, len(order))
	for _, h := range order {
		if b.unconfirmed.Contains(h) {
			b.unconfirmed.Remove(h)
			confirmed = append(confirmed, h)
		}
	}
	return confirmed, nil
}
