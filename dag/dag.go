// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dag maintains the block DAG: proposer tree levels, the N
// voter chains with their longest-chain tips, reference edges, and the
// per-proposer-block main-chain vote sets that leader election reads.
package dag

import (
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/luxfi/prism/block"
	"github.com/luxfi/prism/config"
	"github.com/luxfi/prism/ids"
	"github.com/luxfi/prism/utils/set"
)

var (
	// ErrNotFound is returned when a queried block is not in the DAG.
	ErrNotFound = errors.New("dag: not found")

	errFailedBlocksMetric = errors.New("failed to register blocks metric")
	errFailedLevelMetric  = errors.New("failed to register level metric")
)

type tip struct {
	hash  ids.Hash
	level uint64
}

// BlockChain is the persistent block DAG. All mutation goes through
// InsertBlock under a single lock; queries read a consistent snapshot
// of the persistent columns and the in-memory tip indices.
type BlockChain struct {
	db     *leveldb.DB
	params config.Parameters
	log    log.Logger

	mu                    sync.Mutex
	proposerBest          tip
	voterBest             []tip
	unreferredProposer    set.Set[ids.Hash]
	unreferredTransaction set.Set[ids.Hash]

	numBlocks         *prometheus.CounterVec
	proposerBestLevel prometheus.Gauge
}

// New opens (destroying any prior content is the caller's concern) a
// DAG database at path and initializes genesis state.
func New(path string, params config.Parameters, logger log.Logger, reg prometheus.Registerer) (*BlockChain, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return newChain(db, params, logger, reg)
}

// NewMemory returns a DAG backed by an in-memory LevelDB storage, used
// by tests and simulations.
func NewMemory(params config.Parameters, logger log.Logger, reg prometheus.Registerer) (*BlockChain, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return newChain(db, params, logger, reg)
}

func newChain(db *leveldb.DB, params config.Parameters, logger log.Logger, reg prometheus.Registerer) (*BlockChain, error) {
	c := &BlockChain{
		db:                    db,
		params:                params,
		log:                   logger,
		voterBest:             make([]tip, params.NumVoterChains),
		unreferredProposer:    set.NewSet[ids.Hash](16),
		unreferredTransaction: set.NewSet[ids.Hash](16),
	}

	c.numBlocks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dag_blocks",
		Help: "Number of blocks inserted into the DAG, by role",
	}, []string{"role"})
	if err := reg.Register(c.numBlocks); err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedBlocksMetric, err)
	}
	c.proposerBestLevel = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dag_proposer_best_level",
		Help: "Level of the best proposer block",
	})
	if err := reg.Register(c.proposerBestLevel); err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedLevelMetric, err)
	}

	if err := c.initGenesis(); err != nil {
		return nil, err
	}
	return c, nil
}

// Close releases the underlying database handle.
func (c *BlockChain) Close() error {
	return c.db.Close()
}

// initGenesis writes the proposer genesis at level 0 and one voter
// genesis per chain, each with parent = proposer genesis and a single
// vote for it. Level 0 is confirmed at initialization with the proposer
// genesis as its hard-coded leader and an empty confirm list.
func (c *BlockChain) initGenesis() error {
	b := newBatch(c.db)

	pg := config.ProposerGenesis
	b.put(hashKey(prefixProposerLevel, pg), encodeU64(0))
	b.mergeAppendHash(levelKey(prefixProposerLevelBlocks, 0), pg)
	b.put(levelKey(prefixLeader, 0), pg.Bytes())
	b.put(levelKey(prefixConfirmList, 0), nil)

	c.proposerBest = tip{hash: pg, level: 0}
	c.unreferredProposer.Add(pg)

	for chain := uint16(0); chain < c.params.NumVoterChains; chain++ {
		vg := config.VoterGenesis(chain)
		b.put(hashKey(prefixParent, vg), pg.Bytes())
		b.put(hashKey(prefixVoterLevel, vg), encodeU64(0))
		b.put(hashKey(prefixVoterChain, vg), encodeU16(chain))
		b.put(hashKey(prefixVoterVotedLevel, vg), encodeU64(0))
		b.put(hashKey(prefixVotes, vg), encodeHashVec([]ids.Hash{pg}))
		if _, err := b.mergeVote(hashKey(prefixProposerVotes, pg), true, chain, 0); err != nil {
			return err
		}
		c.voterBest[chain] = tip{hash: vg, level: 0}
	}
	return b.commit()
}

// BestProposer returns the hash of the deepest proposer block.
func (c *BlockChain) BestProposer() ids.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proposerBest.hash
}

// BestProposerLevel returns the level of the deepest proposer block.
func (c *BlockChain) BestProposerLevel() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proposerBest.level
}

// BestVoter returns the main-chain tip of voter chain num.
func (c *BlockChain) BestVoter(num uint16) ids.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voterBest[num].hash
}

// BestVoterLevel returns the level of the main-chain tip of chain num.
func (c *BlockChain) BestVoterLevel(num uint16) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voterBest[num].level
}

// VoterTips returns a consistent snapshot of every chain's main-chain
// tip, taken under the DAG lock.
func (c *BlockChain) VoterTips() []ids.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	tips := make([]ids.Hash, len(c.voterBest))
	for i, t := range c.voterBest {
		tips[i] = t.hash
	}
	return tips
}

// UnreferredProposer returns the proposer blocks not yet referenced by
// any proposer block.
func (c *BlockChain) UnreferredProposer() []ids.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unreferredProposer.List()
}

// UnreferredTransaction returns the transaction blocks not yet
// referenced by any proposer block.
func (c *BlockChain) UnreferredTransaction() []ids.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unreferredTransaction.List()
}

// UnvotedProposer returns the first-seen proposer block at each level in
// (deepest level voted by tip, best proposer level], ascending. These
// are the votes the next voter block on that chain must cast.
func (c *BlockChain) UnvotedProposer(voterTip ids.Hash) ([]ids.Hash, error) {
	votedLevel, err := c.getU64(hashKey(prefixVoterVotedLevel, voterTip))
	if err != nil {
		return nil, err
	}
	best := c.BestProposerLevel()

	var list []ids.Hash
	for level := votedLevel + 1; level <= best; level++ {
		blocks, err := c.ProposerBlocksAtLevel(level)
		if err != nil {
			return nil, err
		}
		if len(blocks) == 0 {
			return nil, fmt.Errorf("dag: no proposer blocks at level %d below best %d", level, best)
		}
		list = append(list, blocks[0])
	}
	return list, nil
}

// ProposerBlocksAtLevel returns the proposer blocks at the level in
// first-seen order.
func (c *BlockChain) ProposerBlocksAtLevel(level uint64) ([]ids.Hash, error) {
	v, err := c.db.Get(levelKey(prefixProposerLevelBlocks, level), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return decodeHashVec(v), nil
}

// ProposerVotes returns the (chain, voter level) vote set currently
// held by proposer block p from the chains' main chains.
func (c *BlockChain) ProposerVotes(p ids.Hash) ([]ChainVote, error) {
	v, err := c.db.Get(hashKey(prefixProposerVotes, p), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return decodeChainVotes(v), nil
}

// ProposerLevel returns the level of proposer block h.
func (c *BlockChain) ProposerLevel(h ids.Hash) (uint64, error) {
	return c.getU64(hashKey(prefixProposerLevel, h))
}

// VoterLevel returns the level of voter block h.
func (c *BlockChain) VoterLevel(h ids.Hash) (uint64, error) {
	return c.getU64(hashKey(prefixVoterLevel, h))
}

// VoterChain returns the chain number of voter block h.
func (c *BlockChain) VoterChain(h ids.Hash) (uint16, error) {
	v, err := c.db.Get(hashKey(prefixVoterChain, h), nil)
	if err == leveldb.ErrNotFound {
		return 0, ErrNotFound
	} else if err != nil {
		return 0, err
	}
	return decodeU16(v), nil
}

// DeepestVotedLevel returns the deepest proposer level voted by the
// voter chain ending at voter block h.
func (c *BlockChain) DeepestVotedLevel(h ids.Hash) (uint64, error) {
	return c.getU64(hashKey(prefixVoterVotedLevel, h))
}

// Parent returns the proposer parent of h.
func (c *BlockChain) Parent(h ids.Hash) (ids.Hash, error) {
	return c.getHash(hashKey(prefixParent, h))
}

// VoterParent returns the voter parent of voter block h.
func (c *BlockChain) VoterParent(h ids.Hash) (ids.Hash, error) {
	return c.getHash(hashKey(prefixVoterParent, h))
}

// Votes returns the proposer blocks voted by voter block h.
func (c *BlockChain) Votes(h ids.Hash) ([]ids.Hash, error) {
	v, err := c.db.Get(hashKey(prefixVotes, h), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return decodeHashVec(v), nil
}

// TransactionRefs returns the transaction blocks referenced by proposer
// block h.
func (c *BlockChain) TransactionRefs(h ids.Hash) ([]ids.Hash, error) {
	v, err := c.db.Get(hashKey(prefixTxRefs, h), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return decodeHashVec(v), nil
}

// ProposerRefs returns the proposer blocks referenced by proposer block
// h, with the parent as the first entry.
func (c *BlockChain) ProposerRefs(h ids.Hash) ([]ids.Hash, error) {
	v, err := c.db.Get(hashKey(prefixPropRefs, h), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return decodeHashVec(v), nil
}

// ContainsProposer reports whether h is a known proposer block.
func (c *BlockChain) ContainsProposer(h ids.Hash) bool {
	ok, _ := c.db.Has(hashKey(prefixProposerLevel, h), nil)
	return ok
}

// ContainsVoter reports whether h is a known voter block.
func (c *BlockChain) ContainsVoter(h ids.Hash) bool {
	ok, _ := c.db.Has(hashKey(prefixVoterLevel, h), nil)
	return ok
}

// Contains reports whether h is any known block (it has a parent edge).
func (c *BlockChain) Contains(h ids.Hash) bool {
	ok, _ := c.db.Has(hashKey(prefixParent, h), nil)
	return ok
}

// ProposerLeader returns the stored leader of the level, or ok=false if
// the level has none.
func (c *BlockChain) ProposerLeader(level uint64) (ids.Hash, bool, error) {
	v, err := c.db.Get(levelKey(prefixLeader, level), nil)
	if err == leveldb.ErrNotFound {
		return ids.Hash{}, false, nil
	} else if err != nil {
		return ids.Hash{}, false, err
	}
	h, err := ids.ToHash(v)
	if err != nil {
		return ids.Hash{}, false, err
	}
	return h, true, nil
}

// SetProposerLeader stores (or clears, when ok=false) the leader of the
// level. Written by the ledger builder.
func (c *BlockChain) SetProposerLeader(level uint64, h ids.Hash, ok bool) error {
	if !ok {
		return c.db.Delete(levelKey(prefixLeader, level), nil)
	}
	return c.db.Put(levelKey(prefixLeader, level), h.Bytes(), nil)
}

// ConfirmList returns the ordered proposer blocks confirmed by the
// level's leader.
func (c *BlockChain) ConfirmList(level uint64) ([]ids.Hash, error) {
	v, err := c.db.Get(levelKey(prefixConfirmList, level), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return decodeHashVec(v), nil
}

// SetConfirmList stores the ordered confirm list of the level. Written
// by the ledger builder.
func (c *BlockChain) SetConfirmList(level uint64, hs []ids.Hash) error {
	return c.db.Put(levelKey(prefixConfirmList, level), encodeHashVec(hs), nil)
}

// AffectedRange returns the inclusive range [lo, hi] of proposer levels
// whose main-chain votes may change when the chain's tip moves from
// oldTip to newTip. The range is empty (lo > hi) when the tips match.
func (c *BlockChain) AffectedRange(oldTip, newTip ids.Hash) (lo, hi uint64, err error) {
	if oldTip == newTip {
		return 1, 0, nil
	}
	oldVoted, err := c.DeepestVotedLevel(oldTip)
	if err != nil {
		return 0, 0, err
	}
	newVoted, err := c.DeepestVotedLevel(newTip)
	if err != nil {
		return 0, 0, err
	}
	lca, err := c.lowestCommonVoterAncestor(oldTip, newTip)
	if err != nil {
		return 0, 0, err
	}
	lcaVoted, err := c.DeepestVotedLevel(lca)
	if err != nil {
		return 0, 0, err
	}
	hi = oldVoted
	if newVoted > hi {
		hi = newVoted
	}
	return lcaVoted + 1, hi, nil
}

func (c *BlockChain) lowestCommonVoterAncestor(a, b ids.Hash) (ids.Hash, error) {
	la, err := c.VoterLevel(a)
	if err != nil {
		return ids.Hash{}, err
	}
	lb, err := c.VoterLevel(b)
	if err != nil {
		return ids.Hash{}, err
	}
	for la > lb {
		if a, err = c.VoterParent(a); err != nil {
			return ids.Hash{}, err
		}
		la--
	}
	for lb > la {
		if b, err = c.VoterParent(b); err != nil {
			return ids.Hash{}, err
		}
		lb--
	}
	for a != b {
		if a, err = c.VoterParent(a); err != nil {
			return ids.Hash{}, err
		}
		if b, err = c.VoterParent(b); err != nil {
			return ids.Hash{}, err
		}
	}
	return a, nil
}

func (c *BlockChain) getU64(key []byte) (uint64, error) {
	v, err := c.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return 0, ErrNotFound
	} else if err != nil {
		return 0, err
	}
	return decodeU64(v), nil
}

func (c *BlockChain) getHash(key []byte) (ids.Hash, error) {
	v, err := c.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return ids.Hash{}, ErrNotFound
	} else if err != nil {
		return ids.Hash{}, err
	}
	return ids.ToHash(v)
}

// RoleOf reports the DAG's view of a known block's role, used by the
// status dump.
func (c *BlockChain) RoleOf(h ids.Hash) (block.Role, bool) {
	if c.ContainsProposer(h) {
		return block.RoleProposer, true
	}
	if c.ContainsVoter(h) {
		return block.RoleVoter, true
	}
	if c.Contains(h) {
		return block.RoleTransaction, true
	}
	return 0, false
}
