// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dag

import (
	"testing"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/prism/block"
	"github.com/luxfi/prism/config"
	"github.com/luxfi/prism/ids"
	"github.com/luxfi/prism/utils/bag"
)

func newTestChain(t *testing.T) *BlockChain {
	t.Helper()
	chain, err := NewMemory(config.Local(), log.NewNoOpLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, chain.Close())
	})
	return chain
}

func proposerBlock(parent ids.Hash, txRefs, propRefs []ids.Hash, nonce uint32) *block.Block {
	return &block.Block{
		Header: block.Header{Parent: parent, Nonce: nonce, Difficulty: config.DefaultDifficulty},
		Role:   block.RoleProposer,
		Proposer: &block.ProposerContent{
			TransactionRefs: txRefs,
			ProposerRefs:    propRefs,
		},
	}
}

func voterBlock(parent, voterParent ids.Hash, chain uint16, votes []ids.Hash, nonce uint32) *block.Block {
	return &block.Block{
		Header: block.Header{Parent: parent, Nonce: nonce, Difficulty: config.DefaultDifficulty},
		Role:   block.RoleVoter,
		Voter: &block.VoterContent{
			Chain:       chain,
			VoterParent: voterParent,
			Votes:       votes,
		},
	}
}

func transactionBlock(parent ids.Hash, nonce uint32) *block.Block {
	return &block.Block{
		Header:      block.Header{Parent: parent, Nonce: nonce, Difficulty: config.DefaultDifficulty},
		Role:        block.RoleTransaction,
		Transaction: &block.TransactionContent{},
	}
}

func TestGenesisInitialization(t *testing.T) {
	require := require.New(t)
	chain := newTestChain(t)

	require.Equal(config.ProposerGenesis, chain.BestProposer())
	require.Equal(uint64(0), chain.BestProposerLevel())

	params := config.Local()
	for c := uint16(0); c < params.NumVoterChains; c++ {
		require.Equal(config.VoterGenesis(c), chain.BestVoter(c))
		require.Equal(uint64(0), chain.BestVoterLevel(c))
	}

	// Every voter genesis votes for the proposer genesis.
	votes, err := chain.ProposerVotes(config.ProposerGenesis)
	require.NoError(err)
	require.Len(votes, int(params.NumVoterChains))

	leader, ok, err := chain.ProposerLeader(0)
	require.NoError(err)
	require.True(ok)
	require.Equal(config.ProposerGenesis, leader)

	require.Equal([]ids.Hash{config.ProposerGenesis}, chain.UnreferredProposer())
}

func TestInsertProposer(t *testing.T) {
	require := require.New(t)
	chain := newTestChain(t)

	p1 := proposerBlock(config.ProposerGenesis, nil, nil, 1)
	info, err := chain.InsertBlock(p1)
	require.NoError(err)
	require.Equal(uint64(1), info.Level)
	require.True(info.ProposerTipAdvanced)

	require.Equal(p1.Hash(), chain.BestProposer())
	require.Equal(uint64(1), chain.BestProposerLevel())

	// The parent leaves the unreferred set; the new block joins it.
	require.Equal([]ids.Hash{p1.Hash()}, chain.UnreferredProposer())

	level, err := chain.ProposerLevel(p1.Hash())
	require.NoError(err)
	require.Equal(uint64(1), level)

	blocks, err := chain.ProposerBlocksAtLevel(1)
	require.NoError(err)
	require.Equal([]ids.Hash{p1.Hash()}, blocks)

	// The parent is prepended to the stored proposer refs.
	refs, err := chain.ProposerRefs(p1.Hash())
	require.NoError(err)
	require.Equal([]ids.Hash{config.ProposerGenesis}, refs)
}

func TestInsertDuplicateIsNoop(t *testing.T) {
	require := require.New(t)
	chain := newTestChain(t)

	p1 := proposerBlock(config.ProposerGenesis, nil, nil, 1)
	_, err := chain.InsertBlock(p1)
	require.NoError(err)

	info, err := chain.InsertBlock(p1)
	require.NoError(err)
	require.True(info.Duplicate)

	blocks, err := chain.ProposerBlocksAtLevel(1)
	require.NoError(err)
	require.Len(blocks, 1)
}

func TestInsertTransactionAndReference(t *testing.T) {
	require := require.New(t)
	chain := newTestChain(t)

	t1 := transactionBlock(config.ProposerGenesis, 1)
	_, err := chain.InsertBlock(t1)
	require.NoError(err)
	require.Equal([]ids.Hash{t1.Hash()}, chain.UnreferredTransaction())

	p1 := proposerBlock(config.ProposerGenesis, []ids.Hash{t1.Hash()}, nil, 2)
	_, err = chain.InsertBlock(p1)
	require.NoError(err)
	require.Empty(chain.UnreferredTransaction())

	txRefs, err := chain.TransactionRefs(p1.Hash())
	require.NoError(err)
	require.Equal([]ids.Hash{t1.Hash()}, txRefs)
}

func TestProposerFirstSeenOrder(t *testing.T) {
	require := require.New(t)
	chain := newTestChain(t)

	p1a := proposerBlock(config.ProposerGenesis, nil, nil, 1)
	p1b := proposerBlock(config.ProposerGenesis, nil, nil, 2)
	_, err := chain.InsertBlock(p1a)
	require.NoError(err)
	_, err = chain.InsertBlock(p1b)
	require.NoError(err)

	blocks, err := chain.ProposerBlocksAtLevel(1)
	require.NoError(err)
	require.Equal([]ids.Hash{p1a.Hash(), p1b.Hash()}, blocks)

	// The best proposer stays at the first block seen for the level.
	require.Equal(p1a.Hash(), chain.BestProposer())
}

func TestUnvotedProposer(t *testing.T) {
	require := require.New(t)
	chain := newTestChain(t)

	p1 := proposerBlock(config.ProposerGenesis, nil, nil, 1)
	_, err := chain.InsertBlock(p1)
	require.NoError(err)
	p2 := proposerBlock(p1.Hash(), nil, nil, 2)
	_, err = chain.InsertBlock(p2)
	require.NoError(err)

	unvoted, err := chain.UnvotedProposer(config.VoterGenesis(0))
	require.NoError(err)
	require.Equal([]ids.Hash{p1.Hash(), p2.Hash()}, unvoted)

	// Voting through level 1 leaves only level 2 unvoted.
	v1 := voterBlock(p1.Hash(), config.VoterGenesis(0), 0, []ids.Hash{p1.Hash()}, 3)
	_, err = chain.InsertBlock(v1)
	require.NoError(err)

	unvoted, err = chain.UnvotedProposer(v1.Hash())
	require.NoError(err)
	require.Equal([]ids.Hash{p2.Hash()}, unvoted)
}

func TestVoterSimpleExtension(t *testing.T) {
	require := require.New(t)
	chain := newTestChain(t)

	p1 := proposerBlock(config.ProposerGenesis, nil, nil, 1)
	_, err := chain.InsertBlock(p1)
	require.NoError(err)

	v1 := voterBlock(p1.Hash(), config.VoterGenesis(0), 0, []ids.Hash{p1.Hash()}, 2)
	info, err := chain.InsertBlock(v1)
	require.NoError(err)
	require.True(info.VoterTipAdvanced)
	require.Equal(uint16(0), info.Chain)
	require.Equal(uint64(1), info.Level)

	require.Equal(v1.Hash(), chain.BestVoter(0))

	votes, err := chain.ProposerVotes(p1.Hash())
	require.NoError(err)
	require.Equal([]ChainVote{{Chain: 0, Level: 1}}, votes)

	deepest, err := chain.DeepestVotedLevel(v1.Hash())
	require.NoError(err)
	require.Equal(uint64(1), deepest)
}

func TestVoterEmptyVotesInheritDeepestLevel(t *testing.T) {
	require := require.New(t)
	chain := newTestChain(t)

	p1 := proposerBlock(config.ProposerGenesis, nil, nil, 1)
	_, err := chain.InsertBlock(p1)
	require.NoError(err)

	v1 := voterBlock(p1.Hash(), config.VoterGenesis(0), 0, []ids.Hash{p1.Hash()}, 2)
	_, err = chain.InsertBlock(v1)
	require.NoError(err)

	v2 := voterBlock(p1.Hash(), v1.Hash(), 0, nil, 3)
	_, err = chain.InsertBlock(v2)
	require.NoError(err)

	deepest, err := chain.DeepestVotedLevel(v2.Hash())
	require.NoError(err)
	require.Equal(uint64(1), deepest)
}

func TestVoterSideChainDoesNotChangeVotes(t *testing.T) {
	require := require.New(t)
	chain := newTestChain(t)

	p1a := proposerBlock(config.ProposerGenesis, nil, nil, 1)
	p1b := proposerBlock(config.ProposerGenesis, nil, nil, 2)
	_, err := chain.InsertBlock(p1a)
	require.NoError(err)
	_, err = chain.InsertBlock(p1b)
	require.NoError(err)

	// Main chain votes p1a.
	v1 := voterBlock(p1a.Hash(), config.VoterGenesis(0), 0, []ids.Hash{p1a.Hash()}, 3)
	_, err = chain.InsertBlock(v1)
	require.NoError(err)

	// A same-length fork voting p1b stays a side chain.
	v1Fork := voterBlock(p1b.Hash(), config.VoterGenesis(0), 0, []ids.Hash{p1b.Hash()}, 4)
	info, err := chain.InsertBlock(v1Fork)
	require.NoError(err)
	require.False(info.VoterTipAdvanced)

	require.Equal(v1.Hash(), chain.BestVoter(0))

	votesA, err := chain.ProposerVotes(p1a.Hash())
	require.NoError(err)
	require.Equal([]ChainVote{{Chain: 0, Level: 1}}, votesA)
	votesB, err := chain.ProposerVotes(p1b.Hash())
	require.NoError(err)
	require.Empty(votesB)
}

func TestVoterForkReorganization(t *testing.T) {
	require := require.New(t)
	chain := newTestChain(t)

	p1a := proposerBlock(config.ProposerGenesis, nil, nil, 1)
	p1b := proposerBlock(config.ProposerGenesis, nil, nil, 2)
	_, err := chain.InsertBlock(p1a)
	require.NoError(err)
	_, err = chain.InsertBlock(p1b)
	require.NoError(err)

	// Main chain: VG -> v1 voting p1a.
	v1 := voterBlock(p1a.Hash(), config.VoterGenesis(0), 0, []ids.Hash{p1a.Hash()}, 3)
	_, err = chain.InsertBlock(v1)
	require.NoError(err)

	// Fork: VG -> v1' voting p1b (side chain for now).
	v1Fork := voterBlock(p1b.Hash(), config.VoterGenesis(0), 0, []ids.Hash{p1b.Hash()}, 4)
	_, err = chain.InsertBlock(v1Fork)
	require.NoError(err)

	// Extending the fork past the main chain triggers the reorg: the
	// old branch's vote on p1a is retracted, the fork's vote on p1b is
	// installed.
	v2Fork := voterBlock(p1b.Hash(), v1Fork.Hash(), 0, nil, 5)
	info, err := chain.InsertBlock(v2Fork)
	require.NoError(err)
	require.True(info.VoterTipAdvanced)
	require.Equal(v2Fork.Hash(), chain.BestVoter(0))

	votesA, err := chain.ProposerVotes(p1a.Hash())
	require.NoError(err)
	require.Empty(votesA)
	votesB, err := chain.ProposerVotes(p1b.Hash())
	require.NoError(err)
	require.Equal([]ChainVote{{Chain: 0, Level: 1}}, votesB)
}

func TestAffectedRange(t *testing.T) {
	require := require.New(t)
	chain := newTestChain(t)

	p1 := proposerBlock(config.ProposerGenesis, nil, nil, 1)
	_, err := chain.InsertBlock(p1)
	require.NoError(err)

	vg := config.VoterGenesis(0)
	v1 := voterBlock(p1.Hash(), vg, 0, []ids.Hash{p1.Hash()}, 2)
	_, err = chain.InsertBlock(v1)
	require.NoError(err)

	// Identical tips: empty range.
	lo, hi, err := chain.AffectedRange(v1.Hash(), v1.Hash())
	require.NoError(err)
	require.Greater(lo, hi)

	// Simple extension from genesis to v1 affects level 1 only.
	lo, hi, err = chain.AffectedRange(vg, v1.Hash())
	require.NoError(err)
	require.Equal(uint64(1), lo)
	require.Equal(uint64(1), hi)
}

func TestVoteVecApply(t *testing.T) {
	require := require.New(t)

	var buf []byte
	buf, miss, mismatch := voteVecApply(buf, true, 2, 7)
	require.False(miss)
	require.False(mismatch)
	buf, _, _ = voteVecApply(buf, true, 5, 9)
	require.Equal([]ChainVote{{Chain: 2, Level: 7}, {Chain: 5, Level: 9}}, decodeChainVotes(buf))

	// Remove matches on chain only; a level mismatch is tolerated but
	// reported.
	buf, miss, mismatch = voteVecApply(buf, false, 2, 8)
	require.False(miss)
	require.True(mismatch)
	require.Equal([]ChainVote{{Chain: 5, Level: 9}}, decodeChainVotes(buf))

	// Removing an absent chain is a no-op.
	out, miss, _ := voteVecApply(buf, false, 11, 1)
	require.True(miss)
	require.Equal(buf, out)
}

func TestOneMainChainVotePerChain(t *testing.T) {
	require := require.New(t)
	chain := newTestChain(t)

	p1 := proposerBlock(config.ProposerGenesis, nil, nil, 1)
	_, err := chain.InsertBlock(p1)
	require.NoError(err)

	// Every chain votes for p1 once; each vote must appear exactly once
	// in p1's main-chain vote list.
	params := config.Local()
	for c := uint16(0); c < params.NumVoterChains; c++ {
		v := voterBlock(p1.Hash(), config.VoterGenesis(c), c, []ids.Hash{p1.Hash()}, 10+uint32(c))
		_, err := chain.InsertBlock(v)
		require.NoError(err)
	}

	votes, err := chain.ProposerVotes(p1.Hash())
	require.NoError(err)
	require.Len(votes, int(params.NumVoterChains))

	// Each chain contributes exactly one main-chain vote.
	counts := bag.New[uint16]()
	for _, v := range votes {
		counts.Add(v.Chain)
	}
	require.Equal(int(params.NumVoterChains), counts.Len())
	for c := uint16(0); c < params.NumVoterChains; c++ {
		require.Equal(1, counts.Count(c))
	}
}
