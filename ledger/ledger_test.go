// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"testing"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/prism/block"
	"github.com/luxfi/prism/config"
	"github.com/luxfi/prism/dag"
	"github.com/luxfi/prism/ids"
	"github.com/luxfi/prism/status"
)

type harness struct {
	chain   *dag.BlockChain
	builder *Builder
	params  config.Parameters
	nonce   uint32
}

func newHarness(t *testing.T, params config.Parameters) *harness {
	t.Helper()
	chain, err := dag.NewMemory(params, log.NewNoOpLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, chain.Close())
	})
	builder, err := NewBuilder(chain, params, log.NewNoOpLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	return &harness{chain: chain, builder: builder, params: params}
}

// singleChainParams is a one-voter-chain preset with no assumed
// adversary: one vote confirms a level immediately.
func singleChainParams() config.Parameters {
	params := config.Local()
	params.NumVoterChains = 1
	return params
}

func (h *harness) insertProposer(t *testing.T, parent ids.Hash, txRefs, propRefs []ids.Hash) ids.Hash {
	t.Helper()
	h.nonce++
	b := &block.Block{
		Header: block.Header{Parent: parent, Nonce: h.nonce, Difficulty: config.DefaultDifficulty},
		Role:   block.RoleProposer,
		Proposer: &block.ProposerContent{
			TransactionRefs: txRefs,
			ProposerRefs:    propRefs,
		},
	}
	_, err := h.chain.InsertBlock(b)
	require.NoError(t, err)
	h.builder.NoteProposer(b.Hash())
	return b.Hash()
}

func (h *harness) insertTransactionBlock(t *testing.T, parent ids.Hash) ids.Hash {
	t.Helper()
	h.nonce++
	b := &block.Block{
		Header:      block.Header{Parent: parent, Nonce: h.nonce, Difficulty: config.DefaultDifficulty},
		Role:        block.RoleTransaction,
		Transaction: &block.TransactionContent{},
	}
	_, err := h.chain.InsertBlock(b)
	require.NoError(t, err)
	return b.Hash()
}

func (h *harness) insertVoter(t *testing.T, parent, voterParent ids.Hash, chain uint16, votes []ids.Hash) ids.Hash {
	t.Helper()
	h.nonce++
	b := &block.Block{
		Header: block.Header{Parent: parent, Nonce: h.nonce, Difficulty: config.DefaultDifficulty},
		Role:   block.RoleVoter,
		Voter: &block.VoterContent{
			Chain:       chain,
			VoterParent: voterParent,
			Votes:       votes,
		},
	}
	_, err := h.chain.InsertBlock(b)
	require.NoError(t, err)
	return b.Hash()
}

// voteAll extends every chain's main chain by one block voting for
// every currently unvoted proposer level.
func (h *harness) voteAll(t *testing.T, parent ids.Hash) {
	t.Helper()
	for c := uint16(0); c < h.params.NumVoterChains; c++ {
		tip := h.chain.BestVoter(c)
		votes, err := h.chain.UnvotedProposer(tip)
		require.NoError(t, err)
		h.insertVoter(t, parent, tip, c, votes)
	}
}

func TestSingleChainConfirm(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, singleChainParams())

	t1 := h.insertTransactionBlock(t, config.ProposerGenesis)
	p1 := h.insertProposer(t, config.ProposerGenesis, []ids.Hash{t1}, nil)

	// No votes yet: no leader at level 1.
	_, ok := h.builder.Leader(1)
	require.False(ok)

	h.insertVoter(t, p1, config.VoterGenesis(0), 0, []ids.Hash{p1})
	diff, err := h.builder.Advance()
	require.NoError(err)

	leader, ok := h.builder.Leader(1)
	require.True(ok)
	require.Equal(p1, leader)
	require.Equal([]ids.Hash{p1}, h.builder.LedgerOrder(1))
	require.Equal(uint64(1), h.builder.TipLevel())
	require.Equal([]ids.Hash{t1}, diff.Added)
	require.Empty(diff.Removed)
	require.Equal(status.Confirmed, h.builder.StatusOf(p1))
}

func TestMajorityGate(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, config.Local()) // 3 voter chains

	p1 := h.insertProposer(t, config.ProposerGenesis, nil, nil)

	// One of three chains voting is below the 3/5 gate.
	h.insertVoter(t, p1, config.VoterGenesis(0), 0, []ids.Hash{p1})
	_, err := h.builder.Advance()
	require.NoError(err)
	_, ok := h.builder.Leader(1)
	require.False(ok)

	// The second vote crosses it.
	h.insertVoter(t, p1, config.VoterGenesis(1), 1, []ids.Hash{p1})
	_, err = h.builder.Advance()
	require.NoError(err)
	leader, ok := h.builder.Leader(1)
	require.True(ok)
	require.Equal(p1, leader)
}

func TestProposerForkSingleLeader(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, config.Local())

	p1a := h.insertProposer(t, config.ProposerGenesis, nil, nil)
	p1b := h.insertProposer(t, config.ProposerGenesis, nil, nil)

	// Every chain votes for p1a.
	for c := uint16(0); c < h.params.NumVoterChains; c++ {
		h.insertVoter(t, p1a, config.VoterGenesis(c), c, []ids.Hash{p1a})
	}
	_, err := h.builder.Advance()
	require.NoError(err)

	leader, ok := h.builder.Leader(1)
	require.True(ok)
	require.Equal(p1a, leader)
	require.Equal([]ids.Hash{p1a}, h.builder.LedgerOrder(1))
	require.Equal(status.Unconfirmed, h.builder.StatusOf(p1b))
}

func TestReferenceExpansion(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, config.Local())

	t1 := h.insertTransactionBlock(t, config.ProposerGenesis)
	p1a := h.insertProposer(t, config.ProposerGenesis, nil, nil)
	p1b := h.insertProposer(t, config.ProposerGenesis, nil, nil)

	for c := uint16(0); c < h.params.NumVoterChains; c++ {
		h.insertVoter(t, p1a, config.VoterGenesis(c), c, []ids.Hash{p1a})
	}
	_, err := h.builder.Advance()
	require.NoError(err)
	require.Equal([]ids.Hash{p1a}, h.builder.LedgerOrder(1))

	// p2 confirms: its DFS visits the already-confirmed parent p1a,
	// then the unconfirmed ref p1b, then itself.
	p2 := h.insertProposer(t, p1a, []ids.Hash{t1}, []ids.Hash{p1b})
	h.voteAll(t, p2)
	diff, err := h.builder.Advance()
	require.NoError(err)

	leader, ok := h.builder.Leader(2)
	require.True(ok)
	require.Equal(p2, leader)
	require.Equal([]ids.Hash{p1b, p2}, h.builder.LedgerOrder(2))
	require.Equal([]ids.Hash{t1}, diff.Added)
	require.Equal(status.Confirmed, h.builder.StatusOf(p1b))
}

func TestVoterForkCausesLedgerReorg(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, singleChainParams())

	ta := h.insertTransactionBlock(t, config.ProposerGenesis)
	tb := h.insertTransactionBlock(t, config.ProposerGenesis)
	p1a := h.insertProposer(t, config.ProposerGenesis, []ids.Hash{ta}, nil)
	p1b := h.insertProposer(t, config.ProposerGenesis, []ids.Hash{tb}, nil)

	vg := config.VoterGenesis(0)
	h.insertVoter(t, p1a, vg, 0, []ids.Hash{p1a})
	diff, err := h.builder.Advance()
	require.NoError(err)
	require.Equal([]ids.Hash{ta}, diff.Added)
	leader, ok := h.builder.Leader(1)
	require.True(ok)
	require.Equal(p1a, leader)

	// A longer fork switching the chain's vote to p1b.
	v1Fork := h.insertVoter(t, p1b, vg, 0, []ids.Hash{p1b})
	h.insertVoter(t, p1b, v1Fork, 0, nil)
	diff, err = h.builder.Advance()
	require.NoError(err)

	leader, ok = h.builder.Leader(1)
	require.True(ok)
	require.Equal(p1b, leader)
	require.Equal([]ids.Hash{p1b}, h.builder.LedgerOrder(1))
	// The old segment rolls back before the new one applies.
	require.Equal([]ids.Hash{ta}, diff.Removed)
	require.Equal([]ids.Hash{tb}, diff.Added)
	require.Equal(status.Unconfirmed, h.builder.StatusOf(p1a))
	require.Equal(status.Confirmed, h.builder.StatusOf(p1b))
}

func TestAdversaryShallowVoteDoesNotConfirm(t *testing.T) {
	require := require.New(t)

	params := singleChainParams()
	params.AdversaryRatio = 0.4
	params.QuantileConfirm = 4.0
	params.QuantileDeconfirm = 2.0
	h := newHarness(t, params)

	p1 := h.insertProposer(t, config.ProposerGenesis, nil, nil)
	h.insertVoter(t, p1, config.VoterGenesis(0), 0, []ids.Hash{p1})
	diff, err := h.builder.Advance()
	require.NoError(err)

	// A depth-1 vote has no confidence margin against a 40% adversary.
	_, ok := h.builder.Leader(1)
	require.False(ok)
	require.True(diff.Empty())
}

func TestAdvanceWithoutTipMovementIsNoop(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, config.Local())

	h.insertProposer(t, config.ProposerGenesis, nil, nil)
	diff, err := h.builder.Advance()
	require.NoError(err)
	require.True(diff.Empty())
}
