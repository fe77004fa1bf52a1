// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package miner

import (
	"testing"
	"time"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/luxfi/prism/block"
	"github.com/luxfi/prism/blockstore"
	"github.com/luxfi/prism/blockstore/blockstoremock"
	"github.com/luxfi/prism/blockstore/blockstoretest"
	"github.com/luxfi/prism/config"
	"github.com/luxfi/prism/dag"
	"github.com/luxfi/prism/ids"
	"github.com/luxfi/prism/mempool"
	"github.com/luxfi/prism/validator"
)

func newMinerFixture(t *testing.T, store blockstore.Store) (*Miner, *dag.BlockChain, chan *block.Block) {
	t.Helper()
	params := config.Local()

	chain, err := dag.NewMemory(params, log.NewNoOpLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, chain.Close())
	})

	pool, err := mempool.New(params.MempoolCapacity, log.NewNoOpLogger(), prometheus.NewRegistry())
	require.NoError(t, err)

	sink := make(chan *block.Block, 4)
	var minerID [32]byte
	minerID[0] = 0x4d
	m, err := New(chain, store, pool, params, minerID, sink, log.NewNoOpLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	return m, chain, sink
}

func TestMineProducesValidBlock(t *testing.T) {
	require := require.New(t)

	store := blockstoretest.New()
	m, chain, sink := newMinerFixture(t, store)

	m.Start()
	defer m.Stop()

	var mined *block.Block
	select {
	case mined = <-sink:
	case <-time.After(30 * time.Second):
		t.Fatal("timed out waiting for a mined block")
	}

	// The emitted block must survive the full validation path.
	v := validator.New(chain, store, config.Local())
	require.Equal(validator.Pass, v.Validate(mined).Outcome)

	// The sortition band must agree with the attached content variant.
	role, chainNum, ok := validator.Sortition(mined.Hash(), mined.Header.Difficulty, config.Local())
	require.True(ok)
	require.Equal(mined.Role, role)
	if role == block.RoleVoter {
		require.Equal(chainNum, mined.Voter.Chain)
	}

	require.Equal(config.ProposerGenesis, mined.Header.Parent)
	require.Equal([32]byte{0x4d}, mined.Header.ExtraData)
}

func TestBuildContextSnapshotsChainView(t *testing.T) {
	require := require.New(t)

	store := blockstoretest.New()
	m, chain, _ := newMinerFixture(t, store)

	p1 := &block.Block{
		Header:   block.Header{Parent: config.ProposerGenesis, Nonce: 1, Difficulty: config.DefaultDifficulty},
		Role:     block.RoleProposer,
		Proposer: &block.ProposerContent{},
	}
	_, err := store.Put(p1)
	require.NoError(err)
	_, err = chain.InsertBlock(p1)
	require.NoError(err)

	ctx, err := m.buildContext()
	require.NoError(err)
	require.Equal(p1.Hash(), ctx.parent)
	require.Equal(config.DefaultDifficulty, ctx.difficulty)
	require.Len(ctx.contents, config.Local().ContentSlots())

	// Every voter slot must vote the unvoted level 1.
	for c := 0; c < int(config.Local().NumVoterChains); c++ {
		voter := ctx.contents[block.FirstVoterIndex+c].Voter
		require.Equal([]ids.Hash{p1.Hash()}, voter.Votes)
		require.Equal(config.VoterGenesis(uint16(c)), voter.VoterParent)
	}

	// The proposer content must not reference its own parent.
	require.NotContains(ctx.contents[block.ProposerIndex].Proposer.ProposerRefs, p1.Hash())
}

func TestDifficultyInheritsFromParent(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)

	var custom ids.Hash
	custom[0] = 0x11

	parent := &block.Block{
		Header:   block.Header{Difficulty: custom},
		Role:     block.RoleProposer,
		Proposer: &block.ProposerContent{},
	}

	store := blockstoremock.NewStore(ctrl)
	store.EXPECT().Get(gomock.Any()).Return(parent, nil)

	m, _, _ := newMinerFixture(t, store)
	require.Equal(custom, m.difficultyOf(parent.Hash()))
}

func TestDifficultyFallsBackToDefault(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)

	store := blockstoremock.NewStore(ctrl)
	store.EXPECT().Get(gomock.Any()).Return(nil, blockstore.ErrNotFound)

	m, _, _ := newMinerFixture(t, store)
	require.Equal(config.DefaultDifficulty, m.difficultyOf(ids.Hash{0x01}))
}
