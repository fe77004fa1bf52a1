// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pipeline

import (
	"testing"
	"time"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/prism/block"
	"github.com/luxfi/prism/blockstore/blockstoretest"
	"github.com/luxfi/prism/config"
	"github.com/luxfi/prism/dag"
	"github.com/luxfi/prism/ids"
	"github.com/luxfi/prism/ledger"
	"github.com/luxfi/prism/mempool"
	"github.com/luxfi/prism/utxo"
	"github.com/luxfi/prism/wallet"
)

type pipelineFixture struct {
	chain   *dag.BlockChain
	store   *blockstoretest.Store
	builder *ledger.Builder
	pool    *mempool.Pool
	wallet  *wallet.Wallet
	manager *Manager
	nonce   uint32
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	params := config.Local()
	params.NumVoterChains = 1

	chain, err := dag.NewMemory(params, log.NewNoOpLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, chain.Close())
	})

	builder, err := ledger.NewBuilder(chain, params, log.NewNoOpLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	pool, err := mempool.New(params.MempoolCapacity, log.NewNoOpLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	utxodb, err := utxo.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, utxodb.Close())
	})
	w, err := wallet.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, w.Close())
	})

	f := &pipelineFixture{
		chain:   chain,
		store:   blockstoretest.New(),
		builder: builder,
		pool:    pool,
		wallet:  w,
	}
	f.manager = New(f.store, builder, utxodb, w, pool, 64, log.NewNoOpLogger())
	f.manager.Start()
	t.Cleanup(func() {
		require.NoError(t, f.manager.Stop())
	})
	return f
}

// insert stores the block and links it into the DAG, mirroring the
// worker's insert path, then runs the pipeline's post-insert hooks.
func (f *pipelineFixture) insert(t *testing.T, b *block.Block) {
	t.Helper()
	_, err := f.store.Put(b)
	require.NoError(t, err)
	info, err := f.chain.InsertBlock(b)
	require.NoError(t, err)
	if info.Role == block.RoleProposer {
		f.builder.NoteProposer(info.Hash)
	}
	if info.VoterTipAdvanced {
		f.manager.NotifyTipAdvance()
	}
}

func (f *pipelineFixture) next() uint32 {
	f.nonce++
	return f.nonce
}

func TestConfirmFlowsToWallet(t *testing.T) {
	require := require.New(t)
	f := newPipelineFixture(t)

	recipient := ids.Hash{0xaa}
	f.wallet.AddAddress(recipient)

	// A minting transaction carried by one transaction block.
	tx := block.Transaction{
		Outputs: []block.Output{
			{Value: 30, Recipient: recipient},
			{Value: 12, Recipient: recipient},
		},
	}
	txBlock := &block.Block{
		Header:      block.Header{Parent: config.ProposerGenesis, Nonce: f.next(), Difficulty: config.DefaultDifficulty},
		Role:        block.RoleTransaction,
		Transaction: &block.TransactionContent{Transactions: []block.Transaction{tx}},
	}
	f.insert(t, txBlock)

	p1 := &block.Block{
		Header:   block.Header{Parent: config.ProposerGenesis, Nonce: f.next(), Difficulty: config.DefaultDifficulty},
		Role:     block.RoleProposer,
		Proposer: &block.ProposerContent{TransactionRefs: []ids.Hash{txBlock.Hash()}},
	}
	f.insert(t, p1)

	// The mempool holds the same transaction; confirmation must evict
	// it.
	f.pool.Insert(&tx)
	require.Equal(1, f.pool.Len())

	v1 := &block.Block{
		Header: block.Header{Parent: p1.Hash(), Nonce: f.next(), Difficulty: config.DefaultDifficulty},
		Role:   block.RoleVoter,
		Voter: &block.VoterContent{
			Chain:       0,
			VoterParent: config.VoterGenesis(0),
			Votes:       []ids.Hash{p1.Hash()},
		},
	}
	f.insert(t, v1)

	// The vote confirms p1, the ledger emits txBlock, the UTXO stage
	// mints the coins, and the wallet balance reflects them.
	require.Eventually(func() bool {
		balance, err := f.wallet.Balance()
		return err == nil && balance == 42
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(func() bool {
		return f.pool.Len() == 0
	}, 5*time.Second, 10*time.Millisecond)
}
