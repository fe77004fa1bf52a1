// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mempool

import (
	"testing"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/prism/block"
	"github.com/luxfi/prism/ids"
)

func newTestPool(t *testing.T, capacity int) *Pool {
	t.Helper()
	p, err := New(capacity, log.NewNoOpLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	return p
}

func addr(b byte) ids.Address {
	var a ids.Address
	a[0] = b
	return a
}

// spendTx builds a transaction spending the given coin to recipient.
func spendTx(coin ids.CoinID, value uint64, recipient byte) *block.Transaction {
	return &block.Transaction{
		Inputs: []block.Input{{Coin: coin, Value: value, Owner: addr(0x01)}},
		Outputs: []block.Output{
			{Value: value, Recipient: addr(recipient)},
		},
	}
}

func TestInsertRemove(t *testing.T) {
	require := require.New(t)
	pool := newTestPool(t, 100)

	tx := spendTx(ids.CoinID{TxHash: ids.Hash{1}, Index: 0}, 10, 0xaa)
	require.True(pool.Insert(tx))
	require.Equal(1, pool.Len())
	require.True(pool.Contains(tx.Hash()))
	require.True(pool.IsDoubleSpend(tx.Inputs))

	// Duplicate insert is rejected.
	require.False(pool.Insert(tx))

	pool.RemoveByHash(tx.Hash())
	require.Equal(0, pool.Len())
	require.False(pool.Contains(tx.Hash()))
	require.False(pool.IsDoubleSpend(tx.Inputs))
}

func TestCapacity(t *testing.T) {
	require := require.New(t)
	pool := newTestPool(t, 2)

	for i := byte(0); i < 2; i++ {
		tx := spendTx(ids.CoinID{TxHash: ids.Hash{i + 1}, Index: 0}, 10, 0xaa)
		require.True(pool.Insert(tx))
	}
	overflow := spendTx(ids.CoinID{TxHash: ids.Hash{9}, Index: 0}, 10, 0xaa)
	require.False(pool.Insert(overflow))
	require.Equal(2, pool.Len())
}

func TestFIFOSelection(t *testing.T) {
	require := require.New(t)
	pool := newTestPool(t, 100)

	var want []ids.Hash
	for i := byte(0); i < 20; i++ {
		tx := spendTx(ids.CoinID{TxHash: ids.Hash{i + 1}, Index: 0}, 10, 0xaa)
		require.True(pool.Insert(tx))
		want = append(want, tx.Hash())
	}

	got := pool.GetTransactions(15)
	require.Len(got, 15)
	for i, e := range got {
		require.Equal(want[i], e.Hash)
	}

	// Asking for more than pending returns everything, still in order.
	all := pool.GetTransactions(25)
	require.Len(all, 20)

	// Removing a middle entry preserves the relative order of the rest.
	pool.RemoveByHash(want[3])
	rest := pool.GetTransactions(25)
	require.Len(rest, 19)
	require.Equal(want[2], rest[2].Hash)
	require.Equal(want[4], rest[3].Hash)
}

func TestRemoveByInputCascade(t *testing.T) {
	require := require.New(t)
	pool := newTestPool(t, 100)

	// tx1 spends coin X; tx2 spends tx1's output; tx3 spends tx2's.
	coinX := ids.CoinID{TxHash: ids.Hash{0xee}, Index: 0}
	tx1 := spendTx(coinX, 10, 0xaa)
	tx2 := spendTx(ids.CoinID{TxHash: tx1.Hash(), Index: 0}, 10, 0xbb)
	tx3 := spendTx(ids.CoinID{TxHash: tx2.Hash(), Index: 0}, 10, 0xcc)
	require.True(pool.Insert(tx1))
	require.True(pool.Insert(tx2))
	require.True(pool.Insert(tx3))

	pool.RemoveByInput(coinX)

	require.False(pool.Contains(tx1.Hash()))
	require.False(pool.Contains(tx2.Hash()))
	require.False(pool.Contains(tx3.Hash()))
	require.Equal(0, pool.Len())
}

func TestRemoveByInputUnknownCoin(t *testing.T) {
	require := require.New(t)
	pool := newTestPool(t, 100)

	tx := spendTx(ids.CoinID{TxHash: ids.Hash{1}, Index: 0}, 10, 0xaa)
	require.True(pool.Insert(tx))

	pool.RemoveByInput(ids.CoinID{TxHash: ids.Hash{0x7f}, Index: 3})
	require.Equal(1, pool.Len())
}
