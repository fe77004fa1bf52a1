// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package codec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/prism/block"
	"github.com/luxfi/prism/ids"
)

func hashOf(b byte) ids.Hash {
	var h ids.Hash
	h[0] = b
	h[31] = b
	return h
}

func sampleTransaction() block.Transaction {
	return block.Transaction{
		Inputs: []block.Input{
			{
				Coin:  ids.CoinID{TxHash: hashOf(1), Index: 0},
				Value: 50,
				Owner: hashOf(2),
			},
			{
				Coin:  ids.CoinID{TxHash: hashOf(1), Index: 3},
				Value: 25,
				Owner: hashOf(2),
			},
		},
		Outputs: []block.Output{
			{Value: 60, Recipient: hashOf(3)},
			{Value: 15, Recipient: hashOf(4)},
		},
		Authorizations: []block.Authorization{
			{PublicKey: []byte{0xaa, 0xbb}, Signature: []byte{0x01, 0x02, 0x03}},
		},
	}
}

func sampleHeader() block.Header {
	h := block.Header{
		Parent:      hashOf(9),
		Timestamp:   1234567890,
		Nonce:       42,
		ContentRoot: hashOf(10),
		Difficulty:  hashOf(0xdf),
	}
	h.ExtraData[0] = 0x7e
	return h
}

func TestBlockRoundTripProposer(t *testing.T) {
	require := require.New(t)

	b := &block.Block{
		Header: sampleHeader(),
		Role:   block.RoleProposer,
		Proposer: &block.ProposerContent{
			TransactionRefs: []ids.Hash{hashOf(11), hashOf(12)},
			ProposerRefs:    []ids.Hash{hashOf(13)},
		},
		SortitionProof: []ids.Hash{hashOf(20), hashOf(21)},
	}

	data, err := MarshalBlock(b)
	require.NoError(err)

	got, err := UnmarshalBlock(data)
	require.NoError(err)
	require.Equal(b.Header, got.Header)
	require.Equal(b.Role, got.Role)
	require.Equal(b.Proposer.TransactionRefs, got.Proposer.TransactionRefs)
	require.Equal(b.Proposer.ProposerRefs, got.Proposer.ProposerRefs)
	require.Equal(b.SortitionProof, got.SortitionProof)
	require.Equal(b.Hash(), got.Hash())
}

func TestBlockRoundTripVoter(t *testing.T) {
	require := require.New(t)

	b := &block.Block{
		Header: sampleHeader(),
		Role:   block.RoleVoter,
		Voter: &block.VoterContent{
			Chain:       7,
			VoterParent: hashOf(30),
			Votes:       []ids.Hash{hashOf(31), hashOf(32), hashOf(33)},
		},
		SortitionProof: []ids.Hash{hashOf(40)},
	}

	data, err := MarshalBlock(b)
	require.NoError(err)

	got, err := UnmarshalBlock(data)
	require.NoError(err)
	require.Equal(b.Role, got.Role)
	require.Equal(b.Voter.Chain, got.Voter.Chain)
	require.Equal(b.Voter.VoterParent, got.Voter.VoterParent)
	require.Equal(b.Voter.Votes, got.Voter.Votes)
}

func TestBlockRoundTripTransaction(t *testing.T) {
	require := require.New(t)

	b := &block.Block{
		Header: sampleHeader(),
		Role:   block.RoleTransaction,
		Transaction: &block.TransactionContent{
			Transactions: []block.Transaction{sampleTransaction(), sampleTransaction()},
		},
	}

	data, err := MarshalBlock(b)
	require.NoError(err)

	got, err := UnmarshalBlock(data)
	require.NoError(err)
	require.Len(got.Transaction.Transactions, 2)
	require.Equal(b.Transaction.Transactions, got.Transaction.Transactions)

	// Content bytes must re-hash to the same content leaf after a round
	// trip, or the sortition proof would break.
	wantContent, err := b.ContentHash()
	require.NoError(err)
	gotContent, err := got.ContentHash()
	require.NoError(err)
	require.Equal(wantContent, gotContent)
}

func TestTransactionRoundTrip(t *testing.T) {
	require := require.New(t)

	tx := sampleTransaction()
	got, err := UnmarshalTransaction(MarshalTransaction(&tx))
	require.NoError(err)
	require.Equal(tx, *got)
	require.Equal(tx.Hash(), got.Hash())
}

func TestTransactionRoundTripEmptySlices(t *testing.T) {
	require := require.New(t)

	tx := block.Transaction{
		Inputs:         []block.Input{},
		Outputs:        []block.Output{{Value: 1, Recipient: hashOf(5)}},
		Authorizations: []block.Authorization{},
	}
	got, err := UnmarshalTransaction(MarshalTransaction(&tx))
	require.NoError(err)
	require.Equal(tx, *got)
}

func TestUnmarshalBlockBadVersion(t *testing.T) {
	require := require.New(t)

	b := &block.Block{
		Header:      sampleHeader(),
		Role:        block.RoleTransaction,
		Transaction: &block.TransactionContent{},
	}
	data, err := MarshalBlock(b)
	require.NoError(err)

	data[0] = 0xff
	_, err = UnmarshalBlock(data)
	require.ErrorIs(err, ErrUnsupportedVersion)
}

func TestUnmarshalBlockTruncated(t *testing.T) {
	require := require.New(t)

	b := &block.Block{
		Header:      sampleHeader(),
		Role:        block.RoleTransaction,
		Transaction: &block.TransactionContent{Transactions: []block.Transaction{sampleTransaction()}},
	}
	data, err := MarshalBlock(b)
	require.NoError(err)

	for _, cut := range []int{1, 10, len(data) / 2, len(data) - 1} {
		_, err := UnmarshalBlock(data[:cut])
		require.Error(err, "truncation at %d should fail", cut)
	}
}

func TestUnmarshalBlockTrailingBytes(t *testing.T) {
	require := require.New(t)

	b := &block.Block{
		Header:      sampleHeader(),
		Role:        block.RoleTransaction,
		Transaction: &block.TransactionContent{},
	}
	data, err := MarshalBlock(b)
	require.NoError(err)

	_, err = UnmarshalBlock(append(data, 0x00))
	require.ErrorIs(err, ErrTrailingBytes)
}
