// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config holds the consensus parameters: the number of voter
// chains, the per-role mining rate weights that carve the sortition
// bands, the confirm/deconfirm quantiles for leader election, and the
// default difficulty target.
package config

import (
	"encoding/binary"

	"github.com/luxfi/prism/ids"
)

// Parameters contains consensus configuration.
type Parameters struct {
	// Chain structure
	NumVoterChains uint16 // N parallel voter chains

	// Mining rate weights (Proposer : Transaction : per-chain Voter).
	// The voter band weight is VoterRate * NumVoterChains.
	ProposerRate    uint32
	TransactionRate uint32
	VoterRate       uint32

	// Leader election
	AdversaryRatio    float64 // ρ, assumed adversary mining power fraction
	QuantileConfirm   float64 // q when electing a leader for a leaderless level
	QuantileDeconfirm float64 // q when re-examining a level that has a leader

	// Block limits
	TxBlockTransactions int // max transactions per transaction block
	MempoolCapacity     int // max pending transactions held by the mempool

	// Pipeline sizing
	NetworkWorkers int
	UtxoWorkers    int
	LedgerBuffer   int // bounded-queue depth between ledger and UTXO stages
}

// TotalRate returns the denominator of the sortition bands:
// ProposerRate + TransactionRate + VoterRate*NumVoterChains.
func (p Parameters) TotalRate() uint64 {
	return uint64(p.ProposerRate) +
		uint64(p.TransactionRate) +
		uint64(p.VoterRate)*uint64(p.NumVoterChains)
}

// ContentSlots returns the number of Merkle content slots a miner
// commits to: proposer, transaction, and one per voter chain.
func (p Parameters) ContentSlots() int {
	return 2 + int(p.NumVoterChains)
}

// Mainnet returns mainnet parameters.
func Mainnet() Parameters {
	return Parameters{
		NumVoterChains:      100,
		ProposerRate:        10,
		TransactionRate:     500,
		VoterRate:           10,
		AdversaryRatio:      0.40,
		QuantileConfirm:     4.0,
		QuantileDeconfirm:   2.0,
		TxBlockTransactions: 228,
		MempoolCapacity:     100000,
		NetworkWorkers:      8,
		UtxoWorkers:         1,
		LedgerBuffer:        256,
	}
}

// Testnet returns testnet parameters.
func Testnet() Parameters {
	return Parameters{
		NumVoterChains:      10,
		ProposerRate:        10,
		TransactionRate:     500,
		VoterRate:           10,
		AdversaryRatio:      0.40,
		QuantileConfirm:     3.0,
		QuantileDeconfirm:   1.5,
		TxBlockTransactions: 228,
		MempoolCapacity:     50000,
		NetworkWorkers:      4,
		UtxoWorkers:         1,
		LedgerBuffer:        128,
	}
}

// Local returns local development parameters. The zero adversary ratio
// makes leader election deterministic: a level confirms as soon as a
// strict majority of chains vote for a single proposer block.
func Local() Parameters {
	return Parameters{
		NumVoterChains:      3,
		ProposerRate:        10,
		TransactionRate:     500,
		VoterRate:           10,
		AdversaryRatio:      0,
		QuantileConfirm:     0,
		QuantileDeconfirm:   0,
		TxBlockTransactions: 64,
		MempoolCapacity:     10000,
		NetworkWorkers:      4,
		UtxoWorkers:         1,
		LedgerBuffer:        64,
	}
}

// ProposerGenesis is the hash of the proposer genesis block: all zero.
var ProposerGenesis = ids.Empty

// VoterGenesis returns the genesis hash of voter chain c: the 32-byte
// big-endian encoding of c+1.
func VoterGenesis(chain uint16) ids.Hash {
	var h ids.Hash
	binary.BigEndian.PutUint16(h[30:], chain+1)
	return h
}

// DefaultDifficulty is the default PoW target T0: top three bytes
// 00 00 df, the rest ff.
var DefaultDifficulty = defaultDifficulty()

func defaultDifficulty() ids.Hash {
	var h ids.Hash
	for i := range h {
		h[i] = 0xff
	}
	h[0] = 0x00
	h[1] = 0x00
	h[2] = 0xdf
	return h
}
