// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dag

import (
	"encoding/binary"

	"github.com/luxfi/prism/ids"
)

// Column-family key prefixes. Each prefix is conceptually its own
// keyspace within the single LevelDB engine.
const (
	prefixProposerLevel       byte = 'P' // hash -> level (u64)
	prefixProposerLevelBlocks byte = 'L' // level (u64) -> hash vec, first-seen order
	prefixVoterLevel          byte = 'V' // hash -> level (u64)
	prefixVoterChain          byte = 'C' // hash -> chain (u16)
	prefixVoterVotedLevel     byte = 'D' // hash -> deepest voted proposer level (u64)
	prefixParent              byte = 'p' // hash -> proposer parent hash
	prefixVoterParent         byte = 'v' // hash -> voter parent hash
	prefixVotes               byte = 'o' // hash -> voted proposer hash vec
	prefixTxRefs              byte = 't' // hash -> referenced tx-block hash vec
	prefixPropRefs            byte = 'r' // hash -> referenced proposer hash vec, parent first
	prefixProposerVotes       byte = 'w' // hash -> (chain u16, voter level u64) vec
	prefixLeader              byte = 'e' // level (u64) -> leader hash
	prefixConfirmList         byte = 'f' // level (u64) -> confirmed proposer hash vec
)

func hashKey(prefix byte, h ids.Hash) []byte {
	return append([]byte{prefix}, h[:]...)
}

func levelKey(prefix byte, level uint64) []byte {
	k := make([]byte, 9)
	k[0] = prefix
	binary.BigEndian.PutUint64(k[1:], level)
	return k
}

func encodeU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeU64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

func encodeU16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func decodeU16(b []byte) uint16 {
	return binary.BigEndian.Uint16(b)
}

// Hash vectors are stored as the raw concatenation of 32-byte hashes.

func appendHashVec(existing []byte, h ids.Hash) []byte {
	out := make([]byte, 0, len(existing)+ids.HashLen)
	out = append(out, existing...)
	return append(out, h[:]...)
}

func decodeHashVec(b []byte) []ids.Hash {
	n := len(b) / ids.HashLen
	out := make([]ids.Hash, n)
	for i := 0; i < n; i++ {
		copy(out[i][:], b[i*ids.HashLen:])
	}
	return out
}

func encodeHashVec(hs []ids.Hash) []byte {
	out := make([]byte, 0, len(hs)*ids.HashLen)
	for _, h := range hs {
		out = append(out, h[:]...)
	}
	return out
}

// ChainVote is one entry of the proposer-votes column: voter chain
// number and the voter level of the main-chain block casting the vote.
type ChainVote struct {
	Chain uint16
	Level uint64
}

const chainVoteLen = 2 + 8

func encodeChainVotes(votes []ChainVote) []byte {
	out := make([]byte, 0, len(votes)*chainVoteLen)
	for _, v := range votes {
		out = binary.BigEndian.AppendUint16(out, v.Chain)
		out = binary.BigEndian.AppendUint64(out, v.Level)
	}
	return out
}

func decodeChainVotes(b []byte) []ChainVote {
	n := len(b) / chainVoteLen
	out := make([]ChainVote, n)
	for i := 0; i < n; i++ {
		off := i * chainVoteLen
		out[i].Chain = binary.BigEndian.Uint16(b[off:])
		out[i].Level = binary.BigEndian.Uint64(b[off+2:])
	}
	return out
}

// voteVecApply implements the vote-vector merge operator: insert appends
// (chain, level); remove deletes the first entry matching chain. A
// remove with no matching chain is a no-op; the caller logs it. The
// operation is associative but not commutative, so callers must apply
// operands in write order.
func voteVecApply(existing []byte, add bool, chain uint16, level uint64) (out []byte, removeMiss bool, levelMismatch bool) {
	votes := decodeChainVotes(existing)
	if add {
		votes = append(votes, ChainVote{Chain: chain, Level: level})
		return encodeChainVotes(votes), false, false
	}
	for i, v := range votes {
		if v.Chain == chain {
			mismatch := v.Level != level
			votes = append(votes[:i], votes[i+1:]...)
			return encodeChainVotes(votes), false, mismatch
		}
	}
	return existing, true, false
}
