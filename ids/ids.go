// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ids defines the identifier types shared across the consensus
// core: the 32-byte block/transaction hash, the coin identifier, and the
// recipient address, along with their total ordering.
package ids

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// HashLen is the fixed size, in bytes, of a Hash.
const HashLen = 32

// ErrInvalidHashLen is returned when decoding a hash of the wrong length.
var ErrInvalidHashLen = errors.New("invalid hash length")

// Hash is a 32-byte big-endian unsigned integer used as the content
// address of blocks, transactions, and public keys/addresses.
type Hash [HashLen]byte

// Empty is the zero hash, used as the proposer-genesis hash.
var Empty Hash

// ToHash copies b into a Hash. b must be exactly HashLen bytes.
func ToHash(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashLen {
		return h, fmt.Errorf("%w: got %d want %d", ErrInvalidHashLen, len(b), HashLen)
	}
	copy(h[:], b)
	return h, nil
}

// String returns the hex encoding of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the underlying bytes.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashLen)
	copy(b, h[:])
	return b
}

// IsEmpty reports whether this is the all-zero hash.
func (h Hash) IsEmpty() bool {
	return h == Empty
}

// Compare orders two hashes as big-endian u256 values, comparing the
// high 16 bytes before the low 16 bytes. Returns -1, 0, or 1.
func (h Hash) Compare(o Hash) int {
	for i := 0; i < HashLen; i++ {
		if h[i] != o[i] {
			if h[i] < o[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Less reports whether h sorts strictly before o.
func (h Hash) Less(o Hash) bool {
	return h.Compare(o) < 0
}

// SortHashes sorts hashes ascending in place.
func SortHashes(hs []Hash) {
	// Simple insertion sort is fine for the small slices (vote sets,
	// reference lists) this is used on; avoids importing sort for one call
	// site elsewhere pulling in a comparator closure per call.
	for i := 1; i < len(hs); i++ {
		for j := i; j > 0 && hs[j].Less(hs[j-1]); j-- {
			hs[j], hs[j-1] = hs[j-1], hs[j]
		}
	}
}

// NodeID identifies a miner/peer; reuses the Hash representation of the
// public key's address.
type NodeID = Hash

// Address is the recipient/owner identifier: hash(public key).
type Address = Hash

// CoinID uniquely identifies a UTXO output: the hash of the producing
// transaction plus the output index within it.
type CoinID struct {
	TxHash Hash
	Index  uint32
}

// String returns a human-readable form of the coin identifier.
func (c CoinID) String() string {
	return fmt.Sprintf("%s:%d", c.TxHash, c.Index)
}

// Compare orders coin IDs by tx hash then index.
func (c CoinID) Compare(o CoinID) int {
	if cmp := c.TxHash.Compare(o.TxHash); cmp != 0 {
		return cmp
	}
	switch {
	case c.Index < o.Index:
		return -1
	case c.Index > o.Index:
		return 1
	default:
		return 0
	}
}
