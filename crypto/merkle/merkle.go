// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package merkle implements the Merkle tree used to commit a block's
// three content variants (proposer/transaction/voter) to a single
// content_root, with authentication paths used as sortition proofs.
package merkle

import (
	"errors"

	"github.com/luxfi/prism/crypto"
	"github.com/luxfi/prism/ids"
)

// ErrEmptyTree is returned when constructing a tree over zero leaves.
var ErrEmptyTree = errors.New("merkle: empty leaf set")

// Tree is a binary Merkle tree over an ordered sequence of leaf hashes.
// Odd-length layers duplicate their last node before pairing; proof and
// verify must agree on this convention or the sortition proof would be
// forgeable.
type Tree struct {
	layers [][]ids.Hash // layers[0] is the leaves; layers[len-1] is {root}
}

// New builds a tree by hashing each item with Leaf and folding layers
// upward. leaves must be non-empty.
func New(items [][]byte) (*Tree, error) {
	if len(items) == 0 {
		return nil, ErrEmptyTree
	}
	leaves := make([]ids.Hash, len(items))
	for i, it := range items {
		leaves[i] = Leaf(it)
	}
	return NewFromLeaves(leaves)
}

// NewFromLeaves builds a tree directly from already-hashed leaves.
func NewFromLeaves(leaves []ids.Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	t := &Tree{layers: [][]ids.Hash{append([]ids.Hash(nil), leaves...)}}
	cur := t.layers[0]
	for len(cur) > 1 {
		cur = foldLayer(cur)
		t.layers = append(t.layers, cur)
	}
	return t, nil
}

// Leaf is the domain-separated hash of a leaf's raw bytes.
func Leaf(b []byte) ids.Hash {
	return crypto.HashConcat([]byte{0x00}, b)
}

func pairHash(left, right ids.Hash) ids.Hash {
	return crypto.HashConcat([]byte{0x01}, left[:], right[:])
}

// foldLayer produces the parent layer from cur, duplicating the last
// element when cur has odd length.
func foldLayer(cur []ids.Hash) []ids.Hash {
	n := len(cur)
	next := make([]ids.Hash, 0, (n+1)/2)
	for i := 0; i < n; i += 2 {
		if i+1 < n {
			next = append(next, pairHash(cur[i], cur[i+1]))
		} else {
			next = append(next, pairHash(cur[i], cur[i]))
		}
	}
	return next
}

// Root returns the tree's root hash.
func (t *Tree) Root() ids.Hash {
	top := t.layers[len(t.layers)-1]
	return top[0]
}

// LeafCount returns the number of leaves the tree was built over.
func (t *Tree) LeafCount() int {
	return len(t.layers[0])
}

// Proof returns the bottom-up sibling path authenticating the leaf at
// index i against Root().
func (t *Tree) Proof(i int) ([]ids.Hash, error) {
	if i < 0 || i >= len(t.layers[0]) {
		return nil, errors.New("merkle: index out of range")
	}
	proof := make([]ids.Hash, 0, len(t.layers)-1)
	idx := i
	for layer := 0; layer < len(t.layers)-1; layer++ {
		cur := t.layers[layer]
		sibIdx := idx ^ 1
		if sibIdx >= len(cur) {
			// Odd layer: the last element is paired with itself.
			sibIdx = idx
		}
		proof = append(proof, cur[sibIdx])
		idx /= 2
	}
	return proof, nil
}

// Update recomputes the path from leaf i upward after replacing its
// value, in O(log n).
func (t *Tree) Update(i int, newLeaf []byte) error {
	if i < 0 || i >= len(t.layers[0]) {
		return errors.New("merkle: index out of range")
	}
	t.layers[0][i] = Leaf(newLeaf)
	idx := i
	for layer := 0; layer < len(t.layers)-1; layer++ {
		cur := t.layers[layer]
		pairIdx := idx &^ 1 // even partner of the pair
		var parent ids.Hash
		if pairIdx+1 < len(cur) {
			parent = pairHash(cur[pairIdx], cur[pairIdx+1])
		} else {
			parent = pairHash(cur[pairIdx], cur[pairIdx])
		}
		idx /= 2
		t.layers[layer+1][idx] = parent
	}
	return nil
}

// Verify recomputes root from leaf, proof, index, and leafCount and
// compares against root. It mirrors the duplicated-last-node convention
// exactly: at each level, the number of nodes remaining (tracked via a
// shrinking leafCount) determines whether index's sibling is itself.
func Verify(root ids.Hash, leaf []byte, proof []ids.Hash, index int, leafCount int) bool {
	if index < 0 || index >= leafCount || leafCount == 0 {
		return false
	}
	cur := Leaf(leaf)
	idx := index
	levelSize := leafCount
	for _, sib := range proof {
		isLastAndOdd := levelSize%2 == 1 && idx == levelSize-1
		if idx%2 == 0 {
			if isLastAndOdd {
				cur = pairHash(cur, cur)
			} else {
				cur = pairHash(cur, sib)
			}
		} else {
			cur = pairHash(sib, cur)
		}
		idx /= 2
		levelSize = (levelSize + 1) / 2
	}
	return cur == root && levelSize == 1
}
