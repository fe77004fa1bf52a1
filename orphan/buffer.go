// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package orphan buffers blocks whose parent or references have not
// arrived yet, and releases them as their dependencies are satisfied.
package orphan

import (
	"sync"

	"github.com/luxfi/prism/block"
	"github.com/luxfi/prism/ids"
	"github.com/luxfi/prism/utils/set"
)

// Buffer holds pending blocks keyed by their missing dependencies.
// Forward (block -> missing deps) and reverse (dep -> dependents)
// indexes are kept consistent under one lock; Insert and Satisfy update
// both incrementally.
type Buffer struct {
	mu sync.Mutex

	blocks map[ids.Hash]*block.Block
	// dependency maps a buffered block to the hashes it still waits on.
	dependency map[ids.Hash]set.Set[ids.Hash]
	// dependent maps a missing hash to the buffered blocks waiting on
	// it.
	dependent map[ids.Hash]set.Set[ids.Hash]
}

// New returns an empty buffer.
func New() *Buffer {
	return &Buffer{
		blocks:     make(map[ids.Hash]*block.Block),
		dependency: make(map[ids.Hash]set.Set[ids.Hash]),
		dependent:  make(map[ids.Hash]set.Set[ids.Hash]),
	}
}

// Insert buffers b until every hash in deps has been satisfied.
// Callers must hold validation and insertion atomic with respect to
// Satisfy, or a dependency arriving between the two is lost.
func (buf *Buffer) Insert(b *block.Block, deps []ids.Hash) {
	hash := b.Hash()

	buf.mu.Lock()
	defer buf.mu.Unlock()

	buf.blocks[hash] = b
	dependency := set.NewSet[ids.Hash](len(deps))
	for _, dep := range deps {
		dependency.Add(dep)
		dependents, ok := buf.dependent[dep]
		if !ok {
			dependents = set.NewSet[ids.Hash](1)
			buf.dependent[dep] = dependents
		}
		dependents.Add(hash)
	}
	buf.dependency[hash] = dependency
}

// Satisfy marks hash as available and returns the buffered blocks whose
// dependency sets became empty, in insertion-agnostic order. Repeated
// calls for the same hash are tolerated; draining transitively is the
// caller's loop.
func (buf *Buffer) Satisfy(hash ids.Hash) []*block.Block {
	buf.mu.Lock()
	defer buf.mu.Unlock()

	dependents, ok := buf.dependent[hash]
	if !ok {
		return nil
	}
	delete(buf.dependent, hash)

	var resolved []*block.Block
	for _, node := range dependents.List() {
		dependency := buf.dependency[node]
		dependency.Remove(hash)
		if dependency.Len() == 0 {
			delete(buf.dependency, node)
			resolved = append(resolved, buf.blocks[node])
			delete(buf.blocks, node)
		}
	}
	return resolved
}

// Contains reports whether hash is currently buffered.
func (buf *Buffer) Contains(hash ids.Hash) bool {
	buf.mu.Lock()
	defer buf.mu.Unlock()
	_, ok := buf.blocks[hash]
	return ok
}

// Len returns the number of buffered blocks.
func (buf *Buffer) Len() int {
	buf.mu.Lock()
	defer buf.mu.Unlock()
	return len(buf.blocks)
}
