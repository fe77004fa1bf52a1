// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package status builds the read-only structured dump of the consensus
// state: per proposer level the block list and leader, per voter chain
// the main-chain tip and length, and the unreferred sets. Serving it
// over HTTP/JSON is a collaborator's concern.
package status

import (
	"github.com/luxfi/prism/dag"
	"github.com/luxfi/prism/ids"
	"github.com/luxfi/prism/ledger"
	blockstatus "github.com/luxfi/prism/status"
)

// ProposerLevel is the dump entry for one proposer level.
type ProposerLevel struct {
	Level  uint64     `json:"level"`
	Blocks []ids.Hash `json:"blocks"`
	Leader *ids.Hash  `json:"leader,omitempty"`
}

// VoterChain is the dump entry for one voter chain.
type VoterChain struct {
	Chain  uint16   `json:"chain"`
	Tip    ids.Hash `json:"tip"`
	Length uint64   `json:"length"`
}

// Dump is the full structured snapshot.
type Dump struct {
	ProposerLevels        []ProposerLevel `json:"proposer_levels"`
	VoterChains           []VoterChain    `json:"voter_chains"`
	UnreferredProposer    []ids.Hash      `json:"unreferred_proposer"`
	UnreferredTransaction []ids.Hash      `json:"unreferred_transaction"`
	LedgerTipLevel        uint64          `json:"ledger_tip_level"`
}

// BlockStatus reports one block's role, level, and confirmation state.
type BlockStatus struct {
	Hash   ids.Hash `json:"hash"`
	Role   string   `json:"role"`
	Level  uint64   `json:"level"`
	Status string   `json:"status"`
}

// Snapshot assembles a Dump from the chain and ledger. Each part is read
// separately under its own lock, so the parts are not taken from one
// single consistent view.
func Snapshot(chain *dag.BlockChain, builder *ledger.Builder) (*Dump, error) {
	d := &Dump{LedgerTipLevel: builder.TipLevel()}

	best := chain.BestProposerLevel()
	for level := uint64(0); level <= best; level++ {
		blocks, err := chain.ProposerBlocksAtLevel(level)
		if err != nil {
			return nil, err
		}
		entry := ProposerLevel{Level: level, Blocks: blocks}
		if leader, ok := builder.Leader(level); ok {
			entry.Leader = &leader
		}
		d.ProposerLevels = append(d.ProposerLevels, entry)
	}

	tips := chain.VoterTips()
	for chainNum, tip := range tips {
		length, err := chain.VoterLevel(tip)
		if err != nil {
			return nil, err
		}
		d.VoterChains = append(d.VoterChains, VoterChain{
			Chain:  uint16(chainNum),
			Tip:    tip,
			Length: length,
		})
	}

	d.UnreferredProposer = chain.UnreferredProposer()
	d.UnreferredTransaction = chain.UnreferredTransaction()
	return d, nil
}

// BlockStatusOf reports the role, level, and confirmation state of one
// block, or ok=false if the DAG does not know it.
func BlockStatusOf(chain *dag.BlockChain, builder *ledger.Builder, h ids.Hash) (BlockStatus, bool) {
	role, ok := chain.RoleOf(h)
	if !ok {
		return BlockStatus{}, false
	}
	s := BlockStatus{Hash: h, Role: role.String()}

	switch {
	case chain.ContainsProposer(h):
		if level, err := chain.ProposerLevel(h); err == nil {
			s.Level = level
		}
		s.Status = builder.StatusOf(h).String()
	case chain.ContainsVoter(h):
		if level, err := chain.VoterLevel(h); err == nil {
			s.Level = level
		}
		s.Status = blockstatus.Unconfirmed.String()
	default:
		s.Status = blockstatus.Unconfirmed.String()
	}
	return s, true
}
