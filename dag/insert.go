// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dag

import (
	"fmt"

	"github.com/luxfi/prism/block"
	"github.com/luxfi/prism/ids"
)

// NewBlockInfo describes what InsertBlock did, for callers deciding
// whether to signal the ledger builder or the miner.
type NewBlockInfo struct {
	Hash  ids.Hash
	Role  block.Role
	Level uint64
	Chain uint16 // voter blocks only

	// Duplicate is true when the block was already in the DAG and the
	// insert was a no-op.
	Duplicate bool
	// VoterTipAdvanced is true when the block's chain main-chain tip
	// moved, either by simple extension or by fork reorganization. Any
	// advance may change leader elections.
	VoterTipAdvanced bool
	// ProposerTipAdvanced is true when the best proposer level moved.
	ProposerTipAdvanced bool
}

// InsertBlock links a validated block into the DAG. The block's parent,
// references, and (for voters) voter parent must already be present;
// the validator enforces this before insertion. Inserting the same
// block twice is a no-op.
func (c *BlockChain) InsertBlock(blk *block.Block) (NewBlockInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash := blk.Hash()
	info := NewBlockInfo{Hash: hash, Role: blk.Role}

	if ok, err := c.db.Has(hashKey(prefixParent, hash), nil); err != nil {
		return info, err
	} else if ok {
		info.Duplicate = true
		return info, nil
	}

	wb := newBatch(c.db)
	parent := blk.Header.Parent
	wb.put(hashKey(prefixParent, hash), parent.Bytes())

	var err error
	switch blk.Role {
	case block.RoleProposer:
		err = c.insertProposer(wb, hash, parent, blk.Proposer, &info)
	case block.RoleVoter:
		err = c.insertVoter(wb, hash, blk.Voter, &info)
	case block.RoleTransaction:
		c.unreferredTransaction.Add(hash)
	default:
		return info, fmt.Errorf("dag: invalid role %d", blk.Role)
	}
	if err != nil {
		return info, err
	}

	if err := wb.commit(); err != nil {
		return info, err
	}
	c.numBlocks.WithLabelValues(blk.Role.String()).Inc()
	return info, nil
}

func (c *BlockChain) insertProposer(wb *writeBatch, hash, parent ids.Hash, content *block.ProposerContent, info *NewBlockInfo) error {
	// The new block refers its parent and its listed refs; those leave
	// the unreferred sets, and the block itself becomes unreferred.
	for _, ref := range content.ProposerRefs {
		c.unreferredProposer.Remove(ref)
	}
	c.unreferredProposer.Remove(parent)
	c.unreferredProposer.Add(hash)
	for _, ref := range content.TransactionRefs {
		c.unreferredTransaction.Remove(ref)
	}

	// The parent is the first proposer ref when traversing.
	refs := make([]ids.Hash, 0, 1+len(content.ProposerRefs))
	refs = append(refs, parent)
	refs = append(refs, content.ProposerRefs...)
	wb.put(hashKey(prefixPropRefs, hash), encodeHashVec(refs))
	wb.put(hashKey(prefixTxRefs, hash), encodeHashVec(content.TransactionRefs))

	parentLevel, err := c.getU64(hashKey(prefixProposerLevel, parent))
	if err != nil {
		return fmt.Errorf("dag: proposer parent %s: %w", parent, err)
	}
	level := parentLevel + 1
	wb.put(hashKey(prefixProposerLevel, hash), encodeU64(level))
	if err := wb.mergeAppendHash(levelKey(prefixProposerLevelBlocks, level), hash); err != nil {
		return err
	}
	info.Level = level

	if level > c.proposerBest.level {
		c.proposerBest = tip{hash: hash, level: level}
		c.proposerBestLevel.Set(float64(level))
		info.ProposerTipAdvanced = true
	}
	return nil
}

func (c *BlockChain) insertVoter(wb *writeBatch, hash ids.Hash, content *block.VoterContent, info *NewBlockInfo) error {
	voterParent := content.VoterParent
	wb.put(hashKey(prefixVoterParent, hash), voterParent.Bytes())

	parentLevel, err := c.getU64(hashKey(prefixVoterLevel, voterParent))
	if err != nil {
		return fmt.Errorf("dag: voter parent %s: %w", voterParent, err)
	}
	chainBytes, err := c.db.Get(hashKey(prefixVoterChain, voterParent), nil)
	if err != nil {
		return fmt.Errorf("dag: voter parent chain %s: %w", voterParent, err)
	}
	level := parentLevel + 1
	chain := decodeU16(chainBytes)
	wb.put(hashKey(prefixVoterLevel, hash), encodeU64(level))
	wb.put(hashKey(prefixVoterChain, hash), encodeU16(chain))
	wb.put(hashKey(prefixVotes, hash), encodeHashVec(content.Votes))
	info.Level = level
	info.Chain = chain

	// Deepest voted proposer level: max over this block's votes, or the
	// voter parent's value when the block casts none.
	var deepest uint64
	if len(content.Votes) == 0 {
		deepest, err = c.getU64(hashKey(prefixVoterVotedLevel, voterParent))
		if err != nil {
			return err
		}
	} else {
		for _, vote := range content.Votes {
			votedLevel, err := c.getU64(hashKey(prefixProposerLevel, vote))
			if err != nil {
				return fmt.Errorf("dag: voted proposer %s: %w", vote, err)
			}
			if votedLevel > deepest {
				deepest = votedLevel
			}
		}
	}
	wb.put(hashKey(prefixVoterVotedLevel, hash), encodeU64(deepest))

	previousBest := c.voterBest[chain]
	if level > previousBest.level {
		c.voterBest[chain] = tip{hash: hash, level: level}
		info.VoterTipAdvanced = true
	}

	switch {
	case voterParent == previousBest.hash:
		// Simple extension of the main chain.
		for _, vote := range content.Votes {
			if err := c.mergeVoteLogged(wb, vote, true, chain, level); err != nil {
				return err
			}
		}
	case level > previousBest.level:
		// This block's branch overtook the main chain: walk both
		// branches back to their lowest common ancestor, retract the old
		// branch's votes, and install the new branch's.
		var added, removed []voteAt
		to, toLevel := voterParent, parentLevel
		from, fromLevel := previousBest.hash, previousBest.level
		for toLevel > fromLevel {
			votes, err := c.Votes(to)
			if err != nil {
				return err
			}
			for _, v := range votes {
				added = append(added, voteAt{v, toLevel})
			}
			if to, err = c.VoterParent(to); err != nil {
				return err
			}
			toLevel--
		}
		for to != from {
			votes, err := c.Votes(to)
			if err != nil {
				return err
			}
			for _, v := range votes {
				added = append(added, voteAt{v, toLevel})
			}
			if to, err = c.VoterParent(to); err != nil {
				return err
			}
			toLevel--

			votes, err = c.Votes(from)
			if err != nil {
				return err
			}
			for _, v := range votes {
				removed = append(removed, voteAt{v, fromLevel})
			}
			if from, err = c.VoterParent(from); err != nil {
				return err
			}
			fromLevel--
		}
		for _, r := range removed {
			if err := c.mergeVoteLogged(wb, r.vote, false, chain, r.level); err != nil {
				return err
			}
		}
		for _, a := range added {
			if err := c.mergeVoteLogged(wb, a.vote, true, chain, a.level); err != nil {
				return err
			}
		}
		for _, vote := range content.Votes {
			if err := c.mergeVoteLogged(wb, vote, true, chain, level); err != nil {
				return err
			}
		}
	default:
		// Side-chain extension; no main-chain vote changes.
	}
	return nil
}

// voteAt pairs a voted proposer hash with the voter level of the block
// casting the vote.
type voteAt struct {
	vote  ids.Hash
	level uint64
}

func (c *BlockChain) mergeVoteLogged(wb *writeBatch, proposer ids.Hash, add bool, chain uint16, level uint64) error {
	out, err := wb.mergeVote(hashKey(prefixProposerVotes, proposer), add, chain, level)
	if err != nil {
		return err
	}
	if out.removeMiss {
		c.log.Warn("vote remove found no entry for chain",
			"proposer", proposer.String(),
			"chain", chain,
			"level", level,
		)
	}
	if out.levelMismatch {
		c.log.Debug("vote remove matched chain at different level",
			"proposer", proposer.String(),
			"chain", chain,
			"level", level,
		)
	}
	return nil
}
