// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/luxfi/prism/ids"
)

const lcbEpsilon = 1e-7

// electLeader computes the leader of a proposer level from the current
// main-chain votes, using the confirmation policy from the Prism paper
// (arXiv:1810.08092): a lower confidence bound on each candidate's
// final vote count under an adversary holding ratio ρ of the mining
// power, with a Gaussian approximation at the given quantile.
// bestVoterLevels is the snapshot of per-chain tip levels the vote
// depths are measured against.
func (b *Builder) electLeader(level uint64, quantile float64, bestVoterLevels []uint64) (ids.Hash, bool, error) {
	proposerBlocks, err := b.chain.ProposerBlocksAtLevel(level)
	if err != nil {
		return ids.Hash{}, false, err
	}
	if len(proposerBlocks) == 0 {
		return ids.Hash{}, false, nil
	}

	// Collect the depth of each main-chain vote on each candidate, and
	// the number of voter blocks mined after any vote was cast: the
	// estimator of the honest mining rate.
	votesDepth := make(map[ids.Hash][]uint64, len(proposerBlocks))
	var totalVoteCount uint64
	var totalVoteBlocks uint64
	for _, p := range proposerBlocks {
		votes, err := b.chain.ProposerVotes(p)
		if err != nil {
			return ids.Hash{}, false, err
		}
		for _, v := range votes {
			if v.Level > bestVoterLevels[v.Chain] {
				// Cast by a voter block newer than the tip snapshot;
				// it becomes visible on the next advance.
				continue
			}
			depth := bestVoterLevels[v.Chain] - v.Level + 1
			votesDepth[p] = append(votesDepth[p], depth)
			totalVoteCount++
			totalVoteBlocks += depth
		}
	}

	numChains := uint64(b.params.NumVoterChains)
	// No point going further before 3/5 of the chains have voted.
	if totalVoteCount <= numChains*3/5 {
		return ids.Hash{}, false, nil
	}

	adversary := b.params.AdversaryRatio
	var poisson distuv.Poisson
	if adversary > 0 {
		avgVoteBlocks := float64(totalVoteBlocks) / float64(totalVoteCount)
		poisson = distuv.Poisson{Lambda: avgVoteBlocks / (1 - adversary) * adversary}
	}

	votesLCB := make(map[ids.Hash]float64, len(votesDepth))
	var totalLCB, maxLCB float64
	var leader ids.Hash
	var haveLeader bool

	for _, p := range proposerBlocks {
		depths, voted := votesDepth[p]
		if !voted {
			continue
		}
		var lcb float64
		if adversary == 0 {
			// No adversary: every vote survives.
			lcb = float64(len(depths))
		} else {
			var mean, variance float64
			for _, depth := range depths {
				// Probability that the adversary removes this vote:
				// either it has already mined past the vote's depth, or
				// it has k blocks and overtakes the remaining depth-k.
				d := float64(depth)
				removed := 1 - poisson.CDF(d+1)
				for k := uint64(0); k < depth; k++ {
					mined := poisson.Prob(float64(k))
					overtake := math.Pow(adversary/(1-adversary), float64(depth-k+1))
					removed += mined * overtake
				}
				mean += 1 - removed
				variance += removed * (1 - removed)
			}
			if v := mean - math.Sqrt(variance)*quantile; v > 0 {
				lcb = v
			}
		}
		votesLCB[p] = lcb
		totalLCB += lcb

		if maxLCB < lcb {
			maxLCB = lcb
			leader = p
			haveLeader = true
		} else if haveLeader && math.Abs(maxLCB-lcb) < lcbEpsilon && p.Less(leader) {
			// Ties break toward the lower hash.
			leader = p
		}
	}
	if !haveLeader {
		return ids.Hash{}, false, nil
	}

	// The votes not yet counted could still land on a private block or
	// any other candidate; the winner must beat every such outcome
	// strictly.
	remaining := float64(numChains) - totalLCB
	if maxLCB <= remaining {
		return ids.Hash{}, false, nil
	}
	for _, p := range proposerBlocks {
		lcb, voted := votesLCB[p]
		if !voted || p == leader {
			continue
		}
		if maxLCB < lcb+remaining || math.Abs(maxLCB-(lcb+remaining)) < lcbEpsilon {
			return ids.Hash{}, false, nil
		}
	}
	return leader, true, nil
}
