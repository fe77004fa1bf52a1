// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package status

import (
	"context"

	"github.com/luxfi/prism/api/health"
	"github.com/luxfi/prism/dag"
	"github.com/luxfi/prism/ledger"
)

// Health reports liveness of the consensus core: the proposer tip, the
// ledger tip, and how far the ledger lags the proposer tree.
type Health struct {
	chain   *dag.BlockChain
	builder *ledger.Builder
}

var _ health.Checker = (*Health)(nil)

// NewHealth returns a health checker over the chain and ledger.
func NewHealth(chain *dag.BlockChain, builder *ledger.Builder) *Health {
	return &Health{chain: chain, builder: builder}
}

// HealthCheck implements health.Checker.
func (h *Health) HealthCheck(context.Context) (interface{}, error) {
	proposerTip := h.chain.BestProposerLevel()
	ledgerTip := h.builder.TipLevel()
	return map[string]interface{}{
		"proposerTipLevel": proposerTip,
		"ledgerTipLevel":   ledgerTip,
		"ledgerLag":        proposerTip - ledgerTip,
	}, nil
}
