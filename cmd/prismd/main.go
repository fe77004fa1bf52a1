// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// prismd assembles the consensus core into the single canonical
// pipeline: network workers -> validator -> orphan buffer or DAG ->
// ledger builder -> UTXO -> wallet, with the miner feeding blocks back
// through the same path. Peer transport, RPC, and the visualizer are
// external collaborators and are not wired here.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/luxfi/log"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/blake2b"

	"github.com/luxfi/prism/api/metrics"
	"github.com/luxfi/prism/block"
	"github.com/luxfi/prism/blockstore"
	"github.com/luxfi/prism/config"
	"github.com/luxfi/prism/dag"
	"github.com/luxfi/prism/ledger"
	"github.com/luxfi/prism/mempool"
	"github.com/luxfi/prism/miner"
	"github.com/luxfi/prism/net"
	"github.com/luxfi/prism/orphan"
	"github.com/luxfi/prism/pipeline"
	"github.com/luxfi/prism/utxo"
	"github.com/luxfi/prism/validator"
	"github.com/luxfi/prism/wallet"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		dataDir string
		network string
		mine    bool
	)

	cmd := &cobra.Command{
		Use:   "prismd",
		Short: "Prism consensus core node",
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := paramsFor(network)
			if err != nil {
				return err
			}
			return run(dataDir, params, mine)
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "prism-data", "directory for on-disk state")
	cmd.Flags().StringVar(&network, "network", "local", "parameter preset: mainnet, testnet, or local")
	cmd.Flags().BoolVar(&mine, "mine", false, "run the miner")
	return cmd
}

func paramsFor(network string) (config.Parameters, error) {
	switch network {
	case "mainnet":
		return config.Mainnet(), nil
	case "testnet":
		return config.Testnet(), nil
	case "local":
		return config.Local(), nil
	default:
		return config.Parameters{}, fmt.Errorf("unknown network preset %q", network)
	}
}

// noopBroadcaster stands in for the external transport layer.
type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(*net.Message) {}

func run(dataDir string, params config.Parameters, mine bool) error {
	logger := log.NewNoOpLogger()
	registry := metrics.NewRegistry()

	store, err := blockstore.Open(filepath.Join(dataDir, "blocks"))
	if err != nil {
		return err
	}
	defer store.Close()

	chain, err := dag.New(filepath.Join(dataDir, "chain"), params, logger, registry)
	if err != nil {
		return err
	}
	defer chain.Close()

	utxodb, err := utxo.Open(filepath.Join(dataDir, "utxo"))
	if err != nil {
		return err
	}
	defer utxodb.Close()

	w, err := wallet.Open(filepath.Join(dataDir, "wallet"))
	if err != nil {
		return err
	}
	defer w.Close()

	pool, err := mempool.New(params.MempoolCapacity, logger, registry)
	if err != nil {
		return err
	}
	builder, err := ledger.NewBuilder(chain, params, logger, registry)
	if err != nil {
		return err
	}

	manager := pipeline.New(store, builder, utxodb, w, pool, params.LedgerBuffer, logger)
	manager.Start()
	defer manager.Stop()

	v := validator.New(chain, store, params)
	buffer := orphan.New()
	msgs := make(chan net.Inbound, params.LedgerBuffer)

	blockSink := make(chan *block.Block, 16)
	var m *miner.Miner
	if mine {
		host, _ := os.Hostname()
		minerID := blake2b.Sum256([]byte(host))
		m, err = miner.New(chain, store, pool, params, minerID, blockSink, logger, registry)
		if err != nil {
			return err
		}
	}

	onInsert := func(info dag.NewBlockInfo) {
		if info.Duplicate {
			return
		}
		if info.Role == block.RoleProposer {
			builder.NoteProposer(info.Hash)
		}
		if info.VoterTipAdvanced {
			manager.NotifyTipAdvance()
		}
		if m != nil {
			m.ContextUpdate()
		}
	}

	worker := net.NewWorker(chain, store, pool, v, buffer, noopBroadcaster{}, msgs, onInsert, logger)
	worker.Start(params.NetworkWorkers)
	defer worker.Stop()

	if m != nil {
		m.Start()
		defer m.Stop()

		go func() {
			for b := range blockSink {
				worker.SubmitBlocks([]*block.Block{b})
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	return nil
}
