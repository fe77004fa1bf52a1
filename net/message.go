// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package net defines the wire message set, the length-prefixed
// framing, and the worker pool that drives received blocks and
// transactions through validation into the DAG.
package net

import (
	"errors"
	"fmt"

	"github.com/luxfi/prism/block"
	"github.com/luxfi/prism/codec"
	"github.com/luxfi/prism/ids"
	"github.com/luxfi/prism/utils/wrappers"
)

// Kind tags a wire message.
type Kind uint8

const (
	// KindPing carries an echo payload.
	KindPing Kind = iota
	// KindPong answers a ping.
	KindPong
	// KindNewTransactionHashes announces transactions by hash.
	KindNewTransactionHashes
	// KindGetTransactions requests transactions by hash.
	KindGetTransactions
	// KindTransactions delivers transactions.
	KindTransactions
	// KindNewBlockHashes announces blocks by hash.
	KindNewBlockHashes
	// KindGetBlocks requests blocks by hash.
	KindGetBlocks
	// KindBlocks delivers blocks.
	KindBlocks
	// KindBootstrap requests every block after a sequence number.
	KindBootstrap
)

func (k Kind) String() string {
	switch k {
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindNewTransactionHashes:
		return "new_transaction_hashes"
	case KindGetTransactions:
		return "get_transactions"
	case KindTransactions:
		return "transactions"
	case KindNewBlockHashes:
		return "new_block_hashes"
	case KindGetBlocks:
		return "get_blocks"
	case KindBlocks:
		return "blocks"
	case KindBootstrap:
		return "bootstrap"
	default:
		return "unknown"
	}
}

// Priority returns the peer queue a message kind is sent on: control
// messages preempt block messages, which preempt transaction messages.
func (k Kind) Priority() Priority {
	switch k {
	case KindPing, KindPong, KindBootstrap:
		return PriorityControl
	case KindNewBlockHashes, KindGetBlocks, KindBlocks:
		return PriorityBlock
	default:
		return PriorityTransaction
	}
}

// ErrBadMessage is returned when decoding a malformed frame payload.
var ErrBadMessage = errors.New("net: bad message")

// Message is one decoded wire message. Exactly the fields matching
// Kind are populated.
type Message struct {
	Kind Kind

	Text         string               // ping/pong
	Hashes       []ids.Hash           // hash announcements and requests
	Transactions []*block.Transaction // transaction delivery
	Blocks       []*block.Block       // block delivery
	After        uint64               // bootstrap: blocks after this sequence
}

// Encode serializes m as (kind, payload).
func (m *Message) Encode() ([]byte, error) {
	p := wrappers.NewPacker(64)
	p.PackByte(byte(m.Kind))
	switch m.Kind {
	case KindPing, KindPong:
		p.PackBytesWithLength([]byte(m.Text))
	case KindNewTransactionHashes, KindGetTransactions, KindNewBlockHashes, KindGetBlocks:
		codec.PackHashes(p, m.Hashes)
	case KindTransactions:
		p.PackInt(uint32(len(m.Transactions)))
		for _, tx := range m.Transactions {
			p.PackBytesWithLength(codec.MarshalTransaction(tx))
		}
	case KindBlocks:
		p.PackInt(uint32(len(m.Blocks)))
		for _, b := range m.Blocks {
			body, err := codec.MarshalBlock(b)
			if err != nil {
				return nil, err
			}
			p.PackBytesWithLength(body)
		}
	case KindBootstrap:
		p.PackLong(m.After)
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrBadMessage, m.Kind)
	}
	return p.Bytes, p.Err
}

// Decode reverses Encode.
func Decode(data []byte) (*Message, error) {
	u := wrappers.NewUnpacker(data)
	m := &Message{Kind: Kind(u.UnpackByte())}
	switch m.Kind {
	case KindPing, KindPong:
		m.Text = string(u.UnpackBytesWithLength())
	case KindNewTransactionHashes, KindGetTransactions, KindNewBlockHashes, KindGetBlocks:
		m.Hashes = codec.UnpackHashes(u)
	case KindTransactions:
		n := int(u.UnpackInt())
		if u.Err != nil {
			return nil, u.Err
		}
		m.Transactions = make([]*block.Transaction, 0, n)
		for i := 0; i < n; i++ {
			tx, err := codec.UnmarshalTransaction(u.UnpackBytesWithLength())
			if err != nil {
				return nil, err
			}
			m.Transactions = append(m.Transactions, tx)
		}
	case KindBlocks:
		n := int(u.UnpackInt())
		if u.Err != nil {
			return nil, u.Err
		}
		m.Blocks = make([]*block.Block, 0, n)
		for i := 0; i < n; i++ {
			b, err := codec.UnmarshalBlock(u.UnpackBytesWithLength())
			if err != nil {
				return nil, err
			}
			m.Blocks = append(m.Blocks, b)
		}
	case KindBootstrap:
		m.After = u.UnpackLong()
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrBadMessage, m.Kind)
	}
	if u.Err != nil {
		return nil, u.Err
	}
	if !u.Done() {
		return nil, fmt.Errorf("%w: trailing bytes", ErrBadMessage)
	}
	return m, nil
}
