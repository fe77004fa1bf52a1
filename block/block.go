// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package block defines the typed block model shared by every role in
// the DAG: a common header, a role-tagged content variant, and the
// Merkle sortition proof tying the variant to the header's content root.
package block

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/luxfi/prism/crypto"
	"github.com/luxfi/prism/crypto/merkle"
	"github.com/luxfi/prism/ids"
	"github.com/luxfi/prism/utils/math"
)

// Role identifies which of the three block roles a block fills.
type Role uint8

const (
	// RoleProposer blocks reference transaction and proposer blocks.
	RoleProposer Role = iota
	// RoleVoter blocks carry votes for proposer blocks on one chain.
	RoleVoter
	// RoleTransaction blocks carry a list of transactions.
	RoleTransaction
)

func (r Role) String() string {
	switch r {
	case RoleProposer:
		return "proposer"
	case RoleVoter:
		return "voter"
	case RoleTransaction:
		return "transaction"
	default:
		return "unknown"
	}
}

// Valid reports whether r is one of the three defined roles.
func (r Role) Valid() bool {
	switch r {
	case RoleProposer, RoleVoter, RoleTransaction:
		return true
	default:
		return false
	}
}

// Fixed content-slot indices within the per-block Merkle commitment.
// FirstVoterIndex..FirstVoterIndex+N-1 are reserved for the N voter
// chains; ProposerIndex and TransactionIndex are fixed regardless of N.
const (
	ProposerIndex    = 0
	TransactionIndex = 1
	FirstVoterIndex  = 2
)

// Header is the common envelope carried by every block regardless of
// role.
type Header struct {
	Parent      ids.Hash // hash of a proposer block
	Timestamp   int64    // unix nanoseconds
	Nonce       uint32
	ContentRoot ids.Hash
	ExtraData   [32]byte // miner tag, opaque to consensus
	Difficulty  ids.Hash // 32-byte big-endian target
}

// Bytes returns the canonical serialization of the header, used as the
// PoW/sortition hash preimage. Field order is fixed.
func (h Header) Bytes() []byte {
	buf := make([]byte, 0, 32+8+4+32+32+32)
	buf = append(buf, h.Parent[:]...)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(h.Timestamp))
	buf = append(buf, ts[:]...)
	var nonce [4]byte
	binary.BigEndian.PutUint32(nonce[:], h.Nonce)
	buf = append(buf, nonce[:]...)
	buf = append(buf, h.ContentRoot[:]...)
	buf = append(buf, h.ExtraData[:]...)
	buf = append(buf, h.Difficulty[:]...)
	return buf
}

// Hash returns the PoW/identity hash of the header.
func (h Header) Hash() ids.Hash {
	return crypto.Hash256(h.Bytes())
}

// Input is one coin consumed by a transaction.
type Input struct {
	Coin  ids.CoinID
	Value uint64
	Owner ids.Address
}

// Output is one coin produced by a transaction.
type Output struct {
	Value     uint64
	Recipient ids.Address
}

// Authorization is a signature over (inputs ∥ outputs) by the owner of
// one or more of the transaction's inputs.
type Authorization struct {
	PublicKey []byte // ed25519.PublicKey
	Signature []byte
}

// Transaction is the UTXO-style transfer carried inside a transaction
// block.
type Transaction struct {
	Inputs         []Input
	Outputs        []Output
	Authorizations []Authorization
}

// SigningMessage returns the bytes authorizations sign: inputs ∥ outputs
// in declaration order.
func (tx *Transaction) SigningMessage() []byte {
	buf := make([]byte, 0, len(tx.Inputs)*44+len(tx.Outputs)*40)
	for _, in := range tx.Inputs {
		buf = append(buf, in.Coin.TxHash[:]...)
		var idx [4]byte
		binary.BigEndian.PutUint32(idx[:], in.Coin.Index)
		buf = append(buf, idx[:]...)
		var val [8]byte
		binary.BigEndian.PutUint64(val[:], in.Value)
		buf = append(buf, val[:]...)
		buf = append(buf, in.Owner[:]...)
	}
	for _, out := range tx.Outputs {
		var val [8]byte
		binary.BigEndian.PutUint64(val[:], out.Value)
		buf = append(buf, val[:]...)
		buf = append(buf, out.Recipient[:]...)
	}
	return buf
}

// Hash returns the transaction's content hash: hash(inputs ∥ outputs).
// Authorizations are excluded so signing cannot change the hash.
func (tx *Transaction) Hash() ids.Hash {
	return crypto.Hash256(tx.SigningMessage())
}

// TotalInput returns the sum of input values. ok is false on overflow.
func (tx *Transaction) TotalInput() (uint64, bool) {
	var sum uint64
	for _, in := range tx.Inputs {
		next, err := math.Add64(sum, in.Value)
		if err != nil {
			return 0, false
		}
		sum = next
	}
	return sum, true
}

// TotalOutput returns the sum of output values. ok is false on overflow.
func (tx *Transaction) TotalOutput() (uint64, bool) {
	var sum uint64
	for _, out := range tx.Outputs {
		next, err := math.Add64(sum, out.Value)
		if err != nil {
			return 0, false
		}
		sum = next
	}
	return sum, true
}

// TransactionContent is the content variant for a RoleTransaction block.
type TransactionContent struct {
	Transactions []Transaction
}

// ProposerContent is the content variant for a RoleProposer block.
type ProposerContent struct {
	TransactionRefs []ids.Hash // referenced transaction-block hashes
	ProposerRefs    []ids.Hash // referenced proposer-block hashes (excludes parent)
}

// VoterContent is the content variant for a RoleVoter block.
type VoterContent struct {
	Chain       uint16
	VoterParent ids.Hash
	Votes       []ids.Hash // proposer blocks voted for, ascending level
}

// ErrWrongRole is returned when a content accessor is called against a
// block of the wrong role.
var ErrWrongRole = errors.New("block: content accessed for wrong role")

// Block is a single DAG node: a header plus exactly one content variant,
// authenticated against Header.ContentRoot by SortitionProof.
type Block struct {
	Header         Header
	Role           Role
	Proposer       *ProposerContent
	Voter          *VoterContent
	Transaction    *TransactionContent
	SortitionProof []ids.Hash
}

// ContentHash returns the hash of this block's content variant, as
// placed at its role's fixed Merkle slot.
func (b *Block) ContentHash() (ids.Hash, error) {
	bytes, err := b.ContentBytes()
	if err != nil {
		return ids.Hash{}, err
	}
	return merkle.Leaf(bytes), nil
}

// ContentBytes returns the canonical serialization of this block's
// content variant.
func (b *Block) ContentBytes() ([]byte, error) {
	switch b.Role {
	case RoleProposer:
		if b.Proposer == nil {
			return nil, fmt.Errorf("%w: proposer", ErrWrongRole)
		}
		return encodeProposerContent(b.Proposer), nil
	case RoleVoter:
		if b.Voter == nil {
			return nil, fmt.Errorf("%w: voter", ErrWrongRole)
		}
		return encodeVoterContent(b.Voter), nil
	case RoleTransaction:
		if b.Transaction == nil {
			return nil, fmt.Errorf("%w: transaction", ErrWrongRole)
		}
		return encodeTransactionContent(b.Transaction), nil
	default:
		return nil, fmt.Errorf("block: invalid role %d", b.Role)
	}
}

// Slot returns the fixed Merkle leaf index for this block's role, given
// N voter chains.
func (b *Block) Slot(n int) int {
	switch b.Role {
	case RoleProposer:
		return ProposerIndex
	case RoleTransaction:
		return TransactionIndex
	case RoleVoter:
		return FirstVoterIndex + int(b.Voter.Chain)
	default:
		return -1
	}
}

// Hash returns the block's identity hash: the header hash. Two blocks
// with identical headers but different content/proof are indistinct,
// consistent with content_root binding the content into the header.
func (b *Block) Hash() ids.Hash {
	return b.Header.Hash()
}

func encodeProposerContent(p *ProposerContent) []byte {
	buf := make([]byte, 0, 4+len(p.TransactionRefs)*32+4+len(p.ProposerRefs)*32)
	buf = appendU32(buf, uint32(len(p.TransactionRefs)))
	for _, h := range p.TransactionRefs {
		buf = append(buf, h[:]...)
	}
	buf = appendU32(buf, uint32(len(p.ProposerRefs)))
	for _, h := range p.ProposerRefs {
		buf = append(buf, h[:]...)
	}
	return buf
}

func encodeVoterContent(v *VoterContent) []byte {
	buf := make([]byte, 0, 2+32+4+len(v.Votes)*32)
	var chain [2]byte
	binary.BigEndian.PutUint16(chain[:], v.Chain)
	buf = append(buf, chain[:]...)
	buf = append(buf, v.VoterParent[:]...)
	buf = appendU32(buf, uint32(len(v.Votes)))
	for _, h := range v.Votes {
		buf = append(buf, h[:]...)
	}
	return buf
}

func encodeTransactionContent(t *TransactionContent) []byte {
	buf := make([]byte, 0, 4)
	buf = appendU32(buf, uint32(len(t.Transactions)))
	for _, tx := range t.Transactions {
		buf = appendU32(buf, uint32(len(tx.Inputs)))
		for _, in := range tx.Inputs {
			buf = append(buf, in.Coin.TxHash[:]...)
			buf = appendU32(buf, in.Coin.Index)
			buf = appendU64(buf, in.Value)
			buf = append(buf, in.Owner[:]...)
		}
		buf = appendU32(buf, uint32(len(tx.Outputs)))
		for _, out := range tx.Outputs {
			buf = appendU64(buf, out.Value)
			buf = append(buf, out.Recipient[:]...)
		}
		buf = appendU32(buf, uint32(len(tx.Authorizations)))
		for _, a := range tx.Authorizations {
			buf = appendU32(buf, uint32(len(a.PublicKey)))
			buf = append(buf, a.PublicKey...)
			buf = appendU32(buf, uint32(len(a.Signature)))
			buf = append(buf, a.Signature...)
		}
	}
	return buf
}

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}
