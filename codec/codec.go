// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package codec implements the versioned binary serialization of blocks
// and transactions: a fixed-layout header, a tagged content variant, and
// the sortition proof, all big-endian.
package codec

import (
	"errors"
	"fmt"

	"github.com/luxfi/prism/block"
	"github.com/luxfi/prism/ids"
	"github.com/luxfi/prism/utils/wrappers"
)

// Version is the codec version prepended to every serialized payload.
type Version uint16

// CurrentVersion is the codec version this package writes.
const CurrentVersion Version = 0

var (
	// ErrUnsupportedVersion is returned when decoding a payload written
	// by an unknown codec version.
	ErrUnsupportedVersion = errors.New("codec: unsupported version")
	// ErrTrailingBytes is returned when a payload has bytes left over
	// after decoding.
	ErrTrailingBytes = errors.New("codec: trailing bytes")
)

const headerLen = ids.HashLen + 8 + 4 + ids.HashLen + 32 + ids.HashLen

// MarshalBlock serializes b as (version, header, role tag, content,
// sortition proof).
func MarshalBlock(b *block.Block) ([]byte, error) {
	content, err := b.ContentBytes()
	if err != nil {
		return nil, err
	}
	p := wrappers.NewPacker(2 + headerLen + 1 + 4 + len(content) + 4 + len(b.SortitionProof)*ids.HashLen)
	p.PackShort(uint16(CurrentVersion))
	packHeader(p, b.Header)
	p.PackByte(byte(b.Role))
	p.PackBytesWithLength(content)
	p.PackInt(uint32(len(b.SortitionProof)))
	for _, h := range b.SortitionProof {
		p.PackFixedBytes(h[:])
	}
	return p.Bytes, p.Err
}

// UnmarshalBlock reverses MarshalBlock.
func UnmarshalBlock(data []byte) (*block.Block, error) {
	u := wrappers.NewUnpacker(data)
	if v := Version(u.UnpackShort()); v != CurrentVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
	b := &block.Block{}
	b.Header = unpackHeader(u)
	b.Role = block.Role(u.UnpackByte())
	content := u.UnpackBytesWithLength()
	proofLen := int(u.UnpackInt())
	if u.Err != nil {
		return nil, u.Err
	}
	b.SortitionProof = make([]ids.Hash, proofLen)
	for i := range b.SortitionProof {
		b.SortitionProof[i] = unpackHash(u)
	}
	if u.Err != nil {
		return nil, u.Err
	}
	if !u.Done() {
		return nil, ErrTrailingBytes
	}

	cu := wrappers.NewUnpacker(content)
	switch b.Role {
	case block.RoleProposer:
		b.Proposer = unpackProposerContent(cu)
	case block.RoleVoter:
		b.Voter = unpackVoterContent(cu)
	case block.RoleTransaction:
		b.Transaction = unpackTransactionContent(cu)
	default:
		return nil, fmt.Errorf("codec: invalid role tag %d", b.Role)
	}
	if cu.Err != nil {
		return nil, cu.Err
	}
	if !cu.Done() {
		return nil, ErrTrailingBytes
	}
	return b, nil
}

// MarshalTransaction serializes a single transaction, including its
// authorizations.
func MarshalTransaction(tx *block.Transaction) []byte {
	p := wrappers.NewPacker(64)
	packTransaction(p, tx)
	return p.Bytes
}

// UnmarshalTransaction reverses MarshalTransaction.
func UnmarshalTransaction(data []byte) (*block.Transaction, error) {
	u := wrappers.NewUnpacker(data)
	tx := unpackTransaction(u)
	if u.Err != nil {
		return nil, u.Err
	}
	if !u.Done() {
		return nil, ErrTrailingBytes
	}
	return &tx, nil
}

func packHeader(p *wrappers.Packer, h block.Header) {
	p.PackFixedBytes(h.Parent[:])
	p.PackLong(uint64(h.Timestamp))
	p.PackInt(h.Nonce)
	p.PackFixedBytes(h.ContentRoot[:])
	p.PackFixedBytes(h.ExtraData[:])
	p.PackFixedBytes(h.Difficulty[:])
}

func unpackHeader(u *wrappers.Unpacker) block.Header {
	var h block.Header
	h.Parent = unpackHash(u)
	h.Timestamp = int64(u.UnpackLong())
	h.Nonce = u.UnpackInt()
	h.ContentRoot = unpackHash(u)
	copy(h.ExtraData[:], u.UnpackFixedBytes(32))
	h.Difficulty = unpackHash(u)
	return h
}

func unpackHash(u *wrappers.Unpacker) ids.Hash {
	var h ids.Hash
	copy(h[:], u.UnpackFixedBytes(ids.HashLen))
	return h
}

// PackHashes appends a length-prefixed hash list to p.
func PackHashes(p *wrappers.Packer, hs []ids.Hash) {
	p.PackInt(uint32(len(hs)))
	for _, h := range hs {
		p.PackFixedBytes(h[:])
	}
}

// UnpackHashes reverses PackHashes.
func UnpackHashes(u *wrappers.Unpacker) []ids.Hash {
	n := int(u.UnpackInt())
	if u.Err != nil {
		return nil
	}
	hs := make([]ids.Hash, 0, n)
	for i := 0; i < n; i++ {
		hs = append(hs, unpackHash(u))
		if u.Err != nil {
			return nil
		}
	}
	return hs
}

func unpackProposerContent(u *wrappers.Unpacker) *block.ProposerContent {
	return &block.ProposerContent{
		TransactionRefs: UnpackHashes(u),
		ProposerRefs:    UnpackHashes(u),
	}
}

func unpackVoterContent(u *wrappers.Unpacker) *block.VoterContent {
	v := &block.VoterContent{}
	v.Chain = u.UnpackShort()
	v.VoterParent = unpackHash(u)
	v.Votes = UnpackHashes(u)
	return v
}

func unpackTransactionContent(u *wrappers.Unpacker) *block.TransactionContent {
	n := int(u.UnpackInt())
	if u.Err != nil {
		return nil
	}
	c := &block.TransactionContent{Transactions: make([]block.Transaction, 0, n)}
	for i := 0; i < n; i++ {
		c.Transactions = append(c.Transactions, unpackTransaction(u))
		if u.Err != nil {
			return nil
		}
	}
	return c
}

func packTransaction(p *wrappers.Packer, tx *block.Transaction) {
	p.PackInt(uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		p.PackFixedBytes(in.Coin.TxHash[:])
		p.PackInt(in.Coin.Index)
		p.PackLong(in.Value)
		p.PackFixedBytes(in.Owner[:])
	}
	p.PackInt(uint32(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		p.PackLong(out.Value)
		p.PackFixedBytes(out.Recipient[:])
	}
	p.PackInt(uint32(len(tx.Authorizations)))
	for _, a := range tx.Authorizations {
		p.PackBytesWithLength(a.PublicKey)
		p.PackBytesWithLength(a.Signature)
	}
}

func unpackTransaction(u *wrappers.Unpacker) block.Transaction {
	var tx block.Transaction
	nIn := int(u.UnpackInt())
	if u.Err != nil {
		return tx
	}
	tx.Inputs = make([]block.Input, 0, nIn)
	for i := 0; i < nIn; i++ {
		var in block.Input
		in.Coin.TxHash = unpackHash(u)
		in.Coin.Index = u.UnpackInt()
		in.Value = u.UnpackLong()
		in.Owner = unpackHash(u)
		if u.Err != nil {
			return tx
		}
		tx.Inputs = append(tx.Inputs, in)
	}
	nOut := int(u.UnpackInt())
	if u.Err != nil {
		return tx
	}
	tx.Outputs = make([]block.Output, 0, nOut)
	for i := 0; i < nOut; i++ {
		var out block.Output
		out.Value = u.UnpackLong()
		out.Recipient = unpackHash(u)
		if u.Err != nil {
			return tx
		}
		tx.Outputs = append(tx.Outputs, out)
	}
	nAuth := int(u.UnpackInt())
	if u.Err != nil {
		return tx
	}
	tx.Authorizations = make([]block.Authorization, 0, nAuth)
	for i := 0; i < nAuth; i++ {
		var a block.Authorization
		a.PublicKey = u.UnpackBytesWithLength()
		a.Signature = u.UnpackBytesWithLength()
		if u.Err != nil {
			return tx
		}
		tx.Authorizations = append(tx.Authorizations, a)
	}
	return tx
}
