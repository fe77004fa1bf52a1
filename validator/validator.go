// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package validator runs the structural, cryptographic, and referential
// checks on a candidate block before it may enter the DAG. Checks
// short-circuit on the first failure; missing dependencies are reported
// so the caller can buffer the block and request them.
package validator

import (
	"crypto/ed25519"
	"math/big"

	"github.com/luxfi/prism/block"
	"github.com/luxfi/prism/blockstore"
	"github.com/luxfi/prism/config"
	"github.com/luxfi/prism/crypto"
	"github.com/luxfi/prism/crypto/merkle"
	"github.com/luxfi/prism/dag"
	"github.com/luxfi/prism/ids"
)

// Outcome is the closed set of validation results.
type Outcome uint8

const (
	// Pass means every check succeeded.
	Pass Outcome = iota
	// WrongContentRoot means the content variant could not be serialized
	// for authentication against the header's content root.
	WrongContentRoot
	// WrongProof means the sortition proof failed Merkle verification.
	WrongProof
	// WrongHeader means the header hash landed in a different role's
	// difficulty band than the content claims, or above the target.
	WrongHeader
	// WrongCoinOwner means an input's owner is not the hash of the
	// authorization public key covering it.
	WrongCoinOwner
	// MissingParent means the proposer parent (or voter parent) is not
	// yet known.
	MissingParent
	// MissingReferences means one or more referenced blocks are not yet
	// known.
	MissingReferences
	// WrongProposerRef means a referenced proposer block is at a level
	// beyond the parent's.
	WrongProposerRef
	// WrongChainNumber means a voter block's chain number disagrees
	// with its voter parent.
	WrongChainNumber
	// WrongVoteLevel means a voter block's votes do not form the exact
	// contiguous level sequence required.
	WrongVoteLevel
	// EmptyTransaction means a transaction has no inputs or no outputs.
	EmptyTransaction
	// ZeroValue means a transaction carries a zero input or output
	// value.
	ZeroValue
	// InsufficientInput means a transaction's outputs exceed its
	// inputs.
	InsufficientInput
	// WrongSignature means the authorization set is malformed or a
	// signature failed batch verification.
	WrongSignature
)

func (o Outcome) String() string {
	switch o {
	case Pass:
		return "validation passed"
	case WrongContentRoot:
		return "content hash does not match header root"
	case WrongProof:
		return "sortition proof failed verification"
	case WrongHeader:
		return "header hash outside role difficulty band"
	case WrongCoinOwner:
		return "input owner does not match authorization key"
	case MissingParent:
		return "parent not in system"
	case MissingReferences:
		return "referred blocks not in system"
	case WrongProposerRef:
		return "referred proposer level beyond parent"
	case WrongChainNumber:
		return "chain number mismatch"
	case WrongVoteLevel:
		return "incorrect vote levels"
	case EmptyTransaction:
		return "empty transaction input or output"
	case ZeroValue:
		return "zero input or output value"
	case InsufficientInput:
		return "insufficient input"
	case WrongSignature:
		return "signature mismatch"
	default:
		return "unknown outcome"
	}
}

// Result carries the outcome plus, for availability failures, the
// hashes the caller must fetch before retrying.
type Result struct {
	Outcome Outcome
	// Missing lists the absent dependencies for MissingParent and
	// MissingReferences.
	Missing []ids.Hash
}

// Ok reports whether the block passed every check.
func (r Result) Ok() bool {
	return r.Outcome == Pass
}

func pass() Result {
	return Result{Outcome: Pass}
}

func fail(o Outcome) Result {
	return Result{Outcome: o}
}

// Validator checks candidate blocks against the chain, the block
// store, and the consensus parameters.
type Validator struct {
	chain  *dag.BlockChain
	store  blockstore.Store
	params config.Parameters
}

// New returns a validator over the given chain and store.
func New(chain *dag.BlockChain, store blockstore.Store, params config.Parameters) *Validator {
	return &Validator{chain: chain, store: store, params: params}
}

// Validate runs every check on b in order: sortition proof, difficulty
// band, data availability, content semantics, signatures.
func (v *Validator) Validate(b *block.Block) Result {
	if r := v.checkSortition(b); !r.Ok() {
		return r
	}
	if r := v.checkAvailability(b); !r.Ok() {
		return r
	}
	if r := v.checkContentSemantics(b); !r.Ok() {
		return r
	}
	if b.Role == block.RoleTransaction {
		if r := checkSignatureBatch(b.Transaction.Transactions); !r.Ok() {
			return r
		}
	}
	return pass()
}

// checkSortition verifies that the content variant authenticates
// against the header's content root at the role's fixed slot, and that
// the header hash falls inside that role's difficulty band.
func (v *Validator) checkSortition(b *block.Block) Result {
	if !b.Role.Valid() {
		return fail(WrongHeader)
	}
	content, err := b.ContentBytes()
	if err != nil {
		return fail(WrongContentRoot)
	}
	slot := b.Slot(int(v.params.NumVoterChains))
	if slot < 0 || slot >= v.params.ContentSlots() {
		return fail(WrongChainNumber)
	}
	if !merkle.Verify(b.Header.ContentRoot, content, b.SortitionProof, slot, v.params.ContentSlots()) {
		return fail(WrongProof)
	}

	role, chain, ok := Sortition(b.Hash(), b.Header.Difficulty, v.params)
	if !ok || role != b.Role {
		return fail(WrongHeader)
	}
	if role == block.RoleVoter && chain != b.Voter.Chain {
		return fail(WrongHeader)
	}
	return pass()
}

// Sortition places a header hash inside the role bands carved from the
// difficulty target: [0, T·Rp/Rt) is proposer, [T·Rp/Rt, T·(Rp+Rtx)/Rt)
// is transaction, [T·(Rp+Rtx)/Rt, T) is voter with the chain given by
// the hash's offset above T·(Rp+Rtx)/Rt modulo N. Hashes at or above T
// fail.
func Sortition(hash, difficulty ids.Hash, params config.Parameters) (block.Role, uint16, bool) {
	h := new(big.Int).SetBytes(hash[:])
	target := new(big.Int).SetBytes(difficulty[:])
	if h.Cmp(target) >= 0 {
		return 0, 0, false
	}

	total := new(big.Int).SetUint64(params.TotalRate())
	unit := new(big.Int).Div(target, total)
	proposerBound := new(big.Int).Mul(unit, new(big.Int).SetUint64(uint64(params.ProposerRate)))
	if h.Cmp(proposerBound) < 0 {
		return block.RoleProposer, 0, true
	}
	txBound := new(big.Int).Mul(unit, new(big.Int).SetUint64(uint64(params.ProposerRate)+uint64(params.TransactionRate)))
	if h.Cmp(txBound) < 0 {
		return block.RoleTransaction, 0, true
	}
	offset := new(big.Int).Sub(h, txBound)
	chain := new(big.Int).Mod(offset, new(big.Int).SetUint64(uint64(params.NumVoterChains)))
	return block.RoleVoter, uint16(chain.Uint64()), true
}

// checkAvailability verifies that the parent and every referenced block
// are present, reporting the missing hashes otherwise.
func (v *Validator) checkAvailability(b *block.Block) Result {
	var missing []ids.Hash

	switch b.Role {
	case block.RoleProposer:
		if !v.chain.ContainsProposer(b.Header.Parent) {
			return Result{Outcome: MissingParent, Missing: []ids.Hash{b.Header.Parent}}
		}
		for _, ref := range b.Proposer.ProposerRefs {
			if !v.chain.ContainsProposer(ref) {
				missing = append(missing, ref)
			}
		}
		for _, ref := range b.Proposer.TransactionRefs {
			if !v.store.Contains(ref) {
				missing = append(missing, ref)
			}
		}
	case block.RoleVoter:
		if !v.chain.ContainsProposer(b.Header.Parent) {
			return Result{Outcome: MissingParent, Missing: []ids.Hash{b.Header.Parent}}
		}
		if !v.chain.ContainsVoter(b.Voter.VoterParent) {
			return Result{Outcome: MissingParent, Missing: []ids.Hash{b.Voter.VoterParent}}
		}
		for _, vote := range b.Voter.Votes {
			if !v.chain.ContainsProposer(vote) {
				missing = append(missing, vote)
			}
		}
	case block.RoleTransaction:
		if !v.chain.ContainsProposer(b.Header.Parent) {
			return Result{Outcome: MissingParent, Missing: []ids.Hash{b.Header.Parent}}
		}
	}

	if len(missing) > 0 {
		return Result{Outcome: MissingReferences, Missing: missing}
	}
	return pass()
}

func (v *Validator) checkContentSemantics(b *block.Block) Result {
	switch b.Role {
	case block.RoleProposer:
		return v.checkProposerContent(b)
	case block.RoleVoter:
		return v.checkVoterContent(b)
	case block.RoleTransaction:
		return checkTransactions(b.Transaction.Transactions)
	}
	return pass()
}

// checkProposerContent rejects references to proposer blocks deeper
// than the parent: a proposer block may not refer into its own future.
func (v *Validator) checkProposerContent(b *block.Block) Result {
	parentLevel, err := v.chain.ProposerLevel(b.Header.Parent)
	if err != nil {
		return Result{Outcome: MissingParent, Missing: []ids.Hash{b.Header.Parent}}
	}
	for _, ref := range b.Proposer.ProposerRefs {
		refLevel, err := v.chain.ProposerLevel(ref)
		if err != nil {
			return Result{Outcome: MissingReferences, Missing: []ids.Hash{ref}}
		}
		if refLevel > parentLevel {
			return fail(WrongProposerRef)
		}
	}
	return pass()
}

// checkVoterContent verifies the chain number matches the voter parent
// and that the votes are exactly one proposer block per level in
// (voter parent's deepest voted level, header parent's proposer level],
// ascending and contiguous. Which block of a level is voted for is not
// checked.
func (v *Validator) checkVoterContent(b *block.Block) Result {
	if b.Voter.Chain >= v.params.NumVoterChains {
		return fail(WrongChainNumber)
	}
	parentChain, err := v.chain.VoterChain(b.Voter.VoterParent)
	if err != nil || parentChain != b.Voter.Chain {
		return fail(WrongChainNumber)
	}

	startLevel, err := v.chain.DeepestVotedLevel(b.Voter.VoterParent)
	if err != nil {
		return Result{Outcome: MissingParent, Missing: []ids.Hash{b.Voter.VoterParent}}
	}
	endLevel, err := v.chain.ProposerLevel(b.Header.Parent)
	if err != nil {
		return Result{Outcome: MissingParent, Missing: []ids.Hash{b.Header.Parent}}
	}
	if startLevel > endLevel || endLevel-startLevel != uint64(len(b.Voter.Votes)) {
		return fail(WrongVoteLevel)
	}
	for i, vote := range b.Voter.Votes {
		level, err := v.chain.ProposerLevel(vote)
		if err != nil {
			return Result{Outcome: MissingReferences, Missing: []ids.Hash{vote}}
		}
		if level != startLevel+uint64(i)+1 {
			return fail(WrongVoteLevel)
		}
	}
	return pass()
}

// checkTransactions runs the per-transaction structural checks: inputs
// and outputs non-empty, values non-zero, inputs cover outputs, and one
// authorization per distinct owner in sorted deduplicated order with
// matching key hashes.
func checkTransactions(txs []block.Transaction) Result {
	for i := range txs {
		tx := &txs[i]
		if len(tx.Inputs) == 0 || len(tx.Outputs) == 0 {
			return fail(EmptyTransaction)
		}
		for _, in := range tx.Inputs {
			if in.Value == 0 {
				return fail(ZeroValue)
			}
		}
		for _, out := range tx.Outputs {
			if out.Value == 0 {
				return fail(ZeroValue)
			}
		}
		totalIn, ok := tx.TotalInput()
		if !ok {
			return fail(InsufficientInput)
		}
		totalOut, ok := tx.TotalOutput()
		if !ok || totalIn < totalOut {
			return fail(InsufficientInput)
		}
		if r := checkAuthorizations(tx); !r.Ok() {
			return r
		}
	}
	return pass()
}

// checkAuthorizations verifies the authorization list is exactly the
// sorted deduplicated set of input owners, each key hashing to its
// owner address.
func checkAuthorizations(tx *block.Transaction) Result {
	owners := make([]ids.Address, 0, len(tx.Inputs))
	for _, in := range tx.Inputs {
		owners = append(owners, in.Owner)
	}
	ids.SortHashes(owners)
	distinct := owners[:0]
	var prev ids.Address
	for i, o := range owners {
		if i == 0 || o != prev {
			distinct = append(distinct, o)
		}
		prev = o
	}

	if len(tx.Authorizations) != len(distinct) {
		return fail(WrongSignature)
	}
	for i, auth := range tx.Authorizations {
		if crypto.AddressOf(auth.PublicKey) != distinct[i] {
			return fail(WrongCoinOwner)
		}
	}
	return pass()
}

// checkSignatureBatch verifies every authorization across the block's
// transactions in one batched call, each signing the transaction's
// (inputs ∥ outputs) bytes.
func checkSignatureBatch(txs []block.Transaction) Result {
	batch := crypto.NewBatchVerifier()
	for i := range txs {
		tx := &txs[i]
		msg := tx.SigningMessage()
		for _, auth := range tx.Authorizations {
			if len(auth.PublicKey) != ed25519.PublicKeySize {
				return fail(WrongSignature)
			}
			batch.Add(auth.PublicKey, msg, auth.Signature)
		}
	}
	if err := batch.Verify(); err != nil {
		return fail(WrongSignature)
	}
	return pass()
}
