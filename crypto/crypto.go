// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package crypto provides the hashing and signature primitives the
// consensus core is built on: SHA-256 content addressing and batched
// Ed25519 signature verification.
package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/luxfi/prism/ids"
)

// Hash256 returns the SHA-256 digest of b as an ids.Hash.
func Hash256(b []byte) ids.Hash {
	return ids.Hash(sha256.Sum256(b))
}

// HashConcat hashes the concatenation of all parts in order, without
// materializing an intermediate byte slice larger than necessary.
func HashConcat(parts ...[]byte) ids.Hash {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p) //nolint:errcheck // hash.Hash.Write never errors
	}
	var out ids.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// AddressOf returns the owner address for a public key: hash(pubkey).
func AddressOf(pub ed25519.PublicKey) ids.Address {
	return Hash256(pub)
}

// ErrBatchVerifyFailed is returned when any signature in a batch fails.
var ErrBatchVerifyFailed = errors.New("batch signature verification failed")

// Entry is a single (message, public key, signature) triple submitted to
// a BatchVerifier.
type Entry struct {
	Message   []byte
	PublicKey ed25519.PublicKey
	Signature []byte
}

// BatchVerifier accumulates signature entries across every authorization
// in a block, so the whole block's transactions verify in one call.
// Ed25519 as
// exposed by the standard library has no combined-equation batching, so
// entries are checked individually under a single logical Verify call;
// the important property callers rely on is that verification happens
// once, atomically, for the whole block rather than interleaved with
// other validation steps.
type BatchVerifier struct {
	entries []Entry
}

// NewBatchVerifier returns an empty batch verifier.
func NewBatchVerifier() *BatchVerifier {
	return &BatchVerifier{}
}

// Add queues one signature for verification.
func (b *BatchVerifier) Add(pub ed25519.PublicKey, message, sig []byte) {
	b.entries = append(b.entries, Entry{Message: message, PublicKey: pub, Signature: sig})
}

// Len returns the number of queued entries.
func (b *BatchVerifier) Len() int {
	return len(b.entries)
}

// Verify checks every queued entry, returning nil only if all succeed.
func (b *BatchVerifier) Verify() error {
	for i, e := range b.entries {
		if len(e.PublicKey) != ed25519.PublicKeySize {
			return fmt.Errorf("%w: entry %d: bad public key length %d", ErrBatchVerifyFailed, i, len(e.PublicKey))
		}
		if !ed25519.Verify(e.PublicKey, e.Message, e.Signature) {
			return fmt.Errorf("%w: entry %d", ErrBatchVerifyFailed, i)
		}
	}
	return nil
}

// Sign signs message with priv, returning the Ed25519 signature.
func Sign(priv ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(priv, message)
}

// GenerateKey generates a fresh Ed25519 keypair using crypto/rand.
func GenerateKey() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(nil)
}
