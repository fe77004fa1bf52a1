// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package crypto

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/prism/ids"
)

func TestHash256(t *testing.T) {
	require := require.New(t)

	want := sha256.Sum256([]byte("prism"))
	require.Equal(ids.Hash(want), Hash256([]byte("prism")))
}

func TestHashConcat(t *testing.T) {
	require := require.New(t)

	require.Equal(
		Hash256([]byte("abcdef")),
		HashConcat([]byte("ab"), []byte("cd"), []byte("ef")),
	)
}

func TestSignVerify(t *testing.T) {
	require := require.New(t)

	pub, priv, err := GenerateKey()
	require.NoError(err)

	msg := []byte("spend coin 42")
	sig := Sign(priv, msg)

	batch := NewBatchVerifier()
	batch.Add(pub, msg, sig)
	require.Equal(1, batch.Len())
	require.NoError(batch.Verify())
}

func TestBatchVerifyFailsOnOneBadEntry(t *testing.T) {
	require := require.New(t)

	pub1, priv1, err := GenerateKey()
	require.NoError(err)
	pub2, priv2, err := GenerateKey()
	require.NoError(err)

	msg1 := []byte("first")
	msg2 := []byte("second")

	batch := NewBatchVerifier()
	batch.Add(pub1, msg1, Sign(priv1, msg1))
	batch.Add(pub2, msg2, Sign(priv2, msg1)) // signs the wrong message
	require.ErrorIs(batch.Verify(), ErrBatchVerifyFailed)
}

func TestBatchVerifyRejectsBadKeyLength(t *testing.T) {
	require := require.New(t)

	batch := NewBatchVerifier()
	batch.Add([]byte{0x01}, []byte("msg"), []byte("sig"))
	require.ErrorIs(batch.Verify(), ErrBatchVerifyFailed)
}

func TestAddressOf(t *testing.T) {
	require := require.New(t)

	pub, _, err := GenerateKey()
	require.NoError(err)
	require.Equal(Hash256(pub), AddressOf(pub))
}
