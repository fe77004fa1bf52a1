// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wrappers

import (
	"encoding/binary"
	"errors"
)

// ErrInsufficientLength is returned when unpacking runs past the end of
// the buffer.
var ErrInsufficientLength = errors.New("packer has insufficient length for input")

// PackShort packs a short as 2 bytes
func (p *Packer) PackShort(s uint16) {
	if p.Err != nil {
		return
	}
	p.Bytes = append(p.Bytes, byte(s>>8), byte(s))
}

// PackFixedBytes packs bytes without a length prefix
func (p *Packer) PackFixedBytes(bytes []byte) {
	p.PackBytes(bytes)
}

// PackBytesWithLength packs a length prefix followed by the bytes
func (p *Packer) PackBytesWithLength(bytes []byte) {
	p.PackInt(uint32(len(bytes)))
	p.PackBytes(bytes)
}

// Unpacker reads primitives back out of a byte slice produced by a
// Packer. The first error encountered sticks; subsequent calls return
// zero values.
type Unpacker struct {
	Bytes  []byte
	Offset int
	Err    error
}

// NewUnpacker returns an Unpacker over bytes
func NewUnpacker(bytes []byte) *Unpacker {
	return &Unpacker{Bytes: bytes}
}

func (u *Unpacker) checkSpace(n int) bool {
	if u.Err != nil {
		return false
	}
	if u.Offset+n > len(u.Bytes) {
		u.Err = ErrInsufficientLength
		return false
	}
	return true
}

// UnpackByte unpacks a byte
func (u *Unpacker) UnpackByte() byte {
	if !u.checkSpace(1) {
		return 0
	}
	b := u.Bytes[u.Offset]
	u.Offset++
	return b
}

// UnpackShort unpacks 2 bytes as a uint16
func (u *Unpacker) UnpackShort() uint16 {
	if !u.checkSpace(2) {
		return 0
	}
	s := binary.BigEndian.Uint16(u.Bytes[u.Offset:])
	u.Offset += 2
	return s
}

// UnpackInt unpacks 4 bytes as a uint32
func (u *Unpacker) UnpackInt() uint32 {
	if !u.checkSpace(4) {
		return 0
	}
	i := binary.BigEndian.Uint32(u.Bytes[u.Offset:])
	u.Offset += 4
	return i
}

// UnpackLong unpacks 8 bytes as a uint64
func (u *Unpacker) UnpackLong() uint64 {
	if !u.checkSpace(8) {
		return 0
	}
	l := binary.BigEndian.Uint64(u.Bytes[u.Offset:])
	u.Offset += 8
	return l
}

// UnpackFixedBytes unpacks n bytes without a length prefix
func (u *Unpacker) UnpackFixedBytes(n int) []byte {
	if n < 0 {
		u.Err = ErrInsufficientLength
		return nil
	}
	if !u.checkSpace(n) {
		return nil
	}
	b := make([]byte, n)
	copy(b, u.Bytes[u.Offset:])
	u.Offset += n
	return b
}

// UnpackBytesWithLength unpacks a length prefix followed by that many
// bytes
func (u *Unpacker) UnpackBytesWithLength() []byte {
	n := u.UnpackInt()
	return u.UnpackFixedBytes(int(n))
}

// Done reports whether the whole buffer has been consumed without error
func (u *Unpacker) Done() bool {
	return u.Err == nil && u.Offset == len(u.Bytes)
}
