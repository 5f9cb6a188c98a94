// Package worldhash implements the kernel's deterministic 64-bit rolling
// world hash: an FNV-1a accumulator fed canonicalized little-endian
// encodings of authoritative state, in a fixed subsystem order. The result
// is reported to external observers for desync detection and must be
// stable across machines, operating systems, and compilation units given
// identical inputs and feature epoch.
package worldhash

import "hash/fnv"

// hash/fnv does not export the FNV-1a 64-bit constants, so Hash takes the
// offset basis from a fresh fnv.New64a and keeps its own uint64 state,
// applying the FNV-1a xor-then-multiply step per byte in mixByte.

// Hash accumulates a rolling FNV-1a digest over a fixed, caller-chosen
// sequence of fields. It carries no allocator-order or wall-clock
// dependence: calling the Write* methods in the same order over the same
// values always yields the same Sum.
type Hash struct {
	h uint64
}

// New returns a fresh accumulator seeded at the FNV-1a 64-bit offset basis.
func New() *Hash {
	f := fnv.New64a()
	return &Hash{h: f.Sum64()}
}

func (w *Hash) mixByte(b byte) {
	w.h ^= uint64(b)
	w.h *= 0x100000001b3
}

// WriteUint8 folds a single byte into the digest.
func (w *Hash) WriteUint8(v uint8) { w.mixByte(v) }

// WriteUint16 folds a uint16 into the digest as little-endian bytes.
func (w *Hash) WriteUint16(v uint16) {
	w.mixByte(byte(v))
	w.mixByte(byte(v >> 8))
}

// WriteUint32 folds a uint32 into the digest as little-endian bytes.
func (w *Hash) WriteUint32(v uint32) {
	for i := 0; i < 4; i++ {
		w.mixByte(byte(v >> (8 * uint(i))))
	}
}

// WriteUint64 folds a uint64 into the digest as little-endian bytes.
func (w *Hash) WriteUint64(v uint64) {
	for i := 0; i < 8; i++ {
		w.mixByte(byte(v >> (8 * uint(i))))
	}
}

// WriteInt64 folds a signed int64 into the digest via its two's-complement
// bit pattern.
func (w *Hash) WriteInt64(v int64) { w.WriteUint64(uint64(v)) }

// WriteBool folds a boolean as a single 0/1 byte.
func (w *Hash) WriteBool(v bool) {
	if v {
		w.mixByte(1)
	} else {
		w.mixByte(0)
	}
}

// WriteBytes folds a raw byte slice, length-prefixed so that two
// differently-split but equal-content sequences of calls cannot collide.
func (w *Hash) WriteBytes(b []byte) {
	w.WriteUint64(uint64(len(b)))
	for _, c := range b {
		w.mixByte(c)
	}
}

// Sum64 returns the current rolling digest.
func (w *Hash) Sum64() uint64 { return w.h }

// Reset restores the accumulator to the initial FNV-1a offset basis.
func (w *Hash) Reset() {
	f := fnv.New64a()
	w.h = f.Sum64()
}
