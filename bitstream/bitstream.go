/*
DESCRIPTION
  bitstream.go provides Writer, a bit-granular append-only accumulator with
  Exp-Golomb helpers, used to assemble H.264 RBSP payloads ahead of NAL
  packing.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package bitstream provides a bit-granular, append-only buffer with
// Exp-Golomb (ue/se) helpers for assembling H.264 Raw Byte Sequence Payloads.
package bitstream

import (
	"math"

	"github.com/pkg/errors"
)

// ErrTooManyBits is returned by AppendBits when asked to write more than 32
// bits in one call.
var ErrTooManyBits = errors.New("bitstream: cannot append more than 32 bits at once")

// ErrValueTooLarge is returned by AppendUE when the value cannot be encoded
// as an unsigned Exp-Golomb code (see the "Exp-Golomb rejection boundary"
// note in SPEC_FULL.md).
var ErrValueTooLarge = errors.New("bitstream: value too large for unsigned Exp-Golomb encoding")

// ueRejectThreshold is the smallest value AppendUE rejects: v >= 2^31-1 is
// invalid, so the largest acceptable value is 2^31-2.
const ueRejectThreshold = math.MaxInt32 // 2^31 - 1

// Writer is a growable, bit-granular byte buffer. The zero value is ready
// to use. Writer owns its backing storage exclusively: callers never hold a
// live reference to the returned []byte across a subsequent write.
type Writer struct {
	buf       []byte
	byteOff   int // whole-byte cursor
	bitOff    int // bit offset within buf[byteOff], 0..7
}

// New returns an empty Writer with capacity preallocated for roughly n
// bytes of RBSP; capacity is advisory and the buffer still grows as needed.
func New(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Reset zeroes the payload and both cursors, leaving the Writer as if newly
// constructed.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
	w.byteOff = 0
	w.bitOff = 0
}

// Len returns the number of whole bytes currently touched by writes,
// including a partially-written trailing byte.
func (w *Writer) Len() int {
	return len(w.buf)
}

// BitOffset returns the current bit offset within the current byte (0..7).
func (w *Writer) BitOffset() int {
	return w.bitOff
}

// growForBit ensures buf has a byte available at the cursor, appending a
// fresh zeroed byte when the cursor sits at the start of a not-yet-written
// byte.
func (w *Writer) growForBit() {
	if w.bitOff == 0 && w.byteOff == len(w.buf) {
		w.buf = append(w.buf, 0)
	}
}

// AppendBits writes the low n bits of value, most-significant-bit first,
// starting at the current cursor. n must be in [0, 32]; n == 0 is a no-op.
func (w *Writer) AppendBits(value uint32, n int) error {
	if n < 0 || n > 32 {
		return ErrTooManyBits
	}
	remaining := n
	for remaining > 0 {
		w.growForBit()
		chunk := 8 - w.bitOff
		if chunk > remaining {
			chunk = remaining
		}

		shift := remaining - chunk
		mask := uint32(1)<<uint(chunk) - 1
		bits := (value >> uint(shift)) & mask

		w.buf[w.byteOff] |= byte(bits << uint(8-w.bitOff-chunk))

		w.bitOff += chunk
		w.byteOff += w.bitOff / 8
		w.bitOff %= 8
		remaining -= chunk
	}
	return nil
}

// AppendUE writes v as an unsigned Exp-Golomb code: ue(v).
func (w *Writer) AppendUE(v uint32) error {
	if v >= ueRejectThreshold {
		return ErrValueTooLarge
	}
	vPrime := uint64(v) + 1
	k := bitWidth(vPrime)

	for i := 0; i < k-1; i++ {
		if err := w.AppendBits(0, 1); err != nil {
			return err
		}
	}
	return w.AppendBits(uint32(vPrime), k)
}

// AppendSE writes v as a signed Exp-Golomb code: se(v).
func (w *Writer) AppendSE(v int32) error {
	var codeNum uint32
	if v > 0 {
		codeNum = uint32(2*int64(v) - 1)
	} else {
		codeNum = uint32(-2 * int64(v))
	}
	return w.AppendUE(codeNum)
}

// Align pads with zero bits, if necessary, until the bit cursor returns to
// zero (byte-aligned).
func (w *Writer) Align() error {
	if w.bitOff == 0 {
		return nil
	}
	return w.AppendBits(0, 8-w.bitOff)
}

// Bytes returns the written payload. The returned slice aliases the
// Writer's internal buffer and is only valid until the next Reset or write.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// bitWidth returns the number of bits required to represent v (v must be
// >= 1); equivalently ceil(log2(v+1)) for the Exp-Golomb codeword length.
func bitWidth(v uint64) int {
	n := 0
	for v > 0 {
		v >>= 1
		n++
	}
	return n
}
