/*
DESCRIPTION
  nal.go packs a byte-aligned RBSP payload into an Annex-B NAL unit: start
  code prefixing plus emulation-prevention byte (EPB) insertion.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package nal packs Raw Byte Sequence Payloads into Annex-B NAL units,
// inserting emulation-prevention bytes so no forbidden start-code-like
// pattern appears inside the payload.
package nal

import "github.com/ausocean/h264enc/bitstream"

// StartCode is the Annex-B 4-byte start-code prefix that begins every NAL
// unit this package produces.
var StartCode = [4]byte{0x00, 0x00, 0x00, 0x01}

// emulationPreventionByte is inserted after two consecutive zero bytes
// whenever the next byte would otherwise form a forbidden 00 00 0X pattern.
const emulationPreventionByte = 0x03

// forbiddenMask/forbiddenMatch implement the "(b & 0xFC) == 0x00" test from
// SPEC_FULL.md's description of the NAL packer algorithm: matches third
// bytes 0x00, 0x01, 0x02 or 0x03.
const (
	forbiddenMask  = 0xFC
	forbiddenMatch = 0x00
)

// Pack byte-aligns w (calling w.Align, defensively), then returns a fresh
// owned byte sequence holding the start-code-prefixed, emulation-prevented
// NAL unit for w's current contents. w is left untouched aside from the
// trailing alignment padding.
func Pack(w *bitstream.Writer) ([]byte, error) {
	if err := w.Align(); err != nil {
		return nil, err
	}
	return PackRBSP(w.Bytes()), nil
}

// PackRBSP packs an already byte-aligned RBSP (including its trailing stop
// bit) into a start-code-prefixed, emulation-prevention-escaped NAL unit.
func PackRBSP(rbsp []byte) []byte {
	out := make([]byte, 0, len(StartCode)+len(rbsp)+len(rbsp)/3+1)
	out = append(out, StartCode[:]...)

	zeroRun := 0
	for _, b := range rbsp {
		if zeroRun >= 2 && b&forbiddenMask == forbiddenMatch {
			out = append(out, emulationPreventionByte)
			zeroRun = 0
		}
		out = append(out, b)
		if b == 0 {
			zeroRun++
		} else {
			zeroRun = 0
		}
	}

	if len(rbsp) > 0 && rbsp[len(rbsp)-1] == 0 {
		out = append(out, emulationPreventionByte)
	}

	return out
}
