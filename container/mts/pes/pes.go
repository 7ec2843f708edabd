/*
DESCRIPTION
  pes.go encodes the PES packets tsmux wraps each H.264 access unit in: a
  PTS-only video elementary stream, the only PES shape this module's
  muxer ever produces.

  Adapted from ausocean-av's container/mts/pes package: narrowed from a
  general-purpose PES packet (scrambling control, priority, data
  alignment, copyright/original markers, ESCR/ES-rate/DSM-trick-mode/
  additional-copy-info/CRC/extension fields, a DTS, and arbitrary
  stuffing) down to the fields tsmux.writePES actually sets, since nothing
  else in this tree constructs a Packet.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package pes encodes PES packets carrying PTS-only H.264 video access
// units, as written ahead of every coded slice by tsmux.
package pes

import "github.com/Comcast/gots/v2"

// MaxPesSize bounds the capacity Packet.Bytes preallocates for a fresh
// buffer.
const MaxPesSize = 64 * 1 << 10

// H264SID is the MPEG-TS stream_type value for H.264 video, per ITU-T
// Rec. H.222.0 / ISO/IEC 13818-1 table 2-34 — the only stream_type this
// module emits.
const H264SID = 27

/*
Packet is the subset of the PES packet header this module needs:

													PES Packet Formatting
============================================================================
| octet no | bit 0 | bit 1 | bit 2 | bit 3 | bit 4 | bit 5 | bit 6 | bit 7 |
============================================================================
| octet 0  | 0x00                                                          |
----------------------------------------------------------------------------
| octet 1  | 0x00                                                          |
----------------------------------------------------------------------------
| octet 2  | 0x01                                                          |
----------------------------------------------------------------------------
| octet 3  | Stream ID (0xE0 for video)                                    |
----------------------------------------------------------------------------
| octet 4  | PES Packet Length (no of bytes in packet after this field)    |
----------------------------------------------------------------------------
| octet 5  | PES Length cont.                                              |
----------------------------------------------------------------------------
| octet 6  | 0x2 marker    |  0 (no SC/priority/alignment/copyright)       |
----------------------------------------------------------------------------
| octet 7  | PTS_DTS_flags | 0 (no ESCR/ES-rate/trick-mode/ACI/CRC/ext)    |
----------------------------------------------------------------------------
| octet 8  | PES Header Length                                             |
----------------------------------------------------------------------------
| optional | PTS, present iff HasPTS (5 bytes)                             |
----------------------------------------------------------------------------
| -        | Data                                                         |
----------------------------------------------------------------------------
*/
type Packet struct {
	StreamID     byte   // Stream ID (0xE0 for video).
	Length       uint16 // PES packet length in bytes after this field; 0 is valid for an unbounded video stream.
	HasPTS       bool   // Whether a presentation timestamp follows the header.
	HeaderLength byte   // PES header length, counting only the optional fields after this byte.
	PTS          uint64 // Presentation timestamp, present iff HasPTS.
	Data         []byte // Packet payload: one H.264 access unit.
}

// Bytes renders p, reusing buf's backing array when it was sized by a
// previous call with capacity MaxPesSize.
func (p *Packet) Bytes(buf []byte) []byte {
	if buf == nil || cap(buf) != MaxPesSize {
		buf = make([]byte, 0, MaxPesSize)
	}
	buf = buf[:0]

	var pdi byte
	if p.HasPTS {
		pdi = 0x2
	}

	buf = append(buf, []byte{
		0x00, 0x00, 0x01,
		p.StreamID,
		byte((p.Length & 0xFF00) >> 8),
		byte(p.Length & 0x00FF),
		0x2 << 6, // marker bits; no scrambling, priority, alignment, or copyright.
		pdi << 6,
		p.HeaderLength,
	}...)

	if p.HasPTS {
		ptsIdx := len(buf)
		buf = buf[:ptsIdx+5]
		gots.InsertPTS(buf[ptsIdx:], p.PTS)
	}
	buf = append(buf, p.Data...)
	return buf
}
