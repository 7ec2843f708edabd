/*
DESCRIPTION
  packet.go models a single 188-byte MPEG-TS packet, adapted from
  container/mts's Packet/Bytes/FillPayload: trimmed to the fields this
  package's single fixed video PID and PSI packets actually use (no
  OPCR, splicing, private data, or adaptation-field extension support).

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package tsmux

// packet holds the fields of one 188-byte MPEG-TS packet this package
// emits: either a single-packet PSI section (PAT/PMT) or one fragment of
// a PES-wrapped H.264 access unit.
type packet struct {
	pusi    bool   // payload unit start indicator
	pid     uint16 // packet identifier
	cc      byte   // continuity counter
	afc     byte   // adaptation field control
	rai     bool   // random access indicator, written into the adaptation field
	pcrf    bool   // PCR flag
	pcr     uint64 // program clock reference, present iff pcrf
	payload []byte
}

// fillPayload copies as much of data as fits into the packet's available
// payload capacity, given afc and pcrf, and returns the number of bytes
// consumed. The caller repeats this across successive packets until data
// is exhausted.
func (p *packet) fillPayload(data []byte) int {
	max := p.maxPayloadSize()
	if len(data) > max {
		data = data[:max]
	}
	p.payload = append([]byte(nil), data...)
	return len(p.payload)
}

func (p *packet) maxPayloadSize() int {
	if p.afc == afcAdaptationAndPayload {
		size := packetSize - 4 - 2 // header + mandatory adaptation field (length + flags byte)
		if p.pcrf {
			size -= 6
		}
		return size
	}
	return packetSize - 4
}

// bytes renders p as a 188-byte MPEG-TS packet, following the layout
// container/mts's Packet.Bytes writes: sync byte, PID/flags header, an
// optional adaptation field carrying the PCR and stuffing, then payload.
func (p *packet) bytes() []byte {
	buf := make([]byte, 0, packetSize)
	buf = append(buf, 0x47)
	buf = append(buf, byte(b2u(p.pusi)<<6)|byte(p.pid>>8)&0x1f)
	buf = append(buf, byte(p.pid))
	buf = append(buf, p.afc<<4|p.cc)

	if p.afc == afcAdaptationAndPayload {
		stuffing := p.maxPayloadSize() - len(p.payload)
		afLen := 1 + stuffing
		if p.pcrf {
			afLen += 6
		}
		buf = append(buf, byte(afLen))

		flags := byte(0)
		if p.rai {
			flags |= 0x40
		}
		if p.pcrf {
			flags |= 0x10
		}
		buf = append(buf, flags)

		if p.pcrf {
			pcrBase := p.pcr
			ext := uint64(0)
			raw := (pcrBase << 15) | (1 << 14) | ext
			for i := 5; i >= 0; i-- {
				buf = append(buf, byte(raw>>(uint(i)*8)))
			}
		}
		for i := 0; i < stuffing; i++ {
			buf = append(buf, 0xff)
		}
	}

	buf = append(buf, p.payload...)
	return buf
}

func b2u(b bool) int {
	if b {
		return 1
	}
	return 0
}
