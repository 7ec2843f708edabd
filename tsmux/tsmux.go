/*
DESCRIPTION
  tsmux.go packages an Annex-B H.264 byte stream into MPEG-TS, adapted from
  container/mts's encoder: a single fixed video PID, PAT/PMT emitted ahead
  of every SPS NAL unit (psiMethodNAL behaviour), no metadata or
  discontinuity handling.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package tsmux repackages the Annex-B byte stream produced by this
// module's encoder as MPEG-TS, carrying PID 256 H.264 access units. Each
// Write takes one start-code-prefixed NAL unit; only its nal_unit_type is
// read, and RBSP contents are never altered or inspected.
package tsmux

import (
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/ausocean/h264enc/container/mts/pes"
	"github.com/ausocean/h264enc/container/mts/psi"
	"github.com/ausocean/utils/logging"
)

// Fixed program IDs this package writes, matching container/mts's
// defaults.
const (
	PIDPAT   = 0
	PIDPMT   = 4096
	PIDVideo = 256

	packetSize = 188
	videoStreamID = 0xE0 // PES stream_id for a video stream (ITU-T Rec. H.222.0 table 2-18); distinct from the PMT stream_type, which is pes.H264SID.
)

// Adaptation field control values (payload-only vs payload+adaptation).
const (
	afcPayloadOnly          = 0x1
	afcAdaptationAndPayload = 0x3

	pcrFrequency = 90000
	ptsFrequency = 90000
	ptsOffset    = 700 * time.Millisecond
)

// Writer packages one H.264 Annex-B stream into MPEG-TS, writing packets to
// Dst as each NAL unit is submitted.
type Writer struct {
	dst io.Writer
	log logging.Logger

	writePeriod time.Duration
	clock       time.Duration

	continuity map[uint16]byte

	patBytes, pmtBytes []byte
}

// New returns a Writer that packages NAL units written to it into MPEG-TS
// packets sent to dst, assuming a constant frame interval of 1/fps
// seconds between calls to Write.
func New(dst io.Writer, fps float64, log logging.Logger) *Writer {
	pat := psi.NewPATPSI()
	pmt := psi.NewPMTPSI()
	pmt.SyntaxSection.SpecificData.(*psi.PMT).StreamSpecificData.StreamType = pes.H264SID
	pmt.SyntaxSection.SpecificData.(*psi.PMT).StreamSpecificData.PID = PIDVideo

	return &Writer{
		dst:         dst,
		log:         log,
		writePeriod: time.Duration(float64(time.Second) / fps),
		continuity:  map[uint16]byte{PIDPAT: 0, PIDPMT: 0, PIDVideo: 0},
		patBytes:    pat.Bytes(),
		pmtBytes:    pmt.Bytes(),
	}
}

// nalType extracts the nal_unit_type field from a single Annex-B NAL unit
// (start code included).
func nalType(nal []byte) (byte, error) {
	if len(nal) < 5 {
		return 0, errors.New("tsmux: NAL unit too short to contain a header")
	}
	return nal[4] & 0x1F, nil
}

// Write accepts exactly one Annex-B-framed NAL unit (start code included)
// and repackages it as MPEG-TS PES payload, writing the result to the
// underlying destination. It advances the internal clock by one frame
// interval on every call carrying a slice NAL (type 1 or 5); parameter-set
// NAL units do not advance the clock.
func (w *Writer) Write(nal []byte) (int, error) {
	typ, err := nalType(nal)
	if err != nil {
		return 0, errors.Wrap(err, "tsmux: Write")
	}

	const nalTypeSPS = 7
	const nalTypeIDR = 5
	const nalTypeNonIDR = 1

	if typ == nalTypeSPS {
		if err := w.writePSI(); err != nil {
			return 0, errors.Wrap(err, "tsmux: writing PSI ahead of SPS")
		}
	}

	if err := w.writePES(nal); err != nil {
		return 0, errors.Wrap(err, "tsmux: writing PES")
	}

	if typ == nalTypeIDR || typ == nalTypeNonIDR {
		w.clock += w.writePeriod
	}

	return len(nal), nil
}

func (w *Writer) writePSI() error {
	patPkt := packet{
		pusi:    true,
		pid:     PIDPAT,
		cc:      w.ccFor(PIDPAT),
		afc:     afcPayloadOnly,
		payload: addPadding(w.patBytes),
	}
	if _, err := w.dst.Write(patPkt.bytes()); err != nil {
		return errors.Wrap(err, "writing PAT packet")
	}

	pmtPkt := packet{
		pusi:    true,
		pid:     PIDPMT,
		cc:      w.ccFor(PIDPMT),
		afc:     afcPayloadOnly,
		payload: addPadding(w.pmtBytes),
	}
	if _, err := w.dst.Write(pmtPkt.bytes()); err != nil {
		return errors.Wrap(err, "writing PMT packet")
	}

	w.log.Debug("tsmux: wrote PSI", "pat_cc", patPkt.cc, "pmt_cc", pmtPkt.cc)
	return nil
}

func (w *Writer) writePES(data []byte) error {
	pesPkt := pes.Packet{
		StreamID:     videoStreamID,
		HasPTS:       true,
		PTS:          w.pts(),
		Data:         data,
		HeaderLength: 5,
	}
	buf := pesPkt.Bytes(nil)

	pusi := true
	for len(buf) != 0 {
		pkt := packet{
			pusi: pusi,
			pid:  PIDVideo,
			rai:  pusi,
			cc:   w.ccFor(PIDVideo),
			afc:  afcAdaptationAndPayload,
			pcrf: pusi,
		}
		if pusi {
			pkt.pcr = w.pcr()
		}
		n := pkt.fillPayload(buf)
		buf = buf[n:]
		pusi = false

		if _, err := w.dst.Write(pkt.bytes()); err != nil {
			return errors.Wrap(err, "writing video packet")
		}
	}
	return nil
}

func (w *Writer) pts() uint64 {
	return uint64((w.clock + ptsOffset).Seconds() * ptsFrequency)
}

func (w *Writer) pcr() uint64 {
	return uint64(w.clock.Seconds() * pcrFrequency)
}

func (w *Writer) ccFor(pid uint16) byte {
	cc := w.continuity[pid]
	w.continuity[pid] = (cc + 1) & 0xf
	return cc
}

// addPadding right-pads b with 0xFF to the 184-byte TS payload size
// expected by a single-packet PSI section.
func addPadding(b []byte) []byte {
	const psiPacketSize = 184
	if len(b) >= psiPacketSize {
		return b
	}
	out := make([]byte, psiPacketSize)
	copy(out, b)
	for i := len(b); i < psiPacketSize; i++ {
		out[i] = 0xFF
	}
	return out
}
