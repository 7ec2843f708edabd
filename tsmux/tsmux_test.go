/*
AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.
*/

package tsmux

import (
	"bytes"
	"testing"

	"github.com/ausocean/utils/logging"
)

func discardLogger() logging.Logger {
	return logging.New(logging.Error, discardWriter{}, false)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestWriteSPSEmitsPSIFirst(t *testing.T) {
	var dst bytes.Buffer
	w := New(&dst, 25, discardLogger())

	sps := append([]byte{0x00, 0x00, 0x00, 0x01, 0x67}, bytes.Repeat([]byte{0x11}, 10)...)
	if _, err := w.Write(sps); err != nil {
		t.Fatalf("Write(sps) error = %v", err)
	}

	out := dst.Bytes()
	if len(out) < 2*packetSize {
		t.Fatalf("output too short to contain PAT+PMT: %d bytes", len(out))
	}
	if out[0] != 0x47 {
		t.Errorf("first packet sync byte = %#02x, want 0x47", out[0])
	}
	patPID := uint16(out[1]&0x1f)<<8 | uint16(out[2])
	if patPID != PIDPAT {
		t.Errorf("first packet PID = %d, want PAT PID %d", patPID, PIDPAT)
	}
	if out[packetSize] != 0x47 {
		t.Errorf("second packet sync byte = %#02x, want 0x47", out[packetSize])
	}
	pmtPID := uint16(out[packetSize+1]&0x1f)<<8 | uint16(out[packetSize+2])
	if pmtPID != PIDPMT {
		t.Errorf("second packet PID = %d, want PMT PID %d", pmtPID, PIDPMT)
	}
}

func TestWriteNonParameterSetSkipsPSI(t *testing.T) {
	var dst bytes.Buffer
	w := New(&dst, 25, discardLogger())

	idr := append([]byte{0x00, 0x00, 0x00, 0x01, 0x65}, bytes.Repeat([]byte{0x22}, 10)...)
	if _, err := w.Write(idr); err != nil {
		t.Fatalf("Write(idr) error = %v", err)
	}

	out := dst.Bytes()
	pid := uint16(out[1]&0x1f)<<8 | uint16(out[2])
	if pid != PIDVideo {
		t.Errorf("first packet PID = %d, want video PID %d", pid, PIDVideo)
	}
}

func TestWriteRejectsShortNAL(t *testing.T) {
	var dst bytes.Buffer
	w := New(&dst, 25, discardLogger())
	if _, err := w.Write([]byte{0x00, 0x00, 0x00}); err == nil {
		t.Fatalf("Write(short NAL): error = nil, want error")
	}
}

func TestPacketBytesLengthIsAlwaysPacketSize(t *testing.T) {
	tests := []packet{
		{pusi: true, pid: PIDPAT, afc: afcPayloadOnly, payload: bytes.Repeat([]byte{0xff}, 184)},
		{pusi: true, pid: PIDVideo, afc: afcAdaptationAndPayload, rai: true, pcrf: true, payload: []byte{0x01, 0x02, 0x03}},
		{pusi: false, pid: PIDVideo, afc: afcAdaptationAndPayload, payload: bytes.Repeat([]byte{0xAB}, 180)},
	}
	for i, p := range tests {
		got := p.bytes()
		if len(got) != packetSize {
			t.Errorf("case %d: len(bytes()) = %d, want %d", i, len(got), packetSize)
		}
	}
}

func TestPacketFillPayloadFragmentsLargeData(t *testing.T) {
	data := bytes.Repeat([]byte{0x5A}, 500)
	var written int
	for written < len(data) {
		p := packet{pid: PIDVideo, afc: afcAdaptationAndPayload}
		n := p.fillPayload(data[written:])
		if n == 0 {
			t.Fatalf("fillPayload made no progress at offset %d", written)
		}
		written += n
	}
	if written != len(data) {
		t.Errorf("total written = %d, want %d", written, len(data))
	}
}
