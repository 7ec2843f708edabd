/*
AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.
*/

package encoder

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/ausocean/h264enc/config"
)

// fakeTransport is an in-memory Transport stub recording every request it
// is submitted, always reporting a fixed-size coded slice.
type fakeTransport struct {
	opened       bool
	configured   bool
	buffersReq   int
	submitted    []*Request
	codedBytes   int
	rlcPerMB     int64
	qpPerMB      int64
	failSubmit   bool
	failWait     bool
	closeErr     error
	closed       bool
}

func (f *fakeTransport) Open(ctx context.Context) error {
	f.opened = true
	return nil
}

func (f *fakeTransport) ConfigureFormats(ctx context.Context, w, h, minBytes int) error {
	f.configured = true
	return nil
}

func (f *fakeTransport) RequestBuffers(ctx context.Context, count int) error {
	f.buffersReq = count
	return nil
}

func (f *fakeTransport) Submit(ctx context.Context, req *Request) error {
	if f.failSubmit {
		return errors.New("fake: submit failed")
	}
	f.submitted = append(f.submitted, req)
	return nil
}

func (f *fakeTransport) Wait(ctx context.Context) (Feedback, []byte, error) {
	if f.failWait {
		return Feedback{}, nil, errors.New("fake: wait failed")
	}
	const mbCount = 5 * 4 // matches testSetup's 80x64 frame -> 5x4 MBs
	fb := Feedback{
		BytesUsed: f.codedBytes,
		RLCCount:  f.rlcPerMB * mbCount,
		QPSum:     f.qpPerMB * mbCount,
	}
	return fb, bytes.Repeat([]byte{0xAB}, f.codedBytes), nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return f.closeErr
}

func testSetup() config.Setup {
	return config.Setup{
		Width:        80,
		Height:       64,
		FPSNum:       30,
		FPSDen:       1,
		Bitrate:      2_000_000,
		GOPSize:      5,
		QPMin:        10,
		QPMax:        51,
		QPIntraDelta: 3,
	}
}

func TestSessionEmitsParameterSetsBeforeFrames(t *testing.T) {
	transport := &fakeTransport{codedBytes: 1000, rlcPerMB: 20, qpPerMB: 25}
	var sink bytes.Buffer

	s, err := New(testSetup(), transport, &sink, nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := s.Run(context.Background(), 3); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	out := sink.Bytes()
	if !bytes.HasPrefix(out, []byte{0x00, 0x00, 0x00, 0x01}) {
		t.Fatalf("output does not begin with a start code")
	}
	// The first NAL unit's header byte follows its start code; its
	// nal_unit_type must be 7 (SPS).
	if nalType := out[4] & 0x1f; nalType != 7 {
		t.Errorf("first NAL unit type = %d, want 7 (SPS)", nalType)
	}

	if !transport.opened || !transport.configured {
		t.Errorf("transport was not brought up: opened=%v configured=%v", transport.opened, transport.configured)
	}
	if transport.buffersReq != 3 {
		t.Errorf("RequestBuffers count = %d, want 3 (default BufferCount)", transport.buffersReq)
	}
	if len(transport.submitted) != 3 {
		t.Fatalf("submitted %d requests, want 3", len(transport.submitted))
	}
	if transport.submitted[0].Params.SliceType != SliceTypeI {
		t.Errorf("first frame SliceType = %v, want SliceTypeI", transport.submitted[0].Params.SliceType)
	}
	for i, req := range transport.submitted[1:] {
		if req.Params.SliceType != SliceTypeP {
			t.Errorf("frame %d SliceType = %v, want SliceTypeP", i+1, req.Params.SliceType)
		}
	}
}

func TestSessionAbortsOnSubmitFailure(t *testing.T) {
	transport := &fakeTransport{failSubmit: true}
	var sink bytes.Buffer

	s, err := New(testSetup(), transport, &sink, nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Run(context.Background(), 2); err == nil {
		t.Fatalf("Run() error = nil, want a transport failure")
	}
}

func TestSessionClosesTransportOnEveryExitPath(t *testing.T) {
	transport := &fakeTransport{failSubmit: true}
	var sink bytes.Buffer

	s, _ := New(testSetup(), transport, &sink, nil, nil)
	_ = s.Run(context.Background(), 1)

	// Run fails at Submit here; the deferred cleanup in Run must still
	// have called Close on the opened transport.
	if !transport.opened {
		t.Fatalf("transport was never opened")
	}
	if !transport.closed {
		t.Errorf("transport was not closed after a failed Run")
	}
}

func TestNewRejectsInvalidSetup(t *testing.T) {
	bad := testSetup()
	bad.Width = 0
	transport := &fakeTransport{}
	var sink bytes.Buffer

	if _, err := New(bad, transport, &sink, nil, nil); err == nil {
		t.Fatalf("New() error = nil, want invalid-argument error for zero width")
	}
}

func TestNewRejectsNilTransportAndSink(t *testing.T) {
	if _, err := New(testSetup(), nil, &bytes.Buffer{}, nil, nil); err == nil {
		t.Fatalf("New() with nil transport: error = nil, want error")
	}
	if _, err := New(testSetup(), &fakeTransport{}, nil, nil, nil); err == nil {
		t.Fatalf("New() with nil sink: error = nil, want error")
	}
}
