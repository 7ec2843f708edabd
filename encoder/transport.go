/*
DESCRIPTION
  transport.go declares Transport, the boundary this module requires of
  the external kernel memory-to-memory interface. No implementation of
  Transport lives in this module; the hardware driver and kernel ioctl
  marshalling are out of scope.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package encoder

import (
	"context"

	"github.com/ausocean/h264enc/h264param"
)

// SliceType identifies the coded-slice type a frame request asks the
// hardware to produce.
type SliceType uint8

const (
	SliceTypeP SliceType = iota
	SliceTypeI
)

// EncodeParams is the per-frame control block describing slice-level
// parameters, propagated from the PPS and the orchestrator's frame
// bookkeeping.
type EncodeParams struct {
	SliceType   SliceType
	FrameNum    uint32
	IDRPicID    uint16
	RefTimestamp int64

	EntropyCodingModeFlag    bool
	ConstrainedIntraPredFlag bool
}

// EncodeRC is the per-frame rate-control control block the orchestrator
// fills from the rate controller's Step output.
type EncodeRC struct {
	QP, QPMin, QPMax int32

	CPDistanceMBs int64
	CPTarget      []int64
	CPTargetError [6]int64
	CPQPDelta     [7]int32

	MADThreshold int32
	MADQPDelta   int32
}

// Request bundles everything the hardware needs to encode one frame,
// mirroring the fields a stateless V4L2 H.264 request would carry across
// its SPS/PPS/slice-params/decode-params controls.
type Request struct {
	InputSurface  int // input-surface buffer handle/index
	CaptureBuffer int // capture-buffer handle/index

	SPS *h264param.SPS
	PPS *h264param.PPS

	Params EncodeParams
	RC     EncodeRC
}

// Feedback is what the hardware reports once a submitted Request
// completes.
type Feedback struct {
	BytesUsed int
	RLCCount  int64
	QPSum     int64
}

// Transport is the boundary the encode orchestrator requires of the
// external kernel memory-to-memory interface. Implementations own the
// device file handle, buffer allocation, and ioctl marshalling; none of
// that is modelled here.
type Transport interface {
	// Open probes the transport, selecting a request-capable M2M queue
	// pair and confirming the capture side accepts an H.264 slice pixel
	// format. It returns encerr.ErrTransportFailure on failure.
	Open(ctx context.Context) error

	// ConfigureFormats sets the capture format to H.264 slice (sized to
	// admit at least minCaptureBytes per frame) and the output format to
	// an implementation-chosen YUV format at widthPx x heightPx.
	ConfigureFormats(ctx context.Context, widthPx, heightPx, minCaptureBytes int) error

	// RequestBuffers requests count I/O buffers on both the input and
	// capture sides, ring-indexed by frame.
	RequestBuffers(ctx context.Context, count int) error

	// Submit submits req for encoding and returns immediately; the caller
	// waits for completion with Wait.
	Submit(ctx context.Context, req *Request) error

	// Wait blocks, bounded by ctx's deadline, until the most recently
	// submitted request completes, then returns its feedback and the
	// encoded bytes written into the capture buffer.
	Wait(ctx context.Context) (Feedback, []byte, error)

	// Close releases every transport resource. It is safe to call after a
	// failed Open.
	Close() error
}
