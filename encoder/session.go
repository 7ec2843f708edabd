/*
DESCRIPTION
  session.go implements Session, the frame-loop orchestrator that owns
  transport bring-up, parameter-set emission, and the per-frame
  rate-control/transport/feedback cycle described by SPEC_FULL.md §4.4.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package encoder owns the encode session's frame loop: it advances the
// rate controller, fills per-frame H.264 parameters, submits requests to
// the external Transport, and emits the resulting Annex-B stream.
package encoder

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/ausocean/h264enc/bitstream"
	"github.com/ausocean/h264enc/config"
	"github.com/ausocean/h264enc/encerr"
	"github.com/ausocean/h264enc/h264param"
	"github.com/ausocean/h264enc/nal"
	"github.com/ausocean/h264enc/ratecontrol"
	"github.com/ausocean/h264enc/telemetry"
)

// Fixed parameter-set field values SPEC_FULL.md §4.4 mandates for a
// baseline/main-profile session against this hardware.
const (
	defaultProfileIDC          = 100
	defaultLevelIDC            = 31
	defaultChromaFormatIDC     = 1
	defaultMaxNumRefFrames     = 1
	defaultPicOrderCountType   = 2
	defaultLog2MaxFrameNumM4   = 12
	defaultChromaQPIndexOffset = 4
	defaultPicInitQPMinus26    = 20

	// minCaptureBufferBytes is the minimum per-frame capacity the capture
	// side must be configured to admit.
	minCaptureBufferBytes = 512 * 1024
)

// Logger is the narrow logging interface this package depends on,
// satisfied by github.com/ausocean/utils/logging.Logger.
type Logger interface {
	Debug(msg string, params ...interface{})
	Info(msg string, params ...interface{})
	Warning(msg string, params ...interface{})
	Error(msg string, params ...interface{})
}

// nopLogger discards everything; used when Session is constructed with a
// nil Logger.
type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{})   {}
func (nopLogger) Info(string, ...interface{})    {}
func (nopLogger) Warning(string, ...interface{}) {}
func (nopLogger) Error(string, ...interface{})   {}

// Session owns one encode session's transport handles, parameter sets,
// rate controller, and frame-loop bookkeeping. The zero value is not
// usable; construct with New.
type Session struct {
	setup     config.Setup
	transport Transport
	sink      io.Writer
	log       Logger
	telemetry telemetry.Reporter

	rc  *ratecontrol.Controller
	sps h264param.SPS
	pps h264param.PPS

	bw *bitstream.Writer

	// gopIndex mirrors rc's internal GOP-position counter so the frame
	// loop can choose slice types and detect GOP boundaries without
	// reaching into ratecontrol.Controller. It only stays in lockstep with rc
	// because nothing in this package calls IntraRequest mid-stream; if
	// that ever changes, rc's counter must become the single source of
	// truth and this field derived from it.
	gopIndex   int
	idrPicID   uint16
	frameNum   uint32
	frameNumMod uint32
	refTS      int64

	// bufIndex is the ring slot used for the next frame's input surface
	// and capture buffer, advanced once per frame modulo BufferCount.
	bufIndex int

	// gopCount counts completed GOPs; it is the GOPIndex of the next
	// telemetry record.
	gopCount int

	gopBitsUsed  int64
	gopQPSum     int64
	gopFrames    int
}

// New validates setup and returns a Session ready for Run. transport and
// sink must be non-nil; reporter may be nil to disable telemetry; log may
// be nil to discard all logging.
func New(setup config.Setup, transport Transport, sink io.Writer, reporter telemetry.Reporter, log Logger) (*Session, error) {
	if err := setup.Validate(); err != nil {
		return nil, errors.Wrap(err, "encoder: invalid setup")
	}
	if transport == nil {
		return nil, errors.Wrap(encerr.ErrInvalidArgument, "encoder: transport must not be nil")
	}
	if sink == nil {
		return nil, errors.Wrap(encerr.ErrInvalidArgument, "encoder: sink must not be nil")
	}
	if log == nil {
		log = nopLogger{}
	}

	return &Session{
		setup:       setup,
		transport:   transport,
		sink:        sink,
		log:         log,
		telemetry:   reporter,
		rc:          ratecontrol.New(),
		bw:          bitstream.New(64),
		frameNumMod: 1 << (defaultLog2MaxFrameNumM4 + 4),
	}, nil
}

// Run brings the session up (transport probe, format/buffer negotiation,
// parameter-set emission, rate-control setup) then encodes frameCount
// frames, aborting on the first transport error, timeout, or context
// cancellation. Every transport resource acquired is released before Run
// returns, on every exit path.
func (s *Session) Run(ctx context.Context, frameCount int) (err error) {
	if err := s.transport.Open(ctx); err != nil {
		return errors.Wrap(err, "encoder: opening transport")
	}
	defer func() {
		if cerr := s.transport.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "encoder: closing transport")
		}
	}()

	widthMBs, heightMBs := s.setup.WidthMBs(), s.setup.HeightMBs()

	if err := s.transport.ConfigureFormats(ctx, int(s.setup.Width), int(s.setup.Height), minCaptureBufferBytes); err != nil {
		return errors.Wrap(err, "encoder: configuring formats")
	}
	if err := s.transport.RequestBuffers(ctx, s.setup.BufferCount); err != nil {
		return errors.Wrap(err, "encoder: requesting buffers")
	}

	s.fillParameterSets(widthMBs, heightMBs)

	if err := s.emitParameterSets(); err != nil {
		return errors.Wrap(err, "encoder: emitting parameter sets")
	}

	s.rc.Setup(ratecontrol.Setup{
		WidthMBs:     widthMBs,
		HeightMBs:    heightMBs,
		FPSNum:       s.setup.FPSNum,
		FPSDen:       s.setup.FPSDen,
		Bitrate:      s.setup.Bitrate,
		GOPSize:      s.setup.GOPSize,
		QPIntraDelta: s.setup.QPIntraDelta,
		QPMin:        s.setup.QPMin,
		QPMax:        s.setup.QPMax,
	})

	for i := 0; i < frameCount; i++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "encoder: context cancelled")
		}
		if err := s.encodeFrame(ctx, widthMBs*heightMBs); err != nil {
			return errors.Wrap(err, "encoder: encoding frame")
		}
	}
	return nil
}

// fillParameterSets populates s.sps and s.pps per the fixed field values
// SPEC_FULL.md §4.4 mandates.
func (s *Session) fillParameterSets(widthMBs, heightMBs int) {
	s.sps = h264param.SPS{
		ProfileIDC:                 defaultProfileIDC,
		LevelIDC:                   defaultLevelIDC,
		ConstraintSet0:             true,
		ConstraintSet1:             true,
		ChromaFormatIDC:            defaultChromaFormatIDC,
		Log2MaxFrameNumMinus4:      defaultLog2MaxFrameNumM4,
		PicOrderCountType:          defaultPicOrderCountType,
		MaxNumRefFrames:            defaultMaxNumRefFrames,
		PicWidthInMBsMinus1:        uint32(widthMBs - 1),
		PicHeightInMapUnitsMinus1:  uint32(heightMBs - 1),
		Direct8x8InferenceFlag:     true,
		Width:                      uint32(s.setup.Width),
		Height:                     uint32(s.setup.Height),
	}
	s.pps = h264param.PPS{
		PicParameterSetID:     0,
		SeqParameterSetID:     0,
		EntropyCodingModeFlag: true,
		WeightedBipredIDC:     0,
		PicInitQPMinus26:      defaultPicInitQPMinus26,
		ChromaQPIndexOffset:   defaultChromaQPIndexOffset,
	}
}

// emitParameterSets writes the SPS then PPS NAL units to the output sink,
// per SPEC_FULL.md §4.4 step 5. Parameter-set emission is never retried:
// any error here aborts session bring-up.
func (s *Session) emitParameterSets() error {
	s.bw.Reset()
	if err := s.sps.Write(s.bw); err != nil {
		return errors.Wrap(err, "encoder: writing SPS syntax")
	}
	spsNAL, err := nal.Pack(s.bw)
	if err != nil {
		return errors.Wrap(err, "encoder: packing SPS NAL unit")
	}
	if _, err := s.sink.Write(spsNAL); err != nil {
		return errors.Wrap(err, "encoder: writing SPS to sink")
	}

	s.bw.Reset()
	if err := s.pps.Write(s.bw); err != nil {
		return errors.Wrap(err, "encoder: writing PPS syntax")
	}
	ppsNAL, err := nal.Pack(s.bw)
	if err != nil {
		return errors.Wrap(err, "encoder: packing PPS NAL unit")
	}
	if _, err := s.sink.Write(ppsNAL); err != nil {
		return errors.Wrap(err, "encoder: writing PPS to sink")
	}

	s.log.Debug("encoder: emitted parameter sets", "sps_bytes", len(spsNAL), "pps_bytes", len(ppsNAL))
	return nil
}

// encodeFrame runs one iteration of the per-frame cycle described by
// SPEC_FULL.md §4.4: slice typing, RC.step, transport submit/wait, sink
// write, and RC.feedback.
func (s *Session) encodeFrame(ctx context.Context, mbCount int) error {
	params := s.nextFrameParams()

	s.rc.Step()
	rc := EncodeRC{
		QP:            int32(s.rc.QP()),
		QPMin:         int32(s.setup.QPMin),
		QPMax:         int32(s.setup.QPMax),
		CPDistanceMBs: s.rc.CPDistanceMBs(),
	}
	if s.rc.CPEnabled() {
		rc.CPTarget = append([]int64(nil), s.rc.CPTarget()...)
		rc.CPTargetError = s.rc.CPTargetError()
		rc.CPQPDelta = s.rc.CPQPDelta()
	}

	req := &Request{
		InputSurface:  s.bufIndex,
		CaptureBuffer: s.bufIndex,
		SPS:           &s.sps,
		PPS:           &s.pps,
		Params:        params,
		RC:            rc,
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.setup.RequestTimeout)
	defer cancel()

	if err := s.transport.Submit(ctx, req); err != nil {
		return errors.Wrap(err, "encoder: submitting request")
	}
	feedback, coded, err := s.transport.Wait(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return errors.Wrap(encerr.ErrTimeout, "encoder: request did not complete in time")
		}
		return errors.Wrap(encerr.ErrTransportFailure, err.Error())
	}

	if _, err := s.sink.Write(coded); err != nil {
		return errors.Wrap(err, "encoder: writing coded slice to sink")
	}

	s.rc.Feedback(feedback.BytesUsed, feedback.RLCCount, feedback.QPSum)

	s.gopBitsUsed += int64(feedback.BytesUsed) * 8
	s.gopQPSum += feedback.QPSum / int64(mbCount)
	s.gopFrames++

	s.gopIndex = (s.gopIndex + 1) % s.setup.GOPSize
	s.bufIndex = (s.bufIndex + 1) % s.setup.BufferCount
	if s.gopIndex == 0 {
		s.reportTelemetry(ctx)
	}

	return nil
}

// nextFrameParams determines the slice type and frame-numbering fields
// for the frame about to be submitted, per SPEC_FULL.md §4.4 per-frame
// step 1-2.
func (s *Session) nextFrameParams() EncodeParams {
	var p EncodeParams
	if s.gopIndex == 0 {
		p.SliceType = SliceTypeI
		s.idrPicID++
		s.frameNum = 0
	} else {
		p.SliceType = SliceTypeP
		p.RefTimestamp = s.refTS
		s.frameNum = (s.frameNum + 1) % s.frameNumMod
	}
	p.FrameNum = s.frameNum
	p.IDRPicID = s.idrPicID
	p.EntropyCodingModeFlag = s.pps.EntropyCodingModeFlag
	p.ConstrainedIntraPredFlag = s.pps.ConstrainedIntraPredFlag

	s.refTS = time.Now().UnixNano()
	return p
}

// reportTelemetry emits a per-GOP summary and resets the accumulators,
// per SPEC_FULL.md §4.4 per-frame step 8. Reporting is best-effort: a
// failure is logged, never escalated to the encode loop.
func (s *Session) reportTelemetry(ctx context.Context) {
	defer func() {
		s.gopBitsUsed, s.gopQPSum, s.gopFrames = 0, 0, 0
		s.gopCount++
	}()

	if s.telemetry == nil || s.gopFrames == 0 {
		return
	}

	rec := telemetry.Record{
		GOPIndex:   s.gopCount,
		MeanQP:     float64(s.gopQPSum) / float64(s.gopFrames),
		BitsUsed:   s.gopBitsUsed,
		FrameCount: s.gopFrames,
		Timestamp:  time.Now().Unix(),
	}
	if err := s.telemetry.Report(ctx, rec); err != nil {
		s.log.Warning("encoder: telemetry report failed", "error", err)
	}
}
