/*
DESCRIPTION
  config.go defines the flat, validated session-setup struct consumed by
  encoder.Session, following the Config-struct-plus-Validate shape used
  throughout this codebase's pipelines.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package config defines the session setup consumed by the encoder and
// rate controller, and validates it before a session is brought up.
package config

import (
	"time"

	"github.com/pkg/errors"

	"github.com/ausocean/h264enc/encerr"
)

// Setup holds the immutable parameters of one encode session. Width and
// Height are in pixels; the orchestrator derives macroblock-grid
// dimensions from them.
type Setup struct {
	// Width and Height are the frame dimensions in pixels.
	Width, Height uint

	// FPSNum and FPSDen express the frame rate as a rational FPSNum/FPSDen,
	// matching how bits_per_frame is derived from the bitrate.
	FPSNum, FPSDen uint

	// Bitrate is the target constant bitrate in bits per second.
	Bitrate uint64

	// GOPSize is the number of frames, including the leading IDR, between
	// forced intra refreshes.
	GOPSize int

	// QPMin and QPMax bound every quantisation parameter the rate
	// controller emits.
	QPMin, QPMax int

	// QPIntraDelta is subtracted from the carried-over QP at the start of
	// every GOP to privilege the IDR frame's quality, and added back once
	// feedback for that frame arrives.
	QPIntraDelta int

	// RequestTimeout bounds how long the orchestrator waits for a
	// submitted request to complete before aborting the session.
	// Defaults to 300ms if zero.
	RequestTimeout time.Duration

	// BufferCount is the ring length requested on both the input and
	// capture sides. Defaults to 3 if zero.
	BufferCount int
}

// defaultRequestTimeout is applied by Validate when Setup.RequestTimeout
// is unset.
const defaultRequestTimeout = 300 * time.Millisecond

// defaultBufferCount is applied by Validate when Setup.BufferCount is
// unset.
const defaultBufferCount = 3

// Validate checks s for internal consistency and fills in defaults for
// zero-valued optional fields. It does not contact the transport; that
// happens during session bring-up.
func (s *Setup) Validate() error {
	if s.Width == 0 || s.Height == 0 {
		return errors.Wrap(encerr.ErrInvalidArgument, "config: width and height must be non-zero")
	}
	if s.FPSNum == 0 {
		return errors.Wrap(encerr.ErrInvalidArgument, "config: fps numerator must be non-zero")
	}
	if s.Bitrate == 0 {
		return errors.Wrap(encerr.ErrInvalidArgument, "config: bitrate must be non-zero")
	}
	if s.GOPSize <= 0 {
		return errors.Wrap(encerr.ErrInvalidArgument, "config: gop size must be positive")
	}
	if s.QPMin < 0 || s.QPMax > 51 || s.QPMin > s.QPMax {
		return errors.Wrap(encerr.ErrInvalidArgument, "config: qp_min/qp_max must satisfy 0 <= qp_min <= qp_max <= 51")
	}
	if s.QPIntraDelta < 0 {
		return errors.Wrap(encerr.ErrInvalidArgument, "config: qp_intra_delta must be non-negative")
	}

	if s.RequestTimeout == 0 {
		s.RequestTimeout = defaultRequestTimeout
	}
	if s.BufferCount == 0 {
		s.BufferCount = defaultBufferCount
	}
	return nil
}

// WidthMBs returns the width of the macroblock grid, rounding up to admit
// a partial edge macroblock.
func (s *Setup) WidthMBs() int {
	return (int(s.Width) + 15) / 16
}

// HeightMBs returns the height of the macroblock grid, rounding up to
// admit a partial edge macroblock.
func (s *Setup) HeightMBs() int {
	return (int(s.Height) + 15) / 16
}
