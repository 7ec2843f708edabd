/*
DESCRIPTION
  encerr.go defines the sentinel error kinds shared across this module's
  packages, following the exported Err* sentinel convention.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package encerr defines the sentinel error kinds raised across the
// encoder session lifecycle. Callers match against them with errors.Is;
// call sites wrap them with github.com/pkg/errors for context.
package encerr

import "errors"

var (
	// ErrInvalidArgument indicates bad caller input: an oversized bit
	// width, an out-of-range Exp-Golomb value, or a malformed setup.
	ErrInvalidArgument = errors.New("encoder: invalid argument")

	// ErrOutOfMemory indicates an allocation failure.
	ErrOutOfMemory = errors.New("encoder: out of memory")

	// ErrTransportFailure indicates any failure reported by the external
	// kernel transport.
	ErrTransportFailure = errors.New("encoder: transport failure")

	// ErrTimeout indicates a request did not complete within its bound.
	ErrTimeout = errors.New("encoder: request timed out")

	// ErrNotReady indicates an operation was invoked in the wrong
	// lifecycle state, e.g. changing dimensions while a session is up.
	ErrNotReady = errors.New("encoder: not ready")
)
