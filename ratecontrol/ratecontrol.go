/*
DESCRIPTION
  ratecontrol.go implements the closed-loop bit-rate controller: initial QP
  estimation, per-frame QP update, and checkpoint-ladder preparation used by
  the hardware for in-frame QP adjustment.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package ratecontrol implements a per-GOP bit-budget controller for a
// stateless hardware H.264 encoder: it produces a quantisation parameter
// for each upcoming frame and, once enough statistics are available,
// an in-frame checkpoint ladder the hardware consults to adjust quality
// mid-frame.
package ratecontrol

// Setup carries the immutable per-session configuration the controller
// needs, mirroring the subset of the encoder setup relevant to rate
// control.
type Setup struct {
	WidthMBs, HeightMBs int
	FPSNum, FPSDen      uint
	Bitrate             uint64 // bits per second
	GOPSize             int
	QPIntraDelta        int
	QPMin, QPMax        int
}

// CheckpointCount is the maximum number of in-frame checkpoints the ladder
// may contain (see Controller.CPCount).
const CheckpointCount = 10

// qpDeltaLadder is the fixed checkpoint QP-delta ladder applied by the
// hardware at each checkpoint, from the largest QP decrease (spend more
// bits) to the largest QP increase (spend fewer bits).
var qpDeltaLadder = [7]int32{-3, -2, -1, 0, 1, 2, 3}

// estimationTable and estimationQP implement the initial-QP lookup: the
// smallest index i for which estimationTable[i] >= e yields QP
// estimationQP[i].
var (
	estimationTable = [11]int64{27, 44, 72, 119, 192, 314, 453, 653, 952, 1395, 0xFFFFFFFF}
	estimationQP    = [11]int{51, 47, 43, 39, 35, 31, 27, 23, 19, 15, 11}
)

// Controller is the per-session rate-control state machine described by
// SPEC_FULL.md §4.3. The zero value is not usable; construct with New and
// initialise with Setup.
type Controller struct {
	setup Setup

	mbCount       int64
	bitsPerFrame  int64
	bitsPerGOP    int64
	cpCount       int
	cpDistanceMBs int64
	rlcMax        int64

	qp                 int
	qpSum              int64
	bitsLeft           int64
	bitsTarget         int64
	gopIndex           int
	gopLeft            int
	bitsPerRLCUpscaled int64
	qpIntraPrivilege   bool
	intraRequest       bool

	cpEnabled     bool
	cpTarget      [CheckpointCount]int64
	cpTargetError [6]int64
	cpQPDelta     [7]int32
}

// New returns a Controller ready for Setup to be called.
func New() *Controller {
	return &Controller{}
}

// Setup (re)initialises all rate-control state for a new session, per
// SPEC_FULL.md §4.3 "setup". It forces an IDR as the first frame.
func (c *Controller) Setup(s Setup) {
	*c = Controller{setup: s}

	c.mbCount = int64(s.WidthMBs) * int64(s.HeightMBs)
	c.rlcMax = c.mbCount * 384

	c.bitsPerFrame = int64(s.Bitrate) * int64(s.FPSDen) / int64(s.FPSNum)
	c.bitsPerGOP = c.bitsPerFrame * int64(s.GOPSize)

	c.intraRequest = true

	c.cpCount = s.HeightMBs - 1
	if c.cpCount > CheckpointCount {
		c.cpCount = CheckpointCount
	}
	if c.cpCount < 0 {
		c.cpCount = 0
	}
	c.cpDistanceMBs = c.mbCount / int64(c.cpCount+1)

	c.qp = clamp(c.initialQP(), s.QPMin, s.QPMax)
}

// initialQP implements the macroblock-count-driven initial QP estimator of
// SPEC_FULL.md §4.3. All intermediate products use int64 to avoid overflow,
// as the reference implementation requires.
func (c *Controller) initialQP() int {
	if c.bitsPerFrame > 1_000_000 {
		return c.setup.QPMin
	}

	pixels := int64(256) * int64(c.setup.WidthMBs) * int64(c.setup.HeightMBs)
	pixelsDown := pixels >> 8

	e := c.bitsPerFrame >> 5
	e = e * (pixelsDown + 250)
	e = e / (350 + 3*pixelsDown/4)
	e = 8000 * e / (pixelsDown << 6)

	for i, t := range estimationTable {
		if t >= e {
			return estimationQP[i]
		}
	}
	return estimationQP[len(estimationQP)-1]
}

// QP returns the quantisation parameter computed by the most recent Setup,
// Step or Feedback call.
func (c *Controller) QP() int { return c.qp }

// BitsTarget returns the bit budget computed for the frame currently
// prepared by the most recent Step call.
func (c *Controller) BitsTarget() int64 { return c.bitsTarget }

// CPEnabled reports whether the checkpoint ladder prepared by the most
// recent Step call should be used by this frame.
func (c *Controller) CPEnabled() bool { return c.cpEnabled }

// CPCount returns the number of active checkpoints.
func (c *Controller) CPCount() int { return c.cpCount }

// CPDistanceMBs returns the macroblock count between checkpoints.
func (c *Controller) CPDistanceMBs() int64 { return c.cpDistanceMBs }

// CPTarget returns the checkpoint coefficient-count targets prepared by the
// most recent Step call. The returned slice is only meaningful up to
// CPCount() elements and aliases the Controller's internal state.
func (c *Controller) CPTarget() []int64 { return c.cpTarget[:c.cpCount] }

// CPTargetError returns the 6-entry checkpoint error ladder.
func (c *Controller) CPTargetError() [6]int64 { return c.cpTargetError }

// CPQPDelta returns the 7-entry checkpoint QP-delta ladder.
func (c *Controller) CPQPDelta() [7]int32 { return c.cpQPDelta }

// IntraRequest forces the next Step to behave as a GOP start, requesting an
// IDR frame.
func (c *Controller) IntraRequest() {
	c.intraRequest = true
}

// Step prepares rate-control parameters for the next frame to be submitted,
// per SPEC_FULL.md §4.3 "step".
func (c *Controller) Step() {
	gopStart := c.gopIndex == 0 || c.intraRequest

	switch {
	case gopStart:
		c.gopLeft = c.setup.GOPSize
		if c.qpSum > 0 && !c.intraRequest {
			c.qp = int(c.qpSum / int64(c.setup.GOPSize))
		}
		c.qpSum = 0
		c.qp = maxInt(0, c.qp-c.setup.QPIntraDelta)
		c.qpIntraPrivilege = true
		c.bitsLeft += c.bitsPerGOP
		c.bitsTarget = c.bitsPerFrame
		c.intraRequest = false
	case c.bitsLeft == 0:
		c.bitsTarget = 0
	default:
		c.bitsTarget = c.bitsLeft / int64(c.gopLeft)
		if c.bitsTarget > 2*c.bitsPerFrame/3 {
			c.bitsTarget = c.bitsPerFrame
		}
	}

	c.gopLeft--
	c.prepareCheckpoints(gopStart)

	c.gopIndex = (c.gopIndex + 1) % c.setup.GOPSize
}

// prepareCheckpoints implements SPEC_FULL.md §4.3 "prepare_checkpoints".
func (c *Controller) prepareCheckpoints(gopStart bool) {
	lastUnderBudget := c.gopLeft == 0 && c.bitsTarget < c.bitsPerFrame
	if c.bitsPerRLCUpscaled == 0 || gopStart || lastUnderBudget {
		c.cpEnabled = false
		return
	}

	rlcTarget := c.bitsTarget * 256 / c.bitsPerRLCUpscaled
	if rlcTarget > c.rlcMax {
		rlcTarget = c.rlcMax
	}

	for i := 0; i < c.cpCount; i++ {
		c.cpTarget[i] = ((int64(i+1)*rlcTarget*c.cpDistanceMBs)/c.mbCount + 31) / 32
	}

	errorBase := rlcTarget * c.cpDistanceMBs / c.mbCount / 4

	c.cpQPDelta = qpDeltaLadder
	c.cpTargetError = [6]int64{
		-3 * errorBase / 4,
		-2 * errorBase / 4,
		-1 * errorBase / 4,
		1 * errorBase / 4,
		2 * errorBase / 4,
		3 * errorBase / 4,
	}

	c.cpEnabled = true
}

// Feedback applies the hardware's per-frame statistics to the controller,
// per SPEC_FULL.md §4.3 "feedback". bytesUsed is the size of the coded
// slice; rlcCount and qpSum are summed over all macroblocks of the frame.
func (c *Controller) Feedback(bytesUsed int, rlcCount int64, qpSum int64) {
	bitsUsed := int64(bytesUsed) * 8
	qpAvg := qpSum / c.mbCount
	c.qpSum += qpAvg

	if rlcCount != 0 {
		c.bitsPerRLCUpscaled = bitsUsed * 256 / rlcCount
	}

	if c.qpIntraPrivilege {
		c.qp += c.setup.QPIntraDelta
		c.qpIntraPrivilege = false
	}

	switch {
	case c.bitsLeft == 0 || bitsUsed >= c.bitsLeft:
		c.bitsLeft = 0
		c.qp += 2
	case bitsUsed < 7*c.bitsTarget/8 && c.qp > 0:
		c.qp--
	case bitsUsed > 9*c.bitsTarget/8:
		c.qp++
	}

	c.qp = clamp(c.qp, c.setup.QPMin, c.setup.QPMax)

	if c.bitsLeft > 0 {
		c.bitsLeft -= bitsUsed
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
