/*
AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.
*/

package ratecontrol

import "testing"

func testSetup() Setup {
	return Setup{
		WidthMBs:     80,
		HeightMBs:    45,
		FPSNum:       30,
		FPSDen:       1,
		Bitrate:      2_000_000,
		GOPSize:      30,
		QPIntraDelta: 3,
		QPMin:        10,
		QPMax:        51,
	}
}

func TestSetupInitialQPLowBitrate(t *testing.T) {
	c := New()
	c.Setup(Setup{
		WidthMBs: 40, HeightMBs: 30,
		FPSNum: 25, FPSDen: 1,
		Bitrate: 50_000,
		GOPSize: 10,
		QPMin:   11, QPMax: 51,
	})
	if got, want := c.QP(), 51; got != want {
		t.Errorf("QP() = %d, want %d (ultra-low bitrate should land at qp_max)", got, want)
	}
}

func TestSetupInitialQPHighBitrate(t *testing.T) {
	c := New()
	c.Setup(Setup{
		WidthMBs: 40, HeightMBs: 30,
		FPSNum: 1, FPSDen: 1,
		Bitrate: 2_000_000,
		GOPSize: 10,
		QPMin:   11, QPMax: 51,
	})
	if got, want := c.QP(), 11; got != want {
		t.Errorf("QP() = %d, want %d (bits_per_frame > 1_000_000 should floor at qp_min)", got, want)
	}
}

func TestSetupClampsInitialQP(t *testing.T) {
	c := New()
	c.Setup(testSetup())
	qp := c.QP()
	if qp < 10 || qp > 51 {
		t.Fatalf("QP() = %d, want in [10, 51]", qp)
	}
}

func TestSetupForcesIntraOnFirstStep(t *testing.T) {
	c := New()
	c.Setup(testSetup())
	c.Step()
	if c.BitsTarget() == 0 {
		t.Errorf("BitsTarget() = 0 on first step, want a GOP-start allocation")
	}
	if c.CPEnabled() {
		t.Errorf("CPEnabled() = true on the IDR frame, want false")
	}
}

func TestFeedbackClampsQPToRange(t *testing.T) {
	s := testSetup()
	c := New()
	c.Setup(s)
	c.Step()

	// Wildly overshoot the bit target on every frame of the GOP; QP must
	// never exceed QPMax.
	for i := 0; i < s.GOPSize*2; i++ {
		c.Step()
		c.Feedback(1_000_000, 10, 51*int64(s.WidthMBs*s.HeightMBs))
		if qp := c.QP(); qp > s.QPMax {
			t.Fatalf("iteration %d: QP() = %d, want <= %d", i, qp, s.QPMax)
		}
	}
}

func TestFeedbackClampsQPFloor(t *testing.T) {
	s := testSetup()
	c := New()
	c.Setup(s)
	c.Step()

	for i := 0; i < s.GOPSize*2; i++ {
		c.Step()
		c.Feedback(1, int64(s.WidthMBs*s.HeightMBs)*384, 10*int64(s.WidthMBs*s.HeightMBs))
		if qp := c.QP(); qp < s.QPMin {
			t.Fatalf("iteration %d: QP() = %d, want >= %d", i, qp, s.QPMin)
		}
	}
}

func TestCheckpointLadderShape(t *testing.T) {
	s := testSetup()
	c := New()
	c.Setup(s)

	c.Step()
	c.Feedback(10_000, int64(s.WidthMBs*s.HeightMBs)*20, 25*int64(s.WidthMBs*s.HeightMBs))

	c.Step()
	if !c.CPEnabled() {
		t.Fatalf("CPEnabled() = false on a mid-GOP frame with prior feedback, want true")
	}
	wantCP := s.HeightMBs - 1
	if wantCP > CheckpointCount {
		wantCP = CheckpointCount
	}
	if got, want := c.CPCount(), wantCP; got != want {
		t.Errorf("CPCount() = %d, want %d", got, want)
	}
	if got := len(c.CPTarget()); got != c.CPCount() {
		t.Errorf("len(CPTarget()) = %d, want %d", got, c.CPCount())
	}
	targets := c.CPTarget()
	for i := 1; i < len(targets); i++ {
		if targets[i] < targets[i-1] {
			t.Errorf("CPTarget()[%d] = %d < CPTarget()[%d] = %d, want non-decreasing", i, targets[i], i-1, targets[i-1])
		}
	}
}

func TestIntraRequestForcesGOPStart(t *testing.T) {
	s := testSetup()
	c := New()
	c.Setup(s)
	c.Step()
	c.Feedback(10_000, int64(s.WidthMBs*s.HeightMBs)*20, 25*int64(s.WidthMBs*s.HeightMBs))

	c.IntraRequest()
	c.Step()
	if c.CPEnabled() {
		t.Errorf("CPEnabled() = true immediately after IntraRequest, want false")
	}
}
