/*
AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.
*/

package h264param

import (
	"testing"

	"github.com/ausocean/h264enc/bitstream"
	"github.com/ausocean/h264enc/nal"
)

func baselineSPS() *SPS {
	return &SPS{
		ProfileIDC:                 100,
		LevelIDC:                   31,
		ConstraintSet0:             true,
		ConstraintSet1:             true,
		SeqParameterSetID:          0,
		ChromaFormatIDC:            1,
		Log2MaxFrameNumMinus4:      12,
		PicOrderCountType:          2,
		MaxNumRefFrames:            1,
		PicWidthInMBsMinus1:        79,
		PicHeightInMapUnitsMinus1:  44,
		Direct8x8InferenceFlag:     true,
		Width:                      1280,
		Height:                     720,
	}
}

func TestSPSWriteProducesValidNAL(t *testing.T) {
	s := baselineSPS()
	w := bitstream.New(16)
	if err := s.Write(w); err != nil {
		t.Fatalf("Write: unexpected error: %v", err)
	}
	packed, err := nal.Pack(w)
	if err != nil {
		t.Fatalf("nal.Pack: unexpected error: %v", err)
	}
	if len(packed) < 5 {
		t.Fatalf("packed NAL too short: %d bytes", len(packed))
	}
	for i, b := range nal.StartCode {
		if packed[i] != b {
			t.Fatalf("packed[%d] = %#02x, want start code byte %#02x", i, packed[i], b)
		}
	}
	header := packed[4]
	if forbidden := header >> 7; forbidden != 0 {
		t.Errorf("forbidden_zero_bit = %d, want 0", forbidden)
	}
	if refIDC := (header >> 5) & 0x3; refIDC != RefIDC {
		t.Errorf("nal_ref_idc = %d, want %d", refIDC, RefIDC)
	}
	if nalType := header & 0x1F; nalType != NALUnitTypeSPS {
		t.Errorf("nal_unit_type = %d, want %d", nalType, NALUnitTypeSPS)
	}
}

func TestSPSNoCroppingWhenAligned(t *testing.T) {
	s := baselineSPS()
	if s.NeedsCropping() {
		t.Errorf("NeedsCropping() = true for 1280x720 (16-aligned), want false")
	}
}

func TestSPSCroppingWhenUnaligned(t *testing.T) {
	s := baselineSPS()
	s.Height = 718
	if !s.NeedsCropping() {
		t.Errorf("NeedsCropping() = false for 718 height, want true")
	}
	w := bitstream.New(16)
	if err := s.Write(w); err != nil {
		t.Fatalf("Write: unexpected error: %v", err)
	}
}

func TestPPSWriteProducesValidNAL(t *testing.T) {
	p := &PPS{
		PicParameterSetID:     0,
		SeqParameterSetID:     0,
		EntropyCodingModeFlag: true,
		WeightedBipredIDC:     0,
		PicInitQPMinus26:      20 - 26,
		ChromaQPIndexOffset:   4,
	}
	w := bitstream.New(4)
	if err := p.Write(w); err != nil {
		t.Fatalf("Write: unexpected error: %v", err)
	}
	packed, err := nal.Pack(w)
	if err != nil {
		t.Fatalf("nal.Pack: unexpected error: %v", err)
	}
	header := packed[4]
	if nalType := header & 0x1F; nalType != NALUnitTypePPS {
		t.Errorf("nal_unit_type = %d, want %d", nalType, NALUnitTypePPS)
	}
}
