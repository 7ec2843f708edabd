/*
DESCRIPTION
  h264param.go models the H.264 sequence and picture parameter sets the
  encoder emits once per session, and writes their RBSP syntax.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package h264param models H.264 sequence and picture parameter sets and
// writes their RBSP syntax ahead of NAL packing.
package h264param

import (
	"github.com/pkg/errors"

	"github.com/ausocean/h264enc/bitstream"
)

// NAL unit types used by the parameter-set and slice NAL units this package
// and its callers emit.
const (
	NALUnitTypeNonIDRSlice = 1
	NALUnitTypeIDRSlice    = 5
	NALUnitTypeSPS         = 7
	NALUnitTypePPS         = 8
)

// RefIDC is the nal_ref_idc value this package always writes for SPS/PPS:
// parameter sets are always reference data.
const RefIDC = 3

// high4ChromaFormatProfiles lists the profile_idc values for which SPS
// carries the chroma_format_idc/bit_depth/scaling-matrix fields, per the
// SPS syntax table.
var high4ChromaFormatProfiles = map[uint8]bool{
	100: true, 110: true, 122: true, 244: true, 44: true,
	83: true, 86: true, 118: true, 128: true, 138: true, 139: true, 134: true, 135: true,
}

// SPS is the subset of sequence-parameter-set fields a stateless baseline/
// main-profile hardware encoder needs to populate, named after the syntax
// elements of the H.264 standard.
type SPS struct {
	// profile_idc and level_idc identify the profile and level this stream
	// conforms to.
	ProfileIDC uint8
	LevelIDC   uint8

	// The constraint_setN_flag flags.
	ConstraintSet0 bool
	ConstraintSet1 bool
	ConstraintSet2 bool

	SeqParameterSetID uint32

	// Only meaningful (and only written) when ProfileIDC is in
	// high4ChromaFormatProfiles.
	ChromaFormatIDC      uint32
	BitDepthLumaMinus8   uint32
	BitDepthChromaMinus8 uint32

	Log2MaxFrameNumMinus4        uint32
	PicOrderCountType            uint32
	Log2MaxPicOrderCntLSBMinus4  uint32 // written only when PicOrderCountType == 0
	MaxNumRefFrames              uint32
	PicWidthInMBsMinus1          uint32
	PicHeightInMapUnitsMinus1    uint32
	Direct8x8InferenceFlag       bool

	// Width/Height are the true pixel dimensions, used only to derive the
	// frame-cropping offsets when the macroblock grid overhangs them.
	Width, Height uint32
}

// NeedsCropping reports whether the configured pixel dimensions leave a
// partial macroblock at the right or bottom edge, requiring a
// frame_cropping syntax block.
func (s *SPS) NeedsCropping() bool {
	return (s.PicWidthInMBsMinus1+1)*16 != s.Width || (s.PicHeightInMapUnitsMinus1+1)*16 != s.Height
}

// Write emits the SPS NAL header and RBSP syntax to w, which must be freshly
// Reset (or new). It does not byte-align or NAL-pack the result; callers
// pass w to nal.Pack once all parameter sets sharing a Writer are written,
// or Reset between parameter sets written to the same Writer.
func (s *SPS) Write(w *bitstream.Writer) error {
	writes := []func() error{
		func() error { return w.AppendBits(0, 1) },                    // forbidden_zero_bit
		func() error { return w.AppendBits(RefIDC, 2) },                // nal_ref_idc
		func() error { return w.AppendBits(NALUnitTypeSPS, 5) },        // nal_unit_type
		func() error { return w.AppendBits(uint32(s.ProfileIDC), 8) },  // profile_idc
		func() error { return w.AppendBits(b2u(s.ConstraintSet0), 1) },
		func() error { return w.AppendBits(b2u(s.ConstraintSet1), 1) },
		func() error { return w.AppendBits(b2u(s.ConstraintSet2), 1) },
		func() error { return w.AppendBits(0, 5) }, // constraint_set3..5_flag + reserved_zero_2bits
		func() error { return w.AppendBits(uint32(s.LevelIDC), 8) },
		func() error { return w.AppendUE(s.SeqParameterSetID) },
	}
	for _, f := range writes {
		if err := f(); err != nil {
			return errors.Wrap(err, "h264param: writing SPS header")
		}
	}

	if high4ChromaFormatProfiles[s.ProfileIDC] {
		if err := w.AppendUE(s.ChromaFormatIDC); err != nil {
			return errors.Wrap(err, "h264param: writing chroma_format_idc")
		}
		if err := w.AppendUE(s.BitDepthLumaMinus8); err != nil {
			return errors.Wrap(err, "h264param: writing bit_depth_luma_minus8")
		}
		if err := w.AppendUE(s.BitDepthChromaMinus8); err != nil {
			return errors.Wrap(err, "h264param: writing bit_depth_chroma_minus8")
		}
		if err := w.AppendBits(0, 1); err != nil { // qpprime_y_zero_transform_bypass_flag
			return errors.Wrap(err, "h264param: writing qpprime flag")
		}
		if err := w.AppendBits(0, 1); err != nil { // seq_scaling_matrix_present_flag
			return errors.Wrap(err, "h264param: writing scaling matrix flag")
		}
	}

	if err := w.AppendUE(s.Log2MaxFrameNumMinus4); err != nil {
		return errors.Wrap(err, "h264param: writing log2_max_frame_num_minus4")
	}
	if err := w.AppendUE(s.PicOrderCountType); err != nil {
		return errors.Wrap(err, "h264param: writing pic_order_cnt_type")
	}
	if s.PicOrderCountType == 0 {
		if err := w.AppendUE(s.Log2MaxPicOrderCntLSBMinus4); err != nil {
			return errors.Wrap(err, "h264param: writing log2_max_pic_order_cnt_lsb_minus4")
		}
	}
	if err := w.AppendUE(s.MaxNumRefFrames); err != nil {
		return errors.Wrap(err, "h264param: writing max_num_ref_frames")
	}
	if err := w.AppendBits(0, 1); err != nil { // gaps_in_frame_num_value_allowed_flag
		return errors.Wrap(err, "h264param: writing gaps_in_frame_num flag")
	}
	if err := w.AppendUE(s.PicWidthInMBsMinus1); err != nil {
		return errors.Wrap(err, "h264param: writing pic_width_in_mbs_minus1")
	}
	if err := w.AppendUE(s.PicHeightInMapUnitsMinus1); err != nil {
		return errors.Wrap(err, "h264param: writing pic_height_in_map_units_minus1")
	}
	if err := w.AppendBits(1, 1); err != nil { // frame_mbs_only_flag
		return errors.Wrap(err, "h264param: writing frame_mbs_only_flag")
	}
	if err := w.AppendBits(b2u(s.Direct8x8InferenceFlag), 1); err != nil {
		return errors.Wrap(err, "h264param: writing direct_8x8_inference_flag")
	}

	cropping := s.NeedsCropping()
	if err := w.AppendBits(b2u(cropping), 1); err != nil {
		return errors.Wrap(err, "h264param: writing frame_cropping_flag")
	}
	if cropping {
		right := ((s.PicWidthInMBsMinus1+1)*16 - s.Width) / 2
		bottom := ((s.PicHeightInMapUnitsMinus1+1)*16 - s.Height) / 2
		if err := w.AppendUE(0); err != nil { // frame_crop_left_offset
			return errors.Wrap(err, "h264param: writing frame_crop_left_offset")
		}
		if err := w.AppendUE(right); err != nil {
			return errors.Wrap(err, "h264param: writing frame_crop_right_offset")
		}
		if err := w.AppendUE(0); err != nil { // frame_crop_top_offset
			return errors.Wrap(err, "h264param: writing frame_crop_top_offset")
		}
		if err := w.AppendUE(bottom); err != nil {
			return errors.Wrap(err, "h264param: writing frame_crop_bottom_offset")
		}
	}

	if err := w.AppendBits(0, 1); err != nil { // vui_parameters_present_flag
		return errors.Wrap(err, "h264param: writing vui_parameters_present_flag")
	}
	return errors.Wrap(w.AppendBits(1, 1), "h264param: writing rbsp_stop_one_bit")
}

// PPS is the subset of picture-parameter-set fields a stateless baseline/
// main-profile hardware encoder needs to populate.
type PPS struct {
	PicParameterSetID uint32
	SeqParameterSetID uint32

	EntropyCodingModeFlag bool

	NumSliceGroupsMinus1           uint32
	NumRefIdxL0DefaultActiveMinus1 uint32
	NumRefIdxL1DefaultActiveMinus1 uint32

	WeightedBipredIDC uint32

	PicInitQPMinus26     int32
	PicInitQSMinus26     int32
	ChromaQPIndexOffset  int32

	ConstrainedIntraPredFlag bool
}

// Write emits the PPS NAL header and RBSP syntax to w.
func (p *PPS) Write(w *bitstream.Writer) error {
	if err := w.AppendBits(0, 1); err != nil { // forbidden_zero_bit
		return errors.Wrap(err, "h264param: writing PPS header")
	}
	if err := w.AppendBits(RefIDC, 2); err != nil {
		return errors.Wrap(err, "h264param: writing nal_ref_idc")
	}
	if err := w.AppendBits(NALUnitTypePPS, 5); err != nil {
		return errors.Wrap(err, "h264param: writing nal_unit_type")
	}
	if err := w.AppendUE(p.PicParameterSetID); err != nil {
		return errors.Wrap(err, "h264param: writing pic_parameter_set_id")
	}
	if err := w.AppendUE(p.SeqParameterSetID); err != nil {
		return errors.Wrap(err, "h264param: writing seq_parameter_set_id")
	}
	if err := w.AppendBits(b2u(p.EntropyCodingModeFlag), 1); err != nil {
		return errors.Wrap(err, "h264param: writing entropy_coding_mode_flag")
	}
	if err := w.AppendBits(0, 1); err != nil { // bottom_field_pic_order_in_frame_present_flag
		return errors.Wrap(err, "h264param: writing bottom_field flag")
	}
	if err := w.AppendUE(p.NumSliceGroupsMinus1); err != nil {
		return errors.Wrap(err, "h264param: writing num_slice_groups_minus1")
	}
	if err := w.AppendUE(p.NumRefIdxL0DefaultActiveMinus1); err != nil {
		return errors.Wrap(err, "h264param: writing num_ref_idx_l0_default_active_minus1")
	}
	if err := w.AppendUE(p.NumRefIdxL1DefaultActiveMinus1); err != nil {
		return errors.Wrap(err, "h264param: writing num_ref_idx_l1_default_active_minus1")
	}
	if err := w.AppendBits(0, 1); err != nil { // weighted_pred_flag
		return errors.Wrap(err, "h264param: writing weighted_pred_flag")
	}
	if err := w.AppendBits(p.WeightedBipredIDC, 2); err != nil {
		return errors.Wrap(err, "h264param: writing weighted_bipred_idc")
	}
	if err := w.AppendSE(p.PicInitQPMinus26); err != nil {
		return errors.Wrap(err, "h264param: writing pic_init_qp_minus26")
	}
	if err := w.AppendSE(p.PicInitQSMinus26); err != nil {
		return errors.Wrap(err, "h264param: writing pic_init_qs_minus26")
	}
	if err := w.AppendSE(p.ChromaQPIndexOffset); err != nil {
		return errors.Wrap(err, "h264param: writing chroma_qp_index_offset")
	}
	if err := w.AppendBits(1, 1); err != nil { // deblocking_filter_control_present_flag
		return errors.Wrap(err, "h264param: writing deblocking_filter_control_present_flag")
	}
	if err := w.AppendBits(b2u(p.ConstrainedIntraPredFlag), 1); err != nil {
		return errors.Wrap(err, "h264param: writing constrained_intra_pred_flag")
	}
	if err := w.AppendBits(0, 1); err != nil { // redundant_pic_cnt_present_flag
		return errors.Wrap(err, "h264param: writing redundant_pic_cnt_present_flag")
	}
	return errors.Wrap(w.AppendBits(1, 1), "h264param: writing rbsp_stop_one_bit")
}

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
