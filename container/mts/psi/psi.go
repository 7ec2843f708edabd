/*
DESCRIPTION
  psi.go encodes MPEG-TS program specific information: the PAT and PMT
  tables tsmux emits ahead of every SPS NAL unit to describe the single
  fixed-PID H.264 stream produced by this module.

  Adapted from ausocean-av's container/mts/psi package: the descriptor
  patching machinery that package used for AusOcean's in-band time/location
  metadata (AddDescriptor, HasDescriptor, the PSIBytes byte-slice-editing
  helpers) has no role in a stream that carries nothing but coded video, so
  it has been dropped rather than carried as dead code.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package psi encodes MPEG-TS program specific information: the program
// association table (PAT) and program map table (PMT) sections tsmux
// writes ahead of every parameter-set NAL unit.
package psi

// PacketSize is the PSI section's capacity within a single 188-byte TS
// packet, excluding the 4-byte TS header.
const PacketSize = 184

// Lengths of section definitions.
const (
	ESSDataLen = 5
	DescDefLen = 2
	PMTDefLen  = 4
	PATLen     = 4
	TSSDefLen  = 5
)

// NewPATPSI returns a standard program association table (PAT) naming a
// single program whose map table lives at PID 0x1000.
func NewPATPSI() *PSI {
	return &PSI{
		PointerField:    0x00,
		TableID:         0x00,
		SyntaxIndicator: true,
		PrivateBit:      false,
		SectionLen:      0x0d,
		SyntaxSection: &SyntaxSection{
			TableIDExt:  0x01,
			Version:     0,
			CurrentNext: true,
			Section:     0,
			LastSection: 0,
			SpecificData: &PAT{
				Program:       0x01,
				ProgramMapPID: 0x1000,
			},
		},
	}
}

// NewPMTPSI returns a standard program map table (PMT) shell with a single
// elementary stream entry; callers fill in StreamType and PID before
// calling Bytes.
func NewPMTPSI() *PSI {
	return &PSI{
		PointerField:    0x00,
		TableID:         0x02,
		SyntaxIndicator: true,
		SectionLen:      0x12,
		SyntaxSection: &SyntaxSection{
			TableIDExt:  0x01,
			Version:     0,
			CurrentNext: true,
			Section:     0,
			LastSection: 0,
			SpecificData: &PMT{
				ProgramClockPID: 0x0100,
				ProgramInfoLen:  0,
				StreamSpecificData: &StreamSpecificData{
					StreamType:    0,
					PID:           0,
					StreamInfoLen: 0x00,
				},
			},
		},
	}
}

// PSI is a program specific information table: a PAT, PMT, or (not
// produced by this package) CAT section.
type PSI struct {
	PointerField    byte           // Pointer field.
	TableID         byte           // Table ID.
	SyntaxIndicator bool           // Section syntax indicator (1 for PAT, PMT, CAT).
	PrivateBit      bool           // Private bit (0 for PAT, PMT, CAT).
	SectionLen      uint16         // Section length.
	SyntaxSection   *SyntaxSection // Table syntax section.
	CRC             uint32         // crc32 of the table excluding pointer field and this trailing CRC.
}

// SyntaxSection is a PSI table's syntax section.
type SyntaxSection struct {
	TableIDExt   uint16       // Table ID extension.
	Version      byte         // Version number.
	CurrentNext  bool         // Current/next indicator.
	Section      byte         // Section number.
	LastSection  byte         // Last section number.
	SpecificData SpecificData // PAT or PMT specific data.
}

// SpecificData is implemented by PAT and PMT.
type SpecificData interface {
	Bytes() []byte
}

// PAT is a program association table's specific data.
type PAT struct {
	Program       uint16 // Program number.
	ProgramMapPID uint16 // Program map PID.
}

// PMT is a program map table's specific data.
type PMT struct {
	ProgramClockPID    uint16              // Program clock reference PID.
	ProgramInfoLen     uint16              // Program info length.
	Descriptors        []Descriptor        // Program descriptors.
	StreamSpecificData *StreamSpecificData // Elementary stream specific data.
}

// StreamSpecificData describes one elementary stream entry in a PMT.
type StreamSpecificData struct {
	StreamType    byte         // Stream type.
	PID           uint16       // Elementary PID.
	StreamInfoLen uint16       // Elementary stream info length.
	Descriptors   []Descriptor // Elementary stream descriptors.
}

// Descriptor is a tag-length-value descriptor attached to a PMT or one of
// its stream entries.
type Descriptor struct {
	Tag  byte   // Descriptor tag.
	Len  byte   // Descriptor length.
	Data []byte // Descriptor data.
}

// Bytes renders p, including its trailing CRC32.
func (p *PSI) Bytes() []byte {
	out := make([]byte, 4)
	out[0] = p.PointerField
	if p.PointerField != 0 {
		panic("psi: pointer filler bytes not supported")
	}
	out[1] = p.TableID
	out[2] = 0x80 | 0x30 | (0x03 & byte(p.SectionLen>>8))
	out[3] = byte(p.SectionLen)
	out = append(out, p.SyntaxSection.Bytes()...)
	out = AddCRC(out)
	return out
}

// Bytes renders t.
func (t *SyntaxSection) Bytes() []byte {
	out := make([]byte, TSSDefLen)
	out[0] = byte(t.TableIDExt >> 8)
	out[1] = byte(t.TableIDExt)
	out[2] = 0xc0 | (0x3e & (t.Version << 1)) | (0x01 & asByte(t.CurrentNext))
	out[3] = t.Section
	out[4] = t.LastSection
	out = append(out, t.SpecificData.Bytes()...)
	return out
}

// Bytes renders p.
func (p *PAT) Bytes() []byte {
	out := make([]byte, PATLen)
	out[0] = byte(p.Program >> 8)
	out[1] = byte(p.Program)
	out[2] = 0xe0 | (0x1f & byte(p.ProgramMapPID>>8))
	out[3] = byte(p.ProgramMapPID)
	return out
}

// Bytes renders p.
func (p *PMT) Bytes() []byte {
	out := make([]byte, PMTDefLen)
	out[0] = 0xe0 | (0x1f & byte(p.ProgramClockPID>>8))
	out[1] = byte(p.ProgramClockPID)
	out[2] = 0xf0 | (0x03 & byte(p.ProgramInfoLen>>8))
	out[3] = byte(p.ProgramInfoLen)
	for _, d := range p.Descriptors {
		out = append(out, d.Bytes()...)
	}
	out = append(out, p.StreamSpecificData.Bytes()...)
	return out
}

// Bytes renders d.
func (d *Descriptor) Bytes() []byte {
	out := make([]byte, DescDefLen)
	out[0] = d.Tag
	out[1] = d.Len
	out = append(out, d.Data...)
	return out
}

// Bytes renders e.
func (e *StreamSpecificData) Bytes() []byte {
	out := make([]byte, ESSDataLen)
	out[0] = e.StreamType
	out[1] = 0xe0 | (0x1f & byte(e.PID>>8))
	out[2] = byte(e.PID)
	out[3] = 0xf0 | (0x03 & byte(e.StreamInfoLen>>8))
	out[4] = byte(e.StreamInfoLen)
	for _, d := range e.Descriptors {
		out = append(out, d.Bytes()...)
	}
	return out
}

func asByte(b bool) byte {
	if b {
		return 0x01
	}
	return 0x00
}
