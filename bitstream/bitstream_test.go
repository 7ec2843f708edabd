/*
AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.
*/

package bitstream

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAppendUE(t *testing.T) {
	tests := []struct {
		v    uint32
		want []byte
	}{
		{0, []byte{0b1_0000000}},
		{1, []byte{0b010_00000}},
		{2, []byte{0b011_00000}},
		{3, []byte{0b00100_000}},
		{4, []byte{0b00101_000}},
	}

	for _, test := range tests {
		w := New(4)
		if err := w.AppendUE(test.v); err != nil {
			t.Fatalf("AppendUE(%d): unexpected error: %v", test.v, err)
		}
		if diff := cmp.Diff(test.want, w.Bytes()); diff != "" {
			t.Errorf("AppendUE(%d): mismatch (-want +got):\n%s", test.v, diff)
		}
	}
}

func TestAppendUERejectsOutOfRange(t *testing.T) {
	w := New(4)
	if err := w.AppendUE(0x7FFFFFFF); err != ErrValueTooLarge {
		t.Errorf("AppendUE(2^31-1): got err %v, want ErrValueTooLarge", err)
	}
}

func TestAppendUEAcceptsBoundary(t *testing.T) {
	w := New(8)
	if err := w.AppendUE(0x7FFFFFFE); err != nil {
		t.Errorf("AppendUE(2^31-2): unexpected error: %v", err)
	}
}

func TestAppendBitsAcrossByteBoundary(t *testing.T) {
	w := New(4)
	if err := w.AppendBits(0b101, 3); err != nil {
		t.Fatal(err)
	}
	if err := w.AppendBits(0b11111, 5); err != nil {
		t.Fatal(err)
	}
	if err := w.AppendBits(0b1, 1); err != nil {
		t.Fatal(err)
	}
	want := []byte{0b10111111, 0b10000000}
	if diff := cmp.Diff(want, w.Bytes()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendBitsRejectsTooMany(t *testing.T) {
	w := New(4)
	if err := w.AppendBits(0, 33); err != ErrTooManyBits {
		t.Errorf("got err %v, want ErrTooManyBits", err)
	}
}

func TestAlignIsIdempotent(t *testing.T) {
	w := New(4)
	if err := w.AppendBits(0b1, 1); err != nil {
		t.Fatal(err)
	}
	if err := w.Align(); err != nil {
		t.Fatal(err)
	}
	if w.BitOffset() != 0 {
		t.Fatalf("BitOffset() = %d, want 0", w.BitOffset())
	}
	if err := w.Align(); err != nil {
		t.Fatal(err)
	}
	if got, want := w.Len(), 1; got != want {
		t.Errorf("Len() = %d, want %d (Align on an aligned writer must be a no-op)", got, want)
	}
}

func TestReset(t *testing.T) {
	w := New(4)
	if err := w.AppendBits(0xFF, 8); err != nil {
		t.Fatal(err)
	}
	w.Reset()
	if got, want := w.Len(), 0; got != want {
		t.Errorf("Len() after Reset = %d, want %d", got, want)
	}
	if got, want := w.BitOffset(), 0; got != want {
		t.Errorf("BitOffset() after Reset = %d, want %d", got, want)
	}
}
