package mlmath

import (
	"errors"
	"math"
	"testing"
)

func TestPositionRoundTrip(t *testing.T) {
	b := EncodeVec3(NewVec3(0.0, 0.0, -5.0))
	if len(b) != 12 {
		t.Fatalf("encoded length = %d, expected 12", len(b))
	}
	v, err := DecodeVec3(b)
	if err != nil {
		t.Fatalf("DecodeVec3() failed: %v", err)
	}
	if !v.Compare(NewVec3(0, 0, -5), 1e-6) {
		t.Errorf("decoded %+v, expected {0 0 -5}", v)
	}
}

func TestEncodingIsBigEndian(t *testing.T) {
	b := EncodeVec4(NewVec4(1, 0, 0, -2))
	// 1.0f = 0x3F800000, -2.0f = 0xC0000000
	expected := []byte{
		0x3F, 0x80, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0xC0, 0x00, 0x00, 0x00,
	}
	if string(b) != string(expected) {
		t.Errorf("EncodeVec4() = % x, expected % x", b, expected)
	}
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	tests := []struct {
		name string
		fn   func() error
	}{
		{"vec3 short", func() error { _, err := DecodeVec3(make([]byte, 11)); return err }},
		{"vec3 long", func() error { _, err := DecodeVec3(make([]byte, 16)); return err }},
		{"vec4 short", func() error { _, err := DecodeVec4(make([]byte, 12)); return err }},
		{"vec4 nil", func() error { _, err := DecodeVec4(nil); return err }},
		{"two floats", func() error { _, err := EncodeFloats([]float32{1, 2}); return err }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.fn(); !errors.Is(err, ErrPropertyEncoding) {
				t.Errorf("error = %v, expected ErrPropertyEncoding", err)
			}
		})
	}
}

func TestQuatFromAxisAngle(t *testing.T) {
	q := NewQuatFromAxisAngle(NewVec3(0, 2, 0), math.Pi/2)
	half := float32(math.Sqrt2 / 2)
	if !Vec4(q).Compare(NewVec4(0, half, 0, half), 1e-6) {
		t.Errorf("quat = %+v, expected {0 %f 0 %f}", q, half, half)
	}

	// Two quarter turns make a half turn around Y.
	h := q.Mul(q).Normalize()
	if !Vec4(h).Compare(NewVec4(0, 1, 0, 0), 1e-6) {
		t.Errorf("q*q = %+v, expected {0 1 0 0}", h)
	}
	if id := NewQuatIdentity().Mul(q); !Vec4(id).Compare(Vec4(q), 1e-6) {
		t.Errorf("identity*q = %+v, expected %+v", id, q)
	}
}
