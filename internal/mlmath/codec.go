package mlmath

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var ErrPropertyEncoding = errors.New("property encoding")

// Encoded sizes of the packed property values. Components are IEEE-754
// float32 in big-endian order.
const (
	FloatSize = 4
	Vec3Size  = 3 * FloatSize
	Vec4Size  = 4 * FloatSize
)

// EncodeVec3 packs v into a 12-byte blob.
func EncodeVec3(v Vec3) []byte {
	b := make([]byte, Vec3Size)
	putFloats(b, v.X, v.Y, v.Z)
	return b
}

// EncodeVec4 packs v into a 16-byte blob.
func EncodeVec4(v Vec4) []byte {
	b := make([]byte, Vec4Size)
	putFloats(b, v.X, v.Y, v.Z, v.W)
	return b
}

// EncodeFloats packs 3 or 4 components, the arities a property may have.
func EncodeFloats(f []float32) ([]byte, error) {
	switch len(f) {
	case 3:
		return EncodeVec3(Vec3{f[0], f[1], f[2]}), nil
	case 4:
		return EncodeVec4(Vec4{f[0], f[1], f[2], f[3]}), nil
	default:
		return nil, fmt.Errorf("%w: %d components, expected 3 or 4", ErrPropertyEncoding, len(f))
	}
}

func DecodeVec3(b []byte) (Vec3, error) {
	if len(b) != Vec3Size {
		return Vec3{}, fmt.Errorf("%w: vec3 needs %d bytes, got %d", ErrPropertyEncoding, Vec3Size, len(b))
	}
	return Vec3{X: getFloat(b, 0), Y: getFloat(b, 1), Z: getFloat(b, 2)}, nil
}

func DecodeVec4(b []byte) (Vec4, error) {
	if len(b) != Vec4Size {
		return Vec4{}, fmt.Errorf("%w: vec4 needs %d bytes, got %d", ErrPropertyEncoding, Vec4Size, len(b))
	}
	return Vec4{X: getFloat(b, 0), Y: getFloat(b, 1), Z: getFloat(b, 2), W: getFloat(b, 3)}, nil
}

func putFloats(b []byte, f ...float32) {
	for i, v := range f {
		binary.BigEndian.PutUint32(b[i*FloatSize:], math.Float32bits(v))
	}
}

func getFloat(b []byte, i int) float32 {
	return math.Float32frombits(binary.BigEndian.Uint32(b[i*FloatSize:]))
}
