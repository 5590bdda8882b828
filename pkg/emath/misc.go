package emath

import "math"

// Some functions that only operate on basic types, that are useful

func GammaExpand_F64(f float64) float64 {
	if f <= 0.0031308 {
		return 12.92 * f
	}
	return 1.055 * math.Pow(f, 1.0/2.4) - 0.055
}

// Clamp8 rounds to the nearest 8-bit value, saturating at 0 and 255
func Clamp8(f float32) uint8 {
	switch {
	case f != f:       return 0 // NaN
	case f <= 0:       return 0
	case f >= 255:     return 255
	}
	return uint8(f + 0.5)
}
