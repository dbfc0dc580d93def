package audio

import (
	"math"
	"slices"
)

func bytesToLES16Slice(src []byte, dst []int16) []int16 {
	s16len := len(src) / 2
	dst = slices.Grow(dst, s16len)
	for i := 0; i < s16len; i++ {
		dst = append(dst, int16(src[i*2])|(int16(src[i*2+1])<<8))
	}
	return dst
}

func leS16SliceToBytes(src []int16, dst []byte) []byte {
	s8len := len(src) * 2
	dst = slices.Grow(dst, s8len)
	for i := 0; i < len(src); i++ {
		dst = append(dst, byte(src[i]), byte(src[i]>>8))
	}
	return dst
}

// applyGain scales interleaved samples by the per channel linear gains. Mono
// audio uses the left gain.
func applyGain(samples []int16, channels int, left, right float32) {
	if left == 1 && (right == 1 || channels == 1) {
		return
	}
	for i := range samples {
		g := left
		if channels > 1 && i%channels == 1 {
			g = right
		}
		v := float32(samples[i]) * g
		switch {
		case v > math.MaxInt16:
			samples[i] = math.MaxInt16
		case v < math.MinInt16:
			samples[i] = math.MinInt16
		default:
			samples[i] = int16(v)
		}
	}
}
