// Package palette assigns and resolves tag colours.
package palette

import "math"

// GoldenAngle spreads successive hues without knowing the final count.
const GoldenAngle = 137.5

// DefaultLightness is used for auto-assigned colours.
const DefaultLightness = 32

// Lightness bounds for manually picked colours.
const (
	MinLightness = 10
	MaxLightness = 85
)

// maxGoldenProbes bounds the golden-angle walk. The sequence only has 144
// distinct values, so past that a linear scan finds any remaining gap.
const maxGoldenProbes = 360

// NextHue returns a hue in [0,360) not present in used (after rounding),
// starting the golden-angle walk at index len(used). If all 360 integer
// hues are taken the first golden value is returned.
func NextHue(used []float64) int {
	taken := make(map[int]bool, len(used))
	for _, h := range used {
		taken[int(math.Round(h))] = true
	}

	idx := len(used)
	first := goldenHue(idx)
	for i := 0; i < maxGoldenProbes; i++ {
		h := goldenHue(idx + i)
		if !taken[h] {
			return h
		}
	}
	for h := 0; h < 360; h++ {
		if !taken[h] {
			return h
		}
	}
	return first
}

func goldenHue(idx int) int {
	return int(math.Round(math.Mod(float64(idx)*GoldenAngle, 360)))
}
