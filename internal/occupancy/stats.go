package occupancy

import (
	"image"
	"math"
)

// Stats are the per-region pixel statistics the rules decide on. All values
// are on the 0-255 scale except DarkFraction.
type Stats struct {
	Pixels       int     `json:"pixels"`
	MeanLuma     float64 `json:"mean_luma"`
	StdDev       float64 `json:"stddev"` // population stddev of luma
	MeanChroma   float64 `json:"mean_chroma"`
	MaxChroma    float64 `json:"max_chroma"`
	DarkFraction float64 `json:"dark_fraction"`
}

// Luma returns the broadcast luma of an 8-bit pixel.
func Luma(r, g, b uint8) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

// Chroma returns max channel minus min channel.
func Chroma(r, g, b uint8) float64 {
	return float64(max(r, g, b) - min(r, g, b))
}

// RegionStats computes Stats over rect in a single pass. rect must lie within
// img.Bounds(); an empty rect yields zero Stats.
func RegionStats(img image.Image, rect image.Rectangle, darkLuma float64) Stats {
	var (
		n                  int
		sum, sumSq         float64
		chromaSum, maxChro float64
		dark               int
	)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			r16, g16, b16, _ := img.At(x, y).RGBA()
			r, g, b := uint8(r16>>8), uint8(g16>>8), uint8(b16>>8)

			l := Luma(r, g, b)
			c := Chroma(r, g, b)
			sum += l
			sumSq += l * l
			chromaSum += c
			if c > maxChro {
				maxChro = c
			}
			if l < darkLuma {
				dark++
			}
			n++
		}
	}
	if n == 0 {
		return Stats{}
	}

	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0 // rounding on flat regions
	}
	return Stats{
		Pixels:       n,
		MeanLuma:     mean,
		StdDev:       math.Sqrt(variance),
		MeanChroma:   chromaSum / float64(n),
		MaxChroma:    maxChro,
		DarkFraction: float64(dark) / float64(n),
	}
}
