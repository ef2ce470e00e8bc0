package occupancy

import "fmt"

// Thresholds tunes the classifier. The right values depend on the image set,
// so every one of them is exposed through configuration.
type Thresholds struct {
	DarkLuma       float64 `json:"dark_luma"`       // luma below this counts as a shadow pixel
	ChromaMean     float64 `json:"chroma_mean"`     // mean chroma above this is "colourful"
	ChromaMax      float64 `json:"chroma_max"`      // or any pixel above this
	Texture        float64 `json:"texture"`         // luma stddev above this is "structured"
	ShadowFraction float64 `json:"shadow_fraction"` // minimum share of shadow pixels
	SignageLuma    float64 `json:"signage_luma"`    // flat paint is at least this bright
	SignageTexture float64 `json:"signage_texture"` // and at most this textured
	SignageChroma  float64 `json:"signage_chroma"`  // and at most this colourful
	BusyTexture    float64 `json:"busy_texture"`    // stddev that alone means occupied
	NearWhiteLuma  float64 `json:"near_white_luma"` // colourful but this bright is glare, not a car

	// Sampling box as a fraction of the image width and height.
	BoxWidth  float64 `json:"box_width"`
	BoxHeight float64 `json:"box_height"`
}

// DefaultThresholds returns the values tuned on the stylised demo renders.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DarkLuma:       55,
		ChromaMean:     12,
		ChromaMax:      45,
		Texture:        9.5,
		ShadowFraction: 0.08,
		SignageLuma:    165,
		SignageTexture: 13,
		SignageChroma:  10,
		BusyTexture:    22,
		NearWhiteLuma:  240,
		BoxWidth:       0.05,
		BoxHeight:      0.07,
	}
}

// Validate rejects thresholds that cannot produce a usable sample.
func (t Thresholds) Validate() error {
	if t.BoxWidth <= 0 || t.BoxWidth > 1 || t.BoxHeight <= 0 || t.BoxHeight > 1 {
		return fmt.Errorf("sampling box %vx%v must be within (0,1]", t.BoxWidth, t.BoxHeight)
	}
	if t.ShadowFraction < 0 || t.ShadowFraction > 1 {
		return fmt.Errorf("shadow fraction %v must be within [0,1]", t.ShadowFraction)
	}
	return nil
}
