package occupancy

// Verdict is the outcome for one region.
type Verdict int

const (
	Available Verdict = iota
	Occupied
)

func (v Verdict) String() string {
	if v == Occupied {
		return "occupied"
	}
	return "available"
}

// Rule is one step of the decision policy.
type Rule struct {
	Name    string
	Verdict Verdict
	Match   func(s Stats, t Thresholds) bool
}

func chromaElevated(s Stats, t Thresholds) bool {
	return s.MeanChroma > t.ChromaMean || s.MaxChroma > t.ChromaMax
}

func textureElevated(s Stats, t Thresholds) bool {
	return s.StdDev > t.Texture
}

// DefaultRules is the decision policy in priority order. The first rule that
// matches decides; FallbackRule applies when none does.
var DefaultRules = []Rule{
	{
		// Painted "P" letters, accessibility icons and lane lines.
		Name:    "signage",
		Verdict: Available,
		Match: func(s Stats, t Thresholds) bool {
			return s.MeanLuma >= t.SignageLuma && s.StdDev <= t.SignageTexture && s.MeanChroma <= t.SignageChroma
		},
	},
	{
		Name:    "colour_and_texture",
		Verdict: Occupied,
		Match: func(s Stats, t Thresholds) bool {
			return chromaElevated(s, t) && textureElevated(s, t)
		},
	},
	{
		Name:    "flat_colour",
		Verdict: Occupied,
		Match: func(s Stats, t Thresholds) bool {
			return chromaElevated(s, t) && s.MeanLuma < t.NearWhiteLuma
		},
	},
	{
		Name:    "texture_and_shadow",
		Verdict: Occupied,
		Match: func(s Stats, t Thresholds) bool {
			return textureElevated(s, t) && s.DarkFraction > t.ShadowFraction
		},
	},
	{
		Name:    "busy",
		Verdict: Occupied,
		Match: func(s Stats, t Thresholds) bool {
			return s.StdDev > t.BusyTexture
		},
	},
}

// FallbackRule names the verdict when no rule matched.
const FallbackRule = "empty"

// Decide runs rules in order against s.
func Decide(rules []Rule, s Stats, t Thresholds) (Verdict, string) {
	for _, r := range rules {
		if r.Match(s, t) {
			return r.Verdict, r.Name
		}
	}
	return Available, FallbackRule
}
