package annotate

// Tier is a coarse classification of how often a lemma occurs in the corpus.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// Config holds the frequency thresholds and display caps of the panel.
type Config struct {
	// HighThreshold: counts strictly above it are high.
	HighThreshold int
	// MediumThreshold: counts strictly above it (and not high) are medium.
	MediumThreshold int
	// FamilyExampleCap bounds examples drawn from the whole word family.
	FamilyExampleCap int
	// FormExampleCap bounds examples drawn from the selected form only.
	FormExampleCap int
}

// DefaultConfig returns the thresholds and caps used by the reader UI.
func DefaultConfig() Config {
	return Config{
		HighThreshold:    20,
		MediumThreshold:  5,
		FamilyExampleCap: 8,
		FormExampleCap:   5,
	}
}

// Tier classifies an occurrence count.
func (c Config) Tier(count int) Tier {
	switch {
	case count > c.HighThreshold:
		return TierHigh
	case count > c.MediumThreshold:
		return TierMedium
	default:
		return TierLow
	}
}
