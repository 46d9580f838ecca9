package experiment

import "math"

// Verdict is the outcome of a significance analysis.
type Verdict string

const (
	VerdictInsufficientData Verdict = "insufficient_data"
	VerdictSignificant      Verdict = "significant"
	VerdictNoDifference     Verdict = "no_significant_difference"
)

// VariantStats holds per-variant participant and conversion figures,
// derived purely from assignments and goal counters.
type VariantStats struct {
	VariantID    string             `json:"variantId"`
	IsControl    bool               `json:"isControl"`
	Participants int                `json:"participants"`
	Conversions  map[string]int     `json:"conversions,omitempty"`
	Rates        map[string]float64 `json:"rates,omitempty"`
}

// Comparison is one control-vs-variant test on the primary goal.
type Comparison struct {
	VariantID   string  `json:"variantId"`
	ControlRate float64 `json:"controlRate"`
	VariantRate float64 `json:"variantRate"`
	Lift        float64 `json:"lift"` // percent improvement over control
	Z           float64 `json:"z"`
	PValue      float64 `json:"pValue"`
	Significant bool    `json:"significant"`
}

// Analysis is the full result of analyzing one experiment.
type Analysis struct {
	ExperimentID      string         `json:"experimentId"`
	Verdict           Verdict        `json:"verdict"`
	Winner            string         `json:"winner,omitempty"`
	PrimaryGoal       string         `json:"primaryGoal,omitempty"`
	TotalParticipants int            `json:"totalParticipants"`
	Variants          []VariantStats `json:"variants"`
	Comparisons       []Comparison   `json:"comparisons,omitempty"`
}

// TwoProportionZ runs a two-proportion z-test between control
// (x1 conversions of n1 participants) and a variant (x2 of n2).
// It returns the z statistic and the two-tailed p-value. Degenerate
// samples (zero participants or zero standard error) yield z=0, p=1.
func TwoProportionZ(x1, n1, x2, n2 int) (z, p float64) {
	if n1 <= 0 || n2 <= 0 {
		return 0, 1
	}

	p1 := float64(x1) / float64(n1)
	p2 := float64(x2) / float64(n2)
	pooled := float64(x1+x2) / float64(n1+n2)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(n1) + 1/float64(n2)))
	if se == 0 {
		return 0, 1
	}

	z = (p2 - p1) / se
	p = 2 * (1 - normalCDF(math.Abs(z)))
	return z, p
}

// normalCDF is the standard normal cumulative distribution function.
func normalCDF(z float64) float64 {
	return 0.5 * math.Erfc(-z/math.Sqrt2)
}

// lift is the relative improvement of variant rate over control rate,
// in percent. Undefined (0) when the control never converts.
func lift(controlRate, variantRate float64) float64 {
	if controlRate == 0 {
		return 0
	}
	return (variantRate - controlRate) / controlRate * 100
}
