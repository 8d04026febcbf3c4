package domain

// RiskLevel is the discrete band an anomaly score or alert falls into.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Score bands shared by the normalizer and the rule evaluator.
const (
	HighRiskScore   = 0.8
	MediumRiskScore = 0.4
)

// BandFor maps an anomaly score to its risk level.
func BandFor(score float64) RiskLevel {
	switch {
	case score >= HighRiskScore:
		return RiskHigh
	case score >= MediumRiskScore:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Rank orders levels for comparisons; unknown levels rank below low.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	default:
		return 0
	}
}

func (r RiskLevel) Valid() bool { return r.Rank() > 0 }
