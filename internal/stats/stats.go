package stats

import (
	"math"

	"github.com/hperssn/cadence/internal/domain"
)

// Summary is the rollup over every stored session.
type Summary struct {
	TotalRecords   int     `json:"totalRecords"`
	AverageCadence float64 `json:"averageCadence"`
	TotalSteps     int     `json:"totalSteps"`
	TotalDuration  float64 `json:"totalDuration"`
}

// Summarize computes the rollup. It never touches storage.
func Summarize(records []domain.SessionRecord) Summary {
	if len(records) == 0 {
		return Summary{}
	}

	var cadence, duration float64
	var steps int
	for _, r := range records {
		cadence += r.AverageCadence
		steps += r.TotalSteps
		duration += r.Duration
	}

	return Summary{
		TotalRecords:   len(records),
		AverageCadence: Round2(cadence / float64(len(records))),
		TotalSteps:     steps,
		TotalDuration:  Round2(duration),
	}
}

// Round2 rounds to two decimals, halves away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
