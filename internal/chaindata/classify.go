// File: internal/chaindata/classify.go
package chaindata

import "github.com/smartdevs17/fil-e-rug/internal/models"

// DecisionThreshold is the vote share, in percent, that settles a verdict
const DecisionThreshold = 60.0

// Classify derives the verdict from vote counters. Rug takes precedence when
// both shares would pass. Records without a positive total stay pending.
func Classify(results models.VoteResults) models.Decision {
	if results.TotalVotes <= 0 {
		return models.DecisionPending
	}

	total := float64(results.TotalVotes)
	rugPercentage := float64(results.RugVotes) / total * 100
	noRugPercentage := float64(results.NoRugVotes) / total * 100

	switch {
	case rugPercentage >= DecisionThreshold:
		return models.DecisionRugged
	case noRugPercentage >= DecisionThreshold:
		return models.DecisionSafe
	default:
		return models.DecisionPending
	}
}
