// File: internal/chaindata/demo.go
package chaindata

import (
	"context"
	"time"

	"github.com/smartdevs17/fil-e-rug/internal/models"
)

// DemoChains returns the records shown when nothing has been stored yet
func DemoChains(now time.Time) []models.ChainData {
	day := 24 * time.Hour
	return []models.ChainData{
		{
			ID:              "DEMO-001",
			Name:            "Demo Token 1",
			Blockchain:      "Ethereum",
			ContractAddress: "0x1234567890abcdef",
			RiskFactors:     []string{"New project", "Low liquidity"},
			VoteResults:     models.VoteResults{RugVotes: 70, NoRugVotes: 30, TotalVotes: 100},
			FinalDecision:   models.DecisionRugged,
			Timestamp:       now.Add(-day).UnixMilli(),
			Metadata: models.ChainMetadata{
				Description: "A demo token for testing",
				Category:    "Demo",
				TimeLeft:    "Expired",
			},
		},
		{
			ID:              "DEMO-002",
			Name:            "Demo Token 2",
			Blockchain:      "Polygon",
			ContractAddress: "0xabcdef1234567890",
			RiskFactors:     []string{"Established team", "High liquidity"},
			VoteResults:     models.VoteResults{RugVotes: 20, NoRugVotes: 80, TotalVotes: 100},
			FinalDecision:   models.DecisionSafe,
			Timestamp:       now.Add(-2 * day).UnixMilli(),
			Metadata: models.ChainMetadata{
				Description: "A safe demo token",
				Category:    "Demo",
				TimeLeft:    "Expired",
			},
		},
	}
}

// SeedDemo stores the demo records when the index is empty. It returns how
// many records were stored.
func (s *Service) SeedDemo(ctx context.Context) (int, error) {
	for _, decision := range models.Decisions {
		count, err := s.store.CountChainsByDecision(ctx, decision)
		if err != nil {
			return 0, err
		}
		if count > 0 {
			return 0, nil
		}
	}

	// Seeding bypasses the notification feed.
	seeded := 0
	for _, chain := range DemoChains(s.now()) {
		if _, err := s.storeChain(ctx, chain); err != nil {
			return seeded, err
		}
		seeded++
	}

	s.logger.WithField("records", seeded).Info("Seeded demo chain data")
	return seeded, nil
}
