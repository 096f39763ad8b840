package service

import (
	"context"

	"github.com/Dan9191/credit-network/internal/credit"
	"github.com/Dan9191/credit-network/internal/models"
	"github.com/Dan9191/credit-network/internal/repository"
)

// CreditReport is an agent's credit record with its recent history
type CreditReport struct {
	Credit   *models.CreditScore  `json:"credit"`
	Tier     credit.Tier          `json:"tier"`
	NextTier *credit.Tier         `json:"next_tier,omitempty"`
	History  []models.CreditEvent `json:"history"`
}

// GetCredit returns an agent's credit record and recent score changes
func (s *Service) GetCredit(ctx context.Context, address string, historyLimit int) (*CreditReport, error) {
	addr, err := normalizeAddress("address", address)
	if err != nil {
		return nil, err
	}
	cs, err := s.repo.GetCreditScore(ctx, addr)
	if err != nil {
		if isNotFound(err) {
			return nil, notFound("no credit record for %s", addr)
		}
		return nil, s.storageError(err, "credit record")
	}
	history, err := s.repo.ListCreditEvents(ctx, addr, historyLimit)
	if err != nil {
		return nil, s.storageError(err, "credit history")
	}

	report := &CreditReport{Credit: cs, Tier: credit.ForScore(cs.Score), History: history}
	for i, t := range credit.Tiers {
		if t.Name == report.Tier.Name && i+1 < len(credit.Tiers) {
			next := credit.Tiers[i+1]
			report.NextTier = &next
		}
	}
	return report, nil
}

// Tiers lists the credit tiers lowest first
func (s *Service) Tiers() []credit.Tier {
	return credit.Tiers
}

// BackfillCreditScores creates the missing credit records of agents
// registered before credit tracking. Returns the number created.
func (s *Service) BackfillCreditScores(ctx context.Context) (int, error) {
	addresses, err := s.repo.AgentsWithoutCredit(ctx)
	if err != nil {
		return 0, s.storageError(err, "agents")
	}
	if len(addresses) == 0 {
		return 0, nil
	}
	err = s.repo.InTx(ctx, func(tx *repository.Repository) error {
		for _, addr := range addresses {
			if err := tx.CreateCreditScore(ctx, credit.New(addr)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, s.storageError(err, "credit record")
	}
	s.log.Infof("Backfilled %d credit records", len(addresses))
	return len(addresses), nil
}
