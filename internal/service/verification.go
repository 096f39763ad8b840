package service

import (
	"context"
	"regexp"

	"github.com/Dan9191/credit-network/internal/models"
	"github.com/Dan9191/credit-network/internal/repository"
	"github.com/Dan9191/credit-network/internal/utils"
)

// Evidence is what a caller presents to complete a verification
type Evidence struct {
	Handle string // External social handle, e.g. an X username
	Admin  string // Subject of an authenticated admin session
}

// VerificationStrategy decides whether evidence is enough to verify an agent
type VerificationStrategy interface {
	// Name is recorded as verified_by
	Name() string
	Check(ctx context.Context, pv *models.PendingVerification, ev Evidence) error
}

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,15}$`)

// PatternHeuristic accepts any well-formed X username. It does not check
// that the handle actually posted the token.
type PatternHeuristic struct{}

// Name implements VerificationStrategy
func (PatternHeuristic) Name() string { return "auto" }

// Check implements VerificationStrategy
func (PatternHeuristic) Check(_ context.Context, _ *models.PendingVerification, ev Evidence) error {
	if ev.Handle == "" {
		return validation("x_username is required").
			With("hint", "provide the X username (without @) that posted the verification")
	}
	if !handlePattern.MatchString(ev.Handle) {
		return validation("invalid X username format").
			With("hint", "1-15 letters, digits or underscores")
	}
	return nil
}

// AdminOverride trusts an authenticated administrator
type AdminOverride struct{}

// Name implements VerificationStrategy
func (AdminOverride) Name() string { return "admin" }

// Check implements VerificationStrategy
func (AdminOverride) Check(_ context.Context, _ *models.PendingVerification, ev Evidence) error {
	if ev.Admin == "" {
		return forbidden("admin credential required")
	}
	return nil
}

// VerifyResult describes a completed verification
type VerifyResult struct {
	AgentAddress string `json:"agent_address"`
	Verified     bool   `json:"verified"`
	VerifiedBy   string `json:"verified_by"`
}

// Verify completes a pending verification using the public strategy
func (s *Service) Verify(ctx context.Context, token, handle string) (*VerifyResult, error) {
	pv, err := s.repo.GetVerificationByToken(ctx, token)
	if err != nil {
		return nil, s.storageError(err, "verification token")
	}
	if pv.Status != models.VerificationPending {
		return nil, conflict("verification token already processed")
	}
	ev := Evidence{Handle: handle}
	if err := s.verifier.Check(ctx, pv, ev); err != nil {
		return nil, err
	}
	return s.complete(ctx, pv, s.verifier, ev)
}

// AdminVerifyAgent verifies an agent on an administrator's authority
func (s *Service) AdminVerifyAgent(ctx context.Context, address, admin string) (*VerifyResult, error) {
	addr, err := normalizeAddress("address", address)
	if err != nil {
		return nil, err
	}
	ev := Evidence{Admin: admin}
	if err := s.admin.Check(ctx, nil, ev); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetAgent(ctx, addr); err != nil {
		return nil, s.storageError(err, "agent")
	}

	pv, err := s.repo.GetVerificationByAgent(ctx, addr)
	if isNotFound(err) {
		token, terr := utils.GenerateToken(24)
		if terr != nil {
			return nil, internal(terr)
		}
		pv = &models.PendingVerification{AgentAddress: addr, Token: token}
		err = s.repo.CreateVerification(ctx, pv)
	}
	if err != nil {
		return nil, s.storageError(err, "verification")
	}
	if pv.Status != models.VerificationPending {
		return nil, conflict("agent %s is already verified", addr)
	}
	return s.complete(ctx, pv, s.admin, ev)
}

func (s *Service) complete(ctx context.Context, pv *models.PendingVerification, strategy VerificationStrategy, ev Evidence) (*VerifyResult, error) {
	var handle *string
	if ev.Handle != "" {
		handle = &ev.Handle
	}
	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		ok, err := tx.CompleteVerification(ctx, pv.ID, handle, strategy.Name())
		if err != nil {
			return err
		}
		if !ok {
			return conflict("verification token already processed")
		}
		_, err = tx.MarkAgentVerified(ctx, pv.AgentAddress)
		return err
	})
	if err != nil {
		return nil, s.storageError(err, "verification")
	}

	s.log.WithField("verified_by", strategy.Name()).Infof("Agent verified: %s", pv.AgentAddress)
	if agent, err := s.repo.GetAgent(ctx, pv.AgentAddress); err == nil {
		s.emit(ctx, models.EventAgentVerified, agent, pv.AgentAddress)
	}
	return &VerifyResult{AgentAddress: pv.AgentAddress, Verified: true, VerifiedBy: strategy.Name()}, nil
}

// VerificationStatus reports the public state of a token
func (s *Service) VerificationStatus(ctx context.Context, token string) (*models.VerificationStatus, error) {
	st, err := s.repo.GetVerificationStatus(ctx, token)
	if err != nil {
		return nil, s.storageError(err, "verification token")
	}
	return st, nil
}

// AgentVerified reports whether an agent is verified
func (s *Service) AgentVerified(ctx context.Context, address string) (*models.Agent, error) {
	addr, err := normalizeAddress("address", address)
	if err != nil {
		return nil, err
	}
	agent, err := s.repo.GetAgent(ctx, addr)
	if err != nil {
		return nil, s.storageError(err, "agent")
	}
	return agent, nil
}
