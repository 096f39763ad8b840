package service

import (
	"context"
	"strings"

	"github.com/Dan9191/credit-network/internal/models"
	"github.com/Dan9191/credit-network/internal/utils"
)

// Referral listing roles
const (
	RoleReferrer = "referrer"
	RoleReferred = "referred"
)

// AutoRepayInput configures automatic repayment of a loan
type AutoRepayInput struct {
	AgentAddress string
	LoanID       int64
	Threshold    int64
	MinBalance   int64
}

// ConfigureAutoRepay creates or re-enables the auto-repay config of a loan. Only the borrower may configure.
func (s *Service) ConfigureAutoRepay(ctx context.Context, in AutoRepayInput) (*models.AutoRepayConfig, error) {
	addr, err := normalizeAddress("agent_address", in.AgentAddress)
	if err != nil {
		return nil, err
	}
	if in.Threshold <= 0 {
		return nil, validation("threshold must be positive").With("field", "threshold")
	}
	if in.MinBalance < 0 {
		return nil, validation("min_balance must not be negative").With("field", "min_balance")
	}
	loan, err := s.loadLoan(ctx, s.repo, in.LoanID)
	if err != nil {
		return nil, err
	}
	if loan.BorrowerAddress != addr {
		return nil, forbidden("only the borrower can configure auto-repay for loan %d", loan.LoanID)
	}
	if !loan.Status.Active() {
		return nil, conflict("loan %d is already %s", loan.LoanID, loan.Status)
	}

	cfg := &models.AutoRepayConfig{
		AgentAddress: addr,
		LoanID:       in.LoanID,
		Threshold:    in.Threshold,
		MinBalance:   in.MinBalance,
	}
	if err := s.repo.UpsertAutoRepay(ctx, cfg); err != nil {
		return nil, s.storageError(err, "auto-repay config")
	}
	return cfg, nil
}

// ListAutoRepay returns an agent's auto-repay configs
func (s *Service) ListAutoRepay(ctx context.Context, address string) ([]models.AutoRepayConfig, error) {
	addr, err := normalizeAddress("address", address)
	if err != nil {
		return nil, err
	}
	cfgs, err := s.repo.ListAutoRepay(ctx, addr)
	if err != nil {
		return nil, s.storageError(err, "auto-repay configs")
	}
	return cfgs, nil
}

// DisableAutoRepay switches a config off
func (s *Service) DisableAutoRepay(ctx context.Context, id int64) (*models.AutoRepayConfig, error) {
	ok, err := s.repo.DisableAutoRepay(ctx, id, false)
	if err != nil {
		return nil, s.storageError(err, "auto-repay config")
	}
	if !ok {
		return nil, notFound("auto-repay config %d not found", id)
	}
	return s.loadAutoRepay(ctx, id)
}

// ExecuteAutoRepay repays the configured loan on behalf of its borrower and
// retires the config
func (s *Service) ExecuteAutoRepay(ctx context.Context, id int64, txHash string) (*models.AutoRepayConfig, *models.Loan, error) {
	cfg, err := s.loadAutoRepay(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Enabled {
		return nil, nil, conflict("auto-repay config %d is disabled", id)
	}
	loan, err := s.RepayLoan(ctx, cfg.LoanID, cfg.AgentAddress, txHash)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.repo.DisableAutoRepay(ctx, id, true); err != nil {
		return nil, nil, s.storageError(err, "auto-repay config")
	}
	cfg, err = s.loadAutoRepay(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return cfg, loan, nil
}

func (s *Service) loadAutoRepay(ctx context.Context, id int64) (*models.AutoRepayConfig, error) {
	cfg, err := s.repo.GetAutoRepay(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, notFound("auto-repay config %d not found", id)
		}
		return nil, s.storageError(err, "auto-repay config")
	}
	return cfg, nil
}

// PolicyInput purchases default insurance for a funded loan
type PolicyInput struct {
	LoanID         int64
	LenderAddress  string
	CoverageAmount int64
	Premium        int64
	TxHash         string
}

// PurchaseInsurance records a policy. The buyer must be the loan's lender and
// coverage cannot exceed the principal.
func (s *Service) PurchaseInsurance(ctx context.Context, in PolicyInput) (*models.InsurancePolicy, error) {
	lender, err := normalizeAddress("lender_address", in.LenderAddress)
	if err != nil {
		return nil, err
	}
	hash, err := normalizeTxHash(in.TxHash)
	if err != nil {
		return nil, err
	}
	if in.CoverageAmount <= 0 {
		return nil, validation("coverage_amount must be positive").With("field", "coverage_amount")
	}
	if in.Premium <= 0 {
		return nil, validation("premium must be positive").With("field", "premium")
	}
	loan, err := s.loadLoan(ctx, s.repo, in.LoanID)
	if err != nil {
		return nil, err
	}
	if loan.LenderAddress == nil || *loan.LenderAddress != lender {
		return nil, forbidden("only the lender of loan %d can insure it", loan.LoanID)
	}
	if loan.Status != models.LoanFunded {
		return nil, conflict("loan cannot be insured (status: %s)", loan.Status)
	}
	if in.CoverageAmount > loan.Amount {
		return nil, validation("coverage_amount exceeds the loan amount").
			With("max_allowed", loan.Amount)
	}

	p := &models.InsurancePolicy{
		LoanID:         loan.LoanID,
		LenderAddress:  lender,
		CoverageAmount: in.CoverageAmount,
		PremiumPaid:    in.Premium,
		TxHash:         hash,
	}
	if err := s.repo.CreatePolicy(ctx, p); err != nil {
		return nil, s.storageError(err, "insurance policy")
	}
	return p, nil
}

// ListPolicies returns a lender's policies
func (s *Service) ListPolicies(ctx context.Context, lender string) ([]models.InsurancePolicy, error) {
	addr, err := normalizeAddress("lender", lender)
	if err != nil {
		return nil, err
	}
	policies, err := s.repo.ListPolicies(ctx, addr)
	if err != nil {
		return nil, s.storageError(err, "insurance policies")
	}
	return policies, nil
}

// ClaimInsurance pays out a policy once its loan has defaulted. A policy pays out once.
func (s *Service) ClaimInsurance(ctx context.Context, id int64, txHash string) (*models.InsurancePolicy, error) {
	hash, err := normalizeTxHash(txHash)
	if err != nil {
		return nil, err
	}
	p, err := s.loadPolicy(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Claimed {
		return nil, conflict("policy %d is already claimed", id)
	}
	loan, err := s.loadLoan(ctx, s.repo, p.LoanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != models.LoanDefaulted {
		return nil, conflict("policy cannot be claimed (loan status: %s)", loan.Status)
	}
	ok, err := s.repo.ClaimPolicy(ctx, id, hash)
	if err != nil {
		return nil, s.storageError(err, "insurance policy")
	}
	if !ok {
		return nil, conflict("policy %d is already claimed", id)
	}
	s.log.WithField("policy_id", id).Infof("Insurance claimed by %s", p.LenderAddress)
	return s.loadPolicy(ctx, id)
}

// PoolStats summarises the insurance pool
func (s *Service) PoolStats(ctx context.Context) (*models.InsuranceStats, error) {
	stats, err := s.repo.PolicyStats(ctx)
	if err != nil {
		return nil, s.storageError(err, "insurance stats")
	}
	return stats, nil
}

func (s *Service) loadPolicy(ctx context.Context, id int64) (*models.InsurancePolicy, error) {
	p, err := s.repo.GetPolicy(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, notFound("insurance policy %d not found", id)
		}
		return nil, s.storageError(err, "insurance policy")
	}
	return p, nil
}

// RegisterReferral links referred to referrer. A code is generated when none is given.
func (s *Service) RegisterReferral(ctx context.Context, referrerAddress, referredAddress, code string) (*models.Referral, error) {
	referrer, err := normalizeAddress("referrer_address", referrerAddress)
	if err != nil {
		return nil, err
	}
	referred, err := normalizeAddress("referred_address", referredAddress)
	if err != nil {
		return nil, err
	}
	if referrer == referred {
		return nil, validation("cannot refer yourself")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		if code, err = utils.GenerateReferralCode(); err != nil {
			return nil, internal(err)
		}
	}

	ref := &models.Referral{ReferrerAddress: referrer, ReferredAddress: referred, ReferralCode: code}
	if err := s.repo.CreateReferral(ctx, ref); err != nil {
		if isDuplicate(err) {
			return nil, conflict("referral already exists")
		}
		return nil, s.storageError(err, "referral")
	}
	return ref, nil
}

// ListReferrals returns referrals involving address in the given role, or both when role is empty
func (s *Service) ListReferrals(ctx context.Context, address, role string) ([]models.Referral, error) {
	addr, err := normalizeAddress("address", address)
	if err != nil {
		return nil, err
	}
	switch role {
	case "", RoleReferrer, RoleReferred:
	default:
		return nil, validation("as must be %s or %s", RoleReferrer, RoleReferred)
	}
	refs, err := s.repo.ListReferrals(ctx, addr, role)
	if err != nil {
		return nil, s.storageError(err, "referrals")
	}
	return refs, nil
}

// PayReferral marks a pending referral as paid
func (s *Service) PayReferral(ctx context.Context, id, reward int64, txHash string) (*models.Referral, error) {
	hash, err := normalizeTxHash(txHash)
	if err != nil {
		return nil, err
	}
	if reward < 0 {
		return nil, validation("reward_amount must not be negative").With("field", "reward_amount")
	}
	ok, err := s.repo.PayReferral(ctx, id, reward, hash)
	if err != nil {
		return nil, s.storageError(err, "referral")
	}
	ref, err := s.repo.GetReferral(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, notFound("referral %d not found", id)
		}
		return nil, s.storageError(err, "referral")
	}
	if !ok {
		return nil, conflict("referral %d is already paid", id)
	}
	return ref, nil
}

// ReferralStats summarises an agent's referral activity
func (s *Service) ReferralStats(ctx context.Context, address string) (*models.ReferralStats, error) {
	addr, err := normalizeAddress("address", address)
	if err != nil {
		return nil, err
	}
	stats, err := s.repo.ReferralStats(ctx, addr)
	if err != nil {
		return nil, s.storageError(err, "referral stats")
	}
	return stats, nil
}
