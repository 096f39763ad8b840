package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Dan9191/credit-network/internal/credit"
	"github.com/Dan9191/credit-network/internal/metrics"
	"github.com/Dan9191/credit-network/internal/models"
	"github.com/Dan9191/credit-network/internal/repository"
	"github.com/Dan9191/credit-network/internal/utils"
)

const (
	maxNameLength        = 100
	maxDescriptionLength = 1000
)

// RegisterInput is a registration request
type RegisterInput struct {
	Address     string
	Name        string
	Description string
	ClientIP    string // Key for the registration limiter
	AgentID     string // X-Agent-ID header, checked in strict mode
}

// Registration is the result of a successful registration
type Registration struct {
	Agent        *models.Agent               `json:"agent"`
	Credit       *models.CreditScore         `json:"credit"`
	Verification *models.PendingVerification `json:"-"`
	VerifyURL    string                      `json:"verify_url"`
	Instructions []string                    `json:"instructions"`
}

// RegisterAgent creates an agent, its credit record and a pending verification atomically
func (s *Service) RegisterAgent(ctx context.Context, in RegisterInput) (*Registration, error) {
	addr, err := normalizeAddress("address", in.Address)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, validation("name must be at most %d characters", maxNameLength)
	}
	if utf8.RuneCountInString(in.Description) > maxDescriptionLength {
		return nil, validation("description must be at most %d characters", maxDescriptionLength)
	}

	// Duplicates are rejected before they can use up a limiter slot
	if _, err := s.repo.GetAgent(ctx, addr); err == nil {
		return nil, conflict("agent %s is already registered", addr)
	} else if !isNotFound(err) {
		return nil, s.storageError(err, "agent")
	}

	if s.config.StrictRegistration {
		if name == "" || in.AgentID != name {
			return nil, forbidden("X-Agent-ID header must match the declared agent name")
		}
		ok, err := s.limiter.Allow(ctx, in.ClientIP)
		if err != nil {
			s.log.WithError(err).Warn("Registration limiter unavailable, allowing request")
		} else if !ok {
			metrics.RecordRateLimited("registration")
			return nil, newError(KindRateLimited, "too many registrations from this address, try again later").
				With("limit", s.config.RegistrationLimit).
				With("window", s.config.RegistrationWindow.String())
		}
	}

	token, err := utils.GenerateToken(24)
	if err != nil {
		return nil, internal(err)
	}

	reg := &Registration{
		Agent:        &models.Agent{Address: addr, Name: name, Description: in.Description},
		Credit:       credit.New(addr),
		Verification: &models.PendingVerification{AgentAddress: addr, Token: token},
	}
	err = s.repo.InTx(ctx, func(tx *repository.Repository) error {
		if err := tx.CreateAgent(ctx, reg.Agent); err != nil {
			return err
		}
		if err := tx.CreateCreditScore(ctx, reg.Credit); err != nil {
			return err
		}
		return tx.CreateVerification(ctx, reg.Verification)
	})
	if err != nil {
		if isDuplicate(err) {
			return nil, conflict("agent %s is already registered", addr)
		}
		return nil, s.storageError(err, "agent")
	}

	reg.VerifyURL = fmt.Sprintf("%s/verify/%s", strings.TrimRight(s.config.PublicURL, "/"), token)
	reg.Instructions = []string{
		fmt.Sprintf("Ask your operator to post the verification code %s from their X account", token),
		fmt.Sprintf("Then submit their X username to POST %s", reg.VerifyURL),
	}
	if !s.config.RequireVerification {
		reg.Instructions = append(reg.Instructions, "Verification is optional on this network, you can request loans right away")
	}

	s.log.Infof("Agent registered: %s", addr)
	return reg, nil
}

// GetAgent returns an agent joined with its credit record
func (s *Service) GetAgent(ctx context.Context, address string) (*models.AgentProfile, error) {
	addr, err := normalizeAddress("address", address)
	if err != nil {
		return nil, err
	}
	profile, err := s.repo.GetAgentProfile(ctx, addr)
	if err != nil {
		return nil, s.storageError(err, "agent")
	}
	return profile, nil
}

// ListAgents pages through agents, newest first
func (s *Service) ListAgents(ctx context.Context, verified *bool, limit, offset int) ([]models.AgentProfile, error) {
	agents, err := s.repo.ListAgentProfiles(ctx, verified, limit, offset)
	if err != nil {
		return nil, s.storageError(err, "agents")
	}
	return agents, nil
}

// UpdateAgent changes the name and/or description of an agent
func (s *Service) UpdateAgent(ctx context.Context, address string, name, description *string) (*models.Agent, error) {
	addr, err := normalizeAddress("address", address)
	if err != nil {
		return nil, err
	}
	if name == nil && description == nil {
		return nil, validation("nothing to update, provide name or description")
	}
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if utf8.RuneCountInString(trimmed) > maxNameLength {
			return nil, validation("name must be at most %d characters", maxNameLength)
		}
		name = &trimmed
	}
	if description != nil && utf8.RuneCountInString(*description) > maxDescriptionLength {
		return nil, validation("description must be at most %d characters", maxDescriptionLength)
	}

	agent, err := s.repo.UpdateAgentProfile(ctx, addr, name, description)
	if err != nil {
		return nil, s.storageError(err, "agent")
	}
	s.log.Infof("Agent updated: %s", addr)
	return agent, nil
}
