package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dan9191/credit-network/internal/config"
	"github.com/Dan9191/credit-network/internal/models"
	"github.com/Dan9191/credit-network/internal/notify"
	"github.com/Dan9191/credit-network/internal/ratelimit"
	"github.com/Dan9191/credit-network/internal/repository"
	"github.com/Dan9191/credit-network/internal/utils"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// AdminRole is the role claim carried by admin tokens
const AdminRole = "admin"

// AdminClaims are the JWT claims of an admin session
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// WebhookDeliverer sends a single event to a single webhook
type WebhookDeliverer interface {
	Deliver(ctx context.Context, hook *models.Webhook, ev notify.Event) (*models.WebhookLog, error)
}

// Service handles business logic
type Service struct {
	repo     *repository.Repository
	log      *logrus.Logger
	config   *config.Config
	key      []byte
	notifier notify.Notifier
	limiter  ratelimit.Limiter
	deliver  WebhookDeliverer
	verifier VerificationStrategy
	admin    VerificationStrategy
}

// Option customises a Service
type Option func(*Service)

// WithNotifier sets the receiver of lifecycle events
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithRegistrationLimiter sets the limiter applied to strict registrations
func WithRegistrationLimiter(l ratelimit.Limiter) Option {
	return func(s *Service) { s.limiter = l }
}

// WithWebhookDeliverer sets the sender used by webhook test deliveries
func WithWebhookDeliverer(d WebhookDeliverer) Option {
	return func(s *Service) { s.deliver = d }
}

// WithVerificationStrategy replaces the public verification strategy
func WithVerificationStrategy(v VerificationStrategy) Option {
	return func(s *Service) { s.verifier = v }
}

// NewService initializes a new service
func NewService(repo *repository.Repository, log *logrus.Logger, cfg *config.Config, opts ...Option) (*Service, error) {
	key, err := cfg.EncryptionKeyBytes()
	if err != nil {
		return nil, err
	}
	s := &Service{
		repo:     repo,
		log:      log,
		config:   cfg,
		key:      key,
		notifier: notify.Nop{},
		limiter:  ratelimit.NewSlidingWindow(cfg.RegistrationLimit, cfg.RegistrationWindow),
		verifier: PatternHeuristic{},
		admin:    AdminOverride{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssueAdminToken exchanges the shared admin key for a short-lived JWT
func (s *Service) IssueAdminToken(adminKey string) (string, error) {
	if s.config.AdminKeyHash == "" {
		return "", forbidden("admin access is not configured")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.config.AdminKeyHash), []byte(adminKey)); err != nil {
		return "", newError(KindUnauthorized, "invalid admin key")
	}

	now := s.repo.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{
		Role: AdminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   AdminRole,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(12 * time.Hour)),
		},
	})
	tokenString, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", internal(fmt.Errorf("failed to generate token: %w", err))
	}

	s.log.Info("Admin token issued")
	return tokenString, nil
}

// normalizeAddress validates a wallet address supplied by a caller
func normalizeAddress(field, raw string) (string, error) {
	if raw == "" {
		return "", validation("%s is required", field)
	}
	addr, err := utils.NormalizeAddress(raw)
	if err != nil {
		return "", validation("%s must be a 0x-prefixed 20-byte hex address", field).With("field", field)
	}
	return addr, nil
}

// normalizeTxHash validates an optional settlement hash
func normalizeTxHash(raw string) (*string, error) {
	if raw == "" {
		return nil, nil
	}
	if !utils.ValidTxHash(raw) {
		return nil, validation("tx_hash must be a 0x-prefixed 32-byte hex hash")
	}
	return &raw, nil
}

// storageError converts repository errors to service errors, logging internal ones
func (s *Service) storageError(err error, what string) error {
	var se *Error
	switch {
	case errors.As(err, &se):
		return se
	case errors.Is(err, repository.ErrNotFound):
		return notFound("%s not found", what)
	case errors.Is(err, repository.ErrDuplicate):
		return conflict("%s already exists", what)
	}
	s.log.WithError(err).Errorf("Storage failure while handling %s", what)
	return internal(err)
}

func (s *Service) emit(ctx context.Context, name string, data any, recipients ...string) {
	s.notifier.Notify(ctx, notify.Event{
		Name:       name,
		Recipients: recipients,
		Data:       data,
		Timestamp:  s.repo.Now(),
	})
}
