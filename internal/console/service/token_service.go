package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/xela07ax/spaceai-fleet/internal/domain"
	"github.com/xela07ax/spaceai-fleet/internal/engine"
	"go.uber.org/zap"
)

// tokenBytes — 256 бит энтропии на токен.
const tokenBytes = 32

type TokenService struct {
	repo       TokenRepository
	defaultTTL time.Duration
	clock      Clock
	metrics    *engine.Metrics
	logger     *zap.Logger
}

func NewTokenService(repo TokenRepository, defaultTTL time.Duration, metrics *engine.Metrics, logger *zap.Logger) *TokenService {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &TokenService{
		repo:       repo,
		defaultTTL: defaultTTL,
		metrics:    metrics,
		logger:     logger.Named("token-service"),
	}
}

func (s *TokenService) SetClock(c Clock) { s.clock = c }

// Issue выпускает одноразовый токен регистрации. ttl <= 0 — TTL по умолчанию.
func (s *TokenService) Issue(ctx context.Context, ttl time.Duration) (*domain.RegistrationToken, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	return s.issue(ctx, ttl)
}

// IssueWithTTL выпускает токен ровно с заданным TTL. Нулевой TTL дает
// токен, истекший в момент выпуска.
func (s *TokenService) IssueWithTTL(ctx context.Context, ttl time.Duration) (*domain.RegistrationToken, error) {
	if ttl < 0 {
		return nil, domain.Invalidf("ttl must not be negative")
	}
	return s.issue(ctx, ttl)
}

func (s *TokenService) issue(ctx context.Context, ttl time.Duration) (*domain.RegistrationToken, error) {
	value, err := newTokenValue()
	if err != nil {
		return nil, fmt.Errorf("service: token entropy: %w", err)
	}

	now := s.clock.now()
	t := &domain.RegistrationToken{
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.repo.CreateToken(ctx, t); err != nil {
		s.logger.Error("failed to persist registration token", zap.Error(err))
		return nil, fmt.Errorf("service: could not issue token: %w", err)
	}

	s.logger.Info("registration token issued",
		zap.Time("expires_at", t.ExpiresAt),
		zap.String("actor", actorID(ctx)))
	return t, nil
}

// Consume тратит токен. Ровно один из конкурентных вызовов с одним значением успешен.
func (s *TokenService) Consume(ctx context.Context, value string) error {
	if value == "" {
		s.metrics.TokenRejects.WithLabelValues("invalid").Inc()
		return domain.ErrTokenInvalid
	}
	if _, err := s.repo.ConsumeToken(ctx, value, s.clock.now()); err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			s.metrics.TokenRejects.WithLabelValues(rejectReason(err)).Inc()
			s.logger.Warn("registration token rejected", zap.Error(err))
			return err
		}
		s.logger.Error("token consume failed", zap.Error(err))
		return fmt.Errorf("service: could not consume token: %w", err)
	}
	return nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrTokenUsed):
		return "used"
	case errors.Is(err, domain.ErrTokenExpired):
		return "expired"
	}
	return "invalid"
}

func newTokenValue() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
