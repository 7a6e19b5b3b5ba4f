package service

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/spaceai-fleet/internal/domain"
)

type HealthService struct {
	repo StatsRepository
}

func NewHealthService(repo StatsRepository) *HealthService {
	return &HealthService{repo: repo}
}

// Check — пинг хранилища с коротким таймаутом.
func (s *HealthService) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.repo.Ping(ctx); err != nil {
		return fmt.Errorf("health: repository unreachable: %w", err)
	}
	return nil
}

// Summary — сводка флота для дашборда.
func (s *HealthService) Summary(ctx context.Context) (*domain.FleetStats, error) {
	st, err := s.repo.FleetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("health: fleet stats: %w", err)
	}
	st.At = time.Now().UTC()
	return st, nil
}
