package postgres

import (
	"context"
	"fmt"

	"github.com/xela07ax/spaceai-fleet/internal/domain"
)

func (s *Store) FleetStats(ctx context.Context) (*domain.FleetStats, error) {
	st := &domain.FleetStats{}

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'online'),
			COUNT(*) FILTER (WHERE status = 'offline')
		FROM agents`).Scan(&st.Agents.Total, &st.Agents.Online, &st.Agents.Offline)
	if err != nil {
		return nil, fmt.Errorf("postgres: agent stats: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'running'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM jobs`).Scan(&st.Jobs.Total, &st.Jobs.Pending, &st.Jobs.Running, &st.Jobs.Completed, &st.Jobs.Failed)
	if err != nil {
		return nil, fmt.Errorf("postgres: job stats: %w", err)
	}
	return st, nil
}
