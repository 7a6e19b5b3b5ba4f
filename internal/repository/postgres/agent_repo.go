package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/spaceai-fleet/internal/domain"
)

const agentCols = `id, hostname, os, cpu_cores, ram_total_mb, ram_used_mb, status, registered_at, last_heartbeat`

// UpsertAgent создает агента или переподключает известный hostname.
// xmax = 0 у строки означает, что она только что вставлена.
func (s *Store) UpsertAgent(ctx context.Context, reg domain.Registration, now time.Time) (*domain.Agent, bool, error) {
	const query = `
		INSERT INTO agents (id, hostname, os, cpu_cores, ram_total_mb, ram_used_mb, status, registered_at, last_heartbeat)
		VALUES ($1, $2, $3, $4, $5, $6, 'online', $7, $7)
		ON CONFLICT (hostname) DO UPDATE SET
			os = EXCLUDED.os,
			cpu_cores = EXCLUDED.cpu_cores,
			ram_total_mb = EXCLUDED.ram_total_mb,
			ram_used_mb = EXCLUDED.ram_used_mb,
			status = 'online',
			last_heartbeat = GREATEST(EXCLUDED.last_heartbeat, agents.last_heartbeat + INTERVAL '1 microsecond')
		RETURNING ` + agentCols + `, (xmax = 0)`

	var created bool
	a, err := scanAgent(s.pool.QueryRow(ctx, query,
		uuid.NewString(), reg.Hostname, reg.OS, reg.CPUCores, reg.RAMTotalMB, reg.RAMUsedMB, now,
	), &created)
	if err != nil {
		return nil, false, fmt.Errorf("postgres: failed to upsert agent: %w", err)
	}
	return a, created, nil
}

// TouchAgent — heartbeat. lastHeartbeat строго растет даже при совпадении часов.
func (s *Store) TouchAgent(ctx context.Context, id string, ramUsedMB int64, now time.Time) (*domain.Agent, domain.AgentStatus, error) {
	const query = `
		WITH prev AS (SELECT id, status FROM agents WHERE id = $1 FOR UPDATE)
		UPDATE agents a SET
			status = 'online',
			ram_used_mb = $2,
			last_heartbeat = GREATEST($3, a.last_heartbeat + INTERVAL '1 microsecond')
		FROM prev WHERE a.id = prev.id
		RETURNING a.id, a.hostname, a.os, a.cpu_cores, a.ram_total_mb, a.ram_used_mb, a.status,
			a.registered_at, a.last_heartbeat, prev.status`

	var prev domain.AgentStatus
	a, err := scanAgent(s.pool.QueryRow(ctx, query, id, ramUsedMB, now), &prev)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", domain.ErrAgentNotFound
		}
		return nil, "", fmt.Errorf("postgres: failed to touch agent: %w", err)
	}
	return a, prev, nil
}

func (s *Store) GetAgent(ctx context.Context, id string) (*domain.Agent, error) {
	a, err := scanAgent(s.pool.QueryRow(ctx, `SELECT `+agentCols+` FROM agents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAgentNotFound
		}
		return nil, fmt.Errorf("postgres: failed to get agent: %w", err)
	}
	return a, nil
}

func (s *Store) ListAgents(ctx context.Context) ([]*domain.Agent, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+agentCols+` FROM agents ORDER BY registered_at DESC, seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list agents: %w", err)
	}
	defer rows.Close()

	agents := make([]*domain.Agent, 0)
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// DeleteAgent — задачи агента удаляются каскадом (ON DELETE CASCADE).
func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAgentNotFound
	}
	return nil
}

// MarkStaleOffline — один UPDATE на весь проход свипера.
func (s *Store) MarkStaleOffline(ctx context.Context, cutoff time.Time) ([]*domain.Agent, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE agents SET status = 'offline'
		WHERE status = 'online' AND last_heartbeat < $1
		RETURNING `+agentCols, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to mark stale agents: %w", err)
	}
	defer rows.Close()

	var out []*domain.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan agent: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAgent(row pgx.Row, extra ...any) (*domain.Agent, error) {
	a := &domain.Agent{}
	dest := append([]any{
		&a.ID, &a.Hostname, &a.OS, &a.CPUCores, &a.RAMTotalMB, &a.RAMUsedMB, &a.Status, &a.RegisteredAt, &a.LastHeartbeat,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	utc(&a.RegisteredAt)
	utc(&a.LastHeartbeat)
	return a, nil
}
