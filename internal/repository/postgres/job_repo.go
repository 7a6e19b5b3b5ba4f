package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xela07ax/spaceai-fleet/internal/domain"
)

const jobSelect = `
	SELECT j.id, j.command, j.agent_id, j.status, j.output, j.error, j.created_at, j.started_at, j.completed_at,
		a.hostname, a.status
	FROM jobs j JOIN agents a ON a.id = j.agent_id`

func (s *Store) CreateJob(ctx context.Context, j *domain.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, command, agent_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		j.ID, j.Command, j.AgentID, j.Status, j.CreatedAt)
	if err != nil {
		// 23503 — нарушение FK: агент удален между проверкой и вставкой
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return domain.ErrAgentNotFound
		}
		return fmt.Errorf("postgres: failed to insert job: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, jobSelect+` WHERE j.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("postgres: failed to get job: %w", err)
	}
	return j, nil
}

func (s *Store) ListJobs(ctx context.Context, f domain.JobFilter) ([]*domain.Job, error) {
	var (
		where []string
		args  []any
	)
	if f.AgentID != "" {
		args = append(args, f.AgentID)
		where = append(where, fmt.Sprintf("j.agent_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("j.status = $%d", len(args)))
	}

	query := jobSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if f.Oldest {
		query += " ORDER BY j.created_at ASC, j.seq ASC"
	} else {
		query += " ORDER BY j.created_at DESC, j.seq DESC"
	}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*domain.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// UpdateJob блокирует строку задачи (FOR UPDATE), применяет переход в домене
// и пишет результат. Два конкурентных апдейта одной задачи сериализуются.
func (s *Store) UpdateJob(ctx context.Context, id string, u domain.JobUpdate, now time.Time) (*domain.Job, domain.JobStatus, error) {
	var (
		job  *domain.Job
		prev domain.JobStatus
	)
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		j, err := scanJob(tx.QueryRow(ctx, jobSelect+` WHERE j.id = $1 FOR UPDATE OF j`, id))
		if err != nil {
			return err
		}
		prev = j.Status
		j.Apply(u, now)

		_, err = tx.Exec(ctx, `
			UPDATE jobs SET status = $2, output = $3, error = $4, started_at = $5, completed_at = $6
			WHERE id = $1`,
			j.ID, j.Status, j.Output, j.Error, j.StartedAt, j.CompletedAt)
		job = j
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", domain.ErrJobNotFound
		}
		return nil, "", fmt.Errorf("postgres: failed to update job: %w", err)
	}
	return job, prev, nil
}

func (s *Store) DeleteJob(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	j := &domain.Job{Agent: &domain.AgentSummary{}}
	err := row.Scan(
		&j.ID, &j.Command, &j.AgentID, &j.Status, &j.Output, &j.Error, &j.CreatedAt, &j.StartedAt, &j.CompletedAt,
		&j.Agent.Hostname, &j.Agent.Status,
	)
	if err != nil {
		return nil, err
	}
	j.Agent.ID = j.AgentID
	utc(&j.CreatedAt)
	utcPtr(j.StartedAt)
	utcPtr(j.CompletedAt)
	return j, nil
}
