package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/spaceai-fleet/internal/domain"
)

func (s *Store) CreateToken(ctx context.Context, t *domain.RegistrationToken) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO registration_tokens (value, created_at, expires_at, used) VALUES ($1, $2, $3, $4)`,
		t.Value, t.CreatedAt, t.ExpiresAt, t.Used)
	if err != nil {
		return fmt.Errorf("postgres: failed to insert token: %w", err)
	}
	return nil
}

// ConsumeToken — compare-and-swap used: false -> true одним условным UPDATE.
// Если строка не обновилась, читаем токен, чтобы объяснить отказ.
func (s *Store) ConsumeToken(ctx context.Context, value string, now time.Time) (*domain.RegistrationToken, error) {
	const consume = `
		UPDATE registration_tokens SET used = TRUE
		WHERE value = $1 AND used = FALSE AND expires_at > $2
		RETURNING value, created_at, expires_at, used`

	t, err := scanToken(s.pool.QueryRow(ctx, consume, value, now))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: failed to consume token: %w", err)
	}

	t, err = scanToken(s.pool.QueryRow(ctx,
		`SELECT value, created_at, expires_at, used FROM registration_tokens WHERE value = $1`, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTokenInvalid
		}
		return nil, fmt.Errorf("postgres: failed to read token: %w", err)
	}
	if cerr := t.Check(now); cerr != nil {
		return nil, cerr
	}
	// Проиграли гонку между UPDATE и SELECT
	return nil, domain.ErrTokenUsed
}

func scanToken(row pgx.Row) (*domain.RegistrationToken, error) {
	t := &domain.RegistrationToken{}
	if err := row.Scan(&t.Value, &t.CreatedAt, &t.ExpiresAt, &t.Used); err != nil {
		return nil, err
	}
	utc(&t.CreatedAt)
	utc(&t.ExpiresAt)
	return t, nil
}
