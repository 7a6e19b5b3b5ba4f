package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xela07ax/spaceai-fleet/internal/domain"
)

// WriteBatch вставляет пачку записей журнала одним INSERT.
func (s *Store) WriteBatch(ctx context.Context, entries []domain.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}

	// Количество колонок в таблице fleet_journal
	numFields := 8
	var placeholders strings.Builder
	vals := make([]interface{}, 0, len(entries)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range entries {
		p := i * numFields
		if i > 0 {
			placeholders.WriteString(",")
		}
		fmt.Fprintf(&placeholders, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8)

		details, _ := json.Marshal(e.Details)
		vals = append(vals,
			e.ID, e.TraceID, e.Action, e.AgentID, e.JobID, e.ActorID, details, e.At,
		)
	}

	query := "INSERT INTO fleet_journal (id, trace_id, action, agent_id, job_id, actor_id, details, at) VALUES " +
		placeholders.String() + " ON CONFLICT (id) DO NOTHING"

	if _, err := s.pool.Exec(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: journal batch insert: %w", err)
	}
	return nil
}

// FetchJournal — последние записи, новые первыми.
func (s *Store) FetchJournal(ctx context.Context, agentID string, limit int) ([]domain.JournalEntry, error) {
	query := `
		SELECT id, COALESCE(trace_id, ''), action, COALESCE(agent_id, ''), COALESCE(job_id, ''),
			COALESCE(actor_id, ''), details, at
		FROM fleet_journal
		WHERE ($1 = '' OR agent_id = $1)
		ORDER BY seq DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to fetch journal: %w", err)
	}
	defer rows.Close()

	out := make([]domain.JournalEntry, 0)
	for rows.Next() {
		var (
			e       domain.JournalEntry
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.TraceID, &e.Action, &e.AgentID, &e.JobID, &e.ActorID, &details, &e.At); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan journal: %w", err)
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &e.Details)
		}
		utc(&e.At)
		out = append(out, e)
	}
	return out, rows.Err()
}
