package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/spaceai-fleet/internal/domain"
)

// journalLimit — сколько последних записей журнала отдается за запрос.
const journalLimit = 100

// JournalReader описывает контракт для чтения журнала.
type JournalReader interface {
	FetchJournal(ctx context.Context, agentID string, limit int) ([]domain.JournalEntry, error)
}

type AuditService struct {
	repo JournalReader
}

func NewAuditService(repo JournalReader) *AuditService {
	return &AuditService{
		repo: repo,
	}
}

// FetchLogs — последние записи журнала, опционально по одному агенту.
func (s *AuditService) FetchLogs(ctx context.Context, agentID string) ([]domain.JournalEntry, error) {
	logs, err := s.repo.FetchJournal(ctx, agentID, journalLimit)
	if err != nil {
		return nil, fmt.Errorf("audit_service: failed to fetch logs: %w", err)
	}
	if logs == nil {
		return []domain.JournalEntry{}, nil
	}
	return logs, nil
}
