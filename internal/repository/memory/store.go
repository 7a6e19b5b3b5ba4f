// Package memory — хранилище в памяти процесса. Используется в dev-режиме
// (database.driver = memory) и в тестах сервисов. Все операции над одной
// записью выполняются под общим мьютексом, что дает ту же линеаризуемость,
// что и построчные блокировки Postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/spaceai-fleet/internal/domain"
)

type agentRow struct {
	domain.Agent
	seq uint64
}

type jobRow struct {
	domain.Job
	seq uint64
}

type Store struct {
	mu      sync.RWMutex
	seq     uint64
	tokens  map[string]*domain.RegistrationToken
	agents  map[string]*agentRow
	byHost  map[string]string // hostname -> agent id
	jobs    map[string]*jobRow
	users   map[string]*domain.User // username -> user
	journal []domain.JournalEntry
}

func NewStore() *Store {
	return &Store{
		tokens: make(map[string]*domain.RegistrationToken),
		agents: make(map[string]*agentRow),
		byHost: make(map[string]string),
		jobs:   make(map[string]*jobRow),
		users:  make(map[string]*domain.User),
	}
}

func (s *Store) next() uint64 {
	s.seq++
	return s.seq
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// --- Tokens ---

func (s *Store) CreateToken(ctx context.Context, t *domain.RegistrationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tokens[t.Value] = &cp
	return nil
}

// ConsumeToken — compare-and-swap used: false -> true.
func (s *Store) ConsumeToken(ctx context.Context, value string, now time.Time) (*domain.RegistrationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[value]
	if !ok {
		return nil, domain.ErrTokenInvalid
	}
	if err := t.Check(now); err != nil {
		return nil, err
	}
	t.Used = true
	cp := *t
	return &cp, nil
}

// --- Agents ---

func (s *Store) UpsertAgent(ctx context.Context, reg domain.Registration, now time.Time) (*domain.Agent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byHost[reg.Hostname]; ok {
		row := s.agents[id]
		row.OS = reg.OS
		row.CPUCores = reg.CPUCores
		row.RAMTotalMB = reg.RAMTotalMB
		row.RAMUsedMB = reg.RAMUsedMB
		row.Status = domain.AgentOnline
		row.LastHeartbeat = fresher(row.LastHeartbeat, now)
		cp := row.Agent
		return &cp, false, nil
	}

	row := &agentRow{
		Agent: domain.Agent{
			ID:            uuid.NewString(),
			Hostname:      reg.Hostname,
			OS:            reg.OS,
			CPUCores:      reg.CPUCores,
			RAMTotalMB:    reg.RAMTotalMB,
			RAMUsedMB:     reg.RAMUsedMB,
			Status:        domain.AgentOnline,
			RegisteredAt:  now,
			LastHeartbeat: now,
		},
		seq: s.next(),
	}
	s.agents[row.ID] = row
	s.byHost[row.Hostname] = row.ID
	cp := row.Agent
	return &cp, true, nil
}

// TouchAgent обновляет heartbeat и возвращает статус, который был до него.
func (s *Store) TouchAgent(ctx context.Context, id string, ramUsedMB int64, now time.Time) (*domain.Agent, domain.AgentStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.agents[id]
	if !ok {
		return nil, "", domain.ErrAgentNotFound
	}
	prev := row.Status
	row.Status = domain.AgentOnline
	row.RAMUsedMB = ramUsedMB
	row.LastHeartbeat = fresher(row.LastHeartbeat, now)
	cp := row.Agent
	return &cp, prev, nil
}

func (s *Store) GetAgent(ctx context.Context, id string) (*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.agents[id]
	if !ok {
		return nil, domain.ErrAgentNotFound
	}
	cp := row.Agent
	return &cp, nil
}

func (s *Store) ListAgents(ctx context.Context) ([]*domain.Agent, error) {
	s.mu.RLock()
	rows := make([]*agentRow, 0, len(s.agents))
	for _, r := range s.agents {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].RegisteredAt.Equal(rows[j].RegisteredAt) {
			return rows[i].RegisteredAt.After(rows[j].RegisteredAt)
		}
		return rows[i].seq > rows[j].seq
	})
	out := make([]*domain.Agent, 0, len(rows))
	for _, r := range rows {
		cp := r.Agent
		out = append(out, &cp)
	}
	s.mu.RUnlock()
	return out, nil
}

// DeleteAgent удаляет агента вместе с его задачами (каскад).
func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.agents[id]
	if !ok {
		return domain.ErrAgentNotFound
	}
	delete(s.agents, id)
	delete(s.byHost, row.Hostname)
	for jid, j := range s.jobs {
		if j.AgentID == id {
			delete(s.jobs, jid)
		}
	}
	return nil
}

func (s *Store) MarkStaleOffline(ctx context.Context, cutoff time.Time) ([]*domain.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Agent
	for _, row := range s.agents {
		if row.Status == domain.AgentOnline && row.LastHeartbeat.Before(cutoff) {
			row.Status = domain.AgentOffline
			cp := row.Agent
			out = append(out, &cp)
		}
	}
	return out, nil
}

// fresher гарантирует строгий рост lastHeartbeat даже при совпадении часов.
func fresher(prev, now time.Time) time.Time {
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Microsecond)
}

// --- Jobs ---

func (s *Store) CreateJob(ctx context.Context, j *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[j.AgentID]; !ok {
		return domain.ErrAgentNotFound
	}
	row := &jobRow{Job: *j, seq: s.next()}
	row.Agent = nil
	s.jobs[j.ID] = row
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return s.withAgent(row), nil
}

func (s *Store) ListJobs(ctx context.Context, f domain.JobFilter) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]*jobRow, 0)
	for _, r := range s.jobs {
		if f.AgentID != "" && r.AgentID != f.AgentID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if f.Oldest {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		if f.Oldest {
			return a.seq < b.seq
		}
		return a.seq > b.seq
	})
	if f.Limit > 0 && len(rows) > f.Limit {
		rows = rows[:f.Limit]
	}
	out := make([]*domain.Job, 0, len(rows))
	for _, r := range rows {
		out = append(out, s.withAgent(r))
	}
	return out, nil
}

func (s *Store) UpdateJob(ctx context.Context, id string, u domain.JobUpdate, now time.Time) (*domain.Job, domain.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.jobs[id]
	if !ok {
		return nil, "", domain.ErrJobNotFound
	}
	prev := row.Status
	row.Apply(u, now)
	return s.withAgent(row), prev, nil
}

func (s *Store) DeleteJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return domain.ErrJobNotFound
	}
	delete(s.jobs, id)
	return nil
}

// withAgent копирует задачу и присоединяет сводку агента. Вызывать под локом.
func (s *Store) withAgent(r *jobRow) *domain.Job {
	cp := r.Job
	if r.StartedAt != nil {
		t := *r.StartedAt
		cp.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	if a, ok := s.agents[r.AgentID]; ok {
		cp.Agent = a.Summary()
	}
	return &cp
}

// --- Users ---

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	cp := *u
	s.users[u.Username] = &cp
	return nil
}

// --- Journal ---

func (s *Store) WriteBatch(ctx context.Context, entries []domain.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journal = append(s.journal, entries...)
	return nil
}

func (s *Store) FetchJournal(ctx context.Context, agentID string, limit int) ([]domain.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.JournalEntry, 0)
	for i := len(s.journal) - 1; i >= 0; i-- {
		e := s.journal[i]
		if agentID != "" && e.AgentID != agentID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// --- Stats ---

func (s *Store) FleetStats(ctx context.Context) (*domain.FleetStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := &domain.FleetStats{}
	for _, a := range s.agents {
		st.Agents.Total++
		if a.Status == domain.AgentOnline {
			st.Agents.Online++
		} else {
			st.Agents.Offline++
		}
	}
	for _, j := range s.jobs {
		st.Jobs.Total++
		switch j.Status {
		case domain.JobPending:
			st.Jobs.Pending++
		case domain.JobRunning:
			st.Jobs.Running++
		case domain.JobCompleted:
			st.Jobs.Completed++
		case domain.JobFailed:
			st.Jobs.Failed++
		}
	}
	return st, nil
}
