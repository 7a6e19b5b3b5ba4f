package domain

import "time"

// Статусы State Machine задачи
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// rank задает порядок состояний: переходы допускаются только вперед.
func (s JobStatus) rank() int {
	switch s {
	case JobPending:
		return 0
	case JobRunning:
		return 1
	case JobCompleted, JobFailed:
		return 2
	}
	return -1
}

func (s JobStatus) Valid() bool { return s.rank() >= 0 }

func (s JobStatus) Terminal() bool { return s == JobCompleted || s == JobFailed }

// Resolve возвращает статус, который фактически будет записан при запросе next.
// Из терминального состояния выхода нет, движение назад (running -> pending) игнорируется.
func (s JobStatus) Resolve(next JobStatus) JobStatus {
	if s.Terminal() || next.rank() < s.rank() {
		return s
	}
	return next
}

type Job struct {
	ID          string        `json:"id"`
	Command     string        `json:"command"`
	AgentID     string        `json:"agentId"`
	Status      JobStatus     `json:"status"`
	Output      *string       `json:"output,omitempty"`
	Error       *string       `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	StartedAt   *time.Time    `json:"startedAt,omitempty"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
	Agent       *AgentSummary `json:"agent,omitempty"`
}

// JobUpdate — частичное обновление от агента. nil означает "не менять".
type JobUpdate struct {
	Status *JobStatus `json:"status,omitempty"`
	Output *string    `json:"output,omitempty"`
	Error  *string    `json:"error,omitempty"`
}

func (u JobUpdate) Validate() error {
	if u.Status != nil && !u.Status.Valid() {
		return Invalidf("unknown job status %q", *u.Status)
	}
	return nil
}

// Apply применяет обновление к задаче. Метки времени ставятся только при первом
// входе в running / терминальное состояние, повторные одинаковые апдейты их не трогают.
func (j *Job) Apply(u JobUpdate, now time.Time) {
	if u.Status != nil {
		next := j.Status.Resolve(*u.Status)
		if next == JobRunning && j.StartedAt == nil {
			t := now
			j.StartedAt = &t
		}
		if next.Terminal() && j.CompletedAt == nil {
			t := now
			j.CompletedAt = &t
		}
		j.Status = next
	}
	if u.Output != nil {
		v := *u.Output
		j.Output = &v
	}
	if u.Error != nil {
		v := *u.Error
		j.Error = &v
	}
}

// JobFilter описывает выборку задач из репозитория.
type JobFilter struct {
	AgentID string
	Status  JobStatus
	Oldest  bool // true — старые первыми (FIFO для агента)
	Limit   int
}
