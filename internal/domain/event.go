package domain

import (
	"encoding/json"
	"time"
)

// Топики, в которые ядро публикует изменения состояния
const (
	TopicAgentUpdate = "agent:update"
	TopicAgentStatus = "agent:status"
	TopicJobUpdate   = "job:update"
)

var Topics = []string{TopicAgentUpdate, TopicAgentStatus, TopicJobUpdate}

// Event — уведомление наблюдателям. Payload сериализуется как есть.
type Event struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

// AgentStatusChange — полезная нагрузка agent:status.
type AgentStatusChange struct {
	AgentID string      `json:"agentId"`
	Status  AgentStatus `json:"status"`
}

// JournalEntry — запись журнала жизненного цикла (аудит).
type JournalEntry struct {
	ID      string            `json:"id"`
	TraceID string            `json:"traceId,omitempty"`
	Action  string            `json:"action"` // agent.register, job.create, ...
	AgentID string            `json:"agentId,omitempty"`
	JobID   string            `json:"jobId,omitempty"`
	ActorID string            `json:"actorId,omitempty"` // оператор, если вызов аутентифицирован
	Details map[string]string `json:"details,omitempty"`
	At      time.Time         `json:"at"`
}
