package domain

import "time"

type AgentStatus string

const (
	AgentOnline  AgentStatus = "online"  // Присылает heartbeat в пределах окна живости
	AgentOffline AgentStatus = "offline" // Переведен свипером присутствия
)

// Agent — зарегистрированный исполнитель. Идентичность определяется hostname:
// повторная регистрация того же хоста обновляет запись, а не создает дубль.
type Agent struct {
	ID            string      `json:"id"` // UUID
	Hostname      string      `json:"hostname"`
	OS            string      `json:"os"`
	CPUCores      int         `json:"cpuCores"`
	RAMTotalMB    int64       `json:"ramTotalMB"`
	RAMUsedMB     int64       `json:"ramUsedMB"`
	Status        AgentStatus `json:"status"`
	RegisteredAt  time.Time   `json:"registeredAt"`
	LastHeartbeat time.Time   `json:"lastHeartbeat"`

	// Заполняется только в Get: последние задачи агента, новые первыми
	Jobs []*Job `json:"jobs,omitempty"`
}

// AgentSummary — облегченное представление агента, присоединяемое к списку задач.
type AgentSummary struct {
	ID       string      `json:"id"`
	Hostname string      `json:"hostname"`
	Status   AgentStatus `json:"status"`
}

func (a *Agent) Summary() *AgentSummary {
	return &AgentSummary{ID: a.ID, Hostname: a.Hostname, Status: a.Status}
}

// Registration — снимок ресурсов, который агент присылает при регистрации.
type Registration struct {
	Hostname   string `json:"hostname"`
	OS         string `json:"os"`
	CPUCores   int    `json:"cpuCores"`
	RAMTotalMB int64  `json:"ramTotalMB"`
	RAMUsedMB  int64  `json:"ramUsedMB"`
}

func (r Registration) Validate() error {
	if r.Hostname == "" {
		return Invalidf("hostname is required")
	}
	if r.OS == "" {
		return Invalidf("os is required")
	}
	if r.CPUCores < 0 || r.RAMTotalMB < 0 || r.RAMUsedMB < 0 {
		return Invalidf("resource figures must not be negative")
	}
	return nil
}
