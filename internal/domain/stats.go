package domain

import "time"

// FleetStats — сводка для дашборда и /health/metrics.
type FleetStats struct {
	Agents AgentCounts `json:"agents"`
	Jobs   JobCounts   `json:"jobs"`
	At     time.Time   `json:"timestamp"`
}

type AgentCounts struct {
	Total   int `json:"total"`
	Online  int `json:"online"`
	Offline int `json:"offline"`
}

type JobCounts struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
