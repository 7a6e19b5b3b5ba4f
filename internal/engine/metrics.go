package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько времени заняла обработка HTTP-запроса
	RequestDuration *prometheus.HistogramVec

	// Traffic: общее кол-во запросов
	TotalRequests *prometheus.CounterVec

	// Errors: классификация отказов по доменному классу
	ErrorTotal *prometheus.CounterVec

	// Реестр агентов
	Registrations  *prometheus.CounterVec // kind: new, reattach
	TokenRejects   *prometheus.CounterVec // reason: invalid, used, expired
	AgentsOnline   prometheus.Gauge
	SweepDemotions prometheus.Counter

	// Диспетчер задач
	JobsCreated  prometheus.Counter
	JobsFinished *prometheus.CounterVec // status: completed, failed
	JobDuration  prometheus.Histogram

	// Saturation: медленные наблюдатели и переполненный журнал
	EventsDropped  *prometheus.CounterVec
	JournalDropped prometheus.Counter

	// Состояние Circuit Breaker агента (0 - ок, 1 - выбило)
	CircuitBreakerState *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fleet_http_request_duration_seconds",
			Help:    "Histogram of request latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "route", "code"}),

		TotalRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_http_requests_total",
			Help: "Total number of processed requests.",
		}, []string{"method", "route", "code"}),

		ErrorTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_errors_total",
			Help: "Total number of errors by kind.",
		}, []string{"kind"}), // not_found, conflict, invalid, unauthorized, internal

		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_agent_registrations_total",
			Help: "Agent registrations, new hosts vs re-attached hosts.",
		}, []string{"kind"}),

		TokenRejects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_registration_token_rejects_total",
			Help: "Rejected registration token presentations.",
		}, []string{"reason"}),

		AgentsOnline: f.NewGauge(prometheus.GaugeOpts{
			Name: "fleet_agents_online",
			Help: "Agents currently considered online.",
		}),

		SweepDemotions: f.NewCounter(prometheus.CounterOpts{
			Name: "fleet_presence_demotions_total",
			Help: "Agents demoted to offline by the presence sweep.",
		}),

		JobsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "fleet_jobs_created_total",
			Help: "Jobs accepted by the dispatcher.",
		}),

		JobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_jobs_finished_total",
			Help: "Jobs that reached a terminal status.",
		}, []string{"status"}),

		JobDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fleet_job_duration_seconds",
			Help:    "Time between job start and completion.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),

		EventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_events_dropped_total",
			Help: "Events dropped because an observer buffer was full.",
		}, []string{"topic"}),

		JournalDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "fleet_journal_dropped_total",
			Help: "Journal entries dropped on buffer overflow.",
		}),

		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleet_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open).",
		}, []string{"name"}),
	}
}
