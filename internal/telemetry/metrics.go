package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics — счётчики и гистограммы оркестратора.
type Metrics struct {
	// TasksExecuted — выполненные задачи по результату (completed/failed).
	TasksExecuted *prometheus.CounterVec

	// TaskRetries — повторные попытки выполнения задач.
	TaskRetries prometheus.Counter

	// TaskDuration — длительность выполнения задачи в секундах.
	TaskDuration prometheus.Histogram

	// LockContention — попытки захвата уже занятого замка задачи.
	LockContention prometheus.Counter

	// EventsPublished — опубликованные события по типу.
	EventsPublished *prometheus.CounterVec

	// EventsConsumed — обработанные события по типу.
	EventsConsumed *prometheus.CounterVec

	// EventsDuplicate — события, отброшенные дедупликацией.
	EventsDuplicate prometheus.Counter
}

// NewMetrics регистрирует метрики в реестре.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TasksExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maestro",
			Name:      "tasks_executed_total",
			Help:      "Number of executed tasks by outcome.",
		}, []string{"outcome"}),

		TaskRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "maestro",
			Name:      "task_retries_total",
			Help:      "Number of task execution retries.",
		}),

		TaskDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "maestro",
			Name:      "task_duration_seconds",
			Help:      "Task execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		LockContention: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "maestro",
			Name:      "task_lock_contention_total",
			Help:      "Number of attempts to acquire an already held task lock.",
		}),

		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maestro",
			Name:      "events_published_total",
			Help:      "Number of published workflow events by type.",
		}, []string{"type"}),

		EventsConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maestro",
			Name:      "events_consumed_total",
			Help:      "Number of consumed workflow events by type.",
		}, []string{"type"}),

		EventsDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "maestro",
			Name:      "events_duplicate_total",
			Help:      "Number of events skipped by the processed-event ledger.",
		}),
	}
}
