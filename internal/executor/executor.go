package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Maestro/internal/domain"
	"github.com/shaiso/Maestro/internal/events"
	"github.com/shaiso/Maestro/internal/lock"
	"github.com/shaiso/Maestro/internal/repo"
	"github.com/shaiso/Maestro/internal/service"
	"github.com/shaiso/Maestro/internal/telemetry"
)

// TaskFunc — полезная работа задачи.
//
// Подставляется при сборке оркестратора; executor отвечает только
// за порядок, блокировки, повторы и статусы.
type TaskFunc func(ctx context.Context, task domain.Task) error

// Config — конфигурация исполнителя.
type Config struct {
	// MaxRetries — число попыток выполнения задачи.
	MaxRetries int

	// BaseBackoff — базовая пауза между попытками; удваивается
	// с каждой следующей попыткой.
	BaseBackoff time.Duration

	// LockTTL — время жизни lease блокировки задачи.
	LockTTL time.Duration

	// LockWait — сколько ждать занятую блокировку.
	LockWait time.Duration

	// LockRetry — интервал опроса занятой блокировки.
	LockRetry time.Duration

	// ExecutionTTL — время жизни маркера идемпотентности.
	ExecutionTTL time.Duration
}

// withDefaults заполняет нулевые поля значениями по умолчанию.
func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 500 * time.Millisecond
	}
	if c.LockTTL <= 0 {
		c.LockTTL = lock.DefaultTTL
	}
	if c.LockWait <= 0 {
		c.LockWait = lock.DefaultWaitTimeout
	}
	if c.LockRetry <= 0 {
		c.LockRetry = lock.DefaultRetryInterval
	}
	if c.ExecutionTTL <= 0 {
		c.ExecutionTTL = lock.DefaultExecutionTTL
	}
	return c
}

// Executor — исполнитель workflow.
//
// Раздаёт готовые задачи пулу воркеров. Каждая задача выполняется
// под распределённой блокировкой с маркером идемпотентности, так
// что несколько экземпляров оркестратора могут делить одну очередь
// без двойного выполнения. После успешного завершения задачи
// исполнитель продвигает зависимые задачи, у которых завершились
// все родители.
type Executor struct {
	store     repo.Store
	tasks     *service.TaskService
	locker    *lock.Locker
	publisher service.EventPublisher
	pool      *Pool
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	run       TaskFunc
	cfg       Config
}

// New создаёт исполнителя.
func New(store repo.Store, tasks *service.TaskService, locker *lock.Locker, publisher service.EventPublisher, pool *Pool, metrics *telemetry.Metrics, run TaskFunc, cfg Config, logger *slog.Logger) *Executor {
	return &Executor{
		store:     store,
		tasks:     tasks,
		locker:    locker,
		publisher: publisher,
		pool:      pool,
		metrics:   metrics,
		logger:    logger,
		run:       run,
		cfg:       cfg.withDefaults(),
	}
}

// ExecuteWorkflow запускает выполнение workflow.
//
// При первом вызове переводит workflow READY → RUNNING и публикует
// WORKFLOW_STARTED после фиксации. Затем раздаёт пулу все задачи в
// статусе READY. Повторный вызов на выполняющемся workflow безопасен:
// уже выполненные задачи отсеет маркер идемпотентности, выполняющиеся
// — блокировка.
func (e *Executor) ExecuteWorkflow(ctx context.Context, workflowID uuid.UUID) error {
	var ready []domain.Task

	err := e.store.Atomic(ctx, func(ctx context.Context, store repo.Store) error {
		ready = nil

		if err := store.LockWorkflow(ctx, workflowID); err != nil {
			return err
		}
		wf, err := store.GetWorkflow(ctx, workflowID)
		if err != nil {
			return err
		}

		switch wf.Status {
		case domain.WorkflowStatusCreated:
			return fmt.Errorf("workflow %s has not been started", workflowID)
		case domain.WorkflowStatusCompleted, domain.WorkflowStatusFailed:
			return nil
		case domain.WorkflowStatusReady:
			if err := store.UpdateWorkflowStatus(ctx, workflowID, domain.WorkflowStatusRunning); err != nil {
				return err
			}
			ev := events.NewWorkflowEvent(events.WorkflowStarted, workflowID, string(domain.WorkflowStatusRunning), e.publisher.Source())
			store.AfterCommit(func(ctx context.Context) {
				if err := e.publisher.Publish(ctx, ev); err != nil {
					e.logger.Error("event publication failed", "event_type", ev.EventType, "error", err)
				}
			})
		}

		for _, task := range wf.TasksByStatus(domain.TaskStatusReady) {
			ready = append(ready, *task)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("execute workflow %s: %w", workflowID, err)
	}

	for _, task := range ready {
		e.submit(ctx, task)
	}
	return nil
}

// TriggerNextTasks продвигает задачи, у которых завершились все
// родители, из PENDING в READY и раздаёт их пулу.
//
// Идемпотентна: вызывается и из синхронного пути исполнителя, и из
// координатора по событию TASK_COMPLETED; оба пути сходятся под
// блокировкой строки workflow, повторный вызов не находит кандидатов.
func (e *Executor) TriggerNextTasks(ctx context.Context, workflowID uuid.UUID) error {
	var promoted []domain.Task

	err := e.store.Atomic(ctx, func(ctx context.Context, store repo.Store) error {
		promoted = nil

		if err := store.LockWorkflow(ctx, workflowID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil
			}
			return err
		}
		tasks, err := store.ListTasks(ctx, workflowID)
		if err != nil {
			return err
		}

		statuses := make(map[uuid.UUID]domain.TaskStatus, len(tasks))
		for i := range tasks {
			statuses[tasks[i].ID] = tasks[i].Status
		}
		statusOf := func(id uuid.UUID) (domain.TaskStatus, bool) {
			status, ok := statuses[id]
			return status, ok
		}

		for i := range tasks {
			task := tasks[i]
			if task.Status != domain.TaskStatusPending {
				continue
			}
			if !task.DependsOnAllCompleted(statusOf) {
				continue
			}
			if err := store.UpdateTaskStatus(ctx, task.ID, domain.TaskStatusReady); err != nil {
				return err
			}
			task.Status = domain.TaskStatusReady
			promoted = append(promoted, task)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("trigger next tasks for %s: %w", workflowID, err)
	}

	if len(promoted) > 0 {
		telemetry.WithWorkflowID(e.logger, workflowID.String()).
			Info("tasks promoted", "count", len(promoted))
	}
	for _, task := range promoted {
		e.submit(ctx, task)
	}
	return nil
}

// submit передаёт задачу пулу воркеров.
func (e *Executor) submit(ctx context.Context, task domain.Task) {
	// Задача переживает запрос, породивший её запуск
	ctx = context.WithoutCancel(ctx)

	err := e.pool.Submit(func() {
		e.runTaskWithLock(ctx, task)
	})
	if err != nil {
		e.logger.Error("task submission failed", "task_id", task.ID, "error", err)
	}
}

// runTaskWithLock выполняет задачу под распределённой блокировкой.
//
// Порядок: быстрая проверка маркера идемпотентности без блокировки,
// захват блокировки, повторная проверка маркера под блокировкой
// (маркер мог появиться, пока блокировку держал другой экземпляр),
// выполнение. Блокировка освобождается всегда.
func (e *Executor) runTaskWithLock(ctx context.Context, task domain.Task) {
	logger := telemetry.WithTaskID(e.logger, task.ID.String())
	doneKey := lock.TaskDoneKey(task.ID.String())

	done, err := e.locker.IsAlreadyExecuted(ctx, doneKey)
	if err != nil {
		logger.Error("idempotency check failed", "error", err)
		return
	}
	if done {
		logger.Debug("task already executed, skipping")
		e.triggerNext(ctx, task.WorkflowID, logger)
		return
	}

	lockKey := lock.TaskLockKey(task.ID.String())
	token, err := e.locker.LockBlocking(ctx, lockKey, e.cfg.LockTTL, e.cfg.LockWait, e.cfg.LockRetry)
	if err != nil {
		logger.Error("lock acquisition failed", "error", err)
		return
	}
	if token == "" {
		// Задачей занят другой экземпляр
		if e.metrics != nil {
			e.metrics.LockContention.Inc()
		}
		logger.Debug("task lock busy, skipping")
		return
	}
	defer func() {
		if _, err := e.locker.ReleaseLock(ctx, lockKey, token); err != nil {
			logger.Error("lock release failed", "error", err)
		}
	}()

	done, err = e.locker.IsAlreadyExecuted(ctx, doneKey)
	if err != nil {
		logger.Error("idempotency check failed", "error", err)
		return
	}
	if done {
		logger.Debug("task executed while waiting for lock, skipping")
		e.triggerNext(ctx, task.WorkflowID, logger)
		return
	}

	e.runTaskWithRetries(ctx, task, logger)
}

// runTaskWithRetries выполняет задачу с повторами и экспоненциальным
// backoff. Исчерпание попыток переводит задачу в FAILED.
func (e *Executor) runTaskWithRetries(ctx context.Context, task domain.Task, logger *slog.Logger) {
	doneKey := lock.TaskDoneKey(task.ID.String())

	current, err := e.store.GetTask(ctx, task.ID)
	if err != nil {
		logger.Error("task reload failed", "error", err)
		return
	}
	switch current.Status {
	case domain.TaskStatusCompleted:
		// Статус зафиксирован, а маркер поставить не успели
		if err := e.locker.MarkExecuted(ctx, doneKey, e.cfg.ExecutionTTL); err != nil {
			logger.Error("idempotency mark failed", "error", err)
		}
		e.triggerNext(ctx, task.WorkflowID, logger)
		return
	case domain.TaskStatusFailed:
		return
	case domain.TaskStatusPending:
		// Зависимости ещё не завершены
		return
	case domain.TaskStatusInProgress:
		// Предыдущий держатель блокировки потерял lease посреди
		// выполнения; прогон повторяется, от двойного эффекта
		// защищает маркер идемпотентности
	}

	if _, err := e.tasks.ChangeStatus(ctx, task.ID, domain.TaskStatusInProgress); err != nil {
		logger.Error("task start failed", "error", err)
		return
	}

	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		lastErr = e.run(ctx, *current)
		if lastErr == nil {
			if e.metrics != nil {
				e.metrics.TaskDuration.Observe(time.Since(start).Seconds())
				e.metrics.TasksExecuted.WithLabelValues("completed").Inc()
			}
			if _, err := e.tasks.ChangeStatus(ctx, task.ID, domain.TaskStatusCompleted); err != nil {
				logger.Error("task completion failed", "error", err)
				return
			}
			if err := e.locker.MarkExecuted(ctx, doneKey, e.cfg.ExecutionTTL); err != nil {
				logger.Error("idempotency mark failed", "error", err)
			}
			logger.Info("task completed", "attempts", attempt)
			e.triggerNext(ctx, task.WorkflowID, logger)
			return
		}

		logger.Warn("task attempt failed",
			"attempt", attempt,
			"max_retries", e.cfg.MaxRetries,
			"error", lastErr,
		)

		if attempt < e.cfg.MaxRetries {
			if e.metrics != nil {
				e.metrics.TaskRetries.Inc()
			}
			backoff := e.cfg.BaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
		}
	}

	if e.metrics != nil {
		e.metrics.TasksExecuted.WithLabelValues("failed").Inc()
	}
	logger.Error("task failed permanently",
		"error", fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr),
	)
	if _, err := e.tasks.ChangeStatus(ctx, task.ID, domain.TaskStatusFailed); err != nil {
		logger.Error("task failure recording failed", "error", err)
	}
}

// triggerNext продвигает зависимые задачи, логируя ошибку.
func (e *Executor) triggerNext(ctx context.Context, workflowID uuid.UUID, logger *slog.Logger) {
	if err := e.TriggerNextTasks(ctx, workflowID); err != nil {
		logger.Error("dependent task promotion failed", "error", err)
	}
}
