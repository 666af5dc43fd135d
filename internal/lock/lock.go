package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Значения по умолчанию для конфигурации блокировок.
const (
	// DefaultTTL — время жизни lease блокировки.
	DefaultTTL = 30 * time.Second

	// DefaultWaitTimeout — сколько ждать занятую блокировку.
	DefaultWaitTimeout = 2 * time.Second

	// DefaultRetryInterval — интервал между попытками захвата.
	DefaultRetryInterval = 100 * time.Millisecond

	// DefaultExecutionTTL — время жизни маркера идемпотентности.
	DefaultExecutionTTL = 24 * time.Hour
)

// markerValue — значение маркера идемпотентности.
const markerValue = "done"

// Store — key-value хранилище для блокировок и маркеров.
//
// Реализация обязана гарантировать атомарность SetNX и
// CompareAndDelete на стороне сервера: release через
// "прочитал-сравнил-удалил" на клиенте допускает удаление
// чужой блокировки после истечения TTL.
type Store interface {
	// SetNX атомарно записывает значение, если ключа нет. Возвращает
	// true, если запись произошла.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Get возвращает значение ключа или "" если ключа нет.
	Get(ctx context.Context, key string) (string, error)

	// Set записывает значение с TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// CompareAndDelete атомарно удаляет ключ, только если его текущее
	// значение равно value. Возвращает true при удалении.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}

// Locker — межпроцессная блокировка выполнения + кэш идемпотентности.
//
// Блокировка ограничивает одновременное выполнение task разными
// экземплярами оркестратора; маркер идемпотентности ограничивает
// повторное выполнение после рестартов и потери lease. Нужны оба:
// lease может истечь посреди выполнения, а task может быть
// переотправлен после краха вообще без конкуренции за блокировку.
type Locker struct {
	store  Store
	logger *slog.Logger
}

// NewLocker создаёт новый Locker.
func NewLocker(store Store, logger *slog.Logger) *Locker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locker{store: store, logger: logger}
}

// TryLock пытается захватить блокировку с TTL.
// Возвращает токен владения или "", если блокировка занята.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.New().String()

	ok, err := l.store.SetNX(ctx, key, token, ttl)
	if err != nil {
		return "", fmt.Errorf("try lock %s: %w", key, err)
	}

	if !ok {
		l.logger.Debug("lock busy", "key", key)
		return "", nil
	}

	l.logger.Debug("lock acquired", "key", key, "token", token)
	return token, nil
}

// LockBlocking захватывает блокировку, опрашивая TryLock до успеха
// или истечения waitTimeout. Ожидание прерывается отменой ctx.
// Возвращает токен владения или "" по таймауту.
func (l *Locker) LockBlocking(ctx context.Context, key string, ttl, waitTimeout, retryInterval time.Duration) (string, error) {
	deadline := time.Now().Add(waitTimeout)

	for {
		token, err := l.TryLock(ctx, key, ttl)
		if err != nil {
			return "", err
		}
		if token != "" {
			return token, nil
		}

		if time.Now().Add(retryInterval).After(deadline) {
			l.logger.Debug("lock wait timeout", "key", key, "waited", waitTimeout)
			return "", nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

// ReleaseLock освобождает блокировку, только если токен совпадает
// с текущим значением (compare-and-delete на стороне хранилища).
// Возвращает false, если блокировка уже не принадлежит вызывающему.
func (l *Locker) ReleaseLock(ctx context.Context, key, token string) (bool, error) {
	ok, err := l.store.CompareAndDelete(ctx, key, token)
	if err != nil {
		return false, fmt.Errorf("release lock %s: %w", key, err)
	}

	l.logger.Debug("lock released", "key", key, "owned", ok)
	return ok, nil
}

// IsAlreadyExecuted проверяет маркер идемпотентности.
func (l *Locker) IsAlreadyExecuted(ctx context.Context, key string) (bool, error) {
	value, err := l.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("check idempotency %s: %w", key, err)
	}
	return value != "", nil
}

// MarkExecuted устанавливает маркер идемпотентности.
// Вызывается только после того, как эффект task durably зафиксирован.
func (l *Locker) MarkExecuted(ctx context.Context, key string, ttl time.Duration) error {
	if err := l.store.Set(ctx, key, markerValue, ttl); err != nil {
		return fmt.Errorf("mark executed %s: %w", key, err)
	}

	l.logger.Debug("idempotency marked", "key", key, "ttl", ttl)
	return nil
}

// TaskLockKey возвращает ключ блокировки для task.
func TaskLockKey(taskID string) string {
	return "task:lock:" + taskID
}

// TaskDoneKey возвращает ключ маркера идемпотентности для task.
func TaskDoneKey(taskID string) string {
	return "task:done:" + taskID
}
