package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Значения по умолчанию для пула воркеров.
const (
	DefaultCoreSize      = 8
	DefaultMaxSize       = 16
	DefaultQueueCapacity = 100
	DefaultNamePrefix    = "wf-exec-"
)

// PoolConfig — конфигурация пула воркеров.
type PoolConfig struct {
	// CoreSize — число постоянных воркеров.
	CoreSize int

	// MaxSize — верхняя граница числа воркеров с учётом временных.
	MaxSize int

	// QueueCapacity — ёмкость очереди ожидающих задач.
	QueueCapacity int

	// NamePrefix — префикс имён воркеров в логах.
	NamePrefix string
}

// withDefaults заполняет нулевые поля значениями по умолчанию.
func (c PoolConfig) withDefaults() PoolConfig {
	if c.CoreSize <= 0 {
		c.CoreSize = DefaultCoreSize
	}
	if c.MaxSize < c.CoreSize {
		c.MaxSize = max(c.CoreSize, DefaultMaxSize)
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.NamePrefix == "" {
		c.NamePrefix = DefaultNamePrefix
	}
	return c
}

// Pool — ограниченный пул воркеров с перетоком на вызывающего.
//
// Постоянные воркеры читают из ограниченной очереди. Если очередь
// заполнена, запускается временный воркер (до MaxSize). Если и
// лимит воркеров исчерпан, задача выполняется в горутине
// вызывающего — переполнение замедляет отправителя, а не роняет
// задачи и не растит очередь без границ.
type Pool struct {
	cfg    PoolConfig
	logger *slog.Logger

	queue chan func()

	mu      sync.Mutex
	workers int
	closed  bool

	wg sync.WaitGroup
}

// NewPool создаёт пул и запускает постоянных воркеров.
func NewPool(cfg PoolConfig, logger *slog.Logger) *Pool {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		cfg:     cfg,
		logger:  logger,
		queue:   make(chan func(), cfg.QueueCapacity),
		workers: cfg.CoreSize,
	}

	for i := 0; i < cfg.CoreSize; i++ {
		p.wg.Add(1)
		go p.coreWorker(fmt.Sprintf("%s%d", cfg.NamePrefix, i))
	}

	return p
}

// Submit передаёт задачу пулу.
//
// Порядок: очередь → временный воркер → вызывающий. Возвращает
// ErrPoolClosed, если пул остановлен.
func (p *Pool) Submit(fn func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}

	// Отправка под тем же мьютексом, что и закрытие очереди в
	// Shutdown: иначе возможна запись в закрытый канал.
	select {
	case p.queue <- fn:
		p.mu.Unlock()
		return nil
	default:
	}

	if p.workers < p.cfg.MaxSize {
		p.workers++
		n := p.workers
		p.mu.Unlock()

		p.wg.Add(1)
		go p.transientWorker(fmt.Sprintf("%s%d", p.cfg.NamePrefix, n-1), fn)
		return nil
	}
	p.mu.Unlock()

	// Очередь и лимит воркеров исчерпаны: выполняем на вызывающем
	p.logger.Warn("worker pool saturated, running task on caller")
	fn()
	return nil
}

// coreWorker — постоянный воркер, живёт до закрытия очереди.
func (p *Pool) coreWorker(name string) {
	defer p.wg.Done()

	for fn := range p.queue {
		p.run(name, fn)
	}
}

// transientWorker выполняет переданную задачу, добирает работу из
// очереди и завершается, когда очередь пуста.
func (p *Pool) transientWorker(name string, fn func()) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		p.workers--
		p.mu.Unlock()
	}()

	p.run(name, fn)

	for {
		select {
		case queued, ok := <-p.queue:
			if !ok {
				return
			}
			p.run(name, queued)
		default:
			return
		}
	}
}

// run выполняет задачу, не давая панике уронить воркера.
func (p *Pool) run(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", "worker", name, "panic", r)
		}
	}()
	fn()
}

// Shutdown останавливает приём задач и дожидается воркеров.
// Ожидание прерывается отменой ctx.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
