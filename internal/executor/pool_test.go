package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_RunsSubmittedTasks(t *testing.T) {
	pool := NewPool(PoolConfig{CoreSize: 2, MaxSize: 4, QueueCapacity: 8}, nil)
	defer pool.Shutdown(context.Background())

	var counter atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			counter.Add(1)
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	wg.Wait()
	if got := counter.Load(); got != 20 {
		t.Errorf("expected 20 executed tasks, got %d", got)
	}
}

func TestPool_CallerRunsWhenSaturated(t *testing.T) {
	pool := NewPool(PoolConfig{CoreSize: 1, MaxSize: 1, QueueCapacity: 1}, nil)

	release := make(chan struct{})
	var wg sync.WaitGroup

	// Занимаем единственного воркера
	wg.Add(1)
	pool.Submit(func() {
		defer wg.Done()
		<-release
	})
	// Даём воркеру забрать задачу из очереди
	time.Sleep(20 * time.Millisecond)

	// Заполняем очередь
	wg.Add(1)
	pool.Submit(func() {
		defer wg.Done()
		<-release
	})

	// Очередь и воркеры исчерпаны: задача выполняется синхронно
	ran := false
	pool.Submit(func() { ran = true })
	if !ran {
		t.Error("expected the task to run on the caller when the pool is saturated")
	}

	close(release)
	wg.Wait()
	pool.Shutdown(context.Background())
}

func TestPool_TransientWorkerAboveCore(t *testing.T) {
	pool := NewPool(PoolConfig{CoreSize: 1, MaxSize: 2, QueueCapacity: 1}, nil)
	defer pool.Shutdown(context.Background())

	release := make(chan struct{})
	var wg sync.WaitGroup

	// Воркер занят, очередь заполнена
	wg.Add(2)
	pool.Submit(func() { defer wg.Done(); <-release })
	time.Sleep(20 * time.Millisecond)
	pool.Submit(func() { defer wg.Done(); <-release })

	// Следующая задача должна уйти временному воркеру, не вызывающему
	done := make(chan struct{})
	pool.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("transient worker did not pick up the task")
	}

	close(release)
	wg.Wait()
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	pool := NewPool(PoolConfig{CoreSize: 1}, nil)
	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := pool.Submit(func() {}); err != ErrPoolClosed {
		t.Errorf("expected ErrPoolClosed, got %v", err)
	}
}

func TestPool_SubmitDuringShutdown(t *testing.T) {
	// Гонка Submit и Shutdown не должна приводить к записи в закрытый канал
	for i := 0; i < 100; i++ {
		pool := NewPool(PoolConfig{CoreSize: 2, MaxSize: 2, QueueCapacity: 2}, nil)

		var wg sync.WaitGroup
		start := make(chan struct{})
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for k := 0; k < 20; k++ {
					if err := pool.Submit(func() {}); err == ErrPoolClosed {
						return
					}
				}
			}()
		}

		close(start)
		if err := pool.Shutdown(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		wg.Wait()
	}
}

func TestPool_ShutdownWaitsForRunningTasks(t *testing.T) {
	pool := NewPool(PoolConfig{CoreSize: 1}, nil)

	var finished atomic.Bool
	pool.Submit(func() {
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	})

	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !finished.Load() {
		t.Error("shutdown returned before the running task finished")
	}
}
