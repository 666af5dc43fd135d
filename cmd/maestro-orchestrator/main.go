// Maestro Orchestrator — исполняет workflows.
//
// Оркестратор:
//   - Потребляет события жизненного цикла из RabbitMQ
//   - Выполняет готовые задачи на пуле воркеров
//   - Держит распределённые блокировки задач в Redis
//   - Продвигает зависимые задачи после завершения родителей
//
// Оркестраторы масштабируются горизонтально: блокировки и маркеры
// идемпотентности не дают двум экземплярам выполнить одну задачу.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Maestro/internal/coordinator"
	"github.com/shaiso/Maestro/internal/domain"
	"github.com/shaiso/Maestro/internal/events"
	"github.com/shaiso/Maestro/internal/executor"
	"github.com/shaiso/Maestro/internal/lock"
	"github.com/shaiso/Maestro/internal/mq"
	"github.com/shaiso/Maestro/internal/repo"
	"github.com/shaiso/Maestro/internal/service"
	"github.com/shaiso/Maestro/internal/telemetry"
)

var startTime = time.Now()

// taskRunner возвращает TaskFunc, имитирующий полезную работу задачи.
// Длительность задаётся переменной TASK_DURATION (Go duration).
func taskRunner(logger *slog.Logger) executor.TaskFunc {
	duration := 100 * time.Millisecond
	if v := os.Getenv("TASK_DURATION"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			duration = parsed
		}
	}

	return func(ctx context.Context, task domain.Task) error {
		logger.Info("executing task", "task_id", task.ID, "title", task.Title)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(duration):
			return nil
		}
	}
}

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting maestro-orchestrator")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	store := repo.NewPGStore(pool)

	// Redis — распределённые блокировки и маркеры идемпотентности
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	locker := lock.NewLocker(lock.NewRedisStore(redisClient), logger)

	// RabbitMQ
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}
	mqConn, err := mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()

	if err := mq.SetupTopology(ctx, mqConn); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	publisher := mq.NewPublisher(mqConn, logger)

	// Сборка: gateway ↔ coordinator ↔ executor.
	// Координатор нужен шлюзу как обработчик, исполнителю нужен
	// шлюз как публикатор — разрываем цикл отложенной привязкой.
	gateway := events.NewGateway(publisher, store, nil, metrics, events.GatewayConfig{
		Source: "maestro-orchestrator",
	}, logger)

	workerPool := executor.NewPool(executor.PoolConfig{}, logger)
	taskService := service.NewTaskService(store, gateway, logger)
	exec := executor.New(store, taskService, locker, gateway, workerPool, metrics, taskRunner(logger), executor.Config{}, logger)
	gateway.SetHandler(coordinator.New(store, exec, gateway, logger))

	consumer := mq.NewConsumer(mqConn, mq.ConsumerConfig{
		Queue:   mq.QueueWorkflowEvents,
		Handler: gateway.HandleDelivery,
	}, logger)

	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.Error("consumer stopped", "error", err)
			cancel()
		}
	}()

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":8081"
	if v := os.Getenv("ORCHESTRATOR_PORT"); v != "" {
		addr = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	consumer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := workerPool.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker pool shutdown error", "error", err)
	}

	logger.Info("maestro-orchestrator stopped")
}
