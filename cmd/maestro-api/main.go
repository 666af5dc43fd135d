// Maestro API — HTTP API для управления workflows и задачами.
//
// API:
//   - Создаёт workflows и наполняет их графом задач
//   - Валидирует граф (DAG) при добавлении задач
//   - Запускает выполнение и отдаёт его исполнителю
//   - Отдаёт состояние workflows и задач
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

	"github.com/shaiso/Maestro/internal/api"
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
	logger.Info("starting maestro-api")

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
	gateway := events.NewGateway(publisher, store, nil, metrics, events.GatewayConfig{
		Source: "maestro-api",
	}, logger)

	// Исполнитель: запуск workflow из API выполняется локальным
	// пулом; конкуренцию с оркестратором снимает блокировка задач
	workerPool := executor.NewPool(executor.PoolConfig{}, logger)
	defer workerPool.Shutdown(context.Background())

	taskService := service.NewTaskService(store, gateway, logger)
	exec := executor.New(store, taskService, locker, gateway, workerPool, metrics, taskRunner(logger), executor.Config{}, logger)
	workflowService := service.NewWorkflowService(store, exec, logger)

	handler := api.NewHandler(api.Config{
		Workflows: workflowService,
		Tasks:     taskService,
		Logger:    logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		addr = ":" + v
	}

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
