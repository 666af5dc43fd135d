package executor

import "errors"

// Ошибки пакета executor.
var (
	// ErrPoolClosed — пул воркеров остановлен и не принимает задачи.
	ErrPoolClosed = errors.New("worker pool is closed")

	// ErrRetriesExhausted — задача не выполнилась за отведённое
	// число попыток.
	ErrRetriesExhausted = errors.New("task retries exhausted")
)
