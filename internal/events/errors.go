package events

import "errors"

// Ошибки пакета events.
var (
	// ErrHandlerFailed — обработчик события исчерпал все попытки.
	ErrHandlerFailed = errors.New("event handler failed after retries")
)
