package engine

import (
	"errors"
	"strings"
)

// Ошибки валидации графа.
var (
	// ErrEmptyBatch — batch не содержит ни одного task.
	ErrEmptyBatch = errors.New("workflow must contain at least one task")

	// ErrCyclicDependency — обнаружен цикл в зависимостях.
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// ErrSelfDependency — task зависит от самого себя.
	ErrSelfDependency = errors.New("task depends on itself")
)

// ValidationError — ошибка валидации определения workflow.
//
// Нарушения не прерывают проверку: все найденные проблемы
// собираются и возвращаются одним списком.
type ValidationError struct {
	// Messages — все найденные нарушения.
	Messages []string
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	return "invalid workflow definition: " + strings.Join(e.Messages, "; ")
}

// newValidationError создаёт ValidationError из списка сообщений.
func newValidationError(messages ...string) *ValidationError {
	return &ValidationError{Messages: messages}
}
