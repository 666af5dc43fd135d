package service

import "errors"

// Ошибки сервисного слоя.
var (
	// ErrWorkflowNotFound — workflow не существует.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrTaskNotFound — задача не существует.
	ErrTaskNotFound = errors.New("task not found")

	// ErrAccessDenied — workflow принадлежит другому владельцу.
	ErrAccessDenied = errors.New("access denied")

	// ErrWorkflowNotEditable — структуру workflow можно менять
	// только до запуска, в статусе CREATED.
	ErrWorkflowNotEditable = errors.New("workflow is not editable")

	// ErrWorkflowNotStartable — запускать можно только workflow
	// в статусе CREATED, содержащий хотя бы одну задачу.
	ErrWorkflowNotStartable = errors.New("workflow is not startable")

	// ErrWorkflowRunning — удаление выполняющегося workflow запрещено.
	ErrWorkflowRunning = errors.New("workflow is running")
)
