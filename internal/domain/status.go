package domain

// WorkflowStatus — статус выполнения workflow.
//
// Жизненный цикл:
//
//	CREATED → READY → RUNNING → COMPLETED
//	                          ↘ FAILED
//
// После старта статус всегда вычисляется из статусов tasks
// (см. DeriveWorkflowStatus); напрямую его устанавливают только
// создание (CREATED) и старт (READY).
type WorkflowStatus string

const (
	// WorkflowStatusCreated — workflow создан, граф ещё можно менять.
	WorkflowStatusCreated WorkflowStatus = "CREATED"

	// WorkflowStatusReady — workflow запущен, source tasks переведены в READY.
	WorkflowStatusReady WorkflowStatus = "READY"

	// WorkflowStatusRunning — хотя бы один task выполняется.
	WorkflowStatusRunning WorkflowStatus = "RUNNING"

	// WorkflowStatusCompleted — все tasks успешно завершены.
	WorkflowStatusCompleted WorkflowStatus = "COMPLETED"

	// WorkflowStatusFailed — хотя бы один task окончательно упал.
	WorkflowStatusFailed WorkflowStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case WorkflowStatusCompleted, WorkflowStatusFailed:
		return true
	default:
		return false
	}
}

// TaskStatus — статус выполнения task.
//
// Жизненный цикл:
//
//	PENDING → READY → IN_PROGRESS → COMPLETED
//	                              ↘ FAILED
type TaskStatus string

const (
	// TaskStatusPending — task ждёт завершения зависимостей.
	TaskStatusPending TaskStatus = "PENDING"

	// TaskStatusReady — все зависимости завершены, task готов к выполнению.
	TaskStatusReady TaskStatus = "READY"

	// TaskStatusInProgress — task выполняется.
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"

	// TaskStatusCompleted — task успешно завершён.
	TaskStatusCompleted TaskStatus = "COMPLETED"

	// TaskStatusFailed — task окончательно упал (после всех retry).
	TaskStatusFailed TaskStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// taskTransitions — закрытая таблица допустимых переходов статусов task.
// Всего, чего здесь нет, переход не допускает.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:    {TaskStatusReady},
	TaskStatusReady:      {TaskStatusInProgress},
	TaskStatusInProgress: {TaskStatusCompleted, TaskStatusFailed},
	TaskStatusCompleted:  nil,
	TaskStatusFailed:     nil,
}

// CanTransition проверяет, допустим ли переход в статус to.
// Переход в текущий статус допустим всегда (идемпотентный no-op).
func (s TaskStatus) CanTransition(to TaskStatus) bool {
	if s == to {
		return true
	}
	for _, allowed := range taskTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// DeriveWorkflowStatus вычисляет статус workflow из статусов его tasks.
//
// Порядок приоритетов фиксирован:
//  1. все COMPLETED → COMPLETED
//  2. любой FAILED → FAILED
//  3. любой IN_PROGRESS → RUNNING
//  4. иначе → READY
func DeriveWorkflowStatus(tasks []Task) WorkflowStatus {
	allCompleted := len(tasks) > 0
	anyFailed := false
	anyInProgress := false

	for i := range tasks {
		switch tasks[i].Status {
		case TaskStatusCompleted:
		case TaskStatusFailed:
			allCompleted = false
			anyFailed = true
		case TaskStatusInProgress:
			allCompleted = false
			anyInProgress = true
		default:
			allCompleted = false
		}
	}

	switch {
	case allCompleted:
		return WorkflowStatusCompleted
	case anyFailed:
		return WorkflowStatusFailed
	case anyInProgress:
		return WorkflowStatusRunning
	default:
		return WorkflowStatusReady
	}
}
