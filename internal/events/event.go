package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType — тип события жизненного цикла workflow.
type EventType string

// Типы событий.
const (
	WorkflowStarted   EventType = "WORKFLOW_STARTED"
	WorkflowCompleted EventType = "WORKFLOW_COMPLETED"
	WorkflowFailed    EventType = "WORKFLOW_FAILED"
	TaskStarted       EventType = "TASK_STARTED"
	TaskCompleted     EventType = "TASK_COMPLETED"
	TaskFailed        EventType = "TASK_FAILED"
)

// schemaVersion — версия схемы события.
const schemaVersion = 1

// WorkflowEvent — событие жизненного цикла workflow или задачи.
//
// EventID уникален для каждого события и служит ключом дедупликации
// в ledger обработанных событий. WorkflowID используется как ключ
// упорядочивания: все события одного workflow несут один ключ.
type WorkflowEvent struct {
	EventID    string            `json:"eventId"`
	EventType  EventType         `json:"eventType"`
	WorkflowID uuid.UUID         `json:"workflowId"`
	TaskID     *uuid.UUID        `json:"taskId,omitempty"`
	Status     string            `json:"status"`
	Source     string            `json:"source"`
	OccurredAt time.Time         `json:"occurredAt"`
	Version    int               `json:"version"`
	Payload    map[string]string `json:"payload,omitempty"`
}

// NewWorkflowEvent создаёт событие уровня workflow.
func NewWorkflowEvent(eventType EventType, workflowID uuid.UUID, status, source string) WorkflowEvent {
	return WorkflowEvent{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		WorkflowID: workflowID,
		Status:     status,
		Source:     source,
		OccurredAt: time.Now().UTC(),
		Version:    schemaVersion,
	}
}

// NewTaskEvent создаёт событие уровня задачи.
func NewTaskEvent(eventType EventType, workflowID, taskID uuid.UUID, status, source string) WorkflowEvent {
	ev := NewWorkflowEvent(eventType, workflowID, status, source)
	ev.TaskID = &taskID
	return ev
}
