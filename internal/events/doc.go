// Package events определяет события жизненного цикла workflow и шлюз
// их публикации/потребления.
//
// Включает:
//   - event.go   — конверт WorkflowEvent и фабрики
//   - gateway.go — Gateway: публикация и обработка с дедупликацией
//
// Гарантии доставки: publisher даёт at-least-once, поэтому каждое
// событие несёт уникальный eventId, а потребитель ведёт ledger
// обработанных событий — эффект каждого события применяется не более
// одного раза. События, которые не удалось обработать после всех
// повторов, уходят в DLQ.
package events
