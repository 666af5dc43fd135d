// Package api реализует HTTP API для управления workflows и задачами.
//
// Включает:
//   - routes.go           — маршруты и middleware chain
//   - workflow_handler.go — операции над workflows
//   - task_handler.go     — операции над задачами
//   - dto.go              — request/response структуры
//   - response.go         — унифицированные JSON ответы
//   - middleware.go       — Recovery, Logging, Identity
//
// Идентификация вызывающего — заголовок X-User-ID; операции над
// workflow доступны только его владельцу.
package api
