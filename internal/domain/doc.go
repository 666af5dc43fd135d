// Package domain содержит доменную модель Maestro.
//
// Основные сущности:
//   - Workflow — DAG из tasks с производным статусом
//   - Task — единица работы с машиной состояний
//
// Статусы и таблица переходов — в status.go.
// DeriveWorkflowStatus — единственное место, где статус workflow
// вычисляется из статусов tasks.
package domain
