// Package service реализует прикладные операции над workflow и задачами.
//
// Включает:
//   - workflow.go — жизненный цикл workflow: создание, наполнение
//     графа задач, запуск, удаление
//   - task.go     — смена статуса задачи с пересчётом статуса
//     workflow и публикацией событий после фиксации транзакции
//
// Сервисный слой не знает про HTTP и брокер: транспортом занимаются
// пакеты api и mq, исполнением — executor.
package service
