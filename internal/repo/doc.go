// Package repo содержит хранилище workflows, tasks и ledger
// обработанных событий.
//
// Включает:
//   - store.go    — контракт Store
//   - pg.go       — реализация поверх Postgres (pgx)
//   - memstore.go — in-memory реализация для тестов
//   - db.go       — пул соединений
//
// Atomic + AfterCommit — единица работы с отложенной публикацией:
// событие о смене состояния уходит наружу только после того, как
// состояние зафиксировано в БД.
package repo
