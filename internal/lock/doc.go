// Package lock реализует межпроцессную блокировку выполнения
// и кэш идемпотентности поверх разделяемого key-value хранилища.
//
// Включает:
//   - lock.go  — Locker: TryLock / LockBlocking / ReleaseLock +
//     маркер идемпотентности
//   - redis.go — реализация Store поверх Redis (SETNX + Lua
//     compare-and-delete)
//
// Пара "блокировка + маркер" — основной механизм, гарантирующий
// выполнение task не более одного раза между экземплярами.
package lock
