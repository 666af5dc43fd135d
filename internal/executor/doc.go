// Package executor выполняет задачи workflow на пуле воркеров.
//
// Включает:
//   - executor.go — раздача готовых задач, блокировка, повторы,
//     продвижение зависимых задач
//   - pool.go     — ограниченный пул воркеров с перетоком на
//     вызывающего при насыщении
//
// Гарантия исполнителя: задача выполняется не более одного раза,
// сколько бы экземпляров оркестратора ни работало с одной базой.
// Конкуренцию в моменте снимает распределённая блокировка, повторную
// отправку после рестартов — маркер идемпотентности.
package executor
