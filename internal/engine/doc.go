// Package engine валидирует граф зависимостей workflow.
//
// Включает:
//   - validator.go — проверка batch-определения до создания объектов
//     (aliases, зависимости, поиск цикла алгоритмом Кана)
//   - graph.go — повторная проверка материализованного графа
//     (DFS с двухцветной схемой)
//
// Engine отвечает за то, чтобы ни один workflow с некорректным
// DAG не попал в хранилище.
package engine
