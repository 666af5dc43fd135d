package engine

import "fmt"

// TaskDef — определение task в batch-запросе.
//
// Alias — идентификатор, которым tasks ссылаются друг на друга
// внутри batch до получения долговременных ID.
type TaskDef struct {
	// Alias — уникальный в рамках batch идентификатор task.
	Alias string `json:"alias"`

	// Title — название task.
	Title string `json:"title"`

	// Description — описание работы.
	Description string `json:"description,omitempty"`

	// DependsOn — aliases tasks, от которых зависит этот task.
	DependsOn []string `json:"depends_on,omitempty"`
}

// ValidateDefinition проверяет, что batch определений tasks образует
// корректный DAG, до создания каких-либо объектов.
//
// Правила (все нарушения собираются и возвращаются вместе):
//   - batch не пуст
//   - aliases не пустые и уникальны
//   - каждая зависимость не пуста, ссылается на существующий alias,
//     не ссылается на сам task и не дублируется в списке
//   - граф не содержит циклов (алгоритм Кана)
func ValidateDefinition(batch []TaskDef) error {
	if len(batch) == 0 {
		return newValidationError(ErrEmptyBatch.Error())
	}

	var messages []string

	// 1. Уникальность aliases
	byAlias := make(map[string]*TaskDef, len(batch))
	for i := range batch {
		def := &batch[i]

		if def.Alias == "" {
			messages = append(messages, "Task alias cannot be blank.")
			continue
		}

		if _, exists := byAlias[def.Alias]; exists {
			messages = append(messages, "Duplicate task alias: "+def.Alias)
			continue
		}
		byAlias[def.Alias] = def
	}

	if len(messages) > 0 {
		return newValidationError(messages...)
	}

	// 2. Список смежности (ребро dep → dependent) и indegree
	adj := make(map[string][]string, len(byAlias))
	indegree := make(map[string]int, len(byAlias))
	for alias := range byAlias {
		adj[alias] = nil
		indegree[alias] = 0
	}

	// 3. Проверка зависимостей
	for i := range batch {
		def := &batch[i]
		seen := make(map[string]bool, len(def.DependsOn))

		for _, dep := range def.DependsOn {
			if dep == "" {
				messages = append(messages,
					fmt.Sprintf("Task '%s' has a blank dependency alias.", def.Alias))
				continue
			}

			if seen[dep] {
				messages = append(messages,
					fmt.Sprintf("Task '%s' has duplicate dependency '%s'.", def.Alias, dep))
				continue
			}
			seen[dep] = true

			if dep == def.Alias {
				messages = append(messages,
					fmt.Sprintf("Task '%s' cannot depend on itself.", def.Alias))
				continue
			}

			if _, exists := byAlias[dep]; !exists {
				messages = append(messages,
					fmt.Sprintf("Task '%s' depends on non-existent alias '%s'.", def.Alias, dep))
				continue
			}

			adj[dep] = append(adj[dep], def.Alias)
			indegree[def.Alias]++
		}
	}

	if len(messages) > 0 {
		return newValidationError(messages...)
	}

	// 4. Поиск цикла — алгоритм Кана
	queue := make([]string, 0, len(indegree))
	for alias, deg := range indegree {
		if deg == 0 {
			queue = append(queue, alias)
		}
	}

	visited := 0
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		visited++

		for _, next := range adj[current] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited != len(byAlias) {
		return newValidationError("Workflow contains a cyclic dependency and is not a DAG.")
	}

	return nil
}
