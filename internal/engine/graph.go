package engine

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/Maestro/internal/domain"
)

// dfsColor — цвет узла при обходе в глубину.
type dfsColor int

const (
	colorWhite dfsColor = iota // не посещён
	colorGray                  // в текущем стеке DFS
	colorBlack                 // полностью обработан
)

// ValidateResolvedGraph повторно проверяет уже материализованный
// граф tasks после связывания рёбер.
//
// Защита от ошибок конструирования: ValidateDefinition работает
// с aliases, здесь же проверяются реальные ссылки между tasks.
// Обход — DFS с двухцветной схемой visiting/visited; повторный
// заход в узел из текущего стека означает цикл.
func ValidateResolvedGraph(tasks []domain.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*domain.Task, len(tasks))
	for i := range tasks {
		byID[tasks[i].ID] = &tasks[i]
	}

	for i := range tasks {
		for _, parentID := range tasks[i].DependsOn {
			if parentID == tasks[i].ID {
				return fmt.Errorf("%w: %s", ErrSelfDependency, tasks[i].Title)
			}
			if _, exists := byID[parentID]; !exists {
				return fmt.Errorf("task %q depends on unknown task %s", tasks[i].Title, parentID)
			}
		}
	}

	colors := make(map[uuid.UUID]dfsColor, len(tasks))

	var visit func(task *domain.Task) error
	visit = func(task *domain.Task) error {
		switch colors[task.ID] {
		case colorGray:
			return fmt.Errorf("%w at task: %s", ErrCyclicDependency, task.Title)
		case colorBlack:
			return nil
		}

		colors[task.ID] = colorGray
		for _, parentID := range task.DependsOn {
			if err := visit(byID[parentID]); err != nil {
				return err
			}
		}
		colors[task.ID] = colorBlack
		return nil
	}

	for i := range tasks {
		if colors[tasks[i].ID] == colorWhite {
			if err := visit(&tasks[i]); err != nil {
				return err
			}
		}
	}

	return nil
}
