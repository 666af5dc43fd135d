// Package cli реализует инструмент командной строки Maestro.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Maestro API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// CLI используется для управления workflows и задачами.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Maestro API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок. Каждый запрос несёт заголовок X-User-ID.
//
//	client := cli.NewClient("http://localhost:8080", "alice")
//	workflows, err := client.ListWorkflows(cli.ListWorkflowsOpts{})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: maestro workflow list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - workflow: list, create, show, delete, start, add-tasks, tasks
//   - task: show, status, assign
//
// Каждая группа создаётся через фабричную функцию (NewWorkflowCmd и
// т.д.), принимающую clientFn и outputFn — замыкания для ленивого
// создания Client и Output после парсинга PersistentFlags.
package cli
