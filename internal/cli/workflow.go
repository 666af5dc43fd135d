package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// NewWorkflowCmd создаёт группу команд для управления workflows.
func NewWorkflowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Manage workflows",
	}

	cmd.AddCommand(
		newWorkflowListCmd(clientFn, outputFn),
		newWorkflowCreateCmd(clientFn, outputFn),
		newWorkflowShowCmd(clientFn, outputFn),
		newWorkflowDeleteCmd(clientFn, outputFn),
		newWorkflowStartCmd(clientFn, outputFn),
		newWorkflowAddTasksCmd(clientFn, outputFn),
		newWorkflowAddTaskCmd(clientFn, outputFn),
		newWorkflowRemoveTaskCmd(clientFn, outputFn),
		newWorkflowTasksCmd(clientFn, outputFn),
	)

	return cmd
}

func workflowRow(wf WorkflowResponse) []string {
	return []string{wf.ID, wf.Name, wf.Status, fmt.Sprintf("%d", len(wf.Tasks)), wf.CreatedAt}
}

func newWorkflowListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListWorkflowsOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			workflows, err := client.ListWorkflows(opts)
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "STATUS", "TASKS", "CREATED"}
			rows := make([][]string, len(workflows))
			for i, wf := range workflows {
				rows[i] = workflowRow(wf)
			}

			out.Print(headers, rows, workflows)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status")
	cmd.Flags().StringVar(&opts.Search, "search", "", "Filter by name substring")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Number of results to skip")

	return cmd
}

func newWorkflowCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			wf, err := client.CreateWorkflow(name)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow created: %s", wf.ID))
			out.Print(
				[]string{"ID", "NAME", "STATUS", "TASKS", "CREATED"},
				[][]string{workflowRow(*wf)},
				wf,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Workflow name (required)")
	cmd.MarkFlagRequired("name")

	return cmd
}

func newWorkflowShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show workflow with its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			wf, err := client.GetWorkflow(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "NAME", "STATUS", "TASKS", "CREATED"},
				[][]string{workflowRow(*wf)},
				wf,
			)
			return nil
		},
	}
}

func newWorkflowDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteWorkflow(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow deleted: %s", args[0]))
			return nil
		},
	}
}

func newWorkflowStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "start ID",
		Short: "Start workflow execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			wf, err := client.StartWorkflow(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow started: %s", wf.ID))
			out.Print(
				[]string{"ID", "NAME", "STATUS", "TASKS", "CREATED"},
				[][]string{workflowRow(*wf)},
				wf,
			)
			return nil
		},
	}
}

func newWorkflowAddTasksCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "add-tasks ID",
		Short: "Add a batch of tasks from a JSON file",
		Long: `Add a batch of tasks from a JSON file.

The file holds task definitions with alias-based dependencies:

  {
    "tasks": [
      {"alias": "build", "title": "Build artifact"},
      {"alias": "test", "title": "Run tests", "depends_on": ["build"]}
    ]
  }`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read tasks file: %w", err)
			}

			var req AddTasksRequest
			if err := json.Unmarshal(data, &req); err != nil {
				return fmt.Errorf("parse tasks file: %w", err)
			}

			tasks, err := client.AddTasks(args[0], req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Added %d tasks", len(tasks)))
			printTasks(out, tasks)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Path to JSON file with task definitions (required)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func newWorkflowAddTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req AddTaskRequest

	cmd := &cobra.Command{
		Use:   "add-task ID",
		Short: "Add a single task to a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			task, err := client.AddTask(args[0], req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Task added: %s", task.ID))
			printTasks(out, []TaskResponse{*task})
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Title, "title", "", "Task title (required)")
	cmd.Flags().StringVar(&req.Description, "description", "", "Task description")
	cmd.Flags().StringVar(&req.Assignee, "assignee", "", "Task assignee")
	cmd.Flags().StringSliceVar(&req.DependsOn, "depends-on", nil, "IDs of tasks this task depends on")
	cmd.MarkFlagRequired("title")

	return cmd
}

func newWorkflowRemoveTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-task ID TASK_ID",
		Short: "Remove a task from a not yet started workflow",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.RemoveTask(args[0], args[1]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Task removed: %s", args[1]))
			return nil
		},
	}
}

func newWorkflowTasksCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "tasks ID",
		Short: "List tasks of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			tasks, err := client.ListTasks(args[0], status)
			if err != nil {
				return err
			}

			printTasks(out, tasks)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Comma-separated list of statuses to filter by")

	return cmd
}

func printTasks(out *Output, tasks []TaskResponse) {
	headers := []string{"ID", "TITLE", "STATUS", "ASSIGNEE", "DEPENDS_ON"}
	rows := make([][]string, len(tasks))
	for i, t := range tasks {
		rows[i] = []string{t.ID, t.Title, t.Status, t.Assignee, strings.Join(t.DependsOn, ",")}
	}
	out.Print(headers, rows, tasks)
}
