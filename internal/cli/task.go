package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewTaskCmd создаёт группу команд для управления задачами.
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}

	cmd.AddCommand(
		newTaskShowCmd(clientFn, outputFn),
		newTaskStatusCmd(clientFn, outputFn),
		newTaskAssignCmd(clientFn, outputFn),
	)

	return cmd
}

func taskRow(t TaskResponse) []string {
	return []string{t.ID, t.Title, t.Status, t.Assignee, strings.Join(t.DependsOn, ",")}
}

func newTaskShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show task details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			task, err := client.GetTask(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "TITLE", "STATUS", "ASSIGNEE", "DEPENDS_ON"},
				[][]string{taskRow(*task)},
				task,
			)
			return nil
		},
	}
}

func newTaskStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status ID STATUS",
		Short: "Change task status (IN_PROGRESS, COMPLETED, FAILED)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			task, err := client.ChangeTaskStatus(args[0], args[1])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Task %s is now %s", task.ID, task.Status))
			out.Print(
				[]string{"ID", "TITLE", "STATUS", "ASSIGNEE", "DEPENDS_ON"},
				[][]string{taskRow(*task)},
				task,
			)
			return nil
		},
	}
}

func newTaskAssignCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "assign ID ASSIGNEE",
		Short: "Assign a task to someone",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			task, err := client.AssignTask(args[0], args[1])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Task %s assigned to %s", task.ID, task.Assignee))
			out.Print(
				[]string{"ID", "TITLE", "STATUS", "ASSIGNEE", "DEPENDS_ON"},
				[][]string{taskRow(*task)},
				task,
			)
			return nil
		},
	}
}
