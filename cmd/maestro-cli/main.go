// Maestro CLI — инструмент командной строки для управления
// workflows и задачами через HTTP API.
//
// Использование:
//
//	maestro [--api-url URL] [--user NAME] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	workflow  Управление workflows
//	task      Управление задачами
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Maestro/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var user string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "maestro",
		Short:         "Maestro CLI — workflow orchestration tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().StringVar(&user, "user", os.Getenv("USER"), "User identity for API requests")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL, user) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewWorkflowCmd(clientFn, outputFn),
		cli.NewTaskCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
