package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/loopr-dev/loopr/internal/daemon"
)

// NewSubmitCommand returns the subcommand that creates a new root Plan
// record via the daemon's create_plan IPC method.
func NewSubmitCommand() *cli.Command {
	return &cli.Command{
		Name:      "submit",
		Usage:     "Submit a new task as a root Plan",
		ArgsUsage: "<task description>",
		Flags: []cli.Flag{
			socketFlag(),
			&cli.IntFlag{
				Name:  "max-iterations",
				Usage: "Override the Plan's iteration budget (0 uses the configured default)",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			task := cmd.Args().First()
			if task == "" {
				return fmt.Errorf("task description is required")
			}
			payload, err := call(cmd.String("socket"), daemon.MethodCreatePlan, map[string]any{
				"task_description": task,
				"max_iterations":   cmd.Int("max-iterations"),
			})
			if err != nil {
				return err
			}
			return printJSON(payload)
		},
	}
}
