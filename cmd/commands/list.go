package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/loopr-dev/loopr/internal/daemon"
)

// NewListCommand returns the subcommand that lists units, optionally
// filtered by kind, status, or parent id.
func NewListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List units",
		Flags: []cli.Flag{
			socketFlag(),
			&cli.StringFlag{Name: "kind", Usage: "Filter by kind (plan/spec/phase/code)"},
			&cli.StringFlag{Name: "status", Usage: "Filter by status"},
			&cli.StringFlag{Name: "parent", Usage: "Filter by parent id"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			payload, err := call(cmd.String("socket"), daemon.MethodListUnits, map[string]any{
				"kind":      cmd.String("kind"),
				"status":    cmd.String("status"),
				"parent_id": cmd.String("parent"),
			})
			if err != nil {
				return err
			}
			return printJSON(payload)
		},
	}
}

// NewGetCommand returns the subcommand that fetches one unit by id.
func NewGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show one unit",
		ArgsUsage: "<id>",
		Flags:     []cli.Flag{socketFlag()},
		Action: func(_ context.Context, cmd *cli.Command) error {
			id := cmd.Args().First()
			payload, err := call(cmd.String("socket"), daemon.MethodGetUnit, map[string]any{"id": id})
			if err != nil {
				return err
			}
			return printJSON(payload)
		},
	}
}
