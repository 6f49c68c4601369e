package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/loopr-dev/loopr/internal/daemon"
)

// idCommand builds a subcommand that sends method with the first
// argument as its "id" param, a shape shared by every simple
// control-plane operation below.
func idCommand(name, usage string, method daemon.Method) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<id>",
		Flags:     []cli.Flag{socketFlag()},
		Action: func(_ context.Context, cmd *cli.Command) error {
			payload, err := call(cmd.String("socket"), method, map[string]any{"id": cmd.Args().First()})
			if err != nil {
				return err
			}
			return printJSON(payload)
		},
	}
}

// NewApproveCommand approves a Plan, spawning its Specs.
func NewApproveCommand() *cli.Command {
	return idCommand("approve", "Approve a Plan, spawning its Specs", daemon.MethodApprovePlan)
}

// NewPauseCommand pauses a running or pending unit.
func NewPauseCommand() *cli.Command {
	return idCommand("pause", "Pause a unit", daemon.MethodPauseUnit)
}

// NewResumeCommand resumes a paused unit.
func NewResumeCommand() *cli.Command {
	return idCommand("resume", "Resume a paused unit", daemon.MethodResumeUnit)
}

// NewCancelCommand cancels a unit, marking it Failed.
func NewCancelCommand() *cli.Command {
	return idCommand("cancel", "Cancel a unit", daemon.MethodCancelUnit)
}

// NewRejectCommand returns the subcommand that rejects a Plan, recording
// a freeform reason on the record.
func NewRejectCommand() *cli.Command {
	return &cli.Command{
		Name:      "reject",
		Usage:     "Reject a Plan",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			socketFlag(),
			&cli.StringFlag{Name: "reason", Usage: "Why the plan was rejected"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			payload, err := call(cmd.String("socket"), daemon.MethodRejectPlan, map[string]any{
				"id":     cmd.Args().First(),
				"reason": cmd.String("reason"),
			})
			if err != nil {
				return err
			}
			return printJSON(payload)
		},
	}
}

// NewIterateCommand returns the subcommand that feeds rejection/revision
// feedback back into a Plan so its next run incorporates it.
func NewIterateCommand() *cli.Command {
	return &cli.Command{
		Name:      "iterate",
		Usage:     "Re-run a Plan with additional feedback",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			socketFlag(),
			&cli.StringFlag{Name: "feedback", Usage: "Feedback to incorporate"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			payload, err := call(cmd.String("socket"), daemon.MethodIteratePlan, map[string]any{
				"id":       cmd.Args().First(),
				"feedback": cmd.String("feedback"),
			})
			if err != nil {
				return err
			}
			return printJSON(payload)
		},
	}
}

// NewPreviewCommand returns the subcommand that previews the Spec
// records a Plan would spawn, without creating them.
func NewPreviewCommand() *cli.Command {
	return idCommand("preview", "Preview a Plan's spawn steps without creating them", daemon.MethodPreviewPlan)
}
