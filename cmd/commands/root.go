package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/loopr-dev/loopr/internal/config"
)

// NewRootCommand returns the top-level CLI command: "daemon" runs the
// orchestrator process; the rest are thin IPC clients dialing its
// socket, per spec.md §6.
func NewRootCommand(version, commit string) *cli.Command {
	return &cli.Command{
		Name:    "loopr",
		Usage:   "Autonomous coding agent orchestrator",
		Version: version + " (" + commit + ")",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			NewDaemonCommand(),
			NewSubmitCommand(),
			NewListCommand(),
			NewGetCommand(),
			NewApproveCommand(),
			NewRejectCommand(),
			NewIterateCommand(),
			NewPreviewCommand(),
			NewPauseCommand(),
			NewResumeCommand(),
			NewCancelCommand(),
			NewStatusCommand(),
		},
	}
}
