package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/loopr-dev/loopr/internal/config"
	"github.com/loopr-dev/loopr/internal/heartbeat"
)

// staleAfter is how long since the last heartbeat write before the
// daemon is considered stale rather than alive.
const staleAfter = 2 * time.Minute

// NewStatusCommand returns the subcommand that reports whether the
// daemon process is alive, reading its heartbeat file directly rather
// than dialing the IPC socket — it works even if the daemon's socket is
// wedged but the process is still writing heartbeats.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show whether the Loopr daemon is running",
		Action: func(_ context.Context, _ *cli.Command) error {
			hbPath := filepath.Join(config.LooprPath(), "heartbeat.json")
			status, hb, err := heartbeat.Check(hbPath, staleAfter)
			if err != nil {
				return fmt.Errorf("check heartbeat: %w", err)
			}

			switch status {
			case heartbeat.StatusAlive:
				fmt.Printf("daemon: ALIVE (pid %d, uptime %s)\n", hb.PID, hb.Uptime)
			case heartbeat.StatusStale:
				fmt.Printf("daemon: STALE (pid %d, last heartbeat %s ago)\n",
					hb.PID, time.Since(hb.Timestamp).Truncate(time.Second))
			case heartbeat.StatusDead:
				fmt.Println("daemon: NOT RUNNING")
			}
			return nil
		},
	}
}
