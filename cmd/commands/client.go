package commands

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/loopr-dev/loopr/internal/config"
	"github.com/loopr-dev/loopr/internal/daemon"
)

// socketFlag is the IPC socket path flag shared by every client
// subcommand, defaulting to the same path NewDaemonCommand listens on.
func socketFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "socket",
		Usage: "Unix socket path of a running loopr daemon",
		Value: filepath.Join(config.LooprPath(), "loopr.sock"),
	}
}

// call dials socketPath, sends one request Frame for method with params
// marshaled from body, and returns the response's decoded payload. A
// non-nil *daemon.IpcError surfaces as a regular Go error.
func call(socketPath string, method daemon.Method, body any) (json.RawMessage, error) {
	conn, err := net.DialTimeout("unix", socketPath, 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon at %s: %w", socketPath, err)
	}
	defer conn.Close()

	params, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req := daemon.Frame{
		Type:   daemon.FrameTypeRequest,
		ID:     requestID(),
		Method: string(method),
		Params: params,
	}
	if err := daemon.WriteFrame(conn, req); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	resp, err := daemon.ReadFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
	}
	return resp.Payload, nil
}

// requestID returns a per-process-unique id; the daemon only ever
// matches it back against this same connection's single in-flight call.
func requestID() string {
	return fmt.Sprintf("%d-%d", os.Getpid(), time.Now().UnixNano())
}

// printJSON pretty-prints payload to stdout.
func printJSON(payload json.RawMessage) error {
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
