// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os/exec"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"

	gwerrors "github.com/adibirzu/mcp-oci-gateway/pkg/errors"
	"github.com/adibirzu/mcp-oci-gateway/pkg/gateway/config"
	"github.com/adibirzu/mcp-oci-gateway/pkg/process"
)

// AuthMethodEnv carries a stdio backend's authMethod to the child process.
const AuthMethodEnv = "OCI_CLI_AUTH"

// spawnConnector launches backends as child processes.
// Liveness is the only probe: the pipes belong to the tool-call protocol.
type spawnConnector struct {
	opts options
}

// BuildEnv merges the base environment with the backend's variables. Backend
// values win; authMethod is exported unless env already sets AuthMethodEnv.
func BuildEnv(base []string, backend *config.Backend) []string {
	merged := make(map[string]string, len(base)+len(backend.Env)+1)
	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		merged[k] = v
	}
	maps.Copy(merged, backend.Env)
	if _, set := backend.Env[AuthMethodEnv]; !set && backend.AuthMethod != "" {
		merged[AuthMethodEnv] = backend.AuthMethod
	}

	out := make([]string, 0, len(merged))
	for _, k := range slices.Sorted(maps.Keys(merged)) {
		out = append(out, k+"="+merged[k])
	}
	return out
}

func (s *spawnConnector) Open(ctx context.Context, backend *config.Backend) (Connection, error) {
	if strings.TrimSpace(backend.Command) == "" {
		return nil, gwerrors.NewConfigError(backend.Name, errors.New("command is required for stdio transport"))
	}
	path, err := exec.LookPath(backend.Command)
	if err != nil {
		return nil, gwerrors.NewConfigError(backend.Name, fmt.Errorf("command %q not found: %w", backend.Command, err))
	}

	environ := BuildEnv(s.opts.environ(), backend)
	var cmd *exec.Cmd
	commandFunc := func(ctx context.Context, command string, _ []string, args []string) (*exec.Cmd, error) {
		// #nosec G204 -- command and args come from operator configuration
		cmd = exec.CommandContext(ctx, command, args...)
		cmd.Env = environ
		cmd.Dir = backend.Cwd
		return cmd, nil
	}

	c, err := client.NewStdioMCPClientWithOptions(path, nil, backend.Args, transport.WithCommandFunc(commandFunc))
	if err != nil {
		return nil, gwerrors.NewConnectError(backend.Name, fmt.Errorf("failed to spawn %s: %w", backend.Command, err))
	}

	conn, err := startSession(ctx, backend.Name, c, s.opts.clientInfo)
	if err != nil {
		s.reap(ctx, cmd)
		return nil, gwerrors.NewConnectError(backend.Name, err)
	}
	conn.onClose = func() error {
		s.reap(context.Background(), cmd)
		return nil
	}
	return &stdioConnection{mcpConnection: conn, cmd: cmd}, nil
}

type stdioConnection struct {
	*mcpConnection
	cmd *exec.Cmd
}

// PID returns the child's process id.
func (c *stdioConnection) PID() int {
	return pidOf(c.cmd)
}

// reap kills the child if it survived the client closing its pipes.
func (s *spawnConnector) reap(ctx context.Context, cmd *exec.Cmd) {
	pid := pidOf(cmd)
	if pid == 0 {
		return
	}
	if alive, err := process.FindProcess(ctx, pid); err == nil && alive {
		_ = process.KillProcess(ctx, pid, s.opts.killGrace)
	}
}

func pidOf(cmd *exec.Cmd) int {
	if cmd == nil || cmd.Process == nil {
		return 0
	}
	return cmd.Process.Pid
}

// Probe checks that the child process is still running.
func (*spawnConnector) Probe(ctx context.Context, backend *config.Backend, conn Connection) error {
	sc, ok := conn.(*stdioConnection)
	if !ok {
		return fmt.Errorf("backend %s: not a stdio connection", backend.Name)
	}
	pid := sc.PID()
	alive, err := process.FindProcess(ctx, pid)
	if err != nil {
		return fmt.Errorf("backend %s: %w", backend.Name, err)
	}
	if !alive {
		return fmt.Errorf("backend %s: process %d has exited", backend.Name, pid)
	}
	return nil
}
