// Copyright 2026 BWI GmbH and Stackup contributors
// SPDX-License-Identifier: Apache-2.0

// Package tunnel manages the detached network helper process (by default
// `minikube tunnel`) that routes LoadBalancer traffic to the host. The
// process outlives a single reconcile run; its liveness is probed through a
// pid file and it is restarted if it disappeared.
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/go-logr/logr"
)

// Manager supervises one detached helper process.
type Manager struct {
	command []string
	pidFile string
	logFile string
	logger  logr.Logger
}

// NewManager creates a Manager keeping its pid and log files under stateDir.
func NewManager(command []string, stateDir string, logger logr.Logger) *Manager {
	return &Manager{
		command: command,
		pidFile: filepath.Join(stateDir, "tunnel.pid"),
		logFile: filepath.Join(stateDir, "tunnel.log"),
		logger:  logger.WithName("tunnel"),
	}
}

// Alive reports whether the recorded process still exists. This is the
// liveness probe: read-only, no side effects.
func (m *Manager) Alive() bool {
	pid, ok := m.pid()
	if !ok {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 only checks existence.
	return proc.Signal(syscall.Signal(0)) == nil
}

// EnsureRunning starts the helper if it is not alive. Idempotent.
func (m *Manager) EnsureRunning(ctx context.Context) error {
	if len(m.command) == 0 {
		return errors.New("no tunnel command configured")
	}
	if m.Alive() {
		return nil
	}
	return m.start(ctx)
}

func (m *Manager) start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(m.pidFile), 0o700); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}

	logOut, err := os.OpenFile(m.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open tunnel log: %w", err)
	}
	defer logOut.Close()

	if err := ctx.Err(); err != nil {
		return err
	}

	// Deliberately not bound to ctx: the helper is detached into its own
	// session and outlives this run.
	cmd := exec.Command(m.command[0], m.command[1:]...)
	cmd.Stdout = logOut
	cmd.Stderr = logOut
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start tunnel %q: %w", strings.Join(m.command, " "), err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return fmt.Errorf("failed to detach tunnel process: %w", err)
	}

	if err := os.WriteFile(m.pidFile, []byte(strconv.Itoa(pid)), 0o600); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	m.logger.Info("tunnel started", "pid", pid, "command", strings.Join(m.command, " "))
	return nil
}

// Stop terminates the helper and removes the pid file.
func (m *Manager) Stop() error {
	pid, ok := m.pid()
	if !ok {
		return nil
	}
	if proc, err := os.FindProcess(pid); err == nil {
		if err := proc.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
			m.logger.Info("tunnel process did not accept SIGTERM", "pid", pid, "error", err.Error())
		}
	}
	if err := os.Remove(m.pidFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	m.logger.Info("tunnel stopped", "pid", pid)
	return nil
}

func (m *Manager) pid() (int, bool) {
	data, err := os.ReadFile(m.pidFile)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}
