// Copyright 2026 BWI GmbH and Stackup contributors
// SPDX-License-Identifier: Apache-2.0

package stack

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"go.opendefense.cloud/stackup/pkg/reconcile"
)

// Install drives the full stack to ready and returns the run's result. The
// run is idempotent: targets already satisfied are verified and skipped, a
// rerun after a partial failure picks up where the last run stopped.
func (s *Stack) Install(ctx context.Context) (reconcile.RunResult, error) {
	if err := s.preflight(); err != nil {
		return reconcile.RunResult{}, err
	}
	targets, err := s.installTargets()
	if err != nil {
		return reconcile.RunResult{}, err
	}

	seq := reconcile.NewSequencer(s.driver, s.logger)
	result := seq.Run(ctx, targets)

	s.logSummary(result)
	if result.Aborted() {
		return result, fmt.Errorf("install aborted at %s: %s", result.AbortedAt, result.Reason)
	}
	return result, nil
}

// preflight checks local prerequisites before anything touches the
// cluster. A missing tunnel binary aborts here, not mid-install.
func (s *Stack) preflight() error {
	if s.cfg.Tunnel.Disabled {
		return nil
	}
	if len(s.cfg.Tunnel.Command) == 0 {
		return errors.New("no tunnel command configured")
	}
	if _, err := exec.LookPath(s.cfg.Tunnel.Command[0]); err != nil {
		return fmt.Errorf("tunnel command %q not found: %w", s.cfg.Tunnel.Command[0], err)
	}
	return nil
}

// logSummary prints the endpoints and credential locations an operator
// needs after a run, plus any soft failures that were skipped over.
func (s *Stack) logSummary(result reconcile.RunResult) {
	for _, r := range result.Results {
		if !r.Outcome.Ready() && r.Soft {
			s.logger.Info("component skipped after non-fatal failure",
				"target", r.Target, "reason", r.Outcome.Reason)
		}
	}
	if result.Aborted() {
		return
	}

	s.logger.Info("stack ready",
		"jenkins", s.jenkinsURL(),
		"grafana", s.grafanaURL(),
		"database", fmt.Sprintf("127.0.0.1:%d/%s", s.cfg.Database.LocalPort, s.cfg.Database.Name),
	)
	s.logger.Info("credentials captured",
		"jenkins", s.secrets.Path(credJenkins),
		"grafana", s.secrets.Path(credGrafana),
		"database", s.secrets.Path(credDatabase),
	)
}
