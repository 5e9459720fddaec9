// Copyright 2026 BWI GmbH and Stackup contributors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// RunState is the Sequencer's per-run state machine.
type RunState string

const (
	RunNotStarted RunState = "not-started"
	RunRunning    RunState = "running"
	RunCompleted  RunState = "completed"
	RunAborted    RunState = "aborted"
)

// TargetResult pairs a driven Target with its Outcome.
type TargetResult struct {
	Target  string
	Soft    bool
	Outcome Outcome
}

// RunResult is the terminal result of one Sequencer run.
type RunResult struct {
	RunID     string
	State     RunState
	AbortedAt string
	Reason    string
	Results   []TargetResult
}

// Aborted reports whether the run stopped before completing all Targets.
func (r RunResult) Aborted() bool { return r.State == RunAborted }

// Sequencer drives a fixed ordered list of Targets strictly one at a time.
// A Target whose Outcome is not Ready aborts the run unless it is marked
// Soft, in which case the failure is logged and the run advances anyway.
type Sequencer struct {
	driver *Driver
	logger logr.Logger
}

// NewSequencer creates a Sequencer using the given Driver.
func NewSequencer(driver *Driver, logger logr.Logger) *Sequencer {
	return &Sequencer{driver: driver, logger: logger}
}

// Run drives targets in order and returns the run's terminal result.
func (s *Sequencer) Run(ctx context.Context, targets []Target) RunResult {
	result := RunResult{
		RunID: uuid.NewString(),
		State: RunNotStarted,
	}
	log := s.logger.WithValues("run", result.RunID)

	result.State = RunRunning
	for i, t := range targets {
		log.Info("phase starting", "phase", fmt.Sprintf("%d/%d", i+1, len(targets)), "target", t.Name)

		outcome := s.driver.Drive(ctx, t)
		result.Results = append(result.Results, TargetResult{
			Target:  t.Name,
			Soft:    t.Soft,
			Outcome: outcome,
		})

		if outcome.Ready() {
			log.Info("phase complete", "target", t.Name, "elapsed", outcome.Elapsed.String())
			continue
		}

		if t.Soft {
			log.Info("phase failed but is non-fatal, continuing",
				"target", t.Name, "state", string(outcome.State), "reason", outcome.Reason)
			continue
		}

		log.Info("phase failed, aborting run",
			"target", t.Name, "state", string(outcome.State), "reason", outcome.Reason)
		result.State = RunAborted
		result.AbortedAt = t.Name
		result.Reason = outcome.Reason
		return result
	}

	result.State = RunCompleted
	return result
}
