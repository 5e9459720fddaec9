// Copyright 2026 BWI GmbH and Stackup contributors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"
	clocktesting "k8s.io/utils/clock/testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestSequencer(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Sequencer Suite")
}

var _ = Describe("Sequencer", func() {
	var (
		seq    *Sequencer
		driven []string
	)

	readyTarget := func(name string, soft bool) Target {
		return Target{
			Name: name,
			Soft: soft,
			Probe: func(ctx context.Context) (Observation, error) {
				driven = append(driven, name)
				return Observation{Summary: "ready"}, nil
			},
			Verify: func(obs Observation) bool { return true },
		}
	}

	stuckTarget := func(name string, soft bool) Target {
		return Target{
			Name: name,
			Soft: soft,
			Probe: func(ctx context.Context) (Observation, error) {
				driven = append(driven, name)
				return Observation{Summary: "pending"}, nil
			},
			Verify:   func(obs Observation) bool { return false },
			Timeout:  10 * time.Second,
			Interval: 5 * time.Second,
		}
	}

	BeforeEach(func() {
		driven = nil
		fc := clocktesting.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
		seq = NewSequencer(NewDriver(WithClock(fc)), logr.Discard())
	})

	It("completes when every target becomes ready", func() {
		result := seq.Run(context.Background(), []Target{
			readyTarget("a", false),
			readyTarget("b", false),
		})

		Expect(result.State).To(Equal(RunCompleted))
		Expect(result.Aborted()).To(BeFalse())
		Expect(result.Results).To(HaveLen(2))
		Expect(result.RunID).NotTo(BeEmpty())
	})

	It("continues past a soft target that times out", func() {
		result := seq.Run(context.Background(), []Target{
			readyTarget("a", false),
			stuckTarget("b", true),
			readyTarget("c", false),
		})

		Expect(result.State).To(Equal(RunCompleted))
		Expect(driven).To(ContainElement("c"), "targets after a soft failure must still run")
		Expect(result.Results[1].Outcome.State).To(Equal(StateTimedOut))
		Expect(result.Results[1].Soft).To(BeTrue())
	})

	It("aborts at the first fatal failure without driving later targets", func() {
		result := seq.Run(context.Background(), []Target{
			stuckTarget("a", false),
			readyTarget("b", true),
			readyTarget("c", false),
		})

		Expect(result.State).To(Equal(RunAborted))
		Expect(result.AbortedAt).To(Equal("a"))
		Expect(driven).NotTo(ContainElement("b"))
		Expect(driven).NotTo(ContainElement("c"))
		Expect(result.Results).To(HaveLen(1))
	})

	It("records one result per driven target in order", func() {
		result := seq.Run(context.Background(), []Target{
			readyTarget("first", false),
			readyTarget("second", false),
			readyTarget("third", false),
		})

		names := make([]string, 0, len(result.Results))
		for _, r := range result.Results {
			names = append(names, r.Target)
		}
		Expect(names).To(Equal([]string{"first", "second", "third"}))
	})
})
