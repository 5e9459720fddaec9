// Copyright 2026 BWI GmbH and Stackup contributors
// SPDX-License-Identifier: Apache-2.0

// Package main is the entrypoint for stackup, which provisions a local
// CI/monitoring stack (Traefik, PostgreSQL, Jenkins, Grafana) on a
// Kubernetes cluster and drives it to a verified ready state.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"go.opendefense.cloud/stackup/internal/stack"
	"go.opendefense.cloud/stackup/pkg/config"
	"go.opendefense.cloud/stackup/pkg/observability"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "stackup",
		Short: "Stackup - local CI/monitoring stack provisioner",
		Long: `Stackup installs a fixed set of Helm charts (Traefik, PostgreSQL,
Jenkins, Grafana) into one namespace, seeds a CI job that records build
timestamps into the database, and provisions a dashboard reading them.

Every step is driven by an idempotent reconcile loop: reruns verify what
already exists and only act on what is missing.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			// An unrecognized subcommand lands here; show the operator
			// what is available before failing.
			_ = cmd.Usage()
			return fmt.Errorf("unknown command %q for %q", args[0], cmd.Name())
		},
	}

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to configuration file")

	cmd.AddCommand(newInstallCommand(&configFile))
	cmd.AddCommand(newUninstallCommand(&configFile))
	cmd.AddCommand(newStatusCommand(&configFile))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newInstallCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the stack and drive it to ready",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStack(*configFile, func(ctx context.Context, s *stack.Stack, _ logr.Logger) error {
				_, err := s.Install(ctx)
				return err
			})
		},
	}
}

func newUninstallCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the stack, its volumes and captured credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStack(*configFile, func(ctx context.Context, s *stack.Stack, _ logr.Logger) error {
				return s.Uninstall(ctx)
			})
		},
	}
}

func newStatusCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report the observed state of every component",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStack(*configFile, func(ctx context.Context, s *stack.Stack, _ logr.Logger) error {
				report := s.Status(ctx)
				for _, c := range report.Components {
					state := "ready"
					if !c.Ready {
						state = "not ready"
					}
					fmt.Printf("%-24s %-10s %s\n", c.Name, state, c.Detail)
				}
				if report.Ready() {
					fmt.Println("\nstack is ready")
				}
				return nil
			})
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("stackup %s\n", version)
			fmt.Printf("  commit:  %s\n", commit)
			fmt.Printf("  built:   %s\n", buildTime)
		},
	}
}

// loadConfig builds the effective configuration. Load handles the empty
// path itself, so STACKUP_* environment overrides apply with and without a
// config file.
func loadConfig(configFile string) (config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// withStack loads and validates configuration, connects to the cluster and
// hands a ready Stack to fn. Signal handling cancels the run context so an
// interrupted install stops between poll iterations.
func withStack(configFile string, fn func(context.Context, *stack.Stack, logr.Logger) error) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(observability.LoggerConfig{
		Level:       cfg.Logging.Level,
		Encoding:    cfg.Logging.Format,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	logger.Info("starting stackup",
		"version", version,
		"namespace", cfg.Namespace,
	)

	s, err := stack.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(observability.ContextWithLogger(context.Background(), logger))
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	return fn(ctx, s, logger)
}
