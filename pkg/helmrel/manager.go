// Copyright 2026 BWI GmbH and Stackup contributors
// SPDX-License-Identifier: Apache-2.0

// Package helmrel manages the named Helm releases the stack is built from:
// lookup, install, upgrade and uninstall against a chart repository, each
// bounded by a timeout. Waiting for readiness is not done here; the
// reconcile loop owns all polling.
package helmrel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-logr/logr"
	"helm.sh/helm/v4/pkg/action"
	"helm.sh/helm/v4/pkg/chart/loader"
	"helm.sh/helm/v4/pkg/cli"
	"helm.sh/helm/v4/pkg/release/common"
	release "helm.sh/helm/v4/pkg/release/v1"
	"helm.sh/helm/v4/pkg/storage/driver"
)

// Spec identifies one release and the chart it is installed from.
type Spec struct {
	Release string
	Chart   string
	RepoURL string
	Version string
	Values  map[string]any
	Timeout time.Duration
}

// Info is the observed state of a release.
type Info struct {
	Installed bool
	Status    string
	Revision  int
}

// Failed reports the known-bad release status that requires teardown.
func (i Info) Failed() bool {
	return i.Installed && i.Status == string(common.StatusFailed)
}

// Deployed reports the steady-state release status.
func (i Info) Deployed() bool {
	return i.Installed && i.Status == string(common.StatusDeployed)
}

// Manager wraps the Helm action API for a single namespace.
type Manager struct {
	settings  *cli.EnvSettings
	config    *action.Configuration
	namespace string
	logger    logr.Logger
}

// NewManager initializes the Helm action configuration for the namespace.
func NewManager(namespace, kubeconfig, kubeContext string, logger logr.Logger) (*Manager, error) {
	settings := cli.New()
	if kubeconfig != "" {
		settings.KubeConfig = kubeconfig
	}
	if kubeContext != "" {
		settings.KubeContext = kubeContext
	}

	cfg := new(action.Configuration)
	if err := cfg.Init(settings.RESTClientGetter(), namespace, os.Getenv("HELM_DRIVER")); err != nil {
		return nil, fmt.Errorf("failed to initialize helm configuration: %w", err)
	}

	return &Manager{
		settings:  settings,
		config:    cfg,
		namespace: namespace,
		logger:    logger.WithName("helm"),
	}, nil
}

// Status looks up a release by name. A missing release is not an error.
func (m *Manager) Status(name string) (Info, error) {
	reli, err := action.NewStatus(m.config).Run(name)
	if errors.Is(err, driver.ErrReleaseNotFound) {
		return Info{}, nil
	}
	if err != nil {
		return Info{}, fmt.Errorf("failed to get status of release %s: %w", name, err)
	}
	rel, ok := reli.(*release.Release)
	if !ok {
		return Info{}, fmt.Errorf("failed to get status of release %s: unexpected release type %T", name, reli)
	}
	return Info{
		Installed: true,
		Status:    rel.Info.Status.String(),
		Revision:  rel.Version,
	}, nil
}

// Install installs the release described by spec. Installing an already
// present release upgrades it instead, keeping the operation idempotent.
func (m *Manager) Install(ctx context.Context, spec Spec) error {
	info, err := m.Status(spec.Release)
	if err != nil {
		return err
	}
	if info.Installed {
		return m.upgrade(ctx, spec)
	}

	install := action.NewInstall(m.config)
	install.ReleaseName = spec.Release
	install.Namespace = m.namespace
	install.CreateNamespace = true
	install.Timeout = spec.Timeout
	install.ChartPathOptions.RepoURL = spec.RepoURL
	install.ChartPathOptions.Version = spec.Version

	chartPath, err := install.ChartPathOptions.LocateChart(spec.Chart, m.settings)
	if err != nil {
		return fmt.Errorf("failed to locate chart %s: %w", spec.Chart, err)
	}
	ch, err := loader.Load(chartPath)
	if err != nil {
		return fmt.Errorf("failed to load chart %s: %w", spec.Chart, err)
	}

	m.logger.Info("installing release", "release", spec.Release, "chart", spec.Chart, "version", spec.Version)
	if _, err := install.RunWithContext(ctx, ch, spec.Values); err != nil {
		return fmt.Errorf("failed to install release %s: %w", spec.Release, err)
	}
	return nil
}

func (m *Manager) upgrade(ctx context.Context, spec Spec) error {
	upgrade := action.NewUpgrade(m.config)
	upgrade.Namespace = m.namespace
	upgrade.Timeout = spec.Timeout
	upgrade.ChartPathOptions.RepoURL = spec.RepoURL
	upgrade.ChartPathOptions.Version = spec.Version

	chartPath, err := upgrade.ChartPathOptions.LocateChart(spec.Chart, m.settings)
	if err != nil {
		return fmt.Errorf("failed to locate chart %s: %w", spec.Chart, err)
	}
	ch, err := loader.Load(chartPath)
	if err != nil {
		return fmt.Errorf("failed to load chart %s: %w", spec.Chart, err)
	}

	m.logger.Info("upgrading release", "release", spec.Release, "chart", spec.Chart, "version", spec.Version)
	if _, err := upgrade.RunWithContext(ctx, spec.Release, ch, spec.Values); err != nil {
		return fmt.Errorf("failed to upgrade release %s: %w", spec.Release, err)
	}
	return nil
}

// Uninstall removes the release. A release that is already absent is not an
// error, so teardown can be re-issued safely.
func (m *Manager) Uninstall(name string) error {
	uninstall := action.NewUninstall(m.config)
	_, err := uninstall.Run(name)
	if errors.Is(err, driver.ErrReleaseNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to uninstall release %s: %w", name, err)
	}
	m.logger.Info("uninstalled release", "release", name)
	return nil
}
