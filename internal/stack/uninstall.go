// Copyright 2026 BWI GmbH and Stackup contributors
// SPDX-License-Identifier: Apache-2.0

package stack

import (
	"context"
	"errors"

	"go.opendefense.cloud/stackup/pkg/config"
)

// Uninstall tears the stack down in reverse install order. Every step
// tolerates absence, so a partial install or a repeated uninstall is fine.
// Teardown keeps going past individual failures and reports them joined.
func (s *Stack) Uninstall(ctx context.Context) error {
	var errs []error

	charts := []config.ChartConfig{
		s.cfg.Charts.Grafana,
		s.cfg.Charts.Jenkins,
		s.cfg.Charts.PostgreSQL,
		s.cfg.Charts.Traefik,
	}
	for _, chart := range charts {
		s.logger.Info("uninstalling release", "release", chart.Release)
		if err := s.helm.Uninstall(chart.Release); err != nil {
			errs = append(errs, err)
		}
		if err := s.cluster.DeletePVCs(ctx, s.cfg.Namespace, instanceSelector(chart.Release)); err != nil {
			errs = append(errs, err)
		}
	}

	if err := s.cluster.DeleteNamespace(ctx, s.cfg.Namespace); err != nil {
		errs = append(errs, err)
	}

	if !s.cfg.Tunnel.Disabled {
		if err := s.tunnel.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	for _, name := range []string{credDatabase, credJenkins, credGrafana} {
		if err := s.secrets.Forget(name); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Info("stack removed", "namespace", s.cfg.Namespace)
	return nil
}
