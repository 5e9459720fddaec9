// Copyright 2026 BWI GmbH and Stackup contributors
// SPDX-License-Identifier: Apache-2.0

package stack

import (
	"context"
	"fmt"

	"go.opendefense.cloud/stackup/pkg/config"
	"go.opendefense.cloud/stackup/pkg/postgres"
)

// ComponentStatus is one line of the status report.
type ComponentStatus struct {
	Name   string
	Ready  bool
	Detail string
}

// StatusReport is the result of one read-only status pass.
type StatusReport struct {
	Components []ComponentStatus
}

// Ready reports whether every component checked out.
func (r StatusReport) Ready() bool {
	for _, c := range r.Components {
		if !c.Ready {
			return false
		}
	}
	return true
}

// Status probes every component once and reports what it sees. It never
// mutates cluster state and never fetches secrets from the cluster; only
// locally captured credentials are used for the authenticated probes.
func (s *Stack) Status(ctx context.Context) StatusReport {
	var report StatusReport
	add := func(name string, ready bool, detail string) {
		report.Components = append(report.Components, ComponentStatus{Name: name, Ready: ready, Detail: detail})
	}

	nsOK, err := s.cluster.NamespaceExists(ctx, s.cfg.Namespace)
	switch {
	case err != nil:
		add("namespace", false, "cluster not reachable: "+err.Error())
	case !nsOK:
		add("namespace", false, fmt.Sprintf("namespace %s not found", s.cfg.Namespace))
	default:
		add("namespace", true, s.cfg.Namespace)
	}

	for _, chart := range []config.ChartConfig{
		s.cfg.Charts.Traefik,
		s.cfg.Charts.PostgreSQL,
		s.cfg.Charts.Jenkins,
		s.cfg.Charts.Grafana,
	} {
		ready, detail := s.releaseStatus(ctx, chart)
		add(chart.Release, ready, detail)
	}

	if !s.cfg.Tunnel.Disabled {
		alive := s.tunnel.Alive()
		add("tunnel", alive, fmt.Sprintf("alive: %t", alive))
	}

	s.loadCachedCredentials()

	if s.dbPassword == "" {
		add("database", false, "credential not captured, skipping probe")
	} else if err := postgres.Probe(ctx, s.dbConn()); err != nil {
		add("database", false, err.Error())
	} else {
		count, err := postgres.CountJobTimestamps(ctx, s.dbConn())
		switch {
		case err != nil:
			add("database", true, "answering, timestamp count unavailable: "+err.Error())
		case count < 0:
			add("database", true, "answering, timestamp table not created yet")
		default:
			add("database", true, fmt.Sprintf("answering, %d recorded builds", count))
		}
	}

	if s.jenkinsPassword == "" {
		add("jenkins-api", false, "credential not captured, skipping probe")
	} else if err := s.jenkinsClient().Ping(ctx); err != nil {
		add("jenkins-api", false, err.Error())
	} else {
		exists, err := s.jenkinsClient().JobExists(ctx, s.cfg.Jenkins.SeedJob)
		if err != nil {
			add("jenkins-api", true, "api up, job check failed: "+err.Error())
		} else {
			add("jenkins-api", exists, fmt.Sprintf("api up, job %s present: %t", s.cfg.Jenkins.SeedJob, exists))
		}
	}

	if s.grafanaPassword == "" {
		add("dashboard", false, "credential not captured, skipping probe")
	} else {
		gc := s.grafanaClient()
		healthy, err := gc.Healthy(ctx)
		switch {
		case err != nil:
			add("dashboard", false, err.Error())
		case !healthy:
			add("dashboard", false, "grafana database not ready")
		default:
			exists, err := gc.DashboardExists(ctx, dashboardUID)
			if err != nil {
				add("dashboard", false, "grafana up, dashboard check failed: "+err.Error())
			} else {
				add("dashboard", exists, fmt.Sprintf("grafana up, dashboard present: %t", exists))
			}
		}
	}

	return report
}

func (s *Stack) releaseStatus(ctx context.Context, chart config.ChartConfig) (bool, string) {
	info, err := s.helm.Status(chart.Release)
	if err != nil {
		return false, err.Error()
	}
	if !info.Installed {
		return false, "not installed"
	}
	pods, err := s.cluster.PodsByLabel(ctx, s.cfg.Namespace, instanceSelector(chart.Release))
	if err != nil {
		return false, fmt.Sprintf("release %s, pod check failed: %s", info.Status, err)
	}
	ready := info.Deployed() && pods.Total > 0 && pods.AllReady()
	return ready, fmt.Sprintf("release %s, %s", info.Status, pods.Summary())
}

// loadCachedCredentials fills the password fields from the state directory.
// Missing files are fine; the dependent probes are skipped then.
func (s *Stack) loadCachedCredentials() {
	load := func(name string, dest *string) {
		if *dest != "" {
			return
		}
		if value, ok, err := s.secrets.Cached(name); err == nil && ok {
			*dest = value
		}
	}
	load(credDatabase, &s.dbPassword)
	load(credJenkins, &s.jenkinsPassword)
	load(credGrafana, &s.grafanaPassword)
}
