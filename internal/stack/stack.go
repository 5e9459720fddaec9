// Copyright 2026 BWI GmbH and Stackup contributors
// SPDX-License-Identifier: Apache-2.0

// Package stack assembles the deployment stack: it binds the chart, cluster,
// CI, dashboard and database helpers into an ordered list of reconcile
// Targets and exposes the three operations the CLI offers (install,
// uninstall, status).
package stack

import (
	"fmt"

	"github.com/go-logr/logr"

	"go.opendefense.cloud/stackup/pkg/config"
	"go.opendefense.cloud/stackup/pkg/grafana"
	"go.opendefense.cloud/stackup/pkg/helmrel"
	"go.opendefense.cloud/stackup/pkg/jenkins"
	"go.opendefense.cloud/stackup/pkg/kube"
	"go.opendefense.cloud/stackup/pkg/postgres"
	"go.opendefense.cloud/stackup/pkg/reconcile"
	"go.opendefense.cloud/stackup/pkg/secrets"
	"go.opendefense.cloud/stackup/pkg/tunnel"
)

// Credential file names under the state directory.
const (
	credDatabase = "postgresql-password"
	credJenkins  = "jenkins-password"
	credGrafana  = "grafana-password"
)

// Stack holds everything one run operates on.
type Stack struct {
	cfg     config.Config
	cluster *kube.Cluster
	helm    *helmrel.Manager
	secrets *secrets.Store
	tunnel  *tunnel.Manager
	driver  *reconcile.Driver
	logger  logr.Logger

	// Captured by the credential targets during a run. The Sequencer
	// drives targets strictly one at a time, so no locking is needed.
	dbPassword      string
	jenkinsPassword string
	grafanaPassword string
}

// New connects to the cluster and wires up the stack helpers.
func New(cfg config.Config, logger logr.Logger) (*Stack, error) {
	cluster, err := kube.Connect(cfg.Kubernetes.KubeConfig, cfg.Kubernetes.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cluster: %w", err)
	}
	helm, err := helmrel.NewManager(cfg.Namespace, cfg.Kubernetes.KubeConfig, cfg.Kubernetes.Context, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize helm: %w", err)
	}
	return &Stack{
		cfg:     cfg,
		cluster: cluster,
		helm:    helm,
		secrets: secrets.NewStore(cfg.StateDir, logger),
		tunnel:  tunnel.NewManager(cfg.Tunnel.Command, cfg.StateDir, logger),
		driver:  reconcile.NewDriver(reconcile.WithLogger(logger)),
		logger:  logger.WithName("stack"),
	}, nil
}

func (s *Stack) jenkinsURL() string { return "http://" + s.cfg.Jenkins.Host }
func (s *Stack) grafanaURL() string { return "http://" + s.cfg.Grafana.Host }

// jenkinsClient builds a client with the currently captured credential.
// Built per call because the credential target fills the password in
// mid-run.
func (s *Stack) jenkinsClient() *jenkins.Client {
	return jenkins.New(s.jenkinsURL(), s.cfg.Jenkins.User, s.jenkinsPassword,
		jenkins.WithLogger(s.logger))
}

func (s *Stack) grafanaClient() *grafana.Client {
	return grafana.New(s.grafanaURL(), s.cfg.Grafana.User, s.grafanaPassword,
		grafana.WithLogger(s.logger))
}

// dbConn is the probe connection: it dials the LoadBalancer port the tunnel
// exposes on localhost.
func (s *Stack) dbConn() postgres.Conn {
	return postgres.Conn{
		Host:     "127.0.0.1",
		Port:     s.cfg.Database.LocalPort,
		Database: s.cfg.Database.Name,
		User:     s.cfg.Database.User,
		Password: s.dbPassword,
		SSLMode:  s.cfg.Database.SSLMode,
	}
}

// dbClusterHost is the in-cluster DNS name pods reach the database at. The
// seeded CI job and the dashboard datasource use this, not the tunnel.
func (s *Stack) dbClusterHost() string {
	return fmt.Sprintf("%s.%s.svc.cluster.local", s.cfg.Charts.PostgreSQL.Release, s.cfg.Namespace)
}

// instanceSelector matches the pods and PVCs of one chart release. All four
// charts label their objects with the standard instance label.
func instanceSelector(release string) map[string]string {
	return map[string]string{"app.kubernetes.io/instance": release}
}
