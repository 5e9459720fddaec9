// Copyright 2026 BWI GmbH and Stackup contributors
// SPDX-License-Identifier: Apache-2.0

package stack

import (
	"encoding/json"
	"strings"
	"testing"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opendefense.cloud/stackup/pkg/config"
	"go.opendefense.cloud/stackup/pkg/helmrel"
	"go.opendefense.cloud/stackup/pkg/reconcile"
)

func testStack(t *testing.T) *Stack {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.StateDir = t.TempDir()
	return &Stack{cfg: cfg, logger: logr.Discard()}
}

func targetNames(targets []reconcile.Target) []string {
	names := make([]string, 0, len(targets))
	for _, tg := range targets {
		names = append(names, tg.Name)
	}
	return names
}

func TestInstallTargetOrder(t *testing.T) {
	s := testStack(t)

	targets, err := s.installTargets()
	require.NoError(t, err)

	assert.Equal(t, []string{
		"cluster",
		"namespace",
		"traefik",
		"tunnel",
		"ingress-address",
		"postgresql",
		"postgresql-credentials",
		"database",
		"jenkins",
		"jenkins-credentials",
		"jenkins-api",
		"seed-job",
		"grafana",
		"grafana-credentials",
		"dashboard",
		"routing",
	}, targetNames(targets))
}

func TestInstallTargetOrderTunnelDisabled(t *testing.T) {
	s := testStack(t)
	s.cfg.Tunnel.Disabled = true

	targets, err := s.installTargets()
	require.NoError(t, err)

	assert.NotContains(t, targetNames(targets), "tunnel")
}

func TestInstallTargetSoftness(t *testing.T) {
	s := testStack(t)

	targets, err := s.installTargets()
	require.NoError(t, err)

	soft := map[string]bool{
		"grafana":             true,
		"grafana-credentials": true,
		"dashboard":           true,
		"routing":             true,
	}
	for _, tg := range targets {
		assert.Equal(t, soft[tg.Name], tg.Soft, "target %s", tg.Name)
	}
}

func TestInstallTargetTimeouts(t *testing.T) {
	s := testStack(t)

	targets, err := s.installTargets()
	require.NoError(t, err)

	byName := map[string]reconcile.Target{}
	for _, tg := range targets {
		byName[tg.Name] = tg
	}

	assert.Equal(t, s.cfg.Timeouts.Install, byName["traefik"].Timeout)
	assert.Equal(t, s.cfg.Timeouts.Install, byName["jenkins"].Timeout)
	assert.Equal(t, s.cfg.Timeouts.Database, byName["database"].Timeout)
	assert.Equal(t, s.cfg.Timeouts.Service, byName["ingress-address"].Timeout)
	assert.Equal(t, s.cfg.Timeouts.Routing, byName["routing"].Timeout)

	// Only chart releases get teardown recovery.
	for _, name := range []string{"traefik", "postgresql", "jenkins", "grafana"} {
		assert.NotEqual(t, reconcile.NoRecovery, byName[name].MaxRecoveries, "target %s", name)
		assert.NotNil(t, byName[name].Recover, "target %s", name)
	}
	for _, name := range []string{"cluster", "database", "seed-job", "routing"} {
		assert.Equal(t, reconcile.NoRecovery, byName[name].MaxRecoveries, "target %s", name)
	}
}

func TestValuesTemplatesRender(t *testing.T) {
	s := testStack(t)
	s.cfg.Namespace = "edge"

	traefik, err := helmrel.RenderValues(assetsFS, "assets/values/traefik.yaml", map[string]any{
		"Namespace": s.cfg.Namespace,
	})
	require.NoError(t, err)
	providers := traefik["providers"].(map[string]any)
	crd := providers["kubernetesCRD"].(map[string]any)
	assert.Equal(t, []any{"edge"}, crd["namespaces"])

	postgresql, err := helmrel.RenderValues(assetsFS, "assets/values/postgresql.yaml", map[string]any{
		"User":     "jobs",
		"Database": "jobs",
		"Port":     5432,
	})
	require.NoError(t, err)
	auth := postgresql["auth"].(map[string]any)
	assert.Equal(t, "jobs", auth["username"])
	assert.Equal(t, "jobs", auth["database"])

	jenkins, err := helmrel.RenderValues(assetsFS, "assets/values/jenkins.yaml", map[string]any{
		"User": "admin",
		"Host": "jenkins.localhost",
	})
	require.NoError(t, err)
	controller := jenkins["controller"].(map[string]any)
	assert.Equal(t, "http://jenkins.localhost", controller["jenkinsUrl"])
}

func TestJobConfigRendersConnection(t *testing.T) {
	rendered, err := helmrel.RenderFile(assetsFS, "assets/jenkins/job-config.xml", map[string]any{
		"DBHost":     "postgresql.stackup.svc.cluster.local",
		"DBPort":     5432,
		"DBName":     "jobs",
		"DBUser":     "jobs",
		"DBPassword": "s3cret",
	})
	require.NoError(t, err)

	text := string(rendered)
	assert.Contains(t, text, `DB_HOST="postgresql.stackup.svc.cluster.local"`)
	assert.Contains(t, text, `DB_PASSWORD="s3cret"`)
	assert.Contains(t, text, "seed.groovy")
	assert.True(t, strings.HasPrefix(text, "<?xml"))
}

func TestIngressRouteRenders(t *testing.T) {
	rendered, err := helmrel.RenderFile(assetsFS, "assets/manifests/ingressroute.yaml", map[string]any{
		"Namespace":      "stackup",
		"JenkinsHost":    "jenkins.localhost",
		"JenkinsService": "jenkins",
		"GrafanaHost":    "grafana.localhost",
		"GrafanaService": "grafana",
	})
	require.NoError(t, err)

	text := string(rendered)
	assert.Contains(t, text, "Host(`jenkins.localhost`)")
	assert.Contains(t, text, "Host(`grafana.localhost`)")
	assert.Contains(t, text, "namespace: stackup")
}

func TestDatasourceOverrides(t *testing.T) {
	base, err := asset("grafana/datasource.json")
	require.NoError(t, err)

	cfg, err := config.Default()
	require.NoError(t, err)
	overrides, err := datasourceOverrides("postgresql.stackup.svc.cluster.local:5432", cfg.Database, "s3cret")
	require.NoError(t, err)

	patched, err := jsonpatch.MergePatch(base, overrides)
	require.NoError(t, err)

	var ds map[string]any
	require.NoError(t, json.Unmarshal(patched, &ds))
	assert.Equal(t, "jobs-db", ds["name"], "name from the blob must survive the patch")
	assert.Equal(t, "postgresql.stackup.svc.cluster.local:5432", ds["url"])
	secure := ds["secureJsonData"].(map[string]any)
	assert.Equal(t, "s3cret", secure["password"])
}

// The seed script writes and the dashboard reads the same table; both
// blobs must use the documented column set.
func TestSeedAndDashboardAgreeOnSchema(t *testing.T) {
	script, err := asset("jenkins/seed.groovy")
	require.NoError(t, err)
	dashboard, err := asset("grafana/dashboard.json")
	require.NoError(t, err)

	assert.Contains(t, string(script), "job_timestamps")
	assert.Contains(t, string(script), `"timestamp"`)
	assert.Contains(t, string(dashboard), "job_timestamps")
	// The JSON blob carries the quoted identifier inside a string value.
	assert.Contains(t, string(dashboard), `\"timestamp\"`)
	for _, column := range []string{"pod_name", "job_name", "build_number"} {
		assert.Contains(t, string(script), column)
		assert.Contains(t, string(dashboard), column)
	}
}

func TestDashboardBlobMatchesProbeUID(t *testing.T) {
	blob, err := asset("grafana/dashboard.json")
	require.NoError(t, err)

	var dashboard struct {
		UID string `json:"uid"`
	}
	require.NoError(t, json.Unmarshal(blob, &dashboard))
	assert.Equal(t, dashboardUID, dashboard.UID)
}
