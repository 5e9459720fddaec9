// Copyright 2026 BWI GmbH and Stackup contributors
// SPDX-License-Identifier: Apache-2.0

package stack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"go.opendefense.cloud/stackup/pkg/config"
	"go.opendefense.cloud/stackup/pkg/helmrel"
	"go.opendefense.cloud/stackup/pkg/kube"
	"go.opendefense.cloud/stackup/pkg/postgres"
	"go.opendefense.cloud/stackup/pkg/reconcile"
)

// releaseState is the probed state of one chart release: the Helm status
// plus the pods it spawned.
type releaseState struct {
	Info helmrel.Info
	Pods kube.PodsStatus
}

// installTargets builds the ordered target list for an install run. The
// order encodes the stack's dependencies: the ingress controller and tunnel
// must be up before LoadBalancer addresses resolve, the database before the
// CI job that writes to it, the CI server before its seed job, and the
// dashboard last because everything it shows already exists.
func (s *Stack) installTargets() ([]reconcile.Target, error) {
	traefikValues, err := helmrel.RenderValues(assetsFS, "assets/values/traefik.yaml", map[string]any{
		"Namespace": s.cfg.Namespace,
	})
	if err != nil {
		return nil, err
	}
	postgresValues, err := helmrel.RenderValues(assetsFS, "assets/values/postgresql.yaml", map[string]any{
		"User":     s.cfg.Database.User,
		"Database": s.cfg.Database.Name,
		"Port":     s.cfg.Database.Port,
	})
	if err != nil {
		return nil, err
	}
	jenkinsValues, err := helmrel.RenderValues(assetsFS, "assets/values/jenkins.yaml", map[string]any{
		"User": s.cfg.Jenkins.User,
		"Host": s.cfg.Jenkins.Host,
	})
	if err != nil {
		return nil, err
	}
	grafanaValues, err := helmrel.RenderValues(assetsFS, "assets/values/grafana.yaml", map[string]any{
		"User": s.cfg.Grafana.User,
		"Host": s.cfg.Grafana.Host,
	})
	if err != nil {
		return nil, err
	}

	targets := []reconcile.Target{
		s.clusterTarget(),
		s.namespaceTarget(),
		s.releaseTarget("traefik", s.cfg.Charts.Traefik, traefikValues, false),
	}
	if !s.cfg.Tunnel.Disabled {
		targets = append(targets, s.tunnelTarget())
	}
	targets = append(targets,
		s.ingressAddressTarget(),
		s.releaseTarget("postgresql", s.cfg.Charts.PostgreSQL, postgresValues, false),
		s.credentialTarget("postgresql-credentials", credDatabase,
			s.cfg.Charts.PostgreSQL.Release, "password", &s.dbPassword, false),
		s.databaseTarget(),
		s.releaseTarget("jenkins", s.cfg.Charts.Jenkins, jenkinsValues, false),
		s.credentialTarget("jenkins-credentials", credJenkins,
			s.cfg.Charts.Jenkins.Release, "jenkins-admin-password", &s.jenkinsPassword, false),
		s.jenkinsAPITarget(),
		s.seedJobTarget(),
		s.releaseTarget("grafana", s.cfg.Charts.Grafana, grafanaValues, true),
		s.credentialTarget("grafana-credentials", credGrafana,
			s.cfg.Charts.Grafana.Release, "admin-password", &s.grafanaPassword, true),
		s.dashboardTarget(),
		s.routingTarget(),
	)
	return targets, nil
}

// clusterTarget verifies the control plane answers at all. Verify-only:
// there is nothing stackup can do to start a cluster.
func (s *Stack) clusterTarget() reconcile.Target {
	return reconcile.Target{
		Name: "cluster",
		Probe: func(ctx context.Context) (reconcile.Observation, error) {
			ok, err := s.cluster.NamespaceExists(ctx, "kube-system")
			if err != nil {
				return reconcile.Observation{}, err
			}
			return reconcile.Observation{Summary: "control plane reachable", Raw: ok}, nil
		},
		Verify:        verifyBool,
		Timeout:       s.cfg.Timeouts.Service,
		Interval:      s.cfg.Timeouts.Poll,
		MaxRecoveries: reconcile.NoRecovery,
	}
}

func (s *Stack) namespaceTarget() reconcile.Target {
	return reconcile.Target{
		Name: "namespace",
		Probe: func(ctx context.Context) (reconcile.Observation, error) {
			ok, err := s.cluster.NamespaceExists(ctx, s.cfg.Namespace)
			if err != nil {
				return reconcile.Observation{}, err
			}
			summary := fmt.Sprintf("namespace %s present: %t", s.cfg.Namespace, ok)
			return reconcile.Observation{Summary: summary, Raw: ok}, nil
		},
		Action: func(ctx context.Context) error {
			return s.cluster.EnsureNamespace(ctx, s.cfg.Namespace)
		},
		Verify:        verifyBool,
		Timeout:       s.cfg.Timeouts.Service,
		Interval:      s.cfg.Timeouts.Poll,
		MaxRecoveries: reconcile.NoRecovery,
	}
}

// releaseTarget drives one chart release to installed-and-all-pods-ready.
// A failed release or a crash-looping pod is the bad state; recovery
// uninstalls the release and deletes its PVCs so the reinstall starts from
// a clean volume.
func (s *Stack) releaseTarget(name string, chart config.ChartConfig, values map[string]any, soft bool) reconcile.Target {
	selector := instanceSelector(chart.Release)
	return reconcile.Target{
		Name: name,
		Probe: func(ctx context.Context) (reconcile.Observation, error) {
			info, err := s.helm.Status(chart.Release)
			if err != nil {
				return reconcile.Observation{}, err
			}
			if !info.Installed {
				return reconcile.Observation{
					Summary: fmt.Sprintf("release %s not installed", chart.Release),
					Raw:     releaseState{},
				}, nil
			}
			pods, err := s.cluster.PodsByLabel(ctx, s.cfg.Namespace, selector)
			if err != nil {
				return reconcile.Observation{}, err
			}
			return reconcile.Observation{
				Summary: fmt.Sprintf("release %s %s, %s", chart.Release, info.Status, pods.Summary()),
				Raw:     releaseState{Info: info, Pods: pods},
			}, nil
		},
		Action: func(ctx context.Context) error {
			return s.helm.Install(ctx, helmrel.Spec{
				Release: chart.Release,
				Chart:   chart.Chart,
				RepoURL: chart.RepoURL,
				Version: chart.Version,
				Values:  values,
				Timeout: s.cfg.Timeouts.Install,
			})
		},
		Verify: func(obs reconcile.Observation) bool {
			st, ok := obs.Raw.(releaseState)
			return ok && st.Info.Installed && st.Pods.Total > 0 && st.Pods.AllReady()
		},
		Bad: func(obs reconcile.Observation) bool {
			st, ok := obs.Raw.(releaseState)
			return ok && (st.Info.Failed() || len(st.Pods.CrashLooping) > 0)
		},
		Recover: func(ctx context.Context) error {
			s.logReleaseDiagnostics(ctx, chart.Release, selector)
			if err := s.helm.Uninstall(chart.Release); err != nil {
				return err
			}
			return s.cluster.DeletePVCs(ctx, s.cfg.Namespace, selector)
		},
		Timeout:  s.cfg.Timeouts.Install,
		Interval: s.cfg.Timeouts.Poll,
		Soft:     soft,
	}
}

// logReleaseDiagnostics surfaces the tail of a failing release's pod log
// before the teardown destroys it.
func (s *Stack) logReleaseDiagnostics(ctx context.Context, release string, selector map[string]string) {
	pod, err := s.cluster.FirstPodName(ctx, s.cfg.Namespace, selector)
	if err != nil {
		s.logger.Info("no pod found for failing release", "release", release, "error", err.Error())
		return
	}
	logs, err := s.cluster.PodLogs(ctx, s.cfg.Namespace, pod, 30)
	if err != nil {
		s.logger.Info("could not fetch pod logs for failing release", "release", release, "pod", pod, "error", err.Error())
		return
	}
	s.logger.Info("failing release pod log tail", "release", release, "pod", pod, "logs", logs)
}

func (s *Stack) tunnelTarget() reconcile.Target {
	return reconcile.Target{
		Name: "tunnel",
		Probe: func(ctx context.Context) (reconcile.Observation, error) {
			alive := s.tunnel.Alive()
			return reconcile.Observation{Summary: fmt.Sprintf("tunnel alive: %t", alive), Raw: alive}, nil
		},
		Action:        s.tunnel.EnsureRunning,
		Verify:        verifyBool,
		Timeout:       s.cfg.Timeouts.Service,
		Interval:      s.cfg.Timeouts.Poll,
		MaxRecoveries: reconcile.NoRecovery,
	}
}

// ingressAddressTarget waits for the ingress controller's LoadBalancer
// service to be assigned an external address. With minikube that only
// happens once the tunnel runs.
func (s *Stack) ingressAddressTarget() reconcile.Target {
	return reconcile.Target{
		Name: "ingress-address",
		Probe: func(ctx context.Context) (reconcile.Observation, error) {
			ip, err := s.cluster.ServiceIngressIP(ctx, s.cfg.Namespace, s.cfg.Charts.Traefik.Release)
			if err != nil {
				return reconcile.Observation{}, err
			}
			if ip == "" {
				return reconcile.Observation{Summary: "ingress address pending", Raw: false}, nil
			}
			return reconcile.Observation{Summary: "ingress address " + ip, Raw: true}, nil
		},
		Verify:        verifyBool,
		Timeout:       s.cfg.Timeouts.Service,
		Interval:      s.cfg.Timeouts.Poll,
		MaxRecoveries: reconcile.NoRecovery,
	}
}

// credentialTarget captures one chart-generated admin password into the
// state directory and into dest for the targets that follow. The store is
// file-first, so a credential captured by an earlier run short-circuits the
// cluster read.
func (s *Stack) credentialTarget(name, file, secretName, secretKey string, dest *string, soft bool) reconcile.Target {
	return reconcile.Target{
		Name: name,
		Probe: func(ctx context.Context) (reconcile.Observation, error) {
			if *dest == "" {
				return reconcile.Observation{Summary: "credential not captured", Raw: false}, nil
			}
			return reconcile.Observation{Summary: "credential captured", Raw: true}, nil
		},
		Action: func(ctx context.Context) error {
			value, err := s.secrets.Capture(ctx, file, func(ctx context.Context) ([]byte, error) {
				return s.cluster.SecretValue(ctx, s.cfg.Namespace, secretName, secretKey)
			})
			if err != nil {
				return err
			}
			*dest = value
			return nil
		},
		Verify:        verifyBool,
		Timeout:       s.cfg.Timeouts.Service,
		Interval:      s.cfg.Timeouts.Poll,
		MaxRecoveries: reconcile.NoRecovery,
		Soft:          soft,
	}
}

// databaseTarget waits until the database answers queries through the
// tunnel. Verify-only: the release target already installed it.
func (s *Stack) databaseTarget() reconcile.Target {
	return reconcile.Target{
		Name: "database",
		Probe: func(ctx context.Context) (reconcile.Observation, error) {
			if err := postgres.Probe(ctx, s.dbConn()); err != nil {
				return reconcile.Observation{Summary: "database not answering: " + err.Error(), Raw: false}, nil
			}
			return reconcile.Observation{Summary: "database answering queries", Raw: true}, nil
		},
		Verify:        verifyBool,
		Timeout:       s.cfg.Timeouts.Database,
		Interval:      s.cfg.Timeouts.Poll,
		MaxRecoveries: reconcile.NoRecovery,
	}
}

// jenkinsAPITarget waits for the CI server's HTTP API to authenticate the
// captured credential.
func (s *Stack) jenkinsAPITarget() reconcile.Target {
	return reconcile.Target{
		Name: "jenkins-api",
		Probe: func(ctx context.Context) (reconcile.Observation, error) {
			if err := s.jenkinsClient().Ping(ctx); err != nil {
				return reconcile.Observation{Summary: "jenkins api not ready: " + err.Error(), Raw: false}, nil
			}
			return reconcile.Observation{Summary: "jenkins api ready", Raw: true}, nil
		},
		Verify:        verifyBool,
		Timeout:       s.cfg.Timeouts.HTTP,
		Interval:      s.cfg.Timeouts.Poll,
		MaxRecoveries: reconcile.NoRecovery,
	}
}

// seedJobTarget provisions the timestamp-recording job: the script payload
// is dropped into the controller pod, the job definition is submitted
// through the API, and a first build is triggered.
func (s *Stack) seedJobTarget() reconcile.Target {
	jobName := s.cfg.Jenkins.SeedJob
	return reconcile.Target{
		Name: "seed-job",
		Probe: func(ctx context.Context) (reconcile.Observation, error) {
			exists, err := s.jenkinsClient().JobExists(ctx, jobName)
			if err != nil {
				return reconcile.Observation{}, err
			}
			summary := fmt.Sprintf("job %s present: %t", jobName, exists)
			return reconcile.Observation{Summary: summary, Raw: exists}, nil
		},
		Action:        s.seedJob,
		Verify:        verifyBool,
		Timeout:       s.cfg.Timeouts.HTTP,
		Interval:      s.cfg.Timeouts.Poll,
		MaxRecoveries: reconcile.NoRecovery,
	}
}

func (s *Stack) seedJob(ctx context.Context) error {
	script, err := asset("jenkins/seed.groovy")
	if err != nil {
		return err
	}
	jobConfig, err := helmrel.RenderFile(assetsFS, "assets/jenkins/job-config.xml", map[string]any{
		"DBHost":     s.dbClusterHost(),
		"DBPort":     s.cfg.Database.Port,
		"DBName":     s.cfg.Database.Name,
		"DBUser":     s.cfg.Database.User,
		"DBPassword": s.dbPassword,
	})
	if err != nil {
		return err
	}

	pod, err := s.cluster.FirstPodName(ctx, s.cfg.Namespace, instanceSelector(s.cfg.Charts.Jenkins.Release))
	if err != nil {
		return fmt.Errorf("failed to locate jenkins controller pod: %w", err)
	}
	if err := s.cluster.CopyToPod(ctx, s.cfg.Namespace, pod, "jenkins",
		"/var/jenkins_home/scripts", map[string][]byte{"seed.groovy": script}); err != nil {
		return fmt.Errorf("failed to drop seed script: %w", err)
	}
	if ok, err := s.cluster.FileExistsInPod(ctx, s.cfg.Namespace, pod, "jenkins",
		"/var/jenkins_home/scripts/seed.groovy"); err != nil {
		return fmt.Errorf("failed to verify seed script: %w", err)
	} else if !ok {
		return fmt.Errorf("seed script missing after copy into pod %s", pod)
	}

	jc := s.jenkinsClient()
	// The controller re-reads its home directory on reload; make the
	// dropped payload visible before the job definition references it.
	if err := jc.Reload(ctx); err != nil {
		return err
	}
	if err := jc.CreateOrUpdateJob(ctx, s.cfg.Jenkins.SeedJob, jobConfig); err != nil {
		return err
	}
	return jc.TriggerBuild(ctx, s.cfg.Jenkins.SeedJob)
}

// dashboardTarget provisions the datasource and dashboard. Soft: a broken
// dashboard never tears down a working stack.
func (s *Stack) dashboardTarget() reconcile.Target {
	return reconcile.Target{
		Name: "dashboard",
		Probe: func(ctx context.Context) (reconcile.Observation, error) {
			gc := s.grafanaClient()
			healthy, err := gc.Healthy(ctx)
			if err != nil {
				return reconcile.Observation{Summary: "grafana not reachable: " + err.Error(), Raw: false}, nil
			}
			if !healthy {
				return reconcile.Observation{Summary: "grafana database not ready", Raw: false}, nil
			}
			exists, err := gc.DashboardExists(ctx, dashboardUID)
			if err != nil {
				return reconcile.Observation{}, err
			}
			summary := fmt.Sprintf("grafana healthy, dashboard present: %t", exists)
			return reconcile.Observation{Summary: summary, Raw: exists}, nil
		},
		Action:        s.provisionDashboard,
		Verify:        verifyBool,
		Timeout:       s.cfg.Timeouts.HTTP,
		Interval:      s.cfg.Timeouts.Poll,
		MaxRecoveries: reconcile.NoRecovery,
		Soft:          true,
	}
}

func (s *Stack) provisionDashboard(ctx context.Context) error {
	datasource, err := asset("grafana/datasource.json")
	if err != nil {
		return err
	}
	overrides, err := datasourceOverrides(
		fmt.Sprintf("%s:%d", s.dbClusterHost(), s.cfg.Database.Port),
		s.cfg.Database, s.dbPassword,
	)
	if err != nil {
		return err
	}
	datasource, err = jsonpatch.MergePatch(datasource, overrides)
	if err != nil {
		return fmt.Errorf("failed to apply datasource overrides: %w", err)
	}

	dashboard, err := asset("grafana/dashboard.json")
	if err != nil {
		return err
	}

	gc := s.grafanaClient()
	if err := gc.EnsureDataSource(ctx, datasource); err != nil {
		return err
	}
	return gc.EnsureDashboard(ctx, dashboard, nil)
}

// routingTarget applies the IngressRoute and verifies both hostnames answer
// through the ingress controller. Soft: a failing route is reported, not
// fatal.
func (s *Stack) routingTarget() reconcile.Target {
	manifestData := map[string]any{
		"Namespace":      s.cfg.Namespace,
		"JenkinsHost":    s.cfg.Jenkins.Host,
		"JenkinsService": s.cfg.Charts.Jenkins.Release,
		"GrafanaHost":    s.cfg.Grafana.Host,
		"GrafanaService": s.cfg.Charts.Grafana.Release,
	}
	return reconcile.Target{
		Name: "routing",
		Probe: func(ctx context.Context) (reconcile.Observation, error) {
			manifest, err := helmrel.RenderFile(assetsFS, "assets/manifests/ingressroute.yaml", manifestData)
			if err != nil {
				return reconcile.Observation{}, err
			}
			present, err := s.cluster.ManifestPresent(ctx, s.cfg.Namespace, manifest)
			if err != nil {
				return reconcile.Observation{}, err
			}
			if !present {
				return reconcile.Observation{Summary: "ingress route not applied", Raw: false}, nil
			}
			for _, u := range []string{s.jenkinsURL(), s.grafanaURL()} {
				if err := probeRoute(ctx, u); err != nil {
					return reconcile.Observation{Summary: "route not answering: " + err.Error(), Raw: false}, nil
				}
			}
			return reconcile.Observation{Summary: "all routes answering", Raw: true}, nil
		},
		Action: func(ctx context.Context) error {
			manifest, err := helmrel.RenderFile(assetsFS, "assets/manifests/ingressroute.yaml", manifestData)
			if err != nil {
				return err
			}
			return s.cluster.ApplyManifest(ctx, s.cfg.Namespace, manifest)
		},
		Verify:        verifyBool,
		Timeout:       s.cfg.Timeouts.Routing,
		Interval:      s.cfg.Timeouts.Poll,
		MaxRecoveries: reconcile.NoRecovery,
		Soft:          true,
	}
}

// probeRoute considers any HTTP response below 500 proof that the route
// reaches a backend; auth challenges count.
func probeRoute(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%s answered %d", url, resp.StatusCode)
	}
	return nil
}

func verifyBool(obs reconcile.Observation) bool {
	ok, _ := obs.Raw.(bool)
	return ok
}

// datasourceOverrides builds the JSON merge patch that wires the datasource
// blob to the provisioned database.
func datasourceOverrides(url string, db config.DatabaseConfig, password string) ([]byte, error) {
	patch := map[string]any{
		"url":      url,
		"user":     db.User,
		"database": db.Name,
		"jsonData": map[string]any{
			"sslmode": db.SSLMode,
		},
		"secureJsonData": map[string]any{
			"password": password,
		},
	}
	return json.Marshal(patch)
}
