// Copyright 2026 BWI GmbH and Stackup contributors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading and validation for stackup.
// Configuration is an explicit value handed to the sequencer and every
// target builder; nothing reads process-wide globals.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"sigs.k8s.io/yaml"
)

// Config is the root configuration for a stackup run.
type Config struct {
	// Namespace is the cluster namespace everything is installed into.
	Namespace string `json:"namespace" yaml:"namespace" default:"stackup"`

	// StateDir holds captured credential files and the tunnel pid file.
	StateDir string `json:"stateDir" yaml:"stateDir"`

	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Kubernetes KubernetesConfig `json:"kubernetes" yaml:"kubernetes"`
	Charts     ChartsConfig     `json:"charts" yaml:"charts"`
	Timeouts   TimeoutsConfig   `json:"timeouts" yaml:"timeouts"`
	Database   DatabaseConfig   `json:"database" yaml:"database"`
	Jenkins    JenkinsConfig    `json:"jenkins" yaml:"jenkins"`
	Grafana    GrafanaConfig    `json:"grafana" yaml:"grafana"`
	Tunnel     TunnelConfig     `json:"tunnel" yaml:"tunnel"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `json:"level" yaml:"level" default:"info"`
	// Format is the log format (json, console).
	Format string `json:"format" yaml:"format" default:"console"`
	// Development enables development mode.
	Development bool `json:"development" yaml:"development"`
}

// KubernetesConfig contains Kubernetes client configuration.
type KubernetesConfig struct {
	// KubeConfig is the path to the kubeconfig file. Empty means the
	// standard loading rules (KUBECONFIG, ~/.kube/config).
	KubeConfig string `json:"kubeConfig" yaml:"kubeConfig"`
	// Context is the kubeconfig context to use. Empty means current.
	Context string `json:"context" yaml:"context"`
}

// ChartConfig identifies one Helm chart and the release installed from it.
type ChartConfig struct {
	// Release is the release name.
	Release string `json:"release" yaml:"release"`
	// RepoURL is the chart repository URL.
	RepoURL string `json:"repoURL" yaml:"repoURL"`
	// Chart is the chart name within the repository.
	Chart string `json:"chart" yaml:"chart"`
	// Version pins the chart version. Empty means latest.
	Version string `json:"version" yaml:"version"`
}

// ChartsConfig lists the fixed chart set the stack is built from.
type ChartsConfig struct {
	Traefik    ChartConfig `json:"traefik" yaml:"traefik"`
	PostgreSQL ChartConfig `json:"postgresql" yaml:"postgresql"`
	Jenkins    ChartConfig `json:"jenkins" yaml:"jenkins"`
	Grafana    ChartConfig `json:"grafana" yaml:"grafana"`
}

// TimeoutsConfig bounds every reconcile loop. There is no unbounded wait.
type TimeoutsConfig struct {
	// Install bounds one Helm release becoming ready.
	Install time.Duration `json:"install" yaml:"install" default:"10m"`
	// Database bounds the database answering queries.
	Database time.Duration `json:"database" yaml:"database" default:"10m"`
	// Service bounds a LoadBalancer service getting an external IP.
	Service time.Duration `json:"service" yaml:"service" default:"3m"`
	// HTTP bounds an HTTP health endpoint turning healthy.
	HTTP time.Duration `json:"http" yaml:"http" default:"5m"`
	// Routing bounds the end-to-end ingress route verification.
	Routing time.Duration `json:"routing" yaml:"routing" default:"2m"`
	// Poll is the interval between probe attempts.
	Poll time.Duration `json:"poll" yaml:"poll" default:"5s"`
}

// DatabaseConfig describes the PostgreSQL instance the stack provisions.
type DatabaseConfig struct {
	// Name is the database created for the CI job.
	Name string `json:"name" yaml:"name" default:"jobs"`
	// User is the application database user.
	User string `json:"user" yaml:"user" default:"jobs"`
	// Port is the in-cluster service port.
	Port int `json:"port" yaml:"port" default:"5432"`
	// LocalPort is the port the probe dials after the tunnel is up.
	LocalPort int `json:"localPort" yaml:"localPort" default:"5432"`
	// SSLMode is the libpq sslmode for probe connections.
	SSLMode string `json:"sslMode" yaml:"sslMode" default:"disable"`
}

// JenkinsConfig describes the CI server.
type JenkinsConfig struct {
	// User is the admin account the chart generates a password for.
	User string `json:"user" yaml:"user" default:"admin"`
	// Host is the ingress hostname routed to Jenkins.
	Host string `json:"host" yaml:"host" default:"jenkins.localhost"`
	// SeedJob is the name of the seeded job.
	SeedJob string `json:"seedJob" yaml:"seedJob" default:"record-build-timestamp"`
}

// GrafanaConfig describes the dashboard service.
type GrafanaConfig struct {
	// User is the admin account the chart generates a password for.
	User string `json:"user" yaml:"user" default:"admin"`
	// Host is the ingress hostname routed to Grafana.
	Host string `json:"host" yaml:"host" default:"grafana.localhost"`
}

// TunnelConfig describes the detached network helper process.
type TunnelConfig struct {
	// Command is the tunnel command line.
	Command []string `json:"command" yaml:"command"`
	// Disabled skips tunnel management entirely.
	Disabled bool `json:"disabled" yaml:"disabled"`
}

// Default returns a fully defaulted Config.
func Default() (Config, error) {
	cfg := Config{}
	if err := defaults.Set(&cfg); err != nil {
		return Config{}, err
	}

	// Slice and cross-field defaults that `default:` tags cannot express.
	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		cfg.StateDir = filepath.Join(home, ".stackup")
	}
	if len(cfg.Tunnel.Command) == 0 {
		cfg.Tunnel.Command = []string{"minikube", "tunnel"}
	}

	cfg.Charts.Traefik = chartDefault(cfg.Charts.Traefik, "traefik", "https://traefik.github.io/charts", "traefik")
	cfg.Charts.PostgreSQL = chartDefault(cfg.Charts.PostgreSQL, "postgresql", "https://charts.bitnami.com/bitnami", "postgresql")
	cfg.Charts.Jenkins = chartDefault(cfg.Charts.Jenkins, "jenkins", "https://charts.jenkins.io", "jenkins")
	cfg.Charts.Grafana = chartDefault(cfg.Charts.Grafana, "grafana", "https://grafana.github.io/helm-charts", "grafana")

	return cfg, nil
}

func chartDefault(c ChartConfig, release, repoURL, chart string) ChartConfig {
	if c.Release == "" {
		c.Release = release
	}
	if c.RepoURL == "" {
		c.RepoURL = repoURL
	}
	if c.Chart == "" {
		c.Chart = chart
	}
	return c
}

// Load builds the effective configuration: defaults, then the optional YAML
// file, then environment overrides with the STACKUP_ prefix.
func Load(path string) (Config, error) {
	cfg := Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := defaults.Set(&cfg); err != nil {
		return Config{}, err
	}
	base, err := Default()
	if err != nil {
		return Config{}, err
	}
	if cfg.StateDir == "" {
		cfg.StateDir = base.StateDir
	}
	if len(cfg.Tunnel.Command) == 0 {
		cfg.Tunnel.Command = base.Tunnel.Command
	}
	cfg.Charts.Traefik = chartDefault(cfg.Charts.Traefik, base.Charts.Traefik.Release, base.Charts.Traefik.RepoURL, base.Charts.Traefik.Chart)
	cfg.Charts.PostgreSQL = chartDefault(cfg.Charts.PostgreSQL, base.Charts.PostgreSQL.Release, base.Charts.PostgreSQL.RepoURL, base.Charts.PostgreSQL.Chart)
	cfg.Charts.Jenkins = chartDefault(cfg.Charts.Jenkins, base.Charts.Jenkins.Release, base.Charts.Jenkins.RepoURL, base.Charts.Jenkins.Chart)
	cfg.Charts.Grafana = chartDefault(cfg.Charts.Grafana, base.Charts.Grafana.Release, base.Charts.Grafana.RepoURL, base.Charts.Grafana.Chart)

	applyEnv(&cfg, NewEnvLoader("STACKUP"))

	return cfg, nil
}

func applyEnv(cfg *Config, l *EnvLoader) {
	cfg.Namespace = l.GetString("NAMESPACE", cfg.Namespace)
	cfg.StateDir = l.GetString("STATE_DIR", cfg.StateDir)

	cfg.Logging.Level = l.GetString("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = l.GetString("LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.Development = l.GetBool("LOG_DEVELOPMENT", cfg.Logging.Development)

	cfg.Kubernetes.KubeConfig = l.GetString("KUBECONFIG", cfg.Kubernetes.KubeConfig)
	cfg.Kubernetes.Context = l.GetString("KUBE_CONTEXT", cfg.Kubernetes.Context)

	cfg.Timeouts.Install = l.GetDuration("TIMEOUT_INSTALL", cfg.Timeouts.Install)
	cfg.Timeouts.Database = l.GetDuration("TIMEOUT_DATABASE", cfg.Timeouts.Database)
	cfg.Timeouts.Service = l.GetDuration("TIMEOUT_SERVICE", cfg.Timeouts.Service)
	cfg.Timeouts.HTTP = l.GetDuration("TIMEOUT_HTTP", cfg.Timeouts.HTTP)
	cfg.Timeouts.Routing = l.GetDuration("TIMEOUT_ROUTING", cfg.Timeouts.Routing)
	cfg.Timeouts.Poll = l.GetDuration("POLL_INTERVAL", cfg.Timeouts.Poll)

	cfg.Database.Name = l.GetString("DB_NAME", cfg.Database.Name)
	cfg.Database.User = l.GetString("DB_USER", cfg.Database.User)
	cfg.Database.Port = l.GetInt("DB_PORT", cfg.Database.Port)
	cfg.Database.LocalPort = l.GetInt("DB_LOCAL_PORT", cfg.Database.LocalPort)

	cfg.Jenkins.User = l.GetString("JENKINS_USER", cfg.Jenkins.User)
	cfg.Jenkins.Host = l.GetString("JENKINS_HOST", cfg.Jenkins.Host)

	cfg.Grafana.User = l.GetString("GRAFANA_USER", cfg.Grafana.User)
	cfg.Grafana.Host = l.GetString("GRAFANA_HOST", cfg.Grafana.Host)

	cfg.Tunnel.Disabled = l.GetBool("TUNNEL_DISABLED", cfg.Tunnel.Disabled)
}

// EnvLoader loads configuration values from environment variables.
type EnvLoader struct {
	prefix string
}

// NewEnvLoader creates a new EnvLoader with the given prefix.
// Environment variables will be looked up as PREFIX_KEY (e.g. STACKUP_LOG_LEVEL).
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{prefix: strings.ToUpper(prefix)}
}

// GetString returns the string value for the given key, or the default if not set.
func (l *EnvLoader) GetString(key, defaultValue string) string {
	if value := os.Getenv(l.envKey(key)); value != "" {
		return value
	}
	return defaultValue
}

// GetInt returns the int value for the given key, or the default if not set or invalid.
func (l *EnvLoader) GetInt(key string, defaultValue int) int {
	if value := os.Getenv(l.envKey(key)); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// GetBool returns the bool value for the given key, or the default if not set or invalid.
func (l *EnvLoader) GetBool(key string, defaultValue bool) bool {
	if value := os.Getenv(l.envKey(key)); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// GetDuration returns the duration value for the given key, or the default if not set or invalid.
func (l *EnvLoader) GetDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(l.envKey(key)); value != "" {
		if durVal, err := time.ParseDuration(value); err == nil {
			return durVal
		}
	}
	return defaultValue
}

func (l *EnvLoader) envKey(key string) string {
	key = strings.ToUpper(key)
	key = strings.ReplaceAll(key, ".", "_")
	key = strings.ReplaceAll(key, "-", "_")
	if l.prefix != "" {
		return l.prefix + "_" + key
	}
	return key
}
