// Copyright 2026 BWI GmbH and Stackup contributors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}

	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator provides configuration validation.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Required validates that a string field is not empty.
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.errors = append(v.errors, ValidationError{
			Field:   field,
			Message: "is required",
		})
	}
	return v
}

// InRange validates that an integer is within the specified range.
func (v *Validator) InRange(field string, value, min, max int) *Validator {
	if value < min || value > max {
		v.errors = append(v.errors, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be between %d and %d", min, max),
		})
	}
	return v
}

// Positive validates that an integer is positive.
func (v *Validator) Positive(field string, value int) *Validator {
	if value <= 0 {
		v.errors = append(v.errors, ValidationError{
			Field:   field,
			Message: "must be positive",
		})
	}
	return v
}

// OneOf validates that a string is one of the allowed values.
func (v *Validator) OneOf(field, value string, allowed []string) *Validator {
	for _, a := range allowed {
		if value == a {
			return v
		}
	}
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	})
	return v
}

// URL validates that a string is a valid URL.
func (v *Validator) URL(field, value string) *Validator {
	if value == "" {
		return v
	}
	if _, err := url.ParseRequestURI(value); err != nil {
		v.errors = append(v.errors, ValidationError{
			Field:   field,
			Message: "must be a valid URL",
		})
	}
	return v
}

// FileExists validates that a file exists at the given path.
func (v *Validator) FileExists(field, path string) *Validator {
	if path == "" {
		return v
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		v.errors = append(v.errors, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("file does not exist: %s", path),
		})
	}
	return v
}

// Errors returns all validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

// Validate returns an error if there are any validation errors, nil otherwise.
func (v *Validator) Validate() error {
	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

// Validate checks the effective configuration before any cluster mutation.
func (c Config) Validate() error {
	v := NewValidator()

	v.Required("namespace", c.Namespace)
	v.Required("stateDir", c.StateDir)
	v.OneOf("logging.level", c.Logging.Level, []string{"debug", "info", "warn", "error"})
	v.OneOf("logging.format", c.Logging.Format, []string{"json", "console"})

	if c.Kubernetes.KubeConfig != "" {
		v.FileExists("kubernetes.kubeConfig", c.Kubernetes.KubeConfig)
	}

	for _, cc := range []struct {
		name  string
		chart ChartConfig
	}{
		{"charts.traefik", c.Charts.Traefik},
		{"charts.postgresql", c.Charts.PostgreSQL},
		{"charts.jenkins", c.Charts.Jenkins},
		{"charts.grafana", c.Charts.Grafana},
	} {
		v.Required(cc.name+".release", cc.chart.Release)
		v.Required(cc.name+".chart", cc.chart.Chart)
		v.Required(cc.name+".repoURL", cc.chart.RepoURL)
		v.URL(cc.name+".repoURL", cc.chart.RepoURL)
	}

	v.Positive("timeouts.install", int(c.Timeouts.Install))
	v.Positive("timeouts.poll", int(c.Timeouts.Poll))
	v.InRange("database.port", c.Database.Port, 1, 65535)
	v.InRange("database.localPort", c.Database.LocalPort, 1, 65535)
	v.Required("database.name", c.Database.Name)
	v.Required("database.user", c.Database.User)
	v.Required("jenkins.user", c.Jenkins.User)
	v.Required("grafana.user", c.Grafana.User)

	return v.Validate()
}
