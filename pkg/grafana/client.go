// Copyright 2026 BWI GmbH and Stackup contributors
// SPDX-License-Identifier: Apache-2.0

// Package grafana is a minimal client for the dashboard service's HTTP API:
// the health endpoint plus idempotent provisioning of one data source and
// one dashboard. The payloads themselves are opaque blobs owned by the
// dashboard tooling; this package only injects per-environment overrides.
package grafana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/go-logr/logr"
)

// Option configures a Client.
type Option func(c *Client)

// WithLogger sets the logger for the Client.
func WithLogger(l logr.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// Client talks to one Grafana instance with basic auth.
type Client struct {
	baseURL  string
	user     string
	password string
	http     *http.Client
	logger   logr.Logger
}

// New creates a Client for the given base URL and admin credentials.
func New(baseURL, user, password string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		user:     user,
		password: password,
		http:     &http.Client{Timeout: 30 * time.Second},
		logger:   logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Healthy reports whether /api/health answers with a working database.
func (c *Client) Healthy(ctx context.Context) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/health", nil)
	if err != nil {
		return false, err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return false, nil
	}
	var health struct {
		Database string `json:"database"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false, nil
	}
	return health.Database == "ok", nil
}

// EnsureDataSource creates the data source described by the payload, or
// updates it in place when one with the same name already exists.
func (c *Client) EnsureDataSource(ctx context.Context, payload []byte) error {
	var meta struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(payload, &meta); err != nil {
		return fmt.Errorf("failed to parse datasource payload: %w", err)
	}
	if meta.Name == "" {
		return fmt.Errorf("datasource payload has no name")
	}

	resp, err := c.do(ctx, http.MethodGet, "/api/datasources/name/"+url.PathEscape(meta.Name), nil)
	if err != nil {
		return err
	}
	var existingID int64
	func() {
		defer drain(resp)
		if resp.StatusCode != http.StatusOK {
			return
		}
		var existing struct {
			ID int64 `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&existing); err == nil {
			existingID = existing.ID
		}
	}()

	method, path := http.MethodPost, "/api/datasources"
	if existingID != 0 {
		method, path = http.MethodPut, fmt.Sprintf("/api/datasources/%d", existingID)
	}

	resp, err = c.do(ctx, method, path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("failed to provision datasource %s: status %d: %s", meta.Name, resp.StatusCode, string(body))
	}
	c.logger.Info("datasource provisioned", "name", meta.Name, "updated", existingID != 0)
	return nil
}

// EnsureDashboard imports the dashboard blob, applying the optional JSON
// merge patch first (datasource wiring, titles). Import uses overwrite
// semantics, so re-running is idempotent.
func (c *Client) EnsureDashboard(ctx context.Context, dashboard, overrides []byte) error {
	if len(overrides) > 0 {
		patched, err := jsonpatch.MergePatch(dashboard, overrides)
		if err != nil {
			return fmt.Errorf("failed to apply dashboard overrides: %w", err)
		}
		dashboard = patched
	}

	body, err := json.Marshal(map[string]any{
		"dashboard": json.RawMessage(dashboard),
		"overwrite": true,
	})
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/dashboards/db", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("failed to import dashboard: status %d: %s", resp.StatusCode, string(respBody))
	}
	c.logger.Info("dashboard imported")
	return nil
}

// DashboardExists reports whether a dashboard with the given UID is present.
func (c *Client) DashboardExists(ctx context.Context, uid string) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/dashboards/uid/"+url.PathEscape(uid), nil)
	if err != nil {
		return false, err
	}
	defer drain(resp)
	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected status %d checking dashboard %s", resp.StatusCode, uid)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.user, c.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("grafana request %s %s failed: %w", method, path, err)
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
