// Copyright 2026 BWI GmbH and Stackup contributors
// SPDX-License-Identifier: Apache-2.0

// Package jenkins is a minimal client for the CI server's HTTP API: CSRF
// crumb handling, job configuration submission, build triggering and
// configuration reload. Requests are rate limited so retry loops cannot
// hammer a server that is still starting up.
package jenkins

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

	"github.com/go-logr/logr"
	"golang.org/x/time/rate"
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

// WithRateLimit sets the request rate limit.
func WithRateLimit(interval time.Duration, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Every(interval), burst)
	}
}

// Client talks to one Jenkins instance with basic auth.
type Client struct {
	baseURL  string
	user     string
	password string
	http     *http.Client
	limiter  *rate.Limiter
	logger   logr.Logger
}

// New creates a Client for the given base URL and admin credentials.
func New(baseURL, user, password string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		user:     user,
		password: password,
		http:     &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(rate.Every(time.Second), 5),
		logger:   logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type crumb struct {
	Field string `json:"crumbRequestField"`
	Value string `json:"crumb"`
}

// Ping reports whether the server answers its API root.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/api/json", "", nil, nil)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jenkins not ready: status %d", resp.StatusCode)
	}
	return nil
}

// crumbToken fetches the CSRF token mutating requests must carry.
func (c *Client) crumbToken(ctx context.Context) (crumb, error) {
	resp, err := c.do(ctx, http.MethodGet, "/crumbIssuer/api/json", "", nil, nil)
	if err != nil {
		return crumb{}, err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return crumb{}, fmt.Errorf("failed to fetch crumb: status %d", resp.StatusCode)
	}
	var cr crumb
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return crumb{}, fmt.Errorf("failed to decode crumb: %w", err)
	}
	return cr, nil
}

// JobExists reports whether a job with the given name is configured.
func (c *Client) JobExists(ctx context.Context, name string) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, "/job/"+url.PathEscape(name)+"/api/json", "", nil, nil)
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
		return false, fmt.Errorf("unexpected status %d checking job %s", resp.StatusCode, name)
	}
}

// CreateOrUpdateJob submits a job config.xml, creating the job or updating
// it in place when it already exists.
func (c *Client) CreateOrUpdateJob(ctx context.Context, name string, configXML []byte) error {
	exists, err := c.JobExists(ctx, name)
	if err != nil {
		return err
	}

	path := "/createItem?name=" + url.QueryEscape(name)
	if exists {
		path = "/job/" + url.PathEscape(name) + "/config.xml"
	}

	resp, err := c.doWithCrumb(ctx, http.MethodPost, path, "application/xml", bytes.NewReader(configXML))
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("failed to submit job %s: status %d: %s", name, resp.StatusCode, string(body))
	}
	c.logger.Info("job configuration submitted", "job", name, "updated", exists)
	return nil
}

// TriggerBuild queues a build of the named job.
func (c *Client) TriggerBuild(ctx context.Context, name string) error {
	resp, err := c.doWithCrumb(ctx, http.MethodPost, "/job/"+url.PathEscape(name)+"/build", "", nil)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to trigger build of %s: status %d", name, resp.StatusCode)
	}
	return nil
}

// Reload asks the server to re-read configuration from disk. Required after
// seeding a job through the file-drop interface.
func (c *Client) Reload(ctx context.Context) error {
	resp, err := c.doWithCrumb(ctx, http.MethodPost, "/reload", "", nil)
	if err != nil {
		return err
	}
	defer drain(resp)
	// Jenkins answers the reload with a redirect to the dashboard.
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("failed to reload configuration: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) doWithCrumb(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	cr, err := c.crumbToken(ctx)
	if err != nil {
		return nil, err
	}
	headers := map[string]string{cr.Field: cr.Value}
	return c.do(ctx, method, path, contentType, headers, body)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, headers map[string]string, body io.Reader) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.user, c.password)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jenkins request %s %s failed: %w", method, path, err)
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
