// Copyright 2026 BWI GmbH and Stackup contributors
// SPDX-License-Identifier: Apache-2.0

package grafana

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGrafana struct {
	mux         *http.ServeMux
	healthy     bool
	datasources map[string]json.RawMessage
	dashboards  []json.RawMessage
	updates     int
}

func newFakeGrafana() *fakeGrafana {
	f := &fakeGrafana{
		mux:         http.NewServeMux(),
		healthy:     true,
		datasources: map[string]json.RawMessage{},
	}

	f.mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		db := "ok"
		if !f.healthy {
			db = "failing"
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"database": db})
	})
	f.mux.HandleFunc("GET /api/datasources/name/{name}", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := f.datasources[r.PathValue("name")]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 1})
	})
	f.mux.HandleFunc("POST /api/datasources", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var meta struct {
			Name string `json:"name"`
		}
		_ = json.Unmarshal(body, &meta)
		f.datasources[meta.Name] = body
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 1})
	})
	f.mux.HandleFunc("PUT /api/datasources/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.updates++
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 1})
	})
	f.mux.HandleFunc("POST /api/dashboards/db", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.dashboards = append(f.dashboards, body)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "success"})
	})

	return f
}

func newTestClient(t *testing.T) (*Client, *fakeGrafana) {
	t.Helper()
	f := newFakeGrafana()
	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)
	return New(srv.URL, "admin", "s3cret"), f
}

func TestHealthy(t *testing.T) {
	t.Parallel()

	c, f := newTestClient(t)

	ok, err := c.Healthy(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	f.healthy = false
	ok, err = c.Healthy(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnsureDataSourceCreateThenUpdate(t *testing.T) {
	t.Parallel()

	c, f := newTestClient(t)
	ctx := context.Background()
	payload := []byte(`{"name":"jobs-db","type":"postgres","url":"postgresql:5432"}`)

	require.NoError(t, c.EnsureDataSource(ctx, payload))
	assert.Contains(t, f.datasources, "jobs-db")
	assert.Zero(t, f.updates)

	// A second ensure must update, not duplicate.
	require.NoError(t, c.EnsureDataSource(ctx, payload))
	assert.Equal(t, 1, f.updates)
	assert.Len(t, f.datasources, 1)
}

func TestEnsureDataSourceRejectsUnnamedPayload(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t)
	assert.Error(t, c.EnsureDataSource(context.Background(), []byte(`{"type":"postgres"}`)))
}

func TestEnsureDashboardAppliesOverrides(t *testing.T) {
	t.Parallel()

	c, f := newTestClient(t)
	dashboard := []byte(`{"uid":"jobs","title":"Job timestamps","panels":[]}`)
	overrides := []byte(`{"title":"Job timestamps (stackup)"}`)

	require.NoError(t, c.EnsureDashboard(context.Background(), dashboard, overrides))
	require.Len(t, f.dashboards, 1)

	var imported struct {
		Dashboard struct {
			UID   string `json:"uid"`
			Title string `json:"title"`
		} `json:"dashboard"`
		Overwrite bool `json:"overwrite"`
	}
	require.NoError(t, json.Unmarshal(f.dashboards[0], &imported))
	assert.Equal(t, "jobs", imported.Dashboard.UID)
	assert.Equal(t, "Job timestamps (stackup)", imported.Dashboard.Title)
	assert.True(t, imported.Overwrite, "import must use overwrite semantics")
}

func TestEnsureDashboardNoOverrides(t *testing.T) {
	t.Parallel()

	c, f := newTestClient(t)
	require.NoError(t, c.EnsureDashboard(context.Background(), []byte(`{"uid":"jobs"}`), nil))
	assert.Len(t, f.dashboards, 1)
}
