// Copyright 2026 BWI GmbH and Stackup contributors
// SPDX-License-Identifier: Apache-2.0

package helmrel

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"helm.sh/helm/v4/pkg/release/common"
)

func TestRenderValues(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"values/postgresql.yaml": &fstest.MapFile{Data: []byte(`
auth:
  username: << .User >>
  database: << .Database | quote >>
primary:
  persistence:
    enabled: true
`)},
	}

	values, err := RenderValues(fsys, "values/postgresql.yaml", map[string]string{
		"User":     "jobs",
		"Database": "jobs",
	})
	require.NoError(t, err)

	auth, ok := values["auth"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "jobs", auth["username"])
	assert.Equal(t, "jobs", auth["database"])
}

func TestRenderValuesEnvFunctionsRemoved(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"values/bad.yaml": &fstest.MapFile{Data: []byte(`home: << env "HOME" >>`)},
	}

	_, err := RenderValues(fsys, "values/bad.yaml", nil)
	assert.Error(t, err, "env must not be callable from a values template")
}

func TestRenderValuesBadYAML(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"values/broken.yaml": &fstest.MapFile{Data: []byte("{\n  not yaml")},
	}

	_, err := RenderValues(fsys, "values/broken.yaml", nil)
	assert.Error(t, err)
}

func TestInfoFailed(t *testing.T) {
	t.Parallel()

	assert.False(t, Info{}.Failed(), "absent release is not a failed release")
	assert.False(t, Info{Installed: true, Status: string(common.StatusDeployed)}.Failed())
	assert.True(t, Info{Installed: true, Status: string(common.StatusFailed)}.Failed())
}
