// Copyright 2026 BWI GmbH and Stackup contributors
// SPDX-License-Identifier: Apache-2.0

package kube

import (
	"bytes"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyCommandCreatesDestination(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{
		"sh", "-c",
		"mkdir -p '/var/jenkins_home/scripts' && tar -xmf - -C '/var/jenkins_home/scripts'",
	}, copyCommand("/var/jenkins_home/scripts"))
}

// The destination may not exist on a fresh volume; the command must create
// it before extracting.
func TestCopyCommandExtractsIntoMissingDir(t *testing.T) {
	t.Parallel()

	archive, err := tarArchive(map[string][]byte{"seed.groovy": []byte("println 'ok'\n")})
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "scripts")
	parts := copyCommand(dest)
	cmd := exec.Command(parts[0], parts[1:]...)
	cmd.Stdin = bytes.NewReader(archive)

	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
	assert.FileExists(t, filepath.Join(dest, "seed.groovy"))
}

func TestCopyCommandQuotesDestination(t *testing.T) {
	t.Parallel()

	parts := copyCommand("/tmp/with space")
	assert.Contains(t, parts[2], "'/tmp/with space'")
}
