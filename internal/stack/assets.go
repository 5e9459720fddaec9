// Copyright 2026 BWI GmbH and Stackup contributors
// SPDX-License-Identifier: Apache-2.0

package stack

import (
	"embed"
	"fmt"
)

//go:embed assets/*
var assetsFS embed.FS

// dashboardUID must match the uid in assets/grafana/dashboard.json; the
// dashboard probe looks it up by UID.
const dashboardUID = "stackup-builds"

func asset(path string) ([]byte, error) {
	data, err := assetsFS.ReadFile("assets/" + path)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded asset %s: %w", path, err)
	}
	return data, nil
}
