// Copyright 2026 BWI GmbH and Stackup contributors
// SPDX-License-Identifier: Apache-2.0

// Package secrets captures generated admin credentials from the cluster
// exactly once and persists them to owner-only local files. An existing
// local file is the source of truth: the cluster secret only rotates on a
// full reinstall, so it is never re-fetched behind the file's back.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
)

// FetchFunc reads a credential from the cluster's secret store.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Store persists captured credentials under one directory.
type Store struct {
	dir    string
	logger logr.Logger
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string, logger logr.Logger) *Store {
	return &Store{dir: dir, logger: logger}
}

// Path returns the file path a credential is stored at.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Capture returns the credential named name. If the local file exists its
// contents win and fetch is not called; otherwise fetch runs once and the
// result is persisted with owner-only permissions.
func (s *Store) Capture(ctx context.Context, name string, fetch FetchFunc) (string, error) {
	if value, ok, err := s.Cached(name); err != nil {
		return "", err
	} else if ok {
		return value, nil
	}

	value, err := fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch credential %s: %w", name, err)
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create state dir: %w", err)
	}
	if err := os.WriteFile(s.Path(name), value, 0o600); err != nil {
		return "", fmt.Errorf("failed to persist credential %s: %w", name, err)
	}
	s.logger.Info("credential captured", "name", name, "path", s.Path(name))

	return strings.TrimSpace(string(value)), nil
}

// Cached returns the locally persisted credential, if any.
func (s *Store) Cached(name string) (string, bool, error) {
	data, err := os.ReadFile(s.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read credential %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

// Forget removes a persisted credential. Used by uninstall so the next
// install captures the freshly generated secret.
func (s *Store) Forget(name string) error {
	err := os.Remove(s.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
