// Copyright 2026 BWI GmbH and Stackup contributors
// SPDX-License-Identifier: Apache-2.0

package kube

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/remotecommand"
)

// CopyToPod drops files into a directory inside a running container by
// streaming a tar archive over an exec session. This is the file-drop
// interface used to seed the CI server's home directory.
func (c *Cluster) CopyToPod(ctx context.Context, namespace, pod, container, destDir string, files map[string][]byte) error {
	archive, err := tarArchive(files)
	if err != nil {
		return err
	}

	req := c.Clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(pod).
		Namespace(namespace).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: container,
			Command:   copyCommand(destDir),
			Stdin:     true,
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	exec, err := remotecommand.NewSPDYExecutor(c.Config, "POST", req.URL())
	if err != nil {
		return fmt.Errorf("failed to create executor: %w", err)
	}

	var stdout, stderr bytes.Buffer
	if err := exec.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdin:  bytes.NewReader(archive),
		Stdout: &stdout,
		Stderr: &stderr,
	}); err != nil {
		return fmt.Errorf("failed to copy into %s/%s: %w (stderr: %s)", namespace, pod, err, stderr.String())
	}
	return nil
}

// FileExistsInPod checks for a file inside a running container.
func (c *Cluster) FileExistsInPod(ctx context.Context, namespace, pod, container, path string) (bool, error) {
	req := c.Clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(pod).
		Namespace(namespace).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: container,
			Command:   []string{"test", "-f", path},
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	exec, err := remotecommand.NewSPDYExecutor(c.Config, "POST", req.URL())
	if err != nil {
		return false, fmt.Errorf("failed to create executor: %w", err)
	}

	var stdout, stderr bytes.Buffer
	err = exec.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: &stdout,
		Stderr: &stderr,
	})
	if err != nil {
		// test -f exits non-zero when the file is absent; the executor
		// reports that as an error.
		return false, nil
	}
	return true, nil
}

// copyCommand is the exec command the archive is streamed into. tar does
// not create the -C target, and a fresh volume has no payload directory
// yet, so the destination is created in the same session.
func copyCommand(destDir string) []string {
	quoted := "'" + strings.ReplaceAll(destDir, "'", `'\''`) + "'"
	return []string{"sh", "-c", "mkdir -p " + quoted + " && tar -xmf - -C " + quoted}
}

func tarArchive(files map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, data := range files {
		hdr := &tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(data)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("failed to write tar header for %s: %w", name, err)
		}
		if _, err := tw.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write tar entry for %s: %w", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
