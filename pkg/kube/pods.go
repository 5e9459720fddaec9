// Copyright 2026 BWI GmbH and Stackup contributors
// SPDX-License-Identifier: Apache-2.0

package kube

import (
	"context"
	"fmt"
	"io"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// PodsStatus summarizes the pods behind one label selector.
type PodsStatus struct {
	Total        int
	Ready        int
	CrashLooping []string
	Pending      []string
}

// AllReady reports whether at least one pod exists and all of them are ready.
func (s PodsStatus) AllReady() bool {
	return s.Total > 0 && s.Ready == s.Total
}

// Summary renders the status for diagnostics.
func (s PodsStatus) Summary() string {
	if s.Total == 0 {
		return "no pods"
	}
	out := fmt.Sprintf("%d/%d pods ready", s.Ready, s.Total)
	if len(s.CrashLooping) > 0 {
		out += ", crash-looping: " + strings.Join(s.CrashLooping, ", ")
	}
	if len(s.Pending) > 0 {
		out += ", pending: " + strings.Join(s.Pending, ", ")
	}
	return out
}

// PodsByLabel observes the pods matching the selector. The result's
// CrashLooping list names pods with a container in CrashLoopBackOff, the
// known-bad state that triggers recovery.
func (c *Cluster) PodsByLabel(ctx context.Context, namespace string, selector map[string]string) (PodsStatus, error) {
	list := &corev1.PodList{}
	if err := c.Client.List(ctx, list,
		client.InNamespace(namespace),
		client.MatchingLabels(selector),
	); err != nil {
		return PodsStatus{}, fmt.Errorf("failed to list pods: %w", err)
	}

	status := PodsStatus{Total: len(list.Items)}
	for i := range list.Items {
		pod := &list.Items[i]
		switch {
		case podReady(pod):
			status.Ready++
		case podCrashLooping(pod):
			status.CrashLooping = append(status.CrashLooping, pod.Name)
		default:
			status.Pending = append(status.Pending, pod.Name)
		}
	}
	return status, nil
}

func podReady(pod *corev1.Pod) bool {
	if pod.Status.Phase != corev1.PodRunning {
		return false
	}
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

func podCrashLooping(pod *corev1.Pod) bool {
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.State.Waiting != nil && cs.State.Waiting.Reason == "CrashLoopBackOff" {
			return true
		}
	}
	return false
}

// FirstPodName returns the name of one pod matching the selector, preferring
// a ready one. Used to address exec and log requests.
func (c *Cluster) FirstPodName(ctx context.Context, namespace string, selector map[string]string) (string, error) {
	list := &corev1.PodList{}
	if err := c.Client.List(ctx, list,
		client.InNamespace(namespace),
		client.MatchingLabels(selector),
	); err != nil {
		return "", fmt.Errorf("failed to list pods: %w", err)
	}
	if len(list.Items) == 0 {
		return "", fmt.Errorf("no pods match selector in %s", namespace)
	}
	for i := range list.Items {
		if podReady(&list.Items[i]) {
			return list.Items[i].Name, nil
		}
	}
	return list.Items[0].Name, nil
}

// PodLogs fetches the last lines of a pod's log, for failure diagnostics.
func (c *Cluster) PodLogs(ctx context.Context, namespace, pod string, tailLines int64) (string, error) {
	req := c.Clientset.CoreV1().Pods(namespace).GetLogs(pod, &corev1.PodLogOptions{
		TailLines: &tailLines,
	})
	stream, err := req.Stream(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to stream logs for %s/%s: %w", namespace, pod, err)
	}
	defer stream.Close()
	data, err := io.ReadAll(stream)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
