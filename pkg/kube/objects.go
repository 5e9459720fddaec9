// Copyright 2026 BWI GmbH and Stackup contributors
// SPDX-License-Identifier: Apache-2.0

package kube

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/yaml"

	"go.opendefense.cloud/stackup/pkg/observability"
)

// EnsureNamespace creates the namespace if it does not exist.
func (c *Cluster) EnsureNamespace(ctx context.Context, name string) error {
	ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: name}}
	if err := c.Client.Create(ctx, ns); err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("failed to ensure namespace %s: %w", name, err)
	}
	return nil
}

// NamespaceExists reports whether the namespace is present.
func (c *Cluster) NamespaceExists(ctx context.Context, name string) (bool, error) {
	ns := &corev1.Namespace{}
	err := c.Client.Get(ctx, types.NamespacedName{Name: name}, ns)
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteNamespace deletes the namespace, ignoring absence.
func (c *Cluster) DeleteNamespace(ctx context.Context, name string) error {
	ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: name}}
	if err := c.Client.Delete(ctx, ns); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete namespace %s: %w", name, err)
	}
	return nil
}

// SecretValue reads one key from a secret.
func (c *Cluster) SecretValue(ctx context.Context, namespace, name, key string) ([]byte, error) {
	secret := &corev1.Secret{}
	if err := c.Client.Get(ctx, types.NamespacedName{Namespace: namespace, Name: name}, secret); err != nil {
		return nil, fmt.Errorf("failed to get secret %s/%s: %w", namespace, name, err)
	}
	value, ok := secret.Data[key]
	if !ok {
		return nil, fmt.Errorf("secret %s/%s has no key %q", namespace, name, key)
	}
	return value, nil
}

// ServiceIngressIP returns the external IP or hostname assigned to a
// LoadBalancer service, or "" while assignment is still pending.
func (c *Cluster) ServiceIngressIP(ctx context.Context, namespace, name string) (string, error) {
	svc := &corev1.Service{}
	if err := c.Client.Get(ctx, types.NamespacedName{Namespace: namespace, Name: name}, svc); err != nil {
		return "", fmt.Errorf("failed to get service %s/%s: %w", namespace, name, err)
	}
	for _, ing := range svc.Status.LoadBalancer.Ingress {
		if ing.IP != "" {
			return ing.IP, nil
		}
		if ing.Hostname != "" {
			return ing.Hostname, nil
		}
	}
	return "", nil
}

// DeletePVCs deletes all persistent volume claims in the namespace matching
// the label selector. Used by recovery teardown so a reinstall does not
// inherit a half-initialized volume.
func (c *Cluster) DeletePVCs(ctx context.Context, namespace string, selector map[string]string) error {
	list := &corev1.PersistentVolumeClaimList{}
	if err := c.Client.List(ctx, list,
		client.InNamespace(namespace),
		client.MatchingLabels(selector),
	); err != nil {
		return fmt.Errorf("failed to list PVCs: %w", err)
	}
	for i := range list.Items {
		pvc := &list.Items[i]
		if err := c.Client.Delete(ctx, pvc); err != nil && !apierrors.IsNotFound(err) {
			return fmt.Errorf("failed to delete PVC %s: %w", pvc.Name, err)
		}
	}
	return nil
}

// ApplyManifest creates or updates a single-document YAML manifest of an
// arbitrary (possibly custom) resource, such as a Traefik IngressRoute.
func (c *Cluster) ApplyManifest(ctx context.Context, namespace string, manifest []byte) error {
	obj := &unstructured.Unstructured{}
	if err := yaml.Unmarshal(manifest, &obj.Object); err != nil {
		return fmt.Errorf("failed to parse manifest: %w", err)
	}
	if obj.GetNamespace() == "" {
		obj.SetNamespace(namespace)
	}

	log := observability.LoggerFromContext(ctx)

	existing := obj.DeepCopy()
	err := c.Client.Get(ctx, types.NamespacedName{Namespace: obj.GetNamespace(), Name: obj.GetName()}, existing)
	switch {
	case apierrors.IsNotFound(err):
		if err := c.Client.Create(ctx, obj); err != nil {
			return fmt.Errorf("failed to create %s %s: %w", obj.GetKind(), obj.GetName(), err)
		}
		log.V(1).Info("manifest created", "kind", obj.GetKind(), "name", obj.GetName())
		return nil
	case err != nil:
		return fmt.Errorf("failed to get %s %s: %w", obj.GetKind(), obj.GetName(), err)
	default:
		obj.SetResourceVersion(existing.GetResourceVersion())
		if err := c.Client.Update(ctx, obj); err != nil {
			return fmt.Errorf("failed to update %s %s: %w", obj.GetKind(), obj.GetName(), err)
		}
		log.V(1).Info("manifest updated", "kind", obj.GetKind(), "name", obj.GetName())
		return nil
	}
}

// ManifestPresent reports whether the object described by the manifest exists.
func (c *Cluster) ManifestPresent(ctx context.Context, namespace string, manifest []byte) (bool, error) {
	obj := &unstructured.Unstructured{}
	if err := yaml.Unmarshal(manifest, &obj.Object); err != nil {
		return false, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if obj.GetNamespace() == "" {
		obj.SetNamespace(namespace)
	}
	err := c.Client.Get(ctx, types.NamespacedName{Namespace: obj.GetNamespace(), Name: obj.GetName()}, obj)
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
