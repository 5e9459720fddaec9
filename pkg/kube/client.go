// Copyright 2026 BWI GmbH and Stackup contributors
// SPDX-License-Identifier: Apache-2.0

// Package kube wraps the cluster control plane access stackup needs: object
// CRUD through a controller-runtime client, plus log retrieval and
// exec-based file copy through a client-go clientset.
package kube

import (
	"fmt"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/client-go/kubernetes"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Scheme is the runtime scheme for all objects stackup touches.
var Scheme = runtime.NewScheme()

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(Scheme))
}

// Cluster bundles the two client flavors against one cluster.
type Cluster struct {
	Client    client.Client
	Clientset kubernetes.Interface
	Config    *rest.Config
}

// RESTConfig builds a rest.Config from kubeconfig path and context,
// falling back to the standard loading rules when path is empty.
func RESTConfig(kubeconfig, context string) (*rest.Config, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		rules.ExplicitPath = kubeconfig
	}
	overrides := &clientcmd.ConfigOverrides{}
	if context != "" {
		overrides.CurrentContext = context
	}
	cfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}
	return cfg, nil
}

// NewCluster creates the clients for the given rest.Config.
func NewCluster(cfg *rest.Config) (*Cluster, error) {
	c, err := client.New(cfg, client.Options{Scheme: Scheme})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	return &Cluster{Client: c, Clientset: cs, Config: cfg}, nil
}

// Connect loads the kubeconfig and creates the clients in one step.
func Connect(kubeconfig, context string) (*Cluster, error) {
	cfg, err := RESTConfig(kubeconfig, context)
	if err != nil {
		return nil, err
	}
	return NewCluster(cfg)
}
