// Package cluster talks to the Kind cluster. Reads go through client-go;
// streaming operations (exec-in-pod, rollout restart) shell out to kubectl,
// which already handles TTY plumbing and reconnects.
package cluster

import (
	"context"
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/a2z-ice/student-mgmt-pipeline/internal/execx"
)

var applicationGVR = schema.GroupVersionResource{
	Group:    "argoproj.io",
	Version:  "v1alpha1",
	Resource: "applications",
}

// PodStatus is the slice of pod state the verify report and diagnostics dump
// care about.
type PodStatus struct {
	Name     string
	Phase    string
	Ready    string
	Restarts int32
}

// Client wraps cluster access for one kubeconfig context.
type Client struct {
	clientset   kubernetes.Interface
	dyn         dynamic.Interface
	kubeContext string
}

// New builds a Client for the given kubeconfig context. An empty context uses
// the current one.
func New(kubeContext string) (*Client, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	overrides := &clientcmd.ConfigOverrides{}
	if kubeContext != "" {
		overrides.CurrentContext = kubeContext
	}
	restCfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build Kubernetes client: %w", err)
	}
	dyn, err := dynamic.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build dynamic client: %w", err)
	}
	return &Client{clientset: clientset, dyn: dyn, kubeContext: kubeContext}, nil
}

// NamespaceExists reports whether the namespace is present.
func (c *Client) NamespaceExists(ctx context.Context, name string) (bool, error) {
	_, err := c.clientset.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get namespace %s: %w", name, err)
	}
	return true, nil
}

// PodsReady reports whether at least one pod matching the selector is Running
// with all containers ready. Missing pods are "not yet", not an error, so the
// poller keeps waiting.
func (c *Client) PodsReady(ctx context.Context, namespace, selector string) (bool, error) {
	pods, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return false, fmt.Errorf("failed to list pods in %s: %w", namespace, err)
	}
	for _, pod := range pods.Items {
		if pod.Status.Phase != corev1.PodRunning {
			continue
		}
		allReady := true
		for _, cs := range pod.Status.ContainerStatuses {
			if !cs.Ready {
				allReady = false
				break
			}
		}
		if allReady && len(pod.Status.ContainerStatuses) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// RunningPodName returns the name of one running pod matching the selector.
func (c *Client) RunningPodName(ctx context.Context, namespace, selector string) (string, error) {
	pods, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return "", fmt.Errorf("failed to list pods in %s: %w", namespace, err)
	}
	for _, pod := range pods.Items {
		if pod.Status.Phase == corev1.PodRunning {
			return pod.Name, nil
		}
	}
	return "", fmt.Errorf("no running pod matching %q in namespace %s", selector, namespace)
}

// PodStatuses lists pod states in a namespace for reporting.
func (c *Client) PodStatuses(ctx context.Context, namespace string) ([]PodStatus, error) {
	pods, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods in %s: %w", namespace, err)
	}
	statuses := make([]PodStatus, 0, len(pods.Items))
	for _, pod := range pods.Items {
		ready := 0
		var restarts int32
		for _, cs := range pod.Status.ContainerStatuses {
			if cs.Ready {
				ready++
			}
			restarts += cs.RestartCount
		}
		statuses = append(statuses, PodStatus{
			Name:     pod.Name,
			Phase:    string(pod.Status.Phase),
			Ready:    fmt.Sprintf("%d/%d", ready, len(pod.Status.ContainerStatuses)),
			Restarts: restarts,
		})
	}
	return statuses, nil
}

// PodLogs fetches the last tail lines of a pod's logs for the postmortem dump.
func (c *Client) PodLogs(ctx context.Context, namespace, pod string, tail int64) (string, error) {
	raw, err := c.clientset.CoreV1().Pods(namespace).
		GetLogs(pod, &corev1.PodLogOptions{TailLines: &tail}).
		Do(ctx).Raw()
	if err != nil {
		return "", fmt.Errorf("failed to fetch logs for %s/%s: %w", namespace, pod, err)
	}
	return string(raw), nil
}

// ExecInPod runs a command inside the pod and returns its combined output.
func (c *Client) ExecInPod(ctx context.Context, namespace, pod, container string, command []string) (string, error) {
	args := []string{"exec", pod, "-n", namespace}
	if c.kubeContext != "" {
		args = append(args, "--context", c.kubeContext)
	}
	if container != "" {
		args = append(args, "-c", container)
	}
	args = append(args, "--")
	args = append(args, command...)
	output, err := execx.Run(ctx, "kubectl", args...)
	if err != nil {
		return string(output), err
	}
	return string(output), nil
}

// EnsureSecret creates or replaces an opaque secret. Used for the GitHub token
// the ArgoCD pull-request generator reads.
func (c *Client) EnsureSecret(ctx context.Context, namespace, name string, data map[string][]byte) error {
	secrets := c.clientset.CoreV1().Secrets(namespace)
	existing, err := secrets.Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		_, err = secrets.Create(ctx, &corev1.Secret{
			ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
			Type:       corev1.SecretTypeOpaque,
			Data:       data,
		}, metav1.CreateOptions{})
		if err != nil {
			return fmt.Errorf("failed to create secret %s/%s: %w", namespace, name, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get secret %s/%s: %w", namespace, name, err)
	}
	existing.Data = data
	if _, err := secrets.Update(ctx, existing, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to update secret %s/%s: %w", namespace, name, err)
	}
	return nil
}

// EnsureCoreDNSRewrite inserts a rewrite rule into the CoreDNS Corefile so the
// identity provider's hostname resolves inside the cluster, then restarts
// CoreDNS to pick it up. Calling it again with the same rule is a no-op.
func (c *Client) EnsureCoreDNSRewrite(ctx context.Context, hostname, target string) error {
	cms := c.clientset.CoreV1().ConfigMaps("kube-system")
	cm, err := cms.Get(ctx, "coredns", metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("failed to get coredns configmap: %w", err)
	}
	corefile := cm.Data["Corefile"]
	rule := fmt.Sprintf("rewrite name %s %s", hostname, target)
	if strings.Contains(corefile, rule) {
		return nil
	}
	// Insert the rewrite right after the zone opener so it runs before forward.
	patched := strings.Replace(corefile, ".:53 {", ".:53 {\n    "+rule, 1)
	if patched == corefile {
		return fmt.Errorf("unexpected Corefile layout, cannot insert rewrite for %s", hostname)
	}
	cm.Data["Corefile"] = patched
	if _, err := cms.Update(ctx, cm, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to update coredns configmap: %w", err)
	}

	args := []string{"rollout", "restart", "deployment/coredns", "-n", "kube-system"}
	if c.kubeContext != "" {
		args = append(args, "--context", c.kubeContext)
	}
	if _, err := execx.Run(ctx, "kubectl", args...); err != nil {
		return fmt.Errorf("failed to restart coredns: %w", err)
	}
	return nil
}

// DeploymentExists reports whether a deployment is present. Used by the Setup
// phase to confirm the ArgoCD and Argo Rollouts controllers are installed.
func (c *Client) DeploymentExists(ctx context.Context, namespace, name string) (bool, error) {
	_, err := c.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get deployment %s/%s: %w", namespace, name, err)
	}
	return true, nil
}

// ApplicationExists reports whether an ArgoCD Application resource is present.
// The Application lifecycle is driven by ArgoCD's controller; the pipeline
// only observes it.
func (c *Client) ApplicationExists(ctx context.Context, namespace, name string) (bool, error) {
	_, err := c.dyn.Resource(applicationGVR).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get application %s/%s: %w", namespace, name, err)
	}
	return true, nil
}

// ListApplications returns the names of ArgoCD Applications in the namespace.
func (c *Client) ListApplications(ctx context.Context, namespace string) ([]string, error) {
	list, err := c.dyn.Resource(applicationGVR).Namespace(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	names := make([]string, 0, len(list.Items))
	for _, item := range list.Items {
		names = append(names, item.GetName())
	}
	return names, nil
}

// ListNamespaces returns namespace names with the given prefix. Used to detect
// leftover PR-preview namespaces.
func (c *Client) ListNamespaces(ctx context.Context, prefix string) ([]string, error) {
	nss, err := c.clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}
	var names []string
	for _, ns := range nss.Items {
		if strings.HasPrefix(ns.Name, prefix) {
			names = append(names, ns.Name)
		}
	}
	return names, nil
}
