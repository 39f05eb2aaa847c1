// Copyright 2026 Slipway contributors
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	yamlutil "k8s.io/apimachinery/pkg/util/yaml"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/retry"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/client/config"
	"sigs.k8s.io/yaml"
)

// fieldOwner identifies slipway as the manager of applied fields.
const fieldOwner = "slipway"

// maxRecentEvents caps the number of events in a diagnostic snapshot.
const maxRecentEvents = 100

// Scheme is the runtime scheme used by the cluster client.
var Scheme = runtime.NewScheme()

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(Scheme))
}

// NewRESTConfig builds a rest.Config from a kubeconfig path, or from the
// default loading rules (in-cluster, then $KUBECONFIG) when the path is
// empty.
func NewRESTConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig != "" {
		return clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	return ctrlconfig.GetConfig()
}

// Client implements Interface against a live cluster.
type Client struct {
	c       client.Client
	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithRateLimit throttles cluster API calls to one per interval with the
// given burst. Diagnostic collection issues many reads back to back; the
// limiter keeps that from flooding the API server.
func WithRateLimit(interval time.Duration, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Every(interval), burst)
	}
}

// NewClient creates a Client on top of an existing controller-runtime client.
func NewClient(c client.Client, opts ...Option) *Client {
	cl := &Client{
		c:       c,
		limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 20),
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl
}

// NewClientForConfig creates a Client from a rest.Config.
func NewClientForConfig(cfg *rest.Config, opts ...Option) (*Client, error) {
	c, err := client.New(cfg, client.Options{Scheme: Scheme})
	if err != nil {
		return nil, fmt.Errorf("creating cluster client: %w", err)
	}
	return NewClient(c, opts...), nil
}

func (c *Client) wait(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

// ApplyManifest applies each document of the manifest with server-side
// apply. Documents must carry their own namespace.
func (c *Client) ApplyManifest(ctx context.Context, manifest []byte) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	decoder := yamlutil.NewYAMLOrJSONDecoder(bytes.NewReader(manifest), 4096)
	for {
		obj := map[string]interface{}{}
		if err := decoder.Decode(&obj); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("decoding manifest: %w", err)
		}
		if len(obj) == 0 {
			continue
		}

		u := &unstructured.Unstructured{Object: obj}
		if err := c.c.Patch(ctx, u, client.Apply, client.ForceOwnership, client.FieldOwner(fieldOwner)); err != nil {
			return fmt.Errorf("applying %s %s/%s: %w", u.GetKind(), u.GetNamespace(), u.GetName(), err)
		}
	}
	return nil
}

// ServiceHostname returns the load-balancer hostname of the named service,
// or "" while the ingress list is empty. A populated IP without a hostname
// also counts as reachable.
func (c *Client) ServiceHostname(ctx context.Context, namespace, name string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	svc := &corev1.Service{}
	if err := c.c.Get(ctx, client.ObjectKey{Namespace: namespace, Name: name}, svc); err != nil {
		return "", fmt.Errorf("getting service %s/%s: %w", namespace, name, err)
	}

	for _, ingress := range svc.Status.LoadBalancer.Ingress {
		if ingress.Hostname != "" {
			return ingress.Hostname, nil
		}
		if ingress.IP != "" {
			return ingress.IP, nil
		}
	}
	return "", nil
}

// SetDeploymentImage updates the image of the named container, retrying on
// update conflicts.
func (c *Client) SetDeploymentImage(ctx context.Context, namespace, deployment, container, image string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		deploy := &appsv1.Deployment{}
		if err := c.c.Get(ctx, client.ObjectKey{Namespace: namespace, Name: deployment}, deploy); err != nil {
			return fmt.Errorf("getting deployment %s/%s: %w", namespace, deployment, err)
		}

		found := false
		for i := range deploy.Spec.Template.Spec.Containers {
			if deploy.Spec.Template.Spec.Containers[i].Name == container {
				deploy.Spec.Template.Spec.Containers[i].Image = image
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("deployment %s/%s has no container %q", namespace, deployment, container)
		}

		return c.c.Update(ctx, deploy)
	})
}

// GetRolloutStatus returns the replica counts of the named deployment. The
// snapshot is flagged stale until the controller has observed the current
// generation, so counts written for the previous pod template cannot pass
// as a converged rollout.
func (c *Client) GetRolloutStatus(ctx context.Context, namespace, deployment string) (RolloutStatus, error) {
	if err := c.wait(ctx); err != nil {
		return RolloutStatus{}, err
	}

	deploy := &appsv1.Deployment{}
	if err := c.c.Get(ctx, client.ObjectKey{Namespace: namespace, Name: deployment}, deploy); err != nil {
		return RolloutStatus{}, fmt.Errorf("getting deployment %s/%s: %w", namespace, deployment, err)
	}

	return RolloutStatus{
		Desired:   ptr.Deref(deploy.Spec.Replicas, 1),
		Updated:   deploy.Status.UpdatedReplicas,
		Available: deploy.Status.AvailableReplicas,
		Stale:     deploy.Generation > deploy.Status.ObservedGeneration,
	}, nil
}

// CollectDiagnostics gathers the deployment description, replica sets,
// pods, per-pod descriptions and the most recent events in the namespace.
func (c *Client) CollectDiagnostics(ctx context.Context, namespace, deployment string) (*Diagnostics, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	diag := &Diagnostics{PodDescriptions: map[string]string{}}

	deploy := &appsv1.Deployment{}
	if err := c.c.Get(ctx, client.ObjectKey{Namespace: namespace, Name: deployment}, deploy); err != nil {
		return nil, fmt.Errorf("getting deployment %s/%s: %w", namespace, deployment, err)
	}
	deploy.ManagedFields = nil
	diag.Deployment = renderYAML(deploy)

	selector := client.MatchingLabels{}
	if deploy.Spec.Selector != nil {
		for k, v := range deploy.Spec.Selector.MatchLabels {
			selector[k] = v
		}
	}

	replicaSets := &appsv1.ReplicaSetList{}
	if err := c.c.List(ctx, replicaSets, client.InNamespace(namespace), selector); err != nil {
		return nil, fmt.Errorf("listing replica sets: %w", err)
	}
	diag.ReplicaSets = renderReplicaSets(replicaSets)

	pods := &corev1.PodList{}
	if err := c.c.List(ctx, pods, client.InNamespace(namespace), selector); err != nil {
		return nil, fmt.Errorf("listing pods: %w", err)
	}
	diag.Pods = renderPods(pods)
	for i := range pods.Items {
		pod := pods.Items[i]
		pod.ManagedFields = nil
		diag.PodDescriptions[pod.Name] = renderYAML(&pod)
	}

	events := &corev1.EventList{}
	if err := c.c.List(ctx, events, client.InNamespace(namespace)); err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	diag.Events = renderEvents(events)

	return diag, nil
}

func renderYAML(obj interface{}) string {
	data, err := yaml.Marshal(obj)
	if err != nil {
		return fmt.Sprintf("marshaling failed: %v", err)
	}
	return string(data)
}

func renderReplicaSets(list *appsv1.ReplicaSetList) string {
	var b strings.Builder
	for _, rs := range list.Items {
		fmt.Fprintf(&b, "%s desired=%d ready=%d available=%d\n",
			rs.Name, ptr.Deref(rs.Spec.Replicas, 0), rs.Status.ReadyReplicas, rs.Status.AvailableReplicas)
	}
	return b.String()
}

func renderPods(list *corev1.PodList) string {
	var b strings.Builder
	for _, pod := range list.Items {
		fmt.Fprintf(&b, "%s phase=%s node=%s\n", pod.Name, pod.Status.Phase, pod.Spec.NodeName)
	}
	return b.String()
}

// renderEvents sorts events by timestamp and keeps the most recent
// maxRecentEvents, oldest first.
func renderEvents(list *corev1.EventList) string {
	events := list.Items
	sort.Slice(events, func(i, j int) bool {
		return eventTime(events[i]).Before(eventTime(events[j]))
	})
	if len(events) > maxRecentEvents {
		events = events[len(events)-maxRecentEvents:]
	}

	var b strings.Builder
	for _, ev := range events {
		fmt.Fprintf(&b, "%s %s %s %s/%s: %s\n",
			eventTime(ev).Format(time.RFC3339), ev.Type, ev.Reason,
			ev.InvolvedObject.Kind, ev.InvolvedObject.Name, ev.Message)
	}
	return b.String()
}

func eventTime(ev corev1.Event) time.Time {
	if !ev.LastTimestamp.IsZero() {
		return ev.LastTimestamp.Time
	}
	if !ev.EventTime.IsZero() {
		return ev.EventTime.Time
	}
	return ev.CreationTimestamp.Time
}
