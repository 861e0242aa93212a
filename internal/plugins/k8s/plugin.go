// Package k8s is an in-process reference plugin backing a "pods" resource
// and restart_pod/delete_pod actions over a client-go clientset. It takes
// kubernetes.Interface rather than a concrete *kubernetes.Clientset so a
// fake.NewSimpleClientset() can stand in for tests and a real clientset in
// production without any change to the plugin itself.
package k8s

import (
	"context"
	_ "embed"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"clawgate/internal/apierr"
	"clawgate/internal/manifest"
	"clawgate/internal/pluginapi"
)

//go:embed manifest.yaml
var manifestYAML []byte

// Manifest parses and validates the plugin's embedded descriptor.
func Manifest() (*manifest.Manifest, error) {
	return manifest.Load(manifestYAML)
}

const defaultNamespace = "default"

// Plugin is the k8s reference implementation of pluginapi.Plugin.
type Plugin struct {
	client kubernetes.Interface
}

// New wraps an existing clientset (a fake.NewSimpleClientset() in tests,
// a real *kubernetes.Clientset in production).
func New(client kubernetes.Interface) *Plugin {
	return &Plugin{client: client}
}

func namespaceOf(filters map[string]string) string {
	if ns, ok := filters["namespace"]; ok && ns != "" {
		return ns
	}
	return defaultNamespace
}

func namespaceOfArgs(args map[string]any) string {
	if ns, ok := args["namespace"].(string); ok && ns != "" {
		return ns
	}
	return defaultNamespace
}

// ListResource lists pods in the requested (or default) namespace.
func (p *Plugin) ListResource(ctx context.Context, resource string, q pluginapi.ReadQuery) (pluginapi.ReadResult, error) {
	if resource != "pods" {
		return pluginapi.ReadResult{}, apierr.New(apierr.KindNotFound, "k8s: unknown resource %q", resource)
	}

	ns := namespaceOf(q.Filters)
	list, err := p.client.CoreV1().Pods(ns).List(ctx, metav1.ListOptions{})
	if err != nil {
		return pluginapi.ReadResult{}, apierr.Wrap(apierr.KindValidation, err)
	}

	items := make([]any, 0, len(list.Items))
	for _, pod := range list.Items {
		items = append(items, podSummary(&pod))
	}
	return pluginapi.ReadResult{Data: items}, nil
}

// GetResource returns one pod, in namespace q.Filters["namespace"] (or
// "default"). view="headers" returns labels/annotations; any other view
// returns the full summary.
func (p *Plugin) GetResource(ctx context.Context, resource, resourceID string, q pluginapi.ReadQuery) (pluginapi.ReadResult, error) {
	if resource != "pods" {
		return pluginapi.ReadResult{}, apierr.New(apierr.KindNotFound, "k8s: unknown resource %q", resource)
	}

	ns := namespaceOf(q.Filters)
	pod, err := p.client.CoreV1().Pods(ns).Get(ctx, resourceID, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return pluginapi.ReadResult{}, apierr.New(apierr.KindNotFound, "k8s: pod %q not found in namespace %q", resourceID, ns)
		}
		return pluginapi.ReadResult{}, apierr.Wrap(apierr.KindValidation, err)
	}

	if manifest.View(q.View) == manifest.ViewHeaders {
		return pluginapi.ReadResult{Data: map[string]any{
			"name": pod.Name, "labels": pod.Labels, "annotations": pod.Annotations,
		}}, nil
	}
	return pluginapi.ReadResult{Data: podSummary(pod)}, nil
}

func podSummary(pod *corev1.Pod) map[string]any {
	return map[string]any{
		"name":      pod.Name,
		"namespace": pod.Namespace,
		"phase":     string(pod.Status.Phase),
		"node":      pod.Spec.NodeName,
		"owned":     len(pod.OwnerReferences) > 0,
	}
}

// RunAction dispatches restart_pod and delete_pod.
func (p *Plugin) RunAction(ctx context.Context, req pluginapi.ActionRequest) (pluginapi.ActionResult, error) {
	switch req.Action {
	case "restart_pod":
		return p.restartPod(ctx, req)
	case "delete_pod":
		return p.deletePod(ctx, req)
	default:
		return pluginapi.ActionResult{}, apierr.New(apierr.KindNotFound, "k8s: unknown action %q", req.Action)
	}
}

// restartPod only acts on a controller-owned pod: deleting an unowned pod
// would simply remove it rather than let a controller recreate it, which
// is what distinguishes this from delete_pod.
func (p *Plugin) restartPod(ctx context.Context, req pluginapi.ActionRequest) (pluginapi.ActionResult, error) {
	ns := namespaceOfArgs(req.Args)
	pod, err := p.client.CoreV1().Pods(ns).Get(ctx, req.ResourceID, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return pluginapi.ActionResult{}, apierr.New(apierr.KindNotFound, "k8s: pod %q not found in namespace %q", req.ResourceID, ns)
		}
		return pluginapi.ActionResult{}, apierr.Wrap(apierr.KindValidation, err)
	}
	if len(pod.OwnerReferences) == 0 {
		return pluginapi.ActionResult{}, apierr.New(apierr.KindValidation, "pod %q has no controller to recreate it; use delete_pod instead", req.ResourceID)
	}

	summary := fmt.Sprintf("restart pod %s/%s", ns, pod.Name)
	effect := map[string]any{
		"pod": pod.Name, "namespace": ns,
		"deletes_pod":       true,
		"recreated_by":      pod.OwnerReferences[0].Kind,
		"recreated_by_name": pod.OwnerReferences[0].Name,
	}
	if req.Phase == "propose" {
		return pluginapi.ActionResult{Summary: summary, ProposedEffect: effect}, nil
	}

	if err := p.client.CoreV1().Pods(ns).Delete(ctx, pod.Name, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		return pluginapi.ActionResult{}, apierr.Wrap(apierr.KindValidation, err)
	}

	return pluginapi.ActionResult{
		Status:  pluginapi.StatusSuccess,
		Summary: summary,
		Result:  map[string]any{"restarted": true, "pod": pod.Name, "namespace": ns},
	}, nil
}

// deletePod has no propose phase, so the mediator's own approval-preview
// call is the one that actually deletes; repeat calls against an already
// gone pod are tolerated.
func (p *Plugin) deletePod(ctx context.Context, req pluginapi.ActionRequest) (pluginapi.ActionResult, error) {
	ns := namespaceOfArgs(req.Args)
	err := p.client.CoreV1().Pods(ns).Delete(ctx, req.ResourceID, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return pluginapi.ActionResult{}, apierr.Wrap(apierr.KindValidation, err)
	}

	return pluginapi.ActionResult{
		Status:  pluginapi.StatusSuccess,
		Summary: fmt.Sprintf("delete pod %s/%s", ns, req.ResourceID),
		Result:  map[string]any{"deleted": true, "pod": req.ResourceID, "namespace": ns},
	}, nil
}
