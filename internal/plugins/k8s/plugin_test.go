package k8s

import (
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"clawgate/internal/apierr"
	"clawgate/internal/pluginapi"
)

func ownedPod(name string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name: name, Namespace: defaultNamespace,
			OwnerReferences: []metav1.OwnerReference{{Kind: "ReplicaSet", Name: "web-rs-1"}},
			Labels:          map[string]string{"app": "web"},
		},
		Status: corev1.PodStatus{Phase: corev1.PodRunning},
	}
}

func barePod(name string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: defaultNamespace},
		Status:     corev1.PodStatus{Phase: corev1.PodRunning},
	}
}

func TestManifest_Valid(t *testing.T) {
	m, err := Manifest()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.ID != "k8s" {
		t.Fatalf("unexpected id: %s", m.ID)
	}
}

func TestListResource_ReturnsPodsInNamespace(t *testing.T) {
	client := fake.NewSimpleClientset(ownedPod("web-1"), ownedPod("web-2"))
	p := New(client)

	res, err := p.ListResource(t.Context(), "pods", pluginapi.ReadQuery{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items, ok := res.Data.([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("expected 2 pods, got %+v", res.Data)
	}
}

func TestGetResource_UnknownPodIsNotFound(t *testing.T) {
	client := fake.NewSimpleClientset()
	p := New(client)

	_, err := p.GetResource(t.Context(), "pods", "ghost", pluginapi.ReadQuery{})
	if !apierr.Is(err, apierr.KindNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestGetResource_HeadersView(t *testing.T) {
	client := fake.NewSimpleClientset(ownedPod("web-1"))
	p := New(client)

	res, err := p.GetResource(t.Context(), "pods", "web-1", pluginapi.ReadQuery{View: "headers"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, ok := res.Data.(map[string]any)
	if !ok {
		t.Fatalf("unexpected data shape: %+v", res.Data)
	}
	labels, ok := data["labels"].(map[string]string)
	if !ok || labels["app"] != "web" {
		t.Fatalf("expected app=web label, got %+v", data["labels"])
	}
}

func TestRunAction_RestartPod_RequiresOwner(t *testing.T) {
	client := fake.NewSimpleClientset(barePod("standalone"))
	p := New(client)

	_, err := p.RunAction(t.Context(), pluginapi.ActionRequest{
		Action: "restart_pod", Resource: "pods", ResourceID: "standalone", Phase: "execute",
	})
	if !apierr.Is(err, apierr.KindValidation) {
		t.Fatalf("expected a validation error for an unowned pod, got %v", err)
	}
}

func TestRunAction_RestartPod_DeletesOwnedPod(t *testing.T) {
	client := fake.NewSimpleClientset(ownedPod("web-1"))
	p := New(client)

	result, err := p.RunAction(t.Context(), pluginapi.ActionRequest{
		Action: "restart_pod", Resource: "pods", ResourceID: "web-1", Phase: "execute",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Result.(map[string]any)["restarted"] != true {
		t.Fatalf("unexpected result: %+v", result.Result)
	}

	if _, err := client.CoreV1().Pods(defaultNamespace).Get(t.Context(), "web-1", metav1.GetOptions{}); err == nil {
		t.Fatal("expected the pod to be gone after restart")
	}
}

func TestRunAction_DeletePod_IsIdempotent(t *testing.T) {
	client := fake.NewSimpleClientset(barePod("standalone"))
	p := New(client)

	for i := 0; i < 2; i++ {
		result, err := p.RunAction(t.Context(), pluginapi.ActionRequest{
			Action: "delete_pod", Resource: "pods", ResourceID: "standalone", Phase: "execute",
		})
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
		if result.Result.(map[string]any)["deleted"] != true {
			t.Fatalf("call %d: unexpected result: %+v", i, result.Result)
		}
	}
}
