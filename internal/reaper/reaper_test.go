package reaper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/codespacesh/workshop-hub/internal/platform"
)

func testConfig() Config {
	return Config{
		WorkshopName:         "workshop",
		Namespace:            "default",
		IdleThresholdSeconds: 3600,
		HealthProbeTimeout:   time.Second,
	}
}

func managedPod(name string, phase corev1.PodPhase, ttl int64) *corev1.Pod {
	labels := platform.ManagedLabels("workshop", "user-"+name)
	annotations := map[string]string{}
	if ttl != 0 {
		annotations[platform.AnnotationTTL] = strconv.FormatInt(ttl, 10)
	}
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Namespace:   "default",
			Labels:      labels,
			Annotations: annotations,
		},
		Status: corev1.PodStatus{Phase: phase},
	}
}

func newFakeReaper(t *testing.T, pods ...*corev1.Pod) (*fake.Clientset, *Reaper) {
	t.Helper()
	client := fake.NewSimpleClientset()
	for _, p := range pods {
		if _, err := client.CoreV1().Pods("default").Create(context.Background(), p, metav1.CreateOptions{}); err != nil {
			t.Fatalf("seeding pod %s: %v", p.Name, err)
		}
	}
	r := New(platform.NewClientsetPlatform(client), testConfig(), nil)
	return client, r
}

func healthyServer(t *testing.T, idleSeconds int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(healthDoc{Status: "ok", IdleSeconds: idleSeconds})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSweepDeletesExpiredTTLPod(t *testing.T) {
	pod := managedPod("workshop-user-alice", corev1.PodRunning, time.Now().Add(-time.Minute).Unix())
	client, r := newFakeReaper(t, pod)

	r.Sweep(context.Background())

	_, err := client.CoreV1().Pods("default").Get(context.Background(), pod.Name, metav1.GetOptions{})
	if err == nil {
		t.Error("expected pod with expired TTL to be deleted")
	}
}

func TestSweepDeletesNonRunningPod(t *testing.T) {
	pod := managedPod("workshop-user-bob", corev1.PodFailed, time.Now().Add(time.Hour).Unix())
	client, r := newFakeReaper(t, pod)

	r.Sweep(context.Background())

	_, err := client.CoreV1().Pods("default").Get(context.Background(), pod.Name, metav1.GetOptions{})
	if err == nil {
		t.Error("expected non-running pod to be deleted")
	}
}

func TestSweepDeletesUnhealthyPod(t *testing.T) {
	pod := managedPod("workshop-user-carol", corev1.PodRunning, time.Now().Add(time.Hour).Unix())
	client, r := newFakeReaper(t, pod)
	r.healthURL = func(p *corev1.Pod) string { return "http://127.0.0.1:1/health" }

	r.Sweep(context.Background())

	_, err := client.CoreV1().Pods("default").Get(context.Background(), pod.Name, metav1.GetOptions{})
	if err == nil {
		t.Error("expected unreachable pod to be deleted")
	}
}

func TestSweepDeletesIdlePod(t *testing.T) {
	pod := managedPod("workshop-user-dan", corev1.PodRunning, time.Now().Add(time.Hour).Unix())
	client, r := newFakeReaper(t, pod)
	srv := healthyServer(t, 7200)
	r.healthURL = func(p *corev1.Pod) string { return srv.URL + "/health" }

	r.Sweep(context.Background())

	_, err := client.CoreV1().Pods("default").Get(context.Background(), pod.Name, metav1.GetOptions{})
	if err == nil {
		t.Error("expected idle pod to be deleted")
	}
}

func TestSweepKeepsHealthyActivePod(t *testing.T) {
	pod := managedPod("workshop-user-erin", corev1.PodRunning, time.Now().Add(time.Hour).Unix())
	client, r := newFakeReaper(t, pod)
	srv := healthyServer(t, 5)
	r.healthURL = func(p *corev1.Pod) string { return srv.URL + "/health" }

	r.Sweep(context.Background())

	if _, err := client.CoreV1().Pods("default").Get(context.Background(), pod.Name, metav1.GetOptions{}); err != nil {
		t.Errorf("expected healthy active pod to survive the sweep, got: %v", err)
	}
}

func TestSweepNeverTouchesUnmanagedPod(t *testing.T) {
	unmanaged := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "unrelated", Namespace: "default"},
		Status:     corev1.PodStatus{Phase: corev1.PodFailed},
	}
	client, r := newFakeReaper(t, unmanaged)

	r.Sweep(context.Background())

	if _, err := client.CoreV1().Pods("default").Get(context.Background(), "unrelated", metav1.GetOptions{}); err != nil {
		t.Errorf("expected unmanaged pod to be left alone, got: %v", err)
	}
}
