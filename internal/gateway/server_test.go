package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/codespacesh/workshop-hub/internal/auth"
	"github.com/codespacesh/workshop-hub/internal/config"
	"github.com/codespacesh/workshop-hub/internal/identity"
	"github.com/codespacesh/workshop-hub/internal/orchestrator"
	"github.com/codespacesh/workshop-hub/internal/platform"
)

func identityFor(username string) identity.Identity {
	return identity.Identity{UserID: identity.DeriveUserID(username), Username: username}
}

func testServer(t *testing.T) (http.Handler, *auth.Issuer) {
	t.Helper()
	issuer := auth.NewIssuer("test-secret")

	client := fake.NewSimpleClientset()
	go autoRunPods(t, client)
	p := platform.NewClientsetPlatform(client)
	o := orchestrator.New(p, orchestrator.Config{
		WorkshopName:     "workshop",
		Namespace:        "default",
		TTLSeconds:       28800,
		WorkshopImage:    "nginx",
		WorkshopPort:     80,
		SidecarImage:     "sidecar:latest",
		PodLimit:         100,
		CPURequest:       "100m",
		CPULimit:         "500m",
		MemRequest:       "128Mi",
		MemLimit:         "512Mi",
		ReadinessTimeout: 5 * time.Second,
	}, nil)

	profiles := &config.ProfileCatalog{Profiles: map[string]config.Profile{}}
	return New(issuer, o, profiles, "nginx", 80), issuer
}

// autoRunPods marks every created pod Running, mimicking a kubelet so the
// orchestrator's AwaitRunning poll succeeds in tests.
func autoRunPods(t *testing.T, client *fake.Clientset) {
	t.Helper()
	watcher, err := client.CoreV1().Pods("default").Watch(context.Background(), metav1.ListOptions{})
	if err != nil {
		return
	}
	defer watcher.Stop()
	for event := range watcher.ResultChan() {
		pod, ok := event.Object.(*corev1.Pod)
		if !ok || pod.Status.Phase == corev1.PodRunning {
			continue
		}
		pod.Status.Phase = corev1.PodRunning
		client.CoreV1().Pods("default").UpdateStatus(context.Background(), pod, metav1.UpdateOptions{})
	}
}

func TestLandingPageServed(t *testing.T) {
	h, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Fatalf("unexpected health response: %d %q", w.Code, w.Body.String())
	}
}

func TestLoginIssuesCookie(t *testing.T) {
	h, _ := testServer(t)

	body, _ := json.Marshal(loginRequest{Username: "Alice"})
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}

	var resp loginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}

	found := false
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.CookieName {
			found = true
		}
	}
	if !found {
		t.Error("expected session cookie to be set")
	}
}

func TestLoginRejectsInvalidUsername(t *testing.T) {
	h, _ := testServer(t)

	body, _ := json.Marshal(loginRequest{Username: "!!!"})
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestWorkshopRouteRedirectsAnonymousBrowserRequest(t *testing.T) {
	h, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/workshop/", nil)
	req.Header.Set("Accept", "text/html")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/login" {
		t.Errorf("Location = %q, want /login", loc)
	}
}

func TestWorkshopRouteRejectsAnonymousProgrammaticRequest(t *testing.T) {
	h, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/workshop/", nil)
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestWorkshopRouteProxiesAuthenticatedRequest(t *testing.T) {
	h, issuer := testServer(t)

	token, _, err := issuer.Issue(identityFor("alice"))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/workshop/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	// The orchestrator successfully resolves a binding, but the stub DNS
	// name doesn't resolve in the test environment, so the proxy reports a
	// 502 rather than a 401/404 — that's sufficient to prove routing,
	// auth, and orchestrator wiring all worked.
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502, body=%s", w.Code, w.Body.String())
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	h, _ := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.CookieName && c.MaxAge >= 0 {
			t.Error("expected session cookie to be cleared with MaxAge < 0")
		}
	}
}
