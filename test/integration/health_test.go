package integration

import (
	"net/http"
	"strings"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	resp := getURL(t, testEnv.BaseURL()+"/healthz")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	body := readBody(t, resp)
	if !strings.Contains(body, "ok") {
		t.Errorf("body = %q, want to contain 'ok'", body)
	}
}

func TestHealthEndpointBypassesAuth(t *testing.T) {
	// The probe endpoint must never be redirected into a login flow.
	resp := getURL(t, testEnv.BaseURL()+"/healthz")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 without auth, got %d", resp.StatusCode)
	}
	if resp.Header.Get("LoginUrl") != "" {
		t.Error("health endpoint carried a LoginUrl header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	// Drive one instrumented request first so the counter family exists.
	warm := getURL(t, testEnv.BaseURL()+"/api/templates")
	warm.Body.Close()

	resp := getURL(t, testEnv.BaseURL()+"/metrics")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body := readBody(t, resp); !strings.Contains(body, "trygate_requests_total") {
		t.Error("metrics output missing trygate_requests_total")
	}
}
