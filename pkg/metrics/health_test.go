package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func resetHealthChecker() {
	healthChecker = &HealthChecker{
		components: make(map[string]ComponentHealth),
		critical:   []string{"storage", "queue", "api"},
		startTime:  time.Now(),
	}
}

func TestRegisterComponent(t *testing.T) {
	resetHealthChecker()

	RegisterComponent("storage", true, "bolt open")

	if len(healthChecker.components) != 1 {
		t.Errorf("expected 1 component, got %d", len(healthChecker.components))
	}

	comp := healthChecker.components["storage"]
	if !comp.Healthy {
		t.Error("component should be healthy")
	}

	if comp.Message != "bolt open" {
		t.Errorf("expected message 'bolt open', got '%s'", comp.Message)
	}
}

func TestGetHealth_AllHealthy(t *testing.T) {
	resetHealthChecker()
	SetVersion("1.0.0")

	RegisterComponent("api", true, "")
	RegisterComponent("storage", true, "")

	health := GetHealth()

	if health.Status != "healthy" {
		t.Errorf("expected status 'healthy', got '%s'", health.Status)
	}

	if len(health.Components) != 2 {
		t.Errorf("expected 2 components, got %d", len(health.Components))
	}

	if health.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got '%s'", health.Version)
	}
}

func TestGetHealth_OneUnhealthy(t *testing.T) {
	resetHealthChecker()

	RegisterComponent("api", true, "")
	RegisterComponent("reporting", false, "postgres unreachable")

	health := GetHealth()

	if health.Status != "unhealthy" {
		t.Errorf("expected status 'unhealthy', got '%s'", health.Status)
	}

	if health.Components["reporting"] != "unhealthy: postgres unreachable" {
		t.Errorf("unexpected reporting status: %s", health.Components["reporting"])
	}
}

func TestGetReadiness_WaitsForCritical(t *testing.T) {
	resetHealthChecker()

	// Nothing registered yet: not ready.
	readiness := GetReadiness()
	if readiness.Status != "not_ready" {
		t.Errorf("expected 'not_ready', got '%s'", readiness.Status)
	}

	RegisterComponent("storage", true, "")
	RegisterComponent("queue", true, "")
	RegisterComponent("api", true, "")

	readiness = GetReadiness()
	if readiness.Status != "ready" {
		t.Errorf("expected 'ready', got '%s'", readiness.Status)
	}
}

func TestGetReadiness_IgnoresOptionalComponents(t *testing.T) {
	resetHealthChecker()

	RegisterComponent("storage", true, "")
	RegisterComponent("queue", true, "")
	RegisterComponent("api", true, "")
	// Optional backend down: health degrades but readiness holds.
	RegisterComponent("reporting", false, "postgres unreachable")

	if got := GetReadiness().Status; got != "ready" {
		t.Errorf("expected 'ready', got '%s'", got)
	}
	if got := GetHealth().Status; got != "unhealthy" {
		t.Errorf("expected 'unhealthy', got '%s'", got)
	}
}

func TestSetCriticalComponents(t *testing.T) {
	resetHealthChecker()
	SetCriticalComponents("storage")

	RegisterComponent("storage", true, "")

	if got := GetReadiness().Status; got != "ready" {
		t.Errorf("expected 'ready', got '%s'", got)
	}
}

func TestHealthHandler(t *testing.T) {
	resetHealthChecker()
	RegisterComponent("api", true, "")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	HealthHandler()(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var body HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body.Status != "healthy" {
		t.Errorf("expected 'healthy', got '%s'", body.Status)
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	resetHealthChecker()
	RegisterComponent("storage", false, "disk full")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	HealthHandler()(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestReadyHandler_NotReady(t *testing.T) {
	resetHealthChecker()

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	ReadyHandler()(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestLivenessHandler(t *testing.T) {
	resetHealthChecker()

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	rec := httptest.NewRecorder()
	LivenessHandler()(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["status"] != "alive" {
		t.Errorf("expected 'alive', got '%s'", body["status"])
	}
}
