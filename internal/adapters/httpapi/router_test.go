package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tokonoko12/playdeck/internal/adapters/memorybus"
	"github.com/tokonoko12/playdeck/internal/app"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	sessions := app.NewSessionService(zerolog.Nop(), app.ControllerDeps{}, nil, nil)
	t.Cleanup(sessions.CloseAll)
	srv := NewServer(zerolog.Nop(), sessions, memorybus.New(), nil)
	return srv.Router()
}

func TestRouter_Health(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Fatalf("body = %q", rr.Body.String())
	}
}

func TestRouter_UnknownSessionIs404(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/nope", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "session not found") {
		t.Fatalf("body = %q", rr.Body.String())
	}
}

func TestRouter_DevicesWithoutPlatform(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("body = %q, want empty list", rr.Body.String())
	}
}

func TestRouter_SessionCapacityEndpoint(t *testing.T) {
	sessions := app.NewSessionService(zerolog.Nop(), app.ControllerDeps{}, nil, app.NewDynamicLimiter(2))
	t.Cleanup(sessions.CloseAll)
	r := NewServer(zerolog.Nop(), sessions, memorybus.New(), nil).Router()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/capacity", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"limit":2`) {
		t.Fatalf("get capacity: status=%d body=%q", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodPut, "/api/v1/sessions/capacity", strings.NewReader(`{"limit":4}`))
	req.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"limit":4`) {
		t.Fatalf("put capacity: status=%d body=%q", rr.Code, rr.Body.String())
	}
	if got := sessions.Capacity(); got != 4 {
		t.Fatalf("Capacity = %d, want 4", got)
	}

	req = httptest.NewRequest(http.MethodPut, "/api/v1/sessions/capacity", strings.NewReader(`{"limit":0}`))
	req.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("zero limit must be rejected, status=%d", rr.Code)
	}
}

func TestRouter_CreateSessionRejectsBadJSON(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}
