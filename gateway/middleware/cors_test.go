package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORSEchoesAllowedOrigin(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"https://dashboard.example"}})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/treasury", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "https://dashboard.example" {
		t.Fatalf("expected origin echoed, got %q", got)
	}
	if res.Header().Get("Access-Control-Expose-Headers") == "" {
		t.Fatalf("expected exposed headers for the dashboard")
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/treasury", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"https://dashboard.example"}})(okHandler())

	preflight := func(origin string) int {
		req := httptest.NewRequest(http.MethodOptions, "/v1/proposals", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		return res.Code
	}
	if code := preflight("https://dashboard.example"); code != http.StatusNoContent {
		t.Fatalf("expected 204 for an allowed preflight, got %d", code)
	}
	if code := preflight("https://elsewhere.example"); code != http.StatusForbidden {
		t.Fatalf("expected 403 for a foreign preflight, got %d", code)
	}

	wildcard := CORS(CORSConfig{})(okHandler())
	req := httptest.NewRequest(http.MethodOptions, "/v1/proposals", nil)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	res := httptest.NewRecorder()
	wildcard.ServeHTTP(res, req)
	if res.Code != http.StatusNoContent || res.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected wildcard preflight to pass, got %d", res.Code)
	}
}
