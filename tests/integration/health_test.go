//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestHealthEndpoints(t *testing.T) {
	for _, path := range []string{"/livez", "/readyz"} {
		resp := doGet(t, path)

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			t.Fatalf("GET %s: expected 200, got %d", path, resp.StatusCode)
		}

		body := decodeJSON[healthResponse](t, resp)
		resp.Body.Close()

		if body.Status != "ok" {
			t.Fatalf("GET %s: expected status ok, got %q", path, body.Status)
		}
		// A healthy service reports no failing checks, so the goroutine
		// liveness check and the postgres readiness check stay out of the body.
		if len(body.Checks) != 0 {
			t.Fatalf("GET %s: expected no failing checks, got %v", path, body.Checks)
		}
	}
}
