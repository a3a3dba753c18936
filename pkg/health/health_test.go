package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Helpers ---

func healthyFn() CheckFunc {
	return func(_ context.Context) error { return nil }
}

func brokenFn(msg string) CheckFunc {
	return func(_ context.Context) error { return errors.New(msg) }
}

// drive runs the probe n times, as the ticker goroutine would.
func drive(p *probe, n int) {
	for range n {
		p.poll(context.Background())
	}
}

func getStatus(t *testing.T, serve func(http.ResponseWriter, *http.Request), path string) (int, statusResponse) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	serve(w, req)

	var body statusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))

	return w.Code, body
}

// --- Tests ---

func TestLiveEndpoint_AllHealthy(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, healthyFn())
	h.AddLivenessCheck("gc", time.Second, healthyFn())

	// Probes start healthy before their first poll.
	code, body := getStatus(t, h.LiveEndpoint, "/livez")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
}

func TestLiveEndpoint_FailureThreshold(t *testing.T) {
	h := New()
	h.AddLivenessCheck("db", time.Second, brokenFn("connection refused"))
	p := h.live[0]

	// Two consecutive failures stay below the threshold of three.
	drive(p, 2)
	code, _ := getStatus(t, h.LiveEndpoint, "/livez")
	assert.Equal(t, http.StatusOK, code)

	drive(p, 1)
	code, body := getStatus(t, h.LiveEndpoint, "/livez")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "connection refused", body.Checks["db"])
}

func TestLiveEndpoint_NoChecks(t *testing.T) {
	h := New()

	code, body := getStatus(t, h.LiveEndpoint, "/livez")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
}

func TestReadyEndpoint_Gate(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, healthyFn())

	// Not ready until the gate is opened.
	code, body := getStatus(t, h.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks, "_readiness")

	h.SetReady(true)
	code, body = getStatus(t, h.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)

	// Closing the gate again drains traffic during shutdown.
	h.SetReady(false)
	code, _ = getStatus(t, h.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestReadyEndpoint_OneProbeFailing(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, healthyFn())
	h.AddReadinessCheck("cache", time.Second, brokenFn("cache miss"))
	h.SetReady(true)

	drive(h.readyp[1], defaultFailAfter)

	code, body := getStatus(t, h.ReadyEndpoint, "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks, "cache")
	assert.NotContains(t, body.Checks, "postgres")
}

func TestIsReady(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, healthyFn())

	assert.False(t, h.IsReady(), "not ready before SetReady")

	h.SetReady(true)
	assert.True(t, h.IsReady())

	h.SetReady(false)
	assert.False(t, h.IsReady())
}

func TestProbeRecovery(t *testing.T) {
	broken := true
	h := New()
	h.AddLivenessCheck("flaky", time.Second, func(_ context.Context) error {
		if broken {
			return errors.New("down")
		}
		return nil
	})
	p := h.live[0]

	drive(p, defaultFailAfter)
	ok, err := p.status()
	assert.False(t, ok)
	assert.EqualError(t, err, "down")

	// A single success recovers the probe.
	broken = false
	drive(p, defaultOKAfter)
	ok, _ = p.status()
	assert.True(t, ok, "probe should recover after consecutive passes")
}

func TestStopIdempotent(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, healthyFn())

	h.Start(context.Background(), 100*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	h.Stop()
	h.Stop()
}

func TestConcurrentAccess(t *testing.T) {
	// Probes poll on tickers while handlers read from many goroutines.
	h := New()
	h.AddLivenessCheck("flaky", time.Second, brokenFn("err"))
	h.AddReadinessCheck("postgres", time.Second, healthyFn())
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.Start(ctx, 10*time.Millisecond)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				h.IsReady()
				getStatus(t, h.LiveEndpoint, "/livez")
				getStatus(t, h.ReadyEndpoint, "/readyz")
			}
		}()
	}
	wg.Wait()
	h.Stop()
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))

	err := GoroutineCountCheck(0)(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds threshold")
}

func TestGCMaxPauseCheck(t *testing.T) {
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(context.Background()))
}
