// Package health implements liveness and readiness probes in the style of
// Kubernetes probe configuration. Registered checks run on background tickers
// and flip state only after a run of consecutive results, so a single slow
// database round trip does not bounce the service out of the load balancer.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc reports on one component. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

const (
	defaultFailAfter = 3
	defaultOKAfter   = 1
)

// probe couples a CheckFunc with its debounced state. All mutable state sits
// behind mu; observe is called from the probe's own ticker goroutine and
// status from arbitrary HTTP handler goroutines.
type probe struct {
	name    string
	timeout time.Duration
	fn      CheckFunc

	failAfter int
	okAfter   int

	mu      sync.Mutex
	healthy bool
	lastErr error
	fails   int
	oks     int
}

func newProbe(name string, timeout time.Duration, fn CheckFunc) *probe {
	return &probe{
		name:      name,
		timeout:   timeout,
		fn:        fn,
		failAfter: defaultFailAfter,
		okAfter:   defaultOKAfter,
		// Assume healthy until the first runs say otherwise.
		healthy: true,
	}
}

// observe folds one check result into the debounced state.
func (p *probe) observe(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastErr = err
	if err != nil {
		p.oks = 0
		p.fails++
		if p.fails >= p.failAfter {
			p.healthy = false
		}
		return
	}

	p.fails = 0
	p.oks++
	if p.oks >= p.okAfter {
		p.healthy = true
	}
}

func (p *probe) status() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.healthy, p.lastErr
}

func (p *probe) poll(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	p.observe(p.fn(ctx))
}

func (p *probe) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// Health tracks the liveness and readiness probes of a service.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	live   []*probe
	readyp []*probe
	cancel context.CancelFunc
}

// New returns a Health in the not-ready state. Call SetReady(true) once
// initialization completes.
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a check against the /livez endpoint. Liveness
// answers "is this process functioning", e.g. goroutine count or GC pauses.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.live = append(h.live, newProbe(name, timeout, fn))
}

// AddReadinessCheck registers a check against the /readyz endpoint. Readiness
// answers "can this process serve traffic", e.g. database connectivity.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readyp = append(h.readyp, newProbe(name, timeout, fn))
}

// Start launches one goroutine per registered probe, each polling at the
// given interval. Register all checks before calling Start.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := make([]*probe, 0, len(h.live)+len(h.readyp))
	probes = append(probes, h.live...)
	probes = append(probes, h.readyp...)
	h.mu.Unlock()

	for _, p := range probes {
		go p.loop(ctx, interval)
	}
}

// Stop cancels the probe goroutines. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness gate. Pass false at the start of
// graceful shutdown to drain traffic before the listener closes.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service should receive traffic: the manual gate
// is open and every readiness probe is healthy.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}

	h.mu.RLock()
	probes := h.readyp
	h.mu.RUnlock()

	for _, p := range probes {
		if ok, _ := p.status(); !ok {
			return false
		}
	}
	return true
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 {"status":"ok"} when every liveness probe
// is healthy, 503 with per-check failure details otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	probes := make([]*probe, len(h.live))
	copy(probes, h.live)
	h.mu.RUnlock()

	respond(w, failing(probes))
}

// ReadyEndpoint serves /readyz: 200 when the manual gate is open and every
// readiness probe is healthy, 503 with details otherwise.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	ready := h.ready.Load()

	h.mu.RLock()
	probes := make([]*probe, len(h.readyp))
	copy(probes, h.readyp)
	h.mu.RUnlock()

	failures := failing(probes)
	if !ready {
		failures["_readiness"] = "service is not ready"
	}
	respond(w, failures)
}

// failing maps probe name to failure message for every unhealthy probe,
// using the last observed error rather than re-running the check.
func failing(probes []*probe) map[string]string {
	failures := make(map[string]string)
	for _, p := range probes {
		ok, err := p.status()
		if ok {
			continue
		}
		if err != nil {
			failures[p.name] = err.Error()
		} else {
			failures[p.name] = "check is unhealthy"
		}
	}
	return failures
}

func respond(w http.ResponseWriter, failures map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	resp := statusResponse{Status: "ok"}
	code := http.StatusOK
	if len(failures) > 0 {
		resp.Status = "unhealthy"
		resp.Checks = failures
		code = http.StatusServiceUnavailable
	}

	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
