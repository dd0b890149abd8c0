// Package health implements liveness and readiness probes.
//
// Probes are registered before Start and evaluated together on a single
// background ticker. A probe flips to failing only after failing
// consecutively a few times, so a transient hiccup does not take the
// service out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// CheckFunc probes one component. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

// failAfter is how many consecutive failures flip a probe to failing.
const failAfter = 3

type kind int

const (
	liveness kind = iota
	readiness
)

type probe struct {
	name    string
	kind    kind
	timeout time.Duration
	check   CheckFunc

	fails   int
	lastErr error
}

func (p *probe) failing() bool {
	return p.fails >= failAfter
}

// Service runs registered probes and serves their aggregate state.
type Service struct {
	mu     sync.Mutex
	probes []*probe
	ready  bool
	cancel context.CancelFunc
}

// New returns a Service with no probes, marked not ready.
func New() *Service {
	return &Service{}
}

// AddLivenessCheck registers a probe that gates the liveness endpoint.
func (s *Service) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	s.add(&probe{name: name, kind: liveness, timeout: timeout, check: check})
}

// AddReadinessCheck registers a probe that gates the readiness endpoint.
func (s *Service) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	s.add(&probe{name: name, kind: readiness, timeout: timeout, check: check})
}

func (s *Service) add(p *probe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes = append(s.probes, p)
}

// Start evaluates all probes once, then again every interval, until ctx is
// cancelled or Stop is called.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.evaluate(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.evaluate(ctx)
			}
		}
	}()
}

// Stop halts probe evaluation. Safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// SetReady marks the service ready or not ready. Readiness requires both this
// flag and every readiness probe passing. Set it to false during shutdown to
// drain traffic before closing listeners.
func (s *Service) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

// evaluate runs every probe once. The checks themselves run outside the lock
// so a slow dependency cannot block the HTTP endpoints.
func (s *Service) evaluate(ctx context.Context) {
	s.mu.Lock()
	probes := make([]*probe, len(s.probes))
	copy(probes, s.probes)
	s.mu.Unlock()

	for _, p := range probes {
		err := runProbe(ctx, p)

		s.mu.Lock()
		p.lastErr = err
		if err != nil {
			p.fails++
		} else {
			p.fails = 0
		}
		s.mu.Unlock()
	}
}

func runProbe(ctx context.Context, p *probe) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.check(ctx)
}

// probeStatus is the per-probe entry in endpoint responses.
type probeStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// LiveEndpoint serves the liveness probe. It fails only when a liveness
// check has exceeded its failure threshold.
func (s *Service) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, liveness, true)
}

// ReadyEndpoint serves the readiness probe. It fails when the service has not
// been marked ready or when any readiness check is failing.
func (s *Service) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	ready := s.ready
	s.mu.Unlock()
	s.respond(w, readiness, ready)
}

func (s *Service) respond(w http.ResponseWriter, k kind, ready bool) {
	s.mu.Lock()
	healthy := ready
	checks := make(map[string]probeStatus)
	for _, p := range s.probes {
		if p.kind != k {
			continue
		}
		st := probeStatus{Status: "pass"}
		if p.failing() {
			healthy = false
			st.Status = "fail"
			if p.lastErr != nil {
				st.Error = p.lastErr.Error()
			}
		}
		checks[p.name] = st
	}
	s.mu.Unlock()

	status := "pass"
	code := http.StatusOK
	if !healthy {
		status = "fail"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": checks,
	})
}
