// Package health backs Kubernetes-style /livez and /readyz endpoints.
//
// Dependency probes are sampled together on a shared schedule. A probe has
// to miss several samples in a row before its endpoint starts failing, and
// clear a streak of samples before it passes again, so a single slow ping
// does not flap the service out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// ProbeFunc samples one dependency. A nil return means available.
type ProbeFunc func(ctx context.Context) error

type probeKind int

const (
	liveness probeKind = iota
	readiness
)

// probe couples a ProbeFunc with its streak state. Service.mu guards every
// field; sample is the only writer.
type probe struct {
	kind probeKind
	name string
	fn   ProbeFunc

	missed  int
	cleared int
	down    bool
	lastErr error
}

// Options tunes the sampling schedule. Zero values take the defaults.
type Options struct {
	// Interval between sampling rounds. Default 10s.
	Interval time.Duration
	// Timeout bounds each probe invocation. Default 5s.
	Timeout time.Duration
	// FailAfter is how many consecutive misses mark a probe down. Default 3.
	FailAfter int
	// RecoverAfter is how many consecutive clean samples bring a down probe
	// back. Default 1.
	RecoverAfter int
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 10 * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.FailAfter <= 0 {
		o.FailAfter = 3
	}
	if o.RecoverAfter <= 0 {
		o.RecoverAfter = 1
	}
	return o
}

// Service owns the probe set and the accepting-traffic flag. Probes start
// optimistic: they count as up until a full miss streak accumulates.
type Service struct {
	opts      Options
	accepting atomic.Bool

	mu     sync.Mutex
	probes []*probe
}

// NewService creates a Service with the given options. Register probes, then
// run Watch in its own goroutine.
func NewService(opts Options) *Service {
	return &Service{opts: opts.withDefaults()}
}

// Liveness registers a probe gating /livez.
func (s *Service) Liveness(name string, fn ProbeFunc) {
	s.register(liveness, name, fn)
}

// Readiness registers a probe gating /readyz.
func (s *Service) Readiness(name string, fn ProbeFunc) {
	s.register(readiness, name, fn)
}

func (s *Service) register(kind probeKind, name string, fn ProbeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes = append(s.probes, &probe{kind: kind, name: name, fn: fn})
}

// Ready marks the service as accepting traffic.
func (s *Service) Ready() {
	s.accepting.Store(true)
}

// Drain marks the service as no longer accepting traffic. Probes keep
// running; /readyz fails immediately.
func (s *Service) Drain() {
	s.accepting.Store(false)
}

// Watch samples every probe once, then again on each interval tick until ctx
// is cancelled.
func (s *Service) Watch(ctx context.Context) {
	s.sample(ctx)

	tick := time.NewTicker(s.opts.Interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s.sample(ctx)
		}
	}
}

// sample runs one round over all probes and advances their streaks.
func (s *Service) sample(ctx context.Context) {
	s.mu.Lock()
	round := make([]*probe, len(s.probes))
	copy(round, s.probes)
	s.mu.Unlock()

	for _, p := range round {
		err := s.invoke(ctx, p.fn)

		s.mu.Lock()
		p.lastErr = err
		if err != nil {
			p.cleared = 0
			if p.missed++; p.missed >= s.opts.FailAfter {
				p.down = true
			}
		} else {
			p.missed = 0
			if p.cleared++; p.down && p.cleared >= s.opts.RecoverAfter {
				p.down = false
			}
		}
		s.mu.Unlock()
	}
}

func (s *Service) invoke(ctx context.Context, fn ProbeFunc) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	return fn(ctx)
}

// failures lists the down probes of one kind as name to error text.
func (s *Service) failures(kind probeKind) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out map[string]string
	for _, p := range s.probes {
		if p.kind != kind || !p.down {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		msg := "probe is down"
		if p.lastErr != nil {
			msg = p.lastErr.Error()
		}
		out[p.name] = msg
	}
	return out
}

// report is the body served by both endpoints. Checks lists failures only.
type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HandleLive serves /livez from the latest liveness samples.
func (s *Service) HandleLive(w http.ResponseWriter, _ *http.Request) {
	serveReport(w, s.failures(liveness))
}

// HandleReady serves /readyz. While the service is not accepting traffic it
// fails regardless of probe state.
func (s *Service) HandleReady(w http.ResponseWriter, _ *http.Request) {
	failed := s.failures(readiness)
	if !s.accepting.Load() {
		if failed == nil {
			failed = make(map[string]string)
		}
		failed["service"] = "not accepting traffic"
	}
	serveReport(w, failed)
}

func serveReport(w http.ResponseWriter, failed map[string]string) {
	rep := report{Status: "ok"}
	code := http.StatusOK
	if len(failed) > 0 {
		rep = report{Status: "unhealthy", Checks: failed}
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(rep)
}
