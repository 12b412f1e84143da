package validator

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lwb-io/authkit/core"
)

// Observer receives validation lifecycle events. Implementations must be
// cheap and must never block the validation path.
type Observer interface {
	OnAttempt(attempt int, kind core.TokenKind)
	OnResult(status Status, attempts int, err error)
	OnRetry(nextAttempt int, delay time.Duration)
}

// Noop discards every event.
type Noop struct{}

func (Noop) OnAttempt(int, core.TokenKind) {}

func (Noop) OnResult(Status, int, error) {}

func (Noop) OnRetry(int, time.Duration) {}

// Slog logs events at debug level, results at info.
type Slog struct {
	Logger *slog.Logger
}

func (s Slog) OnAttempt(attempt int, kind core.TokenKind) {
	s.Logger.Debug("validation attempt", "attempt", attempt, "kind", string(kind))
}

func (s Slog) OnResult(status Status, attempts int, err error) {
	if err != nil {
		s.Logger.Info("validation finished", "status", status.String(), "attempts", attempts, "error", err)
		return
	}
	s.Logger.Info("validation finished", "status", status.String(), "attempts", attempts)
}

func (s Slog) OnRetry(nextAttempt int, delay time.Duration) {
	s.Logger.Debug("validation retry", "next_attempt", nextAttempt, "delay", delay)
}

// Prometheus exports attempt/result/retry counters.
type Prometheus struct {
	attempts *prometheus.CounterVec
	results  *prometheus.CounterVec
	retries  prometheus.Counter
}

// NewPrometheus registers the validator metrics with reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authkit_validation_attempts_total",
			Help: "Validation attempts against the auth backend.",
		}, []string{"kind"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authkit_validation_results_total",
			Help: "Final validation outcomes.",
		}, []string{"status"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authkit_validation_retries_total",
			Help: "Retries scheduled after transient validation failures.",
		}),
	}
	reg.MustRegister(p.attempts, p.results, p.retries)
	return p
}

func (p *Prometheus) OnAttempt(_ int, kind core.TokenKind) {
	p.attempts.WithLabelValues(string(kind)).Inc()
}

func (p *Prometheus) OnResult(status Status, _ int, _ error) {
	p.results.WithLabelValues(status.String()).Inc()
}

func (p *Prometheus) OnRetry(int, time.Duration) {
	p.retries.Inc()
}

// Sampling forwards one event in every N to the wrapped observer. Results
// are always forwarded; only the high-volume attempt/retry stream is thinned.
type Sampling struct {
	N     uint64
	Inner Observer

	n atomic.Uint64
}

func (s *Sampling) OnAttempt(attempt int, kind core.TokenKind) {
	if s.sample() {
		s.Inner.OnAttempt(attempt, kind)
	}
}

func (s *Sampling) OnResult(status Status, attempts int, err error) {
	s.Inner.OnResult(status, attempts, err)
}

func (s *Sampling) OnRetry(nextAttempt int, delay time.Duration) {
	if s.sample() {
		s.Inner.OnRetry(nextAttempt, delay)
	}
}

func (s *Sampling) sample() bool {
	if s.N <= 1 {
		return true
	}
	return s.n.Add(1)%s.N == 1
}

// Composite fans events out to several observers in order.
type Composite []Observer

func (c Composite) OnAttempt(attempt int, kind core.TokenKind) {
	for _, o := range c {
		o.OnAttempt(attempt, kind)
	}
}

func (c Composite) OnResult(status Status, attempts int, err error) {
	for _, o := range c {
		o.OnResult(status, attempts, err)
	}
}

func (c Composite) OnRetry(nextAttempt int, delay time.Duration) {
	for _, o := range c {
		o.OnRetry(nextAttempt, delay)
	}
}

// Combine chains observers into one, flattening nested composites.
func Combine(observers ...Observer) Observer {
	var flat Composite
	for _, o := range observers {
		switch v := o.(type) {
		case nil:
		case Noop:
		case Composite:
			flat = append(flat, v...)
		default:
			flat = append(flat, o)
		}
	}
	switch len(flat) {
	case 0:
		return Noop{}
	case 1:
		return flat[0]
	default:
		return flat
	}
}
