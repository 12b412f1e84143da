package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lwb-io/authkit/client/credstore"
	"github.com/lwb-io/authkit/client/validator"
	"github.com/lwb-io/authkit/core"
)

// Scheduler defaults. The lead time mirrors the facade's refresh margin.
const (
	DefaultSchedulerLead = 5 * time.Minute
	DefaultPollInterval  = time.Minute
)

// Refresher is the slice of the facade the scheduler drives.
type Refresher interface {
	Refresh(ctx context.Context, force bool) (string, error)
	ValidateCurrent(ctx context.Context) (validator.Status, error)
}

// AutoRefreshScheduler polls the stored expiry and refreshes the session
// before it lapses. One instance per application lifecycle, started once and
// stopped on teardown; it is not a package-level singleton.
type AutoRefreshScheduler struct {
	facade Refresher
	store  credstore.Store
	lead   time.Duration
	poll   time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	started bool
}

// SchedulerConfig assembles an AutoRefreshScheduler.
type SchedulerConfig struct {
	Facade Refresher
	Store  credstore.Store
	Lead   time.Duration
	Poll   time.Duration
	Logger *slog.Logger
}

// NewAutoRefreshScheduler builds a stopped scheduler.
func NewAutoRefreshScheduler(cfg SchedulerConfig) *AutoRefreshScheduler {
	lead := cfg.Lead
	if lead <= 0 {
		lead = DefaultSchedulerLead
	}
	poll := cfg.Poll
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AutoRefreshScheduler{
		facade: cfg.Facade,
		store:  cfg.Store,
		lead:   lead,
		poll:   poll,
		logger: logger,
		now:    time.Now,
	}
}

// Start launches the poll loop. Calling Start on a running scheduler is a
// no-op. A pre-existing session is validated once, in the background, so a
// token revoked while the process was down is noticed promptly.
func (s *AutoRefreshScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	if _, err := s.store.Token(); err == nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), backgroundValidateTimeout)
			defer cancel()
			if status, err := s.facade.ValidateCurrent(ctx); err != nil {
				s.logger.Warn("startup session validation failed", "status", status.String(), "error", err)
			}
		}()
	}

	c := cron.New()
	c.Schedule(
		cron.Every(s.poll),
		cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(s.tick)),
	)
	c.Start()
	s.cron = c
}

// Stop cancels the loop. A refresh already in flight finishes; no new
// iterations start. Stopping a stopped scheduler is a no-op.
func (s *AutoRefreshScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	<-s.cron.Stop().Done()
	s.cron = nil
}

// tick is one poll iteration. Every failure is swallowed: the loop must
// outlive flaky networks and revoked sessions alike.
func (s *AutoRefreshScheduler) tick() {
	exp, err := s.store.Expiry()
	if err != nil {
		if !errors.Is(err, core.ErrNoCredential) {
			s.logger.Warn("expiry lookup failed", "error", err)
		}
		return
	}
	if exp.Sub(s.now()) > s.lead {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.poll)
	defer cancel()
	if _, err := s.facade.Refresh(ctx, false); err != nil {
		s.logger.Warn("scheduled refresh failed", "error", err)
	}
}
