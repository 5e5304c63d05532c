package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"newsroom/internal/media"
	"newsroom/internal/publish"
	"newsroom/internal/store"
	logx "newsroom/pkg/logx"
)

// Service is the public face of the deferred-publication scheduler: the
// schedule/cancel/publish-now/list operations plus the periodic timers
// driving promotion ticks and the staging sweep.
type Service struct {
	cfg    Config
	store  *store.Store
	stager *media.Stager
	engine *publish.Engine
	log    logx.Logger
	now    func() time.Time

	parser cron.Parser

	mu sync.Mutex
	c  *cron.Cron
}

func New(cfg Config, st *store.Store, stager *media.Stager, eng *publish.Engine, log logx.Logger) *Service {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		store:  st,
		stager: stager,
		engine: eng,
		log:    log,
		now:    cfg.Clock,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Start registers the tick and sweep cron entries and starts the timer.
// Calling Start on a running service is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}

	c := cron.New(cron.WithParser(s.parser))

	if _, err := c.AddFunc(s.cfg.TickSpec, func() { s.runTick(ctx) }); err != nil {
		return fmt.Errorf("scheduler: invalid tick spec %q: %w", s.cfg.TickSpec, err)
	}
	if _, err := c.AddFunc(s.cfg.SweepSpec, func() { s.runSweep(ctx) }); err != nil {
		return fmt.Errorf("scheduler: invalid sweep spec %q: %w", s.cfg.SweepSpec, err)
	}

	c.Start()
	s.c = c
	s.log.Info("scheduler started",
		logx.String("tick", s.cfg.TickSpec),
		logx.String("sweep", s.cfg.SweepSpec),
		logx.Duration("min_lead", s.cfg.MinLead))
	return nil
}

// Stop halts the timers and waits for an in-flight cycle to finish, or for
// ctx to expire.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Apply restarts the timers when the cadence specs changed. Validation and
// retention knobs take effect immediately without a restart.
func (s *Service) Apply(ctx context.Context, cfg Config) error {
	cfg = cfg.withDefaults()
	cfg.Clock = s.now

	s.mu.Lock()
	restart := s.c != nil && (cfg.TickSpec != s.cfg.TickSpec || cfg.SweepSpec != s.cfg.SweepSpec)
	s.cfg = cfg
	s.mu.Unlock()

	if !restart {
		return nil
	}
	if err := s.Stop(ctx); err != nil {
		return err
	}
	return s.Start(ctx)
}

func (s *Service) runTick(ctx context.Context) {
	report, err := s.engine.Tick(ctx)
	if err != nil {
		s.log.Error("promotion tick failed", logx.Err(err))
		return
	}
	if len(report.Succeeded) > 0 || len(report.Failed) > 0 {
		s.log.Info("promotion tick finished",
			logx.Int("succeeded", len(report.Succeeded)),
			logx.Int("failed", len(report.Failed)),
			logx.Int("skipped_media", len(report.SkippedMedia)))
	}
}

func (s *Service) runSweep(ctx context.Context) {
	removed, err := s.SweepStaging(ctx)
	if err != nil {
		s.log.Error("staging sweep failed", logx.Err(err))
		return
	}
	if removed > 0 {
		s.log.Info("staging sweep finished", logx.Int("removed", removed))
	}
}
