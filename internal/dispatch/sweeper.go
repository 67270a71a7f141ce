package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/switchboard/internal/telegraph"
	"gorm.io/gorm"
)

// DefaultSweepSchedule runs AutoAssign every 15 seconds.
const DefaultSweepSchedule = "@every 15s"

// Sweeper runs AutoAssign on a cron schedule and on demand.
type Sweeper struct {
	db       *gorm.DB
	notifier telegraph.Notifier
	schedule string
	log      *slog.Logger
	trigger  chan struct{}
}

// SweeperOpts holds parameters for creating a Sweeper.
type SweeperOpts struct {
	DB       *gorm.DB
	Notifier telegraph.Notifier // defaults to telegraph.Nop
	Schedule string             // cron spec; defaults to DefaultSweepSchedule
	Logger   *slog.Logger
}

// NewSweeper validates opts and returns a Sweeper.
func NewSweeper(opts SweeperOpts) (*Sweeper, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("dispatch: db is required")
	}
	schedule := opts.Schedule
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("dispatch: sweep schedule %q: %w", schedule, err)
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = telegraph.Nop{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		db:       opts.DB,
		notifier: notifier,
		schedule: schedule,
		log:      log,
		trigger:  make(chan struct{}, 1),
	}, nil
}

// Trigger requests a sweep soon. It never blocks; triggers that arrive while
// one is already pending are coalesced.
func (s *Sweeper) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// RunOnce performs a single sweep and announces each assignment.
func (s *Sweeper) RunOnce(ctx context.Context) (*SweepResult, error) {
	result, err := AutoAssign(ctx, s.db)
	if result != nil {
		for _, a := range result.Assigned {
			s.notifier.Notify(ctx, telegraph.SessionEvent(telegraph.EventSessionAssigned, a.Session, ""))
		}
		for _, f := range result.Failures {
			s.log.Warn("dispatch: auto-assign", "session_id", f.SessionID, "error", f.Err)
		}
		if len(result.Assigned) > 0 || len(result.Failures) > 0 {
			s.log.Info("dispatch: sweep",
				"assigned", len(result.Assigned),
				"waiting", result.Waiting,
				"skipped", result.Skipped,
				"failed", len(result.Failures),
			)
		}
	}
	return result, err
}

// Run sweeps on schedule and whenever Trigger is called, until ctx is
// cancelled. Scheduled runs that would overlap a still-running one are
// skipped.
func (s *Sweeper) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithLogger(cron.PrintfLogger(slog.NewLogLogger(s.log.Handler(), slog.LevelDebug))),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(s.schedule, func() { s.sweep(ctx) }); err != nil {
		return fmt.Errorf("dispatch: schedule sweep: %w", err)
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	s.log.Info("dispatch: sweeper started", "schedule", s.schedule)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.trigger:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.log.Warn("dispatch: sweep failed", "error", err)
	}
}
