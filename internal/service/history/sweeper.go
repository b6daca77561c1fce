package history

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"hue-gateway/internal/dbms"
	"hue-gateway/internal/domain"
)

// idleSchedule is how often pooled connections are checked for idleness.
const idleSchedule = "@every 1m"

// SweeperOptions configure a Sweeper.
type SweeperOptions struct {
	History domain.QueryHistoryRepository
	Pool    *dbms.Pool
	// Schedule is the cron spec of the history sweep.
	Schedule string
	// StaleAfter is how long a record may stay unfinished before it is
	// refreshed.
	StaleAfter time.Duration
	// Batch caps the records refreshed per sweep.
	Batch int
	// IdleTimeout closes pooled connections unused for that long. Zero
	// keeps them open.
	IdleTimeout time.Duration
	Logger      *slog.Logger
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Checked int
	Updated int
	Expired int
	Failed  int
}

// Sweeper refreshes unfinished query history records on a cron schedule
// and closes idle pooled connections.
type Sweeper struct {
	cron   *cron.Cron
	opts   SweeperOptions
	logger *slog.Logger
	now    func() time.Time
}

// NewSweeper creates a Sweeper. Call Start to schedule it.
func NewSweeper(opts SweeperOptions) *Sweeper {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Schedule == "" {
		opts.Schedule = "@every 5m"
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = time.Hour
	}
	if opts.Batch <= 0 {
		opts.Batch = domain.DefaultPageSize
	}
	logger := opts.Logger.With("component", "history-sweeper")
	cl := cronLogger{logger: logger}
	return &Sweeper{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// Start schedules the sweep and the idle check and starts the scheduler.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.opts.Schedule, func() {
		if _, err := s.SweepOnce(context.Background()); err != nil {
			s.logger.Warn("history sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	if s.opts.IdleTimeout > 0 {
		_, err := s.cron.AddFunc(idleSchedule, func() {
			if n := s.opts.Pool.CloseIdle(s.opts.IdleTimeout); n > 0 {
				s.logger.Info("idle connections closed", "count", n)
			}
		})
		if err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info("history sweeper started", "schedule", s.opts.Schedule, "stale_after", s.opts.StaleAfter)
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("history sweeper stopped")
}

// SweepOnce refreshes up to Batch records that have been unfinished for
// longer than StaleAfter. Records on servers that are no longer configured
// are expired.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	stale, err := s.opts.History.ListStale(ctx, s.now().Add(-s.opts.StaleAfter), s.opts.Batch)
	if err != nil {
		return res, err
	}

	for i := range stale {
		h := &stale[i]
		res.Checked++
		before := h.LastState

		d, err := s.opts.Pool.GetOrCreate(ctx, h.Owner, h.ServerName)
		var nf *domain.NotFoundError
		switch {
		case errors.As(err, &nf):
			if saveErr := s.opts.History.SaveState(ctx, h.ID, domain.QueryStateExpired, nil); saveErr != nil {
				return res, saveErr
			}
			res.Expired++
			continue
		case err != nil:
			s.logger.Warn("refresh history: open session", "history_id", h.ID, "server", h.ServerName, "user", h.Owner, "error", err)
			res.Failed++
			continue
		}

		state, err := d.RefreshHistory(ctx, h)
		if err != nil {
			s.logger.Warn("refresh history", "history_id", h.ID, "error", err)
			res.Failed++
			continue
		}
		if state == domain.QueryStateExpired {
			res.Expired++
		} else if state != before {
			res.Updated++
		}
	}

	if res.Checked > 0 {
		s.logger.Info("history swept", "checked", res.Checked, "updated", res.Updated, "expired", res.Expired, "failed", res.Failed)
	}
	return res, nil
}

// cronLogger routes the scheduler's messages to slog. Scheduler chatter
// (start, wake, run, skip) is debug output.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
