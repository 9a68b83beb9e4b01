// Package schedule runs the periodic event refresh on a cron spec.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "pagecal/internal/log"
)

var ErrNoSteps = errors.New("schedule: at least one step is required")

// Step is one stage of a refresh run.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Refresher runs its steps in order on every tick of a cron spec. A failing
// step is logged and the remaining steps still run. Ticks that fire while a
// run is in progress are skipped.
type Refresher struct {
	cron  *cron.Cron
	steps []Step
	log   *appLog.Logger

	mu   sync.Mutex
	runs int
	ctx  context.Context
}

// New parses spec (five fields, or a descriptor like "@hourly") in loc.
func New(spec string, loc *time.Location, logger *appLog.Logger, steps ...Step) (*Refresher, error) {
	if len(steps) == 0 {
		return nil, ErrNoSteps
	}
	if loc == nil {
		loc = time.UTC
	}
	r := &Refresher{steps: steps, log: logger, ctx: context.Background()}
	r.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{logger}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})),
	)
	if _, err := r.cron.AddFunc(spec, r.tick); err != nil {
		return nil, fmt.Errorf("schedule: invalid spec %q: %w", spec, err)
	}
	return r, nil
}

// Start runs the scheduler until ctx is cancelled. Steps receive ctx.
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()

	r.cron.Start()
	r.log.Info("refresh scheduler started", "next", r.Next())
	go func() {
		<-ctx.Done()
		<-r.cron.Stop().Done()
		r.log.Info("refresh scheduler stopped")
	}()
}

// Next is the time of the next scheduled run, or zero when not started.
func (r *Refresher) Next() time.Time {
	entries := r.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Runs is the number of completed runs.
func (r *Refresher) Runs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

func (r *Refresher) tick() {
	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()
	r.RunOnce(ctx)
}

// RunOnce runs every step now and joins the step errors.
func (r *Refresher) RunOnce(ctx context.Context) error {
	start := time.Now()
	var errs []error
	for _, s := range r.steps {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.Run(ctx); err != nil {
			r.log.Error("refresh step failed", err, "step", s.Name)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}

	r.mu.Lock()
	r.runs++
	r.mu.Unlock()
	r.log.Info("refresh finished", "elapsed", time.Since(start).Round(time.Millisecond), "errors", len(errs))
	return errors.Join(errs...)
}

// cronLogger adapts cron's logger to ours.
type cronLogger struct{ l *appLog.Logger }

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.l.Debug("cron: "+msg, kv...)
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Error("cron: "+msg, err, kv...)
}
