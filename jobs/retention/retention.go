// Package retention periodically removes old documents from the planboard.
package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/kilianp07/planboard/core/logger"
	"github.com/kilianp07/planboard/core/model"
)

// Cleaner deletes the documents of one type created before a cutoff.
type Cleaner interface {
	Cleanup(ctx context.Context, t model.DocumentType, before time.Time) (int, error)
}

// Job removes documents older than a retention window.
type Job struct {
	cleaner Cleaner
	types   []model.DocumentType
	keep    time.Duration
	clock   clock.Clock
	log     logger.Logger
}

type Option func(*Job)

func WithClock(c clock.Clock) Option { return func(j *Job) { j.clock = c } }

func WithLogger(l logger.Logger) Option { return func(j *Job) { j.log = l } }

// New creates a job keeping documents for keep.
func New(c Cleaner, types []model.DocumentType, keep time.Duration, opts ...Option) (*Job, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: retention needs a cleaner", model.ErrConfiguration)
	}
	if keep <= 0 {
		return nil, fmt.Errorf("%w: retention window must be positive", model.ErrConfiguration)
	}
	if len(types) == 0 {
		types = model.DocumentTypes
	}
	j := &Job{cleaner: c, types: types, keep: keep, clock: clock.New()}
	for _, o := range opts {
		o(j)
	}
	j.log = logger.OrNop(j.log)
	return j, nil
}

// RunOnce cleans every configured type and returns the removed counts.
// A failing type does not stop the others.
func (j *Job) RunOnce(ctx context.Context) (map[model.DocumentType]int, error) {
	before := j.clock.Now().Add(-j.keep)
	out := make(map[model.DocumentType]int, len(j.types))
	var errs []error
	for _, t := range j.types {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		n, err := j.cleaner.Cleanup(ctx, t, before)
		if err != nil {
			j.log.Errorf("cleanup %s: %v", t, err)
			errs = append(errs, err)
			continue
		}
		out[t] = n
	}
	return out, errors.Join(errs...)
}

// Run cleans once immediately and then every interval until ctx is done.
func (j *Job) Run(ctx context.Context, interval time.Duration) {
	if _, err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
		j.log.Warnf("retention run: %v", err)
	}
	ticker := j.clock.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
				j.log.Warnf("retention run: %v", err)
			}
		}
	}
}
