// Package poller waits for the plugin's analysis task to finish by checking
// its status at a fixed interval.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"intro-verifier/internal/apiclient"
)

// ErrTimeout is returned when the task has not finished within the maximum wait.
var ErrTimeout = errors.New("timed out waiting for task completion")

// StatusSource reports the state of a scheduled task.
type StatusSource interface {
	TaskStatus(ctx context.Context, taskID string) (apiclient.JobStatus, error)
}

// Progress is emitted after every status check.
type Progress struct {
	Check   int
	State   string
	Percent float64
	Elapsed time.Duration
}

// Observer receives progress observations.
type Observer func(Progress)

type options struct {
	interval time.Duration
	maxWait  time.Duration
	observer Observer
}

// Option configures a Poller.
type Option func(*options)

// WithInterval sets the delay before every status check, the first included.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		o.interval = d
	}
}

// WithMaxWait bounds the total wait. A value <= 0 waits until the task
// finishes or the context is cancelled.
func WithMaxWait(d time.Duration) Option {
	return func(o *options) {
		o.maxWait = d
	}
}

// WithObserver registers fn to receive a Progress after each check.
func WithObserver(fn Observer) Option {
	return func(o *options) {
		o.observer = fn
	}
}

const (
	defaultInterval = 10 * time.Second
	defaultMaxWait  = time.Hour
)

// Poller blocks until a task reaches a terminal state.
type Poller struct {
	src  StatusSource
	opts options
}

// New returns a Poller reading status from src.
func New(src StatusSource, opts ...Option) *Poller {
	o := options{interval: defaultInterval, maxWait: defaultMaxWait}
	for _, opt := range opts {
		opt(&o)
	}
	if o.interval < 0 {
		o.interval = 0
	}
	return &Poller{src: src, opts: o}
}

// Percent maps a status snapshot to completion. Idle means nothing is left to
// run, so it is complete regardless of any reported progress. Unknown states
// count as not started.
func Percent(st apiclient.JobStatus) float64 {
	switch st.State {
	case apiclient.StateIdle:
		return 100
	case apiclient.StateRunning:
		if st.ProgressPercent != nil {
			return *st.ProgressPercent
		}
		return 0
	default:
		return 0
	}
}

// AwaitCompletion sleeps for the interval, checks the task, and repeats until
// the computed progress reaches 100. Status errors abort the wait.
func (p *Poller) AwaitCompletion(ctx context.Context, taskID string) error {
	waitCtx := ctx
	if p.opts.maxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.opts.maxWait)
		defer cancel()
	}

	start := time.Now()
	timer := time.NewTimer(p.opts.interval)
	defer timer.Stop()

	for check := 1; ; check++ {
		select {
		case <-waitCtx.Done():
			return p.waitErr(ctx, waitCtx, check-1)
		case <-timer.C:
		}

		st, err := p.src.TaskStatus(waitCtx, taskID)
		if err != nil {
			if waitCtx.Err() != nil {
				return p.waitErr(ctx, waitCtx, check)
			}
			return fmt.Errorf("checking task %s: %w", taskID, err)
		}

		percent := Percent(st)
		if p.opts.observer != nil {
			p.opts.observer(Progress{
				Check:   check,
				State:   st.State,
				Percent: percent,
				Elapsed: time.Since(start),
			})
		}
		if percent >= 100 {
			return nil
		}

		timer.Reset(p.opts.interval)
	}
}

// waitErr distinguishes our own deadline from cancellation by the caller.
func (p *Poller) waitErr(parent, waitCtx context.Context, checks int) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s (%d checks)", ErrTimeout, p.opts.maxWait, checks)
	}
	return waitCtx.Err()
}
