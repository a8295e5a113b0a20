package timectrl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalidGrid is returned when a step grid cannot be built.
var ErrInvalidGrid = errors.New("invalid epoch grid")

// TimeController walks an epoch grid from StartTime in steps of Tick and
// notifies registered listeners at every epoch, including the first.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration

	currentTime time.Time

	listeners []func(time.Time) error
}

// NewTimeController constructs a controller. Epochs are delivered as
// fast as listeners return.
func NewTimeController(start time.Time, tick time.Duration) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		currentTime: start,
	}
}

// Now returns the epoch most recently delivered to listeners.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime moves the controller to t without notifying listeners.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.currentTime = t
	tc.mu.Unlock()
}

// AddListener registers a callback invoked at every epoch. A listener
// error stops the run.
func (tc *TimeController) AddListener(fn func(time.Time) error) {
	tc.mu.Lock()
	tc.listeners = append(tc.listeners, fn)
	tc.mu.Unlock()
}

// Run delivers every epoch in [StartTime, end] to the listeners. It
// returns the number of epochs delivered.
func (tc *TimeController) Run(ctx context.Context, end time.Time) (int, error) {
	if tc.Tick <= 0 {
		return 0, fmt.Errorf("%w: tick must be positive", ErrInvalidGrid)
	}
	if end.Before(tc.StartTime) {
		return 0, fmt.Errorf("%w: end precedes start", ErrInvalidGrid)
	}

	tc.mu.RLock()
	listeners := append([]func(time.Time) error(nil), tc.listeners...)
	tc.mu.RUnlock()

	n := 0
	for epoch := tc.StartTime; !epoch.After(end); epoch = epoch.Add(tc.Tick) {
		if err := ctx.Err(); err != nil {
			return n, err
		}

		tc.SetTime(epoch)
		for _, fn := range listeners {
			if err := fn(epoch); err != nil {
				return n, err
			}
		}
		n++
	}
	return n, nil
}

// Steps returns the epochs of the grid [start, end] spaced by step.
func Steps(start, end time.Time, step time.Duration) ([]time.Time, error) {
	tc := NewTimeController(start, step)
	var out []time.Time
	tc.AddListener(func(t time.Time) error {
		out = append(out, t)
		return nil
	})
	if _, err := tc.Run(context.Background(), end); err != nil {
		return nil, err
	}
	return out, nil
}
