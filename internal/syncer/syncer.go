// Package syncer keeps a client-side view of a server-fetched value eventually
// consistent without flooding the network or flickering the UI. An Engine
// polls on an interval, drops re-entrant triggers while a fetch is in flight,
// enforces a minimum spacing between fetches, pauses while the view is hidden
// and cools down on transient errors. Pushed events are reconciled through
// Apply, keyed by the transition's own order rather than arrival order.
package syncer

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ndmitriev/payhub/internal/apperrors"
	"github.com/ndmitriev/payhub/internal/logger"
)

const (
	defaultInterval   = 10 * time.Second
	defaultMinSpacing = 1 * time.Second
	defaultCooldown   = 30 * time.Second
)

type Fetcher[T any] func(ctx context.Context) (T, error)

type Config[T any] struct {
	// Poll interval. Default 10s.
	Interval time.Duration

	// Minimum spacing between any two fetches, manual triggers included.
	// Default 1s.
	MinSpacing time.Duration

	// Self-pause length after a transient error. Default 30s.
	Cooldown time.Duration

	// Stop fetching while the view is not visible
	PauseWhenHidden bool

	// Equal reports whether two results render identically. An equal result
	// leaves the cached value and its timestamp untouched.
	// Default reflect.DeepEqual.
	Equal func(prev, next T) bool

	// IsTransient classifies errors that trigger the cooldown instead of
	// surfacing. Default: the apperrors transient class.
	IsTransient func(err error) bool

	// OnError receives non-transient fetch errors
	OnError func(err error)
}

// Engine states. Fetching is the only state with network I/O outstanding.
const (
	StateIdle     = "idle"
	StateFetching = "fetching"
	StatePaused   = "paused"
)

type command int

const (
	cmdTrigger command = iota
	cmdPause
	cmdResume
	cmdHidden
	cmdVisible
	cmdCooldownDone
)

type fetchResult[T any] struct {
	value T
	err   error
}

type applyFunc[T any] func(current T) (T, bool)

type Engine[T any] struct {
	cfg     Config[T]
	fetch   Fetcher[T]
	limiter *rate.Limiter
	logger  logger.Logger

	commands chan command
	results  chan fetchResult[T]
	applies  chan applyFunc[T]

	// Control-loop state, touched only from Run. fetching outlives pause
	// transitions: a pause/resume cycle must not forget an outstanding fetch.
	state          string
	fetching       bool
	pausedManually bool
	pausedHidden   bool
	coolingDown    bool

	// Cached value, guarded by mu; written by the control loop, read anywhere
	mu     sync.Mutex
	cached cached[T]
}

type cached[T any] struct {
	value       T
	lastUpdated time.Time
	ok          bool
}

func New[T any](fetch Fetcher[T], cfg Config[T], l logger.Logger) *Engine[T] {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.MinSpacing <= 0 {
		cfg.MinSpacing = defaultMinSpacing
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	if cfg.Equal == nil {
		cfg.Equal = func(prev, next T) bool { return reflect.DeepEqual(prev, next) }
	}
	if cfg.IsTransient == nil {
		cfg.IsTransient = func(err error) bool { return errors.Is(err, apperrors.ErrTransient) }
	}
	if cfg.OnError == nil {
		cfg.OnError = func(error) {}
	}

	e := &Engine[T]{
		cfg:      cfg,
		fetch:    fetch,
		limiter:  rate.NewLimiter(rate.Every(cfg.MinSpacing), 1),
		logger:   l,
		commands: make(chan command, 16),
		results:  make(chan fetchResult[T], 1),
		applies:  make(chan applyFunc[T], 16),
		state:    StateIdle,
	}

	return e
}

// Run starts the control loop. Every scheduling decision (timer tick,
// visibility change, manual trigger, fetch settle) is serialized through this
// single goroutine. The returned channel closes when the loop has stopped.
func (e *Engine[T]) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(e.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				e.logger.Debug("Sync engine stopped by context")
				return

			case <-ticker.C:
				e.startFetch(ctx)

			case cmd := <-e.commands:
				e.handleCommand(ctx, cmd)

			case res := <-e.results:
				e.settleFetch(res)

			case fn := <-e.applies:
				e.applyMerge(fn)
			}
		}
	}()

	return idleStopped
}

// Trigger requests one fetch outside the timer, e.g. when a pushed event
// suggests the view is stale. Subject to the same spacing and in-flight rules
// as a timer tick.
func (e *Engine[T]) Trigger() { e.post(cmdTrigger) }

func (e *Engine[T]) Pause()  { e.post(cmdPause) }
func (e *Engine[T]) Resume() { e.post(cmdResume) }

// SetVisible tells the engine whether the view is on screen. Going visible
// again after a hidden pause schedules one immediate catch-up fetch.
func (e *Engine[T]) SetVisible(visible bool) {
	if visible {
		e.post(cmdVisible)
	} else {
		e.post(cmdHidden)
	}
}

// Apply runs fn against the cached value on the control loop. fn returns the
// merged value and whether anything changed; an unchanged result leaves the
// "last updated" timestamp alone. This is how pushed events are reconciled
// with poll snapshots.
func (e *Engine[T]) Apply(fn func(current T) (T, bool)) {
	select {
	case e.applies <- fn:
	default:
		e.logger.Debug("Sync engine apply queue full, merge dropped")
	}
}

// Value returns the cached value, when it last changed, and whether any fetch
// has succeeded yet.
func (e *Engine[T]) Value() (T, time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cached.value, e.cached.lastUpdated, e.cached.ok
}

func (e *Engine[T]) post(cmd command) {
	select {
	case e.commands <- cmd:
	default:
		// A full queue means the loop is behind on control messages;
		// dropping is safe, every command is a hint, not a guarantee.
	}
}

func (e *Engine[T]) handleCommand(ctx context.Context, cmd command) {
	switch cmd {
	case cmdTrigger:
		e.startFetch(ctx)

	case cmdPause:
		e.pausedManually = true
		e.updatePaused()

	case cmdResume:
		e.pausedManually = false
		e.updatePaused()

	case cmdHidden:
		if e.cfg.PauseWhenHidden {
			e.pausedHidden = true
			e.updatePaused()
		}

	case cmdVisible:
		wasHidden := e.pausedHidden
		e.pausedHidden = false
		e.updatePaused()
		if wasHidden && e.state == StateIdle {
			// Catch up on pushes missed while hidden
			e.startFetch(ctx)
		}

	case cmdCooldownDone:
		e.coolingDown = false
		e.updatePaused()
	}
}

func (e *Engine[T]) updatePaused() {
	paused := e.pausedManually || e.pausedHidden || e.coolingDown

	switch {
	case paused && e.state != StatePaused:
		e.state = StatePaused
	case !paused && e.state == StatePaused:
		if e.fetching {
			e.state = StateFetching
		} else {
			e.state = StateIdle
		}
	}
}

func (e *Engine[T]) startFetch(ctx context.Context) {
	// At most one fetch in flight; ticks and triggers during one are no-ops
	if e.fetching || e.state != StateIdle {
		return
	}
	if !e.limiter.Allow() {
		return
	}

	e.fetching = true
	e.state = StateFetching
	go func() {
		value, err := e.fetch(ctx)
		e.results <- fetchResult[T]{value: value, err: err}
	}()
}

func (e *Engine[T]) settleFetch(res fetchResult[T]) {
	e.fetching = false
	if e.state == StatePaused {
		// Paused mid-flight: the settling result is ignored
		return
	}
	e.state = StateIdle

	if res.err != nil {
		if e.cfg.IsTransient(res.err) {
			e.logger.Debug("Transient fetch error, cooling down", "error", res.err, "cooldown", e.cfg.Cooldown)
			e.coolingDown = true
			e.updatePaused()
			time.AfterFunc(e.cfg.Cooldown, func() { e.post(cmdCooldownDone) })
			return
		}

		e.cfg.OnError(res.err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.cached.ok || !e.cfg.Equal(e.cached.value, res.value) {
		e.cached = cached[T]{value: res.value, lastUpdated: time.Now(), ok: true}
	}
}

func (e *Engine[T]) applyMerge(fn applyFunc[T]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if merged, changed := fn(e.cached.value); changed {
		e.cached = cached[T]{value: merged, lastUpdated: time.Now(), ok: e.cached.ok}
	}
}
