// Package orchestrator drives preset apply cycles for a list view: it
// schedules a cycle per navigation change, resolves the preset (synchronously
// or on a worker pool), applies the fragment to the view's ListQuery and then
// asks the view to refresh.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"

	"github.com/tracebase-eu/tracebase/internal/config"
	"github.com/tracebase-eu/tracebase/internal/globalfilter"
	"github.com/tracebase-eu/tracebase/internal/observability"
	"github.com/tracebase-eu/tracebase/internal/preset"
	"github.com/tracebase-eu/tracebase/internal/query"
)

// Cycle outcomes
const (
	OutcomeApplied = "applied"
	OutcomeCleared = "cleared"
	OutcomeUnknown = "unknown"
	OutcomeFailed  = "failed"
	OutcomeStale   = "stale"
	OutcomeAborted = "aborted"
)

// ErrClosed is returned when scheduling on a closed orchestrator
var ErrClosed = errors.New("orchestrator is closed")

// Resolver resolves a preset input
type Resolver interface {
	Resolve(ctx context.Context, in preset.Input) (preset.Result, error)
}

// RefreshFunc asks the owning view to reload with the current ListQuery
type RefreshFunc func(instant bool)

// ErrorFunc receives cycle failures
type ErrorFunc func(id preset.ID, err error)

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithMetrics records cycles on m
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithErrorHandler sets the hook receiving resolution and decode failures
func WithErrorHandler(fn ErrorFunc) Option {
	return func(o *Orchestrator) {
		o.onError = fn
	}
}

type cycle struct {
	seq uint64
	id  string
	nav globalfilter.NavigationState
}

// Orchestrator runs one apply cycle at a time per list view.
//
// Cycles scheduled before Ready are held; only the latest is kept. A new
// cycle stops the pending timer of the previous one, and with DiscardStale the
// previous cycle's in-flight async work is cancelled and its late result dropped.
type Orchestrator struct {
	resolver Resolver
	list     *ListQuery
	refresh  RefreshFunc
	cfg      config.OrchestratorConfig
	pool     *ants.Pool
	metrics  *observability.Metrics
	onError  ErrorFunc

	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup

	mu          sync.Mutex
	ready       bool
	closed      bool
	seq         uint64
	held        *cycle
	timer       *time.Timer
	cycleCancel context.CancelFunc
	loading     bool
	current     preset.ID
}

// New creates an orchestrator applying presets from resolver to list
func New(resolver Resolver, list *ListQuery, refresh RefreshFunc, cfg config.OrchestratorConfig, opts ...Option) (*Orchestrator, error) {
	if resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if list == nil {
		list = NewListQuery(nil)
	}
	if refresh == nil {
		refresh = func(bool) {}
	}
	workers := cfg.AsyncWorkers
	if workers < 1 {
		workers = 1
	}

	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(p interface{}) {
		log.Error().Interface("panic", p).Msg("Async preset resolution panicked")
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create async worker pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		resolver:   resolver,
		list:       list,
		refresh:    refresh,
		cfg:        cfg,
		pool:       pool,
		rootCtx:    ctx,
		rootCancel: cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// List returns the list query the orchestrator applies to
func (o *Orchestrator) List() *ListQuery {
	return o.list
}

// Loading reports whether a cycle is pending or resolving
func (o *Orchestrator) Loading() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loading
}

// Current returns the preset of the latest scheduled cycle
func (o *Orchestrator) Current() preset.ID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Schedule starts a cycle for nav. Navigation without a preset is ignored.
func (o *Orchestrator) Schedule(nav globalfilter.NavigationState) error {
	if nav.IsEmpty() {
		log.Debug().Msg("Navigation has no preset, nothing to schedule")
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrClosed
	}

	o.seq++
	c := &cycle{seq: o.seq, id: uuid.New().String(), nav: nav}
	o.current = preset.ID(nav.Preset)
	o.loading = true

	o.stopTimer()
	if o.cfg.DiscardStale && o.cycleCancel != nil {
		o.cycleCancel()
		o.cycleCancel = nil
	}
	o.metrics.RecordCycleScheduled()

	log.Debug().
		Str("cycle_id", c.id).
		Uint64("seq", c.seq).
		Str("preset", nav.Preset).
		Bool("ready", o.ready).
		Msg("Preset cycle scheduled")

	if !o.ready {
		o.held = c
		return nil
	}
	o.arm(c)
	return nil
}

// Ready releases the held cycle, if any. Cycles scheduled afterwards run
// after the configured debounce.
func (o *Orchestrator) Ready() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ready || o.closed {
		return
	}
	o.ready = true
	if o.held != nil {
		o.arm(o.held)
		o.held = nil
	}
}

// Close stops pending and in-flight cycles and releases the worker pool
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.held = nil
	o.stopTimer()
	o.loading = false
	o.mu.Unlock()

	o.rootCancel()
	o.wg.Wait()
	o.pool.Release()
}

// stopTimer must be called with o.mu held
func (o *Orchestrator) stopTimer() {
	if o.timer == nil {
		return
	}
	if o.timer.Stop() {
		o.wg.Done()
	}
	o.timer = nil
}

// arm must be called with o.mu held
func (o *Orchestrator) arm(c *cycle) {
	o.wg.Add(1)
	o.timer = time.AfterFunc(o.cfg.Debounce, func() {
		defer o.wg.Done()
		o.run(c)
	})
}

func (o *Orchestrator) run(c *cycle) {
	o.mu.Lock()
	if o.closed || c.seq != o.seq {
		o.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(o.rootCtx)
	if o.cycleCancel != nil && o.cfg.DiscardStale {
		o.cycleCancel()
	}
	o.cycleCancel = cancel
	o.mu.Unlock()

	handedOff := false
	defer func() {
		if !handedOff {
			cancel()
		}
	}()

	logger := log.With().Str("cycle_id", c.id).Str("preset", c.nav.Preset).Logger()

	global, err := globalfilter.Decode(c.nav.Global)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to decode global filter, cycle aborted")
		o.fail(c, OutcomeAborted, err)
		return
	}

	res, err := o.resolver.Resolve(ctx, preset.InputFromNavigation(c.nav, global))
	if err != nil {
		if errors.Is(err, preset.ErrUnknownPreset) {
			logger.Warn().Msg("Unknown preset, nothing applied")
			o.finish(c, OutcomeUnknown)
			return
		}
		logger.Error().Err(err).Msg("Preset resolution failed")
		o.fail(c, OutcomeFailed, err)
		return
	}

	switch res.Kind() {
	case preset.KindSync:
		o.apply(c, res.Fragment(), OutcomeApplied)
	case preset.KindClear:
		o.apply(c, nil, OutcomeCleared)
	case preset.KindAsync:
		handedOff = true
		o.wg.Add(1)
		o.metrics.AsyncStarted()
		err := o.pool.Submit(func() {
			defer o.wg.Done()
			defer o.metrics.AsyncFinished()
			defer cancel()

			qb, err := preset.Await(ctx, res)
			if err != nil {
				if ctx.Err() != nil {
					closed, stale := o.state(c)
					if closed {
						return
					}
					if stale {
						logger.Debug().Msg("Async resolution cancelled by a newer cycle")
						o.metrics.RecordCycle(OutcomeStale)
						return
					}
				}
				logger.Error().Err(err).Msg("Async preset resolution failed")
				o.fail(c, OutcomeFailed, err)
				return
			}
			o.apply(c, qb, OutcomeApplied)
		})
		if err != nil {
			cancel()
			o.wg.Done()
			o.metrics.AsyncFinished()
			logger.Error().Err(err).Msg("Failed to submit async preset resolution")
			o.fail(c, OutcomeFailed, err)
		}
	}
}

func (o *Orchestrator) state(c *cycle) (closed, stale bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed, c.seq != o.seq
}

// apply replaces the ListQuery fragment and then refreshes, in that order
func (o *Orchestrator) apply(c *cycle, fragment *query.QueryBuilder, outcome string) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	latest := c.seq == o.seq
	if !latest && o.cfg.DiscardStale {
		o.mu.Unlock()
		log.Warn().
			Str("cycle_id", c.id).
			Str("preset", c.nav.Preset).
			Uint64("seq", c.seq).
			Msg("Discarding stale preset result")
		o.metrics.RecordCycle(OutcomeStale)
		return
	}
	o.list.Apply(fragment)
	if latest {
		o.loading = false
	}
	o.mu.Unlock()

	log.Debug().
		Str("cycle_id", c.id).
		Str("preset", c.nav.Preset).
		Str("outcome", outcome).
		Msg("Preset cycle applied")
	o.metrics.RecordCycle(outcome)
	o.refresh(true)
}

// finish completes a cycle without touching the ListQuery or refreshing
func (o *Orchestrator) finish(c *cycle, outcome string) {
	o.mu.Lock()
	if c.seq == o.seq {
		o.loading = false
	}
	o.mu.Unlock()
	o.metrics.RecordCycle(outcome)
}

func (o *Orchestrator) fail(c *cycle, outcome string, err error) {
	o.finish(c, outcome)
	if o.onError != nil {
		o.onError(preset.ID(c.nav.Preset), err)
	}
}
