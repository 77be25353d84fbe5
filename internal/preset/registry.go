package preset

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"

	"github.com/tracebase-eu/tracebase/internal/globalfilter"
	"github.com/tracebase-eu/tracebase/internal/observability"
	"github.com/tracebase-eu/tracebase/internal/query"
)

// Registry maps preset ids to resolver functions
type Registry struct {
	mu      sync.RWMutex
	presets map[ID]Definition

	scopes    GlobalQueryFactory
	metricSvc MetricService
	clock     globalfilter.Clock
	tracer    trace.Tracer
	metrics   *observability.Metrics
}

// Option configures a Registry
type Option func(*Registry)

// WithScopeFactory sets the global scope factory
func WithScopeFactory(f GlobalQueryFactory) Option {
	return func(r *Registry) {
		r.scopes = f
	}
}

// WithMetricService sets the service used by async presets
func WithMetricService(svc MetricService) Option {
	return func(r *Registry) {
		r.metricSvc = svc
	}
}

// WithClock sets the clock that provides the fallback reference date
func WithClock(clock globalfilter.Clock) Option {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithTracer sets the tracer used for resolution spans
func WithTracer(t trace.Tracer) Option {
	return func(r *Registry) {
		r.tracer = t
	}
}

// WithMetrics records resolutions on m
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		presets: make(map[ID]Definition),
		scopes:  DefaultScope{},
		clock:   globalfilter.SystemClock,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewDefaultRegistry creates a registry holding every built-in preset
func NewDefaultRegistry(opts ...Option) *Registry {
	r := NewRegistry(opts...)
	for _, def := range Builtins() {
		if err := r.Register(def); err != nil {
			// builtin ids are unique
			panic(err)
		}
	}
	return r
}

// Register adds a preset definition
func (r *Registry) Register(def Definition) error {
	if def.ID == "" {
		return fmt.Errorf("preset id cannot be empty")
	}
	if def.Resolve == nil {
		return fmt.Errorf("preset %s has no resolver", def.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.presets[def.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePreset, def.ID)
	}
	r.presets[def.ID] = def
	return nil
}

// Lookup returns the definition registered under id
func (r *Registry) Lookup(id ID) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.presets[id]
	return def, ok
}

// Describe lists registered presets sorted by id
func (r *Registry) Describe() []Descriptor {
	r.mu.RLock()
	out := make([]Descriptor, 0, len(r.presets))
	for _, def := range r.presets {
		out = append(out, Descriptor{
			ID:          def.ID,
			Entity:      def.Entity,
			Async:       def.Async,
			Description: def.Description,
		})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Resolve runs the resolver registered for in.Preset. Async results are
// wrapped so their completion is traced and measured as well.
func (r *Registry) Resolve(ctx context.Context, in Input) (Result, error) {
	def, ok := r.Lookup(in.Preset)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownPreset, in.Preset)
	}

	env := Env{Scopes: r.scopes, Metrics: r.metricSvc, Now: r.clock()}
	start := time.Now()

	spanCtx, span := observability.StartPresetSpan(ctx, r.tracer, string(def.ID), string(def.Entity))
	res, err := def.Resolve(spanCtx, env, in)
	observability.EndSpan(span, err)

	if err != nil {
		r.metrics.RecordPresetResolution(string(def.ID), kindLabel(def), time.Since(start), err)
		return Result{}, fmt.Errorf("failed to resolve preset %s: %w", def.ID, err)
	}

	log.Debug().
		Str("preset", string(def.ID)).
		Str("kind", res.Kind().String()).
		Msg("Preset resolved")

	if res.Kind() != KindAsync {
		r.metrics.RecordPresetResolution(string(def.ID), res.Kind().String(), time.Since(start), nil)
		return res, nil
	}

	inner := res.async
	return Async(func(ctx context.Context) (*query.QueryBuilder, error) {
		asyncCtx, asyncSpan := observability.StartPresetSpan(ctx, r.tracer, string(def.ID)+".async", string(def.Entity))
		qb, err := inner(asyncCtx)
		observability.EndSpan(asyncSpan, err)
		r.metrics.RecordPresetResolution(string(def.ID), KindAsync.String(), time.Since(start), err)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve preset %s: %w", def.ID, err)
		}
		return qb, nil
	}), nil
}

func kindLabel(def Definition) string {
	if def.Async {
		return KindAsync.String()
	}
	return KindSync.String()
}
