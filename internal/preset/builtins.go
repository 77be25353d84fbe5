package preset

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tracebase-eu/tracebase/internal/globalfilter"
	"github.com/tracebase-eu/tracebase/internal/observability"
	"github.com/tracebase-eu/tracebase/internal/query"
)

// Navigation parameters read by built-in presets
const (
	ParamLocationID       = "locationId"
	ParamClassificationID = "classificationId"
	ParamCaseIDs          = "caseIds"
	ParamContactIDs       = "contactIds"
)

// Builtins returns the definitions of every built-in preset
func Builtins() []Definition {
	defs := make([]Definition, 0, 22)
	defs = append(defs, caseDefinitions()...)
	defs = append(defs, contactDefinitions()...)
	defs = append(defs, eventDefinitions()...)
	defs = append(defs, Definition{
		ID:          NavigationRefresh,
		Entity:      EntityAny,
		Description: "Drop the applied preset and refresh",
		Resolve: func(context.Context, Env, Input) (Result, error) {
			return Clear(), nil
		},
	})
	return defs
}

// metricPreset builds an async preset whose fragment is id in the metric's ids.
// The global scope of entity is sent along as the metric filter.
func metricPreset(id ID, entity Entity, metric Metric, defaultDays int, description string) Definition {
	return Definition{
		ID:          id,
		Entity:      entity,
		Async:       true,
		Description: description,
		Resolve: func(ctx context.Context, env Env, in Input) (Result, error) {
			if env.Metrics == nil {
				return Result{}, ErrNoMetricService
			}

			req := MetricRequest{
				Date:   globalfilter.EndOfDay(env.ReferenceDate(in)),
				Filter: env.Scope(entity, in, ScopeOptions{}).Filter.GenerateCondition(),
			}
			if defaultDays > 0 {
				req.Days = in.XInt(defaultDays)
			}
			svc := env.Metrics

			return Async(func(ctx context.Context) (*query.QueryBuilder, error) {
				ids, err := svc.ResolveIDs(ctx, metric, req)
				if err != nil {
					return nil, fmt.Errorf("metric %s: %w", metric, err)
				}
				observability.AddSpanEvent(ctx, "metric.resolved",
					attribute.String("metric", string(metric)),
					attribute.Int("ids", len(ids)),
				)
				qb := query.NewQueryBuilder()
				qb.Filter.Where(query.Op(FieldID, query.OpIn, ids))
				return qb, nil
			}), nil
		},
	}
}

// idsPreset builds a direct preset constraining id to a list parameter.
// An empty list matches nothing.
func idsPreset(id ID, entity Entity, param, description string) Definition {
	return Definition{
		ID:          id,
		Entity:      entity,
		Description: description,
		Resolve: func(_ context.Context, _ Env, in Input) (Result, error) {
			qb := query.NewQueryBuilder()
			qb.Filter.BySelect(FieldID, in.ParamList(param), true, query.Op(FieldID, query.OpIn, []string{}))
			return Fragment(qb), nil
		},
	}
}

// locationParam returns the location requested by navigation, falling back to x
func locationParam(in Input) string {
	if loc := in.Param(ParamLocationID); loc != "" {
		return loc
	}
	return in.X
}
