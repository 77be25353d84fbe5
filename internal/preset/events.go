package preset

import (
	"context"

	"github.com/tracebase-eu/tracebase/internal/query"
)

func eventDefinitions() []Definition {
	return []Definition{
		{
			ID:          EventsByLocation,
			Entity:      EntityEvents,
			Description: "Events in a location",
			Resolve: func(_ context.Context, env Env, in Input) (Result, error) {
				qb := env.Scope(EntityEvents, in, ScopeOptions{LocationField: FieldEventLocation})
				// the requested location overrides the global one
				if loc := locationParam(in); loc != "" {
					qb.Filter.Replace(query.Eq(FieldEventLocation, loc))
				}
				return Fragment(qb), nil
			},
		},
	}
}
