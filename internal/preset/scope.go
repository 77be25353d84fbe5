package preset

import (
	"time"

	"github.com/tracebase-eu/tracebase/internal/globalfilter"
	"github.com/tracebase-eu/tracebase/internal/query"
)

// Field paths shared by scope and presets
const (
	FieldCaseLocation   = "addresses.parentLocationIdFilter"
	FieldEventLocation  = "address.parentLocationIdFilter"
	FieldClassification = "classification"
	FieldID             = "id"
)

// ScopeOptions tune the global scope
type ScopeOptions struct {
	// DateField, when set, is constrained to records up to the end of the reference day
	DateField string
	// LocationField overrides the entity's location path
	LocationField string
	// Now is the fallback reference date when the global filter has none
	Now time.Time
}

// GlobalQueryFactory builds the base fragment scoped by the global filter
type GlobalQueryFactory interface {
	Scope(entity Entity, global globalfilter.Context, opts ScopeOptions) *query.QueryBuilder
}

// DefaultScope scopes by location and, for cases, by classification
type DefaultScope struct{}

// Scope implements GlobalQueryFactory
func (DefaultScope) Scope(entity Entity, global globalfilter.Context, opts ScopeOptions) *query.QueryBuilder {
	qb := query.NewQueryBuilder()

	if global.LocationID != "" {
		field := opts.LocationField
		if field == "" {
			field = LocationField(entity)
		}
		qb.Filter.Where(query.Eq(field, global.LocationID))
	}

	if entity == EntityCases && len(global.ClassificationIDs) > 0 {
		qb.Filter.Where(query.Op(FieldClassification, query.OpIn, append([]string(nil), global.ClassificationIDs...)))
	}

	if opts.DateField != "" {
		now := opts.Now
		if now.IsZero() {
			now = globalfilter.SystemClock()
		}
		qb.Filter.Where(query.Op(opts.DateField, query.OpLessOrEqual, globalfilter.EndOfDay(global.ReferenceDate(now))))
	}

	return qb
}

// LocationField returns the location path of entity
func LocationField(entity Entity) string {
	if entity == EntityEvents {
		return FieldEventLocation
	}
	return FieldCaseLocation
}
