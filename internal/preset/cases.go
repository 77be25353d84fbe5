package preset

import (
	"context"

	"github.com/tracebase-eu/tracebase/internal/globalfilter"
	"github.com/tracebase-eu/tracebase/internal/query"
)

// Reference data values used by case presets
const (
	OutcomeDeceased         = "LNG_REFERENCE_DATA_CATEGORY_OUTCOME_DECEASED"
	DateTypeHospitalization = "LNG_REFERENCE_DATA_CATEGORY_PERSON_DATE_TYPE_HOSPITALIZATION"
	DateTypeIsolation       = "LNG_REFERENCE_DATA_CATEGORY_PERSON_DATE_TYPE_ISOLATION"
	AddressTypeResidence    = "LNG_REFERENCE_DATA_CATEGORY_ADDRESS_TYPE_USUAL_PLACE_OF_RESIDENCE"
	LabResultInProgress     = "LNG_REFERENCE_DATA_CATEGORY_LAB_TEST_RESULT_STATUS_IN_PROGRESS"
)

const (
	relationLabResults = "labResults"

	defaultLessContacts = 1
	defaultPreviousDays = 7
)

func caseDefinitions() []Definition {
	return []Definition{
		{
			ID:          CasesDeceased,
			Entity:      EntityCases,
			Description: "Cases deceased up to the reference date",
			Resolve:     resolveCasesDeceased,
		},
		{
			ID:          CasesHospitalised,
			Entity:      EntityCases,
			Description: "Cases hospitalised on the reference date",
			Resolve:     activeDateRange(DateTypeHospitalization),
		},
		{
			ID:          CasesIsolated,
			Entity:      EntityCases,
			Description: "Cases isolated on the reference date",
			Resolve:     activeDateRange(DateTypeIsolation),
		},
		{
			ID:          CasesPendingLabResult,
			Entity:      EntityCases,
			Description: "Cases with a lab result still in progress",
			Resolve:     resolveCasesPendingLabResult,
		},
		{
			ID:          CasesByLocation,
			Entity:      EntityCases,
			Description: "Cases residing in a location",
			Resolve:     resolveCasesByLocation,
		},
		{
			ID:          CasesByClassificationLocation,
			Entity:      EntityCases,
			Description: "Cases of one classification residing in a location",
			Resolve:     resolveCasesByClassificationLocation,
		},
		{
			ID:          CasesWithoutRelationships,
			Entity:      EntityCases,
			Description: "Cases with no contacts and no exposures",
			Resolve: func(_ context.Context, env Env, in Input) (Result, error) {
				qb := env.Scope(EntityCases, in, ScopeOptions{})
				qb.Filter.Where(
					query.Eq("numberOfContacts", 0),
					query.Eq("numberOfExposures", 0),
				)
				return Fragment(qb), nil
			},
		},
		{
			ID:          CasesLessContacts,
			Entity:      EntityCases,
			Description: "Cases with fewer than x contacts",
			Resolve: func(_ context.Context, env Env, in Input) (Result, error) {
				qb := env.Scope(EntityCases, in, ScopeOptions{})
				qb.Filter.Where(query.Op("numberOfContacts", query.OpLessThan, in.XInt(defaultLessContacts)))
				return Fragment(qb), nil
			},
		},
		{
			ID:          CasesNotIdentifiedThroughContacts,
			Entity:      EntityCases,
			Description: "Cases that were never registered as contacts",
			Resolve: func(_ context.Context, env Env, in Input) (Result, error) {
				qb := env.Scope(EntityCases, in, ScopeOptions{})
				qb.Filter.Where(query.AnyOf(
					query.Eq("wasContact", false),
					query.Op("wasContact", query.OpExists, false),
				))
				return Fragment(qb), nil
			},
		},
		{
			ID:          CasesReportedPreviousDays,
			Entity:      EntityCases,
			Description: "Cases reported in the x days before the reference date",
			Resolve:     resolveCasesReportedPreviousDays,
		},
		metricPreset(CasesAmongContactsPreviousDays, EntityCases, MetricCasesAmongContacts, defaultPreviousDays,
			"Cases among known contacts in the x days before the reference date"),
		metricPreset(CasesInActiveTransmissionChains, EntityCases, MetricActiveChainCases, 0,
			"Cases in active transmission chains"),
		idsPreset(CasesByIDs, EntityCases, ParamCaseIDs, "Cases listed in caseIds"),
	}
}

func resolveCasesDeceased(_ context.Context, env Env, in Input) (Result, error) {
	qb := query.NewQueryBuilder()

	if in.Global.LocationID != "" {
		qb.Filter.Where(query.Eq(FieldCaseLocation, in.Global.LocationID))
	}
	if len(in.Global.ClassificationIDs) > 0 {
		qb.Filter.Where(query.Op(FieldClassification, query.OpIn, append([]string(nil), in.Global.ClassificationIDs...)))
	}
	qb.Filter.Where(
		query.Op("dateOfOutcome", query.OpLessOrEqual, globalfilter.EndOfDay(env.ReferenceDate(in))),
		query.Eq("outcomeId", OutcomeDeceased),
	)

	return Fragment(qb), nil
}

// activeDateRange matches cases with a date range of typeID covering the reference day.
// An open-ended range counts as still active.
func activeDateRange(typeID string) ResolverFunc {
	return func(_ context.Context, env Env, in Input) (Result, error) {
		ref := env.ReferenceDate(in)
		qb := env.Scope(EntityCases, in, ScopeOptions{})
		qb.Filter.Where(query.ElemMatchOf("dateRanges",
			query.Eq("typeId", typeID),
			query.Op("startDate", query.OpLessOrEqual, globalfilter.EndOfDay(ref)),
			query.AnyOf(
				query.Op("endDate", query.OpGreaterOrEqual, globalfilter.StartOfDay(ref)),
				query.Op("endDate", query.OpExists, false),
			),
		))
		return Fragment(qb), nil
	}
}

func resolveCasesPendingLabResult(_ context.Context, env Env, in Input) (Result, error) {
	qb := env.Scope(EntityCases, in, ScopeOptions{})
	qb.Merge(pendingLabResultFragment())
	return Fragment(qb), nil
}

func pendingLabResultFragment() *query.QueryBuilder {
	qb := query.NewQueryBuilder()
	qb.Include(relationLabResults, true)
	qb.AddChildQueryBuilder(relationLabResults).Filter.Where(query.Eq("status", LabResultInProgress))
	return qb
}

// residenceIn matches cases whose usual residence lies under one of locations
func residenceIn(locations ...string) query.Condition {
	return query.ElemMatchOf("addresses",
		query.Eq("typeId", AddressTypeResidence),
		query.Op("parentLocationIdFilter", query.OpIn, locations),
	)
}

func resolveCasesByLocation(_ context.Context, env Env, in Input) (Result, error) {
	qb := env.Scope(EntityCases, in, ScopeOptions{})
	if loc := locationParam(in); loc != "" {
		qb.Filter.Where(residenceIn(loc))
	}
	return Fragment(qb), nil
}

func resolveCasesByClassificationLocation(_ context.Context, env Env, in Input) (Result, error) {
	qb := env.Scope(EntityCases, in, ScopeOptions{})
	if classification := in.Param(ParamClassificationID); classification != "" {
		qb.Filter.Replace(query.Eq(FieldClassification, classification))
	}
	if loc := locationParam(in); loc != "" {
		qb.Filter.Where(residenceIn(loc))
	}
	return Fragment(qb), nil
}

func resolveCasesReportedPreviousDays(_ context.Context, env Env, in Input) (Result, error) {
	const field = "dateOfReporting"

	ref := env.ReferenceDate(in)
	qb := env.Scope(EntityCases, in, ScopeOptions{DateField: field})

	start := globalfilter.DaysBefore(ref, in.XInt(defaultPreviousDays))
	end := globalfilter.EndOfDay(ref)
	qb.Filter.Replace(query.DateRangeCondition(field, query.DateRange{Start: &start, End: &end}))

	return Fragment(qb), nil
}
