package preset

import (
	"context"

	"github.com/tracebase-eu/tracebase/internal/globalfilter"
	"github.com/tracebase-eu/tracebase/internal/query"
)

// FollowUpLost is the final follow-up status of contacts lost to follow-up
const FollowUpLost = "LNG_REFERENCE_DATA_CONTACT_FINAL_FOLLOW_UP_STATUS_TYPE_LOST_TO_FOLLOW_UP"

const defaultNotSeenDays = 7

func contactDefinitions() []Definition {
	return []Definition{
		{
			ID:          ContactsFollowUpList,
			Entity:      EntityContacts,
			Description: "Contacts under follow-up on the reference date",
			Resolve: func(_ context.Context, env Env, in Input) (Result, error) {
				ref := env.ReferenceDate(in)
				qb := env.Scope(EntityContacts, in, ScopeOptions{})
				qb.Filter.Where(
					query.Op("followUp.startDate", query.OpLessOrEqual, globalfilter.EndOfDay(ref)),
					query.Op("followUp.endDate", query.OpGreaterOrEqual, globalfilter.StartOfDay(ref)),
				)
				return Fragment(qb), nil
			},
		},
		{
			ID:          ContactsLostToFollowUp,
			Entity:      EntityContacts,
			Description: "Contacts lost to follow-up",
			Resolve: func(_ context.Context, env Env, in Input) (Result, error) {
				qb := env.Scope(EntityContacts, in, ScopeOptions{})
				qb.Filter.Where(query.Eq("followUp.status", FollowUpLost))
				return Fragment(qb), nil
			},
		},
		metricPreset(ContactsNotSeen, EntityContacts, MetricContactsNotSeen, defaultNotSeenDays,
			"Contacts not seen in the x days before the reference date"),
		metricPreset(ContactsSeen, EntityContacts, MetricContactsSeen, 0,
			"Contacts seen on the reference date"),
		metricPreset(ContactsSuccessfulFollowUp, EntityContacts, MetricContactsSuccessfulFollowUp, 0,
			"Contacts with a successful follow-up on the reference date"),
		{
			ID:          ContactsBecomeCases,
			Entity:      EntityCases,
			Description: "Cases that were registered as contacts first",
			Resolve: func(_ context.Context, env Env, in Input) (Result, error) {
				qb := env.Scope(EntityCases, in, ScopeOptions{DateField: "dateBecomeCase"})
				qb.Filter.Replace(query.Eq("wasContact", true))
				return Fragment(qb), nil
			},
		},
		idsPreset(ContactsByIDs, EntityContacts, ParamContactIDs, "Contacts listed in contactIds"),
	}
}
