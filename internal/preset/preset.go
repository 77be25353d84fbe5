// Package preset resolves named analytic presets into query fragments.
//
// A preset resolves synchronously to a fragment, asynchronously through a
// metric round-trip that yields entity ids, or to Clear which drops any
// previously applied fragment and only asks for a refresh.
package preset

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/tracebase-eu/tracebase/internal/globalfilter"
	"github.com/tracebase-eu/tracebase/internal/query"
)

var (
	// ErrUnknownPreset is returned when no resolver is registered for a preset id
	ErrUnknownPreset = errors.New("unknown preset")
	// ErrDuplicatePreset is returned when registering an id twice
	ErrDuplicatePreset = errors.New("preset already registered")
	// ErrNoMetricService is returned by async presets when no metric service is configured
	ErrNoMetricService = errors.New("no metric service configured")
)

// ID identifies a preset, as carried by the applyListFilter navigation parameter
type ID string

// Built-in preset ids
const (
	CasesDeceased                     ID = "CASES_DECEASED"
	CasesHospitalised                 ID = "CASES_HOSPITALISED"
	CasesIsolated                     ID = "CASES_ISOLATED"
	CasesPendingLabResult             ID = "CASES_PENDING_LAB_RESULT"
	CasesByLocation                   ID = "CASES_BY_LOCATION"
	CasesByClassificationLocation     ID = "CASES_BY_CLASSIFICATION_LOCATION"
	CasesWithoutRelationships         ID = "CASES_WITHOUT_RELATIONSHIPS"
	CasesLessContacts                 ID = "CASES_LESS_CONTACTS"
	CasesNotIdentifiedThroughContacts ID = "CASES_NOT_IDENTIFIED_THROUGH_CONTACTS"
	CasesReportedPreviousDays         ID = "CASES_REPORTED_PREVIOUS_DAYS"
	CasesAmongContactsPreviousDays    ID = "CASES_AMONG_CONTACTS_PREVIOUS_DAYS"
	CasesInActiveTransmissionChains   ID = "CASES_IN_ACTIVE_TRANSMISSION_CHAINS"
	CasesByIDs                        ID = "CASES_BY_IDS"
	ContactsFollowUpList              ID = "CONTACTS_FOLLOWUP_LIST"
	ContactsLostToFollowUp            ID = "CONTACTS_LOST_TO_FOLLOW_UP"
	ContactsNotSeen                   ID = "CONTACTS_NOT_SEEN"
	ContactsSeen                      ID = "CONTACTS_SEEN"
	ContactsSuccessfulFollowUp        ID = "CONTACTS_SUCCESSFUL_FOLLOW_UP"
	ContactsBecomeCases               ID = "CONTACTS_BECOME_CASES"
	ContactsByIDs                     ID = "CONTACTS_BY_IDS"
	EventsByLocation                  ID = "EVENTS_BY_LOCATION"
	NavigationRefresh                 ID = "NAVIGATION_REFRESH"
)

// Entity is the list a preset applies to
type Entity string

const (
	EntityCases    Entity = "cases"
	EntityContacts Entity = "contacts"
	EntityEvents   Entity = "events"
	// EntityAny marks presets that apply to whatever list is showing
	EntityAny Entity = ""
)

// Kind tells how a Result delivers its fragment
type Kind int

const (
	KindSync Kind = iota
	KindAsync
	KindClear
)

func (k Kind) String() string {
	switch k {
	case KindSync:
		return "sync"
	case KindAsync:
		return "async"
	case KindClear:
		return "clear"
	}
	return "unknown"
}

// AsyncFunc completes an asynchronous resolution
type AsyncFunc func(ctx context.Context) (*query.QueryBuilder, error)

// Result is exactly one of a sync fragment, an async resolution or Clear
type Result struct {
	kind     Kind
	fragment *query.QueryBuilder
	async    AsyncFunc
}

// Fragment wraps a synchronously built fragment
func Fragment(qb *query.QueryBuilder) Result {
	if qb == nil {
		qb = query.NewQueryBuilder()
	}
	return Result{kind: KindSync, fragment: qb}
}

// Async wraps a resolution that completes later
func Async(fn AsyncFunc) Result {
	return Result{kind: KindAsync, async: fn}
}

// Clear returns the result that drops the applied fragment and only refreshes
func Clear() Result {
	return Result{kind: KindClear}
}

// Kind returns the delivery kind
func (r Result) Kind() Kind {
	return r.kind
}

// Fragment returns the sync fragment, nil for async and clear results
func (r Result) Fragment() *query.QueryBuilder {
	return r.fragment
}

// Await resolves r synchronously. Clear yields a nil fragment.
func Await(ctx context.Context, r Result) (*query.QueryBuilder, error) {
	switch r.kind {
	case KindSync:
		return r.fragment, nil
	case KindAsync:
		if r.async == nil {
			return nil, errors.New("async result without resolver")
		}
		return r.async(ctx)
	}
	return nil, nil
}

// Input is everything a resolver may read
type Input struct {
	Preset ID
	X      string
	Params url.Values
	Global globalfilter.Context
}

// InputFromNavigation builds an Input from decoded navigation state
func InputFromNavigation(nav globalfilter.NavigationState, global globalfilter.Context) Input {
	return Input{
		Preset: ID(nav.Preset),
		X:      nav.X,
		Params: nav.Params,
		Global: global,
	}
}

func (in Input) nav() globalfilter.NavigationState {
	return globalfilter.NavigationState{Preset: string(in.Preset), X: in.X, Params: in.Params}
}

// XInt returns the extra parameter as an integer, or def
func (in Input) XInt(def int) int {
	return in.nav().XInt(def)
}

// Param returns the first value of a navigation parameter
func (in Input) Param(key string) string {
	return in.nav().Param(key)
}

// ParamList returns a list-typed navigation parameter
func (in Input) ParamList(key string) []string {
	return in.nav().ParamList(key)
}

// Env carries the collaborators a resolver may use. Now is fixed for one resolution.
type Env struct {
	Scopes  GlobalQueryFactory
	Metrics MetricService
	Now     time.Time
}

// ReferenceDate is the global filter date, or today
func (e Env) ReferenceDate(in Input) time.Time {
	return in.Global.ReferenceDate(e.Now)
}

// Scope returns the global scope fragment for entity
func (e Env) Scope(entity Entity, in Input, opts ScopeOptions) *query.QueryBuilder {
	if opts.Now.IsZero() {
		opts.Now = e.Now
	}
	scopes := e.Scopes
	if scopes == nil {
		scopes = DefaultScope{}
	}
	return scopes.Scope(entity, in.Global, opts)
}

// ResolverFunc resolves one preset
type ResolverFunc func(ctx context.Context, env Env, in Input) (Result, error)

// Definition describes a registered preset
type Definition struct {
	ID          ID
	Entity      Entity
	Async       bool
	Description string
	Resolve     ResolverFunc
}

// Descriptor is the listing form of a Definition
type Descriptor struct {
	ID          ID     `json:"id" yaml:"id"`
	Entity      Entity `json:"entity" yaml:"entity"`
	Async       bool   `json:"async" yaml:"async"`
	Description string `json:"description" yaml:"description"`
}
