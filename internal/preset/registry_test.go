package preset

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tracebase-eu/tracebase/internal/globalfilter"
	"github.com/tracebase-eu/tracebase/internal/observability"
	"github.com/tracebase-eu/tracebase/internal/query"
)

var fixedNow = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

type fakeMetrics struct {
	mu       sync.Mutex
	ids      []string
	err      error
	calls    int
	requests []MetricRequest
	metrics  []Metric
}

func (f *fakeMetrics) ResolveIDs(_ context.Context, metric Metric, req MetricRequest) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.metrics = append(f.metrics, metric)
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.ids, nil
}

func mustDecode(t *testing.T, payload interface{}) globalfilter.Context {
	t.Helper()
	ctx, err := globalfilter.Decode(payload)
	require.NoError(t, err)
	return ctx
}

func resolveSync(t *testing.T, r *Registry, in Input) *query.QueryBuilder {
	t.Helper()
	res, err := r.Resolve(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, KindSync, res.Kind())
	return res.Fragment()
}

func whereJSON(t *testing.T, qb *query.QueryBuilder) string {
	t.Helper()
	s, err := qb.Filter.GenerateConditionString()
	require.NoError(t, err)
	return s
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	def := Definition{
		ID:      "CUSTOM",
		Entity:  EntityCases,
		Resolve: func(context.Context, Env, Input) (Result, error) { return Clear(), nil },
	}

	require.NoError(t, r.Register(def))

	err := r.Register(def)
	assert.ErrorIs(t, err, ErrDuplicatePreset)

	assert.Error(t, r.Register(Definition{ID: "NO_RESOLVER"}))
	assert.Error(t, r.Register(Definition{Resolve: def.Resolve}))

	got, ok := r.Lookup("CUSTOM")
	require.True(t, ok)
	assert.Equal(t, EntityCases, got.Entity)
}

func TestRegistry_Describe(t *testing.T) {
	r := NewDefaultRegistry()
	descs := r.Describe()

	assert.Len(t, descs, 22)
	for i := 1; i < len(descs); i++ {
		assert.Less(t, descs[i-1].ID, descs[i].ID)
	}

	byID := make(map[ID]Descriptor, len(descs))
	for _, d := range descs {
		byID[d.ID] = d
		assert.NotEmpty(t, d.Description, d.ID)
	}
	assert.True(t, byID[ContactsNotSeen].Async)
	assert.False(t, byID[CasesDeceased].Async)
	assert.Equal(t, EntityCases, byID[ContactsBecomeCases].Entity)
}

func TestRegistry_UnknownPreset(t *testing.T) {
	r := NewDefaultRegistry()

	_, err := r.Resolve(context.Background(), Input{Preset: "CASES_DECESAED"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownPreset)
	assert.Contains(t, err.Error(), "CASES_DECESAED")
}

func TestRegistry_NavigationRefresh(t *testing.T) {
	r := NewDefaultRegistry()

	res, err := r.Resolve(context.Background(), Input{Preset: NavigationRefresh})
	require.NoError(t, err)
	assert.Equal(t, KindClear, res.Kind())
	assert.Nil(t, res.Fragment())

	qb, err := Await(context.Background(), res)
	require.NoError(t, err)
	assert.Nil(t, qb)
}

func TestCasesDeceased_EndToEnd(t *testing.T) {
	r := NewDefaultRegistry(WithClock(fixedClock))
	global := mustDecode(t, map[string]interface{}{
		"date":             "2024-03-10",
		"locationId":       "L1",
		"classificationId": []interface{}{"C1"},
	})

	qb := resolveSync(t, r, Input{Preset: CasesDeceased, Global: global})

	assert.JSONEq(t, `{"and":[
		{"addresses.parentLocationIdFilter":"L1"},
		{"classification":{"in":["C1"]}},
		{"dateOfOutcome":{"lte":"2024-03-10T23:59:59.999Z"}},
		{"outcomeId":"LNG_REFERENCE_DATA_CATEGORY_OUTCOME_DECEASED"}
	]}`, whereJSON(t, qb))

	where := qb.Filter.GenerateCondition()
	assert.True(t, query.Match(map[string]interface{}{
		"addresses":      []interface{}{map[string]interface{}{"parentLocationIdFilter": []interface{}{"L0", "L1"}}},
		"classification": "C1",
		"dateOfOutcome":  "2024-03-10T18:00:00.000Z",
		"outcomeId":      OutcomeDeceased,
	}, where))
	assert.False(t, query.Match(map[string]interface{}{
		"addresses":      []interface{}{map[string]interface{}{"parentLocationIdFilter": []interface{}{"L1"}}},
		"classification": "C1",
		"dateOfOutcome":  "2024-03-11T00:00:00.000Z",
		"outcomeId":      OutcomeDeceased,
	}, where))
}

func TestCasesByLocation_EndToEnd(t *testing.T) {
	r := NewDefaultRegistry(WithClock(fixedClock))

	qb := resolveSync(t, r, Input{
		Preset: CasesByLocation,
		Params: url.Values{ParamLocationID: {"L2"}},
		Global: globalfilter.Context{LocationID: "L3"},
	})

	assert.JSONEq(t, `{"and":[
		{"addresses.parentLocationIdFilter":"L3"},
		{"addresses":{"elemMatch":{
			"typeId":"LNG_REFERENCE_DATA_CATEGORY_ADDRESS_TYPE_USUAL_PLACE_OF_RESIDENCE",
			"parentLocationIdFilter":{"in":["L2"]}
		}}}
	]}`, whereJSON(t, qb))
}

func TestCasesByLocation_FallsBackToX(t *testing.T) {
	r := NewDefaultRegistry()

	qb := resolveSync(t, r, Input{Preset: CasesByLocation, X: "L7"})
	assert.True(t, qb.Filter.Has("addresses"))
	assert.Contains(t, whereJSON(t, qb), `"L7"`)
}

func TestTieBreak_PresetWinsOverGlobal(t *testing.T) {
	r := NewDefaultRegistry(WithClock(fixedClock))
	global := globalfilter.Context{LocationID: "L3", ClassificationIDs: []string{"C1", "C2"}}

	tests := []struct {
		name     string
		in       Input
		expected string
	}{
		{
			name: "reported previous days replaces the global date bound",
			in:   Input{Preset: CasesReportedPreviousDays, X: "3", Global: global},
			expected: `{"and":[
				{"addresses.parentLocationIdFilter":"L3"},
				{"classification":{"in":["C1","C2"]}},
				{"dateOfReporting":{"gte":"2024-03-12T00:00:00.000Z","lte":"2024-03-15T23:59:59.999Z"}}
			]}`,
		},
		{
			name: "classification param replaces the global classification",
			in: Input{
				Preset: CasesByClassificationLocation,
				Params: url.Values{ParamClassificationID: {"C9"}},
				Global: global,
			},
			expected: `{"and":[
				{"addresses.parentLocationIdFilter":"L3"},
				{"classification":"C9"}
			]}`,
		},
		{
			name: "event location param replaces the global location",
			in:   Input{Preset: EventsByLocation, X: "L5", Global: global},
			expected: `{"and":[
				{"address.parentLocationIdFilter":"L5"}
			]}`,
		},
		{
			name: "event without param keeps the global location",
			in:   Input{Preset: EventsByLocation, Global: global},
			expected: `{"and":[
				{"address.parentLocationIdFilter":"L3"}
			]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qb := resolveSync(t, r, tt.in)
			assert.JSONEq(t, tt.expected, whereJSON(t, qb))
		})
	}
}

func TestDirectPresets(t *testing.T) {
	r := NewDefaultRegistry(WithClock(fixedClock))

	tests := []struct {
		name     string
		in       Input
		expected string
	}{
		{
			name: "hospitalised",
			in:   Input{Preset: CasesHospitalised},
			expected: `{"and":[{"dateRanges":{"elemMatch":{
				"typeId":"LNG_REFERENCE_DATA_CATEGORY_PERSON_DATE_TYPE_HOSPITALIZATION",
				"startDate":{"lte":"2024-03-15T23:59:59.999Z"},
				"or":[{"endDate":{"gte":"2024-03-15T00:00:00.000Z"}},{"endDate":{"exists":false}}]
			}}}]}`,
		},
		{
			name:     "without relationships",
			in:       Input{Preset: CasesWithoutRelationships},
			expected: `{"and":[{"numberOfContacts":0},{"numberOfExposures":0}]}`,
		},
		{
			name:     "less contacts defaults x to 1",
			in:       Input{Preset: CasesLessContacts},
			expected: `{"and":[{"numberOfContacts":{"lt":1}}]}`,
		},
		{
			name:     "less contacts with x",
			in:       Input{Preset: CasesLessContacts, X: "4"},
			expected: `{"and":[{"numberOfContacts":{"lt":4}}]}`,
		},
		{
			name:     "not identified through contacts",
			in:       Input{Preset: CasesNotIdentifiedThroughContacts},
			expected: `{"and":[{"or":[{"wasContact":false},{"wasContact":{"exists":false}}]}]}`,
		},
		{
			name:     "reported previous days defaults x to 7",
			in:       Input{Preset: CasesReportedPreviousDays},
			expected: `{"and":[{"dateOfReporting":{"gte":"2024-03-08T00:00:00.000Z","lte":"2024-03-15T23:59:59.999Z"}}]}`,
		},
		{
			name:     "case ids",
			in:       Input{Preset: CasesByIDs, Params: url.Values{ParamCaseIDs: {"a,b"}}},
			expected: `{"and":[{"id":{"in":["a","b"]}}]}`,
		},
		{
			name:     "empty case ids match nothing",
			in:       Input{Preset: CasesByIDs},
			expected: `{"and":[{"id":{"in":[]}}]}`,
		},
		{
			name:     "contact ids as json array",
			in:       Input{Preset: ContactsByIDs, Params: url.Values{ParamContactIDs: {`["c1","c2"]`}}},
			expected: `{"and":[{"id":{"in":["c1","c2"]}}]}`,
		},
		{
			name: "follow-up list",
			in:   Input{Preset: ContactsFollowUpList},
			expected: `{"and":[
				{"followUp.startDate":{"lte":"2024-03-15T23:59:59.999Z"}},
				{"followUp.endDate":{"gte":"2024-03-15T00:00:00.000Z"}}
			]}`,
		},
		{
			name:     "lost to follow-up",
			in:       Input{Preset: ContactsLostToFollowUp},
			expected: `{"and":[{"followUp.status":"LNG_REFERENCE_DATA_CONTACT_FINAL_FOLLOW_UP_STATUS_TYPE_LOST_TO_FOLLOW_UP"}]}`,
		},
		{
			name:     "contacts become cases",
			in:       Input{Preset: ContactsBecomeCases},
			expected: `{"and":[{"dateBecomeCase":{"lte":"2024-03-15T23:59:59.999Z"}},{"wasContact":true}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qb := resolveSync(t, r, tt.in)
			assert.JSONEq(t, tt.expected, whereJSON(t, qb))
		})
	}
}

func TestCasesPendingLabResult(t *testing.T) {
	r := NewDefaultRegistry()

	qb := resolveSync(t, r, Input{Preset: CasesPendingLabResult, Global: globalfilter.Context{LocationID: "L1"}})

	s, err := qb.BuildQueryString()
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"where":{"and":[{"addresses.parentLocationIdFilter":"L1"}],
			"labResults":{"where":{"and":[{"status":"LNG_REFERENCE_DATA_CATEGORY_LAB_TEST_RESULT_STATUS_IN_PROGRESS"}]}}},
		"include":[{"relation":"labResults","scope":{"filterParent":true,
			"where":{"and":[{"status":"LNG_REFERENCE_DATA_CATEGORY_LAB_TEST_RESULT_STATUS_IN_PROGRESS"}]}}}]
	}`, s)
}

func TestAsyncPresets(t *testing.T) {
	fake := &fakeMetrics{ids: []string{"p1", "p2"}}
	r := NewDefaultRegistry(WithClock(fixedClock), WithMetricService(fake))

	res, err := r.Resolve(context.Background(), Input{
		Preset: ContactsNotSeen,
		Global: globalfilter.Context{LocationID: "L1"},
	})
	require.NoError(t, err)
	require.Equal(t, KindAsync, res.Kind())
	assert.Zero(t, fake.calls, "metric must not be called before the result is awaited")

	qb, err := Await(context.Background(), res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"and":[{"id":{"in":["p1","p2"]}}]}`, whereJSON(t, qb))

	require.Equal(t, 1, fake.calls)
	assert.Equal(t, MetricContactsNotSeen, fake.metrics[0])
	assert.Equal(t, 7, fake.requests[0].Days)
	assert.Equal(t, time.Date(2024, 3, 15, 23, 59, 59, int(999*time.Millisecond), time.UTC), fake.requests[0].Date)
	assert.Equal(t, "L1", fake.requests[0].Filter["and"].([]interface{})[0].(map[string]interface{})[FieldCaseLocation])
}

func TestAsyncPresets_Days(t *testing.T) {
	tests := []struct {
		preset ID
		x      string
		metric Metric
		days   int
	}{
		{CasesAmongContactsPreviousDays, "", MetricCasesAmongContacts, 7},
		{CasesAmongContactsPreviousDays, "14", MetricCasesAmongContacts, 14},
		{CasesInActiveTransmissionChains, "", MetricActiveChainCases, 0},
		{ContactsSeen, "", MetricContactsSeen, 0},
		{ContactsSuccessfulFollowUp, "", MetricContactsSuccessfulFollowUp, 0},
		{ContactsNotSeen, "2", MetricContactsNotSeen, 2},
	}

	for _, tt := range tests {
		t.Run(string(tt.preset)+"/"+tt.x, func(t *testing.T) {
			fake := &fakeMetrics{}
			r := NewDefaultRegistry(WithClock(fixedClock), WithMetricService(fake))

			res, err := r.Resolve(context.Background(), Input{Preset: tt.preset, X: tt.x})
			require.NoError(t, err)
			_, err = Await(context.Background(), res)
			require.NoError(t, err)

			require.Len(t, fake.requests, 1)
			assert.Equal(t, tt.metric, fake.metrics[0])
			assert.Equal(t, tt.days, fake.requests[0].Days)
		})
	}
}

func TestAsyncPresets_Failure(t *testing.T) {
	upstream := errors.New("upstream unavailable")
	r := NewDefaultRegistry(WithMetricService(&fakeMetrics{err: upstream}))

	res, err := r.Resolve(context.Background(), Input{Preset: ContactsSeen})
	require.NoError(t, err)

	qb, err := Await(context.Background(), res)
	assert.Nil(t, qb)
	assert.ErrorIs(t, err, upstream)
}

func TestAsyncPresets_RecordsResolvedEvent(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	r := NewDefaultRegistry(
		WithTracer(tp.Tracer("test")),
		WithMetricService(&fakeMetrics{ids: []string{"p1", "p2"}}),
	)

	res, err := r.Resolve(context.Background(), Input{Preset: ContactsSeen})
	require.NoError(t, err)
	_, err = Await(context.Background(), res)
	require.NoError(t, err)

	var events []sdktrace.Event
	for _, span := range recorder.Ended() {
		if span.Name() == string(ContactsSeen)+".async" {
			events = span.Events()
		}
	}
	require.Len(t, events, 1)
	assert.Equal(t, "metric.resolved", events[0].Name)
	assert.Contains(t, events[0].Attributes, attribute.Int("ids", 2))
}

func TestAsyncPresets_NoMetricService(t *testing.T) {
	r := NewDefaultRegistry()

	_, err := r.Resolve(context.Background(), Input{Preset: ContactsSeen})
	assert.ErrorIs(t, err, ErrNoMetricService)
}

func TestRegistry_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetricsWithRegistry(reg, reg)
	r := NewDefaultRegistry(WithMetrics(m), WithMetricService(&fakeMetrics{ids: []string{"x"}}))

	_ = resolveSync(t, r, Input{Preset: CasesDeceased})

	res, err := r.Resolve(context.Background(), Input{Preset: ContactsSeen})
	require.NoError(t, err)
	_, err = Await(context.Background(), res)
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "tracebase_preset_resolutions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCustomScopeFactory(t *testing.T) {
	var gotEntity Entity
	factory := scopeFunc(func(entity Entity, _ globalfilter.Context, _ ScopeOptions) *query.QueryBuilder {
		gotEntity = entity
		qb := query.NewQueryBuilder()
		qb.Filter.Where(query.Eq("deleted", false))
		return qb
	})
	r := NewDefaultRegistry(WithScopeFactory(factory))

	qb := resolveSync(t, r, Input{Preset: ContactsLostToFollowUp})
	assert.Equal(t, EntityContacts, gotEntity)
	assert.True(t, qb.Filter.Has("deleted"))
	assert.True(t, qb.Filter.Has("followUp.status"))
}

type scopeFunc func(Entity, globalfilter.Context, ScopeOptions) *query.QueryBuilder

func (f scopeFunc) Scope(entity Entity, global globalfilter.Context, opts ScopeOptions) *query.QueryBuilder {
	return f(entity, global, opts)
}
