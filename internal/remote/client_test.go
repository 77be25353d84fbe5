package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracebase-eu/tracebase/internal/config"
	"github.com/tracebase-eu/tracebase/internal/preset"
	"github.com/tracebase-eu/tracebase/internal/query"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(config.RemoteConfig{
		BaseURL:    srv.URL + "/api",
		OutbreakID: "ob-1",
		Token:      "secret",
		Timeout:    5 * time.Second,
	})
	require.NoError(t, err)
	return c
}

func TestNew_InvalidBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
	}{
		{"empty", ""},
		{"no scheme", "localhost:3000"},
		{"ftp", "ftp://example.com"},
		{"unparsable", "http://[::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(config.RemoteConfig{BaseURL: tt.baseURL})
			assert.Error(t, err)
		})
	}
}

func TestClient_ResolveIDs(t *testing.T) {
	var gotBody map[string]interface{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/outbreaks/ob-1/metrics/contacts-not-seen", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		data, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(data, &gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ids":["c1","c2"]}`))
	})

	ids, err := c.ResolveIDs(context.Background(), preset.MetricContactsNotSeen, preset.MetricRequest{
		Days:   7,
		Date:   time.Date(2024, 3, 10, 23, 59, 59, int(999*time.Millisecond), time.UTC),
		Filter: map[string]interface{}{"and": []interface{}{map[string]interface{}{"addresses.parentLocationIdFilter": "L1"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, ids)

	assert.Equal(t, float64(7), gotBody["days"])
	assert.Equal(t, "2024-03-10T23:59:59.999Z", gotBody["date"])
	assert.Contains(t, gotBody, "filter")
}

func TestClient_ResolveIDs_EmptyResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	ids, err := c.ResolveIDs(context.Background(), preset.MetricContactsSeen, preset.MetricRequest{})
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestClient_List(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/outbreaks/ob-1/cases", r.URL.Path)
		assert.JSONEq(t, `{"where":{"and":[{"outcomeId":"X"}]},"limit":10}`, r.URL.Query().Get("filter"))
		_, _ = w.Write([]byte(`[{"id":"a"},{"id":"b"}]`))
	})

	qb := query.NewQueryBuilder().Limit(10)
	qb.Filter.Where(query.Eq("outcomeId", "X"))

	records, err := c.List(context.Background(), preset.EntityCases, qb)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[1]["id"])
}

func TestClient_Count(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/outbreaks/ob-1/contacts/count", r.URL.Path)
		assert.JSONEq(t, `{"and":[{"id":{"in":["c1"]}}]}`, r.URL.Query().Get("where"))
		_, _ = w.Write([]byte(`{"count":1}`))
	})

	qb := query.NewQueryBuilder()
	qb.Filter.Where(query.Op("id", query.OpIn, []string{"c1"}))

	n, err := c.Count(context.Background(), preset.EntityContacts, qb)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestClient_APIError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		wantCode    string
	}{
		{
			name:        "error envelope",
			status:      http.StatusUnprocessableEntity,
			body:        `{"error":{"message":"invalid filter","code":"INVALID_FILTER"}}`,
			wantMessage: "invalid filter",
			wantCode:    "INVALID_FILTER",
		},
		{
			name:        "flat error",
			status:      http.StatusForbidden,
			body:        `{"message":"access denied","code":"FORBIDDEN"}`,
			wantMessage: "access denied",
			wantCode:    "FORBIDDEN",
		},
		{
			name:        "plain text",
			status:      http.StatusBadGateway,
			body:        "upstream down\n",
			wantMessage: "upstream down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.ResolveIDs(context.Background(), preset.MetricContactsSeen, preset.MetricRequest{})
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
			assert.Equal(t, tt.wantCode, apiErr.Code)
		})
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ResolveIDs(ctx, preset.MetricContactsSeen, preset.MetricRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_ImplementsMetricService(t *testing.T) {
	var _ preset.MetricService = (*Client)(nil)
}
