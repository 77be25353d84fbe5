package preset

import (
	"context"
	"time"
)

// Metric names a server-side computation that yields entity ids
type Metric string

const (
	MetricCasesAmongContacts         Metric = "cases-among-contacts"
	MetricActiveChainCases           Metric = "active-chain-cases"
	MetricContactsNotSeen            Metric = "contacts-not-seen"
	MetricContactsSeen               Metric = "contacts-seen"
	MetricContactsSuccessfulFollowUp Metric = "contacts-successful-follow-up"
)

// MetricRequest parameterizes a metric
type MetricRequest struct {
	Days   int                    `json:"days,omitempty"`
	Date   time.Time              `json:"date"`
	Filter map[string]interface{} `json:"filter,omitempty"`
}

// MetricService resolves a metric to the ids of the matching entities
type MetricService interface {
	ResolveIDs(ctx context.Context, metric Metric, req MetricRequest) ([]string, error)
}

// MetricServiceFunc adapts a function to MetricService
type MetricServiceFunc func(ctx context.Context, metric Metric, req MetricRequest) ([]string, error)

// ResolveIDs implements MetricService
func (f MetricServiceFunc) ResolveIDs(ctx context.Context, metric Metric, req MetricRequest) ([]string, error) {
	return f(ctx, metric, req)
}
