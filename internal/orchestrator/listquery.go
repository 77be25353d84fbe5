package orchestrator

import (
	"sync"

	"github.com/tracebase-eu/tracebase/internal/query"
)

// ListQuery is the primary query of a list view: a base builder owned by the
// view (entity defaults, page filters) plus the fragment applied by the last
// preset cycle. The orchestrator and the view may touch it from different goroutines.
type ListQuery struct {
	mu      sync.Mutex
	base    *query.QueryBuilder
	applied *query.QueryBuilder
}

// NewListQuery creates a list query over base. A nil base starts empty.
func NewListQuery(base *query.QueryBuilder) *ListQuery {
	if base == nil {
		base = query.NewQueryBuilder()
	}
	return &ListQuery{base: base}
}

// UpdateBase runs fn against the base builder under the lock
func (l *ListQuery) UpdateBase(fn func(qb *query.QueryBuilder)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.base)
}

// Apply replaces the applied fragment. nil clears it.
func (l *ListQuery) Apply(fragment *query.QueryBuilder) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if fragment == nil {
		l.applied = nil
		return
	}
	l.applied = fragment.Clone()
}

// Applied returns a copy of the applied fragment, nil when none
func (l *ListQuery) Applied() *query.QueryBuilder {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.applied == nil {
		return nil
	}
	return l.applied.Clone()
}

// Build returns the base merged with the applied fragment. Neither is modified.
func (l *ListQuery) Build() *query.QueryBuilder {
	l.mu.Lock()
	defer l.mu.Unlock()
	qb := l.base.Clone()
	if l.applied != nil {
		qb.Merge(l.applied)
	}
	return qb
}
