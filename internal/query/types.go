// Package query provides the filter composition engine: filter nodes, the Filter accumulator,
// the QueryBuilder and its wire serialization for the remote data service.
package query

// FilterOperator represents comparison operators
type FilterOperator string

const (
	OpEqual          FilterOperator = "eq"
	OpNotEqual       FilterOperator = "neq"
	OpGreaterThan    FilterOperator = "gt"
	OpGreaterOrEqual FilterOperator = "gte"
	OpLessThan       FilterOperator = "lt"
	OpLessOrEqual    FilterOperator = "lte"
	OpIn             FilterOperator = "in"
	OpNotIn          FilterOperator = "nin" // wire spelling of notIn
	OpExists         FilterOperator = "exists"
	OpRegex          FilterOperator = "regex" // options side channel carries flags
)

// IsValid reports whether op is one of the operators understood by the remote service.
func (op FilterOperator) IsValid() bool {
	switch op {
	case OpEqual, OpNotEqual, OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual,
		OpIn, OpNotIn, OpExists, OpRegex:
		return true
	}
	return false
}

// Combinator joins the children of a logical group
type Combinator string

const (
	And Combinator = "and"
	Or  Combinator = "or"
)

// Direction is a sort direction
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// OrderBy represents one sort criterion
type OrderBy struct {
	Field     string
	Direction Direction
}

// Options key used next to a regex operator
const regexOptionsKey = "options"

// CaseInsensitive is the regex option for case-insensitive matching
const CaseInsensitive = "i"
