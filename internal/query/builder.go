package query

import (
	"fmt"
)

// QueryBuilder composes a Filter with sort order, pagination, projection,
// relation includes and child builders scoped to related collections.
// It is built per list view or preset resolution, merged, serialized once
// per refresh and then discarded.
type QueryBuilder struct {
	// Filter is owned by the builder and mutated directly by callers. A zero
	// value builder allocates it on first use by a builder method.
	Filter *Filter

	order    []OrderBy
	limit    *int
	skip     *int
	fields   []string // nil means all fields
	includes []include

	childOrder []string
	children   map[string]*QueryBuilder
}

type include struct {
	relation string
	required bool
}

// NewQueryBuilder creates an empty builder
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{
		Filter:   NewFilter(),
		children: make(map[string]*QueryBuilder),
	}
}

// filter returns the builder's Filter, allocating it for a zero value builder
func (qb *QueryBuilder) filter() *Filter {
	if qb.Filter == nil {
		qb.Filter = NewFilter()
	}
	return qb.Filter
}

// Sort appends a sort criterion. A later criterion on the same field replaces the earlier one.
func (qb *QueryBuilder) Sort(field string, dir Direction) *QueryBuilder {
	for i, o := range qb.order {
		if o.Field == field {
			qb.order[i].Direction = dir
			return qb
		}
	}
	qb.order = append(qb.order, OrderBy{Field: field, Direction: dir})
	return qb
}

// ClearSort removes all sort criteria
func (qb *QueryBuilder) ClearSort() *QueryBuilder {
	qb.order = nil
	return qb
}

// Limit sets the page size
func (qb *QueryBuilder) Limit(limit int) *QueryBuilder {
	qb.limit = &limit
	return qb
}

// Skip sets the page offset
func (qb *QueryBuilder) Skip(skip int) *QueryBuilder {
	qb.skip = &skip
	return qb
}

// Paginate sets limit and skip from a one-based page number
func (qb *QueryBuilder) Paginate(page, size int) *QueryBuilder {
	if page < 1 {
		page = 1
	}
	return qb.Limit(size).Skip((page - 1) * size)
}

// Fields sets the projection. Without it all fields are returned.
func (qb *QueryBuilder) Fields(names ...string) *QueryBuilder {
	qb.fields = append([]string{}, names...)
	return qb
}

// Include requests the resolved data of a relation. When required is set,
// parent records without a matching related record are filtered out.
func (qb *QueryBuilder) Include(relation string, required bool) *QueryBuilder {
	for i, inc := range qb.includes {
		if inc.relation == relation {
			qb.includes[i].required = required
			return qb
		}
	}
	qb.includes = append(qb.includes, include{relation: relation, required: required})
	return qb
}

// AddChildQueryBuilder returns the child builder for relation, creating it when absent
func (qb *QueryBuilder) AddChildQueryBuilder(relation string) *QueryBuilder {
	if qb.children == nil {
		qb.children = make(map[string]*QueryBuilder)
	}
	if child, ok := qb.children[relation]; ok {
		return child
	}
	child := NewQueryBuilder()
	qb.children[relation] = child
	qb.childOrder = append(qb.childOrder, relation)
	return child
}

// Child returns the child builder for relation if one exists
func (qb *QueryBuilder) Child(relation string) (*QueryBuilder, bool) {
	child, ok := qb.children[relation]
	return child, ok
}

// RemoveChild drops the child builder for relation
func (qb *QueryBuilder) RemoveChild(relation string) *QueryBuilder {
	if _, ok := qb.children[relation]; !ok {
		return qb
	}
	delete(qb.children, relation)
	for i, name := range qb.childOrder {
		if name == relation {
			qb.childOrder = append(qb.childOrder[:i], qb.childOrder[i+1:]...)
			break
		}
	}
	return qb
}

// IsEmpty reports whether no constraint has been added anywhere in the tree.
// Sort, pagination, projection and includes are not constraints.
func (qb *QueryBuilder) IsEmpty() bool {
	if !qb.filter().IsEmpty() {
		return false
	}
	for _, child := range qb.children {
		if !child.IsEmpty() {
			return false
		}
	}
	return true
}

// Merge deep-merges other into qb. Conditions are AND-ed, sort, pagination
// and projection from other win when set, children merge by relation.
func (qb *QueryBuilder) Merge(other *QueryBuilder) *QueryBuilder {
	if other == nil || other == qb {
		return qb
	}

	if other.Filter != nil {
		qb.filter().Merge(other.Filter)
	}

	if len(other.order) > 0 {
		qb.order = append([]OrderBy(nil), other.order...)
	}
	if other.limit != nil {
		qb.Limit(*other.limit)
	}
	if other.skip != nil {
		qb.Skip(*other.skip)
	}
	if other.fields != nil {
		qb.Fields(other.fields...)
	}
	for _, inc := range other.includes {
		qb.Include(inc.relation, inc.required)
	}
	for _, relation := range other.childOrder {
		qb.AddChildQueryBuilder(relation).Merge(other.children[relation])
	}
	return qb
}

// Clone returns a deep copy
func (qb *QueryBuilder) Clone() *QueryBuilder {
	out := &QueryBuilder{
		Filter:     qb.filter().Clone(),
		order:      append([]OrderBy(nil), qb.order...),
		includes:   append([]include(nil), qb.includes...),
		childOrder: append([]string(nil), qb.childOrder...),
		children:   make(map[string]*QueryBuilder, len(qb.children)),
	}
	if qb.limit != nil {
		out.Limit(*qb.limit)
	}
	if qb.skip != nil {
		out.Skip(*qb.skip)
	}
	if qb.fields != nil {
		out.fields = append([]string{}, qb.fields...)
	}
	for relation, child := range qb.children {
		out.children[relation] = child.Clone()
	}
	return out
}

// BuildQuery serializes the builder to the wire format consumed by the remote
// service: where, order, limit, skip, fields and include. Each non-empty child
// builder is nested under its relation key inside where and mirrored into the
// scope of the matching include.
func (qb *QueryBuilder) BuildQuery() map[string]interface{} {
	query := make(map[string]interface{})

	where := qb.filter().GenerateCondition()
	childQueries := make(map[string]map[string]interface{}, len(qb.children))
	for _, relation := range qb.childOrder {
		child := qb.children[relation]
		if child.IsEmpty() {
			continue
		}
		built := child.BuildQuery()
		childQueries[relation] = built
		where[relation] = built
	}
	if len(where) > 0 {
		query["where"] = where
	}

	if len(qb.order) > 0 {
		order := make([]string, 0, len(qb.order))
		for _, o := range qb.order {
			dir := o.Direction
			if dir == "" {
				dir = Asc
			}
			order = append(order, fmt.Sprintf("%s %s", o.Field, dir))
		}
		query["order"] = order
	}

	if qb.limit != nil {
		query["limit"] = *qb.limit
	}
	if qb.skip != nil {
		query["skip"] = *qb.skip
	}

	if qb.fields != nil {
		fields := make(map[string]interface{}, len(qb.fields))
		for _, name := range qb.fields {
			fields[name] = true
		}
		query["fields"] = fields
	}

	if len(qb.includes) > 0 {
		includes := make([]interface{}, 0, len(qb.includes))
		for _, inc := range qb.includes {
			scope := map[string]interface{}{"filterParent": inc.required}
			if built, ok := childQueries[inc.relation]; ok {
				if childWhere, ok := built["where"]; ok {
					scope["where"] = childWhere
				}
			}
			includes = append(includes, map[string]interface{}{
				"relation": inc.relation,
				"scope":    scope,
			})
		}
		query["include"] = includes
	}

	return query
}

// BuildQueryString serializes BuildQuery as JSON, ready for a filter query parameter
func (qb *QueryBuilder) BuildQueryString() (string, error) {
	return marshalString(qb.BuildQuery())
}
