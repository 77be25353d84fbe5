package query

import (
	"strings"
	"time"
)

// Mode controls how the accumulated conditions are grouped on serialization
type Mode int

const (
	// Nested wraps all conditions in a top-level {"and": [...]}
	Nested Mode = iota
	// FirstLevel merges conditions into a single object without the outer "and"
	FirstLevel
)

// DateRange bounds a date field. A nil side puts no constraint on that side.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

// Filter accumulates filter nodes keyed by field path plus an ordered list of
// top-level groups. All entries are AND-ed together.
type Filter struct {
	fields  []string // insertion order of byField
	byField map[string]Node
	groups  []Node
	mode    Mode
}

// NewFilter creates an empty filter
func NewFilter() *Filter {
	return &Filter{byField: make(map[string]Node)}
}

// Where merges conditions into the filter. A condition for a field path that
// already holds one is AND-ed with it, never dropped.
func (f *Filter) Where(conds ...Condition) *Filter {
	return f.where(conds, false)
}

// Replace inserts conditions, discarding whatever was stored before for each
// field path present in conds.
func (f *Filter) Replace(conds ...Condition) *Filter {
	return f.where(conds, true)
}

// WhereMap parses the loose map shape and merges (replace=false) or replaces it
func (f *Filter) WhereMap(conditions map[string]interface{}, replace bool) *Filter {
	return f.where(ParseConditions(conditions), replace)
}

func (f *Filter) where(conds []Condition, replace bool) *Filter {
	for _, c := range conds {
		if c == nil {
			continue
		}
		if field := fieldOf(c); field != "" {
			f.addNode(field, c.toNode(), replace)
			continue
		}
		f.groups = append(f.groups, c.toNode())
	}
	return f
}

func (f *Filter) addNode(field string, node Node, replace bool) {
	if f.byField == nil {
		f.byField = make(map[string]Node)
	}
	existing, ok := f.byField[field]
	if !ok {
		f.fields = append(f.fields, field)
		f.byField[field] = node
		return
	}
	if replace {
		f.byField[field] = node
		return
	}
	f.byField[field] = NewAnd(existing, node)
}

// ByDateRange constrains field to [Start, End]. Bounds are used as given.
func (f *Filter) ByDateRange(field string, r DateRange) *Filter {
	if c := DateRangeCondition(field, r); c != nil {
		f.Where(c)
	}
	return f
}

// DateRangeCondition returns the condition for a date range, or nil when both sides are open
func DateRangeCondition(field string, r DateRange) Condition {
	var conds []Condition
	if r.Start != nil {
		conds = append(conds, Op(field, OpGreaterOrEqual, *r.Start))
	}
	if r.End != nil {
		conds = append(conds, Op(field, OpLessOrEqual, *r.End))
	}
	switch len(conds) {
	case 0:
		return nil
	case 1:
		return conds[0]
	}
	return fieldOperators{Field: field, Conditions: conds}
}

// ByRange constrains a numeric field; nil bounds are open
func (f *Filter) ByRange(field string, from, to interface{}) *Filter {
	var conds []Condition
	if from != nil {
		conds = append(conds, Op(field, OpGreaterOrEqual, from))
	}
	if to != nil {
		conds = append(conds, Op(field, OpLessOrEqual, to))
	}
	switch len(conds) {
	case 0:
		return f
	case 1:
		return f.Where(conds[0])
	}
	return f.Where(fieldOperators{Field: field, Conditions: conds})
}

// ByBoolean is sugar for Where(Eq(field, value))
func (f *Filter) ByBoolean(field string, value bool) *Filter {
	return f.Where(Eq(field, value))
}

// BySelect replaces the condition on field with an in (included) or nin
// (excluded) over values. With no values the extra condition, when given, is
// applied on its own; with neither, the filter is left untouched.
func (f *Filter) BySelect(field string, values []string, included bool, extra Condition) *Filter {
	if len(values) == 0 {
		if extra != nil {
			f.Replace(extra)
		}
		return f
	}
	op := OpIn
	if !included {
		op = OpNotIn
	}
	return f.Replace(Op(field, op, append([]string(nil), values...)))
}

// ByText replaces the condition on field with a case-insensitive "contains"
// regex over the escaped text. Empty text removes the condition.
func (f *Filter) ByText(field, text string) *Filter {
	text = strings.TrimSpace(text)
	if text == "" {
		return f.Remove(field)
	}
	return f.Replace(FieldOperator{
		Field:    field,
		Operator: OpRegex,
		Value:    EscapeStringForRegex(text),
		Options:  CaseInsensitive,
	})
}

// ByPhoneNumber replaces the condition on field with a separator-tolerant
// phone pattern. Input without digits leaves the filter untouched.
func (f *Filter) ByPhoneNumber(field, value string) *Filter {
	pattern, ok := PhoneNumberPattern(value)
	if !ok {
		return f
	}
	return f.Replace(Op(field, OpRegex, pattern))
}

// ByNotHavingValue requires field to be absent
func (f *Filter) ByNotHavingValue(field string) *Filter {
	return f.Replace(Op(field, OpExists, false))
}

// Has reports whether any condition touches field
func (f *Filter) Has(field string) bool {
	for key, node := range f.byField {
		if pathTouches(key, field) || node.touches(field) {
			return true
		}
	}
	for _, g := range f.groups {
		if g.touches(field) {
			return true
		}
	}
	return false
}

// Remove drops the condition stored for field
func (f *Filter) Remove(field string) *Filter {
	if _, ok := f.byField[field]; !ok {
		return f
	}
	delete(f.byField, field)
	for i, key := range f.fields {
		if key == field {
			f.fields = append(f.fields[:i], f.fields[i+1:]...)
			break
		}
	}
	return f
}

// Clear removes every condition. The mode is kept.
func (f *Filter) Clear() *Filter {
	f.fields = nil
	f.byField = make(map[string]Node)
	f.groups = nil
	return f
}

// FirstLevelConditions switches serialization to FirstLevel mode
func (f *Filter) FirstLevelConditions() *Filter {
	f.mode = FirstLevel
	return f
}

// Mode returns the serialization mode
func (f *Filter) Mode() Mode {
	return f.mode
}

// IsEmpty reports whether the filter holds no conditions
func (f *Filter) IsEmpty() bool {
	return len(f.byField) == 0 && len(f.groups) == 0
}

// Node returns the condition stored for field
func (f *Filter) Node(field string) (Node, bool) {
	n, ok := f.byField[field]
	return n, ok
}

// Groups returns the top-level groups in insertion order
func (f *Filter) Groups() []Node {
	return append([]Node(nil), f.groups...)
}

// Fields returns the field paths holding conditions, in insertion order
func (f *Filter) Fields() []string {
	return append([]string(nil), f.fields...)
}

// Merge adds other's conditions to f with Where semantics
func (f *Filter) Merge(other *Filter) *Filter {
	if other == nil {
		return f
	}
	for _, field := range other.fields {
		f.addNode(field, other.byField[field].clone(), false)
	}
	for _, g := range other.groups {
		f.groups = append(f.groups, g.clone())
	}
	return f
}

// Clone returns a deep copy
func (f *Filter) Clone() *Filter {
	out := &Filter{
		fields:  append([]string(nil), f.fields...),
		byField: make(map[string]Node, len(f.byField)),
		groups:  make([]Node, 0, len(f.groups)),
		mode:    f.mode,
	}
	for key, node := range f.byField {
		out.byField[key] = node.clone()
	}
	for _, g := range f.groups {
		out.groups = append(out.groups, g.clone())
	}
	return out
}

// GenerateCondition serializes the filter to the structured wire where clause
func (f *Filter) GenerateCondition() map[string]interface{} {
	conds := make([]interface{}, 0, len(f.fields)+len(f.groups))
	for _, field := range f.fields {
		conds = append(conds, renderNode(f.byField[field]))
	}
	for _, g := range f.groups {
		conds = append(conds, renderNode(g))
	}

	if len(conds) == 0 {
		return map[string]interface{}{}
	}
	if f.mode == FirstLevel {
		return flattenConditions(conds)
	}
	return map[string]interface{}{string(And): conds}
}

// GenerateConditionString serializes the where clause as a ready-to-embed JSON string
func (f *Filter) GenerateConditionString() (string, error) {
	return marshalString(f.GenerateCondition())
}
