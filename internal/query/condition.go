package query

import (
	"sort"
	"strings"
)

// Condition is the parsed form of caller input to Filter.Where.
// Implementations: FieldEquals, FieldOperator, GroupAnd, GroupOr, ElemMatchCondition, RawCondition.
type Condition interface {
	toNode() Node
}

// FieldEquals is {field: value}
type FieldEquals struct {
	Field string
	Value interface{}
}

// FieldOperator is {field: {operator: value}}
type FieldOperator struct {
	Field    string
	Operator FilterOperator
	Value    interface{}
	Options  string
}

// GroupAnd is {and: [...]}
type GroupAnd struct {
	Conditions []Condition
}

// GroupOr is {or: [...]}
type GroupOr struct {
	Conditions []Condition
}

// ElemMatchCondition is {field: {elemMatch: {...}}}
type ElemMatchCondition struct {
	Field      string
	Conditions []Condition
}

// RawCondition carries input whose shape was not recognised
type RawCondition struct {
	Value interface{}
}

func (c FieldEquals) toNode() Node {
	return Comparison{Field: c.Field, Operator: OpEqual, Value: c.Value}
}

func (c FieldOperator) toNode() Node {
	return Comparison{Field: c.Field, Operator: c.Operator, Value: c.Value, Options: c.Options}
}

func (c GroupAnd) toNode() Node { return Group{Combinator: And, Children: toNodes(c.Conditions)} }

func (c GroupOr) toNode() Node { return Group{Combinator: Or, Children: toNodes(c.Conditions)} }

func (c ElemMatchCondition) toNode() Node {
	var sub Node
	switch nodes := toNodes(c.Conditions); len(nodes) {
	case 0:
		sub = Group{Combinator: And}
	case 1:
		sub = nodes[0]
	default:
		sub = Group{Combinator: And, Children: nodes}
	}
	return ElemMatch{Field: c.Field, Sub: sub}
}

func (c RawCondition) toNode() Node { return Raw{Value: c.Value} }

func toNodes(conds []Condition) []Node {
	nodes := make([]Node, 0, len(conds))
	for _, c := range conds {
		if c == nil {
			continue
		}
		nodes = append(nodes, c.toNode())
	}
	return nodes
}

// fieldOf returns the field path a condition is keyed under, or "" for groups and raw input
func fieldOf(c Condition) string {
	switch v := c.(type) {
	case FieldEquals:
		return v.Field
	case FieldOperator:
		return v.Field
	case ElemMatchCondition:
		return v.Field
	case fieldOperators:
		return v.Field
	}
	return ""
}

// Eq is shorthand for FieldEquals
func Eq(field string, value interface{}) Condition { return FieldEquals{Field: field, Value: value} }

// Op is shorthand for FieldOperator
func Op(field string, op FilterOperator, value interface{}) Condition {
	return FieldOperator{Field: field, Operator: op, Value: value}
}

// AllOf is shorthand for GroupAnd
func AllOf(conds ...Condition) Condition { return GroupAnd{Conditions: conds} }

// AnyOf is shorthand for GroupOr
func AnyOf(conds ...Condition) Condition { return GroupOr{Conditions: conds} }

// ElemMatchOf is shorthand for ElemMatchCondition
func ElemMatchOf(field string, conds ...Condition) Condition {
	return ElemMatchCondition{Field: field, Conditions: conds}
}

// ParseConditions converts the loose map shape ({field: value}, {field: {op: value}},
// {and: [...]}, {or: [...]}) into conditions. Keys are visited in sorted order so
// the result is deterministic. Shapes that cannot be recognised become RawCondition.
func ParseConditions(m map[string]interface{}) []Condition {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]Condition, 0, len(keys))
	for _, key := range keys {
		conds = append(conds, parseEntry(key, m[key]))
	}
	return conds
}

func parseEntry(key string, value interface{}) Condition {
	switch strings.ToLower(key) {
	case string(And), string(Or):
		list, ok := value.([]interface{})
		if !ok {
			return RawCondition{Value: map[string]interface{}{key: value}}
		}
		children := make([]Condition, 0, len(list))
		for _, item := range list {
			sub, ok := item.(map[string]interface{})
			if !ok {
				children = append(children, RawCondition{Value: item})
				continue
			}
			parsed := ParseConditions(sub)
			if len(parsed) == 1 {
				children = append(children, parsed[0])
			} else {
				children = append(children, GroupAnd{Conditions: parsed})
			}
		}
		if strings.ToLower(key) == string(Or) {
			return GroupOr{Conditions: children}
		}
		return GroupAnd{Conditions: children}
	}

	ops, ok := value.(map[string]interface{})
	if !ok {
		return FieldEquals{Field: key, Value: value}
	}

	if sub, ok := ops["elemMatch"]; ok && len(ops) == 1 {
		subMap, ok := sub.(map[string]interface{})
		if !ok {
			return RawCondition{Value: map[string]interface{}{key: value}}
		}
		return ElemMatchCondition{Field: key, Conditions: ParseConditions(subMap)}
	}

	options, _ := ops[regexOptionsKey].(string)
	var parsed []Condition
	for _, opName := range sortedKeys(ops) {
		if opName == regexOptionsKey {
			continue
		}
		op := FilterOperator(opName)
		if !op.IsValid() {
			return RawCondition{Value: map[string]interface{}{key: value}}
		}
		fo := FieldOperator{Field: key, Operator: op, Value: ops[opName]}
		if op == OpRegex {
			fo.Options = options
		}
		parsed = append(parsed, fo)
	}

	switch len(parsed) {
	case 0:
		return RawCondition{Value: map[string]interface{}{key: value}}
	case 1:
		return parsed[0]
	default:
		return fieldOperators{Field: key, Conditions: parsed}
	}
}

// fieldOperators is {field: {gte: a, lte: b}}: an AND over a single field, keyed under that field
type fieldOperators struct {
	Field      string
	Conditions []Condition
}

func (c fieldOperators) toNode() Node { return Group{Combinator: And, Children: toNodes(c.Conditions)} }

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
