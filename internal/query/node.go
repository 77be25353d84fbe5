package query

import "strings"

// Node is one filter expression. The set of implementations is closed:
// Comparison, Group, ElemMatch and Raw.
type Node interface {
	isNode()
	// touches reports whether the expression constrains field (or a sub-path of it)
	touches(field string) bool
	clone() Node
}

// Comparison compares one dot-path field against a value
type Comparison struct {
	Field    string
	Operator FilterOperator
	Value    interface{}
	Options  string // regex options, e.g. "i"
}

// Group joins child expressions with AND or OR
type Group struct {
	Combinator Combinator
	Children   []Node
}

// ElemMatch requires at least one element of an array field to match Sub.
// Fields inside Sub are relative to the array element.
type ElemMatch struct {
	Field string
	Sub   Node
}

// Raw holds a condition whose shape was not recognised. It is forwarded untouched.
type Raw struct {
	Value interface{}
}

func (Comparison) isNode() {}
func (Group) isNode()      {}
func (ElemMatch) isNode()  {}
func (Raw) isNode()        {}

func (c Comparison) touches(field string) bool { return pathTouches(c.Field, field) }

func (g Group) touches(field string) bool {
	for _, child := range g.Children {
		if child.touches(field) {
			return true
		}
	}
	return false
}

func (e ElemMatch) touches(field string) bool {
	if pathTouches(e.Field, field) {
		return true
	}
	if e.Sub == nil {
		return false
	}
	// sub fields are element-relative; compare against the remainder of the path
	prefix := e.Field + "."
	if strings.HasPrefix(field, prefix) {
		return e.Sub.touches(strings.TrimPrefix(field, prefix))
	}
	return false
}

func (r Raw) touches(field string) bool {
	m, ok := r.Value.(map[string]interface{})
	if !ok {
		return false
	}
	for key := range m {
		if pathTouches(key, field) {
			return true
		}
	}
	return false
}

func (c Comparison) clone() Node {
	c.Value = cloneValue(c.Value)
	return c
}

func (g Group) clone() Node {
	children := make([]Node, len(g.Children))
	for i, child := range g.Children {
		children[i] = child.clone()
	}
	return Group{Combinator: g.Combinator, Children: children}
}

func (e ElemMatch) clone() Node {
	if e.Sub != nil {
		e.Sub = e.Sub.clone()
	}
	return e
}

func (r Raw) clone() Node {
	return Raw{Value: cloneValue(r.Value)}
}

// NewAnd builds an AND group, flattening nested AND groups
func NewAnd(children ...Node) Node {
	return newGroup(And, children)
}

// NewOr builds an OR group, flattening nested OR groups
func NewOr(children ...Node) Node {
	return newGroup(Or, children)
}

func newGroup(c Combinator, children []Node) Node {
	flat := make([]Node, 0, len(children))
	for _, child := range children {
		if child == nil {
			continue
		}
		if g, ok := child.(Group); ok && g.Combinator == c {
			flat = append(flat, g.Children...)
			continue
		}
		flat = append(flat, child)
	}
	return Group{Combinator: c, Children: flat}
}

// pathTouches reports whether path equals field or one is a dot-prefix of the other
func pathTouches(path, field string) bool {
	if path == field {
		return true
	}
	return strings.HasPrefix(path, field+".") || strings.HasPrefix(field, path+".")
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}
