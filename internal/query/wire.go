package query

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

// TimeLayout is the wire representation of timestamps
const TimeLayout = "2006-01-02T15:04:05.000Z"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const elemMatchKey = "elemMatch"

// renderNode converts a node to its wire shape
func renderNode(n Node) interface{} {
	switch v := n.(type) {
	case Comparison:
		return renderComparison(v)

	case Group:
		if compact, ok := compactFieldGroup(v); ok {
			return compact
		}
		if len(v.Children) == 0 {
			return map[string]interface{}{}
		}
		children := make([]interface{}, 0, len(v.Children))
		for _, child := range v.Children {
			children = append(children, renderNode(child))
		}
		return map[string]interface{}{string(v.Combinator): children}

	case ElemMatch:
		return map[string]interface{}{
			v.Field: map[string]interface{}{elemMatchKey: renderElemMatchSub(v.Sub)},
		}

	case Raw:
		return formatValue(v.Value)
	}
	return nil
}

func renderComparison(c Comparison) map[string]interface{} {
	if c.Operator == OpEqual || c.Operator == "" {
		return map[string]interface{}{c.Field: formatValue(c.Value)}
	}
	ops := map[string]interface{}{string(c.Operator): formatValue(c.Value)}
	if c.Operator == OpRegex && c.Options != "" {
		ops[regexOptionsKey] = c.Options
	}
	return map[string]interface{}{c.Field: ops}
}

// compactFieldGroup renders an AND of operator comparisons on one field with
// distinct operators as a single operator object, e.g. {f: {gte: a, lte: b}}.
func compactFieldGroup(g Group) (map[string]interface{}, bool) {
	if g.Combinator != And || len(g.Children) < 2 {
		return nil, false
	}
	var field string
	ops := make(map[string]interface{}, len(g.Children))
	for i, child := range g.Children {
		c, ok := child.(Comparison)
		if !ok || c.Operator == OpEqual || c.Operator == "" {
			return nil, false
		}
		if i == 0 {
			field = c.Field
		} else if c.Field != field {
			return nil, false
		}
		if _, dup := ops[string(c.Operator)]; dup {
			return nil, false
		}
		if c.Operator == OpRegex && c.Options != "" {
			if _, dup := ops[regexOptionsKey]; dup {
				return nil, false
			}
			ops[regexOptionsKey] = c.Options
		}
		ops[string(c.Operator)] = formatValue(c.Value)
	}
	return map[string]interface{}{field: ops}, true
}

// renderElemMatchSub renders the element-relative sub filter as one object when possible
func renderElemMatchSub(sub Node) interface{} {
	if sub == nil {
		return map[string]interface{}{}
	}
	g, ok := sub.(Group)
	if !ok || g.Combinator != And {
		return renderNode(sub)
	}
	if _, compact := compactFieldGroup(g); compact {
		return renderNode(sub)
	}
	children := make([]interface{}, 0, len(g.Children))
	for _, child := range g.Children {
		children = append(children, renderNode(child))
	}
	return flattenConditions(children)
}

// flattenConditions merges rendered conditions into one object. Conditions whose
// keys collide with ones already present are kept under a single "and" list.
func flattenConditions(conds []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(conds))
	var rest []interface{}

	for _, cond := range conds {
		m, ok := cond.(map[string]interface{})
		if !ok {
			rest = append(rest, cond)
			continue
		}
		if len(m) == 0 {
			continue
		}
		collides := false
		for key := range m {
			if _, exists := out[key]; exists {
				collides = true
				break
			}
		}
		if collides {
			rest = append(rest, m)
			continue
		}
		for key, value := range m {
			out[key] = value
		}
	}

	if len(rest) > 0 {
		if existing, ok := out[string(And)].([]interface{}); ok {
			out[string(And)] = append(existing, rest...)
		} else {
			out[string(And)] = rest
		}
	}
	return out
}

// formatValue converts values to their wire representation
func formatValue(v interface{}) interface{} {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(TimeLayout)
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.UTC().Format(TimeLayout)
	case []time.Time:
		out := make([]interface{}, len(val))
		for i, t := range val {
			out[i] = t.UTC().Format(TimeLayout)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = formatValue(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = formatValue(item)
		}
		return out
	default:
		return v
	}
}

func marshalString(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
