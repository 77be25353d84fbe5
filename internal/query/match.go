package query

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/spf13/cast"
)

// Match evaluates a serialized where clause against a JSON-shaped record with
// document semantics: dot paths traverse arrays, eq against an array means
// "contains", object keys are AND-ed and a relation key holding a nested query
// matches when any related record satisfies that query's where clause.
func Match(record map[string]interface{}, where map[string]interface{}) bool {
	for key, cond := range where {
		if !matchEntry(record, key, cond) {
			return false
		}
	}
	return true
}

func matchEntry(record map[string]interface{}, key string, cond interface{}) bool {
	switch key {
	case string(And):
		for _, item := range asList(cond) {
			sub, ok := item.(map[string]interface{})
			if !ok || !Match(record, sub) {
				return false
			}
		}
		return true
	case string(Or):
		for _, item := range asList(cond) {
			if sub, ok := item.(map[string]interface{}); ok && Match(record, sub) {
				return true
			}
		}
		return false
	}

	values := lookup(record, strings.Split(key, "."))

	ops, ok := cond.(map[string]interface{})
	if !ok {
		return anyEqual(flatten(values), cond)
	}
	if sub, ok := ops["where"].(map[string]interface{}); ok {
		return anyRecordMatches(values, sub)
	}
	if !isOperatorObject(ops) {
		return anyEqual(flatten(values), cond)
	}

	options, _ := ops[regexOptionsKey].(string)
	for name, operand := range ops {
		if name == regexOptionsKey {
			continue
		}
		if !matchOperator(name, operand, options, values) {
			return false
		}
	}
	return true
}

func matchOperator(name string, operand interface{}, options string, values []interface{}) bool {
	leaves := flatten(values)

	switch name {
	case elemMatchKey:
		sub, ok := operand.(map[string]interface{})
		if !ok {
			return false
		}
		return anyRecordMatches(values, sub)
	case string(OpEqual):
		return anyEqual(leaves, operand)
	case string(OpNotEqual):
		return !anyEqual(leaves, operand)
	case string(OpIn):
		for _, candidate := range asList(operand) {
			if anyEqual(leaves, candidate) {
				return true
			}
		}
		return false
	case string(OpNotIn):
		for _, candidate := range asList(operand) {
			if anyEqual(leaves, candidate) {
				return false
			}
		}
		return true
	case string(OpExists):
		want := cast.ToBool(operand)
		return (len(values) > 0) == want
	case string(OpRegex):
		pattern := fmt.Sprint(operand)
		if strings.Contains(options, CaseInsensitive) {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		for _, leaf := range leaves {
			if s, ok := leaf.(string); ok && re.MatchString(s) {
				return true
			}
		}
		return false
	case string(OpGreaterThan), string(OpGreaterOrEqual), string(OpLessThan), string(OpLessOrEqual):
		for _, leaf := range leaves {
			cmp, ok := compare(leaf, operand)
			if !ok {
				continue
			}
			switch FilterOperator(name) {
			case OpGreaterThan:
				ok = cmp > 0
			case OpGreaterOrEqual:
				ok = cmp >= 0
			case OpLessThan:
				ok = cmp < 0
			case OpLessOrEqual:
				ok = cmp <= 0
			}
			if ok {
				return true
			}
		}
		return false
	}
	return false
}

// lookup resolves a dot path. Arrays met before the last segment are traversed.
func lookup(v interface{}, parts []string) []interface{} {
	if len(parts) == 0 {
		return []interface{}{v}
	}
	switch val := v.(type) {
	case map[string]interface{}:
		next, ok := val[parts[0]]
		if !ok {
			return nil
		}
		return lookup(next, parts[1:])
	case []interface{}:
		var out []interface{}
		for _, item := range val {
			out = append(out, lookup(item, parts)...)
		}
		return out
	}
	return nil
}

func flatten(values []interface{}) []interface{} {
	out := make([]interface{}, 0, len(values))
	for _, v := range values {
		if list, ok := v.([]interface{}); ok {
			out = append(out, list...)
			continue
		}
		out = append(out, v)
	}
	return out
}

func anyRecordMatches(values []interface{}, where map[string]interface{}) bool {
	for _, v := range flatten(values) {
		if rec, ok := v.(map[string]interface{}); ok && Match(rec, where) {
			return true
		}
	}
	return false
}

func anyEqual(leaves []interface{}, want interface{}) bool {
	for _, leaf := range leaves {
		if equal(leaf, want) {
			return true
		}
	}
	return false
}

func equal(a, b interface{}) bool {
	if fa, ok := toNumber(a); ok {
		if fb, ok := toNumber(b); ok {
			return fa == fb
		}
	}
	return reflect.DeepEqual(a, b)
}

// compare orders numbers numerically and everything else by string form,
// which orders wire timestamps chronologically
func compare(a, b interface{}) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if fa, ok := toNumber(a); ok {
		fb, ok := toNumber(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	sa, sb := cast.ToString(formatValue(a)), cast.ToString(formatValue(b))
	return strings.Compare(sa, sb), true
}

func toNumber(v interface{}) (float64, bool) {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return cast.ToFloat64(v), true
	}
	return 0, false
}

func asList(v interface{}) []interface{} {
	switch list := v.(type) {
	case []interface{}:
		return list
	case []string:
		out := make([]interface{}, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out
	}
	return nil
}

func isOperatorObject(m map[string]interface{}) bool {
	if len(m) == 0 {
		return false
	}
	for key := range m {
		if key == regexOptionsKey || key == elemMatchKey {
			continue
		}
		if !FilterOperator(key).IsValid() {
			return false
		}
	}
	return true
}
