package globalfilter

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// Navigation state keys
const (
	ParamPreset = "applyListFilter"
	ParamExtra  = "x"
	ParamGlobal = "global"
)

// NavigationState is what a list view receives from routing: the preset to
// apply, its extra parameter, the raw global filter and every other query value.
type NavigationState struct {
	Preset string
	X      string
	Params url.Values
	Global interface{}
}

// NavigationFromValues splits URL query values into a NavigationState
func NavigationFromValues(values url.Values) NavigationState {
	nav := NavigationState{Params: url.Values{}}
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		switch key {
		case ParamPreset:
			nav.Preset = strings.TrimSpace(vals[0])
		case ParamExtra:
			nav.X = vals[0]
		case ParamGlobal:
			nav.Global = vals[0]
		default:
			nav.Params[key] = append([]string(nil), vals...)
		}
	}
	return nav
}

// NavigationFromQuery parses a raw query string such as "applyListFilter=CASES_DECEASED&x=3"
func NavigationFromQuery(rawQuery string) (NavigationState, error) {
	values, err := url.ParseQuery(strings.TrimPrefix(strings.TrimSpace(rawQuery), "?"))
	if err != nil {
		return NavigationState{}, err
	}
	return NavigationFromValues(values), nil
}

// IsEmpty reports whether no preset is requested
func (n NavigationState) IsEmpty() bool {
	return n.Preset == ""
}

// Param returns the first value of a parameter
func (n NavigationState) Param(key string) string {
	if n.Params == nil {
		return ""
	}
	return n.Params.Get(key)
}

// ParamList returns a list-typed parameter given as repeated keys, a comma
// separated value or a JSON array.
func (n NavigationState) ParamList(key string) []string {
	if n.Params == nil {
		return nil
	}
	var out []string
	for _, v := range n.Params[key] {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if strings.HasPrefix(v, "[") {
			var list []interface{}
			if err := json.Unmarshal([]byte(v), &list); err == nil {
				out = append(out, cast.ToStringSlice(list)...)
				continue
			}
		}
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

// XInt returns the extra parameter as an integer, or def when absent or not numeric
func (n NavigationState) XInt(def int) int {
	if n.X == "" {
		return def
	}
	v, err := strconv.Atoi(strings.TrimSpace(n.X))
	if err != nil {
		return def
	}
	return v
}
