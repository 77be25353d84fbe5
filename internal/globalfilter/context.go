// Package globalfilter decodes the global filter shared by all list views
// (reference date, location, classifications) from navigation state.
package globalfilter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cast"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrMalformedGlobalFilter is returned when a global filter payload cannot be decoded.
// Callers must not fall back to an empty context: that would widen a scoped query.
var ErrMalformedGlobalFilter = errors.New("malformed global filter")

// Payload keys
const (
	KeyDate              = "date"
	KeyLocationID        = "locationId"
	KeyClassificationID  = "classificationId"
	KeyClassificationIDs = "classificationIds"
)

// Context is the decoded global filter. Date is always UTC when set.
type Context struct {
	Date              *time.Time `json:"date,omitempty"`
	LocationID        string     `json:"locationId,omitempty"`
	ClassificationIDs []string   `json:"classificationIds,omitempty"`
}

// IsEmpty reports whether the context carries no scope at all
func (c Context) IsEmpty() bool {
	return c.Date == nil && c.LocationID == "" && len(c.ClassificationIDs) == 0
}

// ReferenceDate returns the context date, or now when none was selected
func (c Context) ReferenceDate(now time.Time) time.Time {
	if c.Date != nil {
		return *c.Date
	}
	return now.UTC()
}

// Decode accepts the global filter either as a serialized JSON string or as an
// already structured value (map, Context or *Context). A nil or blank payload
// decodes to an empty context.
func Decode(payload interface{}) (Context, error) {
	switch v := payload.(type) {
	case nil:
		return Context{}, nil
	case Context:
		return normalize(v), nil
	case *Context:
		if v == nil {
			return Context{}, nil
		}
		return normalize(*v), nil
	case string:
		return DecodeString(v)
	case []byte:
		return DecodeString(string(v))
	case map[string]interface{}:
		return fromMap(v)
	case map[string]string:
		m := make(map[string]interface{}, len(v))
		for key, val := range v {
			m[key] = val
		}
		return fromMap(m)
	}
	return Context{}, fmt.Errorf("%w: unsupported payload type %T", ErrMalformedGlobalFilter, payload)
}

// DecodeString decodes the serialized form
func DecodeString(s string) (Context, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Context{}, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return Context{}, fmt.Errorf("%w: %v", ErrMalformedGlobalFilter, err)
	}
	return fromMap(m)
}

// Encode serializes the context to the string form accepted by DecodeString
func Encode(c Context) (string, error) {
	m := make(map[string]interface{}, 3)
	if c.Date != nil {
		m[KeyDate] = c.Date.UTC().Format(time.RFC3339Nano)
	}
	if c.LocationID != "" {
		m[KeyLocationID] = c.LocationID
	}
	if len(c.ClassificationIDs) > 0 {
		m[KeyClassificationIDs] = c.ClassificationIDs
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func fromMap(m map[string]interface{}) (Context, error) {
	var c Context

	if raw, ok := m[KeyDate]; ok && raw != nil && raw != "" {
		t, err := cast.ToTimeE(raw)
		if err != nil {
			return Context{}, fmt.Errorf("%w: invalid date %v: %v", ErrMalformedGlobalFilter, raw, err)
		}
		t = t.UTC()
		c.Date = &t
	}

	if raw, ok := m[KeyLocationID]; ok && raw != nil {
		id, err := cast.ToStringE(raw)
		if err != nil {
			return Context{}, fmt.Errorf("%w: invalid locationId: %v", ErrMalformedGlobalFilter, err)
		}
		c.LocationID = id
	}

	for _, key := range []string{KeyClassificationIDs, KeyClassificationID} {
		raw, ok := m[key]
		if !ok || raw == nil {
			continue
		}
		ids, err := toStringList(raw)
		if err != nil {
			return Context{}, fmt.Errorf("%w: invalid %s: %v", ErrMalformedGlobalFilter, key, err)
		}
		c.ClassificationIDs = append(c.ClassificationIDs, ids...)
	}

	return normalize(c), nil
}

func normalize(c Context) Context {
	if c.Date != nil {
		t := c.Date.UTC()
		c.Date = &t
	}
	c.ClassificationIDs = dedupe(c.ClassificationIDs)
	return c
}

func toStringList(raw interface{}) ([]string, error) {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil, nil
		}
		return []string{v}, nil
	case []string:
		return v, nil
	}
	return cast.ToStringSliceE(raw)
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
