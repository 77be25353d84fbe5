package query

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tracebase-eu/tracebase/internal/config"
)

// Operators accepted only in URL filters. They are rewritten to regex on parse.
const (
	opLike  = "like"
	opILike = "ilike"
)

// Parser turns page-level URL filters into a QueryBuilder
//
// Supported parameters:
//
//	fields=firstName,lastName
//	order=lastName.asc,dateOfReporting.desc
//	limit=50&skip=100 (offset is accepted as an alias of skip)
//	include=labResults,relationships! (a trailing ! marks the include required)
//	dateOfReporting=gte.2024-01-01&dateOfReporting=lte.2024-01-31
//	classification=in.(C1,C2)
//	firstName=ilike.jo
//	or=(wasContact.eq.false,wasContact.exists.false)
type Parser struct {
	config *config.QueryConfig
}

// NewParser creates a new parser. A nil config disables paging defaults.
func NewParser(cfg *config.QueryConfig) *Parser {
	if cfg == nil {
		cfg = &config.QueryConfig{}
	}
	return &Parser{config: cfg}
}

// Parse parses URL query values into a QueryBuilder. Values without an
// operator prefix are not filters and are skipped.
func (p *Parser) Parse(values url.Values) (*QueryBuilder, error) {
	qb := NewQueryBuilder()

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	hasLimit := false
	for _, key := range keys {
		vals := values[key]
		if len(vals) == 0 {
			continue
		}

		switch key {
		case "fields":
			qb.Fields(splitList(vals[0])...)

		case "order":
			if err := p.parseOrder(vals[0], qb); err != nil {
				return nil, fmt.Errorf("invalid order parameter: %w", err)
			}

		case "include":
			for _, relation := range splitList(vals[0]) {
				required := strings.HasSuffix(relation, "!")
				qb.Include(strings.TrimSuffix(relation, "!"), required)
			}

		case "limit":
			limit, err := strconv.Atoi(vals[0])
			if err != nil {
				return nil, fmt.Errorf("invalid limit parameter: %w", err)
			}
			if limit < 0 {
				return nil, fmt.Errorf("invalid limit parameter: %d", limit)
			}
			if p.config.MaxPageSize > 0 && limit > p.config.MaxPageSize {
				log.Debug().
					Int("requested", limit).
					Int("max", p.config.MaxPageSize).
					Msg("Limit capped to max_page_size")
				limit = p.config.MaxPageSize
			}
			qb.Limit(limit)
			hasLimit = true

		case "skip", "offset":
			skip, err := strconv.Atoi(vals[0])
			if err != nil {
				return nil, fmt.Errorf("invalid %s parameter: %w", key, err)
			}
			qb.Skip(skip)

		case string(And), string(Or):
			for _, val := range vals {
				cond, err := p.parseLogicalFilter(val, Combinator(key))
				if err != nil {
					return nil, fmt.Errorf("invalid %s parameter: %w", key, err)
				}
				qb.Filter.Where(cond)
			}

		default:
			// repeated keys are AND-ed: ?age=gte.18&age=lte.65
			for _, val := range vals {
				cond, ok, err := p.parseFilter(key, val)
				if err != nil {
					return nil, fmt.Errorf("invalid filter parameter %s: %w", key, err)
				}
				if ok {
					qb.Filter.Where(cond)
				}
			}
		}
	}

	if !hasLimit && p.config.DefaultPageSize > 0 {
		qb.Limit(p.config.DefaultPageSize)
		log.Debug().
			Int("default", p.config.DefaultPageSize).
			Msg("Applied default_page_size")
	}

	return qb, nil
}

// parseOrder parses order=name.asc,created.desc
func (p *Parser) parseOrder(value string, qb *QueryBuilder) error {
	for _, order := range splitList(value) {
		idx := strings.LastIndex(order, ".")
		if idx <= 0 {
			return fmt.Errorf("invalid order format: %s", order)
		}
		field, dir := order[:idx], strings.ToLower(order[idx+1:])
		switch dir {
		case "asc":
			qb.Sort(field, Asc)
		case "desc":
			qb.Sort(field, Desc)
		default:
			return fmt.Errorf("invalid order direction: %s", order)
		}
	}
	return nil
}

// parseFilter parses column=operator.value. ok is false when the value is not a filter.
func (p *Parser) parseFilter(field, value string) (Condition, bool, error) {
	dot := strings.Index(value, ".")
	if dot <= 0 {
		return nil, false, nil
	}
	opName := value[:dot]
	if !isURLOperator(opName) {
		return nil, false, nil
	}
	cond, err := buildCondition(field, opName, value[dot+1:])
	if err != nil {
		return nil, false, err
	}
	return cond, true, nil
}

// parseLogicalFilter parses or=(name.eq.John,age.gt.30). Fields may be dot paths:
// the first segment naming a known operator splits field from value.
func (p *Parser) parseLogicalFilter(value string, combinator Combinator) (Condition, error) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "(") || !strings.HasSuffix(value, ")") {
		return nil, fmt.Errorf("logical group must be wrapped in parentheses: %s", value)
	}
	value = value[1 : len(value)-1]

	var conds []Condition
	for _, part := range splitTopLevel(value) {
		segments := strings.Split(part, ".")
		opIdx := -1
		for i := 1; i < len(segments)-1; i++ {
			if isURLOperator(segments[i]) {
				opIdx = i
				break
			}
		}
		if opIdx < 0 {
			return nil, fmt.Errorf("invalid filter format in logical group: %s", part)
		}
		field := strings.Join(segments[:opIdx], ".")
		cond, err := buildCondition(field, segments[opIdx], strings.Join(segments[opIdx+1:], "."))
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	if len(conds) == 0 {
		return nil, fmt.Errorf("empty logical group")
	}

	if combinator == Or {
		return GroupOr{Conditions: conds}, nil
	}
	return GroupAnd{Conditions: conds}, nil
}

func buildCondition(field, opName, raw string) (Condition, error) {
	switch opName {
	case opILike, opLike:
		fo := FieldOperator{Field: field, Operator: OpRegex, Value: EscapeStringForRegex(raw)}
		if opName == opILike {
			fo.Options = CaseInsensitive
		}
		return fo, nil
	}

	op := FilterOperator(opName)
	switch op {
	case OpEqual:
		return FieldEquals{Field: field, Value: parseScalar(raw)}, nil
	case OpIn, OpNotIn:
		return FieldOperator{Field: field, Operator: op, Value: parseArrayValue(raw)}, nil
	case OpExists:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("exists expects a boolean: %s", raw)
		}
		return FieldOperator{Field: field, Operator: op, Value: b}, nil
	case OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual:
		return FieldOperator{Field: field, Operator: op, Value: parseNumeric(raw)}, nil
	case OpRegex:
		return FieldOperator{Field: field, Operator: op, Value: raw}, nil
	default:
		return FieldOperator{Field: field, Operator: op, Value: parseScalar(raw)}, nil
	}
}

func isURLOperator(name string) bool {
	if name == opLike || name == opILike {
		return true
	}
	return FilterOperator(name).IsValid()
}

// parseScalar maps true/false/null literals; everything else stays a string
func parseScalar(raw string) interface{} {
	switch raw {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	return raw
}

// parseNumeric keeps dates and other non-numbers as strings
func parseNumeric(raw string) interface{} {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// parseArrayValue parses (a,b,c) or ["a","b"]
func parseArrayValue(value string) []string {
	value = strings.Trim(value, "()[]")
	if strings.TrimSpace(value) == "" {
		return []string{}
	}
	items := strings.Split(value, ",")
	result := make([]string, len(items))
	for i, item := range items {
		result[i] = strings.Trim(strings.TrimSpace(item), "\"'")
	}
	return result
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// splitTopLevel splits on commas that are not inside parentheses
func splitTopLevel(value string) []string {
	var parts []string
	var current strings.Builder
	depth := 0
	for i := 0; i < len(value); i++ {
		ch := value[i]
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				if s := strings.TrimSpace(current.String()); s != "" {
					parts = append(parts, s)
				}
				current.Reset()
				continue
			}
		}
		current.WriteByte(ch)
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		parts = append(parts, s)
	}
	return parts
}
