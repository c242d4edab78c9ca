package memory

import (
	"fmt"

	wvfilters "github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
)

// FilterOp is a metadata filter operator, per spec.md §4.2's filter
// grammar: eq, neq, in, and the four range comparisons.
type FilterOp string

const (
	OpEq  FilterOp = "eq"
	OpNeq FilterOp = "neq"
	OpIn  FilterOp = "in"
	OpGte FilterOp = "gte"
	OpLte FilterOp = "lte"
	OpGt  FilterOp = "gt"
	OpLt  FilterOp = "lt"
)

// Filter is a single metadata predicate over a collection's payload schema.
// search() ANDs every Filter passed to it together (spec.md §4.2).
type Filter struct {
	Field  string
	Op     FilterOp
	Value  any
	Values []any // populated only when Op == OpIn
}

// compileWhere builds a single Weaviate where-clause ANDing every filter.
// Returns nil when filters is empty — "no filter" rather than "match
// nothing".
func compileWhere(filters []Filter) (*wvfilters.WhereBuilder, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	clauses := make([]*wvfilters.WhereBuilder, 0, len(filters))
	for _, f := range filters {
		clause, err := compileOne(f)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}
	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return wvfilters.Where().WithOperator(wvfilters.And).WithOperands(clauses), nil
}

func compileOne(f Filter) (*wvfilters.WhereBuilder, error) {
	path := []string{f.Field}
	switch f.Op {
	case OpEq:
		return withValue(wvfilters.Where().WithPath(path).WithOperator(wvfilters.Equal), f.Value)
	case OpNeq:
		return withValue(wvfilters.Where().WithPath(path).WithOperator(wvfilters.NotEqual), f.Value)
	case OpGte:
		return withValue(wvfilters.Where().WithPath(path).WithOperator(wvfilters.GreaterThanEqual), f.Value)
	case OpLte:
		return withValue(wvfilters.Where().WithPath(path).WithOperator(wvfilters.LessThanEqual), f.Value)
	case OpGt:
		return withValue(wvfilters.Where().WithPath(path).WithOperator(wvfilters.GreaterThan), f.Value)
	case OpLt:
		return withValue(wvfilters.Where().WithPath(path).WithOperator(wvfilters.LessThan), f.Value)
	case OpIn:
		operands := make([]*wvfilters.WhereBuilder, 0, len(f.Values))
		for _, v := range f.Values {
			clause, err := withValue(wvfilters.Where().WithPath(path).WithOperator(wvfilters.Equal), v)
			if err != nil {
				return nil, err
			}
			operands = append(operands, clause)
		}
		if len(operands) == 0 {
			return nil, fmt.Errorf("filter %q: in requires at least one value", f.Field)
		}
		return wvfilters.Where().WithOperator(wvfilters.Or).WithOperands(operands), nil
	default:
		return nil, fmt.Errorf("filter %q: unknown operator %q", f.Field, f.Op)
	}
}

func withValue(b *wvfilters.WhereBuilder, value any) (*wvfilters.WhereBuilder, error) {
	switch v := value.(type) {
	case string:
		return b.WithValueText(v), nil
	case bool:
		return b.WithValueBoolean(v), nil
	case int:
		return b.WithValueInt(int64(v)), nil
	case int64:
		return b.WithValueInt(v), nil
	case float64:
		return b.WithValueNumber(v), nil
	default:
		return nil, fmt.Errorf("unsupported filter value type %T", value)
	}
}
