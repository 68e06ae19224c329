// Package predicate evaluates condition maps against event payloads.
package predicate

import (
	"errors"
	"fmt"
	"sort"

	"github.com/samber/lo"

	"eventRelay/internal/model"
)

var (
	// ErrMalformed reports a condition that cannot be interpreted.
	ErrMalformed = errors.New("malformed condition")
	// ErrNotComparable reports an ordering between values of incompatible kinds.
	ErrNotComparable = errors.New("values not comparable")
)

// Operator keys accepted inside an operator object.
const (
	OpGT  = "gt"
	OpLT  = "lt"
	OpGTE = "gte"
	OpLTE = "lte"
	OpEQ  = "eq"
	OpNE  = "ne"
	OpIn  = "in"
	OpNIn = "nin"
)

// Evaluate reports whether payload satisfies every condition. An empty map matches.
// Evaluation errors never escape: a condition that cannot be evaluated is a non-match.
func Evaluate(conditions model.ConditionMap, payload model.Payload) bool {
	matched, _ := Check(conditions, payload)
	return matched
}

// Check is Evaluate that also returns the evaluation error, if any, for logging.
// Fields are visited in sorted order and evaluation stops at the first failing field.
func Check(conditions model.ConditionMap, payload model.Payload) (matched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
			err = fmt.Errorf("%w: panic: %v", ErrMalformed, r)
		}
	}()

	if len(conditions) == 0 {
		return true, nil
	}

	fields := lo.Keys(conditions)
	sort.Strings(fields)
	for _, field := range fields {
		ok, err := matchField(conditions[field], payload.Get(field))
		if err != nil {
			return false, fmt.Errorf("field %s: %w", field, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// matchField applies one field condition. Map conditions are operator objects; anything else is an equality literal.
func matchField(cond model.Value, value model.Value) (bool, error) {
	if cond.Kind() != model.KindMap {
		return Equal(value, cond), nil
	}

	ops := cond.Fields()
	if len(ops) == 0 {
		return false, fmt.Errorf("%w: empty operator object", ErrMalformed)
	}

	keys := lo.Keys(ops)
	sort.Strings(keys)
	for _, op := range keys {
		ok, err := applyOperator(op, value, ops[op])
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func applyOperator(op string, value, operand model.Value) (bool, error) {
	switch op {
	case OpEQ:
		return Equal(value, operand), nil
	case OpNE:
		return !Equal(value, operand), nil
	case OpIn, OpNIn:
		if operand.Kind() != model.KindList {
			return false, fmt.Errorf("%w: %s expects a list, got %s", ErrMalformed, op, operand.Kind())
		}
		found := lo.ContainsBy(operand.Items(), func(item model.Value) bool {
			return Equal(value, item)
		})
		if op == OpIn {
			return found, nil
		}
		return !found, nil
	case OpGT, OpLT, OpGTE, OpLTE:
		cmp, err := Compare(value, operand)
		if err != nil {
			return false, fmt.Errorf("%s: %w", op, err)
		}
		switch op {
		case OpGT:
			return cmp > 0, nil
		case OpLT:
			return cmp < 0, nil
		case OpGTE:
			return cmp >= 0, nil
		default:
			return cmp <= 0, nil
		}
	default:
		return false, fmt.Errorf("%w: unknown operator %q", ErrMalformed, op)
	}
}
