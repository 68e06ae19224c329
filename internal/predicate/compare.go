package predicate

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"eventRelay/internal/model"
)

// Compare orders two values. Integer operands (numbers or integer strings) compare as big.Int,
// other numeric operands as exact decimals, plain strings lexicographically.
func Compare(a, b model.Value) (int, error) {
	if ai, ok := asInteger(a); ok {
		if bi, ok := asInteger(b); ok {
			return ai.Cmp(bi), nil
		}
	}
	ad, errA := asDecimal(a)
	bd, errB := asDecimal(b)
	if errA == nil && errB == nil {
		return ad.Cmp(bd), nil
	}
	for _, err := range []error{errA, errB} {
		if errors.Is(err, errExponentRange) {
			return 0, fmt.Errorf("%w: %v", ErrNotComparable, err)
		}
	}
	if a.Kind() == model.KindString && b.Kind() == model.KindString {
		return strings.Compare(a.Text(), b.Text()), nil
	}
	return 0, ErrNotComparable
}

// Equal is strict equality: kinds must match, numbers compare by value, lists and maps deeply.
func Equal(a, b model.Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}

	switch a.Kind() {
	case model.KindUndefined, model.KindNull:
		return true
	case model.KindBool:
		return a.AsBool() == b.AsBool()
	case model.KindString:
		return a.Text() == b.Text()
	case model.KindNumber:
		if ai, ok := asInteger(a); ok {
			if bi, ok := asInteger(b); ok {
				return ai.Cmp(bi) == 0
			}
		}
		ad, errA := asDecimal(a)
		bd, errB := asDecimal(b)
		if errA == nil && errB == nil {
			return ad.Equal(bd)
		}
		return a.Text() == b.Text()
	case model.KindList:
		left, right := a.Items(), b.Items()
		if len(left) != len(right) {
			return false
		}
		for i := range left {
			if !Equal(left[i], right[i]) {
				return false
			}
		}
		return true
	case model.KindMap:
		left, right := a.Fields(), b.Fields()
		if len(left) != len(right) {
			return false
		}
		for key, item := range left {
			other, ok := right[key]
			if !ok || !Equal(item, other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func asInteger(v model.Value) (*big.Int, bool) {
	if v.Kind() != model.KindNumber && v.Kind() != model.KindString {
		return nil, false
	}
	if v.Text() == "" {
		return nil, false
	}
	parsed, ok := new(big.Int).SetString(v.Text(), 10)
	if !ok {
		return nil, false
	}
	return parsed, true
}

// maxExponent bounds the exponent written in scientific notation; uint256 has 78 digits.
// Comparing against 1e2000000000 would otherwise rescale to a two-billion-digit integer.
const maxExponent = 78

var (
	errNotNumeric    = errors.New("not numeric")
	errExponentRange = errors.New("exponent out of range")
)

func asDecimal(v model.Value) (decimal.Decimal, error) {
	if v.Kind() != model.KindNumber && v.Kind() != model.KindString {
		return decimal.Decimal{}, errNotNumeric
	}
	if v.Text() == "" {
		return decimal.Decimal{}, errNotNumeric
	}
	parsed, err := decimal.NewFromString(v.Text())
	if err != nil {
		return decimal.Decimal{}, errNotNumeric
	}
	exp := parsed.Exponent()
	if (exp > maxExponent || exp < -maxExponent) && strings.ContainsAny(v.Text(), "eE") {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", errExponentRange, v.Text())
	}
	return parsed, nil
}
