package formula

import (
	"github.com/shopspring/decimal"
)

type node interface {
	eval(vars map[string]decimal.Decimal) (decimal.Decimal, error)
}

type numberNode struct {
	value decimal.Decimal
}

func (n numberNode) eval(map[string]decimal.Decimal) (decimal.Decimal, error) {
	return n.value, nil
}

type identNode struct {
	name string
}

func (n identNode) eval(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	v, ok := vars[n.name]
	if !ok {
		return decimal.Zero, &UnknownIdentifierError{Name: n.name}
	}
	return v, nil
}

type unaryNode struct {
	op tokenKind
	x  node
}

func (n unaryNode) eval(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	v, err := n.x.eval(vars)
	if err != nil {
		return decimal.Zero, err
	}
	if n.op == tokMinus {
		return v.Neg(), nil
	}
	return v, nil
}

type binaryNode struct {
	op          tokenKind
	left, right node
}

func (n binaryNode) eval(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	l, err := n.left.eval(vars)
	if err != nil {
		return decimal.Zero, err
	}
	r, err := n.right.eval(vars)
	if err != nil {
		return decimal.Zero, err
	}
	switch n.op {
	case tokPlus:
		return l.Add(r), nil
	case tokMinus:
		return l.Sub(r), nil
	case tokStar:
		return l.Mul(r), nil
	case tokSlash:
		if r.IsZero() {
			return decimal.Zero, ErrDivisionByZero
		}
		return l.DivRound(r, DivisionPrecision), nil
	case tokCaret:
		return power(l, r)
	}
	return decimal.Zero, ErrSyntax
}

// power raises base to a whole exponent by repeated squaring.
func power(base, exp decimal.Decimal) (decimal.Decimal, error) {
	if !exp.IsInteger() || exp.Abs().GreaterThan(decimal.NewFromInt(maxExponent)) {
		return decimal.Zero, ErrExponent
	}
	n := exp.IntPart()
	negative := n < 0
	if negative {
		n = -n
	}
	result := decimal.NewFromInt(1)
	b := base
	for n > 0 {
		if n&1 == 1 {
			result = result.Mul(b)
		}
		b = b.Mul(b)
		n >>= 1
	}
	if negative {
		if result.IsZero() {
			return decimal.Zero, ErrDivisionByZero
		}
		return decimal.NewFromInt(1).DivRound(result, DivisionPrecision), nil
	}
	return result, nil
}
