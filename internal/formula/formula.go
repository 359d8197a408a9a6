// Package formula parses and evaluates the restricted arithmetic used by formula columns:
// decimal literals, column identifiers, + - * / ^ (integer exponents), unary minus and
// parentheses. Nothing else is executable.
package formula

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrSyntax            = errors.New("formula syntax error")
	ErrUnknownIdentifier = errors.New("formula references a value that is not available")
	ErrDivisionByZero    = errors.New("division by zero")
	ErrExponent          = errors.New("exponent must be a whole number between -64 and 64")
)

const maxExponent = 64

// DivisionPrecision is the number of fractional digits kept by "/" and negative powers.
const DivisionPrecision = 16

// SyntaxError locates a parse failure.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s at position %d", e.Msg, e.Pos)
}

func (e *SyntaxError) Unwrap() error { return ErrSyntax }

// UnknownIdentifierError names the identifier missing from the evaluation context.
type UnknownIdentifierError struct {
	Name string
}

func (e *UnknownIdentifierError) Error() string {
	return fmt.Sprintf("no value for %q", e.Name)
}

func (e *UnknownIdentifierError) Unwrap() error { return ErrUnknownIdentifier }

// Expression is a parsed formula. It is immutable and safe to share.
type Expression struct {
	source string
	root   node
	idents []string
}

// Parse builds an Expression from src.
func Parse(src string) (*Expression, error) {
	if strings.TrimSpace(src) == "" {
		return nil, &SyntaxError{Pos: 0, Msg: "empty expression"}
	}
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("unexpected %s", tok.kind)}
	}
	e := &Expression{source: src, root: root}
	seen := map[string]bool{}
	collectIdents(root, func(name string) {
		if !seen[name] {
			seen[name] = true
			e.idents = append(e.idents, name)
		}
	})
	return e, nil
}

// Identifiers lists the distinct identifiers in order of first appearance.
func (e *Expression) Identifiers() []string {
	out := make([]string, len(e.idents))
	copy(out, e.idents)
	return out
}

func (e *Expression) String() string { return e.source }

// Evaluate computes the expression. Every identifier must be present in vars.
func (e *Expression) Evaluate(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	return e.root.eval(vars)
}

func collectIdents(n node, visit func(string)) {
	switch v := n.(type) {
	case identNode:
		visit(v.name)
	case unaryNode:
		collectIdents(v.x, visit)
	case binaryNode:
		collectIdents(v.left, visit)
		collectIdents(v.right, visit)
	}
}
