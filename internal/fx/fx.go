// Package fx supplies the conversion rate a holding's asset currency needs to
// reach its portfolio's profile currency.
package fx

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Lookup returns the multiplier converting one unit of from into to.
// Implementations return a *NoRateError when the pair is unknown.
type Lookup interface {
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// TxLookup is implemented by lookups that read the database and can be pointed
// at an open transaction.
type TxLookup interface {
	Lookup
	WithTx(tx *gorm.DB) Lookup
}

// Invalidator is implemented by lookups that cache rates.
type Invalidator interface {
	Invalidate(ctx context.Context, from, to string) error
}

// Bind points l at tx when it reads the database.
func Bind(l Lookup, tx *gorm.DB) Lookup {
	if t, ok := l.(TxLookup); ok && tx != nil {
		return t.WithTx(tx)
	}
	return l
}

// NormalizeCurrency upper-cases and trims an ISO code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Resolve returns 1 for identical currencies without consulting l.
func Resolve(ctx context.Context, l Lookup, from, to string) (decimal.Decimal, error) {
	from, to = NormalizeCurrency(from), NormalizeCurrency(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if from == "" || to == "" || l == nil {
		return decimal.Zero, &NoRateError{From: from, To: to}
	}
	return l.Rate(ctx, from, to)
}

// Memo caches answers, misses included, for the length of one recompute pass.
// It is not safe for concurrent use and must not outlive the transaction.
type Memo struct {
	Next  Lookup
	rates map[string]memoEntry
}

type memoEntry struct {
	rate decimal.Decimal
	err  error
}

func NewMemo(next Lookup) *Memo {
	return &Memo{Next: next, rates: map[string]memoEntry{}}
}

func (m *Memo) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	key := from + ":" + to
	if e, ok := m.rates[key]; ok {
		return e.rate, e.err
	}
	if m.Next == nil {
		return decimal.Zero, &NoRateError{From: from, To: to}
	}
	rate, err := m.Next.Rate(ctx, from, to)
	m.rates[key] = memoEntry{rate: rate, err: err}
	return rate, err
}

// Static is a fixed table keyed "FROM:TO", handy for seeding and tests.
type Static map[string]decimal.Decimal

func (s Static) Rate(_ context.Context, from, to string) (decimal.Decimal, error) {
	if r, ok := s[NormalizeCurrency(from)+":"+NormalizeCurrency(to)]; ok {
		return r, nil
	}
	return decimal.Zero, &NoRateError{From: from, To: to}
}
