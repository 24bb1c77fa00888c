package currency

import (
	"sync"

	"github.com/shopspring/decimal"

	"timesheet-reconciliation-service/pkg/errors"
	"timesheet-reconciliation-service/pkg/logger"
)

type pair struct {
	from, to string
}

// Normalizer resolves and caches exchange rates for one run. Create a new
// Normalizer per run; the cache is never invalidated while it lives.
type Normalizer struct {
	table *Table
	cache map[pair]decimal.Decimal
	mu    sync.RWMutex
	log   logger.Logger
}

// NewNormalizer creates a normalizer with an empty cache
func NewNormalizer(table *Table) *Normalizer {
	return &Normalizer{
		table: table,
		cache: make(map[pair]decimal.Decimal),
		log:   logger.GetGlobalLogger().WithComponent("currency"),
	}
}

// WithLogger replaces the normalizer's logger
func (n *Normalizer) WithLogger(l logger.Logger) *Normalizer {
	if l != nil {
		n.log = l.WithComponent("currency")
	}
	return n
}

// Base returns the base currency of the underlying table
func (n *Normalizer) Base() string {
	return n.table.Base()
}

// Rate returns how many units of to one unit of from is worth.
//
// Equal currencies short-circuit to 1 without touching the table. A pair
// involving the base uses the direct rate or its reciprocal; any other pair
// goes through the base in two legs. A missing leg fails the whole lookup.
func (n *Normalizer) Rate(from, to string) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	key := pair{from, to}
	n.mu.RLock()
	rate, ok := n.cache[key]
	n.mu.RUnlock()
	if ok {
		return rate, nil
	}

	rate, err := n.resolve(from, to)
	if err != nil {
		return decimal.Zero, err
	}

	n.mu.Lock()
	n.cache[key] = rate
	n.mu.Unlock()

	n.log.WithFields(logger.Fields{"from": from, "to": to, "rate": rate.String()}).Debug("Rate resolved")
	return rate, nil
}

func (n *Normalizer) resolve(from, to string) (decimal.Decimal, error) {
	base := n.table.Base()

	switch {
	case to == base:
		return n.direct(from)
	case from == base:
		r, err := n.direct(to)
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromInt(1).Div(r), nil
	default:
		fromLeg, err := n.Rate(from, base)
		if err != nil {
			return decimal.Zero, err
		}
		toLeg, err := n.Rate(to, base)
		if err != nil {
			return decimal.Zero, err
		}
		return fromLeg.Div(toLeg), nil
	}
}

func (n *Normalizer) direct(code string) (decimal.Decimal, error) {
	r, ok := n.table.Lookup(code)
	if !ok {
		return decimal.Zero, errors.RateNotFoundError(code, n.table.Base())
	}
	return r, nil
}

// Convert expresses amount, given in from, in to
func (n *Normalizer) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	rate, err := n.Rate(from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate), nil
}

// Currencies returns every currency the normalizer can convert, base first
func (n *Normalizer) Currencies() []string {
	out := []string{n.table.Base()}
	for _, code := range n.table.Currencies() {
		if code != n.table.Base() {
			out = append(out, code)
		}
	}
	return out
}

// CacheSize returns the number of cached pairs
func (n *Normalizer) CacheSize() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.cache)
}

// ClearCache drops every cached pair
func (n *Normalizer) ClearCache() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cache = make(map[pair]decimal.Decimal)
}
