// Package pricing holds the pure pricing functions of the scenario engine:
// quote normalisation, the shocked forward and Black-Scholes on the forward.
package pricing

import (
	"fmt"
	"math"

	apperrors "optpnl/internal/errors"
	"optpnl/internal/models"
)

// PriceEpsilon is the tolerance used to decide that a reported mid equals the ask.
const PriceEpsilon = 1e-9

// Resolution is the outcome of ResolveQuote.
type Resolution struct {
	Bid   *float64
	Mid   *float64
	Ask   *float64
	Price float64
	Side  models.Side
	// Steps records every inference made, in order.
	Steps []string
}

// Complete reports whether bid, mid and ask are all present.
func (r Resolution) Complete() bool {
	return r.Bid != nil && r.Mid != nil && r.Ask != nil
}

// ResolveQuote fills in a possibly incomplete bid/mid/ask triple and derives a
// directional execution price.
//
// BUY pays (mid+ask)/2 and SELL receives (bid+mid)/2, with fallbacks
// mid -> ask -> bid (BUY) and mid -> bid -> ask (SELL). A reported mid equal to
// the ask with no bid means the bid was really zero. Fields the directional
// rules leave empty are completed after the price is fixed, so the returned
// triple is complete and resolving it again changes nothing.
func ResolveQuote(bid, mid, ask *float64, isBuy bool) (Resolution, error) {
	b, m, a := finite(bid), finite(mid), finite(ask)
	if b == nil && m == nil && a == nil {
		return Resolution{}, apperrors.ErrMissingPrice
	}

	res := Resolution{Side: models.SideSell}
	if isBuy {
		res.Side = models.SideBuy
	}
	step := func(format string, args ...interface{}) {
		res.Steps = append(res.Steps, fmt.Sprintf("[%s] ", res.Side)+fmt.Sprintf(format, args...))
	}

	var price float64
	if isBuy {
		if b == nil && a != nil {
			switch {
			case m == nil:
				b = models.Float(0)
				m = models.Float((*b + *a) / 2)
				step("BID and MID missing: BID=0, MID=(BID+ASK)/2=%v", *m)
			case math.Abs(*m-*a) <= PriceEpsilon:
				b = models.Float(0)
				m = models.Float((*b + *a) / 2)
				step("BID missing and MID==ASK (%v): BID=0, MID=(BID+ASK)/2=%v", *a, *m)
			default:
				b = models.Float(math.Max(0, 2*(*m)-*a))
				step("BID missing and MID!=ASK: BID=max(0,2*MID-ASK)=%v", *b)
			}
		}
		if m == nil && b != nil && a != nil {
			m = models.Float((*b + *a) / 2)
			step("MID missing: MID=(BID+ASK)/2=%v", *m)
		}
		if a == nil && m != nil && b != nil {
			a = models.Float(math.Max(0, 2*(*m)-*b))
			step("ASK missing: ASK=max(0,2*MID-BID)=%v", *a)
		}

		switch {
		case m != nil && a != nil:
			price = (*m + *a) / 2
			step("price=(MID+ASK)/2=%v", price)
		case m != nil:
			price = *m
			step("fallback price=MID=%v", price)
		case a != nil:
			price = *a
			step("fallback price=ASK=%v", price)
		default:
			price = *b
			step("fallback price=BID=%v", price)
		}
	} else {
		if m == nil && b != nil && a != nil {
			m = models.Float((*b + *a) / 2)
			step("MID missing: MID=(BID+ASK)/2=%v", *m)
		}
		if b == nil && m != nil && a != nil {
			b = models.Float(math.Max(0, 2*(*m)-*a))
			step("BID missing: BID=max(0,2*MID-ASK)=%v", *b)
		}

		switch {
		case b != nil && m != nil:
			price = (*b + *m) / 2
			step("price=(BID+MID)/2=%v", price)
		case m != nil:
			price = *m
			step("fallback price=MID=%v", price)
		case b != nil:
			price = *b
			step("fallback price=BID=%v", price)
		default:
			price = *a
			step("fallback price=ASK=%v", price)
		}
	}

	b, m, a = complete(b, m, a, step)
	res.Bid, res.Mid, res.Ask = b, m, a
	res.Price = price
	return res, nil
}

// NormalizeQuote returns the direction-independent normalised triple that is
// stored in the snapshot cache.
func NormalizeQuote(bid, mid, ask *float64) (b, m, a *float64, err error) {
	res, err := ResolveQuote(bid, mid, ask, true)
	if err != nil {
		return nil, nil, nil, err
	}
	return res.Bid, res.Mid, res.Ask, nil
}

// ResolveLegQuote resolves a quote using the leg's direction (quantity > 0 buys).
func ResolveLegQuote(q models.Quote, qty int) (Resolution, error) {
	return ResolveQuote(q.Bid, q.Mid, q.Ask, qty > 0)
}

// complete fills whatever the directional rules left empty. It runs after the
// price is fixed and never changes a field that is already present.
func complete(b, m, a *float64, step func(string, ...interface{})) (*float64, *float64, *float64) {
	if m == nil && b != nil && a != nil {
		m = models.Float((*b + *a) / 2)
		step("complete MID=(BID+ASK)/2=%v", *m)
	}
	if a == nil && b != nil && m != nil {
		a = models.Float(math.Max(0, 2*(*m)-*b))
		step("complete ASK=max(0,2*MID-BID)=%v", *a)
	}
	if b == nil && m != nil && a != nil {
		b = models.Float(math.Max(0, 2*(*m)-*a))
		step("complete BID=max(0,2*MID-ASK)=%v", *b)
	}

	var only *float64
	switch {
	case b != nil && m == nil && a == nil:
		only = b
	case m != nil && b == nil && a == nil:
		only = m
	case a != nil && b == nil && m == nil:
		only = a
	}
	if only != nil {
		v := *only
		b, m, a = models.Float(v), models.Float(v), models.Float(v)
		step("single price %v: BID=MID=ASK", v)
	}
	return b, m, a
}

// finite copies p, treating NaN and infinities as missing.
func finite(p *float64) *float64 {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return nil
	}
	return models.Float(*p)
}
