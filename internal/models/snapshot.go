package models

// Snapshot is the raw per-option payload of the market-data provider. Every
// field is nullable. FinanceRate, DivYield and IVol are percent-scaled.
type Snapshot struct {
	Bid         *float64 `json:"PX_BID"`
	Mid         *float64 `json:"PX_MID"`
	Ask         *float64 `json:"PX_ASK"`
	FinanceRate *float64 `json:"OPT_FINANCE_RT"`
	DivYield    *float64 `json:"OPT_DIV_YIELD"`
	Delta       *float64 `json:"DELTA_MID_RT"`
	Gamma       *float64 `json:"GAMMA_MID_RT"`
	Vega        *float64 `json:"VEGA_MID_RT"`
	IVol        *float64 `json:"IVOL_MID_RT"`
	Theta       *float64 `json:"THETA_MID_RT"`
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Bid:         copyFloat(s.Bid),
		Mid:         copyFloat(s.Mid),
		Ask:         copyFloat(s.Ask),
		FinanceRate: copyFloat(s.FinanceRate),
		DivYield:    copyFloat(s.DivYield),
		Delta:       copyFloat(s.Delta),
		Gamma:       copyFloat(s.Gamma),
		Vega:        copyFloat(s.Vega),
		IVol:        copyFloat(s.IVol),
		Theta:       copyFloat(s.Theta),
	}
}

// HasPrice reports whether at least one of bid, mid or ask is present.
func (s Snapshot) HasPrice() bool {
	return s.Bid != nil || s.Mid != nil || s.Ask != nil
}

// Quote converts the snapshot into an engine quote. Missing numeric fields
// default to 0.0 so a leg with incomplete greeks still produces a curve.
func (s Snapshot) Quote() Quote {
	return Quote{
		Bid:           copyFloat(s.Bid),
		Mid:           copyFloat(s.Mid),
		Ask:           copyFloat(s.Ask),
		FinancingRate: orZero(s.FinanceRate),
		DividendYield: orZero(s.DivYield),
		ImpliedVol:    orZero(s.IVol),
		Delta:         orZero(s.Delta),
		Gamma:         orZero(s.Gamma),
		Vega:          orZero(s.Vega),
		Theta:         orZero(s.Theta),
	}
}

func orZero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
