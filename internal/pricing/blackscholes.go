package pricing

import (
	"math"

	"optpnl/internal/models"
)

// NormCDF is the standard normal cumulative distribution.
func NormCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// D1D2 returns the Black-Scholes d1 and d2 on a forward. Both are NaN when
// t, sigma, forward or strike is not positive.
func D1D2(forward, strike, sigma, t float64) (d1, d2 float64) {
	if t <= 0 || sigma <= 0 || forward <= 0 || strike <= 0 {
		return math.NaN(), math.NaN()
	}
	sqrtT := math.Sqrt(t)
	d1 = (math.Log(forward/strike) + 0.5*sigma*sigma*t) / (sigma * sqrtT)
	d2 = d1 - sigma*sqrtT
	return d1, d2
}

// BSResult carries both option values on a forward together with the
// intermediate terms needed for delta.
type BSResult struct {
	Call   float64
	Put    float64
	D1     float64
	D2     float64
	Nd1    float64
	Nd2    float64
	NNegD1 float64
	NNegD2 float64
}

// BlackScholes prices a call and a put on forward F with strike K, decimal vol
// sigma, year fraction t and decimal discount rate r.
//
//	call = e^{-rt} (F N(d1) - K N(d2))
//	put  = e^{-rt} (K N(-d2) - F N(-d1))
//
// Degenerate inputs propagate NaN through every field.
func BlackScholes(forward, strike, sigma, t, r float64) BSResult {
	d1, d2 := D1D2(forward, strike, sigma, t)
	res := BSResult{
		D1:     d1,
		D2:     d2,
		Nd1:    NormCDF(d1),
		Nd2:    NormCDF(d2),
		NNegD1: NormCDF(-d1),
		NNegD2: NormCDF(-d2),
	}
	df := math.Exp(-r * t)
	res.Call = df * (forward*res.Nd1 - strike*res.Nd2)
	res.Put = df * (strike*res.NNegD2 - forward*res.NNegD1)
	return res
}

// Price returns the value for the given right.
func (r BSResult) Price(t models.OptionType) float64 {
	if t == models.Call {
		return r.Call
	}
	return r.Put
}

// Delta returns N(d1) for calls and -N(-d1) for puts.
func (r BSResult) Delta(t models.OptionType) float64 {
	if t == models.Call {
		return r.Nd1
	}
	return -r.NNegD1
}
