package scenario

// PremiumShift is the constant added to every curve point when the traded
// premium is pinned to override. Zero without an override.
func PremiumShift(computedTotal float64, override *float64) float64 {
	if override == nil {
		return 0
	}
	return computedTotal - *override
}

// ApplyPremiumOverride returns shifted copies of curves. curves is not modified.
func ApplyPremiumOverride(curves map[string][]float64, computedTotal float64, override *float64) map[string][]float64 {
	shift := PremiumShift(computedTotal, override)
	out := make(map[string][]float64, len(curves))
	for k, c := range curves {
		shifted := make([]float64, len(c))
		for i, v := range c {
			shifted[i] = v + shift
		}
		out[k] = shifted
	}
	return out
}

// WithPremiumOverride returns a copy of r whose portfolio curves are shifted so
// the entry premium equals override. Per-leg curves are left as computed.
func (r *Result) WithPremiumOverride(override *float64) *Result {
	out := *r
	if override != nil {
		v := *override
		out.Override = &v
	} else {
		out.Override = nil
	}
	out.Shift = PremiumShift(r.ComputedTotal, override)
	out.Curves = ApplyPremiumOverride(r.Curves, r.ComputedTotal, override)
	return &out
}

// NetPremium is the override when one is set, otherwise the computed entry total.
func (r *Result) NetPremium() float64 {
	if r.Override != nil {
		return *r.Override
	}
	return r.ComputedTotal
}
