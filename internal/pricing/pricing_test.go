package pricing

import (
	"math"
	"testing"

	apperrors "optpnl/internal/errors"
	"optpnl/internal/models"
)

func f(v float64) *float64 { return models.Float(v) }

func TestResolveQuote(t *testing.T) {
	tests := []struct {
		name          string
		bid, mid, ask *float64
		isBuy         bool
		wantBid       float64
		wantMid       float64
		wantAsk       float64
		wantPrice     float64
	}{
		{"buy ask only", nil, nil, f(10), true, 0, 5, 10, 7.5},
		{"sell bid and mid", f(4), f(5), nil, false, 4, 5, 6, 4.5},
		{"buy mid equals ask", nil, f(10), f(10), true, 0, 5, 10, 7.5},
		{"buy mid below ask", nil, f(8), f(10), true, 6, 8, 10, 9},
		{"buy mid below half ask clamps bid", nil, f(4), f(10), true, 0, 4, 10, 7},
		{"buy bid and ask", f(2), nil, f(4), true, 2, 3, 4, 3.5},
		{"buy bid and mid", f(2), f(3), nil, true, 2, 3, 4, 3.5},
		{"sell bid and ask", f(2), nil, f(4), false, 2, 3, 4, 2.5},
		{"sell mid and ask", nil, f(3), f(4), false, 2, 3, 4, 2.5},
		{"buy mid only", nil, f(3), nil, true, 3, 3, 3, 3},
		{"sell ask only", nil, nil, f(6), false, 6, 6, 6, 6},
		{"sell bid only", f(1.5), nil, nil, false, 1.5, 1.5, 1.5, 1.5},
		{"full quote buy", f(1), f(2), f(3), true, 1, 2, 3, 2.5},
		{"full quote sell", f(1), f(2), f(3), false, 1, 2, 3, 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ResolveQuote(tt.bid, tt.mid, tt.ask, tt.isBuy)
			if err != nil {
				t.Fatalf("ResolveQuote() error = %v", err)
			}
			if *res.Bid != tt.wantBid || *res.Mid != tt.wantMid || *res.Ask != tt.wantAsk {
				t.Errorf("triple = (%v, %v, %v), want (%v, %v, %v)",
					*res.Bid, *res.Mid, *res.Ask, tt.wantBid, tt.wantMid, tt.wantAsk)
			}
			if res.Price != tt.wantPrice {
				t.Errorf("price = %v, want %v", res.Price, tt.wantPrice)
			}
			if len(res.Steps) == 0 {
				t.Error("expected at least one recorded step")
			}
		})
	}
}

func TestResolveQuote_MissingPrice(t *testing.T) {
	_, err := ResolveQuote(nil, nil, nil, true)
	if !apperrors.Is(err, apperrors.ErrMissingPrice) {
		t.Fatalf("error = %v, want ErrMissingPrice", err)
	}

	// Non-finite vendor values count as missing.
	_, err = ResolveQuote(f(math.NaN()), f(math.Inf(1)), nil, false)
	if !apperrors.Is(err, apperrors.ErrMissingPrice) {
		t.Fatalf("error = %v, want ErrMissingPrice for NaN/Inf input", err)
	}
}

func TestResolveQuote_DoesNotAliasInputs(t *testing.T) {
	ask := f(10)
	res, err := ResolveQuote(nil, nil, ask, true)
	if err != nil {
		t.Fatal(err)
	}
	*res.Ask = 99
	if *ask != 10 {
		t.Errorf("input ask mutated to %v", *ask)
	}
}

func TestNormalizeQuote(t *testing.T) {
	b, m, a, err := NormalizeQuote(nil, f(10), f(10))
	if err != nil {
		t.Fatal(err)
	}
	if *b != 0 || *m != 5 || *a != 10 {
		t.Errorf("NormalizeQuote = (%v, %v, %v), want (0, 5, 10)", *b, *m, *a)
	}
}

func TestForward(t *testing.T) {
	got := Forward(100, 0, 1, 0.05, 0, 1.0)
	if math.Abs(got-105.127) > 1e-3 {
		t.Errorf("Forward() = %v, want ~105.127", got)
	}
	if got := ShockedSpot(100, 0.1, 1.5); math.Abs(got-115) > 1e-12 {
		t.Errorf("ShockedSpot() = %v, want 115", got)
	}
}

func TestTimeToMaturity(t *testing.T) {
	mat := models.MustDate("2025-12-19")
	tests := []struct {
		eval string
		want float64
	}{
		{"2024-12-19", 365.0 / 365.0},
		{"2025-12-18", 1.0 / 365.0},
		{"2025-12-19", 0},
		{"2026-01-05", 0},
	}
	for _, tt := range tests {
		if got := TimeToMaturity(mat, models.MustDate(tt.eval)); got != tt.want {
			t.Errorf("TimeToMaturity(%s) = %v, want %v", tt.eval, got, tt.want)
		}
	}
}

func TestVolDecimal(t *testing.T) {
	if got := VolDecimal(25); got != 0.25 {
		t.Errorf("VolDecimal(25) = %v", got)
	}
	if got := VolDecimal(0.25); got != 0.25 {
		t.Errorf("VolDecimal(0.25) = %v", got)
	}
	if got := VolDecimal(ShockVol(20, 0.1)); math.Abs(got-0.22) > 1e-12 {
		t.Errorf("shocked vol = %v, want 0.22", got)
	}
}

func TestBlackScholes_ReferenceValues(t *testing.T) {
	// At-the-money forward, sigma 20%, one year, zero rate.
	res := BlackScholes(100, 100, 0.2, 1, 0)
	if math.Abs(res.Call-7.965567455405804) > 1e-9 {
		t.Errorf("call = %v", res.Call)
	}
	if math.Abs(res.Call-res.Put) > 1e-12 {
		t.Errorf("ATM forward call %v != put %v", res.Call, res.Put)
	}
	if math.Abs(res.Delta(models.Call)-res.Delta(models.Put)-1) > 1e-12 {
		t.Errorf("call delta - put delta = %v, want 1", res.Delta(models.Call)-res.Delta(models.Put))
	}
}

func TestBlackScholes_DegenerateInputs(t *testing.T) {
	cases := [][4]float64{
		{100, 100, 0.2, 0},
		{100, 100, 0, 1},
		{0, 100, 0.2, 1},
		{100, 0, 0.2, 1},
	}
	for _, c := range cases {
		res := BlackScholes(c[0], c[1], c[2], c[3], 0.01)
		if !math.IsNaN(res.Call) || !math.IsNaN(res.Put) || !math.IsNaN(res.D1) {
			t.Errorf("BlackScholes(%v) = %+v, want NaN", c, res)
		}
	}
}

func TestIntrinsic(t *testing.T) {
	if got := Intrinsic(models.Call, 110, 105); got != 5 {
		t.Errorf("call intrinsic = %v", got)
	}
	if got := Intrinsic(models.Put, 110, 105); got != 0 {
		t.Errorf("put intrinsic = %v", got)
	}
	if got := Intrinsic(models.Put, 90, 105); got != 15 {
		t.Errorf("put intrinsic = %v", got)
	}
}
