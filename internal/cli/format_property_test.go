package cli

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var groupedPattern = regexp.MustCompile(`^\d{1,3}(,\d{3})*(\.\d+)?$`)

// For any finite amount, FormatMoney groups the integer digits in threes and
// parses back to the amount rounded to the requested places.
func TestProperty_MoneyFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("digits are grouped in threes", prop.ForAll(
		func(amount float64, places int) bool {
			formatted := FormatMoney(amount, int32(places))
			body := strings.TrimPrefix(formatted, "-")
			if !groupedPattern.MatchString(body) {
				t.Logf("FormatMoney(%f, %d) = %s", amount, places, formatted)
				return false
			}
			if places == 0 {
				return !strings.Contains(body, ".")
			}
			parts := strings.Split(body, ".")
			return len(parts) == 2 && len(parts[1]) == places
		},
		gen.Float64Range(-1e12, 1e12),
		gen.IntRange(0, 4),
	))

	properties.Property("value survives the round trip", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatMoney(amount, 2)
			back, err := strconv.ParseFloat(strings.ReplaceAll(formatted, ",", ""), 64)
			if err != nil {
				return false
			}
			return math.Abs(back-amount) <= 0.005+1e-6
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.Property("negative amounts carry a single sign", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatMoney(-amount, 0)
			return strings.Count(formatted, "-") <= 1
		},
		gen.Float64Range(0, 1e12),
	))

	properties.TestingRun(t)
}

func TestProperty_PnLSign(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("gains are signed, losses are negative", prop.ForAll(
		func(pnl float64) bool {
			s := FormatPnL(pnl)
			switch {
			case pnl >= 0.5:
				return strings.HasPrefix(s, "+")
			case pnl <= -0.5:
				return strings.HasPrefix(s, "-")
			default:
				return s == "0" || s == "-0"
			}
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.TestingRun(t)
}

func TestProperty_PadLeft(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("result is at least the requested width and ends with the input", prop.ForAll(
		func(s string, width int) bool {
			out := PadLeft(s, width)
			return len(out) >= width && len(out) >= len(s) && strings.HasSuffix(out, s)
		},
		gen.AlphaString(),
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t)
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		amount float64
		places int32
		want   string
	}{
		{0, 0, "0"},
		{999, 0, "999"},
		{1000, 0, "1,000"},
		{-1234.5, 2, "-1,234.50"},
		{1234567.891, 2, "1,234,567.89"},
		{-0.004, 2, "0.00"},
		{-1250, 0, "-1,250"},
	}
	for _, tt := range tests {
		if got := FormatMoney(tt.amount, tt.places); got != tt.want {
			t.Errorf("FormatMoney(%v, %d) = %q, want %q", tt.amount, tt.places, got, tt.want)
		}
	}
}

func TestFormatHelpers(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"move up", FormatMove(0.1), "+10.00%"},
		{"move down", FormatMove(-0.025), "-2.50%"},
		{"move flat", FormatMove(0), "0.00%"},
		{"pnl gain", FormatPnL(1500.4), "+1,500"},
		{"pnl loss", FormatPnL(-250), "-250"},
		{"price large", FormatPrice(512.346), "512.35"},
		{"price small", FormatPrice(1.23456), "1.2346"},
		{"optional missing", FormatOptional(nil), "-"},
		{"duration ms", FormatDuration(250 * time.Millisecond), "250ms"},
		{"duration s", FormatDuration(1500 * time.Millisecond), "1.5s"},
		{"duration m", FormatDuration(90 * time.Second), "1m 30s"},
		{"truncate", TruncateString("SPY US 06/21/24 P475 Equity", 10), "SPY US ..."},
		{"truncate short", TruncateString("SPY", 10), "SPY"},
		{"zero time", FormatDateTime(time.Time{}), "-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}
