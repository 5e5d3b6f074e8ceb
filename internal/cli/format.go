package cli

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FormatMoney formats an amount with thousands separators and the given
// number of decimals, e.g. -1,234.50.
func FormatMoney(amount float64, places int32) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Sprint(amount)
	}
	d := decimal.NewFromFloat(amount).Round(places)
	negative := d.IsNegative()
	str := d.Abs().StringFixed(places)

	intPart, decPart := str, ""
	if i := strings.IndexByte(str, '.'); i >= 0 {
		intPart, decPart = str[:i], str[i:]
	}

	result := groupDigits(intPart) + decPart
	if negative {
		result = "-" + result
	}
	return result
}

// groupDigits inserts a comma every three digits from the right.
func groupDigits(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPnL formats P&L with sign and no decimals.
func FormatPnL(pnl float64) string {
	formatted := FormatMoney(pnl, 0)
	if pnl >= 0.5 {
		return "+" + formatted
	}
	return formatted
}

// FormatMove formats a decimal underlying move as a signed percentage.
func FormatMove(move float64) string {
	pct := move * 100
	if math.Abs(pct) < 0.005 {
		return "0.00%"
	}
	sign := ""
	if pct > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, pct)
}

// FormatPrice formats a price with appropriate decimal places.
func FormatPrice(price float64) string {
	if math.Abs(price) >= 10 {
		return fmt.Sprintf("%.2f", price)
	}
	return fmt.Sprintf("%.4f", price)
}

// FormatOptional formats a nullable number, "-" when missing.
func FormatOptional(v *float64) string {
	if v == nil {
		return "-"
	}
	return FormatPrice(*v)
}

// FormatDateTime formats a timestamp in local time.
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// PadLeft pads a string to the left.
func PadLeft(s string, length int) string {
	if len(s) >= length {
		return s
	}
	return strings.Repeat(" ", length-len(s)) + s
}
