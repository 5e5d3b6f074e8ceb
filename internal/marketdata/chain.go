package marketdata

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"optpnl/internal/models"
)

// descPattern matches option descriptions such as "VXX US 08/15/25 C25 Equity":
// root, two-letter country code, MM/DD/YY(YY) expiry, right and strike.
var descPattern = regexp.MustCompile(`^\s*([A-Z0-9]+)\s+[A-Z]{2}\s+(\d{2}/\d{2}/\d{2,4})\s+([CP])\s*(\d+(?:\.\d+)?)\b`)

// Chain is a listed option chain indexed maturity -> right -> strike -> root,
// each leaf holding the sorted security descriptions.
type Chain struct {
	tree map[string]map[string]map[string]map[string][]string
}

// ParseChainDescriptions builds a Chain from security descriptions. Lines that
// do not look like option descriptions are skipped; duplicates are dropped.
func ParseChainDescriptions(descriptions []string) *Chain {
	seen := make(map[string]bool, len(descriptions))
	c := &Chain{tree: make(map[string]map[string]map[string]map[string][]string)}

	for _, d := range descriptions {
		m := descPattern.FindStringSubmatch(d)
		if m == nil || seen[d] {
			continue
		}
		mat, err := normalizeMDY(m[2])
		if err != nil {
			continue
		}
		seen[d] = true

		root, right, strike := m[1], m[3], NormalizeStrike(m[4])
		byRight, ok := c.tree[mat]
		if !ok {
			byRight = map[string]map[string]map[string][]string{"C": {}, "P": {}}
			c.tree[mat] = byRight
		}
		byStrike := byRight[right]
		byRoot, ok := byStrike[strike]
		if !ok {
			byRoot = make(map[string][]string)
			byStrike[strike] = byRoot
		}
		byRoot[root] = append(byRoot[root], d)
	}

	for _, byRight := range c.tree {
		for _, byStrike := range byRight {
			for _, byRoot := range byStrike {
				for _, descs := range byRoot {
					sort.Strings(descs)
				}
			}
		}
	}
	return c
}

// normalizeMDY turns MM/DD/YY or MM/DD/YYYY into YYYY-MM-DD. Two-digit years
// up to 79 are 20xx, the rest 19xx.
func normalizeMDY(mdy string) (string, error) {
	parts := strings.Split(mdy, "/")
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid date %q", mdy)
	}
	mm, err := strconv.Atoi(parts[0])
	if err != nil {
		return "", err
	}
	dd, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", err
	}
	y, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", err
	}
	if len(parts[2]) == 2 {
		if y <= 79 {
			y += 2000
		} else {
			y += 1900
		}
	}
	t := time.Date(y, time.Month(mm), dd, 0, 0, 0, 0, time.UTC)
	if t.Month() != time.Month(mm) || t.Day() != dd {
		return "", fmt.Errorf("invalid date %q", mdy)
	}
	return models.DateKey(t), nil
}

// NormalizeStrike trims trailing zeros from a decimal strike ("25.50" -> "25.5",
// "25.0" -> "25"). Integer strikes are returned unchanged.
func NormalizeStrike(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	return strings.TrimRight(strings.TrimRight(s, "0"), ".")
}

// FormatStrike renders a numeric strike the way chain keys are written.
func FormatStrike(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Len returns the number of maturities.
func (c *Chain) Len() int { return len(c.tree) }

// Maturities returns the listed maturities (YYYY-MM-DD), ascending.
func (c *Chain) Maturities() []string {
	out := make([]string, 0, len(c.tree))
	for k := range c.tree {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Rights returns the rights with at least one strike at maturity.
func (c *Chain) Rights(maturity string) []string {
	var out []string
	for _, r := range []string{"C", "P"} {
		if len(c.tree[maturity][r]) > 0 {
			out = append(out, r)
		}
	}
	return out
}

// Strikes returns the strikes listed for maturity and right, numerically ascending.
func (c *Chain) Strikes(maturity, right string) []float64 {
	byStrike := c.tree[maturity][right]
	out := make([]float64, 0, len(byStrike))
	for k := range byStrike {
		if v, err := strconv.ParseFloat(k, 64); err == nil {
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

// Roots returns the roots listed for the contract, sorted.
func (c *Chain) Roots(maturity, right string, strike float64) []string {
	byRoot := c.tree[maturity][right][FormatStrike(strike)]
	out := make([]string, 0, len(byRoot))
	for k := range byRoot {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Description returns the first security description for the contract. An
// empty root picks the first listed root.
func (c *Chain) Description(maturity, right string, strike float64, root string) (string, bool) {
	byRoot := c.tree[maturity][right][FormatStrike(strike)]
	if root == "" {
		roots := c.Roots(maturity, right, strike)
		if len(roots) == 0 {
			return "", false
		}
		root = roots[0]
	}
	descs := byRoot[root]
	if len(descs) == 0 {
		return "", false
	}
	return descs[0], true
}

// Entries flattens the chain in maturity, right, strike, root order.
func (c *Chain) Entries() []models.ChainEntry {
	var out []models.ChainEntry
	for _, mat := range c.Maturities() {
		t, err := models.ParseDate(mat)
		if err != nil {
			continue
		}
		for _, right := range c.Rights(mat) {
			for _, strike := range c.Strikes(mat, right) {
				for _, root := range c.Roots(mat, right, strike) {
					for _, d := range c.tree[mat][right][FormatStrike(strike)][root] {
						out = append(out, models.ChainEntry{
							Maturity:    t,
							Right:       right,
							Strike:      strike,
							Root:        root,
							Description: d,
						})
					}
				}
			}
		}
	}
	return out
}
