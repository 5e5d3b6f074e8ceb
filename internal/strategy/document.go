// Package strategy loads, validates and saves strategy documents and turns
// them into engine inputs.
package strategy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"optpnl/internal/models"
)

// Strike modes of a leg.
const (
	StrikeModeStrike = "Strike"
	StrikeModePctOTM = "%OTM"
)

// Text is a JSON scalar kept in its text form. Documents saved by the desktop
// tool carry every number as a string ("10.0%", "1,250"); hand-written ones use
// plain numbers. Both decode to the same Text.
type Text string

// UnmarshalJSON accepts a string, a number or null.
func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*t = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("expected string or number, got %s", b)
		}
		*t = Text(n.String())
	}
	return nil
}

// String returns the trimmed text.
func (t Text) String() string { return strings.TrimSpace(string(t)) }

// Empty reports whether the field is blank.
func (t Text) Empty() bool { return t.String() == "" }

// Document is the persisted form of a strategy.
type Document struct {
	Mode                 string   `json:"mode,omitempty"`
	Ticker               string   `json:"ticker"`
	Max                  Text     `json:"max"`
	Min                  Text     `json:"min"`
	Price                Text     `json:"price"`
	Qty                  Text     `json:"qty"`
	Intervals            int      `json:"intervals,omitempty"`
	Dates                []string `json:"dates"`
	Legs                 []LegDoc `json:"legs"`
	TotalPremiumOverride Text     `json:"total_premium_override"`
	VolShockTerm         Text     `json:"vol_shock_term"`
}

// LegDoc is one leg of a Document.
type LegDoc struct {
	Type           string           `json:"type"`
	Maturity       string           `json:"maturity"`
	Qty            Text             `json:"qty"`
	Price          Text             `json:"price"`
	StrikeMode     string           `json:"strike_mode,omitempty"`
	Strike         Text             `json:"strike,omitempty"`
	PctOTM         Text             `json:"pct_otm,omitempty"`
	ResolvedStrike Text             `json:"resolved_strike,omitempty"`
	Root           string           `json:"root,omitempty"`
	Description    string           `json:"description,omitempty"`
	VolShockLeg    Text             `json:"vol_shock_leg,omitempty"`
	Multiplier     int              `json:"multiplier,omitempty"`
	Beta           Text             `json:"beta,omitempty"`
	Snapshot       *models.Snapshot `json:"snapshot,omitempty"`
}

// Mode returns the leg's strike mode, defaulting to Strike.
func (l LegDoc) Mode() string {
	if strings.TrimSpace(l.StrikeMode) == "" {
		return StrikeModeStrike
	}
	return strings.TrimSpace(l.StrikeMode)
}

// StrikeText returns the strike, falling back to the resolved strike.
func (l LegDoc) StrikeText() Text {
	if !l.Strike.Empty() {
		return l.Strike
	}
	return l.ResolvedStrike
}

// Decode parses a document from JSON.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse strategy: %w", err)
	}
	return &doc, nil
}

// Load reads a document from path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategy %s: %w", path, err)
	}
	return Decode(data)
}

// Save validates doc and writes it to path as indented JSON.
func Save(path string, doc *Document) error {
	if err := Validate(doc); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode strategy: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write strategy %s: %w", path, err)
	}
	return nil
}

// Record copies refreshed market data back into the document: the equity
// price and, per leg, the contract description and its latest snapshot.
// snaps is indexed like doc.Legs; nil entries leave the leg untouched.
func (d *Document) Record(spot float64, keys []string, snaps []*models.Snapshot) {
	if spot > 0 {
		d.Price = Text(FormatNumber(spot))
	}
	for i := range d.Legs {
		if i < len(keys) && keys[i] != "" {
			d.Legs[i].Description = keys[i]
		}
		if i < len(snaps) && snaps[i] != nil {
			s := snaps[i].Clone()
			d.Legs[i].Snapshot = &s
		}
	}
}
