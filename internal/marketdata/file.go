package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	apperrors "optpnl/internal/errors"
	"optpnl/internal/models"
)

// Fixture is the on-disk format of the offline provider.
type Fixture struct {
	Equities map[string]float64         `json:"equities"`
	Options  map[string]models.Snapshot `json:"options"`
	// Chains lists descriptions per underlying. When an underlying is absent
	// its chain is every option whose description starts with the underlying.
	Chains map[string][]string `json:"chains,omitempty"`
}

// FileProvider serves market data from a JSON fixture. It is used offline and
// in tests.
type FileProvider struct {
	path string
	mu   sync.RWMutex
	data Fixture
}

// NewFileProvider loads the fixture at path.
func NewFileProvider(path string) (*FileProvider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewProviderError("file", path, "reading fixture", err)
	}
	var fx Fixture
	if err := json.Unmarshal(raw, &fx); err != nil {
		return nil, apperrors.NewProviderError("file", path, "decoding fixture", err)
	}
	p := NewStaticProvider(fx)
	p.path = path
	return p, nil
}

// NewStaticProvider serves an in-memory fixture.
func NewStaticProvider(fx Fixture) *FileProvider {
	if fx.Equities == nil {
		fx.Equities = make(map[string]float64)
	}
	if fx.Options == nil {
		fx.Options = make(map[string]models.Snapshot)
	}
	return &FileProvider{data: fx}
}

// Name implements Provider.
func (p *FileProvider) Name() string { return "file" }

// OptionSnapshot implements Provider.
func (p *FileProvider) OptionSnapshot(ctx context.Context, security string) (models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.Snapshot{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap, ok := p.data.Options[strings.TrimSpace(security)]
	if !ok {
		return models.Snapshot{}, apperrors.NewProviderError(p.Name(), security, "no snapshot", apperrors.ErrSnapshotNotFound)
	}
	return snap.Clone(), nil
}

// EquityMid implements Provider.
func (p *FileProvider) EquityMid(ctx context.Context, ticker string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	t := strings.TrimSpace(ticker)
	if px, ok := p.data.Equities[t]; ok {
		return px, nil
	}
	// "VXX US Equity" and "VXX" refer to the same equity.
	if fields := strings.Fields(t); len(fields) > 1 {
		if px, ok := p.data.Equities[fields[0]]; ok {
			return px, nil
		}
	}
	return 0, apperrors.NewProviderError(p.Name(), ticker, "no equity price", apperrors.ErrSymbolNotFound)
}

// OptionChain implements Provider.
func (p *FileProvider) OptionChain(ctx context.Context, underlying string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	u := strings.Fields(strings.TrimSpace(underlying))
	if len(u) == 0 {
		return nil, apperrors.NewValidationError("underlying", underlying, "must not be empty")
	}
	if descs, ok := p.data.Chains[u[0]]; ok {
		return append([]string(nil), descs...), nil
	}

	var out []string
	for desc := range p.data.Options {
		if strings.HasPrefix(desc, u[0]+" ") {
			out = append(out, desc)
		}
	}
	if len(out) == 0 {
		return nil, apperrors.NewProviderError(p.Name(), underlying, "no option chain", apperrors.ErrSymbolNotFound)
	}
	sort.Strings(out)
	return out, nil
}

// Put adds or replaces a snapshot.
func (p *FileProvider) Put(security string, snap models.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.Options[security] = snap.Clone()
}

// Save writes the fixture back to path.
func (p *FileProvider) Save(path string) error {
	p.mu.RLock()
	raw, err := json.MarshalIndent(p.data, "", "  ")
	p.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encoding fixture: %w", err)
	}
	if path == "" {
		path = p.path
	}
	return os.WriteFile(path, raw, 0644)
}
