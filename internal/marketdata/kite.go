package marketdata

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	apperrors "optpnl/internal/errors"
	"optpnl/internal/logging"
	"optpnl/internal/models"
)

// SnapshotDefaults fills fields Kite does not report. Values are percent-scaled;
// zero leaves the field missing.
type SnapshotDefaults struct {
	FinanceRate float64
	DivYield    float64
	IVol        float64
}

// KiteConfig holds configuration for the Kite Connect provider.
type KiteConfig struct {
	APIKey      string
	AccessToken string
	// Exchange holding the option instruments, NFO by default.
	Exchange string
	// EquityExchange prefixes bare equity tickers, NSE by default.
	EquityExchange string
	Defaults       SnapshotDefaults
}

// kiteClient is the subset of the Kite Connect client the provider uses.
type kiteClient interface {
	GetQuote(instruments ...string) (kiteconnect.Quote, error)
	GetInstruments() (kiteconnect.Instruments, error)
}

// KiteProvider serves market data from Zerodha Kite Connect. Kite has no
// descriptive security names, so option instruments are exposed under
// generated descriptions of the form "NIFTY IN 12/26/24 C24000 Equity".
type KiteProvider struct {
	client   kiteClient
	cfg      KiteConfig
	logger   zerolog.Logger
	mu       sync.RWMutex
	bySymbol map[string]string              // description -> EXCHANGE:tradingsymbol
	chains   map[string][]string            // underlying -> descriptions
	loadedAt time.Time
}

// NewKiteProvider creates a provider authenticated with cfg's access token.
func NewKiteProvider(cfg KiteConfig, logger zerolog.Logger) (*KiteProvider, error) {
	if cfg.APIKey == "" || cfg.AccessToken == "" {
		return nil, apperrors.NewProviderError("kite", "", "api key and access token are required", apperrors.ErrNotAuthenticated)
	}
	client := kiteconnect.New(cfg.APIKey)
	client.SetAccessToken(cfg.AccessToken)
	return newKiteProvider(client, cfg, logger), nil
}

func newKiteProvider(client kiteClient, cfg KiteConfig, logger zerolog.Logger) *KiteProvider {
	if cfg.Exchange == "" {
		cfg.Exchange = "NFO"
	}
	if cfg.EquityExchange == "" {
		cfg.EquityExchange = "NSE"
	}
	return &KiteProvider{
		client:   client,
		cfg:      cfg,
		logger:   logging.WithOperation(logger, "kite"),
		bySymbol: make(map[string]string),
		chains:   make(map[string][]string),
	}
}

// Name implements Provider.
func (k *KiteProvider) Name() string { return "kite" }

// KiteDescription builds the description under which an option instrument is
// exposed.
func KiteDescription(inst kiteconnect.Instrument) (string, bool) {
	var right string
	switch inst.InstrumentType {
	case "CE":
		right = "C"
	case "PE":
		right = "P"
	default:
		return "", false
	}
	root := descriptionRoot(inst.Name)
	if root == "" || inst.Expiry.Time.IsZero() {
		return "", false
	}
	return fmt.Sprintf("%s IN %s %s%s Equity",
		root, inst.Expiry.Time.Format("01/02/06"), right, FormatStrike(inst.StrikePrice)), true
}

// descriptionRoot keeps the characters a description root may contain.
func descriptionRoot(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// loadInstruments fetches the instrument dump once and indexes the options of
// the configured exchange.
func (k *KiteProvider) loadInstruments() error {
	k.mu.RLock()
	loaded := !k.loadedAt.IsZero()
	k.mu.RUnlock()
	if loaded {
		return nil
	}

	start := time.Now()
	instruments, err := k.client.GetInstruments()
	logging.LogAPICall(k.logger, "GET", "instruments", time.Since(start), err)
	if err != nil {
		return apperrors.NewProviderError(k.Name(), k.cfg.Exchange, "fetching instruments", err)
	}

	bySymbol := make(map[string]string)
	chains := make(map[string][]string)
	for _, inst := range instruments {
		if inst.Exchange != k.cfg.Exchange {
			continue
		}
		desc, ok := KiteDescription(inst)
		if !ok {
			continue
		}
		bySymbol[desc] = inst.Exchange + ":" + inst.Tradingsymbol
		root := descriptionRoot(inst.Name)
		chains[root] = append(chains[root], desc)
	}

	k.mu.Lock()
	k.bySymbol = bySymbol
	k.chains = chains
	k.loadedAt = time.Now()
	k.mu.Unlock()

	k.logger.Debug().Int("options", len(bySymbol)).Int("underlyings", len(chains)).Msg("Instruments loaded")
	return nil
}

// OptionSnapshot implements Provider. Depth gives bid and ask; the last
// traded price stands in for mid only when the book is empty on both sides.
func (k *KiteProvider) OptionSnapshot(ctx context.Context, security string) (models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.Snapshot{}, err
	}
	if err := k.loadInstruments(); err != nil {
		return models.Snapshot{}, err
	}

	k.mu.RLock()
	symbol, ok := k.bySymbol[strings.TrimSpace(security)]
	k.mu.RUnlock()
	if !ok {
		return models.Snapshot{}, apperrors.NewProviderError(k.Name(), security, "unknown instrument", apperrors.ErrSnapshotNotFound)
	}

	start := time.Now()
	quotes, err := k.client.GetQuote(symbol)
	logging.LogAPICall(k.logger, "GET", "quote "+symbol, time.Since(start), err)
	if err != nil {
		return models.Snapshot{}, apperrors.NewProviderError(k.Name(), security, "fetching quote", err)
	}
	q, ok := quotes[symbol]
	if !ok {
		return models.Snapshot{}, apperrors.NewProviderError(k.Name(), security, "quote missing from response", apperrors.ErrSnapshotNotFound)
	}

	var snap models.Snapshot
	if len(q.Depth.Buy) > 0 && q.Depth.Buy[0].Price > 0 {
		snap.Bid = models.Float(q.Depth.Buy[0].Price)
	}
	if len(q.Depth.Sell) > 0 && q.Depth.Sell[0].Price > 0 {
		snap.Ask = models.Float(q.Depth.Sell[0].Price)
	}
	switch {
	case snap.Bid != nil && snap.Ask != nil:
		snap.Mid = models.Float((*snap.Bid + *snap.Ask) / 2)
	case snap.Bid == nil && snap.Ask == nil && q.LastPrice > 0:
		snap.Mid = models.Float(q.LastPrice)
	}

	snap.FinanceRate = positive(k.cfg.Defaults.FinanceRate)
	snap.DivYield = positive(k.cfg.Defaults.DivYield)
	snap.IVol = positive(k.cfg.Defaults.IVol)
	return snap, nil
}

// EquityMid implements Provider.
func (k *KiteProvider) EquityMid(ctx context.Context, ticker string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	symbol := strings.TrimSpace(ticker)
	if fields := strings.Fields(symbol); len(fields) > 1 {
		symbol = fields[0]
	}
	if !strings.Contains(symbol, ":") {
		symbol = k.cfg.EquityExchange + ":" + symbol
	}

	start := time.Now()
	quotes, err := k.client.GetQuote(symbol)
	logging.LogAPICall(k.logger, "GET", "quote "+symbol, time.Since(start), err)
	if err != nil {
		return 0, apperrors.NewProviderError(k.Name(), ticker, "fetching quote", err)
	}
	q, ok := quotes[symbol]
	if !ok {
		return 0, apperrors.NewProviderError(k.Name(), ticker, "quote missing from response", apperrors.ErrSymbolNotFound)
	}

	bid, ask := 0.0, 0.0
	if len(q.Depth.Buy) > 0 {
		bid = q.Depth.Buy[0].Price
	}
	if len(q.Depth.Sell) > 0 {
		ask = q.Depth.Sell[0].Price
	}
	if bid > 0 && ask > 0 {
		return (bid + ask) / 2, nil
	}
	if q.LastPrice > 0 {
		return q.LastPrice, nil
	}
	return 0, apperrors.NewProviderError(k.Name(), ticker, "no price", apperrors.ErrSymbolNotFound)
}

// OptionChain implements Provider.
func (k *KiteProvider) OptionChain(ctx context.Context, underlying string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := k.loadInstruments(); err != nil {
		return nil, err
	}

	root := underlying
	if fields := strings.Fields(underlying); len(fields) > 0 {
		root = fields[0]
	}
	root = descriptionRoot(root)

	k.mu.RLock()
	descs := append([]string(nil), k.chains[root]...)
	k.mu.RUnlock()
	if len(descs) == 0 {
		return nil, apperrors.NewProviderError(k.Name(), underlying, "no option chain", apperrors.ErrSymbolNotFound)
	}
	return descs, nil
}

func positive(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	return models.Float(v)
}
