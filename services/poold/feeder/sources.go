package feeder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a single upstream observation of how many quote units one base
// unit is worth.
type Quote struct {
	Rate      decimal.Decimal
	Timestamp time.Time
	Source    string
}

// Source resolves a price quote for a currency pair.
type Source interface {
	Name() string
	Fetch(ctx context.Context, base, quote string) (Quote, error)
}

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SourceConfig mirrors the service configuration of a single feed.
type SourceConfig struct {
	Name     string
	Type     string
	Endpoint string
	APIKey   string
	Assets   map[string]string
	Price    string
}

// Registry constructs sources based on configuration.
type Registry struct {
	HTTPClient HTTPDoer
}

// NewRegistry builds a registry with sane defaults.
func NewRegistry() *Registry {
	return &Registry{HTTPClient: &http.Client{Timeout: 10 * time.Second}}
}

// Build creates a source from the supplied configuration.
func (r *Registry) Build(cfg SourceConfig) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "manual":
		src := NewManualSource(label(cfg.Name, "manual"))
		if strings.TrimSpace(cfg.Price) != "" {
			if err := src.SetDecimal(cfg.Price); err != nil {
				return nil, err
			}
		}
		return src, nil
	case "nowpayments":
		return NewNowPaymentsSource(r.client(), label(cfg.Name, "nowpayments"), cfg.Endpoint, cfg.APIKey), nil
	case "coingecko":
		return NewCoinGeckoSource(r.client(), label(cfg.Name, "coingecko"), cfg.Endpoint, cfg.Assets), nil
	default:
		return nil, fmt.Errorf("unknown feed type %q", cfg.Type)
	}
}

func (r *Registry) client() HTTPDoer {
	if r != nil && r.HTTPClient != nil {
		return r.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// ManualSource serves an operator-set rate, stamped with the wall clock at
// fetch time. It backs fixed-rate deployments and incident overrides.
type ManualSource struct {
	name string

	mu   sync.RWMutex
	rate decimal.Decimal
	set  bool
	now  func() time.Time
}

// NewManualSource constructs an empty manual source.
func NewManualSource(name string) *ManualSource {
	return &ManualSource{name: label(name, "manual"), now: time.Now}
}

func (m *ManualSource) Name() string { return m.name }

// SetDecimal records the supplied decimal rate.
func (m *ManualSource) SetDecimal(rate string) error {
	if m == nil {
		return fmt.Errorf("manual source not configured")
	}
	trimmed := strings.TrimSpace(rate)
	if trimmed == "" {
		return fmt.Errorf("manual source: rate required")
	}
	parsed, err := decimal.NewFromString(trimmed)
	if err != nil {
		return fmt.Errorf("manual source: invalid rate %q", rate)
	}
	if !parsed.IsPositive() {
		return fmt.Errorf("manual source: rate must be positive")
	}
	m.mu.Lock()
	m.rate = parsed
	m.set = true
	m.mu.Unlock()
	return nil
}

func (m *ManualSource) Fetch(ctx context.Context, base, quote string) (Quote, error) {
	if m == nil {
		return Quote{}, fmt.Errorf("manual source not configured")
	}
	if err := ctx.Err(); err != nil {
		return Quote{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.set {
		return Quote{}, fmt.Errorf("manual source: no rate for %s/%s", normaliseSymbol(base), normaliseSymbol(quote))
	}
	return Quote{Rate: m.rate, Timestamp: m.now(), Source: m.name}, nil
}

const defaultNowPaymentsEndpoint = "https://api.nowpayments.io/v1/exchange/rates"

// NowPaymentsSource fetches price data from the NOWPayments rate endpoint.
type NowPaymentsSource struct {
	name     string
	client   HTTPDoer
	endpoint string
	apiKey   string
}

// NewNowPaymentsSource constructs a NOWPayments adapter. The API key is only
// sent when supplied.
func NewNowPaymentsSource(client HTTPDoer, name, endpoint, apiKey string) *NowPaymentsSource {
	ep := strings.TrimSpace(endpoint)
	if ep == "" {
		ep = defaultNowPaymentsEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &NowPaymentsSource{name: label(name, "nowpayments"), client: client, endpoint: ep, apiKey: strings.TrimSpace(apiKey)}
}

func (s *NowPaymentsSource) Name() string { return s.name }

func (s *NowPaymentsSource) Fetch(ctx context.Context, base, quote string) (Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return Quote{}, err
	}
	values := url.Values{}
	values.Set("from", normaliseSymbol(base))
	values.Set("to", normaliseSymbol(quote))
	req.URL.RawQuery = values.Encode()
	if s.apiKey != "" {
		req.Header.Set("x-api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Quote{}, fmt.Errorf("nowpayments: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload struct {
		Rate      string `json:"rate"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Quote{}, fmt.Errorf("nowpayments: decode: %w", err)
	}
	rate, err := parseRate(payload.Rate)
	if err != nil {
		return Quote{}, fmt.Errorf("nowpayments: %w", err)
	}
	return Quote{Rate: rate, Timestamp: time.Unix(payload.Timestamp, 0), Source: s.name}, nil
}

const defaultCoinGeckoEndpoint = "https://api.coingecko.com/api/v3/simple/price"

// CoinGeckoSource adapts the public CoinGecko simple price API. The asset map
// translates ledger symbols into CoinGecko identifiers.
type CoinGeckoSource struct {
	name     string
	client   HTTPDoer
	endpoint string
	ids      map[string]string
}

// NewCoinGeckoSource constructs a CoinGecko adapter.
func NewCoinGeckoSource(client HTTPDoer, name, endpoint string, ids map[string]string) *CoinGeckoSource {
	ep := strings.TrimSpace(endpoint)
	if ep == "" {
		ep = defaultCoinGeckoEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	mapped := make(map[string]string, len(ids))
	for k, v := range ids {
		mapped[normaliseSymbol(k)] = strings.TrimSpace(v)
	}
	return &CoinGeckoSource{name: label(name, "coingecko"), client: client, endpoint: ep, ids: mapped}
}

func (s *CoinGeckoSource) Name() string { return s.name }

func (s *CoinGeckoSource) assetID(symbol string) string {
	if id, ok := s.ids[normaliseSymbol(symbol)]; ok && id != "" {
		return id
	}
	return strings.ToLower(strings.TrimSpace(symbol))
}

// Fetch asks CoinGecko for the base asset priced in the quote currency.
func (s *CoinGeckoSource) Fetch(ctx context.Context, base, quote string) (Quote, error) {
	id := s.assetID(base)
	if id == "" {
		return Quote{}, fmt.Errorf("coingecko: unmapped asset %s", base)
	}
	vs := s.assetID(quote)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return Quote{}, err
	}
	values := url.Values{}
	values.Set("ids", id)
	values.Set("vs_currencies", vs)
	values.Set("include_last_updated_at", "true")
	req.URL.RawQuery = values.Encode()
	resp, err := s.client.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Quote{}, fmt.Errorf("coingecko: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	var payload map[string]map[string]json.Number
	if err := decoder.Decode(&payload); err != nil {
		return Quote{}, fmt.Errorf("coingecko: decode: %w", err)
	}
	entry, ok := payload[id]
	if !ok {
		return Quote{}, fmt.Errorf("coingecko: quote missing for %s", base)
	}
	raw, ok := entry[vs]
	if !ok {
		return Quote{}, fmt.Errorf("coingecko: %s not quoted in %s", base, vs)
	}
	rate, err := parseRate(raw.String())
	if err != nil {
		return Quote{}, fmt.Errorf("coingecko: %w", err)
	}
	ts := time.Now().UTC()
	if rawTs, exists := entry["last_updated_at"]; exists {
		if parsed, err := strconv.ParseInt(rawTs.String(), 10, 64); err == nil && parsed > 0 {
			ts = time.Unix(parsed, 0)
		}
	}
	return Quote{Rate: rate, Timestamp: ts, Source: s.name}, nil
}

func parseRate(raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, fmt.Errorf("empty rate")
	}
	rate, err := decimal.NewFromString(trimmed)
	if err != nil || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("invalid rate %q", raw)
	}
	return rate, nil
}

func normaliseSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func label(name, fallback string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed != "" {
		return trimmed
	}
	return fallback
}
