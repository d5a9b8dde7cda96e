package feeder

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"lukechampine.com/blake3"

	"assetpool/crypto"
	"assetpool/native/oracle"
	"assetpool/observability"
	"assetpool/services/poold/storage"
)

var (
	// ErrInsufficientFeeds is returned when fewer than the configured number
	// of sources produced a usable quote.
	ErrInsufficientFeeds = errors.New("feeder: insufficient feeds")

	priceScale = decimal.NewFromInt(oracle.PriceScale)
	maxPrice   = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)
)

// Publisher pushes an aggregated price to its consumer.
type Publisher interface {
	Publish(ctx context.Context, update Update) error
}

// PublisherFunc adapts ordinary functions to Publisher.
type PublisherFunc func(ctx context.Context, update Update) error

// Publish implements Publisher.
func (f PublisherFunc) Publish(ctx context.Context, update Update) error {
	if f == nil {
		return nil
	}
	return f(ctx, update)
}

// Update is the result of one aggregation round.
type Update struct {
	Base    string
	Quote   string
	Median  string
	Price   uint64
	Feeders []string
	ProofID string
	Time    time.Time
}

// OraclePublisher submits updates to the price oracle as the trusted feeder.
type OraclePublisher struct {
	Oracle *oracle.Oracle
	Feeder crypto.Address
}

// Publish implements Publisher.
func (p OraclePublisher) Publish(ctx context.Context, update Update) error {
	if p.Oracle == nil {
		return fmt.Errorf("feeder: oracle not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.Oracle.UpdatePrice(p.Feeder, update.Price, uint64(update.Time.UnixMilli()))
}

// Pair identifies a base/quote pair.
type Pair struct {
	Base  string
	Quote string
}

// Manager polls the configured sources, aggregates their median and
// publishes it.
type Manager struct {
	logger    *slog.Logger
	storage   *storage.Storage
	sources   []Source
	pair      Pair
	minFeeds  int
	maxAge    time.Duration
	interval  time.Duration
	publisher Publisher
	now       func() time.Time
	once      sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger installs a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithStorage records every sample and snapshot in the audit store.
func WithStorage(store *storage.Storage) Option {
	return func(m *Manager) {
		m.storage = store
	}
}

// New constructs a manager instance.
func New(publisher Publisher, sources []Source, pair Pair, interval, maxAge time.Duration, minFeeds int, opts ...Option) (*Manager, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher required")
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("at least one source required")
	}
	if strings.TrimSpace(pair.Base) == "" || strings.TrimSpace(pair.Quote) == "" {
		return nil, fmt.Errorf("invalid pair configuration")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	if maxAge <= 0 {
		maxAge = time.Minute
	}
	if minFeeds <= 0 {
		minFeeds = 1
	}
	mgr := &Manager{
		logger:    slog.Default(),
		sources:   append([]Source{}, sources...),
		pair:      Pair{Base: normaliseSymbol(pair.Base), Quote: normaliseSymbol(pair.Quote)},
		interval:  interval,
		maxAge:    maxAge,
		minFeeds:  minFeeds,
		publisher: publisher,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(mgr)
		}
	}
	return mgr, nil
}

// Run blocks, periodically polling upstream feeds until the context is
// cancelled.
func (m *Manager) Run(ctx context.Context) error {
	if m == nil {
		return fmt.Errorf("manager not configured")
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.once.Do(func() {
		m.logger.Info("feeder started", "sources", len(m.sources), "pair", m.pair.Base+"/"+m.pair.Quote)
	})
	for {
		if _, err := m.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Warn("feeder tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs a single aggregation round and returns the published update.
func (m *Manager) Tick(ctx context.Context) (Update, error) {
	if m == nil {
		return Update{}, fmt.Errorf("manager not configured")
	}
	metrics := observability.Oracle()
	base, quote := m.pair.Base, m.pair.Quote
	now := m.now()
	quotes := make([]decimal.Decimal, 0, len(m.sources))
	feeders := make([]string, 0, len(m.sources))
	for _, src := range m.sources {
		if src == nil {
			continue
		}
		out, err := src.Fetch(ctx, base, quote)
		if err == nil {
			err = m.checkQuote(out, now)
		}
		metrics.RecordFetch(src.Name(), err)
		if err != nil {
			m.logger.Warn("feed rejected", "source", src.Name(), "pair", base+"/"+quote, "error", err)
			continue
		}
		feeders = append(feeders, src.Name())
		quotes = append(quotes, out.Rate)
		if m.storage != nil {
			if err := m.storage.RecordSample(ctx, base, quote, src.Name(), out.Rate.String(), out.Timestamp, now); err != nil {
				m.logger.Warn("record sample", "error", err)
			}
		}
	}
	if len(quotes) < m.minFeeds {
		return Update{}, fmt.Errorf("%w for %s/%s: %d of %d", ErrInsufficientFeeds, base, quote, len(quotes), m.minFeeds)
	}
	median := Median(quotes)
	price, err := ScalePrice(median)
	if err != nil {
		return Update{}, fmt.Errorf("%s/%s: %w", base, quote, err)
	}
	update := Update{
		Base:    base,
		Quote:   quote,
		Median:  median.StringFixed(18),
		Price:   price,
		Feeders: feeders,
		ProofID: proofID(base, quote, feeders, now),
		Time:    now,
	}
	if m.storage != nil {
		snap := storage.Snapshot{
			MedianRate:     update.Median,
			Price:          price,
			Feeders:        feeders,
			ProofID:        update.ProofID,
			ObservedAtUnix: now.Unix(),
			RecordedAt:     now,
		}
		if err := m.storage.RecordSnapshot(ctx, base, quote, snap); err != nil {
			return Update{}, fmt.Errorf("record snapshot: %w", err)
		}
	}
	err = m.publisher.Publish(ctx, update)
	metrics.RecordPublish(err)
	if err != nil {
		return Update{}, fmt.Errorf("publish update: %w", err)
	}
	metrics.RecordPrice(base, price)
	m.logger.Debug("price published", "pair", base+"/"+quote, "price", price, "feeders", len(feeders), "proof_id", update.ProofID)
	return update, nil
}

func (m *Manager) checkQuote(q Quote, now time.Time) error {
	if !q.Rate.IsPositive() {
		return fmt.Errorf("invalid rate %s", q.Rate)
	}
	if q.Timestamp.After(now.Add(5 * time.Second)) {
		return fmt.Errorf("future timestamp %s", q.Timestamp.UTC().Format(time.RFC3339))
	}
	if m.maxAge > 0 && q.Timestamp.Before(now.Add(-m.maxAge)) {
		return fmt.Errorf("quote expired at %s", q.Timestamp.UTC().Format(time.RFC3339))
	}
	return nil
}

// Median returns the middle rate, averaging the two central rates of an even
// sample set.
func Median(rates []decimal.Decimal) decimal.Decimal {
	if len(rates) == 0 {
		return decimal.Zero
	}
	sorted := append([]decimal.Decimal(nil), rates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2))
}

// ScalePrice converts a decimal rate into the oracle's fixed-point unit,
// rounding down. Rates that floor to zero are rejected.
func ScalePrice(rate decimal.Decimal) (uint64, error) {
	scaled := rate.Mul(priceScale).Floor()
	if !scaled.IsPositive() {
		return 0, fmt.Errorf("rate %s below oracle resolution", rate)
	}
	if scaled.GreaterThan(maxPrice) {
		return 0, fmt.Errorf("rate %s exceeds oracle range", rate)
	}
	return scaled.BigInt().Uint64(), nil
}

func proofID(base, quote string, feeders []string, ts time.Time) string {
	digest := blake3.New(32, nil)
	digest.Write([]byte(base))
	digest.Write([]byte("/"))
	digest.Write([]byte(quote))
	digest.Write([]byte(ts.UTC().Format(time.RFC3339Nano)))
	sorted := append([]string{}, feeders...)
	sort.Strings(sorted)
	for _, f := range sorted {
		digest.Write([]byte(strings.ToLower(strings.TrimSpace(f))))
	}
	return hex.EncodeToString(digest.Sum(nil))
}
