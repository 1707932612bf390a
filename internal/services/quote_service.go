package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aristath/nestegg/internal/clientdata"
	"github.com/aristath/nestegg/internal/domain"
	"github.com/rs/zerolog"
)

// maxParallelQuotes bounds concurrent upstream calls in GetPrices.
const maxParallelQuotes = 8

// cachedQuote is the structure stored in the cache
type cachedQuote struct {
	Price     float64   `json:"price"`
	FetchedAt time.Time `json:"fetched_at"`
}

func (q cachedQuote) toDomain(stale bool) domain.Quote {
	return domain.Quote{Price: q.Price, FetchedAt: q.FetchedAt, Stale: stale}
}

// QuoteService resolves prices cache-first with stale fallback. It implements domain.QuoteResolver.
type QuoteService struct {
	upstream domain.QuoteProvider
	cache    *clientdata.Cache
	repo     *clientdata.Repository
	timeout  time.Duration
	ttl      time.Duration
	log      zerolog.Logger
}

var _ domain.QuoteResolver = (*QuoteService)(nil)

// NewQuoteService creates a quote service. upstream and repo are optional.
func NewQuoteService(
	upstream domain.QuoteProvider,
	cache *clientdata.Cache,
	repo *clientdata.Repository,
	timeout time.Duration,
	ttl time.Duration,
	log zerolog.Logger,
) *QuoteService {
	if cache == nil {
		cache = clientdata.NewCache()
	}
	if ttl <= 0 {
		ttl = clientdata.TTLQuote
	}
	return &QuoteService{
		upstream: upstream,
		cache:    cache,
		repo:     repo,
		timeout:  timeout,
		ttl:      ttl,
		log:      log.With().Str("service", "quotes").Logger(),
	}
}

// GetPrice returns the price from GetQuote, stale or not.
func (s *QuoteService) GetPrice(ctx context.Context, symbol string) (float64, error) {
	q, err := s.GetQuote(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return q.Price, nil
}

// GetQuote resolves a price with tiered fallback:
// 1. Fresh entry in the memory cache
// 2. Fresh entry in the persistent cache
// 3. Upstream provider, bounded by the service timeout
// 4. Stale entry from either cache, returned with Stale set
func (s *QuoteService) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	if q, ok := decodeQuote(s.cache.GetIfFresh(clientdata.TableQuotes, symbol)); ok {
		return q.toDomain(false), nil
	}
	if s.repo != nil {
		if q, ok := decodeQuote(s.repo.GetIfFresh(ctx, clientdata.TableQuotes, symbol)); ok {
			s.storeMemory(symbol, q)
			return q.toDomain(false), nil
		}
	}

	upstreamErr := fmt.Errorf("no upstream quote provider")
	if s.upstream != nil {
		price, err := s.fetch(ctx, symbol)
		if err == nil {
			q := cachedQuote{Price: price, FetchedAt: time.Now()}
			s.storeMemory(symbol, q)
			if s.repo != nil {
				if err := s.repo.Store(ctx, clientdata.TableQuotes, symbol, q, s.ttl); err != nil {
					s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to persist quote")
				}
			}
			return q.toDomain(false), nil
		}
		upstreamErr = err
	}

	if q, ok := s.stale(ctx, symbol); ok {
		s.log.Warn().
			Err(upstreamErr).
			Str("symbol", symbol).
			Float64("price", q.Price).
			Time("fetched_at", q.FetchedAt).
			Msg("Quote fetch failed, using stale cached price")
		return q.toDomain(true), nil
	}

	return domain.Quote{}, fmt.Errorf("%s: %w: %v", symbol, domain.ErrPriceUnavailable, upstreamErr)
}

// GetPrices resolves many symbols concurrently. Symbols with no price are omitted.
func (s *QuoteService) GetPrices(ctx context.Context, symbols []string) map[string]float64 {
	out := make(map[string]float64, len(symbols))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxParallelQuotes)

	for _, sym := range symbols {
		wg.Add(1)
		sem <- struct{}{}
		go func(sym string) {
			defer wg.Done()
			defer func() { <-sem }()
			price, err := s.GetPrice(ctx, sym)
			if err != nil {
				s.log.Debug().Err(err).Str("symbol", sym).Msg("Price unavailable")
				return
			}
			mu.Lock()
			out[strings.ToUpper(strings.TrimSpace(sym))] = price
			mu.Unlock()
		}(sym)
	}
	wg.Wait()
	return out
}

func (s *QuoteService) fetch(ctx context.Context, symbol string) (float64, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	price, err := s.upstream.GetPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if price <= 0 {
		return 0, fmt.Errorf("upstream returned non-positive price %v", price)
	}
	return price, nil
}

func (s *QuoteService) storeMemory(symbol string, q cachedQuote) {
	if err := s.cache.Store(clientdata.TableQuotes, symbol, q, s.ttl); err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache quote")
	}
}

func (s *QuoteService) stale(ctx context.Context, symbol string) (cachedQuote, bool) {
	data, _, err := s.cache.Get(clientdata.TableQuotes, symbol)
	if q, ok := decodeQuote(data, err); ok {
		return q, true
	}
	if s.repo != nil {
		return decodeQuote(s.repo.Get(ctx, clientdata.TableQuotes, symbol))
	}
	return cachedQuote{}, false
}

func decodeQuote(data json.RawMessage, err error) (cachedQuote, bool) {
	if err != nil || data == nil {
		return cachedQuote{}, false
	}
	var q cachedQuote
	if err := json.Unmarshal(data, &q); err != nil || q.Price <= 0 {
		return cachedQuote{}, false
	}
	return q, true
}
