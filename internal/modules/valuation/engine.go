// Package valuation prices a portfolio and derives P/L, allocation and risk metrics.
package valuation

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aristath/nestegg/internal/domain"
	"github.com/aristath/nestegg/internal/modules/ledger"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
)

const maxConcurrentQuotes = 8

// Engine values portfolios. It never mutates the portfolio it is given.
type Engine struct {
	quotes        domain.QuoteProvider
	metadata      domain.SymbolMetadataProvider
	thresholds    domain.Thresholds
	manualMarkets map[string]bool
	log           zerolog.Logger
}

// NewEngine creates a valuation engine. Positions listed on manualMarkets are
// priced from manual overrides instead of live quotes.
func NewEngine(
	quotes domain.QuoteProvider,
	metadata domain.SymbolMetadataProvider,
	thresholds domain.Thresholds,
	manualMarkets []string,
	log zerolog.Logger,
) *Engine {
	markets := make(map[string]bool, len(manualMarkets))
	for _, m := range manualMarkets {
		markets[strings.ToUpper(strings.TrimSpace(m))] = true
	}
	return &Engine{
		quotes:        quotes,
		metadata:      metadata,
		thresholds:    thresholds,
		manualMarkets: markets,
		log:           log.With().Str("component", "valuation").Logger(),
	}
}

type resolvedPrice struct {
	price       float64
	source      PriceSource
	stale       bool
	unavailable bool
	asOf        time.Time
}

// Value prices every position and aggregates the portfolio. Price failures
// degrade per symbol; Value itself never fails.
func (e *Engine) Value(ctx context.Context, p *domain.Portfolio, now time.Time) Valuation {
	prices := e.resolvePrices(ctx, p, now)

	v := Valuation{
		PortfolioID:       p.ID,
		UserID:            p.UserID,
		BaseCurrency:      p.Settings.BaseCurrency,
		AsOf:              now,
		Holdings:          make([]Holding, 0, len(p.Positions)),
		CashBalance:       p.CashBalance.InexactFloat64(),
		ByAssetType:       map[string]float64{},
		ByMarket:          map[string]float64{},
		YTDWithdrawn:      ledger.YTDWithdrawn(p, now).InexactFloat64(),
		InitialValue:      p.Settings.InitialValue.InexactFloat64(),
		StalePrices:       []string{},
		UnavailablePrices: []string{},
	}

	for i, pos := range p.Positions {
		h := e.price(pos, prices[i], now)
		v.Holdings = append(v.Holdings, h)
		v.TotalInvested += h.TotalInvested
		v.TotalPL += h.PL
		if h.PriceStale {
			v.StalePrices = append(v.StalePrices, h.Symbol)
		}
		if h.PriceUnavailable {
			v.UnavailablePrices = append(v.UnavailablePrices, h.Symbol)
		}
	}

	holdingsValue := 0.0
	for _, h := range v.Holdings {
		holdingsValue += h.CurrentValue
	}
	v.TotalValue = holdingsValue + v.CashBalance
	if v.TotalInvested > 0 {
		v.TotalPLPercent = v.TotalPL / v.TotalInvested * 100
	}

	for i := range v.Holdings {
		h := &v.Holdings[i]
		h.Weight = percentOf(h.CurrentValue, v.TotalValue)
		v.ByAssetType[string(h.AssetType)] += h.Weight
		v.ByMarket[h.Market] += h.Weight
	}

	v.Allocation = e.allocation(v)
	v.Concentration = e.concentration(v)
	v.Risk = e.risk(v, holdingsValue)

	sort.Strings(v.StalePrices)
	sort.Strings(v.UnavailablePrices)
	return v
}

func (e *Engine) resolvePrices(ctx context.Context, p *domain.Portfolio, now time.Time) []resolvedPrice {
	out := make([]resolvedPrice, len(p.Positions))
	sem := make(chan struct{}, maxConcurrentQuotes)
	var wg sync.WaitGroup

	for i, pos := range p.Positions {
		manual, hasManual := p.ManualPrices[pos.Symbol]
		manualPrice := resolvedPrice{
			price:  manual.Price.InexactFloat64(),
			source: PriceSourceManual,
			stale:  manual.IsStale(now, e.thresholds.ManualPriceMaxAge),
			asOf:   manual.LastUpdated,
		}

		if e.manualMarkets[pos.Market] || e.quotes == nil {
			if hasManual {
				out[i] = manualPrice
			} else {
				out[i] = resolvedPrice{source: PriceSourceCost, unavailable: true}
			}
			continue
		}

		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			q, err := e.quote(ctx, symbol)
			switch {
			case err == nil && q.Price > 0 && !math.IsInf(q.Price, 0) && q.Stale:
				out[i] = resolvedPrice{price: q.Price, source: PriceSourceCached, stale: true, asOf: q.FetchedAt}
			case err == nil && q.Price > 0 && !math.IsInf(q.Price, 0):
				out[i] = resolvedPrice{price: q.Price, source: PriceSourceLive, asOf: q.FetchedAt}
			case hasManual:
				out[i] = manualPrice
			default:
				e.log.Warn().Err(err).Str("symbol", symbol).Msg("Price unavailable, falling back to average cost")
				out[i] = resolvedPrice{source: PriceSourceCost, unavailable: true}
			}
		}(i, pos.Symbol)
	}
	wg.Wait()
	return out
}

// quote asks the provider for a price, with staleness when it can report it
func (e *Engine) quote(ctx context.Context, symbol string) (domain.Quote, error) {
	if r, ok := e.quotes.(domain.QuoteResolver); ok {
		return r.GetQuote(ctx, symbol)
	}
	price, err := e.quotes.GetPrice(ctx, symbol)
	return domain.Quote{Price: price}, err
}

func (e *Engine) price(pos domain.Position, rp resolvedPrice, now time.Time) Holding {
	qty := pos.TotalQuantity().InexactFloat64()
	avg := pos.AverageCost().InexactFloat64()
	invested := pos.TotalInvested().InexactFloat64()

	price := rp.price
	if rp.unavailable {
		price = avg
	}

	first := pos.FirstPurchaseDate()
	h := Holding{
		Symbol:            pos.Symbol,
		AssetType:         pos.AssetType,
		Market:            pos.Market,
		Quantity:          qty,
		AverageCost:       avg,
		TotalInvested:     invested,
		CurrentPrice:      price,
		CurrentValue:      qty * price,
		PriceSource:       rp.source,
		PriceUnavailable:  rp.unavailable,
		PriceStale:        rp.stale,
		PriceAsOf:         asOf(rp.asOf),
		FirstPurchaseDate: first,
		HoldingDays:       daysBetween(first, now),
		Meta:              domain.MetaOrDefault(e.metadata, pos.Symbol),
		Entries:           make([]EntryPL, 0, len(pos.Entries)),
	}
	h.PL = h.CurrentValue - invested
	h.PLPercent = percentOf(h.PL, invested)

	for _, entry := range pos.Entries {
		eq := entry.Quantity.InexactFloat64()
		ep := entry.Price.InexactFloat64()
		epl := EntryPL{
			Quantity:     eq,
			Price:        ep,
			Date:         entry.Date,
			Invested:     eq * ep,
			CurrentValue: eq * price,
			HoldingDays:  daysBetween(entry.Date, now),
		}
		epl.PL = epl.CurrentValue - epl.Invested
		epl.PLPercent = percentOf(epl.PL, epl.Invested)
		h.Entries = append(h.Entries, epl)
	}
	return h
}

func (e *Engine) allocation(v Valuation) []AllocationItem {
	items := make([]AllocationItem, 0, len(v.Holdings)+1)
	for _, h := range v.Holdings {
		items = append(items, AllocationItem{
			Symbol:  h.Symbol,
			Value:   h.CurrentValue,
			Percent: h.Weight,
			Sector:  h.Meta.Sector,
			Region:  h.Meta.Region,
			Beta:    h.Meta.Beta,
		})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Value > items[j].Value })

	if v.CashBalance > 0 {
		items = append(items, AllocationItem{
			Symbol:  CashSymbol,
			Value:   v.CashBalance,
			Percent: percentOf(v.CashBalance, v.TotalValue),
			Sector:  "Liquidity",
			Region:  v.BaseCurrency,
			Beta:    0,
		})
	}
	return items
}

// concentration reports the largest non-cash holding when it is strictly above the limit.
func (e *Engine) concentration(v Valuation) *ConcentrationAlert {
	largest := v.Largest()
	limit := e.thresholds.ConcentrationLimitPct
	if largest == nil || largest.Weight <= limit {
		return nil
	}
	return &ConcentrationAlert{
		Symbol:              largest.Symbol,
		CurrentPercent:      largest.Weight,
		TargetPercent:       limit,
		SuggestedSellAmount: v.TotalValue * (largest.Weight - limit) / 100,
	}
}

func (e *Engine) risk(v Valuation, holdingsValue float64) RiskMetrics {
	if v.TotalValue <= 0 {
		return RiskMetrics{}
	}

	values := make([]float64, 0, len(v.Holdings)+1)
	betas := make([]float64, 0, len(v.Holdings)+1)
	for _, h := range v.Holdings {
		values = append(values, h.CurrentValue)
		betas = append(betas, h.Meta.Beta)
	}
	values = append(values, v.CashBalance)
	betas = append(betas, 0)

	beta := floats.Dot(values, betas) / floats.Sum(values)
	return RiskMetrics{
		Beta:          beta,
		Volatility:    e.thresholds.VolatilityPerBeta * beta,
		EquityPercent: percentOf(holdingsValue, v.TotalValue),
		CashPercent:   percentOf(v.CashBalance, v.TotalValue),
	}
}

// Rebalance suggests trims down to the target weight for holdings that drift
// more than drift (a fraction, 0.05 = 5 points) above it. A non-positive drift
// falls back to the shared trim threshold.
func (e *Engine) Rebalance(v Valuation, drift float64) RebalancePlan {
	target := e.thresholds.RebalanceTargetPct
	trimAbove := e.thresholds.RebalanceTrimPct
	if drift > 0 {
		trimAbove = target + drift*100
	}

	plan := RebalancePlan{TrimAbovePct: trimAbove, Actions: []RebalanceAction{}}
	for _, h := range v.Holdings {
		if h.Weight <= trimAbove {
			continue
		}
		plan.Actions = append(plan.Actions, RebalanceAction{
			Symbol:         h.Symbol,
			CurrentPercent: h.Weight,
			TargetPercent:  target,
			TrimAmount:     v.TotalValue * (h.Weight - target) / 100,
		})
	}
	sort.SliceStable(plan.Actions, func(i, j int) bool {
		return plan.Actions[i].CurrentPercent > plan.Actions[j].CurrentPercent
	})
	plan.Needed = len(plan.Actions) > 0
	return plan
}

// UsesLiveQuotes reports whether positions on market are priced from the quote provider
func (e *Engine) UsesLiveQuotes(market string) bool {
	return e.quotes != nil && !e.manualMarkets[strings.ToUpper(strings.TrimSpace(market))]
}

// Thresholds returns the rule table the engine was built with
func (e *Engine) Thresholds() domain.Thresholds {
	return e.thresholds
}

func percentOf(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return part * 100 / whole
}

func daysBetween(from, to time.Time) int {
	if from.IsZero() || to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours() / 24)
}

func asOf(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
