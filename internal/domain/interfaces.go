package domain

import (
	"context"
	"math"
	"time"
)

// QuoteProvider supplies a live price for a symbol. Implementations may be
// slow or unavailable; callers bound them with the context deadline.
type QuoteProvider interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// Quote is a resolved price. Stale marks a last-known value served because
// the provider could not be reached.
type Quote struct {
	Price     float64   `json:"price"`
	FetchedAt time.Time `json:"fetched_at"`
	Stale     bool      `json:"stale"`
}

// QuoteResolver is a QuoteProvider that also reports how fresh a price is
type QuoteResolver interface {
	QuoteProvider
	GetQuote(ctx context.Context, symbol string) (Quote, error)
}

// PortfolioStore persists ledgers. LoadPortfolio returns ErrPortfolioNotFound
// for unknown users.
type PortfolioStore interface {
	LoadPortfolio(ctx context.Context, userID string) (*Portfolio, error)
	SavePortfolio(ctx context.Context, p *Portfolio) error
}

// SymbolMetadataProvider maps a symbol to its static risk attributes
type SymbolMetadataProvider interface {
	Lookup(symbol string) (SymbolMeta, bool)
}

// RiskProfile is the user's stated tolerance, produced by onboarding
type RiskProfile struct {
	Score float64 `json:"score"`
	Label string  `json:"label"`
}

// DefaultRiskScore is used when no usable score is supplied
const DefaultRiskScore = 0.5

// RiskProfileFromScore clamps score to [0,1] and derives its label. NaN maps
// to DefaultRiskScore.
func RiskProfileFromScore(score float64) RiskProfile {
	if math.IsNaN(score) {
		score = DefaultRiskScore
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	label := "aggressive"
	switch {
	case score < 0.3:
		label = "conservative"
	case score < 0.6:
		label = "moderate"
	}
	return RiskProfile{Score: score, Label: label}
}
