package ledger

import (
	"fmt"
	"sort"

	"github.com/aristath/nestegg/internal/domain"
	"github.com/shopspring/decimal"
)

// LotMatcher decides which acquisition lots a sell consumes.
type LotMatcher interface {
	Method() domain.LotMatching
	// Match removes qty from entries. It returns the lots left over, the lots
	// consumed (priced at their cost basis) and the total cost basis sold.
	// qty is positive and never exceeds the total quantity of entries.
	Match(entries []domain.Entry, qty decimal.Decimal) (remaining, consumed []domain.Entry, costBasis decimal.Decimal)
}

// MatcherFor returns the matcher for a configured method, defaulting to average cost.
func MatcherFor(method domain.LotMatching) LotMatcher {
	switch method {
	case domain.LotMatchingFIFO:
		return FIFO{}
	case domain.LotMatchingLIFO:
		return LIFO{}
	default:
		return AverageCost{}
	}
}

// ParseLotMatching validates a user-supplied lot matching method
func ParseLotMatching(s string) (domain.LotMatching, error) {
	switch domain.LotMatching(s) {
	case domain.LotMatchingAverageCost, domain.LotMatchingFIFO, domain.LotMatchingLIFO:
		return domain.LotMatching(s), nil
	case "":
		return domain.LotMatchingAverageCost, nil
	}
	return "", domain.NewValidationError("lot_matching", fmt.Sprintf("unknown method %q", s), nil)
}

// AverageCost sells a proportional slice of every lot, so the average cost of
// what remains is unchanged and invested capital scales by remaining/before.
type AverageCost struct{}

func (AverageCost) Method() domain.LotMatching { return domain.LotMatchingAverageCost }

func (AverageCost) Match(entries []domain.Entry, qty decimal.Decimal) ([]domain.Entry, []domain.Entry, decimal.Decimal) {
	pos := domain.Position{Entries: entries}
	before := pos.TotalQuantity()
	avg := pos.AverageCost()
	left := before.Sub(qty)
	costBasis := qty.Mul(avg)

	remaining := make([]domain.Entry, 0, len(entries))
	consumed := make([]domain.Entry, 0, len(entries))
	allocated := decimal.Zero
	for i, e := range entries {
		var keep decimal.Decimal
		if i == len(entries)-1 {
			// last lot absorbs rounding so the remaining total is exact
			keep = left.Sub(allocated)
		} else {
			keep = e.Quantity.Mul(left).Div(before)
		}
		allocated = allocated.Add(keep)

		if sold := e.Quantity.Sub(keep); sold.IsPositive() {
			consumed = append(consumed, domain.Entry{Quantity: sold, Price: avg, Date: e.Date, Notes: e.Notes})
		}
		if keep.IsPositive() {
			kept := e
			kept.Quantity = keep
			remaining = append(remaining, kept)
		}
	}
	return remaining, consumed, costBasis
}

// FIFO consumes the oldest lots first
type FIFO struct{}

func (FIFO) Method() domain.LotMatching { return domain.LotMatchingFIFO }

func (FIFO) Match(entries []domain.Entry, qty decimal.Decimal) ([]domain.Entry, []domain.Entry, decimal.Decimal) {
	return consumeInOrder(entries, qty, false)
}

// LIFO consumes the newest lots first
type LIFO struct{}

func (LIFO) Method() domain.LotMatching { return domain.LotMatchingLIFO }

func (LIFO) Match(entries []domain.Entry, qty decimal.Decimal) ([]domain.Entry, []domain.Entry, decimal.Decimal) {
	return consumeInOrder(entries, qty, true)
}

func consumeInOrder(entries []domain.Entry, qty decimal.Decimal, newestFirst bool) ([]domain.Entry, []domain.Entry, decimal.Decimal) {
	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		da, db := entries[order[a]].Date, entries[order[b]].Date
		if newestFirst {
			return da.After(db)
		}
		return da.Before(db)
	})

	left := make([]decimal.Decimal, len(entries))
	for i, e := range entries {
		left[i] = e.Quantity
	}

	consumed := make([]domain.Entry, 0)
	costBasis := decimal.Zero
	toSell := qty
	for _, idx := range order {
		if !toSell.IsPositive() {
			break
		}
		take := decimal.Min(toSell, left[idx])
		left[idx] = left[idx].Sub(take)
		toSell = toSell.Sub(take)

		lot := entries[idx]
		consumed = append(consumed, domain.Entry{Quantity: take, Price: lot.Price, Date: lot.Date, Notes: lot.Notes})
		costBasis = costBasis.Add(take.Mul(lot.Price))
	}

	remaining := make([]domain.Entry, 0, len(entries))
	for i, e := range entries {
		if left[i].IsPositive() {
			e.Quantity = left[i]
			remaining = append(remaining, e)
		}
	}
	return remaining, consumed, costBasis
}
