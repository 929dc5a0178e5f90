package domain

import (
	"github.com/shopspring/decimal"
)

// AmountScale is the number of fractional digits the ledger stores.
const AmountScale = 4

// minimumStep is the smallest amount the ledger can tell apart. It is the
// increment when an auction has no positive minIncrement.
var minimumStep = decimal.New(1, -AmountScale)

// ValidAmount reports whether amount is positive and representable in the
// ledger without rounding.
func ValidAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Truncate(AmountScale))
}

// FormatAmount renders amount with two decimals unless that would hide digits.
func FormatAmount(amount decimal.Decimal) string {
	if amount.Equal(amount.Truncate(2)) {
		return amount.StringFixed(2)
	}
	return amount.String()
}

// ResolveWinner picks the highest bid. Equal amounts go to the earliest
// timestamp, and equal timestamps to the lowest bid id so the result never
// depends on input order. Returns nil for no bids.
func ResolveWinner(bids []*Bid) *Bid {
	var winner *Bid
	for _, b := range bids {
		if b == nil {
			continue
		}
		if winner == nil || outranks(b, winner) {
			winner = b
		}
	}
	return winner
}

func outranks(a, b *Bid) bool {
	if c := a.Amount.Cmp(b.Amount); c != 0 {
		return c > 0
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.ID < b.ID
}

// DistinctBidders lists each bidder once, in order of their first bid, leaving
// out exclude.
func DistinctBidders(bids []*Bid, exclude string) []string {
	seen := make(map[string]bool, len(bids))
	bidders := make([]string, 0, len(bids))
	for _, b := range bids {
		if b == nil || b.BidderID == exclude || seen[b.BidderID] {
			continue
		}
		seen[b.BidderID] = true
		bidders = append(bidders, b.BidderID)
	}
	return bidders
}

func step(a *Auction) decimal.Decimal {
	if a.MinIncrement.GreaterThan(decimal.Zero) {
		return a.MinIncrement
	}
	return minimumStep
}

// RequiredMinimum is the lowest amount the auction accepts next.
func RequiredMinimum(a *Auction) decimal.Decimal {
	if !a.CurrentPrice.Valid {
		return a.StartingPrice
	}
	return a.CurrentPrice.Decimal.Add(step(a))
}

// MeetsFloor checks amount against RequiredMinimum: the starting price before
// the first bid, then the current price plus one step.
func MeetsFloor(a *Auction, amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(RequiredMinimum(a))
}
