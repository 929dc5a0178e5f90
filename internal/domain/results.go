package domain

import "github.com/shopspring/decimal"

type BidOutcome int

const (
	BidAccepted BidOutcome = iota
	BidAuctionNotActive
	BidBidderUnauthorized
	BidBidderIneligible
	BidTooLow
)

func (o BidOutcome) String() string {
	switch o {
	case BidAccepted:
		return "accepted"
	case BidAuctionNotActive:
		return "auction_not_active"
	case BidBidderUnauthorized:
		return "bidder_unauthorized"
	case BidBidderIneligible:
		return "bidder_ineligible"
	case BidTooLow:
		return "bid_too_low"
	default:
		return "unknown"
	}
}

type IneligibleReason string

const (
	ReasonNotValidated      IneligibleReason = "not_validated"
	ReasonMissingCredential IneligibleReason = "missing_credential"
)

// BidResult is the business outcome of a bid submission. Bid is set only when
// accepted, Reason only for BidBidderIneligible and RequiredMinimum only for
// BidTooLow.
type BidResult struct {
	Outcome         BidOutcome
	Bid             *Bid
	Reason          IneligibleReason
	RequiredMinimum decimal.Decimal
}

func (r BidResult) Accepted() bool {
	return r.Outcome == BidAccepted
}

type FinalizeOutcome int

const (
	FinalizedNow FinalizeOutcome = iota
	AlreadyFinalized
	FinalizeNotFound
)

func (o FinalizeOutcome) String() string {
	switch o {
	case FinalizedNow:
		return "finalized"
	case AlreadyFinalized:
		return "already_finalized"
	case FinalizeNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

type FinalizeResult struct {
	Outcome FinalizeOutcome
	Winner  *Bid
}
