package handlers

import (
	"context"
	"errors"
	"net/http"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type BidGateway interface {
	SubmitBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (domain.BidResult, error)
	CurrentPrice(ctx context.Context, auctionID string) (domain.PriceSnapshot, error)
}

type AuctionFinalizer interface {
	FinalizeAuction(ctx context.Context, auctionID string) (domain.FinalizeResult, error)
}

type AuctionHandler struct {
	bids      BidGateway
	finalizer AuctionFinalizer
	log       logger.Logger
}

type PlaceBidRequest struct {
	BidderID string          `json:"bidder_id"`
	Amount   decimal.Decimal `json:"amount"`
}

type BidResponse struct {
	Outcome         string           `json:"outcome"`
	Bid             *domain.Bid      `json:"bid,omitempty"`
	Reason          string           `json:"reason,omitempty"`
	RequiredMinimum *decimal.Decimal `json:"required_minimum,omitempty"`
}

type FinalizeResponse struct {
	Outcome string      `json:"outcome"`
	Winner  *domain.Bid `json:"winner"`
}

func NewAuctionHandler(bids BidGateway, finalizer AuctionFinalizer, log logger.Logger) *AuctionHandler {
	return &AuctionHandler{
		bids:      bids,
		finalizer: finalizer,
		log:       log,
	}
}

func (h *AuctionHandler) Register(g *echo.Group) {
	g.GET("/auctions/:id", h.GetAuction)
	g.POST("/auctions/:id/bids", h.PlaceBid)
	g.POST("/auctions/:id/finalize", h.FinalizeAuction)
}

func (h *AuctionHandler) PlaceBid(c echo.Context) error {
	auctionID := c.Param("id")

	var req PlaceBidRequest
	if err := c.Bind(&req); err != nil {
		h.log.Debug("Failed to bind bid request", "auction_id", auctionID, "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if req.BidderID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bidder_id is required"})
	}
	if !domain.ValidAmount(req.Amount) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Amount must be positive with at most 4 decimals"})
	}

	result, err := h.bids.SubmitBid(c.Request().Context(), auctionID, req.BidderID, req.Amount)
	if errors.Is(err, domain.ErrInvalidAmount) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Amount must be positive with at most 4 decimals"})
	}
	if errors.Is(err, domain.ErrPriceContention) {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Auction is busy, retry"})
	}
	if err != nil {
		h.log.Error("Failed to place bid", "auction_id", auctionID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to place bid"})
	}

	resp := BidResponse{Outcome: result.Outcome.String(), Bid: result.Bid, Reason: string(result.Reason)}

	switch result.Outcome {
	case domain.BidAccepted:
		return c.JSON(http.StatusCreated, resp)
	case domain.BidAuctionNotActive:
		return c.JSON(http.StatusConflict, resp)
	case domain.BidBidderUnauthorized:
		return c.JSON(http.StatusForbidden, resp)
	case domain.BidTooLow:
		minimum := result.RequiredMinimum
		resp.RequiredMinimum = &minimum
		return c.JSON(http.StatusUnprocessableEntity, resp)
	default:
		return c.JSON(http.StatusUnprocessableEntity, resp)
	}
}

func (h *AuctionHandler) FinalizeAuction(c echo.Context) error {
	auctionID := c.Param("id")

	result, err := h.finalizer.FinalizeAuction(c.Request().Context(), auctionID)
	if err != nil {
		h.log.Error("Failed to finalize auction", "auction_id", auctionID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to finalize auction"})
	}
	if result.Outcome == domain.FinalizeNotFound {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Auction not found"})
	}

	return c.JSON(http.StatusOK, FinalizeResponse{Outcome: result.Outcome.String(), Winner: result.Winner})
}

func (h *AuctionHandler) GetAuction(c echo.Context) error {
	auctionID := c.Param("id")

	snap, err := h.bids.CurrentPrice(c.Request().Context(), auctionID)
	if errors.Is(err, domain.ErrAuctionNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Auction not found"})
	}
	if err != nil {
		h.log.Error("Failed to read auction price", "auction_id", auctionID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to read auction"})
	}
	return c.JSON(http.StatusOK, snap)
}
