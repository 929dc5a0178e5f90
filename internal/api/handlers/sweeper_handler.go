package handlers

import (
	"net/http"

	"auction-engine/pkg/logger"

	"github.com/labstack/echo/v4"
)

type FailureResetter interface {
	Failures(auctionID string) int
	ResetFailures(auctionID string)
}

// SweeperHandler lets an operator inspect and lift a sweeper quarantine.
type SweeperHandler struct {
	sweeper FailureResetter
	log     logger.Logger
}

func NewSweeperHandler(sweeper FailureResetter, log logger.Logger) *SweeperHandler {
	return &SweeperHandler{sweeper: sweeper, log: log}
}

func (h *SweeperHandler) Register(g *echo.Group) {
	g.GET("/sweeper/auctions/:id", h.GetFailures)
	g.POST("/sweeper/auctions/:id/reset", h.Reset)
}

func (h *SweeperHandler) GetFailures(c echo.Context) error {
	auctionID := c.Param("id")
	return c.JSON(http.StatusOK, map[string]interface{}{
		"auction_id": auctionID,
		"failures":   h.sweeper.Failures(auctionID),
	})
}

func (h *SweeperHandler) Reset(c echo.Context) error {
	auctionID := c.Param("id")
	previous := h.sweeper.Failures(auctionID)
	h.sweeper.ResetFailures(auctionID)
	h.log.Info("Sweeper quarantine reset by operator", "auction_id", auctionID, "failures", previous)
	return c.NoContent(http.StatusNoContent)
}
