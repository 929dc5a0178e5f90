package services

import (
	"context"

	"auction-engine/pkg/logger"
)

// LogAlerter reports operator alerts at error level.
type LogAlerter struct {
	log logger.Logger
}

func NewLogAlerter(log logger.Logger) *LogAlerter {
	return &LogAlerter{log: log}
}

func (a *LogAlerter) Alert(_ context.Context, auctionID, message string, cause error) {
	a.log.Error("OPERATOR ALERT", "auction_id", auctionID, "message", message, "error", cause)
}
