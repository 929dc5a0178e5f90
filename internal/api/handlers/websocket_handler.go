package handlers

import (
	"net/http"

	"auction-engine/internal/clock"
	"auction-engine/internal/domain"
	"auction-engine/internal/infrastructure/websocket"
	"auction-engine/pkg/logger"

	"github.com/gorilla/mux"
)

type WebSocketHandlers struct {
	wsHandler *websocket.WebSocketHandler
}

func NewWebSocketHandlers(bids websocket.BidSubmitter, prices websocket.PriceReader,
	connManager domain.ConnectionManager, clk clock.Clock, log logger.Logger) *WebSocketHandlers {
	return &WebSocketHandlers{
		wsHandler: websocket.NewWebSocketHandler(bids, prices, connManager, clk, log),
	}
}

func (h *WebSocketHandlers) Register(router *mux.Router) {
	router.HandleFunc("/ws/auction/{auctionID}", h.HandleConnection)
}

func (h *WebSocketHandlers) HandleConnection(w http.ResponseWriter, r *http.Request) {
	h.wsHandler.HandleConnection(w, r)
}
