package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"auction-engine/internal/clock"
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	writeWait  = 10 * time.Second
	bidTimeout = 10 * time.Second
)

type BidSubmitter interface {
	SubmitBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (domain.BidResult, error)
}

type PriceReader interface {
	CurrentPrice(ctx context.Context, auctionID string) (domain.PriceSnapshot, error)
}

type WebSocketHandler struct {
	bids        BidSubmitter
	prices      PriceReader
	connManager domain.ConnectionManager
	clock       clock.Clock
	upgrader    websocket.Upgrader
	log         logger.Logger
}

func NewWebSocketHandler(bids BidSubmitter, prices PriceReader,
	connManager domain.ConnectionManager, clk clock.Clock, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		bids:        bids,
		prices:      prices,
		connManager: connManager,
		clock:       clk,
		upgrader: websocket.Upgrader{
			// Origin checks are left to the CORS layer in front of the service.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

type clientMessage struct {
	Type   string          `json:"type"`
	Amount decimal.Decimal `json:"amount"`
}

type bidResultMessage struct {
	Type            string           `json:"type"`
	Outcome         string           `json:"outcome"`
	Bid             *domain.Bid      `json:"bid,omitempty"`
	Reason          string           `json:"reason,omitempty"`
	RequiredMinimum *decimal.Decimal `json:"required_minimum,omitempty"`
}

func errorMessage(msg string) map[string]string {
	return map[string]string{"type": "error", "message": msg}
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["auctionID"]
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	snap, err := h.prices.CurrentPrice(r.Context(), auctionID)
	if errors.Is(err, domain.ErrAuctionNotFound) {
		http.Error(w, "auction not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("Failed to load auction", "auction_id", auctionID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if snap.Status != domain.AuctionActive || h.clock.Now().After(snap.EndTime) {
		h.log.Info("Rejected connection, auction not active", "auction_id", auctionID, "user_id", userID)
		http.Error(w, "auction is not active", http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	wsConn := NewWebSocketConnection(conn, userID, auctionID)
	if err := h.connManager.RegisterConnection(userID, auctionID, wsConn); err != nil {
		h.log.Error("Failed to register connection", "error", err)
		_ = wsConn.Close()
		return
	}

	if err := wsConn.Send(map[string]interface{}{"type": "snapshot", "snapshot": snap}); err != nil {
		h.log.Warn("Failed to send initial snapshot", "user_id", userID, "auction_id", auctionID, "error", err)
	}

	go h.handleMessages(wsConn)
}

func (h *WebSocketHandler) handleMessages(conn *WebSocketConnection) {
	defer func() {
		_ = h.connManager.ReleaseConnection(conn)
		_ = conn.Close()
	}()

	for {
		var msg clientMessage
		if err := conn.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("Connection read failed", "user_id", conn.userID, "auction_id", conn.auctionID, "error", err)
			}
			return
		}

		switch msg.Type {
		case "place_bid":
			h.handleBidMessage(conn, msg.Amount)
		case "ping":
			_ = conn.Send(map[string]string{"type": "pong"})
		default:
			_ = conn.Send(errorMessage("unknown message type"))
		}
	}
}

func (h *WebSocketHandler) handleBidMessage(conn *WebSocketConnection, amount decimal.Decimal) {
	if !domain.ValidAmount(amount) {
		_ = conn.Send(errorMessage("invalid amount"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), bidTimeout)
	defer cancel()

	result, err := h.bids.SubmitBid(ctx, conn.auctionID, conn.userID, amount)
	if errors.Is(err, domain.ErrInvalidAmount) {
		_ = conn.Send(errorMessage("invalid amount"))
		return
	}
	if errors.Is(err, domain.ErrPriceContention) {
		_ = conn.Send(errorMessage("auction busy, retry"))
		return
	}
	if err != nil {
		h.log.Error("Failed to place bid", "user_id", conn.userID, "auction_id", conn.auctionID, "error", err)
		_ = conn.Send(errorMessage("failed to place bid"))
		return
	}

	reply := bidResultMessage{
		Type:    "bid_result",
		Outcome: result.Outcome.String(),
		Bid:     result.Bid,
		Reason:  string(result.Reason),
	}
	if result.Outcome == domain.BidTooLow {
		minimum := result.RequiredMinimum
		reply.RequiredMinimum = &minimum
	}
	_ = conn.Send(reply)
}

// WebSocketConnection serializes writes; gorilla connections allow a single
// concurrent writer.
type WebSocketConnection struct {
	conn      *websocket.Conn
	userID    string
	auctionID string
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func NewWebSocketConnection(conn *websocket.Conn, userID, auctionID string) *WebSocketConnection {
	return &WebSocketConnection{
		conn:      conn,
		userID:    userID,
		auctionID: auctionID,
	}
}

func (wsc *WebSocketConnection) Send(message interface{}) error {
	wsc.writeMu.Lock()
	defer wsc.writeMu.Unlock()

	if err := wsc.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return wsc.conn.WriteJSON(message)
}

func (wsc *WebSocketConnection) Close() error {
	wsc.closeOnce.Do(func() {
		wsc.writeMu.Lock()
		_ = wsc.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		wsc.writeMu.Unlock()
		wsc.closeErr = wsc.conn.Close()
	})
	return wsc.closeErr
}

func (wsc *WebSocketConnection) UserID() string {
	return wsc.userID
}

func (wsc *WebSocketConnection) AuctionID() string {
	return wsc.auctionID
}
