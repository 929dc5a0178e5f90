package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"

	"github.com/labstack/echo/v4"
)

type NotificationReader interface {
	List(ctx context.Context, filter domain.NotificationFilter) ([]*domain.Notification, error)
	MarkRead(ctx context.Context, id string) error
}

type NotificationHandler struct {
	notifications NotificationReader
	log           logger.Logger
}

func NewNotificationHandler(notifications NotificationReader, log logger.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, log: log}
}

func (h *NotificationHandler) Register(g *echo.Group) {
	g.GET("/notifications", h.List)
	g.POST("/notifications/:id/read", h.MarkRead)
}

func (h *NotificationHandler) List(c echo.Context) error {
	filter := domain.NotificationFilter{
		RecipientKind: domain.RecipientKind(c.QueryParam("recipient_kind")),
		RecipientID:   c.QueryParam("recipient_id"),
	}

	switch filter.RecipientKind {
	case domain.RecipientAdmin:
	case domain.RecipientBidder:
		if filter.RecipientID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "recipient_id is required for bidders"})
		}
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "recipient_kind must be bidder or admin"})
	}

	if v := c.QueryParam("unread"); v != "" {
		unread, err := strconv.ParseBool(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "unread must be a boolean"})
		}
		filter.UnreadOnly = unread
	}
	if v := c.QueryParam("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
		}
		filter.Limit = limit
	}

	list, err := h.notifications.List(c.Request().Context(), filter)
	if err != nil {
		h.log.Error("Failed to list notifications", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list notifications"})
	}
	if list == nil {
		list = []*domain.Notification{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"notifications": list})
}

func (h *NotificationHandler) MarkRead(c echo.Context) error {
	err := h.notifications.MarkRead(c.Request().Context(), c.Param("id"))
	if errors.Is(err, domain.ErrNotificationNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Notification not found"})
	}
	if err != nil {
		h.log.Error("Failed to mark notification read", "notification_id", c.Param("id"), "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to update notification"})
	}
	return c.NoContent(http.StatusNoContent)
}
