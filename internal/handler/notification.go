package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// NotificationStore is the in-app inbox.
type NotificationStore interface {
	Create(ctx context.Context, n *model.Notification) error
	ListForUser(ctx context.Context, userID uint64, unreadOnly bool, page, limit int) ([]model.Notification, int, error)
	UnreadCount(ctx context.Context, userID uint64) (int, error)
	MarkRead(ctx context.Context, userID, id uint64) (*model.Notification, error)
	MarkAllRead(ctx context.Context, userID uint64) (int64, error)
}

type NotificationHandler struct {
	Store NotificationStore
	Log   *zap.Logger
}

func NewNotificationHandler(store NotificationStore, log *zap.Logger) *NotificationHandler {
	return &NotificationHandler{Store: store, Log: log.Named("notifications")}
}

type createNotificationReq struct {
	UserID  *uint64         `json:"user_id"`
	Title   string          `json:"title" validate:"required,max=200"`
	Message string          `json:"message" validate:"required,max=2000"`
	Type    string          `json:"type" validate:"omitempty,oneof=info event ticket system"`
	Data    json.RawMessage `json:"data"`
}

// List: GET /v1/notifications?unread=true&page=&limit=
func (h *NotificationHandler) List(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	unread, _ := strconv.ParseBool(c.QueryParam("unread"))
	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	f := model.EventFilter{Page: page, Limit: limit}
	f.Normalize()

	items, total, err := h.Store.ListForUser(c.Request().Context(), actor.ID, unread, f.Page, f.Limit)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if items == nil {
		items = []model.Notification{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "page": f.Page, "limit": f.Limit, "total": total})
}

// Unread: GET /v1/notifications/unread
func (h *NotificationHandler) Unread(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	n, err := h.Store.UnreadCount(c.Request().Context(), actor.ID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"unread": n})
}

// MarkRead: PUT /v1/notifications/:id/read
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	n, err := h.Store.MarkRead(c.Request().Context(), actor.ID, id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, n)
}

// MarkAllRead: PUT /v1/notifications/read-all
func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	n, err := h.Store.MarkAllRead(c.Request().Context(), actor.ID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"marked": n})
}

// Create: POST /v1/notifications sends to one user, or to everyone when
// user_id is omitted.
func (h *NotificationHandler) Create(c echo.Context) error {
	var req createNotificationReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	if len(req.Data) > 0 && !json.Valid(req.Data) {
		return respondError(c, h.Log, badRequest("data must be JSON"))
	}
	n := &model.Notification{
		UserID:  req.UserID,
		Title:   req.Title,
		Message: req.Message,
		Type:    model.NotificationType(req.Type),
		Data:    req.Data,
	}
	if err := h.Store.Create(c.Request().Context(), n); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, n)
}
