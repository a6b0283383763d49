package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/service"
)

// EventService is the catalog surface behind the event endpoints.
type EventService interface {
	Create(ctx context.Context, actor service.Actor, in service.CreateEventInput) (*model.Event, error)
	Get(ctx context.Context, id uint64) (*model.Event, error)
	List(ctx context.Context, f model.EventFilter) ([]model.Event, int, error)
	SeatMap(ctx context.Context, id uint64) ([]model.Seat, error)
	Update(ctx context.Context, actor service.Actor, id uint64, u model.CatalogUpdate, newTotal *int) (*model.Event, error)
	Resize(ctx context.Context, actor service.Actor, id uint64, newTotal int) (*model.Event, error)
	SetSeatBlocked(ctx context.Context, actor service.Actor, id uint64, seat int, blocked bool) error
	Delete(ctx context.Context, actor service.Actor, id uint64) error
}

// EventTicketLister lists the tickets sold for an event.
type EventTicketLister interface {
	ListByEvent(ctx context.Context, eventID uint64) ([]repository.EventTicket, error)
}

type EventHandler struct {
	Events  EventService
	Lister  EventTicketLister
	Log     *zap.Logger
	now     func() time.Time
}

func NewEventHandler(events EventService, tickets EventTicketLister, log *zap.Logger) *EventHandler {
	return &EventHandler{Events: events, Lister: tickets, Log: log.Named("events"), now: time.Now}
}

type createEventReq struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=5000"`
	Category    string    `json:"category" validate:"max=50"`
	Venue       string    `json:"venue" validate:"required,max=200"`
	ImageURL    string    `json:"image_url" validate:"omitempty,url,max=500"`
	StartsAt    time.Time `json:"starts_at" validate:"required"`
	PriceCents  int64     `json:"price_cents" validate:"gte=0"`
	TotalSeats  int       `json:"total_seats" validate:"required,min=1,max=100000"`
}

// updateEventReq lists every field a PATCH may touch. Unknown fields such
// as available_seats or seat_map are ignored by the decoder.
type updateEventReq struct {
	Title       *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=5000"`
	Category    *string    `json:"category" validate:"omitempty,max=50"`
	Venue       *string    `json:"venue" validate:"omitempty,min=1,max=200"`
	ImageURL    *string    `json:"image_url" validate:"omitempty,max=500"`
	StartsAt    *time.Time `json:"starts_at"`
	PriceCents  *int64     `json:"price_cents" validate:"omitempty,gte=0"`
	Status      *string    `json:"status" validate:"omitempty,oneof=upcoming active closed"`
	TotalSeats  *int       `json:"total_seats" validate:"omitempty,min=1,max=100000"`
}

type resizeReq struct {
	TotalSeats int `json:"total_seats" validate:"required,min=1,max=100000"`
}

// eventView adds the derived status to an event.
type eventView struct {
	*model.Event
	Status model.EventStatus `json:"status"`
}

type eventPage struct {
	Items []eventView `json:"items"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
	Total int         `json:"total"`
}

func (h *EventHandler) view(ev *model.Event) eventView {
	return eventView{Event: ev, Status: ev.Status(h.now())}
}

// List: GET /v1/events?q=&category=&status=&min_price=&max_price=&from=&to=&sort=&page=&limit=
func (h *EventHandler) List(c echo.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	items, total, err := h.Events.List(c.Request().Context(), f)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	f.Normalize()
	page := eventPage{Items: make([]eventView, 0, len(items)), Page: f.Page, Limit: f.Limit, Total: total}
	for i := range items {
		items[i].Seats = nil
		page.Items = append(page.Items, h.view(&items[i]))
	}
	return c.JSON(http.StatusOK, page)
}

func parseFilter(c echo.Context) (model.EventFilter, error) {
	f := model.EventFilter{
		Search:   strings.TrimSpace(c.QueryParam("q")),
		Category: strings.TrimSpace(c.QueryParam("category")),
		Sort:     c.QueryParam("sort"),
	}
	if s := c.QueryParam("status"); s != "" {
		f.Status = model.EventStatus(strings.ToLower(s))
		if !f.Status.Valid() {
			return f, badRequest("invalid status")
		}
	}
	var err error
	if f.MinPrice, err = queryInt64(c, "min_price"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = queryInt64(c, "max_price"); err != nil {
		return f, err
	}
	if f.From, err = queryTime(c, "from"); err != nil {
		return f, err
	}
	if f.To, err = queryTime(c, "to"); err != nil {
		return f, err
	}
	f.Page, _ = strconv.Atoi(c.QueryParam("page"))
	f.Limit, _ = strconv.Atoi(c.QueryParam("limit"))
	return f, nil
}

func queryInt64(c echo.Context, name string) (*int64, error) {
	s := c.QueryParam(name)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return nil, badRequest("invalid " + name)
	}
	return &n, nil
}

func queryTime(c echo.Context, name string) (*time.Time, error) {
	s := c.QueryParam(name)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		if t, err = time.Parse(time.DateOnly, s); err != nil {
			return nil, badRequest(name + " must be RFC3339 or YYYY-MM-DD")
		}
	}
	return &t, nil
}

// Get: GET /v1/events/:id, seat map included.
func (h *EventHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	ev, err := h.Events.Get(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, h.view(ev))
}

// Seats: GET /v1/events/:id/seats
func (h *EventHandler) Seats(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	seats, err := h.Events.SeatMap(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	free := 0
	for _, s := range seats {
		if s.Status == model.SeatAvailable {
			free++
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"event_id": id, "available": free, "seats": seats})
}

// Create: POST /v1/events
func (h *EventHandler) Create(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req createEventReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	ev, err := h.Events.Create(c.Request().Context(), actor, service.CreateEventInput{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Category:    strings.TrimSpace(req.Category),
		Venue:       strings.TrimSpace(req.Venue),
		ImageURL:    req.ImageURL,
		StartsAt:    req.StartsAt,
		PriceCents:  req.PriceCents,
		TotalSeats:  req.TotalSeats,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, h.view(ev))
}

// Update: PATCH /v1/events/:id
func (h *EventHandler) Update(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	var req updateEventReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	u := model.CatalogUpdate{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Venue:       req.Venue,
		ImageURL:    req.ImageURL,
		StartsAt:    req.StartsAt,
		PriceCents:  req.PriceCents,
	}
	if req.Status != nil {
		s := model.EventStatus(*req.Status)
		u.PinnedStatus = &s
	}
	if u.Empty() && req.TotalSeats == nil {
		return respondError(c, h.Log, badRequest("no updatable fields"))
	}
	ev, err := h.Events.Update(c.Request().Context(), actor, id, u, req.TotalSeats)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, h.view(ev))
}

// Delete: DELETE /v1/events/:id
func (h *EventHandler) Delete(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if err := h.Events.Delete(c.Request().Context(), actor, id); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Resize: PUT /v1/events/:id/seats/total
func (h *EventHandler) Resize(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	var req resizeReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	ev, err := h.Events.Resize(c.Request().Context(), actor, id, req.TotalSeats)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, h.view(ev))
}

// Block: PUT /v1/events/:id/seats/:number/block
func (h *EventHandler) Block(c echo.Context) error { return h.setBlocked(c, true) }

// Unblock: DELETE /v1/events/:id/seats/:number/block
func (h *EventHandler) Unblock(c echo.Context) error { return h.setBlocked(c, false) }

func (h *EventHandler) setBlocked(c echo.Context, blocked bool) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	seat, err := pathInt(c, "number")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if err := h.Events.SetSeatBlocked(c.Request().Context(), actor, id, seat, blocked); err != nil {
		return respondError(c, h.Log, err)
	}
	status := model.SeatAvailable
	if blocked {
		status = model.SeatBlocked
	}
	return c.JSON(http.StatusOK, model.Seat{Number: seat, Status: status})
}

// Tickets: GET /v1/events/:id/tickets
func (h *EventHandler) Tickets(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	ctx := c.Request().Context()
	if _, err := h.Events.Get(ctx, id); err != nil {
		return respondError(c, h.Log, err)
	}
	items, err := h.Lister.ListByEvent(ctx, id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if items == nil {
		items = []repository.EventTicket{}
	}
	return c.JSON(http.StatusOK, echo.Map{"event_id": id, "items": items})
}
