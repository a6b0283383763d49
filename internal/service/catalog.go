package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// CreateEventInput holds the fields of a new event.
type CreateEventInput struct {
	Title       string
	Description string
	Category    string
	Venue       string
	ImageURL    string
	StartsAt    time.Time
	PriceCents  int64
	TotalSeats  int
}

// Catalog manages event metadata. Capacity and seat-state changes are
// delegated to the seat inventory.
type Catalog struct {
	store     CatalogStore
	inventory SeatInventory
	log       *zap.Logger
}

// NewCatalog wires a catalog service.
func NewCatalog(store CatalogStore, inventory SeatInventory, log *zap.Logger) *Catalog {
	return &Catalog{store: store, inventory: inventory, log: log.Named("catalog")}
}

// Create adds an event with a fresh seat map. Admin only.
func (c *Catalog) Create(ctx context.Context, actor Actor, in CreateEventInput) (*model.Event, error) {
	if !actor.IsAdmin() {
		return nil, model.ErrNotAuthorized
	}
	if in.TotalSeats < 1 {
		return nil, model.ErrInvalidTotalSeats
	}
	ev := &model.Event{
		Title:          in.Title,
		Description:    in.Description,
		Category:       in.Category,
		Venue:          in.Venue,
		ImageURL:       in.ImageURL,
		StartsAt:       in.StartsAt.UTC(),
		PriceCents:     in.PriceCents,
		TotalSeats:     in.TotalSeats,
		AvailableSeats: in.TotalSeats,
		Seats:          model.NewSeatMap(in.TotalSeats),
		CreatedBy:      actor.ID,
	}
	if err := c.store.Create(ctx, ev); err != nil {
		return nil, err
	}
	c.log.Info("event created", zap.Uint64("event_id", ev.ID), zap.Int("total_seats", ev.TotalSeats), zap.Uint64("created_by", actor.ID))
	return ev, nil
}

// Get returns one event with its seat map.
func (c *Catalog) Get(ctx context.Context, id uint64) (*model.Event, error) {
	return c.store.GetByID(ctx, id)
}

// List returns one page of events and the total match count.
func (c *Catalog) List(ctx context.Context, f model.EventFilter) ([]model.Event, int, error) {
	f.Normalize()
	return c.store.List(ctx, f)
}

// SeatMap returns the event's seats.
func (c *Catalog) SeatMap(ctx context.Context, id uint64) ([]model.Seat, error) {
	return c.inventory.SeatMap(ctx, id)
}

// Update applies catalog field changes and, when newTotal is set, resizes
// the seat map. The resize is checked against the current seat map before
// anything is written, the catalog fields are written next and the resize
// last. A seat claimed between the check and the resize can still reject
// the resize after the catalog write. The creator or an admin may update.
func (c *Catalog) Update(ctx context.Context, actor Actor, id uint64, u model.CatalogUpdate, newTotal *int) (*model.Event, error) {
	ev, err := c.authorize(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if newTotal != nil {
		var above []model.Seat
		if *newTotal >= 0 && *newTotal < len(ev.Seats) {
			above = ev.Seats[*newTotal:]
		}
		if err := model.CheckResize(ev.TotalSeats, ev.AvailableSeats, *newTotal, above); err != nil {
			return nil, err
		}
	}
	if !u.Empty() {
		if err := c.store.UpdateCatalog(ctx, id, u); err != nil {
			return nil, err
		}
	}
	if newTotal != nil {
		if err := c.inventory.Resize(ctx, id, *newTotal); err != nil {
			return nil, err
		}
	}
	return c.store.GetByID(ctx, id)
}

// Resize changes capacity. The creator or an admin may resize.
func (c *Catalog) Resize(ctx context.Context, actor Actor, id uint64, newTotal int) (*model.Event, error) {
	if _, err := c.authorize(ctx, actor, id); err != nil {
		return nil, err
	}
	if err := c.inventory.Resize(ctx, id, newTotal); err != nil {
		return nil, err
	}
	c.log.Info("event resized", zap.Uint64("event_id", id), zap.Int("total_seats", newTotal))
	return c.store.GetByID(ctx, id)
}

// SetSeatBlocked withdraws a seat from sale or returns it. The creator or
// an admin may block seats.
func (c *Catalog) SetSeatBlocked(ctx context.Context, actor Actor, id uint64, seat int, blocked bool) error {
	if _, err := c.authorize(ctx, actor, id); err != nil {
		return err
	}
	return c.inventory.SetBlocked(ctx, id, seat, blocked)
}

// Delete removes an event that has no live tickets. The creator or an
// admin may delete.
func (c *Catalog) Delete(ctx context.Context, actor Actor, id uint64) error {
	if _, err := c.authorize(ctx, actor, id); err != nil {
		return err
	}
	return c.store.Delete(ctx, id)
}

func (c *Catalog) authorize(ctx context.Context, actor Actor, id uint64) (*model.Event, error) {
	ev, err := c.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ev.CreatedBy != actor.ID && !actor.IsAdmin() {
		return nil, model.ErrNotAuthorized
	}
	return ev, nil
}
