package model

import (
	"fmt"
	"time"
)

// EventSummary is the short event row shown on the admin dashboard.
type EventSummary struct {
	ID             uint64      `json:"id"`
	Title          string      `json:"title"`
	Venue          string      `json:"venue"`
	StartsAt       time.Time   `json:"starts_at"`
	Status         EventStatus `json:"status"`
	AvailableSeats int         `json:"available_seats"`
	CreatedBy      uint64      `json:"created_by"`
	CreatorName    string      `json:"created_by_name,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// DashboardStats is the admin overview. Tickets sold and revenue count live
// (booked or used) tickets at the amount each was sold for.
type DashboardStats struct {
	TotalEvents    int            `json:"total_events"`
	TicketsSold    int            `json:"tickets_sold"`
	RevenueCents   int64          `json:"revenue_cents"`
	TotalAttendees int            `json:"total_attendees"`
	RecentEvents   []EventSummary `json:"recent_events"`
	UpcomingEvents []EventSummary `json:"upcoming_events"`
}

// EventStats is the sales picture of one event.
type EventStats struct {
	ID             uint64      `json:"id"`
	Title          string      `json:"title"`
	Venue          string      `json:"venue"`
	StartsAt       time.Time   `json:"starts_at"`
	Status         EventStatus `json:"status"`
	PriceCents     int64       `json:"price_cents"`
	TotalSeats     int         `json:"total_seats"`
	AvailableSeats int         `json:"available_seats"`
	Sold           int         `json:"sold"`
	RevenueCents   int64       `json:"revenue_cents"`
	Occupancy      float64     `json:"occupancy"`
}

// OccupancyPercent returns sold/total as a percentage rounded to two places.
func OccupancyPercent(sold, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(sold*10000/total) / 100
}

// Granularity buckets revenue over time.
type Granularity string

const (
	ByDay   Granularity = "day"
	ByMonth Granularity = "month"
)

// ParseGranularity accepts "", "day" or "month"; empty means day.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case "", ByDay:
		return ByDay, nil
	case ByMonth:
		return ByMonth, nil
	}
	return "", fmt.Errorf("unknown granularity %q", s)
}

// RevenueQuery bounds a revenue series by booking date.
type RevenueQuery struct {
	From        *time.Time
	To          *time.Time
	Granularity Granularity
}

// RevenuePoint is one bucket of the revenue series. Period is YYYY-MM-DD or
// YYYY-MM depending on the granularity.
type RevenuePoint struct {
	Period       string `json:"period"`
	RevenueCents int64  `json:"revenue_cents"`
	Tickets      int    `json:"tickets"`
}
