package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTicketStatusTransitions(t *testing.T) {
	all := []TicketStatus{TicketBooked, TicketUsed, TicketCancelled}
	allowed := map[[2]TicketStatus]bool{
		{TicketBooked, TicketUsed}:      true,
		{TicketBooked, TicketCancelled}: true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]TicketStatus{from, to}]
			assert.Equal(t, want, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
}

func TestTicketStatusIsLive(t *testing.T) {
	assert.True(t, TicketBooked.IsLive())
	assert.True(t, TicketUsed.IsLive())
	assert.False(t, TicketCancelled.IsLive())
}
