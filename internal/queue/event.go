// Package queue carries reservation status-changed events over RabbitMQ:
// a publisher used by the booking engine after each commit and a consumer
// that appends every event to a log file for the notification side.
package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/movie-reservation/internal/model"
)

// StatusChangedQueue is the durable queue every transition is published to.
const StatusChangedQueue = "reservation.status_changed"

// formatLogLine renders ev as one human-friendly line.
func formatLogLine(ev model.StatusChangedEvent) string {
	seats := make([]string, len(ev.SeatIDs))
	for i, id := range ev.SeatIDs {
		seats[i] = fmt.Sprint(id)
	}
	from := string(ev.From)
	if from == "" {
		from = "new"
	}
	line := fmt.Sprintf("[%s] Reservation %s -> %s | reservation_id=%d | user_id=%d | screening_id=%d | total=%d cents | seats=[%s]",
		ev.OccurredAt.UTC().Format(time.RFC3339), from, ev.To, ev.ReservationID, ev.UserID, ev.ScreeningID,
		ev.TotalPriceCents, strings.Join(seats, ","))
	if ev.BookingRef != "" {
		line += " | booking_ref=" + ev.BookingRef
	}
	return line + " | event_id=" + ev.EventID + "\n"
}
