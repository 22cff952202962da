// Package queue moves booking events through RabbitMQ.
package queue

import "time"

// Event types published on the booking events queue.
const (
	EventCreated    = "booking.created"
	EventConfirmed  = "booking.confirmed"
	EventCheckedIn  = "booking.checked_in"
	EventExtended   = "booking.extended"
	EventCheckedOut = "booking.checked_out"
	EventCancelled  = "booking.cancelled"
	EventNoShow     = "booking.no_show"
	EventPaid       = "booking.paid"
)

// BookingEvent is published after a booking changes. It carries enough for
// consumers to notify the user without querying the primary database.
type BookingEvent struct {
	Type         string    `json:"type"`
	BookingID    string    `json:"booking_id"`
	UserID       uint64    `json:"user_id"`
	LotID        uint64    `json:"lot_id"`
	LotName      string    `json:"lot_name,omitempty"`
	Status       string    `json:"status"`
	SlotCode     string    `json:"slot_code,omitempty"`
	LicensePlate string    `json:"license_plate"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	TotalAmount  int64     `json:"total_amount"`
	Currency     string    `json:"currency"`
	RefundAmount int64     `json:"refund_amount,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
