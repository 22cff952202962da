package model

import (
	"strings"
	"time"
)

// BookingStatus is the lifecycle state of a booking. Transitions between
// states are owned by the booking package; nothing else should assign a
// status directly.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingActive    BookingStatus = "active"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
	BookingNoShow    BookingStatus = "no-show"
	BookingExtended  BookingStatus = "extended"
)

// LiveStatuses are the states in which a booking occupies lot capacity.
var LiveStatuses = []BookingStatus{BookingPending, BookingConfirmed, BookingActive, BookingExtended}

// VehicleType enumerates the vehicles a lot may accept.
type VehicleType string

const (
	VehicleCar     VehicleType = "car"
	VehicleBike    VehicleType = "bike"
	VehicleTruck   VehicleType = "truck"
	VehicleVan     VehicleType = "van"
	VehicleBicycle VehicleType = "bicycle"
)

// Valid reports whether v is one of the known vehicle types.
func (v VehicleType) Valid() bool {
	switch v {
	case VehicleCar, VehicleBike, VehicleTruck, VehicleVan, VehicleBicycle:
		return true
	}
	return false
}

// PaymentMethod is the instrument a booking was (or will be) paid with.
type PaymentMethod string

const (
	PaymentCard     PaymentMethod = "card"
	PaymentUPI      PaymentMethod = "upi"
	PaymentWallet   PaymentMethod = "wallet"
	PaymentCash     PaymentMethod = "cash"
	PaymentRazorpay PaymentMethod = "razorpay"
	PaymentStripe   PaymentMethod = "stripe"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCard, PaymentUPI, PaymentWallet, PaymentCash, PaymentRazorpay, PaymentStripe:
		return true
	}
	return false
}

// PaymentStatus tracks the state of the payment sub-record.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// NormalizePlate upper-cases a license plate and strips all whitespace.
func NormalizePlate(raw string) string {
	return strings.ToUpper(strings.Join(strings.Fields(raw), ""))
}

// Duration is the whole-minute length of a booking window split into
// hours and remaining minutes.
type Duration struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

// Vehicle describes the vehicle a booking is made for.
type Vehicle struct {
	Type         VehicleType
	LicensePlate string
	Model        string
	Color        string
}

// Pricing is the price snapshot taken when the booking was written. All
// amounts are whole currency units.
type Pricing struct {
	BasePrice     int64  // bookings.base_price
	ServiceFees   int64  // bookings.service_fees
	Taxes         int64  // bookings.taxes
	Discounts     int64  // bookings.discounts
	TotalAmount   int64  // bookings.total_amount
	Currency      string // bookings.currency
	BillableHours int64  // bookings.billable_hours
	RatePerHour   int64  // bookings.rate_per_hour
}

// ServiceLine is an add-on service attached to a booking. Name and price
// are copied from the catalog so later catalog edits do not rewrite history.
type ServiceLine struct {
	ServiceID uint64 `json:"service_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

// Payment is stored as a JSON document on the booking row.
type Payment struct {
	Method        PaymentMethod `json:"method"`
	TransactionID string        `json:"transaction_id,omitempty"`
	PaymentID     string        `json:"payment_id,omitempty"`
	OrderID       string        `json:"order_id,omitempty"`
	Status        PaymentStatus `json:"status"`
	Amount        int64         `json:"amount"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`
	RefundAmount  int64         `json:"refund_amount,omitempty"`
	RefundedAt    *time.Time    `json:"refunded_at,omitempty"`
}

// EntryLog records a vehicle passing the entry gate.
type EntryLog struct {
	Time       time.Time `json:"time"`
	GateID     string    `json:"gate_id"`
	VerifiedBy uint64    `json:"verified_by"`
}

// ExitLog records a vehicle passing the exit gate. OvertimeCharge is the
// amount owed for time parked past the booked end.
type ExitLog struct {
	Time           time.Time `json:"time"`
	GateID         string    `json:"gate_id"`
	VerifiedBy     uint64    `json:"verified_by"`
	ActualDuration Duration  `json:"actual_duration"`
	OvertimeCharge int64     `json:"overtime_charge"`
}

// Cancellation captures who cancelled a booking and what was refunded.
type Cancellation struct {
	Reason         string    `json:"reason,omitempty"`
	CancelledAt    time.Time `json:"cancelled_at"`
	CancelledBy    uint64    `json:"cancelled_by"`
	RefundEligible bool      `json:"refund_eligible"`
	RefundAmount   int64     `json:"refund_amount"`
}

// Rating is the user's review of a completed booking.
type Rating struct {
	Score      int       `json:"score"`
	Review     string    `json:"review,omitempty"`
	ReviewedAt time.Time `json:"reviewed_at"`
}

// Notification is one message sent to the booking owner.
type Notification struct {
	Type    string    `json:"type"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
	Channel string    `json:"channel"`
}

// Booking is a single reservation of a parking slot for a time window.
// Scalar fields map to columns of the `bookings` table; the optional
// sub-records are stored as JSON documents in their own columns.
//
// Fields:
//  ID            – UUID primary key.
//  UserID        – user who made the booking.
//  LotID         – parking lot being booked.
//  SlotCode      – optional slot within the lot (empty when unassigned).
//  Floor         – optional floor of the slot.
//  Duration      – snapshot of the window length at write time.
//  Version       – incremented on every update, used for optimistic locking.
type Booking struct {
	ID            string         // bookings.id
	UserID        uint64         // bookings.user_id
	LotID         uint64         // bookings.lot_id
	SlotCode      string         // bookings.slot_code
	Floor         string         // bookings.floor
	Vehicle       Vehicle        // bookings.vehicle_*
	StartTime     time.Time      // bookings.start_time
	EndTime       time.Time      // bookings.end_time
	Duration      Duration       // bookings.duration_hours, duration_minutes
	Pricing       Pricing        // bookings pricing columns
	Services      []ServiceLine  // bookings.services (JSON)
	Status        BookingStatus  // bookings.status
	Payment       *Payment       // bookings.payment (JSON, nullable)
	Entry         *EntryLog      // bookings.entry_log (JSON, nullable)
	Exit          *ExitLog       // bookings.exit_log (JSON, nullable)
	Cancellation  *Cancellation  // bookings.cancellation (JSON, nullable)
	Rating        *Rating        // bookings.rating (JSON, nullable)
	Notifications []Notification // bookings.notifications (JSON)
	Version       int64          // bookings.version
	CreatedAt     time.Time      // bookings.created_at
	UpdatedAt     time.Time      // bookings.updated_at
}
