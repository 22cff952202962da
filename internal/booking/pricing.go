package booking

import (
	"time"

	"github.com/iliyamo/parking-lot-reservation/internal/model"
)

const (
	// DefaultTaxPercent is the tax applied to the subtotal.
	DefaultTaxPercent = 18
	// DefaultCurrency is the ISO code stamped on new bookings.
	DefaultCurrency = "INR"
)

// RateCard is the part of a parking lot that pricing depends on.
type RateCard struct {
	DayRate        int64
	NightRate      int64
	NightStartHour int
	NightEndHour   int
}

// RateCardOf extracts the rate card of a lot.
func RateCardOf(lot *model.ParkingLot) RateCard {
	return RateCard{
		DayRate:        lot.DayRate,
		NightRate:      lot.NightRate,
		NightStartHour: lot.NightStartHour,
		NightEndHour:   lot.NightEndHour,
	}
}

// RateAt returns the hourly rate for a booking that starts at t. The hour
// is read in UTC, the zone every timestamp is stored in.
func (r RateCard) RateAt(t time.Time) int64 {
	if r.NightRate > 0 && inWindow(t.UTC().Hour(), r.NightStartHour, r.NightEndHour) {
		return r.NightRate
	}
	return r.DayRate
}

// inWindow reports whether hour falls in [from, to), wrapping midnight when
// to < from. An empty window (from == to) contains nothing.
func inWindow(hour, from, to int) bool {
	switch {
	case from == to:
		return false
	case from < to:
		return hour >= from && hour < to
	default:
		return hour >= from || hour < to
	}
}

// ServiceItem is a priced add-on line going into a quote.
type ServiceItem struct {
	ID       uint64
	Name     string
	Price    int64
	Quantity int
}

// Breakdown explains how the parking cost was derived.
type Breakdown struct {
	Hours       int64 `json:"hours"`
	RatePerHour int64 `json:"rate_per_hour"`
}

// Quote is the full price of a booking window. Amounts are whole currency
// units.
type Quote struct {
	ParkingCost  int64     `json:"parking_cost"`
	ServicesCost int64     `json:"services_cost"`
	Discount     int64     `json:"discount"`
	Subtotal     int64     `json:"subtotal"`
	Tax          int64     `json:"tax"`
	Total        int64     `json:"total"`
	Currency     string    `json:"currency"`
	Breakdown    Breakdown `json:"breakdown"`
}

// Pricing converts the quote into the snapshot persisted on a booking.
func (q Quote) Pricing() model.Pricing {
	return model.Pricing{
		BasePrice:     q.ParkingCost,
		ServiceFees:   q.ServicesCost,
		Taxes:         q.Tax,
		Discounts:     q.Discount,
		TotalAmount:   q.Total,
		Currency:      q.Currency,
		BillableHours: q.Breakdown.Hours,
		RatePerHour:   q.Breakdown.RatePerHour,
	}
}

// Calculator prices booking windows with a fixed tax rate and currency.
// The zero value is not usable; build one with NewCalculator.
type Calculator struct {
	taxPercent int64
	currency   string
}

// NewCalculator returns a calculator. A negative tax percent or empty
// currency falls back to the defaults; zero disables tax.
func NewCalculator(taxPercent int, currency string) Calculator {
	if taxPercent < 0 {
		taxPercent = DefaultTaxPercent
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	return Calculator{taxPercent: int64(taxPercent), currency: currency}
}

// TaxPercent returns the configured tax rate.
func (c Calculator) TaxPercent() int64 { return c.taxPercent }

// Currency returns the configured currency code.
func (c Calculator) Currency() string { return c.currency }

var defaultCalculator = NewCalculator(DefaultTaxPercent, DefaultCurrency)

// ComputePrice prices a window with the default tax rate and no discount.
func ComputePrice(rates RateCard, start, end time.Time, services []ServiceItem) (Quote, error) {
	return defaultCalculator.Price(rates, start, end, services, 0)
}

// Price computes the quote for parking between start and end plus the
// given services, minus discount. The discount is capped at the pre-tax
// amount so the subtotal never goes negative.
func (c Calculator) Price(rates RateCard, start, end time.Time, services []ServiceItem, discount int64) (Quote, error) {
	if !end.After(start) {
		return Quote{}, ErrInvalidWindow
	}
	if discount < 0 {
		return Quote{}, ErrInvalidDiscount
	}

	hours := BillableHours(start, end)
	rate := rates.RateAt(start)
	parking := hours * rate

	var servicesCost int64
	for _, s := range services {
		qty := s.Quantity
		if qty < 1 {
			qty = 1
		}
		servicesCost += s.Price * int64(qty)
	}

	gross := parking + servicesCost
	if discount > gross {
		discount = gross
	}
	subtotal := gross - discount
	tax := percentOf(subtotal, c.taxPercent)

	return Quote{
		ParkingCost:  parking,
		ServicesCost: servicesCost,
		Discount:     discount,
		Subtotal:     subtotal,
		Tax:          tax,
		Total:        subtotal + tax,
		Currency:     c.currency,
		Breakdown:    Breakdown{Hours: hours, RatePerHour: rate},
	}, nil
}

// Overtime prices the time parked between the booked end and the actual
// exit at the booking's hourly rate, tax included. Exiting on time or early
// costs nothing.
func (c Calculator) Overtime(ratePerHour int64, bookedEnd, exitAt time.Time) int64 {
	if !exitAt.After(bookedEnd) {
		return 0
	}
	cost := BillableHours(bookedEnd, exitAt) * ratePerHour
	return cost + percentOf(cost, c.taxPercent)
}

// BillableHours is the elapsed time rounded up to whole hours, minimum one.
func BillableHours(start, end time.Time) int64 {
	elapsed := end.Sub(start)
	if elapsed <= 0 {
		return 1
	}
	hours := int64(elapsed / time.Hour)
	if elapsed%time.Hour != 0 {
		hours++
	}
	if hours < 1 {
		hours = 1
	}
	return hours
}

// percentOf returns pct percent of amount rounded half up to a whole unit.
func percentOf(amount, pct int64) int64 {
	if amount <= 0 {
		return 0
	}
	return (amount*pct + 50) / 100
}
