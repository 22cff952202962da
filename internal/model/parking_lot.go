package model

import "time"

// ParkingLot is a bookable parking facility owned by a landlord.
//
// Fields:
//  DayRate        – hourly rate outside the night window.
//  NightRate      – hourly rate inside the night window; zero means the lot
//                   charges the day rate around the clock.
//  NightStartHour – first hour (0-23, UTC) of the night window.
//  NightEndHour   – hour at which the night window ends; may be smaller than
//                   NightStartHour when the window wraps midnight.
//  TotalSlots     – capacity used when checking for overbooking.
type ParkingLot struct {
	ID             uint64        // parking_lots.id
	OwnerID        uint64        // parking_lots.owner_id
	Name           string        // parking_lots.name
	Address        string        // parking_lots.address
	City           string        // parking_lots.city
	Latitude       float64       // parking_lots.latitude
	Longitude      float64       // parking_lots.longitude
	TotalSlots     int           // parking_lots.total_slots
	DayRate        int64         // parking_lots.day_rate
	NightRate      int64         // parking_lots.night_rate
	NightStartHour int           // parking_lots.night_start_hour
	NightEndHour   int           // parking_lots.night_end_hour
	VehicleTypes   []VehicleType // parking_lots.vehicle_types (comma separated)
	IsActive       bool          // parking_lots.is_active
	CreatedAt      time.Time     // parking_lots.created_at
	UpdatedAt      time.Time     // parking_lots.updated_at
}

// Supports reports whether the lot accepts the given vehicle type. A lot
// with no configured types accepts every type.
func (l *ParkingLot) Supports(v VehicleType) bool {
	if len(l.VehicleTypes) == 0 {
		return true
	}
	for _, t := range l.VehicleTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Slot is an individually addressable space inside a lot.
type Slot struct {
	ID          uint64      // parking_slots.id
	LotID       uint64      // parking_slots.lot_id
	Code        string      // parking_slots.code
	Floor       string      // parking_slots.floor
	VehicleType VehicleType // parking_slots.vehicle_type
	IsActive    bool        // parking_slots.is_active
	CreatedAt   time.Time   // parking_slots.created_at
}

// Service is an add-on offered by a lot, such as a car wash or EV charging.
type Service struct {
	ID          uint64    // services.id
	LotID       uint64    // services.lot_id
	Name        string    // services.name
	Description string    // services.description
	Price       int64     // services.price
	IsActive    bool      // services.is_active
	CreatedAt   time.Time // services.created_at
	UpdatedAt   time.Time // services.updated_at
}
