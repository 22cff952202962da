package handler

import (
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/parking-lot-reservation/internal/model"
	"github.com/iliyamo/parking-lot-reservation/internal/repository"
	"github.com/iliyamo/parking-lot-reservation/internal/service"
)

// ----- requests -----

type lotRequest struct {
	Name           *string   `json:"name"`
	Address        *string   `json:"address"`
	City           *string   `json:"city"`
	Latitude       *float64  `json:"latitude"`
	Longitude      *float64  `json:"longitude"`
	TotalSlots     *int      `json:"total_slots"`
	DayRate        *int64    `json:"day_rate"`
	NightRate      *int64    `json:"night_rate"`
	NightStartHour *int      `json:"night_start_hour"`
	NightEndHour   *int      `json:"night_end_hour"`
	VehicleTypes   *[]string `json:"vehicle_types"`
	IsActive       *bool     `json:"is_active"`
}

// apply copies the set fields onto l and validates the result. A full
// write (POST, PUT) requires name, city, total_slots and day_rate.
func (r lotRequest) apply(l *model.ParkingLot, full bool) error {
	if full && (r.Name == nil || r.City == nil || r.TotalSlots == nil || r.DayRate == nil) {
		return errors.New("name, city, total_slots and day_rate are required")
	}
	if r.Name != nil {
		l.Name = strings.TrimSpace(*r.Name)
	}
	if r.Address != nil {
		l.Address = strings.TrimSpace(*r.Address)
	}
	if r.City != nil {
		l.City = strings.TrimSpace(*r.City)
	}
	if r.Latitude != nil {
		l.Latitude = *r.Latitude
	}
	if r.Longitude != nil {
		l.Longitude = *r.Longitude
	}
	if r.TotalSlots != nil {
		l.TotalSlots = *r.TotalSlots
	}
	if r.DayRate != nil {
		l.DayRate = *r.DayRate
	}
	if r.NightRate != nil {
		l.NightRate = *r.NightRate
	}
	if r.NightStartHour != nil {
		l.NightStartHour = *r.NightStartHour
	}
	if r.NightEndHour != nil {
		l.NightEndHour = *r.NightEndHour
	}
	if r.VehicleTypes != nil {
		types := make([]model.VehicleType, 0, len(*r.VehicleTypes))
		for _, raw := range *r.VehicleTypes {
			v := model.VehicleType(strings.ToLower(strings.TrimSpace(raw)))
			if !v.Valid() {
				return errors.New("unknown vehicle type: " + raw)
			}
			types = append(types, v)
		}
		l.VehicleTypes = types
	}
	if r.IsActive != nil {
		l.IsActive = *r.IsActive
	}

	switch {
	case l.Name == "" || l.City == "":
		return errors.New("name and city must not be empty")
	case l.TotalSlots < 1:
		return errors.New("total_slots must be at least 1")
	case l.DayRate < 0 || l.NightRate < 0:
		return errors.New("rates must not be negative")
	case l.NightStartHour < 0 || l.NightStartHour > 23 || l.NightEndHour < 0 || l.NightEndHour > 23:
		return errors.New("night hours must be between 0 and 23")
	case l.Latitude < -90 || l.Latitude > 90 || l.Longitude < -180 || l.Longitude > 180:
		return errors.New("coordinates out of range")
	}
	return nil
}

// slotItem names one physical slot. VehicleType defaults to car.
type slotItem struct {
	Code        string `json:"code"`
	Floor       string `json:"floor"`
	VehicleType string `json:"vehicle_type"`
}

type slotsRequest struct {
	Slots []slotItem `json:"slots"`
}

// toModel normalizes codes to upper case and rejects duplicates within the
// request. Duplicates against slots already stored are caught by the
// unique index.
func (r slotsRequest) toModel() ([]model.Slot, error) {
	if len(r.Slots) == 0 {
		return nil, errors.New("slots is required")
	}
	seen := make(map[string]bool, len(r.Slots))
	out := make([]model.Slot, 0, len(r.Slots))
	for _, s := range r.Slots {
		code := strings.ToUpper(strings.TrimSpace(s.Code))
		if code == "" {
			return nil, errors.New("slot code is required")
		}
		if seen[code] {
			return nil, errors.New("duplicate slot code: " + code)
		}
		seen[code] = true
		v := model.VehicleType(strings.ToLower(strings.TrimSpace(s.VehicleType)))
		if v == "" {
			v = model.VehicleCar
		}
		if !v.Valid() {
			return nil, errors.New("unknown vehicle type: " + s.VehicleType)
		}
		out = append(out, model.Slot{Code: code, Floor: strings.TrimSpace(s.Floor), VehicleType: v})
	}
	return out, nil
}

// serviceRequest is the body of the service endpoints. Pointer fields tell
// an omitted field from a zero value.
type serviceRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Price       *int64  `json:"price"`
	IsActive    *bool   `json:"is_active"`
}

// apply copies the set fields onto s. Creation requires name and price.
func (r serviceRequest) apply(s *model.Service, full bool) error {
	if full && (r.Name == nil || r.Price == nil) {
		return errors.New("name and price are required")
	}
	if r.Name != nil {
		s.Name = strings.TrimSpace(*r.Name)
	}
	if r.Description != nil {
		s.Description = strings.TrimSpace(*r.Description)
	}
	if r.Price != nil {
		s.Price = *r.Price
	}
	if r.IsActive != nil {
		s.IsActive = *r.IsActive
	}
	if s.Name == "" {
		return errors.New("name must not be empty")
	}
	if s.Price < 0 {
		return errors.New("price must not be negative")
	}
	return nil
}

// serviceSelection picks an add-on for a booking or quote.
type serviceSelection struct {
	ServiceID uint64 `json:"service_id"`
	Quantity  int    `json:"quantity"`
}

func selections(in []serviceSelection) []service.ServiceRequest {
	out := make([]service.ServiceRequest, 0, len(in))
	for _, s := range in {
		out = append(out, service.ServiceRequest{ID: s.ServiceID, Quantity: s.Quantity})
	}
	return out
}

type vehicleDTO struct {
	Type         string `json:"type"`
	LicensePlate string `json:"license_plate"`
	Model        string `json:"model,omitempty"`
	Color        string `json:"color,omitempty"`
}

// bookingRequest is the body of POST /v1/bookings. SlotCode is optional;
// without it the booking takes lot capacity without a named slot.
type bookingRequest struct {
	LotID     uint64             `json:"lot_id"`
	SlotCode  string             `json:"slot_code"`
	Vehicle   vehicleDTO         `json:"vehicle"`
	StartTime time.Time          `json:"start_time"`
	EndTime   time.Time          `json:"end_time"`
	Services  []serviceSelection `json:"services"`
}

// quoteRequest is the body of the public price preview.
type quoteRequest struct {
	LotID       uint64             `json:"lot_id"`
	StartTime   time.Time          `json:"start_time"`
	EndTime     time.Time          `json:"end_time"`
	VehicleType string             `json:"vehicle_type"`
	Services    []serviceSelection `json:"services"`
	Discount    int64              `json:"discount"`
}

// profileRequest carries the self-service profile fields.
type profileRequest struct {
	Name           *string `json:"name"`
	Phone          *string `json:"phone"`
	TelegramChatID *int64  `json:"telegram_chat_id"`
}

type adminUserRequest struct {
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
}

// ----- responses -----

type userResponse struct {
	ID             uint64    `json:"id"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	Name           string    `json:"name"`
	Phone          string    `json:"phone,omitempty"`
	TelegramChatID int64     `json:"telegram_chat_id,omitempty"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

func toUserResponse(u model.User) userResponse {
	return userResponse{
		ID: u.ID, Email: u.Email, Role: u.Role, Name: u.Name, Phone: u.Phone,
		TelegramChatID: u.TelegramChatID, IsActive: u.IsActive, CreatedAt: u.CreatedAt,
	}
}

type lotResponse struct {
	ID             uint64    `json:"id"`
	OwnerID        uint64    `json:"owner_id"`
	Name           string    `json:"name"`
	Address        string    `json:"address"`
	City           string    `json:"city"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	TotalSlots     int       `json:"total_slots"`
	DayRate        int64     `json:"day_rate"`
	NightRate      int64     `json:"night_rate"`
	NightStartHour int       `json:"night_start_hour"`
	NightEndHour   int       `json:"night_end_hour"`
	VehicleTypes   []string  `json:"vehicle_types"`
	IsActive       bool      `json:"is_active"`
	DistanceKm     *float64  `json:"distance_km,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toLotResponse(l *model.ParkingLot) lotResponse {
	types := make([]string, 0, len(l.VehicleTypes))
	for _, v := range l.VehicleTypes {
		types = append(types, string(v))
	}
	return lotResponse{
		ID: l.ID, OwnerID: l.OwnerID, Name: l.Name, Address: l.Address, City: l.City,
		Latitude: l.Latitude, Longitude: l.Longitude, TotalSlots: l.TotalSlots,
		DayRate: l.DayRate, NightRate: l.NightRate,
		NightStartHour: l.NightStartHour, NightEndHour: l.NightEndHour,
		VehicleTypes: types, IsActive: l.IsActive, CreatedAt: l.CreatedAt, UpdatedAt: l.UpdatedAt,
	}
}

func toLotHitResponse(h repository.LotHit, withDistance bool) lotResponse {
	r := toLotResponse(h.Lot)
	if withDistance {
		d := h.DistanceKm
		r.DistanceKm = &d
	}
	return r
}

type slotResponse struct {
	ID          uint64 `json:"id"`
	Code        string `json:"code"`
	Floor       string `json:"floor"`
	VehicleType string `json:"vehicle_type"`
	IsActive    bool   `json:"is_active"`
}

func toSlotResponse(s *model.Slot) slotResponse {
	return slotResponse{ID: s.ID, Code: s.Code, Floor: s.Floor, VehicleType: string(s.VehicleType), IsActive: s.IsActive}
}

type serviceResponse struct {
	ID          uint64 `json:"id"`
	LotID       uint64 `json:"lot_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       int64  `json:"price"`
	IsActive    bool   `json:"is_active"`
}

func toServiceResponse(s *model.Service) serviceResponse {
	return serviceResponse{ID: s.ID, LotID: s.LotID, Name: s.Name, Description: s.Description, Price: s.Price, IsActive: s.IsActive}
}

type pricingDTO struct {
	BasePrice     int64  `json:"base_price"`
	ServiceFees   int64  `json:"service_fees"`
	Taxes         int64  `json:"taxes"`
	Discounts     int64  `json:"discounts"`
	TotalAmount   int64  `json:"total_amount"`
	Currency      string `json:"currency"`
	BillableHours int64  `json:"billable_hours"`
	RatePerHour   int64  `json:"rate_per_hour"`
}

type bookingResponse struct {
	ID            string               `json:"id"`
	UserID        uint64               `json:"user_id"`
	LotID         uint64               `json:"lot_id"`
	SlotCode      string               `json:"slot_code,omitempty"`
	Floor         string               `json:"floor,omitempty"`
	Vehicle       vehicleDTO           `json:"vehicle"`
	StartTime     time.Time            `json:"start_time"`
	EndTime       time.Time            `json:"end_time"`
	Duration      model.Duration       `json:"duration"`
	Pricing       pricingDTO           `json:"pricing"`
	Services      []model.ServiceLine  `json:"services"`
	Status        string               `json:"status"`
	Payment       *model.Payment       `json:"payment,omitempty"`
	Entry         *model.EntryLog      `json:"entry,omitempty"`
	Exit          *model.ExitLog       `json:"exit,omitempty"`
	Cancellation  *model.Cancellation  `json:"cancellation,omitempty"`
	Rating        *model.Rating        `json:"rating,omitempty"`
	Notifications []model.Notification `json:"notifications"`
	Version       int64                `json:"version"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func toBookingResponse(b *model.Booking) bookingResponse {
	services := b.Services
	if services == nil {
		services = []model.ServiceLine{}
	}
	notes := b.Notifications
	if notes == nil {
		notes = []model.Notification{}
	}
	p := b.Pricing
	return bookingResponse{
		ID: b.ID, UserID: b.UserID, LotID: b.LotID, SlotCode: b.SlotCode, Floor: b.Floor,
		Vehicle: vehicleDTO{
			Type: string(b.Vehicle.Type), LicensePlate: b.Vehicle.LicensePlate,
			Model: b.Vehicle.Model, Color: b.Vehicle.Color,
		},
		StartTime: b.StartTime, EndTime: b.EndTime, Duration: b.Duration,
		Pricing: pricingDTO{
			BasePrice: p.BasePrice, ServiceFees: p.ServiceFees, Taxes: p.Taxes, Discounts: p.Discounts,
			TotalAmount: p.TotalAmount, Currency: p.Currency, BillableHours: p.BillableHours, RatePerHour: p.RatePerHour,
		},
		Services: services, Status: string(b.Status),
		Payment: b.Payment, Entry: b.Entry, Exit: b.Exit, Cancellation: b.Cancellation, Rating: b.Rating,
		Notifications: notes, Version: b.Version, CreatedAt: b.CreatedAt, UpdatedAt: b.UpdatedAt,
	}
}

func toBookingResponses(bs []*model.Booking) []bookingResponse {
	out := make([]bookingResponse, 0, len(bs))
	for _, b := range bs {
		out = append(out, toBookingResponse(b))
	}
	return out
}
