package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/parking-lot-reservation/internal/model"
	"github.com/iliyamo/parking-lot-reservation/internal/notify"
	"github.com/iliyamo/parking-lot-reservation/internal/queue"
	"github.com/iliyamo/parking-lot-reservation/internal/repository"
)

// Notifier turns booking events into user notifications. Every event with
// a message is recorded in-app on the booking; external senders are tried
// in order and their deliveries recorded as well.
type Notifier struct {
	bookings *repository.BookingRepo
	users    *repository.UserRepo
	senders  []notify.Sender
	log      zerolog.Logger
	now      func() time.Time
}

func NewNotifier(bookings *repository.BookingRepo, users *repository.UserRepo, log zerolog.Logger, senders ...notify.Sender) *Notifier {
	return &Notifier{
		bookings: bookings,
		users:    users,
		senders:  senders,
		log:      log.With().Str("component", "notifier").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Handle is a queue.Handler.
func (n *Notifier) Handle(ctx context.Context, ev queue.BookingEvent) error {
	text := MessageFor(ev)
	if text == "" {
		return nil
	}
	u, err := n.users.GetByID(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", ev.UserID, err)
	}

	sentAt := n.now()
	out := []model.Notification{{Type: ev.Type, Message: text, SentAt: sentAt, Channel: notify.ChannelInApp}}
	msg := notify.Message{UserID: u.ID, TelegramChatID: u.TelegramChatID, Text: text}
	for _, s := range n.senders {
		if err := s.Send(ctx, msg); err != nil {
			if !errors.Is(err, notify.ErrNoRecipient) {
				n.log.Warn().Err(err).Str("channel", s.Channel()).Str("booking_id", ev.BookingID).Msg("notification not delivered")
			}
			continue
		}
		out = append(out, model.Notification{Type: ev.Type, Message: text, SentAt: sentAt, Channel: s.Channel()})
	}
	return n.bookings.AppendNotifications(ctx, ev.BookingID, out)
}

// MessageFor renders the user-facing text of an event. Events users are not
// told about return "".
func MessageFor(ev queue.BookingEvent) string {
	when := ev.StartTime.UTC().Format("02 Jan 2006 15:04 UTC")
	switch ev.Type {
	case queue.EventCreated:
		return fmt.Sprintf("Booking %s for %s on %s is reserved. Total %d %s; pay to confirm.",
			short(ev.BookingID), ev.LicensePlate, when, ev.TotalAmount, ev.Currency)
	case queue.EventConfirmed:
		return fmt.Sprintf("Booking %s is confirmed for %s.", short(ev.BookingID), when)
	case queue.EventPaid:
		return fmt.Sprintf("Payment of %d %s received for booking %s.", ev.TotalAmount, ev.Currency, short(ev.BookingID))
	case queue.EventCheckedIn:
		return fmt.Sprintf("%s checked in. Your booking ends at %s.", ev.LicensePlate, ev.EndTime.UTC().Format("15:04 UTC"))
	case queue.EventExtended:
		return fmt.Sprintf("Booking %s extended until %s. New total %d %s.",
			short(ev.BookingID), ev.EndTime.UTC().Format("02 Jan 2006 15:04 UTC"), ev.TotalAmount, ev.Currency)
	case queue.EventCheckedOut:
		return fmt.Sprintf("%s checked out. Thanks for parking with us.", ev.LicensePlate)
	case queue.EventCancelled:
		if ev.RefundAmount > 0 {
			return fmt.Sprintf("Booking %s was cancelled. %d %s will be refunded.", short(ev.BookingID), ev.RefundAmount, ev.Currency)
		}
		return fmt.Sprintf("Booking %s was cancelled.", short(ev.BookingID))
	case queue.EventNoShow:
		return fmt.Sprintf("Booking %s was marked as a no-show.", short(ev.BookingID))
	}
	return ""
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
