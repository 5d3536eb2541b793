package reminder

import (
	"context"
	"time"

	"github.com/dom/shared-calendar/internal/domain"
	"github.com/dom/shared-calendar/internal/metrics"
	"github.com/dom/shared-calendar/internal/repository"
	"github.com/dom/shared-calendar/internal/websocket"
	"github.com/rs/zerolog"
)

const batchSize = 100

// Publisher delivers a message to the subscribers of a calendar.
type Publisher interface {
	Publish(shareCode string, msgType websocket.MessageType, payload interface{})
}

// Dispatcher periodically claims due reminders and pushes them to the
// calendar's subscribers. Claiming flips the sent flag with a conditional
// update, so two dispatchers never deliver the same reminder.
type Dispatcher struct {
	reminders repository.ReminderRepository
	publisher Publisher
	interval  time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

func NewDispatcher(reminders repository.ReminderRepository, publisher Publisher, interval time.Duration, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		reminders: reminders,
		publisher: publisher,
		interval:  interval,
		logger:    logger.With().Str("component", "reminder_dispatcher").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start polls until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info().Dur("interval", d.interval).Msg("reminder dispatcher started")
	for {
		if _, err := d.DispatchDue(ctx); err != nil && ctx.Err() == nil {
			metrics.ReminderDispatchErrors.Inc()
			d.logger.Error().Err(err).Msg("reminder dispatch failed")
		}

		select {
		case <-ctx.Done():
			d.logger.Info().Msg("reminder dispatcher stopped")
			return
		case <-ticker.C:
		}
	}
}

// DispatchDue delivers every reminder whose trigger time has passed and
// returns how many this call claimed.
func (d *Dispatcher) DispatchDue(ctx context.Context) (int, error) {
	dispatched := 0
	for {
		now := d.now()
		due, err := d.reminders.ListDue(ctx, now, batchSize)
		if err != nil {
			return dispatched, err
		}

		for _, r := range due {
			claimed, err := d.reminders.MarkSent(ctx, r.ID, now)
			if err != nil {
				return dispatched, err
			}
			if !claimed {
				continue
			}
			r.Sent = true
			d.deliver(r)
			dispatched++
		}

		if len(due) < batchSize {
			return dispatched, nil
		}
	}
}

func (d *Dispatcher) deliver(r *domain.Reminder) {
	metrics.RemindersDispatchedTotal.Inc()

	if r.Event == nil || r.Event.Calendar == nil {
		d.logger.Warn().Str("reminder_id", r.ID.String()).Msg("reminder without event or calendar")
		return
	}
	d.publisher.Publish(r.Event.Calendar.ShareCode, websocket.MessageTypeReminderDue, websocket.ReminderDuePayload{
		Event:    r.Event,
		Reminder: r,
	})
	d.logger.Debug().
		Str("reminder_id", r.ID.String()).
		Str("event_id", r.EventID.String()).
		Msg("reminder dispatched")
}
