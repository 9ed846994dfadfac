// Package notify is the delivery boundary for notification intents.
// The engine publishes intents and moves on; delivery, suppression and
// throttling happen here, on a separate goroutine, and can never fail
// the auction operation that emitted the intent.
package notify

import (
	"context"
	"sync"
	"time"

	"auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/utils"
)

// Sender delivers one notification to one user. Implementations talk
// to the actual messaging layer; LogSender below just records them.
type Sender interface {
	Send(ctx context.Context, userID string, intent models.NotificationIntent) error
}

// LogSender writes deliveries to the structured log. It stands in for
// a real messaging integration.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, userID string, intent models.NotificationIntent) error {
	utils.Info("notification delivered", map[string]any{
		"kind":       string(intent.Kind),
		"auction_id": intent.AuctionID,
		"user_id":    userID,
		"payload":    intent.Payload,
	})
	return nil
}

// Dispatcher consumes intents from a buffered queue. Publish never
// blocks: when the queue is full the intent is dropped with a warning.
// Notifications are lossy; auction state is not.
type Dispatcher struct {
	store    repository.AuctionStore
	sender   Sender
	throttle time.Duration
	queue    chan models.NotificationIntent
	now      func() time.Time

	closeOnce sync.Once
	done      chan struct{}
}

// NewDispatcher creates a dispatcher and starts its worker goroutine.
func NewDispatcher(store repository.AuctionStore, sender Sender, buffer int, throttle time.Duration) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	d := &Dispatcher{
		store:    store,
		sender:   sender,
		throttle: throttle,
		queue:    make(chan models.NotificationIntent, buffer),
		now:      func() time.Time { return time.Now().UTC() },
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// Publish enqueues an intent without blocking.
func (d *Dispatcher) Publish(intent models.NotificationIntent) {
	select {
	case d.queue <- intent:
	default:
		utils.Warn("notification queue full, dropping intent", map[string]any{
			"kind":       string(intent.Kind),
			"auction_id": intent.AuctionID,
		})
	}
}

// Close stops accepting intents, drains the queue and waits for the
// worker to finish.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.queue)
	})
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for intent := range d.queue {
		d.deliver(intent)
	}
}

// deliver fans one intent out to its targets, honoring each
// participant's notification preferences and the throttle window.
// Per-user failures are logged and skipped.
func (d *Dispatcher) deliver(intent models.NotificationIntent) {
	ctx := context.Background()
	now := d.now()

	for _, userID := range intent.TargetUserIDs {
		p, found, err := d.store.GetParticipant(ctx, intent.AuctionID, userID)
		if err != nil {
			utils.Warn("failed to load participant, skipping notification", map[string]any{
				"auction_id": intent.AuctionID,
				"user_id":    userID,
				"error":      err.Error(),
			})
			continue
		}
		if found && !p.NotificationsEnabled {
			continue
		}
		if found && d.throttle > 0 && p.LastNotifiedAt != nil && now.Sub(*p.LastNotifiedAt) < d.throttle {
			continue
		}

		if err := d.sender.Send(ctx, userID, intent); err != nil {
			utils.Error("notification delivery failed", map[string]any{
				"kind":       string(intent.Kind),
				"auction_id": intent.AuctionID,
				"user_id":    userID,
				"error":      err.Error(),
			})
			continue
		}

		if found {
			if err := d.store.MarkParticipantNotified(ctx, intent.AuctionID, userID, now); err != nil {
				utils.Warn("failed to record notification time", map[string]any{
					"auction_id": intent.AuctionID,
					"user_id":    userID,
					"error":      err.Error(),
				})
			}
		}
	}
}
