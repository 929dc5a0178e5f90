package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

// Delivery is everything to hand out after a bid or finalization committed.
type Delivery struct {
	Event         *domain.AuctionEvent
	Notifications []*domain.Notification
}

// Deliverer performs best-effort external delivery. It never reports failure
// to the caller; the notification rows are already durable.
type Deliverer interface {
	Deliver(ctx context.Context, d Delivery)
}

type noopDeliverer struct{}

func (noopDeliverer) Deliver(context.Context, Delivery) {}

var subjects = map[domain.NotificationType]string{
	domain.NotificationBidConfirmed:   "Your bid was accepted",
	domain.NotificationOutbid:         "You have been outbid",
	domain.NotificationBidAudit:       "Bid placed",
	domain.NotificationAuctionWon:     "You won the auction",
	domain.NotificationAuctionLost:    "Auction closed",
	domain.NotificationAuctionSummary: "Auction finalized",
}

// DeliveryDispatcher publishes the event, pushes every notification to the
// real-time channel and emails each recipient. Each step fails on its own.
type DeliveryDispatcher struct {
	publisher  domain.EventPublisher
	email      domain.EmailDispatcher
	users      domain.UserDirectory
	adminEmail string
	timeout    time.Duration
	log        logger.Logger
}

func NewDeliveryDispatcher(
	publisher domain.EventPublisher,
	email domain.EmailDispatcher,
	users domain.UserDirectory,
	adminEmail string,
	timeout time.Duration,
	log logger.Logger,
) *DeliveryDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DeliveryDispatcher{
		publisher:  publisher,
		email:      email,
		users:      users,
		adminEmail: adminEmail,
		timeout:    timeout,
		log:        log,
	}
}

func (d *DeliveryDispatcher) Deliver(ctx context.Context, del Delivery) {
	if del.Event != nil && d.publisher != nil {
		d.publish(ctx, del.Event)
	}

	for _, n := range del.Notifications {
		if d.publisher != nil {
			d.publish(ctx, domain.NotificationEvent(n))
		}
		if d.email != nil {
			d.sendEmail(ctx, n)
		}
	}
}

func (d *DeliveryDispatcher) publish(ctx context.Context, event *domain.AuctionEvent) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.publisher.PublishAuctionEvent(ctx, event); err != nil {
		d.log.Error("Failed to publish auction event",
			"type", event.Type, "auction_id", event.AuctionID, "error", err)
	}
}

func (d *DeliveryDispatcher) sendEmail(ctx context.Context, n *domain.Notification) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	to, err := d.recipientAddress(ctx, n)
	if err != nil {
		d.log.Warn("No email address for recipient",
			"notification_id", n.ID, "recipient_id", n.RecipientID, "error", err)
		return
	}
	if to == "" {
		return
	}

	subject, ok := subjects[n.Type]
	if !ok {
		subject = "Auction update"
	}
	if err := d.email.Send(ctx, to, subject, n.Message); err != nil {
		d.log.Error("Failed to email notification",
			"notification_id", n.ID, "auction_id", n.AuctionID,
			"recipient_kind", n.RecipientKind, "recipient_id", n.RecipientID, "error", err)
	}
}

func (d *DeliveryDispatcher) recipientAddress(ctx context.Context, n *domain.Notification) (string, error) {
	if n.RecipientKind == domain.RecipientAdmin {
		return d.adminEmail, nil
	}
	if d.users == nil {
		return "", errors.New("no user directory")
	}
	return d.users.ContactEmail(ctx, n.RecipientID)
}

// AsyncDeliverer queues deliveries for a fixed pool of workers so the
// triggering operation never waits on external systems.
type AsyncDeliverer struct {
	next    Deliverer
	queue   chan Delivery
	workers int
	log     logger.Logger
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
}

func NewAsyncDeliverer(next Deliverer, workers, queueSize int, log logger.Logger) *AsyncDeliverer {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &AsyncDeliverer{
		next:    next,
		queue:   make(chan Delivery, queueSize),
		workers: workers,
		log:     log,
	}
}

// Start launches the workers. They drain the queue until Stop is called.
func (a *AsyncDeliverer) Start(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for i := 0; i < a.workers; i++ {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			for del := range a.queue {
				a.next.Deliver(ctx, del)
			}
		}()
	}
}

// Deliver enqueues without blocking. A full queue drops the delivery.
func (a *AsyncDeliverer) Deliver(ctx context.Context, del Delivery) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.log.Warn("Delivery after shutdown ignored", "notifications", len(del.Notifications))
		return
	}

	select {
	case a.queue <- del:
	default:
		auctionID := ""
		if del.Event != nil {
			auctionID = del.Event.AuctionID
		}
		a.log.Warn("Delivery queue full, dropping external delivery",
			"auction_id", auctionID, "notifications", len(del.Notifications))
	}
}

// Stop closes the queue and waits for queued deliveries to finish.
func (a *AsyncDeliverer) Stop() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	a.wg.Wait()
}
