package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/internal/infrastructure/memory"
	"auction-engine/pkg/logger"

	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.AuctionEvent
	err    error
}

func (p *recordingPublisher) PublishAuctionEvent(_ context.Context, event *domain.AuctionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

type sentMail struct {
	to, subject, body string
}

type recordingMailer struct {
	mu     sync.Mutex
	sent   []sentMail
	failTo string
}

func (m *recordingMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if to == m.failTo {
		return errors.New("mailbox unavailable")
	}
	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}

func sampleDelivery() Delivery {
	at := start.Add(time.Minute)
	return Delivery{
		Event: &domain.AuctionEvent{Type: domain.EventBidAccepted, AuctionID: "a1", Timestamp: at},
		Notifications: []*domain.Notification{
			{ID: "n1", RecipientKind: domain.RecipientBidder, RecipientID: "alice", AuctionID: "a1", Type: domain.NotificationBidConfirmed, Message: "accepted", CreatedAt: at},
			{ID: "n2", RecipientKind: domain.RecipientBidder, RecipientID: "bob", AuctionID: "a1", Type: domain.NotificationOutbid, Message: "outbid", CreatedAt: at},
			{ID: "n3", RecipientKind: domain.RecipientAdmin, AuctionID: "a1", Type: domain.NotificationBidAudit, Message: "audit", CreatedAt: at},
		},
	}
}

func TestDeliveryDispatcher_IsolatesFailures(t *testing.T) {
	users := memory.NewUserDirectory(
		memory.User{ID: "alice", Email: "alice@example.com"},
		memory.User{ID: "bob", Email: "bob@example.com"},
	)
	publisher := &recordingPublisher{err: errors.New("redis down")}
	mailer := &recordingMailer{failTo: "alice@example.com"}
	d := NewDeliveryDispatcher(publisher, mailer, users, "ops@example.com", time.Second, logger.NewNop())

	d.Deliver(context.Background(), sampleDelivery())

	// event plus one push per notification
	require.Len(t, publisher.events, 4)
	require.Equal(t, domain.EventNotification, publisher.events[1].Type)

	require.Len(t, mailer.sent, 2)
	require.Equal(t, "bob@example.com", mailer.sent[0].to)
	require.Equal(t, "You have been outbid", mailer.sent[0].subject)
	require.Equal(t, "ops@example.com", mailer.sent[1].to)
}

func TestDeliveryDispatcher_SkipsUnknownRecipients(t *testing.T) {
	mailer := &recordingMailer{}
	d := NewDeliveryDispatcher(nil, mailer, memory.NewUserDirectory(), "", time.Second, logger.NewNop())

	d.Deliver(context.Background(), sampleDelivery())
	require.Empty(t, mailer.sent)
}

type blockingDeliverer struct {
	started chan struct{}
	release chan struct{}
	mu      sync.Mutex
	count   int
}

func (b *blockingDeliverer) Deliver(context.Context, Delivery) {
	b.started <- struct{}{}
	<-b.release
	b.mu.Lock()
	b.count++
	b.mu.Unlock()
}

func TestAsyncDeliverer_DropsWhenQueueFull(t *testing.T) {
	next := &blockingDeliverer{started: make(chan struct{}, 4), release: make(chan struct{})}
	a := NewAsyncDeliverer(next, 1, 1, logger.NewNop())
	a.Start(context.Background())

	a.Deliver(context.Background(), sampleDelivery())
	<-next.started

	a.Deliver(context.Background(), sampleDelivery()) // queued
	a.Deliver(context.Background(), sampleDelivery()) // dropped

	close(next.release)
	a.Stop()
	require.Equal(t, 2, next.count)

	// after Stop deliveries are ignored
	a.Deliver(context.Background(), sampleDelivery())
	require.Equal(t, 2, next.count)
}
