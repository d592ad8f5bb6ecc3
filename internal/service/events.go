package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Event is a domain fact published after the transaction that produced it commits.
type Event struct {
	Type         string                 `json:"type"`
	UserID       uint                   `json:"user_id"`
	EnrollmentID uint                   `json:"enrollment_id,omitempty"`
	PaymentID    uint                   `json:"payment_id,omitempty"`
	OccurredAt   time.Time              `json:"occurred_at"`
	Data         map[string]interface{} `json:"data,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event)
}

type Subscriber func(ctx context.Context, e Event)

// EventBus delivers events synchronously to every subscriber. A panicking
// subscriber is logged and does not stop delivery to the rest.
type EventBus struct {
	mu   sync.RWMutex
	subs []Subscriber
	log  logrus.FieldLogger
}

func NewEventBus(log logrus.FieldLogger) *EventBus {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &EventBus{log: log}
}

func (b *EventBus) Subscribe(fn Subscriber) {
	b.mu.Lock()
	b.subs = append(b.subs, fn)
	b.mu.Unlock()
}

func (b *EventBus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs...)
	b.mu.RUnlock()
	for _, fn := range subs {
		b.deliver(ctx, fn, e)
	}
}

func (b *EventBus) deliver(ctx context.Context, fn Subscriber, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithFields(logrus.Fields{"event": e.Type, "panic": r}).Error("[Events] subscriber panicked")
		}
	}()
	fn(ctx, e)
}

func publishAll(ctx context.Context, p Publisher, events []Event) {
	if p == nil {
		return
	}
	for _, e := range events {
		p.Publish(ctx, e)
	}
}
