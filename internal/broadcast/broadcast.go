// Package broadcast fans committed status updates out to subscribed clients.
// Delivery is best-effort and at-most-once per connection: a slow subscriber
// loses events instead of blocking the ledger, and the poll path catches the
// client up. Within one applicant's channel events arrive in commit order
// because transitions per applicant are serialized upstream.
package broadcast

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ndmitriev/payhub/internal/logger"
	"github.com/ndmitriev/payhub/internal/metrics"
	"github.com/ndmitriev/payhub/internal/models"
)

const defaultBufferSize = 16

type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]map[*Subscription]struct{}

	bufferSize int
	logger     logger.Logger
}

func New(l logger.Logger) *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uuid.UUID]map[*Subscription]struct{}),
		bufferSize:  defaultBufferSize,
		logger:      l,
	}
}

type Subscription struct {
	applicantID uuid.UUID
	updates     chan models.StatusUpdate

	b    *Broadcaster
	once sync.Once
}

// Updates yields status events for the subscribed applicant. The channel is
// closed by Close, never by the broadcaster.
func (s *Subscription) Updates() <-chan models.StatusUpdate {
	return s.updates
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.b.unsubscribe(s)
		close(s.updates)
	})
}

// Subscribe registers a connection on the applicant's channel.
func (b *Broadcaster) Subscribe(applicantID uuid.UUID) *Subscription {
	sub := &Subscription{
		applicantID: applicantID,
		updates:     make(chan models.StatusUpdate, b.bufferSize),
		b:           b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[applicantID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		b.subscribers[applicantID] = subs
	}
	subs[sub] = struct{}{}

	return sub
}

func (b *Broadcaster) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[sub.applicantID]
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.subscribers, sub.applicantID)
	}
}

// Publish delivers the update to every subscriber of the applicant's channel.
// Never blocks: a full subscriber buffer drops the event.
func (b *Broadcaster) Publish(update models.StatusUpdate) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers[update.ApplicantID] {
		select {
		case sub.updates <- update:
		default:
			metrics.BroadcastDropped.Inc()
			b.logger.Debug("Dropped status update, subscriber buffer full",
				"withdrawal_id", update.WithdrawalID,
				"applicant_id", update.ApplicantID,
				"status", update.Status,
			)
		}
	}
}
