package broadcast

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ndmitriev/payhub/internal/logger"
	"github.com/ndmitriev/payhub/internal/models"
)

func TestBroadcaster(t *testing.T) {
	t.Parallel()

	update := func(applicantID uuid.UUID, status string) models.StatusUpdate {
		return models.StatusUpdate{
			WithdrawalID: uuid.New(),
			ApplicantID:  applicantID,
			Status:       status,
			ProcessedAt:  time.Now().UTC(),
		}
	}

	receive := func(t *testing.T, sub *Subscription) models.StatusUpdate {
		t.Helper()
		select {
		case u := <-sub.Updates():
			return u
		case <-time.After(time.Second):
			t.Fatal("expected an update, got none")
			return models.StatusUpdate{}
		}
	}

	t.Run("delivers to subscriber", func(t *testing.T) {
		b := New(logger.NewNoOpLogger())
		applicantID := uuid.New()

		sub := b.Subscribe(applicantID)
		defer sub.Close()

		sent := update(applicantID, models.WithdrawalStatusApproved)
		b.Publish(sent)

		got := receive(t, sub)
		require.Equal(t, sent.WithdrawalID, got.WithdrawalID)
		require.Equal(t, models.WithdrawalStatusApproved, got.Status)
	})

	t.Run("isolates applicants", func(t *testing.T) {
		b := New(logger.NewNoOpLogger())
		mine := b.Subscribe(uuid.New())
		defer mine.Close()

		b.Publish(update(uuid.New(), models.WithdrawalStatusPaid))

		select {
		case u := <-mine.Updates():
			t.Fatalf("got foreign update: %+v", u)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("fans out to every subscriber of the channel", func(t *testing.T) {
		b := New(logger.NewNoOpLogger())
		applicantID := uuid.New()

		first := b.Subscribe(applicantID)
		defer first.Close()
		second := b.Subscribe(applicantID)
		defer second.Close()

		b.Publish(update(applicantID, models.WithdrawalStatusRejected))

		require.Equal(t, models.WithdrawalStatusRejected, receive(t, first).Status)
		require.Equal(t, models.WithdrawalStatusRejected, receive(t, second).Status)
	})

	t.Run("drops instead of blocking on a full buffer", func(t *testing.T) {
		b := New(logger.NewNoOpLogger())
		applicantID := uuid.New()

		sub := b.Subscribe(applicantID)
		defer sub.Close()

		// Nobody reads: overflowing the buffer must not block Publish
		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < defaultBufferSize*2; i++ {
				b.Publish(update(applicantID, models.WithdrawalStatusApproved))
			}
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("publish blocked on a slow subscriber")
		}
	})

	t.Run("closed subscription receives nothing", func(t *testing.T) {
		b := New(logger.NewNoOpLogger())
		applicantID := uuid.New()

		sub := b.Subscribe(applicantID)
		sub.Close()
		sub.Close() // Close is idempotent

		// Publishing after close must not panic on the closed channel
		b.Publish(update(applicantID, models.WithdrawalStatusPaid))

		_, open := <-sub.Updates()
		require.False(t, open, "updates channel should be closed")
	})
}
