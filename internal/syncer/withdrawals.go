package syncer

import (
	"github.com/ndmitriev/payhub/internal/models"
)

// statusRank orders statuses along the state machine. Both channels (push and
// poll) are unreliable views of the same authoritative sequence, so merges
// key on this order, never on arrival time.
var statusRank = map[string]int{
	models.WithdrawalStatusPending:  0,
	models.WithdrawalStatusApproved: 1,
	models.WithdrawalStatusPaid:     2,
	models.WithdrawalStatusRejected: 2,
}

// MergeStatusUpdate folds a pushed event into a polled withdrawal list.
// The event wins only when it is strictly ahead of the cached status; a stale
// or duplicate push changes nothing. Unknown ids are left for the next poll,
// which carries the full record.
func MergeStatusUpdate(list []models.Withdrawal, update models.StatusUpdate) ([]models.Withdrawal, bool) {
	for i, w := range list {
		if w.ID != update.WithdrawalID {
			continue
		}
		if statusRank[update.Status] <= statusRank[w.Status] {
			return list, false
		}

		merged := make([]models.Withdrawal, len(list))
		copy(merged, list)
		merged[i].Status = update.Status
		processedAt := update.ProcessedAt
		merged[i].ProcessedAt = &processedAt

		return merged, true
	}

	return list, false
}

// WithdrawalsEqual is the domain comparator for the sync engine: two
// snapshots render identically when ids and statuses match, so comparing that
// cheap subset avoids re-rendering for byte-level noise.
func WithdrawalsEqual(prev, next []models.Withdrawal) bool {
	if len(prev) != len(next) {
		return false
	}
	for i := range prev {
		if prev[i].ID != next[i].ID || prev[i].Status != next[i].Status {
			return false
		}
	}
	return true
}
