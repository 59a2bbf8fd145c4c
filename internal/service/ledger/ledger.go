// Package ledger owns the authoritative state of every withdrawal request
// and enforces the transition table:
//
//	pending --approve--> approved --settle--> paid   (terminal)
//	pending --reject-->  rejected                    (terminal)
//
// Funds are reserved at approve time: the balance projection counts approved
// withdrawals as withdrawn, so a second request cannot be approved against
// money that is already spoken for while the first awaits settlement.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ndmitriev/payhub/internal/apperrors"
	"github.com/ndmitriev/payhub/internal/metrics"
	"github.com/ndmitriev/payhub/internal/models"
	"github.com/ndmitriev/payhub/internal/repository"
)

// BalanceSource reports the total completed earnings for one applicant
// population. The ledger never cares which population it is talking to.
type BalanceSource interface {
	TotalEarned(ctx context.Context, applicantID uuid.UUID) (decimal.Decimal, error)
}

// StatusPublisher receives one event per committed transition. Delivery is
// best-effort; the ledger publishes after commit and never retries.
type StatusPublisher interface {
	Publish(update models.StatusUpdate)
}

type Ledger struct {
	storage   repository.Storage
	publisher StatusPublisher

	// Per-applicant mutexes held across commit and publish, so subscribers
	// observe one applicant's transitions in commit order even when they
	// touch different withdrawals.
	publishMu sync.Map
}

func New(storage repository.Storage, publisher StatusPublisher) *Ledger {
	return &Ledger{
		storage:   storage,
		publisher: publisher,
	}
}

func (l *Ledger) applicantMu(applicantID uuid.UUID) *sync.Mutex {
	mu, _ := l.publishMu.LoadOrStore(applicantID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Submit creates the request in status pending and writes the implicit
// creation process record. Balance sufficiency is the caller's gate (the
// dispatcher checks it); the only hard rule here is a positive amount.
func (l *Ledger) Submit(ctx context.Context, applicant models.Applicant, amount decimal.Decimal) (models.Withdrawal, error) {
	var w models.Withdrawal

	if !amount.IsPositive() {
		return w, apperrors.ErrAmountInvalid
	}

	mu := l.applicantMu(applicant.ID)
	mu.Lock()
	defer mu.Unlock()

	err := l.storage.InTx(ctx, func(s repository.Storage) error {
		var err error
		w, err = s.Withdrawals().Create(ctx, repository.CreateWithdrawalParams{
			ApplicantID:   applicant.ID,
			ApplicantType: applicant.Type,
			Amount:        amount,
		})
		if err != nil {
			return err
		}

		return s.ProcessLog().Append(ctx, models.ProcessRecord{
			ID:           uuid.New(),
			WithdrawalID: w.ID,
			Status:       models.WithdrawalStatusPending,
			ProcessedBy:  applicant.ID,
			ProcessedAt:  w.CreatedAt,
			Notes:        "",
		})
	})
	if err != nil {
		return w, fmt.Errorf("submit withdrawal: %w", err)
	}

	metrics.TransitionsTotal.WithLabelValues(w.Status).Inc()
	l.publisher.Publish(models.StatusUpdate{
		WithdrawalID: w.ID,
		ApplicantID:  w.ApplicantID,
		Status:       w.Status,
		Amount:       w.Amount,
		ProcessedAt:  w.CreatedAt,
	})

	return w, nil
}

// Approve moves pending -> approved if the amount fits the available balance.
// The projection check and the status swap happen in one transaction under a
// per-applicant lock, so two pending requests cannot both win the same funds.
func (l *Ledger) Approve(ctx context.Context, src BalanceSource, id uuid.UUID, actorID uuid.UUID, notes string) (models.Withdrawal, error) {
	w, err := l.storage.Withdrawals().Get(ctx, id)
	if err != nil {
		return w, err
	}

	// Earnings only ever grow, so fetching the total before the transaction
	// is safe: a stale read may reject a valid approval, never admit an
	// invalid one. Keeps upstream calls out of the lock.
	earned, err := src.TotalEarned(ctx, w.ApplicantID)
	if err != nil {
		return w, fmt.Errorf("fetch earnings: %w", err)
	}

	mu := l.applicantMu(w.ApplicantID)
	mu.Lock()
	defer mu.Unlock()

	var rec models.ProcessRecord
	err = l.storage.InTx(ctx, func(s repository.Storage) error {
		if err := s.Withdrawals().LockApplicant(ctx, w.ApplicantID); err != nil {
			return err
		}

		current, err := s.Withdrawals().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != models.WithdrawalStatusPending {
			return apperrors.ErrAlreadyProcessed
		}

		reserved, err := s.Withdrawals().SumReserved(ctx, w.ApplicantID)
		if err != nil {
			return err
		}
		if earned.Sub(reserved).LessThan(current.Amount) {
			return apperrors.ErrBalanceInsufficient
		}

		w, rec, err = l.transition(ctx, s, id, models.WithdrawalStatusPending, models.WithdrawalStatusApproved, actorID, notes)
		return err
	})
	if err != nil {
		return w, err
	}

	l.publishRecord(w, rec)
	return w, nil
}

// Settle moves approved -> paid. The funds were reserved at approval, so
// there is no balance effect; this only acknowledges that the external payout
// went through.
func (l *Ledger) Settle(ctx context.Context, id uuid.UUID, actorID uuid.UUID, notes string) (models.Withdrawal, error) {
	w, err := l.storage.Withdrawals().Get(ctx, id)
	if err != nil {
		return w, err
	}

	mu := l.applicantMu(w.ApplicantID)
	mu.Lock()
	defer mu.Unlock()

	var rec models.ProcessRecord
	err = l.storage.InTx(ctx, func(s repository.Storage) error {
		var err error
		w, rec, err = l.transition(ctx, s, id, models.WithdrawalStatusApproved, models.WithdrawalStatusPaid, actorID, notes)
		return err
	})
	if err != nil {
		return w, err
	}

	l.publishRecord(w, rec)
	return w, nil
}

// Reject moves pending -> rejected. Notes are the rationale shown to the
// applicant and are mandatory.
func (l *Ledger) Reject(ctx context.Context, id uuid.UUID, actorID uuid.UUID, notes string) (models.Withdrawal, error) {
	if notes == "" {
		return models.Withdrawal{}, apperrors.ErrNotesRequired
	}

	w, err := l.storage.Withdrawals().Get(ctx, id)
	if err != nil {
		return w, err
	}

	mu := l.applicantMu(w.ApplicantID)
	mu.Lock()
	defer mu.Unlock()

	var rec models.ProcessRecord
	err = l.storage.InTx(ctx, func(s repository.Storage) error {
		var err error
		w, rec, err = l.transition(ctx, s, id, models.WithdrawalStatusPending, models.WithdrawalStatusRejected, actorID, notes)
		return err
	})
	if err != nil {
		return w, err
	}

	l.publishRecord(w, rec)
	return w, nil
}

// ApproveAndSettle collapses the "approve and pay" admin action into one
// atomic call. Still two sub-transitions with two process records: an
// approved-but-unpaid state stays representable and auditable, the caller
// just never observes it.
func (l *Ledger) ApproveAndSettle(ctx context.Context, src BalanceSource, id uuid.UUID, actorID uuid.UUID, notes string) (models.Withdrawal, error) {
	w, err := l.storage.Withdrawals().Get(ctx, id)
	if err != nil {
		return w, err
	}

	earned, err := src.TotalEarned(ctx, w.ApplicantID)
	if err != nil {
		return w, fmt.Errorf("fetch earnings: %w", err)
	}

	mu := l.applicantMu(w.ApplicantID)
	mu.Lock()
	defer mu.Unlock()

	var approveRec, settleRec models.ProcessRecord
	var approved models.Withdrawal
	err = l.storage.InTx(ctx, func(s repository.Storage) error {
		if err := s.Withdrawals().LockApplicant(ctx, w.ApplicantID); err != nil {
			return err
		}

		current, err := s.Withdrawals().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != models.WithdrawalStatusPending {
			return apperrors.ErrAlreadyProcessed
		}

		reserved, err := s.Withdrawals().SumReserved(ctx, w.ApplicantID)
		if err != nil {
			return err
		}
		if earned.Sub(reserved).LessThan(current.Amount) {
			return apperrors.ErrBalanceInsufficient
		}

		approved, approveRec, err = l.transition(ctx, s, id, models.WithdrawalStatusPending, models.WithdrawalStatusApproved, actorID, notes)
		if err != nil {
			return err
		}

		w, settleRec, err = l.transition(ctx, s, id, models.WithdrawalStatusApproved, models.WithdrawalStatusPaid, actorID, notes)
		return err
	})
	if err != nil {
		return w, err
	}

	l.publishRecord(approved, approveRec)
	l.publishRecord(w, settleRec)
	return w, nil
}

// ProcessRecords returns the audit trail, newest first.
func (l *Ledger) ProcessRecords(ctx context.Context, id uuid.UUID) ([]models.ProcessRecord, error) {
	// Missing withdrawal and empty trail are different answers
	if _, err := l.storage.Withdrawals().Get(ctx, id); err != nil {
		return nil, err
	}

	return l.storage.ProcessLog().ListFor(ctx, id)
}

// transition performs the CAS status update and appends the matching process
// record. Must run inside a transaction; the append failing rolls the status
// change back, keeping trail and state in lockstep.
func (l *Ledger) transition(ctx context.Context, s repository.Storage, id uuid.UUID, from string, to string, actorID uuid.UUID, notes string) (models.Withdrawal, models.ProcessRecord, error) {
	w, err := s.Withdrawals().SetStatusIf(ctx, id, from, to, actorID, notes)
	if err != nil {
		return w, models.ProcessRecord{}, err
	}

	rec := models.ProcessRecord{
		ID:           uuid.New(),
		WithdrawalID: w.ID,
		Status:       to,
		ProcessedBy:  actorID,
		ProcessedAt:  time.Now().UTC(),
		Notes:        notes,
	}
	if err := s.ProcessLog().Append(ctx, rec); err != nil {
		return w, rec, fmt.Errorf("append process record: %w", err)
	}

	return w, rec, nil
}

func (l *Ledger) publishRecord(w models.Withdrawal, rec models.ProcessRecord) {
	metrics.TransitionsTotal.WithLabelValues(rec.Status).Inc()
	l.publisher.Publish(models.StatusUpdate{
		WithdrawalID: w.ID,
		ApplicantID:  w.ApplicantID,
		Status:       rec.Status,
		Amount:       w.Amount,
		ProcessedAt:  rec.ProcessedAt,
	})
}
