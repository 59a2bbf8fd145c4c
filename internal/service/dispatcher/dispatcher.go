// Package dispatcher is the single entry point for withdrawal actions. The
// two applicant populations share one state machine but draw on different
// balance sources; the dispatcher resolves the source so neither callers nor
// the ledger branch on applicant type.
package dispatcher

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ndmitriev/payhub/internal/apperrors"
	"github.com/ndmitriev/payhub/internal/models"
	"github.com/ndmitriev/payhub/internal/repository"
	"github.com/ndmitriev/payhub/internal/service/balance"
	"github.com/ndmitriev/payhub/internal/service/ledger"
)

type Config struct {
	// Smallest amount an applicant may request. Zero disables the rule.
	MinAmount decimal.Decimal
}

type Dispatcher struct {
	minAmount decimal.Decimal

	storage  repository.Storage
	ledger   *ledger.Ledger
	balances *balance.Service
	sources  map[string]balance.Source
}

func New(cfg Config, storage repository.Storage, l *ledger.Ledger, balances *balance.Service, provider balance.Source, staff balance.Source) *Dispatcher {
	return &Dispatcher{
		minAmount: cfg.MinAmount,
		storage:   storage,
		ledger:    l,
		balances:  balances,
		sources: map[string]balance.Source{
			models.ApplicantTypeProvider: provider,
			models.ApplicantTypeStaff:    staff,
		},
	}
}

func (d *Dispatcher) source(applicantType string) (balance.Source, error) {
	src, ok := d.sources[applicantType]
	if !ok {
		return nil, fmt.Errorf("no balance source for applicant type %q", applicantType)
	}
	return src, nil
}

// Submit validates the business rules the ledger does not own (minimum
// amount, balance sufficiency) and creates the pending request.
func (d *Dispatcher) Submit(ctx context.Context, applicantID uuid.UUID, amount decimal.Decimal) (models.Withdrawal, error) {
	var w models.Withdrawal

	applicant, err := d.storage.Applicants().Get(ctx, applicantID)
	if err != nil {
		return w, err
	}

	if !amount.IsPositive() {
		return w, apperrors.ErrAmountInvalid
	}
	if !d.minAmount.IsZero() && amount.LessThan(d.minAmount) {
		return w, apperrors.ErrAmountBelowMinimum
	}

	src, err := d.source(applicant.Type)
	if err != nil {
		return w, err
	}

	bal, err := d.balances.Available(ctx, src, applicantID)
	if err != nil {
		return w, err
	}
	if bal.Available.LessThan(amount) {
		return w, apperrors.ErrBalanceInsufficient
	}

	return d.ledger.Submit(ctx, applicant, amount)
}

func (d *Dispatcher) Approve(ctx context.Context, id uuid.UUID, actorID uuid.UUID, notes string) (models.Withdrawal, error) {
	w, err := d.storage.Withdrawals().Get(ctx, id)
	if err != nil {
		return w, err
	}

	src, err := d.source(w.ApplicantType)
	if err != nil {
		return w, err
	}

	return d.ledger.Approve(ctx, src, id, actorID, notes)
}

func (d *Dispatcher) Reject(ctx context.Context, id uuid.UUID, actorID uuid.UUID, notes string) (models.Withdrawal, error) {
	return d.ledger.Reject(ctx, id, actorID, notes)
}

// Pay marks an approved request as settled.
func (d *Dispatcher) Pay(ctx context.Context, id uuid.UUID, actorID uuid.UUID, notes string) (models.Withdrawal, error) {
	return d.ledger.Settle(ctx, id, actorID, notes)
}

// ApproveAndPay is the collapsed admin action: approve plus settle in one
// atomic call, still audited as two transitions.
func (d *Dispatcher) ApproveAndPay(ctx context.Context, id uuid.UUID, actorID uuid.UUID, notes string) (models.Withdrawal, error) {
	w, err := d.storage.Withdrawals().Get(ctx, id)
	if err != nil {
		return w, err
	}

	src, err := d.source(w.ApplicantType)
	if err != nil {
		return w, err
	}

	return d.ledger.ApproveAndSettle(ctx, src, id, actorID, notes)
}

func (d *Dispatcher) GetWithdrawal(ctx context.Context, id uuid.UUID) (models.Withdrawal, error) {
	return d.storage.Withdrawals().Get(ctx, id)
}

func (d *Dispatcher) ListWithdrawals(ctx context.Context, filter repository.ListWithdrawalsFilter) ([]models.Withdrawal, error) {
	return d.storage.Withdrawals().List(ctx, filter)
}

func (d *Dispatcher) ProcessRecords(ctx context.Context, id uuid.UUID) ([]models.ProcessRecord, error) {
	return d.ledger.ProcessRecords(ctx, id)
}

// Balance reports the current projection for one applicant.
func (d *Dispatcher) Balance(ctx context.Context, applicantID uuid.UUID) (models.Balance, error) {
	var b models.Balance

	applicant, err := d.storage.Applicants().Get(ctx, applicantID)
	if err != nil {
		return b, err
	}

	src, err := d.source(applicant.Type)
	if err != nil {
		return b, err
	}

	return d.balances.Available(ctx, src, applicantID)
}
