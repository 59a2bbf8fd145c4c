package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ndmitriev/payhub/internal/models"
)

type CreateApplicantParams struct {
	Type        string
	DisplayName string
}

// Applicant repository interface
type ApplicantRepo interface {
	Create(ctx context.Context, arg CreateApplicantParams) (models.Applicant, error)

	// Get applicant by id
	// If applicant not found must return apperrors.ErrApplicantNotFound
	Get(ctx context.Context, id uuid.UUID) (models.Applicant, error)
}

type CreateWithdrawalParams struct {
	ApplicantID   uuid.UUID
	ApplicantType string
	Amount        decimal.Decimal
}

type ListWithdrawalsFilter struct {
	ApplicantID    uuid.UUID // zero value means any applicant
	Statuses       []string
	ApplicantTypes []string
	CreatedFrom    time.Time
	CreatedTo      time.Time
	Limit          int
}

// Withdrawal repository interface
//
// All status mutations go through SetStatusIf, a compare-and-swap on the
// current status. Two concurrent transitions on the same row therefore get
// exactly one winner; the loser receives apperrors.ErrAlreadyProcessed.
type WithdrawalRepo interface {
	// Create withdrawal in status pending
	Create(ctx context.Context, arg CreateWithdrawalParams) (models.Withdrawal, error)

	// Get withdrawal by id
	// If not found must return apperrors.ErrWithdrawalNotFound
	Get(ctx context.Context, id uuid.UUID) (models.Withdrawal, error)

	// Get withdrawal by id and lock the row until the transaction ends.
	// Must be called inside InTx.
	GetForUpdate(ctx context.Context, id uuid.UUID) (models.Withdrawal, error)

	List(ctx context.Context, filter ListWithdrawalsFilter) ([]models.Withdrawal, error)

	// Set status to 'to' only if the current status is 'from'.
	// Returns apperrors.ErrAlreadyProcessed if the row is not in 'from'.
	// ProcessedAt/ProcessedBy are set on the first approving or terminal
	// transition and never overwritten after that.
	SetStatusIf(ctx context.Context, id uuid.UUID, from string, to string, actorID uuid.UUID, notes string) (models.Withdrawal, error)

	// Sum of amounts with status approved or paid: the reserved part of the
	// balance projection
	SumReserved(ctx context.Context, applicantID uuid.UUID) (decimal.Decimal, error)

	// Serialize balance checks per applicant for the rest of the transaction.
	// Must be called inside InTx.
	LockApplicant(ctx context.Context, applicantID uuid.UUID) error
}

// ProcessLog repository interface: the append-only audit trail
type ProcessLogRepo interface {
	// Append one record. Never fails except on storage unavailability,
	// which is propagated, not swallowed.
	Append(ctx context.Context, record models.ProcessRecord) error

	// Records for the withdrawal, newest first
	ListFor(ctx context.Context, withdrawalID uuid.UUID) ([]models.ProcessRecord, error)
}

type AddEarningParams struct {
	ApplicantID uuid.UUID
	Amount      decimal.Decimal
}

// Earnings repository interface: completed-earnings records owned by the
// order/commission subsystem, read here for the balance projection
type EarningsRepo interface {
	Add(ctx context.Context, arg AddEarningParams) error
	TotalCompleted(ctx context.Context, applicantID uuid.UUID) (decimal.Decimal, error)
}

type Storage interface {
	Applicants() ApplicantRepo
	Withdrawals() WithdrawalRepo
	ProcessLog() ProcessLogRepo
	Earnings() EarningsRepo

	// Run fn within a transaction. The Storage passed to fn operates on the
	// transaction; commit on nil, rollback otherwise.
	InTx(ctx context.Context, fn func(Storage) error) error
}
