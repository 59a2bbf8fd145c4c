package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ndmitriev/payhub/internal/apperrors"
	"github.com/ndmitriev/payhub/internal/models"
	"github.com/ndmitriev/payhub/internal/repository"
)

type WithdrawalRepo struct {
	DB DBTX
}

const createWithdrawal = `-- name: CreateWithdrawal
INSERT INTO withdrawals (id, applicant_id, applicant_type, amount, status, created_at)
VALUES ($1, $2, $3, $4, $5, now())
RETURNING id, applicant_id, applicant_type, amount, status, created_at, processed_at, processed_by, notes
`

func (r *WithdrawalRepo) Create(ctx context.Context, arg repository.CreateWithdrawalParams) (models.Withdrawal, error) {
	rows, _ := r.DB.Query(ctx, createWithdrawal,
		uuid.New(), arg.ApplicantID, arg.ApplicantType, arg.Amount, models.WithdrawalStatusPending,
	)
	w, err := pgx.CollectOneRow(rows, rowToWithdrawal)
	if err != nil {
		return w, fmt.Errorf("db error: %w", err)
	}

	return w, nil
}

const getWithdrawal = `-- name: GetWithdrawal
SELECT id, applicant_id, applicant_type, amount, status, created_at, processed_at, processed_by, notes
FROM withdrawals
WHERE id = $1
`

func (r *WithdrawalRepo) Get(ctx context.Context, id uuid.UUID) (models.Withdrawal, error) {
	return r.get(ctx, getWithdrawal, id)
}

const getWithdrawalForUpdate = getWithdrawal + `FOR UPDATE
`

func (r *WithdrawalRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (models.Withdrawal, error) {
	return r.get(ctx, getWithdrawalForUpdate, id)
}

func (r *WithdrawalRepo) get(ctx context.Context, sql string, id uuid.UUID) (models.Withdrawal, error) {
	rows, _ := r.DB.Query(ctx, sql, id)
	w, err := pgx.CollectOneRow(rows, rowToWithdrawal)

	switch {
	case err == nil:
		return w, nil
	case errors.Is(err, pgx.ErrNoRows):
		return w, apperrors.ErrWithdrawalNotFound
	default:
		return w, fmt.Errorf("db error: %w", err)
	}
}

func (r *WithdrawalRepo) List(ctx context.Context, filter repository.ListWithdrawalsFilter) ([]models.Withdrawal, error) {
	sql := strings.Builder{}
	sql.WriteString(`SELECT id, applicant_id, applicant_type, amount, status, created_at, processed_at, processed_by, notes
	FROM withdrawals`)

	var conds []string
	var args []any

	addCond := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.ApplicantID != uuid.Nil {
		addCond("applicant_id = $%d", filter.ApplicantID)
	}
	if len(filter.Statuses) > 0 {
		addCond("status = ANY($%d)", filter.Statuses)
	}
	if len(filter.ApplicantTypes) > 0 {
		addCond("applicant_type = ANY($%d)", filter.ApplicantTypes)
	}
	if !filter.CreatedFrom.IsZero() {
		addCond("created_at >= $%d", filter.CreatedFrom)
	}
	if !filter.CreatedTo.IsZero() {
		addCond("created_at < $%d", filter.CreatedTo)
	}

	if len(conds) > 0 {
		sql.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	sql.WriteString(" ORDER BY created_at DESC")

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sql.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	}

	rows, _ := r.DB.Query(ctx, sql.String(), args...)
	withdrawals, err := pgx.CollectRows(rows, rowToWithdrawal)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return withdrawals, nil
}

// Compare-and-swap on the current status. processed_at and processed_by stick
// to the first transition that set them; notes are overwritten only when the
// new transition carries any.
const setStatusIf = `-- name: SetStatusIf
UPDATE withdrawals
SET status = $3,
    processed_at = COALESCE(processed_at, now()),
    processed_by = COALESCE(processed_by, $4),
    notes = CASE WHEN $5 <> '' THEN $5 ELSE notes END
WHERE id = $1 AND status = $2
RETURNING id, applicant_id, applicant_type, amount, status, created_at, processed_at, processed_by, notes
`

func (r *WithdrawalRepo) SetStatusIf(ctx context.Context, id uuid.UUID, from string, to string, actorID uuid.UUID, notes string) (models.Withdrawal, error) {
	rows, _ := r.DB.Query(ctx, setStatusIf, id, from, to, actorID, notes)
	w, err := pgx.CollectOneRow(rows, rowToWithdrawal)

	switch {
	case err == nil:
		return w, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Distinguish a missing row from a lost race
		_, getErr := r.Get(ctx, id)
		if getErr != nil {
			return w, getErr
		}
		return w, apperrors.ErrAlreadyProcessed
	default:
		return w, fmt.Errorf("db error: %w", err)
	}
}

const sumReserved = `-- name: SumReserved
SELECT COALESCE(SUM(amount), 0) FROM withdrawals
WHERE applicant_id = $1 AND status IN ('approved', 'paid')
`

func (r *WithdrawalRepo) SumReserved(ctx context.Context, applicantID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.DB.QueryRow(ctx, sumReserved, applicantID).Scan(&sum)
	if err != nil {
		return sum, fmt.Errorf("db error: %w", err)
	}

	return sum, nil
}

// Advisory lock scoped to the current transaction. Serializes the balance
// check against concurrent approvals for the same applicant.
const lockApplicant = `-- name: LockApplicant
SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))
`

func (r *WithdrawalRepo) LockApplicant(ctx context.Context, applicantID uuid.UUID) error {
	_, err := r.DB.Exec(ctx, lockApplicant, applicantID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func rowToWithdrawal(row pgx.CollectableRow) (models.Withdrawal, error) {
	var w models.Withdrawal
	err := row.Scan(&w.ID, &w.ApplicantID, &w.ApplicantType, &w.Amount, &w.Status, &w.CreatedAt, &w.ProcessedAt, &w.ProcessedBy, &w.Notes)
	return w, err
}
