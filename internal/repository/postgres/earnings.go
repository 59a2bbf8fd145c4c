package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ndmitriev/payhub/internal/apperrors"
	"github.com/ndmitriev/payhub/internal/repository"
)

type EarningsRepo struct {
	DB DBTX
}

const addEarning = `-- name: AddEarning
INSERT INTO completed_earnings (id, applicant_id, amount)
VALUES ($1, $2, $3)
`

func (r *EarningsRepo) Add(ctx context.Context, arg repository.AddEarningParams) error {
	if !arg.Amount.IsPositive() {
		return apperrors.ErrAmountInvalid
	}

	_, err := r.DB.Exec(ctx, addEarning, uuid.New(), arg.ApplicantID, arg.Amount)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

const totalCompleted = `-- name: TotalCompleted
SELECT COALESCE(SUM(amount), 0) FROM completed_earnings
WHERE applicant_id = $1
`

func (r *EarningsRepo) TotalCompleted(ctx context.Context, applicantID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.DB.QueryRow(ctx, totalCompleted, applicantID).Scan(&total)
	if err != nil {
		return total, fmt.Errorf("db error: %w", err)
	}

	return total, nil
}
