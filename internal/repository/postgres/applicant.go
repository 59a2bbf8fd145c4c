package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ndmitriev/payhub/internal/apperrors"
	"github.com/ndmitriev/payhub/internal/models"
	"github.com/ndmitriev/payhub/internal/repository"
)

type ApplicantRepo struct {
	DB DBTX
}

const createApplicant = `-- name: CreateApplicant
INSERT INTO applicants (id, type, display_name)
VALUES ($1, $2, $3)
RETURNING id, type, display_name, created_at
`

func (r *ApplicantRepo) Create(ctx context.Context, arg repository.CreateApplicantParams) (models.Applicant, error) {
	rows, _ := r.DB.Query(ctx, createApplicant, uuid.New(), arg.Type, arg.DisplayName)
	a, err := pgx.CollectOneRow(rows, rowToApplicant)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation {
			return a, fmt.Errorf("unknown applicant type %q: %w", arg.Type, err)
		}

		return a, fmt.Errorf("db error: %w", err)
	}

	return a, nil
}

const getApplicant = `-- name: GetApplicant
SELECT id, type, display_name, created_at FROM applicants
WHERE id = $1
`

func (r *ApplicantRepo) Get(ctx context.Context, id uuid.UUID) (models.Applicant, error) {
	rows, _ := r.DB.Query(ctx, getApplicant, id)
	a, err := pgx.CollectOneRow(rows, rowToApplicant)

	switch {
	case err == nil:
		return a, nil
	case errors.Is(err, pgx.ErrNoRows):
		return a, apperrors.ErrApplicantNotFound
	default:
		return a, fmt.Errorf("db error: %w", err)
	}
}

func rowToApplicant(row pgx.CollectableRow) (models.Applicant, error) {
	var a models.Applicant
	err := row.Scan(&a.ID, &a.Type, &a.DisplayName, &a.CreatedAt)
	return a, err
}
