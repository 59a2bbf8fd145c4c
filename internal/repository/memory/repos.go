package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ndmitriev/payhub/internal/apperrors"
	"github.com/ndmitriev/payhub/internal/models"
	"github.com/ndmitriev/payhub/internal/repository"
)

type applicantRepo struct {
	*session
}

func (r *applicantRepo) Create(ctx context.Context, arg repository.CreateApplicantParams) (models.Applicant, error) {
	var a models.Applicant
	err := r.run(func(d *data) error {
		a = models.Applicant{
			ID:          uuid.New(),
			Type:        arg.Type,
			DisplayName: arg.DisplayName,
			CreatedAt:   time.Now().UTC(),
		}
		d.applicants[a.ID] = a
		return nil
	})
	return a, err
}

func (r *applicantRepo) Get(ctx context.Context, id uuid.UUID) (models.Applicant, error) {
	var a models.Applicant
	err := r.run(func(d *data) error {
		found, ok := d.applicants[id]
		if !ok {
			return apperrors.ErrApplicantNotFound
		}
		a = found
		return nil
	})
	return a, err
}

type withdrawalRepo struct {
	*session
}

func (r *withdrawalRepo) Create(ctx context.Context, arg repository.CreateWithdrawalParams) (models.Withdrawal, error) {
	var w models.Withdrawal
	err := r.run(func(d *data) error {
		w = models.Withdrawal{
			ID:            uuid.New(),
			ApplicantID:   arg.ApplicantID,
			ApplicantType: arg.ApplicantType,
			Amount:        arg.Amount,
			Status:        models.WithdrawalStatusPending,
			CreatedAt:     time.Now().UTC(),
		}
		d.withdrawals[w.ID] = w
		return nil
	})
	return w, err
}

func (r *withdrawalRepo) Get(ctx context.Context, id uuid.UUID) (models.Withdrawal, error) {
	var w models.Withdrawal
	err := r.run(func(d *data) error {
		found, ok := d.withdrawals[id]
		if !ok {
			return apperrors.ErrWithdrawalNotFound
		}
		w = found
		return nil
	})
	return w, err
}

// Rows are locked by the storage mutex already, so a plain Get is enough.
func (r *withdrawalRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (models.Withdrawal, error) {
	return r.Get(ctx, id)
}

func (r *withdrawalRepo) List(ctx context.Context, filter repository.ListWithdrawalsFilter) ([]models.Withdrawal, error) {
	var withdrawals []models.Withdrawal
	err := r.run(func(d *data) error {
		for _, w := range d.withdrawals {
			if matchesFilter(w, filter) {
				withdrawals = append(withdrawals, w)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(withdrawals, func(i, j int) bool {
		return withdrawals[i].CreatedAt.After(withdrawals[j].CreatedAt)
	})
	if filter.Limit > 0 && len(withdrawals) > filter.Limit {
		withdrawals = withdrawals[:filter.Limit]
	}

	return withdrawals, nil
}

func matchesFilter(w models.Withdrawal, filter repository.ListWithdrawalsFilter) bool {
	if filter.ApplicantID != uuid.Nil && w.ApplicantID != filter.ApplicantID {
		return false
	}
	if len(filter.Statuses) > 0 && !contains(filter.Statuses, w.Status) {
		return false
	}
	if len(filter.ApplicantTypes) > 0 && !contains(filter.ApplicantTypes, w.ApplicantType) {
		return false
	}
	if !filter.CreatedFrom.IsZero() && w.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	if !filter.CreatedTo.IsZero() && !w.CreatedAt.Before(filter.CreatedTo) {
		return false
	}
	return true
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}

func (r *withdrawalRepo) SetStatusIf(ctx context.Context, id uuid.UUID, from string, to string, actorID uuid.UUID, notes string) (models.Withdrawal, error) {
	var w models.Withdrawal
	err := r.run(func(d *data) error {
		found, ok := d.withdrawals[id]
		if !ok {
			return apperrors.ErrWithdrawalNotFound
		}
		if found.Status != from {
			return apperrors.ErrAlreadyProcessed
		}

		found.Status = to
		if found.ProcessedAt == nil {
			now := time.Now().UTC()
			found.ProcessedAt = &now
			actor := actorID
			found.ProcessedBy = &actor
		}
		if notes != "" {
			found.Notes = notes
		}

		d.withdrawals[id] = found
		w = found
		return nil
	})
	return w, err
}

func (r *withdrawalRepo) SumReserved(ctx context.Context, applicantID uuid.UUID) (decimal.Decimal, error) {
	sum := decimal.Zero
	err := r.run(func(d *data) error {
		for _, w := range d.withdrawals {
			if w.ApplicantID != applicantID {
				continue
			}
			if w.Status == models.WithdrawalStatusApproved || w.Status == models.WithdrawalStatusPaid {
				sum = sum.Add(w.Amount)
			}
		}
		return nil
	})
	return sum, err
}

// The storage mutex already serializes per applicant and then some.
func (r *withdrawalRepo) LockApplicant(ctx context.Context, applicantID uuid.UUID) error {
	return nil
}

type processLogRepo struct {
	*session
}

func (r *processLogRepo) Append(ctx context.Context, record models.ProcessRecord) error {
	return r.run(func(d *data) error {
		d.records = append(d.records, record)
		return nil
	})
}

func (r *processLogRepo) ListFor(ctx context.Context, withdrawalID uuid.UUID) ([]models.ProcessRecord, error) {
	var records []models.ProcessRecord
	err := r.run(func(d *data) error {
		// Newest first: reverse of append order
		for i := len(d.records) - 1; i >= 0; i-- {
			if d.records[i].WithdrawalID == withdrawalID {
				records = append(records, d.records[i])
			}
		}
		return nil
	})
	return records, err
}

type earningsRepo struct {
	*session
}

func (r *earningsRepo) Add(ctx context.Context, arg repository.AddEarningParams) error {
	return r.run(func(d *data) error {
		if !arg.Amount.IsPositive() {
			return apperrors.ErrAmountInvalid
		}
		d.earnings[arg.ApplicantID] = append(d.earnings[arg.ApplicantID], arg)
		return nil
	})
}

func (r *earningsRepo) TotalCompleted(ctx context.Context, applicantID uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	err := r.run(func(d *data) error {
		for _, e := range d.earnings[applicantID] {
			total = total.Add(e.Amount)
		}
		return nil
	})
	return total, err
}
