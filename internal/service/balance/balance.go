// Package balance computes the withdrawable-funds projection. The value is
// derived on every read from completed earnings minus reserved withdrawals;
// nothing here is a stored counter, so there is no counter to drift.
package balance

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ndmitriev/payhub/internal/models"
	"github.com/ndmitriev/payhub/internal/repository"
)

// Source is one applicant population's earnings feed.
type Source interface {
	TotalEarned(ctx context.Context, applicantID uuid.UUID) (decimal.Decimal, error)
}

// EarningsSource feeds provider balances from the completed-earnings records
// the order/commission subsystem writes into our database.
type EarningsSource struct {
	earnings repository.EarningsRepo
}

func NewEarningsSource(earnings repository.EarningsRepo) *EarningsSource {
	return &EarningsSource{earnings: earnings}
}

func (s *EarningsSource) TotalEarned(ctx context.Context, applicantID uuid.UUID) (decimal.Decimal, error) {
	return s.earnings.TotalCompleted(ctx, applicantID)
}

type Service struct {
	withdrawals repository.WithdrawalRepo
}

func NewService(withdrawals repository.WithdrawalRepo) *Service {
	return &Service{withdrawals: withdrawals}
}

// Available computes the projection for one applicant. A read racing a
// concurrent approval may be momentarily stale; the ledger re-checks under
// lock at commit time, so stale reads here cannot overdraw anything.
func (s *Service) Available(ctx context.Context, src Source, applicantID uuid.UUID) (models.Balance, error) {
	var b models.Balance

	earned, err := src.TotalEarned(ctx, applicantID)
	if err != nil {
		return b, fmt.Errorf("total earned: %w", err)
	}

	reserved, err := s.withdrawals.SumReserved(ctx, applicantID)
	if err != nil {
		return b, fmt.Errorf("sum reserved: %w", err)
	}

	return models.Balance{
		ApplicantID: applicantID,
		Earned:      earned,
		Reserved:    reserved,
		Available:   earned.Sub(reserved),
	}, nil
}
