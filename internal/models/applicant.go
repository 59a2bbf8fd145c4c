package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	ApplicantTypeProvider = "provider"
	ApplicantTypeStaff    = "staff"
)

// Applicant is a party that may request withdrawals: an independent service
// provider or an employed support-staff member. Identity itself is issued by
// the auth subsystem; this record only carries what payout routing needs.
type Applicant struct {
	ID          uuid.UUID
	Type        string
	DisplayName string
	CreatedAt   time.Time
}

// Balance is the derived projection of an applicant's withdrawable funds.
// Never stored: Available = earned - reserved, where reserved counts both
// approved and paid withdrawals.
type Balance struct {
	ApplicantID uuid.UUID
	Earned      decimal.Decimal
	Reserved    decimal.Decimal
	Available   decimal.Decimal
}
