package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	WithdrawalStatusPending  = "pending"
	WithdrawalStatusApproved = "approved"
	WithdrawalStatusPaid     = "paid"
	WithdrawalStatusRejected = "rejected"
)

// IsTerminalStatus reports whether no further transition is permitted.
func IsTerminalStatus(status string) bool {
	return status == WithdrawalStatusPaid || status == WithdrawalStatusRejected
}

type Withdrawal struct {
	ID            uuid.UUID
	ApplicantID   uuid.UUID
	ApplicantType string
	Amount        decimal.Decimal
	Status        string
	CreatedAt     time.Time
	ProcessedAt   *time.Time
	ProcessedBy   *uuid.UUID
	Notes         string
}

// ProcessRecord is one entry of the append-only audit trail: a withdrawal
// gets exactly one record per transition, including the creation as pending.
type ProcessRecord struct {
	ID           uuid.UUID
	WithdrawalID uuid.UUID
	Status       string
	ProcessedBy  uuid.UUID
	ProcessedAt  time.Time
	Notes        string
}

// StatusUpdate is the event pushed to subscribed clients after a committed
// transition. Delivery is best-effort; the poll path is the source of truth.
type StatusUpdate struct {
	WithdrawalID uuid.UUID       `json:"withdrawal_id"`
	ApplicantID  uuid.UUID       `json:"applicant_id"`
	Status       string          `json:"status"`
	Amount       decimal.Decimal `json:"amount"`
	ProcessedAt  time.Time       `json:"processed_at"`
}
