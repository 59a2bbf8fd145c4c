package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ndmitriev/payhub/internal/apperrors"
	"github.com/ndmitriev/payhub/internal/handlers/actorctx"
	"github.com/ndmitriev/payhub/internal/handlers/render"
	"github.com/ndmitriev/payhub/internal/logger"
	"github.com/ndmitriev/payhub/internal/models"
	"github.com/ndmitriev/payhub/internal/repository"
)

type withdrawalResponse struct {
	ID            uuid.UUID  `json:"id"`
	ApplicantID   uuid.UUID  `json:"applicant_id"`
	ApplicantType string     `json:"applicant_type"`
	Amount        float64    `json:"amount"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	ProcessedBy   *uuid.UUID `json:"processed_by,omitempty"`
	Notes         string     `json:"notes,omitempty"`
}

func newWithdrawalResponse(w models.Withdrawal) withdrawalResponse {
	amount, _ := w.Amount.Float64()
	return withdrawalResponse{
		ID:            w.ID,
		ApplicantID:   w.ApplicantID,
		ApplicantType: w.ApplicantType,
		Amount:        amount,
		Status:        w.Status,
		CreatedAt:     w.CreatedAt,
		ProcessedAt:   w.ProcessedAt,
		ProcessedBy:   w.ProcessedBy,
		Notes:         w.Notes,
	}
}

func newWithdrawalListResponse(ws []models.Withdrawal) []withdrawalResponse {
	list := make([]withdrawalResponse, 0, len(ws))
	for _, w := range ws {
		list = append(list, newWithdrawalResponse(w))
	}
	return list
}

func handleSubmitWithdrawal(ws withdrawalService, l logger.Logger) http.Handler {
	type request struct {
		Amount decimal.Decimal `json:"amount" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		withdrawal, err := ws.Submit(r.Context(), actor.ID, req.Amount)

		switch {
		case err == nil:
			render.JSONWithStatus(w, newWithdrawalResponse(withdrawal), http.StatusCreated)
		case errors.Is(err, apperrors.ErrAmountInvalid):
			render.ServiceError(w, "Amount must be positive", http.StatusUnprocessableEntity)
		case errors.Is(err, apperrors.ErrAmountBelowMinimum):
			render.ServiceError(w, "Amount is below the allowed minimum", http.StatusUnprocessableEntity)
		case errors.Is(err, apperrors.ErrBalanceInsufficient):
			render.ServiceError(w, "Insufficient balance", http.StatusPaymentRequired)
		case errors.Is(err, apperrors.ErrApplicantNotFound):
			render.ServiceError(w, "Applicant not found", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrTransient):
			render.ServiceError(w, "Balance source unavailable, try again later", http.StatusServiceUnavailable)
		default:
			l.Error("Failed to submit withdrawal", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleOwnWithdrawals(ws withdrawalService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		filter := repository.ListWithdrawalsFilter{
			ApplicantID: actor.ID,
			Statuses:    r.URL.Query()["status"],
		}

		withdrawals, err := ws.ListWithdrawals(r.Context(), filter)
		if err != nil {
			l.Error("Failed to list withdrawals", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, newWithdrawalListResponse(withdrawals))
	})
}

func handleOwnBalance(ws withdrawalService, l logger.Logger) http.Handler {
	type response struct {
		Earned    float64 `json:"earned"`
		Reserved  float64 `json:"reserved"`
		Available float64 `json:"available"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		balance, err := ws.Balance(r.Context(), actor.ID)

		switch {
		case err == nil:
			earned, _ := balance.Earned.Float64()
			reserved, _ := balance.Reserved.Float64()
			available, _ := balance.Available.Float64()
			render.JSON(w, response{earned, reserved, available})
		case errors.Is(err, apperrors.ErrApplicantNotFound):
			render.ServiceError(w, "Applicant not found", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrTransient):
			render.ServiceError(w, "Balance source unavailable, try again later", http.StatusServiceUnavailable)
		default:
			l.Error("Failed to get balance", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

// handleProcessRecords serves the audit trail of one withdrawal. Applicants
// see only their own requests; a foreign id renders as not found to avoid
// leaking its existence.
func handleProcessRecords(ws withdrawalService, l logger.Logger) http.Handler {
	type record struct {
		Status      string    `json:"status"`
		ProcessedBy uuid.UUID `json:"processed_by"`
		ProcessedAt time.Time `json:"processed_at"`
		Notes       string    `json:"notes,omitempty"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid withdrawal id", http.StatusBadRequest)
			return
		}

		withdrawal, err := ws.GetWithdrawal(r.Context(), id)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrWithdrawalNotFound):
			render.ServiceError(w, "Withdrawal not found", http.StatusNotFound)
			return
		default:
			l.Error("Failed to get withdrawal", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		if !actor.IsAdmin() && withdrawal.ApplicantID != actor.ID {
			render.ServiceError(w, "Withdrawal not found", http.StatusNotFound)
			return
		}

		records, err := ws.ProcessRecords(r.Context(), id)
		if err != nil {
			l.Error("Failed to list process records", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		response := make([]record, 0, len(records))
		for _, rec := range records {
			response = append(response, record{
				Status:      rec.Status,
				ProcessedBy: rec.ProcessedBy,
				ProcessedAt: rec.ProcessedAt,
				Notes:       rec.Notes,
			})
		}

		render.JSON(w, response)
	})
}
