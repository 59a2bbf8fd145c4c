package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ndmitriev/payhub/internal/apperrors"
	"github.com/ndmitriev/payhub/internal/handlers/actorctx"
	"github.com/ndmitriev/payhub/internal/handlers/render"
	"github.com/ndmitriev/payhub/internal/logger"
	"github.com/ndmitriev/payhub/internal/models"
	"github.com/ndmitriev/payhub/internal/repository"
)

func handleAdminListWithdrawals(ws withdrawalService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseListFilter(r)
		if err != nil {
			render.ServiceError(w, err.Error(), http.StatusBadRequest)
			return
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

func parseListFilter(r *http.Request) (repository.ListWithdrawalsFilter, error) {
	var filter repository.ListWithdrawalsFilter
	query := r.URL.Query()

	filter.Statuses = query["status"]
	filter.ApplicantTypes = query["type"]

	if raw := query.Get("applicant_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, errors.New("invalid applicant_id")
		}
		filter.ApplicantID = id
	}

	if raw := query.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("invalid 'from' timestamp, expected RFC3339")
		}
		filter.CreatedFrom = from
	}

	if raw := query.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("invalid 'to' timestamp, expected RFC3339")
		}
		filter.CreatedTo = to
	}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, errors.New("invalid limit")
		}
		filter.Limit = limit
	}

	return filter, nil
}

// handleTransition covers the admin actions that move a request along the
// state machine: approve, reject, pay and the collapsed approve-and-pay.
func handleTransition(action func(ctx context.Context, id uuid.UUID, actorID uuid.UUID, notes string) (models.Withdrawal, error), l logger.Logger) http.Handler {
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

		withdrawal, err := action(r.Context(), id, actor.ID, optionalNotes(r))

		switch {
		case err == nil:
			render.JSON(w, newWithdrawalResponse(withdrawal))
		case errors.Is(err, apperrors.ErrWithdrawalNotFound):
			render.ServiceError(w, "Withdrawal not found", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrAlreadyProcessed):
			render.ServiceError(w, "Withdrawal already processed", http.StatusConflict)
		case errors.Is(err, apperrors.ErrBalanceInsufficient):
			render.ServiceError(w, "Insufficient balance", http.StatusPaymentRequired)
		case errors.Is(err, apperrors.ErrNotesRequired):
			render.ServiceError(w, "Notes are required for rejection", http.StatusUnprocessableEntity)
		case errors.Is(err, apperrors.ErrTransient):
			render.ServiceError(w, "Balance source unavailable, try again later", http.StatusServiceUnavailable)
		default:
			l.Error("Failed to process withdrawal", "withdrawal_id", id, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

// optionalNotes reads notes from the body if one was sent. An empty or absent
// body is fine here; actions that demand notes enforce that themselves.
func optionalNotes(r *http.Request) string {
	var body struct {
		Notes string `json:"notes"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	return body.Notes
}
