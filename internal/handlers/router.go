package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ndmitriev/payhub/internal/broadcast"
	"github.com/ndmitriev/payhub/internal/handlers/middleware"
	"github.com/ndmitriev/payhub/internal/logger"
	"github.com/ndmitriev/payhub/internal/metrics"
	"github.com/ndmitriev/payhub/internal/models"
	"github.com/ndmitriev/payhub/internal/repository"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authService authService,
	withdrawalService withdrawalService,
	stream statusStream,
	logger logger.Logger,
) http.Handler {
	authMiddleware := middleware.AuthMiddleware(authService)
	withAuth := func(h http.Handler) http.Handler {
		return authMiddleware(h)
	}

	api := http.NewServeMux()

	api.Handle("POST /withdrawals", withAuth(handleSubmitWithdrawal(withdrawalService, logger)))
	api.Handle("GET /withdrawals", withAuth(handleOwnWithdrawals(withdrawalService, logger)))
	api.Handle("GET /withdrawals/{id}/history", withAuth(handleProcessRecords(withdrawalService, logger)))
	api.Handle("GET /balance", withAuth(handleOwnBalance(withdrawalService, logger)))
	api.Handle("GET /ws", withAuth(handleStatusStream(stream, logger)))

	admin := http.NewServeMux()

	admin.Handle("GET /withdrawals", handleAdminListWithdrawals(withdrawalService, logger))
	admin.Handle("GET /withdrawals/{id}/history", handleProcessRecords(withdrawalService, logger))
	admin.Handle("POST /withdrawals/{id}/approve", handleTransition(withdrawalService.Approve, logger))
	admin.Handle("POST /withdrawals/{id}/reject", handleTransition(withdrawalService.Reject, logger))
	admin.Handle("POST /withdrawals/{id}/pay", handleTransition(withdrawalService.Pay, logger))
	admin.Handle("POST /withdrawals/{id}/approve-and-pay", handleTransition(withdrawalService.ApproveAndPay, logger))

	root := http.NewServeMux()
	root.Handle("/api/admin/", http.StripPrefix("/api/admin", chain(admin,
		authMiddleware,
		middleware.AdminOnly,
	)))
	root.Handle("/api/", http.StripPrefix("/api", api))
	root.Handle("GET /metrics", metrics.Handler())

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type authService interface {
	// Verify the request credentials and return the actor behind them
	FromRequest(r *http.Request) (models.Actor, error)
}

type withdrawalService interface {
	// Create a pending request for the applicant.
	// Has to return apperrors.ErrBalanceInsufficient when the amount exceeds
	// the available projection.
	Submit(ctx context.Context, applicantID uuid.UUID, amount decimal.Decimal) (models.Withdrawal, error)

	// Transitions. Each has to return apperrors.ErrAlreadyProcessed when the
	// request is not in the expected status anymore.
	Approve(ctx context.Context, id uuid.UUID, actorID uuid.UUID, notes string) (models.Withdrawal, error)
	Reject(ctx context.Context, id uuid.UUID, actorID uuid.UUID, notes string) (models.Withdrawal, error)
	Pay(ctx context.Context, id uuid.UUID, actorID uuid.UUID, notes string) (models.Withdrawal, error)
	ApproveAndPay(ctx context.Context, id uuid.UUID, actorID uuid.UUID, notes string) (models.Withdrawal, error)

	GetWithdrawal(ctx context.Context, id uuid.UUID) (models.Withdrawal, error)
	ListWithdrawals(ctx context.Context, filter repository.ListWithdrawalsFilter) ([]models.Withdrawal, error)
	ProcessRecords(ctx context.Context, id uuid.UUID) ([]models.ProcessRecord, error)
	Balance(ctx context.Context, applicantID uuid.UUID) (models.Balance, error)
}

type statusStream interface {
	Subscribe(applicantID uuid.UUID) *broadcast.Subscription
}
