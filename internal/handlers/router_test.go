package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ndmitriev/payhub/internal/broadcast"
	"github.com/ndmitriev/payhub/internal/logger"
	"github.com/ndmitriev/payhub/internal/models"
	"github.com/ndmitriev/payhub/internal/repository"
	"github.com/ndmitriev/payhub/internal/repository/memory"
	"github.com/ndmitriev/payhub/internal/service/auth"
	"github.com/ndmitriev/payhub/internal/service/balance"
	"github.com/ndmitriev/payhub/internal/service/dispatcher"
	"github.com/ndmitriev/payhub/internal/service/ledger"
)

type routerFixture struct {
	srv        *httptest.Server
	storage    *memory.Storage
	dispatcher *dispatcher.Dispatcher

	adminToken     string
	applicantToken string
	applicant      models.Applicant
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	storage := memory.NewStorage()
	noop := logger.NewNoOpLogger()

	broadcaster := broadcast.New(noop)
	ledgerService := ledger.New(storage, broadcaster)
	balances := balance.NewService(storage.Withdrawals())
	provider := balance.NewEarningsSource(storage.Earnings())

	// Staff population is irrelevant here: the provider source serves both
	d := dispatcher.New(dispatcher.Config{}, storage, ledgerService, balances, provider, provider)

	verifier, err := auth.New(auth.Config{SecretKey: "router-test-secret"})
	require.NoError(t, err)

	applicant, err := storage.Applicants().Create(t.Context(), repository.CreateApplicantParams{
		Type:        models.ApplicantTypeProvider,
		DisplayName: "provider-one",
	})
	require.NoError(t, err)
	require.NoError(t, storage.Earnings().Add(t.Context(), repository.AddEarningParams{
		ApplicantID: applicant.ID,
		Amount:      decimal.NewFromInt(500),
	}))

	adminToken, err := verifier.Sign(models.Actor{ID: applicant.ID, Role: models.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	applicantToken, err := verifier.Sign(models.Actor{ID: applicant.ID, Role: models.RoleApplicant}, time.Hour)
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(verifier, d, broadcaster, noop))
	t.Cleanup(srv.Close)

	return &routerFixture{
		srv:            srv,
		storage:        storage,
		dispatcher:     d,
		adminToken:     adminToken,
		applicantToken: applicantToken,
		applicant:      applicant,
	}
}

func (f *routerFixture) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, f.srv.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err, "request should reach the test server")
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	defer resp.Body.Close() // nolint:errcheck

	return resp, payload
}

func TestRouter(t *testing.T) {
	t.Parallel()

	t.Run("rejects missing token", func(t *testing.T) {
		f := newRouterFixture(t)

		resp, _ := f.do(t, "GET", "/api/withdrawals", "", nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("submit and read back", func(t *testing.T) {
		f := newRouterFixture(t)

		resp, body := f.do(t, "POST", "/api/withdrawals", f.applicantToken,
			map[string]any{"amount": 100})
		require.Equalf(t, http.StatusCreated, resp.StatusCode, "resp: %s", body)

		var created withdrawalResponse
		require.NoError(t, json.Unmarshal(body, &created))
		require.Equal(t, models.WithdrawalStatusPending, created.Status)
		require.Equal(t, f.applicant.ID, created.ApplicantID)
		require.InDelta(t, 100.0, created.Amount, 0.001)

		resp, body = f.do(t, "GET", "/api/withdrawals", f.applicantToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var list []withdrawalResponse
		require.NoError(t, json.Unmarshal(body, &list))
		require.Len(t, list, 1)
		require.Equal(t, created.ID, list[0].ID)
	})

	t.Run("submit over balance", func(t *testing.T) {
		f := newRouterFixture(t)

		resp, _ := f.do(t, "POST", "/api/withdrawals", f.applicantToken,
			map[string]any{"amount": 501})
		require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	})

	t.Run("submit garbage", func(t *testing.T) {
		f := newRouterFixture(t)

		req, err := http.NewRequest("POST", f.srv.URL+"/api/withdrawals", strings.NewReader("{not json"))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+f.applicantToken)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close() // nolint:errcheck
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("balance endpoint", func(t *testing.T) {
		f := newRouterFixture(t)

		resp, body := f.do(t, "GET", "/api/balance", f.applicantToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.JSONEq(t, `{"earned": 500, "reserved": 0, "available": 500}`, string(body))
	})

	t.Run("admin routes forbidden for applicants", func(t *testing.T) {
		f := newRouterFixture(t)

		resp, _ := f.do(t, "GET", "/api/admin/withdrawals", f.applicantToken, nil)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("admin lifecycle", func(t *testing.T) {
		f := newRouterFixture(t)

		_, body := f.do(t, "POST", "/api/withdrawals", f.applicantToken, map[string]any{"amount": 100})
		var created withdrawalResponse
		require.NoError(t, json.Unmarshal(body, &created))

		t.Run("list pending", func(t *testing.T) {
			resp, body := f.do(t, "GET", "/api/admin/withdrawals?status=pending", f.adminToken, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var list []withdrawalResponse
			require.NoError(t, json.Unmarshal(body, &list))
			require.Len(t, list, 1)
		})

		t.Run("reject needs notes", func(t *testing.T) {
			resp, _ := f.do(t, "POST", fmt.Sprintf("/api/admin/withdrawals/%s/reject", created.ID), f.adminToken, nil)
			require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		})

		t.Run("approve", func(t *testing.T) {
			resp, body := f.do(t, "POST", fmt.Sprintf("/api/admin/withdrawals/%s/approve", created.ID), f.adminToken,
				map[string]any{"notes": "ok"})
			require.Equalf(t, http.StatusOK, resp.StatusCode, "resp: %s", body)

			var approved withdrawalResponse
			require.NoError(t, json.Unmarshal(body, &approved))
			require.Equal(t, models.WithdrawalStatusApproved, approved.Status)
			require.NotNil(t, approved.ProcessedAt)
		})

		t.Run("approve again conflicts", func(t *testing.T) {
			resp, _ := f.do(t, "POST", fmt.Sprintf("/api/admin/withdrawals/%s/approve", created.ID), f.adminToken, nil)
			require.Equal(t, http.StatusConflict, resp.StatusCode)
		})

		t.Run("pay", func(t *testing.T) {
			resp, body := f.do(t, "POST", fmt.Sprintf("/api/admin/withdrawals/%s/pay", created.ID), f.adminToken, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var paid withdrawalResponse
			require.NoError(t, json.Unmarshal(body, &paid))
			require.Equal(t, models.WithdrawalStatusPaid, paid.Status)
		})

		t.Run("history holds the whole trail", func(t *testing.T) {
			resp, body := f.do(t, "GET", fmt.Sprintf("/api/admin/withdrawals/%s/history", created.ID), f.adminToken, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var records []map[string]any
			require.NoError(t, json.Unmarshal(body, &records))
			require.Len(t, records, 3)
			require.Equal(t, models.WithdrawalStatusPaid, records[0]["status"])
			require.Equal(t, models.WithdrawalStatusPending, records[2]["status"])
		})

		t.Run("unknown id", func(t *testing.T) {
			resp, _ := f.do(t, "POST", "/api/admin/withdrawals/8a5075cb-1a07-4fd8-b347-d8d531f592e8/approve", f.adminToken, nil)
			require.Equal(t, http.StatusNotFound, resp.StatusCode)
		})

		t.Run("bad id", func(t *testing.T) {
			resp, _ := f.do(t, "POST", "/api/admin/withdrawals/not-an-id/approve", f.adminToken, nil)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	})

	t.Run("history hides foreign withdrawals", func(t *testing.T) {
		f := newRouterFixture(t)

		other, err := f.storage.Applicants().Create(t.Context(), repository.CreateApplicantParams{
			Type:        models.ApplicantTypeProvider,
			DisplayName: "provider-two",
		})
		require.NoError(t, err)
		require.NoError(t, f.storage.Earnings().Add(t.Context(), repository.AddEarningParams{
			ApplicantID: other.ID,
			Amount:      decimal.NewFromInt(100),
		}))

		foreign, err := f.dispatcher.Submit(t.Context(), other.ID, decimal.NewFromInt(50))
		require.NoError(t, err)

		resp, _ := f.do(t, "GET", fmt.Sprintf("/api/withdrawals/%s/history", foreign.ID), f.applicantToken, nil)
		require.Equal(t, http.StatusNotFound, resp.StatusCode, "foreign trail must look like a missing one")
	})

	t.Run("status stream", func(t *testing.T) {
		f := newRouterFixture(t)

		w, err := f.dispatcher.Submit(t.Context(), f.applicant.ID, decimal.NewFromInt(100))
		require.NoError(t, err)

		wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/ws?token=" + f.applicantToken
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err, "websocket handshake should pass")
		defer resp.Body.Close() // nolint:errcheck
		defer conn.Close()

		// Give the handler a moment to subscribe after the handshake
		time.Sleep(100 * time.Millisecond)

		_, err = f.dispatcher.Approve(t.Context(), w.ID, f.applicant.ID, "")
		require.NoError(t, err)

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var update models.StatusUpdate
		require.NoError(t, conn.ReadJSON(&update), "approval should be pushed to the stream")
		require.Equal(t, w.ID, update.WithdrawalID)
		require.Equal(t, models.WithdrawalStatusApproved, update.Status)
	})
}
