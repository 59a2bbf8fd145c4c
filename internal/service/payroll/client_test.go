package payroll

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ndmitriev/payhub/internal/apperrors"
	"github.com/ndmitriev/payhub/internal/logger"
)

func TestClientTotalEarned(t *testing.T) {
	t.Parallel()

	applicantID := uuid.New()

	t.Run("returns the credited total", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/payroll/"+applicantID.String()+"/total", r.URL.Path)
			require.Equal(t, http.MethodGet, r.Method)

			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"applicant_id": %q, "total": 1234.50}`, applicantID)
		}))
		defer srv.Close()

		client := NewClient(srv.URL, logger.NewNoOpLogger())

		total, err := client.TotalEarned(t.Context(), applicantID)
		require.NoError(t, err, "fetching total should not fail")
		require.True(t, total.Equal(decimal.NewFromFloat(1234.50)), "got %s", total)
	})

	t.Run("unknown applicant", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		client := NewClient(srv.URL, logger.NewNoOpLogger())

		_, err := client.TotalEarned(t.Context(), applicantID)
		require.ErrorIs(t, err, apperrors.ErrApplicantNotFound)
	})

	t.Run("retries transient failures", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"applicant_id": %q, "total": 100}`, applicantID)
		}))
		defer srv.Close()

		client := NewClient(srv.URL, logger.NewNoOpLogger())

		total, err := client.TotalEarned(t.Context(), applicantID)
		require.NoError(t, err, "two failures then success should be retried through")
		require.True(t, total.Equal(decimal.NewFromInt(100)))
		require.Equal(t, int32(3), calls.Load())
	})

	t.Run("gives up after exhausting retries", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		client := NewClient(srv.URL, logger.NewNoOpLogger())

		_, err := client.TotalEarned(t.Context(), applicantID)
		require.Error(t, err)
		require.ErrorIs(t, err, apperrors.ErrTransient, "a persistent upstream failure classifies as transient")
	})
}
