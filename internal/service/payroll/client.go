// Package payroll talks to the HR payroll subsystem that owns staff earnings.
// Staff balances come from there, not from our own earnings table.
package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/ndmitriev/payhub/internal/apperrors"
	"github.com/ndmitriev/payhub/internal/logger"
)

const (
	requestTimeout = 5 * time.Second
	retryAttempts  = 3
	retryBase      = 200 * time.Millisecond
)

type Client struct {
	PayrollAddr string

	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  logger.Logger
}

func NewClient(addr string, l logger.Logger) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "payroll-service",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		PayrollAddr: addr,
		client:      &http.Client{},
		breaker:     breaker,
		logger:      l,
	}
}

// TotalEarned returns the total credited payroll amount for a staff member.
// Retries transient failures with exponential backoff; the breaker cuts the
// service off after repeated failures so approvals fail fast instead of
// hanging on a dead dependency.
func (c *Client) TotalEarned(ctx context.Context, applicantID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal

	backoff := retry.WithMaxRetries(retryAttempts, retry.NewExponential(retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		result, err := c.breaker.Execute(func() (any, error) {
			return c.fetchTotal(ctx, applicantID)
		})
		if err != nil {
			if errors.Is(err, apperrors.ErrTransient) {
				return retry.RetryableError(err)
			}
			return err
		}

		total = result.(decimal.Decimal)
		return nil
	})
	if err != nil {
		return total, err
	}

	return total, nil
}

func (c *Client) fetchTotal(ctx context.Context, applicantID uuid.UUID) (decimal.Decimal, error) {
	var payload struct {
		ApplicantID uuid.UUID       `json:"applicant_id"`
		Total       decimal.Decimal `json:"total"`
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	url := c.PayrollAddr + "/api/payroll/" + applicantID.String() + "/total"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, apperrors.Transient(fmt.Errorf("payroll request: %w", err))
	}
	defer resp.Body.Close() // nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return decimal.Zero, fmt.Errorf("failed to decode response: %w", err)
		}
		return payload.Total, nil

	case http.StatusNotFound:
		return decimal.Zero, apperrors.ErrApplicantNotFound

	default:
		c.logger.Warn("Payroll service returned unexpected status", "status_code", resp.StatusCode, "applicant_id", applicantID)
		return decimal.Zero, apperrors.Transient(fmt.Errorf("payroll status %d", resp.StatusCode))
	}
}
