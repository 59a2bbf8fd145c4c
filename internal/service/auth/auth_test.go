package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ndmitriev/payhub/internal/models"
)

func TestVerifier(t *testing.T) {
	t.Parallel()

	verifier, err := New(Config{SecretKey: "test-secret"})
	require.NoError(t, err, "creating verifier should not fail")

	actor := models.Actor{ID: uuid.New(), Role: models.RoleAdmin}

	t.Run("requires secret key", func(t *testing.T) {
		_, err := New(Config{})
		require.Error(t, err, "empty secret must be refused")
	})

	t.Run("round trip", func(t *testing.T) {
		token, err := verifier.Sign(actor, time.Hour)
		require.NoError(t, err, "signing should not fail")

		parsed, err := verifier.Parse(token)
		require.NoError(t, err, "parsing own token should not fail")
		require.Equal(t, actor, parsed)
	})

	t.Run("rejects expired token", func(t *testing.T) {
		token, err := verifier.Sign(actor, -time.Minute)
		require.NoError(t, err)

		_, err = verifier.Parse(token)
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("rejects foreign signature", func(t *testing.T) {
		other, err := New(Config{SecretKey: "other-secret"})
		require.NoError(t, err)

		token, err := other.Sign(actor, time.Hour)
		require.NoError(t, err)

		_, err = verifier.Parse(token)
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := verifier.Parse("not-a-token")
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("rejects token without actor claims", func(t *testing.T) {
		token, err := verifier.Sign(models.Actor{}, time.Hour)
		require.NoError(t, err)

		_, err = verifier.Parse(token)
		require.ErrorIs(t, err, ErrTokenInvalid, "nil actor id or empty role must be refused")
	})

	t.Run("FromRequest", func(t *testing.T) {
		token, err := verifier.Sign(actor, time.Hour)
		require.NoError(t, err)

		t.Run("reads bearer header", func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/withdrawals", nil)
			r.Header.Set("Authorization", "Bearer "+token)

			parsed, err := verifier.FromRequest(r)
			require.NoError(t, err)
			require.Equal(t, actor, parsed)
		})

		t.Run("falls back to token query parameter", func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/ws?token="+token, nil)

			parsed, err := verifier.FromRequest(r)
			require.NoError(t, err)
			require.Equal(t, actor, parsed)
		})

		t.Run("no token", func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/withdrawals", nil)

			_, err := verifier.FromRequest(r)
			require.ErrorIs(t, err, ErrNoToken)
		})

		t.Run("wrong scheme", func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/withdrawals", nil)
			r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

			_, err := verifier.FromRequest(r)
			require.ErrorIs(t, err, ErrNoToken)
		})
	})
}
