// Package auth verifies actor tokens minted by the platform's auth
// subsystem. Session issuance lives there; this side only checks the
// signature and lifts the claims into an Actor.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ndmitriev/payhub/internal/models"
)

const defaultSigningMethod = "HS256"

var (
	ErrTokenInvalid = errors.New("token is invalid")
	ErrNoToken      = errors.New("no token in request")
)

type ActorClaims struct {
	jwt.RegisteredClaims
	ActorID uuid.UUID `json:"aid"`
	Role    string    `json:"role"`
}

type Config struct {
	// Secret key shared with the auth subsystem. Required.
	SecretKey string

	// JWT MAC algorithm. HS256 if not set.
	Alg string
}

type Verifier struct {
	key string
	alg jwt.SigningMethod
}

func New(cfg Config) (*Verifier, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}
	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}

	return &Verifier{
		key: cfg.SecretKey,
		alg: jwt.GetSigningMethod(cfg.Alg),
	}, nil
}

// Parse validates the token string and returns the actor it names.
func (v *Verifier) Parse(tokenString string) (models.Actor, error) {
	var claims ActorClaims

	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != v.alg.Alg() {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return []byte(v.key), nil
	})
	if err != nil || !token.Valid {
		return models.Actor{}, ErrTokenInvalid
	}
	if claims.ActorID == uuid.Nil || claims.Role == "" {
		return models.Actor{}, ErrTokenInvalid
	}

	return models.Actor{ID: claims.ActorID, Role: claims.Role}, nil
}

// FromRequest pulls the bearer token from the Authorization header and
// parses it. Falls back to the "token" query parameter for clients that
// cannot set headers, like browser WebSocket handshakes.
func (v *Verifier) FromRequest(r *http.Request) (models.Actor, error) {
	header := r.Header.Get("Authorization")
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenString == "" {
		tokenString = r.URL.Query().Get("token")
	}
	if tokenString == "" {
		return models.Actor{}, ErrNoToken
	}

	return v.Parse(tokenString)
}

// Sign mints a token for the actor. The real issuer is the auth subsystem;
// this mirror of its signing exists for tests and local runs.
func (v *Verifier) Sign(actor models.Actor, ttl time.Duration) (string, error) {
	now := time.Now().Truncate(time.Second)

	token := jwt.NewWithClaims(v.alg, ActorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		ActorID: actor.ID,
		Role:    actor.Role,
	})

	signed, err := token.SignedString([]byte(v.key))
	if err != nil {
		return "", fmt.Errorf("error while signing actor token. Err: %w", err)
	}

	return signed, nil
}
