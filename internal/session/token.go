// Package session issues and validates the HS256 tokens that bind a wallet
// address to an API session. The core workflow packages never read ambient
// session state; the HTTP layer validates a token per request and passes
// the acting account down explicitly.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"provenly.org/internal/wallet"
)

const (
	issuer            = "provenly"
	secretEnvVariable = "PROVENLY_SESSION_SECRET"
)

var (
	// ErrInvalidToken indicates the token failed validation.
	ErrInvalidToken = errors.New("session: invalid token")

	errMissingSecret = errors.New("session secret is not configured")

	secretMu sync.Mutex
	secret   cachedSecret
)

type cachedSecret struct {
	value []byte
	err   error
	ready bool
}

// Claims carries the wallet address a session acts as.
type Claims struct {
	Address string `json:"address"`
	jwt.RegisteredClaims
}

// Issue signs a token for the given wallet address.
func Issue(addr wallet.Account, ttl time.Duration) (string, error) {
	if addr.IsZero() {
		return "", errors.New("session: address is required")
	}
	if ttl <= 0 {
		return "", errors.New("session: ttl must be greater than zero")
	}
	secretBytes, err := loadSecret()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	claims := Claims{
		Address: addr.Normalize().String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   addr.Normalize().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secretBytes)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate verifies the token and returns the bound wallet address.
func Validate(token string) (wallet.Account, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidToken
	}
	secretBytes, err := loadSecret()
	if err != nil {
		return "", err
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return secretBytes, nil
	})
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.Issuer != issuer || claims.Address == "" {
		return "", ErrInvalidToken
	}
	return wallet.Account(claims.Address), nil
}

func loadSecret() ([]byte, error) {
	secretMu.Lock()
	defer secretMu.Unlock()
	if secret.ready {
		return secret.value, secret.err
	}
	raw := strings.TrimSpace(os.Getenv(secretEnvVariable))
	if raw == "" {
		secret = cachedSecret{err: errMissingSecret, ready: true}
	} else {
		secret = cachedSecret{value: []byte(raw), ready: true}
	}
	return secret.value, secret.err
}

// ResetSecretForTests clears the cached secret so tests can swap it.
func ResetSecretForTests() {
	secretMu.Lock()
	defer secretMu.Unlock()
	secret = cachedSecret{}
}

// Context plumbing ---------------------------------------------------------

type accountContextKey struct{}

// ContextWithAccount attaches the session's wallet address to the context.
func ContextWithAccount(ctx context.Context, addr wallet.Account) context.Context {
	return context.WithValue(ctx, accountContextKey{}, addr)
}

// AccountFromContext extracts the session's wallet address.
func AccountFromContext(ctx context.Context) (wallet.Account, bool) {
	if ctx == nil {
		return "", false
	}
	addr, ok := ctx.Value(accountContextKey{}).(wallet.Account)
	if !ok || addr.IsZero() {
		return "", false
	}
	return addr, true
}
