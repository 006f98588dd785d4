package zoom

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenTTL          = time.Hour
	tokenRefreshSlack = time.Minute
)

// tokenSource mints short-lived JWT bearer tokens for the reporting API and
// refreshes them shortly before expiry.
type tokenSource struct {
	apiKey    string
	apiSecret string

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newTokenSource(apiKey, apiSecret string) *tokenSource {
	return &tokenSource{apiKey: apiKey, apiSecret: apiSecret}
}

// Token returns a valid bearer token, generating a fresh one when the
// current token is within the refresh slack of expiring.
func (t *tokenSource) Token() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if t.token != "" && now.Before(t.expiresAt.Add(-tokenRefreshSlack)) {
		return t.token, nil
	}

	expiresAt := now.Add(tokenTTL)
	claims := jwt.MapClaims{
		"iss": t.apiKey,
		"exp": expiresAt.Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(t.apiSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	t.token = signed
	t.expiresAt = expiresAt
	return t.token, nil
}
