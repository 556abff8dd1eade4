package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"runclub/pacemaker/internal/providers"

	"github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"

	gormModels "runclub/pacemaker/internal/models/gorm"
)

// AthleteCredentialStore persists refreshed token pairs
type AthleteCredentialStore interface {
	UpdateCredentials(ctx context.Context, athleteID, accessToken, refreshToken string, expiry time.Time) error
}

// TokenService guards upstream credentials: every worker asks it for a valid
// access token before calling out, and it refreshes proactively near expiry.
type TokenService struct {
	oauth  *oauth2.Config
	store  AthleteCredentialStore
	cache  *cache.Cache
	margin time.Duration
}

// NewTokenService creates a token guardian. tokenURL points at the upstream
// OAuth token-refresh endpoint.
func NewTokenService(clientID, clientSecret, tokenURL string, store AthleteCredentialStore) *TokenService {
	return &TokenService{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL: tokenURL,
			},
		},
		store:  store,
		cache:  cache.New(30*time.Minute, 10*time.Minute),
		margin: 5 * time.Minute,
	}
}

// EnsureValidToken returns an access token valid for at least the safety
// margin, refreshing and persisting a new pair when needed. A rejected
// refresh surfaces as AuthError, which callers must treat as non-retryable.
func (s *TokenService) EnsureValidToken(ctx context.Context, athlete *gormModels.Athlete) (string, error) {
	if tok, found := s.cache.Get(athlete.ID); found {
		return tok.(string), nil
	}

	now := time.Now()
	if athlete.AccessToken != "" && athlete.TokenExpiry.After(now.Add(s.margin)) {
		s.cacheToken(athlete.ID, athlete.AccessToken, athlete.TokenExpiry)
		return athlete.AccessToken, nil
	}

	if athlete.RefreshToken == "" {
		return "", &providers.AuthError{Message: "athlete has no refresh credential"}
	}

	src := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: athlete.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil && retrieveErr.Response.StatusCode < 500 {
			return "", &providers.AuthError{Message: fmt.Sprintf("refresh rejected: %v", err)}
		}
		return "", &providers.TransientAPIError{Message: fmt.Sprintf("token refresh failed: %v", err)}
	}

	refresh := tok.RefreshToken
	if refresh == "" {
		// Upstreams that rotate refresh tokens return a new one; others keep
		// the old one valid.
		refresh = athlete.RefreshToken
	}

	if err := s.store.UpdateCredentials(ctx, athlete.ID, tok.AccessToken, refresh, tok.Expiry); err != nil {
		return "", fmt.Errorf("persisting refreshed credentials: %w", err)
	}

	athlete.AccessToken = tok.AccessToken
	athlete.RefreshToken = refresh
	athlete.TokenExpiry = tok.Expiry

	s.cacheToken(athlete.ID, tok.AccessToken, tok.Expiry)
	return tok.AccessToken, nil
}

// cacheToken stores a token for reuse until the safety margin before its
// expiry. Tokens already inside the margin are not cached at all: go-cache
// treats a non-positive TTL as "never expires", which would pin a dying
// token for every later call.
func (s *TokenService) cacheToken(athleteID, accessToken string, expiry time.Time) {
	ttl := time.Until(expiry.Add(-s.margin))
	if ttl <= 0 {
		return
	}
	s.cache.Set(athleteID, accessToken, ttl)
}

// Invalidate drops a cached token, forcing the next call to re-check expiry
func (s *TokenService) Invalidate(athleteID string) {
	s.cache.Delete(athleteID)
}
