package common

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"runclub/pacemaker/internal/providers"

	gormModels "runclub/pacemaker/internal/models/gorm"
)

type mockCredentialStore struct {
	athleteID    string
	accessToken  string
	refreshToken string
	expiry       time.Time
	calls        int
}

func (m *mockCredentialStore) UpdateCredentials(ctx context.Context, athleteID, accessToken, refreshToken string, expiry time.Time) error {
	m.athleteID = athleteID
	m.accessToken = accessToken
	m.refreshToken = refreshToken
	m.expiry = expiry
	m.calls++
	return nil
}

func TestTokenService_FreshTokenSkipsRefresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("token endpoint should not be called for a fresh token")
	}))
	defer server.Close()

	store := &mockCredentialStore{}
	svc := NewTokenService("client", "secret", server.URL, store)

	athlete := &gormModels.Athlete{
		ID:           "athlete-1",
		AccessToken:  "still-good",
		RefreshToken: "refresh-1",
		TokenExpiry:  time.Now().Add(time.Hour),
	}

	token, err := svc.EnsureValidToken(context.Background(), athlete)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if token != "still-good" {
		t.Errorf("token = %q, want the stored one", token)
	}
	if store.calls != 0 {
		t.Errorf("store updated %d times, want 0", store.calls)
	}

	// Second call must come from the cache.
	token, err = svc.EnsureValidToken(context.Background(), athlete)
	if err != nil || token != "still-good" {
		t.Errorf("cached lookup = %q, %v", token, err)
	}
}

func TestTokenService_RefreshPersistsNewPair(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parsing form: %v", err)
		}
		if got := r.Form.Get("refresh_token"); got != "refresh-old" {
			t.Errorf("refresh_token = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token": "access-new", "refresh_token": "refresh-new", "token_type": "Bearer", "expires_in": 21600}`)
	}))
	defer server.Close()

	store := &mockCredentialStore{}
	svc := NewTokenService("client", "secret", server.URL, store)

	athlete := &gormModels.Athlete{
		ID:           "athlete-1",
		AccessToken:  "access-old",
		RefreshToken: "refresh-old",
		TokenExpiry:  time.Now().Add(-time.Minute),
	}

	token, err := svc.EnsureValidToken(context.Background(), athlete)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if token != "access-new" {
		t.Errorf("token = %q, want access-new", token)
	}
	if store.calls != 1 || store.accessToken != "access-new" || store.refreshToken != "refresh-new" {
		t.Errorf("persisted pair = %+v", store)
	}
	if athlete.AccessToken != "access-new" || athlete.RefreshToken != "refresh-new" {
		t.Error("athlete struct should carry the refreshed pair")
	}
}

func TestTokenService_ShortLivedTokenIsNeverCached(t *testing.T) {
	refreshes := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshes++
		w.Header().Set("Content-Type", "application/json")
		// Expiry inside the safety margin. Caching this with its negative
		// effective TTL would make go-cache keep it forever.
		fmt.Fprintf(w, `{"access_token": "short-%d", "token_type": "Bearer", "expires_in": 1}`, refreshes)
	}))
	defer server.Close()

	store := &mockCredentialStore{}
	svc := NewTokenService("client", "secret", server.URL, store)

	athlete := &gormModels.Athlete{
		ID:           "athlete-1",
		AccessToken:  "access-old",
		RefreshToken: "refresh-old",
		TokenExpiry:  time.Now().Add(-time.Minute),
	}

	token, err := svc.EnsureValidToken(context.Background(), athlete)
	if err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if token != "short-1" {
		t.Errorf("token = %q, want short-1", token)
	}

	token, err = svc.EnsureValidToken(context.Background(), athlete)
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if token != "short-2" {
		t.Errorf("token = %q, want a fresh short-2, not a cached dead token", token)
	}
	if refreshes != 2 {
		t.Errorf("refreshes = %d, want 2", refreshes)
	}
}

func TestTokenService_RejectedRefreshIsAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": "invalid_grant"}`)
	}))
	defer server.Close()

	store := &mockCredentialStore{}
	svc := NewTokenService("client", "secret", server.URL, store)

	athlete := &gormModels.Athlete{
		ID:           "athlete-1",
		RefreshToken: "revoked",
		TokenExpiry:  time.Now().Add(-time.Minute),
	}

	_, err := svc.EnsureValidToken(context.Background(), athlete)
	if !providers.IsAuth(err) {
		t.Errorf("error %v, want auth classification", err)
	}
	if store.calls != 0 {
		t.Error("a rejected refresh must not persist anything")
	}
}

func TestTokenService_MissingRefreshCredential(t *testing.T) {
	svc := NewTokenService("client", "secret", "http://unused", &mockCredentialStore{})

	athlete := &gormModels.Athlete{
		ID:          "athlete-1",
		TokenExpiry: time.Now().Add(-time.Minute),
	}

	_, err := svc.EnsureValidToken(context.Background(), athlete)
	if !providers.IsAuth(err) {
		t.Errorf("error %v, want auth classification", err)
	}
}
