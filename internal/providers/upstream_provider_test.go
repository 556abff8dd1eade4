package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestUpstreamProvider_ListActivitiesPassesCursor(t *testing.T) {
	var gotBefore, gotAfter, gotPerPage string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/athlete/activities" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer token-1" {
			t.Errorf("auth header = %q", auth)
		}
		gotBefore = r.URL.Query().Get("before")
		gotAfter = r.URL.Query().Get("after")
		gotPerPage = r.URL.Query().Get("per_page")

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{"id": 11, "name": "Tempo", "sport_type": "Run", "start_date": "2025-06-01T07:00:00Z", "distance": 8000, "moving_time": 2400, "elapsed_time": 2500},
			{"id": 12, "name": "Long Run", "sport_type": "Run", "start_date": "2025-05-30T07:00:00Z", "distance": 21000, "moving_time": 6800, "elapsed_time": 7000}
		]`)
	}))
	defer server.Close()

	p := NewUpstreamProvider(server.URL)

	before := time.Unix(1750000000, 0)
	after := time.Unix(1740000000, 0)
	page, err := p.ListActivities(context.Background(), "token-1", &before, &after, 200)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}

	if gotBefore != "1750000000" || gotAfter != "1740000000" || gotPerPage != "200" {
		t.Errorf("query = before=%s after=%s per_page=%s", gotBefore, gotAfter, gotPerPage)
	}
	if len(page) != 2 {
		t.Fatalf("page = %d rows, want 2", len(page))
	}
	if page[0].ID != 11 || page[0].SportType != "Run" || page[0].Distance != 8000 {
		t.Errorf("unexpected first row: %+v", page[0])
	}
}

func TestUpstreamProvider_StatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"rate limited", http.StatusTooManyRequests, IsTransient},
		{"server error", http.StatusBadGateway, IsTransient},
		{"unauthorized", http.StatusUnauthorized, IsAuth},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			p := NewUpstreamProvider(server.URL)
			_, err := p.ListActivities(context.Background(), "token-1", nil, nil, 200)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !tc.check(err) {
				t.Errorf("error %v not classified as expected", err)
			}
		})
	}
}

func TestUpstreamProvider_GetActivityPartialData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/activities/404":
			w.WriteHeader(http.StatusNotFound)
		case "/activities/403":
			w.WriteHeader(http.StatusForbidden)
		case "/activities/500":
			w.WriteHeader(http.StatusInternalServerError)
		case "/activities/7":
			fmt.Fprint(w, `{not json`)
		}
	}))
	defer server.Close()

	p := NewUpstreamProvider(server.URL)
	ctx := context.Background()

	for _, id := range []int64{404, 403, 7} {
		_, err := p.GetActivity(ctx, "token-1", id)
		var partial *PartialDataError
		if !errors.As(err, &partial) {
			t.Errorf("activity %d: error %v, want PartialDataError", id, err)
			continue
		}
		if partial.ActivityID != id {
			t.Errorf("activity %d: error carries id %d", id, partial.ActivityID)
		}
	}

	// Server-side trouble is a batch problem, not a per-activity one.
	_, err := p.GetActivity(ctx, "token-1", 500)
	if !IsTransient(err) {
		t.Errorf("500 detail error %v, want transient", err)
	}
}

func TestUpstreamProvider_GetActivityKeepsRawPayload(t *testing.T) {
	const body = `{"id": 42, "name": "Trail Loop", "sport_type": "TrailRun", "start_date": "2025-06-01T07:00:00Z", "distance": 12000, "moving_time": 4100, "elapsed_time": 4400, "calories": 812, "average_heartrate": 148.2, "map": {"polyline": "", "summary_polyline": "xyz"}}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer server.Close()

	p := NewUpstreamProvider(server.URL)
	detail, err := p.GetActivity(context.Background(), "token-1", 42)
	if err != nil {
		t.Fatalf("fetching detail: %v", err)
	}

	if detail.ID != 42 || detail.Calories != 812 || detail.AvgHeartRate != 148.2 {
		t.Errorf("unexpected detail: %+v", detail)
	}
	if detail.Map.SummaryPolyline != "xyz" {
		t.Errorf("summary polyline = %q", detail.Map.SummaryPolyline)
	}
	if string(detail.Raw) != body {
		t.Error("raw payload should be the verbatim response body")
	}
}
