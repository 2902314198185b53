package refresher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chatforge/bridge-api/internal/db"
	"github.com/chatforge/bridge-api/internal/store"
)

func TestDaysUntilExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		ts   time.Time
		want int
	}{
		{"sixty days out", now.Add(60 * 24 * time.Hour), 60},
		{"six days out", now.Add(6 * 24 * time.Hour), 6},
		{"half a day out rounds down", now.Add(12 * time.Hour), 0},
		{"exactly now", now, 0},
		{"half a day past floors to -1", now.Add(-12 * time.Hour), -1},
		{"two days past", now.Add(-48 * time.Hour), -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysUntilExpiry(tt.ts, now); got != tt.want {
				t.Errorf("DaysUntilExpiry() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestExpiryBand(t *testing.T) {
	tests := []struct {
		days int
		want Band
	}{
		{-3, BandExpired},
		{0, BandExpired},
		{1, BandRed},
		{5, BandRed},
		{6, BandYellow},
		{14, BandYellow},
		{15, BandGreen},
		{60, BandGreen},
	}
	for _, tt := range tests {
		if got := ExpiryBand(tt.days); got != tt.want {
			t.Errorf("ExpiryBand(%d) = %s, want %s", tt.days, got, tt.want)
		}
	}
}

func TestRedactQuery(t *testing.T) {
	raw := "https://graph.example.com/v18.0/oauth/access_token?client_id=1&client_secret=sek&fb_exchange_token=tok"
	got := redactQuery(raw, "client_secret", "fb_exchange_token")
	if strings.Contains(got, "sek") || strings.Contains(got, "tok") {
		t.Errorf("redactQuery kept a secret: %s", got)
	}
	if !strings.Contains(got, "client_id=1") {
		t.Errorf("redactQuery dropped unrelated params: %s", got)
	}
}

// Test database URL from environment or skip if not set
func getTestStore(t *testing.T) *store.Store {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration tests")
	}

	pool, err := db.Open(context.Background(), dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := db.Migrate(context.Background(), pool); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	if _, err := pool.Exec(context.Background(), "TRUNCATE tenants CASCADE"); err != nil {
		t.Fatalf("Failed to clean tables: %v", err)
	}
	return store.New(pool)
}

func seedConnection(t *testing.T, st *store.Store, token string, expiry time.Time) uuid.UUID {
	t.Helper()
	var tenantID uuid.UUID
	err := st.DB.QueryRow(context.Background(),
		"INSERT INTO tenants (email) VALUES ($1) RETURNING id",
		uuid.NewString()+"@example.com").Scan(&tenantID)
	if err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	var id uuid.UUID
	err = st.DB.QueryRow(context.Background(), `
		INSERT INTO social_connections (tenant_id, page_id, access_token, token_expiry)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, tenantID, "page-"+uuid.NewString()[:8], token, expiry).Scan(&id)
	if err != nil {
		t.Fatalf("seed connection: %v", err)
	}
	return id
}

func loadConnection(t *testing.T, st *store.Store, id uuid.UUID) (string, time.Time, *time.Time) {
	t.Helper()
	var token string
	var expiry time.Time
	var refreshedAt *time.Time
	err := st.DB.QueryRow(context.Background(),
		"SELECT access_token, token_expiry, refreshed_at FROM social_connections WHERE id = $1", id).
		Scan(&token, &expiry, &refreshedAt)
	if err != nil {
		t.Fatalf("load connection: %v", err)
	}
	return token, expiry, refreshedAt
}

func TestRunOnceRefreshesOnlyWithinThreshold_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	st := getTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	dueID := seedConnection(t, st, "old-token", now.Add(6*24*time.Hour))
	farID := seedConnection(t, st, "far-token", now.Add(30*24*time.Hour))

	var exchanged []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("grant_type") != "fb_exchange_token" {
			t.Errorf("grant_type = %q", q.Get("grant_type"))
		}
		if q.Get("client_id") != "app-1" || q.Get("client_secret") != "app-secret" {
			t.Errorf("client credentials = %q/%q", q.Get("client_id"), q.Get("client_secret"))
		}
		exchanged = append(exchanged, q.Get("fb_exchange_token"))
		w.Write([]byte(`{"access_token":"fresh-token","token_type":"bearer","expires_in":5184000}`))
	}))
	defer srv.Close()

	r := New(st, nil, Config{GraphURL: srv.URL, AppID: "app-1", AppSecret: "app-secret"})
	results, err := r.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("results = %d, want 1 (only the connection inside the threshold)", len(results))
	}
	if results[0].ConnectionID != dueID || results[0].Status != "ok" {
		t.Errorf("result = %+v", results[0])
	}
	if results[0].Band != BandGreen {
		t.Errorf("band = %s, want green after a 60 day extension", results[0].Band)
	}
	if len(exchanged) != 1 || exchanged[0] != "old-token" {
		t.Errorf("exchanged tokens = %v, want the due connection's current token", exchanged)
	}

	token, expiry, refreshedAt := loadConnection(t, st, dueID)
	if token != "fresh-token" {
		t.Errorf("token = %q, want fresh-token", token)
	}
	days := DaysUntilExpiry(expiry, now)
	if days < 59 || days > 60 {
		t.Errorf("new expiry %v is %d days out, want ~60", expiry, days)
	}
	if refreshedAt == nil {
		t.Error("refreshed_at not stamped")
	}

	farToken, farExpiry, farRefreshed := loadConnection(t, st, farID)
	if farToken != "far-token" || farRefreshed != nil {
		t.Errorf("far connection mutated: token=%q refreshed_at=%v", farToken, farRefreshed)
	}
	if d := DaysUntilExpiry(farExpiry, now); d != 29 && d != 30 {
		t.Errorf("far expiry moved: %d days", d)
	}
}

func TestRunOnceReportsExchangeFailure_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	st := getTestStore(t)
	now := time.Now().UTC()
	id := seedConnection(t, st, "old-token", now.Add(2*24*time.Hour))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"token invalid"}}`))
	}))
	defer srv.Close()

	r := New(st, nil, Config{GraphURL: srv.URL, AppID: "a", AppSecret: "s"})
	results, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if len(results) != 1 || results[0].Status != "error" {
		t.Fatalf("results = %+v, want one error result", results)
	}
	if results[0].Band != BandRed {
		t.Errorf("band = %s, want red at 2 days out", results[0].Band)
	}

	token, _, refreshedAt := loadConnection(t, st, id)
	if token != "old-token" || refreshedAt != nil {
		t.Errorf("failed refresh mutated the row: token=%q refreshed_at=%v", token, refreshedAt)
	}
}

func TestRefreshOneIgnoresThreshold_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	st := getTestStore(t)
	now := time.Now().UTC()
	id := seedConnection(t, st, "old-token", now.Add(30*24*time.Hour))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"fresh-token","expires_in":5184000}`))
	}))
	defer srv.Close()

	r := New(st, nil, Config{GraphURL: srv.URL, AppID: "a", AppSecret: "s"})
	res, err := r.RefreshOne(context.Background(), id)
	if err != nil {
		t.Fatalf("RefreshOne() error = %v", err)
	}
	if res.Status != "ok" || res.NewExpiry == nil {
		t.Fatalf("result = %+v", res)
	}
	token, _, _ := loadConnection(t, st, id)
	if token != "fresh-token" {
		t.Errorf("token = %q, want fresh-token", token)
	}
}

func TestRefreshOneUnknownConnection_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	st := getTestStore(t)
	r := New(st, nil, Config{GraphURL: "http://unused.invalid", AppID: "a", AppSecret: "s"})
	if _, err := r.RefreshOne(context.Background(), uuid.New()); err == nil {
		t.Fatal("RefreshOne() expected error for unknown connection")
	}
}
