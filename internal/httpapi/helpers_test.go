package httpapi

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/chatforge/bridge-api/internal/ai"
	"github.com/chatforge/bridge-api/internal/auth"
	"github.com/chatforge/bridge-api/internal/config"
	"github.com/chatforge/bridge-api/internal/db"
	"github.com/chatforge/bridge-api/internal/metrics"
	"github.com/chatforge/bridge-api/internal/provider"
	"github.com/chatforge/bridge-api/internal/refresher"
	"github.com/chatforge/bridge-api/internal/store"
	"github.com/chatforge/bridge-api/internal/worker"
)

// withTestSubject seeds the operator subject the way the auth middleware
// would, for testing handlers and middleware below it in isolation.
func withTestSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, auth.CtxSubject, sub)
}

// getTestStore opens the integration database named by TEST_DATABASE_URL,
// migrates it, and wipes bridge tables. Tests needing it are skipped when the
// variable is unset.
func getTestStore(t *testing.T) *store.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := db.Open(ctx, url)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE tenants CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return store.New(pool)
}

// newTestServer wires a router around st with test-friendly config defaults.
// st may be nil for handler paths that reject before touching the store.
func newTestServer(t *testing.T, st *store.Store, mutate func(*config.Config)) http.Handler {
	t.Helper()

	cfg := config.Config{
		PublicURL: "https://bridge.test",
		AppID:     "app-1",
		AppSecret: "tenant-app-secret",
	}
	if mutate != nil {
		mutate(&cfg)
	}

	m := metrics.New()
	srv := &Server{Metrics: m, Cfg: cfg}
	if st != nil {
		srv.Store = st
		srv.Worker = worker.New(st,
			ai.NewClient(cfg.AIRuntimeURL, cfg.AIAPIKey),
			provider.NewClient(cfg.GraphAPIURL),
			m, worker.Config{})
		srv.Refresher = refresher.New(st, m, refresher.Config{
			GraphURL:  cfg.GraphAPIURL,
			AppID:     cfg.AppID,
			AppSecret: cfg.AppSecret,
		})
	}
	return srv.Routes()
}

// operatorToken signs a short-lived HS256 bearer token for operator routes.
func operatorToken(t *testing.T, secret string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ops@test",
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	})
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign operator token: %v", err)
	}
	return s
}

func seedTenant(t *testing.T, st *store.Store) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := st.DB.QueryRow(context.Background(), `
		INSERT INTO tenants (email) VALUES ('owner@example.com') RETURNING id
	`).Scan(&id)
	if err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	return id
}

func seedWebhookConfig(t *testing.T, st *store.Store, tenantID uuid.UUID, platform, token string) {
	t.Helper()
	_, err := st.DB.Exec(context.Background(), `
		INSERT INTO webhook_configs (tenant_id, platform, verification_token)
		VALUES ($1, $2, $3)
	`, tenantID, platform, token)
	if err != nil {
		t.Fatalf("seed webhook config: %v", err)
	}
}

func seedPageConnection(t *testing.T, st *store.Store, tenantID uuid.UUID, pageID, accessToken string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := st.DB.QueryRow(context.Background(), `
		INSERT INTO social_connections (tenant_id, page_id, access_token, token_expiry)
		VALUES ($1, $2, $3, now() + interval '60 days')
		RETURNING id
	`, tenantID, pageID, accessToken).Scan(&id)
	if err != nil {
		t.Fatalf("seed connection: %v", err)
	}
	return id
}
