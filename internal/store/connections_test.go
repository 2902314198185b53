package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chatforge/bridge-api/internal/bridge"
)

func seedConnection(t *testing.T, st *Store, tenantID uuid.UUID, platform bridge.Platform, externalID, token string, expiresIn time.Duration) uuid.UUID {
	t.Helper()
	col := "page_id"
	if platform == bridge.PlatformPhoto {
		col = "account_id"
	}
	var id uuid.UUID
	err := st.DB.QueryRow(context.Background(), `
		INSERT INTO social_connections (tenant_id, `+col+`, access_token, token_expiry)
		VALUES ($1, $2, $3, now() + $4)
		RETURNING id
	`, tenantID, externalID, token, expiresIn).Scan(&id)
	if err != nil {
		t.Fatalf("seed connection: %v", err)
	}
	return id
}

func seedConfig(t *testing.T, st *Store, tenantID uuid.UUID, platform bridge.Platform, token string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := st.DB.QueryRow(context.Background(), `
		INSERT INTO webhook_configs (tenant_id, platform, verification_token)
		VALUES ($1, $2, $3)
		RETURNING id
	`, tenantID, string(platform), token).Scan(&id)
	if err != nil {
		t.Fatalf("seed config: %v", err)
	}
	return id
}

func TestConnectionAssetLookup_Integration(t *testing.T) {
	st := getTestStore(t)
	ctx := context.Background()
	tenantID := seedTenant(t, st)
	otherTenant := seedTenant(t, st)

	pageConn := seedConnection(t, st, tenantID, bridge.PlatformPage, "pg-1", "tokA", 60*24*time.Hour)
	photoConn := seedConnection(t, st, tenantID, bridge.PlatformPhoto, "ac-1", "tokB", 60*24*time.Hour)

	got, err := st.GetConnectionByAsset(ctx, tenantID, bridge.PlatformPage, "pg-1")
	if err != nil {
		t.Fatalf("page lookup: %v", err)
	}
	if got.ID != pageConn || got.Platform() != bridge.PlatformPage || got.ExternalID() != "pg-1" {
		t.Errorf("page lookup = %+v", got)
	}

	got, err = st.GetConnectionByAsset(ctx, tenantID, bridge.PlatformPhoto, "ac-1")
	if err != nil {
		t.Fatalf("photo lookup: %v", err)
	}
	if got.ID != photoConn || got.Platform() != bridge.PlatformPhoto {
		t.Errorf("photo lookup = %+v", got)
	}

	// The platform picks the asset column; an account ID never matches as a page.
	if _, err := st.GetConnectionByAsset(ctx, tenantID, bridge.PlatformPage, "ac-1"); !errors.Is(err, bridge.ErrNotFound) {
		t.Errorf("cross-column lookup: err = %v, want ErrNotFound", err)
	}
	// Lookups are tenant-scoped.
	if _, err := st.GetConnectionByAsset(ctx, otherTenant, bridge.PlatformPage, "pg-1"); !errors.Is(err, bridge.ErrNotFound) {
		t.Errorf("cross-tenant lookup: err = %v, want ErrNotFound", err)
	}

	// The tenant-less variant matches either column.
	found, err := st.FindConnectionByAsset(ctx, "ac-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.ID != photoConn {
		t.Errorf("find = %s, want %s", found.ID, photoConn)
	}
	if _, err := st.FindConnectionByAsset(ctx, "missing"); !errors.Is(err, bridge.ErrNotFound) {
		t.Errorf("find missing: err = %v, want ErrNotFound", err)
	}
}

func TestListExpiringConnections_Integration(t *testing.T) {
	st := getTestStore(t)
	ctx := context.Background()
	tenantID := seedTenant(t, st)

	soon := seedConnection(t, st, tenantID, bridge.PlatformPage, "pg-soon", "tok", 2*24*time.Hour)
	sooner := seedConnection(t, st, tenantID, bridge.PlatformPage, "pg-sooner", "tok", 24*time.Hour)
	seedConnection(t, st, tenantID, bridge.PlatformPage, "pg-later", "tok", 30*24*time.Hour)

	list, err := st.ListExpiringConnections(ctx, time.Now().Add(7*24*time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != sooner || list[1].ID != soon {
		t.Fatalf("list = %d connections, want the two near-expiry ones soonest first", len(list))
	}
}

func TestUpdateConnectionToken_Integration(t *testing.T) {
	st := getTestStore(t)
	ctx := context.Background()
	tenantID := seedTenant(t, st)
	id := seedConnection(t, st, tenantID, bridge.PlatformPage, "pg-1", "tok-old", 24*time.Hour)

	newExpiry := time.Now().UTC().Add(60 * 24 * time.Hour).Truncate(time.Second)
	if err := st.UpdateConnectionToken(ctx, id, "tok-rotated", newExpiry); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := st.GetConnection(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AccessToken != "tok-rotated" || !got.TokenExpiry.Equal(newExpiry) {
		t.Errorf("credential = %q until %v", got.AccessToken, got.TokenExpiry)
	}
	if got.RefreshedAt == nil {
		t.Error("refreshed_at not stamped")
	}

	if err := st.UpdateConnectionToken(ctx, uuid.New(), "x", newExpiry); !errors.Is(err, bridge.ErrNotFound) {
		t.Errorf("unknown id: err = %v, want ErrNotFound", err)
	}
}

func TestFindVerification_Integration(t *testing.T) {
	st := getTestStore(t)
	ctx := context.Background()
	t1 := seedTenant(t, st)
	t2 := seedTenant(t, st)

	seedConfig(t, st, t1, bridge.PlatformPage, "tok-page")
	seedConfig(t, st, t2, bridge.PlatformAny, "tok-any")
	inactive := seedConfig(t, st, t1, bridge.PlatformPhoto, "tok-off")
	if _, err := st.DB.Exec(ctx, "UPDATE webhook_configs SET is_active = FALSE WHERE id = $1", inactive); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	tests := []struct {
		name     string
		tenantID *uuid.UUID
		platform bridge.Platform
		token    string
		found    bool
	}{
		{"exact match", &t1, bridge.PlatformPage, "tok-page", true},
		{"platform mismatch", &t1, bridge.PlatformPhoto, "tok-page", false},
		{"tenant mismatch", &t2, bridge.PlatformPage, "tok-page", false},
		{"token mismatch", &t1, bridge.PlatformPage, "tok-nope", false},
		{"wildcard covers page", &t2, bridge.PlatformPage, "tok-any", true},
		{"wildcard covers photo", &t2, bridge.PlatformPhoto, "tok-any", true},
		{"inactive config never matches", &t1, bridge.PlatformPhoto, "tok-off", false},
		{"nil tenant matches any tenant", nil, bridge.PlatformPage, "tok-page", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := st.FindVerification(ctx, tt.tenantID, tt.platform, tt.token)
			if tt.found {
				if err != nil {
					t.Fatalf("err = %v, want match", err)
				}
				if cfg.VerificationToken != tt.token {
					t.Errorf("token = %q, want %q", cfg.VerificationToken, tt.token)
				}
				return
			}
			if !errors.Is(err, bridge.ErrNotFound) {
				t.Errorf("err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestHasActiveConfig_Integration(t *testing.T) {
	st := getTestStore(t)
	ctx := context.Background()
	t1 := seedTenant(t, st)
	t2 := seedTenant(t, st)

	seedConfig(t, st, t1, bridge.PlatformPage, "tok-1")
	seedConfig(t, st, t2, bridge.PlatformAny, "tok-2")

	checks := []struct {
		tenantID uuid.UUID
		platform bridge.Platform
		want     bool
	}{
		{t1, bridge.PlatformPage, true},
		{t1, bridge.PlatformPhoto, false},
		{t2, bridge.PlatformPage, true},
		{t2, bridge.PlatformPhoto, true},
	}
	for _, c := range checks {
		got, err := st.HasActiveConfig(ctx, c.tenantID, c.platform)
		if err != nil {
			t.Fatalf("has active config: %v", err)
		}
		if got != c.want {
			t.Errorf("HasActiveConfig(%s, %s) = %t, want %t", c.tenantID, c.platform, got, c.want)
		}
	}
}

func TestGetActiveBinding_Integration(t *testing.T) {
	st := getTestStore(t)
	ctx := context.Background()
	tenantID := seedTenant(t, st)

	var bindingID uuid.UUID
	err := st.DB.QueryRow(ctx, `
		INSERT INTO ai_project_bindings (tenant_id, project_id, runtime_config, api_key)
		VALUES ($1, 'proj-a', '{"version": "v2"}'::jsonb, 'vf-key-1')
		RETURNING id
	`, tenantID).Scan(&bindingID)
	if err != nil {
		t.Fatalf("seed binding: %v", err)
	}

	b, err := st.GetActiveBinding(ctx, tenantID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if b.ID != bindingID || b.ProjectID != "proj-a" {
		t.Errorf("binding = %+v", b)
	}
	if b.APIKey == nil || *b.APIKey != "vf-key-1" {
		t.Errorf("api key = %v", b.APIKey)
	}
	if b.RuntimeConfig["version"] != "v2" {
		t.Errorf("runtime config = %v", b.RuntimeConfig)
	}

	// Deactivated bindings stop resolving.
	if _, err := st.DB.Exec(ctx, "UPDATE ai_project_bindings SET is_active = FALSE WHERE id = $1", bindingID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := st.GetActiveBinding(ctx, tenantID); !errors.Is(err, bridge.ErrNotFound) {
		t.Errorf("deactivated: err = %v, want ErrNotFound", err)
	}

	// A nil API key means the global default applies.
	other := seedTenant(t, st)
	if _, err := st.DB.Exec(ctx, `
		INSERT INTO ai_project_bindings (tenant_id, project_id) VALUES ($1, 'proj-b')
	`, other); err != nil {
		t.Fatalf("seed keyless binding: %v", err)
	}
	kb, err := st.GetActiveBinding(ctx, other)
	if err != nil {
		t.Fatalf("get keyless: %v", err)
	}
	if kb.APIKey != nil {
		t.Errorf("api key = %v, want nil", kb.APIKey)
	}
}
