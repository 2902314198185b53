// Package refresher rotates provider access tokens before they expire.
package refresher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chatforge/bridge-api/internal/bridge"
	"github.com/chatforge/bridge-api/internal/metrics"
	"github.com/chatforge/bridge-api/internal/store"
)

const (
	// DefaultThreshold is how close to expiry a token must be before the
	// periodic run exchanges it.
	DefaultThreshold = 7 * 24 * time.Hour

	graphVersion     = "v18.0"
	exchangeTimeout  = 10 * time.Second
	defaultTokenLife = 60 * 24 * time.Hour
	maxErrorBody     = 512
)

// Band is the informational expiry severity shown to operators.
type Band string

const (
	BandExpired Band = "expired"
	BandRed     Band = "red"
	BandYellow  Band = "yellow"
	BandGreen   Band = "green"
)

// DaysUntilExpiry is floor((ts - now) in days); negative for expired tokens.
func DaysUntilExpiry(ts, now time.Time) int {
	return int(math.Floor(float64(ts.Sub(now).Milliseconds()) / 86400000.0))
}

func ExpiryBand(days int) Band {
	switch {
	case days <= 0:
		return BandExpired
	case days <= 5:
		return BandRed
	case days <= 14:
		return BandYellow
	default:
		return BandGreen
	}
}

// RefreshResult reports one connection's outcome within a run.
type RefreshResult struct {
	ConnectionID uuid.UUID       `json:"connection_id"`
	Platform     bridge.Platform `json:"platform"`
	Status       string          `json:"status"`
	NewExpiry    *time.Time      `json:"new_expiry,omitempty"`
	DaysLeft     int             `json:"days_until_expiry"`
	Band         Band            `json:"band"`
	Error        string          `json:"error,omitempty"`
}

type Config struct {
	GraphURL  string
	AppID     string
	AppSecret string
	Threshold time.Duration
}

type Refresher struct {
	store   *store.Store
	metrics *metrics.Metrics

	graphURL  string
	appID     string
	appSecret string
	threshold time.Duration

	http *http.Client
	now  func() time.Time
}

func New(st *store.Store, m *metrics.Metrics, cfg Config) *Refresher {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if m == nil {
		m = metrics.New()
	}
	return &Refresher{
		store:     st,
		metrics:   m,
		graphURL:  cfg.GraphURL,
		appID:     cfg.AppID,
		appSecret: cfg.AppSecret,
		threshold: cfg.Threshold,
		http:      &http.Client{Timeout: exchangeTimeout},
		now:       time.Now,
	}
}

// RunOnce refreshes every connection expiring within the threshold and
// reports per-connection results. Connections outside the threshold are
// never touched.
func (r *Refresher) RunOnce(ctx context.Context) ([]RefreshResult, error) {
	cutoff := r.now().Add(r.threshold)
	conns, err := r.store.ListExpiringConnections(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	results := make([]RefreshResult, 0, len(conns))
	for _, conn := range conns {
		results = append(results, r.refresh(ctx, conn))
	}
	if len(results) > 0 {
		ok := 0
		for _, res := range results {
			if res.Status == "ok" {
				ok++
			}
		}
		log.Info().Int("refreshed", ok).Int("attempted", len(results)).Msg("credential refresh run finished")
	}
	return results, nil
}

// RefreshOne exchanges a single connection's token on operator demand,
// regardless of how far out its expiry is.
func (r *Refresher) RefreshOne(ctx context.Context, id uuid.UUID) (RefreshResult, error) {
	conn, err := r.store.GetConnection(ctx, id)
	if err != nil {
		return RefreshResult{}, err
	}
	return r.refresh(ctx, conn), nil
}

// refresh exchanges one token under the connection's advisory lock so two
// refreshers never race the same row.
func (r *Refresher) refresh(ctx context.Context, conn *bridge.SocialConnection) RefreshResult {
	res := RefreshResult{ConnectionID: conn.ID, Platform: conn.Platform()}

	err := r.store.WithAdvisoryLock(ctx, "refresh:"+conn.ID.String(), func(ctx context.Context) error {
		token, expiry, err := r.exchange(ctx, conn.AccessToken)
		if err != nil {
			return err
		}
		if err := r.store.UpdateConnectionToken(ctx, conn.ID, token, expiry); err != nil {
			return err
		}
		res.NewExpiry = &expiry
		return nil
	})
	if err != nil {
		res.Status = "error"
		res.Error = err.Error()
		res.DaysLeft = DaysUntilExpiry(conn.TokenExpiry, r.now())
		res.Band = ExpiryBand(res.DaysLeft)
		r.metrics.TokenRefreshes.WithLabelValues("error").Inc()
		log.Warn().Err(err).
			Str("connection_id", conn.ID.String()).
			Str("platform", string(conn.Platform())).
			Msg("credential refresh failed")
		return res
	}

	res.Status = "ok"
	res.DaysLeft = DaysUntilExpiry(*res.NewExpiry, r.now())
	res.Band = ExpiryBand(res.DaysLeft)
	r.metrics.TokenRefreshes.WithLabelValues("ok").Inc()
	log.Info().
		Str("connection_id", conn.ID.String()).
		Str("platform", string(conn.Platform())).
		Time("new_expiry", *res.NewExpiry).
		Msg("credential refreshed")
	return res
}

type exchangeResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (r *Refresher) exchange(ctx context.Context, current string) (string, time.Time, error) {
	q := url.Values{}
	q.Set("grant_type", "fb_exchange_token")
	q.Set("client_id", r.appID)
	q.Set("client_secret", r.appSecret)
	q.Set("fb_exchange_token", current)
	reqURL := fmt.Sprintf("%s/%s/oauth/access_token?%s", r.graphURL, graphVersion, q.Encode())

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return "", time.Time{}, err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		// url.Error carries the query string with both secrets; scrub it.
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = redactQuery(ue.URL, "client_secret", "fb_exchange_token")
		}
		return "", time.Time{}, fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", time.Time{}, &bridge.StatusError{Status: resp.StatusCode, Body: string(snippet)}
	}

	var body exchangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", time.Time{}, fmt.Errorf("decode exchange response: %w", err)
	}
	if body.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("exchange response missing access_token")
	}

	life := defaultTokenLife
	if body.ExpiresIn > 0 {
		life = time.Duration(body.ExpiresIn) * time.Second
	}
	return body.AccessToken, r.now().Add(life), nil
}

func redactQuery(raw string, keys ...string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}
	q := u.Query()
	for _, k := range keys {
		if q.Has(k) {
			q.Set(k, "REDACTED")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
