package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Config holds all runtime configuration for the bridge. Values merge flag
// values, BRIDGE_* env vars, and defaults (set up by the cobra command in
// cmd/server).
type Config struct {
	Addr      string
	Env       string
	PublicURL string

	DatabaseURL string

	AppID              string
	AppSecret          string
	SkipSignatureCheck bool

	AIRuntimeURL string
	AIAPIKey     string

	GraphAPIURL string

	SessionTTL      time.Duration
	CleanupInterval time.Duration

	DrainInterval   time.Duration
	BatchSize       int
	StaleClaimAfter time.Duration

	RefreshInterval      time.Duration
	RefreshThresholdDays int

	ControlSecret string
	DevMode       bool
}

// Load reads configuration from viper.
func Load() Config {
	return Config{
		Addr:      viper.GetString("addr"),
		Env:       viper.GetString("env"),
		PublicURL: strings.TrimRight(viper.GetString("public-url"), "/"),

		DatabaseURL: viper.GetString("database-url"),

		AppID:              viper.GetString("app-id"),
		AppSecret:          viper.GetString("app-secret"),
		SkipSignatureCheck: viper.GetBool("skip-signature-check"),

		AIRuntimeURL: strings.TrimRight(viper.GetString("ai-runtime-url"), "/"),
		AIAPIKey:     viper.GetString("ai-api-key"),

		GraphAPIURL: strings.TrimRight(viper.GetString("graph-api-url"), "/"),

		SessionTTL:      viper.GetDuration("session-ttl"),
		CleanupInterval: viper.GetDuration("cleanup-interval"),

		DrainInterval:   viper.GetDuration("drain-interval"),
		BatchSize:       viper.GetInt("batch-size"),
		StaleClaimAfter: viper.GetDuration("stale-claim-after"),

		RefreshInterval:      viper.GetDuration("refresh-interval"),
		RefreshThresholdDays: viper.GetInt("refresh-threshold-days"),

		ControlSecret: viper.GetString("control-secret"),
		DevMode:       viper.GetBool("dev-mode"),
	}
}

// Validate reports every missing required setting at once. Dev mode relaxes
// the secrets so a local instance can run against fakes.
func (c Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "database-url")
	}
	if !c.DevMode {
		if c.AppSecret == "" && !c.SkipSignatureCheck {
			missing = append(missing, "app-secret")
		}
		if c.AIAPIKey == "" {
			missing = append(missing, "ai-api-key")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("CONFIG_MISSING: required settings absent: %s", strings.Join(missing, ", "))
	}
	return nil
}
