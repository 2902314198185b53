package main

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chatforge/bridge-api/internal/config"
)

func main() {
	root := &cobra.Command{
		Use:     "bridge-server",
		Short:   "Multi-tenant webhook bridge between messaging providers and an AI runtime",
		Version: config.Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
		RunE: runServe,
	}

	pf := root.PersistentFlags()
	pf.String("addr", ":8080", "HTTP listen address")
	pf.String("env", "production", "runtime environment (dev enables console logging)")
	pf.String("public-url", "", "externally reachable base URL, used in callback links")
	pf.String("database-url", "", "Postgres connection string")
	pf.String("app-id", "", "provider app id, used for credential exchange")
	pf.String("app-secret", "", "provider app secret, used for signature checks")
	pf.Bool("skip-signature-check", false, "accept unsigned webhooks (dev only)")
	pf.String("ai-runtime-url", "https://general-runtime.voiceflow.com", "AI runtime base URL")
	pf.String("ai-api-key", "", "default AI runtime API key")
	pf.String("graph-api-url", "https://graph.facebook.com", "provider Graph API base URL")
	pf.Duration("session-ttl", 8760*time.Hour, "participant session lifetime")
	pf.Duration("cleanup-interval", 24*time.Hour, "expired-session sweep interval, 0 disables")
	pf.Duration("drain-interval", time.Minute, "queue drain interval, 0 disables")
	pf.Int("batch-size", 5, "events claimed per drain pass")
	pf.Duration("stale-claim-after", 5*time.Minute, "age before an in-flight claim is returned to the queue")
	pf.Duration("refresh-interval", 24*time.Hour, "credential refresh interval, 0 disables")
	pf.Int("refresh-threshold-days", 7, "refresh credentials expiring within this many days")
	pf.String("control-secret", "", "HS256 secret protecting operator endpoints")
	pf.Bool("dev-mode", false, "relax required settings and allow debug auth headers")

	// Every flag doubles as a BRIDGE_* env var: BRIDGE_DATABASE_URL maps to
	// --database-url and so on.
	bindFlag := func(key string) {
		_ = viper.BindPFlag(key, pf.Lookup(key))
	}
	for _, key := range []string{
		"addr", "env", "public-url", "database-url",
		"app-id", "app-secret", "skip-signature-check",
		"ai-runtime-url", "ai-api-key", "graph-api-url",
		"session-ttl", "cleanup-interval",
		"drain-interval", "batch-size", "stale-claim-after",
		"refresh-interval", "refresh-threshold-days",
		"control-secret", "dev-mode",
	} {
		bindFlag(key)
	}
	viper.SetEnvPrefix("BRIDGE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	root.AddCommand(serveCmd(), migrateCmd(), drainCmd(), refreshCmd(), cleanupCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "bridge-api").Logger()

	// Pretty logging for local dev
	if viper.GetString("env") == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
}
