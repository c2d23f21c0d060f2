// Package config loads the node's environment-driven configuration,
// following the same EnvOrDefault style the teacher repo uses for its own
// server configs, but validating the one setting (the gateway URL scheme)
// that must fail fast at startup.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/rezn-project/rezn/internal/model"
	"github.com/rezn-project/rezn/pkg/utils"
)

const (
	defaultIdentityPath  = "identity.txt"
	defaultGatewayURL    = "http://localhost:3000"
	defaultStatsWSURL    = "ws://localhost:3000/stats/ws"
	defaultReconcileSecs = 15 * time.Second
	defaultBindAddr      = "127.0.0.1:4000"
	defaultKVPath        = "./rezn-data"
)

// Config is the node's resolved runtime configuration.
type Config struct {
	AgeIdentityPath   string
	GatewayBaseURL    string
	StatsWSURL        string
	ReconcileInterval time.Duration
	BindAddr          string
	KVPath            string
}

// Load reads configuration from the process environment (after optionally
// merging a local .env file, matching walletserver/config.Load's use of
// godotenv) and the positional KV-path argument. It fails fast with
// model.ErrConfig if the gateway URL's scheme is unsupported.
func Load(kvPathArg string) (*Config, error) {
	// A missing .env is not an error: the file is an optional convenience
	// for local development, never a deployment requirement.
	_ = godotenv.Load()

	cfg := &Config{
		AgeIdentityPath:   utils.EnvOrDefault("REZN_AGE_IDENTITY", defaultIdentityPath),
		GatewayBaseURL:    utils.EnvOrDefault("ORQOS_API_URL", defaultGatewayURL),
		StatsWSURL:        utils.EnvOrDefault("STATS_WS_URL", defaultStatsWSURL),
		ReconcileInterval: utils.EnvOrDefaultSeconds("RECONCILE_INTERVAL", defaultReconcileSecs),
		BindAddr:          utils.EnvOrDefault("BIND_ADDR", defaultBindAddr),
		KVPath:            defaultKVPath,
	}
	if kvPathArg != "" {
		cfg.KVPath = kvPathArg
	}

	if !strings.HasPrefix(cfg.GatewayBaseURL, "http://") && !strings.HasPrefix(cfg.GatewayBaseURL, "https://") {
		return nil, model.WrapOp("config.Load", "ORQOS_API_URL", model.ErrConfig,
			errInvalidScheme(cfg.GatewayBaseURL))
	}

	return cfg, nil
}

type schemeError string

func (e schemeError) Error() string {
	return "must start with http:// or https://, got " + string(e)
}

func errInvalidScheme(url string) error { return schemeError(url) }
