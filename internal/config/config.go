// Package config loads the daemon's configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for every tunable. Durations are chosen for human chat rhythms:
// a couple of minutes of silence before offering, a few-minute freshness
// window on the counterpart side.
const (
	DefaultInactivityThreshold     = 2 * time.Minute
	DefaultMaxInactivity           = 6 * time.Hour
	DefaultRecentCounterpartWindow = 5 * time.Minute
	DefaultScanInterval            = 30 * time.Second
	DefaultCooldownGrace           = 3 * time.Minute
	DefaultReactivationDelay       = 20 * time.Second

	DefaultMaxTurns       = 3
	DefaultStyleSampleCap = 25
	DefaultExchangeCap    = 40

	DefaultSocketPath = "/run/signal-cli/socket"
	DefaultModel      = "gemini-2.0-flash"
)

// Config holds every tunable of the daemon.
type Config struct {
	// SelfNumber is the user's own Signal number; offers and notices go to
	// its Note-to-Self thread, and it doubles as the excluded self thread id.
	SelfNumber string

	// SocketPath is the signal-cli daemon UNIX socket. When WebSocketURL is
	// set it takes precedence over the socket.
	SocketPath   string
	WebSocketURL string

	GeminiAPIKey string
	Model        string

	InactivityThreshold     time.Duration
	MaxInactivity           time.Duration
	RecentCounterpartWindow time.Duration
	ScanInterval            time.Duration
	CooldownGrace           time.Duration
	ReactivationDelay       time.Duration

	MaxTurns       int
	StyleSampleCap int
	ExchangeCap    int

	Debug bool
}

// Load reads configuration from the environment, with a best-effort .env
// file, applies defaults, and validates.
func Load() (*Config, error) {
	// A missing .env file is fine; explicit environment always wins.
	_ = godotenv.Load()

	cfg := &Config{
		SelfNumber:              os.Getenv("STANDIN_SELF_NUMBER"),
		SocketPath:              envOr("STANDIN_SOCKET_PATH", DefaultSocketPath),
		WebSocketURL:            os.Getenv("STANDIN_WEBSOCKET_URL"),
		GeminiAPIKey:            os.Getenv("GEMINI_API_KEY"),
		Model:                   envOr("STANDIN_MODEL", DefaultModel),
		InactivityThreshold:     DefaultInactivityThreshold,
		MaxInactivity:           DefaultMaxInactivity,
		RecentCounterpartWindow: DefaultRecentCounterpartWindow,
		ScanInterval:            DefaultScanInterval,
		CooldownGrace:           DefaultCooldownGrace,
		ReactivationDelay:       DefaultReactivationDelay,
		MaxTurns:                DefaultMaxTurns,
		StyleSampleCap:          DefaultStyleSampleCap,
		ExchangeCap:             DefaultExchangeCap,
		Debug:                   os.Getenv("STANDIN_DEBUG") == "1",
	}

	var err error
	if err = parseDuration("STANDIN_INACTIVITY_THRESHOLD", &cfg.InactivityThreshold); err != nil {
		return nil, err
	}
	if err = parseDuration("STANDIN_MAX_INACTIVITY", &cfg.MaxInactivity); err != nil {
		return nil, err
	}
	if err = parseDuration("STANDIN_RECENT_WINDOW", &cfg.RecentCounterpartWindow); err != nil {
		return nil, err
	}
	if err = parseDuration("STANDIN_SCAN_INTERVAL", &cfg.ScanInterval); err != nil {
		return nil, err
	}
	if err = parseDuration("STANDIN_COOLDOWN_GRACE", &cfg.CooldownGrace); err != nil {
		return nil, err
	}
	if err = parseDuration("STANDIN_REACTIVATION_DELAY", &cfg.ReactivationDelay); err != nil {
		return nil, err
	}
	if err = parseInt("STANDIN_MAX_TURNS", &cfg.MaxTurns); err != nil {
		return nil, err
	}
	if err = parseInt("STANDIN_STYLE_SAMPLES", &cfg.StyleSampleCap); err != nil {
		return nil, err
	}
	if err = parseInt("STANDIN_EXCHANGE_DEPTH", &cfg.ExchangeCap); err != nil {
		return nil, err
	}

	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks internal consistency.
func (c *Config) Validate() error {
	if c.SelfNumber == "" {
		return fmt.Errorf("STANDIN_SELF_NUMBER is required")
	}
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.SocketPath == "" && c.WebSocketURL == "" {
		return fmt.Errorf("either STANDIN_SOCKET_PATH or STANDIN_WEBSOCKET_URL is required")
	}
	if c.InactivityThreshold <= 0 {
		return fmt.Errorf("inactivity threshold must be positive, got %v", c.InactivityThreshold)
	}
	if c.MaxInactivity < c.InactivityThreshold {
		return fmt.Errorf("max inactivity %v is below the threshold %v", c.MaxInactivity, c.InactivityThreshold)
	}
	if c.RecentCounterpartWindow <= 0 {
		return fmt.Errorf("recent counterpart window must be positive, got %v", c.RecentCounterpartWindow)
	}
	if c.ScanInterval <= 0 {
		return fmt.Errorf("scan interval must be positive, got %v", c.ScanInterval)
	}
	if c.MaxTurns <= 0 {
		return fmt.Errorf("max turns must be positive, got %d", c.MaxTurns)
	}
	if c.StyleSampleCap <= 0 || c.ExchangeCap <= 0 {
		return fmt.Errorf("history caps must be positive, got samples %d, exchange %d",
			c.StyleSampleCap, c.ExchangeCap)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = d
	return nil
}

func parseInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}
