// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For required credentials and the channel table, use ValidateDiscordReady and ValidateChannels.
package config

import (
	"fmt"
	"net/netip"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // SYNC_TIMEZONE must resolve in minimal containers
)

// DefaultChannels is the channel table used when no DISCORD_CHANNEL_<KEY> override is set.
var DefaultChannels = map[string]string{
	"sita":        "775719555628662794",
	"sim":         "775719273905258496",
	"stnk":        "775719070669996042",
	"penilangan":  "848713902656192563",
	"pengeluaran": "985074666240626719",
	"impound":     "1113654296395907122",
}

type Config struct {
	// Discord
	DiscordToken     string
	DiscordTokenType string // bot | user

	// Channel table: catalog key -> channel id
	Channels             map[string]string
	AllowMissingChannels bool

	// HTTP
	HTTPAddr           string
	Env                string
	SyncAPIToken       string
	RateLimitEnabled   bool
	RateLimitPerMinute int
	RateLimitBurst     int
	CORSPermissive     bool
	CORSAllowedOrigins []string
	// X-Forwarded-For is honoured only for requests arriving from these networks.
	TrustedProxies []netip.Prefix

	// Sync pacing
	Location          *time.Location
	FetchBatchPause   time.Duration
	FetchRetryInitial time.Duration
	FetchRetryMax     time.Duration
	FetchMaxRetries   int
	EndpointPause     time.Duration
	MaxConcurrentSync int

	// Database (optional run history)
	DBDsn            string
	RunRetentionDays int
}

// Load reads environment variables and applies defaults. Missing credentials do not fail here;
// call ValidateDiscordReady before serving. Malformed values do.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DiscordToken = strings.TrimSpace(os.Getenv("DISCORD_TOKEN"))
	cfg.DiscordTokenType = strings.ToLower(os.Getenv("DISCORD_TOKEN_TYPE"))
	switch cfg.DiscordTokenType {
	case "":
		cfg.DiscordTokenType = "bot"
	case "bot", "user":
	default:
		return nil, fmt.Errorf("invalid DISCORD_TOKEN_TYPE %q (bot|user)", cfg.DiscordTokenType)
	}

	cfg.Channels = make(map[string]string, len(DefaultChannels))
	for key, id := range DefaultChannels {
		v, set := os.LookupEnv("DISCORD_CHANNEL_" + strings.ToUpper(key))
		v = strings.TrimSpace(v)
		switch {
		case !set || v == "":
			cfg.Channels[key] = id
		case strings.EqualFold(v, "off"):
			// removed from the table
		default:
			cfg.Channels[key] = v
		}
	}
	cfg.AllowMissingChannels = envBool("ALLOW_MISSING_CHANNELS", false)

	// HTTP
	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		port := os.Getenv("PORT")
		if port == "" {
			port = "3030"
		}
		cfg.HTTPAddr = ":" + port
	}
	cfg.Env = strings.ToLower(os.Getenv("ENV"))
	cfg.SyncAPIToken = os.Getenv("SYNC_API_TOKEN")
	cfg.RateLimitEnabled = os.Getenv("RATE_LIMIT_ENABLED") != "0"
	cfg.CORSPermissive = cfg.Env == "" || cfg.Env == "dev" || cfg.Env == "development"
	if v := os.Getenv("CORS_PERMISSIVE"); v != "" {
		cfg.CORSPermissive = v == "1" || strings.EqualFold(v, "true")
	}
	for _, origin := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, origin)
		}
	}

	var err error
	if cfg.TrustedProxies, err = parseProxies(os.Getenv("TRUSTED_PROXIES")); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerMinute, err = envInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 6); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = envInt("RATE_LIMIT_BURST", 3); err != nil {
		return nil, err
	}

	// Sync pacing
	cfg.Location = time.Local
	if tz := os.Getenv("SYNC_TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid SYNC_TIMEZONE: %w", err)
		}
		cfg.Location = loc
	}
	if cfg.FetchBatchPause, err = envDuration("FETCH_BATCH_PAUSE", 100*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.FetchRetryInitial, err = envDuration("FETCH_RETRY_INITIAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchRetryMax, err = envDuration("FETCH_RETRY_MAX", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchMaxRetries, err = envInt("FETCH_MAX_RETRIES", 5); err != nil {
		return nil, err
	}
	if cfg.EndpointPause, err = envDuration("ENDPOINT_PAUSE", 200*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrentSync, err = envInt("MAX_CONCURRENT_SYNCS", 2); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrentSync < 1 {
		cfg.MaxConcurrentSync = 1
	}

	// DB
	cfg.DBDsn = os.Getenv("DB_DSN")
	if cfg.RunRetentionDays, err = envInt("RUN_RETENTION_DAYS", 30); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ValidateDiscordReady checks the fields required to talk to Discord.
func (c *Config) ValidateDiscordReady() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("missing discord env: require DISCORD_TOKEN")
	}
	return nil
}

// ValidateChannels fails when a key the catalog needs has no channel id, unless
// ALLOW_MISSING_CHANNELS is set.
func (c *Config) ValidateChannels(keys []string) error {
	if c.AllowMissingChannels {
		return nil
	}
	var missing []string
	for _, k := range keys {
		if c.Channels[k] == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing channel ids for %s (set DISCORD_CHANNEL_<KEY> or ALLOW_MISSING_CHANNELS=1)", strings.Join(missing, ", "))
	}
	return nil
}

// parseProxies reads a comma-separated list of CIDRs or single addresses.
func parseProxies(s string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if p, err := netip.ParsePrefix(part); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(part)
		if err != nil {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: want an IP or CIDR", part)
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return def
	}
}

func envInt(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q: want a non-negative integer", key, s)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s %q: want a duration like 100ms", key, s)
	}
	return d, nil
}
