package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Upstream partner API
	APIBaseURL     string        // ex: "https://partner.example.com"
	APIPrefix      string        // fixed prefix every resource path is rooted at (ex: "/api")
	APIToken       string        // optional bearer token forwarded upstream
	RequestTimeout time.Duration // transport timeout for a single upstream call
	ResourcesFile  string        // optional YAML overrides for resource descriptors

	// Sessions
	SessionIdleTTL   time.Duration // idle sessions older than this are reclaimed
	SessionReapEvery time.Duration // reaper tick
	SearchDebounce   time.Duration // quiet period before a customer search runs
	RollupParallel   int           // max concurrent health fetches for the executive rollup

	// Redis (optional, empty address => invalidation stays process-local)
	RedisAddr           string
	RedisUser           string
	RedisPassword       string
	RedisDB             int
	RedisDT             time.Duration // dial timeout
	RedisRT             time.Duration // read timeout
	RedisWT             time.Duration // write timeout
	RedisMaxWait        time.Duration // max wait between retries
	RedisPingTimeout    time.Duration // timeout for each ping attempt
	RedisPoolSize       int
	RedisConnectTimeout time.Duration // total time to retry connecting
	RedisRetryInterval  time.Duration // initial wait between retries, grows exponentially
	RedisWarnThreshold  int           // warn after this many attempts

	// Rate limit for mutating routes (refresh, reevaluate, notify)
	MutationBurst        int
	MutationRefillPerMin int

	// Access
	AllowedHosts []string // optional, restrict /api to these Host headers ("*.example.com" allowed)
	AllowedCIDRS []string // optional, restrict /readyz and /api/infra to these IPs/CIDRs
	TrustProxy   bool     // resolve client IP from proxy headers
}

func Load() *Config {
	cfg := &Config{
		ListenPort:      getenv("PULSE_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("PULSE_SHUTDOWN_TIMEOUT", 5*time.Second),

		LogLevel:  getenv("PULSE_LOG_LEVEL", "info"),
		PrettyLog: mustBool("PULSE_PRETTY_LOG", true),

		APIBaseURL:     strings.TrimRight(requireEnv("PULSE_API_BASE_URL"), "/"),
		APIPrefix:      normalizePrefix(getenv("PULSE_API_PREFIX", "/api")),
		APIToken:       getenv("PULSE_API_TOKEN", ""),
		RequestTimeout: mustDuration("PULSE_REQUEST_TIMEOUT", 20*time.Second),
		ResourcesFile:  getenv("PULSE_RESOURCES_FILE", ""),

		SessionIdleTTL:   mustDuration("PULSE_SESSION_IDLE_TTL", 2*time.Hour),
		SessionReapEvery: mustDuration("PULSE_SESSION_REAP_INTERVAL", 10*time.Minute),
		SearchDebounce:   mustDuration("PULSE_SEARCH_DEBOUNCE", 250*time.Millisecond),
		RollupParallel:   getenvInt("PULSE_ROLLUP_PARALLEL", 6),

		RedisAddr:           getenv("PULSE_REDIS_ADDR", ""),
		RedisUser:           getenv("PULSE_REDIS_USERNAME", "default"),
		RedisPassword:       getenv("PULSE_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("PULSE_REDIS_DB", 0),
		RedisDT:             mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:        mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:       getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:  getenvInt("REDIS_WARN_THRESHOLD", 3),

		MutationBurst:        getenvInt("PULSE_MUTATION_BURST", 5),
		MutationRefillPerMin: getenvInt("PULSE_MUTATION_REFILL_PER_MIN", 30),

		AllowedHosts: splitAndTrim(getenv("PULSE_ALLOWED_HOSTS", "")),
		AllowedCIDRS: splitAndTrim(getenv("PULSE_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("PULSE_TRUST_PROXY", false),
	}

	if cfg.RollupParallel < 1 {
		cfg.RollupParallel = 1
	}

	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		if cfgCopy.APIToken != "" {
			cfgCopy.APIToken = "***REDACTED***"
		}
		if cfgCopy.RedisPassword != "" {
			cfgCopy.RedisPassword = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// RedisEnabled reports whether cross-replica invalidation is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// normalizePrefix returns prefix with exactly one leading slash and no
// trailing slash. "" and "/" both mean "no prefix".
//
//	"api/"  -> "/api"
//	"/v2"   -> "/v2"
func normalizePrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

// splitAndTrim splits a comma separated list, dropping empty items.
func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		if p := strings.TrimSpace(part); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
