package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenAddr      string
	DataDir         string
	BaseURL         string
	LogLevel        string
	LogFile         string
	WorkerCount     int
	ItemTimeout     time.Duration
	VerifyArtifacts bool

	CallbackTimeout time.Duration
	RedisURL        string
	SpoolKey        string
	RetryInterval   time.Duration
	DeadLetterPath  string

	OperatorKeyHash string
	AllowReset      bool

	WebhookURL           string
	WebhookSecret        string
	WebhookMinConfidence string

	SMTPHost                string
	SMTPPort                int
	SMTPUser                string
	SMTPPass                string
	SMTPFrom                string
	AlertEmailTo            []string
	AlertEmailMinConfidence string

	RetentionDays       int
	CleanupIntervalMins int
	MinFreeDiskPct      float64

	Scoring Scoring
}

// Scoring holds the confidence policy thresholds. Patterns are regular
// expressions matched case-insensitively against the User-Agent.
type Scoring struct {
	MinElapsed      time.Duration
	MaxElapsed      time.Duration
	AgentUA         []string
	ScannerUA       []string
	BrowserUA       []string
	RequiredHeaders []string
}

var (
	defaultAgentUA = []string{
		`^python-requests/`, `^python-urllib/`, `^python-httpx/`, `^aiohttp/`,
		`^curl/`, `^wget/`, `^go-http-client/`, `^node-fetch`, `^axios/`, `^undici`,
		`^okhttp/`, `^java/`, `^apache-httpclient/`, `^libwww-perl/`, `^ruby`,
		`^langchain`, `^openai`, `^anthropic`, `^llama`, `^ollama`, `agent`,
	}
	defaultScannerUA = []string{
		`nmap`, `masscan`, `zgrab`, `nuclei`, `nikto`, `sqlmap`, `censys`,
		`shodan`, `expanse`, `internet-measurement`, `scanner`, `bot\b`, `spider`,
		`crawler`, `safebrowsing`, `urlscan`, `proofpoint`, `mimecast`, `barracuda`,
	}
	defaultBrowserUA = []string{
		`mozilla/5\.0`, `applewebkit`, `gecko/`, `chrome/`, `safari/`, `edg/`,
	}
)

func Load() *Config {
	dataDir := envOr("DATA_DIR", "./data")
	return &Config{
		ListenAddr:      envOr("LISTEN_ADDR", ":8080"),
		DataDir:         dataDir,
		BaseURL:         envOr("BASE_URL", "http://localhost:8080"),
		LogLevel:        envOr("LOG_LEVEL", "info"),
		LogFile:         envOr("LOG_FILE", ""),
		WorkerCount:     envIntOr("WORKER_COUNT", 4),
		ItemTimeout:     envDurationOr("ITEM_TIMEOUT", 30*time.Second),
		VerifyArtifacts: envBoolOr("VERIFY_ARTIFACTS", true),

		CallbackTimeout: envDurationOr("CALLBACK_TIMEOUT", 2*time.Second),
		RedisURL:        envOr("REDIS_URL", ""),
		SpoolKey:        envOr("SPOOL_KEY", "countersignal:spool"),
		RetryInterval:   envDurationOr("RETRY_INTERVAL", 250*time.Millisecond),
		DeadLetterPath:  envOr("DEAD_LETTER_PATH", dataDir+"/deadletter.jsonl"),

		OperatorKeyHash: envOr("OPERATOR_KEY_HASH", ""),
		AllowReset:      envBoolOr("ALLOW_RESET", false),

		WebhookURL:           envOr("WEBHOOK_URL", ""),
		WebhookSecret:        envOr("WEBHOOK_SECRET", ""),
		WebhookMinConfidence: envOr("WEBHOOK_MIN_CONFIDENCE", "HIGH"),

		SMTPHost:                envOr("SMTP_HOST", ""),
		SMTPPort:                envIntOr("SMTP_PORT", 587),
		SMTPUser:                envOr("SMTP_USER", ""),
		SMTPPass:                envOr("SMTP_PASS", ""),
		SMTPFrom:                envOr("SMTP_FROM", "countersignal@localhost"),
		AlertEmailTo:            envListOr("ALERT_EMAIL_TO", nil),
		AlertEmailMinConfidence: envOr("ALERT_EMAIL_MIN_CONFIDENCE", "HIGH"),

		RetentionDays:       envIntOr("REJECTED_RETENTION_DAYS", 30),
		CleanupIntervalMins: envIntOr("CLEANUP_INTERVAL_MINS", 60),
		MinFreeDiskPct:      envFloatOr("MIN_FREE_DISK_PCT", 2),

		Scoring: LoadScoring(),
	}
}

// LoadScoring reads the confidence policy, falling back to the reference
// thresholds.
func LoadScoring() Scoring {
	return Scoring{
		MinElapsed:      envDurationOr("SCORE_MIN_ELAPSED", time.Second),
		MaxElapsed:      envDurationOr("SCORE_MAX_ELAPSED", 24*time.Hour),
		AgentUA:         envListOr("SCORE_AGENT_UA", defaultAgentUA),
		ScannerUA:       envListOr("SCORE_SCANNER_UA", defaultScannerUA),
		BrowserUA:       envListOr("SCORE_BROWSER_UA", defaultBrowserUA),
		RequiredHeaders: envListOr("SCORE_REQUIRED_HEADERS", []string{"User-Agent"}),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envListOr splits a comma separated value. Patterns containing commas
// cannot be expressed this way.
func envListOr(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		out := make([]string, len(fallback))
		copy(out, fallback)
		return out
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
