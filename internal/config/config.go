package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Cadence selects the publication policy. The two policies use different slug
// schemes and retention rules and are never mixed: mixing would break the
// sort-by-recency ordering of the cards directory.
type Cadence string

const (
	CadenceWeekly Cadence = "weekly" // one card per ISO week, published on RunWeekday
	CadenceDaily  Cadence = "daily"  // one card per run, published every weekday
)

// Config holds all application configuration
type Config struct {
	Port string

	// Target GitHub Pages repository (the content store)
	GitHubOwner string
	GitHubRepo  string
	Branch      string
	GitHubToken string
	SiteURL     string

	// Publication policy
	Cadence      Cadence
	MaxFeedItems int

	// Schedule
	LocalTZ         string
	RunHour         int
	RunMinute       int
	RunWeekday      time.Weekday // weekly cadence only
	RunCron         string       // optional cron override, evaluated in LocalTZ
	RunCatchUp      bool
	EnableScheduler bool
	RetryCooldown   time.Duration

	// Perplexity research call (optional; fallback items used when unset)
	PPLXAPIKey string
	PPLXModel  string

	// Card template override (embedded default used when empty)
	CardTemplatePath string
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	owner := getEnv("GITHUB_OWNER", "noptus")
	repo := getEnv("GITHUB_REPO", "btp4ai-wire")

	cadence := CadenceWeekly
	if strings.EqualFold(getEnv("CADENCE", "weekly"), string(CadenceDaily)) {
		cadence = CadenceDaily
	}

	return &Config{
		Port: getEnv("PORT", "8080"),

		GitHubOwner: owner,
		GitHubRepo:  repo,
		Branch:      getEnv("BRANCH", "main"),
		GitHubToken: getEnv("GITHUB_TOKEN", ""),
		SiteURL:     getEnv("SITE_URL", fmt.Sprintf("https://%s.github.io/%s", owner, repo)),

		Cadence:      cadence,
		MaxFeedItems: getIntEnv("MAX_FEED_ITEMS", 10),

		LocalTZ:         getEnv("LOCAL_TZ", "Europe/Paris"),
		RunHour:         getIntEnv("RUN_HOUR", 8),
		RunMinute:       getIntEnv("RUN_MINUTE", 50),
		RunWeekday:      time.Weekday(getIntEnv("RUN_WEEKDAY", 1)), // 1 = Monday
		RunCron:         getEnv("RUN_CRON", ""),
		RunCatchUp:      getBoolEnv("RUN_CATCH_UP", false),
		EnableScheduler: getBoolEnv("ENABLE_SCHEDULER", true),
		RetryCooldown:   time.Duration(getIntEnv("RETRY_COOLDOWN_SECONDS", 600)) * time.Second,

		PPLXAPIKey: getEnv("PPLX_API_KEY", ""),
		PPLXModel:  getEnv("PPLX_MODEL", "sonar"),

		CardTemplatePath: getEnv("CARD_TEMPLATE_PATH", ""),
	}
}

// Location resolves the configured local timezone. Falls back to UTC if the
// name is unknown so the scheduler never crashes on a bad env var.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.LocalTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RunTime returns the configured time of day as "HH:MM".
func (c *Config) RunTime() string {
	return fmt.Sprintf("%02d:%02d", c.RunHour, c.RunMinute)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
