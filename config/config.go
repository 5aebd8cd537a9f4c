package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string `validate:"required"`
	PostgresPort     string `validate:"required,numeric"`
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string `validate:"required"`
	PostgresSSLMode  string `validate:"oneof=disable require verify-ca verify-full"`
	PriceTable       string `validate:"required"`

	MaxConcurrency int `validate:"gte=1"`
	RateLimitMs    int `validate:"gte=0"`
	MaxRetries     int `validate:"gte=1"`
	DBChunkSize    int `validate:"gte=1"`
	EntityIDs      []string

	LogLevel  string
	LogFormat string `validate:"oneof=console json"`

	CacheDir    string `validate:"required"`
	OutputDir   string `validate:"required"`
	ChartSample int    `validate:"gte=0"`
	RenderPDF   bool
	ChromeBin   string

	WebAddr        string `validate:"required"`
	RunHistorySize int    `validate:"gte=1"`

	AnalysisFile string
	Analysis     Analysis
}

// Analysis holds the calendar bounds, multipliers and window widths used by
// the extrapolation, matching and pattern steps.
type Analysis struct {
	Cutoff       time.Time `yaml:"cutoff" validate:"required"`
	WindowStart  time.Time `yaml:"window_start" validate:"required"`
	WindowEnd    time.Time `yaml:"window_end" validate:"required,gtefield=WindowStart"`
	PastBoundary time.Time `yaml:"past_boundary" validate:"required"`

	DiscountFactor float64 `yaml:"discount_factor" validate:"gt=0"`
	UpliftFactor   float64 `yaml:"uplift_factor" validate:"gt=0"`

	DOWSearchDays         int `yaml:"dow_search_days" validate:"gte=0"`
	EventWindowDays       int `yaml:"event_window_days" validate:"gte=0"`
	WeekdayWindowDays     int `yaml:"weekday_window_days" validate:"gte=0"`
	WideWeekdayWindowDays int `yaml:"wide_weekday_window_days" validate:"gtefield=WeekdayWindowDays"`
	ClosestWindowDays     int `yaml:"closest_window_days" validate:"gte=0"`

	EventThreshold    float64 `yaml:"event_threshold"`
	EventTolerance    float64 `yaml:"event_tolerance" validate:"gte=0"`
	LowEventThreshold float64 `yaml:"low_event_threshold"`

	PeakSeasonIndex   float64 `yaml:"peak_season_index" validate:"gt=0"`
	LowSeasonIndex    float64 `yaml:"low_season_index" validate:"gt=0,ltefield=PeakSeasonIndex"`
	HighPriceQuantile float64 `yaml:"high_price_quantile" validate:"gte=0,lte=1"`
}

// DefaultAnalysis returns the reference parameter set.
func DefaultAnalysis() Analysis {
	return Analysis{
		Cutoff:       time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		WindowStart:  time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		WindowEnd:    time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC),
		PastBoundary: time.Date(2025, time.April, 21, 0, 0, 0, 0, time.UTC),

		DiscountFactor: 0.97,
		UpliftFactor:   1.03,

		DOWSearchDays:         14,
		EventWindowDays:       14,
		WeekdayWindowDays:     14,
		WideWeekdayWindowDays: 21,
		ClosestWindowDays:     14,

		EventThreshold:    1,
		EventTolerance:    20,
		LowEventThreshold: 10,

		PeakSeasonIndex:   1.10,
		LowSeasonIndex:    0.90,
		HighPriceQuantile: 0.90,
	}
}

// Load reads the .env file and returns a populated, validated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "pricing"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "pricing123"),
		PostgresDB:       getEnv("POSTGRES_DB", "rental_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PriceTable:       getEnv("PRICE_TABLE", "nightly_prices"),

		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 4),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 0),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		DBChunkSize:    getEnvInt("DB_CHUNK_SIZE", 25),
		EntityIDs:      getEnvList("ENTITY_IDS"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		CacheDir:    getEnv("CACHE_DIR", "./data"),
		OutputDir:   getEnv("OUTPUT_DIR", "./output"),
		ChartSample: getEnvInt("CHART_SAMPLE", 5),
		RenderPDF:   getEnvBool("RENDER_PDF", false),
		ChromeBin:   getEnv("CHROME_BIN", ""),

		WebAddr:        getEnv("WEB_ADDR", ":8080"),
		RunHistorySize: getEnvInt("RUN_HISTORY_SIZE", 16),

		AnalysisFile: getEnv("ANALYSIS_CONFIG", ""),
	}

	a := DefaultAnalysis()
	a.Cutoff = getEnvDate("EXTRAPOLATION_CUTOFF", a.Cutoff)
	a.WindowStart = getEnvDate("FORECAST_WINDOW_START", a.WindowStart)
	a.WindowEnd = getEnvDate("FORECAST_WINDOW_END", a.WindowEnd)
	a.PastBoundary = getEnvDate("PAST_BOUNDARY", a.PastBoundary)
	a.DiscountFactor = getEnvFloat("DISCOUNT_FACTOR", a.DiscountFactor)
	a.UpliftFactor = getEnvFloat("UPLIFT_FACTOR", a.UpliftFactor)
	cfg.Analysis = a

	if cfg.AnalysisFile != "" {
		if err := LoadAnalysisFile(cfg.AnalysisFile, &cfg.Analysis); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadAnalysisFile overlays the parameters found in a YAML file onto a.
// Keys missing from the file keep their current values.
func LoadAnalysisFile(path string, a *Analysis) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read analysis file: %w", err)
	}
	if err := yaml.Unmarshal(data, a); err != nil {
		return fmt.Errorf("config: parse analysis file %s: %w", path, err)
	}
	a.normalize()
	return nil
}

// normalize strips clock and zone from the calendar bounds.
func (a *Analysis) normalize() {
	for _, t := range []*time.Time{&a.Cutoff, &a.WindowStart, &a.WindowEnd, &a.PastBoundary} {
		y, m, d := t.Date()
		*t = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
}

// Validate checks field constraints and the cross-field calendar rules.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config: invalid configuration: %w", err)
	}
	if c.Analysis.PastBoundary.After(c.Analysis.WindowEnd) {
		return fmt.Errorf("config: past boundary %s is after window end %s",
			c.Analysis.PastBoundary.Format(dateLayout), c.Analysis.WindowEnd.Format(dateLayout))
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDate(key string, fallback time.Time) time.Time {
	if val := os.Getenv(key); val != "" {
		t, err := time.Parse(dateLayout, val)
		if err == nil {
			return t
		}
		log.Printf("[config] Ignoring %s=%q: expected YYYY-MM-DD", key, val)
	}
	return fallback
}

func getEnvList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
