package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"flight-scraper/models"
)

const dateLayout = "2006-01-02"

// Resume policies for partially covered routes.
const (
	ResumeFromLastCovered = "resume"
	RescanFromZero        = "rescan"
)

// Completion rules deciding when a route's stored day count means "done".
const (
	CompletionExact   = "exact"
	CompletionAtLeast = "at-least"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// DefaultAirports is the code set the original backfill ran against.
var DefaultAirports = []string{
	"ATL", "LAX", "ORD", "DFW", "DEN", "JFK", "SFO", "LAS", "PHX", "IAH",
	"CLT", "MCO", "SEA", "MIA", "FLL", "EWR", "MSP", "BOS", "DTW", "PHL",
	"LGA", "BWI", "SLC", "SAN", "DCA", "TPA", "IAD", "MDW", "HNL", "PDX",
	"SJC", "DAL", "MSY", "STL", "OAK", "SMF", "BNA",
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Environment string
	LogLevel    string

	DBDriver         string
	SQLitePath       string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	Airports            []string
	TripType            models.TripType
	StartDate           time.Time
	NumDays             int
	IncludeReversePairs bool
	ResumePolicy        string
	CompletionRule      string
	EnforceUnique       bool
	RecordEmptyDays     bool
	DBBatchSize         int

	MaxConcurrency  int
	RateLimitMs     int
	MaxRetries      int
	MaxRouteRetries int
	RetryBaseDelay  time.Duration

	SearchURL    string
	ChromeBin    string
	Headless     bool
	PageTimeout  time.Duration
	ReadyTimeout time.Duration

	CSVOutputPath string
	MetricsAddr   string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		Environment: getEnv("APP_ENV", "production"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		DBDriver:         strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		SQLitePath:       getEnv("SQLITE_PATH", "./airline.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "scraper"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "scraper123"),
		PostgresDB:       getEnv("POSTGRES_DB", "airline_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		Airports:            getEnvList("AIRPORTS", DefaultAirports),
		TripType:            models.TripType(strings.ToLower(getEnv("TRIP_TYPE", string(models.OneWay)))),
		StartDate:           getEnvDate("START_DATE", time.Now().AddDate(0, 0, 1)),
		NumDays:             getEnvInt("NUM_DAYS", 7),
		IncludeReversePairs: getEnvBool("INCLUDE_REVERSE_PAIRS", true),
		ResumePolicy:        strings.ToLower(getEnv("RESUME_POLICY", ResumeFromLastCovered)),
		CompletionRule:      strings.ToLower(getEnv("COMPLETION_RULE", CompletionExact)),
		EnforceUnique:       getEnvBool("ENFORCE_UNIQUE_FLIGHTS", false),
		RecordEmptyDays:     getEnvBool("RECORD_EMPTY_DAYS", true),
		DBBatchSize:         getEnvInt("DB_BATCH_SIZE", 50),

		MaxConcurrency:  getEnvInt("MAX_CONCURRENCY", 4),
		RateLimitMs:     getEnvInt("RATE_LIMIT_MS", 500),
		MaxRetries:      getEnvInt("MAX_RETRIES", 3),
		MaxRouteRetries: getEnvInt("MAX_ROUTE_RETRIES", 3),
		RetryBaseDelay:  time.Duration(getEnvInt("RETRY_BASE_DELAY_MS", 2000)) * time.Millisecond,

		SearchURL:    getEnv("SEARCH_URL", "https://www.google.com/travel/flights"),
		ChromeBin:    getEnv("CHROME_BIN", ""),
		Headless:     getEnvBool("HEADLESS", true),
		PageTimeout:  time.Duration(getEnvInt("PAGE_TIMEOUT_SEC", 50)) * time.Second,
		ReadyTimeout: time.Duration(getEnvInt("READY_TIMEOUT_SEC", 15)) * time.Second,

		CSVOutputPath: getEnv("CSV_OUTPUT_PATH", ""),
		MetricsAddr:   getEnv("METRICS_ADDR", ""),
	}
}

// Validate reports the first configuration value the scraper cannot run with.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverPostgres, DriverPgx, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("config: unsupported DB_DRIVER %q", c.DBDriver)
	}
	if !c.TripType.Valid() {
		return fmt.Errorf("config: unsupported TRIP_TYPE %q", c.TripType)
	}
	if len(c.Airports) < 2 {
		return fmt.Errorf("config: AIRPORTS needs at least two codes, got %d", len(c.Airports))
	}
	if c.NumDays < 1 {
		return fmt.Errorf("config: NUM_DAYS must be positive, got %d", c.NumDays)
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("config: MAX_CONCURRENCY must be positive, got %d", c.MaxConcurrency)
	}
	if c.DBBatchSize < 1 {
		return fmt.Errorf("config: DB_BATCH_SIZE must be positive, got %d", c.DBBatchSize)
	}
	if c.MaxRetries < 1 || c.MaxRouteRetries < 1 {
		return fmt.Errorf("config: MAX_RETRIES and MAX_ROUTE_RETRIES must be positive")
	}
	switch c.ResumePolicy {
	case ResumeFromLastCovered, RescanFromZero:
	default:
		return fmt.Errorf("config: unsupported RESUME_POLICY %q", c.ResumePolicy)
	}
	switch c.CompletionRule {
	case CompletionExact, CompletionAtLeast:
	default:
		return fmt.Errorf("config: unsupported COMPLETION_RULE %q", c.CompletionRule)
	}
	return nil
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.DBDriver == DriverSQLite {
		return c.SQLitePath
	}
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// ParseDate parses a YYYY-MM-DD start date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, strings.TrimSpace(s))
}

// SplitList splits a comma separated list, trimming blanks and upper-casing codes.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
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

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	if val := os.Getenv(key); val != "" {
		if list := SplitList(val); len(list) > 0 {
			return list
		}
	}
	return fallback
}

func getEnvDate(key string, fallback time.Time) time.Time {
	if val := os.Getenv(key); val != "" {
		t, err := ParseDate(val)
		if err == nil {
			return t
		}
		log.Printf("[config] Ignoring %s=%q: %v", key, val, err)
	}
	y, m, d := fallback.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
