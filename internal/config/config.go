package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig identifies the running process in logs.
type AppConfig struct {
	Name        string
	Environment string
	Version     string
}

// LoggingConfig controls the zerolog root logger.
type LoggingConfig struct {
	Level    string // debug | info | warn | error
	Format   string // json | console
	Output   string // stdout | stderr | file
	FilePath string // required when Output is file
}

// DBConfig selects and addresses the SQL database. Driver is "mysql" in
// production; "sqlite3" keeps a single-file database for local runs.
type DBConfig struct {
	Driver string
	User   string
	Pass   string
	Host   string
	Port   string
	Name   string
	Path   string // sqlite3 file path
}

// BookingConfig holds pricing and lifecycle knobs.
type BookingConfig struct {
	TaxPercent     int           // percent applied to the subtotal
	Currency       string        // ISO code stamped on new bookings
	NoShowGrace    time.Duration // how long after start a booking without entry becomes a no-show
	SweepInterval  time.Duration // how often the no-show sweeper runs
	PublishTimeout time.Duration // how long a committed write waits on the event broker
}

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable.
type Config struct {
	App            AppConfig
	Port           string // HTTP port to listen on
	DB             DBConfig
	JWTSecret      string // secret used to sign JWTs
	AccessTTLMin   int    // access token time-to-live in minutes
	RefreshTTLDays int    // refresh token time-to-live in days
	BcryptCost     int    // bcrypt cost for password hashing
	Booking        BookingConfig
	Logging        LoggingConfig
	RabbitURL      string // empty disables event publishing
	TelegramToken  string // empty disables telegram notifications
	AdminEmail     string // bootstrap admin account, optional
	AdminPassword  string
}

// Load reads configuration from the environment, first merging a .env file
// when one exists. Missing required variables are reported together.
func Load() (Config, error) {
	_ = godotenv.Load()

	var l loader
	cfg := Config{
		App: AppConfig{
			Name:        envStr("APP_NAME", "parking-lot-reservation"),
			Environment: l.must("APP_ENV"),
			Version:     envStr("APP_VERSION", "dev"),
		},
		Port: l.must("APP_PORT"),
		DB: DBConfig{
			Driver: strings.ToLower(envStr("DB_DRIVER", "mysql")),
			Pass:   os.Getenv("DB_PASS"),
			Path:   envStr("DB_PATH", "parking.db"),
		},
		JWTSecret:      l.must("JWT_SECRET"),
		AccessTTLMin:   l.mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays: l.mustInt("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCost:     envInt("BCRYPT_COST", 10),
		Booking: BookingConfig{
			TaxPercent:     envInt("TAX_RATE_PERCENT", 18),
			Currency:       strings.ToUpper(envStr("CURRENCY", "INR")),
			NoShowGrace:    envDur("NO_SHOW_GRACE", 30*time.Minute),
			SweepInterval:  envDur("SWEEP_INTERVAL", time.Minute),
			PublishTimeout: envDur("EVENT_PUBLISH_TIMEOUT", 3*time.Second),
		},
		Logging: LoggingConfig{
			Level:    envStr("LOG_LEVEL", "info"),
			Format:   envStr("LOG_FORMAT", "json"),
			Output:   envStr("LOG_OUTPUT", "stdout"),
			FilePath: os.Getenv("LOG_FILE"),
		},
		RabbitURL:     firstEnv("RABBITMQ_URL", "AMQP_URL"),
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		AdminEmail:    strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL"))),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}
	if cfg.DB.Driver == "mysql" {
		cfg.DB.User = l.must("DB_USER")
		cfg.DB.Host = l.must("DB_HOST")
		cfg.DB.Port = l.must("DB_PORT")
		cfg.DB.Name = l.must("DB_NAME")
	}
	if err := l.err(); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.DB.Driver {
	case "mysql", "sqlite3":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	if len(c.Booking.Currency) != 3 {
		return fmt.Errorf("CURRENCY must be a 3-letter code, got %q", c.Booking.Currency)
	}
	if c.Booking.TaxPercent < 0 || c.Booking.TaxPercent > 100 {
		return fmt.Errorf("TAX_RATE_PERCENT out of range: %d", c.Booking.TaxPercent)
	}
	if c.AccessTTLMin <= 0 || c.RefreshTTLDays <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.AdminEmail != "" && c.AdminPassword == "" {
		return errors.New("ADMIN_PASSWORD is required when ADMIN_EMAIL is set")
	}
	return nil
}

// loader accumulates missing or malformed required variables.
type loader struct {
	missing []string
}

// must retrieves the value of a required environment variable.
func (l *loader) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		l.missing = append(l.missing, key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
func (l *loader) mustInt(key string) int {
	s := l.must(key)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		l.missing = append(l.missing, fmt.Sprintf("%s (invalid int %q)", key, s))
	}
	return n
}

func (l *loader) err() error {
	if len(l.missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required env vars: %s", strings.Join(l.missing, ", "))
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
