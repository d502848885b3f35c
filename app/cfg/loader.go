package cfg

import (
	"cmp"
	"fmt"
	"net/url"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/samber/lo"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBDriver    string `long:"db-driver" env:"DB_DRIVER" default:"postgres" choice:"postgres" choice:"sqlite" description:"Database driver"`
	DatabaseURL string `long:"database-url" env:"DATABASE_URL" description:"Database connection string (overrides the individual DB settings)"`
	DBHost      string `long:"db-host" env:"DB_HOST" default:"localhost" description:"Database host"`
	DBPort      string `long:"db-port" env:"DB_PORT" default:"5432" description:"Database port"`
	DBUser      string `long:"db-user" env:"DB_USER" default:"feeds" description:"Database user"`
	DBPassword  string `long:"db-password" env:"DB_PASSWORD" default:"feeds" description:"Database password"`
	DBName      string `long:"db-name" env:"DB_NAME" default:"feed_archiver" description:"Database name"`

	DBConnectTimeout time.Duration `long:"db-connect-timeout" env:"DB_CONNECT_TIMEOUT" default:"1m" description:"How long to keep retrying the initial database connection"`

	// Ingestion configuration
	FeedsDir           string        `long:"feeds-dir" env:"FEEDS_DIR" default:"./feeds" description:"Directory containing feed configuration files"`
	FeedURLs           []string      `long:"feed-url" env:"FEED_URLS" env-delim:"," description:"Additional feed URL to poll (repeatable)"`
	IngestInterval     time.Duration `long:"ingest-interval" env:"INGEST_INTERVAL" default:"30m" description:"Pause between two ingestion cycles"`
	MaxConcurrentFeeds int           `long:"max-concurrent-feeds" env:"MAX_CONCURRENT_FEEDS" default:"0" description:"Maximum feeds processed at once (0 = one task per feed)"`

	// Enrichment configuration
	Fetcher          string        `long:"fetcher" env:"FETCHER" default:"http" choice:"http" choice:"browser" choice:"none" description:"Live content fetcher"`
	ChromeURL        string        `long:"chrome-url" env:"CHROME_WS_URL" default:"ws://chrome:9222" description:"Remote Chrome DevTools endpoint for the browser fetcher"`
	FetchTimeout     time.Duration `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"30s" description:"Timeout for a single live content fetch"`
	Cooldown         time.Duration `long:"cooldown" env:"FETCH_COOLDOWN" default:"24h" description:"Minimum time between two live fetches of the same entry"`
	MaxFetchFailures int           `long:"max-fetch-failures" env:"MAX_FETCH_FAILURES" default:"10" description:"Disable enrichment of an entry after this many consecutive failures (0 = never)"`
	HostRateInterval time.Duration `long:"host-rate-interval" env:"HOST_RATE_INTERVAL" default:"1s" description:"Minimum interval between live fetches to the same host"`

	// Application configuration
	Port      string `long:"port" env:"PORT" default:"8080" description:"HTTP server port for health and metrics"`
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Feed Archiver/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	return LoadArgs(nil)
}

// LoadArgs parses the given arguments (os.Args when nil) and the environment.
// It returns nil, nil when help was requested.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBDriver:           raw.DBDriver,
		DatabaseURL:        raw.DatabaseURL,
		DBHost:             raw.DBHost,
		DBPort:             raw.DBPort,
		DBUser:             raw.DBUser,
		DBPassword:         raw.DBPassword,
		DBName:             raw.DBName,
		DBConnectTimeout:   raw.DBConnectTimeout,
		FeedsDir:           raw.FeedsDir,
		FeedURLs:           lo.Compact(lo.Uniq(raw.FeedURLs)),
		IngestInterval:     raw.IngestInterval,
		MaxConcurrentFeeds: raw.MaxConcurrentFeeds,
		Fetcher:            raw.Fetcher,
		ChromeURL:          raw.ChromeURL,
		FetchTimeout:       raw.FetchTimeout,
		Cooldown:           raw.Cooldown,
		MaxFetchFailures:   raw.MaxFetchFailures,
		HostRateInterval:   raw.HostRateInterval,
		Port:               raw.Port,
		UserAgent:          raw.UserAgent,
		Timezone:           raw.Timezone,
		Debug:              raw.Debug,
		Version:            GetVersion(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// DSN returns the connection string for the configured driver.
func (c *Cfg) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	if c.DBDriver == DriverSQLite {
		return c.DBName + ".db"
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func (c *Cfg) validate() error {
	if c.IngestInterval <= 0 {
		return fmt.Errorf("ingest interval must be positive")
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("cooldown must be non-negative")
	}
	if c.MaxFetchFailures < 0 {
		return fmt.Errorf("max fetch failures must be non-negative")
	}
	if c.MaxConcurrentFeeds < 0 {
		return fmt.Errorf("max concurrent feeds must be non-negative")
	}
	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
