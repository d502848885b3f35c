package cfg

import "time"

type Cfg struct {
	// Database configuration
	DBDriver    string
	DatabaseURL string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string

	DBConnectTimeout time.Duration

	// Ingestion configuration
	FeedsDir           string
	FeedURLs           []string
	IngestInterval     time.Duration
	MaxConcurrentFeeds int

	// Enrichment configuration
	Fetcher          string
	ChromeURL        string
	FetchTimeout     time.Duration
	Cooldown         time.Duration
	MaxFetchFailures int
	HostRateInterval time.Duration

	// Application configuration
	Port      string
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	FetcherHTTP    = "http"
	FetcherBrowser = "browser"
	FetcherNone    = "none"
)
