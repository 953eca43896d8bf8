package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Tables    TablesConfig
	Retry     RetryConfig
	Pacing    PacingConfig
	HTTP      HTTPConfig
	Postgres  PostgresConfig
	S3        S3Config
	Scheduler SchedulerConfig
	Search    *SearchConfig

	DBPath      string
	LogFile     string
	MetricsAddr string
}

type TablesConfig struct {
	Discovery string
	Enriched  string
}

type RetryConfig struct {
	MaxAttempts int // 0 retries forever
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

type PacingConfig struct {
	PageDelayMin time.Duration
	PageDelayMax time.Duration
	RecordDelay  time.Duration
}

type HTTPConfig struct {
	Timeout       time.Duration
	DetailTimeout time.Duration
	ProxyURL      string
}

type PostgresConfig struct {
	DSN string
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

// SearchConfig is the search criteria and endpoint set, read from SEARCH_CONFIG.
type SearchConfig struct {
	BaseURL        string     `yaml:"base_url"`
	SiteURL        string     `yaml:"site_url"`
	SearchPath     string     `yaml:"search_path"`
	DetailPath     string     `yaml:"detail_path"`
	FeatureFlags   string     `yaml:"feature_flags"`
	DetailChannel  string     `yaml:"detail_channel"`
	Channel        string     `yaml:"channel"`
	Localities     []Locality `yaml:"localities"`
	WithinRadius   string     `yaml:"within_radius"`
	SurroundingSub bool       `yaml:"surrounding_suburbs"`
	SortOrder      string     `yaml:"sort_order"`
	PageSize       int        `yaml:"page_size"`
}

type Locality struct {
	Locality    string `yaml:"locality"`
	Subdivision string `yaml:"subdivision"`
	Postcode    string `yaml:"postcode,omitempty"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Tables: TablesConfig{
			Discovery: getEnv("DISCOVERY_TABLE", "real_estate_listings.csv"),
			Enriched:  getEnv("ENRICHED_TABLE", "detailed_listings.csv"),
		},
		Retry: RetryConfig{
			MaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 5),
			BaseDelay:   getEnvDuration("RETRY_BASE_DELAY", 30*time.Second),
			MaxDelay:    getEnvDuration("RETRY_MAX_DELAY", 5*time.Minute),
		},
		Pacing: PacingConfig{
			PageDelayMin: getEnvDuration("PAGE_DELAY_MIN", 10*time.Second),
			PageDelayMax: getEnvDuration("PAGE_DELAY_MAX", 15*time.Second),
			RecordDelay:  getEnvDuration("RECORD_DELAY", 5*time.Second),
		},
		HTTP: HTTPConfig{
			Timeout:       getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
			DetailTimeout: getEnvDuration("DETAIL_TIMEOUT", 10*time.Second),
			ProxyURL:      os.Getenv("PROXY_URL"),
		},
		Postgres: PostgresConfig{
			DSN: os.Getenv("PG_DSN"),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "ap-southeast-2"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			Prefix:          getEnv("S3_PREFIX", "harvester/"),
		},
		Scheduler: SchedulerConfig{
			Cron: os.Getenv("SCRAPE_CRON"),
		},
		DBPath:      getEnv("DB_PATH", "harvester.db"),
		LogFile:     getEnv("LOG_FILE", "harvester.log"),
		MetricsAddr: os.Getenv("METRICS_ADDR"),
	}

	if interval := os.Getenv("SCRAPE_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err == nil {
			cfg.Scheduler.Interval = d
		}
	}

	search, err := LoadSearch(getEnv("SEARCH_CONFIG", "config/search.yaml"))
	if err != nil {
		return nil, err
	}
	cfg.Search = search

	return cfg, nil
}

// LoadSearch reads the search file over the built-in defaults. A missing file
// leaves the defaults in place.
func LoadSearch(path string) (*SearchConfig, error) {
	search := DefaultSearch()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return search, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, search); err != nil {
		return nil, err
	}
	if search.PageSize <= 0 {
		search.PageSize = 100
	}
	return search, nil
}

func DefaultSearch() *SearchConfig {
	return &SearchConfig{
		BaseURL:        "https://api.realcommercial.com.au",
		SiteURL:        "https://www.realcommercial.com.au",
		SearchPath:     "/listing-ui/searches",
		DetailPath:     "/listing-ui/listings/",
		FeatureFlags:   "showSoldDisclaimer,lsapiLocations",
		DetailChannel:  "for-sale",
		Channel:        "buy",
		WithinRadius:   "includesurrounding",
		SurroundingSub: true,
		SortOrder:      "listing-date-newest-first",
		PageSize:       100,
		Localities: []Locality{
			{Locality: "canterbury bankstown", Subdivision: "nsw"},
			{Locality: "eastern suburbs", Subdivision: "nsw"},
			{Locality: "inner west", Subdivision: "nsw"},
			{Locality: "liverpool greater region", Subdivision: "nsw"},
			{Locality: "lower north shore", Subdivision: "nsw"},
			{Locality: "macarthur region", Subdivision: "nsw"},
			{Locality: "northern beaches", Subdivision: "nsw"},
			{Locality: "parramatta greater region", Subdivision: "nsw"},
			{Locality: "penrith greater region", Subdivision: "nsw"},
			{Locality: "south western sydney", Subdivision: "nsw"},
			{Locality: "st george", Subdivision: "nsw"},
			{Locality: "sutherland shire", Subdivision: "nsw"},
			{Locality: "the hills", Subdivision: "nsw"},
			{Locality: "upper north shore", Subdivision: "nsw"},
			{Locality: "western sydney", Subdivision: "nsw"},
			{Locality: "sydney cbd", Subdivision: "nsw"},
			{Locality: "sydney", Subdivision: "nsw", Postcode: "2000"},
		},
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
