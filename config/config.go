package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultOzonAlertCap bounds alerts from the Ozon source per pass
	DefaultOzonAlertCap = 3
	// DefaultAcceptBareRating allows a lone "4.8" in card text to count as a rating
	DefaultAcceptBareRating = true

	DefaultWildberriesURL = "https://www.wildberries.ru/catalog/0/search.aspx?search=%D0%BD%D0%BE%D1%83%D1%82%D0%B1%D1%83%D0%BA&sort=popular"
	DefaultOzonURL        = "https://www.ozon.ru/category/noutbuki-15692/?sorting=discount"
	DefaultYandexURL      = "https://market.yandex.ru/catalog--noutbuki/54544/list?local-offers-first=0&how=dpop"
)

// DefaultExcludedKeywords filters accessories out of laptop searches
var DefaultExcludedKeywords = []string{
	"чехол", "стекло", "пленка", "держатель", "кабель",
	"зарядка", "подставка", "аксессуар", "кронштейн", "сумка",
}

var (
	knownSources    = map[string]bool{"wildberries": true, "ozon": true, "yandex": true}
	knownStrategies = map[string]bool{"": true, "selector": true, "text": true}
	ledgerBackends  = map[string]bool{"file": true, "redis": true, "azure": true}
	pageDrivers     = map[string]bool{"chrome": true, "http": true}
)

// Selectors overrides the CSS selectors of a source preset
type Selectors struct {
	Container string `yaml:"container"`
	Link      string `yaml:"link"`
	Title     string `yaml:"title"`
	Price     string `yaml:"price"`
	OldPrice  string `yaml:"old_price"`
	Rating    string `yaml:"rating"`
	Reviews   string `yaml:"reviews"`
}

// SourceConfig describes one marketplace scan task. Empty fields fall back to
// the preset for Source.
type SourceConfig struct {
	Name         string    `yaml:"name"`
	Source       string    `yaml:"source"`
	Strategy     string    `yaml:"strategy"`
	URL          string    `yaml:"url"`
	BaseURL      string    `yaml:"base_url"`
	Selectors    Selectors `yaml:"selectors"`
	BlockMarkers []string  `yaml:"block_markers"`
	ScrollOffset *int      `yaml:"scroll_offset"`
	AlertCap     *int      `yaml:"alert_cap"`
	RequireHost  string    `yaml:"require_host"`
}

type sourcesFile struct {
	Sources []SourceConfig `yaml:"sources"`
}

// Config represents the application configuration
type Config struct {
	// Work budget and pacing
	WorkDuration time.Duration
	PassInterval time.Duration
	AlertDelay   time.Duration

	// Qualification criteria
	MinDiscount      int
	MinPrice         int
	MinRating        float64
	MinReviewCount   int
	ExcludedKeywords []string

	// Extraction heuristics
	OzonAlertCap     int
	AcceptBareRating bool

	// Telegram configuration
	TelegramToken   string
	TelegramChannel string
	TelegramAPIURL  string

	// Ledger configuration
	LedgerBackend         string
	HistoryFile           string
	LedgerLimit           int
	RedisLedgerKey        string
	AzureStorageAccount   string
	AzureConnectionString string
	AzureStorageContainer string
	AzureLedgerBlob       string

	// Redis configuration
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamCount     int
	RedisStreamMaxLength int64

	// Memcache configuration
	MemcacheAddr string
	BlockTime    int

	// Page source configuration
	PageDriver        string
	ChromeBin         string
	NavigationTimeout time.Duration
	PageSettle        time.Duration

	// Email configuration
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	AlertEmail   string

	StatusAddr  string
	SourcesFile string
	Sources     []SourceConfig

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() (*Config, error) {
	cfg := &Config{
		WorkDuration: time.Duration(getEnvInt("WORK_DURATION_MINUTES", 10)) * time.Minute,
		PassInterval: time.Duration(getEnvInt("PASS_INTERVAL_SECONDS", 120)) * time.Second,
		AlertDelay:   time.Duration(getEnvInt("ALERT_DELAY_MS", 1000)) * time.Millisecond,

		MinDiscount:      getEnvInt("MIN_DISCOUNT", 40),
		MinPrice:         getEnvInt("MIN_PRICE", 2000),
		MinRating:        getEnvFloat("MIN_RATING", 4.0),
		MinReviewCount:   getEnvInt("MIN_REVIEW_COUNT", 5),
		ExcludedKeywords: getEnvList("EXCLUDED_KEYWORDS", DefaultExcludedKeywords),

		OzonAlertCap:     getEnvInt("OZON_ALERT_CAP", DefaultOzonAlertCap),
		AcceptBareRating: getEnvBool("ACCEPT_BARE_RATING", DefaultAcceptBareRating),

		TelegramToken:   getEnv("TG_TOKEN", ""),
		TelegramChannel: getEnv("TG_CHANNEL", ""),
		TelegramAPIURL:  getEnv("TG_API_URL", "https://api.telegram.org"),

		LedgerBackend:         getEnv("LEDGER_BACKEND", "file"),
		HistoryFile:           getEnv("HISTORY_FILE", "shop_history.json"),
		LedgerLimit:           getEnvInt("LEDGER_LIMIT", 500),
		RedisLedgerKey:        getEnv("REDIS_LEDGER_KEY", "discount:ledger"),
		AzureStorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		AzureConnectionString: getEnv("AZURE_STORAGE_CONNECTION_STRING", ""),
		AzureStorageContainer: getEnv("AZURE_STORAGE_CONTAINER", ""),
		AzureLedgerBlob:       getEnv("AZURE_LEDGER_BLOB", "shop_history.json"),

		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		RedisStream:          getEnv("REDIS_STREAM", ""),
		RedisStreamCount:     getEnvInt("REDIS_STREAM_COUNT", 1),
		RedisStreamMaxLength: int64(getEnvInt("REDIS_STREAM_MAX_LENGTH", 1000)),

		MemcacheAddr: getEnv("MEMCACHE_ADDR", ""),
		BlockTime:    getEnvInt("BLOCK_TIME_SECONDS", 600),

		PageDriver:        getEnv("PAGE_DRIVER", "chrome"),
		ChromeBin:         getEnv("CHROME_BIN", ""),
		NavigationTimeout: time.Duration(getEnvInt("NAVIGATION_TIMEOUT_SECONDS", 60)) * time.Second,
		PageSettle:        time.Duration(getEnvInt("PAGE_SETTLE_SECONDS", 5)) * time.Second,

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),
		AlertEmail:   getEnv("ALERT_EMAIL", ""),

		StatusAddr:  getEnv("STATUS_ADDR", ""),
		SourcesFile: getEnv("SOURCES_FILE", ""),
		Environment: getEnv("WORKER_ENVIRONMENT", "development"),
	}

	if cfg.SourcesFile != "" {
		sources, err := LoadSources(cfg.SourcesFile)
		if err != nil {
			return nil, err
		}
		cfg.Sources = sources
	} else {
		cfg.Sources = DefaultSources()
	}

	return cfg, nil
}

// DefaultSources returns the three marketplace tasks. URLs may be overridden
// per source through the environment.
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{Source: "wildberries", URL: getEnv("WILDBERRIES_URL", DefaultWildberriesURL)},
		{Source: "ozon", URL: getEnv("OZON_URL", DefaultOzonURL)},
		{Source: "yandex", URL: getEnv("YANDEX_URL", DefaultYandexURL)},
	}
}

// LoadSources reads scan tasks from a YAML file
func LoadSources(path string) ([]SourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sources file %s: %w", path, err)
	}
	if len(file.Sources) == 0 {
		return nil, fmt.Errorf("sources file %s defines no sources", path)
	}

	return file.Sources, nil
}

// Validate reports the first setting the worker cannot run with
func (c *Config) Validate() error {
	switch {
	case c.WorkDuration <= 0:
		return fmt.Errorf("WORK_DURATION_MINUTES must be positive")
	case c.PassInterval < 0:
		return fmt.Errorf("PASS_INTERVAL_SECONDS must not be negative")
	case c.AlertDelay < 0:
		return fmt.Errorf("ALERT_DELAY_MS must not be negative")
	case c.MinDiscount < 0 || c.MinDiscount > 100:
		return fmt.Errorf("MIN_DISCOUNT must be within 0..100, got %d", c.MinDiscount)
	case c.MinPrice < 0:
		return fmt.Errorf("MIN_PRICE must not be negative")
	case c.MinRating < 0 || c.MinRating > 5:
		return fmt.Errorf("MIN_RATING must be within 0..5, got %g", c.MinRating)
	case c.LedgerLimit <= 0:
		return fmt.Errorf("LEDGER_LIMIT must be positive")
	case !ledgerBackends[c.LedgerBackend]:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", c.LedgerBackend)
	case c.LedgerBackend == "azure" && c.AzureStorageAccount == "" && c.AzureConnectionString == "":
		return fmt.Errorf("LEDGER_BACKEND=azure requires AZURE_STORAGE_ACCOUNT or AZURE_STORAGE_CONNECTION_STRING")
	case c.LedgerBackend == "azure" && c.AzureStorageContainer == "":
		return fmt.Errorf("LEDGER_BACKEND=azure requires AZURE_STORAGE_CONTAINER")
	case !pageDrivers[c.PageDriver]:
		return fmt.Errorf("unknown PAGE_DRIVER %q", c.PageDriver)
	case c.RedisStream != "" && c.RedisStreamCount <= 0:
		return fmt.Errorf("REDIS_STREAM_COUNT must be positive")
	case len(c.Sources) == 0:
		return fmt.Errorf("no sources configured")
	}

	for i, s := range c.Sources {
		if !knownSources[s.Source] {
			return fmt.Errorf("source %d: unknown source %q", i, s.Source)
		}
		if !knownStrategies[s.Strategy] {
			return fmt.Errorf("source %d: unknown strategy %q", i, s.Strategy)
		}
		if s.URL == "" {
			return fmt.Errorf("source %d (%s): url is required", i, s.Source)
		}
	}

	return nil
}

// TelegramEnabled reports whether alerts can be posted to Telegram
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChannel != ""
}

// EmailEnabled reports whether alert copies should be mailed
func (c *Config) EmailEnabled() bool {
	return c.SMTPHost != "" && c.AlertEmail != ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvList splits a comma separated variable, dropping empty items
func getEnvList(key string, defaultValue []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
