package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

const (
	CommandServe   = "serve"
	CommandParse   = "parse"
	CommandRefresh = "refresh"
	CommandMigrate = "migrate"
)

type rawCfg struct {
	// Storage
	DBPath   string `long:"db-path" env:"DB_PATH" default:"./data/feeds.db" description:"SQLite database file"`
	FeedsDir string `long:"feeds-dir" env:"FEEDS_DIR" default:"./feeds" description:"Directory containing subscription files (*.yml)"`

	// Scheduler
	TickInterval    time.Duration `long:"tick-interval" env:"TICK_INTERVAL" default:"1m" description:"How often due feeds are selected"`
	RefreshInterval time.Duration `long:"refresh-interval" env:"REFRESH_INTERVAL" default:"15m" description:"Minimum time between refreshes of one feed"`
	MaxConcurrent   int           `long:"max-concurrent" env:"MAX_CONCURRENT" default:"5" description:"Maximum feeds refreshed in parallel"`
	FetchTimeout    time.Duration `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"30s" description:"Per-feed fetch timeout"`
	StorageTimeout  time.Duration `long:"storage-timeout" env:"STORAGE_TIMEOUT" default:"10s" description:"Per-call storage timeout"`
	StorageRetries  int           `long:"storage-retries" env:"STORAGE_RETRIES" default:"3" description:"Attempts for transient storage failures"`
	PruneSchedule   string        `long:"prune-schedule" env:"PRUNE_SCHEDULE" default:"0 2 * * *" description:"Cron schedule for pruning old items and logs (empty disables)"`
	Retention       time.Duration `long:"retention" env:"RETENTION" default:"2160h" description:"Age after which items and logs are pruned"`

	// Optional integrations
	RedisAddr    string        `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for caching ad-hoc parses (optional)"`
	CacheTTL     time.Duration `long:"cache-ttl" env:"CACHE_TTL" default:"10m" description:"Ad-hoc parse cache TTL"`
	KafkaBrokers []string      `long:"kafka-broker" env:"KAFKA_BROKERS" env-delim:"," description:"Kafka brokers for refresh events (optional)"`
	KafkaTopic   string        `long:"kafka-topic" env:"KAFKA_TOPIC" default:"feed-refreshes" description:"Kafka topic for refresh events"`

	// HTTP
	Port      string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseURL   string `long:"base-url" env:"BASE_URL" description:"Public base URL used for RSS self links (defaults to the request host)"`
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"feed-ingest/1.0" description:"User agent string for HTTP requests"`

	// Application metadata
	LogFile  string `long:"log-file" env:"LOG_FILE" description:"Also write logs to this rotating file"`
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`

	Args struct {
		Command string `positional-arg-name:"command" description:"serve | parse <url> | refresh <feed-id> | migrate"`
		Target  string `positional-arg-name:"target" description:"Feed URL or feed ID"`
	} `positional-args:"yes"`
}

var globalCfg *Cfg

// Load reads .env (if present), the environment and os.Args.
func Load() (*Cfg, error) {
	return LoadArgs(os.Args[1:])
}

func LoadArgs(args []string) (*Cfg, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Printf("Warning: failed to load .env: %v\n", err)
	}

	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:          raw.DBPath,
		FeedsDir:        raw.FeedsDir,
		TickInterval:    raw.TickInterval,
		RefreshInterval: raw.RefreshInterval,
		MaxConcurrent:   raw.MaxConcurrent,
		FetchTimeout:    raw.FetchTimeout,
		StorageTimeout:  raw.StorageTimeout,
		StorageRetries:  raw.StorageRetries,
		PruneSchedule:   strings.TrimSpace(raw.PruneSchedule),
		Retention:       raw.Retention,
		RedisAddr:       raw.RedisAddr,
		CacheTTL:        raw.CacheTTL,
		KafkaBrokers:    compact(raw.KafkaBrokers),
		KafkaTopic:      raw.KafkaTopic,
		Port:            raw.Port,
		BaseURL:         strings.TrimRight(raw.BaseURL, "/"),
		UserAgent:       raw.UserAgent,
		LogFile:         raw.LogFile,
		Timezone:        raw.Timezone,
		Debug:           raw.Debug,
		Version:         GetVersion(),
		Command:         cmp.Or(raw.Args.Command, CommandServe),
		Target:          raw.Args.Target,
	}

	if err := validate(cfg); err != nil {
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

func validate(cfg *Cfg) error {
	switch cfg.Command {
	case CommandServe, CommandMigrate:
	case CommandParse, CommandRefresh:
		if cfg.Target == "" {
			return fmt.Errorf("command %s requires an argument", cfg.Command)
		}
	default:
		return fmt.Errorf("unknown command %q", cfg.Command)
	}

	if cfg.MaxConcurrent < 1 {
		return fmt.Errorf("max-concurrent must be at least 1, got %d", cfg.MaxConcurrent)
	}
	if cfg.TickInterval <= 0 || cfg.RefreshInterval <= 0 {
		return fmt.Errorf("tick and refresh intervals must be positive")
	}
	if cfg.FetchTimeout <= 0 {
		return fmt.Errorf("fetch-timeout must be positive")
	}
	return nil
}

func compact(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
