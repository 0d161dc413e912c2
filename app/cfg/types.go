package cfg

import "time"

type Cfg struct {
	// Storage
	DBPath   string
	FeedsDir string

	// Scheduler
	TickInterval    time.Duration
	RefreshInterval time.Duration
	MaxConcurrent   int
	FetchTimeout    time.Duration
	StorageTimeout  time.Duration
	StorageRetries  int
	PruneSchedule   string
	Retention       time.Duration

	// Optional integrations
	RedisAddr    string
	CacheTTL     time.Duration
	KafkaBrokers []string
	KafkaTopic   string

	// HTTP
	Port      string
	BaseURL   string
	UserAgent string

	// Application metadata
	LogFile  string
	Timezone string
	Debug    bool
	Version  string

	// Command line
	Command string
	Target  string
}
