package feed

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Subscription is a feed declared in a seed file. The file name, without
// its .yml extension, is the subscription name.
type Subscription struct {
	Name           string `yaml:"-"`
	URL            string `yaml:"url"`
	Title          string `yaml:"title"`
	Description    string `yaml:"description"`
	Category       string `yaml:"category"`
	Active         *bool  `yaml:"active"`
	ExtractContent bool   `yaml:"extract_content"`
}

func (s *Subscription) IsActive() bool {
	return s.Active == nil || *s.Active
}

// DisplayName is the title used as the feed name, falling back to the file name.
func (s *Subscription) DisplayName() string {
	return firstNonEmpty(s.Title, s.Name)
}

type ConfigCache struct {
	feedsDir string
	cache    map[string]*Subscription
	mu       sync.RWMutex
}

func NewConfigCache(feedsDir string) *ConfigCache {
	return &ConfigCache{
		feedsDir: feedsDir,
		cache:    make(map[string]*Subscription),
	}
}

func (cc *ConfigCache) Run() error {
	if cc.feedsDir == "" {
		return nil
	}
	if _, err := os.Stat(cc.feedsDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.feedsDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yml")

		sub, err := cc.LoadConfig(name)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Subscription loaded", "name", name, "url", sub.URL, "active", sub.IsActive())
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(name string) (*Subscription, error) {
	file := filepath.Join(cc.feedsDir, name+".yml")

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var sub Subscription
	if err := yaml.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	sub.Name = name
	sub.URL = strings.TrimSpace(sub.URL)

	if err := validateSubscription(&sub); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", file, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[sub.Name] = &sub

	return &sub, nil
}

func (cc *ConfigCache) GetConfig(name string) (*Subscription, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	sub, ok := cc.cache[name]
	if !ok {
		return nil, fmt.Errorf("subscription with name '%s' not found", name)
	}
	return sub, nil
}

// GetConfigs returns all subscriptions ordered by name.
func (cc *ConfigCache) GetConfigs() []*Subscription {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	subs := make([]*Subscription, 0, len(cc.cache))
	for _, sub := range cc.cache {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].Name < subs[j].Name })
	return subs
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func validateSubscription(sub *Subscription) error {
	if sub.Name == "" {
		return fmt.Errorf("subscription name is required")
	}
	if sub.URL == "" {
		return fmt.Errorf("feed URL is required")
	}
	u, err := url.Parse(sub.URL)
	if err != nil {
		return fmt.Errorf("invalid feed URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("feed URL must be http or https: %s", sub.URL)
	}
	return nil
}
