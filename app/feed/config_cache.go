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

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

type ConfigCache struct {
	feedsDir string
	cache    map[string]*Config
	mu       sync.RWMutex
}

func NewConfigCache(feedsDir string) *ConfigCache {
	return &ConfigCache{
		feedsDir: feedsDir,
		cache:    make(map[string]*Config),
	}
}

// Run loads every *.yml file of the feeds directory. A missing directory is
// not an error: feeds may come from FEED_URLS only.
func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.feedsDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.feedsDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		fileName := strings.TrimSuffix(filepath.Base(file), ".yml")

		config, err := cc.LoadConfig(fileName)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Configuration loaded", "feed", config.Name, "url", config.URL, "enabled", config.IsEnabled())
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(fileName string) (*Config, error) {
	configFile := cc.getConfigFilePath(fileName)
	feedConfig, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	if feedConfig.Name == "" {
		feedConfig.Name = fileName
	}

	if err := validateConfig(feedConfig); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[feedConfig.Name] = feedConfig

	return feedConfig, nil
}

func (cc *ConfigCache) GetConfig(feedName string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	feedConfig, ok := cc.cache[feedName]
	if !ok {
		return nil, fmt.Errorf("feed config with name '%s' not found", feedName)
	}
	return feedConfig, nil
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

// Configs returns the enabled feeds sorted by name, followed by one ad-hoc
// feed per extra URL that no file already declares. Ad-hoc feeds are named
// after the URL host.
func (cc *ConfigCache) Configs(extraURLs []string) []*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configs := lo.Filter(lo.Values(cc.cache), func(c *Config, _ int) bool {
		return c.IsEnabled()
	})
	sort.Slice(configs, func(i, j int) bool {
		return configs[i].Name < configs[j].Name
	})

	known := lo.SliceToMap(lo.Values(cc.cache), func(c *Config) (string, bool) {
		return c.URL, true
	})

	for _, raw := range lo.Uniq(extraURLs) {
		if known[raw] {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			slog.Warn("Ignoring invalid feed URL", "url", raw)
			continue
		}
		configs = append(configs, &Config{Name: u.Host, URL: raw})
		known[raw] = true
	}

	return configs
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var feedConfig Config
	if err := yaml.Unmarshal(data, &feedConfig); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &feedConfig, nil
}

func validateConfig(feedConfig *Config) error {
	if feedConfig == nil {
		return fmt.Errorf("feedConfig is nil")
	}

	if feedConfig.URL == "" {
		return fmt.Errorf("feed URL is required")
	}

	u, err := url.Parse(feedConfig.URL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("feed URL must be absolute: %s", feedConfig.URL)
	}

	if feedConfig.Settings.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}

	return nil
}

func (cc *ConfigCache) getConfigFilePath(fileName string) string {
	return filepath.Join(cc.feedsDir, fileName+".yml")
}
