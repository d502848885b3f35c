package feed

import (
	"time"
)

// FeedItem is the canonical form of one feed entry together with the
// metadata of the feed it came from. It is rebuilt on every cycle.
type FeedItem struct {
	GUID         string
	Title        string
	Link         string
	Published    *time.Time
	EntryUpdated *time.Time
	Content      string // full body when the feed has one, otherwise the summary
	Summary      string
	Author       string
	Categories   []string

	FeedURL         string
	FeedTitle       string
	FeedDescription string
	FeedLanguage    string
	FeedIcon        string
	FeedUpdated     *time.Time
}

// Configuration types

type Config struct {
	Name     string         `yaml:"name"` // Defaults to the filename (without .yml extension)
	URL      string         `yaml:"url"`
	FeedType string         `yaml:"feed_type"`
	Tags     []string       `yaml:"tags"`
	Settings ConfigSettings `yaml:"settings"`
}

type ConfigSettings struct {
	Enabled        *bool `yaml:"enabled"`
	Timeout        int   `yaml:"timeout"`         // seconds
	ExtractContent *bool `yaml:"extract_content"` // enable live content enrichment
}

func (c *Config) IsEnabled() bool {
	return c.Settings.Enabled == nil || *c.Settings.Enabled
}

func (c *Config) ExtractsContent() bool {
	return c.Settings.ExtractContent == nil || *c.Settings.ExtractContent
}

func (c *Config) GetTimeout() time.Duration {
	if c.Settings.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Settings.Timeout) * time.Second
}
