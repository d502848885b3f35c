package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Record is one row of the archive or current_items table.
type Record struct {
	GUID            string
	Title           string
	Link            string
	Published       *time.Time
	EntryUpdated    *time.Time
	Content         string
	Summary         string
	FullContent     string
	Author          string
	Categories      []string
	FeedURL         string
	FeedTitle       string
	FeedDescription string
	FeedLanguage    string
	FeedIcon        string
	FeedUpdated     *time.Time
	StoredAt        time.Time // first_seen_at for archive, updated_at for current
}

// FetchState tracks live-content fetch attempts of one entry.
type FetchState struct {
	GUID             string
	FailedFetchCount int
	LastFetchAttempt *time.Time
	Disabled         bool
}

type FetchStats struct {
	Tracked  int `json:"tracked"`
	Failing  int `json:"failing"`
	Disabled int `json:"disabled"`
}

type ItemStats struct {
	Archived int `json:"archived"`
	Current  int `json:"current"`
}

// Categories stores a string list as a JSON array in a TEXT column.
type Categories []string

func (c Categories) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	data, err := json.Marshal([]string(c))
	if err != nil {
		return nil, fmt.Errorf("failed to encode categories: %w", err)
	}
	return string(data), nil
}

func (c *Categories) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*c = nil
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported categories type %T", src)
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("failed to decode categories: %w", err)
	}
	*c = list
	return nil
}
