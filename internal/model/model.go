// Package model defines the domain types used across the application.
package model

import "time"

// UnknownName is shown in notifications when a channel name cannot be resolved.
const UnknownName = "Unknown channel"

// Origin records where a source's display name came from.
type Origin string

// Supported name origins.
const (
	OriginNone    Origin = ""
	OriginConfig  Origin = "config"
	OriginCache   Origin = "cache"
	OriginFetched Origin = "fetched"
)

// Source is a tracked YouTube channel.
type Source struct {
	ID     string
	Name   string
	Origin Origin
	// Line is the 1-based line of the source in the channels file.
	Line int
	// Discovered is set when Name was fetched during the current run
	// and should be written back to the channels file.
	Discovered bool
}

// Category is a content sub-type of a channel with its own cursor.
type Category string

// Supported categories.
const (
	CategoryVideo  Category = "video"
	CategoryShorts Category = "shorts"
)

// Label returns the human-readable name of the category.
func (c Category) Label() string {
	switch c {
	case CategoryShorts:
		return "Shorts"
	default:
		return "Video"
	}
}

// Cursor is the last notified item of one (source, category) pair.
type Cursor struct {
	ID          string
	PublishedAt *time.Time
}

// Record is the persisted state of a single source.
type Record struct {
	LastVideoID  string     `json:"last_video_id" yaml:"last_video_id"`
	LastShortsID string     `json:"last_shorts_id" yaml:"last_shorts_id"`
	ChannelName  string     `json:"channel_name" yaml:"channel_name"`
	LastVideoAt  *time.Time `json:"last_video_published,omitempty" yaml:"last_video_published,omitempty"`
	LastShortsAt *time.Time `json:"last_shorts_published,omitempty" yaml:"last_shorts_published,omitempty"`
}

// Cursor returns the cursor of the given category.
func (r *Record) Cursor(c Category) Cursor {
	if c == CategoryShorts {
		return Cursor{ID: r.LastShortsID, PublishedAt: r.LastShortsAt}
	}
	return Cursor{ID: r.LastVideoID, PublishedAt: r.LastVideoAt}
}

// Advance moves the cursor of the item's category to the item.
func (r *Record) Advance(item Item) {
	var published *time.Time
	if item.PublishedAt != nil {
		t := item.PublishedAt.UTC()
		published = &t
	}
	if item.Category == CategoryShorts {
		r.LastShortsID = item.ID
		r.LastShortsAt = published
		return
	}
	r.LastVideoID = item.ID
	r.LastVideoAt = published
}

// State maps source IDs to their records.
type State map[string]*Record

// Item is a single entry of a channel feed.
type Item struct {
	ID           string
	Title        string
	Link         string
	PublishedAt  *time.Time
	PublishedRaw string
	ThumbnailURL string
	Description  string
	Category     Category
}
