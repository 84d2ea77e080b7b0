package fetcher

import (
	"html"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/ylqcxwl/youtube-notifier/internal/model"
)

// Timestamp layouts tried, in order, before free-form parsing.
var timestampLayouts = []string{
	time.RFC1123,
	time.RFC1123Z,
	time.RFC3339,
}

func (f *Fetcher) toItem(entry *gofeed.Item, cat model.Category) model.Item {
	title := strings.TrimSpace(entry.Title)
	if title == "" {
		title = untitled
	}
	published, raw := PublishedTime(entry)
	return model.Item{
		ID:           VideoID(entry),
		Title:        title,
		Link:         strings.TrimSpace(entry.Link),
		PublishedAt:  published,
		PublishedRaw: raw,
		ThumbnailURL: Thumbnail(entry),
		Description:  f.description(entry),
		Category:     cat,
	}
}

// VideoID returns the YouTube video id of an entry, falling back to its GUID.
func VideoID(entry *gofeed.Item) string {
	if id := extValue(entry.Extensions, "yt", "videoId"); id != "" {
		return id
	}
	return ItemGUID(entry)
}

// Thumbnail returns the entry's thumbnail URL or an empty string.
func Thumbnail(entry *gofeed.Item) string {
	if thumb := mediaChild(entry.Extensions, "thumbnail"); thumb != nil {
		if u := strings.TrimSpace(thumb.Attrs["url"]); u != "" {
			return u
		}
	}
	if entry.Image != nil {
		return strings.TrimSpace(entry.Image.URL)
	}
	return ""
}

func (f *Fetcher) description(entry *gofeed.Item) string {
	if d := mediaChild(entry.Extensions, "description"); d != nil {
		if v := strings.TrimSpace(d.Value); v != "" {
			return v
		}
	}
	for _, candidate := range []string{entry.Description, entry.Content} {
		if strings.TrimSpace(candidate) == "" {
			continue
		}
		text := html.UnescapeString(f.strip.Sanitize(candidate))
		if text = strings.TrimSpace(text); text != "" {
			return text
		}
	}
	return ""
}

// PublishedTime returns the publish time of an entry. When the timestamp
// cannot be parsed the raw string is returned with a nil time.
func PublishedTime(entry *gofeed.Item) (*time.Time, string) {
	raw := strings.TrimSpace(entry.Published)
	if entry.PublishedParsed != nil {
		t := *entry.PublishedParsed
		return &t, raw
	}
	if t, ok := ParseTimestamp(raw); ok {
		return &t, raw
	}
	return nil, raw
}

// ParseTimestamp parses RFC 822 style and ISO 8601 timestamps, falling back
// to free-form parsing.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if t, err := dateparse.ParseStrict(s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func extValue(exts ext.Extensions, ns, name string) string {
	if vals := exts[ns][name]; len(vals) > 0 {
		return strings.TrimSpace(vals[0].Value)
	}
	return ""
}

// mediaChild finds a Media RSS element either inside media:group or at the
// top level of the entry.
func mediaChild(exts ext.Extensions, name string) *ext.Extension {
	if groups := exts["media"]["group"]; len(groups) > 0 {
		if children := groups[0].Children[name]; len(children) > 0 {
			return &children[0]
		}
	}
	if vals := exts["media"][name]; len(vals) > 0 {
		return &vals[0]
	}
	return nil
}
