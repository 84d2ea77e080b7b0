// Package fetcher downloads and parses YouTube channel feeds and turns
// their entries into notification items.
package fetcher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/ylqcxwl/youtube-notifier/internal/config"
	"github.com/ylqcxwl/youtube-notifier/internal/model"
)

const (
	// DefaultFeedURL is the YouTube syndication endpoint.
	DefaultFeedURL = "https://www.youtube.com/feeds/videos.xml"

	maxBodySize          = 5 * 1024 * 1024
	maxDurationLookups   = 5
	maxCachedDurations   = 1024
	shortsPlaylistPrefix = "UL"
	userAgent            = "YouTubeNotifier/1.0"
	untitled             = "(untitled)"
)

// Sentinel errors returned by Latest and Name.
var (
	ErrNoItems          = errors.New("feed has no items")
	ErrNoTitle          = errors.New("feed has no title")
	ErrCategoryDisabled = errors.New("category is not polled")
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configure a Fetcher. Zero values fall back to defaults.
type Options struct {
	FeedURL         string
	Timeout         time.Duration
	ShortsMode      config.ShortsMode
	ShortsThreshold time.Duration
	MaxAttempts     int
	RetryInterval   time.Duration
	// FeedReuse is how long a downloaded feed is reused by Name and Latest,
	// so the calls made for one channel share a single download. A negative
	// value disables reuse.
	FeedReuse time.Duration
}

// Fetcher downloads and parses channel feeds.
type Fetcher struct {
	client HTTPClient
	opts   Options
	strip  *bluemonday.Policy

	mu        sync.Mutex
	recent    cachedFeed
	durations map[string]time.Duration
}

type cachedFeed struct {
	url  string
	feed *gofeed.Feed
	at   time.Time
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient, opts Options) *Fetcher {
	if opts.FeedURL == "" {
		opts.FeedURL = DefaultFeedURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.ShortsMode == "" {
		opts.ShortsMode = config.ShortsPlaylist
	}
	if opts.ShortsThreshold <= 0 {
		opts.ShortsThreshold = 60 * time.Second
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 500 * time.Millisecond
	}
	if opts.FeedReuse == 0 {
		opts.FeedReuse = 10 * time.Second
	}
	return &Fetcher{
		client:    client,
		opts:      opts,
		strip:     bluemonday.StrictPolicy(),
		durations: map[string]time.Duration{},
	}
}

// Categories returns the categories polled under the configured shorts mode.
func (f *Fetcher) Categories() []model.Category {
	if f.opts.ShortsMode == config.ShortsOff {
		return []model.Category{model.CategoryVideo}
	}
	return []model.Category{model.CategoryVideo, model.CategoryShorts}
}

// FeedURL returns the feed address polled for a channel category.
func (f *Fetcher) FeedURL(channelID string, cat model.Category) (string, error) {
	q := url.Values{"channel_id": {channelID}}
	if cat == model.CategoryShorts {
		switch f.opts.ShortsMode {
		case config.ShortsOff:
			return "", ErrCategoryDisabled
		case config.ShortsPlaylist:
			if len(channelID) <= 2 {
				return "", fmt.Errorf("channel id %q too short for a shorts playlist", channelID)
			}
			q.Set("playlist_id", shortsPlaylistPrefix+channelID[2:])
		}
	}
	return f.opts.FeedURL + "?" + q.Encode(), nil
}

// Fetch downloads and parses a feed, retrying transient failures.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.opts.RetryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.opts.MaxAttempts-1)), ctx)

	return backoff.RetryWithData(func() (*gofeed.Feed, error) {
		feed, err := f.fetchOnce(ctx, feedURL)
		if err != nil && !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return feed, err
	}, policy)
}

func (f *Fetcher) fetchOnce(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	body, err := f.get(ctx, feedURL, userAgent)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &permanentError{err: fmt.Errorf("parse feed: %w", err)}
	}
	return feed, nil
}

func (f *Fetcher) get(ctx context.Context, target, agent string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &permanentError{err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", agent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// StatusError reports a non-200 HTTP response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// permanentError marks failures that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func retryable(err error) bool {
	var pe *permanentError
	if errors.As(err, &pe) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return !errors.Is(err, context.Canceled)
}

// recentFeed returns the feed at feedURL, reusing the last download when
// it is for the same URL and younger than FeedReuse.
func (f *Fetcher) recentFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	f.mu.Lock()
	c := f.recent
	f.mu.Unlock()
	if c.url == feedURL && time.Since(c.at) < f.opts.FeedReuse {
		return c.feed, nil
	}

	feed, err := f.Fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.recent = cachedFeed{url: feedURL, feed: feed, at: time.Now()}
	f.mu.Unlock()
	return feed, nil
}

// Name returns the channel title advertised by its feed.
func (f *Fetcher) Name(ctx context.Context, channelID string) (string, error) {
	feedURL, err := f.FeedURL(channelID, model.CategoryVideo)
	if err != nil {
		return "", err
	}
	feed, err := f.recentFeed(ctx, feedURL)
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(feed.Title)
	if name == "" {
		return "", ErrNoTitle
	}
	return name, nil
}

// Latest returns the most recent item of a channel category. An empty feed
// yields ErrNoItems.
func (f *Fetcher) Latest(ctx context.Context, channelID string, cat model.Category) (*model.Item, error) {
	feedURL, err := f.FeedURL(channelID, cat)
	if err != nil {
		return nil, err
	}
	feed, err := f.recentFeed(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	if len(feed.Items) == 0 {
		return nil, ErrNoItems
	}

	if f.opts.ShortsMode != config.ShortsClassify {
		item := f.toItem(feed.Items[0], cat)
		return &item, nil
	}

	// Both categories share one feed; walk it until an entry of the wanted
	// category shows up. Entries past the lookup budget count as videos.
	for i, entry := range feed.Items {
		got := model.CategoryVideo
		if i < maxDurationLookups {
			got = f.Classify(ctx, entry.Link)
		}
		if got == cat {
			item := f.toItem(entry, cat)
			return &item, nil
		}
	}
	return nil, ErrNoItems
}

// Check verifies that a channel feed is reachable and parseable.
func (f *Fetcher) Check(ctx context.Context, channelID string) error {
	feedURL, err := f.FeedURL(channelID, model.CategoryVideo)
	if err != nil {
		return err
	}
	_, err = f.Fetch(ctx, feedURL)
	return err
}

// ItemGUID returns the GUID for a feed item.
// If the item has no GUID, a SHA-256 hash of title+link is used.
func ItemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}
