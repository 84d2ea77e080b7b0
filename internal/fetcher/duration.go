package fetcher

import (
	"context"
	"regexp"
	"strconv"
	"time"

	"github.com/ylqcxwl/youtube-notifier/internal/model"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

var lengthSecondsRe = regexp.MustCompile(`"lengthSeconds"\s*:\s*"(\d+)"`)

// Duration looks up the length of a video from its watch page. The second
// result is false when the length cannot be determined. Known lengths are
// remembered per link; failed lookups are retried on the next call.
func (f *Fetcher) Duration(ctx context.Context, link string) (time.Duration, bool) {
	if link == "" {
		return 0, false
	}
	f.mu.Lock()
	d, ok := f.durations[link]
	f.mu.Unlock()
	if ok {
		return d, true
	}
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	body, err := f.get(ctx, link, browserUserAgent)
	if err != nil {
		return 0, false
	}
	m := lengthSecondsRe.FindSubmatch(body)
	if m == nil {
		return 0, false
	}
	secs, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return 0, false
	}
	d = time.Duration(secs) * time.Second

	f.mu.Lock()
	if len(f.durations) >= maxCachedDurations {
		clear(f.durations)
	}
	f.durations[link] = d
	f.mu.Unlock()
	return d, true
}

// Classify returns the shorts category for videos shorter than the
// configured threshold and the video category otherwise, including when the
// duration is unknown.
func (f *Fetcher) Classify(ctx context.Context, link string) model.Category {
	d, ok := f.Duration(ctx, link)
	if ok && d < f.opts.ShortsThreshold {
		return model.CategoryShorts
	}
	return model.CategoryVideo
}
