package notifier

import (
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ylqcxwl/youtube-notifier/internal/model"
)

const (
	timeLayout  = "2006-01-02 15:04"
	ellipsis    = "..."
	unknownTime = "unknown"
)

var linkEscaper = strings.NewReplacer(`\`, `\\`, `)`, `\)`)

// FormatNotification renders item as a MarkdownV2 message. Descriptions
// longer than limit runes are cut and marked with an ellipsis; publish
// times are shown in loc.
func FormatNotification(item model.Item, sourceName string, limit int, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("*Channel*: ")
	b.WriteString(Escape(sourceName))
	b.WriteString("\n\n")

	if item.Link != "" {
		b.WriteString("[")
		b.WriteString(Escape(item.Title))
		b.WriteString("](")
		b.WriteString(linkEscaper.Replace(item.Link))
		b.WriteString(")")
	} else {
		b.WriteString(Escape(item.Title))
	}

	b.WriteString("\n*Type*: ")
	b.WriteString(Escape(item.Category.Label()))

	if item.Description != "" {
		b.WriteString("\n*Description*: ")
		b.WriteString(Escape(Truncate(item.Description, limit)))
	}

	b.WriteString("\n*Published*: ")
	b.WriteString(Escape(PublishedText(item, loc)))
	return b.String()
}

// Escape escapes s for MarkdownV2. Backslashes go first so that the
// escapes added afterwards are not doubled.
func Escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, s)
}

// Truncate cuts s to limit runes and appends an ellipsis when it was longer.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + ellipsis
}

// PublishedText returns the publish time formatted in loc, or the raw feed
// value when it could not be parsed.
func PublishedText(item model.Item, loc *time.Location) string {
	if item.PublishedAt != nil {
		return item.PublishedAt.In(loc).Format(timeLayout)
	}
	if item.PublishedRaw != "" {
		return item.PublishedRaw
	}
	return unknownTime
}
