// Package detect decides whether a fetched item still needs a notification.
package detect

import "github.com/ylqcxwl/youtube-notifier/internal/model"

// Verdict is the outcome of comparing an item with a cursor.
type Verdict int

// Possible verdicts.
const (
	// Seen means the item is the one the cursor already points at.
	Seen Verdict = iota
	// New means the item has not been notified yet.
	New
	// Stale means the item is unseen but not newer than the cursor.
	Stale
)

func (v Verdict) String() string {
	switch v {
	case New:
		return "new"
	case Stale:
		return "stale"
	default:
		return "unchanged"
	}
}

// IsNew reports whether item differs from the cursor. An empty cursor
// makes every item new.
func IsNew(item model.Item, cursor model.Cursor) bool {
	return item.ID != cursor.ID
}

// Check compares item with cursor. With guard set, an unseen item whose
// publish time is known and not after the cursor's is Stale.
func Check(item model.Item, cursor model.Cursor, guard bool) Verdict {
	if !IsNew(item, cursor) {
		return Seen
	}
	if guard && item.PublishedAt != nil && cursor.PublishedAt != nil &&
		!item.PublishedAt.After(*cursor.PublishedAt) {
		return Stale
	}
	return New
}
