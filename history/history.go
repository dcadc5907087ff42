// Package history records translated texts so users can look them up again.
package history

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when an entry does not exist.
var ErrNotFound = errors.New("history entry not found")

// Entry is one translated text.
type Entry struct {
	ID          string    `json:"id"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Text        string    `json:"text"`
	Translation string    `json:"translation"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Lookup identifies an entry by its direction and source text.
type Lookup struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
}

func (l Lookup) key() string {
	return strings.Join([]string{l.From, l.To, l.Text}, "|")
}

// Store persists history entries. List returns the newest entries first.
type Store interface {
	Add(ctx context.Context, entry Entry) (Entry, error)
	Delete(ctx context.Context, id string) error
	Find(ctx context.Context, lookup Lookup) (*Entry, error)
	List(ctx context.Context, offset int, limit int) ([]Entry, error)
	Clear(ctx context.Context) error
}

// DefaultListLimit caps List calls made with a non positive limit.
const DefaultListLimit = 100

func window(total int, offset int, limit int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return offset, end
}
