package domain

import "time"

// Message is a materialized chat message with its reactions.
type Message struct {
	ID        string
	ChannelID string
	AuthorID  string
	AuthorBot bool
	Content   string
	Timestamp time.Time
	Reactions []Reaction
}

// Reaction is one reaction entry on a message. EmojiID is empty for
// unicode emoji, which never match a catalog entry.
type Reaction struct {
	EmojiID   string
	EmojiName string
	Count     int
	Users     []Reactor
}

// Reactor is a user that applied a reaction.
type Reactor struct {
	ID  string `json:"id"`
	Bot bool   `json:"bot"`
}

// Filter restricts which activity is counted.
type Filter struct {
	AllowedAuthors map[string]struct{}
	IncludeBots    bool
}

// NewFilter builds a Filter from a list of user IDs.
func NewFilter(userIDs []string, includeBots bool) Filter {
	f := Filter{IncludeBots: includeBots}
	if len(userIDs) > 0 {
		f.AllowedAuthors = make(map[string]struct{}, len(userIDs))
		for _, id := range userIDs {
			f.AllowedAuthors[id] = struct{}{}
		}
	}
	return f
}

// Allows reports whether the user passes the author restriction.
func (f Filter) Allows(userID string) bool {
	if len(f.AllowedAuthors) == 0 {
		return true
	}
	_, ok := f.AllowedAuthors[userID]
	return ok
}

// TimeWindow bounds message history. Zero values mean unbounded.
// After is inclusive, Before is exclusive.
type TimeWindow struct {
	After  time.Time
	Before time.Time
}

// Contains reports whether t lies inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	if !w.After.IsZero() && t.Before(w.After) {
		return false
	}
	if !w.Before.IsZero() && !t.Before(w.Before) {
		return false
	}
	return true
}
