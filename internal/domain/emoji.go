package domain

// Emoji is one entry of a guild's custom emoji catalog.
// Name is matched against message text; Render is only used for display.
type Emoji struct {
	ID     string
	Name   string
	Render string
}

// Counter holds the two usage tallies of a single emoji for one report run.
type Counter struct {
	Emoji         Emoji
	TextCount     int
	ReactionCount int
}

// Total is the sum of both tallies.
func (c Counter) Total() int {
	return c.TextCount + c.ReactionCount
}

// RankedEntry is one leaderboard row produced by ranking.
type RankedEntry struct {
	Emoji         Emoji
	TextCount     int
	ReactionCount int
	Total         int
	Rank          int
}

// SortOrder controls the leaderboard direction.
type SortOrder int

const (
	OrderDescending SortOrder = iota
	OrderAscending
)

// ParseSortOrder converts a string to a SortOrder. Anything other than
// "ascending" is treated as descending.
func ParseSortOrder(s string) SortOrder {
	if s == "ascending" {
		return OrderAscending
	}
	return OrderDescending
}

func (o SortOrder) String() string {
	if o == OrderAscending {
		return "ascending"
	}
	return "descending"
}
