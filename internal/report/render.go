package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/pscheid92/emojirank/internal/domain"
)

const displayDateFormat = "2006/01/02"

// Embed is a rendered report, independent of the chat platform.
type Embed struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Fields      []Field `json:"fields"`
}

// Field is one leaderboard line. Value holds the per-mode breakdown.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Header carries the context shown above the leaderboard.
type Header struct {
	Limit     int
	Order     domain.SortOrder
	Window    domain.TimeWindow
	Location  *time.Location
	Since     time.Time // shown when Window.After is unset, usually the guild creation date
	Now       time.Time // shown when Window.Before is unset
	UserNames []string
}

// Render builds the embed for a ranked leaderboard.
func Render(h Header, entries []domain.RankedEntry) Embed {
	title := fmt.Sprintf("Emoji Usage Ranking Top %d", h.Limit)
	if h.Order == domain.OrderAscending {
		title += " Worst"
	}

	lines := []string{DateRange(h)}
	if len(h.UserNames) > 0 {
		lines = append(lines, "User: "+strings.Join(h.UserNames, ", "))
	}

	fields := make([]Field, 0, len(entries))
	for _, e := range entries {
		fields = append(fields, Field{
			Name:  fmt.Sprintf("%s %s Total: %s", Ordinal(e.Rank), e.Emoji.Render, Times(e.Total)),
			Value: fmt.Sprintf("In Messages: %d Reactions: %d", e.TextCount, e.ReactionCount),
		})
	}

	return Embed{
		Title:       title,
		Description: strings.Join(lines, "\n"),
		Fields:      fields,
	}
}

// DateRange formats the "after ~ before" line.
func DateRange(h Header) string {
	loc := h.Location
	if loc == nil {
		loc = time.UTC
	}

	after := h.Window.After
	if after.IsZero() {
		after = h.Since
	}
	before := h.Window.Before
	if before.IsZero() {
		before = h.Now
	}
	return fmt.Sprintf("%s ~ %s", after.In(loc).Format(displayDateFormat), before.In(loc).Format(displayDateFormat))
}

// Ordinal formats a rank as 1st, 2nd, 3rd, 4th, ..., 11th, ..., 21st.
func Ordinal(rank int) string {
	if rank%100 >= 11 && rank%100 <= 13 {
		return fmt.Sprintf("%dth", rank)
	}
	switch rank % 10 {
	case 1:
		return fmt.Sprintf("%dst", rank)
	case 2:
		return fmt.Sprintf("%dnd", rank)
	case 3:
		return fmt.Sprintf("%drd", rank)
	default:
		return fmt.Sprintf("%dth", rank)
	}
}

// Times formats a count as "1 time" or "N times".
func Times(count int) string {
	if count == 1 {
		return "1 time"
	}
	return fmt.Sprintf("%d times", count)
}
