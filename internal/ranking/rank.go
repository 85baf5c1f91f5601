package ranking

import (
	"slices"

	"github.com/pscheid92/emojirank/internal/domain"
)

// Rank sorts counters by total, keeps the first limit entries and assigns ranks.
//
// The sort is stable, so equal totals keep catalog order. Truncation happens before
// ranking; ties straddling the limit are not expanded. An entry whose total equals its
// predecessor's shares that rank, otherwise its rank is its 1-based position, so
// totals [5,5,3] rank as 1,1,3.
//
// limit must already be within [1, len(counters)]; see ClampLimit.
func Rank(counters []domain.Counter, order domain.SortOrder, limit int) []domain.RankedEntry {
	if len(counters) == 0 {
		return []domain.RankedEntry{}
	}

	sorted := make([]domain.Counter, len(counters))
	copy(sorted, counters)
	slices.SortStableFunc(sorted, func(a, b domain.Counter) int {
		if order == domain.OrderDescending {
			return b.Total() - a.Total()
		}
		return a.Total() - b.Total()
	})

	sorted = sorted[:limit]

	entries := make([]domain.RankedEntry, len(sorted))
	for i, counter := range sorted {
		rank := i + 1
		if i > 0 && sorted[i-1].Total() == counter.Total() {
			rank = entries[i-1].Rank
		}
		entries[i] = domain.RankedEntry{
			Emoji:         counter.Emoji,
			TextCount:     counter.TextCount,
			ReactionCount: counter.ReactionCount,
			Total:         counter.Total(),
			Rank:          rank,
		}
	}
	return entries
}

// ClampLimit bounds a requested leaderboard size to [1, catalogSize].
// An empty catalog yields 0.
func ClampLimit(requested, catalogSize int) int {
	if catalogSize <= 0 {
		return 0
	}
	return max(1, min(requested, catalogSize))
}
