package ranking

import (
	"fmt"

	"github.com/pscheid92/emojirank/internal/domain"
)

// Registry owns one counter per catalog emoji, in catalog order.
type Registry struct {
	counters []domain.Counter
}

// NewRegistry creates a zero-valued counter for each emoji of the catalog.
func NewRegistry(catalog []domain.Emoji) *Registry {
	counters := make([]domain.Counter, len(catalog))
	for i, emoji := range catalog {
		counters[i] = domain.Counter{Emoji: emoji}
	}
	return &Registry{counters: counters}
}

// Len returns the catalog size.
func (r *Registry) Len() int {
	return len(r.counters)
}

// Counters returns a copy of the counters in catalog order.
func (r *Registry) Counters() []domain.Counter {
	out := make([]domain.Counter, len(r.counters))
	copy(out, r.counters)
	return out
}

// Count runs the counting pass over one batch of messages.
func (r *Registry) Count(messages []domain.Message, filter domain.Filter) {
	for i := range messages {
		msg := &messages[i]
		for c := range r.counters {
			counter := &r.counters[c]

			if MatchText(msg, counter.Emoji, filter) {
				counter.TextCount++
			}

			for j := range msg.Reactions {
				if MatchReaction(&msg.Reactions[j], counter.Emoji, filter) {
					counter.ReactionCount++
				}
			}
		}
	}
}

// Merge adds the tallies of other into r. Both registries must have been
// created from the same catalog.
func (r *Registry) Merge(other *Registry) error {
	if len(other.counters) != len(r.counters) {
		return fmt.Errorf("merge %d counters into %d: %w", len(other.counters), len(r.counters), domain.ErrCatalogMismatch)
	}
	for i := range r.counters {
		if r.counters[i].Emoji.ID != other.counters[i].Emoji.ID {
			return fmt.Errorf("emoji %q at position %d differs from %q: %w", other.counters[i].Emoji.ID, i, r.counters[i].Emoji.ID, domain.ErrCatalogMismatch)
		}
		r.counters[i].TextCount += other.counters[i].TextCount
		r.counters[i].ReactionCount += other.counters[i].ReactionCount
	}
	return nil
}

// Rank ranks the registry's counters. See Rank.
func (r *Registry) Rank(order domain.SortOrder, limit int) []domain.RankedEntry {
	return Rank(r.counters, order, limit)
}
