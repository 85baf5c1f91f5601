package ranking

import (
	"strings"

	"github.com/pscheid92/emojirank/internal/domain"
)

// MatchText reports whether a message counts as a text use of the emoji.
// Occurrence is counted, not frequency: callers add at most 1 per message.
func MatchText(msg *domain.Message, emoji domain.Emoji, filter domain.Filter) bool {
	if !filter.Allows(msg.AuthorID) {
		return false
	}
	if !filter.IncludeBots && msg.AuthorBot {
		return false
	}
	return strings.Contains(msg.Content, emoji.Name)
}

// MatchReaction reports whether a reaction entry counts as a reaction use of the emoji.
// The reactors are first narrowed to the allowed authors. A narrowed set that is empty,
// or made up only of bots while bots are excluded, does not count.
func MatchReaction(reaction *domain.Reaction, emoji domain.Emoji, filter domain.Filter) bool {
	if reaction.EmojiID == "" || reaction.EmojiID != emoji.ID {
		return false
	}

	matched := 0
	humans := 0
	for _, user := range reaction.Users {
		if !filter.Allows(user.ID) {
			continue
		}
		matched++
		if !user.Bot {
			humans++
		}
	}

	if matched == 0 {
		return false
	}
	if !filter.IncludeBots && humans == 0 {
		return false
	}
	return true
}
