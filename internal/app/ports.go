package app

import (
	"context"

	"github.com/pscheid92/emojirank/internal/domain"
)

// MessageSource reads guild metadata and channel history from the chat platform.
// History returns messages whose reactions carry no user lists; those are
// resolved separately through ReactionUsers.
type MessageSource interface {
	Guild(ctx context.Context, guildID string) (*domain.Guild, error)
	Emojis(ctx context.Context, guildID string) ([]domain.Emoji, error)
	TextChannels(ctx context.Context, guildID string) ([]domain.Channel, error)
	History(ctx context.Context, channelID string, window domain.TimeWindow) ([]domain.Message, error)
	ReactionUsers(ctx context.Context, channelID, messageID string, emoji domain.Emoji) ([]domain.Reactor, error)
	MemberName(ctx context.Context, guildID, userID string) (string, error)
}

// ReactorCache stores reaction user lists keyed by channel, message and emoji.
type ReactorCache interface {
	Get(ctx context.Context, channelID, messageID, emojiID string) ([]domain.Reactor, bool, error)
	Set(ctx context.Context, channelID, messageID, emojiID string, reactors []domain.Reactor) error
}
