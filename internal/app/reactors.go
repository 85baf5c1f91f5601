package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pscheid92/emojirank/internal/adapter/metrics"
	"github.com/pscheid92/emojirank/internal/domain"
)

// reactorResolver fills reaction user lists, consulting the cache first.
// A failing cache is logged and bypassed.
type reactorResolver struct {
	source       MessageSource
	cache        ReactorCache
	cacheMetrics *metrics.CacheMetrics
}

func (r *reactorResolver) resolve(ctx context.Context, channelID, messageID string, emoji domain.Emoji) ([]domain.Reactor, error) {
	if r.cache != nil {
		users, ok, err := r.cache.Get(ctx, channelID, messageID, emoji.ID)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "Reactor cache read failed", "channel_id", channelID, "message_id", messageID, "error", err)
			r.failed("get")
		case ok:
			r.hit()
			return users, nil
		default:
			r.miss()
		}
	}

	users, err := r.source.ReactionUsers(ctx, channelID, messageID, emoji)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, channelID, messageID, emoji.ID, users); err != nil {
			slog.WarnContext(ctx, "Reactor cache write failed", "channel_id", channelID, "message_id", messageID, "error", err)
			r.failed("set")
		}
	}
	return users, nil
}

// fill resolves users for every reaction that references a catalog emoji.
// Other reactions are left untouched since counting ignores them. A message
// deleted since the history fetch keeps its text but loses its reactions.
func (r *reactorResolver) fill(ctx context.Context, messages []domain.Message, catalog map[string]domain.Emoji) error {
	for i := range messages {
		msg := &messages[i]
		for j := range msg.Reactions {
			reaction := &msg.Reactions[j]
			emoji, ok := catalog[reaction.EmojiID]
			if !ok || reaction.EmojiID == "" || reaction.Users != nil {
				continue
			}
			users, err := r.resolve(ctx, msg.ChannelID, msg.ID, emoji)
			if errors.Is(err, domain.ErrMessageNotFound) {
				slog.DebugContext(ctx, "Dropping reactions of deleted message", "channel_id", msg.ChannelID, "message_id", msg.ID)
				dropReactions(msg)
				break
			}
			if err != nil {
				return err
			}
			reaction.Users = users
		}
	}
	return nil
}

func dropReactions(msg *domain.Message) {
	for j := range msg.Reactions {
		msg.Reactions[j].Users = []domain.Reactor{}
	}
}

func (r *reactorResolver) hit() {
	if r.cacheMetrics != nil {
		r.cacheMetrics.Hit()
	}
}

func (r *reactorResolver) miss() {
	if r.cacheMetrics != nil {
		r.cacheMetrics.Miss()
	}
}

func (r *reactorResolver) failed(op string) {
	if r.cacheMetrics != nil {
		r.cacheMetrics.Failed(op)
	}
}
