package discord

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	"github.com/pscheid92/emojirank/internal/adapter/metrics"
	"github.com/pscheid92/emojirank/internal/app"
	"github.com/pscheid92/emojirank/internal/domain"
	"github.com/pscheid92/emojirank/internal/platform/retry"
)

// pageSize is the maximum page Discord serves for messages and reaction users.
const pageSize = 100

// restAPI is the subset of *discordgo.Session used to read guild data.
type restAPI interface {
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	GuildEmojis(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Emoji, error)
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	MessageReactions(channelID, messageID, emojiID string, limit int, beforeID, afterID string, options ...discordgo.RequestOption) ([]*discordgo.User, error)
}

// Source reads guild metadata and history through the Discord REST API.
// Every call is retried per policy and guarded by a shared circuit breaker.
type Source struct {
	api     restAPI
	breaker circuitbreaker.CircuitBreaker[any]
	policy  retry.Policy
	metrics *metrics.DiscordMetrics
}

var _ app.MessageSource = (*Source)(nil)

// NewSource wraps api. m may be nil.
func NewSource(api restAPI, m *metrics.DiscordMetrics) *Source {
	breaker := circuitbreaker.Builder[any]().
		WithFailureRateThreshold(60, 5, 30*time.Second).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "discord",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			if m != nil {
				m.BreakerState.Set(stateToFloat(e.NewState))
			}
		}).
		Build()

	return &Source{
		api:     api,
		breaker: breaker,
		policy: retry.Policy{
			MaxAttempts:      3,
			InitialBackoff:   500 * time.Millisecond,
			RateLimitBackoff: 5 * time.Second,
			MaxBackoff:       30 * time.Second,
		},
		metrics: m,
	}
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

// call runs one REST operation with retry and circuit breaking and maps the
// final error onto domain errors.
func call[T any](ctx context.Context, s *Source, operation string, fn func(opts ...discordgo.RequestOption) (T, error)) (T, error) {
	var zero T
	if !s.breaker.TryAcquirePermit() {
		s.observe(operation, "breaker_open")
		return zero, fmt.Errorf("discord %s: %w", operation, circuitbreaker.ErrOpen)
	}

	p := s.policy
	p.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.WarnContext(ctx, "Discord request failed, retrying", "operation", operation, "attempt", attempt, "backoff_seconds", backoff.Seconds(), "error", err)
		if s.metrics != nil {
			s.metrics.Retries.WithLabelValues(operation).Inc()
		}
	}

	val, err := retry.Do(ctx, p, classify, func() (T, error) {
		return fn(discordgo.WithContext(ctx))
	})
	if err != nil && ctx.Err() != nil {
		s.observe(operation, "cancelled")
		return zero, fmt.Errorf("discord %s: %w", operation, err)
	}
	if err != nil && classify(err) != retry.Stop {
		s.breaker.RecordError(err)
		s.observe(operation, "error")
		return zero, fmt.Errorf("discord %s: %w", operation, translate(err))
	}

	// A permanent client error still proves Discord is answering.
	s.breaker.RecordSuccess()
	if err != nil {
		s.observe(operation, "rejected")
		return zero, fmt.Errorf("discord %s: %w", operation, translate(err))
	}
	s.observe(operation, "ok")
	return val, nil
}

func (s *Source) observe(operation, outcome string) {
	if s.metrics != nil {
		s.metrics.Requests.WithLabelValues(operation, outcome).Inc()
	}
}

func (s *Source) Guild(ctx context.Context, guildID string) (*domain.Guild, error) {
	g, err := call(ctx, s, "guild", func(opts ...discordgo.RequestOption) (*discordgo.Guild, error) {
		return s.api.Guild(guildID, opts...)
	})
	if err != nil {
		return nil, err
	}

	created, err := discordgo.SnowflakeTimestamp(g.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid guild id %q: %w", g.ID, err)
	}
	return &domain.Guild{ID: g.ID, Name: g.Name, CreatedAt: created}, nil
}

func (s *Source) Emojis(ctx context.Context, guildID string) ([]domain.Emoji, error) {
	emojis, err := call(ctx, s, "emojis", func(opts ...discordgo.RequestOption) ([]*discordgo.Emoji, error) {
		return s.api.GuildEmojis(guildID, opts...)
	})
	if err != nil {
		return nil, err
	}

	catalog := make([]domain.Emoji, 0, len(emojis))
	for _, e := range emojis {
		if e == nil || e.ID == "" {
			continue
		}
		catalog = append(catalog, domain.Emoji{ID: e.ID, Name: e.Name, Render: e.MessageFormat()})
	}
	return catalog, nil
}

// TextChannels lists text and announcement channels ordered by position.
func (s *Source) TextChannels(ctx context.Context, guildID string) ([]domain.Channel, error) {
	channels, err := call(ctx, s, "channels", func(opts ...discordgo.RequestOption) ([]*discordgo.Channel, error) {
		return s.api.GuildChannels(guildID, opts...)
	})
	if err != nil {
		return nil, err
	}

	text := make([]*discordgo.Channel, 0, len(channels))
	for _, ch := range channels {
		if ch != nil && (ch.Type == discordgo.ChannelTypeGuildText || ch.Type == discordgo.ChannelTypeGuildNews) {
			text = append(text, ch)
		}
	}
	slices.SortStableFunc(text, func(a, b *discordgo.Channel) int {
		return cmp.Compare(a.Position, b.Position)
	})

	out := make([]domain.Channel, len(text))
	for i, ch := range text {
		out[i] = domain.Channel{ID: ch.ID, Name: ch.Name}
	}
	return out, nil
}

// History returns every message of the channel inside window. With a lower
// bound it pages forward from that bound, otherwise backward from the upper
// bound (or the newest message).
func (s *Source) History(ctx context.Context, channelID string, window domain.TimeWindow) ([]domain.Message, error) {
	if !window.After.IsZero() {
		return s.historyForward(ctx, channelID, window)
	}
	return s.historyBackward(ctx, channelID, window)
}

func (s *Source) fetchPage(ctx context.Context, channelID, beforeID, afterID string) ([]*discordgo.Message, error) {
	return call(ctx, s, "history", func(opts ...discordgo.RequestOption) ([]*discordgo.Message, error) {
		return s.api.ChannelMessages(channelID, pageSize, beforeID, afterID, "", opts...)
	})
}

func (s *Source) historyForward(ctx context.Context, channelID string, window domain.TimeWindow) ([]domain.Message, error) {
	var out []domain.Message
	afterID := snowflakeAt(window.After.Add(-time.Millisecond))

	for {
		page, err := s.fetchPage(ctx, channelID, "", afterID)
		if err != nil {
			return nil, err
		}

		reachedEnd := false
		for _, m := range page {
			if laterID(m.ID, afterID) {
				afterID = m.ID
			}
			if !window.Before.IsZero() && !m.Timestamp.Before(window.Before) {
				reachedEnd = true
				continue
			}
			if window.Contains(m.Timestamp) {
				out = append(out, toMessage(m))
			}
		}

		if reachedEnd || len(page) < pageSize {
			return out, nil
		}
	}
}

func (s *Source) historyBackward(ctx context.Context, channelID string, window domain.TimeWindow) ([]domain.Message, error) {
	var out []domain.Message
	beforeID := ""
	if !window.Before.IsZero() {
		beforeID = snowflakeAt(window.Before)
	}

	for {
		page, err := s.fetchPage(ctx, channelID, beforeID, "")
		if err != nil {
			return nil, err
		}

		for _, m := range page {
			if beforeID == "" || laterID(beforeID, m.ID) {
				beforeID = m.ID
			}
			if window.Contains(m.Timestamp) {
				out = append(out, toMessage(m))
			}
		}

		if len(page) < pageSize {
			return out, nil
		}
	}
}

// ReactionUsers lists everyone who reacted to the message with emoji.
func (s *Source) ReactionUsers(ctx context.Context, channelID, messageID string, emoji domain.Emoji) ([]domain.Reactor, error) {
	apiName := emoji.Name + ":" + emoji.ID
	users := make([]domain.Reactor, 0)
	afterID := ""

	for {
		page, err := call(ctx, s, "reactions", func(opts ...discordgo.RequestOption) ([]*discordgo.User, error) {
			return s.api.MessageReactions(channelID, messageID, apiName, pageSize, "", afterID, opts...)
		})
		if err != nil {
			return nil, err
		}

		for _, u := range page {
			if u == nil {
				continue
			}
			users = append(users, domain.Reactor{ID: u.ID, Bot: u.Bot})
			if laterID(u.ID, afterID) {
				afterID = u.ID
			}
		}

		if len(page) < pageSize {
			return users, nil
		}
	}
}

// MemberName returns the member's guild nickname, global name or username,
// whichever is set first.
func (s *Source) MemberName(ctx context.Context, guildID, userID string) (string, error) {
	member, err := call(ctx, s, "member", func(opts ...discordgo.RequestOption) (*discordgo.Member, error) {
		return s.api.GuildMember(guildID, userID, opts...)
	})
	if err != nil {
		return "", err
	}
	return displayName(member), nil
}

func displayName(m *discordgo.Member) string {
	if m == nil {
		return ""
	}
	if m.Nick != "" {
		return m.Nick
	}
	if m.User == nil {
		return ""
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}

func toMessage(m *discordgo.Message) domain.Message {
	msg := domain.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.AuthorBot = m.Author.Bot
	}
	for _, r := range m.Reactions {
		if r == nil || r.Emoji == nil {
			continue
		}
		msg.Reactions = append(msg.Reactions, domain.Reaction{
			EmojiID:   r.Emoji.ID,
			EmojiName: r.Emoji.Name,
			Count:     r.Count,
		})
	}
	return msg
}
