package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/emojirank/internal/adapter/metrics"
	"github.com/pscheid92/emojirank/internal/domain"
	apperrors "github.com/pscheid92/emojirank/internal/platform/errors"
	"github.com/pscheid92/emojirank/internal/ranking"
	"github.com/pscheid92/emojirank/internal/report"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Report sources, used as a metrics label.
const (
	SourceSlash = "slash"
	SourceText  = "text"
	SourceHTTP  = "http"
)

const defaultReportTimeout = 10 * time.Minute

// Options are the process-wide report settings.
type Options struct {
	DefaultRank         int
	MaxRank             int
	TimezoneOffsetHours int
	FetchConcurrency    int
	ReportsPerMinute    int
	ReportTimeout       time.Duration // bounds a shared run; zero means 10m
}

// ReportRequest is a report invocation before argument parsing.
type ReportRequest struct {
	GuildID string
	Args    map[string]string
	Source  string
}

// Report is the outcome of one ranking run. Reports may be shared between
// collapsed callers and must be treated as read-only.
type Report struct {
	ID              string
	GuildID         string
	Request         report.Request
	Limit           int
	Entries         []domain.RankedEntry
	Embed           report.Embed
	SkippedChannels []string
	MessagesScanned int
	GeneratedAt     time.Time
}

// Service is the application layer. It is the only component that talks to
// the message source, the settings store and the ranking engine together.
type Service struct {
	source   MessageSource
	settings domain.GuildSettingsRepository
	reactors *reactorResolver
	limiter  *guildLimiter
	opts     Options
	clock    clockwork.Clock
	metrics  *metrics.ReportMetrics
	group    singleflight.Group
}

// NewService creates the application layer service.
// settings, cache and the metric sets may be nil.
func NewService(source MessageSource, settings domain.GuildSettingsRepository, cache ReactorCache, opts Options, clock clockwork.Clock, reportMetrics *metrics.ReportMetrics, cacheMetrics *metrics.CacheMetrics) *Service {
	return &Service{
		source:   source,
		settings: settings,
		reactors: &reactorResolver{source: source, cache: cache, cacheMetrics: cacheMetrics},
		limiter:  newGuildLimiter(opts.ReportsPerMinute, clock),
		opts:     opts,
		clock:    clock,
		metrics:  reportMetrics,
	}
}

// GenerateReport builds the emoji usage leaderboard for a guild.
// Identical concurrent requests for the same guild share a single run.
func (s *Service) GenerateReport(ctx context.Context, in ReportRequest) (*Report, error) {
	start := s.clock.Now()
	rep, err := s.generate(ctx, in)

	result := "ok"
	switch {
	case errors.Is(err, context.Canceled):
		result = "cancelled"
	case err != nil:
		result = string(apperrors.AsStructuredError(err).Type)
	}
	if s.metrics != nil {
		s.metrics.Observe(in.Source, result, s.clock.Since(start))
	}
	return rep, err
}

func (s *Service) generate(ctx context.Context, in ReportRequest) (*Report, error) {
	if !s.limiter.Allow(in.GuildID) {
		return nil, apperrors.RateLimitedError("too many ranking requests for this server, try again in a minute").
			WithCause(domain.ErrRateLimited).
			WithField("guild_id", in.GuildID)
	}

	settings := s.Settings(ctx, in.GuildID)

	req, err := report.ParseRequest(in.Args, report.ParseOptions{
		Location:    settings.Location(),
		DefaultRank: settings.DefaultRank,
	})
	if err != nil {
		return nil, apperrors.ValidationError(err.Error(), err)
	}

	// The run is detached from the caller that started it so that collapsed
	// callers do not inherit its cancellation. Each caller only stops waiting.
	key := in.GuildID + "|" + req.Key()
	results := s.group.DoChan(key, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.reportTimeout())
		defer cancel()
		return s.run(runCtx, in.GuildID, req, settings)
	})

	select {
	case <-ctx.Done():
		slog.InfoContext(ctx, "Caller stopped waiting for emoji ranking", "guild_id", in.GuildID, "error", ctx.Err())
		return nil, fmt.Errorf("waiting for emoji ranking: %w", ctx.Err())
	case res := <-results:
		if res.Shared && s.metrics != nil {
			s.metrics.DedupedRequests.Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Report), nil
	}
}

func (s *Service) reportTimeout() time.Duration {
	if s.opts.ReportTimeout > 0 {
		return s.opts.ReportTimeout
	}
	return defaultReportTimeout
}

func (s *Service) run(ctx context.Context, guildID string, req report.Request, settings domain.GuildSettings) (*Report, error) {
	guild, err := s.source.Guild(ctx, guildID)
	if err != nil {
		return nil, sourceError("failed to load guild", err).WithField("guild_id", guildID)
	}

	catalog, err := s.source.Emojis(ctx, guildID)
	if err != nil {
		return nil, sourceError("failed to load emoji catalog", err).WithField("guild_id", guildID)
	}

	channels, err := s.resolveChannels(ctx, guildID, req.ChannelIDs)
	if err != nil {
		return nil, err
	}

	registry, scanned, skipped, err := s.count(ctx, catalog, channels, req.Filter(), req.Window)
	if err != nil {
		return nil, err
	}

	limit := ranking.ClampLimit(min(req.Rank, s.opts.MaxRank), len(catalog))
	entries := registry.Rank(req.Order, limit)

	now := s.clock.Now()
	embed := report.Render(report.Header{
		Limit:     limit,
		Order:     req.Order,
		Window:    req.Window,
		Location:  settings.Location(),
		Since:     guild.CreatedAt,
		Now:       now,
		UserNames: s.memberNames(ctx, guildID, req.UserIDs),
	}, entries)

	if s.metrics != nil {
		s.metrics.MessagesScanned.Add(float64(scanned))
		s.metrics.EmojisRanked.Observe(float64(len(catalog)))
	}

	id := uuid.NewString()
	slog.InfoContext(ctx, "Emoji ranking generated",
		"report_id", id,
		"guild_id", guildID,
		"catalog_size", len(catalog),
		"channels", len(channels),
		"skipped_channels", len(skipped),
		"messages", scanned,
		"limit", limit,
		"order", req.Order.String())

	return &Report{
		ID:              id,
		GuildID:         guildID,
		Request:         req,
		Limit:           limit,
		Entries:         entries,
		Embed:           embed,
		SkippedChannels: skipped,
		MessagesScanned: scanned,
		GeneratedAt:     now,
	}, nil
}

// resolveChannels returns the requested channels, or every text channel when
// none were named. Requested ids that are not text channels of the guild are
// dropped.
func (s *Service) resolveChannels(ctx context.Context, guildID string, requested []string) ([]domain.Channel, error) {
	all, err := s.source.TextChannels(ctx, guildID)
	if err != nil {
		return nil, sourceError("failed to list channels", err).WithField("guild_id", guildID)
	}
	if len(requested) == 0 {
		return all, nil
	}

	byID := make(map[string]domain.Channel, len(all))
	for _, ch := range all {
		byID[ch.ID] = ch
	}

	selected := make([]domain.Channel, 0, len(requested))
	for _, id := range requested {
		ch, ok := byID[id]
		if !ok {
			slog.DebugContext(ctx, "Ignoring channel that is not a text channel of the guild", "channel_id", id)
			continue
		}
		selected = append(selected, ch)
	}
	return selected, nil
}

// count fetches every channel concurrently into its own registry and merges
// the results in channel order.
func (s *Service) count(ctx context.Context, catalog []domain.Emoji, channels []domain.Channel, filter domain.Filter, window domain.TimeWindow) (*ranking.Registry, int, []string, error) {
	byID := make(map[string]domain.Emoji, len(catalog))
	for _, e := range catalog {
		byID[e.ID] = e
	}

	type channelResult struct {
		registry *ranking.Registry
		scanned  int
		skipped  string
	}
	results := make([]channelResult, len(channels))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.opts.FetchConcurrency))

	for i, ch := range channels {
		g.Go(func() error {
			messages, err := s.source.History(gctx, ch.ID, window)
			if reason := skipReason(err); reason != "" {
				slog.WarnContext(gctx, "Skipping unreadable channel", "channel_id", ch.ID, "channel", ch.Name, "reason", reason)
				results[i].skipped = reason
				return nil
			}
			if err != nil {
				return sourceError("failed to fetch channel history", err).WithField("channel_id", ch.ID)
			}

			if err := s.reactors.fill(gctx, messages, byID); err != nil {
				if reason := skipReason(err); reason != "" {
					slog.WarnContext(gctx, "Skipping channel with unreadable reactions", "channel_id", ch.ID, "channel", ch.Name, "reason", reason)
					results[i].skipped = reason
					return nil
				}
				return sourceError("failed to fetch reaction users", err).WithField("channel_id", ch.ID)
			}

			reg := ranking.NewRegistry(catalog)
			reg.Count(messages, filter)
			results[i] = channelResult{registry: reg, scanned: len(messages)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, nil, err
	}

	total := ranking.NewRegistry(catalog)
	scanned := 0
	var skipped []string
	for i, res := range results {
		if res.skipped != "" {
			skipped = append(skipped, channels[i].ID)
			if s.metrics != nil {
				s.metrics.ChannelsSkipped.WithLabelValues(res.skipped).Inc()
			}
			continue
		}
		if err := total.Merge(res.registry); err != nil {
			return nil, 0, nil, apperrors.InternalError("failed to merge channel counts", err)
		}
		scanned += res.scanned
	}
	return total, scanned, skipped, nil
}

// skipReason names why a channel contributes nothing instead of failing the
// report, or returns "" when err is not such a case.
func skipReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrChannelForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrChannelNotFound):
		return "not_found"
	default:
		return ""
	}
}

func (s *Service) memberNames(ctx context.Context, guildID string, userIDs []string) []string {
	names := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		name, err := s.source.MemberName(ctx, guildID, id)
		if err != nil || name == "" {
			slog.DebugContext(ctx, "Falling back to user id for display", "user_id", id, "error", err)
			name = id
		}
		names = append(names, name)
	}
	return names
}

// Settings returns the stored settings of a guild, or the process defaults
// when none are stored or the store is unavailable.
func (s *Service) Settings(ctx context.Context, guildID string) domain.GuildSettings {
	defaults := domain.GuildSettings{
		GuildID:             guildID,
		TimezoneOffsetHours: s.opts.TimezoneOffsetHours,
		DefaultRank:         s.opts.DefaultRank,
	}
	if s.settings == nil {
		return defaults
	}

	stored, err := s.settings.GetByGuildID(ctx, guildID)
	if errors.Is(err, domain.ErrSettingsNotFound) {
		return defaults
	}
	if err != nil {
		slog.WarnContext(ctx, "Failed to load guild settings, using defaults", "guild_id", guildID, "error", err)
		return defaults
	}
	return *stored
}

// UpdateSettings validates and stores the per-guild defaults.
func (s *Service) UpdateSettings(ctx context.Context, settings domain.GuildSettings) (domain.GuildSettings, error) {
	if s.settings == nil {
		return domain.GuildSettings{}, apperrors.ExternalError("guild settings storage is not configured", nil)
	}
	if settings.TimezoneOffsetHours < -12 || settings.TimezoneOffsetHours > 14 {
		return domain.GuildSettings{}, apperrors.ValidationError("timezone_offset_hours must be between -12 and 14", domain.ErrInvalidArgument).
			WithField("timezone_offset_hours", settings.TimezoneOffsetHours)
	}
	if settings.DefaultRank < 1 || settings.DefaultRank > s.opts.MaxRank {
		return domain.GuildSettings{}, apperrors.ValidationError(fmt.Sprintf("default_rank must be between 1 and %d", s.opts.MaxRank), domain.ErrInvalidArgument).
			WithField("default_rank", settings.DefaultRank)
	}

	settings.UpdatedAt = s.clock.Now()
	if err := s.settings.Upsert(ctx, settings); err != nil {
		return domain.GuildSettings{}, apperrors.InternalError("failed to save guild settings", err).WithField("guild_id", settings.GuildID)
	}
	return settings, nil
}

// sourceError maps message source failures onto structured errors.
func sourceError(message string, err error) *apperrors.Error {
	var structured *apperrors.Error
	if errors.As(err, &structured) {
		return structured
	}
	switch {
	case errors.Is(err, domain.ErrGuildNotFound):
		return apperrors.NotFoundError("server not found or bot is not a member").WithCause(err)
	case errors.Is(err, domain.ErrChannelForbidden):
		return apperrors.ForbiddenError(message + ": missing access").WithCause(err)
	default:
		return apperrors.ExternalError(message, err)
	}
}
