package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/emojirank/internal/adapter/metrics"
	"github.com/pscheid92/emojirank/internal/domain"
	apperrors "github.com/pscheid92/emojirank/internal/platform/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockSource struct {
	guildFn         func(ctx context.Context, guildID string) (*domain.Guild, error)
	emojisFn        func(ctx context.Context, guildID string) ([]domain.Emoji, error)
	textChannelsFn  func(ctx context.Context, guildID string) ([]domain.Channel, error)
	historyFn       func(ctx context.Context, channelID string, window domain.TimeWindow) ([]domain.Message, error)
	reactionUsersFn func(ctx context.Context, channelID, messageID string, emoji domain.Emoji) ([]domain.Reactor, error)
	memberNameFn    func(ctx context.Context, guildID, userID string) (string, error)
}

func (m *mockSource) Guild(ctx context.Context, guildID string) (*domain.Guild, error) {
	if m.guildFn != nil {
		return m.guildFn(ctx, guildID)
	}
	return &domain.Guild{ID: guildID, Name: "test", CreatedAt: time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC)}, nil
}

func (m *mockSource) Emojis(ctx context.Context, guildID string) ([]domain.Emoji, error) {
	if m.emojisFn != nil {
		return m.emojisFn(ctx, guildID)
	}
	return nil, nil
}

func (m *mockSource) TextChannels(ctx context.Context, guildID string) ([]domain.Channel, error) {
	if m.textChannelsFn != nil {
		return m.textChannelsFn(ctx, guildID)
	}
	return nil, nil
}

func (m *mockSource) History(ctx context.Context, channelID string, window domain.TimeWindow) ([]domain.Message, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, channelID, window)
	}
	return nil, nil
}

func (m *mockSource) ReactionUsers(ctx context.Context, channelID, messageID string, emoji domain.Emoji) ([]domain.Reactor, error) {
	if m.reactionUsersFn != nil {
		return m.reactionUsersFn(ctx, channelID, messageID, emoji)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockSource) MemberName(ctx context.Context, guildID, userID string) (string, error) {
	if m.memberNameFn != nil {
		return m.memberNameFn(ctx, guildID, userID)
	}
	return "", fmt.Errorf("not implemented")
}

type mockSettingsRepo struct {
	getByGuildIDFn func(ctx context.Context, guildID string) (*domain.GuildSettings, error)
	upsertFn       func(ctx context.Context, settings domain.GuildSettings) error
}

func (m *mockSettingsRepo) GetByGuildID(ctx context.Context, guildID string) (*domain.GuildSettings, error) {
	if m.getByGuildIDFn != nil {
		return m.getByGuildIDFn(ctx, guildID)
	}
	return nil, domain.ErrSettingsNotFound
}

func (m *mockSettingsRepo) Upsert(ctx context.Context, settings domain.GuildSettings) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, settings)
	}
	return nil
}

type mockReactorCache struct {
	mu      sync.Mutex
	entries map[string][]domain.Reactor
	getErr  error
}

func newMockReactorCache() *mockReactorCache {
	return &mockReactorCache{entries: make(map[string][]domain.Reactor)}
}

func (m *mockReactorCache) Get(_ context.Context, channelID, messageID, emojiID string) ([]domain.Reactor, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	users, ok := m.entries[channelID+"/"+messageID+"/"+emojiID]
	return users, ok, nil
}

func (m *mockReactorCache) Set(_ context.Context, channelID, messageID, emojiID string, reactors []domain.Reactor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[channelID+"/"+messageID+"/"+emojiID] = reactors
	return nil
}

// --- Fixtures ---

var (
	testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	emojiParty = domain.Emoji{ID: "101", Name: ":party:", Render: "<:party:101>"}
	emojiCat   = domain.Emoji{ID: "102", Name: ":cat:", Render: "<:cat:102>"}
	emojiSad   = domain.Emoji{ID: "103", Name: ":sad:", Render: "<:sad:103>"}

	testCatalog  = []domain.Emoji{emojiParty, emojiCat, emojiSad}
	testChannels = []domain.Channel{{ID: "c1", Name: "general"}, {ID: "c2", Name: "random"}}
)

func defaultOptions() Options {
	return Options{
		DefaultRank:      10,
		MaxRank:          25,
		FetchConcurrency: 2,
		ReportsPerMinute: 60,
	}
}

// fixtureSource serves two channels:
//
//	c1: alice writes ":party: :party:", bob writes ":cat:", a bot writes ":party:",
//	    one :party: reaction by two humans
//	c2: alice writes ":cat: hi", one :cat: reaction by a bot only, one unicode reaction
func fixtureSource() *mockSource {
	history := map[string][]domain.Message{
		"c1": {
			{ID: "m1", ChannelID: "c1", AuthorID: "alice", Content: "hello :party: :party:",
				Reactions: []domain.Reaction{{EmojiID: "101", EmojiName: "party", Count: 2}}},
			{ID: "m2", ChannelID: "c1", AuthorID: "bob", Content: ":cat:"},
			{ID: "m3", ChannelID: "c1", AuthorID: "robot", AuthorBot: true, Content: ":party:"},
		},
		"c2": {
			{ID: "m4", ChannelID: "c2", AuthorID: "alice", Content: ":cat: hi",
				Reactions: []domain.Reaction{
					{EmojiID: "102", EmojiName: "cat", Count: 1},
					{EmojiName: "👍", Count: 3},
				}},
		},
	}
	reactors := map[string][]domain.Reactor{
		"m1/101": {{ID: "alice"}, {ID: "bob"}},
		"m4/102": {{ID: "robot", Bot: true}},
	}

	return &mockSource{
		emojisFn:       func(context.Context, string) ([]domain.Emoji, error) { return testCatalog, nil },
		textChannelsFn: func(context.Context, string) ([]domain.Channel, error) { return testChannels, nil },
		historyFn: func(_ context.Context, channelID string, _ domain.TimeWindow) ([]domain.Message, error) {
			// hand out copies so concurrent tests never share reaction slices
			src := history[channelID]
			out := make([]domain.Message, len(src))
			for i, m := range src {
				m.Reactions = append([]domain.Reaction(nil), m.Reactions...)
				out[i] = m
			}
			return out, nil
		},
		reactionUsersFn: func(_ context.Context, _, messageID string, emoji domain.Emoji) ([]domain.Reactor, error) {
			users, ok := reactors[messageID+"/"+emoji.ID]
			if !ok {
				return nil, fmt.Errorf("unexpected reaction lookup %s/%s", messageID, emoji.ID)
			}
			return users, nil
		},
		memberNameFn: func(_ context.Context, _, userID string) (string, error) {
			if userID == "111" {
				return "Alice", nil
			}
			return "", errors.New("unknown member")
		},
	}
}

func newTestService(source MessageSource, settings domain.GuildSettingsRepository, cache ReactorCache) (*Service, *clockwork.FakeClock, *metrics.ReportMetrics) {
	clock := clockwork.NewFakeClockAt(testNow)
	reg := metrics.NewRegistry()
	rm := metrics.NewReportMetrics(reg)
	cm := metrics.NewCacheMetrics(reg)
	return NewService(source, settings, cache, defaultOptions(), clock, rm, cm), clock, rm
}

func totals(entries []domain.RankedEntry) map[string][3]int {
	out := make(map[string][3]int, len(entries))
	for _, e := range entries {
		out[e.Emoji.ID] = [3]int{e.TextCount, e.ReactionCount, e.Rank}
	}
	return out
}

// --- GenerateReport ---

func TestGenerateReport_CountsAcrossChannels(t *testing.T) {
	svc, _, rm := newTestService(fixtureSource(), nil, nil)

	rep, err := svc.GenerateReport(context.Background(), ReportRequest{GuildID: "g1", Source: SourceSlash})
	require.NoError(t, err)

	require.Len(t, rep.Entries, 3)
	// cat: text in m2 and m4 = 2, bot-only reaction ignored
	// party: text in m1 = 1 (bot message excluded), reaction on m1 = 1
	assert.Equal(t, map[string][3]int{
		"101": {1, 1, 1},
		"102": {2, 0, 1},
		"103": {0, 0, 3},
	}, totals(rep.Entries))
	assert.Equal(t, emojiParty, rep.Entries[0].Emoji, "ties keep catalog order")

	assert.Equal(t, 3, rep.Limit)
	assert.Equal(t, 4, rep.MessagesScanned)
	assert.Empty(t, rep.SkippedChannels)
	assert.Equal(t, "Emoji Usage Ranking Top 3", rep.Embed.Title)
	assert.Equal(t, "2021/05/01 ~ 2024/03/10", rep.Embed.Description)
	assert.Equal(t, "1st <:party:101> Total: 2 times", rep.Embed.Fields[0].Name)
	assert.Equal(t, "In Messages: 1 Reactions: 1", rep.Embed.Fields[0].Value)

	assert.InDelta(t, 1, testutil.ToFloat64(rm.ReportsTotal.WithLabelValues(SourceSlash, "ok")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(rm.MessagesScanned), 0)
}

func TestGenerateReport_IncludeBots(t *testing.T) {
	svc, _, _ := newTestService(fixtureSource(), nil, nil)

	rep, err := svc.GenerateReport(context.Background(), ReportRequest{
		GuildID: "g1",
		Args:    map[string]string{"bot": "true"},
	})
	require.NoError(t, err)

	got := totals(rep.Entries)
	assert.Equal(t, [3]int{2, 1, 1}, got["101"])
	assert.Equal(t, [3]int{2, 1, 1}, got["102"])
}

func TestGenerateReport_UserFilterAndNames(t *testing.T) {
	src := fixtureSource()
	src.historyFn = func(context.Context, string, domain.TimeWindow) ([]domain.Message, error) {
		return []domain.Message{
			{ID: "m1", ChannelID: "c1", AuthorID: "111", Content: ":cat:"},
			{ID: "m2", ChannelID: "c1", AuthorID: "222", Content: ":party:"},
		}, nil
	}
	svc, _, _ := newTestService(src, nil, nil)

	rep, err := svc.GenerateReport(context.Background(), ReportRequest{
		GuildID: "g1",
		Args:    map[string]string{"user": "111,333", "channel": "c1"},
	})
	require.Error(t, err, "channel ids must be snowflakes")

	src.textChannelsFn = func(context.Context, string) ([]domain.Channel, error) {
		return []domain.Channel{{ID: "900", Name: "general"}}, nil
	}
	rep, err = svc.GenerateReport(context.Background(), ReportRequest{
		GuildID: "g1",
		Args:    map[string]string{"user": "111,333", "channel": "900"},
	})
	require.NoError(t, err)

	got := totals(rep.Entries)
	assert.Equal(t, 1, got["102"][0])
	assert.Equal(t, 0, got["101"][0])
	assert.Contains(t, rep.Embed.Description, "User: Alice, 333")
}

func TestGenerateReport_AscendingAndLimit(t *testing.T) {
	svc, _, _ := newTestService(fixtureSource(), nil, nil)

	rep, err := svc.GenerateReport(context.Background(), ReportRequest{
		GuildID: "g1",
		Args:    map[string]string{"order": "ascending", "rank": "2"},
	})
	require.NoError(t, err)

	require.Len(t, rep.Entries, 2)
	assert.Equal(t, emojiSad, rep.Entries[0].Emoji)
	assert.Equal(t, 1, rep.Entries[0].Rank)
	assert.Equal(t, 2, rep.Entries[1].Rank)
	assert.Equal(t, "Emoji Usage Ranking Top 2 Worst", rep.Embed.Title)
}

func TestGenerateReport_LimitClampedToCatalog(t *testing.T) {
	svc, _, _ := newTestService(fixtureSource(), nil, nil)

	for _, rank := range []string{"0", "-4", "99"} {
		rep, err := svc.GenerateReport(context.Background(), ReportRequest{
			GuildID: "g1",
			Args:    map[string]string{"rank": rank},
		})
		require.NoError(t, err, rank)
		if rank == "99" {
			assert.Equal(t, 3, rep.Limit)
		} else {
			assert.Equal(t, 1, rep.Limit)
		}
	}
}

func TestGenerateReport_EmptyCatalog(t *testing.T) {
	src := fixtureSource()
	src.emojisFn = func(context.Context, string) ([]domain.Emoji, error) { return nil, nil }
	svc, _, _ := newTestService(src, nil, nil)

	rep, err := svc.GenerateReport(context.Background(), ReportRequest{GuildID: "g1"})
	require.NoError(t, err)
	assert.Empty(t, rep.Entries)
	assert.Equal(t, 0, rep.Limit)
}

func TestGenerateReport_ForbiddenChannelSkipped(t *testing.T) {
	src := fixtureSource()
	inner := src.historyFn
	src.historyFn = func(ctx context.Context, channelID string, w domain.TimeWindow) ([]domain.Message, error) {
		if channelID == "c2" {
			return nil, fmt.Errorf("history: %w", domain.ErrChannelForbidden)
		}
		return inner(ctx, channelID, w)
	}
	svc, _, rm := newTestService(src, nil, nil)

	rep, err := svc.GenerateReport(context.Background(), ReportRequest{GuildID: "g1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"c2"}, rep.SkippedChannels)
	assert.Equal(t, 1, totals(rep.Entries)["102"][0])
	assert.InDelta(t, 1, testutil.ToFloat64(rm.ChannelsSkipped.WithLabelValues("forbidden")), 0)
}

func TestGenerateReport_DeletedChannelSkipped(t *testing.T) {
	src := fixtureSource()
	inner := src.historyFn
	src.historyFn = func(ctx context.Context, channelID string, w domain.TimeWindow) ([]domain.Message, error) {
		if channelID == "c1" {
			return nil, fmt.Errorf("history: %w", domain.ErrChannelNotFound)
		}
		return inner(ctx, channelID, w)
	}
	svc, _, rm := newTestService(src, nil, nil)

	rep, err := svc.GenerateReport(context.Background(), ReportRequest{GuildID: "g1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"c1"}, rep.SkippedChannels)
	assert.Equal(t, 1, rep.MessagesScanned)
	assert.Equal(t, [3]int{1, 0, 1}, totals(rep.Entries)["102"])
	assert.InDelta(t, 1, testutil.ToFloat64(rm.ChannelsSkipped.WithLabelValues("not_found")), 0)
}

func TestGenerateReport_MessageDeletedBeforeReactionLookup(t *testing.T) {
	src := fixtureSource()
	inner := src.reactionUsersFn
	src.reactionUsersFn = func(ctx context.Context, channelID, messageID string, emoji domain.Emoji) ([]domain.Reactor, error) {
		if messageID == "m1" {
			return nil, fmt.Errorf("reactions: %w", domain.ErrMessageNotFound)
		}
		return inner(ctx, channelID, messageID, emoji)
	}
	svc, _, _ := newTestService(src, nil, nil)

	rep, err := svc.GenerateReport(context.Background(), ReportRequest{GuildID: "g1"})
	require.NoError(t, err)

	assert.Empty(t, rep.SkippedChannels)
	assert.Equal(t, 4, rep.MessagesScanned)
	// m1 keeps its text use but its reaction no longer counts
	assert.Equal(t, [3]int{1, 0, 2}, totals(rep.Entries)["101"])
	assert.Equal(t, [3]int{2, 0, 1}, totals(rep.Entries)["102"])
}

func TestGenerateReport_HistoryFailure(t *testing.T) {
	src := fixtureSource()
	src.historyFn = func(context.Context, string, domain.TimeWindow) ([]domain.Message, error) {
		return nil, errors.New("gateway timeout")
	}
	svc, _, rm := newTestService(src, nil, nil)

	_, err := svc.GenerateReport(context.Background(), ReportRequest{GuildID: "g1", Source: SourceHTTP})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeExternal))
	assert.InDelta(t, 1, testutil.ToFloat64(rm.ReportsTotal.WithLabelValues(SourceHTTP, "external")), 0)
}

func TestGenerateReport_GuildNotFound(t *testing.T) {
	src := fixtureSource()
	src.guildFn = func(context.Context, string) (*domain.Guild, error) {
		return nil, domain.ErrGuildNotFound
	}
	svc, _, _ := newTestService(src, nil, nil)

	_, err := svc.GenerateReport(context.Background(), ReportRequest{GuildID: "g1"})
	assert.True(t, apperrors.IsType(err, apperrors.TypeNotFound))
	assert.ErrorIs(t, err, domain.ErrGuildNotFound)
}

func TestGenerateReport_InvalidArguments(t *testing.T) {
	svc, _, _ := newTestService(fixtureSource(), nil, nil)

	_, err := svc.GenerateReport(context.Background(), ReportRequest{
		GuildID: "g1",
		Args:    map[string]string{"before": "yesterday"},
	})
	assert.True(t, apperrors.IsType(err, apperrors.TypeValidation))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestGenerateReport_UnknownChannelIgnored(t *testing.T) {
	src := fixtureSource()
	var fetched []string
	inner := src.historyFn
	src.historyFn = func(ctx context.Context, channelID string, w domain.TimeWindow) ([]domain.Message, error) {
		fetched = append(fetched, channelID)
		return inner(ctx, channelID, w)
	}
	src.textChannelsFn = func(context.Context, string) ([]domain.Channel, error) {
		return []domain.Channel{{ID: "900", Name: "general"}}, nil
	}
	svc, _, _ := newTestService(src, nil, nil)
	svc.opts.FetchConcurrency = 1

	rep, err := svc.GenerateReport(context.Background(), ReportRequest{
		GuildID: "g1",
		Args:    map[string]string{"channel": "<#12345>,900"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"900"}, fetched)
	assert.Equal(t, 0, rep.MessagesScanned, "fixture has no history for channel 900")
}

func TestGenerateReport_RateLimitedPerGuild(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	opts := defaultOptions()
	opts.ReportsPerMinute = 1
	svc := NewService(fixtureSource(), nil, nil, opts, clock, nil, nil)
	ctx := context.Background()

	_, err := svc.GenerateReport(ctx, ReportRequest{GuildID: "g1"})
	require.NoError(t, err)

	_, err = svc.GenerateReport(ctx, ReportRequest{GuildID: "g1"})
	assert.True(t, apperrors.IsType(err, apperrors.TypeRateLimited))
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	_, err = svc.GenerateReport(ctx, ReportRequest{GuildID: "g2"})
	assert.NoError(t, err, "other guilds have their own budget")

	clock.Advance(time.Minute)
	_, err = svc.GenerateReport(ctx, ReportRequest{GuildID: "g1"})
	assert.NoError(t, err)
}

func TestGenerateReport_CollapsesIdenticalRequests(t *testing.T) {
	src := fixtureSource()
	release := make(chan struct{})
	var guildCalls atomic.Int32
	src.guildFn = func(_ context.Context, guildID string) (*domain.Guild, error) {
		guildCalls.Add(1)
		<-release
		return &domain.Guild{ID: guildID, CreatedAt: testNow}, nil
	}
	svc, _, _ := newTestService(src, nil, nil)

	var wg sync.WaitGroup
	reports := make([]*Report, 2)
	for i := range reports {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rep, err := svc.GenerateReport(context.Background(), ReportRequest{GuildID: "g1"})
			assert.NoError(t, err)
			reports[i] = rep
		}()
	}

	require.Eventually(t, func() bool { return guildCalls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), guildCalls.Load())
	assert.Same(t, reports[0], reports[1])
}

func TestGenerateReport_CollapsedCallerSurvivesCancelledStarter(t *testing.T) {
	src := fixtureSource()
	release := make(chan struct{})
	var guildCalls atomic.Int32
	src.guildFn = func(ctx context.Context, guildID string) (*domain.Guild, error) {
		guildCalls.Add(1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			return &domain.Guild{ID: guildID, CreatedAt: testNow}, nil
		}
	}
	svc, _, rm := newTestService(src, nil, nil)

	httpCtx, cancelHTTP := context.WithCancel(context.Background())
	httpErr := make(chan error, 1)
	go func() {
		_, err := svc.GenerateReport(httpCtx, ReportRequest{GuildID: "g1", Source: SourceHTTP})
		httpErr <- err
	}()
	require.Eventually(t, func() bool { return guildCalls.Load() == 1 }, time.Second, time.Millisecond)

	type outcome struct {
		rep *Report
		err error
	}
	slash := make(chan outcome, 1)
	go func() {
		rep, err := svc.GenerateReport(context.Background(), ReportRequest{GuildID: "g1", Source: SourceSlash})
		slash <- outcome{rep, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelHTTP()
	select {
	case err := <-httpErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(release)
	select {
	case got := <-slash:
		require.NoError(t, got.err)
		assert.Equal(t, "g1", got.rep.GuildID)
	case <-time.After(time.Second):
		t.Fatal("collapsed caller never got its report")
	}

	assert.Equal(t, int32(1), guildCalls.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(rm.ReportsTotal.WithLabelValues(SourceHTTP, "cancelled")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(rm.ReportsTotal.WithLabelValues(SourceSlash, "ok")), 0)
}

func TestGenerateReport_SharedRunIsBoundedByTimeout(t *testing.T) {
	src := fixtureSource()
	src.guildFn = func(ctx context.Context, _ string) (*domain.Guild, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	clock := clockwork.NewFakeClockAt(testNow)
	opts := defaultOptions()
	opts.ReportTimeout = 20 * time.Millisecond
	svc := NewService(src, nil, nil, opts, clock, nil, nil)

	_, err := svc.GenerateReport(context.Background(), ReportRequest{GuildID: "g1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// --- Reactor cache ---

func TestGenerateReport_UsesReactorCache(t *testing.T) {
	src := fixtureSource()
	inner := src.reactionUsersFn
	var lookups atomic.Int32
	src.reactionUsersFn = func(ctx context.Context, channelID, messageID string, emoji domain.Emoji) ([]domain.Reactor, error) {
		lookups.Add(1)
		return inner(ctx, channelID, messageID, emoji)
	}
	cache := newMockReactorCache()
	svc, clock, _ := newTestService(src, nil, cache)
	ctx := context.Background()

	first, err := svc.GenerateReport(ctx, ReportRequest{GuildID: "g1"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), lookups.Load())
	assert.Len(t, cache.entries, 2)

	clock.Advance(time.Minute)
	second, err := svc.GenerateReport(ctx, ReportRequest{GuildID: "g1"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), lookups.Load(), "second run is served from cache")
	assert.Equal(t, totals(first.Entries), totals(second.Entries))
}

func TestGenerateReport_ReactorCacheFailureFallsThrough(t *testing.T) {
	cache := newMockReactorCache()
	cache.getErr = errors.New("redis down")
	svc, _, _ := newTestService(fixtureSource(), nil, cache)

	rep, err := svc.GenerateReport(context.Background(), ReportRequest{GuildID: "g1"})
	require.NoError(t, err)
	assert.Equal(t, 1, totals(rep.Entries)["101"][1])
}

// --- Settings ---

func TestSettings_Fallbacks(t *testing.T) {
	stored := &domain.GuildSettings{GuildID: "g1", TimezoneOffsetHours: 9, DefaultRank: 5}

	tests := []struct {
		name string
		repo domain.GuildSettingsRepository
		want domain.GuildSettings
	}{
		{"no repository", nil, domain.GuildSettings{GuildID: "g1", DefaultRank: 10}},
		{"not found", &mockSettingsRepo{}, domain.GuildSettings{GuildID: "g1", DefaultRank: 10}},
		{"store error", &mockSettingsRepo{getByGuildIDFn: func(context.Context, string) (*domain.GuildSettings, error) {
			return nil, errors.New("connection refused")
		}}, domain.GuildSettings{GuildID: "g1", DefaultRank: 10}},
		{"stored", &mockSettingsRepo{getByGuildIDFn: func(context.Context, string) (*domain.GuildSettings, error) {
			return stored, nil
		}}, *stored},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestService(fixtureSource(), tt.repo, nil)
			assert.Equal(t, tt.want, svc.Settings(context.Background(), "g1"))
		})
	}
}

func TestGenerateReport_AppliesGuildSettings(t *testing.T) {
	repo := &mockSettingsRepo{getByGuildIDFn: func(context.Context, string) (*domain.GuildSettings, error) {
		return &domain.GuildSettings{GuildID: "g1", TimezoneOffsetHours: 9, DefaultRank: 2}, nil
	}}
	var window domain.TimeWindow
	src := fixtureSource()
	inner := src.historyFn
	src.historyFn = func(ctx context.Context, channelID string, w domain.TimeWindow) ([]domain.Message, error) {
		window = w
		return inner(ctx, channelID, w)
	}
	svc, _, _ := newTestService(src, repo, nil)
	svc.opts.FetchConcurrency = 1

	rep, err := svc.GenerateReport(context.Background(), ReportRequest{
		GuildID: "g1",
		Args:    map[string]string{"after": "2024/01/01"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Limit)
	assert.Equal(t, time.Date(2023, 12, 31, 15, 0, 0, 0, time.UTC), window.After.UTC())
	assert.Equal(t, "2024/01/01 ~ 2024/03/10", rep.Embed.Description)
}

func TestUpdateSettings(t *testing.T) {
	var saved domain.GuildSettings
	repo := &mockSettingsRepo{upsertFn: func(_ context.Context, s domain.GuildSettings) error {
		saved = s
		return nil
	}}
	svc, _, _ := newTestService(fixtureSource(), repo, nil)

	got, err := svc.UpdateSettings(context.Background(), domain.GuildSettings{GuildID: "g1", TimezoneOffsetHours: -5, DefaultRank: 15})
	require.NoError(t, err)
	assert.Equal(t, testNow, got.UpdatedAt)
	assert.Equal(t, got, saved)
}

func TestUpdateSettings_Validation(t *testing.T) {
	svc, _, _ := newTestService(fixtureSource(), &mockSettingsRepo{}, nil)

	for _, s := range []domain.GuildSettings{
		{GuildID: "g1", TimezoneOffsetHours: 15, DefaultRank: 10},
		{GuildID: "g1", TimezoneOffsetHours: -13, DefaultRank: 10},
		{GuildID: "g1", DefaultRank: 0},
		{GuildID: "g1", DefaultRank: 26},
	} {
		_, err := svc.UpdateSettings(context.Background(), s)
		assert.True(t, apperrors.IsType(err, apperrors.TypeValidation), "%+v", s)
	}
}

func TestUpdateSettings_NoStore(t *testing.T) {
	svc, _, _ := newTestService(fixtureSource(), nil, nil)

	_, err := svc.UpdateSettings(context.Background(), domain.GuildSettings{GuildID: "g1", DefaultRank: 10})
	assert.True(t, apperrors.IsType(err, apperrors.TypeExternal))
}

func TestUpdateSettings_StoreFailure(t *testing.T) {
	repo := &mockSettingsRepo{upsertFn: func(context.Context, domain.GuildSettings) error {
		return errors.New("disk full")
	}}
	svc, _, _ := newTestService(fixtureSource(), repo, nil)

	_, err := svc.UpdateSettings(context.Background(), domain.GuildSettings{GuildID: "g1", DefaultRank: 10})
	assert.True(t, apperrors.IsType(err, apperrors.TypeInternal))
}
