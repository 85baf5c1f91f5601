package report

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pscheid92/emojirank/internal/domain"
)

// Argument keys shared by the slash command, the legacy text command and the HTTP API.
const (
	ArgChannel = "channel"
	ArgBefore  = "before"
	ArgAfter   = "after"
	ArgOrder   = "order"
	ArgRank    = "rank"
	ArgBot     = "bot"
	ArgUser    = "user"
)

// DateFormats are the accepted layouts for before/after.
var DateFormats = []string{"2006/01/02", "2006-01-02"}

// Request is a parsed report request.
type Request struct {
	ChannelIDs  []string
	Window      domain.TimeWindow
	Order       domain.SortOrder
	Rank        int
	IncludeBots bool
	UserIDs     []string
}

// Filter returns the counting filter for the request.
func (r Request) Filter() domain.Filter {
	return domain.NewFilter(r.UserIDs, r.IncludeBots)
}

// Key is a canonical representation used to collapse identical requests.
func (r Request) Key() string {
	channels := slices.Clone(r.ChannelIDs)
	slices.Sort(channels)
	users := slices.Clone(r.UserIDs)
	slices.Sort(users)

	return fmt.Sprintf("c=%s|a=%d|b=%d|o=%s|r=%d|bot=%t|u=%s",
		strings.Join(channels, ","),
		unixOrZero(r.Window.After),
		unixOrZero(r.Window.Before),
		r.Order,
		r.Rank,
		r.IncludeBots,
		strings.Join(users, ","),
	)
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// ParseOptions carries the guild-specific defaults used while parsing.
type ParseOptions struct {
	Location    *time.Location
	DefaultRank int
}

// ParseLegacyArgs splits "key=value key2=value2" into a map.
// Tokens without "=" or with an empty key are ignored.
func ParseLegacyArgs(raw string) map[string]string {
	parsed := make(map[string]string)
	for _, token := range strings.Fields(raw) {
		key, value, ok := strings.Cut(token, "=")
		if !ok || key == "" {
			continue
		}
		parsed[key] = value
	}
	return parsed
}

// ParseRequest converts raw arguments into a Request.
func ParseRequest(args map[string]string, opts ParseOptions) (Request, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	req := Request{
		Order: domain.ParseSortOrder(args[ArgOrder]),
		Rank:  opts.DefaultRank,
	}

	channels, err := parseIDList(args[ArgChannel], "<#>")
	if err != nil {
		return Request{}, fmt.Errorf("%w: channel: %w", domain.ErrInvalidArgument, err)
	}
	req.ChannelIDs = channels

	users, err := parseIDList(args[ArgUser], "<@!>")
	if err != nil {
		return Request{}, fmt.Errorf("%w: user: %w", domain.ErrInvalidArgument, err)
	}
	req.UserIDs = users

	if v := args[ArgBefore]; v != "" {
		t, err := parseDate(v, loc)
		if err != nil {
			return Request{}, fmt.Errorf("%w: before: %w", domain.ErrInvalidArgument, err)
		}
		req.Window.Before = t
	}
	if v := args[ArgAfter]; v != "" {
		t, err := parseDate(v, loc)
		if err != nil {
			return Request{}, fmt.Errorf("%w: after: %w", domain.ErrInvalidArgument, err)
		}
		req.Window.After = t
	}
	if !req.Window.After.IsZero() && !req.Window.Before.IsZero() && !req.Window.After.Before(req.Window.Before) {
		return Request{}, fmt.Errorf("%w: after must be earlier than before", domain.ErrInvalidArgument)
	}

	if v := args[ArgRank]; v != "" {
		rank, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return Request{}, fmt.Errorf("%w: rank %q is not a number", domain.ErrInvalidArgument, v)
		}
		req.Rank = rank
	}

	if v := args[ArgBot]; v != "" {
		bot, err := parseBool(v)
		if err != nil {
			return Request{}, fmt.Errorf("%w: bot: %w", domain.ErrInvalidArgument, err)
		}
		req.IncludeBots = bot
	}

	return req, nil
}

// parseIDList splits a comma-separated list of snowflakes, stripping mention
// decoration characters such as "<@!123>".
func parseIDList(raw, decoration string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var ids []string
	for part := range strings.SplitSeq(raw, ",") {
		id := strings.Trim(strings.TrimSpace(part), decoration)
		if id == "" {
			continue
		}
		if _, err := strconv.ParseUint(id, 10, 64); err != nil {
			return nil, fmt.Errorf("%q is not an ID", part)
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func parseDate(value string, loc *time.Location) (time.Time, error) {
	for _, layout := range DateFormats {
		if t, err := time.ParseInLocation(layout, strings.TrimSpace(value), loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q does not match YYYY/MM/DD or YYYY-MM-DD", value)
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	default:
		return false, fmt.Errorf("%q is not a boolean", value)
	}
}
