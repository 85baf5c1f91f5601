package httpserver

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/emojirank/internal/app"
	"github.com/pscheid92/emojirank/internal/domain"
	apperrors "github.com/pscheid92/emojirank/internal/platform/errors"
	"github.com/pscheid92/emojirank/internal/report"
)

var reportQueryKeys = []string{
	report.ArgChannel,
	report.ArgBefore,
	report.ArgAfter,
	report.ArgOrder,
	report.ArgRank,
	report.ArgBot,
	report.ArgUser,
}

type entryResponse struct {
	Rank          int    `json:"rank"`
	EmojiID       string `json:"emoji_id"`
	Name          string `json:"name"`
	Render        string `json:"render"`
	TextCount     int    `json:"text_count"`
	ReactionCount int    `json:"reaction_count"`
	Total         int    `json:"total"`
}

type reportResponse struct {
	ID              string          `json:"id"`
	GuildID         string          `json:"guild_id"`
	GeneratedAt     time.Time       `json:"generated_at"`
	Order           string          `json:"order"`
	Limit           int             `json:"limit"`
	MessagesScanned int             `json:"messages_scanned"`
	SkippedChannels []string        `json:"skipped_channels"`
	Entries         []entryResponse `json:"entries"`
	Embed           report.Embed    `json:"embed"`
}

type settingsRequest struct {
	TimezoneOffsetHours *int `json:"timezone_offset_hours"`
	DefaultRank         *int `json:"default_rank"`
}

type settingsResponse struct {
	GuildID             string     `json:"guild_id"`
	TimezoneOffsetHours int        `json:"timezone_offset_hours"`
	DefaultRank         int        `json:"default_rank"`
	UpdatedAt           *time.Time `json:"updated_at,omitempty"`
}

func (s *Server) registerAPIRoutes() {
	if s.apiAuth == nil {
		slog.Warn("API_TOKEN is not set, guild API is disabled")
		return
	}

	api := s.echo.Group("/api/guilds/:guildID")
	if s.apiLimiter != nil {
		api.Use(s.apiLimiter)
	}
	api.Use(s.apiAuth)
	api.GET("/emoji-ranking", s.handleEmojiRanking)
	api.GET("/settings", s.handleGetSettings)
	api.PUT("/settings", s.handlePutSettings)
}

func (s *Server) handleEmojiRanking(c echo.Context) error {
	guildID, err := guildParam(c)
	if err != nil {
		return err
	}

	args := make(map[string]string)
	for _, key := range reportQueryKeys {
		if v := c.QueryParam(key); v != "" {
			args[key] = v
		}
	}

	rep, err := s.reports.GenerateReport(c.Request().Context(), app.ReportRequest{
		GuildID: guildID,
		Args:    args,
		Source:  app.SourceHTTP,
	})
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, toReportResponse(rep)); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetSettings(c echo.Context) error {
	guildID, err := guildParam(c)
	if err != nil {
		return err
	}

	settings := s.reports.Settings(c.Request().Context(), guildID)
	if err := c.JSON(http.StatusOK, toSettingsResponse(settings)); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handlePutSettings(c echo.Context) error {
	ctx := c.Request().Context()

	guildID, err := guildParam(c)
	if err != nil {
		return err
	}

	var body settingsRequest
	if err := c.Bind(&body); err != nil {
		return apperrors.ValidationError("invalid settings body", err)
	}

	// Missing fields keep their current value.
	settings := s.reports.Settings(ctx, guildID)
	if body.TimezoneOffsetHours != nil {
		settings.TimezoneOffsetHours = *body.TimezoneOffsetHours
	}
	if body.DefaultRank != nil {
		settings.DefaultRank = *body.DefaultRank
	}
	settings.GuildID = guildID

	saved, err := s.reports.UpdateSettings(ctx, settings)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, toSettingsResponse(saved)); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// guildParam returns the guild snowflake from the path.
func guildParam(c echo.Context) (string, error) {
	guildID := c.Param("guildID")
	if _, err := strconv.ParseUint(guildID, 10, 64); err != nil {
		return "", apperrors.ValidationError("invalid guild id", err).WithField("guild_id", guildID)
	}
	return guildID, nil
}

func toReportResponse(rep *app.Report) reportResponse {
	entries := make([]entryResponse, len(rep.Entries))
	for i, e := range rep.Entries {
		entries[i] = entryResponse{
			Rank:          e.Rank,
			EmojiID:       e.Emoji.ID,
			Name:          e.Emoji.Name,
			Render:        e.Emoji.Render,
			TextCount:     e.TextCount,
			ReactionCount: e.ReactionCount,
			Total:         e.Total,
		}
	}
	skipped := rep.SkippedChannels
	if skipped == nil {
		skipped = []string{}
	}
	return reportResponse{
		ID:              rep.ID,
		GuildID:         rep.GuildID,
		GeneratedAt:     rep.GeneratedAt,
		Order:           rep.Request.Order.String(),
		Limit:           rep.Limit,
		MessagesScanned: rep.MessagesScanned,
		SkippedChannels: skipped,
		Entries:         entries,
		Embed:           rep.Embed,
	}
}

func toSettingsResponse(settings domain.GuildSettings) settingsResponse {
	resp := settingsResponse{
		GuildID:             settings.GuildID,
		TimezoneOffsetHours: settings.TimezoneOffsetHours,
		DefaultRank:         settings.DefaultRank,
	}
	if !settings.UpdatedAt.IsZero() {
		updated := settings.UpdatedAt
		resp.UpdatedAt = &updated
	}
	return resp
}
