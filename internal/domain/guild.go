package domain

import (
	"context"
	"time"
)

type Guild struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

type Channel struct {
	ID   string
	Name string
}

// GuildSettings are per-guild report defaults.
type GuildSettings struct {
	GuildID             string
	TimezoneOffsetHours int
	DefaultRank         int
	UpdatedAt           time.Time
}

// Location returns the fixed-offset zone the guild's dates are interpreted in.
func (s GuildSettings) Location() *time.Location {
	return time.FixedZone("", s.TimezoneOffsetHours*3600)
}

// GuildSettingsRepository persists GuildSettings.
type GuildSettingsRepository interface {
	GetByGuildID(ctx context.Context, guildID string) (*GuildSettings, error)
	Upsert(ctx context.Context, settings GuildSettings) error
}
