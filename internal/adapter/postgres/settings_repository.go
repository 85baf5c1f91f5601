package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pscheid92/emojirank/internal/domain"
)

const (
	getSettingsSQL = `
SELECT guild_id, timezone_offset_hours, default_rank, updated_at
FROM guild_settings
WHERE guild_id = $1`

	upsertSettingsSQL = `
INSERT INTO guild_settings (guild_id, timezone_offset_hours, default_rank, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (guild_id) DO UPDATE
SET timezone_offset_hours = EXCLUDED.timezone_offset_hours,
    default_rank          = EXCLUDED.default_rank,
    updated_at            = EXCLUDED.updated_at`
)

type SettingsRepo struct {
	pool *pgxpool.Pool
}

var _ domain.GuildSettingsRepository = (*SettingsRepo)(nil)

func NewSettingsRepo(pool *pgxpool.Pool) *SettingsRepo {
	return &SettingsRepo{pool: pool}
}

func (r *SettingsRepo) GetByGuildID(ctx context.Context, guildID string) (*domain.GuildSettings, error) {
	var s domain.GuildSettings
	err := r.pool.QueryRow(ctx, getSettingsSQL, guildID).
		Scan(&s.GuildID, &s.TimezoneOffsetHours, &s.DefaultRank, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSettingsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guild settings: %w", err)
	}
	return &s, nil
}

func (r *SettingsRepo) Upsert(ctx context.Context, s domain.GuildSettings) error {
	if _, err := r.pool.Exec(ctx, upsertSettingsSQL, s.GuildID, s.TimezoneOffsetHours, s.DefaultRank, s.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert guild settings: %w", err)
	}
	return nil
}
