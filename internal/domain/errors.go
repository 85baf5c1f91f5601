package domain

import "errors"

var (
	ErrGuildNotFound    = errors.New("guild not found")
	ErrChannelForbidden = errors.New("channel history is not readable")
	ErrChannelNotFound  = errors.New("channel not found")
	ErrMessageNotFound  = errors.New("message not found")
	ErrSettingsNotFound = errors.New("guild settings not found")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrRateLimited      = errors.New("report rate limit exceeded")
	ErrCatalogMismatch  = errors.New("counter catalogs differ")
)
