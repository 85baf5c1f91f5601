package discord

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/pscheid92/emojirank/internal/domain"
	"github.com/pscheid92/emojirank/internal/platform/retry"
)

func restStatus(err error) (status, code int, ok bool) {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Response == nil {
		return 0, 0, false
	}
	if restErr.Message != nil {
		code = restErr.Message.Code
	}
	return restErr.Response.StatusCode, code, true
}

// classify treats 429 as rate limited, 5xx and transport failures as
// transient, and every other REST error as permanent.
func classify(err error) retry.Action {
	status, _, ok := restStatus(err)
	if !ok {
		return retry.Retry
	}

	switch {
	case status == http.StatusTooManyRequests:
		return retry.After
	case status >= 500:
		return retry.Retry
	default:
		return retry.Stop
	}
}

// translate maps REST errors onto domain errors, keeping the original in the chain.
func translate(err error) error {
	status, code, ok := restStatus(err)
	if !ok {
		return err
	}

	switch {
	case status == http.StatusForbidden, code == discordgo.ErrCodeMissingAccess, code == discordgo.ErrCodeMissingPermissions:
		return fmt.Errorf("%w: %w", domain.ErrChannelForbidden, err)
	case code == discordgo.ErrCodeUnknownGuild:
		return fmt.Errorf("%w: %w", domain.ErrGuildNotFound, err)
	case code == discordgo.ErrCodeUnknownChannel:
		return fmt.Errorf("%w: %w", domain.ErrChannelNotFound, err)
	case code == discordgo.ErrCodeUnknownMessage:
		return fmt.Errorf("%w: %w", domain.ErrMessageNotFound, err)
	default:
		return err
	}
}
