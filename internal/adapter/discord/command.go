package discord

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/pscheid92/emojirank/internal/app"
	"github.com/pscheid92/emojirank/internal/platform/correlation"
	apperrors "github.com/pscheid92/emojirank/internal/platform/errors"
	"github.com/pscheid92/emojirank/internal/report"
)

const (
	CommandName = "emoji_ranking"

	legacyPrefix  = "/" + CommandName
	reportTimeout = 10 * time.Minute
	genericFailed = "Failed to build the emoji ranking, please try again later."
)

// Reporter produces ranking reports.
type Reporter interface {
	GenerateReport(ctx context.Context, in app.ReportRequest) (*app.Report, error)
}

// session is the subset of *discordgo.Session used to answer commands.
type session interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ApplicationCommandCreate(appID string, guildID string, cmd *discordgo.ApplicationCommand, options ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error)
}

// CommandHandler serves /emoji_ranking as a slash command and as the legacy
// "/emoji_ranking key=value ..." text message.
type CommandHandler struct {
	reporter Reporter
	maxRank  int
}

func NewCommandHandler(reporter Reporter, maxRank int) *CommandHandler {
	return &CommandHandler{reporter: reporter, maxRank: maxRank}
}

// Definition describes the slash command and its options.
func (h *CommandHandler) Definition() *discordgo.ApplicationCommand {
	minRank := 1.0
	dmAllowed := false
	return &discordgo.ApplicationCommand{
		Name:         CommandName,
		Description:  "Show usage ranking of custom emojis.",
		DMPermission: &dmAllowed,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        report.ArgChannel,
				Description: "Channel IDs or mentions separated by ','",
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        report.ArgBefore,
				Description: "Count messages before this date (YYYY/MM/DD or YYYY-MM-DD)",
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        report.ArgAfter,
				Description: "Count messages after this date",
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        report.ArgOrder,
				Description: "Sort order (ascending or descending)",
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "Descending", Value: "descending"},
					{Name: "Ascending", Value: "ascending"},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        report.ArgRank,
				Description: "Number of rankings to display (1-" + strconv.Itoa(h.maxRank) + ")",
				MinValue:    &minRank,
				MaxValue:    float64(h.maxRank),
			},
			{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        report.ArgBot,
				Description: "Include bot messages and reactions",
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        report.ArgUser,
				Description: "User IDs or mentions separated by ','",
			},
		},
	}
}

// Register creates the slash command, globally when guildID is empty.
func (h *CommandHandler) Register(s session, appID, guildID string) error {
	cmd, err := s.ApplicationCommandCreate(appID, guildID, h.Definition())
	if err != nil {
		return err
	}
	slog.Info("Registered slash command", "command", cmd.Name, "command_id", cmd.ID, "guild_id", guildID)
	return nil
}

// OnInteraction is the discordgo handler for interaction events.
func (h *CommandHandler) OnInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	h.HandleInteraction(context.Background(), s, i.Interaction)
}

// OnMessageCreate is the discordgo handler for the legacy text command.
func (h *CommandHandler) OnMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	h.HandleMessage(context.Background(), s, m.Message)
}

func (h *CommandHandler) HandleInteraction(ctx context.Context, s session, i *discordgo.Interaction) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != CommandName {
		return
	}

	ctx = correlation.WithGuild(correlation.WithID(ctx, i.ID), i.GuildID)

	if i.GuildID == "" {
		err := s.InteractionRespond(i, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: "This command can only be used in a server.",
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		})
		if err != nil {
			slog.ErrorContext(ctx, "Failed to answer interaction", "error", err)
		}
		return
	}

	// Counting can take longer than the 3s interaction deadline.
	if err := s.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		slog.ErrorContext(ctx, "Failed to defer interaction", "error", err)
		return
	}

	embed, text := h.run(ctx, app.ReportRequest{
		GuildID: i.GuildID,
		Args:    optionArgs(data.Options),
		Source:  app.SourceSlash,
	})

	edit := &discordgo.WebhookEdit{}
	if embed != nil {
		edit.Embeds = &[]*discordgo.MessageEmbed{embed}
	} else {
		edit.Content = &text
	}
	if _, err := s.InteractionResponseEdit(i, edit); err != nil {
		slog.ErrorContext(ctx, "Failed to send ranking", "error", err)
	}
}

func (h *CommandHandler) HandleMessage(ctx context.Context, s session, m *discordgo.Message) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	raw, ok := legacyArgs(m.Content)
	if !ok {
		return
	}

	ctx = correlation.WithGuild(correlation.WithID(ctx, m.ID), m.GuildID)

	embed, text := h.run(ctx, app.ReportRequest{
		GuildID: m.GuildID,
		Args:    report.ParseLegacyArgs(raw),
		Source:  app.SourceText,
	})

	var err error
	if embed != nil {
		_, err = s.ChannelMessageSendEmbed(m.ChannelID, embed)
	} else {
		_, err = s.ChannelMessageSend(m.ChannelID, text)
	}
	if err != nil {
		slog.ErrorContext(ctx, "Failed to send ranking", "channel_id", m.ChannelID, "error", err)
	}
}

// run generates the report and returns either its embed or a user-facing error text.
func (h *CommandHandler) run(ctx context.Context, in app.ReportRequest) (*discordgo.MessageEmbed, string) {
	ctx, cancel := context.WithTimeout(ctx, reportTimeout)
	defer cancel()

	rep, err := h.reporter.GenerateReport(ctx, in)
	if err != nil {
		slog.WarnContext(ctx, "Emoji ranking failed", "source", in.Source, "error", err)
		return nil, userMessage(err)
	}
	return toEmbed(rep.Embed), ""
}

func userMessage(err error) string {
	structured := apperrors.AsStructuredError(err)
	switch structured.Type {
	case apperrors.TypeValidation, apperrors.TypeRateLimited, apperrors.TypeNotFound, apperrors.TypeForbidden:
		return structured.Message
	default:
		return genericFailed
	}
}

// legacyArgs returns the argument part of a "/emoji_ranking ..." message.
func legacyArgs(content string) (string, bool) {
	content = strings.TrimSpace(content)
	rest, ok := strings.CutPrefix(content, legacyPrefix)
	if !ok {
		return "", false
	}
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' && rest[0] != '\n' {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// optionArgs flattens slash command options into the same key/value form the
// legacy text command uses.
func optionArgs(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]string {
	args := make(map[string]string, len(options))
	for _, opt := range options {
		if opt == nil {
			continue
		}
		switch opt.Type {
		case discordgo.ApplicationCommandOptionString:
			if v := opt.StringValue(); v != "" {
				args[opt.Name] = v
			}
		case discordgo.ApplicationCommandOptionInteger:
			args[opt.Name] = strconv.FormatInt(opt.IntValue(), 10)
		case discordgo.ApplicationCommandOptionBoolean:
			args[opt.Name] = strconv.FormatBool(opt.BoolValue())
		}
	}
	return args
}

func toEmbed(e report.Embed) *discordgo.MessageEmbed {
	fields := make([]*discordgo.MessageEmbedField, len(e.Fields))
	for i, f := range e.Fields {
		fields[i] = &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value}
	}
	return &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Fields:      fields,
	}
}
