package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/farellandr/lunchticket/internal/helpers"
	"github.com/farellandr/lunchticket/internal/logger"
	"github.com/farellandr/lunchticket/internal/monitoring"
	"github.com/farellandr/lunchticket/internal/ticket"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMessages |
		discordgo.IntentGuildMembers |
		discordgo.IntentMessageContent

	replyStale = "This ticket is no longer active. Ask an admin to charge you again."

	// Gateway close code sent for an invalid token.
	closeAuthenticationFailed = 4004
)

func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	s.Identify.Intents = intents
	return s, nil
}

// IsAuthFailure reports whether err means Discord rejected the bot token.
func IsAuthFailure(err error) bool {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code == closeAuthenticationFailed
	}
	var rest *discordgo.RESTError
	return errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusUnauthorized
}

type BotDeps struct {
	Platform   *Platform
	Controller *ticket.Controller
	Reconciler *ticket.Reconciler
	Prices     *ticket.PriceBook
	Images     ticket.ImageSlots
	Reporter   *monitoring.Reporter
	Logger     zerolog.Logger
}

// Bot turns gateway events into ticket operations.
type Bot struct {
	api        API
	platform   *Platform
	controller *ticket.Controller
	reconciler *ticket.Reconciler
	prices     *ticket.PriceBook
	images     ticket.ImageSlots
	reporter   *monitoring.Reporter
	log        zerolog.Logger
}

func NewBot(api API, d BotDeps) *Bot {
	return &Bot{
		api:        api,
		platform:   d.Platform,
		controller: d.Controller,
		reconciler: d.Reconciler,
		prices:     d.Prices,
		images:     d.Images,
		reporter:   d.Reporter,
		log:        d.Logger,
	}
}

// Open registers the event handlers and connects to the gateway.
func (b *Bot) Open(session *discordgo.Session) error {
	session.AddHandler(b.onReady)
	session.AddHandler(b.onMessageCreate)
	session.AddHandler(b.onInteractionCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	return nil
}

// recoverEvent keeps a panicking handler from taking the gateway
// connection down and reports it.
func (b *Bot) recoverEvent(event string) {
	if v := recover(); v != nil {
		b.reporter.Recover(v, event)
		b.log.Error().Str("event", event).Str("panic", fmt.Sprint(v)).Msg("event handler panicked")
	}
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	defer b.recoverEvent("ready")
	b.platform.SetBotID(r.User.ID)
	b.log.Info().Str("bot", r.User.Username).Int("guilds", len(r.Guilds)).Msg("discord session ready")

	for _, g := range r.Guilds {
		ctx, _ := logger.WithCorrelationID(context.Background(), b.log.With().Str("guild_id", g.ID).Logger())
		log := logger.FromContext(ctx)
		guildID := snowflake(g.ID)

		if _, err := b.platform.EnsureCategory(ctx, guildID); err != nil {
			log.Error().Err(err).Msg("failed to ensure ticket category")
		}
		if _, err := b.reconciler.Run(ctx, guildID); err != nil {
			log.Error().Err(err).Msg("ticket reconciliation failed")
		}
	}
}

func (b *Bot) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	defer b.recoverEvent("message_create")
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	ctx, ref := logger.WithCorrelationID(context.Background(), b.log.With().
		Str("guild_id", m.GuildID).
		Str("channel_id", m.ChannelID).
		Str("author_id", m.Author.ID).
		Logger())

	if len(m.Attachments) > 0 {
		b.captureImage(ctx, m.Message)
	}
	if cmd, ok := parseCommand(m.Content); ok {
		b.dispatch(ctx, ref, m.Message, cmd)
	}
}

// captureImage remembers the first acceptable image of a message posted in
// a ticket channel as the author's pending proof.
func (b *Bot) captureImage(ctx context.Context, m *discordgo.Message) {
	log := logger.FromContext(ctx)

	channel, err := b.api.Channel(m.ChannelID, discordgo.WithContext(ctx))
	if err != nil {
		log.Warn().Err(err).Msg("failed to look up message channel")
		return
	}
	if !isTicketChannel(channel.Name) {
		return
	}

	for _, a := range m.Attachments {
		if err := helpers.CheckProofImage(a.Filename, a.ContentType, int64(a.Size)); err != nil {
			log.Debug().Err(err).Str("filename", a.Filename).Msg("ignoring attachment")
			continue
		}
		img := ticket.PendingImage{
			URL:         a.URL,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			UploadedAt:  m.Timestamp,
		}
		if err := b.images.Put(ctx, snowflake(m.Author.ID), img); err != nil {
			log.Error().Err(err).Msg("failed to store pending image")
			return
		}
		log.Info().Str("filename", a.Filename).Msg("pending payment image stored")
		return
	}
}

func (b *Bot) onInteractionCreate(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	defer b.recoverEvent("interaction_create")
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	action, txID, ok := ParseCustomID(i.MessageComponentData().CustomID)
	if !ok {
		return
	}

	actor := interactionActor(i.Interaction)
	ctx, _ := logger.WithCorrelationID(context.Background(), b.log.With().
		Str("action", string(action)).
		Int64("transaction_id", txID).
		Int64("actor_id", actor.ID).
		Logger())
	log := logger.FromContext(ctx)

	err := b.api.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}, discordgo.WithContext(ctx))
	if err != nil {
		log.Error().Err(err).Msg("failed to acknowledge interaction")
		return
	}

	reply := b.pressButton(ctx, action, txID, actor)
	_, err = b.api.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: reply,
		Flags:   discordgo.MessageFlagsEphemeral,
	}, discordgo.WithContext(ctx))
	if err != nil {
		log.Error().Err(err).Msg("failed to answer interaction")
	}
}

func (b *Bot) pressButton(ctx context.Context, action Action, txID int64, actor ticket.Member) string {
	h, ok := b.controller.Registry().Lookup(txID)
	if !ok {
		return replyStale
	}
	switch action {
	case ActionSubmit:
		return h.Submit(ctx, actor)
	case ActionVerify:
		return h.Verify(ctx, actor)
	default:
		return ticket.ReplyFailed
	}
}

func interactionActor(i *discordgo.Interaction) ticket.Member {
	if i.Member != nil {
		return memberOf(i.Member.User, i.Member.Nick)
	}
	return memberOf(i.User, "")
}

func isTicketChannel(name string) bool {
	return strings.HasPrefix(name, ticket.ChannelPrefix)
}

func (b *Bot) send(ctx context.Context, channelID string, msg *discordgo.MessageSend) {
	if _, err := b.api.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx)); err != nil {
		logger.FromContext(ctx).Error().Err(err).Msg("failed to send reply")
	}
}

func (b *Bot) reply(ctx context.Context, channelID, content string) {
	b.send(ctx, channelID, &discordgo.MessageSend{Content: content})
}
