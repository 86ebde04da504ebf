package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/farellandr/lunchticket/internal/helpers"
	"github.com/farellandr/lunchticket/internal/ticket"
)

// API is the part of *discordgo.Session the bot calls.
type API interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error)

	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error

	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

const (
	elevatedPermissions = discordgo.PermissionAdministrator | discordgo.PermissionManageChannels
	memberPermissions   = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages |
		discordgo.PermissionReadMessageHistory | discordgo.PermissionAttachFiles
	botPermissions = memberPermissions | discordgo.PermissionManageMessages | discordgo.PermissionEmbedLinks

	botMessageScan = 100
)

// Platform implements ticket.Platform on top of the Discord REST API.
type Platform struct {
	api      API
	category string

	mu    sync.Mutex
	botID string
}

func NewPlatform(api API, category string) *Platform {
	return &Platform{api: api, category: category}
}

func (p *Platform) SetBotID(id string) {
	p.mu.Lock()
	p.botID = id
	p.mu.Unlock()
}

func (p *Platform) BotID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.botID
}

// EnsureCategory returns the id of the ticket category, creating it when
// the guild has none.
func (p *Platform) EnsureCategory(ctx context.Context, guildID int64) (string, error) {
	channels, err := p.api.GuildChannels(id(guildID), discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("list guild channels: %w", mapError(err))
	}
	return p.ensureCategory(ctx, guildID, channels)
}

func (p *Platform) ensureCategory(ctx context.Context, guildID int64, channels []*discordgo.Channel) (string, error) {
	for _, c := range channels {
		if c.Type == discordgo.ChannelTypeGuildCategory && c.Name == p.category {
			return c.ID, nil
		}
	}
	created, err := p.api.GuildChannelCreateComplex(id(guildID), discordgo.GuildChannelCreateData{
		Name: p.category,
		Type: discordgo.ChannelTypeGuildCategory,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("create ticket category: %w", mapError(err))
	}
	return created.ID, nil
}

// EnsureTicketChannel serializes channel creation so that two charges for
// the same user never open two channels. The recorded channel wins over a
// name match; a recorded channel that is gone or unreadable falls back to
// the name.
func (p *Platform) EnsureTicketChannel(ctx context.Context, guildID int64, admin, user ticket.Member, knownChannelID int64) (ticket.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if knownChannelID != 0 {
		c, err := p.api.Channel(id(knownChannelID), discordgo.WithContext(ctx))
		err = mapError(err)
		switch {
		case err == nil:
			if c.GuildID == id(guildID) && c.Type == discordgo.ChannelTypeGuildText {
				return p.toChannel(c), nil
			}
		case errors.Is(err, ticket.ErrMessageNotFound), errors.Is(err, ticket.ErrForbidden):
		default:
			return ticket.Channel{}, fmt.Errorf("look up ticket channel: %w", err)
		}
	}

	channels, err := p.api.GuildChannels(id(guildID), discordgo.WithContext(ctx))
	if err != nil {
		return ticket.Channel{}, fmt.Errorf("list guild channels: %w", mapError(err))
	}

	name := ticket.ChannelName(user.Name)
	for _, c := range channels {
		if c.Type == discordgo.ChannelTypeGuildText && c.Name == name {
			return p.toChannel(c), nil
		}
	}

	categoryID, err := p.ensureCategory(ctx, guildID, channels)
	if err != nil {
		return ticket.Channel{}, err
	}

	overwrites := []*discordgo.PermissionOverwrite{
		{ID: id(guildID), Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
		{ID: id(admin.ID), Type: discordgo.PermissionOverwriteTypeMember, Allow: memberPermissions},
		{ID: id(user.ID), Type: discordgo.PermissionOverwriteTypeMember, Allow: memberPermissions},
	}
	if p.botID != "" {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID: p.botID, Type: discordgo.PermissionOverwriteTypeMember, Allow: botPermissions,
		})
	}

	created, err := p.api.GuildChannelCreateComplex(id(guildID), discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                "Ticket for " + user.Name,
		ParentID:             categoryID,
		PermissionOverwrites: overwrites,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return ticket.Channel{}, fmt.Errorf("create ticket channel %s: %w", name, mapError(err))
	}
	return p.toChannel(created), nil
}

func (p *Platform) TicketChannels(ctx context.Context, guildID int64) ([]ticket.Channel, error) {
	channels, err := p.api.GuildChannels(id(guildID), discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list guild channels: %w", mapError(err))
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []ticket.Channel
	for _, c := range channels {
		if c.Type == discordgo.ChannelTypeGuildText && strings.HasPrefix(c.Name, ticket.ChannelPrefix) {
			out = append(out, p.toChannel(c))
		}
	}
	return out, nil
}

// toChannel expects p.mu to be held.
func (p *Platform) toChannel(c *discordgo.Channel) ticket.Channel {
	out := ticket.Channel{ID: snowflake(c.ID), Name: c.Name}
	for _, o := range c.PermissionOverwrites {
		if o.Type != discordgo.PermissionOverwriteTypeMember || o.ID == p.botID {
			continue
		}
		if o.Allow&discordgo.PermissionViewChannel != 0 {
			out.MemberIDs = append(out.MemberIDs, snowflake(o.ID))
		}
	}
	return out
}

func (p *Platform) Member(ctx context.Context, guildID, userID int64) (ticket.Member, error) {
	m, err := p.api.GuildMember(id(guildID), id(userID), discordgo.WithContext(ctx))
	if err != nil {
		return ticket.Member{}, mapError(err)
	}
	return memberOf(m.User, m.Nick), nil
}

func (p *Platform) SendMessage(ctx context.Context, channelID int64, msg ticket.OutgoingMessage) (int64, error) {
	send := &discordgo.MessageSend{Content: msg.Content}
	if msg.Embed != nil {
		send.Embeds = []*discordgo.MessageEmbed{toEmbed(msg.Embed)}
	}
	if msg.Controls != nil {
		send.Components = toComponents(msg.Controls)
	}
	for _, f := range msg.Files {
		send.Files = append(send.Files, &discordgo.File{
			Name:        f.Name,
			ContentType: f.ContentType,
			Reader:      bytes.NewReader(f.Data),
		})
	}

	sent, err := p.api.ChannelMessageSendComplex(id(channelID), send, discordgo.WithContext(ctx))
	if err != nil {
		return 0, mapError(err)
	}
	return snowflake(sent.ID), nil
}

func (p *Platform) EditMessage(ctx context.Context, channelID, messageID int64, embed *ticket.Embed, controls *ticket.Controls) error {
	edit := discordgo.NewMessageEdit(id(channelID), id(messageID))
	if embed != nil {
		embeds := []*discordgo.MessageEmbed{toEmbed(embed)}
		edit.Embeds = &embeds
	}
	if controls != nil {
		components := toComponents(controls)
		edit.Components = &components
	}
	_, err := p.api.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx))
	return mapError(err)
}

func (p *Platform) DeleteMessage(ctx context.Context, channelID, messageID int64) error {
	return mapError(p.api.ChannelMessageDelete(id(channelID), id(messageID), discordgo.WithContext(ctx)))
}

func (p *Platform) FetchMessage(ctx context.Context, channelID, messageID int64) (ticket.MessageInfo, error) {
	m, err := p.api.ChannelMessage(id(channelID), id(messageID), discordgo.WithContext(ctx))
	if err != nil {
		return ticket.MessageInfo{}, mapError(err)
	}
	return ticket.MessageInfo{ID: snowflake(m.ID), Content: m.Content}, nil
}

func (p *Platform) BotMessages(ctx context.Context, channelID int64) ([]ticket.MessageInfo, error) {
	msgs, err := p.api.ChannelMessages(id(channelID), botMessageScan, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}
	botID := p.BotID()

	var out []ticket.MessageInfo
	for _, m := range msgs {
		if m.Author != nil && m.Author.ID == botID {
			out = append(out, ticket.MessageInfo{ID: snowflake(m.ID), Content: m.Content})
		}
	}
	return out, nil
}

func (p *Platform) IsElevated(ctx context.Context, userID, channelID int64) (bool, error) {
	perms, err := p.api.UserChannelPermissions(id(userID), id(channelID), discordgo.WithContext(ctx))
	if err != nil {
		return false, mapError(err)
	}
	return perms&elevatedPermissions != 0, nil
}

func (p *Platform) isAdministrator(ctx context.Context, userID, channelID string) (bool, error) {
	perms, err := p.api.UserChannelPermissions(userID, channelID, discordgo.WithContext(ctx))
	if err != nil {
		return false, mapError(err)
	}
	return perms&discordgo.PermissionAdministrator != 0, nil
}

// mapError translates Discord REST failures into the ticket package's
// sentinel errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return err
	}

	code := 0
	if rest.Message != nil {
		code = rest.Message.Code
	}
	switch code {
	case discordgo.ErrCodeUnknownMessage, discordgo.ErrCodeUnknownChannel:
		return fmt.Errorf("%w: %v", ticket.ErrMessageNotFound, err)
	case discordgo.ErrCodeMissingAccess, discordgo.ErrCodeMissingPermissions:
		return fmt.Errorf("%w: %v", ticket.ErrForbidden, err)
	}
	if rest.Response != nil {
		switch rest.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", ticket.ErrMessageNotFound, err)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %v", ticket.ErrForbidden, err)
		}
	}
	return err
}

func id(v int64) string {
	return strconv.FormatInt(v, 10)
}

// snowflake parses a Discord id; malformed ids become 0.
func snowflake(s string) int64 {
	v, err := helpers.StringToInt64(s)
	if err != nil {
		return 0
	}
	return v
}

func memberOf(u *discordgo.User, nick string) ticket.Member {
	if u == nil {
		return ticket.Member{}
	}
	m := ticket.Member{ID: snowflake(u.ID), Name: u.Username, DisplayName: u.GlobalName}
	if nick != "" {
		m.DisplayName = nick
	}
	return m
}
