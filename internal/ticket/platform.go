package ticket

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrMessageNotFound is returned by the platform for messages that were
	// deleted or never existed.
	ErrMessageNotFound = errors.New("message not found")
	// ErrForbidden is returned when the bot lacks permission for an action.
	ErrForbidden = errors.New("forbidden")
)

type Member struct {
	ID          int64
	Name        string
	DisplayName string
}

func (m Member) Mention() string {
	if m.ID == 0 {
		return ""
	}
	return fmt.Sprintf("<@%d>", m.ID)
}

func (m Member) Label() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.Name
}

// Channel is a private ticket channel. MemberIDs lists the members granted
// explicit access, excluding the bot.
type Channel struct {
	ID        int64
	Name      string
	MemberIDs []int64
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []EmbedField
	Footer      string
	ImageURL    string
}

// Controls describes the two handshake buttons of a ticket message.
type Controls struct {
	TransactionID  int64
	SubmitDisabled bool
	VerifyDisabled bool
}

type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

type OutgoingMessage struct {
	Content  string
	Embed    *Embed
	Controls *Controls
	Files    []Attachment
}

type MessageInfo struct {
	ID      int64
	Content string
}

// Platform is the chat platform as seen by the ticket flow.
type Platform interface {
	// EnsureTicketChannel returns the user's private ticket channel,
	// creating it with access for the admin and the user when missing.
	// knownChannelID, when non-zero, is the channel last recorded for the
	// user and is tried before any lookup by name.
	EnsureTicketChannel(ctx context.Context, guildID int64, admin, user Member, knownChannelID int64) (Channel, error)
	TicketChannels(ctx context.Context, guildID int64) ([]Channel, error)
	Member(ctx context.Context, guildID, userID int64) (Member, error)

	SendMessage(ctx context.Context, channelID int64, msg OutgoingMessage) (int64, error)
	// EditMessage replaces the embed and/or controls; nil leaves that part as is.
	EditMessage(ctx context.Context, channelID, messageID int64, embed *Embed, controls *Controls) error
	DeleteMessage(ctx context.Context, channelID, messageID int64) error
	FetchMessage(ctx context.Context, channelID, messageID int64) (MessageInfo, error)
	// BotMessages lists recent messages authored by the bot, newest first.
	BotMessages(ctx context.Context, channelID int64) ([]MessageInfo, error)

	IsElevated(ctx context.Context, userID, channelID int64) (bool, error)
}
