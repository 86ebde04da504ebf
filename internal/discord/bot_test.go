package discord

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/farellandr/lunchticket/internal/ticket"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBot(api *fakeAPI) (*Bot, *ticket.MemoryImageSlots) {
	platform := NewPlatform(api, "Lunch Tickets")
	images := ticket.NewMemoryImageSlots()
	deps := ticket.Deps{Platform: platform, Images: images}
	return NewBot(api, BotDeps{
		Platform:   platform,
		Controller: ticket.NewController(deps),
		Reconciler: ticket.NewReconciler(deps),
		Prices:     ticket.NewPriceBook("55.000 VND"),
		Images:     images,
		Logger:     zerolog.Nop(),
	}), images
}

func messageIn(channelID, authorID, content string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "777",
		GuildID:   "500",
		ChannelID: channelID,
		Content:   content,
		Author:    &discordgo.User{ID: authorID, Username: "someone"},
		Timestamp: time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC),
	}}
}

func TestParseCommand(t *testing.T) {
	cmd, ok := parseCommand("  !HelpLunch  ")
	require.True(t, ok)
	assert.Equal(t, "helplunch", cmd.name)
	assert.Empty(t, cmd.args)

	cmd, ok = parseCommand("!charge 55.000 VND <@11>")
	require.True(t, ok)
	assert.Equal(t, "charge", cmd.name)
	assert.Equal(t, []string{"55.000", "VND", "<@11>"}, cmd.args)

	for _, s := range []string{"", "hello", "!", "! "} {
		_, ok := parseCommand(s)
		assert.False(t, ok, s)
	}
}

func TestParseCharge(t *testing.T) {
	mentions := []*discordgo.User{
		{ID: "12", Username: "bob"},
		{ID: "11", Username: "alice", GlobalName: "Alice"},
		{ID: "99", Username: "lunchbot", Bot: true},
	}

	price, users, err := parseCharge([]string{"55.000", "VND", "<@11>", "<@!12>", "<@11>", "<@99>"}, mentions)
	require.NoError(t, err)
	assert.Equal(t, "55.000 VND", price)
	assert.Equal(t, []ticket.Member{
		{ID: 11, Name: "alice", DisplayName: "Alice"},
		{ID: 12, Name: "bob"},
	}, users)

	price, users, err = parseCharge([]string{"<@12>"}, mentions)
	require.NoError(t, err)
	assert.Empty(t, price)
	assert.Len(t, users, 1)
}

func TestParseChargeRejectsForeignTokens(t *testing.T) {
	mentions := []*discordgo.User{
		{ID: "11", Username: "alice"},
		{ID: "12", Username: "bob"},
	}

	tests := []struct {
		name string
		args []string
	}{
		{"role mention after price", []string{"55.000", "VND", "<@&987654321>", "<@11>"}},
		{"role mention without price", []string{"<@&987654321>", "<@11>"}},
		{"channel mention", []string{"55.000", "<#424242>", "<@11>"}},
		{"mention with trailing comma", []string{"55.000", "VND", "<@11>,", "<@12>"}},
		{"user not resolved by the message", []string{"55.000", "<@13>"}},
		{"price after users", []string{"<@11>", "55.000"}},
		{"custom emoji", []string{"55.000", "<:pay:123>", "<@11>"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, users, err := parseCharge(tt.args, mentions)
			assert.ErrorIs(t, err, errChargeUsage)
			assert.Empty(t, price)
			assert.Empty(t, users)
		})
	}
}

func TestChargeWithRoleMentionWritesNothing(t *testing.T) {
	api := newFakeAPI()
	api.perms["1"] = discordgo.PermissionAdministrator
	bot, _ := newTestBot(api)

	m := messageIn("1", "1", "!charge 55.000 VND <@&987654321> <@11>")
	m.Mentions = []*discordgo.User{{ID: "11", Username: "alice"}}
	bot.onMessageCreate(nil, m)

	assert.Equal(t, replyChargeUsage, api.lastReply())
	assert.Empty(t, api.created)
}

func TestCommandsRequireAdmin(t *testing.T) {
	api := newFakeAPI()
	bot, _ := newTestBot(api)

	bot.onMessageCreate(nil, messageIn("1", "5", "!setprice 60.000 VND"))
	assert.Equal(t, replyPriceAdmin, api.lastReply())
	assert.Equal(t, "55.000 VND", bot.prices.Current())

	bot.onMessageCreate(nil, messageIn("1", "5", "!charge <@11>"))
	assert.Equal(t, replyNoPermission, api.lastReply())
}

func TestPriceCommands(t *testing.T) {
	api := newFakeAPI()
	api.perms["1"] = discordgo.PermissionAdministrator
	bot, _ := newTestBot(api)

	bot.onMessageCreate(nil, messageIn("1", "1", "!setprice 60.000 VND"))
	assert.Equal(t, "Lunch price updated to: 60.000 VND", api.lastReply())

	bot.onMessageCreate(nil, messageIn("1", "1", "!setprice free"))
	assert.Contains(t, api.lastReply(), "Invalid price format")

	bot.onMessageCreate(nil, messageIn("1", "5", "!SHOWPRICE"))
	assert.Equal(t, "Today's lunch price: 60.000 VND", api.lastReply())

	bot.onMessageCreate(nil, messageIn("1", "1", "!charge 55.000 VND"))
	assert.Equal(t, replyNoUsers, api.lastReply())
}

func TestHelpCommandSendsEmbed(t *testing.T) {
	api := newFakeAPI()
	bot, _ := newTestBot(api)

	bot.onMessageCreate(nil, messageIn("1", "5", "!helpLunch"))

	require.Len(t, api.sent, 1)
	require.Len(t, api.sent[0].msg.Embeds, 1)
	assert.Equal(t, "Lunch Bot Commands", api.sent[0].msg.Embeds[0].Title)
}

func TestImageCaptureInTicketChannel(t *testing.T) {
	api := newFakeAPI()
	api.channels = []*discordgo.Channel{
		{ID: "20", Name: "ticket-alice", Type: discordgo.ChannelTypeGuildText},
		{ID: "21", Name: "general", Type: discordgo.ChannelTypeGuildText},
	}
	bot, images := newTestBot(api)
	ctx := context.Background()

	m := messageIn("21", "11", "")
	m.Attachments = []*discordgo.MessageAttachment{{URL: "https://cdn/a.png", Filename: "a.png", ContentType: "image/png", Size: 100}}
	bot.onMessageCreate(nil, m)
	_, ok, err := images.Get(ctx, 11)
	require.NoError(t, err)
	assert.False(t, ok)

	m = messageIn("20", "11", "")
	m.Attachments = []*discordgo.MessageAttachment{
		{URL: "https://cdn/notes.pdf", Filename: "notes.pdf", ContentType: "application/pdf", Size: 100},
		{URL: "https://cdn/proof.jpg", Filename: "proof.jpg", ContentType: "image/jpeg", Size: 2048},
	}
	bot.onMessageCreate(nil, m)

	img, ok, err := images.Get(ctx, 11)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://cdn/proof.jpg", img.URL)
	assert.Equal(t, m.Timestamp, img.UploadedAt)
}

func TestPressButtonOnUnknownTicket(t *testing.T) {
	api := newFakeAPI()
	bot, _ := newTestBot(api)

	reply := bot.pressButton(context.Background(), ActionSubmit, 42, ticket.Member{ID: 11})
	assert.Equal(t, replyStale, reply)
}

func TestChargeSummary(t *testing.T) {
	report := &ticket.ChargeReport{
		Price:     "55.000 VND",
		Succeeded: []ticket.Member{{ID: 11}, {ID: 13}},
		Failed:    []ticket.ChargeFailure{{User: ticket.Member{ID: 12}, Reason: ticket.ReasonOpenChannel}},
	}
	assert.Equal(t,
		"Lunch ticket (55.000 VND) created for <@11>, <@13>.\nUnable to create a lunch ticket for <@12>: could not open the ticket channel. (ref: abc)",
		chargeSummary(report, "abc"))
}

func TestIsAuthFailure(t *testing.T) {
	invalidToken := &websocket.CloseError{Code: 4004, Text: "Authentication failed."}
	assert.True(t, IsAuthFailure(fmt.Errorf("failed to open discord session: %w", invalidToken)))
	assert.True(t, IsAuthFailure(restError(http.StatusUnauthorized, 0)))

	assert.False(t, IsAuthFailure(&websocket.CloseError{Code: websocket.CloseGoingAway}))
	assert.False(t, IsAuthFailure(restError(http.StatusForbidden, discordgo.ErrCodeMissingAccess)))
	assert.False(t, IsAuthFailure(nil))
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	api := newFakeAPI()
	api.channels = []*discordgo.Channel{{ID: "20", Name: "ticket-alice", Type: discordgo.ChannelTypeGuildText}}
	bot, _ := newTestBot(api)
	buf := &bytes.Buffer{}
	bot.log = zerolog.New(buf)
	bot.images = nil

	m := messageIn("20", "11", "")
	m.Attachments = []*discordgo.MessageAttachment{{URL: "https://cdn/proof.jpg", Filename: "proof.jpg", ContentType: "image/jpeg", Size: 2048}}

	assert.NotPanics(t, func() { bot.onMessageCreate(nil, m) })
	assert.Contains(t, buf.String(), "event handler panicked")
	assert.Contains(t, buf.String(), "message_create")
}
