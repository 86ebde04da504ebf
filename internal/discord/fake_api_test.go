package discord

import (
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/bwmarrin/discordgo"
)

var errNotImplemented = errors.New("not implemented")

type sentMessage struct {
	channelID string
	msg       *discordgo.MessageSend
}

type fakeAPI struct {
	mu       sync.Mutex
	nextID   int
	channels []*discordgo.Channel
	created  []discordgo.GuildChannelCreateData
	perms    map[string]int64
	sent     []sentMessage
	messages map[string][]*discordgo.Message
	edits    []*discordgo.MessageEdit
	deleted  []string
	followup []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		nextID:   1000,
		perms:    make(map[string]int64),
		messages: make(map[string][]*discordgo.Message),
	}
}

func (f *fakeAPI) newID() string {
	f.nextID++
	return strconv.Itoa(f.nextID)
}

func (f *fakeAPI) Channel(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.channels {
		if c.ID == channelID {
			return c, nil
		}
	}
	return nil, notFound()
}

func (f *fakeAPI) GuildChannels(string, ...discordgo.RequestOption) ([]*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*discordgo.Channel(nil), f.channels...), nil
}

func (f *fakeAPI) GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, data)
	c := &discordgo.Channel{
		ID:                   f.newID(),
		GuildID:              guildID,
		Name:                 data.Name,
		Type:                 data.Type,
		ParentID:             data.ParentID,
		PermissionOverwrites: data.PermissionOverwrites,
	}
	f.channels = append(f.channels, c)
	return c, nil
}

func (f *fakeAPI) GuildMember(string, string, ...discordgo.RequestOption) (*discordgo.Member, error) {
	return nil, errNotImplemented
}

func (f *fakeAPI) UserChannelPermissions(userID, _ string, _ ...discordgo.RequestOption) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.perms[userID], nil
}

func (f *fakeAPI) ChannelMessage(channelID, messageID string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages[channelID] {
		if m.ID == messageID {
			return m, nil
		}
	}
	return nil, notFound()
}

func (f *fakeAPI) ChannelMessages(channelID string, _ int, _, _, _ string, _ ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[channelID], nil
}

func (f *fakeAPI) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{channelID: channelID, msg: data})
	return &discordgo.Message{ID: f.newID(), ChannelID: channelID, Content: data.Content}, nil
}

func (f *fakeAPI) ChannelMessageEditComplex(m *discordgo.MessageEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, m)
	return &discordgo.Message{ID: m.ID, ChannelID: m.Channel}, nil
}

func (f *fakeAPI) ChannelMessageDelete(_, messageID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeAPI) InteractionRespond(*discordgo.Interaction, *discordgo.InteractionResponse, ...discordgo.RequestOption) error {
	return nil
}

func (f *fakeAPI) FollowupMessageCreate(_ *discordgo.Interaction, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.followup = append(f.followup, data.Content)
	return &discordgo.Message{ID: f.newID()}, nil
}

func (f *fakeAPI) lastReply() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1].msg.Content
}

func restError(status, code int) error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: status, Status: http.StatusText(status)},
		Message:  &discordgo.APIErrorMessage{Code: code, Message: "error"},
	}
}

func notFound() error {
	return restError(http.StatusNotFound, discordgo.ErrCodeUnknownMessage)
}
