package discord

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/farellandr/lunchticket/internal/ticket"
)

const customIDPrefix = "lunch"

type Action string

const (
	ActionSubmit Action = "submit"
	ActionVerify Action = "verify"
)

// CustomID encodes a handshake button as lunch:<action>:<transaction_id>.
func CustomID(action Action, transactionID int64) string {
	return fmt.Sprintf("%s:%s:%d", customIDPrefix, action, transactionID)
}

func ParseCustomID(customID string) (Action, int64, bool) {
	parts := strings.Split(customID, ":")
	if len(parts) != 3 || parts[0] != customIDPrefix {
		return "", 0, false
	}
	action := Action(parts[1])
	if action != ActionSubmit && action != ActionVerify {
		return "", 0, false
	}
	txID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || txID <= 0 {
		return "", 0, false
	}
	return action, txID, true
}

func toComponents(c *ticket.Controls) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Submit Payment Proof",
					Style:    discordgo.PrimaryButton,
					CustomID: CustomID(ActionSubmit, c.TransactionID),
					Disabled: c.SubmitDisabled,
				},
				discordgo.Button{
					Label:    "Verify Payment",
					Style:    discordgo.SuccessButton,
					CustomID: CustomID(ActionVerify, c.TransactionID),
					Disabled: c.VerifyDisabled,
				},
			},
		},
	}
}

func toEmbed(e *ticket.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if e.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	if e.ImageURL != "" {
		out.Image = &discordgo.MessageEmbedImage{URL: e.ImageURL}
	}
	return out
}
