package discord

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/farellandr/lunchticket/internal/helpers"
	"github.com/farellandr/lunchticket/internal/logger"
	"github.com/farellandr/lunchticket/internal/ticket"
)

const commandPrefix = "!"

const (
	replyNoPermission = "You don't have permission to use this command."
	replyNoUsers      = "Please mention at least one user!"
	replyPriceAdmin   = "Only administrators can set lunch prices!"
	replyChargeUsage  = "Invalid charge command. Usage: !charge [price] @user1 @user2 ... (mention users only, after the price)"
)

var mentionPattern = regexp.MustCompile(`^<@!?(\d+)>$`)

type command struct {
	name string
	args []string
}

// parseCommand splits "!Name arg..." into a lowercased name and its
// arguments.
func parseCommand(content string) (command, bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, commandPrefix) {
		return command{}, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, commandPrefix))
	if len(fields) == 0 {
		return command{}, false
	}
	return command{name: strings.ToLower(fields[0]), args: fields[1:]}, true
}

var errChargeUsage = errors.New("invalid charge command")

// parseCharge splits a charge command into the price words, which must all
// come before the first mention, and the mentioned users in the order they
// were mentioned. Bots and repeats are dropped. Any other token shaped like
// a mention (roles, channels, a mention with trailing text) or a user the
// message does not resolve is rejected, never read as part of the price.
func parseCharge(args []string, mentions []*discordgo.User) (string, []ticket.Member, error) {
	byID := make(map[string]*discordgo.User, len(mentions))
	for _, u := range mentions {
		byID[u.ID] = u
	}

	var (
		price []string
		users []ticket.Member
		seen  = make(map[string]bool)
	)
	for _, a := range args {
		if !strings.ContainsAny(a, "<>") {
			if len(seen) > 0 {
				return "", nil, fmt.Errorf("%w: %q after the mentioned users", errChargeUsage, a)
			}
			price = append(price, a)
			continue
		}

		m := mentionPattern.FindStringSubmatch(a)
		if m == nil {
			return "", nil, fmt.Errorf("%w: %q is not a user mention", errChargeUsage, a)
		}
		u, ok := byID[m[1]]
		if !ok {
			return "", nil, fmt.Errorf("%w: unknown user %q", errChargeUsage, a)
		}
		if seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		if !u.Bot {
			users = append(users, memberOf(u, ""))
		}
	}
	return strings.Join(price, " "), users, nil
}

func (b *Bot) dispatch(ctx context.Context, ref string, m *discordgo.Message, cmd command) {
	switch cmd.name {
	case "charge", "comment":
		b.charge(ctx, ref, m, cmd)
	case "setprice":
		b.setPrice(ctx, ref, m, cmd)
	case "lunchprice", "showprice":
		b.reply(ctx, m.ChannelID, fmt.Sprintf("Today's lunch price: %s", b.prices.Current()))
	case "help", "helplunch":
		b.send(ctx, m.ChannelID, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{helpEmbed()}})
	}
}

func (b *Bot) requireAdmin(ctx context.Context, ref string, m *discordgo.Message, denied string) bool {
	ok, err := b.platform.isAdministrator(ctx, m.Author.ID, m.ChannelID)
	if err != nil {
		logger.FromContext(ctx).Error().Err(err).Msg("failed to check author permissions")
		b.reply(ctx, m.ChannelID, genericError(ref))
		return false
	}
	if !ok {
		b.reply(ctx, m.ChannelID, denied)
	}
	return ok
}

func (b *Bot) charge(ctx context.Context, ref string, m *discordgo.Message, cmd command) {
	if !b.requireAdmin(ctx, ref, m, replyNoPermission) {
		return
	}

	price, users, err := parseCharge(cmd.args, m.Mentions)
	if err != nil {
		logger.FromContext(ctx).Info().Err(err).Msg("rejected charge command")
		b.reply(ctx, m.ChannelID, replyChargeUsage)
		return
	}
	if price == "" {
		price = b.prices.Current()
	}
	nick := ""
	if m.Member != nil {
		nick = m.Member.Nick
	}

	report, err := b.controller.Charge(ctx, ticket.ChargeRequest{
		GuildID: snowflake(m.GuildID),
		Admin:   memberOf(m.Author, nick),
		Price:   price,
		Users:   users,
	})
	switch {
	case errors.Is(err, ticket.ErrNoTargets):
		b.reply(ctx, m.ChannelID, replyNoUsers)
	case errors.Is(err, helpers.ErrInvalidPrice):
		b.reply(ctx, m.ChannelID, fmt.Sprintf("Invalid price format: %s. Please use a numeric value like '55.000 VND'.", price))
	case err != nil:
		logger.FromContext(ctx).Error().Err(err).Msg("charge command failed")
		b.reply(ctx, m.ChannelID, genericError(ref))
	default:
		b.reply(ctx, m.ChannelID, chargeSummary(report, ref))
	}
}

func (b *Bot) setPrice(ctx context.Context, ref string, m *discordgo.Message, cmd command) {
	if !b.requireAdmin(ctx, ref, m, replyPriceAdmin) {
		return
	}
	price := strings.Join(cmd.args, " ")
	if err := b.prices.Set(price); err != nil {
		b.reply(ctx, m.ChannelID, fmt.Sprintf("Invalid price format: %s. Please use a numeric value like '55.000 VND'.", price))
		return
	}
	logger.FromContext(ctx).Info().Str("price", price).Msg("default lunch price updated")
	b.reply(ctx, m.ChannelID, fmt.Sprintf("Lunch price updated to: %s", price))
}

func chargeSummary(r *ticket.ChargeReport, ref string) string {
	var lines []string
	if len(r.Succeeded) > 0 {
		mentions := make([]string, 0, len(r.Succeeded))
		for _, u := range r.Succeeded {
			mentions = append(mentions, u.Mention())
		}
		lines = append(lines, fmt.Sprintf("Lunch ticket (%s) created for %s.", r.Price, strings.Join(mentions, ", ")))
	}
	for _, f := range r.Failed {
		lines = append(lines, fmt.Sprintf("Unable to create a lunch ticket for %s: %s. (ref: %s)", f.User.Mention(), f.Reason, ref))
	}
	return strings.Join(lines, "\n")
}

func genericError(ref string) string {
	return fmt.Sprintf("An error occurred while processing the command. (ref: %s)", ref)
}

func helpEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "Lunch Bot Commands",
		Color: 0x3498db,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "!charge [price] @user1 @user2 ...", Value: "Charge the mentioned users and open or refresh their lunch tickets (admin only). Uses the default price when none is given. Alias: !comment"},
			{Name: "!setprice <price>", Value: "Set the default lunch price until the bot restarts (admin only)"},
			{Name: "!lunchprice", Value: "Show the current lunch price. Alias: !showprice"},
			{Name: "!help", Value: "Show this message. Alias: !helpLunch"},
		},
	}
}
