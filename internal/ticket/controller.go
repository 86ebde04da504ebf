package ticket

import (
	"context"
	"errors"
	"fmt"

	"github.com/farellandr/lunchticket/internal/helpers"
	"github.com/farellandr/lunchticket/internal/logger"
	"github.com/farellandr/lunchticket/internal/store"
)

var ErrNoTargets = errors.New("no users to charge")

type ChargeRequest struct {
	GuildID     int64
	Admin       Member
	Price       string
	Users       []Member
	Description string
}

// Reasons a single user's charge can fail, short enough for a chat reply.
const (
	ReasonSaveCharge  = "could not save the charge"
	ReasonOpenChannel = "could not open the ticket channel"
	ReasonPostTicket  = "could not post the ticket"
)

type ChargeFailure struct {
	User   Member
	Reason string
	Err    error
}

// chargeError tags a failure with the step it happened in.
type chargeError struct {
	reason string
	err    error
}

func (e *chargeError) Error() string { return e.err.Error() }
func (e *chargeError) Unwrap() error { return e.err }

func failed(reason string, err error) error {
	return &chargeError{reason: reason, err: err}
}

type ChargeReport struct {
	Price     string
	Succeeded []Member
	Failed    []ChargeFailure
}

type Controller struct {
	deps Deps
}

func NewController(d Deps) *Controller {
	return &Controller{deps: d.withDefaults()}
}

func (c *Controller) Registry() *Registry {
	return c.deps.Registry
}

// Charge bills every user in req once. Validation failures abort before any
// write; after that each user is processed on their own and failures are
// collected in the report.
func (c *Controller) Charge(ctx context.Context, req ChargeRequest) (*ChargeReport, error) {
	if len(req.Users) == 0 {
		return nil, ErrNoTargets
	}
	if _, err := helpers.ParsePositivePrice(req.Price); err != nil {
		return nil, err
	}

	report := &ChargeReport{Price: req.Price}
	for _, user := range req.Users {
		if err := c.chargeUser(ctx, req, user); err != nil {
			logger.FromContext(ctx).Error().Err(err).
				Int64("user_id", user.ID).
				Str("user", user.Name).
				Msg("failed to charge user")
			reason := ReasonPostTicket
			var ce *chargeError
			if errors.As(err, &ce) {
				reason = ce.reason
			}
			report.Failed = append(report.Failed, ChargeFailure{User: user, Reason: reason, Err: err})
			continue
		}
		report.Succeeded = append(report.Succeeded, user)
	}
	return report, nil
}

func (c *Controller) chargeUser(ctx context.Context, req ChargeRequest, user Member) error {
	log := logger.FromContext(ctx).With().Int64("user_id", user.ID).Str("user", user.Name).Logger()

	if _, err := c.deps.Store.UpsertUser(ctx, user.ID, user.Name); err != nil {
		return failed(ReasonSaveCharge, fmt.Errorf("save user: %w", err))
	}
	txID, err := c.deps.Store.CreateTransaction(ctx, store.NewTransaction{
		UserID:      user.ID,
		Username:    user.Name,
		LunchPrice:  req.Price,
		Description: req.Description,
		AdminID:     req.Admin.ID,
	})
	if err != nil {
		return failed(ReasonSaveCharge, fmt.Errorf("create transaction: %w", err))
	}
	log = log.With().Int64("transaction_id", txID).Logger()

	knownChannelID, err := c.deps.Store.GetUserTicketChannelID(ctx, user.ID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read recorded ticket channel")
		knownChannelID = 0
	}
	channel, err := c.deps.Platform.EnsureTicketChannel(ctx, req.GuildID, req.Admin, user, knownChannelID)
	if err != nil {
		return failed(ReasonOpenChannel, fmt.Errorf("open ticket channel: %w", err))
	}

	c.removeStaleTickets(ctx, channel.ID, user.ID)

	msg, err := c.ticketMessage(ctx, user, req.Price, txID)
	if err != nil {
		return failed(ReasonPostTicket, err)
	}
	messageID, err := c.deps.Platform.SendMessage(ctx, channel.ID, msg)
	if err != nil {
		return failed(ReasonPostTicket, fmt.Errorf("post ticket: %w", err))
	}
	if err := c.deps.Store.SetTicketMessageID(ctx, txID, channel.ID, messageID); err != nil {
		return failed(ReasonPostTicket, fmt.Errorf("save ticket message: %w", err))
	}

	c.deps.Registry.Register(NewHandshake(c.deps, HandshakeConfig{
		User:          user,
		Admin:         req.Admin,
		ChannelID:     channel.ID,
		MessageID:     messageID,
		TransactionID: txID,
		State:         AwaitingProof,
	}))

	event := Event{
		Type:          EventCharged,
		TransactionID: txID,
		UserID:        user.ID,
		ActorID:       req.Admin.ID,
		Amount:        req.Price,
		At:            c.deps.Now().UTC(),
	}
	if err := c.deps.Events.Publish(ctx, event); err != nil {
		log.Warn().Err(err).Msg("failed to publish charge event")
	}

	log.Info().Int64("channel_id", channel.ID).Int64("message_id", messageID).Msg("user charged")
	return nil
}

// removeStaleTickets deletes the user's previous ticket messages and forgets
// the ones that are gone. Nothing here aborts the charge.
func (c *Controller) removeStaleTickets(ctx context.Context, channelID, userID int64) {
	log := logger.FromContext(ctx).With().Int64("user_id", userID).Logger()

	ids, err := c.deps.Store.GetUserTicketMessageIDs(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to list previous ticket messages")
		return
	}

	var gone []int64
	for _, id := range ids {
		err := c.deps.Platform.DeleteMessage(ctx, channelID, id)
		switch {
		case err == nil, errors.Is(err, ErrMessageNotFound):
			gone = append(gone, id)
		case errors.Is(err, ErrForbidden):
			log.Warn().Int64("message_id", id).Msg("not allowed to delete previous ticket message")
		default:
			log.Error().Err(err).Int64("message_id", id).Msg("failed to delete previous ticket message")
		}
	}
	if _, err := c.deps.Store.CleanDeletedMessageRefs(ctx, gone); err != nil {
		log.Warn().Err(err).Msg("failed to clean previous ticket message refs")
	}
}

// ticketMessage renders the user's current balance, read back from the store.
func (c *Controller) ticketMessage(ctx context.Context, user Member, price string, txID int64) (OutgoingMessage, error) {
	total, err := c.deps.Store.GetUnpaidTotal(ctx, user.ID)
	if err != nil {
		return OutgoingMessage{}, fmt.Errorf("read unpaid total: %w", err)
	}
	count, err := c.deps.Store.GetUnpaidCount(ctx, user.ID)
	if err != nil {
		return OutgoingMessage{}, fmt.Errorf("read unpaid count: %w", err)
	}

	embed := TicketEmbed(TicketSummary{
		User:        user,
		LunchPrice:  price,
		TotalUnpaid: total,
		UnpaidCount: count,
		Date:        c.deps.Now().Format(dateLayout),
		Reference:   helpers.PaymentReference(txID),
	}, c.deps.Currency)

	msg := OutgoingMessage{
		Embed:    embed,
		Controls: &Controls{TransactionID: txID},
	}
	if c.deps.PaymentAccount != "" {
		png, err := helpers.PaymentQR(c.deps.PaymentAccount, total, c.deps.Currency, txID)
		if err != nil {
			logger.FromContext(ctx).Warn().Err(err).Msg("failed to render payment QR")
		} else {
			embed.ImageURL = "attachment://" + qrFileName
			msg.Files = []Attachment{{Name: qrFileName, ContentType: "image/png", Data: png}}
		}
	}
	return msg, nil
}
