package ticket

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/farellandr/lunchticket/internal/logger"
)

type State int

const (
	AwaitingProof State = iota
	AwaitingVerification
	Closed
)

func (s State) String() string {
	switch s {
	case AwaitingProof:
		return "AWAITING_PROOF"
	case AwaitingVerification:
		return "AWAITING_VERIFICATION"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Replies shown to the actor who pressed a button.
const (
	ReplyNotOwner         = "You can't submit payment for another user!"
	ReplyNoImage          = "Please upload an image first, then click the submit button."
	ReplySubmitted        = "Payment proof submitted. An admin will verify it soon."
	ReplyAlreadySubmitted = "Your payment proof is already waiting for verification."
	ReplyNotAdmin         = "Only admins can verify payments!"
	ReplyVerified         = "Payment verified!"
	ReplyClosed           = "This ticket is already closed."
	ReplyFailed           = "An error occurred while processing your request. Please try again."
)

type HandshakeConfig struct {
	User          Member
	Admin         Member
	ChannelID     int64
	MessageID     int64
	TransactionID int64
	State         State
}

// Handshake is the submit/verify control bound to one ticket message. Its
// mutex serializes the two transitions of this handshake only.
type Handshake struct {
	deps Deps

	mu            sync.Mutex
	state         State
	user          Member
	admin         Member
	channelID     int64
	messageID     int64
	transactionID int64
}

func NewHandshake(d Deps, cfg HandshakeConfig) *Handshake {
	return &Handshake{
		deps:          d.withDefaults(),
		state:         cfg.State,
		user:          cfg.User,
		admin:         cfg.Admin,
		channelID:     cfg.ChannelID,
		messageID:     cfg.MessageID,
		transactionID: cfg.TransactionID,
	}
}

func (h *Handshake) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handshake) TransactionID() int64 { return h.transactionID }
func (h *Handshake) UserID() int64        { return h.user.ID }
func (h *Handshake) ChannelID() int64     { return h.channelID }

// Controls reflects the handshake state on the ticket message buttons.
func (h *Handshake) Controls() *Controls {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.controls()
}

func (h *Handshake) controls() *Controls {
	return &Controls{
		TransactionID:  h.transactionID,
		SubmitDisabled: h.state != AwaitingProof,
		VerifyDisabled: h.state == Closed,
	}
}

// Submit attaches the user's pending image as proof. It returns the text to
// show the actor.
func (h *Handshake) Submit(ctx context.Context, actor Member) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	log := logger.FromContext(ctx).With().
		Int64("transaction_id", h.transactionID).
		Int64("user_id", h.user.ID).
		Logger()

	if actor.ID != h.user.ID {
		return ReplyNotOwner
	}
	switch h.state {
	case AwaitingVerification:
		return ReplyAlreadySubmitted
	case Closed:
		return ReplyClosed
	}

	img, ok, err := h.deps.Images.Get(ctx, h.user.ID)
	if err != nil {
		log.Error().Err(err).Msg("failed to read pending image")
		return ReplyFailed
	}
	if !ok || img.URL == "" {
		return ReplyNoImage
	}

	if err := h.deps.Store.UpdateTransactionProof(ctx, h.transactionID, img.URL); err != nil {
		log.Error().Err(err).Msg("failed to save payment proof")
		return ReplyFailed
	}
	h.state = AwaitingVerification

	h.deleteBotMessages(ctx, func(m MessageInfo) bool {
		return strings.HasPrefix(m.Content, proofNoticeOf)
	})
	if _, err := h.deps.Platform.SendMessage(ctx, h.channelID, proofNotice(h.user, h.admin, img.URL)); err != nil {
		log.Warn().Err(err).Msg("failed to post proof notice")
	}
	if err := h.deps.Platform.EditMessage(ctx, h.channelID, h.messageID, nil, h.controls()); err != nil && !errors.Is(err, ErrMessageNotFound) {
		log.Warn().Err(err).Msg("failed to disable submit button")
	}
	if err := h.deps.Images.Clear(ctx, h.user.ID); err != nil {
		log.Warn().Err(err).Msg("failed to clear pending image")
	}

	h.publish(ctx, Event{
		Type:          EventProofSubmitted,
		TransactionID: h.transactionID,
		UserID:        h.user.ID,
		ActorID:       actor.ID,
		ImageURL:      img.URL,
	})
	log.Info().Str("image_url", img.URL).Msg("payment proof submitted")
	return ReplySubmitted
}

// Verify closes the user's whole tab. Any member with elevated permissions in
// the ticket channel may verify, not only the admin who charged.
func (h *Handshake) Verify(ctx context.Context, actor Member) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	log := logger.FromContext(ctx).With().
		Int64("transaction_id", h.transactionID).
		Int64("user_id", h.user.ID).
		Int64("actor_id", actor.ID).
		Logger()

	if h.state == Closed {
		return ReplyClosed
	}

	elevated, err := h.deps.Platform.IsElevated(ctx, actor.ID, h.channelID)
	if err != nil {
		log.Error().Err(err).Msg("failed to check verifier permissions")
		return ReplyFailed
	}
	if !elevated {
		return ReplyNotAdmin
	}

	var imageURL string
	if txn, err := h.deps.Store.GetTransaction(ctx, h.transactionID); err != nil {
		log.Warn().Err(err).Msg("failed to load transaction proof")
	} else if txn.TransactionImage != nil {
		imageURL = *txn.TransactionImage
	}

	confirmed, err := h.deps.Store.ConfirmAllUnpaid(ctx, h.user.ID)
	if err != nil {
		log.Error().Err(err).Msg("failed to confirm unpaid transactions")
		return ReplyFailed
	}
	h.state = Closed
	h.deps.Registry.RemoveUser(h.user.ID)

	h.deleteBotMessages(ctx, func(MessageInfo) bool { return true })
	if err := h.deps.Platform.EditMessage(ctx, h.channelID, h.messageID,
		SettledEmbed(h.user, actor, confirmed, h.deps.Currency), h.controls()); err != nil && !errors.Is(err, ErrMessageNotFound) {
		log.Warn().Err(err).Msg("failed to settle ticket message")
	}
	if _, err := h.deps.Platform.SendMessage(ctx, h.channelID, verifiedNotice(h.user, actor, imageURL)); err != nil {
		log.Warn().Err(err).Msg("failed to post verification notice")
	}
	if err := h.deps.Images.Clear(ctx, h.user.ID); err != nil {
		log.Warn().Err(err).Msg("failed to clear pending image")
	}

	h.publish(ctx, Event{
		Type:          EventVerified,
		TransactionID: h.transactionID,
		UserID:        h.user.ID,
		ActorID:       actor.ID,
		ImageURL:      imageURL,
		Confirmed:     confirmed,
	})
	log.Info().Int64("confirmed", confirmed).Msg("payment verified")
	return ReplyVerified
}

// deleteBotMessages removes bot messages in the ticket channel matching match,
// never the ticket message itself. Failures are logged and swallowed.
func (h *Handshake) deleteBotMessages(ctx context.Context, match func(MessageInfo) bool) {
	log := logger.FromContext(ctx)
	msgs, err := h.deps.Platform.BotMessages(ctx, h.channelID)
	if err != nil {
		log.Warn().Err(err).Int64("channel_id", h.channelID).Msg("failed to list bot messages")
		return
	}
	for _, m := range msgs {
		if m.ID == h.messageID || !match(m) {
			continue
		}
		err := h.deps.Platform.DeleteMessage(ctx, h.channelID, m.ID)
		if err != nil && !errors.Is(err, ErrMessageNotFound) {
			log.Warn().Err(err).Int64("message_id", m.ID).Msg("failed to delete bot message")
		}
	}
}

func (h *Handshake) publish(ctx context.Context, e Event) {
	e.At = h.deps.Now().UTC()
	if err := h.deps.Events.Publish(ctx, e); err != nil {
		logger.FromContext(ctx).Warn().Err(err).Str("event", string(e.Type)).Msg("failed to publish event")
	}
}
