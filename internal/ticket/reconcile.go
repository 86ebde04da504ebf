package ticket

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/farellandr/lunchticket/internal/logger"
	"github.com/farellandr/lunchticket/internal/models"
)

type ReconcileReport struct {
	Attached  int
	Unmatched int
	Failed    int
	Cleaned   int64
}

// Reconciler rebuilds live handshakes for unpaid tickets after a restart.
type Reconciler struct {
	deps Deps
}

func NewReconciler(d Deps) *Reconciler {
	return &Reconciler{deps: d.withDefaults()}
}

// Run reattaches a handshake to every active ticket whose channel lives in
// guildID. Tickets whose message is gone have their refs cleaned in one batch.
func (r *Reconciler) Run(ctx context.Context, guildID int64) (ReconcileReport, error) {
	var report ReconcileReport
	log := logger.FromContext(ctx).With().Int64("guild_id", guildID).Logger()

	tickets, err := r.deps.Store.GetActiveTickets(ctx)
	if err != nil {
		return report, fmt.Errorf("load active tickets: %w", err)
	}
	if len(tickets) == 0 {
		return report, nil
	}
	channels, err := r.deps.Platform.TicketChannels(ctx, guildID)
	if err != nil {
		return report, fmt.Errorf("list ticket channels: %w", err)
	}

	var missing []int64
	for _, t := range tickets {
		channel, ok := matchChannel(t, channels)
		if !ok {
			report.Unmatched++
			continue
		}
		err := r.reattach(ctx, guildID, t, channel)
		switch {
		case errors.Is(err, ErrMessageNotFound):
			missing = append(missing, t.TicketMessageID)
		case err != nil:
			report.Failed++
			log.Error().Err(err).Int64("user_id", t.UserID).Int64("transaction_id", t.TransactionID).Msg("failed to reattach ticket")
		default:
			report.Attached++
		}
	}

	if len(missing) > 0 {
		n, err := r.deps.Store.CleanDeletedMessageRefs(ctx, missing)
		if err != nil {
			log.Error().Err(err).Msg("failed to clean missing ticket messages")
		}
		report.Cleaned = n
	}

	log.Info().
		Int("attached", report.Attached).
		Int("unmatched", report.Unmatched).
		Int("failed", report.Failed).
		Int64("cleaned", report.Cleaned).
		Msg("ticket reconciliation finished")
	return report, nil
}

func (r *Reconciler) reattach(ctx context.Context, guildID int64, t models.ActiveTicket, channel Channel) error {
	if _, err := r.deps.Platform.FetchMessage(ctx, channel.ID, t.TicketMessageID); err != nil {
		return err
	}

	admin, err := r.verifier(ctx, guildID, channel, t)
	if err != nil {
		return err
	}

	user := Member{ID: t.UserID}
	if t.Username != nil {
		user.Name = *t.Username
	}
	state := AwaitingProof
	if t.TransactionImage != nil && *t.TransactionImage != "" {
		state = AwaitingVerification
	}

	h := NewHandshake(r.deps, HandshakeConfig{
		User:          user,
		Admin:         admin,
		ChannelID:     channel.ID,
		MessageID:     t.TicketMessageID,
		TransactionID: t.TransactionID,
		State:         state,
	})
	r.deps.Registry.Register(h)

	if err := r.deps.Platform.EditMessage(ctx, channel.ID, t.TicketMessageID, nil, h.Controls()); err != nil {
		logger.FromContext(ctx).Warn().Err(err).Int64("message_id", t.TicketMessageID).Msg("failed to refresh ticket buttons")
	}
	return nil
}

// verifier picks the admin named on the proof notice: the charging admin if
// still elevated in the channel, otherwise the first elevated member.
func (r *Reconciler) verifier(ctx context.Context, guildID int64, channel Channel, t models.ActiveTicket) (Member, error) {
	candidates := make([]int64, 0, len(channel.MemberIDs)+1)
	if t.AdminID != nil {
		candidates = append(candidates, *t.AdminID)
	}
	for _, id := range channel.MemberIDs {
		if id != t.UserID && (t.AdminID == nil || id != *t.AdminID) {
			candidates = append(candidates, id)
		}
	}

	for _, id := range candidates {
		ok, err := r.deps.Platform.IsElevated(ctx, id, channel.ID)
		if err != nil {
			return Member{}, fmt.Errorf("check permissions of %d: %w", id, err)
		}
		if !ok {
			continue
		}
		m, err := r.deps.Platform.Member(ctx, guildID, id)
		if err != nil {
			return Member{ID: id}, nil
		}
		return m, nil
	}
	return Member{}, nil
}

func matchChannel(t models.ActiveTicket, channels []Channel) (Channel, bool) {
	if t.TicketChannelID != nil {
		for _, c := range channels {
			if c.ID == *t.TicketChannelID {
				return c, true
			}
		}
	}
	if t.Username == nil || *t.Username == "" {
		return Channel{}, false
	}
	for _, name := range ChannelNameCandidates(*t.Username) {
		for _, c := range channels {
			if strings.ToLower(c.Name) == name {
				return c, true
			}
		}
	}
	return Channel{}, false
}
