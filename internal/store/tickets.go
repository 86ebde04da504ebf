package store

import (
	"context"
	"errors"

	"github.com/farellandr/lunchticket/internal/models"
	"gorm.io/gorm"
)

// SetTicketMessageID records which chat message, in which channel, renders
// the given transaction.
func (s *Store) SetTicketMessageID(ctx context.Context, transactionID, channelID, messageID int64) error {
	return s.do(ctx, "set ticket message id", func(db *gorm.DB) error {
		res := db.Model(&models.Transaction{}).
			Where("transaction_id = ?", transactionID).
			Updates(map[string]any{
				"ticket_message_id": messageID,
				"ticket_channel_id": channelID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTransactionNotFound
		}
		return nil
	})
}

// GetTicketMessageID returns nil when the transaction has no message.
func (s *Store) GetTicketMessageID(ctx context.Context, transactionID int64) (*int64, error) {
	var txn models.Transaction
	err := s.do(ctx, "get ticket message id", func(db *gorm.DB) error {
		return db.Select("transaction_id", "ticket_message_id").
			Where("transaction_id = ?", transactionID).
			Take(&txn).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return txn.TicketMessageID, nil
}

// GetUserTicketMessageIDs lists every message still referenced by the
// user's unpaid transactions. More than one means an earlier cleanup failed.
func (s *Store) GetUserTicketMessageIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := s.do(ctx, "get user ticket message ids", func(db *gorm.DB) error {
		return db.Model(&models.Transaction{}).
			Where("user_id = ? AND paid = ? AND ticket_message_id IS NOT NULL", userID, false).
			Distinct().
			Pluck("ticket_message_id", &ids).Error
	})
	return ids, err
}

// GetUserTicketChannelID returns the channel of the user's most recent
// ticket message, or 0 when none was ever recorded.
func (s *Store) GetUserTicketChannelID(ctx context.Context, userID int64) (int64, error) {
	var ids []int64
	err := s.do(ctx, "get user ticket channel id", func(db *gorm.DB) error {
		return db.Model(&models.Transaction{}).
			Where("user_id = ? AND ticket_channel_id IS NOT NULL", userID).
			Order("transaction_id DESC").
			Limit(1).
			Pluck("ticket_channel_id", &ids).Error
	})
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	return ids[0], nil
}

// GetActiveTickets returns, per user, the latest unpaid transaction that
// still has a ticket message.
func (s *Store) GetActiveTickets(ctx context.Context) ([]models.ActiveTicket, error) {
	var tickets []models.ActiveTicket
	err := s.do(ctx, "get active tickets", func(db *gorm.DB) error {
		return db.Raw(`
			SELECT DISTINCT ON (t.user_id)
				t.transaction_id,
				t.user_id,
				u.username,
				t.ticket_message_id,
				t.ticket_channel_id,
				t.admin_id,
				t.transaction_image,
				t.transaction_date
			FROM transactions t
			JOIN users u ON u.user_id = t.user_id
			WHERE t.paid = FALSE AND t.ticket_message_id IS NOT NULL
			ORDER BY t.user_id, t.transaction_date DESC, t.transaction_id DESC`).
			Scan(&tickets).Error
	})
	return tickets, err
}

// CleanDeletedMessageRefs forgets messages the chat platform no longer has.
// Paid transactions keep their references.
func (s *Store) CleanDeletedMessageRefs(ctx context.Context, messageIDs []int64) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	var cleaned int64
	err := s.do(ctx, "clean deleted message refs", func(db *gorm.DB) error {
		res := db.Model(&models.Transaction{}).
			Where("ticket_message_id IN ? AND paid = ?", messageIDs, false).
			Update("ticket_message_id", gorm.Expr("NULL"))
		cleaned = res.RowsAffected
		return res.Error
	})
	return cleaned, err
}
