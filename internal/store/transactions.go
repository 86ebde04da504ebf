package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/farellandr/lunchticket/internal/helpers"
	"github.com/farellandr/lunchticket/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type NewTransaction struct {
	UserID      int64
	Username    string
	LunchPrice  string
	Description string
	AdminID     int64
}

// CreateTransaction upserts the owner, inserts the charge and raises the
// owner's balance in a single database transaction. The price string is
// validated before anything is written.
func (s *Store) CreateTransaction(ctx context.Context, in NewTransaction) (int64, error) {
	price, err := helpers.ParsePrice(in.LunchPrice)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.transact(ctx, "create transaction", func(tx *gorm.DB) error {
		if _, err := upsertUser(tx, in.UserID, in.Username); err != nil {
			return fmt.Errorf("upsert user: %w", err)
		}
		if err := lockUser(tx, in.UserID); err != nil {
			return err
		}

		txn := models.Transaction{
			UserID:          in.UserID,
			CommentedCount:  1,
			LunchPrice:      in.LunchPrice,
			TotalPrice:      price,
			TransactionDate: time.Now().UTC(),
		}
		if in.Description != "" {
			txn.Description = &in.Description
		}
		if in.AdminID != 0 {
			txn.AdminID = &in.AdminID
		}
		if err := tx.Omit(clause.Associations).Create(&txn).Error; err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		res := tx.Model(&models.User{}).
			Where("user_id = ?", in.UserID).
			Update("total_unpaid", gorm.Expr("total_unpaid + ?", price))
		if res.Error != nil {
			return fmt.Errorf("increment balance: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrUserNotFound
		}
		id = txn.TransactionID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateTransactionProof records a proof image and puts the transaction
// back into pending verification. Reopening a paid transaction adds its
// amount back to the owner's balance.
func (s *Store) UpdateTransactionProof(ctx context.Context, transactionID int64, imageURL string) error {
	return s.transact(ctx, "update transaction proof", func(tx *gorm.DB) error {
		userID, err := transactionOwner(tx, transactionID)
		if err != nil {
			return err
		}
		if err := lockUser(tx, userID); err != nil {
			return err
		}

		var txn models.Transaction
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("transaction_id = ?", transactionID).
			Take(&txn).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTransactionNotFound
		}
		if err != nil {
			return err
		}

		err = tx.Model(&models.Transaction{}).
			Where("transaction_id = ?", transactionID).
			Updates(map[string]any{
				"transaction_image":     imageURL,
				"transaction_date":      gorm.Expr("CURRENT_TIMESTAMP"),
				"transaction_confirmed": false,
				"paid":                  false,
			}).Error
		if err != nil {
			return err
		}

		if txn.Paid {
			return tx.Model(&models.User{}).
				Where("user_id = ?", txn.UserID).
				Update("total_unpaid", gorm.Expr("total_unpaid + ?", txn.TotalPrice)).Error
		}
		return nil
	})
}

// ConfirmTransaction marks one transaction confirmed and paid and lowers
// the owner's balance by its amount. Confirming an already paid
// transaction changes nothing and reports false.
func (s *Store) ConfirmTransaction(ctx context.Context, transactionID int64) (bool, error) {
	var changed bool
	err := s.transact(ctx, "confirm transaction", func(tx *gorm.DB) error {
		changed = false

		userID, err := transactionOwner(tx, transactionID)
		if err != nil {
			return err
		}
		if err := lockUser(tx, userID); err != nil {
			return err
		}

		var row struct {
			UserID     int64
			TotalPrice decimal.Decimal
		}
		res := tx.Raw(`
			UPDATE transactions
			SET transaction_confirmed = TRUE, paid = TRUE
			WHERE transaction_id = ? AND paid = FALSE
			RETURNING user_id, total_price`, transactionID).Scan(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		err = tx.Model(&models.User{}).
			Where("user_id = ?", row.UserID).
			Update("total_unpaid", gorm.Expr("total_unpaid - ?", row.TotalPrice)).Error
		if err != nil {
			return err
		}
		changed = true
		return nil
	})
	return changed, err
}

// ConfirmAllUnpaid closes the user's whole tab: every unpaid transaction
// becomes confirmed and paid and the balance is set to exactly zero.
func (s *Store) ConfirmAllUnpaid(ctx context.Context, userID int64) (int64, error) {
	var confirmed int64
	err := s.transact(ctx, "confirm all unpaid", func(tx *gorm.DB) error {
		confirmed = 0
		if err := lockUser(tx, userID); err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return nil
			}
			return err
		}

		res := tx.Model(&models.Transaction{}).
			Where("user_id = ? AND paid = ?", userID, false).
			Updates(map[string]any{
				"transaction_confirmed": true,
				"paid":                  true,
			})
		if res.Error != nil {
			return res.Error
		}
		confirmed = res.RowsAffected

		return tx.Model(&models.User{}).
			Where("user_id = ?", userID).
			Update("total_unpaid", decimal.Zero).Error
	})
	return confirmed, err
}

// lockUser takes the row lock on the user. Every write that touches a
// user's balance locks the user before any of the user's transactions, so
// concurrent writers queue on one row in one order.
func lockUser(tx *gorm.DB, userID int64) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("user_id").
		Where("user_id = ?", userID).
		Take(&models.User{}).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("lock user: %w", err)
	}
	return nil
}

func transactionOwner(tx *gorm.DB, transactionID int64) (int64, error) {
	var owners []int64
	err := tx.Model(&models.Transaction{}).
		Where("transaction_id = ?", transactionID).
		Limit(1).
		Pluck("user_id", &owners).Error
	if err != nil {
		return 0, err
	}
	if len(owners) == 0 {
		return 0, ErrTransactionNotFound
	}
	return owners[0], nil
}

func (s *Store) GetTransaction(ctx context.Context, transactionID int64) (*models.Transaction, error) {
	var txn models.Transaction
	err := s.do(ctx, "get transaction", func(db *gorm.DB) error {
		return db.Where("transaction_id = ?", transactionID).Take(&txn).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// ListUnpaidTransactions returns the user's open charges, newest first.
func (s *Store) ListUnpaidTransactions(ctx context.Context, userID int64) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := s.do(ctx, "list unpaid transactions", func(db *gorm.DB) error {
		return db.Where("user_id = ? AND paid = ?", userID, false).
			Order("transaction_date DESC").
			Find(&txns).Error
	})
	return txns, err
}

// GetTransactionHistory returns every transaction of the user, newest first.
func (s *Store) GetTransactionHistory(ctx context.Context, userID int64) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := s.do(ctx, "get transaction history", func(db *gorm.DB) error {
		return db.Where("user_id = ?", userID).
			Order("transaction_date DESC").
			Find(&txns).Error
	})
	return txns, err
}
