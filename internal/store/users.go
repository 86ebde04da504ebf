package store

import (
	"context"
	"errors"

	"github.com/farellandr/lunchticket/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertUser inserts the user if absent. A non-empty username replaces the
// stored one (last write wins); an empty one leaves it alone. The stored
// username is returned.
func (s *Store) UpsertUser(ctx context.Context, userID int64, username string) (string, error) {
	var stored string
	err := s.do(ctx, "upsert user", func(db *gorm.DB) error {
		var err error
		stored, err = upsertUser(db, userID, username)
		return err
	})
	return stored, err
}

func upsertUser(tx *gorm.DB, userID int64, username string) (string, error) {
	user := models.User{UserID: userID}
	onConflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}
	if username != "" {
		user.Username = &username
		onConflict = clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username"}),
		}
	}
	if err := tx.Clauses(onConflict).Omit("Transactions").Create(&user).Error; err != nil {
		return "", err
	}

	var stored models.User
	if err := tx.Select("user_id", "username").Where("user_id = ?", userID).Take(&stored).Error; err != nil {
		return "", err
	}
	return stored.DisplayName(), nil
}

func (s *Store) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	var user models.User
	err := s.do(ctx, "get user", func(db *gorm.DB) error {
		return db.Where("user_id = ?", userID).Take(&user).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUnpaidTotal(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.do(ctx, "get unpaid total", func(db *gorm.DB) error {
		return db.Model(&models.Transaction{}).
			Where("user_id = ? AND paid = ?", userID, false).
			Select("COALESCE(SUM(total_price), 0)").
			Row().
			Scan(&total)
	})
	return total, err
}

func (s *Store) GetUnpaidCount(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := s.do(ctx, "get unpaid count", func(db *gorm.DB) error {
		return db.Model(&models.Transaction{}).
			Where("user_id = ? AND paid = ?", userID, false).
			Count(&count).Error
	})
	return count, err
}

// ResetUserData hard-deletes the user's transactions and the user row.
func (s *Store) ResetUserData(ctx context.Context, userID int64) error {
	return s.transact(ctx, "reset user data", func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.Transaction{}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", userID).Delete(&models.User{}).Error
	})
}
