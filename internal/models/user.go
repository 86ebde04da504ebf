package models

import (
	"github.com/shopspring/decimal"
)

// User is a chat member who has been charged at least once. TotalUnpaid is
// kept equal to the sum of TotalPrice over the user's unpaid transactions.
type User struct {
	UserID       int64           `gorm:"primaryKey;autoIncrement:false"`
	Username     *string         `gorm:"type:text"`
	TotalUnpaid  decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	Transactions []Transaction   `gorm:"foreignKey:UserID;references:UserID"`
}

func (User) TableName() string {
	return "users"
}

func (user *User) DisplayName() string {
	if user.Username == nil {
		return ""
	}
	return *user.Username
}
