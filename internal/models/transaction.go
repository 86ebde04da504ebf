package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Transaction struct {
	TransactionID        int64           `gorm:"primaryKey;autoIncrement"`
	UserID               int64           `gorm:"not null;index"`
	User                 *User           `gorm:"foreignKey:UserID;references:UserID"`
	CommentedCount       int             `gorm:"not null;default:0"`
	LunchPrice           string          `gorm:"type:text"`
	TotalPrice           decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	TransactionImage     *string         `gorm:"type:text"`
	TransactionConfirmed bool            `gorm:"not null;default:false"`
	Paid                 bool            `gorm:"not null;default:false;index"`
	TransactionDate      time.Time       `gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
	TicketMessageID      *int64          `gorm:"index"`
	TicketChannelID      *int64
	AdminID              *int64
	Description          *string `gorm:"type:text"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// ActiveTicket is the latest unpaid transaction of a user that still has a
// ticket message, joined with the owner's username.
type ActiveTicket struct {
	TransactionID    int64
	UserID           int64
	Username         *string
	TicketMessageID  int64
	TicketChannelID  *int64
	AdminID          *int64
	TransactionImage *string
	TransactionDate  time.Time
}
