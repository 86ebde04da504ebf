package ticket

import (
	"context"
	"time"

	"github.com/farellandr/lunchticket/internal/models"
	"github.com/farellandr/lunchticket/internal/store"
	"github.com/shopspring/decimal"
)

// Store is the subset of the persistence layer the ticket flow needs.
type Store interface {
	UpsertUser(ctx context.Context, userID int64, username string) (string, error)
	CreateTransaction(ctx context.Context, in store.NewTransaction) (int64, error)
	UpdateTransactionProof(ctx context.Context, transactionID int64, imageURL string) error
	ConfirmAllUnpaid(ctx context.Context, userID int64) (int64, error)
	GetTransaction(ctx context.Context, transactionID int64) (*models.Transaction, error)
	GetUnpaidTotal(ctx context.Context, userID int64) (decimal.Decimal, error)
	GetUnpaidCount(ctx context.Context, userID int64) (int64, error)
	SetTicketMessageID(ctx context.Context, transactionID, channelID, messageID int64) error
	GetUserTicketMessageIDs(ctx context.Context, userID int64) ([]int64, error)
	GetUserTicketChannelID(ctx context.Context, userID int64) (int64, error)
	GetActiveTickets(ctx context.Context) ([]models.ActiveTicket, error)
	CleanDeletedMessageRefs(ctx context.Context, messageIDs []int64) (int64, error)
}

// Deps are the collaborators shared by the controller, the handshakes and
// the reconciler.
type Deps struct {
	Store    Store
	Platform Platform
	Images   ImageSlots
	Events   Publisher
	Registry *Registry

	Currency       string
	PaymentAccount string
	Now            func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Images == nil {
		d.Images = NewMemoryImageSlots()
	}
	if d.Events == nil {
		d.Events = NopPublisher{}
	}
	if d.Registry == nil {
		d.Registry = NewRegistry()
	}
	if d.Currency == "" {
		d.Currency = "VND"
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}
