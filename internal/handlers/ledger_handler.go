package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/farellandr/lunchticket/internal/helpers"
	"github.com/farellandr/lunchticket/internal/models"
	"github.com/farellandr/lunchticket/internal/store"
)

const StoreKey = "store"

// Ledger is the store surface the admin API reads and writes.
type Ledger interface {
	Ping(ctx context.Context) error
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	GetUnpaidTotal(ctx context.Context, userID int64) (decimal.Decimal, error)
	GetUnpaidCount(ctx context.Context, userID int64) (int64, error)
	GetTransactionHistory(ctx context.Context, userID int64) ([]models.Transaction, error)
	ListUnpaidTransactions(ctx context.Context, userID int64) ([]models.Transaction, error)
	GetActiveTickets(ctx context.Context) ([]models.ActiveTicket, error)
	ConfirmAllUnpaid(ctx context.Context, userID int64) (int64, error)
	ConfirmTransaction(ctx context.Context, transactionID int64) (bool, error)
	ResetUserData(ctx context.Context, userID int64) error
}

type TransactionResponse struct {
	TransactionID        int64     `json:"transaction_id,string"`
	LunchPrice           string    `json:"lunch_price"`
	TotalPrice           string    `json:"total_price"`
	TransactionImage     *string   `json:"transaction_image"`
	TransactionConfirmed bool      `json:"transaction_confirmed"`
	Paid                 bool      `json:"paid"`
	TransactionDate      time.Time `json:"transaction_date"`
	TicketMessageID      *int64    `json:"ticket_message_id,string,omitempty"`
	Description          *string   `json:"description,omitempty"`
}

type ActiveTicketResponse struct {
	TransactionID    int64     `json:"transaction_id,string"`
	UserID           int64     `json:"user_id,string"`
	Username         *string   `json:"username"`
	TicketMessageID  int64     `json:"ticket_message_id,string"`
	TicketChannelID  *int64    `json:"ticket_channel_id,string,omitempty"`
	TransactionImage *string   `json:"transaction_image"`
	TransactionDate  time.Time `json:"transaction_date"`
}

func getLedger(c *gin.Context) (Ledger, bool) {
	value, exists := c.Get(StoreKey)
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Store not found.")
		return nil, false
	}
	return value.(Ledger), true
}

// userParam reads :id and answers 400 itself when it is not a user id.
func userParam(c *gin.Context) (int64, bool) {
	id, err := helpers.StringToInt64(c.Param("id"))
	if err != nil || id <= 0 {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid user ID.")
		return 0, false
	}
	return id, true
}

func transactionParam(c *gin.Context) (int64, bool) {
	id, err := helpers.StringToInt64(c.Param("id"))
	if err != nil || id <= 0 {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid transaction ID.")
		return 0, false
	}
	return id, true
}

func toTransactionResponse(t models.Transaction) TransactionResponse {
	return TransactionResponse{
		TransactionID:        t.TransactionID,
		LunchPrice:           t.LunchPrice,
		TotalPrice:           t.TotalPrice.StringFixed(3),
		TransactionImage:     t.TransactionImage,
		TransactionConfirmed: t.TransactionConfirmed,
		Paid:                 t.Paid,
		TransactionDate:      t.TransactionDate,
		TicketMessageID:      t.TicketMessageID,
		Description:          t.Description,
	}
}

func Healthz(c *gin.Context) {
	ledger, ok := getLedger(c)
	if !ok {
		return
	}
	if err := ledger.Ping(c.Request.Context()); err != nil {
		helpers.RespondWithError(c, http.StatusServiceUnavailable, "Database unavailable.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func GetBalance(c *gin.Context) {
	ledger, ok := getLedger(c)
	if !ok {
		return
	}
	userID, ok := userParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	user, err := ledger.GetUser(ctx, userID)
	if errors.Is(err, store.ErrUserNotFound) {
		helpers.RespondWithError(c, http.StatusNotFound, "User not found.")
		return
	}
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to retrieve user.")
		return
	}

	total, err := ledger.GetUnpaidTotal(ctx, userID)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to retrieve balance.")
		return
	}
	count, err := ledger.GetUnpaidCount(ctx, userID)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to retrieve balance.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":      strconv.FormatInt(user.UserID, 10),
		"username":     user.DisplayName(),
		"total_unpaid": total.StringFixed(3),
		"unpaid_count": count,
	})
}

func ListTransactions(c *gin.Context) {
	ledger, ok := getLedger(c)
	if !ok {
		return
	}
	userID, ok := userParam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()

	var (
		txns []models.Transaction
		err  error
	)
	switch c.DefaultQuery("status", "all") {
	case "all":
		txns, err = ledger.GetTransactionHistory(ctx, userID)
	case "unpaid":
		txns, err = ledger.ListUnpaidTransactions(ctx, userID)
	default:
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid status filter.")
		return
	}
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to retrieve transactions.")
		return
	}

	resp := make([]TransactionResponse, 0, len(txns))
	for _, t := range txns {
		resp = append(resp, toTransactionResponse(t))
	}
	c.JSON(http.StatusOK, gin.H{"transactions": resp})
}

func ListActiveTickets(c *gin.Context) {
	ledger, ok := getLedger(c)
	if !ok {
		return
	}

	tickets, err := ledger.GetActiveTickets(c.Request.Context())
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to retrieve active tickets.")
		return
	}

	resp := make([]ActiveTicketResponse, 0, len(tickets))
	for _, t := range tickets {
		resp = append(resp, ActiveTicketResponse{
			TransactionID:    t.TransactionID,
			UserID:           t.UserID,
			Username:         t.Username,
			TicketMessageID:  t.TicketMessageID,
			TicketChannelID:  t.TicketChannelID,
			TransactionImage: t.TransactionImage,
			TransactionDate:  t.TransactionDate,
		})
	}
	c.JSON(http.StatusOK, gin.H{"tickets": resp})
}

func ConfirmUser(c *gin.Context) {
	ledger, ok := getLedger(c)
	if !ok {
		return
	}
	userID, ok := userParam(c)
	if !ok {
		return
	}

	confirmed, err := ledger.ConfirmAllUnpaid(c.Request.Context(), userID)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to confirm transactions.")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Unpaid transactions confirmed.",
		"confirmed": confirmed,
	})
}

// ConfirmTransaction settles a single charge. Confirming a paid charge
// succeeds without changing the balance.
func ConfirmTransaction(c *gin.Context) {
	ledger, ok := getLedger(c)
	if !ok {
		return
	}
	transactionID, ok := transactionParam(c)
	if !ok {
		return
	}

	changed, err := ledger.ConfirmTransaction(c.Request.Context(), transactionID)
	if errors.Is(err, store.ErrTransactionNotFound) {
		helpers.RespondWithError(c, http.StatusNotFound, "Transaction not found.")
		return
	}
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to confirm transaction.")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Transaction confirmed.",
		"changed": changed,
	})
}

func ResetUser(c *gin.Context) {
	ledger, ok := getLedger(c)
	if !ok {
		return
	}
	userID, ok := userParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if _, err := ledger.GetUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			helpers.RespondWithError(c, http.StatusNotFound, "User not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to retrieve user.")
		return
	}
	if err := ledger.ResetUserData(ctx, userID); err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to reset user data.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User data deleted successfully."})
}
