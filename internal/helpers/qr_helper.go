package helpers

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
)

const paymentQRSize = 256

// PaymentQRData is the text encoded in a ticket's payment QR code. The
// reference lets an admin match a bank transfer back to a transaction.
func PaymentQRData(account string, amount decimal.Decimal, currency string, transactionID int64) string {
	return fmt.Sprintf("account:%s;amount:%s;currency:%s;ref:%s",
		account,
		amount.StringFixed(3),
		currency,
		PaymentReference(transactionID),
	)
}

func PaymentReference(transactionID int64) string {
	return fmt.Sprintf("LUNCH-%d", transactionID)
}

// PaymentQR renders PaymentQRData as a PNG.
func PaymentQR(account string, amount decimal.Decimal, currency string, transactionID int64) ([]byte, error) {
	if account == "" {
		return nil, fmt.Errorf("payment account not configured")
	}
	png, err := qrcode.Encode(PaymentQRData(account, amount, currency, transactionID), qrcode.Medium, paymentQRSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate payment QR: %w", err)
	}
	return png, nil
}
