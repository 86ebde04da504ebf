package ticket

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

const (
	colorOpen     = 0x3498db
	colorSettled  = 0x2ecc71
	ticketTitle   = "🍽️ Lunch Ticket"
	ticketFooter  = "Please complete the payment within 24 hours"
	instructions  = "1. Take a screenshot of your payment transaction\n2. Upload the payment screenshot and click 'Submit Payment Proof'\n3. Wait for admin verification"
	qrFileName    = "payment-qr.png"
	dateLayout    = "2006-01-02"
	proofNoticeOf = "Payment proof submitted by "
)

// FormatAmount renders a balance with three decimals, e.g. "110.000 VND".
func FormatAmount(amount decimal.Decimal, currency string) string {
	return amount.StringFixed(3) + " " + currency
}

// TicketSummary is the authoritative balance a ticket message renders.
type TicketSummary struct {
	User        Member
	LunchPrice  string
	TotalUnpaid decimal.Decimal
	UnpaidCount int64
	Date        string
	Reference   string
}

func TicketEmbed(s TicketSummary, currency string) *Embed {
	e := &Embed{
		Title:       ticketTitle,
		Description: fmt.Sprintf("New lunch ticket for %s", s.User.Mention()),
		Color:       colorOpen,
		Fields: []EmbedField{
			{Name: "Date", Value: s.Date, Inline: true},
			{Name: "Lunch Price", Value: s.LunchPrice, Inline: true},
			{Name: "Total Unpaid Lunch", Value: FormatAmount(s.TotalUnpaid, currency), Inline: true},
			{Name: "Unpaid Transactions", Value: strconv.FormatInt(s.UnpaidCount, 10), Inline: true},
		},
		Footer: ticketFooter,
	}
	if s.Reference != "" {
		e.Fields = append(e.Fields, EmbedField{Name: "Reference", Value: s.Reference, Inline: true})
	}
	e.Fields = append(e.Fields, EmbedField{Name: "Instructions", Value: instructions})
	return e
}

func SettledEmbed(user Member, verifier Member, confirmed int64, currency string) *Embed {
	return &Embed{
		Title:       ticketTitle,
		Description: fmt.Sprintf("All lunches for %s are paid. Thank you!", user.Mention()),
		Color:       colorSettled,
		Fields: []EmbedField{
			{Name: "Total Unpaid Lunch", Value: FormatAmount(decimal.Zero, currency), Inline: true},
			{Name: "Transactions Settled", Value: strconv.FormatInt(confirmed, 10), Inline: true},
			{Name: "Verified By", Value: verifier.Mention(), Inline: true},
		},
	}
}

func proofNotice(user, admin Member, imageURL string) OutgoingMessage {
	who := "An admin"
	if admin.ID != 0 {
		who = "Admin " + admin.Mention()
	}
	return OutgoingMessage{
		Content: fmt.Sprintf("%s%s\n%s please verify.", proofNoticeOf, user.Mention(), who),
		Embed:   &Embed{Title: "Payment proof", ImageURL: imageURL, Color: colorOpen},
	}
}

func verifiedNotice(user, verifier Member, imageURL string) OutgoingMessage {
	msg := OutgoingMessage{
		Content: fmt.Sprintf("Payment verified by %s for %s. Thank you!", verifier.Mention(), user.Mention()),
	}
	if imageURL != "" {
		msg.Embed = &Embed{Title: "Verified payment proof", ImageURL: imageURL, Color: colorSettled}
	}
	return msg
}
