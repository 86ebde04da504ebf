package ticket

import (
	"context"
	"testing"
	"time"

	"github.com/farellandr/lunchticket/internal/helpers"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin = Member{ID: 1, Name: "boss"}
	alice = Member{ID: 11, Name: "alice"}
	bob   = Member{ID: 12, Name: "bob"}
	carol = Member{ID: 13, Name: "carol"}
)

type fixture struct {
	store    *memStore
	platform *fakePlatform
	images   *MemoryImageSlots
	events   *recordingPublisher
	deps     Deps
	ctrl     *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    newMemStore(),
		platform: newFakePlatform(),
		images:   NewMemoryImageSlots(),
		events:   &recordingPublisher{},
	}
	f.deps = Deps{
		Store:    f.store,
		Platform: f.platform,
		Images:   f.images,
		Events:   f.events,
		Registry: NewRegistry(),
		Currency: "VND",
		Now:      func() time.Time { return time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC) },
	}
	f.ctrl = NewController(f.deps)
	return f
}

func (f *fixture) charge(t *testing.T, users ...Member) *ChargeReport {
	t.Helper()
	report, err := f.ctrl.Charge(context.Background(), ChargeRequest{
		GuildID: 100,
		Admin:   admin,
		Price:   "55.000 VND",
		Users:   users,
	})
	require.NoError(t, err)
	return report
}

func fieldValue(e *Embed, name string) string {
	for _, f := range e.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

func TestChargeContinuesPastFailedUser(t *testing.T) {
	f := newFixture(t)
	f.platform.failChannel[bob.ID] = true

	report := f.charge(t, alice, bob, carol)

	require.Len(t, report.Succeeded, 2)
	assert.Equal(t, alice.ID, report.Succeeded[0].ID)
	assert.Equal(t, carol.ID, report.Succeeded[1].ID)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, bob.ID, report.Failed[0].User.ID)
	assert.Equal(t, ReasonOpenChannel, report.Failed[0].Reason)
	assert.ErrorContains(t, report.Failed[0].Err, "missing permissions")

	txns := f.store.transactionsOf(bob.ID)
	require.Len(t, txns, 1)
	assert.False(t, txns[0].Paid)
	assert.True(t, decimal.NewFromInt(55).Equal(f.store.balance(bob.ID)))

	assert.Equal(t, 2, f.deps.Registry.Len())
	assert.Equal(t, []EventType{EventCharged, EventCharged}, f.events.types())
}

func TestChargeRejectsBadInputBeforeWriting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.Charge(ctx, ChargeRequest{Admin: admin, Price: "55.000 VND"})
	assert.ErrorIs(t, err, ErrNoTargets)

	for _, price := range []string{"free", "0", "1.2.3"} {
		_, err := f.ctrl.Charge(ctx, ChargeRequest{Admin: admin, Price: price, Users: []Member{alice}})
		assert.ErrorIs(t, err, helpers.ErrInvalidPrice, price)
	}

	assert.Empty(t, f.store.transactionsOf(alice.ID))
	assert.Empty(t, f.platform.messagesIn(channelFor(alice.ID)))
}

func TestChargeRendersBalanceAndRecordsMessage(t *testing.T) {
	f := newFixture(t)
	f.charge(t, alice)

	txns := f.store.transactionsOf(alice.ID)
	require.Len(t, txns, 1)
	require.NotNil(t, txns[0].TicketMessageID)
	require.NotNil(t, txns[0].TicketChannelID)
	assert.Equal(t, channelFor(alice.ID), *txns[0].TicketChannelID)
	require.NotNil(t, txns[0].AdminID)
	assert.Equal(t, admin.ID, *txns[0].AdminID)

	msg, ok := f.platform.message(*txns[0].TicketMessageID)
	require.True(t, ok)
	require.NotNil(t, msg.Embed)
	assert.Equal(t, "2024-05-06", fieldValue(msg.Embed, "Date"))
	assert.Equal(t, "55.000 VND", fieldValue(msg.Embed, "Lunch Price"))
	assert.Equal(t, "55.000 VND", fieldValue(msg.Embed, "Total Unpaid Lunch"))
	assert.Equal(t, "1", fieldValue(msg.Embed, "Unpaid Transactions"))
	assert.Equal(t, ticketFooter, msg.Embed.Footer)
	require.NotNil(t, msg.Controls)
	assert.Equal(t, txns[0].TransactionID, msg.Controls.TransactionID)
	assert.False(t, msg.Controls.SubmitDisabled)
	assert.Empty(t, msg.Files)
}

func TestChargeReplacesPreviousTicketMessage(t *testing.T) {
	f := newFixture(t)
	f.charge(t, alice)
	first := f.store.transactionsOf(alice.ID)[0]
	firstMessage := *first.TicketMessageID

	f.charge(t, alice)

	assert.Contains(t, f.platform.deleted, firstMessage)
	assert.Contains(t, f.store.cleaned, firstMessage)

	msgs := f.platform.messagesIn(channelFor(alice.ID))
	require.Len(t, msgs, 1)
	assert.Equal(t, "110.000 VND", fieldValue(msgs[0].Embed, "Total Unpaid Lunch"))
	assert.Equal(t, "2", fieldValue(msgs[0].Embed, "Unpaid Transactions"))

	_, ok := f.deps.Registry.Lookup(first.TransactionID)
	assert.False(t, ok)
	assert.Equal(t, 1, f.deps.Registry.Len())
	assert.True(t, decimal.NewFromInt(110).Equal(f.store.balance(alice.ID)))
}

func TestChargeReusesRecordedTicketChannel(t *testing.T) {
	f := newFixture(t)
	f.charge(t, alice)
	f.charge(t, alice)

	assert.Equal(t, []int64{0, channelFor(alice.ID)}, f.platform.knownIDs)
}

func TestChargeAttachesPaymentQR(t *testing.T) {
	f := newFixture(t)
	f.deps.PaymentAccount = "VCB-0123456789"
	f.ctrl = NewController(f.deps)

	f.charge(t, alice)

	msgs := f.platform.messagesIn(channelFor(alice.ID))
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Files, 1)
	assert.Equal(t, qrFileName, msgs[0].Files[0].Name)
	assert.Equal(t, "image/png", msgs[0].Files[0].ContentType)
	assert.NotEmpty(t, msgs[0].Files[0].Data)
	assert.Equal(t, "attachment://"+qrFileName, msgs[0].Embed.ImageURL)
}
