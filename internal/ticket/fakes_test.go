package ticket

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/farellandr/lunchticket/internal/helpers"
	"github.com/farellandr/lunchticket/internal/models"
	"github.com/farellandr/lunchticket/internal/store"
	"github.com/shopspring/decimal"
)

type memStore struct {
	mu     sync.Mutex
	users  map[int64]*models.User
	txns   map[int64]*models.Transaction
	nextID int64

	active      []models.ActiveTicket
	cleaned     []int64
	proofWrites int
}

func newMemStore() *memStore {
	return &memStore{
		users: make(map[int64]*models.User),
		txns:  make(map[int64]*models.Transaction),
	}
}

func (s *memStore) UpsertUser(_ context.Context, userID int64, username string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsert(userID, username), nil
}

func (s *memStore) upsert(userID int64, username string) string {
	u, ok := s.users[userID]
	if !ok {
		u = &models.User{UserID: userID}
		s.users[userID] = u
	}
	if username != "" {
		u.Username = &username
	}
	return u.DisplayName()
}

func (s *memStore) CreateTransaction(_ context.Context, in store.NewTransaction) (int64, error) {
	price, err := helpers.ParsePrice(in.LunchPrice)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsert(in.UserID, in.Username)
	s.nextID++
	s.txns[s.nextID] = &models.Transaction{
		TransactionID:  s.nextID,
		UserID:         in.UserID,
		CommentedCount: 1,
		LunchPrice:     in.LunchPrice,
		TotalPrice:     price,
	}
	if in.AdminID != 0 {
		admin := in.AdminID
		s.txns[s.nextID].AdminID = &admin
	}
	s.users[in.UserID].TotalUnpaid = s.users[in.UserID].TotalUnpaid.Add(price)
	return s.nextID, nil
}

func (s *memStore) UpdateTransactionProof(_ context.Context, id int64, imageURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txns[id]
	if !ok {
		return store.ErrTransactionNotFound
	}
	s.proofWrites++
	if t.Paid {
		u := s.users[t.UserID]
		u.TotalUnpaid = u.TotalUnpaid.Add(t.TotalPrice)
	}
	t.TransactionImage = &imageURL
	t.TransactionConfirmed = false
	t.Paid = false
	return nil
}

func (s *memStore) ConfirmAllUnpaid(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, t := range s.txns {
		if t.UserID == userID && !t.Paid {
			t.Paid = true
			t.TransactionConfirmed = true
			n++
		}
	}
	if u, ok := s.users[userID]; ok {
		u.TotalUnpaid = decimal.Zero
	}
	return n, nil
}

func (s *memStore) GetTransaction(_ context.Context, id int64) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txns[id]
	if !ok {
		return nil, store.ErrTransactionNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) GetUnpaidTotal(_ context.Context, userID int64) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, t := range s.txns {
		if t.UserID == userID && !t.Paid {
			total = total.Add(t.TotalPrice)
		}
	}
	return total, nil
}

func (s *memStore) GetUnpaidCount(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, t := range s.txns {
		if t.UserID == userID && !t.Paid {
			n++
		}
	}
	return n, nil
}

func (s *memStore) SetTicketMessageID(_ context.Context, id, channelID, messageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txns[id]
	if !ok {
		return store.ErrTransactionNotFound
	}
	t.TicketChannelID = &channelID
	t.TicketMessageID = &messageID
	return nil
}

func (s *memStore) GetUserTicketMessageIDs(_ context.Context, userID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for _, t := range s.txns {
		if t.UserID == userID && !t.Paid && t.TicketMessageID != nil {
			ids = append(ids, *t.TicketMessageID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *memStore) GetUserTicketChannelID(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest, channel int64
	for id, t := range s.txns {
		if t.UserID == userID && t.TicketChannelID != nil && id > latest {
			latest, channel = id, *t.TicketChannelID
		}
	}
	return channel, nil
}

func (s *memStore) GetActiveTickets(context.Context) ([]models.ActiveTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, nil
}

func (s *memStore) CleanDeletedMessageRefs(_ context.Context, ids []int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleaned = append(s.cleaned, ids...)
	var n int64
	for _, t := range s.txns {
		if t.Paid || t.TicketMessageID == nil {
			continue
		}
		for _, id := range ids {
			if *t.TicketMessageID == id {
				t.TicketMessageID = nil
				n++
			}
		}
	}
	return n, nil
}

func (s *memStore) balance(userID int64) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		return u.TotalUnpaid
	}
	return decimal.Zero
}

func (s *memStore) transactionsOf(userID int64) []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Transaction
	for _, t := range s.txns {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionID < out[j].TransactionID })
	return out
}

type sentMessage struct {
	channelID int64
	msg       OutgoingMessage
}

type fakePlatform struct {
	mu     sync.Mutex
	nextID int64

	messages    map[int64]*sentMessage
	deleted     []int64
	edits       map[int64]int
	channels    []Channel
	failChannel map[int64]bool
	knownIDs    []int64
	elevated    map[int64]bool
	members     map[int64]Member
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		nextID:      500,
		messages:    make(map[int64]*sentMessage),
		edits:       make(map[int64]int),
		failChannel: make(map[int64]bool),
		elevated:    make(map[int64]bool),
		members:     make(map[int64]Member),
	}
}

func channelFor(userID int64) int64 { return 9000 + userID }

func (p *fakePlatform) EnsureTicketChannel(_ context.Context, _ int64, _, user Member, knownChannelID int64) (Channel, error) {
	p.mu.Lock()
	p.knownIDs = append(p.knownIDs, knownChannelID)
	p.mu.Unlock()
	if p.failChannel[user.ID] {
		return Channel{}, errors.New("missing permissions to create channel")
	}
	return Channel{ID: channelFor(user.ID), Name: ChannelName(user.Name)}, nil
}

func (p *fakePlatform) TicketChannels(context.Context, int64) ([]Channel, error) {
	return p.channels, nil
}

func (p *fakePlatform) Member(_ context.Context, _ int64, userID int64) (Member, error) {
	m, ok := p.members[userID]
	if !ok {
		return Member{}, errors.New("unknown member")
	}
	return m, nil
}

func (p *fakePlatform) SendMessage(_ context.Context, channelID int64, msg OutgoingMessage) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	p.messages[p.nextID] = &sentMessage{channelID: channelID, msg: msg}
	return p.nextID, nil
}

func (p *fakePlatform) EditMessage(_ context.Context, _ int64, messageID int64, embed *Embed, controls *Controls) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.messages[messageID]
	if !ok {
		return ErrMessageNotFound
	}
	if embed != nil {
		m.msg.Embed = embed
	}
	if controls != nil {
		m.msg.Controls = controls
	}
	p.edits[messageID]++
	return nil
}

func (p *fakePlatform) DeleteMessage(_ context.Context, _ int64, messageID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.messages[messageID]; !ok {
		return ErrMessageNotFound
	}
	delete(p.messages, messageID)
	p.deleted = append(p.deleted, messageID)
	return nil
}

func (p *fakePlatform) FetchMessage(_ context.Context, _ int64, messageID int64) (MessageInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.messages[messageID]
	if !ok {
		return MessageInfo{}, ErrMessageNotFound
	}
	return MessageInfo{ID: messageID, Content: m.msg.Content}, nil
}

func (p *fakePlatform) BotMessages(_ context.Context, channelID int64) ([]MessageInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []MessageInfo
	for id, m := range p.messages {
		if m.channelID == channelID {
			out = append(out, MessageInfo{ID: id, Content: m.msg.Content})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (p *fakePlatform) IsElevated(_ context.Context, userID, _ int64) (bool, error) {
	return p.elevated[userID], nil
}

func (p *fakePlatform) message(id int64) (OutgoingMessage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.messages[id]
	if !ok {
		return OutgoingMessage{}, false
	}
	return m.msg, true
}

func (p *fakePlatform) messagesIn(channelID int64) []OutgoingMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ids []int64
	for id, m := range p.messages {
		if m.channelID == channelID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]OutgoingMessage, 0, len(ids))
	for _, id := range ids {
		out = append(out, p.messages[id].msg)
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingPublisher) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
