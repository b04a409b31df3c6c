package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/servicedesk-realtime/internal/domain"
	"github.com/spec-kit/servicedesk-realtime/internal/events"
)

type memTickets struct {
	mu      sync.Mutex
	tickets map[string]domain.Ticket
}

func newMemTickets() *memTickets {
	return &memTickets{tickets: make(map[string]domain.Ticket)}
}

func (m *memTickets) Create(_ context.Context, t *domain.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = fmt.Sprintf("t-%d", len(m.tickets)+1)
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	m.tickets[t.ID] = *t
	return nil
}

func (m *memTickets) Update(_ context.Context, t *domain.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tickets[t.ID]; !ok {
		return pgx.ErrNoRows
	}
	m.tickets[t.ID] = *t
	return nil
}

func (m *memTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &t, nil
}

type memMessages struct {
	messages []domain.TicketMessage
}

func (m *memMessages) Create(_ context.Context, msg *domain.TicketMessage) error {
	msg.ID = fmt.Sprintf("m-%d", len(m.messages)+1)
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *memMessages) ListThread(_ context.Context, ticketID string, includeInternal bool) ([]domain.TicketMessage, error) {
	var out []domain.TicketMessage
	for _, msg := range m.messages {
		if msg.TicketID == ticketID && (includeInternal || msg.MessageType != domain.MessageTypeInternalNote) {
			out = append(out, msg)
		}
	}
	return out, nil
}

type memHistory struct {
	entries []domain.TicketHistory
}

func (m *memHistory) Create(_ context.Context, h *domain.TicketHistory) error {
	m.entries = append(m.entries, *h)
	return nil
}

func (m *memHistory) ListByTicket(_ context.Context, ticketID string, _, _ int) ([]domain.TicketHistory, error) {
	var out []domain.TicketHistory
	for _, h := range m.entries {
		if h.TicketID == ticketID {
			out = append(out, h)
		}
	}
	return out, nil
}

type memUsers struct {
	users map[string]domain.User
}

func newMemUsers(users ...domain.User) *memUsers {
	m := &memUsers{users: make(map[string]domain.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func (m *memUsers) ListByRoles(_ context.Context, roles []domain.Role) ([]domain.User, error) {
	var out []domain.User
	for _, u := range m.users {
		if u.HasRole(roles...) {
			out = append(out, u)
		}
	}
	return out, nil
}

type memNotifications struct {
	mu    sync.Mutex
	items []domain.Notification
	err   error
}

func (m *memNotifications) Create(_ context.Context, n *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	n.ID = fmt.Sprintf("n-%d", len(m.items)+1)
	n.CreatedAt = time.Now()
	m.items = append(m.items, *n)
	return nil
}

func (m *memNotifications) ListByUser(_ context.Context, userID string, _, _ int) ([]domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Notification
	for _, n := range m.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

type memChanges struct {
	items []domain.ChangeRequest
}

func (m *memChanges) Create(_ context.Context, cr *domain.ChangeRequest) error {
	cr.ID = fmt.Sprintf("cr-%d", len(m.items)+1)
	m.items = append(m.items, *cr)
	return nil
}

type pushed struct {
	userID string
	event  string
	data   any
}

type fakePusher struct {
	online map[string]bool
	sent   []pushed
}

func (p *fakePusher) ToUser(userID, event string, data any) bool {
	p.sent = append(p.sent, pushed{userID: userID, event: event, data: data})
	return p.online[userID]
}

type eventLog struct {
	events.Dispatcher
	published []events.Event
}

func newEventLog() *eventLog {
	return &eventLog{Dispatcher: events.NewInMemoryDispatcher(nil)}
}

func (l *eventLog) Publish(ctx context.Context, evt events.Event) error {
	l.published = append(l.published, evt)
	return l.Dispatcher.Publish(ctx, evt)
}

func (l *eventLog) last() events.Event {
	return l.published[len(l.published)-1]
}

var (
	requester = &domain.User{ID: "u-req", Email: "req@example.com", Status: domain.UserStatusActive, Roles: []domain.Role{domain.RoleRequester}}
	agent     = &domain.User{ID: "u-agent", Email: "agent@example.com", Status: domain.UserStatusActive, Roles: []domain.Role{domain.RoleAgent}}
	manager   = &domain.User{ID: "u-mgr", Email: "mgr@example.com", Status: domain.UserStatusActive, Roles: []domain.Role{domain.RoleTeamLead}}
)
