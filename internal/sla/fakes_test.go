package sla

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/servicedesk-realtime/internal/domain"
	"github.com/spec-kit/servicedesk-realtime/internal/events"
)

type fakeTracking struct {
	mu      sync.Mutex
	records map[string]domain.SLATracking

	// beforeMark runs ahead of MarkBreached, outside the fake's lock.
	beforeMark func(ticketID string)
}

func newFakeTracking() *fakeTracking {
	return &fakeTracking{records: make(map[string]domain.SLATracking)}
}

func (f *fakeTracking) Upsert(_ context.Context, t *domain.SLATracking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := domain.SLATracking{
		TicketID:              t.TicketID,
		PolicyID:              t.PolicyID,
		FirstResponseTargetAt: t.FirstResponseTargetAt,
		ResolutionTargetAt:    t.ResolutionTargetAt,
	}
	f.records[t.TicketID] = rec
	*t = rec
	return nil
}

func (f *fakeTracking) GetByTicket(_ context.Context, ticketID string) (*domain.SLATracking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[ticketID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &rec, nil
}

func (f *fakeTracking) RecordFirstResponse(_ context.Context, ticketID string, at time.Time) (*domain.SLATracking, bool, error) {
	return f.update(ticketID, func(rec *domain.SLATracking) (bool, bool) {
		prev := rec.FirstResponseBreached
		if rec.FirstResponseActualAt == nil {
			rec.FirstResponseActualAt = &at
		}
		rec.FirstResponseBreached = prev || rec.FirstResponseActualAt.After(rec.FirstResponseTargetAt)
		return prev, true
	})
}

func (f *fakeTracking) RecordResolution(_ context.Context, ticketID string, at time.Time) (*domain.SLATracking, bool, error) {
	return f.update(ticketID, func(rec *domain.SLATracking) (bool, bool) {
		prev := rec.ResolutionBreached
		if rec.ResolutionActualAt == nil {
			rec.ResolutionActualAt = &at
		}
		rec.ResolutionBreached = prev || rec.ResolutionActualAt.After(rec.ResolutionTargetAt)
		return prev, true
	})
}

func (f *fakeTracking) ClearResolution(_ context.Context, ticketID string) error {
	_, _, err := f.update(ticketID, func(rec *domain.SLATracking) (bool, bool) {
		rec.ResolutionActualAt = nil
		return rec.ResolutionBreached, true
	})
	return err
}

func (f *fakeTracking) MarkBreached(_ context.Context, ticketID string, condition domain.TriggerCondition, now time.Time) (*domain.SLATracking, bool, error) {
	if f.beforeMark != nil {
		f.beforeMark(ticketID)
	}
	return f.update(ticketID, func(rec *domain.SLATracking) (bool, bool) {
		if condition == domain.TriggerFirstResponseBreached {
			if rec.FirstResponseActualAt != nil || !rec.FirstResponseTargetAt.Before(now) {
				return false, false
			}
			prev := rec.FirstResponseBreached
			rec.FirstResponseBreached = true
			return prev, true
		}
		if rec.ResolutionActualAt != nil || !rec.ResolutionTargetAt.Before(now) {
			return false, false
		}
		prev := rec.ResolutionBreached
		rec.ResolutionBreached = true
		return prev, true
	})
}

func (f *fakeTracking) ListOverdue(_ context.Context, now time.Time, limit int) ([]domain.SLATracking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SLATracking
	for _, rec := range f.records {
		frOverdue := rec.FirstResponseActualAt == nil && !rec.FirstResponseBreached && rec.FirstResponseTargetAt.Before(now)
		resOverdue := rec.ResolutionActualAt == nil && !rec.ResolutionBreached && rec.ResolutionTargetAt.Before(now)
		if frOverdue || resOverdue {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketID < out[j].TicketID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// update applies fn to a copy of the record; fn reports the previous flag and
// whether the row matched. An unmatched row behaves like a missing one.
func (f *fakeTracking) update(ticketID string, fn func(*domain.SLATracking) (bool, bool)) (*domain.SLATracking, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[ticketID]
	if !ok {
		return nil, false, pgx.ErrNoRows
	}
	prev, matched := fn(&rec)
	if !matched {
		return nil, false, pgx.ErrNoRows
	}
	f.records[ticketID] = rec
	out := rec
	return &out, prev, nil
}

type fakePolicies struct {
	mu       sync.Mutex
	policies []domain.SLAPolicy
	lookups  int
}

func (f *fakePolicies) add(p domain.SLAPolicy) *domain.SLAPolicy {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == "" {
		p.ID = fmt.Sprintf("policy-%d", len(f.policies)+1)
	}
	p.Active = true
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Date(2024, 1, 1, 0, 0, len(f.policies), 0, time.UTC)
	}
	f.policies = append(f.policies, p)
	return &p
}

func (f *fakePolicies) Create(_ context.Context, p *domain.SLAPolicy) error {
	*p = *f.add(*p)
	return nil
}

func (f *fakePolicies) Update(_ context.Context, p *domain.SLAPolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.policies {
		if f.policies[i].ID == p.ID {
			f.policies[i] = *p
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (f *fakePolicies) GetByID(_ context.Context, id string) (*domain.SLAPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	for _, p := range f.policies {
		if p.ID == id {
			out := p
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakePolicies) FindActiveByPriority(_ context.Context, priority domain.TicketPriority) (*domain.SLAPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	var best *domain.SLAPolicy
	for i := range f.policies {
		p := f.policies[i]
		if p.Priority != priority || !p.Active {
			continue
		}
		if best == nil || p.CreatedAt.After(best.CreatedAt) {
			best = &p
		}
	}
	if best == nil {
		return nil, pgx.ErrNoRows
	}
	return best, nil
}

func (f *fakePolicies) List(_ context.Context) ([]domain.SLAPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.SLAPolicy(nil), f.policies...), nil
}

type fakeRules struct {
	mu    sync.Mutex
	rules []domain.EscalationRule
	loads int
}

func (f *fakeRules) Create(_ context.Context, rule *domain.EscalationRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rule.ID == "" {
		rule.ID = fmt.Sprintf("rule-%d", len(f.rules)+1)
	}
	if rule.Position == 0 {
		rule.Position = len(f.rules) + 1
	}
	rule.Active = true
	f.rules = append(f.rules, *rule)
	return nil
}

func (f *fakeRules) ListActiveByPolicy(_ context.Context, policyID string) ([]domain.EscalationRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	var out []domain.EscalationRule
	for _, r := range f.rules {
		if r.PolicyID == policyID && r.Active {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

type fakeTickets struct {
	mu      sync.Mutex
	tickets map[string]domain.Ticket
	updates int
	failOn  string
}

func newFakeTickets(tickets ...domain.Ticket) *fakeTickets {
	f := &fakeTickets{tickets: make(map[string]domain.Ticket)}
	for _, t := range tickets {
		f.tickets[t.ID] = t
	}
	return f
}

func (f *fakeTickets) Create(_ context.Context, t *domain.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickets[t.ID] = *t
	return nil
}

func (f *fakeTickets) Update(_ context.Context, t *domain.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != "" && f.failOn == string(t.Priority) {
		return fmt.Errorf("update rejected")
	}
	f.updates++
	f.tickets[t.ID] = *t
	return nil
}

func (f *fakeTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &t, nil
}

func (f *fakeTickets) get(id string) domain.Ticket {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tickets[id]
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []domain.TicketHistory
}

func (f *fakeHistory) Create(_ context.Context, h *domain.TicketHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *h)
	return nil
}

func (f *fakeHistory) ListByTicket(_ context.Context, ticketID string, _, _ int) ([]domain.TicketHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TicketHistory
	for _, h := range f.entries {
		if h.TicketID == ticketID {
			out = append(out, h)
		}
	}
	return out, nil
}

type fakeNotifier struct {
	calls []string
	err   error
}

func (f *fakeNotifier) NotifyStakeholders(_ context.Context, ticket *domain.Ticket, rule domain.EscalationRule, condition domain.TriggerCondition) error {
	f.calls = append(f.calls, ticket.ID+"/"+rule.ID+"/"+string(condition))
	return f.err
}

type fakeFollowups struct {
	opened []string
}

func (f *fakeFollowups) OpenFollowup(_ context.Context, ticket *domain.Ticket, rule domain.EscalationRule, _ domain.TriggerCondition) (*domain.ChangeRequest, error) {
	f.opened = append(f.opened, ticket.ID+"/"+rule.ID)
	return &domain.ChangeRequest{ID: "cr-1", TicketID: ticket.ID}, nil
}

type breachRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (b *breachRecorder) OnBreach(_ context.Context, ticketID string, condition domain.TriggerCondition) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, ticketID+"/"+string(condition))
}

func (b *breachRecorder) list() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

type recordingBus struct {
	events.Dispatcher
	mu        sync.Mutex
	published []events.Event
}

func newRecordingBus() *recordingBus {
	return &recordingBus{Dispatcher: events.NewInMemoryDispatcher(nil)}
}

func (b *recordingBus) Publish(ctx context.Context, evt events.Event) error {
	b.mu.Lock()
	b.published = append(b.published, evt)
	b.mu.Unlock()
	return b.Dispatcher.Publish(ctx, evt)
}

func (b *recordingBus) ofType(t events.EventType) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Event
	for _, evt := range b.published {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func strPtr(s string) *string { return &s }

func priorityPtr(p domain.TicketPriority) *domain.TicketPriority { return &p }
