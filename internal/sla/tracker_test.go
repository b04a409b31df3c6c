package sla

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/servicedesk-realtime/internal/domain"
	"github.com/spec-kit/servicedesk-realtime/internal/events"
	"github.com/spec-kit/servicedesk-realtime/internal/observability"
)

var t0 = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

type trackerFixture struct {
	tracking *fakeTracking
	policies *fakePolicies
	handler  *breachRecorder
	bus      *recordingBus
	clock    *fixedClock
	registry *prometheus.Registry
	tracker  *Tracker
	high     *domain.SLAPolicy
}

func newTrackerFixture(t *testing.T) *trackerFixture {
	t.Helper()
	f := &trackerFixture{
		tracking: newFakeTracking(),
		policies: &fakePolicies{},
		handler:  &breachRecorder{},
		bus:      newRecordingBus(),
		clock:    &fixedClock{now: t0},
		registry: prometheus.NewRegistry(),
	}
	f.high = f.policies.add(domain.SLAPolicy{
		Name:                 "High",
		Priority:             domain.TicketPriorityHigh,
		FirstResponseMinutes: 30,
		ResolutionMinutes:    240,
	})
	resolver := NewResolver(f.policies, nil, 0, nil)
	metrics := observability.NewMetrics(f.registry)
	f.tracker = NewTracker(f.tracking, resolver, f.handler, f.bus, metrics, nil, WithClock(f.clock.Now))
	return f
}

func TestInitializeComputesTargetsFromNow(t *testing.T) {
	f := newTrackerFixture(t)

	rec, err := f.tracker.Initialize(context.Background(), "t-1", f.high.ID)
	require.NoError(t, err)

	assert.Equal(t, t0.Add(30*time.Minute), rec.FirstResponseTargetAt)
	assert.Equal(t, t0.Add(240*time.Minute), rec.ResolutionTargetAt)
	assert.False(t, rec.FirstResponseBreached)
	assert.False(t, rec.ResolutionBreached)
}

func TestLateFirstResponseBreachesAndSignalsOnce(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()
	_, err := f.tracker.Initialize(ctx, "t-1", f.high.ID)
	require.NoError(t, err)

	require.NoError(t, f.tracker.RecordFirstResponse(ctx, "t-1", t0.Add(45*time.Minute)))

	rec, err := f.tracker.Tracking(ctx, "t-1")
	require.NoError(t, err)
	assert.True(t, rec.FirstResponseBreached)
	assert.Equal(t, []string{"t-1/first-response-breached"}, f.handler.list())

	breaches := f.bus.ofType(events.EventSLABreached)
	require.Len(t, breaches, 1)
	payload := breaches[0].Payload.(events.SLABreachedPayload)
	assert.Equal(t, domain.TriggerFirstResponseBreached, payload.Condition)
	assert.Equal(t, t0.Add(30*time.Minute), payload.TargetAt)

	// A second, on-time write never clears the flag nor fires again.
	require.NoError(t, f.tracker.RecordFirstResponse(ctx, "t-1", t0.Add(5*time.Minute)))
	rec, err = f.tracker.Tracking(ctx, "t-1")
	require.NoError(t, err)
	assert.True(t, rec.FirstResponseBreached)
	assert.Len(t, f.handler.list(), 1)
	require.NoError(t, testutil.GatherAndCompare(f.registry, strings.NewReader(`
# HELP servicedesk_sla_breaches_total Detected SLA breaches by condition.
# TYPE servicedesk_sla_breaches_total counter
servicedesk_sla_breaches_total{condition="first-response-breached"} 1
`), "servicedesk_sla_breaches_total"))
}

func TestOnTimeResponseDoesNotBreach(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()
	_, err := f.tracker.Initialize(ctx, "t-1", f.high.ID)
	require.NoError(t, err)

	require.NoError(t, f.tracker.RecordFirstResponse(ctx, "t-1", t0.Add(30*time.Minute)))
	require.NoError(t, f.tracker.RecordResolution(ctx, "t-1", t0.Add(200*time.Minute)))

	rec, err := f.tracker.Tracking(ctx, "t-1")
	require.NoError(t, err)
	assert.False(t, rec.FirstResponseBreached)
	assert.False(t, rec.ResolutionBreached)
	require.NotNil(t, rec.ResolutionActualAt)
	assert.Empty(t, f.handler.list())
}

func TestLateResolutionSignalsResolutionCondition(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()
	_, err := f.tracker.Initialize(ctx, "t-1", f.high.ID)
	require.NoError(t, err)

	require.NoError(t, f.tracker.RecordResolution(ctx, "t-1", t0.Add(5*time.Hour)))

	assert.Equal(t, []string{"t-1/resolution-breached"}, f.handler.list())
}

func TestRecordWithoutTrackingIsNoop(t *testing.T) {
	f := newTrackerFixture(t)

	require.NoError(t, f.tracker.RecordFirstResponse(context.Background(), "missing", t0))
	require.NoError(t, f.tracker.RecordResolution(context.Background(), "missing", t0))
	assert.Empty(t, f.handler.list())
}

func TestReinitializeReplacesTargetsAndFlags(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()
	critical := f.policies.add(domain.SLAPolicy{
		Name:                 "Critical",
		Priority:             domain.TicketPriorityCritical,
		FirstResponseMinutes: 10,
		ResolutionMinutes:    60,
	})
	_, err := f.tracker.Initialize(ctx, "t-1", f.high.ID)
	require.NoError(t, err)
	require.NoError(t, f.tracker.RecordFirstResponse(ctx, "t-1", t0.Add(time.Hour)))

	f.clock.Advance(2 * time.Hour)
	rec, err := f.tracker.Initialize(ctx, "t-1", critical.ID)
	require.NoError(t, err)

	now := t0.Add(2 * time.Hour)
	assert.Equal(t, critical.ID, rec.PolicyID)
	assert.Equal(t, now.Add(10*time.Minute), rec.FirstResponseTargetAt)
	assert.Equal(t, now.Add(60*time.Minute), rec.ResolutionTargetAt)
	assert.False(t, rec.FirstResponseBreached)
	assert.Nil(t, rec.FirstResponseActualAt)
}

func TestInitializeUnknownPolicyFails(t *testing.T) {
	f := newTrackerFixture(t)

	_, err := f.tracker.Initialize(context.Background(), "t-1", "nope")
	require.Error(t, err)
}

func TestConcurrentLateResponsesSignalOnce(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()
	_, err := f.tracker.Initialize(ctx, "t-1", f.high.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = f.tracker.RecordFirstResponse(ctx, "t-1", t0.Add(time.Duration(31+i)*time.Minute))
		}(i)
	}
	wg.Wait()

	assert.Len(t, f.handler.list(), 1)
}

func TestSweepFlagsOverdueRecords(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()
	_, err := f.tracker.Initialize(ctx, "t-1", f.high.ID)
	require.NoError(t, err)
	_, err = f.tracker.Initialize(ctx, "t-2", f.high.ID)
	require.NoError(t, err)
	require.NoError(t, f.tracker.RecordFirstResponse(ctx, "t-2", t0.Add(10*time.Minute)))

	f.clock.Advance(31 * time.Minute)
	n, err := f.tracker.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"t-1/first-response-breached"}, f.handler.list())

	// Nothing new until the resolution target passes.
	n, err = f.tracker.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(4 * time.Hour)
	n, err = f.tracker.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{
		"t-1/first-response-breached",
		"t-1/resolution-breached",
		"t-2/resolution-breached",
	}, f.handler.list())

	// A late response after the sweep does not signal again.
	require.NoError(t, f.tracker.RecordFirstResponse(ctx, "t-1", f.clock.Now()))
	assert.Len(t, f.handler.list(), 3)
}

func TestSweepLeavesResponseRecordedAfterListing(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()
	_, err := f.tracker.Initialize(ctx, "t-1", f.high.ID)
	require.NoError(t, err)

	// Another process records an on-time reply between the overdue listing and the flag update.
	f.tracking.beforeMark = func(ticketID string) {
		_, _, err := f.tracking.RecordFirstResponse(ctx, ticketID, t0.Add(29*time.Minute))
		require.NoError(t, err)
	}
	f.clock.Advance(31 * time.Minute)

	n, err := f.tracker.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	rec, err := f.tracker.Tracking(ctx, "t-1")
	require.NoError(t, err)
	assert.False(t, rec.FirstResponseBreached)
	assert.Empty(t, f.handler.list())
	assert.Empty(t, f.bus.ofType(events.EventSLABreached))
}

func TestLaterResponseDoesNotReplaceFirst(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()
	_, err := f.tracker.Initialize(ctx, "t-1", f.high.ID)
	require.NoError(t, err)

	require.NoError(t, f.tracker.RecordFirstResponse(ctx, "t-1", t0.Add(29*time.Minute)))
	require.NoError(t, f.tracker.RecordFirstResponse(ctx, "t-1", t0.Add(31*time.Minute)))

	rec, err := f.tracker.Tracking(ctx, "t-1")
	require.NoError(t, err)
	require.NotNil(t, rec.FirstResponseActualAt)
	assert.Equal(t, t0.Add(29*time.Minute), *rec.FirstResponseActualAt)
	assert.False(t, rec.FirstResponseBreached)
	assert.Empty(t, f.handler.list())
}

func TestReopenedTicketIsSweptAgain(t *testing.T) {
	f := newTrackerFixture(t)
	ctx := context.Background()
	_, err := f.tracker.Initialize(ctx, "t-1", f.high.ID)
	require.NoError(t, err)
	require.NoError(t, f.tracker.RecordFirstResponse(ctx, "t-1", t0.Add(10*time.Minute)))
	require.NoError(t, f.tracker.RecordResolution(ctx, "t-1", t0.Add(time.Hour)))

	require.NoError(t, f.tracker.ReopenResolution(ctx, "t-1"))
	require.NoError(t, f.tracker.ReopenResolution(ctx, "missing"))

	f.clock.Advance(5 * time.Hour)
	n, err := f.tracker.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"t-1/resolution-breached"}, f.handler.list())
}
