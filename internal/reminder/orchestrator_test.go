package reminder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bashmentarium/prescriptions/pkg/config"
	"github.com/bashmentarium/prescriptions/pkg/logger"
	"github.com/bashmentarium/prescriptions/pkg/types"
)

// MockEventRepository is a mock implementation of EventRepository
type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) InsertEvents(ctx context.Context, events []*types.MedicationEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

func (m *MockEventRepository) GetEventByID(ctx context.Context, id string) (*types.MedicationEvent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.MedicationEvent), args.Error(1)
}

func (m *MockEventRepository) GetEvents(ctx context.Context, filters *types.EventFilters) ([]*types.MedicationEvent, error) {
	args := m.Called(ctx, filters)
	return args.Get(0).([]*types.MedicationEvent), args.Error(1)
}

func (m *MockEventRepository) DeleteEvent(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockEventRepository) DeleteEventsByPrescriptionID(ctx context.Context, prescriptionID string) error {
	args := m.Called(ctx, prescriptionID)
	return args.Error(0)
}

func (m *MockEventRepository) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockEventRepository) MarkIncomplete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockEventRepository) UpdateNotes(ctx context.Context, id string, notes string) error {
	args := m.Called(ctx, id, notes)
	return args.Error(0)
}

func (m *MockEventRepository) SetCalendarRef(ctx context.Context, id string, ref string) error {
	args := m.Called(ctx, id, ref)
	return args.Error(0)
}

func (m *MockEventRepository) ClaimReminder(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockEventRepository) EventCounts(ctx context.Context, prescriptionID string) (int, int, error) {
	args := m.Called(ctx, prescriptionID)
	return args.Int(0), args.Int(1), args.Error(2)
}

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Enabled() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockNotifier) Post(eventID, title, body, deepLink string) error {
	args := m.Called(eventID, title, body, deepLink)
	return args.Error(0)
}

func (m *MockNotifier) Dismiss(eventID string) error {
	args := m.Called(eventID)
	return args.Error(0)
}

func testSchedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		RescanInterval:  15 * time.Minute,
		MonitorInterval: 5 * time.Minute,
		Lookahead:       30 * time.Minute,
		ErrorBackoff:    time.Minute,
		MonitorEnabled:  false,
	}
}

func newTestOrchestrator(events *MockEventRepository, notifier *MockNotifier) *Orchestrator {
	log := logger.New("error")
	presenter := NewPresenter(notifier, "dosewise://medication-confirmation", log, nil)
	return NewOrchestrator(testSchedulerConfig(), events, presenter, log, nil)
}

func TestScanDeliversDueEventExactlyOnce(t *testing.T) {
	events := &MockEventRepository{}
	notifier := &MockNotifier{}
	o := newTestOrchestrator(events, notifier)
	now := time.Date(2024, 3, 6, 8, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return now }

	due := &types.MedicationEvent{ID: "ev-1", Title: "MedA", StartTime: now.Add(-time.Minute)}
	events.On("GetEvents", mock.Anything, mock.Anything).
		Return([]*types.MedicationEvent{due}, nil)

	// first claim wins, every later claim loses
	events.On("ClaimReminder", mock.Anything, "ev-1").Return(true, nil).Once()
	events.On("ClaimReminder", mock.Anything, "ev-1").Return(false, nil)

	notifier.On("Enabled").Return(true)
	notifier.On("Post", "ev-1", "MedA", mock.Anything, mock.Anything).Return(nil)

	// two mechanisms racing over the same event
	require.NoError(t, o.scan(context.Background(), mechanismRescan))
	require.NoError(t, o.scan(context.Background(), mechanismMonitor))

	notifier.AssertNumberOfCalls(t, "Post", 1)
}

func TestScanRegistersAlarmForFutureEvent(t *testing.T) {
	events := &MockEventRepository{}
	notifier := &MockNotifier{}
	o := newTestOrchestrator(events, notifier)
	now := time.Date(2024, 3, 6, 8, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return now }

	future := &types.MedicationEvent{ID: "ev-2", Title: "MedB", StartTime: now.Add(20 * time.Minute)}
	events.On("GetEvents", mock.Anything, mock.Anything).
		Return([]*types.MedicationEvent{future}, nil)

	require.NoError(t, o.scan(context.Background(), mechanismRescan))

	assert.Equal(t, 1, o.alarms.Pending())
	events.AssertNotCalled(t, "ClaimReminder", mock.Anything, mock.Anything)

	o.alarms.Stop()
}

func TestScanExcludesArchivedPrescriptions(t *testing.T) {
	events := &MockEventRepository{}
	notifier := &MockNotifier{}
	o := newTestOrchestrator(events, notifier)
	now := time.Date(2024, 3, 6, 8, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return now }

	// only events of active prescriptions may reach the scan; otherwise a
	// rescan re-registers the alarms an archive just cancelled
	events.On("GetEvents", mock.Anything, mock.MatchedBy(func(f *types.EventFilters) bool {
		return f.ActiveOnly
	})).Return([]*types.MedicationEvent{}, nil)

	require.NoError(t, o.scan(context.Background(), mechanismRescan))
	require.NoError(t, o.recoverAlarms(context.Background()))

	events.AssertExpectations(t)
	assert.Equal(t, 0, o.alarms.Pending())
}

func TestScanTwiceKeepsOneAlarmPerEvent(t *testing.T) {
	events := &MockEventRepository{}
	o := newTestOrchestrator(events, &MockNotifier{})
	now := time.Date(2024, 3, 6, 8, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return now }

	future := &types.MedicationEvent{ID: "ev-2", StartTime: now.Add(20 * time.Minute)}
	events.On("GetEvents", mock.Anything, mock.Anything).
		Return([]*types.MedicationEvent{future}, nil)

	require.NoError(t, o.scan(context.Background(), mechanismRescan))
	require.NoError(t, o.scan(context.Background(), mechanismMonitor))

	// re-registration replaces the timer, it does not stack a second one
	assert.Equal(t, 1, o.alarms.Pending())

	o.alarms.Stop()
}

func TestScanReportsRepositoryError(t *testing.T) {
	events := &MockEventRepository{}
	o := newTestOrchestrator(events, &MockNotifier{})

	events.On("GetEvents", mock.Anything, mock.Anything).
		Return([]*types.MedicationEvent{}, assert.AnError)

	err := o.scan(context.Background(), mechanismRescan)
	assert.Error(t, err)
}

func TestLosingClaimSuppressesNotification(t *testing.T) {
	events := &MockEventRepository{}
	notifier := &MockNotifier{}
	o := newTestOrchestrator(events, notifier)

	ev := &types.MedicationEvent{ID: "ev-3", Title: "MedC"}
	events.On("ClaimReminder", mock.Anything, "ev-3").Return(false, nil)

	won := o.deliver(context.Background(), ev, mechanismAlarm)

	assert.False(t, won)
	notifier.AssertNotCalled(t, "Post", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRecoverAlarmsSkipsPastEvents(t *testing.T) {
	events := &MockEventRepository{}
	o := newTestOrchestrator(events, &MockNotifier{})
	now := time.Date(2024, 3, 6, 8, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return now }

	pending := []*types.MedicationEvent{
		{ID: "ev-past", StartTime: now.Add(-time.Hour)},
		{ID: "ev-soon", StartTime: now.Add(time.Hour)},
		{ID: "ev-late", StartTime: now.Add(48 * time.Hour)},
	}
	events.On("GetEvents", mock.Anything, mock.Anything).Return(pending, nil)

	require.NoError(t, o.recoverAlarms(context.Background()))

	// future events get alarms regardless of lookahead, past ones are left
	// for the next scan to claim
	assert.Equal(t, 2, o.alarms.Pending())

	o.alarms.Stop()
}

func TestAlarmRegistryReplacesOnReschedule(t *testing.T) {
	fired := make(chan string, 2)
	registry := NewAlarmRegistry(func(id string) { fired <- id }, logger.New("error"), nil)

	at := time.Now().Add(time.Hour)
	registry.ScheduleAt("ev-1", at)
	registry.ScheduleAt("ev-1", at.Add(time.Minute))

	assert.Equal(t, 1, registry.Pending())
	registry.Stop()
}

func TestAlarmRegistryCancelIsIdempotent(t *testing.T) {
	registry := NewAlarmRegistry(func(string) {}, logger.New("error"), nil)

	registry.ScheduleAt("ev-1", time.Now().Add(time.Hour))
	registry.Cancel("ev-1")
	registry.Cancel("ev-1")
	registry.Cancel("never-scheduled")

	assert.Equal(t, 0, registry.Pending())
}

func TestAlarmRegistryFires(t *testing.T) {
	fired := make(chan string, 1)
	registry := NewAlarmRegistry(func(id string) { fired <- id }, logger.New("error"), nil)

	registry.ScheduleAt("ev-1", time.Now().Add(20*time.Millisecond))

	select {
	case id := <-fired:
		assert.Equal(t, "ev-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("alarm did not fire")
	}
	assert.Equal(t, 0, registry.Pending())
}
