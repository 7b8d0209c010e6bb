package prescription

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bashmentarium/prescriptions/pkg/logger"
	"github.com/bashmentarium/prescriptions/pkg/types"
)

// MockPrescriptionRepository is a mock implementation of PrescriptionRepository
type MockPrescriptionRepository struct {
	mock.Mock
}

func (m *MockPrescriptionRepository) CreatePrescription(ctx context.Context, p *types.Prescription) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockPrescriptionRepository) GetPrescriptionByID(ctx context.Context, id string) (*types.Prescription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Prescription), args.Error(1)
}

func (m *MockPrescriptionRepository) GetPrescriptions(ctx context.Context, activeOnly bool) ([]*types.Prescription, error) {
	args := m.Called(ctx, activeOnly)
	return args.Get(0).([]*types.Prescription), args.Error(1)
}

func (m *MockPrescriptionRepository) UpdatePrescription(ctx context.Context, p *types.Prescription) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockPrescriptionRepository) ArchivePrescription(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockPrescriptionRepository) PurgePrescription(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

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

// MockSettingsStore is a mock implementation of SettingsStore
type MockSettingsStore struct {
	mock.Mock
}

func (m *MockSettingsStore) Get(ctx context.Context) (types.UserSettings, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.UserSettings), args.Error(1)
}

func (m *MockSettingsStore) Save(ctx context.Context, settings types.UserSettings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

// MockDispatcher is a mock implementation of ReminderDispatcher
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) ScheduleAt(eventID string, at time.Time) {
	m.Called(eventID, at)
}

func (m *MockDispatcher) Cancel(eventID string) {
	m.Called(eventID)
}

// MockDismisser is a mock implementation of NotificationDismisser
type MockDismisser struct {
	mock.Mock
}

func (m *MockDismisser) Dismiss(eventID string) {
	m.Called(eventID)
}

type serviceMocks struct {
	repo       *MockPrescriptionRepository
	events     *MockEventRepository
	settings   *MockSettingsStore
	dispatcher *MockDispatcher
	dismisser  *MockDismisser
}

func newTestService() (*Service, *serviceMocks) {
	mocks := &serviceMocks{
		repo:       &MockPrescriptionRepository{},
		events:     &MockEventRepository{},
		settings:   &MockSettingsStore{},
		dispatcher: &MockDispatcher{},
		dismisser:  &MockDismisser{},
	}
	svc := NewService(
		logger.New("error"),
		nil,
		mocks.repo,
		mocks.events,
		mocks.settings,
		nil,
		mocks.dispatcher,
		mocks.dismisser,
		nil,
	)
	return svc, mocks
}

func TestCreateFromRawAggregatesSchedule(t *testing.T) {
	svc, mocks := newTestService()
	svc.now = func() time.Time { return time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC) }

	raw := &types.RawPrescription{
		Medications: []types.RawMedication{
			{Name: "Amoxicillin", Dosage: "500mg", Frequency: "three times daily", Duration: "for 5 days"},
		},
	}

	var created *types.Prescription
	mocks.repo.On("CreatePrescription", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		created = args.Get(1).(*types.Prescription)
	}).Return(nil)
	mocks.settings.On("Get", mock.Anything).Return(types.DefaultUserSettings(), nil)

	var inserted []*types.MedicationEvent
	mocks.events.On("InsertEvents", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		inserted = args.Get(1).([]*types.MedicationEvent)
	}).Return(nil)
	mocks.dispatcher.On("ScheduleAt", mock.Anything, mock.Anything).Return()

	p, err := svc.CreateFromRaw(context.Background(), raw, "", time.Time{})
	require.NoError(t, err)

	// schedule aggregated from the medication free text
	assert.Equal(t, 3, created.TimesPerDay)
	assert.Equal(t, 5, created.DurationDays)
	assert.Equal(t, "Amoxicillin", p.Title)

	// 3 doses per day for 5 days
	require.Len(t, inserted, 15)
	for _, ev := range inserted {
		assert.Equal(t, p.ID, ev.PrescriptionID)
	}
}

func TestCreateFromRawUsesParserSchedule(t *testing.T) {
	svc, mocks := newTestService()

	start := 600
	raw := &types.RawPrescription{
		Medications: []types.RawMedication{{Name: "Metformin", Dosage: "850mg"}},
		Schedule: &types.RawSchedule{
			TimesPerDay:      2,
			DurationDays:     3,
			StartTimeMinutes: &start,
		},
	}

	var created *types.Prescription
	mocks.repo.On("CreatePrescription", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		created = args.Get(1).(*types.Prescription)
	}).Return(nil)
	mocks.settings.On("Get", mock.Anything).Return(types.DefaultUserSettings(), nil)
	mocks.events.On("InsertEvents", mock.Anything, mock.Anything).Return(nil)
	mocks.dispatcher.On("ScheduleAt", mock.Anything, mock.Anything).Return()

	_, err := svc.CreateFromRaw(context.Background(), raw, "Metformin course", time.Now())
	require.NoError(t, err)

	assert.Equal(t, 2, created.TimesPerDay)
	assert.Equal(t, 600, created.StartTimeMinutes)
	assert.True(t, created.WindowSpecified)
}

func TestCreateFromRawRequiresMedications(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateFromRaw(context.Background(), &types.RawPrescription{}, "", time.Time{})
	require.Error(t, err)

	de, ok := err.(*types.DoseError)
	require.True(t, ok)
	assert.Equal(t, types.ErrorTypeValidation, de.Type)
}

func TestUpdateAndRecalculatePreservesPastEvents(t *testing.T) {
	svc, mocks := newTestService()
	now := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	p := &types.Prescription{
		ID:           "rx-1",
		Title:        "Course",
		Medications:  []types.Medication{{ID: "m1", Name: "MedA"}},
		TimesPerDay:  1,
		FoodTiming:   types.FoodNeutral,
		DurationDays: 7,
		IntervalDays: 1,
		StartDate:    time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		Active:       true,
	}

	pastEvent := &types.MedicationEvent{
		ID:        "ev-past",
		StartTime: now.Add(-24 * time.Hour),
		Completed: true,
	}
	futureEvent := &types.MedicationEvent{
		ID:        "ev-future",
		StartTime: now.Add(24 * time.Hour),
	}

	mocks.repo.On("GetPrescriptionByID", mock.Anything, "rx-1").Return(p, nil)
	mocks.repo.On("UpdatePrescription", mock.Anything, mock.Anything).Return(nil)
	mocks.events.On("GetEvents", mock.Anything, mock.Anything).
		Return([]*types.MedicationEvent{pastEvent, futureEvent}, nil)
	mocks.settings.On("Get", mock.Anything).Return(types.DefaultUserSettings(), nil)

	mocks.dispatcher.On("Cancel", "ev-future").Return()
	mocks.events.On("DeleteEvent", mock.Anything, "ev-future").Return(nil)

	var inserted []*types.MedicationEvent
	mocks.events.On("InsertEvents", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		inserted = args.Get(1).([]*types.MedicationEvent)
	}).Return(nil)
	mocks.dispatcher.On("ScheduleAt", mock.Anything, mock.Anything).Return()

	err := svc.UpdateAndRecalculate(context.Background(), p, true)
	require.NoError(t, err)

	// the past event was neither cancelled nor deleted
	mocks.dispatcher.AssertNotCalled(t, "Cancel", "ev-past")
	mocks.events.AssertNotCalled(t, "DeleteEvent", mock.Anything, "ev-past")

	// rematerialized events covering already elapsed days were discarded
	for _, ev := range inserted {
		assert.False(t, ev.StartTime.Before(now))
	}
	// the 08:00 doses on March 4, 5 and 6 are already past; 7 through 10 remain
	assert.Len(t, inserted, 4)
}

func TestUpdateAndRecalculateRebuildsAllWhenNotPreserving(t *testing.T) {
	svc, mocks := newTestService()
	now := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	p := &types.Prescription{
		ID:           "rx-1",
		Medications:  []types.Medication{{ID: "m1", Name: "MedA"}},
		TimesPerDay:  1,
		FoodTiming:   types.FoodNeutral,
		DurationDays: 3,
		IntervalDays: 1,
		StartDate:    time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
	}

	pastEvent := &types.MedicationEvent{ID: "ev-past", StartTime: now.Add(-24 * time.Hour)}

	mocks.repo.On("GetPrescriptionByID", mock.Anything, "rx-1").Return(p, nil)
	mocks.repo.On("UpdatePrescription", mock.Anything, mock.Anything).Return(nil)
	mocks.events.On("GetEvents", mock.Anything, mock.Anything).
		Return([]*types.MedicationEvent{pastEvent}, nil)
	mocks.settings.On("Get", mock.Anything).Return(types.DefaultUserSettings(), nil)
	mocks.dispatcher.On("Cancel", "ev-past").Return()
	mocks.events.On("DeleteEvent", mock.Anything, "ev-past").Return(nil)

	var inserted []*types.MedicationEvent
	mocks.events.On("InsertEvents", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		inserted = args.Get(1).([]*types.MedicationEvent)
	}).Return(nil)
	mocks.dispatcher.On("ScheduleAt", mock.Anything, mock.Anything).Return()

	err := svc.UpdateAndRecalculate(context.Background(), p, false)
	require.NoError(t, err)

	mocks.dispatcher.AssertCalled(t, "Cancel", "ev-past")
	mocks.events.AssertCalled(t, "DeleteEvent", mock.Anything, "ev-past")
	// full rebuild, past days included
	assert.Len(t, inserted, 3)
}

func TestArchiveCancelsFutureAlarms(t *testing.T) {
	svc, mocks := newTestService()

	mocks.repo.On("ArchivePrescription", mock.Anything, "rx-1").Return(nil)
	mocks.events.On("GetEvents", mock.Anything, mock.Anything).
		Return([]*types.MedicationEvent{{ID: "ev-1"}, {ID: "ev-2"}}, nil)
	mocks.dispatcher.On("Cancel", "ev-1").Return()
	mocks.dispatcher.On("Cancel", "ev-2").Return()

	err := svc.Archive(context.Background(), "rx-1")
	require.NoError(t, err)

	mocks.dispatcher.AssertExpectations(t)
	// archive keeps rows and events in place
	mocks.events.AssertNotCalled(t, "DeleteEventsByPrescriptionID", mock.Anything, mock.Anything)
}

func TestPurgeCancelsAlarmsAndDeletesEverything(t *testing.T) {
	svc, mocks := newTestService()

	mocks.events.On("GetEvents", mock.Anything, mock.Anything).
		Return([]*types.MedicationEvent{{ID: "ev-1"}}, nil)
	mocks.dispatcher.On("Cancel", "ev-1").Return()
	mocks.events.On("DeleteEventsByPrescriptionID", mock.Anything, "rx-1").Return(nil)
	mocks.repo.On("PurgePrescription", mock.Anything, "rx-1").Return(nil)

	err := svc.Purge(context.Background(), "rx-1")
	require.NoError(t, err)

	mocks.dispatcher.AssertExpectations(t)
	mocks.events.AssertExpectations(t)
	mocks.repo.AssertExpectations(t)
}

func TestConfirmIntakeCancelsPendingAlarm(t *testing.T) {
	svc, mocks := newTestService()
	now := time.Date(2024, 3, 6, 8, 5, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	mocks.events.On("MarkCompleted", mock.Anything, "ev-1", now).Return(nil)
	mocks.dispatcher.On("Cancel", "ev-1").Return()
	mocks.dismisser.On("Dismiss", "ev-1").Return()

	err := svc.ConfirmIntake(context.Background(), "ev-1")
	require.NoError(t, err)

	mocks.events.AssertExpectations(t)
	mocks.dispatcher.AssertExpectations(t)
}

func TestConfirmIntakeDismissesNotification(t *testing.T) {
	svc, mocks := newTestService()
	now := time.Date(2024, 3, 6, 8, 5, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	mocks.events.On("MarkCompleted", mock.Anything, "ev-1", now).Return(nil)
	mocks.dispatcher.On("Cancel", "ev-1").Return()
	mocks.dismisser.On("Dismiss", "ev-1").Return()

	err := svc.ConfirmIntake(context.Background(), "ev-1")
	require.NoError(t, err)

	mocks.dismisser.AssertCalled(t, "Dismiss", "ev-1")
}

func TestConfirmIntakeKeepsNotificationWhenCompletionFails(t *testing.T) {
	svc, mocks := newTestService()
	now := time.Date(2024, 3, 6, 8, 5, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	mocks.events.On("MarkCompleted", mock.Anything, "ev-1", now).
		Return(types.NewNotFoundError(types.ErrCodeNotFound, "event not found: ev-1"))

	err := svc.ConfirmIntake(context.Background(), "ev-1")
	require.Error(t, err)

	mocks.dismisser.AssertNotCalled(t, "Dismiss", "ev-1")
	mocks.dispatcher.AssertNotCalled(t, "Cancel", "ev-1")
}

func TestGetStats(t *testing.T) {
	svc, mocks := newTestService()

	mocks.events.On("EventCounts", mock.Anything, "rx-1").Return(21, 14, nil)

	stats, err := svc.GetStats(context.Background(), "rx-1")
	require.NoError(t, err)

	assert.Equal(t, 21, stats.TotalEvents)
	assert.Equal(t, 14, stats.CompletedEvents)
	assert.Equal(t, 66, stats.CompletionRate)
}

func TestSaveSettingsRejectsInvertedWindow(t *testing.T) {
	svc, _ := newTestService()

	settings := types.DefaultUserSettings()
	settings.EarliestTimeMinutes = 1300
	settings.LatestTimeMinutes = 600

	err := svc.SaveSettings(context.Background(), settings)
	require.Error(t, err)

	de, ok := err.(*types.DoseError)
	require.True(t, ok)
	assert.Equal(t, types.ErrorTypeValidation, de.Type)
}
