package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/clinora/clinic-scheduling/internal/redis"
)

type bookingFixture struct {
	repo      *memRepo
	svc       *BookingService
	doctorID  uuid.UUID
	patientID uuid.UUID
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()
	repo := newMemRepo()
	doctorID := repo.addDoctor("Dr. Adams")
	patientID := repo.addPatient(doctorID, "Ana Silva", "ana@example.test")

	guard := NewConflictGuard(repo)
	history := NewHistoryRecorder(repo, testLogger)
	svc := NewBookingService(repo, guard, history, redisclient.NoopLocker{}, testLogger)
	return &bookingFixture{repo: repo, svc: svc, doctorID: doctorID, patientID: patientID}
}

func (f *bookingFixture) createAt(t *testing.T, start time.Time, d time.Duration) *Appointment {
	t.Helper()
	appt, err := f.svc.Create(context.Background(), f.doctorID, CreateAppointmentInput{
		PatientID: &f.patientID,
		StartTime: start,
		EndTime:   start.Add(d),
	})
	require.NoError(t, err)
	return appt
}

func TestCreateAppointment(t *testing.T) {
	f := newBookingFixture(t)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	appt := f.createAt(t, start, 30*time.Minute)
	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, f.patientID, appt.PatientID)

	entries := f.repo.historyByAction(appt.ID, ActionCreated)
	require.Len(t, entries, 1)
	assert.Equal(t, f.doctorID, entries[0].AuthorID)
}

func TestCreateAppointmentRejectsOverlap(t *testing.T) {
	f := newBookingFixture(t)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	f.createAt(t, start, 30*time.Minute)

	_, err := f.svc.Create(context.Background(), f.doctorID, CreateAppointmentInput{
		PatientID: &f.patientID,
		StartTime: start.Add(15 * time.Minute),
		EndTime:   start.Add(45 * time.Minute),
	})
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.Equal(t, CodeAppointmentOverlap, ConflictCode(err))
}

func TestCreateAppointmentBackToBackAllowed(t *testing.T) {
	f := newBookingFixture(t)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	f.createAt(t, start, 30*time.Minute)

	// [9:00,9:30) and [9:30,10:00) share only the boundary instant.
	f.createAt(t, start.Add(30*time.Minute), 30*time.Minute)
}

func TestCreateAppointmentAfterCancellation(t *testing.T) {
	f := newBookingFixture(t)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	first := f.createAt(t, start, 30*time.Minute)

	_, err := f.svc.UpdateStatus(context.Background(), first.ID, f.doctorID, StatusCancelled)
	require.NoError(t, err)

	// The freed interval is bookable again.
	f.createAt(t, start, 30*time.Minute)
}

func TestCreateAppointmentStorageRejectsRacedOverlap(t *testing.T) {
	f := newBookingFixture(t)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	f.createAt(t, start, 30*time.Minute)

	// Even with the pre-check skipped, the storage constraint wins.
	_, err := f.svc.Create(context.Background(), f.doctorID, CreateAppointmentInput{
		PatientID:         &f.patientID,
		StartTime:         start,
		EndTime:           start.Add(30 * time.Minute),
		SkipConflictCheck: true,
	})
	require.Error(t, err)
	assert.Equal(t, CodeAppointmentOverlap, ConflictCode(err))
}

func TestCreateAppointmentRejectedDuringApprovedLeave(t *testing.T) {
	f := newBookingFixture(t)
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	f.repo.addLeave(day, day.Add(24*time.Hour))

	_, err := f.svc.Create(context.Background(), f.doctorID, CreateAppointmentInput{
		PatientID: &f.patientID,
		StartTime: day.Add(9 * time.Hour),
		EndTime:   day.Add(9*time.Hour + 30*time.Minute),
	})
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.Equal(t, CodePTOBlocked, ConflictCode(err))
}

func TestRescheduleIntoApprovedLeaveRejected(t *testing.T) {
	f := newBookingFixture(t)
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	f.repo.addLeave(day.Add(24*time.Hour), day.Add(48*time.Hour))

	appt := f.createAt(t, day.Add(9*time.Hour), 30*time.Minute)

	newStart := day.Add(24*time.Hour + 9*time.Hour)
	newEnd := newStart.Add(30 * time.Minute)
	_, err := f.svc.Update(context.Background(), appt.ID, f.doctorID, UpdateAppointmentInput{
		StartTime: &newStart,
		EndTime:   &newEnd,
	})
	require.Error(t, err)
	assert.Equal(t, CodePTOBlocked, ConflictCode(err))
}

// busyLocker reports the calendar as held by another writer.
type busyLocker struct{}

func (busyLocker) WithCalendarLock(context.Context, uuid.UUID, func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func TestCreateAppointmentLockContention(t *testing.T) {
	f := newBookingFixture(t)
	f.svc.locker = busyLocker{}
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	_, err := f.svc.Create(context.Background(), f.doctorID, CreateAppointmentInput{
		PatientID: &f.patientID,
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
	})
	require.Error(t, err)
	// The sentinel must survive unwrapped so the API layer can answer 409.
	assert.ErrorIs(t, err, redisclient.ErrLockNotAcquired)
	assert.False(t, IsConflict(err))
}

func TestCreateAppointmentValidation(t *testing.T) {
	f := newBookingFixture(t)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	testCases := []struct {
		name string
		in   CreateAppointmentInput
	}{
		{"no patients", CreateAppointmentInput{StartTime: start, EndTime: start.Add(time.Hour)}},
		{"start equals end", CreateAppointmentInput{PatientID: &f.patientID, StartTime: start, EndTime: start}},
		{"end before start", CreateAppointmentInput{PatientID: &f.patientID, StartTime: start, EndTime: start.Add(-time.Hour)}},
		{"longer than four hours", CreateAppointmentInput{PatientID: &f.patientID, StartTime: start, EndTime: start.Add(5 * time.Hour)}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), f.doctorID, tc.in)
			assert.True(t, IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestCreateAppointmentForeignPatientRejected(t *testing.T) {
	f := newBookingFixture(t)
	otherDoctor := f.repo.addDoctor("Dr. Brown")
	foreign := f.repo.addPatient(otherDoctor, "Luc Martin", "")

	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	_, err := f.svc.Create(context.Background(), f.doctorID, CreateAppointmentInput{
		PatientID: &foreign,
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
	})
	assert.True(t, IsValidation(err))
}

func TestCreateAppointmentTypeDisabledForPatient(t *testing.T) {
	f := newBookingFixture(t)
	typeID := f.repo.addConsultationType(f.doctorID, "Consultation", 20, 5)
	f.repo.typeOverrides[[2]uuid.UUID{typeID, f.patientID}] = false

	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	_, err := f.svc.Create(context.Background(), f.doctorID, CreateAppointmentInput{
		PatientID:          &f.patientID,
		ConsultationTypeID: &typeID,
		StartTime:          start,
		EndTime:            start.Add(30 * time.Minute),
	})
	assert.True(t, IsValidation(err))
}

func TestCreateAppointmentMultiPatient(t *testing.T) {
	f := newBookingFixture(t)
	second := f.repo.addPatient(f.doctorID, "Luc Martin", "luc@example.test")

	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	appt, err := f.svc.Create(context.Background(), f.doctorID, CreateAppointmentInput{
		PatientIDs: []uuid.UUID{second, f.patientID, second}, // duplicate collapses
		StartTime:  start,
		EndTime:    start.Add(30 * time.Minute),
	})
	require.NoError(t, err)

	assert.Equal(t, second, appt.PatientID, "first listed patient becomes primary")
	detail, err := f.svc.Get(context.Background(), appt.ID, f.doctorID)
	require.NoError(t, err)
	require.Len(t, detail.Patients, 2)
	assert.Equal(t, second, detail.Patients[0].ID)
}

func TestUpdateAppointmentNotesOnly(t *testing.T) {
	f := newBookingFixture(t)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	appt := f.createAt(t, start, 30*time.Minute)

	notes := "bring previous results"
	updated, err := f.svc.Update(context.Background(), appt.ID, f.doctorID, UpdateAppointmentInput{
		Notes: &notes,
	})
	require.NoError(t, err)
	assert.Equal(t, notes, updated.Notes)
	assert.True(t, updated.StartTime.Equal(start))

	assert.Len(t, f.repo.historyByAction(appt.ID, ActionUpdated), 1)
	assert.Empty(t, f.repo.historyByAction(appt.ID, ActionRescheduled),
		"a notes-only edit must not record a reschedule")
}

func TestUpdateAppointmentReschedule(t *testing.T) {
	f := newBookingFixture(t)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	appt := f.createAt(t, start, 30*time.Minute)

	newStart := start.Add(2 * time.Hour)
	newEnd := newStart.Add(30 * time.Minute)
	updated, err := f.svc.Update(context.Background(), appt.ID, f.doctorID, UpdateAppointmentInput{
		StartTime: &newStart,
		EndTime:   &newEnd,
	})
	require.NoError(t, err)
	assert.True(t, updated.StartTime.Equal(newStart))

	require.Len(t, f.repo.historyByAction(appt.ID, ActionRescheduled), 1)
	assert.Empty(t, f.repo.historyByAction(appt.ID, ActionUpdated))
}

func TestUpdateAppointmentSameInstantsNoReschedule(t *testing.T) {
	f := newBookingFixture(t)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	appt := f.createAt(t, start, 30*time.Minute)

	// Same instants in another zone representation are not a move.
	sameStart := start.In(time.FixedZone("CET", 3600))
	sameEnd := start.Add(30 * time.Minute).In(time.FixedZone("CET", 3600))
	_, err := f.svc.Update(context.Background(), appt.ID, f.doctorID, UpdateAppointmentInput{
		StartTime: &sameStart,
		EndTime:   &sameEnd,
	})
	require.NoError(t, err)
	assert.Empty(t, f.repo.historyByAction(appt.ID, ActionRescheduled))
}

func TestUpdateAppointmentRescheduleConflict(t *testing.T) {
	f := newBookingFixture(t)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	f.createAt(t, start, 30*time.Minute)
	victim := f.createAt(t, start.Add(time.Hour), 30*time.Minute)

	// Moving the second appointment onto the first must fail.
	newStart := start
	newEnd := start.Add(30 * time.Minute)
	_, err := f.svc.Update(context.Background(), victim.ID, f.doctorID, UpdateAppointmentInput{
		StartTime: &newStart,
		EndTime:   &newEnd,
	})
	require.Error(t, err)
	assert.Equal(t, CodeAppointmentOverlap, ConflictCode(err))
}

func TestUpdateAppointmentConsultationTypeChange(t *testing.T) {
	f := newBookingFixture(t)
	typeID := f.repo.addConsultationType(f.doctorID, "Consultation", 20, 5)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	appt := f.createAt(t, start, 30*time.Minute)

	updated, err := f.svc.Update(context.Background(), appt.ID, f.doctorID, UpdateAppointmentInput{
		ConsultationTypeID: &typeID,
	})
	require.NoError(t, err)
	require.NotNil(t, updated.ConsultationTypeID)
	assert.Equal(t, typeID, *updated.ConsultationTypeID)

	entries := f.repo.historyByAction(appt.ID, ActionConsultationTypeChanged)
	require.Len(t, entries, 1)
	assert.Equal(t, "Consultation type changed from None to Consultation", entries[0].Description)
}

func TestUpdateAppointmentOwnership(t *testing.T) {
	f := newBookingFixture(t)
	intruder := f.repo.addDoctor("Dr. Brown")
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	appt := f.createAt(t, start, 30*time.Minute)

	title := "changed"
	_, err := f.svc.Update(context.Background(), appt.ID, intruder, UpdateAppointmentInput{Title: &title})
	assert.True(t, IsForbidden(err))

	_, err = f.svc.Update(context.Background(), uuid.New(), f.doctorID, UpdateAppointmentInput{Title: &title})
	assert.True(t, IsNotFound(err))
}

func TestUpdateStatus(t *testing.T) {
	f := newBookingFixture(t)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	appt := f.createAt(t, start, 30*time.Minute)

	_, err := f.svc.UpdateStatus(context.Background(), appt.ID, f.doctorID, AppointmentStatus("NO_SUCH"))
	assert.True(t, IsValidation(err))

	updated, err := f.svc.UpdateStatus(context.Background(), appt.ID, f.doctorID, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, updated.Status)

	entries := f.repo.historyByAction(appt.ID, ActionStatusChanged)
	require.Len(t, entries, 1)
	assert.Equal(t, "Status changed from Scheduled to Confirmed", entries[0].Description)

	// Writing the same status again is a no-op with no new entry.
	_, err = f.svc.UpdateStatus(context.Background(), appt.ID, f.doctorID, StatusConfirmed)
	require.NoError(t, err)
	assert.Len(t, f.repo.historyByAction(appt.ID, ActionStatusChanged), 1)
}

func TestRemoveAppointment(t *testing.T) {
	f := newBookingFixture(t)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	appt := f.createAt(t, start, 30*time.Minute)

	require.NoError(t, f.svc.Remove(context.Background(), appt.ID, f.doctorID))

	_, err := f.svc.Get(context.Background(), appt.ID, f.doctorID)
	assert.True(t, IsNotFound(err))
}

func TestHistoryMostRecentFirst(t *testing.T) {
	f := newBookingFixture(t)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	appt := f.createAt(t, start, 30*time.Minute)

	_, err := f.svc.UpdateStatus(context.Background(), appt.ID, f.doctorID, StatusConfirmed)
	require.NoError(t, err)

	entries, err := f.svc.History(context.Background(), appt.ID, f.doctorID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ActionStatusChanged, entries[0].Action)
	assert.Equal(t, ActionCreated, entries[1].Action)
}

func TestDocumentHooksRecordHistory(t *testing.T) {
	f := newBookingFixture(t)
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	appt := f.createAt(t, start, 30*time.Minute)

	require.NoError(t, f.svc.NoteDocumentUploaded(context.Background(), appt.ID, f.doctorID, "referral.pdf"))
	require.NoError(t, f.svc.NoteDocumentDeleted(context.Background(), appt.ID, f.doctorID, "referral.pdf"))

	up := f.repo.historyByAction(appt.ID, ActionDocumentUploaded)
	require.Len(t, up, 1)
	assert.Equal(t, "Document uploaded: referral.pdf", up[0].Description)
	assert.Len(t, f.repo.historyByAction(appt.ID, ActionDocumentDeleted), 1)
}
