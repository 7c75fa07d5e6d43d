package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinora/clinic-scheduling/internal/metrics"
	redisclient "github.com/clinora/clinic-scheduling/internal/redis"
)

// CreateAppointmentInput carries both the legacy single-patient field and
// the multi-patient list. When both are present the list wins; the first
// entry becomes the primary patient.
type CreateAppointmentInput struct {
	PatientID          *uuid.UUID
	PatientIDs         []uuid.UUID
	ConsultationTypeID *uuid.UUID
	StartTime          time.Time
	EndTime            time.Time
	Title              string
	Description        string
	Notes              string
	NotifyReminder     bool
	ReminderMessage    string
	SkipConflictCheck  bool
}

// UpdateAppointmentInput uses nil pointers for "leave unchanged".
type UpdateAppointmentInput struct {
	PatientID          *uuid.UUID
	PatientIDs         []uuid.UUID
	ConsultationTypeID *uuid.UUID
	StartTime          *time.Time
	EndTime            *time.Time
	Title              *string
	Description        *string
	Notes              *string
	NotifyReminder     *bool
	ReminderMessage    *string
	SkipConflictCheck  bool
}

// BookingService owns the appointment lifecycle: every temporal mutation
// goes through the conflict guard (unless explicitly skipped) and every
// significant change lands in the audit trail.
type BookingService struct {
	repo    Repository
	guard   *ConflictGuard
	history *HistoryRecorder
	locker  redisclient.Locker
	log     zerolog.Logger
	now     func() time.Time
}

func NewBookingService(repo Repository, guard *ConflictGuard, history *HistoryRecorder, locker redisclient.Locker, log zerolog.Logger) *BookingService {
	return &BookingService{
		repo:    repo,
		guard:   guard,
		history: history,
		locker:  locker,
		log:     log.With().Str("component", "booking").Logger(),
		now:     time.Now,
	}
}

// Create books a new appointment for the doctor.
func (s *BookingService) Create(ctx context.Context, doctorID uuid.UUID, in CreateAppointmentInput) (*Appointment, error) {
	patientIDs, err := resolveParticipants(in.PatientID, in.PatientIDs)
	if err != nil {
		return nil, err
	}
	if err := validateInterval(in.StartTime, in.EndTime); err != nil {
		return nil, err
	}
	if in.ConsultationTypeID != nil {
		if _, err := s.loadConsultationType(ctx, *in.ConsultationTypeID, doctorID); err != nil {
			return nil, err
		}
	}
	if err := s.verifyPatients(ctx, doctorID, patientIDs, in.ConsultationTypeID); err != nil {
		return nil, err
	}

	var created *Appointment
	err = s.locker.WithCalendarLock(ctx, doctorID, func(ctx context.Context) error {
		if !in.SkipConflictCheck {
			if err := s.checkConflicts(ctx, doctorID, in.StartTime, in.EndTime, nil); err != nil {
				return err
			}
		}

		appt := &Appointment{
			ID:                 uuid.New(),
			DoctorID:           doctorID,
			PatientID:          patientIDs[0],
			ConsultationTypeID: in.ConsultationTypeID,
			StartTime:          in.StartTime,
			EndTime:            in.EndTime,
			Status:             StatusScheduled,
			Title:              in.Title,
			Description:        in.Description,
			Notes:              in.Notes,
			NotifyReminder:     in.NotifyReminder,
			ReminderMessage:    in.ReminderMessage,
		}

		created, err = s.repo.CreateAppointment(ctx, appt, patientIDs)
		if err != nil {
			if errors.Is(err, ErrCalendarOverlap) {
				return Conflictf(CodeAppointmentOverlap, "the selected time overlaps an existing appointment")
			}
			return fmt.Errorf("create appointment: %w", err)
		}

		s.history.Created(ctx, created, doctorID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordAppointmentCreated()
	s.log.Info().
		Str("appointment_id", created.ID.String()).
		Str("doctor_id", doctorID.String()).
		Time("start", created.StartTime).
		Msg("appointment created")
	return created, nil
}

// Update edits an existing appointment. Each class of change gets its own
// audit entry: a consultation-type change, a reschedule (only when the
// stored instants actually move), and a single UPDATED entry covering all
// changed scalar fields.
func (s *BookingService) Update(ctx context.Context, id, doctorID uuid.UUID, in UpdateAppointmentInput) (*Appointment, error) {
	existing, err := s.loadOwned(ctx, id, doctorID)
	if err != nil {
		return nil, err
	}

	// Resolve the final participant list first so the consultation-type
	// permission check runs against what will actually be stored.
	var patientIDs []uuid.UUID
	if in.PatientIDs != nil || in.PatientID != nil {
		patientIDs, err = resolveParticipants(in.PatientID, in.PatientIDs)
		if err != nil {
			return nil, err
		}
	}

	finalTypeID := existing.ConsultationTypeID
	typeChanged := false
	var oldTypeName, newTypeName string
	if in.ConsultationTypeID != nil && (existing.ConsultationTypeID == nil || *existing.ConsultationTypeID != *in.ConsultationTypeID) {
		newCT, err := s.loadConsultationType(ctx, *in.ConsultationTypeID, doctorID)
		if err != nil {
			return nil, err
		}
		newTypeName = newCT.Name
		if existing.ConsultationTypeID != nil {
			if oldCT, err := s.repo.GetConsultationType(ctx, *existing.ConsultationTypeID, doctorID); err == nil {
				oldTypeName = oldCT.Name
			}
		}
		finalTypeID = in.ConsultationTypeID
		typeChanged = true
	}

	checkIDs := patientIDs
	if checkIDs == nil {
		detail, err := s.repo.GetAppointmentDetail(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load appointment detail: %w", err)
		}
		for _, p := range detail.Patients {
			checkIDs = append(checkIDs, p.ID)
		}
	}
	if patientIDs != nil || typeChanged {
		if err := s.verifyPatients(ctx, doctorID, checkIDs, finalTypeID); err != nil {
			return nil, err
		}
	}

	newStart, newEnd := existing.StartTime, existing.EndTime
	if in.StartTime != nil {
		newStart = *in.StartTime
	}
	if in.EndTime != nil {
		newEnd = *in.EndTime
	}
	timeChanged := !newStart.Equal(existing.StartTime) || !newEnd.Equal(existing.EndTime)
	if timeChanged {
		if err := validateInterval(newStart, newEnd); err != nil {
			return nil, err
		}
	}

	changed := map[string]FieldChange{}
	updated := *existing
	updated.ConsultationTypeID = finalTypeID
	updated.StartTime = newStart
	updated.EndTime = newEnd
	if in.Title != nil && *in.Title != existing.Title {
		changed["title"] = FieldChange{Before: existing.Title, After: *in.Title}
		updated.Title = *in.Title
	}
	if in.Description != nil && *in.Description != existing.Description {
		changed["description"] = FieldChange{Before: existing.Description, After: *in.Description}
		updated.Description = *in.Description
	}
	if in.Notes != nil && *in.Notes != existing.Notes {
		changed["notes"] = FieldChange{Before: existing.Notes, After: *in.Notes}
		updated.Notes = *in.Notes
	}
	if in.NotifyReminder != nil {
		updated.NotifyReminder = *in.NotifyReminder
	}
	if in.ReminderMessage != nil {
		updated.ReminderMessage = *in.ReminderMessage
	}
	if patientIDs != nil {
		updated.PatientID = patientIDs[0]
	}

	var result *Appointment
	err = s.locker.WithCalendarLock(ctx, doctorID, func(ctx context.Context) error {
		if timeChanged && !in.SkipConflictCheck {
			if err := s.checkConflicts(ctx, doctorID, newStart, newEnd, &id); err != nil {
				return err
			}
		}

		result, err = s.repo.UpdateAppointment(ctx, &updated, patientIDs)
		if err != nil {
			if errors.Is(err, ErrCalendarOverlap) {
				return Conflictf(CodeAppointmentOverlap, "the selected time overlaps an existing appointment")
			}
			return fmt.Errorf("update appointment: %w", err)
		}

		if typeChanged {
			s.history.ConsultationTypeChanged(ctx, id, doctorID, oldTypeName, newTypeName)
		}
		if timeChanged {
			s.history.Rescheduled(ctx, id, doctorID, existing.StartTime, existing.EndTime, newStart, newEnd)
		}
		if len(changed) > 0 {
			s.history.Updated(ctx, id, doctorID, changed)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// UpdateStatus writes any valid status over any other; transition legality
// is deliberately not enforced so mistakes can be corrected. A history entry
// is appended only when the value actually changes.
func (s *BookingService) UpdateStatus(ctx context.Context, id, doctorID uuid.UUID, status AppointmentStatus) (*Appointment, error) {
	if !status.Valid() {
		return nil, Validationf("unknown appointment status %q", status)
	}

	existing, err := s.loadOwned(ctx, id, doctorID)
	if err != nil {
		return nil, err
	}
	if existing.Status == status {
		return existing, nil
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, status)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.history.StatusChanged(ctx, id, doctorID, existing.Status, status)
	metrics.RecordStatusChange(string(status))
	return updated, nil
}

// Remove hard-deletes an appointment. Distinct from cancellation: no status
// remains and no history entry is written.
func (s *BookingService) Remove(ctx context.Context, id, doctorID uuid.UUID) error {
	if _, err := s.loadOwned(ctx, id, doctorID); err != nil {
		return err
	}
	if err := s.repo.DeleteAppointment(ctx, id); err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	return nil
}

// Get returns a hydrated appointment, ownership-checked.
func (s *BookingService) Get(ctx context.Context, id, doctorID uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, NotFoundf("appointment %s not found", id)
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if detail.DoctorID != doctorID {
		return nil, Forbiddenf("appointment belongs to another doctor")
	}
	return detail, nil
}

func (s *BookingService) List(ctx context.Context, doctorID uuid.UUID) ([]AppointmentDetail, error) {
	return s.repo.ListAppointments(ctx, doctorID)
}

// ListUpcoming returns future SCHEDULED and CONFIRMED appointments.
func (s *BookingService) ListUpcoming(ctx context.Context, doctorID uuid.UUID) ([]AppointmentDetail, error) {
	return s.repo.ListUpcomingAppointments(ctx, doctorID, s.now())
}

// ListByDate returns every appointment of the doctor on the given day,
// cancelled ones included.
func (s *BookingService) ListByDate(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]AppointmentDetail, error) {
	dayStart := startOfDay(day)
	return s.repo.ListAppointmentDetailsInRange(ctx, doctorID, dayStart, dayStart.Add(24*time.Hour))
}

// History returns the appointment's audit trail, most recent first.
func (s *BookingService) History(ctx context.Context, id, doctorID uuid.UUID) ([]HistoryEntry, error) {
	if _, err := s.loadOwned(ctx, id, doctorID); err != nil {
		return nil, err
	}
	return s.history.ListForAppointment(ctx, id)
}

// NoteDocumentUploaded is the hook the document module calls so uploads show
// up in the booking's trail.
func (s *BookingService) NoteDocumentUploaded(ctx context.Context, id, doctorID uuid.UUID, fileName string) error {
	if _, err := s.loadOwned(ctx, id, doctorID); err != nil {
		return err
	}
	s.history.DocumentUploaded(ctx, id, doctorID, fileName)
	return nil
}

func (s *BookingService) NoteDocumentDeleted(ctx context.Context, id, doctorID uuid.UUID, fileName string) error {
	if _, err := s.loadOwned(ctx, id, doctorID); err != nil {
		return err
	}
	s.history.DocumentDeleted(ctx, id, doctorID, fileName)
	return nil
}

// Internal helpers

func (s *BookingService) loadOwned(ctx context.Context, id, doctorID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, NotFoundf("appointment %s not found", id)
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appt.DoctorID != doctorID {
		return nil, Forbiddenf("appointment belongs to another doctor")
	}
	return appt, nil
}

func (s *BookingService) loadConsultationType(ctx context.Context, typeID, doctorID uuid.UUID) (*ConsultationType, error) {
	ct, err := s.repo.GetConsultationType(ctx, typeID, doctorID)
	if err != nil {
		if errors.Is(err, ErrConsultationTypeNotFound) {
			return nil, NotFoundf("consultation type %s not found", typeID)
		}
		return nil, fmt.Errorf("load consultation type: %w", err)
	}
	return ct, nil
}

// verifyPatients checks that every participant belongs to the doctor and is
// permitted to book the consultation type, naming the offending patient.
func (s *BookingService) verifyPatients(ctx context.Context, doctorID uuid.UUID, patientIDs []uuid.UUID, typeID *uuid.UUID) error {
	for _, pid := range patientIDs {
		p, err := s.repo.GetPatientByID(ctx, pid)
		if err != nil {
			if errors.Is(err, ErrPatientNotFound) {
				return NotFoundf("patient %s not found", pid)
			}
			return fmt.Errorf("load patient: %w", err)
		}
		if p.DoctorID != doctorID {
			return Validationf("patient %s does not belong to this doctor", p.Name)
		}
		if typeID != nil {
			enabled, err := s.repo.IsConsultationTypeEnabledForPatient(ctx, *typeID, pid)
			if err != nil {
				return fmt.Errorf("check consultation type permission: %w", err)
			}
			if !enabled {
				return Validationf("consultation type is not enabled for patient %s", p.Name)
			}
		}
	}
	return nil
}

func (s *BookingService) checkConflicts(ctx context.Context, doctorID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) error {
	conflict, err := s.guard.HasConflict(ctx, doctorID, start, end, excludeID)
	if err != nil {
		return err
	}
	if conflict {
		metrics.RecordBookingConflict(CodeAppointmentOverlap)
		return Conflictf(CodeAppointmentOverlap, "the selected time overlaps an existing appointment")
	}

	blocked, err := s.guard.IsBlockedByDisruption(ctx, doctorID, start, end)
	if err != nil {
		return err
	}
	if blocked {
		metrics.RecordBookingConflict(CodeDisruptionBlocked)
		return Conflictf(CodeDisruptionBlocked, "the selected time falls inside a declared disruption")
	}

	onLeave, err := s.guard.IsBlockedByLeave(ctx, doctorID, start, end)
	if err != nil {
		return err
	}
	if onLeave {
		metrics.RecordBookingConflict(CodePTOBlocked)
		return Conflictf(CodePTOBlocked, "the doctor is on approved leave for the selected day")
	}
	return nil
}

func resolveParticipants(single *uuid.UUID, multi []uuid.UUID) ([]uuid.UUID, error) {
	ids := multi
	if len(ids) == 0 && single != nil {
		ids = []uuid.UUID{*single}
	}
	if len(ids) == 0 {
		return nil, Validationf("at least one patient is required")
	}

	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

func validateInterval(start, end time.Time) error {
	if !start.Before(end) {
		return Validationf("start time must be before end time")
	}
	if end.Sub(start) > MaxAppointmentDuration {
		return Validationf("appointment duration cannot exceed 4 hours")
	}
	return nil
}
