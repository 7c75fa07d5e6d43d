package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinora/clinic-scheduling/internal/metrics"
	"github.com/clinora/clinic-scheduling/internal/notify"
	redisclient "github.com/clinora/clinic-scheduling/internal/redis"
)

// CreateImprevuInput declares an ad-hoc disruption. AppointmentIDs is
// tri-state: nil keeps every affected appointment in the cancellation set,
// an explicit empty slice means the doctor deselected all of them.
type CreateImprevuInput struct {
	StartTime           time.Time
	EndTime             time.Time
	BlockTimeSlots      *bool // default true
	NotifyPatients      bool
	Reason              string
	Message             string
	ConsultationTypeIDs []uuid.UUID
	AppointmentIDs      *[]uuid.UUID
}

type UpdateImprevuInput struct {
	StartTime      *time.Time
	EndTime        *time.Time
	BlockTimeSlots *bool
	NotifyPatients *bool
	Reason         *string
	Message        *string
}

// ImprevuService owns the disruption registry. The cancellation cascade runs
// synchronously once, at creation time; later edits only touch the record.
type ImprevuService struct {
	repo     Repository
	notifier notify.Notifier
	locker   redisclient.Locker
	log      zerolog.Logger
}

func NewImprevuService(repo Repository, notifier notify.Notifier, locker redisclient.Locker, log zerolog.Logger) *ImprevuService {
	return &ImprevuService{
		repo:     repo,
		notifier: notifier,
		locker:   locker,
		log:      log.With().Str("component", "imprevu").Logger(),
	}
}

// Create registers the disruption and, when it blocks time slots, cancels
// the surviving affected appointments in one bulk mutation. The bulk update
// deliberately bypasses the audited status-transition path; the count stored
// on the record is the trace of the batch.
func (s *ImprevuService) Create(ctx context.Context, doctorID uuid.UUID, in CreateImprevuInput) (*Imprevu, error) {
	if !in.StartTime.Before(in.EndTime) {
		return nil, Validationf("disruption start must be before its end")
	}

	block := true
	if in.BlockTimeSlots != nil {
		block = *in.BlockTimeSlots
	}

	imp := &Imprevu{
		ID:             uuid.New(),
		DoctorID:       doctorID,
		StartTime:      in.StartTime,
		EndTime:        in.EndTime,
		BlockTimeSlots: block,
		NotifyPatients: in.NotifyPatients,
		Reason:         in.Reason,
		Message:        in.Message,
	}

	var created *Imprevu
	err := s.locker.WithCalendarLock(ctx, doctorID, func(ctx context.Context) error {
		var err error
		created, err = s.repo.CreateImprevu(ctx, imp)
		if err != nil {
			return fmt.Errorf("create imprevu: %w", err)
		}

		if !block {
			return nil
		}

		affected, err := s.AffectedAppointments(ctx, doctorID, in.StartTime, in.EndTime)
		if err != nil {
			return err
		}

		victims := filterByConsultationType(affected, in.ConsultationTypeIDs)
		victims = filterByAppointmentIDs(victims, in.AppointmentIDs)

		if len(victims) > 0 {
			ids := make([]uuid.UUID, len(victims))
			for i, v := range victims {
				ids[i] = v.ID
			}
			n, err := s.repo.BulkCancelAppointments(ctx, ids)
			if err != nil {
				return fmt.Errorf("bulk cancel appointments: %w", err)
			}
			created.CancelledAppointmentsCount = n
			if err := s.repo.SetImprevuCancelledCount(ctx, created.ID, n); err != nil {
				return fmt.Errorf("store cancelled count: %w", err)
			}
			metrics.RecordDisruptionCancellations(n)
		}

		if in.NotifyPatients {
			s.notifyCancelled(ctx, doctorID, victims, in.Message)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("imprevu_id", created.ID.String()).
		Str("doctor_id", doctorID.String()).
		Int("cancelled", created.CancelledAppointmentsCount).
		Msg("disruption created")
	return created, nil
}

// Update edits the registry record only; the cascade is never re-run.
func (s *ImprevuService) Update(ctx context.Context, id, doctorID uuid.UUID, in UpdateImprevuInput) (*Imprevu, error) {
	existing, err := s.loadOwned(ctx, id, doctorID)
	if err != nil {
		return nil, err
	}

	updated := *existing
	if in.StartTime != nil {
		updated.StartTime = *in.StartTime
	}
	if in.EndTime != nil {
		updated.EndTime = *in.EndTime
	}
	if !updated.StartTime.Before(updated.EndTime) {
		return nil, Validationf("disruption start must be before its end")
	}
	if in.BlockTimeSlots != nil {
		updated.BlockTimeSlots = *in.BlockTimeSlots
	}
	if in.NotifyPatients != nil {
		updated.NotifyPatients = *in.NotifyPatients
	}
	if in.Reason != nil {
		updated.Reason = *in.Reason
	}
	if in.Message != nil {
		updated.Message = *in.Message
	}

	result, err := s.repo.UpdateImprevu(ctx, &updated)
	if err != nil {
		return nil, fmt.Errorf("update imprevu: %w", err)
	}
	return result, nil
}

func (s *ImprevuService) Remove(ctx context.Context, id, doctorID uuid.UUID) error {
	if _, err := s.loadOwned(ctx, id, doctorID); err != nil {
		return err
	}
	if err := s.repo.DeleteImprevu(ctx, id); err != nil {
		return fmt.Errorf("delete imprevu: %w", err)
	}
	return nil
}

func (s *ImprevuService) Get(ctx context.Context, id, doctorID uuid.UUID) (*Imprevu, error) {
	return s.loadOwned(ctx, id, doctorID)
}

func (s *ImprevuService) List(ctx context.Context, doctorID uuid.UUID) ([]Imprevu, error) {
	return s.repo.ListImprevus(ctx, doctorID)
}

// AffectedAppointments returns every non-cancelled appointment of the
// doctor overlapping [start, end), hydrated for presentation.
func (s *ImprevuService) AffectedAppointments(ctx context.Context, doctorID uuid.UUID, start, end time.Time) ([]AppointmentDetail, error) {
	if !start.Before(end) {
		return nil, Validationf("start date must be before end date")
	}

	details, err := s.repo.ListAppointmentDetailsInRange(ctx, doctorID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list appointments in range: %w", err)
	}

	affected := make([]AppointmentDetail, 0, len(details))
	for _, d := range details {
		if d.Status == StatusCancelled {
			continue
		}
		if Overlaps(start, end, d.StartTime, d.EndTime) {
			affected = append(affected, d)
		}
	}
	return affected, nil
}

// CancelAffectedAppointments re-runs the cancellation for an existing
// disruption on demand and adds to its stored count.
func (s *ImprevuService) CancelAffectedAppointments(ctx context.Context, id, doctorID uuid.UUID) (int, error) {
	imp, err := s.loadOwned(ctx, id, doctorID)
	if err != nil {
		return 0, err
	}

	var cancelled int
	err = s.locker.WithCalendarLock(ctx, doctorID, func(ctx context.Context) error {
		affected, err := s.AffectedAppointments(ctx, doctorID, imp.StartTime, imp.EndTime)
		if err != nil {
			return err
		}
		if len(affected) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(affected))
		for i, a := range affected {
			ids[i] = a.ID
		}
		n, err := s.repo.BulkCancelAppointments(ctx, ids)
		if err != nil {
			return fmt.Errorf("bulk cancel appointments: %w", err)
		}
		cancelled = n

		total := imp.CancelledAppointmentsCount + n
		if err := s.repo.SetImprevuCancelledCount(ctx, imp.ID, total); err != nil {
			return fmt.Errorf("store cancelled count: %w", err)
		}
		metrics.RecordDisruptionCancellations(n)

		if imp.NotifyPatients {
			s.notifyCancelled(ctx, doctorID, affected, imp.Message)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return cancelled, nil
}

func (s *ImprevuService) loadOwned(ctx context.Context, id, doctorID uuid.UUID) (*Imprevu, error) {
	imp, err := s.repo.GetImprevuByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrImprevuNotFound) {
			return nil, NotFoundf("imprevu %s not found", id)
		}
		return nil, fmt.Errorf("load imprevu: %w", err)
	}
	if imp.DoctorID != doctorID {
		return nil, Forbiddenf("imprevu belongs to another doctor")
	}
	return imp, nil
}

// notifyCancelled sends an absence notification to every participant of the
// cancelled appointments. Send failures are logged per recipient and never
// propagate.
func (s *ImprevuService) notifyCancelled(ctx context.Context, doctorID uuid.UUID, cancelled []AppointmentDetail, message string) {
	doctorName := ""
	if doc, err := s.repo.GetDoctorByID(ctx, doctorID); err == nil {
		doctorName = doc.Name
	}

	notified := make(map[string]struct{})
	for _, appt := range cancelled {
		for _, p := range appt.Patients {
			if p.Email == nil || *p.Email == "" {
				continue
			}
			if _, ok := notified[*p.Email]; ok {
				continue
			}
			notified[*p.Email] = struct{}{}

			if err := s.notifier.SendAbsenceNotification(ctx, *p.Email, p.Name, doctorName, message); err != nil {
				s.log.Error().Err(err).
					Str("email", *p.Email).
					Str("appointment_id", appt.ID.String()).
					Msg("failed to send absence notification")
			}
		}
	}
}

// filterByConsultationType keeps appointments whose type is in the allow
// list; an empty list keeps everything.
func filterByConsultationType(appts []AppointmentDetail, typeIDs []uuid.UUID) []AppointmentDetail {
	if len(typeIDs) == 0 {
		return appts
	}
	allowed := make(map[uuid.UUID]struct{}, len(typeIDs))
	for _, id := range typeIDs {
		allowed[id] = struct{}{}
	}
	out := make([]AppointmentDetail, 0, len(appts))
	for _, a := range appts {
		if a.ConsultationTypeID == nil {
			continue
		}
		if _, ok := allowed[*a.ConsultationTypeID]; ok {
			out = append(out, a)
		}
	}
	return out
}

// filterByAppointmentIDs applies the tri-state allow list: nil keeps the
// full set, an explicit empty slice keeps none.
func filterByAppointmentIDs(appts []AppointmentDetail, ids *[]uuid.UUID) []AppointmentDetail {
	if ids == nil {
		return appts
	}
	allowed := make(map[uuid.UUID]struct{}, len(*ids))
	for _, id := range *ids {
		allowed[id] = struct{}{}
	}
	out := make([]AppointmentDetail, 0, len(appts))
	for _, a := range appts {
		if _, ok := allowed[a.ID]; ok {
			out = append(out, a)
		}
	}
	return out
}
