package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinora/clinic-scheduling/internal/metrics"
	"github.com/clinora/clinic-scheduling/internal/notify"
)

// DefaultReminderWindow is how far ahead of the start time a reminder fires.
const DefaultReminderWindow = 30 * time.Minute

// ReminderService scans upcoming bookings and sends a one-time reminder to
// every participant. The conditional claim on reminder_sent_at is the
// idempotency guard: however many ticks observe an appointment inside the
// window, exactly one of them sends.
type ReminderService struct {
	repo     Repository
	notifier notify.Notifier
	log      zerolog.Logger
	window   time.Duration
	now      func() time.Time
}

func NewReminderService(repo Repository, notifier notify.Notifier, window time.Duration, log zerolog.Logger) *ReminderService {
	if window <= 0 {
		window = DefaultReminderWindow
	}
	return &ReminderService{
		repo:     repo,
		notifier: notifier,
		log:      log.With().Str("component", "reminder").Logger(),
		window:   window,
		now:      time.Now,
	}
}

// Run executes one scan. Called periodically by the reminder worker; errors
// from a single appointment or recipient never abort the rest of the run.
func (s *ReminderService) Run(ctx context.Context) error {
	now := s.now()
	due, err := s.repo.ListDueReminders(ctx, now, now.Add(s.window))
	if err != nil {
		return fmt.Errorf("list due reminders: %w", err)
	}

	for _, appt := range due {
		claimed, err := s.repo.ClaimReminder(ctx, appt.ID, now)
		if err != nil {
			s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to claim reminder")
			continue
		}
		if !claimed {
			// Another tick or instance got there first.
			continue
		}
		s.send(ctx, appt.ID)
	}

	return nil
}

func (s *ReminderService) send(ctx context.Context, appointmentID uuid.UUID) {
	detail, err := s.repo.GetAppointmentDetail(ctx, appointmentID)
	if err != nil {
		s.log.Error().Err(err).Str("appointment_id", appointmentID.String()).Msg("failed to load appointment for reminder")
		return
	}

	doctorName := ""
	if doc, err := s.repo.GetDoctorByID(ctx, detail.DoctorID); err == nil {
		doctorName = doc.Name
	}

	message := detail.ReminderMessage
	if message == "" {
		message = fmt.Sprintf("Reminder: your appointment starts at %s.", detail.StartTime.Format("15:04"))
	}

	sent := make(map[string]struct{})
	for _, p := range detail.Patients {
		if p.Email == nil || *p.Email == "" {
			continue
		}
		if _, ok := sent[*p.Email]; ok {
			continue
		}
		sent[*p.Email] = struct{}{}

		if err := s.notifier.SendReminder(ctx, *p.Email, p.Name, doctorName, message); err != nil {
			s.log.Error().Err(err).
				Str("email", *p.Email).
				Str("appointment_id", appointmentID.String()).
				Msg("failed to send reminder")
			continue
		}
		metrics.RecordReminderSent()
	}

	s.log.Info().
		Str("appointment_id", appointmentID.String()).
		Int("recipients", len(sent)).
		Msg("reminder processed")
}
