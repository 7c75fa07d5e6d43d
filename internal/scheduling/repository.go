package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound           = errors.New("doctor not found")
	ErrPatientNotFound          = errors.New("patient not found")
	ErrConsultationTypeNotFound = errors.New("consultation type not found")
	ErrAppointmentNotFound      = errors.New("appointment not found")
	ErrImprevuNotFound          = errors.New("imprevu not found")

	// ErrCalendarOverlap is surfaced by the storage layer when the
	// exclusion constraint on (doctor_id, [start,end)) rejects a write.
	ErrCalendarOverlap = errors.New("calendar interval already occupied")
)

// Repository contains all DB interactions needed by the scheduling services.
type Repository interface {
	// Directory
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	IsConsultationTypeEnabledForPatient(ctx context.Context, typeID, patientID uuid.UUID) (bool, error)
	GetConsultationType(ctx context.Context, id, doctorID uuid.UUID) (*ConsultationType, error)

	// Availability template (read-only here; owned by doctor settings)
	ListTimeSlotsForWeekday(ctx context.Context, doctorID uuid.UUID, weekday time.Weekday) ([]TimeSlot, error)

	// Appointments
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	ListAppointments(ctx context.Context, doctorID uuid.UUID) ([]AppointmentDetail, error)
	ListUpcomingAppointments(ctx context.Context, doctorID uuid.UUID, from time.Time) ([]AppointmentDetail, error)

	// ListAppointmentsInRange returns the doctor's non-cancelled
	// appointments overlapping [start, end).
	ListAppointmentsInRange(ctx context.Context, doctorID uuid.UUID, start, end time.Time) ([]Appointment, error)
	ListAppointmentDetailsInRange(ctx context.Context, doctorID uuid.UUID, start, end time.Time) ([]AppointmentDetail, error)

	// CreateAppointment persists the appointment and its patient join rows
	// in one transaction. patientIDs is ordered, first entry primary.
	CreateAppointment(ctx context.Context, appt *Appointment, patientIDs []uuid.UUID) (*Appointment, error)

	// UpdateAppointment persists field changes; a non-nil patientIDs
	// replaces the join rows wholesale.
	UpdateAppointment(ctx context.Context, appt *Appointment, patientIDs []uuid.UUID) (*Appointment, error)

	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error

	// BulkCancelAppointments transitions every given non-cancelled
	// appointment to CANCELLED in a single statement and returns how many
	// rows changed.
	BulkCancelAppointments(ctx context.Context, ids []uuid.UUID) (int, error)

	// Disruptions
	GetImprevuByID(ctx context.Context, id uuid.UUID) (*Imprevu, error)
	ListImprevus(ctx context.Context, doctorID uuid.UUID) ([]Imprevu, error)
	// ListBlockingImprevusInRange returns disruptions with BlockTimeSlots
	// overlapping [start, end).
	ListBlockingImprevusInRange(ctx context.Context, doctorID uuid.UUID, start, end time.Time) ([]Imprevu, error)
	CreateImprevu(ctx context.Context, imp *Imprevu) (*Imprevu, error)
	UpdateImprevu(ctx context.Context, imp *Imprevu) (*Imprevu, error)
	DeleteImprevu(ctx context.Context, id uuid.UUID) error
	SetImprevuCancelledCount(ctx context.Context, id uuid.UUID, count int) error

	// Leave
	HasApprovedLeaveOverlap(ctx context.Context, doctorID uuid.UUID, dayStart, dayEnd time.Time) (bool, error)

	// Audit trail (append-only)
	InsertHistory(ctx context.Context, entry *HistoryEntry) error
	ListHistoryForAppointment(ctx context.Context, appointmentID uuid.UUID) ([]HistoryEntry, error)

	// Reminders
	ListDueReminders(ctx context.Context, from, to time.Time) ([]Appointment, error)
	// ClaimReminder atomically sets reminder_sent_at when still unset and
	// reports whether this caller won the claim.
	ClaimReminder(ctx context.Context, id uuid.UUID, sentAt time.Time) (bool, error)
}
