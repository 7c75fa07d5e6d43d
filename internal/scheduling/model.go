package scheduling

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "SCHEDULED"
	StatusConfirmed  AppointmentStatus = "CONFIRMED"
	StatusInProgress AppointmentStatus = "IN_PROGRESS"
	StatusCompleted  AppointmentStatus = "COMPLETED"
	StatusCancelled  AppointmentStatus = "CANCELLED"
	StatusAbsent     AppointmentStatus = "ABSENT"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusAbsent:
		return true
	}
	return false
}

// Upcoming reports whether the appointment still counts as a future
// engagement for reminder and listing purposes.
func (s AppointmentStatus) Upcoming() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

// Label is the human-readable form used in history descriptions.
func (s AppointmentStatus) Label() string {
	switch s {
	case StatusScheduled:
		return "Scheduled"
	case StatusConfirmed:
		return "Confirmed"
	case StatusInProgress:
		return "In progress"
	case StatusCompleted:
		return "Completed"
	case StatusCancelled:
		return "Cancelled"
	case StatusAbsent:
		return "Absent"
	}
	return string(s)
}

// MaxAppointmentDuration caps a single consultation interval.
const MaxAppointmentDuration = 4 * time.Hour

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ConsultationType defines the duration and mandatory rest period of a
// bookable consultation. Per-patient overrides can disable a type for a
// given patient; absence of an override means allowed.
type ConsultationType struct {
	ID               uuid.UUID
	DoctorID         uuid.UUID
	Name             string
	DurationMinutes  int
	RestAfterMinutes int
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (ct *ConsultationType) Duration() time.Duration {
	return time.Duration(ct.DurationMinutes) * time.Minute
}

func (ct *ConsultationType) RestAfter() time.Duration {
	return time.Duration(ct.RestAfterMinutes) * time.Minute
}

// ClockTime is a wall-clock time of day in minutes since midnight,
// serialized as "HH:mm".
type ClockTime int

func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse clock time %q: %w", s, err)
	}
	return ClockTime(t.Hour()*60 + t.Minute()), nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// At anchors the clock time on the given day in that day's location.
func (c ClockTime) At(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, int(c)/60, int(c)%60, 0, 0, day.Location())
}

// TimeSlot is one open booking window of a doctor's weekly template.
// An empty ConsultationTypeIDs set permits every consultation type.
type TimeSlot struct {
	ID                  uuid.UUID
	DoctorID            uuid.UUID
	Weekday             time.Weekday
	Open                ClockTime
	Close               ClockTime
	ConsultationTypeIDs []uuid.UUID
	Active              bool
}

// PermitsType reports whether the slot allows the given consultation type.
func (ts *TimeSlot) PermitsType(typeID uuid.UUID) bool {
	if len(ts.ConsultationTypeIDs) == 0 {
		return true
	}
	for _, id := range ts.ConsultationTypeIDs {
		if id == typeID {
			return true
		}
	}
	return false
}

type Appointment struct {
	ID                 uuid.UUID
	DoctorID           uuid.UUID
	PatientID          uuid.UUID // derived: always the primary join row
	ConsultationTypeID *uuid.UUID
	StartTime          time.Time
	EndTime            time.Time
	Status             AppointmentStatus
	Title              string
	Description        string
	Notes              string
	NotifyReminder     bool
	ReminderMessage    string
	ReminderSentAt     *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AppointmentPatient is one row of the appointment/patient join table.
// Exactly one row per appointment carries IsPrimary.
type AppointmentPatient struct {
	AppointmentID uuid.UUID
	PatientID     uuid.UUID
	IsPrimary     bool
	Position      int
}

// AppointmentDetail is an appointment hydrated with its participants and
// consultation type for presentation.
type AppointmentDetail struct {
	Appointment
	Patients         []Patient // ordered by position, primary first
	ConsultationType *ConsultationType
}

// Imprevu is an ad-hoc disruption a doctor declares. When BlockTimeSlots is
// set it blocks slot generation and, at creation time only, cascades into
// cancellation of overlapping bookings.
type Imprevu struct {
	ID                         uuid.UUID
	DoctorID                   uuid.UUID
	StartTime                  time.Time
	EndTime                    time.Time
	BlockTimeSlots             bool
	NotifyPatients             bool
	Reason                     string
	Message                    string
	CancelledAppointmentsCount int
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
}

// PTO is a pre-approved leave interval at whole-day granularity.
type PTO struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	StartDate time.Time
	EndDate   time.Time
}

type HistoryAction string

const (
	ActionCreated                 HistoryAction = "CREATED"
	ActionUpdated                 HistoryAction = "UPDATED"
	ActionStatusChanged           HistoryAction = "STATUS_CHANGED"
	ActionRescheduled             HistoryAction = "RESCHEDULED"
	ActionConsultationTypeChanged HistoryAction = "CONSULTATION_TYPE_CHANGED"
	ActionDocumentUploaded        HistoryAction = "DOCUMENT_UPLOADED"
	ActionDocumentDeleted         HistoryAction = "DOCUMENT_DELETED"
)

// FieldChange captures a before/after pair inside a history entry.
type FieldChange struct {
	Before any `json:"before"`
	After  any `json:"after"`
}

// HistoryEntry is one immutable row of an appointment's audit trail.
type HistoryEntry struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	AuthorID      uuid.UUID
	AuthorName    string // joined on read, empty on write
	Action        HistoryAction
	Description   string
	ChangedFields map[string]FieldChange
	Metadata      map[string]any
	CreatedAt     time.Time
}
