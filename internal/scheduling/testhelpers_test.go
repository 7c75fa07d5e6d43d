package scheduling

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var testLogger = zerolog.New(os.Stderr).Level(zerolog.Disabled)

// memRepo is an in-memory Repository with the same observable behaviour as
// the Postgres implementation, including the overlap rejection on writes.
type memRepo struct {
	mu sync.Mutex

	doctors       map[uuid.UUID]*Doctor
	patients      map[uuid.UUID]*Patient
	types         map[uuid.UUID]*ConsultationType
	typeOverrides map[[2]uuid.UUID]bool // (typeID, patientID) -> enabled
	timeSlots     []TimeSlot
	appointments  map[uuid.UUID]*Appointment
	participants  map[uuid.UUID][]uuid.UUID // ordered, first is primary
	imprevus      map[uuid.UUID]*Imprevu
	leaves        [][2]time.Time // approved leave as [dayStart, dayEnd)
	history       []HistoryEntry
}

func newMemRepo() *memRepo {
	return &memRepo{
		doctors:       make(map[uuid.UUID]*Doctor),
		patients:      make(map[uuid.UUID]*Patient),
		types:         make(map[uuid.UUID]*ConsultationType),
		typeOverrides: make(map[[2]uuid.UUID]bool),
		appointments:  make(map[uuid.UUID]*Appointment),
		participants:  make(map[uuid.UUID][]uuid.UUID),
		imprevus:      make(map[uuid.UUID]*Imprevu),
	}
}

func strPtr(s string) *string { return &s }

func (r *memRepo) addDoctor(name string) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.doctors[id] = &Doctor{ID: id, Name: name, Email: strPtr(name + "@clinic.test")}
	return id
}

func (r *memRepo) addPatient(doctorID uuid.UUID, name, email string) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	p := &Patient{ID: id, DoctorID: doctorID, Name: name}
	if email != "" {
		p.Email = &email
	}
	r.patients[id] = p
	return id
}

func (r *memRepo) addConsultationType(doctorID uuid.UUID, name string, durationMin, restMin int) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.types[id] = &ConsultationType{
		ID:               id,
		DoctorID:         doctorID,
		Name:             name,
		DurationMinutes:  durationMin,
		RestAfterMinutes: restMin,
		Active:           true,
	}
	return id
}

func (r *memRepo) addTimeSlot(doctorID uuid.UUID, weekday time.Weekday, openAt, closeAt string, typeIDs ...uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, err := ParseClockTime(openAt)
	if err != nil {
		panic(err)
	}
	c, err := ParseClockTime(closeAt)
	if err != nil {
		panic(err)
	}
	r.timeSlots = append(r.timeSlots, TimeSlot{
		ID:                  uuid.New(),
		DoctorID:            doctorID,
		Weekday:             weekday,
		Open:                o,
		Close:               c,
		ConsultationTypeIDs: typeIDs,
		Active:              true,
	})
}

func (r *memRepo) addLeave(dayStart, dayEnd time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaves = append(r.leaves, [2]time.Time{dayStart, dayEnd})
}

// Directory

func (r *memRepo) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) IsConsultationTypeEnabledForPatient(_ context.Context, typeID, patientID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	enabled, ok := r.typeOverrides[[2]uuid.UUID{typeID, patientID}]
	if !ok {
		return true, nil
	}
	return enabled, nil
}

func (r *memRepo) GetConsultationType(_ context.Context, id, doctorID uuid.UUID) (*ConsultationType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ct, ok := r.types[id]
	if !ok || ct.DoctorID != doctorID || !ct.Active {
		return nil, ErrConsultationTypeNotFound
	}
	cp := *ct
	return &cp, nil
}

// Availability template

func (r *memRepo) ListTimeSlotsForWeekday(_ context.Context, doctorID uuid.UUID, weekday time.Weekday) ([]TimeSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []TimeSlot
	for _, ts := range r.timeSlots {
		if ts.DoctorID == doctorID && ts.Weekday == weekday && ts.Active {
			out = append(out, ts)
		}
	}
	return out, nil
}

// Appointments

func (r *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memRepo) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := r.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.detailLocked(*appt), nil
}

func (r *memRepo) detailLocked(a Appointment) *AppointmentDetail {
	d := &AppointmentDetail{Appointment: a}
	for _, pid := range r.participants[a.ID] {
		if p, ok := r.patients[pid]; ok {
			d.Patients = append(d.Patients, *p)
		}
	}
	if a.ConsultationTypeID != nil {
		if ct, ok := r.types[*a.ConsultationTypeID]; ok {
			cp := *ct
			d.ConsultationType = &cp
		}
	}
	return d
}

func (r *memRepo) ListAppointments(_ context.Context, doctorID uuid.UUID) ([]AppointmentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []AppointmentDetail
	for _, a := range r.appointments {
		if a.DoctorID == doctorID {
			out = append(out, *r.detailLocked(*a))
		}
	}
	return out, nil
}

func (r *memRepo) ListUpcomingAppointments(_ context.Context, doctorID uuid.UUID, from time.Time) ([]AppointmentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []AppointmentDetail
	for _, a := range r.appointments {
		if a.DoctorID == doctorID && a.Status.Upcoming() && !a.StartTime.Before(from) {
			out = append(out, *r.detailLocked(*a))
		}
	}
	return out, nil
}

func (r *memRepo) ListAppointmentsInRange(_ context.Context, doctorID uuid.UUID, start, end time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appointments {
		if a.DoctorID == doctorID && a.Status != StatusCancelled && Overlaps(start, end, a.StartTime, a.EndTime) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memRepo) ListAppointmentDetailsInRange(_ context.Context, doctorID uuid.UUID, start, end time.Time) ([]AppointmentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []AppointmentDetail
	for _, a := range r.appointments {
		if a.DoctorID == doctorID && Overlaps(start, end, a.StartTime, a.EndTime) {
			out = append(out, *r.detailLocked(*a))
		}
	}
	return out, nil
}

// overlapsExistingLocked mirrors the exclusion constraint: cancelled rows do
// not hold their interval.
func (r *memRepo) overlapsExistingLocked(doctorID uuid.UUID, start, end time.Time, excludeID uuid.UUID) bool {
	for _, a := range r.appointments {
		if a.ID == excludeID || a.DoctorID != doctorID || a.Status == StatusCancelled {
			continue
		}
		if Overlaps(start, end, a.StartTime, a.EndTime) {
			return true
		}
	}
	return false
}

func (r *memRepo) CreateAppointment(_ context.Context, appt *Appointment, patientIDs []uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.overlapsExistingLocked(appt.DoctorID, appt.StartTime, appt.EndTime, appt.ID) {
		return nil, ErrCalendarOverlap
	}
	cp := *appt
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.appointments[cp.ID] = &cp
	r.participants[cp.ID] = append([]uuid.UUID(nil), patientIDs...)
	out := cp
	return &out, nil
}

func (r *memRepo) UpdateAppointment(_ context.Context, appt *Appointment, patientIDs []uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.appointments[appt.ID]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if existing.Status != StatusCancelled &&
		r.overlapsExistingLocked(appt.DoctorID, appt.StartTime, appt.EndTime, appt.ID) {
		return nil, ErrCalendarOverlap
	}
	cp := *appt
	cp.Status = existing.Status
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = time.Now()
	r.appointments[cp.ID] = &cp
	if patientIDs != nil {
		r.participants[cp.ID] = append([]uuid.UUID(nil), patientIDs...)
	}
	out := cp
	return &out, nil
}

func (r *memRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, status AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.Status = status
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *memRepo) DeleteAppointment(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.appointments[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(r.appointments, id)
	delete(r.participants, id)
	return nil
}

func (r *memRepo) BulkCancelAppointments(_ context.Context, ids []uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, id := range ids {
		a, ok := r.appointments[id]
		if !ok || a.Status == StatusCancelled {
			continue
		}
		a.Status = StatusCancelled
		a.UpdatedAt = time.Now()
		n++
	}
	return n, nil
}

// Disruptions

func (r *memRepo) GetImprevuByID(_ context.Context, id uuid.UUID) (*Imprevu, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	imp, ok := r.imprevus[id]
	if !ok {
		return nil, ErrImprevuNotFound
	}
	cp := *imp
	return &cp, nil
}

func (r *memRepo) ListImprevus(_ context.Context, doctorID uuid.UUID) ([]Imprevu, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Imprevu
	for _, imp := range r.imprevus {
		if imp.DoctorID == doctorID {
			out = append(out, *imp)
		}
	}
	return out, nil
}

func (r *memRepo) ListBlockingImprevusInRange(_ context.Context, doctorID uuid.UUID, start, end time.Time) ([]Imprevu, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Imprevu
	for _, imp := range r.imprevus {
		if imp.DoctorID == doctorID && imp.BlockTimeSlots && Overlaps(start, end, imp.StartTime, imp.EndTime) {
			out = append(out, *imp)
		}
	}
	return out, nil
}

func (r *memRepo) CreateImprevu(_ context.Context, imp *Imprevu) (*Imprevu, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *imp
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.imprevus[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *memRepo) UpdateImprevu(_ context.Context, imp *Imprevu) (*Imprevu, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.imprevus[imp.ID]
	if !ok {
		return nil, ErrImprevuNotFound
	}
	cp := *imp
	cp.CancelledAppointmentsCount = existing.CancelledAppointmentsCount
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = time.Now()
	r.imprevus[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *memRepo) DeleteImprevu(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.imprevus[id]; !ok {
		return ErrImprevuNotFound
	}
	delete(r.imprevus, id)
	return nil
}

func (r *memRepo) SetImprevuCancelledCount(_ context.Context, id uuid.UUID, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	imp, ok := r.imprevus[id]
	if !ok {
		return ErrImprevuNotFound
	}
	imp.CancelledAppointmentsCount = count
	return nil
}

// Leave

func (r *memRepo) HasApprovedLeaveOverlap(_ context.Context, _ uuid.UUID, dayStart, dayEnd time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.leaves {
		if Overlaps(dayStart, dayEnd, l[0], l[1]) {
			return true, nil
		}
	}
	return false, nil
}

// Audit trail

func (r *memRepo) InsertHistory(_ context.Context, entry *HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, *entry)
	return nil
}

func (r *memRepo) ListHistoryForAppointment(_ context.Context, appointmentID uuid.UUID) ([]HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []HistoryEntry
	// Insertion order reversed, matching the created_at DESC read.
	for i := len(r.history) - 1; i >= 0; i-- {
		if r.history[i].AppointmentID == appointmentID {
			out = append(out, r.history[i])
		}
	}
	return out, nil
}

func (r *memRepo) historyByAction(appointmentID uuid.UUID, action HistoryAction) []HistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []HistoryEntry
	for _, e := range r.history {
		if e.AppointmentID == appointmentID && e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// Reminders

func (r *memRepo) ListDueReminders(_ context.Context, from, to time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appointments {
		if a.NotifyReminder && a.ReminderSentAt == nil && a.Status.Upcoming() &&
			!a.StartTime.Before(from) && !a.StartTime.After(to) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memRepo) ClaimReminder(_ context.Context, id uuid.UUID, sentAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || a.ReminderSentAt != nil {
		return false, nil
	}
	a.ReminderSentAt = &sentAt
	return true, nil
}

// fakeNotifier records every send for assertions.
type fakeNotifier struct {
	mu               sync.Mutex
	reminders        []string // recipient emails
	reminderMessages []string
	absences         []string
}

func (n *fakeNotifier) SendReminder(_ context.Context, email, _, _, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reminders = append(n.reminders, email)
	n.reminderMessages = append(n.reminderMessages, message)
	return nil
}

func (n *fakeNotifier) SendAbsenceNotification(_ context.Context, email, _, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.absences = append(n.absences, email)
	return nil
}
