package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgExclusionViolation is raised by the no-double-booking constraint on
// appointments(doctor_id, [start_time,end_time)).
const pgExclusionViolation = "23P01"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Email, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.DoctorID, &p.Name, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanConsultationType(row pgx.Row) (*ConsultationType, error) {
	var ct ConsultationType
	err := row.Scan(
		&ct.ID,
		&ct.DoctorID,
		&ct.Name,
		&ct.DurationMinutes,
		&ct.RestAfterMinutes,
		&ct.Active,
		&ct.CreatedAt,
		&ct.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConsultationTypeNotFound
		}
		return nil, err
	}
	return &ct, nil
}

const appointmentColumns = `
	id, doctor_id, patient_id, consultation_type_id, start_time, end_time,
	status, title, description, notes, notify_reminder, reminder_message,
	reminder_sent_at, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.ConsultationTypeID,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&a.Title,
		&a.Description,
		&a.Notes,
		&a.NotifyReminder,
		&a.ReminderMessage,
		&a.ReminderSentAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanImprevu(row pgx.Row) (*Imprevu, error) {
	var imp Imprevu
	err := row.Scan(
		&imp.ID,
		&imp.DoctorID,
		&imp.StartTime,
		&imp.EndTime,
		&imp.BlockTimeSlots,
		&imp.NotifyPatients,
		&imp.Reason,
		&imp.Message,
		&imp.CancelledAppointmentsCount,
		&imp.CreatedAt,
		&imp.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrImprevuNotFound
		}
		return nil, err
	}
	return &imp, nil
}

func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation
}

// Directory

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) IsConsultationTypeEnabledForPatient(ctx context.Context, typeID, patientID uuid.UUID) (bool, error) {
	var enabled bool
	err := r.pool.QueryRow(ctx, `
		SELECT enabled
		FROM consultation_type_patient_overrides
		WHERE consultation_type_id = $1 AND patient_id = $2
	`, typeID, patientID).Scan(&enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		// No override means allowed.
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return enabled, nil
}

func (r *PgRepository) GetConsultationType(ctx context.Context, id, doctorID uuid.UUID) (*ConsultationType, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, name, duration_minutes, rest_after_minutes, active, created_at, updated_at
		FROM consultation_types
		WHERE id = $1 AND doctor_id = $2 AND active
	`, id, doctorID)
	return scanConsultationType(row)
}

// Availability template

func (r *PgRepository) ListTimeSlotsForWeekday(ctx context.Context, doctorID uuid.UUID, weekday time.Weekday) ([]TimeSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ts.id, ts.doctor_id, ts.weekday, ts.open_time, ts.close_time
		FROM time_slots ts
		JOIN time_plans tp ON tp.id = ts.time_plan_id
		WHERE ts.doctor_id = $1 AND ts.weekday = $2 AND ts.active AND tp.active
		ORDER BY ts.open_time
	`, doctorID, int(weekday))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []TimeSlot
	var ids []uuid.UUID
	for rows.Next() {
		var ts TimeSlot
		var wd int
		var open, clos string
		if err := rows.Scan(&ts.ID, &ts.DoctorID, &wd, &open, &clos); err != nil {
			return nil, err
		}
		ts.Weekday = time.Weekday(wd)
		ts.Active = true
		if ts.Open, err = ParseClockTime(open); err != nil {
			return nil, err
		}
		if ts.Close, err = ParseClockTime(clos); err != nil {
			return nil, err
		}
		slots = append(slots, ts)
		ids = append(ids, ts.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return slots, nil
	}

	typeRows, err := r.pool.Query(ctx, `
		SELECT time_slot_id, consultation_type_id
		FROM time_slot_consultation_types
		WHERE time_slot_id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer typeRows.Close()

	byID := make(map[uuid.UUID]*TimeSlot, len(slots))
	for i := range slots {
		byID[slots[i].ID] = &slots[i]
	}
	for typeRows.Next() {
		var slotID, typeID uuid.UUID
		if err := typeRows.Scan(&slotID, &typeID); err != nil {
			return nil, err
		}
		if ts, ok := byID[slotID]; ok {
			ts.ConsultationTypeIDs = append(ts.ConsultationTypeIDs, typeID)
		}
	}
	if err := typeRows.Err(); err != nil {
		return nil, err
	}

	return slots, nil
}

// Appointments

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := r.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	details, err := r.hydrate(ctx, []Appointment{*appt})
	if err != nil {
		return nil, err
	}
	return &details[0], nil
}

func (r *PgRepository) ListAppointments(ctx context.Context, doctorID uuid.UUID) ([]AppointmentDetail, error) {
	return r.queryDetails(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		ORDER BY start_time DESC
	`, doctorID)
}

func (r *PgRepository) ListUpcomingAppointments(ctx context.Context, doctorID uuid.UUID, from time.Time) ([]AppointmentDetail, error) {
	return r.queryDetails(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND status IN ('SCHEDULED', 'CONFIRMED')
		  AND start_time >= $2
		ORDER BY start_time
	`, doctorID, from)
}

func (r *PgRepository) ListAppointmentsInRange(ctx context.Context, doctorID uuid.UUID, start, end time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND status <> 'CANCELLED'
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time
	`, doctorID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointmentDetailsInRange(ctx context.Context, doctorID uuid.UUID, start, end time.Time) ([]AppointmentDetail, error) {
	return r.queryDetails(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time
	`, doctorID, start, end)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, appt *Appointment, patientIDs []uuid.UUID) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (
			id, doctor_id, patient_id, consultation_type_id, start_time, end_time,
			status, title, description, notes, notify_reminder, reminder_message,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		RETURNING `+appointmentColumns,
		appt.ID, appt.DoctorID, appt.PatientID, appt.ConsultationTypeID,
		appt.StartTime, appt.EndTime, appt.Status, appt.Title, appt.Description,
		appt.Notes, appt.NotifyReminder, appt.ReminderMessage,
	)
	created, err := scanAppointment(row)
	if err != nil {
		if isExclusionViolation(err) {
			return nil, ErrCalendarOverlap
		}
		return nil, err
	}

	if err := insertPatientRows(ctx, tx, appt.ID, patientIDs); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		if isExclusionViolation(err) {
			return nil, ErrCalendarOverlap
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, appt *Appointment, patientIDs []uuid.UUID) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET patient_id = $2,
		    consultation_type_id = $3,
		    start_time = $4,
		    end_time = $5,
		    title = $6,
		    description = $7,
		    notes = $8,
		    notify_reminder = $9,
		    reminder_message = $10,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		appt.ID, appt.PatientID, appt.ConsultationTypeID, appt.StartTime,
		appt.EndTime, appt.Title, appt.Description, appt.Notes,
		appt.NotifyReminder, appt.ReminderMessage,
	)
	updated, err := scanAppointment(row)
	if err != nil {
		if isExclusionViolation(err) {
			return nil, ErrCalendarOverlap
		}
		return nil, err
	}

	if patientIDs != nil {
		// Join rows are replaced wholesale, not diffed.
		if _, err := tx.Exec(ctx, `DELETE FROM appointment_patients WHERE appointment_id = $1`, appt.ID); err != nil {
			return nil, err
		}
		if err := insertPatientRows(ctx, tx, appt.ID, patientIDs); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if isExclusionViolation(err) {
			return nil, ErrCalendarOverlap
		}
		return nil, err
	}
	return updated, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns, id, status)
	return scanAppointment(row)
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) BulkCancelAppointments(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET status = 'CANCELLED',
		    updated_at = now()
		WHERE id = ANY($1)
		  AND status <> 'CANCELLED'
	`, ids)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// Disruptions

func (r *PgRepository) GetImprevuByID(ctx context.Context, id uuid.UUID) (*Imprevu, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, start_time, end_time, block_time_slots, notify_patients,
		       reason, message, cancelled_appointments_count, created_at, updated_at
		FROM imprevus
		WHERE id = $1
	`, id)
	return scanImprevu(row)
}

func (r *PgRepository) ListImprevus(ctx context.Context, doctorID uuid.UUID) ([]Imprevu, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, start_time, end_time, block_time_slots, notify_patients,
		       reason, message, cancelled_appointments_count, created_at, updated_at
		FROM imprevus
		WHERE doctor_id = $1
		ORDER BY start_time DESC
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectImprevus(rows)
}

func (r *PgRepository) ListBlockingImprevusInRange(ctx context.Context, doctorID uuid.UUID, start, end time.Time) ([]Imprevu, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, start_time, end_time, block_time_slots, notify_patients,
		       reason, message, cancelled_appointments_count, created_at, updated_at
		FROM imprevus
		WHERE doctor_id = $1
		  AND block_time_slots
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time
	`, doctorID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectImprevus(rows)
}

func (r *PgRepository) CreateImprevu(ctx context.Context, imp *Imprevu) (*Imprevu, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO imprevus (
			id, doctor_id, start_time, end_time, block_time_slots, notify_patients,
			reason, message, cancelled_appointments_count, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, now(), now())
		RETURNING id, doctor_id, start_time, end_time, block_time_slots, notify_patients,
		          reason, message, cancelled_appointments_count, created_at, updated_at
	`, imp.ID, imp.DoctorID, imp.StartTime, imp.EndTime, imp.BlockTimeSlots,
		imp.NotifyPatients, imp.Reason, imp.Message)
	return scanImprevu(row)
}

func (r *PgRepository) UpdateImprevu(ctx context.Context, imp *Imprevu) (*Imprevu, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE imprevus
		SET start_time = $2,
		    end_time = $3,
		    block_time_slots = $4,
		    notify_patients = $5,
		    reason = $6,
		    message = $7,
		    updated_at = now()
		WHERE id = $1
		RETURNING id, doctor_id, start_time, end_time, block_time_slots, notify_patients,
		          reason, message, cancelled_appointments_count, created_at, updated_at
	`, imp.ID, imp.StartTime, imp.EndTime, imp.BlockTimeSlots, imp.NotifyPatients,
		imp.Reason, imp.Message)
	return scanImprevu(row)
}

func (r *PgRepository) DeleteImprevu(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM imprevus WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrImprevuNotFound
	}
	return nil
}

func (r *PgRepository) SetImprevuCancelledCount(ctx context.Context, id uuid.UUID, count int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE imprevus
		SET cancelled_appointments_count = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, count)
	return err
}

// Leave

func (r *PgRepository) HasApprovedLeaveOverlap(ctx context.Context, doctorID uuid.UUID, dayStart, dayEnd time.Time) (bool, error) {
	firstDay := dayStart
	lastDay := dayEnd.Add(-24 * time.Hour)

	var blocked bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM doctor_pto
			WHERE doctor_id = $1
			  AND status = 'APPROVED'
			  AND start_date <= $3::date
			  AND end_date >= $2::date
		)
	`, doctorID, firstDay, lastDay).Scan(&blocked)
	if err != nil {
		return false, err
	}
	return blocked, nil
}

// Audit trail

func (r *PgRepository) InsertHistory(ctx context.Context, entry *HistoryEntry) error {
	var changed, meta []byte
	var err error
	if entry.ChangedFields != nil {
		if changed, err = json.Marshal(entry.ChangedFields); err != nil {
			return fmt.Errorf("marshal changed fields: %w", err)
		}
	}
	if entry.Metadata != nil {
		if meta, err = json.Marshal(entry.Metadata); err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO appointment_history (
			id, appointment_id, author_id, action, description,
			changed_fields, metadata, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.AppointmentID, entry.AuthorID, entry.Action,
		entry.Description, changed, meta, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

func (r *PgRepository) ListHistoryForAppointment(ctx context.Context, appointmentID uuid.UUID) ([]HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT h.id, h.appointment_id, h.author_id, COALESCE(d.name, ''),
		       h.action, h.description, h.changed_fields, h.metadata, h.created_at
		FROM appointment_history h
		LEFT JOIN doctors d ON d.id = h.author_id
		WHERE h.appointment_id = $1
		ORDER BY h.created_at DESC
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var changed, meta []byte
		if err := rows.Scan(&e.ID, &e.AppointmentID, &e.AuthorID, &e.AuthorName,
			&e.Action, &e.Description, &changed, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(changed) > 0 {
			if err := json.Unmarshal(changed, &e.ChangedFields); err != nil {
				return nil, fmt.Errorf("unmarshal changed fields: %w", err)
			}
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Reminders

func (r *PgRepository) ListDueReminders(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE notify_reminder
		  AND reminder_sent_at IS NULL
		  AND status IN ('SCHEDULED', 'CONFIRMED')
		  AND start_time >= $1
		  AND start_time <= $2
		ORDER BY start_time
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *PgRepository) ClaimReminder(ctx context.Context, id uuid.UUID, sentAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET reminder_sent_at = $2,
		    updated_at = now()
		WHERE id = $1
		  AND reminder_sent_at IS NULL
	`, id, sentAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Internal helpers

func insertPatientRows(ctx context.Context, tx pgx.Tx, appointmentID uuid.UUID, patientIDs []uuid.UUID) error {
	for i, pid := range patientIDs {
		_, err := tx.Exec(ctx, `
			INSERT INTO appointment_patients (appointment_id, patient_id, is_primary, position)
			VALUES ($1, $2, $3, $4)
		`, appointmentID, pid, i == 0, i)
		if err != nil {
			return err
		}
	}
	return nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func collectImprevus(rows pgx.Rows) ([]Imprevu, error) {
	var result []Imprevu
	for rows.Next() {
		imp, err := scanImprevu(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *imp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) queryDetails(ctx context.Context, query string, args ...any) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	appts, err := collectAppointments(rows)
	if err != nil {
		return nil, err
	}
	return r.hydrate(ctx, appts)
}

// hydrate attaches participant patients and the consultation type to each
// appointment with two batched queries.
func (r *PgRepository) hydrate(ctx context.Context, appts []Appointment) ([]AppointmentDetail, error) {
	details := make([]AppointmentDetail, len(appts))
	if len(appts) == 0 {
		return details, nil
	}

	ids := make([]uuid.UUID, len(appts))
	index := make(map[uuid.UUID]int, len(appts))
	typeIDs := make(map[uuid.UUID]struct{})
	for i, a := range appts {
		details[i] = AppointmentDetail{Appointment: a}
		ids[i] = a.ID
		index[a.ID] = i
		if a.ConsultationTypeID != nil {
			typeIDs[*a.ConsultationTypeID] = struct{}{}
		}
	}

	rows, err := r.pool.Query(ctx, `
		SELECT ap.appointment_id, p.id, p.doctor_id, p.name, p.email, p.created_at, p.updated_at
		FROM appointment_patients ap
		JOIN patients p ON p.id = ap.patient_id
		WHERE ap.appointment_id = ANY($1)
		ORDER BY ap.appointment_id, ap.position
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var apptID uuid.UUID
		var p Patient
		if err := rows.Scan(&apptID, &p.ID, &p.DoctorID, &p.Name, &p.Email, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if i, ok := index[apptID]; ok {
			details[i].Patients = append(details[i].Patients, p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(typeIDs) > 0 {
		wanted := make([]uuid.UUID, 0, len(typeIDs))
		for id := range typeIDs {
			wanted = append(wanted, id)
		}
		ctRows, err := r.pool.Query(ctx, `
			SELECT id, doctor_id, name, duration_minutes, rest_after_minutes, active, created_at, updated_at
			FROM consultation_types
			WHERE id = ANY($1)
		`, wanted)
		if err != nil {
			return nil, err
		}
		defer ctRows.Close()

		types := make(map[uuid.UUID]*ConsultationType)
		for ctRows.Next() {
			ct, err := scanConsultationType(ctRows)
			if err != nil {
				return nil, err
			}
			types[ct.ID] = ct
		}
		if err := ctRows.Err(); err != nil {
			return nil, err
		}

		for i := range details {
			if tid := details[i].ConsultationTypeID; tid != nil {
				details[i].ConsultationType = types[*tid]
			}
		}
	}

	return details, nil
}
