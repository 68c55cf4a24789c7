package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Dharmendra-07/Hospital-Management-System-V2/internal/stats"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func pgTime(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: t.Microseconds(), Valid: true}
}

func statusStrings(statuses []AppointmentStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Specialty, &d.Email, &d.CreatedAt, &d.UpdatedAt)
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
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanSlot(row pgx.Row) (*AvailabilitySlot, error) {
	var s AvailabilitySlot
	var start, end pgtype.Time

	err := row.Scan(&s.ID, &s.DoctorID, &s.Date, &start, &end, &s.Capacity, &s.IsAvailable, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.Date = DateOnly(s.Date)
	s.StartTime = TimeOfDayFromMicroseconds(start.Microseconds)
	s.EndTime = TimeOfDayFromMicroseconds(end.Microseconds)
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var at pgtype.Time

	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.Date, &at, &a.Status, &a.Reason, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = DateOnly(a.Date)
	a.Time = TimeOfDayFromMicroseconds(at.Microseconds)
	return &a, nil
}

const appointmentColumns = `id, patient_id, doctor_id, appointment_date, appointment_time, status, reason, created_at, updated_at`

// Interface methods

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	stats.AddQuery(ctx)
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, email, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	stats.AddQuery(ctx)
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, start TimeOfDay) (*AvailabilitySlot, error) {
	stats.AddQuery(ctx)
	row := r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, date, start_time, end_time, capacity, is_available, created_at, updated_at
		FROM availability_slots
		WHERE doctor_id = $1 AND date = $2 AND start_time = $3
	`, doctorID, date, pgTime(start))
	return scanSlot(row)
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*AvailabilitySlot, error) {
	stats.AddQuery(ctx)
	row := r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, date, start_time, end_time, capacity, is_available, created_at, updated_at
		FROM availability_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) UpsertSlot(ctx context.Context, slot *AvailabilitySlot) (*AvailabilitySlot, error) {
	stats.AddQuery(ctx)
	row := r.pool.QueryRow(ctx, `
		INSERT INTO availability_slots (id, doctor_id, date, start_time, end_time, capacity, is_available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (doctor_id, date, start_time) DO UPDATE
		SET end_time = EXCLUDED.end_time,
		    capacity = EXCLUDED.capacity,
		    is_available = EXCLUDED.is_available,
		    updated_at = now()
		RETURNING id, doctor_id, date, start_time, end_time, capacity, is_available, created_at, updated_at
	`, slot.ID, slot.DoctorID, slot.Date, pgTime(slot.StartTime), pgTime(slot.EndTime), slot.Capacity, slot.IsAvailable)
	return scanSlot(row)
}

func (r *PgRepository) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	stats.AddQuery(ctx)
	tag, err := r.pool.Exec(ctx, `DELETE FROM availability_slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (r *PgRepository) ListSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]AvailabilitySlot, error) {
	stats.AddQuery(ctx)
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, date, start_time, end_time, capacity, is_available, created_at, updated_at
		FROM availability_slots
		WHERE doctor_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC, start_time ASC
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AvailabilitySlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

func (r *PgRepository) CountAppointmentsAt(ctx context.Context, doctorID uuid.UUID, date time.Time, at TimeOfDay, statuses []AppointmentStatus) (int, error) {
	stats.AddQuery(ctx)
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date = $2
		  AND appointment_time = $3
		  AND status = ANY($4)
	`, doctorID, date, pgTime(at), statusStrings(statuses)).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PgRepository) ListPatientScheduledOn(ctx context.Context, patientID uuid.UUID, date time.Time, excludeID *uuid.UUID) ([]Appointment, error) {
	stats.AddQuery(ctx)
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		  AND appointment_date = $2
		  AND status = 'scheduled'
		  AND ($3::uuid IS NULL OR id <> $3)
		ORDER BY appointment_time ASC
	`, patientID, date, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	stats.AddQuery(ctx)
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	stats.AddQuery(ctx)
	rows, err := r.pool.Query(ctx, detailQuery+` WHERE a.id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	details, err := collectDetails(rows)
	if err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return nil, ErrAppointmentNotFound
	}
	return &details[0], nil
}

const detailQuery = `
	SELECT a.id, a.patient_id, a.doctor_id, a.appointment_date, a.appointment_time, a.status, a.reason, a.created_at, a.updated_at,
	       d.name, p.name,
	       t.id, t.diagnosis, t.symptoms, t.prescription, t.notes, t.follow_up_date, t.created_at, t.updated_at
	FROM appointments a
	JOIN doctors d ON d.id = a.doctor_id
	JOIN patients p ON p.id = a.patient_id
	LEFT JOIN treatments t ON t.appointment_id = a.id`

func collectDetails(rows pgx.Rows) ([]AppointmentDetail, error) {
	var result []AppointmentDetail
	for rows.Next() {
		var det AppointmentDetail
		var at pgtype.Time
		var treatmentID *uuid.UUID
		var diagnosis, symptoms, prescription, notes *string
		var followUp, tCreated, tUpdated *time.Time

		err := rows.Scan(
			&det.ID, &det.PatientID, &det.DoctorID, &det.Date, &at, &det.Status, &det.Reason, &det.CreatedAt, &det.UpdatedAt,
			&det.DoctorName, &det.PatientName,
			&treatmentID, &diagnosis, &symptoms, &prescription, &notes, &followUp, &tCreated, &tUpdated,
		)
		if err != nil {
			return nil, err
		}

		det.Date = DateOnly(det.Date)
		det.Time = TimeOfDayFromMicroseconds(at.Microseconds)

		if treatmentID != nil {
			det.Treatment = &Treatment{
				ID:            *treatmentID,
				AppointmentID: det.ID,
				Diagnosis:     deref(diagnosis),
				Symptoms:      deref(symptoms),
				Prescription:  deref(prescription),
				Notes:         deref(notes),
				FollowUpDate:  followUp,
				CreatedAt:     derefTime(tCreated),
				UpdatedAt:     derefTime(tUpdated),
			}
		}

		result = append(result, det)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListAppointments(ctx context.Context, filter AppointmentFilter) ([]AppointmentDetail, error) {
	stats.AddQuery(ctx)

	query := detailQuery + `
	WHERE ($1::uuid IS NULL OR a.patient_id = $1)
	  AND ($2::uuid IS NULL OR a.doctor_id = $2)
	  AND ($3::text IS NULL OR a.status = $3)
	  AND ($4::date IS NULL OR a.appointment_date >= $4)
	  AND ($5::date IS NULL OR a.appointment_date <= $5)
	ORDER BY a.appointment_date DESC, a.appointment_time DESC`

	var status *string
	if filter.Status != nil {
		s := string(*filter.Status)
		status = &s
	}

	rows, err := r.pool.Query(ctx, query, filter.PatientID, filter.DoctorID, status, filter.From, filter.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectDetails(rows)
}

func (r *PgRepository) CreateAppointmentWithHistory(ctx context.Context, appt *Appointment, rec *HistoryRecord) (*Appointment, error) {
	stats.AddQuery(ctx)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, appointment_date, appointment_time, status, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING `+appointmentColumns+`
	`, appt.ID, appt.PatientID, appt.DoctorID, appt.Date, pgTime(appt.Time), appt.Status, appt.Reason)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := insertHistory(ctx, tx, rec); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return created, nil
}

func (r *PgRepository) UpdateAppointmentWithHistory(ctx context.Context, appt *Appointment, rec *HistoryRecord) (*Appointment, error) {
	stats.AddQuery(ctx)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET appointment_date = $2,
		    appointment_time = $3,
		    status = $4,
		    reason = $5,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, appt.ID, appt.Date, pgTime(appt.Time), appt.Status, appt.Reason)

	updated, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}

	if err := insertHistory(ctx, tx, rec); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return updated, nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, rec *HistoryRecord) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO appointment_history (appointment_id, changed_by, change_type, previous_data, new_data, change_reason, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`, rec.AppointmentID, rec.ChangedBy, rec.ChangeType, rec.PreviousData, rec.NewData, rec.ChangeReason)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

func (r *PgRepository) HistoryFor(ctx context.Context, appointmentID uuid.UUID) ([]HistoryRecord, error) {
	stats.AddQuery(ctx)
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, changed_by, change_type, previous_data, new_data, change_reason, changed_at
		FROM appointment_history
		WHERE appointment_id = $1
		ORDER BY changed_at DESC, id DESC
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []HistoryRecord
	for rows.Next() {
		var rec HistoryRecord
		err := rows.Scan(&rec.ID, &rec.AppointmentID, &rec.ChangedBy, &rec.ChangeType, &rec.PreviousData, &rec.NewData, &rec.ChangeReason, &rec.ChangedAt)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (r *PgRepository) InsertConflict(ctx context.Context, c *ConflictLog) error {
	stats.AddQuery(ctx)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO conflict_logs (conflict_type, user_id, attempted_date, attempted_time, doctor_id, patient_id, resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, now())
	`, c.Type, c.UserID, c.AttemptedDate, pgTime(c.AttemptedTime), c.DoctorID, c.PatientID)
	if err != nil {
		return fmt.Errorf("insert conflict log: %w", err)
	}
	return nil
}

func (r *PgRepository) ResolveConflicts(ctx context.Context, userID, doctorID uuid.UUID, date time.Time) (int64, error) {
	stats.AddQuery(ctx)
	tag, err := r.pool.Exec(ctx, `
		UPDATE conflict_logs
		SET resolved = true,
		    resolved_at = now()
		WHERE user_id = $1
		  AND doctor_id = $2
		  AND attempted_date = $3
		  AND resolved = false
	`, userID, doctorID, date)
	if err != nil {
		return 0, fmt.Errorf("resolve conflict logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) ListConflicts(ctx context.Context, start, end *time.Time) ([]ConflictLog, error) {
	stats.AddQuery(ctx)
	rows, err := r.pool.Query(ctx, `
		SELECT id, conflict_type, user_id, attempted_date, attempted_time, doctor_id, patient_id, resolved, resolved_at, created_at
		FROM conflict_logs
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at <= $2)
		ORDER BY created_at ASC
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ConflictLog
	for rows.Next() {
		var c ConflictLog
		var at pgtype.Time
		err := rows.Scan(&c.ID, &c.Type, &c.UserID, &c.AttemptedDate, &at, &c.DoctorID, &c.PatientID, &c.Resolved, &c.ResolvedAt, &c.CreatedAt)
		if err != nil {
			return nil, err
		}
		c.AttemptedDate = DateOnly(c.AttemptedDate)
		c.AttemptedTime = TimeOfDayFromMicroseconds(at.Microseconds)
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *PgRepository) UpsertTreatment(ctx context.Context, t *Treatment) (*Treatment, error) {
	stats.AddQuery(ctx)
	row := r.pool.QueryRow(ctx, `
		INSERT INTO treatments (id, appointment_id, diagnosis, symptoms, prescription, notes, follow_up_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (appointment_id) DO UPDATE
		SET diagnosis = EXCLUDED.diagnosis,
		    symptoms = EXCLUDED.symptoms,
		    prescription = EXCLUDED.prescription,
		    notes = EXCLUDED.notes,
		    follow_up_date = EXCLUDED.follow_up_date,
		    updated_at = now()
		RETURNING id, appointment_id, diagnosis, symptoms, prescription, notes, follow_up_date, created_at, updated_at
	`, t.ID, t.AppointmentID, t.Diagnosis, t.Symptoms, t.Prescription, t.Notes, t.FollowUpDate)
	return scanTreatment(row)
}

func (r *PgRepository) GetTreatmentByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Treatment, error) {
	stats.AddQuery(ctx)
	row := r.pool.QueryRow(ctx, `
		SELECT id, appointment_id, diagnosis, symptoms, prescription, notes, follow_up_date, created_at, updated_at
		FROM treatments
		WHERE appointment_id = $1
	`, appointmentID)
	return scanTreatment(row)
}

func scanTreatment(row pgx.Row) (*Treatment, error) {
	var t Treatment
	err := row.Scan(&t.ID, &t.AppointmentID, &t.Diagnosis, &t.Symptoms, &t.Prescription, &t.Notes, &t.FollowUpDate, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTreatmentNotFound
		}
		return nil, err
	}
	return &t, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
