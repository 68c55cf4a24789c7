package scheduling

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusNoShow    AppointmentStatus = "no_show"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// ChangeType classifies an audit-trail entry. Closed set.
type ChangeType string

const (
	ChangeCreated       ChangeType = "created"
	ChangeUpdated       ChangeType = "updated"
	ChangeCancelled     ChangeType = "cancelled"
	ChangeStatusChanged ChangeType = "status_changed"
)

type ConflictType string

const (
	ConflictDoctorUnavailable ConflictType = "doctor_unavailable"
	ConflictSlotFull          ConflictType = "slot_full"
	ConflictPatient           ConflictType = "patient_conflict"
	ConflictPastDate          ConflictType = "past_date"
	ConflictTooFarAhead       ConflictType = "too_far_ahead"
)

// ConflictError is the structured rejection returned by booking
// validation. Callers branch on the error, not the reason text; the
// reason is for humans.
type ConflictError struct {
	Type   ConflictType
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

// TimeOfDay is a clock time with minute precision, stored as minutes
// since midnight. Appointments and slots key on (date, TimeOfDay), which
// is what makes slot identity independent of time zones and DST shifts.
type TimeOfDay int

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Microseconds converts to the wire representation of a Postgres TIME.
func (t TimeOfDay) Microseconds() int64 {
	return int64(t) * 60 * 1_000_000
}

func TimeOfDayFromMicroseconds(us int64) TimeOfDay {
	return TimeOfDay(us / 1_000_000 / 60)
}

// On combines the time of day with a calendar date in local time.
func (t TimeOfDay) On(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), int(t)/60, int(t)%60, 0, 0, time.Local)
}

// DateOnly truncates to midnight, discarding clock time and zone offset.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AvailabilitySlot is a doctor-declared bookable interval. Natural key:
// (doctor_id, date, start_time).
type AvailabilitySlot struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	Date        time.Time
	StartTime   TimeOfDay
	EndTime     TimeOfDay
	Capacity    int
	IsAvailable bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Appointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Date      time.Time
	Time      TimeOfDay
	Status    AppointmentStatus
	Reason    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StartsAt is the combined appointment date-time in local time.
func (a *Appointment) StartsAt() time.Time {
	return a.Time.On(a.Date)
}

// Treatment holds the clinical outcome of a completed appointment.
// One per appointment.
type Treatment struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Diagnosis     string
	Symptoms      string
	Prescription  string
	Notes         string
	FollowUpDate  *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HistoryRecord is one entry in the append-only audit trail. Records are
// never edited or removed.
type HistoryRecord struct {
	ID            int64
	AppointmentID uuid.UUID
	ChangedBy     uuid.UUID
	ChangeType    ChangeType
	PreviousData  []byte
	NewData       []byte
	ChangeReason  *string
	ChangedAt     time.Time
}

// ConflictLog is one rejected booking attempt. Append-only; the resolved
// flag is flipped later if the same user successfully rebooks with the
// same doctor on the same date.
type ConflictLog struct {
	ID            int64
	Type          ConflictType
	UserID        uuid.UUID
	AttemptedDate time.Time
	AttemptedTime TimeOfDay
	DoctorID      *uuid.UUID
	PatientID     *uuid.UUID
	Resolved      bool
	ResolvedAt    *time.Time
	CreatedAt     time.Time
}

// AppointmentDetail is an appointment hydrated with the names a list or
// detail view needs. No lazy traversal: the repository materializes it.
type AppointmentDetail struct {
	Appointment
	DoctorName  string
	PatientName string
	Treatment   *Treatment
}

// OpenSlot is an availability slot with its remaining capacity.
type OpenSlot struct {
	Slot      AvailabilitySlot
	Remaining int
}

// snapshot captures the mutable appointment fields for the audit trail.
// Deliberately not a full entity dump.
type snapshot struct {
	Status AppointmentStatus `json:"status"`
	Date   string            `json:"date"`
	Time   string            `json:"time"`
	Reason string            `json:"reason"`
}

// Snapshot serializes the mutable fields of an appointment.
func Snapshot(a *Appointment) []byte {
	data, err := json.Marshal(snapshot{
		Status: a.Status,
		Date:   a.Date.Format("2006-01-02"),
		Time:   a.Time.String(),
		Reason: a.Reason,
	})
	if err != nil {
		return nil
	}
	return data
}
