package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrSlotNotFound        = errors.New("availability slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrTreatmentNotFound   = errors.New("treatment not found")
)

// AppointmentFilter narrows appointment listings. Nil fields match all.
type AppointmentFilter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    *AppointmentStatus
	From      *time.Time // inclusive appointment date lower bound
	To        *time.Time // inclusive appointment date upper bound
}

// Repository contains all DB interactions needed by the scheduling
// service and the conflict checker.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	// Availability slots
	GetSlot(ctx context.Context, doctorID uuid.UUID, date time.Time, start TimeOfDay) (*AvailabilitySlot, error)
	GetSlotByID(ctx context.Context, id uuid.UUID) (*AvailabilitySlot, error)
	UpsertSlot(ctx context.Context, slot *AvailabilitySlot) (*AvailabilitySlot, error)
	DeleteSlot(ctx context.Context, id uuid.UUID) error
	ListSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]AvailabilitySlot, error)

	// Conflict checker reads
	CountAppointmentsAt(ctx context.Context, doctorID uuid.UUID, date time.Time, at TimeOfDay, statuses []AppointmentStatus) (int, error)
	ListPatientScheduledOn(ctx context.Context, patientID uuid.UUID, date time.Time, excludeID *uuid.UUID) ([]Appointment, error)

	// Appointments
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	ListAppointments(ctx context.Context, filter AppointmentFilter) ([]AppointmentDetail, error)

	// Appointment writes run together with their history record in one
	// transaction: an appointment mutation without an audit entry must
	// never be observable.
	CreateAppointmentWithHistory(ctx context.Context, appt *Appointment, rec *HistoryRecord) (*Appointment, error)
	UpdateAppointmentWithHistory(ctx context.Context, appt *Appointment, rec *HistoryRecord) (*Appointment, error)

	// Audit trail
	HistoryFor(ctx context.Context, appointmentID uuid.UUID) ([]HistoryRecord, error)

	// Conflict log
	InsertConflict(ctx context.Context, c *ConflictLog) error
	ResolveConflicts(ctx context.Context, userID, doctorID uuid.UUID, date time.Time) (int64, error)
	ListConflicts(ctx context.Context, start, end *time.Time) ([]ConflictLog, error)

	// Treatments
	UpsertTreatment(ctx context.Context, t *Treatment) (*Treatment, error)
	GetTreatmentByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Treatment, error)
}
