package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Dharmendra-07/Hospital-Management-System-V2/internal/cache"
	"github.com/Dharmendra-07/Hospital-Management-System-V2/internal/config"
	"github.com/Dharmendra-07/Hospital-Management-System-V2/internal/notify"
	redisclient "github.com/Dharmendra-07/Hospital-Management-System-V2/internal/redis"
)

var (
	ErrModificationWindow      = errors.New("appointment can no longer be modified this close to its start")
	ErrAlreadyCancelled        = errors.New("appointment is already cancelled")
	ErrInvalidStatus           = errors.New("invalid appointment status")
	ErrBookingContended        = errors.New("slot is currently being booked, please retry")
	ErrSlotInUse               = errors.New("availability slot has upcoming scheduled appointments")
	ErrAppointmentNotCompleted = errors.New("treatment can only be recorded for a completed appointment")
	ErrInvalidSlot             = errors.New("slot must end after it starts and hold at least one patient")
)

// CacheInvalidator removes cached views after a write. The cache is
// advisory; invalidation failures are absorbed by the implementation.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, patterns ...string)
}

// Service owns the appointment lifecycle: it validates bookings, holds
// the per-slot lock across the capacity check and the insert, writes the
// audit trail in the same transaction as the appointment, and issues
// cache invalidation and notifications after the fact.
type Service struct {
	repo     Repository
	checker  *Checker
	locker   redisclient.Locker
	cache    CacheInvalidator
	notifier notify.Notifier
	cutoff   time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, invalidator CacheInvalidator, notifier notify.Notifier, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		checker:  NewChecker(repo, cfg.BookingHorizonDays, cfg.PatientBuffer),
		locker:   locker,
		cache:    invalidator,
		notifier: notifier,
		cutoff:   cfg.ModificationCutoff,
		log:      log.With().Str("component", "scheduling").Logger(),
		now:      time.Now,
	}
}

// ValidateBooking runs the conflict checker and records rejected
// attempts in the conflict log. Availability, capacity and patient
// conflicts are logged; temporal-bounds rejections are not.
func (s *Service) ValidateBooking(ctx context.Context, doctorID, patientID uuid.UUID, date time.Time, at TimeOfDay, excludeID *uuid.UUID) error {
	err := s.checker.Check(ctx, doctorID, patientID, date, at, excludeID)
	var ce *ConflictError
	if errors.As(err, &ce) {
		s.logConflict(ctx, ce, patientID, doctorID, patientID, date, at)
	}
	return err
}

type CreateAppointmentParams struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Date      time.Time
	Time      TimeOfDay
	Reason    string
}

// CreateAppointment books a slot for a patient. The capacity check and
// the insert run inside a lock keyed by (doctor, date, time) so two
// concurrent requests cannot both pass the check and overbook the slot.
func (s *Service) CreateAppointment(ctx context.Context, p CreateAppointmentParams) (*Appointment, error) {
	patient, err := s.repo.GetPatientByID(ctx, p.PatientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	doctor, err := s.repo.GetDoctorByID(ctx, p.DoctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	date := DateOnly(p.Date)

	var created *Appointment
	err = s.locker.WithLock(ctx, bookingLockKey(p.DoctorID, date, p.Time), func(lockCtx context.Context) error {
		if err := s.ValidateBooking(lockCtx, p.DoctorID, p.PatientID, date, p.Time, nil); err != nil {
			return err
		}

		appt := &Appointment{
			ID:        uuid.New(),
			PatientID: p.PatientID,
			DoctorID:  p.DoctorID,
			Date:      date,
			Time:      p.Time,
			Status:    StatusScheduled,
			Reason:    p.Reason,
		}
		rec := &HistoryRecord{
			AppointmentID: appt.ID,
			ChangedBy:     p.PatientID,
			ChangeType:    ChangeCreated,
			NewData:       Snapshot(appt),
		}

		out, err := s.repo.CreateAppointmentWithHistory(lockCtx, appt, rec)
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		created = out
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingContended
		}
		return nil, err
	}

	s.resolveConflicts(ctx, created.PatientID, created.DoctorID, created.Date)
	s.invalidateAppointmentCaches(ctx, created)
	s.notifier.BookingConfirmed(ctx, notification(created, patient, doctor))

	return created, nil
}

type RescheduleParams struct {
	AppointmentID uuid.UUID
	PatientID     uuid.UUID
	Date          time.Time
	Time          TimeOfDay
	Reason        *string
}

// RescheduleAppointment moves a patient's appointment to a new slot.
// Permitted only while the current slot is still outside the
// modification cutoff; the new slot is re-validated with the appointment
// excluded from the patient-conflict checks.
func (s *Service) RescheduleAppointment(ctx context.Context, p RescheduleParams) (*Appointment, error) {
	appt, err := s.ownedByPatient(ctx, p.AppointmentID, p.PatientID)
	if err != nil {
		return nil, err
	}
	if !s.now().Before(appt.StartsAt().Add(-s.cutoff)) {
		return nil, ErrModificationWindow
	}

	prev := Snapshot(appt)
	date := DateOnly(p.Date)

	var updated *Appointment
	err = s.locker.WithLock(ctx, bookingLockKey(appt.DoctorID, date, p.Time), func(lockCtx context.Context) error {
		excludeID := appt.ID
		if err := s.ValidateBooking(lockCtx, appt.DoctorID, appt.PatientID, date, p.Time, &excludeID); err != nil {
			return err
		}

		appt.Date = date
		appt.Time = p.Time
		if p.Reason != nil {
			appt.Reason = *p.Reason
		}
		rec := &HistoryRecord{
			AppointmentID: appt.ID,
			ChangedBy:     p.PatientID,
			ChangeType:    ChangeUpdated,
			PreviousData:  prev,
			NewData:       Snapshot(appt),
		}

		out, err := s.repo.UpdateAppointmentWithHistory(lockCtx, appt, rec)
		if err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		updated = out
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingContended
		}
		return nil, err
	}

	s.resolveConflicts(ctx, updated.PatientID, updated.DoctorID, updated.Date)
	s.invalidateAppointmentCaches(ctx, updated)

	return updated, nil
}

// CancelAppointment is the patient-driven cancellation. Cancellation is
// a status change, never a row deletion, so the audit trail stays
// reconstructible. Cancelling twice is rejected, not silently accepted.
func (s *Service) CancelAppointment(ctx context.Context, appointmentID, patientID uuid.UUID) (*Appointment, error) {
	appt, err := s.ownedByPatient(ctx, appointmentID, patientID)
	if err != nil {
		return nil, err
	}
	if !s.now().Before(appt.StartsAt().Add(-s.cutoff)) {
		return nil, ErrModificationWindow
	}
	if appt.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	prev := Snapshot(appt)
	appt.Status = StatusCancelled
	rec := &HistoryRecord{
		AppointmentID: appt.ID,
		ChangedBy:     patientID,
		ChangeType:    ChangeCancelled,
		PreviousData:  prev,
		NewData:       Snapshot(appt),
	}

	updated, err := s.repo.UpdateAppointmentWithHistory(ctx, appt, rec)
	if err != nil {
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.invalidateAppointmentCaches(ctx, updated)
	return updated, nil
}

// SetAppointmentStatus is the doctor-driven transition. Doctors record
// outcomes (completed, no_show, cancelled) whenever they happen, so
// there is no time-window restriction here, unlike patient-driven
// changes.
func (s *Service) SetAppointmentStatus(ctx context.Context, appointmentID, doctorID uuid.UUID, status AppointmentStatus) (*Appointment, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	appt, err := s.ownedByDoctor(ctx, appointmentID, doctorID)
	if err != nil {
		return nil, err
	}

	prev := Snapshot(appt)
	appt.Status = status
	rec := &HistoryRecord{
		AppointmentID: appt.ID,
		ChangedBy:     doctorID,
		ChangeType:    ChangeStatusChanged,
		PreviousData:  prev,
		NewData:       Snapshot(appt),
	}

	updated, err := s.repo.UpdateAppointmentWithHistory(ctx, appt, rec)
	if err != nil {
		return nil, fmt.Errorf("set appointment status: %w", err)
	}

	s.invalidateAppointmentCaches(ctx, updated)
	return updated, nil
}

type TreatmentParams struct {
	AppointmentID uuid.UUID
	DoctorID      uuid.UUID
	Diagnosis     string
	Symptoms      string
	Prescription  string
	Notes         string
	FollowUpDate  *time.Time
}

// RecordTreatment creates or updates the treatment attached to a
// completed appointment.
func (s *Service) RecordTreatment(ctx context.Context, p TreatmentParams) (*Treatment, error) {
	appt, err := s.ownedByDoctor(ctx, p.AppointmentID, p.DoctorID)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusCompleted {
		return nil, ErrAppointmentNotCompleted
	}

	treatment := &Treatment{
		ID:            uuid.New(),
		AppointmentID: appt.ID,
		Diagnosis:     p.Diagnosis,
		Symptoms:      p.Symptoms,
		Prescription:  p.Prescription,
		Notes:         p.Notes,
		FollowUpDate:  p.FollowUpDate,
	}

	out, err := s.repo.UpsertTreatment(ctx, treatment)
	if err != nil {
		return nil, fmt.Errorf("record treatment: %w", err)
	}

	s.cache.Invalidate(ctx, cache.PatternAppointmentDetail(appt.ID), cache.PatternPatientAppointments(appt.PatientID))
	return out, nil
}

type AvailabilityParams struct {
	DoctorID  uuid.UUID
	Date      time.Time
	StartTime TimeOfDay
	EndTime   TimeOfDay
	Capacity  int
}

// SetAvailability declares or updates a bookable slot. Upsert by the
// (doctor, date, start_time) natural key: re-declaring a slot adjusts
// its end time and capacity and re-opens it.
func (s *Service) SetAvailability(ctx context.Context, p AvailabilityParams) (*AvailabilitySlot, error) {
	if p.EndTime <= p.StartTime || p.Capacity < 1 {
		return nil, ErrInvalidSlot
	}
	if _, err := s.repo.GetDoctorByID(ctx, p.DoctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	slot := &AvailabilitySlot{
		ID:          uuid.New(),
		DoctorID:    p.DoctorID,
		Date:        DateOnly(p.Date),
		StartTime:   p.StartTime,
		EndTime:     p.EndTime,
		Capacity:    p.Capacity,
		IsAvailable: true,
	}

	out, err := s.repo.UpsertSlot(ctx, slot)
	if err != nil {
		return nil, fmt.Errorf("upsert slot: %w", err)
	}

	s.cache.Invalidate(ctx, cache.PatternDoctorSlots(p.DoctorID))
	return out, nil
}

// RemoveAvailability deletes a slot, refusing while the slot still has
// upcoming scheduled appointments.
func (s *Service) RemoveAvailability(ctx context.Context, slotID, doctorID uuid.UUID) error {
	slot, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return err
		}
		return fmt.Errorf("load slot: %w", err)
	}
	if slot.DoctorID != doctorID {
		return ErrSlotNotFound
	}

	if !slot.Date.Before(DateOnly(s.now())) {
		booked, err := s.repo.CountAppointmentsAt(ctx, doctorID, slot.Date, slot.StartTime, []AppointmentStatus{StatusScheduled})
		if err != nil {
			return fmt.Errorf("count slot appointments: %w", err)
		}
		if booked > 0 {
			return ErrSlotInUse
		}
	}

	if err := s.repo.DeleteSlot(ctx, slotID); err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}

	s.cache.Invalidate(ctx, cache.PatternDoctorSlots(doctorID))
	return nil
}

// AppointmentHistory returns the audit trail for an appointment, newest
// first.
func (s *Service) AppointmentHistory(ctx context.Context, appointmentID uuid.UUID) ([]HistoryRecord, error) {
	if _, err := s.repo.GetAppointmentByID(ctx, appointmentID); err != nil {
		return nil, err
	}
	records, err := s.repo.HistoryFor(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment history: %w", err)
	}
	return records, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	return s.repo.GetAppointmentDetail(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, filter AppointmentFilter) ([]AppointmentDetail, error) {
	return s.repo.ListAppointments(ctx, filter)
}

// ListOpenSlots returns a doctor's bookable slots in a date range with
// their remaining capacity. Fully booked slots are omitted.
func (s *Service) ListOpenSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]OpenSlot, error) {
	slots, err := s.repo.ListSlots(ctx, doctorID, DateOnly(from), DateOnly(to))
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}

	var open []OpenSlot
	for _, slot := range slots {
		if !slot.IsAvailable {
			continue
		}
		booked, err := s.repo.CountAppointmentsAt(ctx, doctorID, slot.Date, slot.StartTime, []AppointmentStatus{StatusScheduled, StatusCompleted})
		if err != nil {
			return nil, fmt.Errorf("count slot appointments: %w", err)
		}
		if remaining := slot.Capacity - booked; remaining > 0 {
			open = append(open, OpenSlot{Slot: slot, Remaining: remaining})
		}
	}
	return open, nil
}

// Helpers

func bookingLockKey(doctorID uuid.UUID, date time.Time, at TimeOfDay) string {
	return fmt.Sprintf("lock:booking:%s:%s:%s", doctorID, date.Format("2006-01-02"), at)
}

// ownedByPatient loads an appointment and hides it from anyone but its
// patient: a mismatch is indistinguishable from absence.
func (s *Service) ownedByPatient(ctx context.Context, appointmentID, patientID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appt.PatientID != patientID {
		return nil, ErrAppointmentNotFound
	}
	return appt, nil
}

func (s *Service) ownedByDoctor(ctx context.Context, appointmentID, doctorID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appt.DoctorID != doctorID {
		return nil, ErrAppointmentNotFound
	}
	return appt, nil
}

func loggableConflict(t ConflictType) bool {
	switch t {
	case ConflictDoctorUnavailable, ConflictSlotFull, ConflictPatient:
		return true
	}
	return false
}

// logConflict records a rejected attempt, best-effort: a failure here is
// logged and swallowed, it must not fail the booking attempt that
// triggered it.
func (s *Service) logConflict(ctx context.Context, ce *ConflictError, userID, doctorID, patientID uuid.UUID, date time.Time, at TimeOfDay) {
	if !loggableConflict(ce.Type) {
		return
	}

	d := doctorID
	p := patientID
	entry := &ConflictLog{
		Type:          ce.Type,
		UserID:        userID,
		AttemptedDate: DateOnly(date),
		AttemptedTime: at,
		DoctorID:      &d,
		PatientID:     &p,
	}

	if err := s.repo.InsertConflict(ctx, entry); err != nil {
		s.log.Error().Err(err).Str("conflict_type", string(ce.Type)).Msg("failed to record conflict log")
	}
}

// resolveConflicts marks the user's earlier unresolved conflicts for the
// same doctor and date as resolved after a successful booking.
// Best-effort.
func (s *Service) resolveConflicts(ctx context.Context, patientID, doctorID uuid.UUID, date time.Time) {
	n, err := s.repo.ResolveConflicts(ctx, patientID, doctorID, date)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to resolve conflict logs")
		return
	}
	if n > 0 {
		s.log.Info().Int64("count", n).Msg("conflict logs resolved by successful booking")
	}
}

func (s *Service) invalidateAppointmentCaches(ctx context.Context, appt *Appointment) {
	s.cache.Invalidate(ctx,
		cache.PatternPatientAppointments(appt.PatientID),
		cache.PatternDoctorAppointments(appt.DoctorID),
		cache.PatternAppointmentDetail(appt.ID),
		cache.PatternDoctorSlots(appt.DoctorID),
	)
}

func notification(appt *Appointment, patient *Patient, doctor *Doctor) notify.Notification {
	email := ""
	if patient.Email != nil {
		email = *patient.Email
	}
	return notify.Notification{
		PatientName:  patient.Name,
		PatientEmail: email,
		DoctorName:   doctor.Name,
		Date:         appt.Date.Format("2006-01-02"),
		Time:         appt.Time.String(),
	}
}
