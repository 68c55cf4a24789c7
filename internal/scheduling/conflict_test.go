package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestChecker(repo *memRepo) *Checker {
	c := NewChecker(repo, 90, 2*time.Hour)
	c.now = func() time.Time { return testClock }
	return c
}

func assertConflict(t *testing.T, err error, wantType ConflictType, wantReason string) {
	t.Helper()
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("want *ConflictError, got %v", err)
	}
	if ce.Type != wantType {
		t.Fatalf("conflict type = %q, want %q", ce.Type, wantType)
	}
	if ce.Reason != wantReason {
		t.Fatalf("conflict reason = %q, want %q", ce.Reason, wantReason)
	}
}

func TestCheckNoSlotDeclared(t *testing.T) {
	repo := newMemRepo()
	checker := newTestChecker(repo)
	doctorID := repo.addDoctor("Dr. Wong")
	patientID := repo.addPatient("Ada")

	err := checker.Check(context.Background(), doctorID, patientID, date(2026, time.September, 2), mustTime(t, "10:00"), nil)
	assertConflict(t, err, ConflictDoctorUnavailable, "doctor is not available at this time slot")
}

func TestCheckClosedSlot(t *testing.T) {
	repo := newMemRepo()
	checker := newTestChecker(repo)
	doctorID := repo.addDoctor("Dr. Wong")
	patientID := repo.addPatient("Ada")

	day := date(2026, time.September, 2)
	slotID := repo.addSlot(doctorID, day, mustTime(t, "10:00"), mustTime(t, "10:30"), 1)
	slot := repo.slots[slotID]
	slot.IsAvailable = false
	repo.slots[slotID] = slot

	err := checker.Check(context.Background(), doctorID, patientID, day, mustTime(t, "10:00"), nil)
	assertConflict(t, err, ConflictDoctorUnavailable, "doctor is not available at this time slot")
}

func TestCheckSlotCapacity(t *testing.T) {
	repo := newMemRepo()
	checker := newTestChecker(repo)
	doctorID := repo.addDoctor("Dr. Wong")
	patientID := repo.addPatient("Ada")
	other := repo.addPatient("Ben")

	day := date(2026, time.September, 2)
	at := mustTime(t, "10:00")
	repo.addSlot(doctorID, day, at, mustTime(t, "10:30"), 1)

	// Completed appointments still occupy the slot.
	occupying := repo.addAppointment(other, doctorID, day, at, StatusCompleted)

	err := checker.Check(context.Background(), doctorID, patientID, day, at, nil)
	assertConflict(t, err, ConflictSlotFull, "this time slot is fully booked")

	// A cancelled appointment frees it.
	appt := repo.appointments[occupying]
	appt.Status = StatusCancelled
	repo.appointments[occupying] = appt

	if err := checker.Check(context.Background(), doctorID, patientID, day, at, nil); err != nil {
		t.Fatalf("expected free slot after cancellation, got %v", err)
	}
}

func TestCheckPatientExactConflict(t *testing.T) {
	repo := newMemRepo()
	checker := newTestChecker(repo)
	doctorA := repo.addDoctor("Dr. Wong")
	doctorB := repo.addDoctor("Dr. Osei")
	patientID := repo.addPatient("Ada")

	day := date(2026, time.September, 2)
	at := mustTime(t, "10:00")
	repo.addSlot(doctorA, day, at, mustTime(t, "10:30"), 5)
	repo.addAppointment(patientID, doctorB, day, at, StatusScheduled)

	err := checker.Check(context.Background(), doctorA, patientID, day, at, nil)
	assertConflict(t, err, ConflictPatient, "you already have an appointment scheduled at this time")
}

func TestCheckPatientBufferConflict(t *testing.T) {
	repo := newMemRepo()
	checker := newTestChecker(repo)
	doctorA := repo.addDoctor("Dr. Wong")
	doctorB := repo.addDoctor("Dr. Osei")
	patientID := repo.addPatient("Ada")

	day := date(2026, time.September, 2)
	repo.addSlot(doctorA, day, mustTime(t, "10:00"), mustTime(t, "10:30"), 5)

	// 90 minutes away, inside the 2 hour buffer.
	repo.addAppointment(patientID, doctorB, day, mustTime(t, "11:30"), StatusScheduled)

	err := checker.Check(context.Background(), doctorA, patientID, day, mustTime(t, "10:00"), nil)
	assertConflict(t, err, ConflictPatient, "you have another appointment within 2 hours of this time")
}

func TestCheckPatientBufferBoundary(t *testing.T) {
	repo := newMemRepo()
	checker := newTestChecker(repo)
	doctorA := repo.addDoctor("Dr. Wong")
	doctorB := repo.addDoctor("Dr. Osei")
	patientID := repo.addPatient("Ada")

	day := date(2026, time.September, 2)
	repo.addSlot(doctorA, day, mustTime(t, "10:00"), mustTime(t, "10:30"), 5)

	// Exactly on the window edge conflicts, one minute past it does not.
	apptID := repo.addAppointment(patientID, doctorB, day, mustTime(t, "12:00"), StatusScheduled)
	err := checker.Check(context.Background(), doctorA, patientID, day, mustTime(t, "10:00"), nil)
	assertConflict(t, err, ConflictPatient, "you have another appointment within 2 hours of this time")

	appt := repo.appointments[apptID]
	appt.Time = mustTime(t, "12:01")
	repo.appointments[apptID] = appt

	if err := checker.Check(context.Background(), doctorA, patientID, day, mustTime(t, "10:00"), nil); err != nil {
		t.Fatalf("expected no conflict outside buffer, got %v", err)
	}
}

func TestCheckBufferWindowDoesNotCrossMidnight(t *testing.T) {
	repo := newMemRepo()
	checker := newTestChecker(repo)
	doctorA := repo.addDoctor("Dr. Wong")
	doctorB := repo.addDoctor("Dr. Osei")
	patientID := repo.addPatient("Ada")

	day := date(2026, time.September, 2)
	repo.addSlot(doctorA, day, mustTime(t, "00:30"), mustTime(t, "01:00"), 5)
	repo.addAppointment(patientID, doctorB, day, mustTime(t, "23:30"), StatusScheduled)

	// The spacing window around 00:30 wraps past midnight and collapses,
	// so the 23:30 appointment is not flagged.
	if err := checker.Check(context.Background(), doctorA, patientID, day, mustTime(t, "00:30"), nil); err != nil {
		t.Fatalf("expected no conflict across midnight, got %v", err)
	}
}

func TestCheckPastDate(t *testing.T) {
	repo := newMemRepo()
	checker := newTestChecker(repo)
	doctorID := repo.addDoctor("Dr. Wong")
	patientID := repo.addPatient("Ada")

	// Clock is 08:00 on Sep 1; a 07:00 slot that day already started.
	day := date(2026, time.September, 1)
	repo.addSlot(doctorID, day, mustTime(t, "07:00"), mustTime(t, "07:30"), 1)

	err := checker.Check(context.Background(), doctorID, patientID, day, mustTime(t, "07:00"), nil)
	assertConflict(t, err, ConflictPastDate, "cannot book appointments in the past")
}

func TestCheckTooFarAhead(t *testing.T) {
	repo := newMemRepo()
	checker := newTestChecker(repo)
	doctorID := repo.addDoctor("Dr. Wong")
	patientID := repo.addPatient("Ada")

	day := DateOnly(testClock.AddDate(0, 0, 91))
	repo.addSlot(doctorID, day, mustTime(t, "10:00"), mustTime(t, "10:30"), 1)

	err := checker.Check(context.Background(), doctorID, patientID, day, mustTime(t, "10:00"), nil)
	assertConflict(t, err, ConflictTooFarAhead, "cannot book appointments more than 3 months in advance")
}

func TestCheckExcludesOwnAppointment(t *testing.T) {
	repo := newMemRepo()
	checker := newTestChecker(repo)
	doctorID := repo.addDoctor("Dr. Wong")
	patientID := repo.addPatient("Ada")

	day := date(2026, time.September, 2)
	repo.addSlot(doctorID, day, mustTime(t, "10:30"), mustTime(t, "11:00"), 5)
	ownID := repo.addAppointment(patientID, doctorID, day, mustTime(t, "10:00"), StatusScheduled)

	// Re-validating a move to 10:30 trips over the existing 10:00 row
	// unless that row is excluded.
	err := checker.Check(context.Background(), doctorID, patientID, day, mustTime(t, "10:30"), nil)
	assertConflict(t, err, ConflictPatient, "you have another appointment within 2 hours of this time")

	if err := checker.Check(context.Background(), doctorID, patientID, day, mustTime(t, "10:30"), &ownID); err != nil {
		t.Fatalf("expected no conflict with own appointment excluded, got %v", err)
	}
}

func TestCheckRuleOrder(t *testing.T) {
	repo := newMemRepo()
	checker := newTestChecker(repo)
	doctorID := repo.addDoctor("Dr. Wong")
	patientID := repo.addPatient("Ada")

	// A past date with no declared slot fails on availability first:
	// the temporal bounds are checked last.
	err := checker.Check(context.Background(), doctorID, patientID, date(2026, time.August, 1), mustTime(t, "10:00"), nil)
	assertConflict(t, err, ConflictDoctorUnavailable, "doctor is not available at this time slot")
}
