package cache

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Key builders. Kept in one place so the invalidation patterns below stay
// in sync with the read keys.

func KeyDoctorSlots(doctorID uuid.UUID, from, to time.Time) string {
	return fmt.Sprintf("slots::doctor::%s::%s::%s", doctorID, from.Format("2006-01-02"), to.Format("2006-01-02"))
}

func KeyPatientAppointments(patientID uuid.UUID, status string) string {
	if status == "" {
		status = "any"
	}
	return fmt.Sprintf("appointments::patient::%s::status::%s", patientID, status)
}

func KeyDoctorAppointments(doctorID uuid.UUID, status string) string {
	if status == "" {
		status = "any"
	}
	return fmt.Sprintf("appointments::doctor::%s::status::%s", doctorID, status)
}

func KeyAppointmentDetail(id uuid.UUID) string {
	return fmt.Sprintf("appointments::detail::%s", id)
}

// Patterns for bulk invalidation.

func PatternDoctorSlots(doctorID uuid.UUID) string {
	return fmt.Sprintf("slots::doctor::%s::*", doctorID)
}

func PatternPatientAppointments(patientID uuid.UUID) string {
	return fmt.Sprintf("appointments::patient::%s::*", patientID)
}

func PatternDoctorAppointments(doctorID uuid.UUID) string {
	return fmt.Sprintf("appointments::doctor::%s::*", doctorID)
}

func PatternAppointmentDetail(id uuid.UUID) string {
	return fmt.Sprintf("appointments::detail::%s", id)
}
