// Package tasks is the asynchronous side of the system: CSV exports,
// doctor activity reports and appointment reminders run out of band so
// they never hold a booking request open. Tasks are enqueued with a task
// id the caller can poll, and handlers are idempotent under retry.
package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	TypeExportPatientHistory = "export:patient_history"
	TypeDoctorReport         = "report:doctor_summary"
	TypeAppointmentReminder  = "reminder:appointment"
	TypeReminderScan         = "reminder:scan"
)

type ExportPatientHistoryPayload struct {
	PatientID uuid.UUID `json:"patient_id"`
}

type DoctorReportPayload struct {
	DoctorID  uuid.UUID `json:"doctor_id"`
	StartDate string    `json:"start_date"` // 2006-01-02
	EndDate   string    `json:"end_date"`   // 2006-01-02
}

type AppointmentReminderPayload struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
}

func NewExportPatientHistoryTask(patientID uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(ExportPatientHistoryPayload{PatientID: patientID})
	if err != nil {
		return nil, fmt.Errorf("marshal export payload: %w", err)
	}
	return asynq.NewTask(TypeExportPatientHistory, payload), nil
}

func NewDoctorReportTask(doctorID uuid.UUID, startDate, endDate string) (*asynq.Task, error) {
	payload, err := json.Marshal(DoctorReportPayload{DoctorID: doctorID, StartDate: startDate, EndDate: endDate})
	if err != nil {
		return nil, fmt.Errorf("marshal report payload: %w", err)
	}
	return asynq.NewTask(TypeDoctorReport, payload), nil
}

func NewAppointmentReminderTask(appointmentID uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(AppointmentReminderPayload{AppointmentID: appointmentID})
	if err != nil {
		return nil, fmt.Errorf("marshal reminder payload: %w", err)
	}
	return asynq.NewTask(TypeAppointmentReminder, payload), nil
}

func NewReminderScanTask() *asynq.Task {
	return asynq.NewTask(TypeReminderScan, nil)
}
