package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/Dharmendra-07/Hospital-Management-System-V2/internal/scheduling"
)

type ValidateBookingRequest struct {
	DoctorID             string `json:"doctor_id"`
	PatientID            string `json:"patient_id"`
	Date                 string `json:"date"` // 2006-01-02
	Time                 string `json:"time"` // 15:04
	ExcludeAppointmentID string `json:"exclude_appointment_id,omitempty"`
}

type ValidateBookingResponse struct {
	Available bool   `json:"available"`
	Message   string `json:"message"`
}

type CreateAppointmentRequest struct {
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Reason    string `json:"reason"`
}

type RescheduleAppointmentRequest struct {
	PatientID string  `json:"patient_id"`
	Date      string  `json:"date"`
	Time      string  `json:"time"`
	Reason    *string `json:"reason,omitempty"`
}

type CancelAppointmentRequest struct {
	PatientID string `json:"patient_id"`
}

type SetStatusRequest struct {
	DoctorID string `json:"doctor_id"`
	Status   string `json:"status"`
}

type TreatmentRequest struct {
	DoctorID     string `json:"doctor_id"`
	Diagnosis    string `json:"diagnosis"`
	Symptoms     string `json:"symptoms"`
	Prescription string `json:"prescription"`
	Notes        string `json:"notes"`
	FollowUpDate string `json:"follow_up_date,omitempty"`
}

type SetAvailabilityRequest struct {
	DoctorID  string `json:"doctor_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Capacity  int    `json:"capacity"`
}

type ExportPatientHistoryRequest struct {
	PatientID string `json:"patient_id"`
}

type DoctorReportRequest struct {
	DoctorID  string `json:"doctor_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type ReminderRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type TaskAcceptedResponse struct {
	TaskID    string `json:"task_id"`
	StatusURL string `json:"status_url"`
}

type AppointmentResponse struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TreatmentResponse struct {
	ID           uuid.UUID `json:"id"`
	Diagnosis    string    `json:"diagnosis"`
	Symptoms     string    `json:"symptoms"`
	Prescription string    `json:"prescription"`
	Notes        string    `json:"notes"`
	FollowUpDate *string   `json:"follow_up_date,omitempty"`
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	DoctorName  string             `json:"doctor_name"`
	PatientName string             `json:"patient_name"`
	Treatment   *TreatmentResponse `json:"treatment,omitempty"`
}

type HistoryRecordResponse struct {
	ID           int64           `json:"id"`
	ChangedBy    uuid.UUID       `json:"changed_by"`
	ChangeType   string          `json:"change_type"`
	PreviousData json.RawMessage `json:"previous_data,omitempty"`
	NewData      json.RawMessage `json:"new_data,omitempty"`
	ChangeReason *string         `json:"change_reason,omitempty"`
	ChangedAt    time.Time       `json:"changed_at"`
}

type SlotResponse struct {
	ID          uuid.UUID `json:"id"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	Date        string    `json:"date"`
	StartTime   string    `json:"start_time"`
	EndTime     string    `json:"end_time"`
	Capacity    int       `json:"capacity"`
	IsAvailable bool      `json:"is_available"`
}

type OpenSlotResponse struct {
	ID             uuid.UUID `json:"id"`
	DoctorID       uuid.UUID `json:"doctor_id"`
	Date           string    `json:"date"`
	StartTime      string    `json:"start_time"`
	EndTime        string    `json:"end_time"`
	Capacity       int       `json:"capacity"`
	AvailableSpots int       `json:"available_spots"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		PatientID: a.PatientID,
		DoctorID:  a.DoctorID,
		Date:      a.Date.Format("2006-01-02"),
		Time:      a.Time.String(),
		Status:    string(a.Status),
		Reason:    a.Reason,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toDetailResponse(d *scheduling.AppointmentDetail) AppointmentDetailResponse {
	resp := AppointmentDetailResponse{
		AppointmentResponse: toAppointmentResponse(&d.Appointment),
		DoctorName:          d.DoctorName,
		PatientName:         d.PatientName,
	}
	if d.Treatment != nil {
		resp.Treatment = toTreatmentResponse(d.Treatment)
	}
	return resp
}

func toTreatmentResponse(t *scheduling.Treatment) *TreatmentResponse {
	resp := &TreatmentResponse{
		ID:           t.ID,
		Diagnosis:    t.Diagnosis,
		Symptoms:     t.Symptoms,
		Prescription: t.Prescription,
		Notes:        t.Notes,
	}
	if t.FollowUpDate != nil {
		s := t.FollowUpDate.Format("2006-01-02")
		resp.FollowUpDate = &s
	}
	return resp
}

func toHistoryResponse(records []scheduling.HistoryRecord) []HistoryRecordResponse {
	out := make([]HistoryRecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, HistoryRecordResponse{
			ID:           rec.ID,
			ChangedBy:    rec.ChangedBy,
			ChangeType:   string(rec.ChangeType),
			PreviousData: rec.PreviousData,
			NewData:      rec.NewData,
			ChangeReason: rec.ChangeReason,
			ChangedAt:    rec.ChangedAt,
		})
	}
	return out
}

func toSlotResponse(s *scheduling.AvailabilitySlot) SlotResponse {
	return SlotResponse{
		ID:          s.ID,
		DoctorID:    s.DoctorID,
		Date:        s.Date.Format("2006-01-02"),
		StartTime:   s.StartTime.String(),
		EndTime:     s.EndTime.String(),
		Capacity:    s.Capacity,
		IsAvailable: s.IsAvailable,
	}
}

func toOpenSlotResponse(slots []scheduling.OpenSlot) []OpenSlotResponse {
	out := make([]OpenSlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, OpenSlotResponse{
			ID:             s.Slot.ID,
			DoctorID:       s.Slot.DoctorID,
			Date:           s.Slot.Date.Format("2006-01-02"),
			StartTime:      s.Slot.StartTime.String(),
			EndTime:        s.Slot.EndTime.String(),
			Capacity:       s.Slot.Capacity,
			AvailableSpots: s.Remaining,
		})
	}
	return out
}
