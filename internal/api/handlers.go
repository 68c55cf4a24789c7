package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Dharmendra-07/Hospital-Management-System-V2/internal/cache"
	"github.com/Dharmendra-07/Hospital-Management-System-V2/internal/scheduling"
	"github.com/Dharmendra-07/Hospital-Management-System-V2/internal/tasks"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

func parseUUID(w http.ResponseWriter, field, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", field+" must be a valid uuid")
		return uuid.Nil, false
	}
	return id, true
}

func parseDate(w http.ResponseWriter, field, raw string) (time.Time, bool) {
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", field+" must be formatted as YYYY-MM-DD")
		return time.Time{}, false
	}
	return d, true
}

func parseClock(w http.ResponseWriter, field, raw string) (scheduling.TimeOfDay, bool) {
	t, err := scheduling.ParseTimeOfDay(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", field+" must be formatted as HH:MM")
		return 0, false
	}
	return t, true
}

// writeServiceError maps scheduling errors onto the HTTP surface.
// Booking conflicts are 409 with the conflict type as the error code so
// clients can branch without parsing the human-readable reason.
func writeServiceError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var ce *scheduling.ConflictError
	switch {
	case errors.As(err, &ce):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: string(ce.Type), Details: ce.Reason})
	case errors.Is(err, scheduling.ErrDoctorNotFound),
		errors.Is(err, scheduling.ErrPatientNotFound),
		errors.Is(err, scheduling.ErrSlotNotFound),
		errors.Is(err, scheduling.ErrAppointmentNotFound),
		errors.Is(err, scheduling.ErrTreatmentNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, scheduling.ErrModificationWindow):
		writeError(w, http.StatusConflict, "modification_window_closed", err.Error())
	case errors.Is(err, scheduling.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, "already_cancelled", err.Error())
	case errors.Is(err, scheduling.ErrBookingContended):
		writeError(w, http.StatusConflict, "booking_contended", err.Error())
	case errors.Is(err, scheduling.ErrSlotInUse):
		writeError(w, http.StatusConflict, "slot_in_use", err.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotCompleted):
		writeError(w, http.StatusConflict, "appointment_not_completed", err.Error())
	case errors.Is(err, scheduling.ErrInvalidStatus),
		errors.Is(err, scheduling.ErrInvalidSlot):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}

func createAppointmentHandler(svc *scheduling.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		patientID, ok := parseUUID(w, "patient_id", req.PatientID)
		if !ok {
			return
		}
		doctorID, ok := parseUUID(w, "doctor_id", req.DoctorID)
		if !ok {
			return
		}
		date, ok := parseDate(w, "date", req.Date)
		if !ok {
			return
		}
		at, ok := parseClock(w, "time", req.Time)
		if !ok {
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), scheduling.CreateAppointmentParams{
			PatientID: patientID,
			DoctorID:  doctorID,
			Date:      date,
			Time:      at,
			Reason:    req.Reason,
		})
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func validateBookingHandler(svc *scheduling.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ValidateBookingRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		doctorID, ok := parseUUID(w, "doctor_id", req.DoctorID)
		if !ok {
			return
		}
		patientID, ok := parseUUID(w, "patient_id", req.PatientID)
		if !ok {
			return
		}
		date, ok := parseDate(w, "date", req.Date)
		if !ok {
			return
		}
		at, ok := parseClock(w, "time", req.Time)
		if !ok {
			return
		}
		var excludeID *uuid.UUID
		if req.ExcludeAppointmentID != "" {
			id, ok := parseUUID(w, "exclude_appointment_id", req.ExcludeAppointmentID)
			if !ok {
				return
			}
			excludeID = &id
		}

		err := svc.ValidateBooking(r.Context(), doctorID, patientID, date, at, excludeID)
		var ce *scheduling.ConflictError
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, ValidateBookingResponse{Available: true, Message: "slot is available"})
		case errors.As(err, &ce):
			writeJSON(w, http.StatusOK, ValidateBookingResponse{Available: false, Message: ce.Reason})
		default:
			writeServiceError(w, log, err)
		}
	}
}

func getAppointmentHandler(svc *scheduling.Service, c *cache.Cache, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUID(w, "id", chi.URLParam(r, "id"))
		if !ok {
			return
		}

		data, err := c.GetOrCompute(r.Context(), cache.KeyAppointmentDetail(id), 0, func(ctx context.Context) ([]byte, error) {
			detail, err := svc.GetAppointment(ctx, id)
			if err != nil {
				return nil, err
			}
			return json.Marshal(toDetailResponse(detail))
		})
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		writeRaw(w, http.StatusOK, "application/json", data)
	}
}

func listAppointmentsHandler(svc *scheduling.Service, c *cache.Cache, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var filter scheduling.AppointmentFilter

		if raw := q.Get("patient_id"); raw != "" {
			id, ok := parseUUID(w, "patient_id", raw)
			if !ok {
				return
			}
			filter.PatientID = &id
		}
		if raw := q.Get("doctor_id"); raw != "" {
			id, ok := parseUUID(w, "doctor_id", raw)
			if !ok {
				return
			}
			filter.DoctorID = &id
		}
		status := q.Get("status")
		if status != "" {
			s := scheduling.AppointmentStatus(status)
			if !s.Valid() {
				writeError(w, http.StatusBadRequest, "invalid_request", "unknown status "+status)
				return
			}
			filter.Status = &s
		}
		if raw := q.Get("from"); raw != "" {
			d, ok := parseDate(w, "from", raw)
			if !ok {
				return
			}
			filter.From = &d
		}
		if raw := q.Get("to"); raw != "" {
			d, ok := parseDate(w, "to", raw)
			if !ok {
				return
			}
			filter.To = &d
		}

		compute := func(ctx context.Context) ([]byte, error) {
			details, err := svc.ListAppointments(ctx, filter)
			if err != nil {
				return nil, err
			}
			out := make([]AppointmentDetailResponse, 0, len(details))
			for i := range details {
				out = append(out, toDetailResponse(&details[i]))
			}
			return json.Marshal(out)
		}

		// Only the two common list shapes are cached; date-windowed and
		// unfiltered listings always hit the database.
		key := ""
		if filter.From == nil && filter.To == nil {
			switch {
			case filter.PatientID != nil && filter.DoctorID == nil:
				key = cache.KeyPatientAppointments(*filter.PatientID, status)
			case filter.DoctorID != nil && filter.PatientID == nil:
				key = cache.KeyDoctorAppointments(*filter.DoctorID, status)
			}
		}

		var data []byte
		var err error
		if key != "" {
			data, err = c.GetOrCompute(r.Context(), key, 0, compute)
		} else {
			data, err = compute(r.Context())
		}
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		writeRaw(w, http.StatusOK, "application/json", data)
	}
}

func rescheduleAppointmentHandler(svc *scheduling.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUID(w, "id", chi.URLParam(r, "id"))
		if !ok {
			return
		}
		var req RescheduleAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		patientID, ok := parseUUID(w, "patient_id", req.PatientID)
		if !ok {
			return
		}
		date, ok := parseDate(w, "date", req.Date)
		if !ok {
			return
		}
		at, ok := parseClock(w, "time", req.Time)
		if !ok {
			return
		}

		appt, err := svc.RescheduleAppointment(r.Context(), scheduling.RescheduleParams{
			AppointmentID: id,
			PatientID:     patientID,
			Date:          date,
			Time:          at,
			Reason:        req.Reason,
		})
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *scheduling.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUID(w, "id", chi.URLParam(r, "id"))
		if !ok {
			return
		}
		var req CancelAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		patientID, ok := parseUUID(w, "patient_id", req.PatientID)
		if !ok {
			return
		}

		appt, err := svc.CancelAppointment(r.Context(), id, patientID)
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func setStatusHandler(svc *scheduling.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUID(w, "id", chi.URLParam(r, "id"))
		if !ok {
			return
		}
		var req SetStatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		doctorID, ok := parseUUID(w, "doctor_id", req.DoctorID)
		if !ok {
			return
		}

		appt, err := svc.SetAppointmentStatus(r.Context(), id, doctorID, scheduling.AppointmentStatus(req.Status))
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func treatmentHandler(svc *scheduling.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUID(w, "id", chi.URLParam(r, "id"))
		if !ok {
			return
		}
		var req TreatmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		doctorID, ok := parseUUID(w, "doctor_id", req.DoctorID)
		if !ok {
			return
		}
		var followUp *time.Time
		if req.FollowUpDate != "" {
			d, ok := parseDate(w, "follow_up_date", req.FollowUpDate)
			if !ok {
				return
			}
			followUp = &d
		}

		treatment, err := svc.RecordTreatment(r.Context(), scheduling.TreatmentParams{
			AppointmentID: id,
			DoctorID:      doctorID,
			Diagnosis:     req.Diagnosis,
			Symptoms:      req.Symptoms,
			Prescription:  req.Prescription,
			Notes:         req.Notes,
			FollowUpDate:  followUp,
		})
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toTreatmentResponse(treatment))
	}
}

func historyHandler(svc *scheduling.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUID(w, "id", chi.URLParam(r, "id"))
		if !ok {
			return
		}

		records, err := svc.AppointmentHistory(r.Context(), id)
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toHistoryResponse(records))
	}
}

func analyticsHandler(svc *scheduling.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var start, end *time.Time
		if raw := q.Get("start_date"); raw != "" {
			d, ok := parseDate(w, "start_date", raw)
			if !ok {
				return
			}
			start = &d
		}
		if raw := q.Get("end_date"); raw != "" {
			d, ok := parseDate(w, "end_date", raw)
			if !ok {
				return
			}
			end = &d
		}

		analytics, err := svc.ConflictAnalytics(r.Context(), start, end)
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, analytics)
	}
}

func setAvailabilityHandler(svc *scheduling.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SetAvailabilityRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		doctorID, ok := parseUUID(w, "doctor_id", req.DoctorID)
		if !ok {
			return
		}
		date, ok := parseDate(w, "date", req.Date)
		if !ok {
			return
		}
		startTime, ok := parseClock(w, "start_time", req.StartTime)
		if !ok {
			return
		}
		endTime, ok := parseClock(w, "end_time", req.EndTime)
		if !ok {
			return
		}

		slot, err := svc.SetAvailability(r.Context(), scheduling.AvailabilityParams{
			DoctorID:  doctorID,
			Date:      date,
			StartTime: startTime,
			EndTime:   endTime,
			Capacity:  req.Capacity,
		})
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, toSlotResponse(slot))
	}
}

func removeAvailabilityHandler(svc *scheduling.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUID(w, "id", chi.URLParam(r, "id"))
		if !ok {
			return
		}
		doctorID, ok := parseUUID(w, "doctor_id", r.URL.Query().Get("doctor_id"))
		if !ok {
			return
		}

		if err := svc.RemoveAvailability(r.Context(), id, doctorID); err != nil {
			writeServiceError(w, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listOpenSlotsHandler(svc *scheduling.Service, c *cache.Cache, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		doctorID, ok := parseUUID(w, "doctor_id", q.Get("doctor_id"))
		if !ok {
			return
		}
		from, ok := parseDate(w, "from", q.Get("from"))
		if !ok {
			return
		}
		to, ok := parseDate(w, "to", q.Get("to"))
		if !ok {
			return
		}

		data, err := c.GetOrCompute(r.Context(), cache.KeyDoctorSlots(doctorID, from, to), 0, func(ctx context.Context) ([]byte, error) {
			slots, err := svc.ListOpenSlots(ctx, doctorID, from, to)
			if err != nil {
				return nil, err
			}
			return json.Marshal(toOpenSlotResponse(slots))
		})
		if err != nil {
			writeServiceError(w, log, err)
			return
		}
		writeRaw(w, http.StatusOK, "application/json", data)
	}
}

// Task endpoints. Enqueue returns 202 with the task id; clients poll the
// status endpoint and fetch the stored result once the state is completed.

func enqueueTask(w http.ResponseWriter, log zerolog.Logger, build func() (taskID string, err error)) {
	id, err := build()
	if err != nil {
		log.Error().Err(err).Msg("enqueue task")
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	writeJSON(w, http.StatusAccepted, TaskAcceptedResponse{TaskID: id, StatusURL: "/api/v1/tasks/" + id})
}

func exportPatientHistoryHandler(d *tasks.Dispatcher, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExportPatientHistoryRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		patientID, ok := parseUUID(w, "patient_id", req.PatientID)
		if !ok {
			return
		}

		enqueueTask(w, log, func() (string, error) {
			task, err := tasks.NewExportPatientHistoryTask(patientID)
			if err != nil {
				return "", err
			}
			return d.Enqueue(r.Context(), task)
		})
	}
}

func doctorReportHandler(d *tasks.Dispatcher, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DoctorReportRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		doctorID, ok := parseUUID(w, "doctor_id", req.DoctorID)
		if !ok {
			return
		}
		if _, ok := parseDate(w, "start_date", req.StartDate); !ok {
			return
		}
		if _, ok := parseDate(w, "end_date", req.EndDate); !ok {
			return
		}

		enqueueTask(w, log, func() (string, error) {
			task, err := tasks.NewDoctorReportTask(doctorID, req.StartDate, req.EndDate)
			if err != nil {
				return "", err
			}
			return d.Enqueue(r.Context(), task)
		})
	}
}

func reminderHandler(d *tasks.Dispatcher, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReminderRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		appointmentID, ok := parseUUID(w, "appointment_id", req.AppointmentID)
		if !ok {
			return
		}

		enqueueTask(w, log, func() (string, error) {
			task, err := tasks.NewAppointmentReminderTask(appointmentID)
			if err != nil {
				return "", err
			}
			return d.Enqueue(r.Context(), task)
		})
	}
}

func taskStatusHandler(d *tasks.Dispatcher, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := d.Status(chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, tasks.ErrTaskNotFound) {
				writeError(w, http.StatusNotFound, "not_found", "task not found")
				return
			}
			log.Error().Err(err).Msg("task status")
			writeError(w, http.StatusInternalServerError, "internal_error", "")
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func taskResultHandler(results *tasks.ResultStore, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := results.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, tasks.ErrTaskNotFound) {
				writeError(w, http.StatusNotFound, "not_found", "task result not found or expired")
				return
			}
			log.Error().Err(err).Msg("task result")
			writeError(w, http.StatusInternalServerError, "internal_error", "")
			return
		}

		contentType := "application/json"
		if !json.Valid(data) {
			contentType = "text/csv"
		}
		writeRaw(w, http.StatusOK, contentType, data)
	}
}
