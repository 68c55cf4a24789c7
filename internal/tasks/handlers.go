package tasks

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Dharmendra-07/Hospital-Management-System-V2/internal/notify"
	"github.com/Dharmendra-07/Hospital-Management-System-V2/internal/scheduling"
)

const (
	resultTTL = 24 * time.Hour
	dedupTTL  = 48 * time.Hour
)

// Handlers processes background tasks. Every handler is idempotent
// under retry: outbound sends are guarded by Redis dedup keys and
// regenerating an export or report only overwrites its own result.
type Handlers struct {
	repo       scheduling.Repository
	notifier   notify.Notifier
	rdb        *redis.Client
	dispatcher *Dispatcher
	leadTime   time.Duration
	log        zerolog.Logger
}

func NewHandlers(repo scheduling.Repository, notifier notify.Notifier, rdb *redis.Client, dispatcher *Dispatcher, leadTime time.Duration, log zerolog.Logger) *Handlers {
	return &Handlers{
		repo:       repo,
		notifier:   notifier,
		rdb:        rdb,
		dispatcher: dispatcher,
		leadTime:   leadTime,
		log:        log.With().Str("component", "tasks").Logger(),
	}
}

func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeExportPatientHistory, h.HandleExportPatientHistory)
	mux.HandleFunc(TypeDoctorReport, h.HandleDoctorReport)
	mux.HandleFunc(TypeAppointmentReminder, h.HandleAppointmentReminder)
	mux.HandleFunc(TypeReminderScan, h.HandleReminderScan)
}

// HandleExportPatientHistory builds a CSV of the patient's appointment
// and treatment history and stores it under the task id for download.
func (h *Handlers) HandleExportPatientHistory(ctx context.Context, t *asynq.Task) error {
	var p ExportPatientHistoryPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	if _, err := h.repo.GetPatientByID(ctx, p.PatientID); err != nil {
		return fmt.Errorf("load patient: %w", err)
	}

	appointments, err := h.repo.ListAppointments(ctx, scheduling.AppointmentFilter{PatientID: &p.PatientID})
	if err != nil {
		return fmt.Errorf("list appointments: %w", err)
	}

	data, rows, err := BuildTreatmentHistoryCSV(appointments)
	if err != nil {
		return fmt.Errorf("build csv: %w", err)
	}

	if id, ok := asynq.GetTaskID(ctx); ok {
		if err := h.rdb.Set(ctx, resultKey(id), data, resultTTL).Err(); err != nil {
			return fmt.Errorf("store export result: %w", err)
		}
	}

	h.log.Info().Str("patient_id", p.PatientID.String()).Int("rows", rows).Msg("patient history export complete")
	return nil
}

// HandleDoctorReport aggregates a doctor's appointments over a date
// range into a small JSON summary stored under the task id.
func (h *Handlers) HandleDoctorReport(ctx context.Context, t *asynq.Task) error {
	var p DoctorReportPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	from, err := time.Parse("2006-01-02", p.StartDate)
	if err != nil {
		return fmt.Errorf("parse start date: %v: %w", err, asynq.SkipRetry)
	}
	to, err := time.Parse("2006-01-02", p.EndDate)
	if err != nil {
		return fmt.Errorf("parse end date: %v: %w", err, asynq.SkipRetry)
	}

	doctor, err := h.repo.GetDoctorByID(ctx, p.DoctorID)
	if err != nil {
		return fmt.Errorf("load doctor: %w", err)
	}

	appointments, err := h.repo.ListAppointments(ctx, scheduling.AppointmentFilter{
		DoctorID: &p.DoctorID,
		From:     &from,
		To:       &to,
	})
	if err != nil {
		return fmt.Errorf("list appointments: %w", err)
	}

	report := BuildDoctorReport(doctor, p.StartDate, p.EndDate, appointments)
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	if id, ok := asynq.GetTaskID(ctx); ok {
		if err := h.rdb.Set(ctx, resultKey(id), data, resultTTL).Err(); err != nil {
			return fmt.Errorf("store report result: %w", err)
		}
	}

	h.log.Info().Str("doctor_id", p.DoctorID.String()).Int("appointments", len(appointments)).Msg("doctor report complete")
	return nil
}

// HandleAppointmentReminder sends a reminder for one appointment. The
// send is guarded by a dedup key so a retried task never reminds twice.
func (h *Handlers) HandleAppointmentReminder(ctx context.Context, t *asynq.Task) error {
	var p AppointmentReminderPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	detail, err := h.repo.GetAppointmentDetail(ctx, p.AppointmentID)
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}
	if detail.Status != scheduling.StatusScheduled {
		return nil
	}

	dedupKey := fmt.Sprintf("tasks::reminded::%s::%s", p.AppointmentID, detail.Date.Format("2006-01-02"))
	first, err := h.rdb.SetNX(ctx, dedupKey, "1", dedupTTL).Result()
	if err != nil {
		return fmt.Errorf("reminder dedup: %w", err)
	}
	if !first {
		return nil
	}

	patient, err := h.repo.GetPatientByID(ctx, detail.PatientID)
	if err != nil {
		return fmt.Errorf("load patient: %w", err)
	}

	email := ""
	if patient.Email != nil {
		email = *patient.Email
	}
	h.notifier.AppointmentReminder(ctx, notify.Notification{
		PatientName:  detail.PatientName,
		PatientEmail: email,
		DoctorName:   detail.DoctorName,
		Date:         detail.Date.Format("2006-01-02"),
		Time:         detail.Time.String(),
	})
	return nil
}

// HandleReminderScan fans out one reminder task per scheduled
// appointment starting within the lead-time window. Runs periodically;
// re-running it is harmless because the per-appointment handler dedups.
func (h *Handlers) HandleReminderScan(ctx context.Context, _ *asynq.Task) error {
	now := time.Now()
	from := scheduling.DateOnly(now)
	to := scheduling.DateOnly(now.Add(h.leadTime))
	status := scheduling.StatusScheduled

	appointments, err := h.repo.ListAppointments(ctx, scheduling.AppointmentFilter{
		Status: &status,
		From:   &from,
		To:     &to,
	})
	if err != nil {
		return fmt.Errorf("list scheduled appointments: %w", err)
	}

	enqueued := 0
	for _, appt := range appointments {
		task, err := NewAppointmentReminderTask(appt.ID)
		if err != nil {
			h.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("build reminder task")
			continue
		}
		if _, err := h.dispatcher.Enqueue(ctx, task); err != nil {
			h.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("enqueue reminder task")
			continue
		}
		enqueued++
	}

	h.log.Info().Int("enqueued", enqueued).Int("candidates", len(appointments)).Msg("reminder scan complete")
	return nil
}

// ResultStore reads back the output a completed export or report task
// left in Redis under its task id.
type ResultStore struct {
	rdb *redis.Client
}

func NewResultStore(rdb *redis.Client) *ResultStore {
	return &ResultStore{rdb: rdb}
}

func (s *ResultStore) Get(ctx context.Context, taskID string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, resultKey(taskID)).Bytes()
	if err == redis.Nil {
		return nil, ErrTaskNotFound
	}
	return data, err
}

func resultKey(taskID string) string {
	return "tasks::result::" + taskID
}

// BuildTreatmentHistoryCSV renders appointment rows with their
// treatments into CSV. Returns the bytes and the number of data rows.
func BuildTreatmentHistoryCSV(appointments []scheduling.AppointmentDetail) ([]byte, int, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"date", "time", "doctor", "status", "reason", "diagnosis", "prescription", "follow_up"}
	if err := w.Write(header); err != nil {
		return nil, 0, err
	}

	for _, appt := range appointments {
		diagnosis, prescription, followUp := "", "", ""
		if appt.Treatment != nil {
			diagnosis = appt.Treatment.Diagnosis
			prescription = appt.Treatment.Prescription
			if appt.Treatment.FollowUpDate != nil {
				followUp = appt.Treatment.FollowUpDate.Format("2006-01-02")
			}
		}
		row := []string{
			appt.Date.Format("2006-01-02"),
			appt.Time.String(),
			appt.DoctorName,
			string(appt.Status),
			appt.Reason,
			diagnosis,
			prescription,
			followUp,
		}
		if err := w.Write(row); err != nil {
			return nil, 0, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), len(appointments), nil
}

// DoctorReport is the summary payload of a doctor activity report.
type DoctorReport struct {
	DoctorName        string         `json:"doctor_name"`
	StartDate         string         `json:"start_date"`
	EndDate           string         `json:"end_date"`
	TotalAppointments int            `json:"total_appointments"`
	ByStatus          map[string]int `json:"by_status"`
	TreatmentsLogged  int            `json:"treatments_logged"`
	BusiestDay        string         `json:"busiest_day,omitempty"`
}

func BuildDoctorReport(doctor *scheduling.Doctor, startDate, endDate string, appointments []scheduling.AppointmentDetail) *DoctorReport {
	report := &DoctorReport{
		DoctorName:        doctor.Name,
		StartDate:         startDate,
		EndDate:           endDate,
		TotalAppointments: len(appointments),
		ByStatus:          make(map[string]int),
	}

	byDay := make(map[string]int)
	for _, appt := range appointments {
		report.ByStatus[string(appt.Status)]++
		byDay[appt.Date.Format("2006-01-02")]++
		if appt.Treatment != nil {
			report.TreatmentsLogged++
		}
	}

	best := 0
	for day, n := range byDay {
		if n > best || (n == best && day < report.BusiestDay) {
			best = n
			report.BusiestDay = day
		}
	}

	return report
}
