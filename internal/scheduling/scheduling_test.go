package scheduling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Dharmendra-07/Hospital-Management-System-V2/internal/config"
	"github.com/Dharmendra-07/Hospital-Management-System-V2/internal/notify"
)

// memRepo is an in-memory Repository for tests. Methods hold a single
// mutex, so it gives the same read-your-writes behavior the real
// repository does within one request.
type memRepo struct {
	mu           sync.Mutex
	doctors      map[uuid.UUID]Doctor
	patients     map[uuid.UUID]Patient
	slots        map[uuid.UUID]AvailabilitySlot
	appointments map[uuid.UUID]Appointment
	history      []HistoryRecord
	conflicts    []ConflictLog
	treatments   map[uuid.UUID]Treatment // keyed by appointment id
	historySeq   int64
	conflictSeq  int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		doctors:      make(map[uuid.UUID]Doctor),
		patients:     make(map[uuid.UUID]Patient),
		slots:        make(map[uuid.UUID]AvailabilitySlot),
		appointments: make(map[uuid.UUID]Appointment),
		treatments:   make(map[uuid.UUID]Treatment),
	}
}

func (m *memRepo) addDoctor(name string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.doctors[id] = Doctor{ID: id, Name: name}
	return id
}

func (m *memRepo) addPatient(name string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.patients[id] = Patient{ID: id, Name: name}
	return id
}

func (m *memRepo) addSlot(doctorID uuid.UUID, date time.Time, start, end TimeOfDay, capacity int) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.slots[id] = AvailabilitySlot{
		ID:          id,
		DoctorID:    doctorID,
		Date:        DateOnly(date),
		StartTime:   start,
		EndTime:     end,
		Capacity:    capacity,
		IsAvailable: true,
	}
	return id
}

func (m *memRepo) addAppointment(patientID, doctorID uuid.UUID, day time.Time, at TimeOfDay, status AppointmentStatus) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.appointments[id] = Appointment{
		ID:        id,
		PatientID: patientID,
		DoctorID:  doctorID,
		Date:      DateOnly(day),
		Time:      at,
		Status:    status,
	}
	return id
}

func (m *memRepo) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (m *memRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (m *memRepo) GetSlot(_ context.Context, doctorID uuid.UUID, date time.Time, start TimeOfDay) (*AvailabilitySlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slots {
		if s.DoctorID == doctorID && s.Date.Equal(DateOnly(date)) && s.StartTime == start {
			out := s
			return &out, nil
		}
	}
	return nil, ErrSlotNotFound
}

func (m *memRepo) GetSlotByID(_ context.Context, id uuid.UUID) (*AvailabilitySlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &s, nil
}

func (m *memRepo) UpsertSlot(_ context.Context, slot *AvailabilitySlot) (*AvailabilitySlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.slots {
		if s.DoctorID == slot.DoctorID && s.Date.Equal(slot.Date) && s.StartTime == slot.StartTime {
			s.EndTime = slot.EndTime
			s.Capacity = slot.Capacity
			s.IsAvailable = slot.IsAvailable
			m.slots[id] = s
			out := s
			return &out, nil
		}
	}
	m.slots[slot.ID] = *slot
	out := *slot
	return &out, nil
}

func (m *memRepo) DeleteSlot(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[id]; !ok {
		return ErrSlotNotFound
	}
	delete(m.slots, id)
	return nil
}

func (m *memRepo) ListSlots(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]AvailabilitySlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AvailabilitySlot
	for _, s := range m.slots {
		if s.DoctorID == doctorID && !s.Date.Before(from) && !s.Date.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memRepo) CountAppointmentsAt(_ context.Context, doctorID uuid.UUID, date time.Time, at TimeOfDay, statuses []AppointmentStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, a := range m.appointments {
		if a.DoctorID != doctorID || !a.Date.Equal(DateOnly(date)) || a.Time != at {
			continue
		}
		for _, s := range statuses {
			if a.Status == s {
				count++
				break
			}
		}
	}
	return count, nil
}

func (m *memRepo) ListPatientScheduledOn(_ context.Context, patientID uuid.UUID, date time.Time, excludeID *uuid.UUID) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.PatientID != patientID || !a.Date.Equal(DateOnly(date)) || a.Status != StatusScheduled {
			continue
		}
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *memRepo) GetAppointmentDetail(_ context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	det := AppointmentDetail{
		Appointment: a,
		DoctorName:  m.doctors[a.DoctorID].Name,
		PatientName: m.patients[a.PatientID].Name,
	}
	if t, ok := m.treatments[a.ID]; ok {
		out := t
		det.Treatment = &out
	}
	return &det, nil
}

func (m *memRepo) ListAppointments(_ context.Context, filter AppointmentFilter) ([]AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AppointmentDetail
	for _, a := range m.appointments {
		if filter.PatientID != nil && a.PatientID != *filter.PatientID {
			continue
		}
		if filter.DoctorID != nil && a.DoctorID != *filter.DoctorID {
			continue
		}
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		if filter.From != nil && a.Date.Before(*filter.From) {
			continue
		}
		if filter.To != nil && a.Date.After(*filter.To) {
			continue
		}
		det := AppointmentDetail{
			Appointment: a,
			DoctorName:  m.doctors[a.DoctorID].Name,
			PatientName: m.patients[a.PatientID].Name,
		}
		if t, ok := m.treatments[a.ID]; ok {
			tr := t
			det.Treatment = &tr
		}
		out = append(out, det)
	}
	return out, nil
}

func (m *memRepo) CreateAppointmentWithHistory(_ context.Context, appt *Appointment, rec *HistoryRecord) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := *appt
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.appointments[a.ID] = a
	m.appendHistory(rec)
	out := a
	return &out, nil
}

func (m *memRepo) UpdateAppointmentWithHistory(_ context.Context, appt *Appointment, rec *HistoryRecord) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appointments[appt.ID]; !ok {
		return nil, ErrAppointmentNotFound
	}
	a := *appt
	a.UpdatedAt = time.Now()
	m.appointments[a.ID] = a
	m.appendHistory(rec)
	out := a
	return &out, nil
}

func (m *memRepo) appendHistory(rec *HistoryRecord) {
	m.historySeq++
	r := *rec
	r.ID = m.historySeq
	r.ChangedAt = time.Now()
	m.history = append(m.history, r)
}

func (m *memRepo) HistoryFor(_ context.Context, appointmentID uuid.UUID) ([]HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []HistoryRecord
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].AppointmentID == appointmentID {
			out = append(out, m.history[i])
		}
	}
	return out, nil
}

func (m *memRepo) InsertConflict(_ context.Context, c *ConflictLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflictSeq++
	entry := *c
	entry.ID = m.conflictSeq
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	m.conflicts = append(m.conflicts, entry)
	return nil
}

func (m *memRepo) ResolveConflicts(_ context.Context, userID, doctorID uuid.UUID, date time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := time.Now()
	for i := range m.conflicts {
		c := &m.conflicts[i]
		if c.Resolved || c.UserID != userID || c.DoctorID == nil || *c.DoctorID != doctorID {
			continue
		}
		if !c.AttemptedDate.Equal(DateOnly(date)) {
			continue
		}
		c.Resolved = true
		c.ResolvedAt = &now
		n++
	}
	return n, nil
}

func (m *memRepo) ListConflicts(_ context.Context, start, end *time.Time) ([]ConflictLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ConflictLog
	for _, c := range m.conflicts {
		if start != nil && c.CreatedAt.Before(*start) {
			continue
		}
		if end != nil && c.CreatedAt.After(*end) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *memRepo) UpsertTreatment(_ context.Context, t *Treatment) (*Treatment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.treatments[t.AppointmentID]; ok {
		existing.Diagnosis = t.Diagnosis
		existing.Symptoms = t.Symptoms
		existing.Prescription = t.Prescription
		existing.Notes = t.Notes
		existing.FollowUpDate = t.FollowUpDate
		m.treatments[t.AppointmentID] = existing
		out := existing
		return &out, nil
	}
	m.treatments[t.AppointmentID] = *t
	out := *t
	return &out, nil
}

func (m *memRepo) GetTreatmentByAppointment(_ context.Context, appointmentID uuid.UUID) (*Treatment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.treatments[appointmentID]
	if !ok {
		return nil, ErrTreatmentNotFound
	}
	return &t, nil
}

// memLocker serializes all critical sections behind one mutex, which is
// a strictly stronger guarantee than the per-key Redis lock.
type memLocker struct {
	mu sync.Mutex
}

func (l *memLocker) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx)
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(context.Context, ...string) {}

// testClock is the fixed "now" all scheduling tests run against.
var testClock = time.Date(2026, time.September, 1, 8, 0, 0, 0, time.Local)

func newTestService(t *testing.T) (*Service, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	cfg := config.Config{
		BookingHorizonDays: 90,
		PatientBuffer:      2 * time.Hour,
		ModificationCutoff: 2 * time.Hour,
	}
	svc := NewService(repo, &memLocker{}, noopInvalidator{}, notify.NewLogNotifier(zerolog.Nop()), cfg, zerolog.Nop())
	svc.now = func() time.Time { return testClock }
	svc.checker.now = svc.now
	return svc, repo
}

func mustTime(t *testing.T, s string) TimeOfDay {
	t.Helper()
	tod, err := ParseTimeOfDay(s)
	if err != nil {
		t.Fatalf("parse time %q: %v", s, err)
	}
	return tod
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
