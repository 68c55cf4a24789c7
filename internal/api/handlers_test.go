package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Dharmendra-07/Hospital-Management-System-V2/internal/scheduling"
)

func TestWriteServiceErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "booking conflict",
			err:        &scheduling.ConflictError{Type: scheduling.ConflictSlotFull, Reason: "this time slot is fully booked"},
			wantStatus: http.StatusConflict,
			wantCode:   "slot_full",
		},
		{
			name:       "patient conflict",
			err:        &scheduling.ConflictError{Type: scheduling.ConflictPatient, Reason: "you already have an appointment scheduled at this time"},
			wantStatus: http.StatusConflict,
			wantCode:   "patient_conflict",
		},
		{
			name:       "appointment not found",
			err:        scheduling.ErrAppointmentNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   "not_found",
		},
		{
			name:       "doctor not found",
			err:        scheduling.ErrDoctorNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   "not_found",
		},
		{
			name:       "modification window closed",
			err:        scheduling.ErrModificationWindow,
			wantStatus: http.StatusConflict,
			wantCode:   "modification_window_closed",
		},
		{
			name:       "already cancelled",
			err:        scheduling.ErrAlreadyCancelled,
			wantStatus: http.StatusConflict,
			wantCode:   "already_cancelled",
		},
		{
			name:       "booking contended",
			err:        scheduling.ErrBookingContended,
			wantStatus: http.StatusConflict,
			wantCode:   "booking_contended",
		},
		{
			name:       "slot in use",
			err:        scheduling.ErrSlotInUse,
			wantStatus: http.StatusConflict,
			wantCode:   "slot_in_use",
		},
		{
			name:       "treatment before completion",
			err:        scheduling.ErrAppointmentNotCompleted,
			wantStatus: http.StatusConflict,
			wantCode:   "appointment_not_completed",
		},
		{
			name:       "invalid status",
			err:        scheduling.ErrInvalidStatus,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "invalid slot",
			err:        scheduling.ErrInvalidSlot,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, zerolog.Nop(), tc.err)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}

			var body ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error != tc.wantCode {
				t.Fatalf("error code = %q, want %q", body.Error, tc.wantCode)
			}
		})
	}
}

func TestWriteServiceErrorConflictCarriesReason(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, zerolog.Nop(), &scheduling.ConflictError{
		Type:   scheduling.ConflictDoctorUnavailable,
		Reason: "doctor is not available at this time slot",
	})

	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Details != "doctor is not available at this time slot" {
		t.Fatalf("details = %q, want the rejection reason", body.Details)
	}
}

func TestParseHelpers(t *testing.T) {
	rec := httptest.NewRecorder()
	if _, ok := parseUUID(rec, "patient_id", "not-a-uuid"); ok {
		t.Fatal("expected invalid uuid to fail")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	if _, ok := parseDate(rec, "date", "02-09-2026"); ok {
		t.Fatal("expected invalid date to fail")
	}

	rec = httptest.NewRecorder()
	if _, ok := parseClock(rec, "time", "25:99"); ok {
		t.Fatal("expected invalid time to fail")
	}

	rec = httptest.NewRecorder()
	tod, ok := parseClock(rec, "time", "14:30")
	if !ok || tod.String() != "14:30" {
		t.Fatalf("parse 14:30 = %v %v", tod, ok)
	}
}
