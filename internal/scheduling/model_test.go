package scheduling

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:05")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tod != 9*60+5 {
		t.Fatalf("tod = %d, want 545", tod)
	}
	if tod.String() != "09:05" {
		t.Fatalf("string = %q, want 09:05", tod.String())
	}

	if _, err := ParseTimeOfDay("9am"); err == nil {
		t.Fatal("expected error for non HH:MM input")
	}
}

func TestTimeOfDayOn(t *testing.T) {
	tod := TimeOfDay(14*60 + 30)
	at := tod.On(time.Date(2026, time.September, 2, 0, 0, 0, 0, time.UTC))
	if at.Hour() != 14 || at.Minute() != 30 {
		t.Fatalf("combined time = %v", at)
	}
	if at.Year() != 2026 || at.Month() != time.September || at.Day() != 2 {
		t.Fatalf("combined date = %v", at)
	}
}

func TestSnapshotFields(t *testing.T) {
	appt := &Appointment{
		ID:        uuid.New(),
		PatientID: uuid.New(),
		DoctorID:  uuid.New(),
		Date:      time.Date(2026, time.September, 2, 0, 0, 0, 0, time.UTC),
		Time:      TimeOfDay(10 * 60),
		Status:    StatusScheduled,
		Reason:    "checkup",
	}

	var got map[string]string
	if err := json.Unmarshal(Snapshot(appt), &got); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}

	want := map[string]string{
		"status": "scheduled",
		"date":   "2026-09-02",
		"time":   "10:00",
		"reason": "checkup",
	}
	if len(got) != len(want) {
		t.Fatalf("snapshot keys = %v, want exactly %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("snapshot[%s] = %q, want %q", k, got[k], v)
		}
	}
}
