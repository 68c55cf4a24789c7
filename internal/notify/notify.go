// Package notify is the boundary to the notification collaborator
// (email/SMS live outside this system). Dispatch is fire-and-forget: a
// failed notification never affects the booking it announces.
package notify

import (
	"context"

	"github.com/rs/zerolog"
)

type Notification struct {
	PatientName  string
	PatientEmail string
	DoctorName   string
	Date         string // 2006-01-02
	Time         string // 15:04
}

type Notifier interface {
	BookingConfirmed(ctx context.Context, n Notification)
	AppointmentReminder(ctx context.Context, n Notification)
}

// LogNotifier writes notifications to the log. Stands in for the real
// delivery transport in dev and tests.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) BookingConfirmed(_ context.Context, msg Notification) {
	n.log.Info().
		Str("patient", msg.PatientName).
		Str("patient_email", msg.PatientEmail).
		Str("doctor", msg.DoctorName).
		Str("date", msg.Date).
		Str("time", msg.Time).
		Msg("booking confirmation")
}

func (n *LogNotifier) AppointmentReminder(_ context.Context, msg Notification) {
	n.log.Info().
		Str("patient", msg.PatientName).
		Str("patient_email", msg.PatientEmail).
		Str("doctor", msg.DoctorName).
		Str("date", msg.Date).
		Str("time", msg.Time).
		Msg("appointment reminder")
}
