// Package notify holds the outbound notification contract consumed by the
// scheduling engine. Delivery mechanics live in an external mailer service;
// from this module's perspective sends are fire-and-forget and a failed send
// must never fail a booking operation.
package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// Notifier is the contract the scheduling services depend on.
type Notifier interface {
	// SendReminder notifies a participant of an upcoming appointment.
	SendReminder(ctx context.Context, email, patientName, doctorName, message string) error
	// SendAbsenceNotification tells a patient their appointment was
	// cancelled because the doctor declared a disruption.
	SendAbsenceNotification(ctx context.Context, email, patientName, doctorName, message string) error
}

// LogNotifier writes every notification to the structured log instead of
// delivering it. Stands in for the external mailer in development and tests.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) SendReminder(_ context.Context, email, patientName, doctorName, message string) error {
	n.log.Info().
		Str("kind", "reminder").
		Str("email", email).
		Str("patient", patientName).
		Str("doctor", doctorName).
		Str("message", message).
		Msg("notification sent")
	return nil
}

func (n *LogNotifier) SendAbsenceNotification(_ context.Context, email, patientName, doctorName, message string) error {
	n.log.Info().
		Str("kind", "absence").
		Str("email", email).
		Str("patient", patientName).
		Str("doctor", doctorName).
		Str("message", message).
		Msg("notification sent")
	return nil
}
