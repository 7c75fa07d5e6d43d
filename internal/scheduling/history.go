package scheduling

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HistoryRecorder appends lifecycle events to an appointment's audit trail.
// Entries are immutable once written; corrections are new entries. A failed
// append is logged but never fails the operation that triggered it.
type HistoryRecorder struct {
	repo Repository
	log  zerolog.Logger
}

func NewHistoryRecorder(repo Repository, log zerolog.Logger) *HistoryRecorder {
	return &HistoryRecorder{repo: repo, log: log.With().Str("component", "history").Logger()}
}

func (h *HistoryRecorder) record(ctx context.Context, entry *HistoryEntry) {
	entry.ID = uuid.New()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if err := h.repo.InsertHistory(ctx, entry); err != nil {
		h.log.Error().Err(err).
			Str("appointment_id", entry.AppointmentID.String()).
			Str("action", string(entry.Action)).
			Msg("failed to append history entry")
	}
}

// Created records a snapshot of the defining fields at creation time.
func (h *HistoryRecorder) Created(ctx context.Context, appt *Appointment, authorID uuid.UUID) {
	meta := map[string]any{
		"startTime": appt.StartTime.Format(time.RFC3339),
		"endTime":   appt.EndTime.Format(time.RFC3339),
		"status":    string(appt.Status),
	}
	if appt.Title != "" {
		meta["title"] = appt.Title
	}
	if appt.ConsultationTypeID != nil {
		meta["consultationTypeId"] = appt.ConsultationTypeID.String()
	}
	h.record(ctx, &HistoryEntry{
		AppointmentID: appt.ID,
		AuthorID:      authorID,
		Action:        ActionCreated,
		Description:   "Appointment created",
		Metadata:      meta,
	})
}

// Updated records a single entry covering every changed scalar field.
func (h *HistoryRecorder) Updated(ctx context.Context, appointmentID, authorID uuid.UUID, changed map[string]FieldChange) {
	names := make([]string, 0, len(changed))
	for name := range changed {
		names = append(names, name)
	}
	sort.Strings(names)
	h.record(ctx, &HistoryEntry{
		AppointmentID: appointmentID,
		AuthorID:      authorID,
		Action:        ActionUpdated,
		Description:   "Updated " + strings.Join(names, ", "),
		ChangedFields: changed,
	})
}

func (h *HistoryRecorder) StatusChanged(ctx context.Context, appointmentID, authorID uuid.UUID, from, to AppointmentStatus) {
	h.record(ctx, &HistoryEntry{
		AppointmentID: appointmentID,
		AuthorID:      authorID,
		Action:        ActionStatusChanged,
		Description:   fmt.Sprintf("Status changed from %s to %s", from.Label(), to.Label()),
		ChangedFields: map[string]FieldChange{
			"status": {Before: from.Label(), After: to.Label()},
		},
	})
}

func (h *HistoryRecorder) Rescheduled(ctx context.Context, appointmentID, authorID uuid.UUID, oldStart, oldEnd, newStart, newEnd time.Time) {
	h.record(ctx, &HistoryEntry{
		AppointmentID: appointmentID,
		AuthorID:      authorID,
		Action:        ActionRescheduled,
		Description: fmt.Sprintf("Rescheduled from %s to %s",
			oldStart.Format("2006-01-02 15:04"), newStart.Format("2006-01-02 15:04")),
		ChangedFields: map[string]FieldChange{
			"startTime": {Before: oldStart.Format(time.RFC3339), After: newStart.Format(time.RFC3339)},
			"endTime":   {Before: oldEnd.Format(time.RFC3339), After: newEnd.Format(time.RFC3339)},
		},
	})
}

func (h *HistoryRecorder) ConsultationTypeChanged(ctx context.Context, appointmentID, authorID uuid.UUID, oldName, newName string) {
	if oldName == "" {
		oldName = "None"
	}
	h.record(ctx, &HistoryEntry{
		AppointmentID: appointmentID,
		AuthorID:      authorID,
		Action:        ActionConsultationTypeChanged,
		Description:   fmt.Sprintf("Consultation type changed from %s to %s", oldName, newName),
		ChangedFields: map[string]FieldChange{
			"consultationType": {Before: oldName, After: newName},
		},
	})
}

func (h *HistoryRecorder) DocumentUploaded(ctx context.Context, appointmentID, authorID uuid.UUID, fileName string) {
	h.record(ctx, &HistoryEntry{
		AppointmentID: appointmentID,
		AuthorID:      authorID,
		Action:        ActionDocumentUploaded,
		Description:   "Document uploaded: " + fileName,
		Metadata:      map[string]any{"fileName": fileName},
	})
}

func (h *HistoryRecorder) DocumentDeleted(ctx context.Context, appointmentID, authorID uuid.UUID, fileName string) {
	h.record(ctx, &HistoryEntry{
		AppointmentID: appointmentID,
		AuthorID:      authorID,
		Action:        ActionDocumentDeleted,
		Description:   "Document deleted: " + fileName,
		Metadata:      map[string]any{"fileName": fileName},
	})
}

// ListForAppointment returns the trail most-recent-first with author names.
func (h *HistoryRecorder) ListForAppointment(ctx context.Context, appointmentID uuid.UUID) ([]HistoryEntry, error) {
	entries, err := h.repo.ListHistoryForAppointment(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}
