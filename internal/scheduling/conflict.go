package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Overlaps is the half-open interval overlap test shared by every blocking
// source: [s1,e1) and [s2,e2) collide iff s1 < e2 && s2 < e1.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// ConflictGuard answers whether a candidate interval collides with an
// existing booking, a blocking disruption, or approved leave. Pure reads,
// no side effects; interval validity (start < end) is enforced upstream.
type ConflictGuard struct {
	repo Repository
}

func NewConflictGuard(repo Repository) *ConflictGuard {
	return &ConflictGuard{repo: repo}
}

// HasConflict reports whether [start, end) overlaps a non-cancelled
// appointment of the doctor. excludeID skips the appointment being edited.
func (g *ConflictGuard) HasConflict(ctx context.Context, doctorID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (bool, error) {
	appts, err := g.repo.ListAppointmentsInRange(ctx, doctorID, start, end)
	if err != nil {
		return false, fmt.Errorf("list appointments in range: %w", err)
	}
	for _, a := range appts {
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if Overlaps(start, end, a.StartTime, a.EndTime) {
			return true, nil
		}
	}
	return false, nil
}

// IsBlockedByDisruption reports whether [start, end) falls inside a
// disruption with BlockTimeSlots set.
func (g *ConflictGuard) IsBlockedByDisruption(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (bool, error) {
	imps, err := g.repo.ListBlockingImprevusInRange(ctx, doctorID, start, end)
	if err != nil {
		return false, fmt.Errorf("list blocking imprevus: %w", err)
	}
	for _, imp := range imps {
		if Overlaps(start, end, imp.StartTime, imp.EndTime) {
			return true, nil
		}
	}
	return false, nil
}

// IsBlockedByLeave reports whether [start, end) touches an approved leave
// day. Both sides are normalized to whole-day boundaries before comparing.
func (g *ConflictGuard) IsBlockedByLeave(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (bool, error) {
	dayStart := startOfDay(start)
	dayEnd := startOfDay(end.Add(-time.Nanosecond)).Add(24 * time.Hour)
	return g.repo.HasApprovedLeaveOverlap(ctx, doctorID, dayStart, dayEnd)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
