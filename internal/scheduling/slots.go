package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// DefaultSlotStep is the candidate spacing when no consultation type is
// requested.
const DefaultSlotStep = 15 * time.Minute

type Slot struct {
	Time      string `json:"time"` // HH:mm
	Available bool   `json:"available"`
}

type DaySlots struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Slots []Slot `json:"slots"`
}

// SlotGenerator produces bookable start times for a day by combining the
// doctor's weekly template with the conflict guard and the current time.
type SlotGenerator struct {
	repo  Repository
	guard *ConflictGuard
	now   func() time.Time
}

func NewSlotGenerator(repo Repository, guard *ConflictGuard) *SlotGenerator {
	return &SlotGenerator{repo: repo, guard: guard, now: time.Now}
}

// AvailableSlots walks the day's open windows. Candidates advance by the
// consultation's own span (duration plus rest) so two offered candidates can
// never overlap once booked, and a candidate is emitted only when its full
// span fits before the window closes.
func (g *SlotGenerator) AvailableSlots(ctx context.Context, doctorID uuid.UUID, day time.Time, typeID *uuid.UUID) (*DaySlots, error) {
	duration := DefaultSlotStep
	rest := time.Duration(0)

	slots, err := g.repo.ListTimeSlotsForWeekday(ctx, doctorID, day.Weekday())
	if err != nil {
		return nil, fmt.Errorf("list time slots: %w", err)
	}

	if typeID != nil {
		ct, err := g.repo.GetConsultationType(ctx, *typeID, doctorID)
		if err != nil {
			if errors.Is(err, ErrConsultationTypeNotFound) {
				return nil, NotFoundf("consultation type %s not found", *typeID)
			}
			return nil, fmt.Errorf("load consultation type: %w", err)
		}
		duration = ct.Duration()
		rest = ct.RestAfter()

		filtered := slots[:0]
		for _, ts := range slots {
			if ts.PermitsType(*typeID) {
				filtered = append(filtered, ts)
			}
		}
		slots = filtered
	}

	out := &DaySlots{Date: day.Format("2006-01-02"), Slots: []Slot{}}
	if len(slots) == 0 {
		return out, nil
	}

	dayStart := startOfDay(day)
	dayEnd := dayStart.Add(24 * time.Hour)

	appts, err := g.repo.ListAppointmentsInRange(ctx, doctorID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	imps, err := g.repo.ListBlockingImprevusInRange(ctx, doctorID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("list blocking imprevus: %w", err)
	}
	onLeave, err := g.repo.HasApprovedLeaveOverlap(ctx, doctorID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("check leave: %w", err)
	}

	now := g.now()
	span := duration + rest
	seen := make(map[string]struct{})

	for _, ts := range slots {
		for open := ts.Open.At(day); ; open = open.Add(span) {
			candEnd := open.Add(span)
			if candEnd.After(ts.Close.At(day)) {
				break
			}

			available := open.After(now) && !onLeave
			if available {
				for _, a := range appts {
					if Overlaps(open, candEnd, a.StartTime, a.EndTime) {
						available = false
						break
					}
				}
			}
			if available {
				for _, imp := range imps {
					if Overlaps(open, candEnd, imp.StartTime, imp.EndTime) {
						available = false
						break
					}
				}
			}

			key := open.Format("15:04")
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out.Slots = append(out.Slots, Slot{Time: key, Available: available})
		}
	}

	sort.Slice(out.Slots, func(i, j int) bool { return out.Slots[i].Time < out.Slots[j].Time })
	return out, nil
}
