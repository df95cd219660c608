package scheduling

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// ComputeAvailability lists the free slots of every matching professional on
// one calendar day. The day, window times and the returned instants are all
// interpreted in the query's location, or the clinic's when none is given.
func (s *Service) ComputeAvailability(ctx context.Context, q AvailabilityQuery) (*AvailabilityResult, error) {
	loc := q.Location
	if loc == nil {
		loc = s.location
	}
	day, err := time.ParseInLocation(dateLayout, q.Date, loc)
	if err != nil {
		return nil, validationError("date", "date must be formatted as YYYY-MM-DD")
	}

	key := availabilityKey(q.Date, loc, q.SpecialtyID, q.ProfessionalID)
	// gen is taken before reading the store; a write committed meanwhile
	// purges it and the result below is not kept.
	b, gen, ok := s.cache.Get(ctx, key)
	if ok {
		var cached AvailabilityResult
		if err := json.Unmarshal(b, &cached); err == nil {
			return &cached, nil
		}
		s.logger.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	}

	result, err := s.computeAvailability(ctx, day, q)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(result); err == nil {
		s.cache.Set(ctx, gen, key, b)
	}
	return result, nil
}

func (s *Service) computeAvailability(ctx context.Context, day time.Time, q AvailabilityQuery) (*AvailabilityResult, error) {
	weekday := int(day.Weekday())
	var windows []*AvailabilityWindow
	err := s.read(ctx, "find availability", func() error {
		var err error
		windows, err = s.windows.FindActive(ctx, weekday, q.SpecialtyID, q.ProfessionalID)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &AvailabilityResult{
		Date:          q.Date,
		Weekday:       weekday,
		Timezone:      day.Location().String(),
		Professionals: []ProfessionalSlots{},
	}

	y, m, d := day.Date()
	dayEnd := time.Date(y, m, d+1, 0, 0, 0, 0, day.Location())

	for _, group := range groupByProfessional(windows) {
		profID := group[0].ProfessionalID
		var booked []*Appointment
		err := s.read(ctx, "find booked appointments", func() error {
			var err error
			booked, err = s.appointments.FindBlocking(ctx, profID, day, dayEnd, nil)
			return err
		})
		if err != nil {
			return nil, err
		}

		slots := []Slot{}
		for _, w := range group {
			slots = append(slots, generateSlots(day, w, booked, s.slotDuration)...)
		}
		sort.SliceStable(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })

		result.Professionals = append(result.Professionals, ProfessionalSlots{
			ProfessionalID:   profID,
			ProfessionalName: group[0].ProfessionalName,
			Slots:            slots,
		})
	}
	return result, nil
}

// groupByProfessional keeps the first-seen order of professionals.
func groupByProfessional(windows []*AvailabilityWindow) [][]*AvailabilityWindow {
	index := make(map[uuid.UUID]int)
	var groups [][]*AvailabilityWindow
	for _, w := range windows {
		i, ok := index[w.ProfessionalID]
		if !ok {
			i = len(groups)
			index[w.ProfessionalID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], w)
	}
	return groups
}

// generateSlots cuts a window into consecutive slots of length step and drops
// those overlapping a booked appointment. A trailing remainder shorter than
// step is not offered.
func generateSlots(day time.Time, w *AvailabilityWindow, booked []*Appointment, step time.Duration) []Slot {
	windowStart := w.StartTime.On(day)
	windowEnd := w.EndTime.On(day)

	var slots []Slot
	for start := windowStart; !start.Add(step).After(windowEnd); start = start.Add(step) {
		end := start.Add(step)
		if overlapsAny(start, end, booked) {
			continue
		}
		slots = append(slots, Slot{
			Start:          start,
			End:            end,
			ProfessionalID: w.ProfessionalID,
			SpecialtyID:    w.SpecialtyID,
			SpecialtyName:  w.SpecialtyName,
			Available:      true,
		})
	}
	return slots
}

func overlapsAny(start, end time.Time, booked []*Appointment) bool {
	for _, a := range booked {
		if a.Status.Blocking() && InstantsOverlap(start, end, a.Start, a.End) {
			return true
		}
	}
	return false
}

func availabilityKey(date string, loc *time.Location, specialtyID, professionalID *uuid.UUID) string {
	return "availability:" + date + ":" + loc.String() + ":" + idOrAll(specialtyID) + ":" + idOrAll(professionalID)
}

func idOrAll(id *uuid.UUID) string {
	if id == nil {
		return "*"
	}
	return id.String()
}
