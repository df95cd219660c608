package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SetAvailability replaces every availability window of a professional.
// The new set must reference only the professional's specialties, cover all
// of them, and contain no two overlapping windows on the same weekday.
// Nothing is written unless all of that holds.
func (s *Service) SetAvailability(ctx context.Context, professionalID uuid.UUID, inputs []WindowInput) ([]*AvailabilityWindow, error) {
	if professionalID == uuid.Nil {
		return nil, validationError("professional_id", "professional_id is required")
	}
	windows, err := buildWindows(inputs)
	if err != nil {
		return nil, err
	}

	var saved []*AvailabilityWindow
	err = s.inTx(ctx, "replace availability", func(ctx context.Context) error {
		if err := s.directory.LockProfessional(ctx, professionalID); err != nil {
			return err
		}
		assigned, err := s.directory.ProfessionalSpecialties(ctx, professionalID)
		if err != nil {
			return err
		}
		if err := checkSpecialtyCoverage(windows, assigned); err != nil {
			return err
		}
		if err := checkWindowOverlaps(windows); err != nil {
			return err
		}
		if err := s.windows.ReplaceForProfessional(ctx, professionalID, windows); err != nil {
			return err
		}
		saved, err = s.windows.ListByProfessional(ctx, professionalID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("professional_id", professionalID.String()).
		Int("windows", len(saved)).
		Msg("availability replaced")
	s.committed(ctx, EventAvailabilityReplaced, map[string]interface{}{
		"professional_id": professionalID,
		"windows":         saved,
	})
	return saved, nil
}

// ListAvailability returns the stored windows of a professional ordered by
// weekday and start time.
func (s *Service) ListAvailability(ctx context.Context, professionalID uuid.UUID) ([]*AvailabilityWindow, error) {
	var windows []*AvailabilityWindow
	err := s.read(ctx, "list availability", func() error {
		var err error
		windows, err = s.windows.ListByProfessional(ctx, professionalID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if windows == nil {
		windows = []*AvailabilityWindow{}
	}
	return windows, nil
}

func buildWindows(inputs []WindowInput) ([]*AvailabilityWindow, error) {
	windows := make([]*AvailabilityWindow, 0, len(inputs))
	for i, in := range inputs {
		field := fmt.Sprintf("availability[%d]", i)
		if in.Weekday < 0 || in.Weekday > 6 {
			return nil, validationError(field+".day_of_week", "day_of_week must be between 0 and 6, got %d", in.Weekday)
		}
		start, err := ParseTimeOfDay(in.StartTime)
		if err != nil {
			return nil, validationError(field+".start_time", "%s", err.Error())
		}
		end, err := ParseTimeOfDay(in.EndTime)
		if err != nil {
			return nil, validationError(field+".end_time", "%s", err.Error())
		}
		if end <= start {
			return nil, validationError(field+".end_time", "end_time %s must be after start_time %s", end, start)
		}
		windows = append(windows, &AvailabilityWindow{
			Weekday:     in.Weekday,
			StartTime:   start,
			EndTime:     end,
			SpecialtyID: in.SpecialtyID,
			Active:      true,
		})
	}
	return windows, nil
}

// checkSpecialtyCoverage is skipped when either side is empty: clearing a
// schedule, or a professional with no specialties yet, is always allowed.
func checkSpecialtyCoverage(windows []*AvailabilityWindow, assigned []uuid.UUID) error {
	if len(windows) == 0 || len(assigned) == 0 {
		return nil
	}

	isAssigned := make(map[uuid.UUID]bool, len(assigned))
	for _, id := range assigned {
		isAssigned[id] = true
	}

	covered := make(map[uuid.UUID]bool)
	for i, w := range windows {
		if w.SpecialtyID == nil {
			continue
		}
		if !isAssigned[*w.SpecialtyID] {
			return validationError(fmt.Sprintf("availability[%d].specialty_id", i),
				"specialty %s is not assigned to this professional", *w.SpecialtyID)
		}
		covered[*w.SpecialtyID] = true
	}

	var missing []string
	for _, id := range assigned {
		if !covered[id] {
			missing = append(missing, id.String())
		}
	}
	if len(missing) > 0 {
		return validationError("availability",
			"every assigned specialty needs at least one window; missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

func checkWindowOverlaps(windows []*AvailabilityWindow) error {
	for i := 0; i < len(windows); i++ {
		for j := i + 1; j < len(windows); j++ {
			a, b := windows[i], windows[j]
			if a.Weekday != b.Weekday {
				continue
			}
			if Overlaps(a.StartTime, a.EndTime, b.StartTime, b.EndTime) {
				return conflictError("%s: %s-%s and %s-%s on %s",
					msgWindowsOverlap, a.StartTime, a.EndTime, b.StartTime, b.EndTime, time.Weekday(a.Weekday))
			}
		}
	}
	return nil
}
