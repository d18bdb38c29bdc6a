package collection

import (
	"database/sql"
	"sort"
	"strings"

	"cantina/internal/apperr"
	"cantina/pkg/models"
)

const (
	minSections = 3
	maxSections = 10
)

// SetSections enables or disables a collection's sections. Disabling clears
// the stored list. Enabling validates the definition fully before any write;
// a rejected definition leaves the collection untouched.
func (e *Engine) SetSections(collectionID string, enabled bool, sections []models.Section) error {
	if collectionID == models.VirtualAllID {
		return apperr.Validation("the virtual collection cannot hold sections")
	}

	if enabled {
		if err := validateSections(sections); err != nil {
			return err
		}
	} else {
		sections = nil
	}

	unlock := e.locks.Lock(collectionID)
	defer unlock()

	return e.store.WithTx(func(tx *sql.Tx) error {
		updated, err := e.store.UpdateCollectionSections(tx, collectionID, enabled, sections)
		if err != nil {
			return err
		}
		if !updated {
			return apperr.NotFound("collection %s not found", collectionID)
		}
		return nil
	})
}

// validateSections checks a section definition: 3-10 entries, unique order
// values, non-empty names and colors, and slot ranges that are either absent
// everywhere or present everywhere, contiguous from slot 1, with only the
// last section allowed to leave its end open.
func validateSections(sections []models.Section) error {
	if len(sections) < minSections || len(sections) > maxSections {
		return apperr.Validation("sections require between %d and %d entries, got %d",
			minSections, maxSections, len(sections))
	}

	orders := make(map[int]bool, len(sections))
	withStart := 0
	for _, s := range sections {
		if orders[s.Order] {
			return apperr.Validation("duplicate section order %d", s.Order)
		}
		orders[s.Order] = true

		if strings.TrimSpace(s.Name) == "" {
			return apperr.Validation("section %d has an empty name", s.Order)
		}
		if strings.TrimSpace(s.Color) == "" {
			return apperr.Validation("section %d has an empty color", s.Order)
		}
		if s.StartSlot != nil {
			withStart++
		}
	}

	// Slot ranges are all-or-none across the definition.
	if withStart == 0 {
		return nil
	}
	if withStart != len(sections) {
		return apperr.Validation("either every section defines a slot range or none does")
	}

	ordered := make([]models.Section, len(sections))
	copy(ordered, sections)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	if *ordered[0].StartSlot != 1 {
		return apperr.Validation("the first section must start at slot 1, got %d", *ordered[0].StartSlot)
	}

	for i, s := range ordered {
		last := i == len(ordered)-1
		if s.EndSlot == nil {
			// Only the last section may stay open-ended so future
			// albums are included automatically.
			if !last {
				return apperr.Validation("section %d must define an end slot", s.Order)
			}
			continue
		}
		if *s.EndSlot < *s.StartSlot {
			return apperr.Validation("section %d ends at slot %d before it starts at %d",
				s.Order, *s.EndSlot, *s.StartSlot)
		}
		if !last {
			next := ordered[i+1]
			if *next.StartSlot != *s.EndSlot+1 {
				return apperr.Validation("section %d must start at slot %d to continue section %d",
					next.Order, *s.EndSlot+1, s.Order)
			}
		}
	}
	return nil
}
