package appointments

import (
	"context"
	"fmt"

	"tattoostudio/internal/domain"
	"tattoostudio/internal/models"
)

// Slots returns every bookable time for date, flagging those held by a
// pending or approved appointment.
func Slots(ctx context.Context, store domain.DocumentStore, date string) ([]models.Slot, error) {
	docs, err := store.List(ctx, models.CollectionAppointments, models.Query{
		Where: []models.Filter{models.Where(models.FieldDate, date)},
	})
	if err != nil {
		return nil, fmt.Errorf("list appointments for %s: %w", date, err)
	}

	taken := make(map[string]bool)
	for _, doc := range docs {
		switch models.Status(doc.Fields.GetString(models.FieldStatus)) {
		case models.StatusPending, models.StatusApproved:
			taken[doc.Fields.GetString(models.FieldTime)] = true
		}
	}

	slots := make([]models.Slot, len(models.TimeSlots))
	for i, t := range models.TimeSlots {
		slots[i] = models.Slot{Time: t, Taken: taken[t]}
	}
	return slots, nil
}
