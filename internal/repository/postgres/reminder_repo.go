package postgres

import (
	"context"
	"time"

	"github.com/dom/shared-calendar/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type reminderRepository struct {
	db *gorm.DB
}

func NewReminderRepository(db *gorm.DB) *reminderRepository {
	return &reminderRepository{db: db}
}

func (r *reminderRepository) Create(ctx context.Context, reminder *domain.Reminder) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(reminder).Error
}

func (r *reminderRepository) GetByEventID(ctx context.Context, eventID uuid.UUID) (*domain.Reminder, error) {
	var reminder domain.Reminder
	err := r.db.WithContext(ctx).First(&reminder, "event_id = ?", eventID).Error
	if err != nil {
		return nil, err
	}
	return &reminder, nil
}

func (r *reminderRepository) Update(ctx context.Context, reminder *domain.Reminder) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(reminder).Error
}

func (r *reminderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&domain.Reminder{}, "id = ?", id).Error
}

func (r *reminderRepository) DeleteByEventID(ctx context.Context, eventID uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&domain.Reminder{}, "event_id = ?", eventID).Error
}

func (r *reminderRepository) DeleteByCalendarID(ctx context.Context, calendarID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("event_id IN (?)", r.db.Model(&domain.Event{}).Select("id").Where("calendar_id = ?", calendarID)).
		Delete(&domain.Reminder{}).Error
}

func (r *reminderRepository) ListByCalendarID(ctx context.Context, calendarID uuid.UUID) ([]*domain.Reminder, error) {
	var reminders []*domain.Reminder
	err := r.db.WithContext(ctx).
		Joins("JOIN events ON events.id = reminders.event_id").
		Where("events.calendar_id = ?", calendarID).
		Order("reminders.reminder_time").
		Find(&reminders).Error
	if err != nil {
		return nil, err
	}
	return reminders, nil
}

// ListDue returns unsent reminders whose trigger time has passed, with their
// event and calendar loaded.
func (r *reminderRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.Reminder, error) {
	var reminders []*domain.Reminder
	err := r.db.WithContext(ctx).
		Preload("Event.Calendar").
		Where("NOT sent AND reminder_time <= ?", now).
		Order("reminder_time").
		Limit(limit).
		Find(&reminders).Error
	if err != nil {
		return nil, err
	}
	return reminders, nil
}

func (r *reminderRepository) MarkSent(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.Reminder{}).
		Where("id = ? AND NOT sent AND reminder_time <= ?", id, now).
		Update("sent", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
