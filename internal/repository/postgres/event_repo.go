package postgres

import (
	"context"
	"time"

	"github.com/dom/shared-calendar/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type eventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *eventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Create(ctx context.Context, event *domain.Event) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(event).Error
}

func (r *eventRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	var event domain.Event
	err := r.db.WithContext(ctx).
		Preload("Calendar").
		First(&event, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// Update writes every column of an existing event. A missing row yields
// gorm.ErrRecordNotFound instead of being recreated.
func (r *eventRepository) Update(ctx context.Context, event *domain.Event) error {
	result := r.db.WithContext(ctx).
		Model(event).
		Select("*").
		Omit(clause.Associations, "id", "created_at").
		Updates(event)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *eventRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&domain.Event{}, "id = ?", id).Error
}

func (r *eventRepository) ListUpcoming(ctx context.Context, calendarID uuid.UUID, now time.Time, limit int) ([]*domain.Event, error) {
	var events []*domain.Event
	err := r.db.WithContext(ctx).
		Where("calendar_id = ? AND start_time >= ?", calendarID, now).
		Order("start_time").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// ListInRange returns events overlapping [from, to]; nil bounds are open.
func (r *eventRepository) ListInRange(ctx context.Context, calendarID uuid.UUID, from, to *time.Time) ([]*domain.Event, error) {
	query := r.db.WithContext(ctx).Where("calendar_id = ?", calendarID)
	if from != nil {
		query = query.Where("end_time >= ?", *from)
	}
	if to != nil {
		query = query.Where("start_time <= ?", *to)
	}

	var events []*domain.Event
	if err := query.Order("start_time").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// ListStartingBetween scans every calendar for events with from < start <= to.
func (r *eventRepository) ListStartingBetween(ctx context.Context, from, to time.Time) ([]*domain.Event, error) {
	var events []*domain.Event
	err := r.db.WithContext(ctx).
		Where("start_time > ? AND start_time <= ?", from, to).
		Order("start_time").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
