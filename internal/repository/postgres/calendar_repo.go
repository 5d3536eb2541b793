package postgres

import (
	"context"

	"github.com/dom/shared-calendar/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const recentEventTitles = 3

type calendarRepository struct {
	db *gorm.DB
}

func NewCalendarRepository(db *gorm.DB) *calendarRepository {
	return &calendarRepository{db: db}
}

func (r *calendarRepository) Create(ctx context.Context, calendar *domain.Calendar) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(calendar).Error
}

func (r *calendarRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Calendar, error) {
	var calendar domain.Calendar
	err := r.db.WithContext(ctx).First(&calendar, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &calendar, nil
}

func (r *calendarRepository) GetByShareCode(ctx context.Context, code string) (*domain.Calendar, error) {
	var calendar domain.Calendar
	err := r.db.WithContext(ctx).First(&calendar, "share_code = ?", code).Error
	if err != nil {
		return nil, err
	}
	return &calendar, nil
}

func (r *calendarRepository) LockByID(ctx context.Context, id uuid.UUID) (*domain.Calendar, error) {
	var calendar domain.Calendar
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&calendar, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &calendar, nil
}

func (r *calendarRepository) ShareCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Calendar{}).
		Where("share_code = ?", code).
		Count(&count).Error
	return count > 0, err
}

// Delete removes the calendar. Events, memberships and reminders go with it
// through ON DELETE CASCADE.
func (r *calendarRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&domain.Calendar{}, "id = ?", id).Error
}

func (r *calendarRepository) Summarize(ctx context.Context, calendar *domain.Calendar) (*domain.CalendarSummary, error) {
	db := r.db.WithContext(ctx)

	summary := &domain.CalendarSummary{
		ID:                calendar.ID,
		Name:              calendar.Name,
		ShareCode:         calendar.ShareCode,
		CreatedAt:         calendar.CreatedAt,
		MemberNames:       []string{},
		RecentEventTitles: []string{},
	}

	if err := db.Model(&domain.Event{}).
		Where("calendar_id = ?", calendar.ID).
		Count(&summary.EventsCount).Error; err != nil {
		return nil, err
	}

	if err := db.Table("memberships").
		Select("users.username").
		Joins("JOIN users ON users.id = memberships.user_id").
		Where("memberships.calendar_id = ?", calendar.ID).
		Order("memberships.joined_at").
		Pluck("users.username", &summary.MemberNames).Error; err != nil {
		return nil, err
	}
	summary.MembersCount = int64(len(summary.MemberNames))

	if err := db.Model(&domain.Event{}).
		Where("calendar_id = ?", calendar.ID).
		Order("start_time DESC").
		Limit(recentEventTitles).
		Pluck("title", &summary.RecentEventTitles).Error; err != nil {
		return nil, err
	}

	return summary, nil
}
