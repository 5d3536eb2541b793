package postgres

import (
	"context"

	"github.com/dom/shared-calendar/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type membershipRepository struct {
	db *gorm.DB
}

func NewMembershipRepository(db *gorm.DB) *membershipRepository {
	return &membershipRepository{db: db}
}

func (r *membershipRepository) Create(ctx context.Context, membership *domain.Membership) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(membership).Error
}

func (r *membershipRepository) Get(ctx context.Context, calendarID, userID uuid.UUID) (*domain.Membership, error) {
	var membership domain.Membership
	err := r.db.WithContext(ctx).
		Where("calendar_id = ? AND user_id = ?", calendarID, userID).
		First(&membership).Error
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

func (r *membershipRepository) GetOwner(ctx context.Context, calendarID uuid.UUID) (*domain.Membership, error) {
	var membership domain.Membership
	err := r.db.WithContext(ctx).
		Where("calendar_id = ? AND is_owner", calendarID).
		First(&membership).Error
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

func (r *membershipRepository) NextOwnerCandidate(ctx context.Context, calendarID, excludeUserID uuid.UUID) (*domain.Membership, error) {
	var membership domain.Membership
	err := r.db.WithContext(ctx).
		Where("calendar_id = ? AND user_id <> ? AND NOT is_owner", calendarID, excludeUserID).
		Order("joined_at, id").
		First(&membership).Error
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

func (r *membershipRepository) SetOwner(ctx context.Context, id uuid.UUID, isOwner bool) error {
	return r.db.WithContext(ctx).
		Model(&domain.Membership{}).
		Where("id = ?", id).
		Update("is_owner", isOwner).Error
}

func (r *membershipRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&domain.Membership{}, "id = ?", id).Error
}

func (r *membershipRepository) CountByCalendarID(ctx context.Context, calendarID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Membership{}).
		Where("calendar_id = ?", calendarID).
		Count(&count).Error
	return count, err
}

func (r *membershipRepository) ListMembers(ctx context.Context, calendarID uuid.UUID) ([]*domain.Member, error) {
	var members []*domain.Member
	err := r.db.WithContext(ctx).
		Table("memberships").
		Select("users.id AS user_id, users.username, memberships.is_owner, memberships.joined_at").
		Joins("JOIN users ON users.id = memberships.user_id").
		Where("memberships.calendar_id = ?", calendarID).
		Order("memberships.joined_at").
		Scan(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *membershipRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Membership, error) {
	var memberships []*domain.Membership
	err := r.db.WithContext(ctx).
		Preload("Calendar").
		Where("user_id = ?", userID).
		Order("joined_at").
		Find(&memberships).Error
	if err != nil {
		return nil, err
	}
	return memberships, nil
}
