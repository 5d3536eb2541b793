package repository

import (
	"context"
	"time"

	"github.com/dom/shared-calendar/internal/domain"
	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetBySessionToken(ctx context.Context, token string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
}

type CalendarRepository interface {
	Create(ctx context.Context, calendar *domain.Calendar) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Calendar, error)
	GetByShareCode(ctx context.Context, code string) (*domain.Calendar, error)
	// LockByID loads the calendar with a row lock held until the enclosing
	// transaction ends.
	LockByID(ctx context.Context, id uuid.UUID) (*domain.Calendar, error)
	ShareCodeExists(ctx context.Context, code string) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Summarize(ctx context.Context, calendar *domain.Calendar) (*domain.CalendarSummary, error)
}

type MembershipRepository interface {
	Create(ctx context.Context, membership *domain.Membership) error
	Get(ctx context.Context, calendarID, userID uuid.UUID) (*domain.Membership, error)
	GetOwner(ctx context.Context, calendarID uuid.UUID) (*domain.Membership, error)
	// NextOwnerCandidate returns the earliest-joined non-owner member other
	// than excludeUserID.
	NextOwnerCandidate(ctx context.Context, calendarID, excludeUserID uuid.UUID) (*domain.Membership, error)
	SetOwner(ctx context.Context, id uuid.UUID, isOwner bool) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountByCalendarID(ctx context.Context, calendarID uuid.UUID) (int64, error)
	ListMembers(ctx context.Context, calendarID uuid.UUID) ([]*domain.Member, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Membership, error)
}

type EventRepository interface {
	Create(ctx context.Context, event *domain.Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Event, error)
	Update(ctx context.Context, event *domain.Event) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListUpcoming(ctx context.Context, calendarID uuid.UUID, now time.Time, limit int) ([]*domain.Event, error)
	ListInRange(ctx context.Context, calendarID uuid.UUID, from, to *time.Time) ([]*domain.Event, error)
	ListStartingBetween(ctx context.Context, from, to time.Time) ([]*domain.Event, error)
}

type ReminderRepository interface {
	Create(ctx context.Context, reminder *domain.Reminder) error
	GetByEventID(ctx context.Context, eventID uuid.UUID) (*domain.Reminder, error)
	Update(ctx context.Context, reminder *domain.Reminder) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByEventID(ctx context.Context, eventID uuid.UUID) error
	DeleteByCalendarID(ctx context.Context, calendarID uuid.UUID) error
	ListByCalendarID(ctx context.Context, calendarID uuid.UUID) ([]*domain.Reminder, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.Reminder, error)
	// MarkSent flips sent from false to true while the reminder is still due
	// at now, and reports whether this call did the flip.
	MarkSent(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
}

// Transactor runs fn against repositories bound to a single transaction.
// Returning an error from fn rolls the transaction back.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(repos *Repositories) error) error
}

type Repositories struct {
	User       UserRepository
	Calendar   CalendarRepository
	Membership MembershipRepository
	Event      EventRepository
	Reminder   ReminderRepository
	Tx         Transactor
}
