package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dom/shared-calendar/internal/domain"
	"github.com/dom/shared-calendar/internal/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxCalendarNameLength = 100

// MembershipService owns the lifecycle of calendars and their members.
// Every mutation locks the calendar row for the length of its transaction,
// so concurrent joins, leaves and transfers on one calendar are serialised.
type MembershipService struct {
	repos           *repository.Repositories
	shareCodeLength int
	newShareCode    func(int) (string, error)
}

func NewMembershipService(repos *repository.Repositories, shareCodeLength int) *MembershipService {
	if shareCodeLength <= 0 {
		shareCodeLength = domain.DefaultShareCodeLength
	}
	return &MembershipService{
		repos:           repos,
		shareCodeLength: shareCodeLength,
		newShareCode:    randomShareCode,
	}
}

func (s *MembershipService) CreateCalendar(ctx context.Context, name string, ownerID uuid.UUID) (*domain.Calendar, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.BadRequest("calendar name is required")
	}
	if utf8.RuneCountInString(name) > maxCalendarNameLength {
		return nil, domain.BadRequest("calendar name must be at most 100 characters")
	}

	var calendar *domain.Calendar
	err := s.repos.Tx.WithinTransaction(ctx, func(repos *repository.Repositories) error {
		if _, err := repos.User.GetByID(ctx, ownerID); err != nil {
			return lookupErr(err, domain.ErrUserNotFound, "load owner")
		}

		code, err := uniqueShareCode(ctx, repos.Calendar, s.shareCodeLength, s.newShareCode)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		calendar = &domain.Calendar{
			ID:        uuid.New(),
			Name:      name,
			ShareCode: code,
			CreatedAt: now,
		}
		if err := repos.Calendar.Create(ctx, calendar); err != nil {
			return writeErr(err, "create calendar")
		}

		owner := &domain.Membership{
			ID:         uuid.New(),
			UserID:     ownerID,
			CalendarID: calendar.ID,
			IsOwner:    true,
			JoinedAt:   now,
		}
		if err := repos.Membership.Create(ctx, owner); err != nil {
			return writeErr(err, "create owner membership")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return calendar, nil
}

// JoinCalendar adds the user to the calendar behind shareCode. An existing
// membership is returned unchanged with created=false. Joining a calendar
// that has lost its owner makes the joiner the owner.
func (s *MembershipService) JoinCalendar(ctx context.Context, shareCode string, userID uuid.UUID) (*domain.Membership, bool, error) {
	code := strings.ToUpper(strings.TrimSpace(shareCode))
	if code == "" {
		return nil, false, domain.BadRequest("share code is required")
	}

	var (
		membership *domain.Membership
		created    bool
	)
	err := s.repos.Tx.WithinTransaction(ctx, func(repos *repository.Repositories) error {
		calendar, err := repos.Calendar.GetByShareCode(ctx, code)
		if err != nil {
			return lookupErr(err, domain.ErrCalendarNotFound, "load calendar")
		}
		if calendar, err = repos.Calendar.LockByID(ctx, calendar.ID); err != nil {
			return lookupErr(err, domain.ErrCalendarNotFound, "lock calendar")
		}

		existing, err := repos.Membership.Get(ctx, calendar.ID, userID)
		if err == nil {
			existing.Calendar = calendar
			membership = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Internal("load membership", err)
		}

		if _, err := repos.User.GetByID(ctx, userID); err != nil {
			return lookupErr(err, domain.ErrUserNotFound, "load user")
		}

		_, err = repos.Membership.GetOwner(ctx, calendar.ID)
		ownerless := errors.Is(err, gorm.ErrRecordNotFound)
		if err != nil && !ownerless {
			return domain.Internal("load owner", err)
		}

		membership = &domain.Membership{
			ID:         uuid.New(),
			UserID:     userID,
			CalendarID: calendar.ID,
			IsOwner:    ownerless,
			JoinedAt:   time.Now().UTC(),
		}
		if err := repos.Membership.Create(ctx, membership); err != nil {
			return writeErr(err, "create membership")
		}
		membership.Calendar = calendar
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return membership, created, nil
}

// LeaveCalendar removes the user's membership. An owner leaving hands
// ownership to the earliest-joined remaining member first; a sole owner
// leaves the calendar ownerless.
func (s *MembershipService) LeaveCalendar(ctx context.Context, calendarID, userID uuid.UUID) error {
	return s.repos.Tx.WithinTransaction(ctx, func(repos *repository.Repositories) error {
		if _, err := repos.Calendar.LockByID(ctx, calendarID); err != nil {
			return lookupErr(err, domain.ErrCalendarNotFound, "lock calendar")
		}

		membership, err := repos.Membership.Get(ctx, calendarID, userID)
		if err != nil {
			return lookupErr(err, domain.ErrNotMember, "load membership")
		}

		if membership.IsOwner {
			next, err := repos.Membership.NextOwnerCandidate(ctx, calendarID, userID)
			switch {
			case err == nil:
				if err := repos.Membership.SetOwner(ctx, next.ID, true); err != nil {
					return domain.Internal("promote member", err)
				}
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return domain.Internal("find next owner", err)
			}
		}

		if err := repos.Membership.Delete(ctx, membership.ID); err != nil {
			return domain.Internal("delete membership", err)
		}
		return nil
	})
}

func (s *MembershipService) RemoveMember(ctx context.Context, calendarID, requesterID, targetID uuid.UUID) error {
	return s.repos.Tx.WithinTransaction(ctx, func(repos *repository.Repositories) error {
		if _, err := s.lockAsOwner(ctx, repos, calendarID, requesterID); err != nil {
			return err
		}

		target, err := repos.Membership.Get(ctx, calendarID, targetID)
		if err != nil {
			return lookupErr(err, domain.ErrMemberNotFound, "load member")
		}
		if target.IsOwner {
			return domain.ErrCannotRemoveOwner
		}

		if err := repos.Membership.Delete(ctx, target.ID); err != nil {
			return domain.Internal("delete membership", err)
		}
		return nil
	})
}

func (s *MembershipService) TransferOwnership(ctx context.Context, calendarID, requesterID, newOwnerID uuid.UUID) error {
	return s.repos.Tx.WithinTransaction(ctx, func(repos *repository.Repositories) error {
		current, err := s.lockAsOwner(ctx, repos, calendarID, requesterID)
		if err != nil {
			return err
		}
		if newOwnerID == requesterID {
			return nil
		}

		next, err := repos.Membership.Get(ctx, calendarID, newOwnerID)
		if err != nil {
			return lookupErr(err, domain.ErrNewOwnerNotMember, "load new owner")
		}

		if err := repos.Membership.SetOwner(ctx, current.ID, false); err != nil {
			return domain.Internal("demote owner", err)
		}
		if err := repos.Membership.SetOwner(ctx, next.ID, true); err != nil {
			return domain.Internal("promote owner", err)
		}
		return nil
	})
}

// DeleteCalendar removes a calendar whose only member is its owner, along
// with its events and reminders.
func (s *MembershipService) DeleteCalendar(ctx context.Context, calendarID, requesterID uuid.UUID) (*domain.Calendar, error) {
	var deleted *domain.Calendar
	err := s.repos.Tx.WithinTransaction(ctx, func(repos *repository.Repositories) error {
		calendar, err := repos.Calendar.LockByID(ctx, calendarID)
		if err != nil {
			return lookupErr(err, domain.ErrCalendarNotFound, "lock calendar")
		}

		requester, err := repos.Membership.Get(ctx, calendarID, requesterID)
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !requester.IsOwner) {
			return domain.ErrNotOwner
		}
		if err != nil {
			return domain.Internal("load membership", err)
		}

		count, err := repos.Membership.CountByCalendarID(ctx, calendarID)
		if err != nil {
			return domain.Internal("count members", err)
		}
		if count > 1 {
			return domain.ErrCalendarHasMembers
		}

		if err := repos.Reminder.DeleteByCalendarID(ctx, calendarID); err != nil {
			return domain.Internal("delete reminders", err)
		}
		if err := repos.Calendar.Delete(ctx, calendarID); err != nil {
			return domain.Internal("delete calendar", err)
		}
		deleted = calendar
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// GetCalendar resolves a calendar by UUID or, failing that, by share code.
func (s *MembershipService) GetCalendar(ctx context.Context, idOrCode string) (*domain.Calendar, error) {
	idOrCode = strings.TrimSpace(idOrCode)

	var (
		calendar *domain.Calendar
		err      error
	)
	if id, parseErr := uuid.Parse(idOrCode); parseErr == nil {
		calendar, err = s.repos.Calendar.GetByID(ctx, id)
	} else {
		calendar, err = s.repos.Calendar.GetByShareCode(ctx, strings.ToUpper(idOrCode))
	}
	if err != nil {
		return nil, lookupErr(err, domain.ErrCalendarNotFound, "load calendar")
	}
	return calendar, nil
}

func (s *MembershipService) Summary(ctx context.Context, calendar *domain.Calendar) (*domain.CalendarSummary, error) {
	summary, err := s.repos.Calendar.Summarize(ctx, calendar)
	if err != nil {
		return nil, domain.Internal("summarize calendar", err)
	}
	return summary, nil
}

func (s *MembershipService) ListMembers(ctx context.Context, calendarID uuid.UUID) ([]*domain.Member, error) {
	if _, err := s.repos.Calendar.GetByID(ctx, calendarID); err != nil {
		return nil, lookupErr(err, domain.ErrCalendarNotFound, "load calendar")
	}

	members, err := s.repos.Membership.ListMembers(ctx, calendarID)
	if err != nil {
		return nil, domain.Internal("list members", err)
	}
	if members == nil {
		members = []*domain.Member{}
	}
	return members, nil
}

func (s *MembershipService) ListUserCalendars(ctx context.Context, userID uuid.UUID) ([]*domain.UserCalendar, error) {
	memberships, err := s.repos.Membership.ListByUserID(ctx, userID)
	if err != nil {
		return nil, domain.Internal("list memberships", err)
	}

	calendars := make([]*domain.UserCalendar, 0, len(memberships))
	for _, m := range memberships {
		if m.Calendar == nil {
			continue
		}
		summary, err := s.Summary(ctx, m.Calendar)
		if err != nil {
			return nil, err
		}
		calendars = append(calendars, &domain.UserCalendar{
			CalendarSummary: *summary,
			IsOwner:         m.IsOwner,
			JoinedAt:        m.JoinedAt,
		})
	}
	return calendars, nil
}

func (s *MembershipService) GetMembership(ctx context.Context, calendarID, userID uuid.UUID) (*domain.Membership, error) {
	membership, err := s.repos.Membership.Get(ctx, calendarID, userID)
	if err != nil {
		return nil, lookupErr(err, domain.ErrNotMember, "load membership")
	}
	return membership, nil
}

// lockAsOwner locks the calendar and returns the requester's membership,
// failing with Forbidden unless the requester owns it.
func (s *MembershipService) lockAsOwner(ctx context.Context, repos *repository.Repositories, calendarID, requesterID uuid.UUID) (*domain.Membership, error) {
	if _, err := repos.Calendar.LockByID(ctx, calendarID); err != nil {
		return nil, lookupErr(err, domain.ErrCalendarNotFound, "lock calendar")
	}

	requester, err := repos.Membership.Get(ctx, calendarID, requesterID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotOwner
	}
	if err != nil {
		return nil, domain.Internal("load membership", err)
	}
	if !requester.IsOwner {
		return nil, domain.ErrNotOwner
	}
	return requester, nil
}
