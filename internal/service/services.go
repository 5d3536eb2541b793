package service

import (
	"errors"

	"github.com/dom/shared-calendar/internal/config"
	"github.com/dom/shared-calendar/internal/domain"
	"github.com/dom/shared-calendar/internal/repository"
	"github.com/dom/shared-calendar/internal/websocket"
	"gorm.io/gorm"
)

// Broadcaster fans a message out to every connection subscribed to a
// calendar's share code.
type Broadcaster interface {
	Publish(shareCode string, msgType websocket.MessageType, payload interface{})
}

type Services struct {
	User       *UserService
	Membership *MembershipService
	Event      *EventService
}

func NewServices(repos *repository.Repositories, broadcaster Broadcaster, cfg *config.Config) *Services {
	return &Services{
		User:       NewUserService(repos.User, cfg),
		Membership: NewMembershipService(repos, cfg.ShareCodeLength),
		Event:      NewEventService(repos, broadcaster),
	}
}

// lookupErr maps a repository lookup failure onto the domain taxonomy.
func lookupErr(err error, notFound *domain.Error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.Internal(op, err)
}

// writeErr maps a repository write failure onto the domain taxonomy.
func writeErr(err error, op string) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.Conflict(op + ": already exists")
	}
	return domain.Internal(op, err)
}
