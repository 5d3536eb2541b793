package domain

import (
	"time"

	"github.com/google/uuid"
)

// ShareCodeAlphabet is the character set of calendar share codes.
const ShareCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const DefaultShareCodeLength = 8

type Calendar struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name      string    `json:"name" gorm:"size:100;not null"`
	ShareCode string    `json:"share_code" gorm:"size:20;uniqueIndex;not null"`
	CreatedAt time.Time `json:"created_at"`

	// Relations
	Memberships []Membership `json:"-" gorm:"foreignKey:CalendarID"`
}

// Membership links a user to a calendar. A calendar has at most one owner.
type Membership struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID     uuid.UUID `json:"user_id" gorm:"type:uuid;not null"`
	CalendarID uuid.UUID `json:"calendar_id" gorm:"type:uuid;not null"`
	IsOwner    bool      `json:"is_owner" gorm:"not null;default:false"`
	JoinedAt   time.Time `json:"joined_at"`

	// Relations
	User     *User     `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Calendar *Calendar `json:"-" gorm:"foreignKey:CalendarID"`
}

// TableName returns the table name for GORM
func (Membership) TableName() string {
	return "memberships"
}

// CalendarSummary is the calendar view sent to clients, enriched with
// aggregate counts.
type CalendarSummary struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	ShareCode         string    `json:"share_code"`
	CreatedAt         time.Time `json:"created_at"`
	EventsCount       int64     `json:"events_count"`
	MembersCount      int64     `json:"members_count"`
	MemberNames       []string  `json:"member_names"`
	RecentEventTitles []string  `json:"recent_event_titles"`
}

// UserCalendar is a calendar as seen by one of its members.
type UserCalendar struct {
	CalendarSummary
	IsOwner  bool      `json:"is_owner"`
	JoinedAt time.Time `json:"joined_at"`
}

// Member is a calendar member with the user's display name.
type Member struct {
	UserID   uuid.UUID `json:"id"`
	Username string    `json:"username"`
	IsOwner  bool      `json:"is_owner"`
	JoinedAt time.Time `json:"joined_at"`
}
