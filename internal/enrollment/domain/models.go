package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

const (
	EnrollmentStatusActive     = "active"
	EnrollmentStatusTerminated = "terminated"
)

// Enrollment ties a member to a policy for a plan year. Owned by the
// enrollment system; the wallet treats plan_year as an opaque partition key.
type Enrollment struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MemberID  string    `gorm:"not null;uniqueIndex:ux_enrollments_member_year,priority:1" json:"member_id"`
	PolicyID  string    `gorm:"not null;index" json:"policy_id"`
	PlanYear  int       `gorm:"not null;uniqueIndex:ux_enrollments_member_year,priority:2" json:"plan_year"`
	Status    string    `gorm:"type:text;not null" json:"status"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Enrollment) TableName() string { return "member_enrollments" }

type Repository interface {
	FindCurrent(ctx context.Context, db *gorm.DB, memberID string) (*Enrollment, error)
}

type Service interface {
	// Current returns the member's active enrollment, carrying the policy
	// and the current plan year.
	Current(ctx context.Context, memberID string) (Enrollment, error)
}

var (
	ErrInvalidMember = errors.New("invalid_member")
	ErrNotEnrolled   = errors.New("member_not_enrolled")
)
