package domain

import "time"

// Policy is a contract issued to an employer group. Owned by the enrollment
// and administration systems; this service only reads it.
type Policy struct {
	PolicyID           string    `gorm:"primaryKey;type:text" json:"policy_id"`
	DefaultPlanVersion int       `gorm:"not null" json:"default_plan_version"`
	EffectiveFrom      time.Time `gorm:"not null" json:"effective_from"`
	EffectiveTo        time.Time `gorm:"not null" json:"effective_to"`
	CreatedAt          time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Policy) TableName() string { return "policies" }

// ActiveAt reports whether the policy is in force at the given instant.
func (p Policy) ActiveAt(t time.Time) bool {
	if t.Before(p.EffectiveFrom) {
		return false
	}
	if !p.EffectiveTo.IsZero() && t.After(p.EffectiveTo) {
		return false
	}
	return true
}
