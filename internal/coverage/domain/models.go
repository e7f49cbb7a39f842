package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// CoverageDescriptor defines what a plan version covers for one category.
// A nil AnnualLimit means unlimited; a nil PerVisitLimit means uncapped
// per visit.
type CoverageDescriptor struct {
	Covered         bool   `json:"covered"`
	AnnualLimit     *int64 `json:"annual_limit"`
	PerVisitLimit   *int64 `json:"per_visit_limit"`
	RequiresPreAuth bool   `json:"requires_pre_auth"`
}

// CoverageMatrixEntry is the versioned rule set for one (policy, plan
// version) pair. Immutable once written; new rules require a new plan
// version, which preserves the audit trail of past transactions.
type CoverageMatrixEntry struct {
	ID          snowflake.ID   `gorm:"primaryKey" json:"id"`
	PolicyID    string         `gorm:"type:text;not null;index:idx_coverage_policy;uniqueIndex:ux_coverage_policy_version,priority:1" json:"policy_id"`
	PlanVersion int            `gorm:"not null;uniqueIndex:ux_coverage_policy_version,priority:2" json:"plan_version"`
	Entries     datatypes.JSON `gorm:"not null" json:"entries"`
	CreatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (CoverageMatrixEntry) TableName() string { return "benefit_coverage_matrix" }

// DecodeEntries unmarshals the per-category descriptor map.
func (e *CoverageMatrixEntry) DecodeEntries() (map[string]CoverageDescriptor, error) {
	entries := make(map[string]CoverageDescriptor)
	if len(e.Entries) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(e.Entries, &entries); err != nil {
		return nil, fmt.Errorf("decode coverage entries: %w", err)
	}
	return entries, nil
}

// EncodeEntries marshals the per-category descriptor map for storage.
func EncodeEntries(entries map[string]CoverageDescriptor) (datatypes.JSON, error) {
	raw, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode coverage entries: %w", err)
	}
	return datatypes.JSON(raw), nil
}

// EffectiveCoverage is a resolved rule, tagged with the plan version that was
// actually used so the wallet can persist it on resulting transactions.
type EffectiveCoverage struct {
	PolicyID    string             `json:"policy_id"`
	CategoryID  string             `json:"category_id"`
	PlanVersion int                `json:"plan_version"`
	Overridden  bool               `json:"overridden"`
	Descriptor  CoverageDescriptor `json:"descriptor"`
}
