package domain

import (
	"errors"
	"time"
)

// Category is an immutable benefit taxonomy entry. The set is seeded at
// bootstrap and never mutated at runtime.
type Category struct {
	CategoryID    string    `gorm:"primaryKey;type:text" json:"category_id"`
	DisplayName   string    `gorm:"not null" json:"display_name"`
	ServicePrefix string    `gorm:"not null" json:"service_prefix"`
	CreatedAt     time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Category) TableName() string { return "categories" }

var ErrNotFound = errors.New("category_not_found")

// Seed returns the canonical taxonomy. Legacy category keys with the same
// meaning are folded into this single table; see Aliases.
func Seed() []Category {
	return []Category{
		{CategoryID: "CAT001", DisplayName: "In-Clinic Consultation", ServicePrefix: "CON"},
		{CategoryID: "CAT002", DisplayName: "Pharmacy", ServicePrefix: "PHA"},
		{CategoryID: "CAT003", DisplayName: "Diagnostics", ServicePrefix: "LAB"},
		{CategoryID: "CAT004", DisplayName: "Labs", ServicePrefix: "LAB"},
		{CategoryID: "CAT005", DisplayName: "Online Consultation", ServicePrefix: "CON"},
		{CategoryID: "CAT006", DisplayName: "Dental", ServicePrefix: "DEN"},
		{CategoryID: "CAT007", DisplayName: "Vision", ServicePrefix: "VIS"},
		{CategoryID: "CAT008", DisplayName: "Wellness", ServicePrefix: "WEL"},
	}
}

// Aliases maps legacy category keys to canonical category IDs.
func Aliases() map[string]string {
	return map[string]string{
		"IN_CLINIC_CONSULTATION": "CAT001",
		"PHARMACY":               "CAT002",
		"DIAGNOSTICS":            "CAT003",
		"LABS":                   "CAT004",
		"ONLINE_CONSULTATION":    "CAT005",
		"DENTAL":                 "CAT006",
		"VISION":                 "CAT007",
		"WELLNESS":               "CAT008",
	}
}
