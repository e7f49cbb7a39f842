package seed

import (
	"context"
	"errors"

	categorydomain "github.com/careplix/opdwallet/internal/category/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EnsureCategories upserts the canonical benefit taxonomy so the registry
// always finds a populated table on startup. Display names are refreshed in
// place; removal of a category is a manual operation.
func EnsureCategories(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	categories := categorydomain.Seed()

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range categories {
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "category_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"display_name",
					"service_prefix",
				}),
			}).Create(&categories[i]).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}
