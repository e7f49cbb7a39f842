package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/careplix/opdwallet/internal/category/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

// Registry holds the category taxonomy in memory. Loaded once at process
// start from the categories table, read-only afterwards.
type Registry struct {
	log        *zap.Logger
	byID       map[string]domain.Category
	aliases    map[string]string
	categories []domain.Category
}

// New loads the taxonomy. A referenced but unknown category at this point is
// a fatal configuration error, so load failures abort startup.
func New(p Params) (*Registry, error) {
	var categories []domain.Category
	if err := p.DB.WithContext(context.Background()).
		Order("category_id").
		Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("category table is empty, seed did not run")
	}

	byID := make(map[string]domain.Category, len(categories))
	for _, c := range categories {
		byID[c.CategoryID] = c
	}

	p.Log.Named("category.registry").Info("category taxonomy loaded",
		zap.Int("count", len(categories)),
	)

	return &Registry{
		log:        p.Log.Named("category.registry"),
		byID:       byID,
		aliases:    domain.Aliases(),
		categories: categories,
	}, nil
}

// Resolve returns the category for a canonical ID or a legacy alias key.
func (r *Registry) Resolve(categoryID string) (domain.Category, error) {
	id := strings.TrimSpace(categoryID)
	if canonical, ok := r.aliases[strings.ToUpper(id)]; ok {
		id = canonical
	}
	category, ok := r.byID[id]
	if !ok {
		return domain.Category{}, domain.ErrNotFound
	}
	return category, nil
}

// All returns the taxonomy ordered by category ID.
func (r *Registry) All() []domain.Category {
	out := make([]domain.Category, len(r.categories))
	copy(out, r.categories)
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryID < out[j].CategoryID })
	return out
}
