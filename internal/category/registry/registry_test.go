package registry

import (
	"fmt"
	"testing"

	"github.com/careplix/opdwallet/internal/category/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupRegistry(t *testing.T) *Registry {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Category{}))

	categories := domain.Seed()
	require.NoError(t, db.Create(&categories).Error)

	registry, err := New(Params{DB: db, Log: zap.NewNop()})
	require.NoError(t, err)
	return registry
}

func TestResolveCanonicalID(t *testing.T) {
	registry := setupRegistry(t)

	category, err := registry.Resolve("CAT004")
	require.NoError(t, err)
	assert.Equal(t, "CAT004", category.CategoryID)
	assert.Equal(t, "LAB", category.ServicePrefix)
}

func TestResolveLegacyAlias(t *testing.T) {
	registry := setupRegistry(t)

	category, err := registry.Resolve("LABS")
	require.NoError(t, err)
	assert.Equal(t, "CAT004", category.CategoryID)

	// Alias lookups are case-insensitive; legacy systems sent lowercase keys.
	category, err = registry.Resolve("pharmacy")
	require.NoError(t, err)
	assert.Equal(t, "CAT002", category.CategoryID)
}

func TestResolveUnknownCategory(t *testing.T) {
	registry := setupRegistry(t)

	_, err := registry.Resolve("CAT999")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = registry.Resolve("")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAllOrdered(t *testing.T) {
	registry := setupRegistry(t)

	all := registry.All()
	require.Len(t, all, 8)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].CategoryID, all[i].CategoryID)
	}
}

func TestEmptyTableFailsStartup(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Category{}))

	_, err = New(Params{DB: db, Log: zap.NewNop()})
	assert.Error(t, err)
}
