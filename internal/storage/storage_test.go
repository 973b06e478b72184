package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
	gormlog "gorm.io/gorm/logger"

	"github.com/charleshuang3/finansecure/internal/gormw"
)

func setupTestDB(t *testing.T) *gormw.DB {
	t.Helper()

	db, err := gormw.Open(&gormw.Config{LogLevel: gormlog.Silent})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}
