package persistence

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"github.com/fulfillment/backend/internal/domain/shared"
	"github.com/fulfillment/backend/internal/infrastructure/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	db, err := Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}))
	require.NoError(t, err)
	return db, mock, mockDB
}

func TestNewDatabase_UnsupportedDriver(t *testing.T) {
	_, err := NewDatabase(&config.DatabaseConfig{Driver: "mysql"})
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestNewDatabase_SQLite(t *testing.T) {
	db, err := NewDatabase(&config.DatabaseConfig{Driver: DriverSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, DriverSQLite, db.Driver())
	require.NoError(t, db.Ping(context.Background()))
	require.NoError(t, db.AutoMigrate())

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MaxOpenConnections)
}

func TestDatabase_Ping(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	mock.ExpectPing()
	assert.NoError(t, db.Ping(context.Background()))
	assert.Equal(t, "postgres", db.Driver())
}

func TestSaveWithLock_Postgres(t *testing.T) {
	newItem := func(t *testing.T) *fulfillment.Item {
		item, err := fulfillment.NewItem("SKU-1", "seller-1", "books", decimal.NewFromInt(500))
		require.NoError(t, err)
		return item
	}

	t.Run("updates with version guard", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		item := newItem(t)

		mock.ExpectExec(`UPDATE "items" SET .* WHERE id = \$\d+ AND version = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, NewGormItemRepository(db.DB).SaveWithLock(context.Background(), item))
		assert.Equal(t, 2, item.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		item := newItem(t)

		mock.ExpectExec(`UPDATE "items" SET`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT count\(\*\) FROM "items"`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		err := NewGormItemRepository(db.DB).SaveWithLock(context.Background(), item)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.Equal(t, 1, item.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("driver failure is a persistence error", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		item := newItem(t)

		mock.ExpectExec(`UPDATE "items" SET`).WillReturnError(sql.ErrConnDone)

		err := NewGormItemRepository(db.DB).SaveWithLock(context.Background(), item)
		assert.True(t, shared.HasCode(err, shared.CodePersistence))
		assert.ErrorIs(t, err, sql.ErrConnDone)
	})
}

func TestTranslateError(t *testing.T) {
	assert.NoError(t, translateError("op", nil))
	assert.ErrorIs(t, translateError("op", gorm.ErrRecordNotFound), shared.ErrNotFound)
	assert.True(t, shared.HasCode(translateError("op", gorm.ErrDuplicatedKey), shared.CodeConflict))

	domainErr := shared.NewPreconditionError("kept")
	assert.Same(t, domainErr, translateError("op", domainErr))
}
