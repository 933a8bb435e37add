package repository

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// setupMockDB opens a gorm connection speaking the dialect's placeholder syntax
// on top of sqlmock.
func setupMockDB(t *testing.T, dialect Dialect) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	var dialector gorm.Dialector
	if dialect.Name == PostgreSQL.Name {
		dialector = postgres.New(postgres.Config{Conn: sqlDB})
	} else {
		dialector = mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true})
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return gdb, mock
}

func newTestTrackRepository(t *testing.T, dialect Dialect, prefix string) (TrackRepository, sqlmock.Sqlmock) {
	t.Helper()
	gdb, mock := setupMockDB(t, dialect)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
	})
	return NewTrackRepository(gdb, dialect, prefix, NewNaturalOrder("und")), mock
}

var trackColumns = []string{"id", "user_id", "title", "file_id", "filename", "album_name", "artist_name"}

func trackRows(ids ...int64) *sqlmock.Rows {
	rows := sqlmock.NewRows(trackColumns)
	for _, id := range ids {
		rows.AddRow(id, "alice", "Song", id*10, "song.mp3", "Album", "Artist")
	}
	return rows
}
