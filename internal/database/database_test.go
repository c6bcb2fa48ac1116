package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_UnknownDriver(t *testing.T) {
	db, err := Connect(Config{Driver: "invalid", ConnectionString: "invalid"})

	assert.Nil(t, db)
	assert.ErrorContains(t, err, "sql: unknown driver")
}

func TestConnect_SQLiteSingleConnection(t *testing.T) {
	db, err := Connect(Config{
		Driver:             "sqlite3",
		ConnectionString:   "file:" + filepath.Join(t.TempDir(), "capvault.db"),
		MaxOpenConnections: 10,
		MaxIdleConnections: 5,
		ConnMaxLifetime:    time.Hour,
	})
	require.NoError(t, err)
	defer func() { assert.NoError(t, db.Close()) }()

	assert.Equal(t, 1, db.Stats().MaxOpenConnections)
}
