package database

import (
	"path/filepath"
	"testing"

	"github.com/OpenNSW/fito/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NilConfig(t *testing.T) {
	db, err := New(nil)
	assert.Nil(t, db)
	assert.Error(t, err)
}

func TestNew_UnsupportedDriver(t *testing.T) {
	_, err := New(&config.DatabaseConfig{Driver: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestNew_SQLite(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "fito.db"),
	}

	db, err := New(cfg)
	require.NoError(t, err)

	assert.NoError(t, HealthCheck(db))
	assert.NoError(t, Close(db))
}

func TestHealthCheck_NilDB(t *testing.T) {
	assert.Error(t, HealthCheck(nil))
	assert.NoError(t, Close(nil))
}
