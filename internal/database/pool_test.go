package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm/logger"
)

func sqlitePool(t *testing.T) *DatabasePool {
	t.Helper()
	config := DefaultPoolConfig()
	config.Dialector = sqlite.Open(":memory:")
	config.MaxOpenConns = 1
	config.LogLevel = logger.Silent

	pool, err := NewDatabasePool(config)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return pool
}

func TestPoolConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PoolConfig)
		wantErr string
	}{
		{name: "dsn", mutate: func(c *PoolConfig) { c.DSN = "postgres://engine@localhost/prioritizer" }},
		{name: "dialector", mutate: func(c *PoolConfig) { c.Dialector = sqlite.Open(":memory:") }},
		{name: "nothing to open", mutate: func(*PoolConfig) {}, wantErr: "DSN is required"},
		{
			name: "negative limits",
			mutate: func(c *PoolConfig) {
				c.DSN = "postgres://engine@localhost/prioritizer"
				c.MaxIdleConns = -1
			},
			wantErr: "limits",
		},
		{
			name: "negative lifetime",
			mutate: func(c *PoolConfig) {
				c.DSN = "postgres://engine@localhost/prioritizer"
				c.ConnMaxIdleTime = -time.Minute
			},
			wantErr: "lifetimes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultPoolConfig()
			tt.mutate(config)

			err := config.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestNewDatabasePool_NilConfigNeedsDSN(t *testing.T) {
	_, err := NewDatabasePool(nil)
	assert.ErrorContains(t, err, "DSN is required")
}

func TestNewDatabasePool_UnreachablePostgres(t *testing.T) {
	config := DefaultPoolConfig()
	config.DSN = "host=127.0.0.1 port=1 user=engine dbname=prioritizer sslmode=disable connect_timeout=1"
	config.LogLevel = logger.Silent

	_, err := NewDatabasePool(config)
	assert.Error(t, err)
}

func TestNewDatabasePool_MigratesEngineTables(t *testing.T) {
	pool := sqlitePool(t)

	require.NoError(t, pool.Migrate())
	assert.NoError(t, pool.Health())

	for _, table := range []string{"tasks", "ml_feedback", "trained_models"} {
		assert.True(t, pool.DB.Migrator().HasTable(table), "missing table %s", table)
	}

	stats := pool.Stats()
	assert.Equal(t, 1, stats["max_open_connections"])
}

func TestDatabasePool_WithoutConnection(t *testing.T) {
	pool := &DatabasePool{config: DefaultPoolConfig()}

	assert.Error(t, pool.Migrate())
	assert.Error(t, pool.Health())
	assert.Contains(t, pool.Stats(), "error")
	assert.NoError(t, pool.Close())
}
