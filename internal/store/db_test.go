package store

import (
	"testing"
	"time"

	"github.com/TariqKichawele/BrightData/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolConfig(t *testing.T) {
	cfg, err := poolConfig(config.DatabaseConfig{
		URL:             "postgres://u:p@localhost:5432/jobs",
		MaxOpenConns:    10,
		MaxIdleConns:    20,
		ConnMaxLifetime: time.Minute,
	})
	require.NoError(t, err)

	assert.Equal(t, int32(10), cfg.MaxConns)
	assert.Equal(t, int32(10), cfg.MinConns, "min conns never exceed max")
	assert.Equal(t, time.Minute, cfg.MaxConnLifetime)
	assert.Equal(t, poolIdleTimeout, cfg.MaxConnIdleTime)
	assert.Equal(t, applicationName, cfg.ConnConfig.RuntimeParams["application_name"])
}

func TestPoolConfig_BadURL(t *testing.T) {
	_, err := poolConfig(config.DatabaseConfig{URL: "://nope"})
	assert.ErrorContains(t, err, "parse database URL")
}
