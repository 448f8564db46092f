package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/pkg/config"
)

type testConfig struct {
	Host string `env:"CFGTEST_HOST" envDefault:"localhost"`
	Port int    `env:"CFGTEST_PORT" envDefault:"5432"`
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		config.ResetCache()

		var cfg testConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "localhost", cfg.Host)
		assert.Equal(t, 5432, cfg.Port)
	})

	t.Run("from environment", func(t *testing.T) {
		config.ResetCache()
		t.Setenv("CFGTEST_HOST", "db.internal")
		t.Setenv("CFGTEST_PORT", "6432")

		var cfg testConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "db.internal", cfg.Host)
		assert.Equal(t, 6432, cfg.Port)
	})

	t.Run("cached between calls", func(t *testing.T) {
		config.ResetCache()
		t.Setenv("CFGTEST_HOST", "first")

		var cfg testConfig
		require.NoError(t, config.Load(&cfg))
		require.Equal(t, "first", cfg.Host)

		t.Setenv("CFGTEST_HOST", "second")
		var again testConfig
		require.NoError(t, config.Load(&again))
		assert.Equal(t, "first", again.Host)
	})

	t.Run("nil pointer", func(t *testing.T) {
		err := config.Load[testConfig](nil)
		assert.ErrorIs(t, err, config.ErrNilPointer)
	})

	t.Run("parse failure", func(t *testing.T) {
		config.ResetCache()
		t.Setenv("CFGTEST_PORT", "not-a-number")

		var cfg testConfig
		err := config.Load(&cfg)
		assert.ErrorIs(t, err, config.ErrParsing)
	})
}
