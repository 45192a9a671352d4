package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
		},
		Database: DatabaseConfig{
			Host:   "localhost",
			User:   "test",
			DBName: "test",
		},
		Importer: ImporterConfig{
			InputDir:  "/data/exports",
			ChunkSize: 500,
		},
		Scheduler: SchedulerConfig{
			ImportIntervalMinutes: 15,
			SweepIntervalMinutes:  60,
		},
		Cache: CacheConfig{
			TTLMinutes: 60,
		},
	}
}

func TestConfigValidation(t *testing.T) {
	// Test valid configuration
	config := validConfig()
	err := config.Validate()
	assert.NoError(t, err)

	// Test invalid configurations
	invalidConfig := &Config{
		Server: ServerConfig{
			Port: "",
		},
	}
	err = invalidConfig.Validate()
	assert.Error(t, err)

	noInput := validConfig()
	noInput.Importer.InputDir = ""
	assert.Error(t, noInput.Validate())

	badInterval := validConfig()
	badInterval.Scheduler.ImportIntervalMinutes = 0
	assert.Error(t, badInterval.Validate())

	negativeTTL := validConfig()
	negativeTTL.Cache.TTLMinutes = -1
	assert.Error(t, negativeTTL.Validate())
}

func TestDatabaseDSN(t *testing.T) {
	config := DatabaseConfig{
		Host:     "localhost",
		Port:     3306,
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
	}

	dsn := config.GetDSN()
	expected := "testuser:testpass@tcp(localhost:3306)/testdb?charset=utf8mb4&parseTime=True&loc=Local"
	assert.Equal(t, expected, dsn)
}

func TestCacheTTL(t *testing.T) {
	cache := CacheConfig{TTLMinutes: 90}
	assert.Equal(t, 90*time.Minute, cache.TTL())

	forever := CacheConfig{TTLMinutes: 0}
	assert.Equal(t, time.Duration(0), forever.TTL())
}
