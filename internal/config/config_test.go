package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"7d":    7 * 24 * time.Hour,
		"1d12h": 36 * time.Hour,
		"90m":   90 * time.Minute,
		"0d":    0,
	}
	for in, want := range cases {
		got, err := ParseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "xd", "7dfoo", "soon"} {
		_, err := ParseDuration(bad)
		assert.Error(t, err, bad)
	}
}

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	defaults(v)

	cfg, err := fromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, "/api", cfg.APIPrefix)
	assert.Equal(t, DriverMongo, cfg.DBDriver)
	assert.Equal(t, 7*24*time.Hour, cfg.JWTExpire)
	assert.Equal(t, int64(50<<20), cfg.MaxUploadBytes)
	assert.Equal(t, "http://minio:9000", cfg.MediaPublicURL)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cr3t")
	t.Setenv("JWT_EXPIRE", "2h")
	t.Setenv("DB_DRIVER", "Memory")
	t.Setenv("MEDIA_DRIVER", "memory")
	t.Setenv("API_PREFIX", "/v1/")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, cfg.JWTExpire)
	assert.Equal(t, DriverMemory, cfg.DBDriver)
	assert.Equal(t, "/v1", cfg.APIPrefix)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cfg := &Config{DBDriver: "cassandra", MediaDriver: DriverMinio, JWTExpire: time.Hour, MaxUploadBytes: 1}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET is required")
	assert.Contains(t, err.Error(), `unknown DB_DRIVER "cassandra"`)
	assert.Contains(t, err.Error(), "MINIO_ACCESS_KEY")
}
