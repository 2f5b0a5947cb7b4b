package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alejandrodnm/squadbid/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("SQUADBID_AUTH_SECRET", "from-env")
	t.Setenv("SQUADBID_DSN", ":memory:")
	t.Setenv("LOG_LEVEL", "debug")

	path := writeConfig(t, `
protocol:
  min_wager: 100
fees:
  upfront_bps: 250
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Auth.Secret)
	assert.Equal(t, ":memory:", cfg.Storage.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, time.Minute, cfg.Protocol.MinDuration)
	assert.Equal(t, 30*time.Minute, cfg.Protocol.MaxDuration)
	assert.Equal(t, 2*time.Minute, cfg.Protocol.GraceWindow)
	assert.Equal(t, 24*time.Hour, cfg.Protocol.ReviveWait)
	assert.Equal(t, 5*time.Second, cfg.MatchInterval())
	assert.Equal(t, int64(250), cfg.FeeConfig().UpfrontBps)
	assert.Equal(t, int64(100), cfg.Limits().MinWager)

	formations, err := cfg.FormationTable()
	require.NoError(t, err)
	assert.Contains(t, formations, "balanced")
}

func TestLoad_ParsesDurationsAndFormations(t *testing.T) {
	t.Setenv("SQUADBID_AUTH_SECRET", "s")
	path := writeConfig(t, `
protocol:
  min_wager: 10
  min_duration: 90s
  max_duration: 10m
formations:
  flat: ["1", "1", "1", "1", "1", "1", "1"]
  heavy: ["3", "1", "1", "1", "1", "0.5", "0.25"]
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Protocol.MinDuration)

	formations, err := cfg.FormationTable()
	require.NoError(t, err)
	require.Len(t, formations, 2)
	assert.True(t, formations["heavy"][6].Equal(decimal.RequireFromString("0.25")))
}

func TestLoad_Rejects(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bps out of range", "fees:\n  upfront_bps: 10001\n"},
		{"max below min", "protocol:\n  min_duration: 10m\n  max_duration: 5m\n"},
		{"short formation", "formations:\n  bad: [\"1\", \"1\"]\n"},
		{"negative weight", "formations:\n  bad: [\"1\", \"1\", \"1\", \"1\", \"1\", \"1\", \"-1\"]\n"},
	}
	t.Setenv("SQUADBID_AUTH_SECRET", "s")
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("SQUADBID_AUTH_SECRET", "")
	_, err := config.Load(writeConfig(t, "log:\n  level: info\n"))
	assert.ErrorContains(t, err, "auth.secret")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "config.Load: read")
}
