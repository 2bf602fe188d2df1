package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configVars = []string{
	"ROCKETCHAT_URL", "ROCKETCHAT_USER", "ROCKETCHAT_PASSWORD", "POLL_STATUS_ROOM",
	"MENSA_ROOM", "DB_PATH", "ETM_DEFAULT_OPTION", "POLL_RETENTION", "RESTART_DELAY",
	"TIMEZONE", "DEBUG",
}

// clearEnv обнуляет переменные на время теста. godotenv не перезаписывает
// уже заданные переменные, поэтому пустые значения снимаются через Unsetenv.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range configVars {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("ROCKETCHAT_URL", "https://chat.example.org")
	t.Setenv("ROCKETCHAT_USER", "pollbot")
	t.Setenv("ROCKETCHAT_PASSWORD", "secret")
	t.Setenv("POLL_STATUS_ROOM", "poll-status")
}

func noEnvFile(t *testing.T) []string {
	return []string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	setRequired(t)

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example.org", cfg.ServerURL)
	assert.Equal(t, "pollbot", cfg.Username)
	assert.Equal(t, "poll-status", cfg.StatusRoom)
	assert.Empty(t, cfg.MensaRoom)
	assert.Equal(t, "bot.db", cfg.DBPath)
	assert.Equal(t, "11:30", cfg.EtmDefaultOption)
	assert.Equal(t, 7*24*time.Hour, cfg.PollRetention)
	assert.Equal(t, 10*time.Second, cfg.RestartDelay)
	assert.Equal(t, time.Local, cfg.Location)
	assert.False(t, cfg.Debug)
}

func TestLoadConfig_Required(t *testing.T) {
	clearEnv(t)
	t.Setenv("ROCKETCHAT_URL", "https://chat.example.org")

	_, err := LoadConfig(nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "ROCKETCHAT_USER is required")
	assert.ErrorContains(t, err, "POLL_STATUS_ROOM is required")
}

func TestLoadConfig_EnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bot.env")
	content := "ROCKETCHAT_URL=https://file.example.org\n" +
		"ROCKETCHAT_USER=filebot\n" +
		"ROCKETCHAT_PASSWORD=filesecret\n" +
		"POLL_STATUS_ROOM=status\n" +
		"MENSA_ROOM=mensa\n" +
		"POLL_RETENTION=48h\n" +
		"TIMEZONE=Europe/Berlin\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	// окружение важнее файла
	t.Setenv("ROCKETCHAT_USER", "envbot")

	cfg, err := LoadConfig([]string{"--env-file", path})
	require.NoError(t, err)
	assert.True(t, cfg.EnvFileLoaded)
	assert.Equal(t, "https://file.example.org", cfg.ServerURL)
	assert.Equal(t, "envbot", cfg.Username)
	assert.Equal(t, "mensa", cfg.MensaRoom)
	assert.Equal(t, 48*time.Hour, cfg.PollRetention)
	assert.Equal(t, "Europe/Berlin", cfg.Location.String())
}

func TestLoadConfig_MissingExplicitEnvFile(t *testing.T) {
	clearEnv(t)
	setRequired(t)

	_, err := LoadConfig(noEnvFile(t))
	assert.Error(t, err)
}

func TestLoadConfig_Debug(t *testing.T) {
	clearEnv(t)
	setRequired(t)

	t.Setenv("DEBUG", "true")
	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.True(t, cfg.Debug)

	// флаг важнее переменной
	cfg, err = LoadConfig([]string{"--debug=false"})
	require.NoError(t, err)
	assert.False(t, cfg.Debug)
}

func TestLoadConfig_Invalid(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv("POLL_RETENTION", "a week")
	t.Setenv("TIMEZONE", "Mars/Olympus")

	_, err := LoadConfig(nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "POLL_RETENTION")
	assert.ErrorContains(t, err, "TIMEZONE")

	_, err = LoadConfig([]string{"--no-such-flag"})
	assert.Error(t, err)
}
