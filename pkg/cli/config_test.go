package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserConfig_ActiveProfile(t *testing.T) {
	cfg := &UserConfig{
		CurrentProfile: "default",
		Profiles: map[string]Profile{
			"default": {Host: "http://localhost:8080", User: "alice"},
			"prod":    {Host: "https://hue.example.com", User: "etl", Output: "json"},
		},
	}

	tests := []struct {
		name     string
		override string
		wantHost string
		wantErr  string
	}{
		{name: "uses_current_profile", wantHost: "http://localhost:8080"},
		{name: "override", override: "prod", wantHost: "https://hue.example.com"},
		{name: "unknown_override", override: "nope", wantErr: `profile "nope" not found`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := cfg.ActiveProfile(tt.override)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, p.Host)
		})
	}
}

func TestUserConfig_RoundTripFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, SaveUserConfig(&UserConfig{
		CurrentProfile: "prod",
		Profiles:       map[string]Profile{"prod": {Host: "https://hue.example.com"}},
	}))

	info, err := os.Stat(filepath.Join(home, ".hue", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cfg, err := LoadUserConfig()
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.CurrentProfile)
	assert.Equal(t, "https://hue.example.com", cfg.Profiles["prod"].Host)
}

func TestConfigCommands(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("HUE_HOST", "")
	t.Setenv("HUE_USER", "")
	t.Setenv("HUE_OUTPUT", "")

	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		cmd := newRootCmd()
		cmd.SetOut(&out)
		cmd.SetArgs(args)
		err := cmd.Execute()
		return out.String(), err
	}

	_, err := run("config", "set-profile", "prod", "--host", "https://hue.example.com", "--user", "etl", "--use")
	require.NoError(t, err)

	cfg, err := LoadUserConfig()
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.CurrentProfile)
	assert.Equal(t, Profile{Host: "https://hue.example.com", User: "etl"}, cfg.Profiles["prod"])

	_, err = run("config", "use", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `profile "missing" not found`)

	out, err := run("config", "view")
	require.NoError(t, err)
	assert.Contains(t, out, "https://hue.example.com")
	assert.Contains(t, out, "*")
}
