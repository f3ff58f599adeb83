package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "ircserv.yaml", `
server:
  name: irc.example.net
  port: 7000
  password: hunter2
limits:
  max_line: 1024
  flood_rate: 2.5
motd: /etc/motd.txt
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "irc.example.net", cfg.Server.Name)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "hunter2", cfg.Server.Password)
	assert.Equal(t, 1024, cfg.Limits.MaxLine)
	assert.Equal(t, 2.5, cfg.Limits.FloodRate)
	assert.Equal(t, "/etc/motd.txt", cfg.MOTD)

	// defaults survive for fields the file leaves out
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 30, cfg.Limits.NickLen)
	assert.NoError(t, cfg.Validate())
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "ircserv.toml", `
[server]
name = "irc.toml.net"
port = 6697
password = "s3cret!"

[metrics]
listen = "127.0.0.1:9090"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "irc.toml.net", cfg.Server.Name)
	assert.Equal(t, 6697, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1:9090", cfg.Metrics.Listen)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("IRCSERV_PORT", "6668")
	t.Setenv("IRCSERV_PASSWORD", "fromenv")
	t.Setenv("IRCSERV_DEBUG", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 6668, cfg.Server.Port)
	assert.Equal(t, "fromenv", cfg.Server.Password)
	assert.True(t, cfg.Log.Debug)

	t.Setenv("IRCSERV_PORT", "66x")
	_, err = Load("")
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	path := writeFile(t, ".env", "IRCSERV_NETWORK=DotEnvNet\n")
	t.Setenv("IRCSERV_NETWORK", "")
	os.Unsetenv("IRCSERV_NETWORK")

	require.NoError(t, LoadEnvFile(path))
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "DotEnvNet", cfg.Server.Network)
}

func TestParsePort(t *testing.T) {
	for _, s := range []string{"1", "6667", "65535"} {
		_, err := ParsePort(s)
		assert.NoError(t, err, s)
	}
	for _, s := range []string{"", "0", "65536", "-1", "+6667", "66 67", "6667a", "99999999999999999999"} {
		_, err := ParsePort(s)
		assert.Error(t, err, s)
	}
}

func TestValidatePassword(t *testing.T) {
	for _, p := range []string{"abcd", "P4ss-w0rd!", "a.b_c=d+e"} {
		assert.NoError(t, ValidatePassword(p), p)
	}
	for _, p := range []string{"", "abc", "has space", "bad/slash", "ünïcode"} {
		assert.Error(t, ValidatePassword(p), p)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate(), "password is required")

	cfg.Server.Password = "abc"
	assert.Error(t, cfg.Validate())

	cfg.Server.Password = "abcd"
	assert.NoError(t, cfg.Validate())

	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())
	cfg.Server.Port = 6667

	cfg.Limits.FloodRate = 1
	cfg.Limits.FloodBurst = 0
	assert.Error(t, cfg.Validate())
}

func TestCheckPassword(t *testing.T) {
	cfg := Default()
	cfg.Server.Password = "hunter2"
	assert.True(t, cfg.CheckPassword("hunter2"))
	assert.False(t, cfg.CheckPassword("hunter3"))
	assert.False(t, cfg.CheckPassword(""))

	hash, err := bcrypt.GenerateFromPassword([]byte("hashed!"), bcrypt.MinCost)
	require.NoError(t, err)
	cfg.Server.PasswordHash = string(hash)
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.CheckPassword("hashed!"))
	assert.False(t, cfg.CheckPassword("hunter2"), "hash takes precedence")

	cfg.Server.PasswordHash = "not-a-hash"
	assert.Error(t, cfg.Validate())
}
