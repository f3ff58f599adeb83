package config

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// SpecialChars are the non-alphanumeric characters allowed in the server
// password.
const SpecialChars = "!@#$%^&*()-_=+."

// PasswordRule describes SpecialChars for error messages.
const PasswordRule = "password must be at least 4 characters of letters, digits or " + SpecialChars

// Config holds all server configuration
type Config struct {
	Server struct {
		Name         string `yaml:"name" toml:"name"`
		Network      string `yaml:"network" toml:"network"`
		Host         string `yaml:"host" toml:"host"`
		Port         int    `yaml:"port" toml:"port"`
		Password     string `yaml:"password" toml:"password"`
		PasswordHash string `yaml:"password_hash" toml:"password_hash"`
	} `yaml:"server" toml:"server"`

	Limits struct {
		MaxLine     int     `yaml:"max_line" toml:"max_line"`
		SendQ       int     `yaml:"sendq" toml:"sendq"`
		NickLen     int     `yaml:"nick_len" toml:"nick_len"`
		ChannelLen  int     `yaml:"channel_len" toml:"channel_len"`
		MaxChannels int     `yaml:"max_channels_per_user" toml:"max_channels_per_user"`
		FloodRate   float64 `yaml:"flood_rate" toml:"flood_rate"`
		FloodBurst  int     `yaml:"flood_burst" toml:"flood_burst"`
	} `yaml:"limits" toml:"limits"`

	MOTD string `yaml:"motd" toml:"motd"`

	Metrics struct {
		Listen string `yaml:"listen" toml:"listen"`
	} `yaml:"metrics" toml:"metrics"`

	Log struct {
		Debug bool   `yaml:"debug" toml:"debug"`
		File  string `yaml:"file" toml:"file"`
	} `yaml:"log" toml:"log"`
}

// Default returns a configuration with every optional field filled in.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Name = "ircserv.local"
	cfg.Server.Network = "ircserv"
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 6667
	cfg.Limits.MaxLine = 512
	cfg.Limits.SendQ = 64 * 1024
	cfg.Limits.NickLen = 30
	cfg.Limits.ChannelLen = 50
	cfg.Limits.MaxChannels = 20
	cfg.Limits.FloodBurst = 10
	return cfg
}

// Load reads a YAML or TOML configuration file on top of the defaults and
// applies IRCSERV_* environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".toml":
			err = toml.Unmarshal(data, cfg)
		default:
			err = yaml.Unmarshal(data, cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=value pairs from a dotenv file into the process
// environment without overriding variables that are already set.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"IRCSERV_NAME":          &c.Server.Name,
		"IRCSERV_NETWORK":       &c.Server.Network,
		"IRCSERV_HOST":          &c.Server.Host,
		"IRCSERV_PASSWORD":      &c.Server.Password,
		"IRCSERV_PASSWORD_HASH": &c.Server.PasswordHash,
		"IRCSERV_MOTD":          &c.MOTD,
		"IRCSERV_METRICS":       &c.Metrics.Listen,
		"IRCSERV_LOG_FILE":      &c.Log.File,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("IRCSERV_PORT"); ok {
		port, err := ParsePort(v)
		if err != nil {
			return fmt.Errorf("IRCSERV_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v, ok := os.LookupEnv("IRCSERV_DEBUG"); ok {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("IRCSERV_DEBUG: %w", err)
		}
		c.Log.Debug = debug
	}
	return nil
}

// ParsePort validates a listening port given as text: digits only, 1-65535.
func ParsePort(s string) (int, error) {
	if s == "" {
		return 0, errors.New("port is empty")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non-digit character found in port %q", s)
		}
	}
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %q is out of range 1-65535", s)
	}
	return port, nil
}

// ValidatePassword checks the server password rule.
func ValidatePassword(p string) error {
	if len(p) < 4 {
		return errors.New("password is less than 4 characters")
	}
	for _, r := range p {
		if !isAlnum(r) && !strings.ContainsRune(SpecialChars, r) {
			return fmt.Errorf("invalid character in password: %q: %s", r, PasswordRule)
		}
	}
	return nil
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// Validate checks the configuration before the server starts. Any error
// is fatal.
func (c *Config) Validate() error {
	if c.Server.Name == "" || strings.ContainsAny(c.Server.Name, " :") {
		return fmt.Errorf("invalid server name %q", c.Server.Name)
	}
	if c.Server.Network == "" || strings.ContainsAny(c.Server.Network, " :") {
		return fmt.Errorf("invalid network name %q", c.Server.Network)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("port %d is out of range 1-65535", c.Server.Port)
	}

	switch {
	case c.Server.PasswordHash != "":
		if _, err := bcrypt.Cost([]byte(c.Server.PasswordHash)); err != nil {
			return fmt.Errorf("invalid password_hash: %w", err)
		}
	case c.Server.Password != "":
		if err := ValidatePassword(c.Server.Password); err != nil {
			return err
		}
	default:
		return errors.New("a server password is required")
	}

	if c.Limits.MaxLine < 16 {
		return fmt.Errorf("max_line %d is too small", c.Limits.MaxLine)
	}
	if c.Limits.SendQ < 0 || c.Limits.NickLen < 1 || c.Limits.ChannelLen < 2 || c.Limits.MaxChannels < 0 {
		return errors.New("limits must not be negative")
	}
	if c.Limits.FloodRate < 0 || (c.Limits.FloodRate > 0 && c.Limits.FloodBurst < 1) {
		return errors.New("flood_rate needs a positive flood_burst")
	}
	return nil
}

// CheckPassword compares a PASS candidate against the configured password
// or bcrypt hash.
func (c *Config) CheckPassword(candidate string) bool {
	if c.Server.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(c.Server.PasswordHash), []byte(candidate)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(c.Server.Password), []byte(candidate)) == 1
}

// ListenAddress returns host:port for the client listener.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
