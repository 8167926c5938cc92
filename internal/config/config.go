// Package config loads bita settings from defaults, an optional YAML file,
// a .env file and BITA_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name, so remote.url
// is read from BITA_REMOTE_URL.
const EnvPrefix = "BITA"

// Config holds every setting the CLI and the slot server read.
type Config struct {
	DataDir string `mapstructure:"data_dir"`
	Remote  Remote `mapstructure:"remote"`
	Auth    Auth   `mapstructure:"auth"`
	Sync    Sync   `mapstructure:"sync"`
	Log     Log    `mapstructure:"log"`
	Server  Server `mapstructure:"server"`
}

// Remote configures the backup slot client. An empty URL disables sync.
type Remote struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Auth holds the bearer token identifying the account, and the HS256
// secret used to verify and issue tokens.
type Auth struct {
	Token  string `mapstructure:"token"`
	Secret string `mapstructure:"secret"`
}

type Sync struct {
	Background bool `mapstructure:"background"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Server configures `bita slot serve`.
type Server struct {
	Addr string `mapstructure:"addr"`
	DB   string `mapstructure:"db"`
}

// SyncEnabled reports whether a remote slot is configured.
func (c Config) SyncEnabled() bool { return c.Remote.URL != "" }

func defaults(v *viper.Viper) {
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("remote.url", "")
	v.SetDefault("remote.timeout", 15*time.Second)
	v.SetDefault("auth.token", "")
	v.SetDefault("auth.secret", "")
	v.SetDefault("sync.background", false)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")
	v.SetDefault("server.addr", ":8787")
	v.SetDefault("server.db", "bita-slots.db")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bita"
	}
	return filepath.Join(home, ".local", "share", "bita")
}

// Load reads the configuration. When file is empty, bita.yaml is looked up
// in the working directory and in $HOME/.config/bita; a missing file is
// not an error. An explicitly named file must exist.
func Load(file string) (Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("bita")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "bita"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding variables already set. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}
