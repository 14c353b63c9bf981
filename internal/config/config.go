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

	"github.com/pookietalk/pookie/internal/server"
)

const EnvPrefix = "POOKIE"

type Config struct {
	APIURL      string        `mapstructure:"api_url"`
	SocketURL   string        `mapstructure:"socket_url"`
	TokenStore  string        `mapstructure:"token_store"`
	TokenPath   string        `mapstructure:"token_path"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`

	Server server.Config `mapstructure:"server"`
}

var defaults = map[string]any{
	"api_url":      "http://localhost:8080",
	"socket_url":   "ws://localhost:8080/ws",
	"token_store":  "file",
	"token_path":   filepath.Join("~", ".config", "pookie", "credentials.yaml"),
	"http_timeout": time.Duration(0),

	"server.addr":          ":8080",
	"server.db_driver":     "sqlite3",
	"server.db_dsn":        "pookie.db",
	"server.jwt_secret":    "",
	"server.token_ttl":     24 * time.Hour,
	"server.app_url":       "http://localhost:8080",
	"server.history_limit": 200,
	"server.smtp_host":     "",
	"server.smtp_port":     "587",
	"server.smtp_user":     "",
	"server.smtp_pass":     "",
	"server.smtp_from":     "noreply@pookietalk.local",
}

// LoadEnv reads a .env file from the working directory when one exists.
// Variables already set in the environment win.
func LoadEnv() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	envPath := filepath.Join(cwd, ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envPath, err)
	}
	return nil
}

// New returns a viper instance with defaults and environment overrides,
// e.g. POOKIE_API_URL or POOKIE_SERVER_JWT_SECRET.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file at path into v and decodes the
// result. With an empty path, pookie.yaml is looked up in the working
// directory and ~/.config/pookie; a missing file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path == "" {
		v.SetConfigName("pookie")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "pookie"))
		}
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.TokenPath = expandHome(c.TokenPath)
	return &c, nil
}

func expandHome(p string) string {
	rest, ok := strings.CutPrefix(p, "~")
	if !ok || (rest != "" && rest[0] != '/' && rest[0] != filepath.Separator) {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, rest)
}
