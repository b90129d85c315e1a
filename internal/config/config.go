package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"duo/internal/todo"
)

const (
	DefaultConfigFileName = "config.toml"
	DefaultDBName         = "todo.db"
	DefaultLogName        = "todo.log"
	DefaultTokenName      = "token"
	DefaultRemoteRetries  = 3
	appDirName            = "duo"
)

type Keymap struct {
	Quit       string `toml:"quit"`
	Add        string `toml:"add"`
	Up         string `toml:"up"`
	Down       string `toml:"down"`
	Toggle     string `toml:"toggle"`
	Delete     string `toml:"delete"`
	Edit       string `toml:"edit"`
	Grab       string `toml:"grab"`
	SwitchView string `toml:"switch_view"`
	Clear      string `toml:"clear"`
	Login      string `toml:"login"`
	Logout     string `toml:"logout"`
	Confirm    string `toml:"confirm"`
	Cancel     string `toml:"cancel"`
}

type Config struct {
	LocalDBPath   string `toml:"local_db_path"`
	RemoteDSN     string `toml:"remote_dsn"`
	RemoteRetries int    `toml:"remote_retries"`
	TextLimit     int    `toml:"text_limit"`
	StartView     string `toml:"start_view"`
	LogLevel      string `toml:"log_level"`
	LogFile       string `toml:"log_file"`
	TokenPath     string `toml:"token_path"`
	Keys          Keymap `toml:"keys"`
}

// ResolveConfigPath honours $TODO_CONFIG, else <user config dir>/duo/config.toml.
func ResolveConfigPath() string {
	if p := strings.TrimSpace(os.Getenv("TODO_CONFIG")); p != "" {
		return p
	}
	return filepath.Join(configDir(), DefaultConfigFileName)
}

func configDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, appDirName)
}

// LoadOrCreate reads path, writing the defaults there first if it does not
// exist. Environment overrides are applied last.
func LoadOrCreate(path string) (Config, error) {
	base := filepath.Dir(path)
	cfg := defaultConfig(base)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := write(path, cfg); err != nil {
			return cfg, err
		}
		applyEnv(&cfg)
		return cfg, cfg.validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	fillDefaults(&cfg, base)
	applyEnv(&cfg)
	return cfg, cfg.validate()
}

// InitialView is the list shown at startup.
func (c Config) InitialView() todo.ListName {
	if n, err := todo.ParseListName(c.StartView); err == nil {
		return n
	}
	return todo.Active
}

func (c Config) validate() error {
	if c.TextLimit < 0 {
		return fmt.Errorf("text_limit must be >= 0, got %d", c.TextLimit)
	}
	if _, err := todo.ParseListName(c.StartView); err != nil {
		return fmt.Errorf("start_view: %w", err)
	}
	return nil
}

func write(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("TODO_REMOTE_DSN"); ok && v != "" {
		cfg.RemoteDSN = v
	}
	if v, ok := os.LookupEnv("TODO_DB_PATH"); ok && v != "" {
		cfg.LocalDBPath = v
	}
	if v, ok := os.LookupEnv("TODO_LOG_LEVEL"); ok && v != "" {
		cfg.LogLevel = v
	}
}

func fillDefaults(cfg *Config, base string) {
	def := defaultConfig(base)
	if cfg.LocalDBPath == "" {
		cfg.LocalDBPath = def.LocalDBPath
	}
	if cfg.StartView == "" {
		cfg.StartView = def.StartView
	}
	if cfg.RemoteRetries <= 0 {
		cfg.RemoteRetries = def.RemoteRetries
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if cfg.LogFile == "" {
		cfg.LogFile = def.LogFile
	}
	if cfg.TokenPath == "" {
		cfg.TokenPath = def.TokenPath
	}
	k, d := &cfg.Keys, def.Keys
	for _, pair := range []struct {
		dst *string
		src string
	}{
		{&k.Quit, d.Quit}, {&k.Add, d.Add}, {&k.Up, d.Up}, {&k.Down, d.Down},
		{&k.Toggle, d.Toggle}, {&k.Delete, d.Delete}, {&k.Edit, d.Edit}, {&k.Grab, d.Grab},
		{&k.SwitchView, d.SwitchView}, {&k.Clear, d.Clear}, {&k.Login, d.Login},
		{&k.Logout, d.Logout}, {&k.Confirm, d.Confirm}, {&k.Cancel, d.Cancel},
	} {
		if *pair.dst == "" {
			*pair.dst = pair.src
		}
	}
}

func defaultConfig(base string) Config {
	return Config{
		LocalDBPath:   filepath.Join(base, DefaultDBName),
		RemoteRetries: DefaultRemoteRetries,
		TextLimit:     todo.DefaultTextLimit,
		StartView:     string(todo.Active),
		LogLevel:      "info",
		LogFile:       filepath.Join(base, DefaultLogName),
		TokenPath:     filepath.Join(base, DefaultTokenName),
		Keys: Keymap{
			Quit:       "q",
			Add:        "a",
			Up:         "k",
			Down:       "j",
			Toggle:     " ",
			Delete:     "d",
			Edit:       "e",
			Grab:       "g",
			SwitchView: "tab",
			Clear:      "C",
			Login:      "L",
			Logout:     "O",
			Confirm:    "enter",
			Cancel:     "esc",
		},
	}
}
