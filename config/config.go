package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/BurntSushi/toml"
)

// Well-known hotkey ids
const (
	HotkeyIDType        = 1
	HotkeyIDToggleEnter = 2
)

type Config struct {
	EnterKeyEnabled   bool          `toml:"enter_key_enabled" json:"enterKeyEnabled"`
	ShowPreview       bool          `toml:"show_preview" json:"showPreview"`
	TypingDelayMs     int           `toml:"typing_delay_ms" json:"typingDelayMs"`
	TypingHotkey      HotkeyBinding `toml:"typing_hotkey" json:"typingHotkey"`
	EnterToggleHotkey HotkeyBinding `toml:"enter_toggle_hotkey" json:"enterToggleHotkey"`
	Web               WebConfig     `toml:"web" json:"web"`
	History           HistoryConfig `toml:"history" json:"history"`
	Sound             SoundConfig   `toml:"sound" json:"sound"`
}

type WebConfig struct {
	Enabled bool `toml:"enabled" json:"enabled"`
	Port    int  `toml:"port" json:"port"`
}

type HistoryConfig struct {
	Enabled bool `toml:"enabled" json:"enabled"`
}

type SoundConfig struct {
	Enabled bool `toml:"enabled" json:"enabled"`
}

// Default returns the configuration used on first run
func Default() *Config {
	return &Config{
		EnterKeyEnabled:   false,
		ShowPreview:       true,
		TypingDelayMs:     1,
		TypingHotkey:      HotkeyBinding{Modifiers: ModCtrl, KeyCode: 'B'},
		EnterToggleHotkey: HotkeyBinding{Modifiers: ModCtrl | ModAlt, KeyCode: 'B'},
		Web: WebConfig{
			Enabled: false,
			Port:    8765,
		},
		History: HistoryConfig{Enabled: true},
		Sound:   SoundConfig{Enabled: false},
	}
}

// Binding returns the binding registered under the given hotkey id
func (c *Config) Binding(id int) (HotkeyBinding, bool) {
	switch id {
	case HotkeyIDType:
		return c.TypingHotkey, true
	case HotkeyIDToggleEnter:
		return c.EnterToggleHotkey, true
	}
	return HotkeyBinding{}, false
}

// Validate checks the invariants the rest of the application relies on
func (c *Config) Validate() error {
	if c.TypingDelayMs < 0 {
		return fmt.Errorf("typing_delay_ms must be >= 0, got %d", c.TypingDelayMs)
	}
	if err := c.TypingHotkey.Validate(); err != nil {
		return fmt.Errorf("typing_hotkey: %w", err)
	}
	if err := c.EnterToggleHotkey.Validate(); err != nil {
		return fmt.Errorf("enter_toggle_hotkey: %w", err)
	}
	if c.TypingHotkey.SameChord(c.EnterToggleHotkey) {
		return errors.New("typing_hotkey and enter_toggle_hotkey must differ")
	}
	if c.Web.Enabled && (c.Web.Port <= 0 || c.Web.Port > 65535) {
		return fmt.Errorf("invalid web port: %d", c.Web.Port)
	}
	return nil
}

// ConfigDir returns the directory holding config and history files
func ConfigDir() (string, error) {
	var base string
	if runtime.GOOS == "windows" {
		base = os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	} else {
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve config directory: %w", err)
		}
		base = dir
	}

	configDir := filepath.Join(base, "typetool")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}

// ConfigPath returns the path to the configuration file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load loads the configuration from the default path
func Load() (*Config, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(configPath)
}

// LoadFile loads the configuration from path.
// If the file doesn't exist, it creates it with default values
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := save(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	// Missing keys keep their defaults
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// save writes the configuration to the TOML file
func save(path string, cfg *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Store guards the live configuration shared by the tray, the dispatcher and
// the web dashboard. Readers take a Snapshot; writers go through Update which
// persists the result.
type Store struct {
	mu   sync.RWMutex
	cfg  Config
	path string
}

// NewStore wraps cfg. An empty path keeps the store in memory only.
func NewStore(cfg *Config, path string) *Store {
	return &Store{cfg: *cfg, path: path}
}

// Snapshot returns a copy of the current configuration
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Update applies fn to a copy of the configuration, validates it, saves it
// and only then makes it live.
func (s *Store) Update(fn func(*Config)) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg
	fn(&next)
	if err := next.Validate(); err != nil {
		return s.cfg, err
	}
	if s.path != "" {
		if err := save(s.path, &next); err != nil {
			return s.cfg, fmt.Errorf("failed to save config: %w", err)
		}
	}
	s.cfg = next
	return next, nil
}

// Set applies fn and makes the result live before saving it, so a failed
// save still changes the running configuration. An invalid result is
// rejected and nothing changes.
func (s *Store) Set(fn func(*Config)) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg
	fn(&next)
	if err := next.Validate(); err != nil {
		return s.cfg, err
	}
	s.cfg = next
	if s.path != "" {
		if err := save(s.path, &next); err != nil {
			return next, fmt.Errorf("failed to save config: %w", err)
		}
	}
	return next, nil
}
