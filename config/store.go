package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PRINTBRIDGE_DEVICENAME.
const EnvPrefix = "PRINTBRIDGE"

// Configuration keys.
const (
	KeyDeviceName        = "deviceName"
	KeyCharacterSet      = "characterSet"
	KeyPaperColumns      = "paperColumns"
	KeyConnectTimeoutMs  = "connectTimeoutMs"
	KeySpoolTimeoutMs    = "spoolTimeoutMs"
	KeyLineCharacter     = "lineCharacter"
	KeySubstitute        = "substituteCharacter"
	KeyDefaultHeader     = "defaultHeader"
	KeyDefaultSubtitle   = "defaultSubtitle"
	KeyDefaultFooter     = "defaultFooter"
	KeyKioskMode         = "kioskMode"
	KeyDebugMode         = "debugMode"
	KeyAppURL            = "appUrl"
	KeyChromePath        = "chromePath"
	KeyListenAddress     = "listenAddress"
	KeyRawAddress        = "rawAddress"
	KeyHistoryPath       = "historyPath"
	KeyRequestsPerSecond = "requestsPerSecond"
)

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDeviceName, DefaultDeviceName)
	v.SetDefault(KeyCharacterSet, string(DefaultCharacterSet))
	v.SetDefault(KeyPaperColumns, DefaultColumns)
	v.SetDefault(KeyConnectTimeoutMs, DefaultConnectTimeoutMs)
	v.SetDefault(KeySpoolTimeoutMs, DefaultSpoolTimeoutMs)
	v.SetDefault(KeyLineCharacter, DefaultLineCharacter)
	v.SetDefault(KeySubstitute, DefaultSubstitute)
	v.SetDefault(KeyDefaultHeader, DefaultHeader)
	v.SetDefault(KeyDefaultSubtitle, DefaultSubtitle)
	v.SetDefault(KeyDefaultFooter, DefaultFooter)
	v.SetDefault(KeyKioskMode, false)
	v.SetDefault(KeyDebugMode, true)
	v.SetDefault(KeyAppURL, DefaultAppURL)
	v.SetDefault(KeyChromePath, "")
	v.SetDefault(KeyListenAddress, DefaultListenAddress)
	v.SetDefault(KeyRawAddress, "")
	v.SetDefault(KeyHistoryPath, "")
	v.SetDefault(KeyRequestsPerSecond, DefaultRequestsPerSec)
}

// Store is a Provider backed by viper. The snapshot is rebuilt whenever the
// config file changes; readers always see a complete snapshot.
type Store struct {
	v    *viper.Viper
	mu   sync.RWMutex
	snap Snapshot
}

// NewStore wraps an already configured viper instance.
func NewStore(v *viper.Viper) *Store {
	s := &Store{v: v}
	s.snap = s.build()
	return s
}

// DefaultDir returns the directory the default config file lives in.
func DefaultDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "printbridge"), nil
}

// Load reads configuration into v. With an explicit path the file must be
// readable. Without one the default location is searched and, when absent,
// a file holding the defaults is created there. Any error is fatal to
// startup.
func Load(v *viper.Viper, path string) (*Store, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		return NewStore(v), nil
	}

	dir, err := DefaultDir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate config directory: %w", err)
	}
	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
		file := filepath.Join(dir, "config.toml")
		if err := v.SafeWriteConfigAs(file); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
		v.SetConfigFile(file)
	}

	return NewStore(v), nil
}

// Snapshot implements Provider.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Path returns the config file in use, if any.
func (s *Store) Path() string {
	return s.v.ConfigFileUsed()
}

// Watch reloads the snapshot when the config file changes and calls
// onChange with the new snapshot.
func (s *Store) Watch(logger *slog.Logger, onChange func(Snapshot)) {
	if logger == nil {
		logger = slog.Default()
	}
	s.v.OnConfigChange(func(e fsnotify.Event) {
		snap := s.reload()
		logger.Info("configuration reloaded", "file", e.Name, "op", e.Op.String(), "device", snap.DeviceName)
		if onChange != nil {
			onChange(snap)
		}
	})
	s.v.WatchConfig()
}

func (s *Store) reload() Snapshot {
	snap := s.build()
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	return snap
}

func (s *Store) build() Snapshot {
	v := s.v
	return Snapshot{
		PrinterConfig: PrinterConfig{
			DeviceName:          v.GetString(KeyDeviceName),
			CharacterSet:        CharacterSet(v.GetString(KeyCharacterSet)),
			PaperColumns:        v.GetInt(KeyPaperColumns),
			ConnectTimeoutMs:    v.GetInt(KeyConnectTimeoutMs),
			SpoolTimeoutMs:      v.GetInt(KeySpoolTimeoutMs),
			LineCharacter:       v.GetString(KeyLineCharacter),
			SubstituteCharacter: v.GetString(KeySubstitute),
			DefaultHeader:       v.GetString(KeyDefaultHeader),
			DefaultSubtitle:     v.GetString(KeyDefaultSubtitle),
			DefaultFooter:       v.GetString(KeyDefaultFooter),
		},
		KioskMode:         v.GetBool(KeyKioskMode),
		DebugMode:         v.GetBool(KeyDebugMode),
		AppURL:            v.GetString(KeyAppURL),
		ChromePath:        v.GetString(KeyChromePath),
		ListenAddress:     v.GetString(KeyListenAddress),
		RawAddress:        v.GetString(KeyRawAddress),
		HistoryPath:       v.GetString(KeyHistoryPath),
		RequestsPerSecond: v.GetFloat64(KeyRequestsPerSecond),
	}.Normalize()
}
