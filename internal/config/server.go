package config

import (
	"fmt"
	"time"
)

// Store backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Config file keys understood by ServerConfig.Apply.
const (
	KeyPort            = "port"
	KeyDataDir         = "data_dir"
	KeyStore           = "store"
	KeyWebDir          = "web_dir"
	KeyCompactInterval = "compact_interval"
	KeyTokenHash       = "token_hash"
	KeyEncrypt         = "encrypt"
	KeyAllowedOrigins  = "allowed_origins"
)

// ServerConfig holds the settings of the ruleast server.
type ServerConfig struct {
	Port            int
	DataDir         string
	Store           string
	WebDir          string
	CompactInterval time.Duration
	// TokenHash is a bcrypt hash of the API token. Empty disables auth.
	TokenHash string
	// Encrypt seals file store snapshots with the master key.
	Encrypt        bool
	AllowedOrigins []string
}

// Defaults returns the built-in server settings.
func Defaults() ServerConfig {
	return ServerConfig{
		Port:            3000,
		DataDir:         "./data",
		Store:           StoreFile,
		CompactInterval: time.Minute,
		AllowedOrigins:  []string{"*"},
	}
}

// serverKeys lists every key Apply understands, in file order.
var serverKeys = []string{
	KeyPort, KeyDataDir, KeyStore, KeyWebDir,
	KeyCompactInterval, KeyTokenHash, KeyEncrypt, KeyAllowedOrigins,
}

// Apply overlays the keys present in c onto sc and returns the keys it set.
func (sc *ServerConfig) Apply(c Config) []string {
	sc.Port = c.Int(KeyPort, sc.Port)
	sc.DataDir = c.String(KeyDataDir, sc.DataDir)
	sc.Store = c.String(KeyStore, sc.Store)
	sc.WebDir = c.String(KeyWebDir, sc.WebDir)
	sc.CompactInterval = c.Duration(KeyCompactInterval, sc.CompactInterval)
	sc.TokenHash = c.String(KeyTokenHash, sc.TokenHash)
	sc.Encrypt = c.Bool(KeyEncrypt, sc.Encrypt)
	sc.AllowedOrigins = c.StringSlice(KeyAllowedOrigins, sc.AllowedOrigins)

	var set []string
	for _, k := range serverKeys {
		if c.Has(k) {
			set = append(set, k)
		}
	}
	return set
}

// Validate reports the first invalid setting.
func (sc ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return fmt.Errorf("invalid port: %d", sc.Port)
	}
	switch sc.Store {
	case StoreFile, StoreSQLite:
	default:
		return fmt.Errorf("unknown store %q (want %s or %s)", sc.Store, StoreFile, StoreSQLite)
	}
	if sc.DataDir == "" {
		return fmt.Errorf("data dir is required")
	}
	if sc.Store == StoreFile && sc.CompactInterval <= 0 {
		return fmt.Errorf("compact interval must be positive, got %v", sc.CompactInterval)
	}
	return nil
}
