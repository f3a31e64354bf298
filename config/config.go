package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"burnrouter/crypto"

	"github.com/BurntSushi/toml"
)

// Config is the node-local configuration of the settlement daemon.
type Config struct {
	DataDir           string `toml:"DataDir"`
	GenesisFile       string `toml:"GenesisFile"`
	OwnerKeystorePath string `toml:"OwnerKeystorePath"`
	// StorageBackend selects the state store: "leveldb" or "bolt".
	StorageBackend string `toml:"StorageBackend"`
	// EngineLabel derives the engine's account address.
	EngineLabel string `toml:"EngineLabel"`
}

// DefaultEngineLabel is used when the config does not name the engine.
const DefaultEngineLabel = "burnrouter/engine"

// Supported state store backends.
const (
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
)

// Load loads the configuration from the given path. A missing file is created
// with defaults and a fresh owner keystore.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown keys: %v", path, undecoded)
	}

	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./burnrouter-data"
	}
	if strings.TrimSpace(cfg.EngineLabel) == "" {
		cfg.EngineLabel = DefaultEngineLabel
	}
	switch strings.ToLower(strings.TrimSpace(cfg.StorageBackend)) {
	case "", BackendLevelDB:
		cfg.StorageBackend = BackendLevelDB
	case BackendBolt:
		cfg.StorageBackend = BackendBolt
	default:
		return nil, fmt.Errorf("config file %s: unsupported storage backend %q", path, cfg.StorageBackend)
	}
	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EngineAddress returns the engine account derived from EngineLabel.
func (c *Config) EngineAddress() [20]byte {
	return crypto.DeriveAddress(c.EngineLabel)
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.OwnerKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if _, err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.OwnerKeystorePath != keystorePath {
		cfg.OwnerKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if _, err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:           "./burnrouter-data",
		GenesisFile:       "",
		OwnerKeystorePath: keystorePath,
		StorageBackend:    BackendLevelDB,
		EngineLabel:       DefaultEngineLabel,
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "owner.keystore")
}
