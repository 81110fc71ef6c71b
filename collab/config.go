package collab

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the client configuration, read from a toml file.
type Config struct {
	GatewayUrl   string `toml:"gateway_url"`
	SubscribeUrl string `toml:"subscribe_url"`
	BlobUrl      string `toml:"blob_url"`

	// path of the sqlite local store. Empty selects an in-memory store.
	StorePath string `toml:"store_path,omitempty"`

	SessionTokenPath string `toml:"session_token_path,omitempty"`

	PollIntervalSeconds int `toml:"poll_interval_seconds,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		GatewayUrl:          "https://gateway.opencollab.network",
		SubscribeUrl:        "wss://gateway.opencollab.network",
		BlobUrl:             "https://blobs.opencollab.network",
		PollIntervalSeconds: 15,
	}
}

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "collab.toml"
	}
	return filepath.Join(home, ".config", "collab", "collab.toml")
}

func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return config, nil
}

func (self *Config) PollInterval() time.Duration {
	if self.PollIntervalSeconds <= 0 {
		return DefaultPollerSettings().PollInterval
	}
	return time.Duration(self.PollIntervalSeconds) * time.Second
}

// OpenStore opens the configured local store.
func (self *Config) OpenStore() (LocalStore, error) {
	if self.StorePath == "" {
		return NewMemoryLocalStore(), nil
	}
	if err := os.MkdirAll(filepath.Dir(self.StorePath), 0o700); err != nil {
		return nil, err
	}
	return NewSqliteLocalStore(self.StorePath)
}
