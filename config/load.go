package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

func LoadFromFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Config{}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	if cfg.StorageDir == "" {
		return nil, fmt.Errorf("config must set storage_dir")
	}

	return &cfg, nil
}
