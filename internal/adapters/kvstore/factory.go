package kvstore

import (
	"fmt"

	"github.com/taskmaster/planner/internal/infrastructure/config"
	"github.com/taskmaster/planner/internal/ports"
)

// New builds the KeyValueStore selected by configuration.
func New(cfg *config.Config) (ports.KeyValueStore, error) {
	return NewProvider(cfg, cfg.Storage.Provider)
}

// NewProvider builds a specific provider's store, used by provider-to-provider
// migration where source and target differ.
func NewProvider(cfg *config.Config, provider string) (ports.KeyValueStore, error) {
	switch provider {
	case "memory":
		return NewMemoryStore(cfg.Storage.Capacity), nil
	case "redis":
		return NewRedisStore(cfg.Redis)
	case "postgres":
		return NewPostgresStore(cfg.Database)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", provider)
	}
}
