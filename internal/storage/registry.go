package storage

import (
	"conveyor/internal/common/registry"
)

// DefaultRegistry holds the storage adapters compiled into this binary.
// Adapter packages register themselves in their init functions.
var DefaultRegistry = registry.New[StorageFactory]()

// Register adds a storage factory to the default registry.
func Register(factory StorageFactory) {
	DefaultRegistry.Register(factory.GetType(), factory)
}

// Create builds a storage adapter of the given type from its config.
func Create(storageType string, config StorageConfig) (Storage, error) {
	factory, err := DefaultRegistry.Get(storageType)
	if err != nil {
		return nil, err
	}
	return factory.Create(config)
}

// GetAvailableTypes lists the registered adapter types.
func GetAvailableTypes() []string {
	return DefaultRegistry.GetAvailableTypes()
}
