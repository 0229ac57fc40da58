package spoolwatcher

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the component registry interface.
type RegistryInterface interface {
	RegisterWithConfig(config component.RegistrationConfig) error
}

// Register registers the spool-watcher component with the registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}

	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "spool-watcher",
		Factory:     NewComponent,
		Schema:      watcherSchema,
		Type:        "processor",
		Protocol:    "nats",
		Domain:      "court",
		Description: "Announces bulk registry exports dropped into the local spool",
		Version:     "0.1.0",
	})
}
