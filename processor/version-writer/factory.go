package versionwriter

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the component registry interface.
type RegistryInterface interface {
	RegisterWithConfig(config component.RegistrationConfig) error
}

// Register registers the version-writer component with the registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}

	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "version-writer",
		Factory:     NewComponent,
		Schema:      writerSchema,
		Type:        "processor",
		Protocol:    "nats",
		Domain:      "court",
		Description: "Commits parsed versions to the canonical store under the version invariants",
		Version:     "0.1.0",
	})
}
