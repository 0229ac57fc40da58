package docparser

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the component registry interface.
type RegistryInterface interface {
	RegisterWithConfig(config component.RegistrationConfig) error
}

// Register registers the doc-parser component with the registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}

	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "doc-parser",
		Factory:     NewComponent,
		Schema:      parserSchema,
		Type:        "processor",
		Protocol:    "nats",
		Domain:      "court",
		Description: "Parses fetched documents into structured legal extractions",
		Version:     "0.1.0",
	})
}
