package docfetcher

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the doc-fetcher component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "doc-fetcher",
		Factory:     NewComponent,
		Schema:      fetcherSchema,
		Type:        "processor",
		Protocol:    "nats",
		Domain:      "court",
		Description: "Downloads discovered documents and dedups them by content hash",
		Version:     "0.1.0",
	})
}
