package failuresink

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the failure-sink component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "failure-sink",
		Factory:     NewComponent,
		Schema:      failureSinkSchema,
		Type:        "processor",
		Protocol:    "nats",
		Domain:      "court",
		Description: "Records terminal pipeline failures for audit and replay",
		Version:     "0.1.0",
	})
}
