package changemonitor

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the change-monitor component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "change-monitor",
		Factory:     NewComponent,
		Schema:      monitorSchema,
		Type:        "processor",
		Protocol:    "nats",
		Domain:      "court",
		Description: "Polls the court registry for new and changed documents",
		Version:     "0.1.0",
	})
}
