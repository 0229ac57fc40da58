package changemonitor

import (
	"fmt"
	"reflect"
	"time"

	"github.com/c360studio/semstreams/component"

	"github.com/c360studio/courtstream/event"
)

// monitorSchema defines the configuration schema.
var monitorSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// DefaultRegistryURL is the public registry of Ukrainian court decisions.
const DefaultRegistryURL = "https://reyestr.court.gov.ua"

// Config holds configuration for the change monitor component.
type Config struct {
	// DiscoveryInterval is how often to poll the registry listings.
	DiscoveryInterval time.Duration `json:"discovery_interval"`

	// RecheckInterval bounds how long a known document goes unverified.
	// Listing signals are unreliable, so documents unchecked for this
	// long are re-announced and the fetch stage decides via content hash.
	RecheckInterval time.Duration `json:"recheck_interval"`

	// RegistryURL is the base URL of the court registry.
	RegistryURL string `json:"registry_url,omitempty"`

	// FetchTimeout bounds a single listing request.
	FetchTimeout time.Duration `json:"fetch_timeout,omitempty"`

	// RateLimit caps listing requests per second.
	RateLimit float64 `json:"rate_limit,omitempty"`

	// Ports contains input/output port definitions.
	Ports *component.PortConfig `json:"ports,omitempty"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		DiscoveryInterval: 10 * time.Minute,
		RecheckInterval:   24 * time.Hour,
		RegistryURL:       DefaultRegistryURL,
		FetchTimeout:      30 * time.Second,
		RateLimit:         2,
		Ports: &component.PortConfig{
			Outputs: []component.PortDefinition{
				{
					Name:        "discovered.out",
					Type:        "jetstream",
					Subject:     event.SubjectDiscovered,
					StreamName:  event.StreamName,
					Required:    true,
					Description: "New and possibly changed documents",
				},
			},
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DiscoveryInterval <= 0 {
		return fmt.Errorf("discovery_interval must be positive")
	}
	if c.RecheckInterval <= 0 {
		return fmt.Errorf("recheck_interval must be positive")
	}
	if c.RegistryURL == "" {
		return fmt.Errorf("registry_url is required")
	}
	return nil
}
