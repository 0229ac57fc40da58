package versionwriter

import (
	"fmt"
	"reflect"

	"github.com/c360studio/semstreams/component"

	"github.com/c360studio/courtstream/event"
)

// writerSchema is generated from the Config struct.
var writerSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds version-writer configuration.
type Config struct {
	// Ports define component connectivity
	Ports *component.ComponentPorts `json:"ports,omitempty"`

	// StreamName is the JetStream stream to consume from
	StreamName string `json:"stream_name" default:"COURT" description:"JetStream stream to consume from"`

	// ConsumerName is the durable consumer name
	ConsumerName string `json:"consumer_name" default:"version-writer" description:"Durable consumer name"`

	// Subject is the subject filter for parsed events
	Subject string `json:"subject" default:"court.documents.parsed" description:"Subject to consume parsed events from"`

	// DataDir overrides the canonical store location (defaults to the
	// application data dir)
	DataDir string `json:"data_dir,omitempty" description:"Directory holding the canonical SQLite store"`
}

// DefaultConfig returns the default version-writer configuration.
func DefaultConfig() Config {
	return Config{
		StreamName:   event.StreamName,
		ConsumerName: event.ConsumerWriter,
		Subject:      event.SubjectParsed,
		Ports: &component.ComponentPorts{
			Inputs: []component.PortDefinition{
				{
					Name:        "parsed.in",
					Protocol:    "nats",
					Type:        "jetstream",
					StreamName:  event.StreamName,
					Subject:     event.SubjectParsed,
					Description: "Structured extractions awaiting canonical commit",
					Required:    true,
				},
			},
			Outputs: []component.PortDefinition{
				{
					Name:        "failed.out",
					Protocol:    "nats",
					Type:        "jetstream",
					StreamName:  event.StreamName,
					Subject:     event.SubjectFailed,
					Description: "Consistency violations and storage outages",
					Required:    false,
				},
			},
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.StreamName == "" {
		return fmt.Errorf("stream_name is required")
	}
	if c.ConsumerName == "" {
		return fmt.Errorf("consumer_name is required")
	}
	if c.Subject == "" {
		return fmt.Errorf("subject is required")
	}
	return nil
}
