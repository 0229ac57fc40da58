package failuresink

import (
	"fmt"
	"reflect"

	"github.com/c360studio/semstreams/component"

	"github.com/c360studio/courtstream/event"
)

// failureSinkSchema defines the configuration schema.
var failureSinkSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the failure-sink component.
type Config struct {
	Ports *component.PortConfig `json:"ports" schema:"type:ports,description:Port configuration,category:basic"`

	// StreamName is the JetStream stream holding pipeline events.
	StreamName string `json:"stream_name" schema:"type:string,description:JetStream stream name,category:basic,default:COURT"`

	// ConsumerName is the durable consumer name.
	ConsumerName string `json:"consumer_name" schema:"type:string,description:Durable consumer name,category:basic,default:failure-sink"`

	// Subject is the failed-event subject to consume.
	Subject string `json:"subject" schema:"type:string,description:Failed event subject,category:basic,default:court.documents.failed"`

	// RetainCount is how many recent failures are kept in memory for
	// the status surface.
	RetainCount int `json:"retain_count" schema:"type:int,description:Recent failures kept in memory,category:advanced,default:100"`
}

// DefaultConfig returns default configuration for the failure sink.
func DefaultConfig() Config {
	return Config{
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "failed.in",
					Type:        "jetstream",
					Subject:     event.SubjectFailed,
					StreamName:  event.StreamName,
					Required:    true,
					Description: "Terminal per-document stage failures",
				},
			},
		},
		StreamName:   event.StreamName,
		ConsumerName: event.ConsumerFailureSink,
		Subject:      event.SubjectFailed,
		RetainCount:  100,
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
	if c.RetainCount < 0 {
		return fmt.Errorf("retain_count must be non-negative")
	}
	return nil
}
