package docparser

import (
	"fmt"
	"reflect"

	"github.com/c360studio/semstreams/component"

	"github.com/c360studio/courtstream/event"
)

// parserSchema defines the configuration schema.
var parserSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the doc-parser processor component.
type Config struct {
	Ports *component.PortConfig `json:"ports" schema:"type:ports,description:Port configuration,category:basic"`

	// StreamName is the JetStream stream holding pipeline events.
	StreamName string `json:"stream_name" schema:"type:string,description:JetStream stream name,category:basic,default:COURT"`

	// ConsumerName is the durable consumer name.
	ConsumerName string `json:"consumer_name" schema:"type:string,description:Durable consumer name,category:basic,default:doc-parser"`

	// Subject is the fetched-event subject to consume.
	Subject string `json:"subject" schema:"type:string,description:Fetched event subject,category:basic,default:court.documents.fetched"`

	// WorkerCount is the number of concurrent parse workers.
	WorkerCount int `json:"worker_count" schema:"type:int,description:Concurrent parse workers,category:basic,default:4"`

	// ConfidenceThreshold flags extractions below it as low confidence.
	ConfidenceThreshold float64 `json:"confidence_threshold" schema:"type:number,description:Low-confidence cutoff,category:advanced,default:0.5"`

	// DataDir holds the canonical database and the raw document store.
	DataDir string `json:"data_dir,omitempty" schema:"type:string,description:Data directory,category:basic"`
}

// DefaultConfig returns default configuration for the doc-parser processor.
func DefaultConfig() Config {
	return Config{
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "fetched.in",
					Type:        "jetstream",
					Subject:     event.SubjectFetched,
					StreamName:  event.StreamName,
					Required:    true,
					Description: "Fetched and content-addressed documents",
				},
			},
			Outputs: []component.PortDefinition{
				{
					Name:        "parsed.out",
					Type:        "jetstream",
					Subject:     event.SubjectParsed,
					StreamName:  event.StreamName,
					Required:    true,
					Description: "Structured extractions with tentative version numbers",
				},
				{
					Name:        "failed.out",
					Type:        "jetstream",
					Subject:     event.SubjectFailed,
					StreamName:  event.StreamName,
					Required:    true,
					Description: "Terminal parse failures",
				},
			},
		},
		StreamName:          event.StreamName,
		ConsumerName:        event.ConsumerParser,
		Subject:             event.SubjectFetched,
		WorkerCount:         4,
		ConfidenceThreshold: 0.5,
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
	if c.WorkerCount < 0 {
		return fmt.Errorf("worker_count must be non-negative")
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be between 0 and 1")
	}
	return nil
}

// GetWorkerCount returns the worker count clamped to a sane range.
func (c *Config) GetWorkerCount() int {
	n := c.WorkerCount
	if n == 0 {
		n = 4
	}
	if n < 1 {
		n = 1
	}
	if n > 16 {
		n = 16
	}
	return n
}

// GetConfidenceThreshold returns the low-confidence cutoff with default.
func (c *Config) GetConfidenceThreshold() float64 {
	if c.ConfidenceThreshold <= 0 {
		return 0.5
	}
	return c.ConfidenceThreshold
}
