package docfetcher

import (
	"fmt"
	"reflect"
	"time"

	"github.com/c360studio/semstreams/component"

	"github.com/c360studio/courtstream/event"
)

// fetcherSchema defines the configuration schema.
var fetcherSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the doc-fetcher processor component.
type Config struct {
	Ports *component.PortConfig `json:"ports" schema:"type:ports,description:Port configuration,category:basic"`

	// StreamName is the JetStream stream holding pipeline events.
	StreamName string `json:"stream_name" schema:"type:string,description:JetStream stream name,category:basic,default:COURT"`

	// ConsumerName is the durable consumer name.
	ConsumerName string `json:"consumer_name" schema:"type:string,description:Durable consumer name,category:basic,default:doc-fetcher"`

	// Subject is the discovered-event subject to consume.
	Subject string `json:"subject" schema:"type:string,description:Discovered event subject,category:basic,default:court.documents.discovered"`

	// WorkerCount is the number of concurrent fetch workers.
	WorkerCount int `json:"worker_count" schema:"type:int,description:Concurrent fetch workers,category:basic,default:8"`

	// MaxAttempts bounds retries for transient fetch failures.
	MaxAttempts int `json:"max_attempts" schema:"type:int,description:Fetch attempts per document,category:advanced,default:4"`

	// FetchTimeout is the maximum time for a single download.
	FetchTimeout string `json:"fetch_timeout" schema:"type:string,description:HTTP fetch timeout,category:advanced,default:30s"`

	// MaxContentSize is the maximum response body size in bytes.
	MaxContentSize int64 `json:"max_content_size" schema:"type:int,description:Maximum content size in bytes,category:advanced,default:10485760"`

	// UserAgent is the User-Agent header for registry requests.
	UserAgent string `json:"user_agent" schema:"type:string,description:HTTP User-Agent header,category:advanced,default:courtstream/0.1"`

	// RateLimit caps registry requests per second across all workers.
	RateLimit float64 `json:"rate_limit" schema:"type:number,description:Registry requests per second,category:advanced,default:2"`

	// Burst is the short-term burst allowance on top of RateLimit.
	Burst int `json:"burst" schema:"type:int,description:Rate limit burst allowance,category:advanced,default:4"`

	// LeaseTTL reclaims a fetch lease after a worker dies mid-fetch.
	LeaseTTL string `json:"lease_ttl" schema:"type:string,description:Fetch lease expiry,category:advanced,default:5m"`

	// SpoolDir enables file:// source URLs confined to this directory.
	SpoolDir string `json:"spool_dir,omitempty" schema:"type:string,description:Local spool directory for file sources,category:advanced"`

	// DataDir holds the canonical database and the raw document store.
	DataDir string `json:"data_dir,omitempty" schema:"type:string,description:Data directory,category:basic"`
}

// DefaultConfig returns default configuration for the doc-fetcher processor.
func DefaultConfig() Config {
	return Config{
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "discovered.in",
					Type:        "jetstream",
					Subject:     event.SubjectDiscovered,
					StreamName:  event.StreamName,
					Required:    true,
					Description: "New and possibly changed documents",
				},
			},
			Outputs: []component.PortDefinition{
				{
					Name:        "fetched.out",
					Type:        "jetstream",
					Subject:     event.SubjectFetched,
					StreamName:  event.StreamName,
					Required:    true,
					Description: "Fetched and content-addressed documents",
				},
				{
					Name:        "failed.out",
					Type:        "jetstream",
					Subject:     event.SubjectFailed,
					StreamName:  event.StreamName,
					Required:    true,
					Description: "Terminal fetch failures",
				},
			},
		},
		StreamName:     event.StreamName,
		ConsumerName:   event.ConsumerFetcher,
		Subject:        event.SubjectDiscovered,
		WorkerCount:    8,
		MaxAttempts:    4,
		FetchTimeout:   "30s",
		MaxContentSize: 10 * 1024 * 1024,
		UserAgent:      "courtstream/0.1",
		RateLimit:      2,
		Burst:          4,
		LeaseTTL:       "5m",
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
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must be non-negative")
	}
	if c.FetchTimeout != "" {
		if _, err := time.ParseDuration(c.FetchTimeout); err != nil {
			return fmt.Errorf("invalid fetch_timeout format: %w", err)
		}
	}
	if c.LeaseTTL != "" {
		if _, err := time.ParseDuration(c.LeaseTTL); err != nil {
			return fmt.Errorf("invalid lease_ttl format: %w", err)
		}
	}
	if c.MaxContentSize < 0 {
		return fmt.Errorf("max_content_size must be non-negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must be non-negative")
	}
	return nil
}

// parseDurationOrDefault parses a duration string and returns the default if empty or invalid.
func parseDurationOrDefault(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// GetWorkerCount returns the worker count clamped to a sane range.
func (c *Config) GetWorkerCount() int {
	n := c.WorkerCount
	if n == 0 {
		n = 8
	}
	if n < 5 {
		n = 5
	}
	if n > 20 {
		n = 20
	}
	return n
}

// GetMaxAttempts returns the fetch attempt budget with default.
func (c *Config) GetMaxAttempts() int {
	if c.MaxAttempts < 1 {
		return 4
	}
	return c.MaxAttempts
}

// GetFetchTimeout returns the fetch timeout as a duration.
func (c *Config) GetFetchTimeout() time.Duration {
	return parseDurationOrDefault(c.FetchTimeout, 30*time.Second)
}

// GetLeaseTTL returns the lease expiry as a duration.
func (c *Config) GetLeaseTTL() time.Duration {
	return parseDurationOrDefault(c.LeaseTTL, 5*time.Minute)
}

// GetMaxContentSize returns the max content size with default.
func (c *Config) GetMaxContentSize() int64 {
	if c.MaxContentSize <= 0 {
		return 10 * 1024 * 1024
	}
	return c.MaxContentSize
}

// GetUserAgent returns the user agent with default.
func (c *Config) GetUserAgent() string {
	if c.UserAgent == "" {
		return "courtstream/0.1"
	}
	return c.UserAgent
}
