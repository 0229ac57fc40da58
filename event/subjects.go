// Package event defines the typed payloads and NATS subjects that carry
// documents between pipeline stages.
//
// Four logical channels exist under the COURT stream, one per stage:
// discovered, fetched, parsed, failed. Each stage consumes its channel
// through its own durable consumer, so stages scale and replay
// independently. Events are immutable after publish; replay consumes a
// historical event unchanged.
package event

// StreamName is the JetStream stream holding all pipeline events.
const StreamName = "COURT"

// Subjects for the four pipeline channels.
const (
	SubjectDiscovered = "court.documents.discovered"
	SubjectFetched    = "court.documents.fetched"
	SubjectParsed     = "court.documents.parsed"
	SubjectFailed     = "court.documents.failed"
)

// Durable consumer names, one consumer group per consuming stage.
const (
	ConsumerFetcher     = "doc-fetcher"
	ConsumerParser      = "doc-parser"
	ConsumerWriter      = "version-writer"
	ConsumerFailureSink = "failure-sink"
)

// Stage identifies the pipeline stage an event belongs to.
type Stage string

const (
	StageDiscovery Stage = "discovery"
	StageFetch     Stage = "fetch"
	StageParse     Stage = "parse"
	StageWrite     Stage = "write"
)
