package scenarios

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/c360studio/courtstream/event"
	"github.com/c360studio/courtstream/test/e2e/config"
)

// replaySummaryPattern matches the replay command's closing line, e.g.
// "re-emitted 1 events on court.documents.parsed for version-writer (through seq 9)".
var replaySummaryPattern = regexp.MustCompile(`^(matched|re-emitted) (\d+) events on \S+ for \S+ \(through seq \d+\)`)

// ReplayScenario ingests one document, then replays the parsed-event
// history to the version writer. The store must absorb the re-emitted
// copies: no new version, no new parse run, same document count.
type ReplayScenario struct {
	name        string
	description string
	config      *config.Config

	env      *pipelineEnv
	baseline *statusView
	matched  int
}

// NewReplayScenario creates the replay scenario.
func NewReplayScenario(cfg *config.Config) *ReplayScenario {
	return &ReplayScenario{
		name:        "replay-history",
		description: "Replays parsed-event history to the version writer and verifies the store absorbs the copies without duplicating versions or parse runs",
		config:      cfg,
	}
}

// Name returns the scenario name.
func (s *ReplayScenario) Name() string {
	return s.name
}

// Description returns the scenario description.
func (s *ReplayScenario) Description() string {
	return s.description
}

// Setup starts a pipeline and seeds it with one ingested document so
// the stream carries history worth replaying.
func (s *ReplayScenario) Setup(ctx context.Context) error {
	env, err := startPipeline(ctx, s.config)
	if err != nil {
		return err
	}
	s.env = env

	if err := s.seed(ctx); err != nil {
		s.env.teardown(ctx)
		return err
	}
	return nil
}

func (s *ReplayScenario) seed(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.SetupTimeout)
	defer cancel()

	content := decisionHTML("910/7733/24", "98000,00")
	if err := s.env.ws.DropSpoolFile("204417355.html", content); err != nil {
		return err
	}
	if _, err := s.env.waitForVersions(ctx, 1); err != nil {
		return fmt.Errorf("seed document never ingested: %w", err)
	}
	return nil
}

// Execute runs the scenario stages.
func (s *ReplayScenario) Execute(ctx context.Context) (*Result, error) {
	result := NewResult(s.name)
	defer result.Complete()

	runStages(ctx, result, s.config.StageTimeout, []stage{
		{"baseline-status", s.stageBaseline},
		{"dry-run-count", s.stageDryRun},
		{"replay-parsed", s.stageReplay},
		{"verify-absorbed", s.stageVerifyAbsorbed},
	})

	if !result.Success {
		result.SetDetail("pipeline_output", s.env.daemon.Output())
	}
	return result, nil
}

// Teardown stops the pipeline.
func (s *ReplayScenario) Teardown(ctx context.Context) error {
	if s.env != nil {
		return s.env.teardown(ctx)
	}
	return nil
}

func (s *ReplayScenario) stageBaseline(ctx context.Context, result *Result) error {
	view, err := s.env.status(ctx)
	if err != nil {
		return err
	}
	if view.Stream == nil {
		return fmt.Errorf("stream report missing: %s", view.StreamError)
	}
	s.baseline = view
	result.SetMetric("baseline_versions", view.Store.Versions)
	result.SetMetric("baseline_parse_runs", view.Store.ParseRuns)
	result.SetMetric("baseline_last_seq", view.Stream.LastSeq)
	return nil
}

// stageDryRun counts replayable events without re-emitting and checks
// the stream did not move.
func (s *ReplayScenario) stageDryRun(ctx context.Context, result *Result) error {
	matched, err := s.runReplay(ctx, true)
	if err != nil {
		return err
	}
	if matched < 1 {
		return fmt.Errorf("dry run matched %d parsed events, expected at least 1", matched)
	}
	s.matched = matched

	view, err := s.env.status(ctx)
	if err != nil {
		return err
	}
	if view.Stream == nil {
		return fmt.Errorf("stream report missing: %s", view.StreamError)
	}
	if view.Stream.LastSeq != s.baseline.Stream.LastSeq {
		return fmt.Errorf("dry run moved the stream from seq %d to %d",
			s.baseline.Stream.LastSeq, view.Stream.LastSeq)
	}
	result.SetMetric("dry_run_matched", matched)
	return nil
}

func (s *ReplayScenario) stageReplay(ctx context.Context, result *Result) error {
	reemitted, err := s.runReplay(ctx, false)
	if err != nil {
		return err
	}
	if reemitted != s.matched {
		return fmt.Errorf("replay re-emitted %d events, dry run matched %d", reemitted, s.matched)
	}
	result.SetMetric("reemitted", reemitted)
	return nil
}

// stageVerifyAbsorbed waits for the writer to chew through the copies
// and checks nothing in the store changed while the stream grew.
func (s *ReplayScenario) stageVerifyAbsorbed(ctx context.Context, result *Result) error {
	if err := settle(ctx, 3*time.Second); err != nil {
		return err
	}

	view, err := s.env.status(ctx)
	if err != nil {
		return err
	}
	if view.Store.Documents != 1 {
		return fmt.Errorf("replay changed document count to %d", view.Store.Documents)
	}
	if view.Store.Versions != s.baseline.Store.Versions {
		return fmt.Errorf("replay changed version count from %d to %d",
			s.baseline.Store.Versions, view.Store.Versions)
	}
	if view.Store.ParseRuns != s.baseline.Store.ParseRuns {
		return fmt.Errorf("replay with the same parser appended a parse run: %d -> %d",
			s.baseline.Store.ParseRuns, view.Store.ParseRuns)
	}

	if view.Stream == nil {
		return fmt.Errorf("stream report missing: %s", view.StreamError)
	}
	grew := view.Stream.LastSeq - s.baseline.Stream.LastSeq
	if grew < uint64(s.matched) {
		return fmt.Errorf("stream grew by %d, expected at least the %d re-emitted copies", grew, s.matched)
	}
	result.SetMetric("stream_growth", grew)
	return nil
}

// runReplay invokes the replay command against the version writer and
// parses the summary line for the event count.
func (s *ReplayScenario) runReplay(ctx context.Context, dryRun bool) (int, error) {
	args := []string{"replay", "--consumer", event.ConsumerWriter}
	if dryRun {
		args = append(args, "--dry-run")
	}

	res, err := s.env.cli.Run(ctx, args...)
	if err != nil {
		return 0, err
	}
	if res.ExitCode != 0 {
		return 0, fmt.Errorf("replay exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	m := replaySummaryPattern.FindStringSubmatch(strings.TrimSpace(res.Stdout))
	if m == nil {
		return 0, fmt.Errorf("unrecognized replay output: %q", strings.TrimSpace(res.Stdout))
	}
	count, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, fmt.Errorf("parse replay count %q: %w", m[2], err)
	}
	return count, nil
}
