package scenarios

import (
	"context"
	"fmt"
	"strings"

	"github.com/c360studio/courtstream/test/e2e/client"
	"github.com/c360studio/courtstream/test/e2e/config"
)

// StatusScenario exercises the status command without a running
// pipeline: a fresh workspace reports an empty store, the human output
// carries the store section, and an unreachable NATS server degrades to
// a stream_error instead of a failure.
type StatusScenario struct {
	name        string
	description string
	config      *config.Config

	ws  *client.Workspace
	cli *client.CLIClient
}

// NewStatusScenario creates the status reporting scenario.
func NewStatusScenario(cfg *config.Config) *StatusScenario {
	return &StatusScenario{
		name:        "status-report",
		description: "Verifies status output on an empty workspace and its degraded report when NATS is unreachable",
		config:      cfg,
	}
}

// Name returns the scenario name.
func (s *StatusScenario) Name() string {
	return s.name
}

// Description returns the scenario description.
func (s *StatusScenario) Description() string {
	return s.description
}

// Setup creates a workspace and points it at the live NATS server. No
// daemon is started; the status command stands on its own.
func (s *StatusScenario) Setup(ctx context.Context) error {
	ws, err := client.NewWorkspace(s.config.WorkDir)
	if err != nil {
		return err
	}
	s.ws = ws

	if err := ws.WriteAppConfig(s.config.NATSURL); err != nil {
		s.ws.Remove()
		return err
	}

	s.cli = client.NewCLIClient(s.config.BinaryPath, ws.ConfigPath)
	return nil
}

// Execute runs the scenario stages.
func (s *StatusScenario) Execute(ctx context.Context) (*Result, error) {
	result := NewResult(s.name)
	defer result.Complete()

	runStages(ctx, result, s.config.StageTimeout, []stage{
		{"empty-store-json", s.stageEmptyStoreJSON},
		{"empty-store-human", s.stageEmptyStoreHuman},
		{"stream-unreachable", s.stageStreamUnreachable},
	})

	return result, nil
}

// Teardown removes the workspace.
func (s *StatusScenario) Teardown(ctx context.Context) error {
	if s.ws != nil {
		return s.ws.Remove()
	}
	return nil
}

func (s *StatusScenario) stageEmptyStoreJSON(ctx context.Context, result *Result) error {
	var view statusView
	if _, err := s.cli.RunJSON(ctx, &view, "status", "--json"); err != nil {
		return err
	}

	if view.Store.Documents != 0 || view.Store.Versions != 0 {
		return fmt.Errorf("fresh workspace reports %d documents, %d versions",
			view.Store.Documents, view.Store.Versions)
	}
	if view.DataDir != s.ws.DataDir {
		return fmt.Errorf("data_dir %q does not match workspace %q", view.DataDir, s.ws.DataDir)
	}
	if !s.ws.DatabaseExists() {
		return fmt.Errorf("status did not initialize the database")
	}
	result.SetDetail("data_dir", view.DataDir)
	return nil
}

func (s *StatusScenario) stageEmptyStoreHuman(ctx context.Context, result *Result) error {
	res, err := s.cli.Run(ctx, "status")
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("status exited %d: %s", res.ExitCode, res.Stderr)
	}
	for _, want := range []string{"Data dir:", "Canonical store:", "documents:"} {
		if !strings.Contains(res.Stdout, want) {
			return fmt.Errorf("status output missing %q:\n%s", want, res.Stdout)
		}
	}
	return nil
}

// stageStreamUnreachable points the workspace at a dead NATS address.
// The command must still report the store and degrade the stream
// section to an error, not fail outright.
func (s *StatusScenario) stageStreamUnreachable(ctx context.Context, result *Result) error {
	if err := s.ws.WriteAppConfig("nats://127.0.0.1:1"); err != nil {
		return err
	}

	var view statusView
	if _, err := s.cli.RunJSON(ctx, &view, "status", "--json"); err != nil {
		return err
	}

	if view.Stream != nil {
		return fmt.Errorf("stream report present despite dead NATS address")
	}
	if view.StreamError == "" {
		return fmt.Errorf("stream_error empty despite dead NATS address")
	}
	result.SetDetail("stream_error", view.StreamError)
	return nil
}
