package scenarios

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/c360studio/courtstream/event"
	"github.com/c360studio/courtstream/test/e2e/client"
	"github.com/c360studio/courtstream/test/e2e/config"
)

// pipelineEnv bundles everything a scenario needs to drive one pipeline
// instance: an isolated workspace, the CLI, a NATS client, and the
// running daemon.
type pipelineEnv struct {
	ws     *client.Workspace
	cli    *client.CLIClient
	nats   *client.NATSClient
	daemon *client.Daemon

	// baselineSeq is the COURT stream's last sequence at startup. The
	// stream is shared across scenarios, so assertions use growth from
	// this point rather than absolute counts.
	baselineSeq uint64
}

// startPipeline builds a workspace, starts the daemon against it, and
// waits until the pipeline's stream exists.
func startPipeline(ctx context.Context, cfg *config.Config) (*pipelineEnv, error) {
	ws, err := client.NewWorkspace(cfg.WorkDir)
	if err != nil {
		return nil, err
	}

	env := &pipelineEnv{ws: ws}
	if err := env.start(ctx, cfg); err != nil {
		env.teardown(ctx)
		return nil, err
	}
	return env, nil
}

func (e *pipelineEnv) start(ctx context.Context, cfg *config.Config) error {
	if err := e.ws.WriteAppConfig(cfg.NATSURL); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	e.cli = client.NewCLIClient(cfg.BinaryPath, e.ws.ConfigPath)

	natsCli, err := client.NewNATSClient(ctx, cfg.NATSURL)
	if err != nil {
		return err
	}
	e.nats = natsCli

	daemon, err := e.cli.StartDaemon("info")
	if err != nil {
		return err
	}
	e.daemon = daemon

	readyCtx, cancel := context.WithTimeout(ctx, cfg.SetupTimeout)
	defer cancel()
	if err := e.nats.WaitForStream(readyCtx, event.StreamName, config.DefaultPollInterval); err != nil {
		return fmt.Errorf("%w\npipeline output:\n%s", err, e.daemon.Output())
	}

	seq, err := e.nats.StreamLastSeq(ctx, event.StreamName)
	if err != nil {
		return err
	}
	e.baselineSeq = seq

	return nil
}

// teardown stops the daemon and removes the workspace. Errors are
// joined; a dead daemon must not keep the workspace on disk.
func (e *pipelineEnv) teardown(ctx context.Context) error {
	var errs []error

	if e.daemon != nil {
		if err := e.daemon.Stop(15 * time.Second); err != nil {
			errs = append(errs, fmt.Errorf("stop pipeline: %w", err))
		}
	}
	if e.nats != nil {
		if err := e.nats.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close NATS: %w", err))
		}
	}
	if e.ws != nil {
		if err := e.ws.Remove(); err != nil {
			errs = append(errs, fmt.Errorf("remove workspace: %w", err))
		}
	}

	return errors.Join(errs...)
}

// statusView mirrors the JSON contract of `courtstream status --json`.
// Scenarios decode the CLI output rather than reaching into internals,
// so a contract break fails loudly here.
type statusView struct {
	DataDir     string `json:"data_dir"`
	RegistryURL string `json:"registry_url"`
	NATSURL     string `json:"nats_url"`
	Store       struct {
		Documents int `json:"documents"`
		Versions  int `json:"versions"`
		Cases     int `json:"cases"`
		Courts    int `json:"courts"`
		Parties   int `json:"parties"`
		ParseRuns int `json:"parse_runs"`
	} `json:"store"`
	Stream *struct {
		Messages  uint64 `json:"messages"`
		FirstSeq  uint64 `json:"first_seq"`
		LastSeq   uint64 `json:"last_seq"`
		Consumers []struct {
			Name      string `json:"name"`
			Pending   uint64 `json:"pending"`
			Delivered uint64 `json:"delivered"`
		} `json:"consumers"`
	} `json:"stream,omitempty"`
	StreamError string `json:"stream_error,omitempty"`
}

// status runs the status command and decodes its JSON output.
func (e *pipelineEnv) status(ctx context.Context) (*statusView, error) {
	var view statusView
	if _, err := e.cli.RunJSON(ctx, &view, "status", "--json"); err != nil {
		return nil, err
	}
	return &view, nil
}

// waitForVersions polls status until the store holds at least want
// versions. Returns the last observed view either way.
func (e *pipelineEnv) waitForVersions(ctx context.Context, want int) (*statusView, error) {
	ticker := time.NewTicker(config.DefaultPollInterval)
	defer ticker.Stop()

	var last *statusView
	for {
		view, err := e.status(ctx)
		if err == nil {
			last = view
			if view.Store.Versions >= want {
				return view, nil
			}
		}

		select {
		case <-ctx.Done():
			got := -1
			if last != nil {
				got = last.Store.Versions
			}
			return last, fmt.Errorf("waiting for %d versions, have %d: %w\npipeline output:\n%s",
				want, got, ctx.Err(), e.daemon.Output())
		case <-ticker.C:
		}
	}
}

// settle waits out the watcher debounce plus a pipeline pass so a
// negative assertion ("no new version appeared") means something.
func settle(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
