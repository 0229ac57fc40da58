package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360studio/courtstream/config"
	"github.com/c360studio/courtstream/event"
	"github.com/c360studio/courtstream/storage/sqlite"
)

// statusReport aggregates local store state with the stream-side view.
type statusReport struct {
	DataDir      string        `json:"data_dir"`
	DatabasePath string        `json:"database_path"`
	RegistryURL  string        `json:"registry_url"`
	NATSURL      string        `json:"nats_url"`
	Store        sqlite.Stats  `json:"store"`
	Stream       *streamReport `json:"stream,omitempty"`
	StreamError  string        `json:"stream_error,omitempty"`
}

type streamReport struct {
	Messages  uint64           `json:"messages"`
	FirstSeq  uint64           `json:"first_seq"`
	LastSeq   uint64           `json:"last_seq"`
	Consumers []consumerReport `json:"consumers,omitempty"`
}

type consumerReport struct {
	Name       string `json:"name"`
	Pending    uint64 `json:"pending"`
	AckPending int    `json:"ack_pending"`
	Delivered  uint64 `json:"delivered"`
}

func newStatusCommand(opts *Options) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pipeline and store status",
		Long: `Status reports the canonical store row counts and, when NATS is
reachable, the COURT stream state with per-consumer-group lag.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, opts, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON")
	return cmd
}

func runStatus(cmd *cobra.Command, opts *Options, jsonOut bool) error {
	logger := opts.Logger()
	appCfg, err := opts.loadConfig(logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	report, err := localStatus(ctx, appCfg)
	if err != nil {
		return err
	}

	if stream, err := gatherStreamStatus(ctx, appCfg, logger); err != nil {
		report.StreamError = err.Error()
	} else {
		report.Stream = stream
	}

	if jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	renderStatus(cmd.OutOrStdout(), report)
	return nil
}

// localStatus reads the canonical store without touching NATS.
func localStatus(ctx context.Context, appCfg *config.Config) (*statusReport, error) {
	store, err := sqlite.NewStore(appCfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	stats, err := store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("store stats: %w", err)
	}

	return &statusReport{
		DataDir:      appCfg.Storage.DataDir,
		DatabasePath: store.Path(),
		RegistryURL:  appCfg.Registry.BaseURL,
		NATSURL:      appCfg.NATS.URL,
		Store:        stats,
	}, nil
}

func gatherStreamStatus(ctx context.Context, appCfg *config.Config, logger *slog.Logger) (*streamReport, error) {
	natsClient, err := connectToNATS(ctx, appCfg, logger)
	if err != nil {
		return nil, err
	}
	defer natsClient.Close(ctx)

	js, err := natsClient.JetStream()
	if err != nil {
		return nil, fmt.Errorf("get JetStream context: %w", err)
	}

	stream, err := js.Stream(ctx, event.StreamName)
	if err != nil {
		return nil, fmt.Errorf("open stream %s: %w", event.StreamName, err)
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("stream info: %w", err)
	}

	report := &streamReport{
		Messages: info.State.Msgs,
		FirstSeq: info.State.FirstSeq,
		LastSeq:  info.State.LastSeq,
	}

	groups := []string{
		event.ConsumerFetcher,
		event.ConsumerParser,
		event.ConsumerWriter,
		event.ConsumerFailureSink,
	}
	for _, name := range groups {
		cons, err := stream.Consumer(ctx, name)
		if err != nil {
			// Durables appear once their stage has started.
			continue
		}
		ci, err := cons.Info(ctx)
		if err != nil {
			continue
		}
		report.Consumers = append(report.Consumers, consumerReport{
			Name:       name,
			Pending:    ci.NumPending,
			AckPending: ci.NumAckPending,
			Delivered:  ci.Delivered.Stream,
		})
	}

	return report, nil
}

func renderStatus(w io.Writer, r *statusReport) {
	fmt.Fprintf(w, "Data dir:   %s\n", r.DataDir)
	fmt.Fprintf(w, "Database:   %s\n", r.DatabasePath)
	fmt.Fprintf(w, "Registry:   %s\n", r.RegistryURL)
	fmt.Fprintf(w, "NATS:       %s\n", r.NATSURL)

	fmt.Fprintf(w, "\nCanonical store:\n")
	fmt.Fprintf(w, "  documents:   %d\n", r.Store.Documents)
	fmt.Fprintf(w, "  versions:    %d\n", r.Store.Versions)
	fmt.Fprintf(w, "  cases:       %d\n", r.Store.Cases)
	fmt.Fprintf(w, "  courts:      %d\n", r.Store.Courts)
	fmt.Fprintf(w, "  parties:     %d\n", r.Store.Parties)
	fmt.Fprintf(w, "  parse runs:  %d\n", r.Store.ParseRuns)

	switch {
	case r.Stream != nil:
		fmt.Fprintf(w, "\nCOURT stream:\n")
		fmt.Fprintf(w, "  messages:    %d (seq %d-%d)\n",
			r.Stream.Messages, r.Stream.FirstSeq, r.Stream.LastSeq)
		for _, c := range r.Stream.Consumers {
			fmt.Fprintf(w, "  %-16s pending=%d ack_pending=%d delivered=%d\n",
				c.Name+":", c.Pending, c.AckPending, c.Delivered)
		}
	case r.StreamError != "":
		fmt.Fprintf(w, "\nCOURT stream: unavailable (%s)\n", firstLine(r.StreamError))
	}
}

// firstLine trims a multi-line error down to its summary line.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
