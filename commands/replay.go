package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"

	"github.com/c360studio/courtstream/event"
)

// replaySources maps each durable consumer group to the subject it
// consumes. Replaying a group means re-emitting that subject's history.
var replaySources = map[string]string{
	event.ConsumerFetcher:     event.SubjectDiscovered,
	event.ConsumerParser:      event.SubjectFetched,
	event.ConsumerWriter:      event.SubjectParsed,
	event.ConsumerFailureSink: event.SubjectFailed,
}

func newReplayCommand(opts *Options) *cobra.Command {
	var (
		consumer string
		fromSeq  uint64
		fromTime string
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-emit historical events to a consumer group",
		Long: `Replay reads historical events from the COURT stream and publishes
them again on their original subject, so the consumer group owning that
subject reprocesses them. Events are immutable and the stages are
idempotent: re-emitted copies deduplicate by content hash, and a reparse
records a fresh parse run only when the parser version changed.

Replay starts at the beginning of the stream unless --from-seq or
--from-time narrows it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if fromSeq > 0 && fromTime != "" {
				return fmt.Errorf("--from-seq and --from-time are mutually exclusive")
			}
			return runReplay(cmd, opts, consumer, fromSeq, fromTime, dryRun)
		},
	}

	cmd.Flags().StringVar(&consumer, "consumer", "",
		"Target consumer group (doc-fetcher, doc-parser, version-writer, failure-sink)")
	cmd.Flags().Uint64Var(&fromSeq, "from-seq", 0, "Replay from this stream sequence")
	cmd.Flags().StringVar(&fromTime, "from-time", "", "Replay from this RFC3339 timestamp")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Count matching events without re-emitting")
	_ = cmd.MarkFlagRequired("consumer")

	return cmd
}

// replayConfig resolves the start-position flags into an ordered
// consumer config over the source subject.
func replayConfig(subject string, fromSeq uint64, fromTime string) (jetstream.OrderedConsumerConfig, error) {
	cfg := jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{subject},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	}

	switch {
	case fromSeq > 0:
		cfg.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		cfg.OptStartSeq = fromSeq
	case fromTime != "":
		t, err := time.Parse(time.RFC3339, fromTime)
		if err != nil {
			return jetstream.OrderedConsumerConfig{}, fmt.Errorf("invalid --from-time: %w", err)
		}
		cfg.DeliverPolicy = jetstream.DeliverByStartTimePolicy
		cfg.OptStartTime = &t
	}

	return cfg, nil
}

func runReplay(cmd *cobra.Command, opts *Options, consumer string, fromSeq uint64, fromTime string, dryRun bool) error {
	subject, ok := replaySources[consumer]
	if !ok {
		return fmt.Errorf("unknown consumer group %q (expected doc-fetcher, doc-parser, version-writer, or failure-sink)", consumer)
	}

	consumerCfg, err := replayConfig(subject, fromSeq, fromTime)
	if err != nil {
		return err
	}

	logger := opts.Logger()
	appCfg, err := opts.loadConfig(logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	natsClient, err := connectToNATS(ctx, appCfg, logger)
	if err != nil {
		return err
	}
	defer natsClient.Close(ctx)

	js, err := natsClient.JetStream()
	if err != nil {
		return fmt.Errorf("get JetStream context: %w", err)
	}

	stream, err := js.Stream(ctx, event.StreamName)
	if err != nil {
		return fmt.Errorf("open stream %s: %w", event.StreamName, err)
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("stream info: %w", err)
	}

	// Re-emitted copies land after this sequence. Stopping at the
	// boundary keeps the replay from consuming its own output.
	lastSeq := info.State.LastSeq
	if lastSeq == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "stream is empty, nothing to replay")
		return nil
	}

	cons, err := stream.OrderedConsumer(ctx, consumerCfg)
	if err != nil {
		return fmt.Errorf("create replay consumer: %w", err)
	}

	var replayed, skipped int
	done := false
	for !done && ctx.Err() == nil {
		batch, err := cons.Fetch(64, jetstream.FetchMaxWait(2*time.Second))
		if err != nil {
			return fmt.Errorf("fetch replay batch: %w", err)
		}

		received := false
		for msg := range batch.Messages() {
			received = true

			meta, err := msg.Metadata()
			if err != nil {
				skipped++
				continue
			}
			if meta.Sequence.Stream > lastSeq {
				done = true
				break
			}

			if !dryRun {
				if _, err := js.Publish(ctx, msg.Subject(), msg.Data()); err != nil {
					return fmt.Errorf("re-emit seq %d: %w", meta.Sequence.Stream, err)
				}
			}
			replayed++
		}
		if err := batch.Error(); err != nil {
			return fmt.Errorf("replay batch: %w", err)
		}
		if !received {
			// Nothing within the wait window: the historical range
			// before the boundary is exhausted.
			done = true
		}
	}

	verb := "re-emitted"
	if dryRun {
		verb = "matched"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d events on %s for %s (through seq %d)\n",
		verb, replayed, subject, consumer, lastSeq)
	if skipped > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "skipped %d events with unreadable metadata\n", skipped)
	}
	return nil
}
