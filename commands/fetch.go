package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360studio/courtstream/model"
	"github.com/c360studio/courtstream/parse"
	"github.com/c360studio/courtstream/registry"
	"github.com/c360studio/courtstream/storage"
)

// fetchReport is the diagnostic output of a one-shot fetch.
type fetchReport struct {
	DocumentID  string            `json:"document_id,omitempty"`
	SourceURL   string            `json:"source_url"`
	ContentType string            `json:"content_type"`
	SHA256      string            `json:"sha256"`
	SizeBytes   int               `json:"size_bytes"`
	Confidence  float64           `json:"confidence"`
	Extraction  *model.Extraction `json:"extraction"`
}

func newFetchCommand(opts *Options) *cobra.Command {
	var (
		timeout time.Duration
		raw     bool
	)

	cmd := &cobra.Command{
		Use:   "fetch <registry-id|url>",
		Short: "Fetch and parse a single document",
		Long: `Fetch retrieves one document from the registry, hashes it, runs the
extraction, and prints the result. Nothing is written to the canonical
store, so the command is safe to run against a live pipeline.

The argument is a registry identifier (the number after /Document/ in a
registry URL) or a full document URL.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, opts, args[0], timeout, raw)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Fetch timeout")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the raw document body instead of the extraction")
	return cmd
}

// resolveTarget turns a bare registry identifier into a document URL
// and passes full URLs through unchanged.
func resolveTarget(arg, baseURL string) (docID, target string, err error) {
	if strings.Contains(arg, "://") {
		if regID := registry.ExtractRegistryID(arg); regID != "" {
			return model.NewDocumentID(regID), arg, nil
		}
		return "", arg, nil
	}

	if arg == "" || strings.ContainsAny(arg, "/ \t") {
		return "", "", fmt.Errorf("invalid registry identifier %q", arg)
	}
	target = strings.TrimRight(baseURL, "/") + "/Document/" + arg
	return model.NewDocumentID(arg), target, nil
}

func runFetch(cmd *cobra.Command, opts *Options, arg string, timeout time.Duration, raw bool) error {
	logger := opts.Logger()
	appCfg, err := opts.loadConfig(logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	docID, target, err := resolveTarget(arg, appCfg.Registry.BaseURL)
	if err != nil {
		return err
	}

	client := registry.NewClient(registry.ClientConfig{
		Timeout:        timeout,
		UserAgent:      appCfg.Registry.UserAgent,
		MaxContentSize: registry.DefaultClientConfig().MaxContentSize,
		RateLimit:      appCfg.Registry.RateLimit,
		Burst:          appCfg.Registry.Burst,
		SpoolRoot:      appCfg.Storage.SpoolDir,
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout+5*time.Second)
	defer cancel()

	result, err := client.Fetch(ctx, target)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", target, err)
	}

	if raw {
		_, err := cmd.OutOrStdout().Write(result.Body)
		return err
	}

	extraction, err := parse.NewRegistry().Parse(result.Body, result.ContentType, target)
	if err != nil {
		return fmt.Errorf("parse %s: %w", target, err)
	}

	report := fetchReport{
		DocumentID:  docID,
		SourceURL:   target,
		ContentType: result.ContentType,
		SHA256:      storage.HashContent(result.Body),
		SizeBytes:   len(result.Body),
		Confidence:  parse.Confidence(extraction),
		Extraction:  extraction,
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
