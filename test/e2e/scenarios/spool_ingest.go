package scenarios

import (
	"context"
	"fmt"
	"time"

	"github.com/c360studio/courtstream/event"
	"github.com/c360studio/courtstream/test/e2e/client"
	"github.com/c360studio/courtstream/test/e2e/config"
)

// spoolDocName carries the registry id in its base name, which the
// watcher turns into the logical document id.
const spoolDocName = "109591011.html"

// SpoolIngestScenario drops a registry export into the spool and follows
// it through the full pipeline: discovery, fetch, parse, and the
// canonical write. It then re-drops identical content to confirm no
// duplicate version appears, and drops a revision to confirm version 2
// is appended.
type SpoolIngestScenario struct {
	name        string
	description string
	config      *config.Config

	env     *pipelineEnv
	capture *client.MessageCapture
}

// NewSpoolIngestScenario creates the spool ingestion scenario.
func NewSpoolIngestScenario(cfg *config.Config) *SpoolIngestScenario {
	return &SpoolIngestScenario{
		name:        "spool-ingest",
		description: "Ingests a spool export end to end and verifies unchanged re-drops are absorbed while revisions append a version",
		config:      cfg,
	}
}

// Name returns the scenario name.
func (s *SpoolIngestScenario) Name() string {
	return s.name
}

// Description returns the scenario description.
func (s *SpoolIngestScenario) Description() string {
	return s.description
}

// Setup starts a pipeline on a fresh workspace and subscribes to the
// parsed subject before any document is dropped.
func (s *SpoolIngestScenario) Setup(ctx context.Context) error {
	env, err := startPipeline(ctx, s.config)
	if err != nil {
		return err
	}
	s.env = env

	capture, err := env.nats.CaptureMessages(event.SubjectParsed)
	if err != nil {
		s.env.teardown(ctx)
		return err
	}
	s.capture = capture

	return nil
}

// Execute runs the scenario stages.
func (s *SpoolIngestScenario) Execute(ctx context.Context) (*Result, error) {
	result := NewResult(s.name)
	defer result.Complete()

	runStages(ctx, result, s.config.StageTimeout, []stage{
		{"drop-export", s.stageDropExport},
		{"await-first-version", s.stageAwaitFirstVersion},
		{"redrop-unchanged", s.stageRedropUnchanged},
		{"drop-revision", s.stageDropRevision},
		{"verify-stream", s.stageVerifyStream},
	})

	if !result.Success {
		result.SetDetail("pipeline_output", s.env.daemon.Output())
	}
	return result, nil
}

// Teardown stops the capture and the pipeline.
func (s *SpoolIngestScenario) Teardown(ctx context.Context) error {
	if s.capture != nil {
		s.capture.Stop()
	}
	if s.env != nil {
		return s.env.teardown(ctx)
	}
	return nil
}

func (s *SpoolIngestScenario) stageDropExport(_ context.Context, result *Result) error {
	content := decisionHTML("910/4821/24", "150000,50")
	if err := s.env.ws.DropSpoolFile(spoolDocName, content); err != nil {
		return err
	}
	result.SetDetail("document", spoolDocName)
	return nil
}

func (s *SpoolIngestScenario) stageAwaitFirstVersion(ctx context.Context, result *Result) error {
	if err := s.capture.WaitForCount(ctx, 1); err != nil {
		return fmt.Errorf("parsed event never published: %w", err)
	}

	view, err := s.env.waitForVersions(ctx, 1)
	if err != nil {
		return err
	}

	if view.Store.Documents != 1 {
		return fmt.Errorf("expected 1 document, store has %d", view.Store.Documents)
	}
	if view.Store.ParseRuns < 1 {
		return fmt.Errorf("no parse run recorded")
	}
	result.SetMetric("versions_after_ingest", view.Store.Versions)
	return nil
}

// stageRedropUnchanged re-drops byte-identical content. Nothing new may
// reach the store: the watcher and the fetch stage both dedup by hash.
func (s *SpoolIngestScenario) stageRedropUnchanged(ctx context.Context, result *Result) error {
	content := decisionHTML("910/4821/24", "150000,50")
	if err := s.env.ws.DropSpoolFile(spoolDocName, content); err != nil {
		return err
	}

	// Debounce is 2s; give a full pipeline pass room to not happen.
	if err := settle(ctx, 6*time.Second); err != nil {
		return err
	}

	view, err := s.env.status(ctx)
	if err != nil {
		return err
	}
	if view.Store.Versions != 1 {
		return fmt.Errorf("unchanged re-drop created version %d", view.Store.Versions)
	}
	return nil
}

func (s *SpoolIngestScenario) stageDropRevision(ctx context.Context, result *Result) error {
	content := decisionHTML("910/4821/24", "175000,00")
	if err := s.env.ws.DropSpoolFile(spoolDocName, content); err != nil {
		return err
	}

	if err := s.capture.WaitForCount(ctx, 2); err != nil {
		return fmt.Errorf("revision never parsed: %w", err)
	}

	view, err := s.env.waitForVersions(ctx, 2)
	if err != nil {
		return err
	}

	if view.Store.Documents != 1 {
		return fmt.Errorf("revision created a new document, store has %d", view.Store.Documents)
	}
	result.SetMetric("versions_after_revision", view.Store.Versions)
	return nil
}

// stageVerifyStream checks the event accounting: two full passes put six
// events on the stream, and all four durable groups exist.
func (s *SpoolIngestScenario) stageVerifyStream(ctx context.Context, result *Result) error {
	view, err := s.env.status(ctx)
	if err != nil {
		return err
	}
	if view.Stream == nil {
		return fmt.Errorf("stream report missing: %s", view.StreamError)
	}

	growth := view.Stream.LastSeq - s.env.baselineSeq
	result.SetMetric("stream_growth", growth)
	if growth < 6 {
		return fmt.Errorf("expected at least 6 new events, stream grew by %d", growth)
	}

	groups := map[string]bool{}
	for _, c := range view.Stream.Consumers {
		groups[c.Name] = true
	}
	for _, want := range []string{
		event.ConsumerFetcher,
		event.ConsumerParser,
		event.ConsumerWriter,
		event.ConsumerFailureSink,
	} {
		if !groups[want] {
			return fmt.Errorf("durable group %s missing from stream report", want)
		}
	}

	return nil
}

// decisionHTML renders a registry decision page the parser extracts
// cleanly: case number, court, judge, date, parties, a claim amount,
// and marked operative sections.
func decisionHTML(caseNumber, amountUAH string) []byte {
	page := fmt.Sprintf(`<!DOCTYPE html>
<html lang="uk">
<head>
<title>Рішення у справі № %[1]s</title>
</head>
<body>
<nav><a href="/">Головна</a> <a href="/Search">Пошук у реєстрі</a></nav>
<main>
<h1>РІШЕННЯ ІМЕНЕМ УКРАЇНИ</h1>
<p>12.03.2024, справа № %[1]s</p>
<p>Господарський суд міста Києва розглянув у відкритому судовому засіданні справу за позовом ТОВ «Будівельник» до ПП «Ремонт-Сервіс» про стягнення заборгованості за договором підряду.</p>
<p>Суддя: Мельник О.В.</p>
<p>Суд, дослідивши матеріали справи, ВСТАНОВИВ:</p>
<p>Позивач просив стягнути з відповідача %[2]s грн заборгованості, посилаючись на ст. 625 ЦКУ щодо наслідків прострочення грошового зобов'язання.</p>
<p>Оцінивши надані докази, суд дійшов висновку про обґрунтованість позовних вимог та ВИРІШИВ:</p>
<p>Позов задовольнити. Стягнути з відповідача на користь позивача %[2]s грн заборгованості.</p>
</main>
<footer>Єдиний державний реєстр судових рішень</footer>
</body>
</html>`, caseNumber, amountUAH)
	return []byte(page)
}
