// Package main implements a mock court registry for pipeline testing.
// It writes decision HTML exports into a spool directory using the same
// atomic drop discipline as a real bulk export, so a pipeline watching
// that spool ingests realistic documents without touching the live
// registry. This makes pipeline wiring tests fast, deterministic, and
// offline-capable.
//
// Usage:
//
//	mock-registry -spool /path/to/spool -docs 10
//	mock-registry -spool /path/to/spool -interval 2s -revise 0.3
//
// With -interval 0 the generator writes one batch of -docs documents
// and exits. With a positive interval it keeps emitting after the
// initial batch: each tick either drops a new decision or rewrites an
// existing one with a corrected amount, exercising the versioning path.
// The same -seed always produces the same documents.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
)

var (
	courts = []string{
		"Господарський суд міста Києва",
		"Печерський районний суд міста Києва",
		"Шевченківський районний суд міста Львова",
		"Київський апеляційний господарський суд",
	}

	judges = []string{
		"Мельник О.В.",
		"Ковальчук І.М.",
		"Бондаренко Т.С.",
		"Шевчук А.П.",
	}

	plaintiffs = []string{
		"ТОВ «Будівельник»",
		"ПрАТ «Укренерго-Сервіс»",
		"ФОП Іваненко В.М.",
		"ТОВ «Агро-Південь»",
	}

	defendants = []string{
		"ПП «Ремонт-Сервіс»",
		"ТОВ «Постачальник-Плюс»",
		"КП «Міськводоканал»",
		"ПрАТ «Транс-Логістик»",
	}

	subjects = []string{
		"стягнення заборгованості за договором підряду",
		"стягнення заборгованості за договором поставки",
		"відшкодування збитків",
		"стягнення пені та штрафу",
	}

	lawArticles = []string{
		"ст. 625 ЦКУ",
		"ст. 526 ЦКУ",
		"ст. 610 ЦКУ",
		"ст. 193 ГКУ",
	}

	// courtCodes lead the case number, the way registry numbering does.
	courtCodes = []int{910, 757, 461, 922}
)

// decision holds everything a rendered export varies on. The id becomes
// the file base name, which the spool watcher turns into the document id.
type decision struct {
	id         string
	caseNumber string
	court      string
	judge      string
	date       string
	plaintiff  string
	defendant  string
	subject    string
	amount     string
	lawRef     string
	revision   int
}

func (d *decision) fileName() string {
	return d.id + ".html"
}

// generator produces decisions from a seeded source, so runs with the
// same seed emit identical documents in identical order.
type generator struct {
	rng     *rand.Rand
	nextID  int
	history []*decision
	revised int
}

func newGenerator(seed int64) *generator {
	return &generator{
		rng:    rand.New(rand.NewSource(seed)),
		nextID: 100000001,
	}
}

func (g *generator) pick(list []string) string {
	return list[g.rng.Intn(len(list))]
}

func (g *generator) amount() string {
	whole := (g.rng.Intn(900) + 100) * 1000
	return fmt.Sprintf("%d,%02d", whole, g.rng.Intn(100))
}

// nextDecision emits a fresh decision and remembers it for revision.
func (g *generator) nextDecision() *decision {
	d := &decision{
		id:         fmt.Sprintf("%d", g.nextID),
		caseNumber: fmt.Sprintf("%d/%d/24", courtCodes[g.rng.Intn(len(courtCodes))], g.rng.Intn(9000)+1000),
		court:      g.pick(courts),
		judge:      g.pick(judges),
		date:       fmt.Sprintf("%02d.%02d.2024", g.rng.Intn(28)+1, g.rng.Intn(12)+1),
		plaintiff:  g.pick(plaintiffs),
		defendant:  g.pick(defendants),
		subject:    g.pick(subjects),
		amount:     g.amount(),
		lawRef:     g.pick(lawArticles),
	}
	g.nextID++
	g.history = append(g.history, d)
	return d
}

// reviseExisting corrects the amount on a previously emitted decision.
// The case identity stays put; only the content changes, so the
// pipeline sees it as a new version of the same document.
func (g *generator) reviseExisting() *decision {
	d := g.history[g.rng.Intn(len(g.history))]
	next := g.amount()
	for next == d.amount {
		next = g.amount()
	}
	d.amount = next
	d.revision++
	g.revised++
	return d
}

// renderDecision lays the decision out like a registry export page:
// header with case metadata, the facts section opened by ВСТАНОВИВ, and
// the operative part opened by ВИРІШИВ.
func renderDecision(d *decision) []byte {
	revisionNote := ""
	if d.revision > 0 {
		revisionNote = "<p>Текст рішення опубліковано повторно з виправленнями.</p>\n"
	}

	page := fmt.Sprintf(`<!DOCTYPE html>
<html lang="uk">
<head>
<title>Рішення у справі № %[1]s</title>
</head>
<body>
<nav><a href="/">Головна</a> <a href="/Search">Пошук у реєстрі</a></nav>
<main>
<h1>РІШЕННЯ ІМЕНЕМ УКРАЇНИ</h1>
<p>%[2]s, справа № %[1]s</p>
%[3]s<p>%[4]s розглянув у відкритому судовому засіданні справу за позовом %[5]s до %[6]s про %[7]s.</p>
<p>Суддя: %[8]s</p>
<p>Суд, дослідивши матеріали справи, ВСТАНОВИВ:</p>
<p>Позивач просив стягнути з відповідача %[9]s грн заборгованості, посилаючись на %[10]s щодо наслідків порушення грошового зобов'язання.</p>
<p>Оцінивши надані докази, суд дійшов висновку про обґрунтованість позовних вимог та ВИРІШИВ:</p>
<p>Позов задовольнити. Стягнути з відповідача на користь позивача %[9]s грн заборгованості.</p>
</main>
<footer>Єдиний державний реєстр судових рішень</footer>
</body>
</html>`, d.caseNumber, d.date, revisionNote, d.court, d.plaintiff, d.defendant, d.subject, d.judge, d.amount, d.lawRef)
	return []byte(page)
}

// dropExport writes the rendered page next to its final name and
// renames it into place, so a watcher never reads a partial file.
func dropExport(dir string, d *decision) error {
	final := filepath.Join(dir, d.fileName())
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, renderDecision(d), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, final)
}

func main() {
	spoolDir := flag.String("spool", "", "spool directory to drop decision exports into")
	docs := flag.Int("docs", 5, "documents in the initial batch")
	interval := flag.Duration("interval", 0, "emit interval; 0 writes one batch and exits")
	revise := flag.Float64("revise", 0.25, "fraction of ticks that revise an existing document")
	seed := flag.Int64("seed", 1, "random seed; same seed, same documents")
	flag.Parse()

	if *spoolDir == "" {
		log.Fatal("-spool is required")
	}
	if err := os.MkdirAll(*spoolDir, 0o755); err != nil {
		log.Fatalf("Failed to create spool directory %s: %v", *spoolDir, err)
	}

	gen := newGenerator(*seed)

	for i := 0; i < *docs; i++ {
		d := gen.nextDecision()
		if err := dropExport(*spoolDir, d); err != nil {
			log.Fatalf("Failed to drop %s: %v", d.fileName(), err)
		}
		log.Printf("dropped %s (справа № %s, %s)", d.fileName(), d.caseNumber, d.court)
	}
	if *interval <= 0 {
		log.Printf("batch of %d document(s) written to %s", *docs, *spoolDir)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("emitting every %s (revise fraction %.2f), Ctrl-C to stop", *interval, *revise)
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("stopped after %d document(s), %d revision(s)", len(gen.history), gen.revised)
			return
		case <-ticker.C:
			var d *decision
			action := "dropped"
			if len(gen.history) > 0 && gen.rng.Float64() < *revise {
				d = gen.reviseExisting()
				action = "revised"
			} else {
				d = gen.nextDecision()
			}
			if err := dropExport(*spoolDir, d); err != nil {
				log.Fatalf("Failed to drop %s: %v", d.fileName(), err)
			}
			log.Printf("%s %s (справа № %s, %s грн)", action, d.fileName(), d.caseNumber, d.amount)
		}
	}
}
