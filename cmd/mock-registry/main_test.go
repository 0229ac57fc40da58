package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/c360studio/courtstream/model"
	"github.com/c360studio/courtstream/parse"
)

func TestGeneratedDecisionParses(t *testing.T) {
	gen := newGenerator(42)
	registry := parse.NewRegistry()

	for i := 0; i < 10; i++ {
		d := gen.nextDecision()
		ext, err := registry.Parse(renderDecision(d), "text/html", "file:///spool/"+d.fileName())
		if err != nil {
			t.Fatalf("parse %s: %v", d.fileName(), err)
		}

		if ext.CaseNumber != d.caseNumber {
			t.Errorf("doc %d: case number %q, want %q", i, ext.CaseNumber, d.caseNumber)
		}
		if ext.CourtName == "" {
			t.Errorf("doc %d: court not extracted from %q", i, d.court)
		}
		if ext.JudgeName != d.judge {
			t.Errorf("doc %d: judge %q, want %q", i, ext.JudgeName, d.judge)
		}
		if ext.DecisionDate == nil {
			t.Errorf("doc %d: decision date not extracted", i)
		}
		if ext.Outcome != model.OutcomeGranted {
			t.Errorf("doc %d: outcome %q, want granted", i, ext.Outcome)
		}
		if len(ext.LawRefs) == 0 {
			t.Errorf("doc %d: no law references extracted", i)
		}
		if len(ext.Sections) < 2 {
			t.Errorf("doc %d: %d sections, want facts and decision", i, len(ext.Sections))
		}
		if c := parse.Confidence(ext); c < 0.9 {
			t.Errorf("doc %d: confidence %.2f, want >= 0.9", i, c)
		}
	}
}

func TestReviseChangesContent(t *testing.T) {
	gen := newGenerator(7)
	d := gen.nextDecision()
	before := renderDecision(d)

	r := gen.reviseExisting()
	if r != d {
		t.Fatalf("revision picked a different decision")
	}
	if d.revision != 1 {
		t.Fatalf("revision counter = %d, want 1", d.revision)
	}

	after := renderDecision(d)
	if bytes.Equal(before, after) {
		t.Fatal("revised render is byte-identical to the original")
	}
	if !bytes.Contains(after, []byte("повторно")) {
		t.Error("revised render carries no republication note")
	}

	registry := parse.NewRegistry()
	ext, err := registry.Parse(after, "text/html", "file:///spool/"+d.fileName())
	if err != nil {
		t.Fatalf("parse revised: %v", err)
	}
	if ext.CaseNumber != d.caseNumber {
		t.Errorf("revision changed case number to %q", ext.CaseNumber)
	}
}

func TestDeterministicSeed(t *testing.T) {
	a := newGenerator(99)
	b := newGenerator(99)

	for i := 0; i < 5; i++ {
		da := a.nextDecision()
		db := b.nextDecision()
		if da.id != db.id {
			t.Fatalf("doc %d: ids diverge (%s vs %s)", i, da.id, db.id)
		}
		if !bytes.Equal(renderDecision(da), renderDecision(db)) {
			t.Fatalf("doc %d: same seed rendered different content", i)
		}
	}
}

func TestDropExportLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	gen := newGenerator(1)
	d := gen.nextDecision()

	if err := dropExport(dir, d); err != nil {
		t.Fatalf("dropExport: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, d.fileName())); err != nil {
		t.Fatalf("export missing: %v", err)
	}
	leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if err != nil {
		t.Fatal(err)
	}
	if len(leftovers) > 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}
