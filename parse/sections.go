package parse

import (
	"regexp"
	"strings"

	"github.com/c360studio/courtstream/model"
)

// sectionMarker maps a structural heading of a Ukrainian decision to a
// section type. Operative words are matched with optional inter-letter
// spacing because registry documents render them as spaced capitals
// ("В С Т А Н О В И В:"). Heading-style markers are only trusted on
// short lines.
type sectionMarker struct {
	sectionType model.SectionType
	pattern     *regexp.Regexp
	maxLineLen  int // in runes, 0 = any length
}

var sectionMarkers = []sectionMarker{
	// "суд ВСТАНОВИВ:" opens the findings of fact
	{model.SectionFacts, regexp.MustCompile(`(?i)[ву]\s*с\s*т\s*а\s*н\s*о\s*в\s*и\s*в\s*[:.]?\s*$`), 0},
	{model.SectionFacts, regexp.MustCompile(`(?i)^обставини справи`), 80},
	{model.SectionClaims, regexp.MustCompile(`(?i)^(?:позовні вимоги|суть спору)`), 80},
	{model.SectionArguments, regexp.MustCompile(`(?i)^(?:доводи\s|аргументи\s|позиція\s)`), 80},
	{model.SectionLawReferences, regexp.MustCompile(`(?i)^(?:джерела права|норми права|застосоване законодавство)`), 80},
	{model.SectionCourtReasoning, regexp.MustCompile(`(?i)^(?:мотиви(?:[\s:]|$)|мотивувальна|висновки суду|оцінка суду)`), 80},
	{model.SectionAmounts, regexp.MustCompile(`(?i)^(?:судові витрати|ціна позову|розподіл судових витрат)`), 80},
	// "ВИРІШИВ:" / "УХВАЛИВ:" / "ПОСТАНОВИВ:" open the operative part
	{model.SectionDecision, regexp.MustCompile(`(?i)(?:в\s*и\s*р\s*і\s*ш\s*и\s*в|у\s*х\s*в\s*а\s*л\s*и\s*в|п\s*о\s*с\s*т\s*а\s*н\s*о\s*в\s*и\s*в)\s*[:.]?\s*$`), 0},
	{model.SectionDecision, regexp.MustCompile(`(?i)^резолютивна частина`), 80},
}

// SplitSections segments decision text into typed sections. Lines before
// the first recognized marker are not part of any section. The marker
// line itself opens its section.
func SplitSections(text string) []model.ExtractedSection {
	lines := strings.Split(text, "\n")

	var sections []model.ExtractedSection
	var current model.SectionType
	var buf []string

	flush := func() {
		if current == "" || len(buf) == 0 {
			return
		}
		sections = append(sections, model.ExtractedSection{
			Type:       current,
			OrderIndex: len(sections),
			Text:       strings.TrimSpace(strings.Join(buf, "\n")),
		})
	}

	for _, line := range lines {
		if sectionType := matchMarker(line); sectionType != "" {
			flush()
			current = sectionType
			buf = []string{line}
			continue
		}
		if current != "" {
			buf = append(buf, line)
		}
	}
	flush()

	return sections
}

func matchMarker(line string) model.SectionType {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return ""
	}
	runeLen := len([]rune(trimmed))

	for _, m := range sectionMarkers {
		if m.maxLineLen > 0 && runeLen > m.maxLineLen {
			continue
		}
		if m.pattern.MatchString(trimmed) {
			return m.sectionType
		}
	}
	return ""
}
