package parse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/courtstream/model"
)

func TestSplitSections(t *testing.T) {
	text := `Справа № 757/1234/20

Печерський районний суд міста Києва

В С Т А Н О В И В :

Позивач звернувся з позовом у листопаді 2020 року.
Відповідач заперечив проти задоволення вимог.

Мотиви:

Суд виходить з такого.

Судові витрати:

Судовий збір покладається на відповідача.

В И Р І Ш И В :

Позов задовольнити.`

	sections := SplitSections(text)

	require.Len(t, sections, 4)

	assert.Equal(t, model.SectionFacts, sections[0].Type)
	assert.Equal(t, 0, sections[0].OrderIndex)
	assert.True(t, strings.HasPrefix(sections[0].Text, "В С Т А Н О В И В"))
	assert.Contains(t, sections[0].Text, "Позивач звернувся")

	assert.Equal(t, model.SectionCourtReasoning, sections[1].Type)
	assert.Equal(t, 1, sections[1].OrderIndex)
	assert.Contains(t, sections[1].Text, "Суд виходить з такого")

	assert.Equal(t, model.SectionAmounts, sections[2].Type)
	assert.Equal(t, 2, sections[2].OrderIndex)
	assert.Contains(t, sections[2].Text, "Судовий збір")

	assert.Equal(t, model.SectionDecision, sections[3].Type)
	assert.Equal(t, 3, sections[3].OrderIndex)
	assert.Contains(t, sections[3].Text, "Позов задовольнити")
}

func TestSplitSectionsCompactMarkers(t *testing.T) {
	text := `УХВАЛА

суд УХВАЛИВ:

Відкрити провадження у справі.`

	sections := SplitSections(text)

	require.Len(t, sections, 1)
	assert.Equal(t, model.SectionDecision, sections[0].Type)
	assert.Contains(t, sections[0].Text, "Відкрити провадження")
}

func TestSplitSectionsNoMarkers(t *testing.T) {
	sections := SplitSections("Текст без структурних розділів.\nЩе один рядок.")
	assert.Empty(t, sections)
}

func TestMatchMarker(t *testing.T) {
	tests := []struct {
		name string
		line string
		want model.SectionType
	}{
		{"operative verb spaced", "В С Т А Н О В И В :", model.SectionFacts},
		{"operative verb compact", "ВСТАНОВИВ:", model.SectionFacts},
		{"operative verb with lead-in", "розглянувши матеріали справи, суд ВСТАНОВИВ:", model.SectionFacts},
		{"decision verb", "ВИРІШИВ:", model.SectionDecision},
		{"decision verb resolution", "П О С Т А Н О В И В :", model.SectionDecision},
		{"decision verb ruling", "УХВАЛИВ:", model.SectionDecision},
		{"facts heading", "Обставини справи", model.SectionFacts},
		{"claims heading", "Позовні вимоги", model.SectionClaims},
		{"law heading", "Норми права, застосовані судом", model.SectionLawReferences},
		{"reasoning heading", "Висновки суду", model.SectionCourtReasoning},
		{"costs heading", "Розподіл судових витрат", model.SectionAmounts},
		{"resolutive heading", "Резолютивна частина", model.SectionDecision},
		{"plain sentence", "Суд розглянув матеріали справи.", ""},
		{"empty line", "   ", ""},
		{
			"heading word inside long prose is not a marker",
			"Обставини справи детально викладені у попередніх ухвалах суду та не потребують повторного наведення у цьому рішенні по суті спору",
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchMarker(tt.line))
		})
	}
}
