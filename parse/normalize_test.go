package parse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const decisionPageFixture = `<!DOCTYPE html>
<html lang="uk">
<head>
<title>Рішення у справі № 910/12345/23</title>
</head>
<body>
<nav><a href="/">Головна</a> <a href="/Search">Пошук у реєстрі</a></nav>
<main>
<h1>РІШЕННЯ ІМЕНЕМ УКРАЇНИ</h1>
<p>Господарський суд міста Києва у складі судді Мельник О.В., розглянувши у відкритому судовому засіданні матеріали справи № 910/12345/23 за позовом Товариства з обмеженою відповідальністю «Будівельник» до Приватного підприємства «Ремонт-Сервіс» про стягнення заборгованості за договором підряду.</p>
<p>Позивач звернувся до суду з вимогою стягнути з відповідача 150000,50 грн заборгованості, посилаючись на неналежне виконання відповідачем умов договору підряду від 12.01.2022 щодо оплати виконаних робіт.</p>
<p>Відповідач відзив на позовну заяву не подав, про час та місце розгляду справи повідомлений належним чином за адресою місцезнаходження.</p>
<p>Дослідивши матеріали справи та оцінивши надані докази, суд дійшов висновку про обґрунтованість позовних вимог у повному обсязі з огляду на таке.</p>
</main>
<footer>Єдиний державний реєстр судових рішень</footer>
</body>
</html>`

func TestNormalizeHTML(t *testing.T) {
	n := NewNormalizer()

	normalized, err := n.NormalizeHTML([]byte(decisionPageFixture), "https://reyestr.court.gov.ua/Review/109876543")
	require.NoError(t, err)

	assert.Equal(t, "Рішення у справі № 910/12345/23", normalized.Title)
	assert.Contains(t, normalized.Text, "Позивач звернувся до суду")
	assert.Contains(t, normalized.Text, "150000,50 грн")
	assert.NotContains(t, normalized.Text, "Пошук у реєстрі")
}

func TestNormalizeHTMLBareFragment(t *testing.T) {
	n := NewNormalizer()

	normalized, err := n.NormalizeHTML([]byte("<p>Справа № 757/1234/20</p>"), "")
	require.NoError(t, err)
	assert.Contains(t, normalized.Text, "Справа № 757/1234/20")
}

func TestNormalizeText(t *testing.T) {
	n := NewNormalizer()

	content := "\n\nРІШЕННЯ\n\n\n\n\nІменем України\n\nтекст рішення   \n"
	normalized := n.NormalizeText([]byte(content))

	assert.Equal(t, "РІШЕННЯ", normalized.Title)
	assert.NotContains(t, normalized.Text, "\n\n\n")
	assert.Contains(t, normalized.Text, "Іменем України")
	assert.True(t, strings.HasSuffix(normalized.Text, "текст рішення"), "trailing whitespace kept: %q", normalized.Text)
}

func TestNormalizeTextTitleCap(t *testing.T) {
	n := NewNormalizer()

	line := strings.Repeat("а", 150)
	normalized := n.NormalizeText([]byte(line))

	assert.Len(t, []rune(normalized.Title), 120)
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trailing spaces", "рядок  \nдругий\t\n", "рядок\nдругий"},
		{"blank run collapsed", "один\n\n\n\n\nдва", "один\n\nдва"},
		{"surrounding whitespace", "\n\n  текст  \n\n", "текст"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanText(tt.in))
		})
	}
}
