package parse

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/c360studio/courtstream/model"
)

// Pre-compiled extraction patterns. Character classes include і, ї, є
// and ґ explicitly because they sit outside the А-я Cyrillic block.
var (
	caseNumberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)справа\s*№?\s*(\d+[/-]\d+[/-]\d+)`),
		regexp.MustCompile(`(?i)case\s*№?\s*(\d+[/-]\d+[/-]\d+)`),
		regexp.MustCompile(`№\s*(\d+[/-]\d+[/-]\d+)`),
	}

	courtPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)([а-яіїєґ']+ський(?:\s+[а-яіїєґ']+){0,2}\s+суд(?:\s+міста\s+[а-яіїєґ'-]+)?)`),
		regexp.MustCompile(`(?i)(суд\s+[а-яіїєґ']+)`),
	}

	judgePattern = regexp.MustCompile(`(?i:суддя)[\s:–-]+([А-ЯІЇЄҐ][А-ЯІЇЄҐа-яіїєґ'-]*\s+[А-ЯІЇЄҐ]\.\s*[А-ЯІЇЄҐ]\.)`)

	datePatterns = []struct {
		re     *regexp.Regexp
		layout string
	}{
		{regexp.MustCompile(`(\d{2}\.\d{2}\.\d{4})`), "02.01.2006"},
		{regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`), "2006-01-02"},
	}

	lawRefPattern = regexp.MustCompile(`(?:ст\.|(?i:статт[яі]))\s*(\d+)\s+([А-ЯІЇЄҐ]{2,})`)

	amountPattern = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(грн|UAH|USD|EUR)`)

	// "за позовом X до Y про Z" carries both parties and the claim subject
	lawsuitPattern = regexp.MustCompile(`(?i)за позовом\s+([^\n]{3,200}?)\s+до\s+([^\n]{3,200}?)\s+про\s+([^\n]{3,160})`)

	plaintiffLabelPattern = regexp.MustCompile(`(?i)позивач\s*[-:–]\s*([^\n]{3,160})`)
	defendantLabelPattern = regexp.MustCompile(`(?i)відповідач\s*[-:–]\s*([^\n]{3,160})`)

	// "у задоволенні позову відмовити" is the denial formula; the noun
	// must not read as a grant. Matched against lowercased text.
	denialFormulaPattern = regexp.MustCompile(`[ву]\s+задоволенн?і`)
)

// currencyNames maps spelled-out currencies to ISO codes.
var currencyNames = map[string]string{
	"грн": "UAH",
}

// Extract runs the extraction rules over normalized decision text.
func Extract(text string) model.Extraction {
	ext := model.Extraction{
		CaseNumber:   extractCaseNumber(text),
		CourtName:    extractCourtName(text),
		JudgeName:    extractJudgeName(text),
		DecisionDate: extractDate(text),
		DocumentType: DetectDocumentType(text),
		LawRefs:      extractLawRefs(text),
		Amounts:      extractAmounts(text),
		Sections:     SplitSections(text),
	}

	parties, claimSubject := extractParties(text)
	ext.Parties = parties
	ext.Claims = buildClaims(claimSubject, ext.Amounts)
	ext.Outcome = detectOutcome(operativeText(ext.Sections, text))

	return ext
}

// Confidence scores an extraction by the presence of its anchor fields.
func Confidence(ext *model.Extraction) float64 {
	score := 0.0
	if ext.CourtName != "" {
		score += 0.3
	}
	if ext.JudgeName != "" {
		score += 0.3
	}
	if ext.DecisionDate != nil {
		score += 0.4
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// DetectDocumentType classifies the filing from its heading.
func DetectDocumentType(text string) model.DocumentType {
	head := text
	if len(head) > 2000 {
		head = head[:2000]
	}

	switch {
	case strings.Contains(head, "УХВАЛА"):
		return model.DocumentTypeRuling
	case strings.Contains(head, "ПОСТАНОВА"):
		if strings.Contains(strings.ToLower(head), "апеляційн") {
			return model.DocumentTypeAppeal
		}
		return model.DocumentTypeOrder
	default:
		return model.DocumentTypeDecision
	}
}

func extractCaseNumber(text string) string {
	for _, pattern := range caseNumberPatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

func extractCourtName(text string) string {
	for _, pattern := range courtPatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			return strings.Join(strings.Fields(m[1]), " ")
		}
	}
	return ""
}

func extractJudgeName(text string) string {
	if m := judgePattern.FindStringSubmatch(text); m != nil {
		return strings.Join(strings.Fields(m[1]), " ")
	}
	return ""
}

func extractDate(text string) *time.Time {
	for _, p := range datePatterns {
		for _, m := range p.re.FindAllStringSubmatch(text, 5) {
			if t, err := time.Parse(p.layout, m[1]); err == nil {
				return &t
			}
		}
	}
	return nil
}

func extractLawRefs(text string) []string {
	seen := make(map[string]bool)
	var refs []string
	for _, m := range lawRefPattern.FindAllStringSubmatch(text, -1) {
		ref := m[2] + " " + m[1] // "ЦКУ 625"
		if seen[ref] {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

func extractAmounts(text string) []model.ExtractedAmount {
	var amounts []model.ExtractedAmount
	for _, m := range amountPattern.FindAllStringSubmatch(text, -1) {
		value, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
		if err != nil {
			continue
		}
		currency := m[2]
		if iso, ok := currencyNames[strings.ToLower(currency)]; ok {
			currency = iso
		}
		amounts = append(amounts, model.ExtractedAmount{Value: value, Currency: currency})
	}
	return amounts
}

// extractParties finds the plaintiff and defendant. The claim subject
// (the "про ..." clause) is returned alongside when present.
func extractParties(text string) ([]model.ExtractedParty, string) {
	if m := lawsuitPattern.FindStringSubmatch(text); m != nil {
		return []model.ExtractedParty{
			{Name: cleanPartyName(m[1]), Role: model.PartyRolePlaintiff},
			{Name: cleanPartyName(m[2]), Role: model.PartyRoleDefendant},
		}, cleanPartyName(m[3])
	}

	var parties []model.ExtractedParty
	if m := plaintiffLabelPattern.FindStringSubmatch(text); m != nil {
		parties = append(parties, model.ExtractedParty{Name: cleanPartyName(m[1]), Role: model.PartyRolePlaintiff})
	}
	if m := defendantLabelPattern.FindStringSubmatch(text); m != nil {
		parties = append(parties, model.ExtractedParty{Name: cleanPartyName(m[1]), Role: model.PartyRoleDefendant})
	}
	return parties, ""
}

func cleanPartyName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	return strings.Trim(name, " ,;.")
}

// buildClaims forms a claim from the lawsuit subject. The first stated
// amount is taken as the demand when one exists.
func buildClaims(subject string, amounts []model.ExtractedAmount) []model.ExtractedClaim {
	if subject == "" {
		return nil
	}

	claim := model.ExtractedClaim{ClaimType: subject}
	if len(amounts) > 0 {
		claim.Amount = amounts[0].Value
		claim.Currency = amounts[0].Currency
	}
	return []model.ExtractedClaim{claim}
}

// operativeText picks the decision section when segmentation found one,
// otherwise the whole text.
func operativeText(sections []model.ExtractedSection, text string) string {
	for _, s := range sections {
		if s.Type == model.SectionDecision {
			return s.Text
		}
	}
	return text
}

func detectOutcome(text string) model.OutcomeResult {
	t := strings.ToLower(text)
	grantText := denialFormulaPattern.ReplaceAllString(t, "")
	granted := strings.Contains(grantText, "задоволь") || strings.Contains(grantText, "задоволен")
	denied := strings.Contains(t, "відмов")
	partial := strings.Contains(t, "частково")

	switch {
	case granted && (partial || denied):
		return model.OutcomePartiallyGranted
	case granted:
		return model.OutcomeGranted
	case denied:
		return model.OutcomeDenied
	default:
		return ""
	}
}
