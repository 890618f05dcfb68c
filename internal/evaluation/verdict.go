package evaluation

import (
	"regexp"
	"strings"
)

type ApproachVerdict string

const (
	ApproachCorrect          ApproachVerdict = "CORRECT"
	ApproachPartiallyCorrect ApproachVerdict = "PARTIALLY CORRECT"
	ApproachIncorrect        ApproachVerdict = "INCORRECT"
	ApproachUnknown          ApproachVerdict = "UNKNOWN"
)

type AnswerVerdict string

const (
	AnswerMatches      AnswerVerdict = "MATCHES"
	AnswerDoesNotMatch AnswerVerdict = "DOES NOT MATCH"
	AnswerUnknown      AnswerVerdict = "UNKNOWN"
)

// Verdict is the outcome of the comparison stage. Text keeps the model's full
// feedback; the enums come from its closing sentence.
type Verdict struct {
	Text     string          `json:"text"`
	Approach ApproachVerdict `json:"approach"`
	Answer   AnswerVerdict   `json:"answer"`
}

// Parsed reports whether the closing sentence was found.
func (v Verdict) Parsed() bool {
	return v.Approach != ApproachUnknown && v.Answer != AnswerUnknown
}

// Models wrap the keywords in brackets, bold markers or quotes often enough
// that the separators tolerate them.
var verdictPattern = regexp.MustCompile(
	`(?i)solution\s+approach\s+is[\s*\[\]"'` + "`" + `]*(partially\s+correct|incorrect|correct)[\s*\[\]"'` + "`" + `]*` +
		`,?\s*and\s+the\s+final\s+answer\s+is[\s*\[\]"'` + "`" + `]*(does\s+not\s+match|matches)`,
)

var spaceRun = regexp.MustCompile(`\s+`)

// ParseVerdict extracts the categories from the last closing sentence in text.
// Text without one yields UNKNOWN for both categories.
func ParseVerdict(text string) Verdict {
	v := Verdict{Text: text, Approach: ApproachUnknown, Answer: AnswerUnknown}
	matches := verdictPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return v
	}
	last := matches[len(matches)-1]
	v.Approach = ApproachVerdict(canonicalKeyword(last[1]))
	v.Answer = AnswerVerdict(canonicalKeyword(last[2]))
	return v
}

func canonicalKeyword(s string) string {
	return strings.ToUpper(spaceRun.ReplaceAllString(strings.TrimSpace(s), " "))
}

// ApproachScore is the rating credit for an approach verdict.
func ApproachScore(v ApproachVerdict) float64 {
	switch v {
	case ApproachCorrect:
		return 1.0
	case ApproachPartiallyCorrect:
		return 0.5
	default:
		return 0
	}
}

// AnswerScore is the rating credit for an answer verdict.
func AnswerScore(v AnswerVerdict) float64 {
	if v == AnswerMatches {
		return 1.0
	}
	return 0
}
