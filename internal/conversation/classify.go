package conversation

import "strings"

// Readiness is the classification of a reply to the readiness prompt.
type Readiness int

const (
	ReadinessNone Readiness = iota
	ReadinessYes
	ReadinessMaybe
)

func (r Readiness) String() string {
	switch r {
	case ReadinessYes:
		return "yes"
	case ReadinessMaybe:
		return "maybe"
	default:
		return "none"
	}
}

// Button labels of the readiness template, normalized.
var (
	yesButtons = []string{
		"yes, let's begin",
		"yes let's begin",
		"yes, let's start",
		"i'm ready",
		"हाँ, शुरू करें",
		"हां, शुरू करें",
		"हाँ, चलिए शुरू करें",
	}
	maybeButtons = []string{
		"maybe later",
		"not now",
		"later",
		"बाद में",
		"शायद बाद में",
		"अभी नहीं",
	}

	yesKeywords = []string{
		"yes", "yeah", "yep", "yup", "sure", "ready", "ok", "okay", "start", "begin", "go ahead", "let's go",
		"haan", "haa", "ha ji", "haan ji", "ji haan", "chalo", "shuru",
		"हाँ", "हां", "जी", "ठीक", "शुरू", "चलो", "तैयार",
	}
	maybeKeywords = []string{
		"maybe", "later", "not now", "busy", "tomorrow", "another time", "some other time",
		"baad mein", "baad me", "abhi nahi",
		"बाद", "शायद", "अभी नहीं", "कल", "व्यस्त",
	}
)

var replacer = strings.NewReplacer(
	"‘", "'", "’", "'", "‚", "'", "‛", "'", "′", "'",
	"“", `"`, "”", `"`, "„", `"`, "″", `"`,
	"–", "-", "—", "-", "‒", "-", "−", "-",
	"\u00a0", " ",
)

// Normalize lowercases, trims and folds curly quotes and dashes to ASCII.
func Normalize(s string) string {
	return strings.TrimSpace(strings.ToLower(replacer.Replace(s)))
}

// ClassifyReadiness checks exact button labels first, then keyword containment.
// Yes is checked before maybe at each step, so a reply matching both is yes.
func ClassifyReadiness(reply string) Readiness {
	n := Normalize(reply)
	if n == "" {
		return ReadinessNone
	}
	if containsExact(yesButtons, n) {
		return ReadinessYes
	}
	if containsExact(maybeButtons, n) {
		return ReadinessMaybe
	}
	if containsAny(n, yesKeywords) {
		return ReadinessYes
	}
	if containsAny(n, maybeKeywords) {
		return ReadinessMaybe
	}
	return ReadinessNone
}

func containsExact(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
