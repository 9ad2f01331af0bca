package intent

import (
	"strings"

	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
)

// Intent is the classified purpose of a user message. The classifier is a
// pure keyword heuristic so it stays swappable for a model-based one.
type Intent string

const (
	None        Intent = "none"
	Contact     Intent = "contact"
	Vip         Intent = "vip"
	Ad          Intent = "ad"
	Affirmative Intent = "affirmative"
	Negative    Intent = "negative"
)

var adMarkers = []string{"e'lon", "elon", "joylash", "joylamoqchi", "sovchi"}

var contactMarkers = []string{"raqam", "nomer", "telefon", "kontakt", "bog'lan", "aloqa"}

var vipMarkers = []string{"vip", "premium"}

var affirmativeWords = map[string]struct{}{
	"ha": {}, "xo'p": {}, "xop": {}, "mayli": {}, "roziman": {},
	"to'g'ri": {}, "ok": {}, "okay": {}, "davom": {}, "albatta": {},
}

var negativeWords = map[string]struct{}{
	"yo'q": {}, "yoq": {}, "bekor": {}, "xohlamayman": {}, "istamayman": {},
}

var paymentMarkers = []string{
	"chek", "to'lov", "to'ladim", "o'tkazdim", "kvitansiya", "oplata", "pul tashladim",
}

// Classify tags the combined user text. Product intents win over plain
// yes/no answers so "ha, e'lon joylayman" starts an ad flow.
func Classify(text string) Intent {
	normalized := Normalize(text)
	if normalized == "" {
		return None
	}

	for _, marker := range adMarkers {
		if strings.Contains(normalized, marker) {
			return Ad
		}
	}
	for _, marker := range vipMarkers {
		if strings.Contains(normalized, marker) {
			return Vip
		}
	}
	for _, marker := range contactMarkers {
		if strings.Contains(normalized, marker) {
			return Contact
		}
	}

	for _, token := range tokens(normalized) {
		if _, ok := negativeWords[token]; ok {
			return Negative
		}
	}
	for _, token := range tokens(normalized) {
		if _, ok := affirmativeWords[token]; ok {
			return Affirmative
		}
	}

	return None
}

// PaymentEvidence reports whether free text reads like payment proof,
// used to pick the receipt routing context for an attachment caption.
func PaymentEvidence(text string) bool {
	normalized := Normalize(text)
	if normalized == "" {
		return false
	}
	for _, marker := range paymentMarkers {
		if strings.Contains(normalized, marker) {
			return true
		}
	}
	return false
}

// ParseGender extracts a gender answer from free text.
func ParseGender(text string) (enums.Gender, bool) {
	normalized := Normalize(text)
	for _, token := range tokens(normalized) {
		switch token {
		case "ayol", "qiz", "kelin":
			return enums.GenderFemale, true
		case "erkak", "yigit", "kuyov":
			return enums.GenderMale, true
		}
	}
	return enums.GenderUnknown, false
}

// Normalize lowercases and folds the apostrophe variants Uzbek latin text
// arrives with.
func Normalize(text string) string {
	lowered := strings.ToLower(strings.TrimSpace(text))
	replacer := strings.NewReplacer("’", "'", "ʼ", "'", "`", "'")
	return replacer.Replace(lowered)
}

func tokens(normalized string) []string {
	fields := strings.FieldsFunc(normalized, func(r rune) bool {
		switch r {
		case ' ', '\n', '\t', ',', '.', '!', '?', ':', ';':
			return true
		default:
			return false
		}
	})
	return fields
}
