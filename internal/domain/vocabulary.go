package domain

import "strings"

var vocabulary = [...]string{
	"Hello", "Thank You", "Please", "Yes", "No",
	"Help", "Good Morning", "Goodbye", "Sorry", "Welcome",
}

// Vocabulary returns a copy of the fixed sign vocabulary in order.
func Vocabulary() []string {
	out := make([]string, len(vocabulary))
	copy(out, vocabulary[:])
	return out
}

// InVocabulary reports whether text is one of the fixed signs.
func InVocabulary(text string) bool {
	for _, sign := range vocabulary {
		if sign == text {
			return true
		}
	}
	return false
}

// DefaultLanguageCode is used when a language name is not recognized.
const DefaultLanguageCode = "hi"

var languageCodes = map[string]string{
	"tamil":     "ta",
	"malayalam": "ml",
	"telugu":    "te",
	"kannada":   "kn",
	"hindi":     "hi",
}

// LanguageCode maps a UI language name to its translation code. Unknown names
// resolve to fallback, or DefaultLanguageCode when fallback is empty.
func LanguageCode(name string, fallback string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if code, ok := languageCodes[key]; ok {
		return code
	}
	for _, code := range languageCodes {
		if code == key {
			return code
		}
	}
	if fallback = strings.TrimSpace(fallback); fallback != "" {
		if code, ok := languageCodes[strings.ToLower(fallback)]; ok {
			return code
		}
		return fallback
	}
	return DefaultLanguageCode
}
