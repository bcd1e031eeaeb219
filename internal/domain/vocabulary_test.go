package domain

import "testing"

func TestVocabularyIsFixedAndCopied(t *testing.T) {
	t.Parallel()

	words := Vocabulary()
	if len(words) != 10 {
		t.Fatalf("expected 10 signs, got %d", len(words))
	}
	if words[0] != "Hello" || words[9] != "Welcome" {
		t.Fatalf("unexpected vocabulary order: %v", words)
	}

	words[0] = "mutated"
	if Vocabulary()[0] != "Hello" {
		t.Fatalf("vocabulary must not be mutable through the returned slice")
	}
}

func TestInVocabulary(t *testing.T) {
	t.Parallel()

	if !InVocabulary("Good Morning") {
		t.Fatalf("expected Good Morning to be a sign")
	}
	if InVocabulary("good morning") || InVocabulary("") {
		t.Fatalf("membership is exact")
	}
}

func TestLanguageCode(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Tamil":     "ta",
		"Malayalam": "ml",
		"Telugu":    "te",
		"Kannada":   "kn",
		"Hindi":     "hi",
		" tamil ":   "ta",
		"kn":        "kn",
		"en":        "hi",
		"":          "hi",
	}
	for name, want := range cases {
		if got := LanguageCode(name, ""); got != want {
			t.Fatalf("LanguageCode(%q) = %q, want %q", name, got, want)
		}
	}

	if got := LanguageCode("Klingon", "Telugu"); got != "te" {
		t.Fatalf("expected fallback name to resolve, got %q", got)
	}
	if got := LanguageCode("Klingon", "fr"); got != "fr" {
		t.Fatalf("expected raw fallback code, got %q", got)
	}
}

func TestFacingModeFlip(t *testing.T) {
	t.Parallel()

	if FacingUser.Flip() != FacingEnvironment || FacingEnvironment.Flip() != FacingUser {
		t.Fatalf("flip must alternate")
	}
	if FacingMode("").Flip() != FacingEnvironment {
		t.Fatalf("unknown mode flips to environment")
	}
	if FacingMode("side").Valid() {
		t.Fatalf("unexpected valid mode")
	}
}
