package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"signspeak/internal/domain"
	"signspeak/internal/errorsx"
	"signspeak/internal/logging"
	"signspeak/internal/metrics"
	"signspeak/internal/ports"
)

var ErrEmptyText = errors.New("nothing to speak")

const audioContentType = "audio/mpeg"

// SpeechService turns transcript text into spoken audio.
type SpeechService struct {
	phraser     ports.Phraser
	translator  ports.Translator
	synthesizer ports.Synthesizer
	log         *zap.Logger
	metrics     *metrics.Metrics

	defaultLanguage string
}

func NewSpeechService(
	phraser ports.Phraser,
	translator ports.Translator,
	synthesizer ports.Synthesizer,
	log *zap.Logger,
	m *metrics.Metrics,
	defaultLanguage string,
) *SpeechService {
	return &SpeechService{
		phraser:         phraser,
		translator:      translator,
		synthesizer:     synthesizer,
		log:             logging.OrNop(log),
		metrics:         m,
		defaultLanguage: defaultLanguage,
	}
}

// Speak rewrites text with the phrasing rules, translates it into language
// and synthesizes it. A failed translation speaks the untranslated text.
func (s *SpeechService) Speak(ctx context.Context, text string, language string) (domain.Utterance, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Utterance{}, errorsx.Wrap(ErrEmptyText, errorsx.ReasonSpeech)
	}

	if s.phraser != nil {
		phrased, err := s.phraser.Apply(text)
		switch {
		case err != nil:
			s.log.Warn("phrasing failed; using raw transcript", zap.Error(err))
		case strings.TrimSpace(phrased) != "":
			text = strings.TrimSpace(phrased)
		}
	}

	code := domain.LanguageCode(language, s.defaultLanguage)
	translated := text
	if s.translator != nil {
		out, err := s.translator.Translate(ctx, text, code)
		s.metrics.Speech("translate", err)
		switch {
		case err != nil:
			s.log.Warn("translation failed; speaking original text",
				zap.String("language", code),
				zap.String("reason", string(errorsx.Reason(err))),
				zap.Error(err))
		case strings.TrimSpace(out) != "":
			translated = strings.TrimSpace(out)
		}
	}

	audio, err := s.synthesizer.Synthesize(ctx, translated, code)
	s.metrics.Speech("tts", err)
	if err != nil {
		return domain.Utterance{}, errorsx.Wrap(fmt.Errorf("synthesize speech: %w", err), errorsx.ReasonSpeech)
	}

	return domain.Utterance{
		Text:        text,
		Translated:  translated,
		Language:    code,
		ContentType: audioContentType,
		Audio:       audio,
	}, nil
}
