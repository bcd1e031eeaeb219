package gtranslate

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"signspeak/internal/errorsx"
)

// maxChunkRunes is the longest text the TTS endpoint accepts per request.
const maxChunkRunes = 100

// Synthesize renders text as MP3 audio. Long text is split into chunks whose
// MP3 frames are concatenated.
func (c *Client) Synthesize(ctx context.Context, text string, code string) ([]byte, error) {
	chunks := chunkText(text, maxChunkRunes)
	if len(chunks) == 0 {
		return nil, errorsx.Wrap(errors.New("nothing to synthesize"), errorsx.ReasonSpeech)
	}

	var audio bytes.Buffer
	for i, chunk := range chunks {
		q := url.Values{}
		q.Set("ie", "UTF-8")
		q.Set("client", "tw-ob")
		q.Set("tl", code)
		q.Set("q", chunk)
		q.Set("total", strconv.Itoa(len(chunks)))
		q.Set("idx", strconv.Itoa(i))
		q.Set("textlen", strconv.Itoa(utf8.RuneCountInString(chunk)))

		body, err := c.get(ctx, c.ttsBreaker, c.cfg.TTSURL+"/translate_tts?"+q.Encode(), errorsx.ReasonSpeech)
		if err != nil {
			return nil, err
		}
		audio.Write(body)
	}

	if audio.Len() == 0 {
		return nil, errorsx.Wrap(errors.New("speech service returned no audio"), errorsx.ReasonSpeech)
	}
	c.log.Debug("synthesized speech",
		zap.String("language", code),
		zap.Int("chunks", len(chunks)),
		zap.Int("bytes", audio.Len()),
	)
	return audio.Bytes(), nil
}

// chunkText splits text on word boundaries into pieces of at most limit
// runes. Words longer than limit are cut.
func chunkText(text string, limit int) []string {
	words := strings.Fields(text)
	var chunks []string
	var current []rune

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, string(current))
			current = current[:0]
		}
	}

	for _, word := range words {
		runes := []rune(word)
		for len(runes) > limit {
			flush()
			chunks = append(chunks, string(runes[:limit]))
			runes = runes[limit:]
		}
		if len(current) > 0 && len(current)+1+len(runes) > limit {
			flush()
		}
		if len(current) > 0 {
			current = append(current, ' ')
		}
		current = append(current, runes...)
	}
	flush()
	return chunks
}
