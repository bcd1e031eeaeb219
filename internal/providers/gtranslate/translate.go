package gtranslate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"signspeak/internal/errorsx"
)

// Translate returns text translated into the language identified by code.
// The source language is detected by the service.
func (c *Client) Translate(ctx context.Context, text string, code string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}

	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", "auto")
	q.Set("tl", code)
	q.Set("dt", "t")
	q.Set("q", text)

	body, err := c.get(ctx, c.translateBreaker, c.cfg.TranslateURL+"/translate_a/single?"+q.Encode(), errorsx.ReasonTranslate)
	if err != nil {
		return "", err
	}

	translated, err := parseTranslation(body)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTranslate)
	}
	c.log.Debug("translated text", zap.String("language", code), zap.Int("chars", len(translated)))
	return translated, nil
}

// parseTranslation reads the nested array response. The first element holds
// one [translated, source, ...] segment per sentence.
func parseTranslation(body []byte) (string, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("failed to decode translation: %w", err)
	}
	if len(raw) == 0 {
		return "", errors.New("empty translation response")
	}

	var segments [][]any
	if err := json.Unmarshal(raw[0], &segments); err != nil {
		return "", fmt.Errorf("unexpected translation layout: %w", err)
	}

	var b strings.Builder
	for _, segment := range segments {
		if len(segment) == 0 {
			continue
		}
		if part, ok := segment[0].(string); ok {
			b.WriteString(part)
		}
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", errors.New("translation response had no text")
	}
	return out, nil
}
