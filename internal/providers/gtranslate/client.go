package gtranslate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"signspeak/internal/errorsx"
	"signspeak/internal/logging"
)

const (
	defaultTranslateURL = "https://translate.googleapis.com"
	defaultTTSURL       = "https://translate.google.com"
	defaultTimeout      = 10 * time.Second

	userAgent    = "Mozilla/5.0 (X11; Linux x86_64) signspeak"
	maxBodyBytes = 8 << 20

	tripAfterFailures = 5
	openTimeout       = 30 * time.Second
)

// Config configures the Google Translate web endpoints.
type Config struct {
	TranslateURL string
	TTSURL       string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// Client translates text and renders MP3 speech through the public Google
// Translate endpoints. Each endpoint sits behind its own circuit breaker.
type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger

	translateBreaker *gobreaker.CircuitBreaker
	ttsBreaker       *gobreaker.CircuitBreaker
}

func New(cfg Config, log *zap.Logger) *Client {
	cfg.TranslateURL = strings.TrimRight(strings.TrimSpace(cfg.TranslateURL), "/")
	if cfg.TranslateURL == "" {
		cfg.TranslateURL = defaultTranslateURL
	}
	cfg.TTSURL = strings.TrimRight(strings.TrimSpace(cfg.TTSURL), "/")
	if cfg.TTSURL == "" {
		cfg.TTSURL = defaultTTSURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	log = logging.OrNop(log)
	return &Client{
		cfg:              cfg,
		http:             httpClient,
		log:              log,
		translateBreaker: newBreaker("translate", log),
		ttsBreaker:       newBreaker("tts", log),
	}
}

func newBreaker(name string, log *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= tripAfterFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("speech backend circuit changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// get issues a GET through cb and returns the body of a 200 response.
func (c *Client) get(ctx context.Context, cb *gobreaker.CircuitBreaker, rawURL string, reason errorsx.ReasonCode) ([]byte, error) {
	result, err := cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s response: %w", cb.Name(), err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%s returned status %d", cb.Name(), resp.StatusCode)
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errorsx.Wrap(fmt.Errorf("%s temporarily unavailable: %w", cb.Name(), err), errorsx.ReasonCircuitOpen)
		}
		return nil, errorsx.Wrap(err, reason)
	}
	return result.([]byte), nil
}
