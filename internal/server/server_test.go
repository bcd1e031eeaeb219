package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"signspeak/internal/domain"
	"signspeak/internal/framehub"
	"signspeak/internal/labels"
	"signspeak/internal/metrics"
	"signspeak/internal/usecase"
)

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	if deps.Labels == nil {
		deps.Labels = labels.NewRandomSource(7)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.AllowedOrigins == nil {
		deps.AllowedOrigins = []string{"http://localhost:5173"}
	}
	srv := New(deps)
	t.Cleanup(srv.Close)
	return srv
}

func TestHealth(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Deps{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "online" || body.Message != "Sign Language Backend is running" {
		t.Fatalf("unexpected health body: %+v", body)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestPredictReturnsVocabularyLabel(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	srv := newTestServer(t, Deps{Metrics: m})
	req := uploadRequest(t, "frame.png", "image/png", []byte("\x89PNG"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", rec.Code, rec.Body.String())
	}
	var label domain.Label
	if err := json.Unmarshal(rec.Body.Bytes(), &label); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !domain.InVocabulary(label.Text) {
		t.Fatalf("label outside vocabulary: %q", label.Text)
	}
	if label.Confidence < 0.70 || label.Confidence > 0.99 {
		t.Fatalf("confidence out of range: %v", label.Confidence)
	}
	if !strings.Contains(rec.Body.String(), `"sign"`) {
		t.Fatalf("expected sign field, got %s", rec.Body.String())
	}
	if got := testutil.ToFloat64(m.PredictRequests); got != 1 {
		t.Fatalf("expected one predict recorded, got %v", got)
	}
}

func TestPredictRejectsNonImage(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Deps{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, uploadRequest(t, "notes.txt", "text/plain", []byte("hi")))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"detail":"File must be an image"}` {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestPredictRequiresFile(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Deps{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestPredictLabelSourceFailure(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Deps{Labels: failingSource{}})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, uploadRequest(t, "a.jpg", "image/jpeg", []byte{0xff, 0xd8}))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestSpeakStreamsAudio(t *testing.T) {
	t.Parallel()

	translator := &stubTranslator{out: "வணக்கம்"}
	speech := usecase.NewSpeechService(nil, translator, &stubSynthesizer{audio: []byte("ID3mp3")}, nil, nil, "Hindi")
	srv := newTestServer(t, Deps{Speech: speech})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/speak", strings.NewReader(`{"text":"Hello","language":"Tamil"}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "audio/mpeg" {
		t.Fatalf("unexpected content type: %q", rec.Header().Get("Content-Type"))
	}
	if rec.Header().Get("X-Translated-Text") != "வணக்கம்" {
		t.Fatalf("unexpected translated header: %q", rec.Header().Get("X-Translated-Text"))
	}
	if rec.Body.String() != "ID3mp3" {
		t.Fatalf("unexpected audio: %q", rec.Body.String())
	}
	if translator.lastCode() != "ta" {
		t.Fatalf("expected tamil code, got %q", translator.lastCode())
	}
}

func TestSpeakDefaultsLanguage(t *testing.T) {
	t.Parallel()

	translator := &stubTranslator{out: "नमस्ते"}
	speech := usecase.NewSpeechService(nil, translator, &stubSynthesizer{audio: []byte("mp3")}, nil, nil, "Hindi")
	srv := newTestServer(t, Deps{Speech: speech})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/speak", strings.NewReader(`{"text":"Hello"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if translator.lastCode() != "hi" {
		t.Fatalf("expected unknown default language to resolve to hi, got %q", translator.lastCode())
	}
}

func TestSpeakFailuresReturnDetail(t *testing.T) {
	t.Parallel()

	speech := usecase.NewSpeechService(nil, nil, &stubSynthesizer{err: errors.New("tts down")}, nil, nil, "Hindi")
	srv := newTestServer(t, Deps{Speech: speech})

	for _, body := range []string{`{"text":"  "}`, `{"text":"Hello"}`} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/speak", strings.NewReader(body)))
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("%s: expected 500, got %d", body, rec.Code)
		}
		var detail detailResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil || detail.Detail == "" {
			t.Fatalf("%s: expected detail, got %s", body, rec.Body.String())
		}
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/speak", strings.NewReader(`not json`)))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for malformed body, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Deps{})

	req := httptest.NewRequest(http.MethodOptions, "/speak", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 preflight, got %d", rec.Code)
	}
	h := rec.Header()
	if h.Get("Access-Control-Allow-Origin") != "http://localhost:5173" || h.Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("unexpected cors headers: %v", h)
	}
	if h.Get("Access-Control-Allow-Headers") != "Content-Type" || h.Get("Access-Control-Max-Age") != "600" {
		t.Fatalf("unexpected preflight headers: %v", h)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("preflight must not reach the handler, got %q", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodOptions, "/speak", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Methods") != http.MethodPut {
		t.Fatalf("expected non-simple method to be listed, got %v", rec.Header())
	}

	req = httptest.NewRequest(http.MethodOptions, "/speak", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" || rec.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Fatalf("expected disallowed origin to get no cors headers, got %v", rec.Header())
	}
}

func TestCORSRejectsUnlistedRequestHeader(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Deps{})
	req := httptest.NewRequest(http.MethodOptions, "/speak", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "x-secret")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unlisted header, got %d", rec.Code)
	}
}

func TestCORSWildcardEchoesOrigin(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Deps{AllowedOrigins: []string{"*"}})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://phone.local:5173")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "https://phone.local:5173" {
		t.Fatalf("expected echoed origin, got %v", rec.Header())
	}
}

func TestCORSSimpleRequestExposesHeaders(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Deps{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if !strings.Contains(rec.Header().Get("Access-Control-Expose-Headers"), "X-Translated-Text") {
		t.Fatalf("expected exposed headers, got %v", rec.Header())
	}
}

func TestMetricsEndpointRecordsRoutes(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Deps{})
	srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `signspeak_http_request_duration_seconds_count{code="200",method="GET",route="/"} 1`) {
		t.Fatalf("expected health request in metrics, got:\n%s", rec.Body.String())
	}
}

func TestFrameEndpoint(t *testing.T) {
	t.Parallel()

	hub := framehub.New()
	srv := newTestServer(t, Deps{Frames: hub})

	rec := httptest.NewRecorder()
	srv.PreviewHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, RouteFrame, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 before any frame, got %d", rec.Code)
	}

	hub.Publish([]byte{0xff, 0xd8, 0xff, 0xd9})
	rec = httptest.NewRecorder()
	srv.PreviewHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, RouteFrame, nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/jpeg" {
		t.Fatalf("unexpected frame response: %d %v", rec.Code, rec.Header())
	}
	if !bytes.Equal(rec.Body.Bytes(), []byte{0xff, 0xd8, 0xff, 0xd9}) {
		t.Fatalf("unexpected frame body: %x", rec.Body.Bytes())
	}
}

func TestStreamServesMultipartFrames(t *testing.T) {
	t.Parallel()

	hub := framehub.New()
	hub.Publish([]byte("JPEG-1"))
	srv := newTestServer(t, Deps{Frames: hub})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+RouteStream, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "multipart/x-mixed-replace; boundary="+mjpegBoundary) {
		t.Fatalf("unexpected content type: %q", resp.Header.Get("Content-Type"))
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		hub.Publish([]byte("JPEG-2"))
	}()

	// Each part is read by its Content-Length; the closing boundary of the
	// last part only arrives with the next frame.
	br := bufio.NewReader(resp.Body)
	tp := textproto.NewReader(br)
	for _, want := range []string{"JPEG-1", "JPEG-2"} {
		line, err := tp.ReadLine()
		if err != nil {
			t.Fatalf("read boundary: %v", err)
		}
		if line != "--"+mjpegBoundary {
			t.Fatalf("unexpected boundary line: %q", line)
		}
		header, err := tp.ReadMIMEHeader()
		if err != nil {
			t.Fatalf("read part header: %v", err)
		}
		if header.Get("Content-Type") != "image/jpeg" {
			t.Fatalf("unexpected part type: %q", header.Get("Content-Type"))
		}
		size, err := strconv.Atoi(header.Get("Content-Length"))
		if err != nil {
			t.Fatalf("bad content length %q: %v", header.Get("Content-Length"), err)
		}
		data := make([]byte, size)
		if _, err := io.ReadFull(br, data); err != nil {
			t.Fatalf("read part: %v", err)
		}
		if string(data) != want {
			t.Fatalf("expected %s, got %q", want, data)
		}
		if _, err := br.Discard(2); err != nil {
			t.Fatalf("read part trailer: %v", err)
		}
	}
}

func TestStreamWithoutHubIsUnavailable(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Deps{})
	rec := httptest.NewRecorder()
	srv.PreviewHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, RouteStream, nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func uploadRequest(t *testing.T, filename, contentType string, data []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/predict", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

type failingSource struct{}

func (failingSource) Next(context.Context) (domain.Label, error) {
	return domain.Label{}, errors.New("model offline")
}

type stubTranslator struct {
	mu   sync.Mutex
	out  string
	code string
}

func (s *stubTranslator) Translate(_ context.Context, _ string, code string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code = code
	return s.out, nil
}

func (s *stubTranslator) lastCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

type stubSynthesizer struct {
	audio []byte
	err   error
}

func (s *stubSynthesizer) Synthesize(context.Context, string, string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.audio, nil
}
