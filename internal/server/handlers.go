package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"signspeak/internal/errorsx"
)

const (
	maxUploadBytes = 10 << 20
	maxSpeakBytes  = 64 << 10

	defaultSpeakLanguage = "en"
)

type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type speakRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type detailResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "online",
		Message: "Sign Language Backend is running",
	})
}

// handlePredict accepts an uploaded image and answers with a label from the
// configured source. The image content is not inspected.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "file is required")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "file is required")
		return
	}
	_ = file.Close()

	if !strings.HasPrefix(header.Header.Get("Content-Type"), "image/") {
		writeDetail(w, http.StatusBadRequest, "File must be an image")
		return
	}
	if s.deps.Labels == nil {
		writeDetail(w, http.StatusServiceUnavailable, "label source unavailable")
		return
	}

	label, err := s.deps.Labels.Next(r.Context())
	if err != nil {
		s.log.Warn("predict failed", zap.String("reason", string(errorsx.Reason(err))), zap.Error(err))
		writeDetail(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.deps.Metrics.Predicted()
	writeJSON(w, http.StatusOK, label)
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req speakRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSpeakBytes))
	if err := dec.Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Language) == "" {
		req.Language = defaultSpeakLanguage
	}
	if s.deps.Speech == nil {
		writeDetail(w, http.StatusServiceUnavailable, "speech unavailable")
		return
	}

	utterance, err := s.deps.Speech.Speak(r.Context(), req.Text, req.Language)
	if err != nil {
		s.log.Error("speak failed",
			zap.String("language", req.Language),
			zap.String("reason", string(errorsx.Reason(err))),
			zap.Error(err),
		)
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", utterance.ContentType)
	w.Header().Set("X-Translated-Text", headerSafe(utterance.Translated))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(utterance.Audio); err != nil {
		s.log.Debug("speak response write failed", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, detailResponse{Detail: detail})
}

// headerSafe drops control characters, which are not allowed in header values.
func headerSafe(v string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, v)
}
