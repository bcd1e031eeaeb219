package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

const mjpegBoundary = "signspeakframe"

// handleStream serves camera frames as multipart/x-mixed-replace until the
// client disconnects or the hub closes.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	hub := s.deps.Frames
	if hub == nil {
		writeDetail(w, http.StatusServiceUnavailable, "camera preview unavailable")
		return
	}

	read, cancel := hub.Subscribe()
	defer cancel()
	stop := context.AfterFunc(r.Context(), cancel)
	defer stop()

	h := w.Header()
	h.Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Connection", "close")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	for {
		frame := read()
		if frame == nil {
			return
		}
		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(frame.Data)); err != nil {
			return
		}
		if _, err := w.Write(frame.Data); err != nil {
			return
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		s.log.Debug("preview frame sent", zap.Uint64("seq", frame.Seq))
	}
}

// handleFrame returns the latest frame as a single JPEG, or 204 when the
// camera has not produced one yet.
func (s *Server) handleFrame(w http.ResponseWriter, _ *http.Request) {
	hub := s.deps.Frames
	if hub == nil {
		writeDetail(w, http.StatusServiceUnavailable, "camera preview unavailable")
		return
	}
	frame := hub.Latest()
	if frame == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h := w.Header()
	h.Set("Content-Type", "image/jpeg")
	h.Set("Content-Length", strconv.Itoa(len(frame.Data)))
	h.Set("Cache-Control", "no-store")
	h.Set("X-Frame-Seq", strconv.FormatUint(frame.Seq, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(frame.Data)
}
