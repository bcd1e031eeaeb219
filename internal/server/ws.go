package server

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"signspeak/internal/domain"
	"signspeak/internal/usecase"
)

const (
	sessionWriteTimeout = 5 * time.Second
	sessionQueueSize    = 32
)

// handleSession runs one detection loop per websocket connection. The client
// drives it with start, stop and reset commands.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if s.deps.Labels == nil {
		writeDetail(w, http.StatusServiceUnavailable, "label source unavailable")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sess := newWSSession(conn, s.log)
	if !s.track(sess) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	defer s.untrack(sess)

	s.deps.Metrics.SessionOpened()
	defer s.deps.Metrics.SessionClosed()

	log := s.log.With(zap.String("session_id", sess.id))
	log.Info("detection session opened", zap.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := usecase.NewDetectionLoop(s.deps.Labels, sess, log, s.deps.Metrics, s.deps.Detection)
	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		sess.writeLoop()
	}()

	sess.emit(domain.SessionEvent{Type: domain.EventTypeHello, SessionID: sess.id, State: domain.DetectionIdle})
	s.readCommands(ctx, sess, loop, log)

	loop.Close()
	sess.close()
	writer.Wait()
	log.Info("detection session closed")
}

func (s *Server) readCommands(ctx context.Context, sess *wsSession, loop *usecase.DetectionLoop, log *zap.Logger) {
	for {
		var cmd domain.SessionCommand
		if err := sess.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("detection session read failed", zap.Error(err))
			}
			return
		}

		switch strings.ToLower(strings.TrimSpace(cmd.Action)) {
		case domain.ActionStart:
			loop.Start(ctx)
		case domain.ActionStop:
			loop.Stop()
		case domain.ActionReset:
			loop.Reset()
		default:
			sess.emit(domain.SessionEvent{Type: domain.EventTypeError, Detail: "unknown action: " + cmd.Action})
		}
	}
}

// wsSession adapts the detection sink callbacks to websocket events. The
// callbacks never block: events are queued for the writer goroutine and
// dropped when the client falls behind.
type wsSession struct {
	id   string
	conn *websocket.Conn
	log  *zap.Logger

	events    chan domain.SessionEvent
	done      chan struct{}
	closeOnce sync.Once
}

func newWSSession(conn *websocket.Conn, log *zap.Logger) *wsSession {
	return &wsSession{
		id:     uuid.NewString(),
		conn:   conn,
		log:    log,
		events: make(chan domain.SessionEvent, sessionQueueSize),
		done:   make(chan struct{}),
	}
}

func (s *wsSession) DetectionStateChanged(state domain.DetectionState) {
	s.emit(domain.SessionEvent{Type: domain.EventTypeDetection, State: state})
}

func (s *wsSession) LabelRecognized(label domain.Label) {
	s.emit(domain.SessionEvent{Type: domain.EventTypeRecognized, Label: label.Text, Confidence: label.Confidence})
}

func (s *wsSession) TranscriptUpdated(text string) {
	s.emit(domain.SessionEvent{Type: domain.EventTypeTranscript, Text: text})
}

func (s *wsSession) RecognitionCleared() {
	s.emit(domain.SessionEvent{Type: domain.EventTypeCleared})
}

func (s *wsSession) emit(event domain.SessionEvent) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.events <- event:
	case <-s.done:
	default:
		s.log.Warn("dropping session event; client is behind",
			zap.String("session_id", s.id),
			zap.String("type", event.Type),
		)
	}
}

func (s *wsSession) writeLoop() {
	for {
		select {
		case event := <-s.events:
			_ = s.conn.SetWriteDeadline(time.Now().Add(sessionWriteTimeout))
			if err := s.conn.WriteJSON(event); err != nil {
				s.log.Debug("session write failed", zap.String("session_id", s.id), zap.Error(err))
				s.close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// close is safe to call from any goroutine. Closing the connection unblocks
// the command reader.
func (s *wsSession) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = s.conn.Close()
	})
}
