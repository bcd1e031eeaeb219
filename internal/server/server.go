// Package server exposes the HTTP surface: health, prediction, speech, the
// websocket detection session, the camera preview and Prometheus metrics.
package server

import (
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"signspeak/internal/framehub"
	"signspeak/internal/logging"
	"signspeak/internal/metrics"
	"signspeak/internal/ports"
	"signspeak/internal/usecase"
)

const (
	RouteHealth  = "/"
	RoutePredict = "/predict"
	RouteSpeak   = "/speak"
	RouteMetrics = "/metrics"
	RouteSession = "/ws/session"
	RouteStream  = "/camera/stream.mjpg"
	RouteFrame   = "/camera/frame.jpg"
)

// Deps are the collaborators the handlers use. Nil Speech or Frames make the
// matching routes answer 503.
type Deps struct {
	Labels         ports.LabelSource
	Speech         *usecase.SpeechService
	Frames         *framehub.Hub
	Metrics        *metrics.Metrics
	Log            *zap.Logger
	Detection      usecase.DetectionConfig
	AllowedOrigins []string
}

type Server struct {
	deps     Deps
	log      *zap.Logger
	origins  originPolicy
	upgrader websocket.Upgrader
	router   *mux.Router

	mu       sync.Mutex
	sessions map[string]*wsSession
	closed   bool
	wg       sync.WaitGroup
}

func New(deps Deps) *Server {
	s := &Server{
		deps:     deps,
		log:      logging.OrNop(deps.Log),
		origins:  newOriginPolicy(deps.AllowedOrigins),
		sessions: make(map[string]*wsSession),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkUpgrade,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc(RouteHealth, s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc(RoutePredict, s.handlePredict).Methods(http.MethodPost)
	r.HandleFunc(RouteSpeak, s.handleSpeak).Methods(http.MethodPost)
	r.Handle(RouteMetrics, s.metricsHandler()).Methods(http.MethodGet)
	r.HandleFunc(RouteSession, s.handleSession).Methods(http.MethodGet)
	r.HandleFunc(RouteStream, s.handleStream).Methods(http.MethodGet)
	r.HandleFunc(RouteFrame, s.handleFrame).Methods(http.MethodGet)
	return r
}

// Handler returns the full API with request ids and CORS applied.
func (s *Server) Handler() http.Handler {
	return withRequestID(s.cors(s.router))
}

// PreviewHandler serves only the camera routes. The desktop shell mounts it
// behind its asset server.
func (s *Server) PreviewHandler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(RouteStream, s.handleStream).Methods(http.MethodGet)
	r.HandleFunc(RouteFrame, s.handleFrame).Methods(http.MethodGet)
	return r
}

func (s *Server) metricsHandler() http.Handler {
	if s.deps.Metrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			writeDetail(w, http.StatusServiceUnavailable, "metrics disabled")
		})
	}
	return s.deps.Metrics.Handler()
}

// Close ends every websocket session and waits for their loops to stop.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	sessions := make([]*wsSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
	s.wg.Wait()
}

func (s *Server) track(sess *wsSession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions[sess.id] = sess
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(sess *wsSession) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	s.wg.Done()
}
