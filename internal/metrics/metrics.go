package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors exported on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	CameraStarts      *prometheus.CounterVec
	CameraActive      prometheus.Gauge
	DetectionTicks    prometheus.Counter
	LabelsRecognized  *prometheus.CounterVec
	TranscriptAppends prometheus.Counter
	SpeechRequests    *prometheus.CounterVec
	PredictRequests   prometheus.Counter
	HTTPDuration      *prometheus.HistogramVec
	WebsocketSessions prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		CameraStarts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signspeak_camera_starts_total",
			Help: "Camera acquisitions by result",
		}, []string{"result"}),

		CameraActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "signspeak_camera_active",
			Help: "1 while a camera stream is live",
		}),

		DetectionTicks: factory.NewCounter(prometheus.CounterOpts{
			Name: "signspeak_detection_ticks_total",
			Help: "Detection loop ticks",
		}),

		LabelsRecognized: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signspeak_labels_recognized_total",
			Help: "Recognized labels",
		}, []string{"label"}),

		TranscriptAppends: factory.NewCounter(prometheus.CounterOpts{
			Name: "signspeak_transcript_appends_total",
			Help: "Labels appended to a transcript",
		}),

		SpeechRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signspeak_speech_requests_total",
			Help: "Translate and TTS calls by stage and status",
		}, []string{"stage", "status"}),

		PredictRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "signspeak_predict_requests_total",
			Help: "Accepted /predict uploads",
		}),

		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signspeak_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "code"}),

		WebsocketSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "signspeak_ws_sessions_active",
			Help: "Open websocket detection sessions",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// The recorders below are nil-safe so components can run without metrics.

func (m *Metrics) CameraStarted(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.CameraStarts.WithLabelValues("error").Inc()
		m.CameraActive.Set(0)
		return
	}
	m.CameraStarts.WithLabelValues("ok").Inc()
	m.CameraActive.Set(1)
}

func (m *Metrics) CameraStopped() {
	if m == nil {
		return
	}
	m.CameraActive.Set(0)
}

func (m *Metrics) Tick() {
	if m == nil {
		return
	}
	m.DetectionTicks.Inc()
}

func (m *Metrics) Recognized(label string) {
	if m == nil {
		return
	}
	m.LabelsRecognized.WithLabelValues(label).Inc()
}

func (m *Metrics) Appended() {
	if m == nil {
		return
	}
	m.TranscriptAppends.Inc()
}

// Speech records one translate or tts call.
func (m *Metrics) Speech(stage string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SpeechRequests.WithLabelValues(stage, status).Inc()
}

func (m *Metrics) Predicted() {
	if m == nil {
		return
	}
	m.PredictRequests.Inc()
}

func (m *Metrics) ObserveHTTP(route, method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPDuration.WithLabelValues(route, method, strconv.Itoa(code)).Observe(elapsed.Seconds())
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.WebsocketSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.WebsocketSessions.Dec()
}
