package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"signspeak/internal/domain"
	"signspeak/internal/logging"
	"signspeak/internal/metrics"
	"signspeak/internal/ports"
)

var ErrSpeechUnavailable = errors.New("speech is not configured")

// Config controls session behavior.
type Config struct {
	Camera    CameraConfig
	Detection DetectionConfig
}

// SessionController owns the state of one app run: view, theme, camera and
// the detection loop.
type SessionController struct {
	id        string
	camera    *CameraController
	detection *DetectionLoop
	speech    *SpeechService
	events    ports.EventSink
	log       *zap.Logger

	mu   sync.Mutex
	view domain.View
	dark bool
}

func NewSessionController(
	camera ports.Camera,
	labels ports.LabelSource,
	alerter ports.Alerter,
	speech *SpeechService,
	events ports.EventSink,
	log *zap.Logger,
	m *metrics.Metrics,
	cfg Config,
) *SessionController {
	log = logging.OrNop(log)
	id := uuid.NewString()
	log = log.With(zap.String("session", id))

	return &SessionController{
		id:        id,
		camera:    NewCameraController(camera, events, alerter, log.Named("camera"), m, cfg.Camera),
		detection: NewDetectionLoop(labels, events, log.Named("detection"), m, cfg.Detection),
		speech:    speech,
		events:    events,
		log:       log,
		view:      domain.ViewLanding,
	}
}

func (c *SessionController) ID() string {
	return c.id
}

// EnterApp switches to the main view and starts the camera with the current
// facing preference. The view changes even when the camera fails.
func (c *SessionController) EnterApp(ctx context.Context) error {
	c.setView(domain.ViewMain)
	return c.camera.Start(ctx)
}

// ExitApp stops detection, releases the camera and returns to the landing view.
func (c *SessionController) ExitApp() error {
	c.detection.Stop()
	err := c.camera.Stop()
	c.setView(domain.ViewLanding)
	return err
}

func (c *SessionController) StartCamera(ctx context.Context, mode domain.FacingMode) error {
	return c.camera.StartWith(ctx, mode)
}

func (c *SessionController) StopCamera() error {
	return c.camera.Stop()
}

func (c *SessionController) ToggleFacing(ctx context.Context) (domain.FacingMode, error) {
	return c.camera.ToggleFacing(ctx)
}

// StartDetection reports false when detection was already running.
func (c *SessionController) StartDetection(ctx context.Context) bool {
	return c.detection.Start(ctx)
}

// StopDetection reports false when detection was idle.
func (c *SessionController) StopDetection() bool {
	return c.detection.Stop()
}

func (c *SessionController) Reset() {
	c.detection.Reset()
}

// ToggleTheme flips the dark flag and returns the new value.
func (c *SessionController) ToggleTheme() bool {
	c.mu.Lock()
	c.dark = !c.dark
	dark := c.dark
	c.mu.Unlock()

	c.events.ThemeChanged(dark)
	return dark
}

// Speak speaks the current transcript in language.
func (c *SessionController) Speak(ctx context.Context, language string) (domain.Utterance, error) {
	if c.speech == nil {
		return domain.Utterance{}, ErrSpeechUnavailable
	}
	utterance, err := c.speech.Speak(ctx, c.detection.Snapshot().Transcript, language)
	if err != nil && !errors.Is(err, ErrEmptyText) {
		c.events.SessionError(domain.ErrorCodeSpeech, err.Error())
	}
	return utterance, err
}

// Status returns a snapshot of the whole session.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	view, dark := c.view, c.dark
	c.mu.Unlock()

	detection := c.detection.Snapshot()
	return domain.Status{
		SessionID:  c.id,
		View:       view,
		DarkMode:   dark,
		Camera:     c.camera.Status(),
		Detection:  detection.State,
		Recognized: detection.Recognized,
		Transcript: detection.Transcript,
	}
}

// Close stops detection and releases the camera.
func (c *SessionController) Close() error {
	c.detection.Close()
	return c.camera.Close()
}

func (c *SessionController) setView(view domain.View) {
	c.mu.Lock()
	changed := c.view != view
	c.view = view
	c.mu.Unlock()

	if changed {
		c.log.Debug("view changed", zap.String("view", string(view)))
		c.events.ViewChanged(view)
	}
}
