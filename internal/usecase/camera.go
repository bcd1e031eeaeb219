package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"signspeak/internal/domain"
	"signspeak/internal/errorsx"
	"signspeak/internal/logging"
	"signspeak/internal/metrics"
	"signspeak/internal/ports"
)

var ErrCameraUnavailable = errors.New("camera unavailable")

const (
	CameraAlertTitle   = "Camera"
	CameraAlertMessage = "Unable to access camera. Please ensure camera permissions are granted."
)

// CameraConfig carries the capture preferences.
type CameraConfig struct {
	Facing    domain.FacingMode
	Width     int
	Height    int
	FrameRate int
}

// CameraController owns the single live camera stream.
type CameraController struct {
	camera  ports.Camera
	sink    ports.CameraSink
	alerter ports.Alerter
	log     *zap.Logger
	metrics *metrics.Metrics
	cfg     CameraConfig

	// opMu serializes acquisitions, mu guards the fields below it.
	opMu sync.Mutex

	mu     sync.Mutex
	stream ports.CameraStream
	facing domain.FacingMode
}

func NewCameraController(
	camera ports.Camera,
	sink ports.CameraSink,
	alerter ports.Alerter,
	log *zap.Logger,
	m *metrics.Metrics,
	cfg CameraConfig,
) *CameraController {
	if !cfg.Facing.Valid() {
		cfg.Facing = domain.FacingUser
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 1280, 720
	}
	return &CameraController{
		camera:  camera,
		sink:    sink,
		alerter: alerter,
		log:     logging.OrNop(log),
		metrics: m,
		cfg:     cfg,
		facing:  cfg.Facing,
	}
}

// Start acquires the camera with the current facing preference.
func (c *CameraController) Start(ctx context.Context) error {
	return c.StartWith(ctx, c.Facing())
}

// StartWith stops any live stream, then acquires a new one facing mode.
// On failure the user is alerted and the controller is left inactive.
func (c *CameraController) StartWith(ctx context.Context, mode domain.FacingMode) error {
	c.opMu.Lock()
	err := c.startLocked(ctx, mode)
	c.opMu.Unlock()

	if err != nil {
		c.alert(ctx)
	}
	return err
}

// Stop releases the live stream. Calling it without a stream is a no-op.
func (c *CameraController) Stop() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	stream := c.stream
	c.stream = nil
	facing := c.facing
	c.mu.Unlock()

	if stream == nil {
		return nil
	}

	err := c.release(stream)
	c.sink.CameraStateChanged(domain.CameraStatus{Active: false, Facing: facing}, domain.CameraReasonStopped)
	return err
}

// ToggleFacing flips the facing preference and restarts the camera when it
// is live. It returns the new preference.
func (c *CameraController) ToggleFacing(ctx context.Context) (domain.FacingMode, error) {
	c.opMu.Lock()

	c.mu.Lock()
	next := c.facing.Flip()
	c.facing = next
	active := c.stream != nil
	c.mu.Unlock()

	if !active {
		c.opMu.Unlock()
		c.log.Debug("facing preference changed", zap.String("facing", string(next)))
		c.sink.CameraStateChanged(domain.CameraStatus{Active: false, Facing: next}, domain.CameraReasonFacingChanged)
		return next, nil
	}

	err := c.startLocked(ctx, next)
	c.opMu.Unlock()

	if err != nil {
		c.alert(ctx)
	}
	return next, err
}

// Close stops any live stream.
func (c *CameraController) Close() error {
	return c.Stop()
}

func (c *CameraController) Status() domain.CameraStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.CameraStatus{Active: c.stream != nil, Facing: c.facing}
}

func (c *CameraController) Facing() domain.FacingMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.facing
}

// startLocked must be called with c.opMu held.
func (c *CameraController) startLocked(ctx context.Context, mode domain.FacingMode) error {
	c.mu.Lock()
	if !mode.Valid() {
		mode = c.facing
	}
	previous := c.stream
	c.stream = nil
	c.facing = mode
	c.mu.Unlock()

	if previous != nil {
		_ = c.release(previous)
	}

	stream, err := c.camera.Open(ctx, ports.CameraRequest{
		Facing:    mode,
		Width:     c.cfg.Width,
		Height:    c.cfg.Height,
		FrameRate: c.cfg.FrameRate,
	})
	c.metrics.CameraStarted(err)
	if err != nil {
		c.log.Error("camera acquisition failed",
			zap.String("facing", string(mode)),
			zap.String("reason", string(errorsx.Reason(err))),
			zap.Error(err))
		c.sink.SessionError(domain.ErrorCodeCamera, err.Error())
		c.sink.CameraStateChanged(domain.CameraStatus{Active: false, Facing: mode}, domain.CameraReasonFailed)
		return fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
	}

	c.mu.Lock()
	c.stream = stream
	c.mu.Unlock()

	reason := domain.CameraReasonStarted
	if previous != nil {
		reason = domain.CameraReasonRestarted
	}
	c.log.Info("camera started", zap.String("facing", string(mode)), zap.String("stream", stream.ID()))
	c.sink.CameraStateChanged(domain.CameraStatus{Active: true, Facing: mode}, reason)
	return nil
}

func (c *CameraController) release(stream ports.CameraStream) error {
	c.metrics.CameraStopped()
	if err := stream.Stop(); err != nil {
		c.log.Warn("camera stop failed", zap.String("stream", stream.ID()), zap.Error(err))
		c.sink.SessionError(domain.ErrorCodeCameraStop, "failed to release camera cleanly")
		return err
	}
	return nil
}

func (c *CameraController) alert(ctx context.Context) {
	if c.alerter == nil {
		return
	}
	c.alerter.Alert(ctx, CameraAlertTitle, CameraAlertMessage)
}
