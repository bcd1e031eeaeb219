package bootstrap

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"signspeak/internal/camera"
	"signspeak/internal/config"
	"signspeak/internal/domain"
	"signspeak/internal/framehub"
	"signspeak/internal/labels"
	"signspeak/internal/logging"
	"signspeak/internal/metrics"
	"signspeak/internal/phrasing"
	"signspeak/internal/ports"
	"signspeak/internal/providers/gtranslate"
	"signspeak/internal/providers/remote"
	"signspeak/internal/server"
	"signspeak/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Config  config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Frames  *framehub.Hub
	Labels  ports.LabelSource
	Speech  *usecase.SpeechService
	Server  *server.Server

	// Controller is set by Build for the desktop shell.
	Controller *usecase.SessionController
	// Preview is set by BuildServer when server.preview is enabled.
	Preview *usecase.CameraController

	camera *camera.FFMPEGCamera
}

// Build wires the desktop runtime. events and alerter are provided by the
// shell.
func Build(events ports.EventSink, alerter ports.Alerter) (Services, error) {
	services, err := buildCore()
	if err != nil {
		return Services{}, err
	}

	cfg := services.Config
	services.Controller = usecase.NewSessionController(
		services.camera,
		services.Labels,
		alerter,
		services.Speech,
		events,
		services.Logger,
		services.Metrics,
		usecase.Config{
			Camera:    cameraConfig(cfg.Camera),
			Detection: detectionConfig(cfg.Detection),
		},
	)
	return services, nil
}

// BuildServer wires the standalone HTTP backend.
func BuildServer() (Services, error) {
	services, err := buildCore()
	if err != nil {
		return Services{}, err
	}
	if services.Config.Server.Preview {
		services.Preview = usecase.NewCameraController(
			services.camera,
			logSink{log: services.Logger.Named("preview")},
			nil,
			services.Logger.Named("preview"),
			services.Metrics,
			cameraConfig(services.Config.Camera),
		)
	}
	return services, nil
}

func buildCore() (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return Services{}, err
	}

	rules, err := phrasing.Load(cfg.Phrasing.Path, cfg.Phrasing.IterationLimit)
	if err != nil {
		return Services{}, err
	}

	source, err := newLabelSource(cfg.Labels, log.Named("labels"))
	if err != nil {
		return Services{}, err
	}

	m := metrics.New()
	frames := framehub.New()
	google := gtranslate.New(gtranslate.Config{
		TranslateURL: cfg.Speech.TranslateURL,
		TTSURL:       cfg.Speech.TTSURL,
		Timeout:      cfg.Speech.Timeout,
	}, log.Named("gtranslate"))
	speech := usecase.NewSpeechService(rules, google, google, log.Named("speech"), m, cfg.Speech.DefaultLanguage)

	log.Info("services configured",
		zap.String("label_source", cfg.Labels.Source),
		zap.Int("phrasing_rules", rules.Len()),
		zap.String("camera_format", cfg.Camera.InputFormat),
	)

	return Services{
		Config:  cfg,
		Logger:  log,
		Metrics: m,
		Frames:  frames,
		Labels:  source,
		Speech:  speech,
		Server: server.New(server.Deps{
			Labels:         source,
			Speech:         speech,
			Frames:         frames,
			Metrics:        m,
			Log:            log.Named("http"),
			Detection:      detectionConfig(cfg.Detection),
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}),
		camera: camera.NewFFMPEGCamera(camera.Config{
			Command:     cfg.Camera.Command,
			InputFormat: cfg.Camera.InputFormat,
			FrontDevice: cfg.Camera.FrontDevice,
			BackDevice:  cfg.Camera.BackDevice,
		}, frames, log.Named("ffmpeg")),
	}, nil
}

func newLabelSource(cfg config.LabelsConfig, log *zap.Logger) (ports.LabelSource, error) {
	if cfg.Source != config.LabelSourceRemote {
		return labels.NewRandomSource(0), nil
	}
	source, err := remote.NewSource(cfg.RemoteURL, log)
	if err != nil {
		return nil, fmt.Errorf("remote label source: %w", err)
	}
	return source, nil
}

// Close tears down everything Build or BuildServer created.
func (s Services) Close() error {
	var errs []error
	if s.Server != nil {
		s.Server.Close()
	}
	if s.Controller != nil {
		errs = append(errs, s.Controller.Close())
	}
	if s.Preview != nil {
		errs = append(errs, s.Preview.Close())
	}
	if closer, ok := s.Labels.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	if s.Frames != nil {
		s.Frames.Close()
	}
	if s.Logger != nil {
		_ = s.Logger.Sync()
	}
	return errors.Join(errs...)
}

func cameraConfig(cfg config.CameraConfig) usecase.CameraConfig {
	return usecase.CameraConfig{
		Facing:    domain.FacingUser,
		Width:     cfg.Width,
		Height:    cfg.Height,
		FrameRate: cfg.FrameRate,
	}
}

func detectionConfig(cfg config.DetectionConfig) usecase.DetectionConfig {
	return usecase.DetectionConfig{
		Interval:    cfg.Interval,
		AppendDelay: cfg.AppendDelay,
	}
}

// logSink reports preview camera transitions to the log when no UI is
// attached.
type logSink struct {
	log *zap.Logger
}

func (s logSink) CameraStateChanged(status domain.CameraStatus, reason domain.CameraReason) {
	s.log.Info("camera state changed",
		zap.Bool("active", status.Active),
		zap.String("facing", string(status.Facing)),
		zap.String("reason", string(reason)),
	)
}

func (s logSink) SessionError(code domain.ErrorCode, detail string) {
	s.log.Error("camera error", zap.String("code", string(code)), zap.String("detail", detail))
}
