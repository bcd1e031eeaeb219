package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"signspeak/internal/domain"
	"signspeak/internal/errorsx"
	"signspeak/internal/logging"
	"signspeak/internal/ports"
)

const (
	defaultStartupGrace = 250 * time.Millisecond
	stopGrace           = 1200 * time.Millisecond
	maxFrameBytes       = 8 << 20
)

// FrameSink receives encoded JPEG frames. Sinks that also implement Reset()
// are reset when a stream ends so no stale frame outlives the capture.
type FrameSink interface {
	Publish(data []byte)
}

// Config selects the capture backend and the device per facing mode.
type Config struct {
	Command      string
	InputFormat  string
	FrontDevice  string
	BackDevice   string
	StartupGrace time.Duration
}

// FFMPEGCamera captures video with ffmpeg and publishes MJPEG frames.
type FFMPEGCamera struct {
	cfg    Config
	frames FrameSink
	log    *zap.Logger
}

func NewFFMPEGCamera(cfg Config, frames FrameSink, log *zap.Logger) *FFMPEGCamera {
	if cfg.Command == "" {
		cfg.Command = "ffmpeg"
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "v4l2"
	}
	if cfg.FrontDevice == "" {
		cfg.FrontDevice = "/dev/video0"
	}
	if cfg.BackDevice == "" {
		cfg.BackDevice = cfg.FrontDevice
	}
	if cfg.StartupGrace <= 0 {
		cfg.StartupGrace = defaultStartupGrace
	}
	return &FFMPEGCamera{cfg: cfg, frames: frames, log: logging.OrNop(log)}
}

// Open starts a capture. The requested size is a preference: when the device
// rejects it the capture is retried at the device default.
func (c *FFMPEGCamera) Open(ctx context.Context, req ports.CameraRequest) (ports.CameraStream, error) {
	device := c.device(req.Facing)

	if req.Width > 0 && req.Height > 0 {
		stream, err := c.launch(ctx, device, req, true)
		if err == nil {
			return stream, nil
		}
		if !errorsx.HasReason(err, errorsx.ReasonCameraConstraint) {
			return nil, err
		}
		c.log.Info("preferred capture size rejected; using device default",
			zap.String("device", device),
			zap.Int("width", req.Width),
			zap.Int("height", req.Height),
			zap.Error(err))
	}
	return c.launch(ctx, device, req, false)
}

func (c *FFMPEGCamera) device(mode domain.FacingMode) string {
	if mode == domain.FacingEnvironment {
		return c.cfg.BackDevice
	}
	return c.cfg.FrontDevice
}

func (c *FFMPEGCamera) launch(ctx context.Context, device string, req ports.CameraRequest, preferred bool) (*ffmpegStream, error) {
	cmd := exec.CommandContext(ctx, c.cfg.Command, buildArgs(c.cfg.InputFormat, device, req, preferred)...)
	cmd.WaitDelay = time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("failed to start ffmpeg: %w", err), errorsx.ReasonCameraUnavailable)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		detail := strings.TrimSpace(stderr.String())
		if err == nil {
			err = errors.New("ffmpeg exited before capture started")
		} else {
			err = fmt.Errorf("ffmpeg exited before capture started: %w", err)
		}
		if detail != "" {
			err = fmt.Errorf("%w: %s", err, detail)
		}
		return nil, errorsx.Wrap(err, classify(detail))
	case <-time.After(c.cfg.StartupGrace):
	}

	stream := &ffmpegStream{
		id:       uuid.NewString(),
		facing:   req.Facing,
		device:   device,
		stdout:   stdout,
		stderr:   &stderr,
		process:  cmd.Process,
		waitErr:  waitErr,
		pumpDone: make(chan struct{}),
	}
	go stream.pump(c.frames, c.log)
	return stream, nil
}

func buildArgs(format, device string, req ports.CameraRequest, preferred bool) []string {
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-f", format,
	}
	if preferred {
		if req.FrameRate > 0 {
			args = append(args, "-framerate", strconv.Itoa(req.FrameRate))
		}
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", req.Width, req.Height))
	}
	return append(args,
		"-i", device,
		"-an",
		"-f", "mjpeg",
		"-q:v", "5",
		"-",
	)
}

// classify maps ffmpeg diagnostics onto error reasons.
func classify(stderr string) errorsx.ReasonCode {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "operation not permitted"):
		return errorsx.ReasonCameraPermission
	case strings.Contains(lower, "invalid argument"),
		strings.Contains(lower, "not supported"),
		strings.Contains(lower, "could not set video options"),
		strings.Contains(lower, "video_size"):
		return errorsx.ReasonCameraConstraint
	default:
		return errorsx.ReasonCameraUnavailable
	}
}

type ffmpegStream struct {
	id     string
	facing domain.FacingMode
	device string

	stdout io.ReadCloser
	stderr *bytes.Buffer

	process  *os.Process
	waitErr  <-chan error
	pumpDone chan struct{}

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegStream) ID() string                { return s.id }
func (s *ffmpegStream) Facing() domain.FacingMode { return s.facing }

func (s *ffmpegStream) pump(frames FrameSink, log *zap.Logger) {
	defer close(s.pumpDone)

	scanner := bufio.NewScanner(s.stdout)
	scanner.Buffer(make([]byte, 0, 256<<10), maxFrameBytes)
	scanner.Split(scanJPEG)

	count := 0
	for scanner.Scan() {
		if frames != nil {
			frames.Publish(append([]byte(nil), scanner.Bytes()...))
		}
		count++
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		log.Debug("frame pump ended", zap.String("stream", s.id), zap.Error(err))
	}
	if r, ok := frames.(interface{ Reset() }); ok {
		r.Reset()
	}
	log.Debug("frame pump finished", zap.String("stream", s.id), zap.Int("frames", count))
}

// Stop interrupts ffmpeg, escalating to kill after a grace period.
func (s *ffmpegStream) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(stopGrace):
			if s.process != nil {
				_ = s.process.Kill()
			}
			if err, ok := <-s.waitErr; ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = closeErr
		}
		<-s.pumpDone

		if s.stopErr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, strings.TrimSpace(s.stderr.String()))
		}
	})
	return s.stopErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	if errors.Is(err, exec.ErrWaitDelay) {
		return nil
	}
	return err
}

var (
	jpegStart = []byte{0xFF, 0xD8}
	jpegEnd   = []byte{0xFF, 0xD9}
)

// scanJPEG is a bufio.SplitFunc that yields complete JPEG images from an
// MJPEG byte stream, discarding bytes outside SOI/EOI markers.
func scanJPEG(data []byte, atEOF bool) (int, []byte, error) {
	start := bytes.Index(data, jpegStart)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		if len(data) > 1 {
			return len(data) - 1, nil, nil
		}
		return 0, nil, nil
	}

	end := bytes.Index(data[start+len(jpegStart):], jpegEnd)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}

	stop := start + len(jpegStart) + end + len(jpegEnd)
	return stop, data[start:stop], nil
}
